// Package web serves the diagnostics and control surface: a JSON status
// endpoint, a few POST controls, and a websocket stream that pushes the
// engine snapshot to connected clients twice a second.
package web

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mfiguera/themepulse/internal/engine"
	"github.com/mfiguera/themepulse/internal/quality"
)

// EngineControl is the slice of the engine the server needs.
type EngineControl interface {
	Snapshot() engine.Snapshot
	SetTier(quality.Tier)
	SetPowerMode(quality.PowerMode)
	SetBattery(level float64, charging bool)
	SetHidden(bool)
	ForceFlush()
}

// UpdateRequest is a partial control update; nil fields are left alone.
type UpdateRequest struct {
	Tier      *string  `json:"tier,omitempty"`
	PowerMode *string  `json:"powerMode,omitempty"`
	Battery   *float64 `json:"battery,omitempty"`
	Charging  *bool    `json:"charging,omitempty"`
	Hidden    *bool    `json:"hidden,omitempty"`
}

type Server struct {
	mu        sync.RWMutex
	eng       EngineControl
	log       *log.Logger
	clients   map[*wsClient]bool
	broadcast chan []byte
	upgrader  websocket.Upgrader
	done      chan struct{}
}

type wsClient struct {
	conn   *websocket.Conn
	send   chan []byte
	server *Server
}

func NewServer(eng EngineControl, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(os.Stderr, "[web] ", log.LstdFlags)
	}
	return &Server{
		eng:       eng,
		log:       logger,
		clients:   make(map[*wsClient]bool),
		broadcast: make(chan []byte, 256),
		done:      make(chan struct{}),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
}

// Start serves on the given port and blocks, like http.ListenAndServe.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/update", s.handleUpdate)
	mux.HandleFunc("/api/flush", s.handleFlush)
	mux.HandleFunc("/api/tiers", s.handleTiers)
	mux.HandleFunc("/ws", s.handleWebSocket)

	addr := fmt.Sprintf(":%d", port)
	s.log.Printf("serving diagnostics on http://0.0.0.0%s", addr)

	go s.broadcastLoop()
	go s.statusLoop()

	return http.ListenAndServe(addr, mux)
}

// Stop ends the broadcast loops. In-flight requests are not interrupted.
func (s *Server) Stop() {
	close(s.done)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(s.eng.Snapshot())
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req UpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if req.Tier != nil {
		s.eng.SetTier(quality.ParseTier(*req.Tier))
	}
	if req.PowerMode != nil {
		s.eng.SetPowerMode(quality.ParsePowerMode(*req.PowerMode))
	}
	if req.Battery != nil {
		charging := false
		if req.Charging != nil {
			charging = *req.Charging
		}
		s.eng.SetBattery(*req.Battery, charging)
	}
	if req.Hidden != nil {
		s.eng.SetHidden(*req.Hidden)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) handleFlush(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	s.eng.ForceFlush()
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "flushed"})
}

func (s *Server) handleTiers(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(quality.TierNames())
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Printf("websocket upgrade error: %v", err)
		return
	}

	client := &wsClient{
		conn:   conn,
		send:   make(chan []byte, 256),
		server: s,
	}

	s.mu.Lock()
	s.clients[client] = true
	s.mu.Unlock()

	go client.writePump()
	go client.readPump()
}

func (s *Server) broadcastLoop() {
	for {
		select {
		case message := <-s.broadcast:
			s.mu.Lock()
			for client := range s.clients {
				select {
				case client.send <- message:
				default:
					close(client.send)
					delete(s.clients, client)
				}
			}
			s.mu.Unlock()
		case <-s.done:
			return
		}
	}
}

func (s *Server) statusLoop() {
	// 500ms keeps the stream responsive without stealing frame time
	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.mu.RLock()
			idle := len(s.clients) == 0
			s.mu.RUnlock()
			if idle {
				continue
			}

			data, err := json.Marshal(s.eng.Snapshot())
			if err != nil {
				continue
			}
			select {
			case s.broadcast <- data:
			default:
				// drop if channel full
			}
		case <-s.done:
			return
		}
	}
}

func (c *wsClient) readPump() {
	defer func() {
		c.server.mu.Lock()
		delete(c.server.clients, c)
		c.server.mu.Unlock()
		c.conn.Close()
	}()

	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, _, err := c.conn.ReadMessage()
		if err != nil {
			break
		}
	}
}

func (c *wsClient) writePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}

			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
