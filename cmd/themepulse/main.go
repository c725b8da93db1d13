package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/eiannone/keyboard"

	"github.com/mfiguera/themepulse/internal/audio"
	"github.com/mfiguera/themepulse/internal/config"
	"github.com/mfiguera/themepulse/internal/engine"
	"github.com/mfiguera/themepulse/internal/quality"
	"github.com/mfiguera/themepulse/internal/surface"
	"github.com/mfiguera/themepulse/internal/web"
)

func main() {
	var (
		configPath  = flag.String("config", "", "Path to a TOML tuning file")
		tier        = flag.String("quality", "", "Starting quality tier (minimal|low|medium|high|ultra), empty auto-detects")
		powerMode   = flag.String("power", "balanced", "Power mode (battery|balanced|performance)")
		webEnabled  = flag.Bool("web", false, "Serve the diagnostics web interface")
		webPort     = flag.Int("web-port", 8080, "Diagnostics web port")
		noAudio     = flag.Bool("no-audio", false, "Run with synthetic audio (for testing)")
		deviceName  = flag.String("audio-device", "", "Optional PortAudio device name (substring match)")
		listDevs    = flag.Bool("list-audio-devices", false, "List available audio input devices and exit")
		noiseFloor  = flag.Float64("noise-floor", 0.02, "Feature gate below which bands are treated as silence")
		stressProbe = flag.Bool("stress-probe", false, "Run the short compute probe during capability estimation")
		noPreview   = flag.Bool("no-preview", false, "Disable the ANSI theme preview")
		sdlWindow   = flag.Bool("sdl", false, "Mirror the theme into an SDL window (requires a -tags sdl build)")
		debug       = flag.Bool("debug", false, "Enable verbose logging")
	)

	flag.Parse()

	if *noiseFloor < 0 {
		log.Fatalf("noise-floor must be non-negative (got %.3f)", *noiseFloor)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	logger := log.New(os.Stderr, "[themepulse] ", log.LstdFlags)
	if !*debug {
		logger.SetFlags(0)
	}

	needAudio := !*noAudio || *listDevs
	if needAudio {
		if err := audio.Initialize(); err != nil {
			logger.Fatalf("failed to initialize PortAudio: %v", err)
		}
		defer audio.Terminate()
	}

	if *listDevs {
		devices, err := audio.ListInputs()
		if err != nil {
			logger.Fatalf("list devices: %v", err)
		}
		fmt.Printf("\n=== Audio Input Devices ===\n\n")
		for _, dev := range devices {
			marker := ""
			if dev.IsDefault {
				marker = " (default)"
			}
			fmt.Printf("- %s [%s]%s\n    inputs:%d sample:%.0f Hz\n",
				dev.Name, dev.HostAPI, marker, dev.Inputs, dev.SampleHz)
		}
		return
	}

	tuning := config.Default()
	if *configPath != "" {
		var err error
		tuning, err = config.Load(*configPath)
		if err != nil {
			logger.Fatalf("load config: %v", err)
		}
	}

	var capture *audio.Capture
	if !*noAudio {
		var err error
		capture, err = audio.NewCapture(audio.Config{DeviceName: *deviceName})
		if err != nil {
			logger.Printf("audio capture unavailable, using synthetic source: %v", err)
		} else {
			defer capture.Close()
			logger.Printf("capturing from %q at %.0f Hz", capture.DeviceName(), capture.SampleRate())
		}
	}

	eng := engine.New(engine.Config{
		Tuning:      tuning,
		InitialTier: *tier,
		StressProbe: *stressProbe,
		Capture:     capture,
		NoiseFloor:  *noiseFloor,
		Log:         logger,
	})
	if err := eng.Start(); err != nil {
		logger.Fatalf("start engine: %v", err)
	}
	eng.SetPowerMode(quality.ParsePowerMode(*powerMode))
	defer eng.Close()

	if *webEnabled {
		server := web.NewServer(eng, logger)
		go func() {
			if err := server.Start(*webPort); err != nil {
				logger.Printf("web server stopped: %v", err)
			}
		}()
		defer server.Stop()
	}

	go runKeyboard(ctx, cancel, eng, logger)

	if *sdlWindow {
		if !surface.SupportsSDL() {
			logger.Fatalf("this binary was built without SDL support; rebuild with -tags sdl")
		}
		win, err := surface.NewSDL("window", 640, 360)
		if err != nil {
			logger.Fatalf("open SDL window: %v", err)
		}
		defer win.Close()
		go runWindow(ctx, cancel, eng, win, logger)
	} else if !*noPreview {
		go runPreview(ctx, eng)
	}

	if err := eng.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Fatalf("runtime error: %v", err)
	}
	fmt.Println("\nExiting...")
}

// runKeyboard handles the interactive controls: q/esc quit, f force flush,
// u/d tier up and down, h toggle hidden, b toggle simulated low battery.
func runKeyboard(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, logger *log.Logger) {
	if err := keyboard.Open(); err != nil {
		logger.Printf("keyboard controls unavailable: %v", err)
		return
	}
	defer keyboard.Close()

	hidden := false
	lowBattery := false

	for ctx.Err() == nil {
		char, key, err := keyboard.GetKey()
		if err != nil {
			return
		}
		switch {
		case key == keyboard.KeyEsc || char == 'q':
			cancel()
			return
		case char == 'f':
			eng.ForceFlush()
		case char == 'u':
			eng.SetTier(eng.Controller().Level().Tier + 1)
		case char == 'd':
			eng.SetTier(eng.Controller().Level().Tier - 1)
		case char == 'h':
			hidden = !hidden
			eng.SetHidden(hidden)
		case char == 'b':
			lowBattery = !lowBattery
			if lowBattery {
				eng.SetBattery(0.1, false)
			} else {
				eng.SetBattery(0.9, true)
			}
		}
	}
}

// runWindow mirrors the player surface into the SDL window at ~60 Hz and
// quits the program when the window closes.
func runWindow(ctx context.Context, cancel context.CancelFunc, eng *engine.Engine, win *surface.SDL, logger *log.Logger) {
	ticker := time.NewTicker(16 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			win.SetPropertyText(eng.Surface().Snapshot())
			if err := win.Present(); err != nil {
				if err != surface.ErrWindowClosed {
					logger.Printf("window present: %v", err)
				}
				cancel()
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// runPreview mirrors the player surface onto an ANSI terminal bar at 10 Hz.
func runPreview(ctx context.Context, eng *engine.Engine) {
	preview := surface.NewTerminal("preview")
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			preview.SetPropertyText(eng.Surface().Snapshot())
			level := eng.Controller().Level()
			fmt.Printf("\r\x1b[K[%s] %s", level.Tier, preview.Render())
		case <-ctx.Done():
			fmt.Print("\r\x1b[K")
			return
		}
	}
}
