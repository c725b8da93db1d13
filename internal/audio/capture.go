package audio

import (
	"fmt"
	"strings"
	"sync"

	"github.com/gordonklaus/portaudio"
)

const defaultWindow = 4096

// Capture owns a PortAudio input stream and a ring buffer of the most recent
// mono samples.
type Capture struct {
	stream     *portaudio.Stream
	sampleRate float64
	channels   int
	device     *portaudio.DeviceInfo

	mu   sync.RWMutex
	ring []float32
	head int
}

// Config controls capture setup.
type Config struct {
	// DeviceName selects an input device by substring match; empty picks
	// the default input.
	DeviceName string
	// Window is the retained sample count handed to the analyzer.
	Window   int
	Channels int
}

// NewCapture opens and starts an input stream.
func NewCapture(cfg Config) (*Capture, error) {
	if cfg.Window <= 0 {
		cfg.Window = defaultWindow
	}
	if cfg.Channels <= 0 {
		cfg.Channels = 1
	}

	device, err := findInput(cfg.DeviceName)
	if err != nil {
		return nil, err
	}

	c := &Capture{
		sampleRate: device.DefaultSampleRate,
		channels:   cfg.Channels,
		device:     device,
		ring:       make([]float32, cfg.Window),
	}

	frames := cfg.Window / cfg.Channels
	if frames < 64 {
		frames = portaudio.FramesPerBufferUnspecified
	}

	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   device,
			Channels: cfg.Channels,
			Latency:  device.DefaultLowInputLatency,
		},
		SampleRate:      c.sampleRate,
		FramesPerBuffer: frames,
	}, c.ingest)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	c.stream = stream

	if err := stream.Start(); err != nil {
		_ = stream.Close()
		return nil, fmt.Errorf("start stream: %w", err)
	}
	return c, nil
}

// ingest runs on the PortAudio callback thread; it downmixes to mono and
// appends into the ring.
func (c *Capture) ingest(in []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	step := c.channels
	for i := 0; i+step <= len(in); i += step {
		sum := float32(0)
		for ch := 0; ch < step; ch++ {
			sum += in[i+ch]
		}
		c.ring[c.head] = sum / float32(step)
		c.head = (c.head + 1) % len(c.ring)
	}
}

// Samples copies out the ring in chronological order.
func (c *Capture) Samples() []float32 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]float32, len(c.ring))
	n := copy(out, c.ring[c.head:])
	copy(out[n:], c.ring[:c.head])
	return out
}

// SampleRate returns the stream sample rate.
func (c *Capture) SampleRate() float64 { return c.sampleRate }

// DeviceName returns the active input device name.
func (c *Capture) DeviceName() string {
	if c.device == nil {
		return ""
	}
	return c.device.Name
}

// Close stops and closes the stream.
func (c *Capture) Close() error {
	if c.stream == nil {
		return nil
	}
	_ = c.stream.Stop()
	return c.stream.Close()
}

// Device describes an input device for listing.
type Device struct {
	Name      string
	HostAPI   string
	Inputs    int
	SampleHz  float64
	IsDefault bool
}

// ListInputs returns the available input devices.
func ListInputs() ([]Device, error) {
	hosts, err := portaudio.HostApis()
	if err != nil {
		return nil, fmt.Errorf("host apis: %w", err)
	}

	defaultIdx := -1
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		defaultIdx = def.Index
	}

	var out []Device
	for _, host := range hosts {
		for _, d := range host.Devices {
			if d.MaxInputChannels == 0 {
				continue
			}
			out = append(out, Device{
				Name:      d.Name,
				HostAPI:   host.Name,
				Inputs:    d.MaxInputChannels,
				SampleHz:  d.DefaultSampleRate,
				IsDefault: d.Index == defaultIdx,
			})
		}
	}
	return out, nil
}

func findInput(name string) (*portaudio.DeviceInfo, error) {
	if name == "" {
		def, err := portaudio.DefaultInputDevice()
		if err != nil {
			return nil, fmt.Errorf("default input: %w", err)
		}
		return def, nil
	}

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("devices: %w", err)
	}
	needle := strings.ToLower(name)
	for _, d := range devices {
		if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), needle) {
			return d, nil
		}
	}
	return nil, fmt.Errorf("no input device matching %q", name)
}
