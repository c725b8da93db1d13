// Package analyzer extracts music-reactive features from raw samples via
// FFT band analysis. It is a collaborator of the theming core, not part of
// it: producers consume Features, the core never looks inside.
package analyzer

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
)

type band struct {
	name string
	loHz float64
	hiHz float64
}

var bands = [3]band{
	{"bass", 20, 250},
	{"mid", 250, 2000},
	{"treble", 2000, 8000},
}

// envelope smooths a band with asymmetric attack/release so peaks register
// quickly and fall away slowly.
type envelope struct {
	value   float64
	attack  float64
	release float64
}

func (e *envelope) feed(v float64) float64 {
	if v > e.value {
		e.value = e.value*e.attack + v*(1-e.attack)
	} else {
		e.value *= e.release
	}
	return e.value
}

// Analyzer turns sample windows into Features.
type Analyzer struct {
	sampleRate float64
	history    int

	peaks    [3]envelope
	beat     float64
	lastBass float64
	bassHist []float64
	dropHold float64

	buffer []complex128
	window []float64
}

// Config controls Analyzer behavior.
type Config struct {
	SampleRate  float64
	HistorySize int
}

// New creates an Analyzer.
func New(cfg Config) *Analyzer {
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = 44_100
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 48
	}
	a := &Analyzer{
		sampleRate: cfg.SampleRate,
		history:    cfg.HistorySize,
		bassHist:   make([]float64, 0, cfg.HistorySize),
	}
	for i := range a.peaks {
		a.peaks[i] = envelope{attack: 0.94, release: 0.76}
	}
	return a
}

// Analyze computes Features for one mono sample window. deltaTime is the
// frame delta in seconds, used only for the drop cooldown.
func (a *Analyzer) Analyze(samples []float32, deltaTime float64) Features {
	if len(samples) == 0 {
		return Features{}
	}

	size := fftSize(len(samples))
	a.ensureWorkspace(size)

	for i := 0; i < size; i++ {
		if i < len(samples) {
			a.buffer[i] = complex(float64(samples[i])*a.window[i], 0)
		} else {
			a.buffer[i] = 0
		}
	}

	spectrum := fft.FFT(a.buffer[:size])
	resolution := a.sampleRate / float64(size)

	var raw, out [3]float64
	for i, b := range bands {
		raw[i] = bandEnergy(spectrum, resolution, b.loHz, b.hiHz)
		peak := a.peaks[i].feed(raw[i])
		out[i] = expand(raw[i], peak)
	}

	energy := (out[0] + out[1] + out[2]) / 3.0

	// Beat: a sharp rise in bass energy relative to the previous window.
	bassRise := raw[0] - a.lastBass
	strength := clamp(bassRise*14.0, 0, 1)
	if strength > 0.12 {
		a.beat = 1.0
	}
	a.beat *= 0.88
	strength = math.Min(1.0, strength+a.beat*0.7)

	// Drop: bass spiking well above its own recent average.
	isDrop := false
	a.pushBass(raw[0])
	if a.dropHold <= 0 {
		avg := mean(a.bassHist)
		if avg > 0 && raw[0] > avg*2.0 && bassRise > 0.1 {
			isDrop = true
			a.dropHold = 1.0
		}
	} else {
		a.dropHold -= deltaTime
	}
	a.lastBass = raw[0]

	return Features{
		Bass:         out[0],
		Mid:          out[1],
		Treble:       out[2],
		Energy:       energy,
		BeatStrength: strength,
		IsDrop:       isDrop,
	}
}

func bandEnergy(spectrum []complex128, resolution, loHz, hiHz float64) float64 {
	lo := int(math.Floor(loHz / resolution))
	hi := int(math.Ceil(hiHz/resolution)) + 1
	if hi > len(spectrum)/2 {
		hi = len(spectrum) / 2
	}
	if lo >= hi {
		return 0
	}
	sum := 0.0
	for _, c := range spectrum[lo:hi] {
		sum += math.Hypot(real(c), imag(c))
	}
	v := sum / float64(hi-lo)
	if v > 1 {
		return 1
	}
	return v
}

// expand applies soft dynamic-range expansion against the tracked peak so a
// quiet passage still moves the theme.
func expand(value, peak float64) float64 {
	if peak < 0.01 {
		return value
	}
	ratio := math.Max(value/peak, 0)
	v := math.Pow(ratio, 0.7) * peak
	if ratio > 0.85 {
		v *= 1.0 + (ratio-0.85)*2.0
	}
	if v > 1 {
		return 1
	}
	return v
}

func (a *Analyzer) pushBass(v float64) {
	a.bassHist = append(a.bassHist, v)
	if len(a.bassHist) > a.history {
		copy(a.bassHist, a.bassHist[1:])
		a.bassHist = a.bassHist[:len(a.bassHist)-1]
	}
}

func (a *Analyzer) ensureWorkspace(size int) {
	if len(a.buffer) != size {
		a.buffer = make([]complex128, size)
	}
	if len(a.window) != size {
		a.window = make([]float64, size)
		for i := range a.window {
			// Hann window
			a.window[i] = 0.5 * (1.0 - math.Cos(2.0*math.Pi*float64(i)/float64(size)))
		}
	}
}

// fftSize picks a power of two in [256, 2048] covering the sample window.
func fftSize(n int) int {
	if n > 2048 {
		n = 2048
	}
	size := 256
	for size < n {
		size <<= 1
	}
	return size
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sum := 0.0
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
