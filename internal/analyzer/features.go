package analyzer

// Features carries the music-analysis cues the theming producers react to.
// Band energies and beat strength are normalized to [0,1].
type Features struct {
	Bass         float64
	Mid          float64
	Treble       float64
	Energy       float64
	BeatStrength float64
	IsDrop       bool
}

// Silent reports whether the snapshot carries no usable signal.
func (f Features) Silent() bool {
	return f.Bass == 0 && f.Mid == 0 && f.Treble == 0 && f.Energy == 0
}

// Gate zeroes bands below the noise floor and rescales the rest, so weak
// ambient input does not keep the theme twitching.
func (f Features) Gate(floor float64) Features {
	if floor <= 0 {
		return f
	}
	gate := func(v float64) float64 {
		if v <= floor {
			return 0
		}
		return clamp((v-floor)/(1.0-floor), 0, 1)
	}
	f.Bass = gate(f.Bass)
	f.Mid = gate(f.Mid)
	f.Treble = gate(f.Treble)
	f.Energy = gate(f.Energy)
	f.BeatStrength = gate(f.BeatStrength)
	if f.Silent() {
		f.IsDrop = false
	}
	return f
}
