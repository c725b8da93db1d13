// Package config loads the optional TOML tuning file. Everything has a
// working default; the file only overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/mfiguera/themepulse/internal/quality"
)

// Tuning holds every knob the engine exposes to operators.
type Tuning struct {
	Scheduler  SchedulerConfig  `toml:"scheduler"`
	Batcher    BatcherConfig    `toml:"batcher"`
	Controller ControllerConfig `toml:"controller"`
	Levels     []LevelConfig    `toml:"level"`
}

// SchedulerConfig tunes the per-tick budget.
type SchedulerConfig struct {
	BudgetMS float64 `toml:"budget_ms"`
}

// BatcherConfig tunes flushing and the fast path.
type BatcherConfig struct {
	FlushBudgetMS float64  `toml:"flush_budget_ms"`
	MaxQueue      int      `toml:"max_queue"`
	FastPathKeys  []string `toml:"fast_path_keys"`
}

// ControllerConfig tunes adaptation.
type ControllerConfig struct {
	WindowS        float64 `toml:"window_s"`
	CooldownS      float64 `toml:"cooldown_s"`
	StableSamples  int     `toml:"stable_samples"`
	MaxAdaptations int     `toml:"max_adaptations"`
	BreakerLimit   int     `toml:"breaker_limit"`
	BreakerOpenS   float64 `toml:"breaker_open_s"`
}

// LevelConfig overrides one tier of the built-in ladder.
type LevelConfig struct {
	Tier           string  `toml:"tier"`
	TargetFPS      float64 `toml:"target_fps"`
	MemoryBudgetMB float64 `toml:"memory_budget_mb"`
	Blur           *bool   `toml:"blur"`
	SecondaryLayer *bool   `toml:"secondary_layer"`
	GlowLayers     *int    `toml:"glow_layers"`
	GradientStops  *int    `toml:"gradient_stops"`
}

// Default returns the built-in tuning.
func Default() Tuning {
	return Tuning{
		Scheduler: SchedulerConfig{BudgetMS: 16},
		Batcher: BatcherConfig{
			FlushBudgetMS: 8,
			MaxQueue:      256,
			FastPathKeys:  []string{"--pulse-intensity", "--accent-color"},
		},
		Controller: ControllerConfig{
			WindowS:        30,
			CooldownS:      5,
			StableSamples:  10,
			MaxAdaptations: 6,
			BreakerLimit:   5,
			BreakerOpenS:   30,
		},
	}
}

// Load reads a tuning file over the defaults. A missing path returns the
// defaults unchanged.
func Load(path string) (Tuning, error) {
	t := Default()
	if path == "" {
		return t, nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return t, nil
	}
	if _, err := toml.DecodeFile(path, &t); err != nil {
		return t, fmt.Errorf("decode %s: %w", path, err)
	}
	return t, nil
}

// SchedulerBudget converts the tuned budget to a duration.
func (t Tuning) SchedulerBudget() time.Duration {
	return time.Duration(t.Scheduler.BudgetMS * float64(time.Millisecond))
}

// FlushBudget converts the tuned flush budget to a duration.
func (t Tuning) FlushBudget() time.Duration {
	return time.Duration(t.Batcher.FlushBudgetMS * float64(time.Millisecond))
}

// ControllerWindow converts the tuned window to a duration.
func (t Tuning) ControllerWindow() time.Duration {
	return time.Duration(t.Controller.WindowS * float64(time.Second))
}

// ControllerCooldown converts the tuned cooldown to a duration.
func (t Tuning) ControllerCooldown() time.Duration {
	return time.Duration(t.Controller.CooldownS * float64(time.Second))
}

// BreakerOpen converts the tuned breaker open duration.
func (t Tuning) BreakerOpen() time.Duration {
	return time.Duration(t.Controller.BreakerOpenS * float64(time.Second))
}

// QualityLevels applies the file's per-tier overrides to the built-in ladder.
func (t Tuning) QualityLevels() []quality.Level {
	levels := quality.DefaultLevels()
	for _, override := range t.Levels {
		tier := quality.ParseTier(override.Tier)
		for i := range levels {
			if levels[i].Tier != tier {
				continue
			}
			if override.TargetFPS > 0 {
				levels[i].TargetFPS = override.TargetFPS
			}
			if override.MemoryBudgetMB > 0 {
				levels[i].MemoryBudgetMB = override.MemoryBudgetMB
			}
			if override.Blur != nil {
				levels[i].Blur = *override.Blur
			}
			if override.SecondaryLayer != nil {
				levels[i].SecondaryLayer = *override.SecondaryLayer
			}
			if override.GlowLayers != nil {
				levels[i].GlowLayers = *override.GlowLayers
			}
			if override.GradientStops != nil {
				levels[i].GradientStops = *override.GradientStops
			}
		}
	}
	return levels
}
