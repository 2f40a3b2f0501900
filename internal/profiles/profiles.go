// Package profiles loads named chunking parameter presets from YAML files.
// A profile tunes segmentation for a language or recording style without a
// redeploy; the directory is hot-reloadable.
package profiles

import "fmt"

// Profile is a YAML-mappable chunking preset.
type Profile struct {
	Name             string  `yaml:"name"               json:"name"`
	Description      string  `yaml:"description"        json:"description,omitempty"`
	MinChunkSec      float64 `yaml:"min_chunk_sec"      json:"min_chunk_sec"`
	MaxChunkSec      float64 `yaml:"max_chunk_sec"      json:"max_chunk_sec"`
	MergeGapSec      float64 `yaml:"merge_gap_sec"      json:"merge_gap_sec"`
	FallbackSliceSec float64 `yaml:"fallback_slice_sec" json:"fallback_slice_sec"`
	SnapWindowSec    float64 `yaml:"snap_window_sec"    json:"snap_window_sec"`
	GuardFraction    float64 `yaml:"guard_fraction"     json:"guard_fraction"`
	EnergyThreshold  float64 `yaml:"energy_threshold"   json:"energy_threshold"`
	SpeechMinDurMs   int     `yaml:"speech_min_dur_ms"  json:"speech_min_dur_ms"`
	SilenceMinDurMs  int     `yaml:"silence_min_dur_ms" json:"silence_min_dur_ms"`
	FrameSizeMs      int     `yaml:"frame_size_ms"      json:"frame_size_ms"`
}

// Default returns the built-in profile used when a recording names none.
func Default() Profile {
	return Profile{
		Name:             "default",
		MinChunkSec:      1.0,
		MaxChunkSec:      15.0,
		MergeGapSec:      0.5,
		FallbackSliceSec: 10.0,
		SnapWindowSec:    1.0,
		GuardFraction:    0.15,
		EnergyThreshold:  500,
		SpeechMinDurMs:   200,
		SilenceMinDurMs:  300,
		FrameSizeMs:      30,
	}
}

// Validate checks a profile for internally consistent bounds.
func (p Profile) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("profile: name is required")
	}
	if p.MinChunkSec <= 0 {
		return fmt.Errorf("profile %q: min_chunk_sec must be positive", p.Name)
	}
	if p.MaxChunkSec <= p.MinChunkSec {
		return fmt.Errorf("profile %q: max_chunk_sec %.2f must exceed min_chunk_sec %.2f",
			p.Name, p.MaxChunkSec, p.MinChunkSec)
	}
	if p.FallbackSliceSec < p.MinChunkSec || p.FallbackSliceSec > p.MaxChunkSec {
		return fmt.Errorf("profile %q: fallback_slice_sec %.2f must lie within chunk bounds",
			p.Name, p.FallbackSliceSec)
	}
	if p.GuardFraction < 0 || p.GuardFraction >= 0.5 {
		return fmt.Errorf("profile %q: guard_fraction %.2f must be in [0, 0.5)", p.Name, p.GuardFraction)
	}
	if p.FrameSizeMs <= 0 {
		return fmt.Errorf("profile %q: frame_size_ms must be positive", p.Name)
	}
	return nil
}
