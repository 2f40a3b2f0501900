// Package vad finds silence-separated speech intervals in a waveform using
// frame-level RMS energy with start/stop hysteresis.
package vad

import (
	"github.com/voicecorpus/voicecorpus/internal/audio"
)

// Config holds voice activity detection parameters.
type Config struct {
	EnergyThreshold float64 // RMS energy threshold for speech
	SpeechMinDurMs  int     // Minimum duration to confirm speech start
	SilenceMinDurMs int     // Minimum duration to confirm speech end
	FrameSizeMs     int     // Frame size in milliseconds
}

// DefaultConfig returns sensible defaults for 16kHz speech.
func DefaultConfig() Config {
	return Config{
		EnergyThreshold: 500,
		SpeechMinDurMs:  200,
		SilenceMinDurMs: 300,
		FrameSizeMs:     30,
	}
}

// Interval is one detected speech span with its mean frame energy,
// normalized against the threshold as a rough boundary confidence.
type Interval struct {
	StartSec float64
	EndSec   float64
	Energy   float64
}

// Segmenter performs batch voice activity detection over a full waveform.
type Segmenter struct {
	config Config
}

// NewSegmenter creates a segmenter with the given parameters.
func NewSegmenter(cfg Config) *Segmenter {
	if cfg.FrameSizeMs <= 0 {
		cfg.FrameSizeMs = 30
	}
	return &Segmenter{config: cfg}
}

// FrameSec returns the analysis frame length in seconds.
func (s *Segmenter) FrameSec() float64 {
	return float64(s.config.FrameSizeMs) / 1000.0
}

// Energies returns the per-frame RMS energy of the waveform. The trailing
// partial frame is included so short recordings are not truncated.
func (s *Segmenter) Energies(wf *audio.Waveform) []float64 {
	frameSamples := wf.SampleRate * s.config.FrameSizeMs / 1000
	if frameSamples <= 0 {
		return nil
	}
	var energies []float64
	for off := 0; off < len(wf.Samples); off += frameSamples {
		end := off + frameSamples
		if end > len(wf.Samples) {
			end = len(wf.Samples)
		}
		energies = append(energies, audio.RMS(wf.Samples[off:end]))
	}
	return energies
}

// Segment returns the ordered speech intervals of the waveform. An empty
// result means no usable boundaries were found and the caller should fall
// back to fixed-duration slicing.
func (s *Segmenter) Segment(wf *audio.Waveform) []Interval {
	energies := s.Energies(wf)
	if len(energies) == 0 {
		return nil
	}

	frameSec := s.FrameSec()
	minSpeechFrames := framesFor(s.config.SpeechMinDurMs, s.config.FrameSizeMs)
	minSilenceFrames := framesFor(s.config.SilenceMinDurMs, s.config.FrameSizeMs)

	var (
		intervals     []Interval
		speaking      bool
		speechFrames  int
		silenceFrames int
		startFrame    int
		energySum     float64
		energyCount   int
	)

	for i, e := range energies {
		if e >= s.config.EnergyThreshold {
			silenceFrames = 0
			speechFrames++
			if speaking {
				energySum += e
				energyCount++
			} else if speechFrames >= minSpeechFrames {
				speaking = true
				startFrame = i - speechFrames + 1
				// Count the confirmation streak toward the mean.
				for j := startFrame; j <= i; j++ {
					energySum += energies[j]
					energyCount++
				}
			}
		} else {
			speechFrames = 0
			silenceFrames++
			if speaking && silenceFrames >= minSilenceFrames {
				endFrame := i - silenceFrames + 1
				intervals = append(intervals, s.interval(startFrame, endFrame, frameSec, energySum, energyCount, wf))
				speaking = false
				energySum, energyCount = 0, 0
			}
		}
	}

	if speaking {
		// Speech ran to the end of the waveform.
		endFrame := len(energies) - silenceFrames
		intervals = append(intervals, s.interval(startFrame, endFrame, frameSec, energySum, energyCount, wf))
	}

	return intervals
}

func (s *Segmenter) interval(startFrame, endFrame int, frameSec, energySum float64, energyCount int, wf *audio.Waveform) Interval {
	start := float64(startFrame) * frameSec
	end := float64(endFrame) * frameSec
	if total := wf.DurationSec(); end > total {
		end = total
	}
	var energy float64
	if energyCount > 0 {
		energy = energySum / float64(energyCount)
	}
	return Interval{StartSec: start, EndSec: end, Energy: energy}
}

func framesFor(durMs, frameMs int) int {
	n := durMs / frameMs
	if n < 1 {
		n = 1
	}
	return n
}
