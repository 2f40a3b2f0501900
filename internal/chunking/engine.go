// Package chunking turns a decoded waveform into an ordered list of
// sentence-scale chunk boundaries.
package chunking

import (
	"errors"
	"fmt"
	"math"

	"github.com/voicecorpus/voicecorpus/internal/audio"
	"github.com/voicecorpus/voicecorpus/internal/profiles"
	"github.com/voicecorpus/voicecorpus/internal/vad"
)

// ErrUnusableWaveform is returned when the input cannot produce any chunk.
var ErrUnusableWaveform = errors.New("unusable waveform")

// Boundary is one planned chunk span within the recording.
type Boundary struct {
	StartSec   float64
	EndSec     float64
	Confidence float64
}

// DurationSec returns the boundary length in seconds.
func (b Boundary) DurationSec() float64 { return b.EndSec - b.StartSec }

// Engine plans chunk boundaries for a waveform under one profile.
type Engine struct {
	profile   profiles.Profile
	segmenter *vad.Segmenter
}

// NewEngine creates a chunking engine for the given profile.
func NewEngine(p profiles.Profile) *Engine {
	return &Engine{
		profile: p,
		segmenter: vad.NewSegmenter(vad.Config{
			EnergyThreshold: p.EnergyThreshold,
			SpeechMinDurMs:  p.SpeechMinDurMs,
			SilenceMinDurMs: p.SilenceMinDurMs,
			FrameSizeMs:     p.FrameSizeMs,
		}),
	}
}

// Plan computes the ordered chunk boundaries for the waveform. It never
// returns a partial result: on error no boundaries are usable. Every
// returned boundary has a duration within the profile bounds, except when
// the whole recording is shorter than the minimum (single-chunk result).
func (e *Engine) Plan(wf *audio.Waveform) ([]Boundary, error) {
	if wf == nil || len(wf.Samples) == 0 || wf.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: empty audio", ErrUnusableWaveform)
	}

	total := wf.DurationSec()
	energies := e.segmenter.Energies(wf)
	frameSec := e.segmenter.FrameSec()

	// Recording shorter than the minimum chunk: single-chunk exception.
	if total < e.profile.MinChunkSec {
		return []Boundary{{StartSec: 0, EndSec: total, Confidence: e.confidence(audio.RMS(wf.Samples))}}, nil
	}

	intervals := e.segmenter.Segment(wf)
	var bounds []Boundary
	if len(intervals) == 0 {
		// Boundary detection was inconclusive: fixed-duration fallback.
		bounds = e.fallbackSlices(total, energies, frameSec)
	} else {
		merged := e.mergeGaps(intervals)
		for _, iv := range merged {
			bounds = append(bounds, e.split(iv, energies, frameSec)...)
		}
	}

	bounds = e.enforceMin(bounds)
	if len(bounds) == 0 {
		return nil, fmt.Errorf("%w: no speech content", ErrUnusableWaveform)
	}
	return bounds, nil
}

// mergeGaps joins adjacent intervals separated by a silence gap shorter
// than the merge threshold, so mid-sentence pauses do not split a chunk.
func (e *Engine) mergeGaps(intervals []vad.Interval) []vad.Interval {
	merged := make([]vad.Interval, 0, len(intervals))
	for _, iv := range intervals {
		if n := len(merged); n > 0 {
			prev := &merged[n-1]
			if iv.StartSec-prev.EndSec < e.profile.MergeGapSec {
				prevDur := prev.EndSec - prev.StartSec
				ivDur := iv.EndSec - iv.StartSec
				// Duration-weighted mean keeps the energy signal honest.
				prev.Energy = (prev.Energy*prevDur + iv.Energy*ivDur) / (prevDur + ivDur)
				prev.EndSec = iv.EndSec
				continue
			}
		}
		merged = append(merged, iv)
	}
	return merged
}

// split cuts an interval exceeding the maximum duration at its
// lowest-energy point, never inside the guard fraction at either edge, and
// recurses on the remainder.
func (e *Engine) split(iv vad.Interval, energies []float64, frameSec float64) []Boundary {
	dur := iv.EndSec - iv.StartSec
	if dur <= e.profile.MaxChunkSec {
		return []Boundary{{StartSec: iv.StartSec, EndSec: iv.EndSec, Confidence: e.confidence(iv.Energy)}}
	}

	// Size the guard from the capped piece, not the whole interval, so a
	// very long interval cannot push the window past the ceiling.
	guard := math.Min(dur, e.profile.MaxChunkSec) * e.profile.GuardFraction
	lo := iv.StartSec + guard
	hi := iv.EndSec - guard
	// The left piece must stay within bounds.
	if ceil := iv.StartSec + e.profile.MaxChunkSec; hi > ceil {
		hi = ceil
	}
	if floor := iv.StartSec + e.profile.MinChunkSec; lo < floor {
		lo = floor
	}

	cut := iv.StartSec + e.profile.MaxChunkSec
	if lo < hi {
		cut = e.lowestEnergyPoint(lo, hi, energies, frameSec)
	}
	if cut <= iv.StartSec || cut >= iv.EndSec {
		// Degenerate window; cut at the ceiling.
		cut = iv.StartSec + e.profile.MaxChunkSec
	}

	left := Boundary{StartSec: iv.StartSec, EndSec: cut, Confidence: e.confidence(iv.Energy)}
	rest := vad.Interval{StartSec: cut, EndSec: iv.EndSec, Energy: iv.Energy}
	return append([]Boundary{left}, e.split(rest, energies, frameSec)...)
}

// fallbackSlices produces fixed-duration cuts, snapped to the closest
// low-energy frame within the snap window when one exists.
func (e *Engine) fallbackSlices(total float64, energies []float64, frameSec float64) []Boundary {
	var bounds []Boundary
	start := 0.0
	for start < total {
		nominal := start + e.profile.FallbackSliceSec
		if nominal >= total {
			bounds = append(bounds, Boundary{StartSec: start, EndSec: total, Confidence: fallbackConfidence})
			break
		}

		cut := nominal
		lo := math.Max(start+e.profile.MinChunkSec, nominal-e.profile.SnapWindowSec)
		hi := math.Min(total, nominal+e.profile.SnapWindowSec)
		// A snapped cut must not stretch the slice past the maximum.
		if ceil := start + e.profile.MaxChunkSec; hi > ceil {
			hi = ceil
		}
		if snapped, energy := e.lowestEnergyPointWith(lo, hi, energies, frameSec); energy < e.profile.EnergyThreshold {
			// A detected low-energy point exists inside the window.
			cut = snapped
		}
		bounds = append(bounds, Boundary{StartSec: start, EndSec: cut, Confidence: fallbackConfidence})
		start = cut
	}
	return bounds
}

// fallbackConfidence marks chunks produced without detected boundaries.
const fallbackConfidence = 0.25

// enforceMin merges every chunk shorter than the minimum into a neighbor,
// preferring the neighbor with the smaller resulting duration.
func (e *Engine) enforceMin(bounds []Boundary) []Boundary {
	for {
		idx := -1
		for i, b := range bounds {
			if b.DurationSec() < e.profile.MinChunkSec {
				idx = i
				break
			}
		}
		if idx == -1 || len(bounds) <= 1 {
			return bounds
		}

		short := bounds[idx]
		mergeLeft := false
		switch {
		case idx == 0:
			mergeLeft = false
		case idx == len(bounds)-1:
			mergeLeft = true
		default:
			leftDur := bounds[idx-1].DurationSec() + short.DurationSec()
			rightDur := bounds[idx+1].DurationSec() + short.DurationSec()
			mergeLeft = leftDur <= rightDur
		}

		if mergeLeft {
			bounds[idx-1].EndSec = short.EndSec
			bounds[idx-1].Confidence = math.Min(bounds[idx-1].Confidence, short.Confidence)
			bounds = append(bounds[:idx], bounds[idx+1:]...)
		} else {
			bounds[idx+1].StartSec = short.StartSec
			bounds[idx+1].Confidence = math.Min(bounds[idx+1].Confidence, short.Confidence)
			bounds = append(bounds[:idx], bounds[idx+1:]...)
		}
	}
}

// lowestEnergyPoint returns the time of the lowest-energy frame in [lo, hi].
func (e *Engine) lowestEnergyPoint(lo, hi float64, energies []float64, frameSec float64) float64 {
	t, _ := e.lowestEnergyPointWith(lo, hi, energies, frameSec)
	return t
}

func (e *Engine) lowestEnergyPointWith(lo, hi float64, energies []float64, frameSec float64) (float64, float64) {
	if hi <= lo || len(energies) == 0 {
		return lo, math.Inf(1)
	}
	first := int(lo / frameSec)
	last := int(hi / frameSec)
	if first < 0 {
		first = 0
	}
	if last >= len(energies) {
		last = len(energies) - 1
	}
	if first > last {
		return lo, math.Inf(1)
	}

	bestFrame, bestEnergy := first, energies[first]
	for i := first + 1; i <= last; i++ {
		if energies[i] < bestEnergy {
			bestFrame, bestEnergy = i, energies[i]
		}
	}
	// Cut at the middle of the quietest frame.
	t := (float64(bestFrame) + 0.5) * frameSec
	if t < lo {
		t = lo
	}
	if t > hi {
		t = hi
	}
	return t, bestEnergy
}

// confidence squashes a mean RMS energy into (0, 1), monotonic in energy.
func (e *Engine) confidence(energy float64) float64 {
	if energy <= 0 {
		return 0
	}
	return energy / (energy + e.profile.EnergyThreshold)
}
