package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

// Decode/encode errors surfaced to callers as input errors.
var (
	ErrEmptyAudio       = errors.New("empty audio payload")
	ErrCorruptAudio     = errors.New("corrupt or unsupported audio payload")
	ErrUnsupportedCodec = errors.New("only 16-bit mono PCM WAV is supported")
)

// Waveform is decoded 16-bit mono PCM audio.
type Waveform struct {
	SampleRate int
	Samples    []int16
}

// DurationSec returns the waveform length in seconds.
func (w *Waveform) DurationSec() float64 {
	if w.SampleRate == 0 {
		return 0
	}
	return float64(len(w.Samples)) / float64(w.SampleRate)
}

// Slice returns the samples between two time offsets, clamped to the
// waveform bounds.
func (w *Waveform) Slice(startSec, endSec float64) []int16 {
	start := int(startSec * float64(w.SampleRate))
	end := int(endSec * float64(w.SampleRate))
	if start < 0 {
		start = 0
	}
	if end > len(w.Samples) {
		end = len(w.Samples)
	}
	if start >= end {
		return nil
	}
	return w.Samples[start:end]
}

// DecodeWAV parses a RIFF/WAVE byte stream into a waveform. Only 16-bit
// mono PCM is accepted; anything else is an input error.
func DecodeWAV(raw []byte) (*Waveform, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyAudio
	}
	if len(raw) < 12 || string(raw[0:4]) != "RIFF" || string(raw[8:12]) != "WAVE" {
		return nil, ErrCorruptAudio
	}

	var (
		sampleRate    int
		bitsPerSample int
		channels      int
		data          []byte
		sawFmt        bool
	)

	// Walk the RIFF sub-chunks; tolerate extra chunks (LIST, fact, ...).
	off := 12
	for off+8 <= len(raw) {
		id := string(raw[off : off+4])
		size := int(binary.LittleEndian.Uint32(raw[off+4 : off+8]))
		body := off + 8
		if size < 0 || body+size > len(raw) {
			return nil, ErrCorruptAudio
		}
		switch id {
		case "fmt ":
			if size < 16 {
				return nil, ErrCorruptAudio
			}
			format := int(binary.LittleEndian.Uint16(raw[body : body+2]))
			channels = int(binary.LittleEndian.Uint16(raw[body+2 : body+4]))
			sampleRate = int(binary.LittleEndian.Uint32(raw[body+4 : body+8]))
			bitsPerSample = int(binary.LittleEndian.Uint16(raw[body+14 : body+16]))
			if format != 1 {
				return nil, ErrUnsupportedCodec
			}
			sawFmt = true
		case "data":
			data = raw[body : body+size]
		}
		// Chunks are word-aligned.
		off = body + size + (size & 1)
	}

	if !sawFmt || data == nil {
		return nil, ErrCorruptAudio
	}
	if channels != 1 || bitsPerSample != 16 {
		return nil, ErrUnsupportedCodec
	}
	if sampleRate <= 0 || len(data) < 2 {
		return nil, ErrEmptyAudio
	}

	samples := make([]int16, len(data)/2)
	for i := range samples {
		samples[i] = int16(binary.LittleEndian.Uint16(data[i*2 : i*2+2]))
	}
	return &Waveform{SampleRate: sampleRate, Samples: samples}, nil
}

// EncodeWAV writes the waveform as a minimal 16-bit mono PCM WAV stream.
func EncodeWAV(w io.Writer, wf *Waveform) error {
	dataSize := len(wf.Samples) * 2
	if err := writeWAVHeader(w, wf.SampleRate, dataSize); err != nil {
		return fmt.Errorf("write wav header: %w", err)
	}
	buf := make([]byte, dataSize)
	for i, s := range wf.Samples {
		binary.LittleEndian.PutUint16(buf[i*2:i*2+2], uint16(s))
	}
	_, err := w.Write(buf)
	return err
}

// writeWAVHeader writes a 44-byte WAV header for 16-bit mono PCM.
func writeWAVHeader(w io.Writer, sampleRate, dataSize int) error {
	totalSize := 36 + dataSize

	if _, err := w.Write([]byte("RIFF")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(totalSize)); err != nil {
		return err
	}
	if _, err := w.Write([]byte("WAVE")); err != nil {
		return err
	}

	if _, err := w.Write([]byte("fmt ")); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(16)); err != nil { // sub-chunk size
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(1)); err != nil { // PCM format
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(1)); err != nil { // mono
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate)); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint32(sampleRate*2)); err != nil { // byte rate
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(2)); err != nil { // block align
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, uint16(16)); err != nil { // bits per sample
		return err
	}

	if _, err := w.Write([]byte("data")); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, uint32(dataSize))
}

// RMS computes the root-mean-square energy of PCM samples.
func RMS(samples []int16) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sumSquares float64
	for _, s := range samples {
		sumSquares += float64(s) * float64(s)
	}
	return math.Sqrt(sumSquares / float64(len(samples)))
}
