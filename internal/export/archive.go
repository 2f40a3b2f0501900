// Package export assembles validated chunks into immutable, checksummed,
// quota-counted archives.
package export

import (
	"archive/tar"
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/klauspost/compress/gzip"

	"github.com/voicecorpus/voicecorpus/internal/audio"
)

// ManifestEntry describes one chunk in an archive, in archive order.
type ManifestEntry struct {
	ChunkID     string  `json:"chunk_id"`
	RecordingID string  `json:"recording_id"`
	Index       int     `json:"index"`
	StartSec    float64 `json:"start_sec"`
	EndSec      float64 `json:"end_sec"`
	DurationSec float64 `json:"duration_sec"`
	Text        string  `json:"text"`
	Confidence  float64 `json:"confidence"`
	AudioFile   string  `json:"audio_file"`
}

// Item is one chunk plus its audio payload, ready for packaging.
type Item struct {
	Entry    ManifestEntry
	Waveform *audio.Waveform
}

// Archive writes a gzipped tar with one manifest plus one WAV per item and
// returns the SHA-256 checksum of the final byte stream. Items must arrive
// in the batch's deterministic order; all timestamps inside the archive are
// fixed so two builds from an identical item set are byte-identical.
func Archive(w io.Writer, items []Item) (checksum string, size int64, err error) {
	hasher := sha256.New()
	counter := &countingWriter{w: io.MultiWriter(w, hasher)}

	gz := gzip.NewWriter(counter)
	tw := tar.NewWriter(gz)

	entries := make([]ManifestEntry, len(items))
	for i, it := range items {
		entries[i] = it.Entry
	}
	manifest, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return "", 0, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFile(tw, "manifest.json", manifest); err != nil {
		return "", 0, err
	}

	for _, it := range items {
		var buf bytes.Buffer
		if err := audio.EncodeWAV(&buf, it.Waveform); err != nil {
			return "", 0, fmt.Errorf("encode %s: %w", it.Entry.ChunkID, err)
		}
		if err := writeFile(tw, it.Entry.AudioFile, buf.Bytes()); err != nil {
			return "", 0, err
		}
	}

	if err := tw.Close(); err != nil {
		return "", 0, fmt.Errorf("close tar: %w", err)
	}
	if err := gz.Close(); err != nil {
		return "", 0, fmt.Errorf("close gzip: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), counter.n, nil
}

// archiveEpoch is the fixed timestamp stamped on all archive members.
var archiveEpoch = time.Unix(0, 0).UTC()

func writeFile(tw *tar.Writer, name string, data []byte) error {
	hdr := &tar.Header{
		Name:    name,
		Mode:    0o644,
		Size:    int64(len(data)),
		ModTime: archiveEpoch,
		Format:  tar.FormatPAX,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write header %q: %w", name, err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write %q: %w", name, err)
	}
	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
