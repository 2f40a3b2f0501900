package export

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"io"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/voicecorpus/voicecorpus/internal/audio"
)

func testItems() []Item {
	wf1 := &audio.Waveform{SampleRate: 16000, Samples: []int16{1, 2, 3, 4, 5, 6}}
	wf2 := &audio.Waveform{SampleRate: 16000, Samples: []int16{-1, -2, -3}}
	return []Item{
		{
			Entry: ManifestEntry{
				ChunkID: "ch-1", RecordingID: "rec-1", Index: 0,
				StartSec: 0, EndSec: 2.5, DurationSec: 2.5,
				Text: "first chunk text", Confidence: 0.92,
				AudioFile: "audio/rec-1_0000.wav",
			},
			Waveform: wf1,
		},
		{
			Entry: ManifestEntry{
				ChunkID: "ch-2", RecordingID: "rec-1", Index: 1,
				StartSec: 2.5, EndSec: 4.0, DurationSec: 1.5,
				Text: "second chunk text", Confidence: 0.88,
				AudioFile: "audio/rec-1_0001.wav",
			},
			Waveform: wf2,
		},
	}
}

func TestArchiveDeterministic(t *testing.T) {
	items := testItems()

	var a, b bytes.Buffer
	ck1, n1, err := Archive(&a, items)
	if err != nil {
		t.Fatalf("first archive: %v", err)
	}
	ck2, n2, err := Archive(&b, items)
	if err != nil {
		t.Fatalf("second archive: %v", err)
	}

	if ck1 != ck2 {
		t.Errorf("checksums differ: %s vs %s", ck1, ck2)
	}
	if n1 != n2 {
		t.Errorf("sizes differ: %d vs %d", n1, n2)
	}
	if !bytes.Equal(a.Bytes(), b.Bytes()) {
		t.Error("archive bytes differ between identical builds")
	}
}

func TestArchiveChecksumAndSizeMatchOutput(t *testing.T) {
	var buf bytes.Buffer
	ck, n, err := Archive(&buf, testItems())
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if int64(buf.Len()) != n {
		t.Errorf("reported size %d, wrote %d bytes", n, buf.Len())
	}
	if len(ck) != 64 {
		t.Errorf("checksum %q is not a sha-256 hex digest", ck)
	}
}

func TestArchiveContents(t *testing.T) {
	items := testItems()
	var buf bytes.Buffer
	if _, _, err := Archive(&buf, items); err != nil {
		t.Fatalf("archive: %v", err)
	}

	gz, err := gzip.NewReader(&buf)
	if err != nil {
		t.Fatalf("open gzip: %v", err)
	}
	tr := tar.NewReader(gz)

	var names []string
	files := map[string][]byte{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			t.Fatalf("reading tar: %v", err)
		}
		data, err := io.ReadAll(tr)
		if err != nil {
			t.Fatalf("reading %s: %v", hdr.Name, err)
		}
		names = append(names, hdr.Name)
		files[hdr.Name] = data
	}

	wantNames := []string{"manifest.json", "audio/rec-1_0000.wav", "audio/rec-1_0001.wav"}
	if len(names) != len(wantNames) {
		t.Fatalf("members = %v, want %v", names, wantNames)
	}
	for i, n := range wantNames {
		if names[i] != n {
			t.Errorf("member %d = %s, want %s", i, names[i], n)
		}
	}

	var manifest []ManifestEntry
	if err := json.Unmarshal(files["manifest.json"], &manifest); err != nil {
		t.Fatalf("parse manifest: %v", err)
	}
	if len(manifest) != 2 {
		t.Fatalf("manifest entries = %d, want 2", len(manifest))
	}
	if manifest[0].ChunkID != "ch-1" || manifest[0].Text != "first chunk text" {
		t.Errorf("manifest[0] = %+v", manifest[0])
	}
	if manifest[1].AudioFile != "audio/rec-1_0001.wav" {
		t.Errorf("manifest[1] audio file = %s", manifest[1].AudioFile)
	}

	// Each WAV member must decode back to its source samples.
	wf, err := audio.DecodeWAV(files["audio/rec-1_0001.wav"])
	if err != nil {
		t.Fatalf("decode archived wav: %v", err)
	}
	if len(wf.Samples) != 3 || wf.Samples[0] != -1 {
		t.Errorf("archived samples = %v, want [-1 -2 -3]", wf.Samples)
	}
}

func TestArchiveEmptyItemSet(t *testing.T) {
	var buf bytes.Buffer
	ck, _, err := Archive(&buf, nil)
	if err != nil {
		t.Fatalf("archive: %v", err)
	}
	if ck == "" {
		t.Error("empty archive should still produce a checksum")
	}
}
