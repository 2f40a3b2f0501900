package events

import (
	"encoding/json"
	"testing"
	"time"
)

func TestEnvelopeSerialization(t *testing.T) {
	data := &ChunkStatusData{
		ChunkID:    "chunk-1",
		Status:     "validated",
		Confidence: 0.91,
	}

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal data: %v", err)
	}

	env := Envelope{
		ID:        "test-id",
		Type:      ChunkValidated,
		Source:    "corpus",
		SubjectID: "chunk-1",
		Timestamp: time.Now().UTC(),
		Data:      raw,
	}

	b, err := json.Marshal(env)
	if err != nil {
		t.Fatalf("marshal envelope: %v", err)
	}

	var decoded Envelope
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal envelope: %v", err)
	}

	if decoded.Type != ChunkValidated {
		t.Errorf("type = %q, want %q", decoded.Type, ChunkValidated)
	}
	if decoded.SubjectID != "chunk-1" {
		t.Errorf("subject_id = %q, want %q", decoded.SubjectID, "chunk-1")
	}

	var payload ChunkStatusData
	if err := json.Unmarshal(decoded.Data, &payload); err != nil {
		t.Fatalf("unmarshal payload: %v", err)
	}
	if payload.Confidence != 0.91 {
		t.Errorf("confidence = %v, want 0.91", payload.Confidence)
	}
}

func TestEventTypeConstants(t *testing.T) {
	types := []EventType{
		RecordingSubmitted, RecordingChunked, RecordingFailed,
		TranscriptionAdded,
		ChunkValidated, ChunkFlagged,
		ExportCompleted, ExportFailed,
		JobChunkRecording, JobRecomputeConsensus, JobBuildExport,
	}

	seen := make(map[EventType]bool)
	for _, et := range types {
		if et == "" {
			t.Error("empty event type constant")
		}
		if seen[et] {
			t.Errorf("duplicate event type: %q", et)
		}
		seen[et] = true
	}
}

func TestLocalSubscription(t *testing.T) {
	p := NewPublisher(nil, "corpus", "")
	ch := p.Subscribe("sub-1", 4)

	// A nil queue manager still fans out locally before publishing.
	func() {
		defer func() { recover() }()
		_ = p.Emit(t.Context(), RecordingChunked, "rec-1", RecordingChunkedData{RecordingID: "rec-1", ChunkCount: 3})
	}()

	select {
	case env := <-ch:
		if env.Type != RecordingChunked || env.SubjectID != "rec-1" {
			t.Errorf("envelope = %+v", env)
		}
		if env.ID == "" {
			t.Error("envelope id not assigned")
		}
	default:
		t.Fatal("no envelope delivered to local subscriber")
	}

	p.Unsubscribe("sub-1")
	if _, open := <-ch; open {
		t.Error("channel not closed after unsubscribe")
	}
}
