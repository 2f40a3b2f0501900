package events

import (
	"encoding/json"
	"time"
)

// EventType identifies the kind of event flowing through the system.
type EventType string

const (
	RecordingSubmitted EventType = "recording.submitted"
	RecordingChunked   EventType = "recording.chunked"
	RecordingFailed    EventType = "recording.failed"
	TranscriptionAdded EventType = "transcription.added"
	ChunkValidated     EventType = "chunk.validated"
	ChunkFlagged       EventType = "chunk.flagged"
	ExportCompleted    EventType = "export.completed"
	ExportFailed       EventType = "export.failed"

	// Pipeline job events consumed by the worker subscriber.
	JobChunkRecording     EventType = "job.chunk_recording"
	JobRecomputeConsensus EventType = "job.recompute_consensus"
	JobBuildExport        EventType = "job.build_export"
)

// Envelope is the standard event wrapper published to the event bus.
// SubjectID names the entity the event is about (recording, chunk or batch).
type Envelope struct {
	ID        string            `json:"id"`
	Type      EventType         `json:"type"`
	Source    string            `json:"source"`
	SubjectID string            `json:"subject_id"`
	Timestamp time.Time         `json:"timestamp"`
	Data      json.RawMessage   `json:"data"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// RecordingSubmittedData is the payload for recording.submitted events.
type RecordingSubmittedData struct {
	RecordingID string  `json:"recording_id"`
	OwnerID     string  `json:"owner_id"`
	DurationSec float64 `json:"duration_sec"`
}

// RecordingChunkedData is the payload for recording.chunked events.
type RecordingChunkedData struct {
	RecordingID string `json:"recording_id"`
	ChunkCount  int    `json:"chunk_count"`
}

// RecordingFailedData is the payload for recording.failed events.
type RecordingFailedData struct {
	RecordingID string `json:"recording_id"`
	Reason      string `json:"reason"`
}

// TranscriptionAddedData is the payload for transcription.added events.
type TranscriptionAddedData struct {
	ChunkID     string `json:"chunk_id"`
	SubmitterID string `json:"submitter_id"`
}

// ChunkStatusData is the payload for chunk.validated and chunk.flagged events.
type ChunkStatusData struct {
	ChunkID    string  `json:"chunk_id"`
	Status     string  `json:"status"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason,omitempty"`
}

// ExportCompletedData is the payload for export.completed events.
type ExportCompletedData struct {
	BatchID    string `json:"batch_id"`
	ChunkCount int    `json:"chunk_count"`
	Checksum   string `json:"checksum"`
	SizeBytes  int64  `json:"size_bytes"`
}

// ExportFailedData is the payload for export.failed events.
type ExportFailedData struct {
	BatchID    string `json:"batch_id"`
	Reason     string `json:"reason"`
	RetryCount int    `json:"retry_count"`
}

// JobData is the payload for pipeline job events. Key carries the
// serialization scope: the recording id for chunking, the chunk id for
// consensus, the batch id for exports.
type JobData struct {
	Key string `json:"key"`
}
