package api

// ErrorResponse is the standard error body. Reason is a stable machine
// code; Detail carries actionable context such as counts or reset times.
type ErrorResponse struct {
	Error  string         `json:"error"`
	Reason string         `json:"reason,omitempty"`
	Detail map[string]any `json:"detail,omitempty"`
}

// Stable error reason codes.
const (
	ReasonInvalidAudio       = "invalid_audio"
	ReasonNotFound           = "not_found"
	ReasonNotReady           = "not_ready"
	ReasonQuotaExceeded      = "quota_exceeded"
	ReasonInsufficientChunks = "insufficient_chunks"
	ReasonBadRequest         = "bad_request"
	ReasonInternal           = "internal"
)

// RecordingResponse describes a recording and its processing progress.
type RecordingResponse struct {
	ID          string  `json:"id"`
	OwnerID     string  `json:"owner_id"`
	ScriptRef   string  `json:"script_ref,omitempty"`
	Profile     string  `json:"profile"`
	SampleRate  int     `json:"sample_rate"`
	DurationSec float64 `json:"duration_sec"`
	Status      string  `json:"status"`
	FailReason  string  `json:"fail_reason,omitempty"`
	ChunkCount  int     `json:"chunk_count"`
	CreatedAt   string  `json:"created_at"`
}

// ChunkResponse describes one chunk with its latest consensus, if any.
type ChunkResponse struct {
	ID                 string   `json:"id"`
	RecordingID        string   `json:"recording_id"`
	Index              int      `json:"index"`
	StartSec           float64  `json:"start_sec"`
	EndSec             float64  `json:"end_sec"`
	DurationSec        float64  `json:"duration_sec"`
	BoundaryConfidence float64  `json:"boundary_confidence"`
	Status             string   `json:"status"`
	ConsensusText      string   `json:"consensus_text,omitempty"`
	Confidence         *float64 `json:"confidence,omitempty"`
	TranscriptionCount int      `json:"transcription_count"`
}

// SubmitTranscriptionRequest is the body for transcription submissions.
type SubmitTranscriptionRequest struct {
	SubmitterID string   `json:"submitter_id"`
	Text        string   `json:"text"`
	SelfQuality *float64 `json:"self_quality,omitempty"`
	// ReliabilityWeight is an externally computed rater weight; omitted
	// means 1.0.
	ReliabilityWeight *float64 `json:"reliability_weight,omitempty"`
}

// SubmitTranscriptionResponse reports the chunk state after consensus ran.
type SubmitTranscriptionResponse struct {
	TranscriptionID string  `json:"transcription_id"`
	ChunkStatus     string  `json:"chunk_status"`
	Confidence      float64 `json:"confidence"`
	Count           int     `json:"transcription_count"`
	Reason          string  `json:"reason,omitempty"`
}

// RequestExportRequest is the body for export requests.
type RequestExportRequest struct {
	From           string  `json:"from,omitempty"` // RFC 3339
	To             string  `json:"to,omitempty"`   // RFC 3339
	MinDurationSec float64 `json:"min_duration_sec,omitempty"`
	MaxDurationSec float64 `json:"max_duration_sec,omitempty"`
	QualityFloor   float64 `json:"quality_floor,omitempty"`
	ForceCreate    bool    `json:"force_create,omitempty"`
}

// BatchResponse describes an export batch.
type BatchResponse struct {
	ID          string `json:"id"`
	RequesterID string `json:"requester_id"`
	Status      string `json:"status"`
	ChunkCount  int    `json:"chunk_count"`
	Checksum    string `json:"checksum,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	RetryCount  int    `json:"retry_count,omitempty"`
	FailReason  string `json:"fail_reason,omitempty"`
	CreatedAt   string `json:"created_at"`
	CompletedAt string `json:"completed_at,omitempty"`
}

// QuotaResponse is the read-only quota view. Remaining and DailyLimit are
// -1 for unlimited roles.
type QuotaResponse struct {
	Remaining  int    `json:"remaining"`
	DailyLimit int    `json:"daily_limit"`
	ResetsAt   string `json:"resets_at"`
}
