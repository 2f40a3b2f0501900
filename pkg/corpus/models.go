package corpus

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/pitabwire/frame/data"
)

// RecordingStatus tracks a recording through the chunking pipeline.
type RecordingStatus string

const (
	RecordingUploaded   RecordingStatus = "uploaded"
	RecordingProcessing RecordingStatus = "processing"
	RecordingChunked    RecordingStatus = "chunked"
	RecordingFailed     RecordingStatus = "failed"
)

// ChunkStatus tracks a chunk through the consensus pipeline.
type ChunkStatus string

const (
	ChunkUnvalidated   ChunkStatus = "unvalidated"
	ChunkNeedsMoreData ChunkStatus = "needs_more_data"
	ChunkValidated     ChunkStatus = "validated"
	ChunkFlagged       ChunkStatus = "flagged"
)

// BatchStatus tracks an export batch lifecycle.
type BatchStatus string

const (
	BatchPending    BatchStatus = "pending"
	BatchProcessing BatchStatus = "processing"
	BatchCompleted  BatchStatus = "completed"
	BatchFailed     BatchStatus = "failed"
)

// Recording is one uploaded raw audio stream owned by a contributor.
// Immutable once chunked except for status and error fields.
type Recording struct {
	data.BaseModel

	OwnerID     string          `gorm:"type:varchar(50);not null;index:idx_rec_owner" json:"owner_id"`
	ScriptRef   string          `gorm:"type:varchar(255)"                             json:"script_ref,omitempty"`
	Profile     string          `gorm:"type:varchar(100);default:'default'"           json:"profile"`
	AudioPath   string          `gorm:"type:varchar(1024);not null"                   json:"-"`
	SampleRate  int             `gorm:"not null"                                      json:"sample_rate"`
	DurationSec float64         `gorm:"not null"                                      json:"duration_sec"`
	Status      RecordingStatus `gorm:"type:varchar(20);not null;default:'uploaded';index:idx_rec_status" json:"status"`
	FailReason  string          `gorm:"type:text"                                     json:"fail_reason,omitempty"`
	ChunkCount  int             `gorm:"default:0"                                     json:"chunk_count"`
}

func (Recording) TableName() string { return "recordings" }

// Chunk is one sentence-scale segment of a recording. Chunks of a recording
// are indexed contiguously from zero and never overlap. Status is the only
// field mutated after creation.
type Chunk struct {
	data.BaseModel

	RecordingID        string      `gorm:"type:varchar(50);not null;index:idx_chunk_rec" json:"recording_id"`
	Index              int         `gorm:"column:chunk_index;not null"                   json:"index"`
	StartSec           float64     `gorm:"not null" json:"start_sec"`
	EndSec             float64     `gorm:"not null" json:"end_sec"`
	DurationSec        float64     `gorm:"not null" json:"duration_sec"`
	BoundaryConfidence float64     `gorm:"default:0" json:"boundary_confidence"`
	Status             ChunkStatus `gorm:"type:varchar(20);not null;default:'unvalidated';index:idx_chunk_status" json:"status"`
}

func (Chunk) TableName() string { return "chunks" }

// Transcription is one human-submitted transcript of a chunk. Immutable;
// corrections are new rows.
type Transcription struct {
	data.BaseModel

	ChunkID     string  `gorm:"type:varchar(50);not null;index:idx_tr_chunk" json:"chunk_id"`
	SubmitterID string  `gorm:"type:varchar(50);not null"                    json:"submitter_id"`
	Text        string  `gorm:"type:text;not null"                           json:"text"`
	// SelfQuality is the submitter's optional self-reported confidence.
	SelfQuality sql.NullFloat64 `json:"self_quality,omitempty"`
	// ReliabilityWeight is an externally supplied rater weight, 1.0 when absent.
	ReliabilityWeight float64 `gorm:"default:1" json:"reliability_weight"`
}

func (Transcription) TableName() string { return "transcriptions" }

// ConsensusSnapshot is the persisted result of the latest consensus
// computation for a chunk. Always derivable from the chunk's transcriptions;
// overwritten on every recompute.
type ConsensusSnapshot struct {
	data.BaseModel

	ChunkID           string  `gorm:"type:varchar(50);not null;uniqueIndex:idx_cons_chunk" json:"chunk_id"`
	Text              string  `gorm:"type:text"  json:"text"`
	Confidence        float64 `gorm:"default:0"  json:"confidence"`
	TranscriptionCount int    `gorm:"default:0"  json:"transcription_count"`
	ReviewReason      string  `gorm:"type:varchar(255)" json:"review_reason,omitempty"`
}

func (ConsensusSnapshot) TableName() string { return "consensus_snapshots" }

// ExportBatch is an immutable, checksummed package of validated chunks.
// The chunk selection is frozen at creation; retries reuse it.
type ExportBatch struct {
	data.BaseModel

	RequesterID     string      `gorm:"type:varchar(50);not null;index:idx_batch_req" json:"requester_id"`
	RequesterRole   string      `gorm:"type:varchar(50);not null" json:"requester_role"`
	FilterSignature string      `gorm:"type:varchar(64);not null;index:idx_batch_sig" json:"filter_signature"`
	FromDate        sql.NullTime `json:"from_date,omitempty"`
	ToDate          sql.NullTime `json:"to_date,omitempty"`
	MinDurationSec  float64     `gorm:"default:0" json:"min_duration_sec"`
	MaxDurationSec  float64     `gorm:"default:0" json:"max_duration_sec"`
	QualityFloor    float64     `gorm:"default:0" json:"quality_floor"`
	ChunkIDs        IDListJSON  `gorm:"type:jsonb;default:'[]'" json:"chunk_ids"`
	ArchivePath     string      `gorm:"type:varchar(1024)" json:"-"`
	Checksum        string      `gorm:"type:varchar(64)"   json:"checksum,omitempty"`
	SizeBytes       int64       `gorm:"default:0"          json:"size_bytes"`
	Status          BatchStatus `gorm:"type:varchar(20);not null;default:'pending';index:idx_batch_status" json:"status"`
	RetryCount      int         `gorm:"default:0" json:"retry_count"`
	FailReason      string      `gorm:"type:text" json:"fail_reason,omitempty"`
	CompletedAt     sql.NullTime `json:"completed_at,omitempty"`
}

func (ExportBatch) TableName() string { return "export_batches" }

// QuotaUsage is the per-identity, per-day download counter. Rows are
// mutated only inside a locking transaction, see QuotaStore.
type QuotaUsage struct {
	data.BaseModel

	IdentityID string    `gorm:"type:varchar(50);not null;uniqueIndex:idx_quota_day,priority:1" json:"identity_id"`
	Day        time.Time `gorm:"type:date;not null;uniqueIndex:idx_quota_day,priority:2"        json:"day"`
	Used       int       `gorm:"default:0" json:"used"`
}

func (QuotaUsage) TableName() string { return "quota_usage" }

// IDListJSON is a custom GORM type for JSONB storage of an ordered id list.
type IDListJSON []string

func (l IDListJSON) Value() (interface{}, error) {
	return json.Marshal(l)
}

func (l *IDListJSON) Scan(src interface{}) error {
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		*l = IDListJSON{}
		return nil
	}
}
