package corpus

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/pitabwire/frame/datastore/pool"
)

// ErrNotFound is returned when a referenced record does not exist.
var ErrNotFound = errors.New("record not found")

// Repository provides persistence for recordings, chunks, transcriptions
// and export batches.
type Repository struct {
	pool pool.Pool
}

// NewRepository creates a new corpus repository.
func NewRepository(pool pool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) db(ctx context.Context, readOnly bool) *gorm.DB {
	return r.pool.DB(ctx, readOnly)
}

func notFound(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	return err
}

// --- Recordings ---

// CreateRecording persists a new recording in uploaded state.
func (r *Repository) CreateRecording(ctx context.Context, rec *Recording) error {
	return r.db(ctx, false).Create(rec).Error
}

// GetRecording returns a recording by id.
func (r *Repository) GetRecording(ctx context.Context, id string) (*Recording, error) {
	var rec Recording
	if err := r.db(ctx, true).Where("id = ?", id).First(&rec).Error; err != nil {
		return nil, notFound(err)
	}
	return &rec, nil
}

// SetRecordingAudioPath stores the location of the persisted audio file.
func (r *Repository) SetRecordingAudioPath(ctx context.Context, id, path string) error {
	res := r.db(ctx, false).Model(&Recording{}).Where("id = ?", id).Update("audio_path", path)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// TransitionRecording moves a recording to the given status, enforcing the
// state machine. failReason is stored only on a move to failed.
func (r *Repository) TransitionRecording(ctx context.Context, id string, to RecordingStatus, failReason string) error {
	return r.db(ctx, false).Transaction(func(tx *gorm.DB) error {
		var rec Recording
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&rec).Error; err != nil {
			return notFound(err)
		}
		if !ValidRecordingTransition(rec.Status, to) {
			return errInvalidTransition("recording", rec.Status, to)
		}
		updates := map[string]any{"status": to}
		if to == RecordingFailed {
			updates["fail_reason"] = failReason
		}
		return tx.Model(&Recording{}).Where("id = ?", id).Updates(updates).Error
	})
}

// --- Chunks ---

// SaveChunkSet persists all chunks of a recording and marks it chunked in
// one transaction. Chunking is all-or-nothing per recording: on any error
// nothing is written and the recording is left untouched.
func (r *Repository) SaveChunkSet(ctx context.Context, recordingID string, chunks []*Chunk) error {
	return r.db(ctx, false).Transaction(func(tx *gorm.DB) error {
		var rec Recording
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", recordingID).First(&rec).Error; err != nil {
			return notFound(err)
		}
		if !ValidRecordingTransition(rec.Status, RecordingChunked) {
			return errInvalidTransition("recording", rec.Status, RecordingChunked)
		}
		for _, c := range chunks {
			c.RecordingID = recordingID
			if err := tx.Create(c).Error; err != nil {
				return err
			}
		}
		return tx.Model(&Recording{}).Where("id = ?", recordingID).
			Updates(map[string]any{"status": RecordingChunked, "chunk_count": len(chunks)}).Error
	})
}

// GetChunk returns a chunk by id.
func (r *Repository) GetChunk(ctx context.Context, id string) (*Chunk, error) {
	var c Chunk
	if err := r.db(ctx, true).Where("id = ?", id).First(&c).Error; err != nil {
		return nil, notFound(err)
	}
	return &c, nil
}

// ListChunks returns the chunks of a recording ordered by index.
func (r *Repository) ListChunks(ctx context.Context, recordingID string) ([]Chunk, error) {
	var chunks []Chunk
	err := r.db(ctx, true).
		Where("recording_id = ?", recordingID).
		Order("chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// WithChunkLock runs fn while holding a row lock on the chunk, serializing
// consensus recomputation per chunk without any global lock. fn receives
// the transaction handle and the current chunk row.
func (r *Repository) WithChunkLock(ctx context.Context, chunkID string, fn func(tx *gorm.DB, c *Chunk) error) error {
	return r.db(ctx, false).Transaction(func(tx *gorm.DB) error {
		var c Chunk
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", chunkID).First(&c).Error; err != nil {
			return notFound(err)
		}
		return fn(tx, &c)
	})
}

// TransitionChunkTx moves a chunk to the given status inside an existing
// transaction, enforcing the state machine.
func (r *Repository) TransitionChunkTx(tx *gorm.DB, c *Chunk, to ChunkStatus) error {
	if c.Status == to {
		return nil
	}
	if !ValidChunkTransition(c.Status, to) {
		return errInvalidTransition("chunk", c.Status, to)
	}
	if err := tx.Model(&Chunk{}).Where("id = ?", c.ID).Update("status", to).Error; err != nil {
		return err
	}
	c.Status = to
	return nil
}

// ClearFlagged is the external manual-review clearance hook: it moves a
// flagged chunk back into needs_more_data so new submissions re-enter the
// consensus pipeline.
func (r *Repository) ClearFlagged(ctx context.Context, chunkID string) error {
	return r.WithChunkLock(ctx, chunkID, func(tx *gorm.DB, c *Chunk) error {
		return r.TransitionChunkTx(tx, c, ChunkNeedsMoreData)
	})
}

// --- Transcriptions ---

// CreateTranscription persists a new transcription. Transcriptions are
// immutable; there is deliberately no update method.
func (r *Repository) CreateTranscription(ctx context.Context, t *Transcription) error {
	return r.db(ctx, false).Create(t).Error
}

// ListTranscriptionsTx returns all transcriptions of a chunk ordered by
// submission time, inside an existing transaction.
func (r *Repository) ListTranscriptionsTx(tx *gorm.DB, chunkID string) ([]Transcription, error) {
	var ts []Transcription
	err := tx.Where("chunk_id = ?", chunkID).
		Order("created_at ASC, id ASC").
		Find(&ts).Error
	return ts, err
}

// UpsertConsensusTx writes the consensus snapshot for a chunk inside an
// existing transaction, replacing any previous snapshot.
func (r *Repository) UpsertConsensusTx(tx *gorm.DB, cs *ConsensusSnapshot) error {
	var existing ConsensusSnapshot
	err := tx.Where("chunk_id = ?", cs.ChunkID).First(&existing).Error
	switch {
	case errors.Is(err, gorm.ErrRecordNotFound):
		return tx.Create(cs).Error
	case err != nil:
		return err
	}
	return tx.Model(&ConsensusSnapshot{}).Where("chunk_id = ?", cs.ChunkID).
		Updates(map[string]any{
			"text":                cs.Text,
			"confidence":          cs.Confidence,
			"transcription_count": cs.TranscriptionCount,
			"review_reason":       cs.ReviewReason,
		}).Error
}

// GetConsensus returns the latest consensus snapshot for a chunk.
func (r *Repository) GetConsensus(ctx context.Context, chunkID string) (*ConsensusSnapshot, error) {
	var cs ConsensusSnapshot
	if err := r.db(ctx, true).Where("chunk_id = ?", chunkID).First(&cs).Error; err != nil {
		return nil, notFound(err)
	}
	return &cs, nil
}

// --- Export batches ---

// ListValidatedChunks returns validated chunks matching the filter, ordered
// deterministically by recording id then chunk index.
func (r *Repository) ListValidatedChunks(ctx context.Context, f ExportFilter) ([]Chunk, error) {
	q := r.db(ctx, true).Where("chunks.status = ?", ChunkValidated)
	if f.From != nil {
		q = q.Where("chunks.created_at >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("chunks.created_at < ?", *f.To)
	}
	if f.MinDurationSec > 0 {
		q = q.Where("chunks.duration_sec >= ?", f.MinDurationSec)
	}
	if f.MaxDurationSec > 0 {
		q = q.Where("chunks.duration_sec <= ?", f.MaxDurationSec)
	}
	if f.QualityFloor > 0 {
		q = q.Joins("JOIN consensus_snapshots cs ON cs.chunk_id = chunks.id").
			Where("cs.confidence >= ?", f.QualityFloor)
	}
	var chunks []Chunk
	err := q.Order("chunks.recording_id ASC, chunks.chunk_index ASC").Find(&chunks).Error
	return chunks, err
}

// ChunksByIDs returns chunks for the given frozen id set, preserving the
// deterministic export ordering.
func (r *Repository) ChunksByIDs(ctx context.Context, ids []string) ([]Chunk, error) {
	var chunks []Chunk
	err := r.db(ctx, true).
		Where("id IN ?", []string(ids)).
		Order("recording_id ASC, chunk_index ASC").
		Find(&chunks).Error
	return chunks, err
}

// CreateBatch persists a new export batch in pending state.
func (r *Repository) CreateBatch(ctx context.Context, b *ExportBatch) error {
	return r.db(ctx, false).Create(b).Error
}

// GetBatch returns an export batch by id.
func (r *Repository) GetBatch(ctx context.Context, id string) (*ExportBatch, error) {
	var b ExportBatch
	if err := r.db(ctx, true).Where("id = ?", id).First(&b).Error; err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// FindCompletedBatch returns the most recent completed batch with the same
// filter signature, if any.
func (r *Repository) FindCompletedBatch(ctx context.Context, requesterID, signature string) (*ExportBatch, error) {
	var b ExportBatch
	err := r.db(ctx, true).
		Where("requester_id = ? AND filter_signature = ? AND status = ?",
			requesterID, signature, BatchCompleted).
		Order("created_at DESC").
		First(&b).Error
	if err != nil {
		return nil, notFound(err)
	}
	return &b, nil
}

// TransitionBatch moves a batch to the given status, enforcing the state
// machine. Completion details are written only on the completed edge and a
// retry increments the retry counter.
func (r *Repository) TransitionBatch(ctx context.Context, id string, to BatchStatus, update func(b *ExportBatch)) error {
	return r.db(ctx, false).Transaction(func(tx *gorm.DB) error {
		var b ExportBatch
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", id).First(&b).Error; err != nil {
			return notFound(err)
		}
		from := b.Status
		if !ValidBatchTransition(from, to) {
			return errInvalidTransition("batch", from, to)
		}
		b.Status = to
		if to == BatchCompleted {
			b.CompletedAt = sql.NullTime{Time: time.Now().UTC(), Valid: true}
		}
		if from == BatchFailed && to == BatchProcessing {
			b.RetryCount++
		}
		if update != nil {
			update(&b)
		}
		return tx.Save(&b).Error
	})
}
