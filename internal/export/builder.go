package export

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/voicecorpus/voicecorpus/internal/audio"
	"github.com/voicecorpus/voicecorpus/pkg/corpus"
	"github.com/voicecorpus/voicecorpus/pkg/events"
)

// ErrInsufficientChunks is returned when no validated chunks match the
// requested filter; no empty batches are ever created.
var ErrInsufficientChunks = errors.New("insufficient validated chunks for export")

// Builder creates and packages export batches.
type Builder struct {
	repo  *corpus.Repository
	store *audio.Store
	quota *corpus.QuotaStore
	pub   *events.Publisher
	dir   string
}

// NewBuilder creates an export builder writing archives under dir.
func NewBuilder(repo *corpus.Repository, store *audio.Store, quota *corpus.QuotaStore, pub *events.Publisher, dir string) (*Builder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create export dir %q: %w", dir, err)
	}
	return &Builder{repo: repo, store: store, quota: quota, pub: pub, dir: dir}, nil
}

// Request creates a new pending batch for the filter, or returns an
// existing completed batch with the same filter signature unless
// forceCreate is set. The chunk selection is frozen here; the quota is
// checked before any packaging work but consumed only on completion.
// reused reports whether an existing batch was returned.
func (b *Builder) Request(ctx context.Context, requesterID, role string, f corpus.ExportFilter, forceCreate bool) (batch *corpus.ExportBatch, reused bool, err error) {
	if _, err := b.quota.CheckRemaining(ctx, requesterID, role); err != nil {
		return nil, false, err
	}

	sig := f.Signature()
	if !forceCreate {
		if existing, err := b.repo.FindCompletedBatch(ctx, requesterID, sig); err == nil {
			return existing, true, nil
		} else if !errors.Is(err, corpus.ErrNotFound) {
			return nil, false, err
		}
	}

	chunks, err := b.repo.ListValidatedChunks(ctx, f)
	if err != nil {
		return nil, false, err
	}
	if len(chunks) == 0 {
		return nil, false, ErrInsufficientChunks
	}

	ids := make(corpus.IDListJSON, len(chunks))
	for i, c := range chunks {
		ids[i] = c.ID
	}

	batch = &corpus.ExportBatch{
		RequesterID:     requesterID,
		RequesterRole:   role,
		FilterSignature: sig,
		MinDurationSec:  f.MinDurationSec,
		MaxDurationSec:  f.MaxDurationSec,
		QualityFloor:    f.QualityFloor,
		ChunkIDs:        ids,
		Status:          corpus.BatchPending,
	}
	if f.From != nil {
		batch.FromDate.Time, batch.FromDate.Valid = *f.From, true
	}
	if f.To != nil {
		batch.ToDate.Time, batch.ToDate.Valid = *f.To, true
	}
	if err := b.repo.CreateBatch(ctx, batch); err != nil {
		return nil, false, err
	}
	return batch, false, nil
}

// Package assembles the archive for a pending or failed batch using its
// frozen chunk set. On success the batch completes and one quota slot is
// consumed for the requester; on failure the batch is marked failed and no
// quota is charged.
func (b *Builder) Package(ctx context.Context, batchID string) error {
	batch, err := b.repo.GetBatch(ctx, batchID)
	if err != nil {
		return err
	}
	if batch.Status == corpus.BatchCompleted {
		return nil
	}

	if err := b.repo.TransitionBatch(ctx, batchID, corpus.BatchProcessing, nil); err != nil {
		return err
	}

	path := filepath.Join(b.dir, batchID+".tar.gz")
	checksum, size, err := b.assemble(ctx, batch, path)
	if err != nil {
		return b.fail(ctx, batch, err)
	}

	if err := b.quota.Consume(ctx, batch.RequesterID, batch.RequesterRole); err != nil {
		os.Remove(path)
		return b.fail(ctx, batch, fmt.Errorf("consume quota: %w", err))
	}

	err = b.repo.TransitionBatch(ctx, batchID, corpus.BatchCompleted, func(bb *corpus.ExportBatch) {
		bb.ArchivePath = path
		bb.Checksum = checksum
		bb.SizeBytes = size
		bb.FailReason = ""
	})
	if err != nil {
		return err
	}

	slog.InfoContext(ctx, "export batch completed",
		slog.String("batch_id", batchID),
		slog.Int("chunks", len(batch.ChunkIDs)),
		slog.String("checksum", checksum),
		slog.Int64("size_bytes", size))

	if b.pub != nil {
		data := events.ExportCompletedData{
			BatchID:    batchID,
			ChunkCount: len(batch.ChunkIDs),
			Checksum:   checksum,
			SizeBytes:  size,
		}
		if err := b.pub.Emit(ctx, events.ExportCompleted, batchID, data); err != nil {
			slog.WarnContext(ctx, "emit export.completed",
				slog.String("batch_id", batchID), slog.String("error", err.Error()))
		}
	}
	return nil
}

// assemble builds the archive file for the batch's frozen chunk set. The
// context is checked between chunks so cancellation never tears mid-chunk.
func (b *Builder) assemble(ctx context.Context, batch *corpus.ExportBatch, path string) (string, int64, error) {
	chunks, err := b.repo.ChunksByIDs(ctx, batch.ChunkIDs)
	if err != nil {
		return "", 0, err
	}
	if len(chunks) != len(batch.ChunkIDs) {
		return "", 0, fmt.Errorf("frozen chunk set incomplete: want %d, have %d",
			len(batch.ChunkIDs), len(chunks))
	}

	waveforms := make(map[string]*audio.Waveform)
	items := make([]Item, 0, len(chunks))
	for _, c := range chunks {
		if err := ctx.Err(); err != nil {
			return "", 0, err
		}

		wf, ok := waveforms[c.RecordingID]
		if !ok {
			rec, err := b.repo.GetRecording(ctx, c.RecordingID)
			if err != nil {
				return "", 0, fmt.Errorf("recording %s: %w", c.RecordingID, err)
			}
			raw, err := b.store.Load(rec.AudioPath)
			if err != nil {
				return "", 0, err
			}
			wf, err = audio.DecodeWAV(raw)
			if err != nil {
				return "", 0, fmt.Errorf("decode recording %s: %w", c.RecordingID, err)
			}
			waveforms[c.RecordingID] = wf
		}

		cs, err := b.repo.GetConsensus(ctx, c.ID)
		if err != nil {
			return "", 0, fmt.Errorf("consensus for chunk %s: %w", c.ID, err)
		}

		items = append(items, Item{
			Entry: ManifestEntry{
				ChunkID:     c.ID,
				RecordingID: c.RecordingID,
				Index:       c.Index,
				StartSec:    c.StartSec,
				EndSec:      c.EndSec,
				DurationSec: c.DurationSec,
				Text:        cs.Text,
				Confidence:  cs.Confidence,
				AudioFile:   fmt.Sprintf("audio/%s_%04d.wav", c.RecordingID, c.Index),
			},
			Waveform: &audio.Waveform{
				SampleRate: wf.SampleRate,
				Samples:    wf.Slice(c.StartSec, c.EndSec),
			},
		})
	}

	out, err := os.Create(path)
	if err != nil {
		return "", 0, fmt.Errorf("create archive %q: %w", path, err)
	}
	checksum, size, err := Archive(out, items)
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return "", 0, err
	}
	return checksum, size, nil
}

// fail marks the batch failed so it can be retried with the same frozen
// chunk set. Failed attempts never consume a quota slot.
func (b *Builder) fail(ctx context.Context, batch *corpus.ExportBatch, cause error) error {
	err := b.repo.TransitionBatch(ctx, batch.ID, corpus.BatchFailed, func(bb *corpus.ExportBatch) {
		bb.FailReason = cause.Error()
	})
	if err != nil {
		return errors.Join(cause, err)
	}
	if b.pub != nil {
		data := events.ExportFailedData{
			BatchID:    batch.ID,
			Reason:     cause.Error(),
			RetryCount: batch.RetryCount,
		}
		if err := b.pub.Emit(ctx, events.ExportFailed, batch.ID, data); err != nil {
			slog.WarnContext(ctx, "emit export.failed",
				slog.String("batch_id", batch.ID), slog.String("error", err.Error()))
		}
	}
	return cause
}

// Open returns a reader over a completed batch's archive bytes.
func (b *Builder) Open(batch *corpus.ExportBatch) (*os.File, error) {
	if batch.Status != corpus.BatchCompleted {
		return nil, fmt.Errorf("batch %s is not completed", batch.ID)
	}
	return os.Open(batch.ArchivePath)
}
