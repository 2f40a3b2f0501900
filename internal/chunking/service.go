package chunking

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/voicecorpus/voicecorpus/internal/audio"
	"github.com/voicecorpus/voicecorpus/internal/profiles"
	"github.com/voicecorpus/voicecorpus/pkg/corpus"
	"github.com/voicecorpus/voicecorpus/pkg/events"
)

// Service runs the chunking pipeline for one recording at a time: decode,
// plan boundaries, persist the chunk set atomically.
type Service struct {
	repo     *corpus.Repository
	store    *audio.Store
	profiles *profiles.Loader
	pub      *events.Publisher
}

// NewService creates a chunking service.
func NewService(repo *corpus.Repository, store *audio.Store, loader *profiles.Loader, pub *events.Publisher) *Service {
	return &Service{repo: repo, store: store, profiles: loader, pub: pub}
}

// Process chunks one recording end to end. Failures are local to the
// recording: it is marked failed with a reason and no chunks are persisted.
// Between chunk-sized units of work the context is checked so external
// cancellation takes effect without tearing mid-chunk.
func (s *Service) Process(ctx context.Context, recordingID string) error {
	rec, err := s.repo.GetRecording(ctx, recordingID)
	if err != nil {
		return fmt.Errorf("load recording %s: %w", recordingID, err)
	}

	if rec.Status != corpus.RecordingUploaded && rec.Status != corpus.RecordingFailed {
		// Already processed or in flight elsewhere.
		return nil
	}

	if err := s.repo.TransitionRecording(ctx, recordingID, corpus.RecordingProcessing, ""); err != nil {
		return err
	}

	bounds, wf, err := s.plan(rec)
	if err != nil {
		return s.fail(ctx, recordingID, err)
	}

	chunks := make([]*corpus.Chunk, 0, len(bounds))
	for i, b := range bounds {
		if err := ctx.Err(); err != nil {
			return s.fail(ctx, recordingID, fmt.Errorf("cancelled: %w", err))
		}
		chunks = append(chunks, &corpus.Chunk{
			RecordingID:        recordingID,
			Index:              i,
			StartSec:           b.StartSec,
			EndSec:             b.EndSec,
			DurationSec:        b.DurationSec(),
			BoundaryConfidence: b.Confidence,
			Status:             corpus.ChunkUnvalidated,
		})
	}

	if err := s.repo.SaveChunkSet(ctx, recordingID, chunks); err != nil {
		return s.fail(ctx, recordingID, fmt.Errorf("persist chunks: %w", err))
	}

	slog.InfoContext(ctx, "recording chunked",
		slog.String("recording_id", recordingID),
		slog.Int("chunks", len(chunks)),
		slog.Float64("duration_sec", wf.DurationSec()))

	if s.pub != nil {
		data := events.RecordingChunkedData{RecordingID: recordingID, ChunkCount: len(chunks)}
		if err := s.pub.Emit(ctx, events.RecordingChunked, recordingID, data); err != nil {
			slog.WarnContext(ctx, "emit recording.chunked",
				slog.String("recording_id", recordingID), slog.String("error", err.Error()))
		}
	}
	return nil
}

func (s *Service) plan(rec *corpus.Recording) ([]Boundary, *audio.Waveform, error) {
	raw, err := s.store.Load(rec.AudioPath)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrUnusableWaveform, err)
	}
	wf, err := audio.DecodeWAV(raw)
	if err != nil {
		return nil, nil, err
	}

	engine := NewEngine(s.profiles.Get(rec.Profile))
	bounds, err := engine.Plan(wf)
	if err != nil {
		return nil, nil, err
	}
	return bounds, wf, nil
}

// fail marks the recording failed with the reason; the chunking error
// itself is still returned to the caller for logging.
func (s *Service) fail(ctx context.Context, recordingID string, cause error) error {
	if err := s.repo.TransitionRecording(ctx, recordingID, corpus.RecordingFailed, cause.Error()); err != nil {
		return errors.Join(cause, err)
	}
	if s.pub != nil {
		data := events.RecordingFailedData{RecordingID: recordingID, Reason: cause.Error()}
		if err := s.pub.Emit(ctx, events.RecordingFailed, recordingID, data); err != nil {
			slog.WarnContext(ctx, "emit recording.failed",
				slog.String("recording_id", recordingID), slog.String("error", err.Error()))
		}
	}
	return cause
}
