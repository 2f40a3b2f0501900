package consensus

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/gorm"

	"github.com/voicecorpus/voicecorpus/pkg/corpus"
	"github.com/voicecorpus/voicecorpus/pkg/events"
)

// Service recomputes consensus for chunks as transcriptions arrive.
type Service struct {
	repo   *corpus.Repository
	params Params
	pub    *events.Publisher
}

// NewService creates a consensus service.
func NewService(repo *corpus.Repository, params Params, pub *events.Publisher) *Service {
	return &Service{repo: repo, params: params, pub: pub}
}

// Recompute re-derives the consensus for one chunk from its current
// transcription set. The whole read-compute-write runs under the chunk's
// row lock so concurrent submissions for the same chunk serialize; chunks
// already validated, or flagged awaiting manual clearance, are left alone.
func (s *Service) Recompute(ctx context.Context, chunkID string) error {
	var decided *Result

	err := s.repo.WithChunkLock(ctx, chunkID, func(tx *gorm.DB, c *corpus.Chunk) error {
		if c.Status == corpus.ChunkValidated || c.Status == corpus.ChunkFlagged {
			return nil
		}

		ts, err := s.repo.ListTranscriptionsTx(tx, chunkID)
		if err != nil {
			return fmt.Errorf("list transcriptions: %w", err)
		}

		subs := make([]Submission, 0, len(ts))
		for _, t := range ts {
			subs = append(subs, Submission{
				ID:          t.ID,
				Text:        t.Text,
				Weight:      t.ReliabilityWeight,
				SubmittedAt: t.CreatedAt,
			})
		}

		res := Compute(subs, s.params)

		snapshot := &corpus.ConsensusSnapshot{
			ChunkID:            chunkID,
			Text:               res.Text,
			Confidence:         res.Confidence,
			TranscriptionCount: res.Count,
			ReviewReason:       res.Reason,
		}
		if err := s.repo.UpsertConsensusTx(tx, snapshot); err != nil {
			return fmt.Errorf("save consensus: %w", err)
		}

		if err := s.repo.TransitionChunkTx(tx, c, res.Status); err != nil {
			return err
		}

		decided = &res
		return nil
	})
	if err != nil {
		return err
	}

	if decided != nil {
		s.emitDecision(ctx, chunkID, *decided)
	}
	return nil
}

// emitDecision publishes status events after the transaction commits, so
// subscribers never observe a decision that was rolled back.
func (s *Service) emitDecision(ctx context.Context, chunkID string, res Result) {
	if s.pub == nil {
		return
	}

	var et events.EventType
	switch res.Status {
	case corpus.ChunkValidated:
		et = events.ChunkValidated
	case corpus.ChunkFlagged:
		et = events.ChunkFlagged
	default:
		return
	}

	data := events.ChunkStatusData{
		ChunkID:    chunkID,
		Status:     string(res.Status),
		Confidence: res.Confidence,
		Reason:     res.Reason,
	}
	if err := s.pub.Emit(ctx, et, chunkID, data); err != nil {
		slog.WarnContext(ctx, "emit consensus event",
			slog.String("chunk_id", chunkID), slog.String("error", err.Error()))
	}
}
