package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/pitabwire/util"

	"github.com/voicecorpus/voicecorpus/internal/chunking"
	"github.com/voicecorpus/voicecorpus/internal/consensus"
	"github.com/voicecorpus/voicecorpus/internal/export"
	"github.com/voicecorpus/voicecorpus/pkg/events"
)

// Subscriber implements queue.SubscribeWorker to drain pipeline job events
// into the keyed dispatcher. Job failures are logged and swallowed: each
// failure is local to one recording, chunk or batch and is already recorded
// on the row itself, so the message is never redelivered to poison the bus.
type Subscriber struct {
	Dispatcher *Dispatcher
	Chunking   *chunking.Service
	Consensus  *consensus.Service
	Export     *export.Builder

	// BaseCtx outlives individual message deliveries so background work is
	// not torn down when the delivery context ends.
	BaseCtx context.Context
}

// Handle is called by frame's pub/sub for each event message.
func (s *Subscriber) Handle(ctx context.Context, _ map[string]string, message []byte) error {
	var env events.Envelope
	if err := json.Unmarshal(message, &env); err != nil {
		util.Log(ctx).WithError(err).Error("pipeline subscriber: unmarshal envelope")
		return err
	}

	var jd events.JobData
	if len(env.Data) > 0 {
		if err := json.Unmarshal(env.Data, &jd); err != nil {
			util.Log(ctx).WithError(err).Error("pipeline subscriber: unmarshal job data")
			return err
		}
	}
	if jd.Key == "" {
		jd.Key = env.SubjectID
	}

	base := s.BaseCtx
	if base == nil {
		base = context.Background()
	}

	switch env.Type {
	case events.JobChunkRecording:
		return s.Dispatcher.Submit(base, "recording/"+jd.Key, func(jc context.Context) {
			if err := s.Chunking.Process(jc, jd.Key); err != nil {
				slog.ErrorContext(jc, "chunking failed",
					slog.String("recording_id", jd.Key), slog.String("error", err.Error()))
			}
		})
	case events.JobRecomputeConsensus:
		return s.Dispatcher.Submit(base, "chunk/"+jd.Key, func(jc context.Context) {
			if err := s.Consensus.Recompute(jc, jd.Key); err != nil {
				slog.ErrorContext(jc, "consensus recompute failed",
					slog.String("chunk_id", jd.Key), slog.String("error", err.Error()))
			}
		})
	case events.JobBuildExport:
		return s.Dispatcher.Submit(base, "batch/"+jd.Key, func(jc context.Context) {
			if err := s.Export.Package(jc, jd.Key); err != nil {
				slog.ErrorContext(jc, "export packaging failed",
					slog.String("batch_id", jd.Key), slog.String("error", err.Error()))
			}
		})
	default:
		// Status events are for external consumers; nothing to do here.
		return nil
	}
}
