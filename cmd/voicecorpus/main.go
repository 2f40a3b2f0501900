package main

import (
	"context"
	"log"
	"net/http"

	"github.com/pitabwire/frame"
	frameconfig "github.com/pitabwire/frame/config"
	"github.com/pitabwire/frame/workerpool"

	vcconfig "github.com/voicecorpus/voicecorpus/config"
	"github.com/voicecorpus/voicecorpus/internal/api"
	"github.com/voicecorpus/voicecorpus/internal/audio"
	"github.com/voicecorpus/voicecorpus/internal/chunking"
	"github.com/voicecorpus/voicecorpus/internal/consensus"
	"github.com/voicecorpus/voicecorpus/internal/export"
	"github.com/voicecorpus/voicecorpus/internal/httputil"
	"github.com/voicecorpus/voicecorpus/internal/pipeline"
	"github.com/voicecorpus/voicecorpus/internal/profiles"
	"github.com/voicecorpus/voicecorpus/pkg/corpus"
	"github.com/voicecorpus/voicecorpus/pkg/events"
)

func main() {
	ctx := context.Background()

	cfg, err := frameconfig.LoadWithOIDC[vcconfig.CorpusConfig](ctx)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	eventRef := cfg.GetEventsQueueName()
	eventURL := cfg.GetEventsQueueURL()

	ctx, srv := frame.NewService(
		frame.WithConfig(&cfg),
		frame.WithName("voicecorpus"),
		frame.WithRegisterServerOauth2Client(),
		frame.WithDatastore(),
		frame.WithRegisterPublisher(eventRef, eventURL),
		frame.WithWorkerPoolOptions(
			workerpool.WithPoolCount(cfg.PipelineWorkers),
		),
	)
	defer srv.Stop(ctx)

	workers, err := srv.WorkManager().GetPool()
	if err != nil {
		log.Fatalf("getting worker pool: %v", err)
	}

	authenticator := srv.SecurityManager().GetAuthenticator(ctx)

	pub := events.NewPublisher(srv.QueueManager(), "corpus", eventRef)

	dbPool := srv.DatastoreManager().GetPool(ctx, "__default__pool_name__")
	repo := corpus.NewRepository(dbPool)
	quota := corpus.NewQuotaStore(dbPool, cfg.QuotaPolicy())

	store, err := audio.NewStore(cfg.AudioDir)
	if err != nil {
		log.Fatalf("creating audio store: %v", err)
	}

	loader := profiles.NewLoader(cfg.ProfileDir)
	if _, err := loader.LoadAll(); err != nil {
		log.Printf("warning: loading profiles: %v", err)
	}
	go func() {
		if err := loader.WatchAndReload(ctx.Done()); err != nil {
			log.Printf("warning: watching profiles: %v", err)
		}
	}()

	chunker := chunking.NewService(repo, store, loader, pub)
	consenter := consensus.NewService(repo, cfg.ConsensusParams(), pub)
	builder, err := export.NewBuilder(repo, store, quota, pub, cfg.ExportDir)
	if err != nil {
		log.Fatalf("creating export builder: %v", err)
	}

	jobs := &pipeline.Subscriber{
		Dispatcher: pipeline.NewDispatcher(workers),
		Chunking:   chunker,
		Consensus:  consenter,
		Export:     builder,
		BaseCtx:    ctx,
	}

	handler := api.NewHandler(repo, store, quota, consenter, builder, pub, cfg.MaxUploadMB)
	restMux := http.NewServeMux()
	handler.RegisterRoutes(restMux)

	mux := http.NewServeMux()
	mux.Handle("/api/", httputil.AuthenticatedMiddleware(
		httputil.LoggingMiddleware(restMux), authenticator))

	srv.Init(ctx,
		frame.WithRegisterSubscriber(eventRef+".pipeline", eventURL, jobs),
		frame.WithHTTPHandler(httputil.H2CHandler(mux)),
	)

	if err := srv.Run(ctx, ""); err != nil {
		log.Fatalf("service exited: %v", err)
	}
}
