// main package for the render-service
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"

	"github.com/book-expert/render-service/internal/arena"
	"github.com/book-expert/render-service/internal/config"
	"github.com/book-expert/render-service/internal/core"
	"github.com/book-expert/render-service/internal/effects"
	"github.com/book-expert/render-service/internal/ffmpegcmd"
	"github.com/book-expert/render-service/internal/guide"
	"github.com/book-expert/render-service/internal/layers"
	"github.com/book-expert/render-service/internal/objectstore"
	"github.com/book-expert/render-service/internal/pipeline"
	"github.com/book-expert/render-service/internal/preview"
	"github.com/book-expert/render-service/internal/server"
	"github.com/book-expert/render-service/internal/synth"
	"github.com/book-expert/render-service/internal/tempo"
	"github.com/book-expert/render-service/internal/transcribe"
	"github.com/book-expert/render-service/internal/voices"
	"github.com/book-expert/render-service/internal/worker"
)

const (
	defaultSweepInterval = time.Hour
	defaultRetention     = 24 * time.Hour
)

func setupLogger(logPath string) (*logger.Logger, error) {
	log, err := logger.New(logPath, "render-service.log")
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	return log, nil
}

func buildPipeline(cfg *config.Config, log *logger.Logger) (*pipeline.Pipeline, error) {
	synthesizer, synthErr := synth.New(synth.Config{
		Engine:         cfg.Synthesis.Engine,
		BinaryPath:     cfg.Synthesis.BinaryPath,
		ModelPath:      cfg.Synthesis.ModelPath,
		ServiceURL:     cfg.Synthesis.ServiceURL,
		TimeoutSeconds: cfg.Synthesis.TimeoutSeconds,
		Seed:           cfg.Synthesis.Seed,
		Temperature:    cfg.Synthesis.Temperature,
	}, log)
	if synthErr != nil {
		return nil, fmt.Errorf("failed to build synthesizer: %w", synthErr)
	}

	executor := ffmpegcmd.NewRunner()

	var delegate effects.Delegate
	if cfg.Effects.DelegatedURL != "" {
		delegate = effects.NewDelegatedClient(
			cfg.Effects.DelegatedURL,
			time.Duration(cfg.Effects.TimeoutSeconds)*time.Second,
		)
	}

	var transcriber *transcribe.Client
	if cfg.Transcription.URL != "" {
		transcriber = transcribe.NewClient(
			cfg.Transcription.URL,
			cfg.Transcription.APIKey,
			cfg.Transcription.Model,
			cfg.Transcription.Language,
		)
	}

	var voiceCache *voices.Cache
	if cfg.Voices.ModelsDir != "" {
		voiceCache = voices.NewCache(voices.DirLoader(cfg.Voices.ModelsDir))
	}

	opts := pipeline.Options{
		OutputRoot:   cfg.Render.OutputDir,
		StageTimeout: time.Duration(cfg.Render.StageTimeoutSeconds) * time.Second,
	}

	renderPipeline := pipeline.New(
		synthesizer,
		guide.NewExtractor(cfg.Guide.DemucsBinary, log),
		transcriberOrNil(transcriber),
		voiceCache,
		effects.NewEngine(executor, delegate, log),
		tempo.NewCorrector(executor, log),
		layers.NewModulator(executor, log),
		preview.NewExtractor(executor, log),
		opts,
		log,
	)

	return renderPipeline, nil
}

// transcriberOrNil keeps the pipeline's nil check meaningful: a typed nil
// *transcribe.Client inside the interface would defeat it.
func transcriberOrNil(client *transcribe.Client) core.Transcriber {
	if client == nil {
		return nil
	}

	return client
}

func runWorker(
	ctx context.Context,
	cfg *config.Config,
	renderPipeline *pipeline.Pipeline,
	log *logger.Logger,
) error {
	natsConnection, connectErr := nats.Connect(cfg.NATS.URL)
	if connectErr != nil {
		return fmt.Errorf("failed to connect to NATS: %w", connectErr)
	}

	defer natsConnection.Close()

	jetstreamContext, jsErr := natsConnection.JetStream()
	if jsErr != nil {
		return fmt.Errorf("failed to get JetStream context: %w", jsErr)
	}

	store, storeErr := objectstore.New(jetstreamContext, cfg.NATS.RenderObjectStoreBucket)
	if storeErr != nil {
		return fmt.Errorf("failed to create object store: %w", storeErr)
	}

	workDir := filepath.Join(cfg.Render.OutputDir, "work")

	natsWorker, workerErr := worker.NewNatsWorker(
		natsConnection,
		jetstreamContext,
		cfg.NATS.RenderRequestedSubject,
		store,
		renderPipeline,
		workDir,
		log,
	)
	if workerErr != nil {
		return fmt.Errorf("failed to create worker: %w", workerErr)
	}

	runErr := natsWorker.Run(ctx)
	if runErr != nil {
		return fmt.Errorf("worker stopped: %w", runErr)
	}

	return nil
}

func runSweeper(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	retention := defaultRetention
	if cfg.Render.RetentionHours > 0 {
		retention = time.Duration(cfg.Render.RetentionHours) * time.Hour
	}

	arena.SweepLoop(ctx, cfg.Render.OutputDir, retention, defaultSweepInterval, log)

	return nil
}

func run() error {
	bootstrapLog, bootstrapErr := setupLogger(os.TempDir())
	if bootstrapErr != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", bootstrapErr)

		return bootstrapErr
	}

	cfg, loadErr := config.Load(bootstrapLog)
	if loadErr != nil {
		bootstrapLog.Error("Failed to load configuration: %v", loadErr)

		return fmt.Errorf("failed to load configuration: %w", loadErr)
	}

	log, logErr := setupLogger(cfg.Paths.BaseLogsDir)
	if logErr != nil {
		bootstrapLog.Error("Failed to create final logger: %v", logErr)

		return fmt.Errorf("failed to create final logger: %w", logErr)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing logger: %v\n", closeErr)
		}
	}()

	renderPipeline, buildErr := buildPipeline(cfg, log)
	if buildErr != nil {
		log.Error("Failed to build render pipeline: %v", buildErr)

		return buildErr
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log.System(
		"Render service initialized. Subject: %s, HTTP port: %d",
		cfg.NATS.RenderRequestedSubject, cfg.HTTP.Port,
	)

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		return runWorker(groupCtx, cfg, renderPipeline, log)
	})

	group.Go(func() error {
		httpServer := server.New(server.Config{Port: cfg.HTTP.Port}, renderPipeline, log)

		return httpServer.Run(groupCtx)
	})

	group.Go(func() error {
		return runSweeper(groupCtx, cfg, log)
	})

	waitErr := group.Wait()
	if waitErr != nil {
		return fmt.Errorf("service exited: %w", waitErr)
	}

	return nil
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
