package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"server/internal/agents"
	"server/internal/credits"
	"server/internal/domain"
	"server/internal/infra"
	"server/internal/observability"
	"server/internal/pack"
	"server/internal/project"
	aplusprovider "server/internal/providers/aplus"
	"server/internal/providers/genai"
	imageprovider "server/internal/providers/image"
	"server/internal/queue"
	"server/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := infra.LoadConfig()
	if err != nil {
		panic(err)
	}
	logger := infra.NewLogger(cfg.AppEnv).With().Str("component", "worker").Logger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := infra.RunMigrations(cfg.DatabaseURL); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	dbpool, err := infra.NewDBPool(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect database")
	}
	defer dbpool.Close()
	runner := infra.NewSQLRunner(dbpool, logger)

	files, err := storage.NewFileStore(cfg.StoragePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize storage")
	}

	client, err := genai.NewClient(genai.Options{
		APIKey:  cfg.GeminiAPIKey,
		BaseURL: cfg.GeminiBaseURL,
		Model:   cfg.GeminiModel,
		Logger:  &logger,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to build genai client")
	}

	store := queue.NewStore(runner, logger)
	projects := project.NewService(runner, logger)
	ledger := credits.NewLedger(runner, logger)
	handlers := queue.NewJobHandlers(
		projects,
		ledger,
		agents.NewImageAgent(imageprovider.NewGeminiGenerator(client)),
		agents.NewAPlusAgent(aplusprovider.NewGeminiGenerator(client)),
		files,
		logger,
	)
	orchestrator := pack.NewOrchestrator(store, projects, packImageTypes(cfg, logger), logger)

	dispatcher := queue.NewDispatcher(store, logger)
	dispatcher.Register(domain.JobTypeGenerateImage, handlers.HandleGenerateImage)
	dispatcher.Register(domain.JobTypeGenerateAPlus, handlers.HandleGenerateAPlus)
	dispatcher.Register(domain.JobTypeGeneratePack, orchestrator.HandleJob)
	dispatcher.SetObserver(orchestrator)

	go serveMetrics(ctx, cfg, logger)
	go reclaimLoop(ctx, cfg, store, logger)

	logger.Info().
		Dur("poll_interval", cfg.WorkerPollInterval).
		Msg("worker: started")

	ticker := time.NewTicker(cfg.WorkerPollInterval)
	defer ticker.Stop()
	for {
		// Drain eagerly: keep claiming until the queue is empty, then wait
		// out the poll interval.
		for dispatcher.RunOnce(ctx).Processed {
			if ctx.Err() != nil {
				break
			}
		}
		select {
		case <-ctx.Done():
			logger.Info().Msg("worker: shutting down")
			return
		case <-ticker.C:
		}
	}
}

func packImageTypes(cfg *infra.Config, logger infra.Logger) []domain.ImageType {
	types := make([]domain.ImageType, 0, len(cfg.PackImageTypes))
	for _, raw := range cfg.PackImageTypes {
		t, ok := domain.ParseImageType(raw)
		if !ok {
			logger.Warn().Str("image_type", raw).Msg("worker: ignoring unknown pack image type")
			continue
		}
		types = append(types, t)
	}
	return types
}

// reclaimLoop periodically sweeps jobs stranded in processing by a crashed
// worker back through the retry budget.
func reclaimLoop(ctx context.Context, cfg *infra.Config, store *queue.Store, logger infra.Logger) {
	ticker := time.NewTicker(cfg.WorkerReclaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			n, err := store.ReclaimStuck(ctx, cfg.WorkerReclaimAfter)
			if err != nil {
				logger.Error().Err(err).Msg("worker: reclaim sweep failed")
				continue
			}
			if n > 0 {
				observability.AddReclaimed(n)
				logger.Warn().Int("count", n).Msg("worker: reclaimed stuck jobs")
			}
		}
	}
}

func serveMetrics(ctx context.Context, cfg *infra.Config, logger infra.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", observability.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	srv := &http.Server{Addr: ":" + cfg.MetricsPort, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	logger.Info().Str("port", cfg.MetricsPort).Msg("worker: metrics listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("worker: metrics server stopped")
	}
}
