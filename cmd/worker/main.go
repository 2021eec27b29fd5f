package main

import (
	"context"
	"log"
	"net/http"
	"time"

	"assessflow/internal/activities"
	"assessflow/internal/config"
	"assessflow/internal/logging"
	"assessflow/internal/metrics"
	"assessflow/internal/models"
	"assessflow/internal/recovery"
	"assessflow/internal/storage"
	"assessflow/internal/workflows"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.temporal.io/sdk/client"
	"go.temporal.io/sdk/worker"
	"go.uber.org/zap"
)

func main() {
	_ = godotenv.Load(".env")
	cfg := config.Load()
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		log.Fatal(err)
	}
	defer func() { _ = logger.Sync() }()

	c, err := client.Dial(client.Options{HostPort: cfg.TemporalAddress})
	if err != nil {
		logger.Fatal("temporal dial", zap.Error(err))
	}
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	db, err := storage.NewDB(ctx, cfg.PostgresURL)
	if err != nil {
		logger.Fatal("postgres connect", zap.Error(err))
	}
	defer db.Close()
	if err := storage.EnsureSchema(ctx, db); err != nil {
		logger.Fatal("ensure schema", zap.Error(err))
	}
	if err := seedCatalog(ctx, db); err != nil {
		logger.Fatal("seed model catalog", zap.Error(err))
	}

	metrics.Init()
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		logger.Info("metrics listening", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()

	w := worker.New(c, cfg.TemporalTaskQueue, worker.Options{
		MaxConcurrentWorkflowTaskExecutionSize: cfg.MaxConcurrentReports,
	})
	workflows.Register(w)
	a, err := activities.New(cfg, db, logger)
	if err != nil {
		logger.Fatal("activities init", zap.Error(err))
	}
	activities.Register(w, a)

	sweeper := recovery.New(storage.NewReportRepo(db), c, logger)
	cr := cron.New()
	if _, err := cr.AddFunc(cfg.RecoverySweepSpec, sweeper.Sweep); err != nil {
		logger.Fatal("recovery sweep schedule", zap.Error(err))
	}
	cr.Start()
	defer cr.Stop()

	logger.Info("worker listening",
		zap.String("temporal", cfg.TemporalAddress),
		zap.String("queue", cfg.TemporalTaskQueue),
		zap.Int("max_concurrent_reports", cfg.MaxConcurrentReports))
	if err := w.Run(worker.InterruptCh()); err != nil {
		logger.Fatal("worker run", zap.Error(err))
	}
}

// seedCatalog registers the mock models the default configuration binds, so a
// fresh install works end to end without provider keys. Real catalog rows are
// managed out of band and never overwritten here.
func seedCatalog(ctx context.Context, db *storage.DB) error {
	repo := storage.NewModelRepo(db)
	existing, err := repo.ListCatalog(ctx)
	if err != nil {
		return err
	}
	if len(existing) > 0 {
		return nil
	}
	defaults := []models.AIModelConfig{
		{ModelID: "mock-judgment", Provider: "mock", ContextWindow: 128000, InputCostPerMTok: 1_000_000, OutputCostPerMTok: 3_000_000, SupportsTemperature: true},
		{ModelID: "mock-narrative", Provider: "mock", ContextWindow: 128000, InputCostPerMTok: 2_000_000, OutputCostPerMTok: 6_000_000, SupportsTemperature: true},
		{ModelID: "mock-backup", Provider: "mock", ContextWindow: 128000, InputCostPerMTok: 500_000, OutputCostPerMTok: 1_500_000, SupportsTemperature: true},
	}
	for _, mc := range defaults {
		if err := repo.Upsert(ctx, mc); err != nil {
			return err
		}
	}
	return nil
}
