// Package main is the entrypoint for the HYROX report API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kiranshivaraju/hyroxreport/internal/ai"
	"github.com/kiranshivaraju/hyroxreport/internal/api"
	"github.com/kiranshivaraju/hyroxreport/internal/api/handler"
	mw "github.com/kiranshivaraju/hyroxreport/internal/api/middleware"
	"github.com/kiranshivaraju/hyroxreport/internal/assembler"
	"github.com/kiranshivaraju/hyroxreport/internal/cache"
	"github.com/kiranshivaraju/hyroxreport/internal/config"
	"github.com/kiranshivaraju/hyroxreport/internal/improvement"
	"github.com/kiranshivaraju/hyroxreport/internal/metrics"
	"github.com/kiranshivaraju/hyroxreport/internal/report"
	"github.com/kiranshivaraju/hyroxreport/internal/reportdata"
	"github.com/kiranshivaraju/hyroxreport/internal/results"
	"github.com/kiranshivaraju/hyroxreport/internal/section"
	"github.com/kiranshivaraju/hyroxreport/internal/snapshot"
	"github.com/kiranshivaraju/hyroxreport/internal/store"
	"github.com/kiranshivaraju/hyroxreport/pkg/models"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, fail fast on invalid config
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded", "ai_provider", cfg.AI.Provider, "env", cfg.Server.Env)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, "migrations"); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Open the race results database
	repo, err := results.Open(cfg.Results.DBPath)
	if err != nil {
		return fmt.Errorf("open results: %w", err)
	}
	defer repo.Close()

	// 6. Load section catalog
	catalog, err := section.LoadCatalog(cfg.Report.ConfigDir)
	if err != nil {
		return fmt.Errorf("load report catalog: %w", err)
	}
	slog.Info("report catalog loaded", "sections", len(catalog.Definitions()))

	// 7. Metrics and oracle
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	oracle, err := ai.NewOracle(cfg.AI)
	if err != nil {
		return fmt.Errorf("create oracle: %w", err)
	}
	oracle = metrics.InstrumentOracle(oracle, m)
	slog.Info("oracle initialized", "provider", oracle.Name())

	// 8. Store and bootstrap key
	pgStore := store.NewPostgresStore(pool)
	if err := bootstrapAdminKey(ctx, pgStore, cfg.Auth.BootstrapKey); err != nil {
		return fmt.Errorf("bootstrap admin key: %w", err)
	}

	// 9. Report pipeline
	svc := newReportService(cfg, pgStore, redisCache, repo, catalog, oracle, m)
	snaps := snapshot.New(pgStore, redisCache, cfg.Report.SnapshotCacheTTL)

	// 10. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Report.RateLimitPerMinute),

		HealthHandler: handler.NewHealthHandler(map[string]handler.Pinger{
			"database": pgStore,
			"cache":    redisCache,
			"results":  repo,
		}),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),

		CreateReport:  handler.NewCreateReportHandler(svc),
		ListReports:   handler.NewListReportsHandler(svc),
		GetReport:     handler.NewGetReportHandler(svc),
		TriggerReport: handler.NewTriggerReportHandler(svc),
		ReportStatus:  handler.NewReportStatusHandler(svc),
		ReportEvents:  handler.NewReportEventsHandler(svc),
		ListSnapshots: handler.NewListSnapshotsHandler(svc, snaps),
		GetSnapshot:   handler.NewGetSnapshotHandler(snaps),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 11. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	slog.Info("server stopped gracefully")
	return nil
}

// newReportService wires the generation pipeline around one shared oracle.
func newReportService(
	cfg *config.Config,
	st store.Store,
	c cache.Cache,
	repo results.Repository,
	catalog *section.Catalog,
	oracle models.Oracle,
	m *metrics.Metrics,
) *report.Service {
	snaps := snapshot.New(st, c, cfg.Report.SnapshotCacheTTL)
	model := catalog.Model("")

	pc := report.PipelineContext{
		Catalog: catalog,
		Data:    reportdata.NewProvider(repo, c, reportdata.WithCohortTTL(cfg.Report.CohortCacheTTL)),
		Estimator: improvement.NewEstimator(oracle,
			improvement.WithModel(improvement.ModelConfig{
				Model:       model.ModelName,
				MaxTokens:   model.MaxTokens,
				Temperature: model.Temperature,
			}),
			improvement.WithClampRecorder(m),
		),
		Sections:  section.NewPipeline(catalog, oracle, snaps, section.WithRecorder(m)),
		Assembler: assembler.New(catalog),
	}
	return report.NewService(st, c, repo, pc,
		report.WithStatusTTL(cfg.Report.StatusTTL),
		report.WithTimeout(cfg.Report.GenerationTimeout),
		report.WithRecorder(m),
	)
}

// KeyBootstrapper is the part of the store the first-start key needs.
type KeyBootstrapper interface {
	CountAPIKeys(ctx context.Context) (int, error)
	CreateAPIKey(ctx context.Context, key *models.APIKey) error
}

// bootstrapAdminKey stores rawKey as an admin key when no key exists yet.
func bootstrapAdminKey(ctx context.Context, keys KeyBootstrapper, rawKey string) error {
	if rawKey == "" {
		return nil
	}
	n, err := keys.CountAPIKeys(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	key, err := handler.NewAPIKey("bootstrap-admin", rawKey, []string{"read", "write", models.ScopeAdmin})
	if err != nil {
		return err
	}
	if err := keys.CreateAPIKey(ctx, key); err != nil {
		return err
	}
	slog.Info("bootstrap admin key created", "key_prefix", key.KeyPrefix)
	return nil
}
