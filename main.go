package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/thiskanishk/healthassist-cds/cache"
	"github.com/thiskanishk/healthassist-cds/catalog"
	"github.com/thiskanishk/healthassist-cds/catalogsource"
	"github.com/thiskanishk/healthassist-cds/config"
	"github.com/thiskanishk/healthassist-cds/decision"
	"github.com/thiskanishk/healthassist-cds/generation"
	"github.com/thiskanishk/healthassist-cds/handlers"
	"github.com/thiskanishk/healthassist-cds/health"
	"github.com/thiskanishk/healthassist-cds/interfaces"
	"github.com/thiskanishk/healthassist-cds/logging"
	"github.com/thiskanishk/healthassist-cds/metrics"
	"github.com/thiskanishk/healthassist-cds/pgstore"
	"github.com/thiskanishk/healthassist-cds/scheduler"
	"github.com/thiskanishk/healthassist-cds/server"
	"github.com/thiskanishk/healthassist-cds/validation"
)

func main() {
	// A missing .env is fine; the environment may already be set.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		os.Exit(1)
	}

	logging.InitLoggerWithRetention(cfg.LogDir, cfg.LogRetentionWeeks, cfg.MaxLogFileSize, cfg.LogLevel)
	defer logging.Close()

	if err := run(cfg); err != nil {
		logging.Error("Service stopped with error", "error", err)
		logging.Close()
		os.Exit(1)
	}
}

func run(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var pool *pgxpool.Pool
	if cfg.CatalogSource == config.SourcePostgres || cfg.CatalogCache == config.CachePostgres {
		var err error
		pool, err = pgstore.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return err
		}
		defer pool.Close()
		if err := pgstore.EnsureSchema(ctx, pool); err != nil {
			return err
		}
	}

	var store interfaces.CatalogStore
	switch cfg.CatalogSource {
	case config.SourcePostgres:
		store = pgstore.NewStore(pool)
	case config.SourceFile:
		var opts []catalogsource.Option
		if cfg.CatalogURL != "" {
			opts = append(opts, catalogsource.WithURL(cfg.CatalogURL, cfg.CatalogInteractionsURL))
		}
		store = catalogsource.New(cfg.CatalogDir, opts...)
	}

	catOpts := []catalog.Option{
		catalog.WithCacheTTL(cfg.CatalogCacheTTL),
		catalog.WithLoadHook(func(ev catalog.LoadEvent) {
			metrics.RecordCatalogLoad(ev.Source, ev.Refresh, ev.Degraded, ev.Err)
		}),
	}
	var purge func() int
	switch cfg.CatalogCache {
	case config.CacheMemory:
		mem := cache.NewMemory()
		catOpts = append(catOpts, catalog.WithCache(mem))
		purge = mem.Purge
	case config.CachePostgres:
		pgCache := pgstore.NewCache(pool)
		catOpts = append(catOpts, catalog.WithCache(pgCache))
		purge = func() int {
			purgeCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			n, err := pgCache.DeleteExpired(purgeCtx)
			if err != nil {
				logging.Warn("Failed to purge catalog cache", "error", err)
			}
			return int(n)
		}
	}

	cat := catalog.New(store, catOpts...)

	genOpts := interfaces.GenerationOptions{
		Model:       cfg.GenerationModel,
		Temperature: cfg.GenerationTemperature,
		MaxTokens:   cfg.GenerationMaxTokens,
		Timeout:     cfg.GenerationTimeout,
	}
	client := generation.NewClient(cfg.GenerationAPIURL, cfg.GenerationAPIKey, generation.WithDefaults(genOpts))
	guardCfg := generation.DefaultGuardConfig()
	guardCfg.RatePerSecond = cfg.GenerationRatePerSecond
	guardCfg.Burst = cfg.GenerationBurst
	generator := generation.NewGuarded(client, guardCfg)

	svc := decision.NewService(cat, generator,
		decision.WithWorkers(cfg.EnrichWorkers),
		decision.WithGenerationOptions(genOpts),
	)

	healthOpts := []health.Option{
		health.WithGenerationState(func() string { return string(generator.State()) }),
	}

	if store != nil {
		sched := scheduler.NewScheduler(cat,
			scheduler.WithRefreshTimes(cfg.CatalogRefreshTimes...),
			scheduler.WithCachePurge(purge),
		)
		if err := sched.Start(); err != nil {
			return err
		}
		defer sched.Stop()
		healthOpts = append(healthOpts, health.WithNextRefresh(sched.NextRefresh))
	} else {
		logging.Warn("No catalog source configured, serving the bundled fallback dataset")
		if _, err := cat.Medications(ctx); err != nil {
			return fmt.Errorf("catalog load failed: %w", err)
		}
	}

	hc := health.NewHealthChecker(cat, healthOpts...)
	handler := handlers.NewHTTPHandler(cat, svc, validation.NewDataValidator(), hc)
	srv := server.NewServer(cfg, handler)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
