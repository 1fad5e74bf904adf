package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/nuffi-dev/nuffi/internal/api"
	"github.com/nuffi-dev/nuffi/internal/catalog"
	"github.com/nuffi-dev/nuffi/internal/executor"
	"github.com/nuffi-dev/nuffi/internal/executorclient"
	"github.com/nuffi-dev/nuffi/internal/observability"
	"github.com/nuffi-dev/nuffi/internal/orchestrator"
	"github.com/nuffi-dev/nuffi/internal/store"
	"github.com/nuffi-dev/nuffi/internal/store/memory"
	"github.com/nuffi-dev/nuffi/internal/worker"
)

func main() {
	var cfg api.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	// Replace global logger
	zap.ReplaceGlobals(log)

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	s, closeStore := openStore(ctx, cfg, log)
	defer closeStore()

	var tools api.ToolCatalog
	var resolver orchestrator.Catalog
	if cfg.CatalogDir != "" {
		cat, err := catalog.Load(cfg.CatalogDir, log)
		if err != nil {
			log.Fatal("load catalog failed", zap.Error(err))
		}
		tools, resolver = cat, cat
	}

	if cfg.TemplatesDir != "" {
		templates, err := catalog.LoadTemplates(cfg.TemplatesDir, log)
		if err != nil {
			log.Fatal("load templates failed", zap.Error(err))
		}
		added, err := catalog.SeedTemplates(ctx, s, templates, log)
		if err != nil {
			log.Fatal("seed templates failed", zap.Error(err))
		}
		log.Info("templates seeded", zap.Int("added", added), zap.Int("files", len(templates)))
	}

	installer, closeInstaller := openInstaller(cfg, log)
	defer closeInstaller()

	orch := orchestrator.New(s, s, s, resolver, installer, orchestrator.Config{
		Platform:    cfg.Platform,
		ItemTimeout: cfg.ItemTimeout,
	}, log)
	runner := worker.New(s, orch, worker.Config{
		RunTimeout:    cfg.RunTimeout,
		// Leave half the shutdown budget for cancelled runs to record their failure.
		ShutdownGrace: cfg.ShutdownTimeout / 2,
	}, log)
	if n, err := runner.Recover(ctx); err != nil {
		log.Error("recover interrupted installs failed", zap.Error(err))
	} else if n > 0 {
		log.Warn("failed installs interrupted by restart", zap.Int("count", n))
	}

	// Main API server
	apiHandler := api.NewAPI(s, runner, tools, log)
	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      apiHandler.Router(),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Metrics server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    cfg.MetricsAddr,
		Handler: mux,
	}

	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	go func() {
		log.Info("API server starting", zap.String("addr", cfg.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("API server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down API server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer shutdownCancel()

	_ = srv.Shutdown(shutdownCtx)
	if err := runner.Shutdown(shutdownCtx); err != nil {
		log.Warn("installs still running at shutdown", zap.Error(err))
	}
	_ = metricsSrv.Shutdown(shutdownCtx)

	log.Info("API server stopped")
}

// openStore uses Postgres when a DSN is configured and an in-memory store otherwise.
func openStore(ctx context.Context, cfg api.Config, log *zap.Logger) (store.Store, func()) {
	if cfg.DBDSN == "" {
		log.Warn("NUFFI_DB_DSN not set, using in-memory store")
		return memory.New(), func() {}
	}
	pool, err := store.NewPool(ctx, cfg.DBDSN, cfg.DBMaxConns)
	if err != nil {
		log.Fatal("db connect failed", zap.Error(err))
	}
	if err := store.Migrate(ctx, pool); err != nil {
		pool.Close()
		log.Fatal("db migrate failed", zap.Error(err))
	}
	return store.NewPostgres(pool), pool.Close
}

// openInstaller dials the configured executors, or installs in-process when there are none.
func openInstaller(cfg api.Config, log *zap.Logger) (orchestrator.Installer, func()) {
	if len(cfg.ExecutorAddrs) > 0 {
		pool, err := executorclient.NewPool(cfg.ExecutorAddrs)
		if err != nil {
			log.Fatal("executor pool failed", zap.Error(err))
		}
		log.Info("using remote executors", zap.Strings("addrs", cfg.ExecutorAddrs))
		return pool, func() { _ = pool.Close() }
	}
	var ecfg executor.Config
	if err := envconfig.Process("", &ecfg); err != nil {
		log.Fatal("executor config failed", zap.Error(err))
	}
	local, err := executor.NewLocal(ecfg, log.Named("executor"))
	if err != nil {
		log.Fatal("local executor failed", zap.Error(err))
	}
	log.Info("using in-process executor", zap.String("mode", string(ecfg.Mode)))
	return local, func() {}
}
