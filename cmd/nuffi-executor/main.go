package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/nuffi-dev/nuffi/internal/executor"
	"github.com/nuffi-dev/nuffi/internal/observability"
)

func main() {
	var cfg executor.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	log, _ := observability.NewLogger(cfg.LogLevel)
	defer log.Sync()

	reg := prometheus.DefaultRegisterer
	observability.RegisterAll(reg)

	local, err := executor.NewLocal(cfg, log)
	if err != nil {
		log.Fatal("executor init failed", zap.Error(err))
	}

	// Metrics HTTP server
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200) })
	go func() {
		log.Info("metrics server starting", zap.String("addr", cfg.MetricsAddr))
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Fatal("metrics server failed", zap.Error(err))
		}
	}()

	// gRPC server
	lis, err := net.Listen("tcp", cfg.GRPCAddr)
	if err != nil {
		log.Fatal("listen failed", zap.Error(err))
	}

	srv := grpc.NewServer()
	executor.RegisterExecutorServer(srv, executor.NewServer(local, log))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		log.Info("gRPC server starting", zap.String("addr", cfg.GRPCAddr), zap.String("mode", string(cfg.Mode)))
		if err := srv.Serve(lis); err != nil {
			log.Fatal("grpc serve failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	log.Info("shutting down executor")

	// Items in flight get ShutdownTimeout to finish before connections are cut.
	stopped := make(chan struct{})
	go func() {
		srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(cfg.ShutdownTimeout):
		log.Warn("graceful stop timed out, forcing")
		srv.Stop()
	}
}
