// Command connector runs one exchange connector process against a single
// venue, exposing the strategy-facing API in-process (spec.md §5) and a
// gRPC health endpoint, Prometheus metrics, and HTTP health manager for
// operators (spec.md §6).
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exchangeconnector/internal/config"
	"exchangeconnector/internal/connector"
	"exchangeconnector/internal/core"
	"exchangeconnector/internal/infrastructure/health"
	"exchangeconnector/internal/infrastructure/metrics"
	"exchangeconnector/internal/store"
	"exchangeconnector/internal/venuefactory"
	"exchangeconnector/pkg/logging"

	"golang.org/x/sync/errgroup"
)

var configFile = flag.String("config", "configs/config.yaml", "Path to configuration file")

func main() {
	flag.Parse()

	if err := run(*configFile); err != nil {
		fmt.Fprintln(os.Stderr, "connector:", err)
		os.Exit(1)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := logging.NewLoggerFromString(cfg.System.LogLevel)
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	adapter, err := venuefactory.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("build venue adapter: %w", err)
	}

	var stateStore *store.SQLiteStore
	if cfg.App.StateDBPath != "" {
		stateStore, err = store.Open(cfg.App.StateDBPath)
		if err != nil {
			return fmt.Errorf("open state store: %w", err)
		}
		defer stateStore.Close()
	}

	var connStore core.IStateStore
	if stateStore != nil {
		connStore = stateStore
	}

	conn, err := connector.New(cfg, adapter, connStore, logger)
	if err != nil {
		return fmt.Errorf("build connector: %w", err)
	}

	healthMgr := health.NewHealthManager(logger)
	healthMgr.Register("connector", func() error {
		if !conn.Ready() {
			return fmt.Errorf("connector not ready")
		}
		return nil
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	if err := conn.Start(gctx); err != nil {
		return fmt.Errorf("start connector: %w", err)
	}

	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	if cfg.System.GRPCHealthPort > 0 {
		healthGRPC := connector.NewHealthGRPCServer(conn, logger)
		g.Go(func() error { return healthGRPC.Serve(gctx, cfg.System.GRPCHealthPort, 2*time.Second) })
	}

	var metricsSrv *metrics.Server
	var healthHTTPSrv *http.Server
	if cfg.Telemetry.EnableMetrics {
		metricsSrv = metrics.NewServer(cfg.Telemetry.MetricsPort, logger)
		metricsSrv.Start()
	}

	healthHTTPSrv = newHealthHTTPServer(healthMgr, cfg.Telemetry.MetricsPort+1)
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return healthHTTPSrv.Shutdown(shutdownCtx)
	})
	go func() {
		logger.Info("starting HTTP health endpoint", "port", cfg.Telemetry.MetricsPort+1)
		if err := healthHTTPSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("health HTTP server failed", "error", err.Error())
		}
	}()

	logger.Info("connector started", "venue", cfg.App.Venue, "symbols", cfg.Trading.Symbols)

	runErr := g.Wait()

	stopCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := conn.Stop(stopCtx); err != nil {
		logger.Error("connector stop failed", "error", err.Error())
	}
	if metricsSrv != nil {
		_ = metricsSrv.Stop(stopCtx)
	}

	if runErr != nil && gctx.Err() == nil {
		return runErr
	}
	logger.Info("connector shut down gracefully")
	return nil
}

// newHealthHTTPServer exposes healthMgr's aggregated status as a simple
// liveness endpoint, separate from the gRPC health check operators may
// prefer for orchestration.
func newHealthHTTPServer(mgr *health.HealthManager, port int) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if !mgr.IsHealthy() {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		for component, status := range mgr.GetStatus() {
			fmt.Fprintf(w, "%s: %s\n", component, status)
		}
	})
	return &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}
}
