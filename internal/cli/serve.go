package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ppiankov/mediclaim/internal/logging"
	"github.com/ppiankov/mediclaim/internal/metrics"
	"github.com/ppiankov/mediclaim/internal/pipeline"
	"github.com/ppiankov/mediclaim/internal/ratelimit"
	"github.com/ppiankov/mediclaim/internal/server"
)

var (
	serveAddr  string
	limiterTTL time.Duration
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve claim analysis over HTTP and websocket",
	Long: `Serve starts the HTTP API:

  POST /v1/claims/analyze           analyze one claim, respond with progress and result
  GET  /v1/claims/stream            websocket: stream progress events, send {"type":"cancel"} to cancel
  GET  /v1/claims/{id}/analysis     fetch a stored result
  GET  /v1/stages                   the evaluation stage sequence
  GET  /v1/capabilities             what the analysis covers
  GET  /health, /metrics

SIGINT or SIGTERM drains in-flight requests for server.shutdown_timeout.

Example:
  mediclaim serve --addr :9090
  MEDICLAIM_CACHE_BACKEND=redis REDIS_ADDR=localhost:6379 mediclaim serve`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (default server.addr)")
	serveCmd.Flags().DurationVar(&limiterTTL, "limiter-idle", 10*time.Minute, "forget per-client rate limits idle this long")
	serveCmd.Flags().StringVar(&strategyName, "strategy", "", "scoring strategy (rules, demo, llm)")
	serveCmd.Flags().BoolVar(&noDelay, "no-delay", false, "skip the simulated per-stage delay")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg := *appConfig
	applyPipelineFlags(cmd, &cfg)
	if serveAddr != "" {
		cfg.Server.Addr = serveAddr
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	logger := logging.New("server")

	orch, err := newOrchestrator(&cfg, pipeline.WithMetrics(metrics.NewPipelineMetrics(prometheus.DefaultRegisterer)))
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg.Cache)
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer closeStore()

	var limiter *ratelimit.Limiter
	if cfg.RateLimiting.RequestsPerSecond > 0 {
		limiter = ratelimit.NewLimiter(cfg.RateLimiting.RequestsPerSecond, cfg.RateLimiting.BurstSize)
	}

	srv := server.NewHTTPServer(cfg.Server, server.New(&server.Config{
		Orchestrator: orch,
		Store:        store,
		Limiter:      limiter,
		Logger:       logger,
	}))

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("listening", "addr", cfg.Server.Addr, "strategy", cfg.Scoring.Strategy, "store", store.Enabled())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen: %w", err)
		}
		return nil
	})

	if limiter != nil {
		g.Go(func() error {
			limiter.RunSweeper(gCtx, time.Minute, limiterTTL)
			return nil
		})
	}

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("shutting down", "timeout", cfg.Server.ShutdownTimeout)

		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gCtx), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}
