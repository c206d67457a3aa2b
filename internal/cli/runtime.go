package cli

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/ppiankov/mediclaim/internal/cache"
	"github.com/ppiankov/mediclaim/internal/logging"
	"github.com/ppiankov/mediclaim/internal/model"
	"github.com/ppiankov/mediclaim/internal/pipeline"
)

// newOrchestrator builds the analysis pipeline from the merged config
func newOrchestrator(cfg *model.Config, opts ...pipeline.Option) (*pipeline.Orchestrator, error) {
	base := []pipeline.Option{pipeline.WithLogger(logging.New("pipeline"))}
	orch, err := pipeline.NewFromConfig(cfg, nil, append(base, opts...)...)
	if err != nil {
		return nil, fmt.Errorf("create pipeline: %w", err)
	}
	return orch, nil
}

// openStore opens the configured result store. The returned close func is never nil.
func openStore(ctx context.Context, cfg model.CacheConfig) (*cache.ResultStore, func(), error) {
	backend, err := cache.New(cfg)
	if err != nil {
		return nil, func() {}, err
	}
	if backend == nil {
		return nil, func() {}, nil
	}

	if r, ok := backend.(*cache.RedisCache); ok {
		if err := r.Ping(ctx); err != nil {
			_ = r.Close()
			return nil, func() {}, fmt.Errorf("redis %s: %w", cfg.RedisAddr, err)
		}
	}

	closeFn := func() {
		if c, ok := backend.(io.Closer); ok {
			if err := c.Close(); err != nil {
				slog.Warn("close result store", "error", err)
			}
		}
	}
	return cache.NewResultStore(backend, cfg.TTL), closeFn, nil
}
