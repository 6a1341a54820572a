package domain

import (
	"context"
	"log/slog"
	"time"

	"github.com/pendergraft/fhevmkit/internal/fhe"
	"github.com/pendergraft/fhevmkit/internal/observability/metrics"
)

// LoggingMiddleware returns a builder middleware that logs and counts every
// build. Requests without an ID get one.
func LoggingMiddleware(logger *slog.Logger) func(Builder) *loggingMiddleware {
	return func(next Builder) *loggingMiddleware {
		return &loggingMiddleware{
			next:   next,
			logger: logger,
		}
	}
}

type loggingMiddleware struct {
	next   Builder
	logger *slog.Logger
}

var _ Builder = (*loggingMiddleware)(nil)

func (m *loggingMiddleware) Build(ctx context.Context, req BuildRequest) (fhe.Instance, error) {
	if req.ID == "" {
		req.ID = generateID()
	}

	start := time.Now()
	inst, err := m.next.Build(ctx, req)
	duration := time.Since(start)

	path, result := "none", "ok"
	if err != nil {
		result = Code(err)
	} else {
		path = string(PathOf(inst))
	}
	metrics.InstanceBuild(path, result, duration)

	level := slog.LevelInfo
	if err != nil && result != CodeCancelled {
		level = slog.LevelWarn
	}
	m.logger.Log(ctx, level, "Build",
		"build", req.ID,
		"endpoint", req.Endpoint.Kind(),
		"path", path,
		"code", result,
		"duration", duration,
		"error", err,
	)
	return inst, err
}
