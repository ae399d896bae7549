package core

// scheduler.go runs the pipeline's polling loops.
//
// Each loop is long-running and context-aware for graceful shutdown. A failing
// iteration is logged and the loop keeps going; the next tick retries.

import (
	"context"
	"log/slog"
	"time"
)

// RunEvery calls fn immediately and then every interval until ctx is done.
// Calls never overlap: a slow iteration delays the next one.
func RunEvery(ctx context.Context, name string, interval time.Duration, fn func(context.Context) error) {
	slog.Info("scheduler started", "job", name, "interval", interval)

	runOnce(ctx, name, fn)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("scheduler stopped", "job", name)
			return
		case <-ticker.C:
			runOnce(ctx, name, fn)
		}
	}
}

func runOnce(ctx context.Context, name string, fn func(context.Context) error) {
	start := time.Now()
	if err := fn(ctx); err != nil {
		if ctx.Err() != nil {
			return
		}
		slog.Error("scheduled job failed",
			"job", name,
			"error", err,
			"duration_ms", time.Since(start).Milliseconds(),
		)
		return
	}
	slog.Debug("scheduled job completed", "job", name, "duration_ms", time.Since(start).Milliseconds())
}
