package workers

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
)

const defaultRunTimeout = time.Minute

// WorkerFunc defines the function signature for work performed by a worker loop.
// It returns the number of items processed and any critical error encountered.
type WorkerFunc func(ctx context.Context, batchSize int) (int, error)

// loopConfig describes one periodic worker.
type loopConfig struct {
	name       string
	interval   time.Duration
	batchSize  int
	runTimeout time.Duration
	runAtStart bool
}

// runWorkerLoop runs a generic worker function periodically until ctx is done.
func runWorkerLoop(ctx context.Context, cfg loopConfig, workerFunc WorkerFunc) {
	if cfg.interval <= 0 {
		cfg.interval = time.Minute
	}
	logger := slog.With(slog.String("worker", cfg.name))
	logger.Info("Worker starting", slog.Duration("interval", cfg.interval), slog.Int("batch_size", cfg.batchSize))
	ticker := time.NewTicker(cfg.interval)
	defer ticker.Stop()

	if cfg.runAtStart {
		runWork(ctx, logger, cfg, workerFunc)
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("Worker stopping")
			return
		case <-ticker.C:
			runWork(ctx, logger, cfg, workerFunc)
		}
	}
}

// runWork executes a single batch of work with a timeout.
func runWork(ctx context.Context, logger *slog.Logger, cfg loopConfig, workerFunc WorkerFunc) {
	timeout := cfg.runTimeout
	if timeout <= 0 {
		timeout = defaultRunTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	processedCount, err := workerFunc(runCtx, cfg.batchSize)
	if err != nil {
		// no rows just means there was nothing to do
		if !errors.Is(err, pgx.ErrNoRows) {
			logger.Error("Worker run failed", slog.Any("error", err))
		}
	} else if processedCount > 0 {
		logger.Info("Worker run processed items", slog.Int("count", processedCount))
	}
}
