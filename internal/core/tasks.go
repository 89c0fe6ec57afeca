package core

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"
)

const defaultTaskConcurrency = 16

// taskRunner runs best-effort side effects off the hub goroutine.
// Failures are logged and never reach the emitting client.
type taskRunner struct {
	sem *semaphore.Weighted
	wg  sync.WaitGroup
	log *zerolog.Logger
}

func newTaskRunner(limit int, log *zerolog.Logger) *taskRunner {
	if limit <= 0 {
		limit = defaultTaskConcurrency
	}
	return &taskRunner{
		sem: semaphore.NewWeighted(int64(limit)),
		log: log,
	}
}

// Go schedules fn. It never blocks the caller; the slot is acquired inside the goroutine.
func (t *taskRunner) Go(ctx context.Context, name string, fn func(ctx context.Context) error) {
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		if err := t.sem.Acquire(ctx, 1); err != nil {
			t.log.Debug().Str("task", name).Msg("task skipped, shutting down")
			return
		}
		defer t.sem.Release(1)

		if err := fn(ctx); err != nil {
			t.log.Warn().Err(err).Str("task", name).Msg("background task failed")
		}
	}()
}

// Wait blocks until all scheduled tasks have finished.
func (t *taskRunner) Wait() {
	t.wg.Wait()
}
