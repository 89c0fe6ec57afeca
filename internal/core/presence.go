package core

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/store"
)

// presenceChange is a 0↔1 transition of an identity's live connection count.
type presenceChange struct {
	UserID string
	Online bool
	At     time.Time
	origin *Client
}

const presenceWriteTimeout = 5 * time.Second

// presenceWriter applies presence changes in the order they were enqueued.
// The queue is unbounded so the hub never blocks on it. Writes outlive hub
// cancellation: stop drains whatever is still queued.
type presenceWriter struct {
	mu      sync.Mutex
	pending []presenceChange
	wake    chan struct{}
	quit    chan struct{}
	done    chan struct{}

	store    store.PresenceStore
	log      *zerolog.Logger
	announce func(presenceChange)
}

func newPresenceWriter(st store.PresenceStore, log *zerolog.Logger, announce func(presenceChange)) *presenceWriter {
	return &presenceWriter{
		wake:     make(chan struct{}, 1),
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
		store:    st,
		log:      log,
		announce: announce,
	}
}

func (w *presenceWriter) enqueue(ch presenceChange) {
	w.mu.Lock()
	w.pending = append(w.pending, ch)
	w.mu.Unlock()

	select {
	case w.wake <- struct{}{}:
	default:
	}
}

func (w *presenceWriter) take() []presenceChange {
	w.mu.Lock()
	defer w.mu.Unlock()
	batch := w.pending
	w.pending = nil
	return batch
}

func (w *presenceWriter) run(ctx context.Context) {
	defer close(w.done)

	ctx = context.WithoutCancel(ctx)
	for {
		select {
		case <-w.quit:
			w.flush(ctx)
			return
		case <-w.wake:
			w.flush(ctx)
		}
	}
}

// stop flushes pending changes and waits for run to return.
func (w *presenceWriter) stop() {
	close(w.quit)
	<-w.done
}

func (w *presenceWriter) flush(ctx context.Context) {
	for batch := w.take(); len(batch) > 0; batch = w.take() {
		for _, ch := range batch {
			w.apply(ctx, ch)
		}
	}
}

func (w *presenceWriter) apply(ctx context.Context, ch presenceChange) {
	if w.store != nil {
		ctx, cancel := context.WithTimeout(ctx, presenceWriteTimeout)
		err := w.store.SetPresence(ctx, ch.UserID, ch.Online, ch.At)
		cancel()
		if err != nil {
			w.log.Warn().Err(err).Str("user_id", ch.UserID).Bool("online", ch.Online).Msg("failed to persist presence")
		}
	}
	w.announce(ch)
}
