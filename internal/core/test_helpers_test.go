package core

import (
	"context"
	"testing"
	"time"

	"github.com/vovakirdan/collab-relay/internal/store/sqlite"
)

func mustEvent(t *testing.T, ch <-chan *Event, name string) *Event {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev == nil {
				continue
			}
			if ev.Name == name {
				return ev
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
	t.Fatalf("expected event %q not received", name)
	return nil
}

func expectNoEvent(t *testing.T, ch <-chan *Event, name string, wait time.Duration) {
	t.Helper()

	deadline := time.Now().Add(wait)
	for time.Now().Before(deadline) {
		select {
		case ev := <-ch:
			if ev != nil && ev.Name == name {
				t.Fatalf("unexpected event %q: %s", name, ev.Data)
			}
		default:
			time.Sleep(10 * time.Millisecond)
		}
	}
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func startHub(t *testing.T, st Store, opts ...Option) *Hub {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)

	hub := NewHub(st, opts...)
	go hub.Run(ctx)
	return hub
}

func newSQLiteStore(t *testing.T) *sqlite.SQLiteStore {
	t.Helper()

	s, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// connect registers a client and waits for its ready event.
func connect(t *testing.T, hub *Hub, id, userID string) *Client {
	t.Helper()

	c := NewClient(id, userID, 0)
	if err := hub.RegisterClient(c); err != nil {
		t.Fatalf("register %s: %v", id, err)
	}
	mustEvent(t, c.Events, EventReady)
	return c
}

func waitMembers(t *testing.T, hub *Hub, room string, n int) {
	t.Helper()

	eventually(t, "room "+room+" membership", func() bool {
		members, err := hub.RoomMembers(room)
		return err == nil && len(members) == n
	})
}
