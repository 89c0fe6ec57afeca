package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/vovakirdan/collab-relay/internal/store"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()

	s, err := New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPresenceUpsert(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.GetPresence(ctx, "u1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown identity, got %v", err)
	}

	first := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	if err := s.SetPresence(ctx, "u1", true, first); err != nil {
		t.Fatalf("set online: %v", err)
	}
	p, err := s.GetPresence(ctx, "u1")
	if err != nil {
		t.Fatalf("get presence: %v", err)
	}
	if !p.IsOnline || !p.LastSeen.Equal(first) {
		t.Fatalf("unexpected presence after connect: %+v", p)
	}

	second := first.Add(time.Minute)
	if err := s.SetPresence(ctx, "u1", false, second); err != nil {
		t.Fatalf("set offline: %v", err)
	}
	p, err = s.GetPresence(ctx, "u1")
	if err != nil {
		t.Fatalf("get presence: %v", err)
	}
	if p.IsOnline || !p.LastSeen.Equal(second) {
		t.Fatalf("unexpected presence after disconnect: %+v", p)
	}
}

func TestNotificationsListingAndReadState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"n1", "n2", "n3"} {
		n := &store.Notification{
			ID:          id,
			RecipientID: "u1",
			SenderID:    "u2",
			Type:        store.NotificationMention,
			Title:       "You were mentioned",
			Message:     "hello",
			CreatedAt:   base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateNotification(ctx, n); err != nil {
			t.Fatalf("create %s: %v", id, err)
		}
	}
	if err := s.CreateNotification(ctx, &store.Notification{
		ID: "other", RecipientID: "u9", Type: store.NotificationInvite, Title: "t", Message: "m",
	}); err != nil {
		t.Fatalf("create other: %v", err)
	}

	list, err := s.ListNotifications(ctx, "u1", store.NotificationFilter{Limit: 2})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].ID != "n3" || list[1].ID != "n2" {
		t.Fatalf("expected newest first [n3 n2], got %+v", list)
	}

	if err := s.MarkNotificationRead(ctx, "n3", base.Add(time.Hour)); err != nil {
		t.Fatalf("mark read: %v", err)
	}
	unread, err := s.CountNotifications(ctx, "u1", true)
	if err != nil {
		t.Fatalf("count unread: %v", err)
	}
	if unread != 2 {
		t.Fatalf("expected 2 unread, got %d", unread)
	}

	n3, err := s.GetNotification(ctx, "n3")
	if err != nil {
		t.Fatalf("get n3: %v", err)
	}
	if !n3.Read || n3.ReadAt == nil {
		t.Fatalf("expected n3 read with timestamp, got %+v", n3)
	}

	updated, err := s.MarkAllNotificationsRead(ctx, "u1", base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("mark all: %v", err)
	}
	if updated != 2 {
		t.Fatalf("expected 2 updated, got %d", updated)
	}

	if err := s.DeleteNotification(ctx, "missing"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound deleting missing notification, got %v", err)
	}
}

func TestDeleteMessageNotification(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	data, _ := json.Marshal(map[string]string{"messageId": "m1", "senderId": "u2"})
	if err := s.CreateNotification(ctx, &store.Notification{
		ID: "n1", RecipientID: "u1", SenderID: "u2",
		Type: store.NotificationDirectMessage, Title: "New Message", Message: "hi", Data: data,
	}); err != nil {
		t.Fatalf("create: %v", err)
	}

	deleted, err := s.DeleteMessageNotification(ctx, "u2", "m1")
	if err != nil {
		t.Fatalf("delete wrong recipient: %v", err)
	}
	if deleted {
		t.Fatalf("notification of another recipient must not be deleted")
	}

	deleted, err = s.DeleteMessageNotification(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("delete: %v", err)
	}
	if !deleted {
		t.Fatalf("expected notification to be deleted")
	}

	deleted, err = s.DeleteMessageNotification(ctx, "u1", "m1")
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if deleted {
		t.Fatalf("second delete must be a no-op")
	}
}

func TestReceiptsAreAppendOnce(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msg := &store.DirectMessage{
		ID:          "m1",
		SenderID:    "u1",
		ReceiverID:  "u2",
		Content:     "hello",
		Attachments: []store.Attachment{{Name: "a.txt", URL: "/uploads/a.txt", Type: "text/plain", Size: 3}},
		DeliveredTo: []store.Receipt{{UserID: "u2", At: at}},
		CreatedAt:   at,
	}
	if err := s.CreateDirectMessage(ctx, msg); err != nil {
		t.Fatalf("create message: %v", err)
	}

	added, err := s.AddReceipt(ctx, "m1", "u2", store.ReceiptRead, at.Add(time.Second))
	if err != nil || !added {
		t.Fatalf("first read receipt: added=%v err=%v", added, err)
	}
	added, err = s.AddReceipt(ctx, "m1", "u2", store.ReceiptRead, at.Add(2*time.Second))
	if err != nil {
		t.Fatalf("second read receipt: %v", err)
	}
	if added {
		t.Fatalf("second read receipt must not be appended")
	}

	got, err := s.GetDirectMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if len(got.ReadBy) != 1 || got.ReadBy[0].UserID != "u2" {
		t.Fatalf("expected exactly one read receipt, got %+v", got.ReadBy)
	}
	if len(got.DeliveredTo) != 1 || got.DeliveredTo[0].UserID != "u2" {
		t.Fatalf("expected delivery receipt for receiver, got %+v", got.DeliveredTo)
	}
	if len(got.Attachments) != 1 || got.Attachments[0].Name != "a.txt" {
		t.Fatalf("attachments not round-tripped: %+v", got.Attachments)
	}
}

func TestListConversation(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	msgs := []*store.DirectMessage{
		{ID: "m1", SenderID: "u1", ReceiverID: "u2", Content: "one", CreatedAt: base},
		{ID: "m2", SenderID: "u2", ReceiverID: "u1", Content: "two", CreatedAt: base.Add(time.Second)},
		{ID: "m3", SenderID: "u1", ReceiverID: "u3", Content: "elsewhere", CreatedAt: base.Add(2 * time.Second)},
		{ID: "m4", SenderID: "u1", ReceiverID: "u2", Content: "four", CreatedAt: base.Add(3 * time.Second)},
	}
	for _, m := range msgs {
		if err := s.CreateDirectMessage(ctx, m); err != nil {
			t.Fatalf("create %s: %v", m.ID, err)
		}
	}
	if err := s.SoftDeleteDirectMessage(ctx, "m4", base.Add(time.Hour)); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	tests := []struct {
		name     string
		limit    int
		skip     int
		expected []string
	}{
		{name: "all", limit: 50, expected: []string{"m1", "m2"}},
		{name: "limit newest", limit: 1, expected: []string{"m2"}},
		{name: "skip newest", limit: 50, skip: 1, expected: []string{"m1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListConversation(ctx, "u2", "u1", tt.limit, tt.skip)
			if err != nil {
				t.Fatalf("list conversation: %v", err)
			}
			if len(got) != len(tt.expected) {
				t.Fatalf("expected %d messages, got %d", len(tt.expected), len(got))
			}
			for i, m := range got {
				if m.ID != tt.expected[i] {
					t.Errorf("expected %s at index %d, got %s", tt.expected[i], i, m.ID)
				}
			}
		})
	}
}

func TestWorkspaceMembership(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.AddWorkspaceMember(ctx, "w1", "u1"); err != nil {
		t.Fatalf("add member: %v", err)
	}
	// Adding twice is a no-op.
	if err := s.AddWorkspaceMember(ctx, "w1", "u1"); err != nil {
		t.Fatalf("add member again: %v", err)
	}

	ok, err := s.IsWorkspaceMember(ctx, "w1", "u1")
	if err != nil || !ok {
		t.Fatalf("expected member, got ok=%v err=%v", ok, err)
	}
	ok, err = s.IsWorkspaceMember(ctx, "w1", "u2")
	if err != nil || ok {
		t.Fatalf("expected non-member, got ok=%v err=%v", ok, err)
	}

	if err := s.RemoveWorkspaceMember(ctx, "w1", "u1"); err != nil {
		t.Fatalf("remove member: %v", err)
	}
	ok, err = s.IsWorkspaceMember(ctx, "w1", "u1")
	if err != nil || ok {
		t.Fatalf("expected membership removed, got ok=%v err=%v", ok, err)
	}
}
