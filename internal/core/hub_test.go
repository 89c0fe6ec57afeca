package core

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/tidwall/gjson"

	"github.com/vovakirdan/collab-relay/internal/store"
)

func send(c *Client, event string, data string) {
	c.Commands <- &Command{Event: event, Data: json.RawMessage(data)}
}

func TestHubRelayExcludesEmitter(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	send(alice, EventJoinWorkspace, `"W1"`)
	send(bob, EventJoinWorkspace, `{"workspaceId":"W1"}`)
	waitMembers(t, hub, WorkspaceRoom("W1"), 2)

	payload := `{"workspaceId":"W1","taskId":"T1","sourceColumn":"todo","targetColumn":"done"}`
	send(alice, EventTaskMoved, payload)

	ev := mustEvent(t, bob.Events, EventTaskMoved)
	if string(ev.Data) != payload {
		t.Fatalf("expected whole payload relayed, got %s", ev.Data)
	}
	expectNoEvent(t, alice.Events, EventTaskMoved, 200*time.Millisecond)
}

func TestHubJoinIsIdempotent(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")

	send(alice, EventJoinWorkspace, `"W1"`)
	send(alice, EventJoinWorkspace, `"W1"`)
	waitMembers(t, hub, WorkspaceRoom("W1"), 1)

	rooms, err := hub.ClientRooms(alice)
	if err != nil {
		t.Fatalf("client rooms: %v", err)
	}
	if len(rooms) != 2 || rooms[0] != "user-alice" || rooms[1] != "workspace-W1" {
		t.Fatalf("unexpected rooms after double join: %v", rooms)
	}

	send(alice, EventLeaveWorkspace, `"W1"`)
	waitMembers(t, hub, WorkspaceRoom("W1"), 0)

	// Leaving a room that is not joined is a no-op.
	send(alice, EventLeaveWorkspace, `"W1"`)
	send(alice, EventLeaveWorkspace, `"W2"`)
	eventually(t, "only the personal room left", func() bool {
		rooms, err := hub.ClientRooms(alice)
		return err == nil && len(rooms) == 1 && rooms[0] == "user-alice"
	})
}

func TestHubTaskCreatedAfterLeaveIsNotDelivered(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	send(alice, EventJoinWorkspace, `"W1"`)
	send(bob, EventJoinWorkspace, `"W1"`)
	waitMembers(t, hub, WorkspaceRoom("W1"), 2)

	send(bob, EventLeaveWorkspace, `"W1"`)
	waitMembers(t, hub, WorkspaceRoom("W1"), 1)

	send(alice, EventTaskCreated, `{"workspaceId":"W1","task":{"_id":"T1","title":"Write docs"}}`)
	expectNoEvent(t, bob.Events, EventTaskCreated, 200*time.Millisecond)
}

func TestHubDocumentJoinAnnouncesPeers(t *testing.T) {
	fixed := time.UnixMilli(1767225600000)
	hub := startHub(t, nil, WithClock(func() time.Time { return fixed }))

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	send(alice, EventDocumentJoin, `"D1"`)
	waitMembers(t, hub, DocumentRoom("D1"), 1)
	send(bob, EventDocumentJoin, `{"documentId":"D1"}`)

	joined := mustEvent(t, alice.Events, EventUserJoined)
	if gjson.GetBytes(joined.Data, "userId").String() != "bob" || gjson.GetBytes(joined.Data, "documentId").String() != "D1" {
		t.Fatalf("unexpected user-joined payload: %s", joined.Data)
	}
	expectNoEvent(t, bob.Events, EventUserJoined, 100*time.Millisecond)

	send(bob, EventDocumentChange, `{"documentId":"D1","content":{"ops":[1,2]},"userId":"spoofed"}`)
	change := mustEvent(t, alice.Events, EventDocumentChange)
	if got := gjson.GetBytes(change.Data, "userId").String(); got != "bob" {
		t.Fatalf("expected change attributed to bob, got %q", got)
	}
	if got := gjson.GetBytes(change.Data, "timestamp").Int(); got != fixed.UnixMilli() {
		t.Fatalf("unexpected timestamp %d", got)
	}
	if got := gjson.GetBytes(change.Data, "content").Raw; got != `{"ops":[1,2]}` {
		t.Fatalf("unexpected content %s", got)
	}

	send(bob, EventDocumentLeave, `"D1"`)
	left := mustEvent(t, alice.Events, EventUserLeft)
	if gjson.GetBytes(left.Data, "userId").String() != "bob" {
		t.Fatalf("unexpected user-left payload: %s", left.Data)
	}
}

func TestHubTypingCarriesConnectionIdentity(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	send(bob, EventDirectTyping, `{"receiverId":"alice","userName":"Bob","isTyping":true}`)
	ev := mustEvent(t, alice.Events, EventDirectTyping)
	if gjson.GetBytes(ev.Data, "userId").String() != "bob" || !gjson.GetBytes(ev.Data, "isTyping").Bool() {
		t.Fatalf("unexpected direct-typing payload: %s", ev.Data)
	}
	if gjson.GetBytes(ev.Data, "userName").String() != "Bob" {
		t.Fatalf("expected userName passed through, got %s", ev.Data)
	}
}

func TestHubPersonalNotificationRouting(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	bobPhone := connect(t, hub, "b2", "bob")

	send(alice, EventTeamMemberAdded, `{"recipientId":"bob","notification":{"title":"Welcome"}}`)

	for _, c := range []*Client{bob, bobPhone} {
		ev := mustEvent(t, c.Events, EventNotification)
		if gjson.GetBytes(ev.Data, "title").String() != "Welcome" {
			t.Fatalf("unexpected notification payload: %s", ev.Data)
		}
	}
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestHubMalformedPersonalNotificationLogsInboundEvent(t *testing.T) {
	logs := &lockedBuffer{}
	logger := zerolog.New(logs).Level(zerolog.DebugLevel)
	hub := startHub(t, nil, WithLogger(&logger))

	alice := connect(t, hub, "a", "alice")

	for _, event := range []string{EventTeamMemberAdded, EventTeamMemberRemoved} {
		send(alice, event, `{"notification":{"title":"orphan"}}`)
		want := `"event":"` + event + `","client_id":"a","reason":"missing recipient id"`
		eventually(t, event+" drop logged", func() bool {
			return strings.Contains(logs.String(), want)
		})
	}
}

func TestHubUnknownEventProducesError(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	send(alice, "does-not-exist", `{}`)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case ev := <-alice.Events:
			if ev.Error == nil {
				continue
			}
			if ev.Error.Code != ErrCodeUnknownEvent {
				t.Fatalf("expected %s, got %+v", ErrCodeUnknownEvent, ev.Error)
			}
			return
		case <-deadline:
			t.Fatal("expected error event")
		}
	}
}

func TestHubTaskCreatedNotifiesAssignees(t *testing.T) {
	st := newSQLiteStore(t)
	hub := startHub(t, st)

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	send(alice, EventTaskCreated, `{"workspaceId":"W1","task":{"_id":"T1","title":"Ship it","board":"B1","assignees":["bob",{"_id":"alice"},"bob"]}}`)

	ev := mustEvent(t, bob.Events, EventNotification)
	if gjson.GetBytes(ev.Data, "type").String() != "task_assigned" || gjson.GetBytes(ev.Data, "task._id").String() != "T1" {
		t.Fatalf("unexpected personal notification: %s", ev.Data)
	}
	expectNoEvent(t, alice.Events, EventNotification, 100*time.Millisecond)

	ctx := context.Background()
	eventually(t, "notification persisted", func() bool {
		n, err := st.CountNotifications(ctx, "bob", false)
		return err == nil && n == 1
	})
	list, err := st.ListNotifications(ctx, "bob", store.NotificationFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	n := list[0]
	if n.Type != store.NotificationTaskAssigned || n.SenderID != "alice" || n.Link != "/workspace/W1/board/B1" {
		t.Fatalf("unexpected notification: %+v", n)
	}
	if gjson.GetBytes(n.Data, "taskId").String() != "T1" {
		t.Fatalf("unexpected notification data: %s", n.Data)
	}

	if count, err := st.CountNotifications(ctx, "alice", false); err != nil || count != 0 {
		t.Fatalf("actor must not be notified, got %d (%v)", count, err)
	}
}

func TestHubNotificationSideEffects(t *testing.T) {
	tests := []struct {
		name        string
		event       string
		payload     string
		wantType    store.NotificationType
		wantTitle   string
		wantMessage string
		wantLink    string
		dataKey     string
		dataValue   string
		personal    bool
	}{
		{
			name:        "chat mention",
			event:       EventChatMessage,
			payload:     `{"workspaceId":"W1","senderName":"Alice","message":{"_id":"M1","content":"hey","mentions":["bob","bob","alice"]}}`,
			wantType:    store.NotificationMention,
			wantTitle:   "You were mentioned",
			wantMessage: "Alice mentioned you in a message",
			wantLink:    "/workspace/W1/chat",
			dataKey:     "messageId",
			dataValue:   "M1",
			personal:    true,
		},
		{
			name:        "chat mention with nested sender",
			event:       EventChatMessage,
			payload:     `{"workspaceId":"W1","message":{"_id":"M2","sender":{"name":"Al"},"mentions":[{"_id":"bob"}]}}`,
			wantType:    store.NotificationMention,
			wantTitle:   "You were mentioned",
			wantMessage: "Al mentioned you in a message",
			wantLink:    "/workspace/W1/chat",
			dataKey:     "messageId",
			dataValue:   "M2",
			personal:    true,
		},
		{
			name:        "task updated",
			event:       EventTaskUpdated,
			payload:     `{"workspaceId":"W1","task":{"_id":"T1","title":"Ship it","board":"B1","assignees":["bob","alice"]}}`,
			wantType:    store.NotificationTaskUpdated,
			wantTitle:   "Task Updated",
			wantMessage: `Task "Ship it" has been updated`,
			wantLink:    "/workspace/W1/board/B1",
			dataKey:     "taskId",
			dataValue:   "T1",
		},
		{
			name:        "comment mention",
			event:       EventCommentAdded,
			payload:     `{"workspaceId":"W1","authorName":"Alice","comment":{"_id":"C1","task":"T9","mentions":[{"_id":"bob"},"bob"]}}`,
			wantType:    store.NotificationMention,
			wantTitle:   "You were mentioned",
			wantMessage: "Alice mentioned you in a comment",
			wantLink:    "/workspace/W1/task/T9",
			dataKey:     "commentId",
			dataValue:   "C1",
		},
		{
			name:        "file uploaded",
			event:       EventFileUploaded,
			payload:     `{"workspaceId":"W1","uploaderName":"Alice","file":{"_id":"F1","name":"plan.pdf"},"workspaceMembers":["alice","bob","bob"]}`,
			wantType:    store.NotificationFileUploaded,
			wantTitle:   "New File Uploaded",
			wantMessage: "Alice uploaded plan.pdf",
			wantLink:    "/workspace/W1/files",
			dataKey:     "fileId",
			dataValue:   "F1",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			st := newSQLiteStore(t)
			hub := startHub(t, st)
			ctx := context.Background()

			alice := connect(t, hub, "a", "alice")
			bob := connect(t, hub, "b", "bob")

			send(alice, tt.event, tt.payload)

			if tt.personal {
				ev := mustEvent(t, bob.Events, EventNotification)
				if gjson.GetBytes(ev.Data, "type").String() != string(tt.wantType) {
					t.Fatalf("unexpected personal notification: %s", ev.Data)
				}
			}
			// No second personal event for a repeated recipient, none at all for persisted-only kinds.
			expectNoEvent(t, bob.Events, EventNotification, 150*time.Millisecond)
			expectNoEvent(t, alice.Events, EventNotification, 10*time.Millisecond)

			eventually(t, "notification persisted", func() bool {
				n, err := st.CountNotifications(ctx, "bob", false)
				return err == nil && n > 0
			})
			list, err := st.ListNotifications(ctx, "bob", store.NotificationFilter{})
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			if len(list) != 1 {
				t.Fatalf("expected one notification for a repeated recipient, got %d", len(list))
			}
			n := list[0]
			if n.Type != tt.wantType || n.Title != tt.wantTitle || n.Message != tt.wantMessage || n.Link != tt.wantLink {
				t.Fatalf("unexpected notification: %+v", n)
			}
			if n.SenderID != "alice" {
				t.Fatalf("expected sender alice, got %q", n.SenderID)
			}
			if got := gjson.GetBytes(n.Data, tt.dataKey).String(); got != tt.dataValue {
				t.Fatalf("expected data %s=%s, got %s", tt.dataKey, tt.dataValue, n.Data)
			}

			if count, err := st.CountNotifications(ctx, "alice", false); err != nil || count != 0 {
				t.Fatalf("actor must not be notified, got %d (%v)", count, err)
			}
		})
	}
}

func TestHubShutdownMarksConnectedIdentitiesOffline(t *testing.T) {
	st := newSQLiteStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	hub := NewHub(st)
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	connect(t, hub, "a1", "alice")
	connect(t, hub, "a2", "alice")
	eventually(t, "alice online", func() bool {
		p, err := st.GetPresence(context.Background(), "alice")
		return err == nil && p.IsOnline
	})

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("hub did not stop")
	}

	p, err := st.GetPresence(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get presence: %v", err)
	}
	if p.IsOnline {
		t.Fatalf("alice must be offline once the hub stopped, got %+v", p)
	}
}

func TestHubPresenceIsCountBased(t *testing.T) {
	st := newSQLiteStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	watcher := connect(t, hub, "w", "watcher")

	first := connect(t, hub, "a1", "alice")
	online := mustEvent(t, watcher.Events, EventUserOnline)
	if gjson.GetBytes(online.Data, "userId").String() != "alice" {
		t.Fatalf("unexpected user-online payload: %s", online.Data)
	}
	eventually(t, "alice online", func() bool {
		p, err := st.GetPresence(ctx, "alice")
		return err == nil && p.IsOnline
	})

	second := connect(t, hub, "a2", "alice")
	expectNoEvent(t, watcher.Events, EventUserOnline, 100*time.Millisecond)

	hub.UnregisterClient(first)
	expectNoEvent(t, watcher.Events, EventUserOffline, 200*time.Millisecond)
	if n, err := hub.ConnectionCount("alice"); err != nil || n != 1 {
		t.Fatalf("expected one live connection, got %d (%v)", n, err)
	}
	if p, err := st.GetPresence(ctx, "alice"); err != nil || !p.IsOnline {
		t.Fatalf("alice must stay online while a connection is open: %+v (%v)", p, err)
	}

	hub.UnregisterClient(second)
	offline := mustEvent(t, watcher.Events, EventUserOffline)
	if gjson.GetBytes(offline.Data, "userId").String() != "alice" {
		t.Fatalf("unexpected user-offline payload: %s", offline.Data)
	}
	eventually(t, "alice offline", func() bool {
		p, err := st.GetPresence(ctx, "alice")
		return err == nil && !p.IsOnline
	})
}

func TestHubUnregisterClosesEvents(t *testing.T) {
	hub := startHub(t, nil)

	alice := connect(t, hub, "a", "alice")
	hub.UnregisterClient(alice)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case _, ok := <-alice.Events:
			if !ok {
				return
			}
		case <-deadline:
			t.Fatal("events channel not closed")
		}
	}
}

func seedDirectMessage(t *testing.T, st store.DirectMessageStore, id, from, to string) {
	t.Helper()

	if err := st.CreateDirectMessage(context.Background(), &store.DirectMessage{
		ID: id, SenderID: from, ReceiverID: to, Content: "hi",
		DeliveredTo: []store.Receipt{{UserID: to, At: time.Now()}},
		CreatedAt:   time.Now(),
	}); err != nil {
		t.Fatalf("seed message: %v", err)
	}
}

func TestHubMessageReadIsIdempotent(t *testing.T) {
	st := newSQLiteStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	seedDirectMessage(t, st, "m1", "alice", "bob")
	if err := st.CreateNotification(ctx, &store.Notification{
		ID: "n1", RecipientID: "bob", SenderID: "alice", Type: store.NotificationDirectMessage,
		Title: "New Message", Message: "alice sent you a message: hi...",
		Data: json.RawMessage(`{"messageId":"m1","senderId":"alice"}`),
	}); err != nil {
		t.Fatalf("seed notification: %v", err)
	}

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")
	bobTablet := connect(t, hub, "b2", "bob")

	send(bob, EventMessageRead, `{"messageId":"m1","readerId":"bob"}`)

	update := mustEvent(t, alice.Events, EventMessageReadUpdate)
	if gjson.GetBytes(update.Data, "messageId").String() != "m1" || gjson.GetBytes(update.Data, "readerId").String() != "bob" {
		t.Fatalf("unexpected read update: %s", update.Data)
	}
	deleted := mustEvent(t, bobTablet.Events, EventNotificationDeleted)
	if gjson.GetBytes(deleted.Data, "type").String() != "direct_message" {
		t.Fatalf("unexpected notification-deleted payload: %s", deleted.Data)
	}

	send(bob, EventMessageRead, `{"messageId":"m1","readerId":"bob"}`)
	expectNoEvent(t, alice.Events, EventMessageReadUpdate, 300*time.Millisecond)

	msg, err := st.GetDirectMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if len(msg.ReadBy) != 1 {
		t.Fatalf("expected exactly one read receipt, got %+v", msg.ReadBy)
	}
	if _, err := st.GetNotification(ctx, "n1"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected message notification removed, got %v", err)
	}
}

func TestHubMessageReadForAnotherIdentityIsDropped(t *testing.T) {
	st := newSQLiteStore(t)
	hub := startHub(t, st)

	seedDirectMessage(t, st, "m1", "alice", "bob")

	alice := connect(t, hub, "a", "alice")
	connect(t, hub, "b", "bob")

	// The sender claims the receiver read it.
	send(alice, EventMessageRead, `{"messageId":"m1","readerId":"bob"}`)
	expectNoEvent(t, alice.Events, EventMessageReadUpdate, 200*time.Millisecond)

	msg, err := st.GetDirectMessage(context.Background(), "m1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if len(msg.ReadBy) != 0 {
		t.Fatalf("expected no read receipt, got %+v", msg.ReadBy)
	}
}

func TestHubMessageReadOfDeletedMessageIsIgnored(t *testing.T) {
	st := newSQLiteStore(t)
	hub := startHub(t, st)
	ctx := context.Background()

	seedDirectMessage(t, st, "m1", "alice", "bob")
	if err := st.SoftDeleteDirectMessage(ctx, "m1", time.Now()); err != nil {
		t.Fatalf("soft delete: %v", err)
	}

	alice := connect(t, hub, "a", "alice")
	bob := connect(t, hub, "b", "bob")

	send(bob, EventMessageRead, `{"messageId":"m1","readerId":"bob"}`)
	expectNoEvent(t, alice.Events, EventMessageReadUpdate, 200*time.Millisecond)

	if _, err := MarkRead(ctx, st, "m1", "bob", time.Now()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for deleted message, got %v", err)
	}
	msg, err := st.GetDirectMessage(ctx, "m1")
	if err != nil {
		t.Fatalf("get message: %v", err)
	}
	if len(msg.ReadBy) != 0 {
		t.Fatalf("deleted message must not gain read receipts, got %+v", msg.ReadBy)
	}
}

type stubMembership map[string]bool

func (s stubMembership) IsWorkspaceMember(_ context.Context, workspaceID, userID string) (bool, error) {
	return s[workspaceID+"/"+userID], nil
}

func TestHubStrictPolicyRejectsNonMembers(t *testing.T) {
	policy := StrictPolicy{Workspaces: stubMembership{"W1/alice": true}}
	hub := startHub(t, nil, WithRoomPolicy(policy))

	alice := connect(t, hub, "a", "alice")
	mallory := connect(t, hub, "m", "mallory")

	send(alice, EventJoinWorkspace, `"W1"`)
	waitMembers(t, hub, WorkspaceRoom("W1"), 1)
	send(mallory, EventJoinWorkspace, `"W1"`)
	send(mallory, EventDocumentJoin, `"D1"`)
	waitMembers(t, hub, DocumentRoom("D1"), 1)

	members, err := hub.RoomMembers(WorkspaceRoom("W1"))
	if err != nil {
		t.Fatalf("room members: %v", err)
	}
	if len(members) != 1 || members[0] != "alice" {
		t.Fatalf("expected only alice in workspace room, got %v", members)
	}

	send(alice, EventChatMessage, `{"workspaceId":"W1","message":{"_id":"c1","content":"secret"}}`)
	expectNoEvent(t, mallory.Events, EventChatMessage, 200*time.Millisecond)
}

type recordingBridge struct {
	mu   sync.Mutex
	envs []Envelope
}

func (b *recordingBridge) Publish(env Envelope) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.envs = append(b.envs, env)
	return nil
}

func (b *recordingBridge) rooms(event string) []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, env := range b.envs {
		if env.Event == event {
			out = append(out, env.Room)
		}
	}
	return out
}

func TestHubMemberChangeReachesTeamRoom(t *testing.T) {
	bridge := &recordingBridge{}
	hub := startHub(t, nil, WithBridge(bridge))

	alice := connect(t, hub, "a", "alice")
	send(alice, EventMemberAdded, `{"workspaceId":"W1","teamId":"T9","member":{"_id":"carol"}}`)
	send(alice, EventMemberRemoved, `{"workspaceId":"W1","member":{"_id":"dave"}}`)

	eventually(t, "member-removed published", func() bool {
		return len(bridge.rooms(EventMemberRemoved)) == 1
	})
	added := bridge.rooms(EventMemberAdded)
	if len(added) != 2 || added[0] != "workspace-W1" || added[1] != "team-T9" {
		t.Fatalf("unexpected member-added rooms: %v", added)
	}
	if removed := bridge.rooms(EventMemberRemoved); removed[0] != "workspace-W1" {
		t.Fatalf("unexpected member-removed rooms: %v", removed)
	}
}

func TestHubDeliverDoesNotRepublish(t *testing.T) {
	bridge := &recordingBridge{}
	hub := startHub(t, nil, WithBridge(bridge))

	bob := connect(t, hub, "b", "bob")
	if err := hub.Deliver(Envelope{Origin: "other", Room: UserRoom("bob"), Event: EventNotification, Data: json.RawMessage(`{"title":"x"}`)}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	mustEvent(t, bob.Events, EventNotification)
	if got := bridge.rooms(EventNotification); len(got) != 0 {
		t.Fatalf("delivered envelope must not be republished, got %v", got)
	}
}

func TestHubEmitToUserAfterStop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	hub := NewHub(nil)
	done := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(done)
	}()

	bob := NewClient("b", "bob", 0)
	if err := hub.RegisterClient(bob); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := hub.EmitToUser("bob", EventNotification, map[string]string{"title": "hi"}); err != nil {
		t.Fatalf("emit: %v", err)
	}
	mustEvent(t, bob.Events, EventNotification)

	cancel()
	<-done
	if err := hub.EmitToUser("bob", EventNotification, nil); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped, got %v", err)
	}
	if err := hub.RegisterClient(NewClient("c", "carol", 0)); !errors.Is(err, ErrHubStopped) {
		t.Fatalf("expected ErrHubStopped on register, got %v", err)
	}
}
