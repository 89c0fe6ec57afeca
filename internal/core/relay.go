package core

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"

	"github.com/vovakirdan/collab-relay/internal/store"
)

func (h *Hub) routes() map[string]handlerFunc {
	return map[string]handlerFunc{
		EventJoinWorkspace:     h.relayJoinWorkspace,
		EventLeaveWorkspace:    h.relayLeaveWorkspace,
		EventTaskCreated:       h.relayTaskCreated,
		EventTaskUpdated:       h.relayTaskUpdated,
		EventTaskDeleted:       h.forwardField(EventTaskDeleted, "taskId"),
		EventTaskMoved:         h.forwardWhole(EventTaskMoved),
		EventDocumentJoin:      h.relayDocumentJoin,
		EventDocumentLeave:     h.relayDocumentLeave,
		EventDocumentChange:    h.relayDocumentChange,
		EventDocumentCursor:    h.relayDocumentCursor,
		EventChatMessage:       h.relayChatMessage,
		EventTyping:            h.relayTyping(EventTyping),
		EventWorkspaceMessage:  h.forwardField(EventWorkspaceMessage, "message"),
		EventWorkspaceTyping:   h.relayTyping(EventWorkspaceTyping),
		EventCommentAdded:      h.relayCommentAdded,
		EventFileUploaded:      h.relayFileUploaded,
		EventNotification:      h.relayPersonalNotification(EventNotification),
		EventTeamMemberAdded:   h.relayPersonalNotification(EventTeamMemberAdded),
		EventTeamMemberRemoved: h.relayPersonalNotification(EventTeamMemberRemoved),
		EventWorkspaceUpdated:  h.forwardWhole(EventWorkspaceUpdated),
		EventBoardCreated:      h.forwardWhole(EventBoardCreated),
		EventMemberAdded:       h.relayMemberChange(EventMemberAdded),
		EventMemberRemoved:     h.relayMemberChange(EventMemberRemoved),
		EventDirectTyping:      h.relayDirectTyping,
		EventMessageRead:       h.relayMessageRead,
	}
}

func (h *Hub) dropMalformed(c *Client, event, reason string) {
	h.log.Debug().Str("event", event).Str("client_id", c.ID).Str("reason", reason).Msg("malformed payload dropped")
}

// allowJoin consults the room policy. Rejections are logged, never reported to the client.
func (h *Hub) allowJoin(ctx context.Context, c *Client, room string) bool {
	ok, err := h.policy.CanJoin(ctx, c.UserID, room)
	if err != nil {
		h.log.Warn().Err(err).Str("room", room).Str("user_id", c.UserID).Msg("room policy check failed")
		return false
	}
	if !ok {
		h.log.Info().Str("room", room).Str("user_id", c.UserID).Msg("room join rejected")
	}
	return ok
}

func (h *Hub) relayJoinWorkspace(ctx context.Context, c *Client, data json.RawMessage) {
	id := routingID(data, "workspaceId")
	if id == "" {
		h.dropMalformed(c, EventJoinWorkspace, "missing workspace id")
		return
	}
	room := WorkspaceRoom(id)
	if !h.allowJoin(ctx, c, room) {
		return
	}
	h.joinRoom(c, room)
}

func (h *Hub) relayLeaveWorkspace(_ context.Context, c *Client, data json.RawMessage) {
	id := routingID(data, "workspaceId")
	if id == "" {
		h.dropMalformed(c, EventLeaveWorkspace, "missing workspace id")
		return
	}
	h.leaveRoom(c, WorkspaceRoom(id))
}

// forwardWhole relays the entire payload to the workspace room.
func (h *Hub) forwardWhole(name string) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) {
		ws := gjson.GetBytes(data, "workspaceId").String()
		if ws == "" {
			h.dropMalformed(c, name, "missing workspace id")
			return
		}
		h.emitRoom(WorkspaceRoom(ws), c, name, data)
	}
}

// forwardField relays one field of the payload to the workspace room.
func (h *Hub) forwardField(name, field string) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) {
		ws := gjson.GetBytes(data, "workspaceId").String()
		if ws == "" {
			h.dropMalformed(c, name, "missing workspace id")
			return
		}
		h.emitRoom(WorkspaceRoom(ws), c, name, raw(gjson.GetBytes(data, field)))
	}
}

func (h *Hub) relayTaskCreated(ctx context.Context, c *Client, data json.RawMessage) {
	ws := gjson.GetBytes(data, "workspaceId").String()
	task := gjson.GetBytes(data, "task")
	if ws == "" || !task.Exists() {
		h.dropMalformed(c, EventTaskCreated, "missing workspace id or task")
		return
	}
	h.emitRoom(WorkspaceRoom(ws), c, EventTaskCreated, raw(task))

	personal, _ := newPayload().set("type", store.NotificationTaskAssigned).setRaw("task", raw(task)).bytes()
	h.notify(ctx, c, idList(task.Get("assignees")), notificationDraft{
		Type:     store.NotificationTaskAssigned,
		Title:    "New Task Assigned",
		Message:  fmt.Sprintf("You have been assigned to task: %s", task.Get("title").String()),
		Link:     fmt.Sprintf("/workspace/%s/board/%s", ws, task.Get("board").String()),
		Data:     map[string]any{"taskId": entityID(task)},
		Personal: personal,
	})
}

func (h *Hub) relayTaskUpdated(ctx context.Context, c *Client, data json.RawMessage) {
	ws := gjson.GetBytes(data, "workspaceId").String()
	task := gjson.GetBytes(data, "task")
	if ws == "" || !task.Exists() {
		h.dropMalformed(c, EventTaskUpdated, "missing workspace id or task")
		return
	}
	h.emitRoom(WorkspaceRoom(ws), c, EventTaskUpdated, raw(task))

	h.notify(ctx, c, idList(task.Get("assignees")), notificationDraft{
		Type:    store.NotificationTaskUpdated,
		Title:   "Task Updated",
		Message: fmt.Sprintf("Task %q has been updated", task.Get("title").String()),
		Link:    fmt.Sprintf("/workspace/%s/board/%s", ws, task.Get("board").String()),
		Data:    map[string]any{"taskId": entityID(task)},
	})
}

func (h *Hub) relayDocumentJoin(ctx context.Context, c *Client, data json.RawMessage) {
	id := routingID(data, "documentId")
	if id == "" {
		h.dropMalformed(c, EventDocumentJoin, "missing document id")
		return
	}
	room := DocumentRoom(id)
	if !h.allowJoin(ctx, c, room) || !h.joinRoom(c, room) {
		return
	}
	out, _ := newPayload().set("userId", c.UserID).set("documentId", id).bytes()
	h.emitRoom(room, c, EventUserJoined, out)
}

func (h *Hub) relayDocumentLeave(_ context.Context, c *Client, data json.RawMessage) {
	id := routingID(data, "documentId")
	if id == "" {
		h.dropMalformed(c, EventDocumentLeave, "missing document id")
		return
	}
	room := DocumentRoom(id)
	if !h.leaveRoom(c, room) {
		return
	}
	out, _ := newPayload().set("userId", c.UserID).set("documentId", id).bytes()
	h.emitRoom(room, c, EventUserLeft, out)
}

func (h *Hub) relayDocumentChange(_ context.Context, c *Client, data json.RawMessage) {
	doc := gjson.GetBytes(data, "documentId").String()
	if doc == "" {
		h.dropMalformed(c, EventDocumentChange, "missing document id")
		return
	}
	out, _ := newPayload().
		setRaw("content", raw(gjson.GetBytes(data, "content"))).
		set("userId", c.UserID).
		set("timestamp", h.now().UnixMilli()).
		bytes()
	h.emitRoom(DocumentRoom(doc), c, EventDocumentChange, out)
}

func (h *Hub) relayDocumentCursor(_ context.Context, c *Client, data json.RawMessage) {
	doc := gjson.GetBytes(data, "documentId").String()
	if doc == "" {
		h.dropMalformed(c, EventDocumentCursor, "missing document id")
		return
	}
	out, _ := newPayload().
		set("userId", c.UserID).
		setRaw("position", raw(gjson.GetBytes(data, "position"))).
		bytes()
	h.emitRoom(DocumentRoom(doc), c, EventDocumentCursor, out)
}

func (h *Hub) relayChatMessage(ctx context.Context, c *Client, data json.RawMessage) {
	ws := gjson.GetBytes(data, "workspaceId").String()
	msg := gjson.GetBytes(data, "message")
	if ws == "" || !msg.Exists() {
		h.dropMalformed(c, EventChatMessage, "missing workspace id or message")
		return
	}
	h.emitRoom(WorkspaceRoom(ws), c, EventChatMessage, raw(msg))

	personal, _ := newPayload().set("type", store.NotificationMention).setRaw("message", raw(msg)).bytes()
	h.notify(ctx, c, idList(msg.Get("mentions")), notificationDraft{
		Type:     store.NotificationMention,
		Title:    "You were mentioned",
		Message:  fmt.Sprintf("%s mentioned you in a message", displayName(data, "senderName", msg, "sender.name")),
		Link:     fmt.Sprintf("/workspace/%s/chat", ws),
		Data:     map[string]any{"messageId": entityID(msg)},
		Personal: personal,
	})
}

// relayTyping emits the sender's typing state under the given event name.
func (h *Hub) relayTyping(name string) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) {
		ws := gjson.GetBytes(data, "workspaceId").String()
		if ws == "" {
			h.dropMalformed(c, name, "missing workspace id")
			return
		}
		h.emitRoom(WorkspaceRoom(ws), c, name, typingPayload(c, data))
	}
}

// displayName reads the actor's name from the top-level field, falling back to
// a path inside the relayed entity.
func displayName(data []byte, field string, entity gjson.Result, path string) string {
	if name := gjson.GetBytes(data, field).String(); name != "" {
		return name
	}
	return entity.Get(path).String()
}

func typingPayload(c *Client, data []byte) []byte {
	out, _ := newPayload().
		set("userId", c.UserID).
		set("userName", gjson.GetBytes(data, "userName").String()).
		set("isTyping", gjson.GetBytes(data, "isTyping").Bool()).
		bytes()
	return out
}

func (h *Hub) relayCommentAdded(ctx context.Context, c *Client, data json.RawMessage) {
	ws := gjson.GetBytes(data, "workspaceId").String()
	comment := gjson.GetBytes(data, "comment")
	if ws == "" || !comment.Exists() {
		h.dropMalformed(c, EventCommentAdded, "missing workspace id or comment")
		return
	}
	h.emitRoom(WorkspaceRoom(ws), c, EventCommentAdded, raw(comment))

	h.notify(ctx, c, idList(comment.Get("mentions")), notificationDraft{
		Type:    store.NotificationMention,
		Title:   "You were mentioned",
		Message: fmt.Sprintf("%s mentioned you in a comment", displayName(data, "authorName", comment, "author.name")),
		Link:    fmt.Sprintf("/workspace/%s/task/%s", ws, comment.Get("task").String()),
		Data:    map[string]any{"commentId": entityID(comment)},
	})
}

func (h *Hub) relayFileUploaded(ctx context.Context, c *Client, data json.RawMessage) {
	ws := gjson.GetBytes(data, "workspaceId").String()
	file := gjson.GetBytes(data, "file")
	if ws == "" || !file.Exists() {
		h.dropMalformed(c, EventFileUploaded, "missing workspace id or file")
		return
	}
	h.emitRoom(WorkspaceRoom(ws), c, EventFileUploaded, raw(file))

	h.notify(ctx, c, idList(gjson.GetBytes(data, "workspaceMembers")), notificationDraft{
		Type:    store.NotificationFileUploaded,
		Title:   "New File Uploaded",
		Message: fmt.Sprintf("%s uploaded %s", displayName(data, "uploaderName", file, "uploadedBy.name"), file.Get("name").String()),
		Link:    fmt.Sprintf("/workspace/%s/files", ws),
		Data:    map[string]any{"fileId": entityID(file)},
	})
}

// relayPersonalNotification forwards a ready-made notification to one identity.
// The outbound event is always a notification, whatever the inbound name.
func (h *Hub) relayPersonalNotification(name string) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) {
		recipient := gjson.GetBytes(data, "recipientId").String()
		if recipient == "" {
			h.dropMalformed(c, name, "missing recipient id")
			return
		}
		h.emitRoom(UserRoom(recipient), c, EventNotification, raw(gjson.GetBytes(data, "notification")))
	}
}

func (h *Hub) relayMemberChange(name string) handlerFunc {
	return func(_ context.Context, c *Client, data json.RawMessage) {
		ws := gjson.GetBytes(data, "workspaceId").String()
		if ws == "" {
			h.dropMalformed(c, name, "missing workspace id")
			return
		}
		h.emitRoom(WorkspaceRoom(ws), c, name, data)
		if team := gjson.GetBytes(data, "teamId").String(); team != "" {
			h.emitRoom(TeamRoom(team), c, name, data)
		}
	}
}

func (h *Hub) relayDirectTyping(_ context.Context, c *Client, data json.RawMessage) {
	receiver := gjson.GetBytes(data, "receiverId").String()
	if receiver == "" {
		h.dropMalformed(c, EventDirectTyping, "missing receiver id")
		return
	}
	h.emitRoom(UserRoom(receiver), c, EventDirectTyping, typingPayload(c, data))
}

// notificationDraft describes the notification created for each recipient.
type notificationDraft struct {
	Type    store.NotificationType
	Title   string
	Message string
	Link    string
	Data    map[string]any

	// Personal, when set, is emitted as a notification event to each recipient.
	Personal []byte
}

// notify fans a draft out to recipients, skipping the actor and duplicates.
// Personal events go out immediately; persistence runs as a background task.
func (h *Hub) notify(ctx context.Context, actor *Client, recipients []string, d notificationDraft) {
	if len(recipients) == 0 {
		return
	}
	extra, err := json.Marshal(d.Data)
	if err != nil {
		h.log.Warn().Err(err).Str("type", string(d.Type)).Msg("failed to encode notification data")
		return
	}

	seen := make(map[string]struct{}, len(recipients))
	for _, recipient := range recipients {
		if recipient == actor.UserID {
			continue
		}
		if _, dup := seen[recipient]; dup {
			continue
		}
		seen[recipient] = struct{}{}

		if d.Personal != nil {
			h.emitRoom(UserRoom(recipient), actor, EventNotification, d.Personal)
		}
		if h.store == nil {
			continue
		}
		n := &store.Notification{
			ID:          uuid.NewString(),
			RecipientID: recipient,
			SenderID:    actor.UserID,
			Type:        d.Type,
			Title:       d.Title,
			Message:     d.Message,
			Link:        d.Link,
			Data:        extra,
			CreatedAt:   h.now(),
		}
		h.tasks.Go(ctx, "create-notification", func(ctx context.Context) error {
			if err := h.store.CreateNotification(ctx, n); err != nil {
				return fmt.Errorf("create %s notification for %s: %w", n.Type, n.RecipientID, err)
			}
			return nil
		})
	}
}
