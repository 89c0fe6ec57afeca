package core

import "encoding/json"

// Inbound event names relayed between clients.
const (
	EventJoinWorkspace     = "join-workspace"
	EventLeaveWorkspace    = "leave-workspace"
	EventTaskCreated       = "task-created"
	EventTaskUpdated       = "task-updated"
	EventTaskDeleted       = "task-deleted"
	EventTaskMoved         = "task-moved"
	EventDocumentJoin      = "document-join"
	EventDocumentLeave     = "document-leave"
	EventDocumentChange    = "document-change"
	EventDocumentCursor    = "document-cursor"
	EventChatMessage       = "chat-message"
	EventTyping            = "typing"
	EventWorkspaceMessage  = "workspace-message"
	EventWorkspaceTyping   = "workspace-typing"
	EventCommentAdded      = "comment-added"
	EventFileUploaded      = "file-uploaded"
	EventNotification      = "notification"
	EventTeamMemberAdded   = "team-member-added"
	EventTeamMemberRemoved = "team-member-removed"
	EventWorkspaceUpdated  = "workspace-updated"
	EventBoardCreated      = "board-created"
	EventMemberAdded       = "member-added"
	EventMemberRemoved     = "member-removed"
	EventDirectTyping      = "direct-typing"
	EventMessageRead       = "message-read"
)

// Events originated by the relay itself.
const (
	EventReady               = "ready"
	EventUserOnline          = "user-online"
	EventUserOffline         = "user-offline"
	EventUserJoined          = "user-joined"
	EventUserLeft            = "user-left"
	EventMessageReadUpdate   = "message-read-update"
	EventNotificationDeleted = "notification-deleted"
	EventDirectMessage       = "direct-message"
)

// Event is sent to clients to describe what happened in the system.
// Error is set for protocol errors; Data holds the JSON payload otherwise.
type Event struct {
	Name  string
	Data  json.RawMessage
	Error *CoreError
}
