package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Presence is the persisted online state of an identity.
type Presence struct {
	UserID   string
	IsOnline bool
	LastSeen time.Time
}

// NotificationType tags what a notification is about.
type NotificationType string

const (
	NotificationMention             NotificationType = "mention"
	NotificationTaskAssigned        NotificationType = "task_assigned"
	NotificationTaskUpdated         NotificationType = "task_updated"
	NotificationComment             NotificationType = "comment"
	NotificationMessage             NotificationType = "message"
	NotificationInvite              NotificationType = "invite"
	NotificationFileUploaded        NotificationType = "file_uploaded"
	NotificationDirectMessage       NotificationType = "direct_message"
	NotificationTeamInvite          NotificationType = "team_invite"
	NotificationTeamWorkspaceInvite NotificationType = "team_workspace_invite"
	NotificationTeamMemberAdded     NotificationType = "team_member_added"
	NotificationTeamMemberRemoved   NotificationType = "team_member_removed"
)

// Notification is a persisted, per-recipient alert.
type Notification struct {
	ID          string
	RecipientID string
	SenderID    string
	Type        NotificationType
	Title       string
	Message     string
	Link        string
	Data        json.RawMessage
	Read        bool
	ReadAt      *time.Time
	CreatedAt   time.Time
}

// NotificationFilter narrows a notification listing.
type NotificationFilter struct {
	Limit      int
	Skip       int
	UnreadOnly bool
}

// Attachment is a file reference carried by a direct message.
type Attachment struct {
	Name string `json:"name"`
	URL  string `json:"url"`
	Type string `json:"type"`
	Size int64  `json:"size"`
}

// ReceiptKind distinguishes delivery from read receipts.
type ReceiptKind string

const (
	ReceiptDelivered ReceiptKind = "delivered"
	ReceiptRead      ReceiptKind = "read"
)

// Receipt records that a user received or read a message.
type Receipt struct {
	UserID string
	At     time.Time
}

// DirectMessage is a one-to-one message with its receipts.
type DirectMessage struct {
	ID          string
	SenderID    string
	ReceiverID  string
	Content     string
	Attachments []Attachment
	DeliveredTo []Receipt
	ReadBy      []Receipt
	IsDeleted   bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// ReadByUser reports whether userID already has a read receipt.
func (m *DirectMessage) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}

// PresenceStore persists identity presence.
type PresenceStore interface {
	// SetPresence upserts the online flag and last-seen timestamp.
	SetPresence(ctx context.Context, userID string, online bool, at time.Time) error

	// GetPresence returns ErrNotFound for identities never seen.
	GetPresence(ctx context.Context, userID string) (*Presence, error)
}

// NotificationStore persists notifications.
type NotificationStore interface {
	CreateNotification(ctx context.Context, n *Notification) error
	GetNotification(ctx context.Context, id string) (*Notification, error)

	// ListNotifications returns the recipient's notifications, newest first.
	ListNotifications(ctx context.Context, recipientID string, filter NotificationFilter) ([]*Notification, error)
	CountNotifications(ctx context.Context, recipientID string, unreadOnly bool) (int, error)

	MarkNotificationRead(ctx context.Context, id string, at time.Time) error
	MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error)
	DeleteNotification(ctx context.Context, id string) error

	// DeleteMessageNotification removes the pending direct_message notification
	// that points at messageID. Reports whether one existed.
	DeleteMessageNotification(ctx context.Context, recipientID, messageID string) (bool, error)
}

// DirectMessageStore persists direct messages and their receipts.
type DirectMessageStore interface {
	// CreateDirectMessage inserts the message together with its DeliveredTo receipts.
	CreateDirectMessage(ctx context.Context, msg *DirectMessage) error
	GetDirectMessage(ctx context.Context, id string) (*DirectMessage, error)

	// ListConversation returns non-deleted messages between two users in
	// chronological order; skip counts from the newest message.
	ListConversation(ctx context.Context, userA, userB string, limit, skip int) ([]*DirectMessage, error)

	// AddReceipt appends a receipt unless one of the same kind exists for the user.
	// Reports whether the receipt was added.
	AddReceipt(ctx context.Context, messageID, userID string, kind ReceiptKind, at time.Time) (bool, error)

	SoftDeleteDirectMessage(ctx context.Context, id string, at time.Time) error
}

// WorkspaceStore answers workspace membership questions.
type WorkspaceStore interface {
	AddWorkspaceMember(ctx context.Context, workspaceID, userID string) error
	RemoveWorkspaceMember(ctx context.Context, workspaceID, userID string) error
	IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error)
}

// Store aggregates all storage interfaces.
type Store interface {
	PresenceStore
	NotificationStore
	DirectMessageStore
	WorkspaceStore

	// Close closes the underlying database connection.
	Close() error
}
