package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/vovakirdan/collab-relay/internal/store"
)

//go:embed schema.sql
var schema string

// SQLiteStore implements store.Store for SQLite.
type SQLiteStore struct {
	db *sql.DB
}

// New opens the database at dbPath and applies the schema.
func New(dbPath string) (*SQLiteStore, error) {
	return NewWithSetup(dbPath, Migrate)
}

// NewWithSetup creates a new SQLite store and runs a setup function.
// Useful for tests to seed extra fixtures.
func NewWithSetup(dbPath string, setup func(*sql.DB) error) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// SQLite works best with a single connection; it also keeps :memory: databases alive.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if setup != nil {
		if err := setup(db); err != nil {
			db.Close()
			return nil, fmt.Errorf("setup: %w", err)
		}
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Migrate applies the embedded schema. It is idempotent.
func Migrate(db *sql.DB) error {
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ==== PresenceStore implementation ====

// SetPresence upserts the online flag and last-seen timestamp.
func (s *SQLiteStore) SetPresence(ctx context.Context, userID string, online bool, at time.Time) error {
	query := `
		INSERT INTO users (id, is_online, last_seen)
		VALUES (?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET is_online = excluded.is_online, last_seen = excluded.last_seen
	`
	if _, err := s.db.ExecContext(ctx, query, userID, online, at.UTC()); err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

// GetPresence retrieves the presence of an identity.
func (s *SQLiteStore) GetPresence(ctx context.Context, userID string) (*store.Presence, error) {
	query := `SELECT id, is_online, last_seen FROM users WHERE id = ?`

	var p store.Presence
	var lastSeen sql.NullTime
	err := s.db.QueryRowContext(ctx, query, userID).Scan(&p.UserID, &p.IsOnline, &lastSeen)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("presence of %s: %w", userID, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query presence: %w", err)
	}
	if lastSeen.Valid {
		p.LastSeen = lastSeen.Time
	}
	return &p, nil
}

// ==== NotificationStore implementation ====

const notificationColumns = `id, recipient_id, sender_id, type, title, message, link, data, read, read_at, created_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNotification(row rowScanner) (*store.Notification, error) {
	var n store.Notification
	var data sql.NullString
	var readAt sql.NullTime
	if err := row.Scan(
		&n.ID,
		&n.RecipientID,
		&n.SenderID,
		&n.Type,
		&n.Title,
		&n.Message,
		&n.Link,
		&data,
		&n.Read,
		&readAt,
		&n.CreatedAt,
	); err != nil {
		return nil, err
	}
	if data.Valid && data.String != "" {
		n.Data = json.RawMessage(data.String)
	}
	if readAt.Valid {
		n.ReadAt = &readAt.Time
	}
	return &n, nil
}

// CreateNotification persists a notification. CreatedAt defaults to now.
func (s *SQLiteStore) CreateNotification(ctx context.Context, n *store.Notification) error {
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now().UTC()
	}
	var data any
	if len(n.Data) > 0 {
		data = string(n.Data)
	}
	query := `
		INSERT INTO notifications (id, recipient_id, sender_id, type, title, message, link, data, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		n.ID, n.RecipientID, n.SenderID, string(n.Type), n.Title, n.Message, n.Link, data, n.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("insert notification: %w", err)
	}
	return nil
}

// GetNotification retrieves a notification by ID.
func (s *SQLiteStore) GetNotification(ctx context.Context, id string) (*store.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE id = ?`
	n, err := scanNotification(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query notification: %w", err)
	}
	return n, nil
}

// ListNotifications returns the recipient's notifications, newest first.
func (s *SQLiteStore) ListNotifications(ctx context.Context, recipientID string, filter store.NotificationFilter) ([]*store.Notification, error) {
	query := `SELECT ` + notificationColumns + ` FROM notifications WHERE recipient_id = ?`
	args := []any{recipientID}
	if filter.UnreadOnly {
		query += ` AND read = 0`
	}
	query += ` ORDER BY created_at DESC, rowid DESC LIMIT ? OFFSET ?`
	limit := filter.Limit
	if limit <= 0 {
		limit = -1
	}
	args = append(args, limit, max(filter.Skip, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query notifications: %w", err)
	}
	defer rows.Close()

	notifications := make([]*store.Notification, 0)
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("scan notification: %w", err)
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// CountNotifications counts the recipient's notifications.
func (s *SQLiteStore) CountNotifications(ctx context.Context, recipientID string, unreadOnly bool) (int, error) {
	query := `SELECT COUNT(*) FROM notifications WHERE recipient_id = ?`
	if unreadOnly {
		query += ` AND read = 0`
	}
	var count int
	if err := s.db.QueryRowContext(ctx, query, recipientID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return count, nil
}

// MarkNotificationRead flags a single notification as read.
func (s *SQLiteStore) MarkNotificationRead(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE notifications SET read = 1, read_at = ? WHERE id = ?`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("update notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// MarkAllNotificationsRead flags every unread notification of the recipient as read.
func (s *SQLiteStore) MarkAllNotificationsRead(ctx context.Context, recipientID string, at time.Time) (int64, error) {
	query := `UPDATE notifications SET read = 1, read_at = ? WHERE recipient_id = ? AND read = 0`
	result, err := s.db.ExecContext(ctx, query, at.UTC(), recipientID)
	if err != nil {
		return 0, fmt.Errorf("update notifications: %w", err)
	}
	return result.RowsAffected()
}

// DeleteNotification removes a notification.
func (s *SQLiteStore) DeleteNotification(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM notifications WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("notification %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// DeleteMessageNotification removes the direct_message notification for messageID.
func (s *SQLiteStore) DeleteMessageNotification(ctx context.Context, recipientID, messageID string) (bool, error) {
	query := `
		DELETE FROM notifications
		WHERE rowid = (
			SELECT rowid FROM notifications
			WHERE recipient_id = ? AND type = ? AND json_extract(data, '$.messageId') = ?
			ORDER BY created_at ASC
			LIMIT 1
		)
	`
	result, err := s.db.ExecContext(ctx, query, recipientID, string(store.NotificationDirectMessage), messageID)
	if err != nil {
		return false, fmt.Errorf("delete message notification: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	return rows > 0, nil
}

// ==== DirectMessageStore implementation ====

// CreateDirectMessage inserts the message together with its DeliveredTo receipts.
func (s *SQLiteStore) CreateDirectMessage(ctx context.Context, msg *store.DirectMessage) error {
	now := time.Now().UTC()
	if msg.CreatedAt.IsZero() {
		msg.CreatedAt = now
	}
	if msg.UpdatedAt.IsZero() {
		msg.UpdatedAt = msg.CreatedAt
	}
	if msg.Attachments == nil {
		msg.Attachments = []store.Attachment{}
	}
	attachments, err := json.Marshal(msg.Attachments)
	if err != nil {
		return fmt.Errorf("marshal attachments: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback() //nolint:errcheck // no-op after commit
	}()

	query := `
		INSERT INTO direct_messages (id, sender_id, receiver_id, content, attachments, is_deleted, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, ?, ?)
	`
	if _, err := tx.ExecContext(ctx, query,
		msg.ID, msg.SenderID, msg.ReceiverID, msg.Content, string(attachments), msg.CreatedAt.UTC(), msg.UpdatedAt.UTC()); err != nil {
		return fmt.Errorf("insert direct message: %w", err)
	}

	receiptQuery := `INSERT OR IGNORE INTO message_receipts (message_id, user_id, kind, at) VALUES (?, ?, ?, ?)`
	for _, r := range msg.DeliveredTo {
		if _, err := tx.ExecContext(ctx, receiptQuery, msg.ID, r.UserID, string(store.ReceiptDelivered), r.At.UTC()); err != nil {
			return fmt.Errorf("insert delivery receipt: %w", err)
		}
	}
	for _, r := range msg.ReadBy {
		if _, err := tx.ExecContext(ctx, receiptQuery, msg.ID, r.UserID, string(store.ReceiptRead), r.At.UTC()); err != nil {
			return fmt.Errorf("insert read receipt: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *SQLiteStore) scanDirectMessage(row rowScanner) (*store.DirectMessage, error) {
	var msg store.DirectMessage
	var attachments string
	if err := row.Scan(
		&msg.ID,
		&msg.SenderID,
		&msg.ReceiverID,
		&msg.Content,
		&attachments,
		&msg.IsDeleted,
		&msg.CreatedAt,
		&msg.UpdatedAt,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(attachments), &msg.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	return &msg, nil
}

func (s *SQLiteStore) loadReceipts(ctx context.Context, msg *store.DirectMessage) error {
	query := `
		SELECT user_id, kind, at FROM message_receipts
		WHERE message_id = ?
		ORDER BY at ASC, rowid ASC
	`
	rows, err := s.db.QueryContext(ctx, query, msg.ID)
	if err != nil {
		return fmt.Errorf("query receipts: %w", err)
	}
	defer rows.Close()

	msg.DeliveredTo = msg.DeliveredTo[:0]
	msg.ReadBy = msg.ReadBy[:0]
	for rows.Next() {
		var r store.Receipt
		var kind string
		if err := rows.Scan(&r.UserID, &kind, &r.At); err != nil {
			return fmt.Errorf("scan receipt: %w", err)
		}
		switch store.ReceiptKind(kind) {
		case store.ReceiptDelivered:
			msg.DeliveredTo = append(msg.DeliveredTo, r)
		case store.ReceiptRead:
			msg.ReadBy = append(msg.ReadBy, r)
		}
	}
	return rows.Err()
}

const directMessageColumns = `id, sender_id, receiver_id, content, attachments, is_deleted, created_at, updated_at`

// GetDirectMessage retrieves a message with its receipts.
func (s *SQLiteStore) GetDirectMessage(ctx context.Context, id string) (*store.DirectMessage, error) {
	query := `SELECT ` + directMessageColumns + ` FROM direct_messages WHERE id = ?`
	msg, err := s.scanDirectMessage(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("direct message %s: %w", id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("query direct message: %w", err)
	}
	if err := s.loadReceipts(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

// ListConversation returns non-deleted messages between two users in chronological order.
func (s *SQLiteStore) ListConversation(ctx context.Context, userA, userB string, limit, skip int) ([]*store.DirectMessage, error) {
	if limit <= 0 {
		limit = -1
	}
	query := `
		SELECT ` + directMessageColumns + `
		FROM direct_messages
		WHERE ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))
		  AND is_deleted = 0
		ORDER BY created_at DESC, rowid DESC
		LIMIT ? OFFSET ?
	`
	rows, err := s.db.QueryContext(ctx, query, userA, userB, userB, userA, limit, max(skip, 0))
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}

	messages := make([]*store.DirectMessage, 0)
	for rows.Next() {
		msg, err := s.scanDirectMessage(rows)
		if err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan direct message: %w", err)
		}
		messages = append(messages, msg)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	// Release the single connection before loading receipts.
	rows.Close()

	for _, msg := range messages {
		if err := s.loadReceipts(ctx, msg); err != nil {
			return nil, err
		}
	}

	// Reverse to get chronological order
	for i := range len(messages) / 2 {
		messages[i], messages[len(messages)-1-i] = messages[len(messages)-1-i], messages[i]
	}
	return messages, nil
}

// AddReceipt appends a receipt unless the user already has one of that kind.
func (s *SQLiteStore) AddReceipt(ctx context.Context, messageID, userID string, kind store.ReceiptKind, at time.Time) (bool, error) {
	query := `INSERT OR IGNORE INTO message_receipts (message_id, user_id, kind, at) VALUES (?, ?, ?, ?)`
	result, err := s.db.ExecContext(ctx, query, messageID, userID, string(kind), at.UTC())
	if err != nil {
		return false, fmt.Errorf("insert receipt: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("get rows affected: %w", err)
	}
	if rows > 0 {
		if _, err := s.db.ExecContext(ctx, `UPDATE direct_messages SET updated_at = ? WHERE id = ?`, at.UTC(), messageID); err != nil {
			return true, fmt.Errorf("touch direct message: %w", err)
		}
	}
	return rows > 0, nil
}

// SoftDeleteDirectMessage hides a message from conversations.
func (s *SQLiteStore) SoftDeleteDirectMessage(ctx context.Context, id string, at time.Time) error {
	result, err := s.db.ExecContext(ctx, `UPDATE direct_messages SET is_deleted = 1, updated_at = ? WHERE id = ?`, at.UTC(), id)
	if err != nil {
		return fmt.Errorf("soft delete direct message: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("direct message %s: %w", id, store.ErrNotFound)
	}
	return nil
}

// ==== WorkspaceStore implementation ====

// AddWorkspaceMember records workspace membership.
func (s *SQLiteStore) AddWorkspaceMember(ctx context.Context, workspaceID, userID string) error {
	query := `INSERT OR IGNORE INTO workspace_members (workspace_id, user_id) VALUES (?, ?)`
	if _, err := s.db.ExecContext(ctx, query, workspaceID, userID); err != nil {
		return fmt.Errorf("insert workspace member: %w", err)
	}
	return nil
}

// RemoveWorkspaceMember deletes workspace membership.
func (s *SQLiteStore) RemoveWorkspaceMember(ctx context.Context, workspaceID, userID string) error {
	query := `DELETE FROM workspace_members WHERE workspace_id = ? AND user_id = ?`
	if _, err := s.db.ExecContext(ctx, query, workspaceID, userID); err != nil {
		return fmt.Errorf("delete workspace member: %w", err)
	}
	return nil
}

// IsWorkspaceMember checks if user is a member of the workspace.
func (s *SQLiteStore) IsWorkspaceMember(ctx context.Context, workspaceID, userID string) (bool, error) {
	query := `SELECT 1 FROM workspace_members WHERE workspace_id = ? AND user_id = ?`
	var exists int
	err := s.db.QueryRowContext(ctx, query, workspaceID, userID).Scan(&exists)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("query membership: %w", err)
	}
	return true, nil
}

// Ensure SQLiteStore implements store.Store
var _ store.Store = (*SQLiteStore)(nil)
