package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/core"
	"github.com/vovakirdan/collab-relay/internal/store"
)

// Common errors for direct message operations.
var (
	ErrNotFound     = errors.New("message not found")
	ErrForbidden    = errors.New("not allowed for this message")
	ErrInvalidInput = errors.New("invalid message")
)

const (
	defaultLimit   = 50
	previewLength  = 50
	maxContentRune = 10000
)

// Store is the persistence the service needs.
type Store interface {
	store.DirectMessageStore
	store.NotificationStore
}

// Relay pushes real-time events to connected clients.
type Relay interface {
	EmitToUser(userID, event string, data any) error
	AnnounceRead(msg *store.DirectMessage, readerID string) error
}

// SendInput is a new direct message.
type SendInput struct {
	ReceiverID  string
	Content     string
	Attachments []store.Attachment
	// SenderName is used in the receiver's notification text.
	SenderName string
}

// Service provides direct message business logic.
type Service struct {
	store Store
	relay Relay
	log   *zerolog.Logger
	now   func() time.Time
}

// New creates a new direct message service. relay may be nil.
func New(st Store, relay Relay, logger *zerolog.Logger) *Service {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Service{
		store: st,
		relay: relay,
		log:   logger,
		now:   time.Now,
	}
}

// Send stores a message, notifies the receiver and pushes it to both parties.
func (s *Service) Send(ctx context.Context, senderID string, in SendInput) (*store.DirectMessage, error) {
	in.ReceiverID = strings.TrimSpace(in.ReceiverID)
	if in.ReceiverID == "" || in.ReceiverID == senderID {
		return nil, fmt.Errorf("%w: receiver is required and must differ from sender", ErrInvalidInput)
	}
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return nil, fmt.Errorf("%w: content or attachments required", ErrInvalidInput)
	}
	if len([]rune(in.Content)) > maxContentRune {
		return nil, fmt.Errorf("%w: content too long", ErrInvalidInput)
	}

	now := s.now()
	msg := &store.DirectMessage{
		ID:          uuid.NewString(),
		SenderID:    senderID,
		ReceiverID:  in.ReceiverID,
		Content:     in.Content,
		Attachments: in.Attachments,
		DeliveredTo: []store.Receipt{{UserID: in.ReceiverID, At: now}},
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.store.CreateDirectMessage(ctx, msg); err != nil {
		return nil, fmt.Errorf("create direct message: %w", err)
	}

	s.notifyReceiver(ctx, msg, in.SenderName)

	if s.relay != nil {
		view := View(msg)
		for _, userID := range []string{msg.ReceiverID, msg.SenderID} {
			if err := s.relay.EmitToUser(userID, core.EventDirectMessage, view); err != nil {
				s.log.Warn().Err(err).Str("user_id", userID).Str("message_id", msg.ID).Msg("failed to push direct message")
			}
		}
	}
	return msg, nil
}

// notifyReceiver creates the receiver's direct_message notification. Failures are logged.
func (s *Service) notifyReceiver(ctx context.Context, msg *store.DirectMessage, senderName string) {
	if senderName == "" {
		senderName = msg.SenderID
	}
	data, err := json.Marshal(map[string]string{
		"messageId": msg.ID,
		"senderId":  msg.SenderID,
		"content":   msg.Content,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("failed to encode notification data")
		return
	}
	n := &store.Notification{
		ID:          uuid.NewString(),
		RecipientID: msg.ReceiverID,
		SenderID:    msg.SenderID,
		Type:        store.NotificationDirectMessage,
		Title:       "New Message",
		Message:     fmt.Sprintf("%s sent you a message: %s", senderName, preview(msg.Content)),
		Link:        "/chat/" + msg.SenderID,
		Data:        data,
		CreatedAt:   msg.CreatedAt,
	}
	if err := s.store.CreateNotification(ctx, n); err != nil {
		s.log.Warn().Err(err).Str("message_id", msg.ID).Msg("failed to create message notification")
	}
}

// preview shortens content to previewLength runes, marking truncation with "...".
func preview(content string) string {
	r := []rune(content)
	if len(r) <= previewLength {
		return content
	}
	return string(r[:previewLength]) + "..."
}

// Conversation returns messages between userID and friendID in chronological order.
// skip counts from the newest message.
func (s *Service) Conversation(ctx context.Context, userID, friendID string, limit, skip int) ([]*store.DirectMessage, error) {
	if limit <= 0 {
		limit = defaultLimit
	}
	if skip < 0 {
		skip = 0
	}
	msgs, err := s.store.ListConversation(ctx, userID, friendID, limit, skip)
	if err != nil {
		return nil, fmt.Errorf("list conversation: %w", err)
	}
	return msgs, nil
}

// Delete soft-deletes a message. Only the sender may delete it.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	msg, err := s.get(ctx, id)
	if err != nil {
		return err
	}
	if msg.SenderID != userID {
		return ErrForbidden
	}
	if err := s.store.SoftDeleteDirectMessage(ctx, id, s.now()); err != nil {
		return fmt.Errorf("delete direct message: %w", err)
	}
	return nil
}

// MarkRead records a read receipt for the receiver and announces it on first read.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*store.DirectMessage, error) {
	res, err := core.MarkRead(ctx, s.store, id, userID, s.now())
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil, ErrNotFound
	case errors.Is(err, core.ErrNotReceiver):
		return nil, ErrForbidden
	case err != nil && res == nil:
		return nil, err
	case err != nil:
		s.log.Warn().Err(err).Str("message_id", id).Msg("read receipt stored with errors")
	}

	if res.First && s.relay != nil {
		if err := s.relay.AnnounceRead(res.Message, userID); err != nil {
			s.log.Warn().Err(err).Str("message_id", id).Msg("failed to announce read receipt")
		}
	}
	return res.Message, nil
}

func (s *Service) get(ctx context.Context, id string) (*store.DirectMessage, error) {
	msg, err := s.store.GetDirectMessage(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get direct message: %w", err)
	}
	if msg.IsDeleted {
		return nil, ErrNotFound
	}
	return msg, nil
}
