package notifications

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/vovakirdan/collab-relay/internal/store"
)

// Common errors for notification operations.
var (
	ErrNotFound  = errors.New("notification not found")
	ErrForbidden = errors.New("notification belongs to another user")
)

const defaultLimit = 20

// Page is one page of a recipient's notifications.
type Page struct {
	Notifications []*store.Notification
	// TotalCount counts notifications matching the filter, ignoring paging.
	TotalCount  int
	UnreadCount int
}

// Service provides notification inbox operations.
type Service struct {
	store store.NotificationStore
	now   func() time.Time
}

// New creates a new notification service.
func New(st store.NotificationStore) *Service {
	return &Service{
		store: st,
		now:   time.Now,
	}
}

// List returns a page of the user's notifications, newest first.
func (s *Service) List(ctx context.Context, userID string, filter store.NotificationFilter) (*Page, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultLimit
	}
	if filter.Skip < 0 {
		filter.Skip = 0
	}

	list, err := s.store.ListNotifications(ctx, userID, filter)
	if err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	total, err := s.store.CountNotifications(ctx, userID, filter.UnreadOnly)
	if err != nil {
		return nil, fmt.Errorf("count notifications: %w", err)
	}
	unread, err := s.store.CountNotifications(ctx, userID, true)
	if err != nil {
		return nil, fmt.Errorf("count unread notifications: %w", err)
	}

	return &Page{Notifications: list, TotalCount: total, UnreadCount: unread}, nil
}

// MarkRead marks one of the user's notifications read and returns it.
func (s *Service) MarkRead(ctx context.Context, userID, id string) (*store.Notification, error) {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return nil, err
	}
	if err := s.store.MarkNotificationRead(ctx, id, s.now()); err != nil {
		return nil, fmt.Errorf("mark notification read: %w", err)
	}
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reload notification: %w", err)
	}
	return n, nil
}

// MarkAllRead marks every unread notification of the user read.
func (s *Service) MarkAllRead(ctx context.Context, userID string) (int64, error) {
	n, err := s.store.MarkAllNotificationsRead(ctx, userID, s.now())
	if err != nil {
		return 0, fmt.Errorf("mark all notifications read: %w", err)
	}
	return n, nil
}

// Delete removes one of the user's notifications.
func (s *Service) Delete(ctx context.Context, userID, id string) error {
	if _, err := s.owned(ctx, userID, id); err != nil {
		return err
	}
	if err := s.store.DeleteNotification(ctx, id); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("delete notification: %w", err)
	}
	return nil
}

func (s *Service) owned(ctx context.Context, userID, id string) (*store.Notification, error) {
	n, err := s.store.GetNotification(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get notification: %w", err)
	}
	if n.RecipientID != userID {
		return nil, ErrForbidden
	}
	return n, nil
}
