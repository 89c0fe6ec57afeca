package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/service/notifications"
	"github.com/vovakirdan/collab-relay/internal/store"
)

// NotificationHandlers provides HTTP handlers for the notification inbox.
type NotificationHandlers struct {
	service *notifications.Service
	log     *zerolog.Logger
}

// NewNotificationHandlers creates a new notification handlers instance.
func NewNotificationHandlers(service *notifications.Service, logger *zerolog.Logger) *NotificationHandlers {
	return &NotificationHandlers{service: service, log: logger}
}

// NotificationListResponse is one page of notifications.
type NotificationListResponse struct {
	Notifications []NotificationResponse `json:"notifications"`
	TotalCount    int                    `json:"totalCount"`
	UnreadCount   int                    `json:"unreadCount"`
}

// List returns the caller's notifications.
// GET /api/notifications?limit=20&skip=0&unread=true
func (h *NotificationHandlers) List(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	filter := store.NotificationFilter{
		Limit:      queryInt(c, "limit", 20),
		Skip:       queryInt(c, "skip", 0),
		UnreadOnly: c.Query("unread") == "true",
	}
	page, err := h.service.List(c.Request.Context(), uid, filter)
	if err != nil {
		h.log.Error().Err(err).Str("user_id", uid).Msg("failed to list notifications")
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
		return
	}

	resp := NotificationListResponse{
		Notifications: make([]NotificationResponse, 0, len(page.Notifications)),
		TotalCount:    page.TotalCount,
		UnreadCount:   page.UnreadCount,
	}
	for _, n := range page.Notifications {
		resp.Notifications = append(resp.Notifications, notificationResponse(n))
	}
	c.JSON(http.StatusOK, resp)
}

// MarkRead marks one notification read.
// PUT /api/notifications/:id/read
func (h *NotificationHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	n, err := h.service.MarkRead(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to mark notification read")
		return
	}
	c.JSON(http.StatusOK, notificationResponse(n))
}

// MarkAllRead marks every notification of the caller read.
// PUT /api/notifications/read-all
func (h *NotificationHandlers) MarkAllRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	updated, err := h.service.MarkAllRead(c.Request.Context(), uid)
	if err != nil {
		h.writeError(c, err, "failed to mark notifications read")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "All notifications marked as read", "updated": updated})
}

// Delete removes one notification.
// DELETE /api/notifications/:id
func (h *NotificationHandlers) Delete(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete notification")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Notification deleted"})
}

func (h *NotificationHandlers) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, notifications.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "notification not found"})
	case errors.Is(err, notifications.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	default:
		h.log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}

func queryInt(c *gin.Context, key string, def int) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil || v < 0 {
		return def
	}
	return v
}
