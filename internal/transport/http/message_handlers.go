package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/service/messages"
	"github.com/vovakirdan/collab-relay/internal/store"
)

// MessageHandlers provides HTTP handlers for direct messages.
type MessageHandlers struct {
	service *messages.Service
	log     *zerolog.Logger
}

// NewMessageHandlers creates a new direct message handlers instance.
func NewMessageHandlers(service *messages.Service, logger *zerolog.Logger) *MessageHandlers {
	return &MessageHandlers{service: service, log: logger}
}

// SendMessageRequest represents the send message request body.
type SendMessageRequest struct {
	ReceiverID  string             `json:"receiverId" binding:"required"`
	Content     string             `json:"content"`
	Attachments []store.Attachment `json:"attachments"`
}

// Send stores and relays a direct message.
// POST /api/direct-messages
func (h *MessageHandlers) Send(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	var req SendMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Debug().Err(err).Msg("invalid send message request")
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	msg, err := h.service.Send(c.Request.Context(), uid, messages.SendInput{
		ReceiverID:  req.ReceiverID,
		Content:     req.Content,
		Attachments: req.Attachments,
		SenderName:  c.GetString(ContextKeyUsername),
	})
	if err != nil {
		h.writeError(c, err, "failed to send direct message")
		return
	}
	c.JSON(http.StatusCreated, messages.View(msg))
}

// Conversation returns the conversation with another user.
// GET /api/direct-messages/:friendId?limit=50&skip=0
func (h *MessageHandlers) Conversation(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	msgs, err := h.service.Conversation(c.Request.Context(), uid, c.Param("friendId"), queryInt(c, "limit", 50), queryInt(c, "skip", 0))
	if err != nil {
		h.writeError(c, err, "failed to load conversation")
		return
	}
	views := make([]messages.MessageView, 0, len(msgs))
	for _, m := range msgs {
		views = append(views, messages.View(m))
	}
	c.JSON(http.StatusOK, views)
}

// MarkRead records that the caller read a message.
// PUT /api/direct-messages/:id/read
func (h *MessageHandlers) MarkRead(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	msg, err := h.service.MarkRead(c.Request.Context(), uid, c.Param("id"))
	if err != nil {
		h.writeError(c, err, "failed to mark message read")
		return
	}
	c.JSON(http.StatusOK, messages.View(msg))
}

// Delete soft-deletes a message sent by the caller.
// DELETE /api/direct-messages/:id
func (h *MessageHandlers) Delete(c *gin.Context) {
	uid, ok := currentUser(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), uid, c.Param("id")); err != nil {
		h.writeError(c, err, "failed to delete message")
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Message deleted"})
}

func (h *MessageHandlers) writeError(c *gin.Context, err error, msg string) {
	switch {
	case errors.Is(err, messages.ErrInvalidInput):
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: err.Error()})
	case errors.Is(err, messages.ErrNotFound):
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "message not found"})
	case errors.Is(err, messages.ErrForbidden):
		c.JSON(http.StatusForbidden, ErrorResponse{Error: "forbidden"})
	default:
		h.log.Error().Err(err).Msg(msg)
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "internal server error"})
	}
}
