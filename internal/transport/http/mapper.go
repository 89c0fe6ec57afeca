package http

import (
	"encoding/json"
	"time"

	"github.com/vovakirdan/collab-relay/internal/core"
	"github.com/vovakirdan/collab-relay/internal/proto"
	"github.com/vovakirdan/collab-relay/internal/store"
)

func inboundToCommand(inbound proto.Inbound) (*core.Command, *proto.Error) {
	switch inbound.Type {
	case "":
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "type is required"}
	case proto.InboundTypeHello:
		return nil, &proto.Error{Code: core.ErrCodeBadRequest, Msg: "already authenticated"}
	}
	data := inbound.Data
	if len(data) == 0 {
		data = json.RawMessage("null")
	}
	return &core.Command{Event: inbound.Type, Data: data}, nil
}

func outboundFromEvent(event *core.Event) proto.Outbound {
	if event.Error != nil {
		return proto.ErrorFrame(event.Error.Code, event.Error.Message)
	}
	return proto.Outbound{
		Type:  proto.OutboundTypeEvent,
		Event: event.Name,
		Data:  event.Data,
	}
}

// NotificationResponse represents a notification in API responses.
type NotificationResponse struct {
	ID          string          `json:"id"`
	RecipientID string          `json:"recipientId"`
	SenderID    string          `json:"senderId,omitempty"`
	Type        string          `json:"type"`
	Title       string          `json:"title"`
	Message     string          `json:"message"`
	Link        string          `json:"link,omitempty"`
	Data        json.RawMessage `json:"data,omitempty"`
	Read        bool            `json:"read"`
	ReadAt      *time.Time      `json:"readAt,omitempty"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func notificationResponse(n *store.Notification) NotificationResponse {
	return NotificationResponse{
		ID:          n.ID,
		RecipientID: n.RecipientID,
		SenderID:    n.SenderID,
		Type:        string(n.Type),
		Title:       n.Title,
		Message:     n.Message,
		Link:        n.Link,
		Data:        n.Data,
		Read:        n.Read,
		ReadAt:      n.ReadAt,
		CreatedAt:   n.CreatedAt,
	}
}
