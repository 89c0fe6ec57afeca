package messages

import (
	"time"

	"github.com/vovakirdan/collab-relay/internal/store"
)

// MessageView is the JSON shape of a direct message on the wire.
type MessageView struct {
	ID          string             `json:"id"`
	SenderID    string             `json:"senderId"`
	ReceiverID  string             `json:"receiverId"`
	Content     string             `json:"content"`
	Attachments []store.Attachment `json:"attachments"`
	DeliveredTo []ReceiptView      `json:"deliveredTo"`
	ReadBy      []ReceiptView      `json:"readBy"`
	CreatedAt   time.Time          `json:"createdAt"`
	UpdatedAt   time.Time          `json:"updatedAt"`
}

// ReceiptView is a delivery or read receipt.
type ReceiptView struct {
	UserID string    `json:"userId"`
	At     time.Time `json:"at"`
}

// View converts a stored message to its wire shape.
func View(msg *store.DirectMessage) MessageView {
	attachments := msg.Attachments
	if attachments == nil {
		attachments = []store.Attachment{}
	}
	return MessageView{
		ID:          msg.ID,
		SenderID:    msg.SenderID,
		ReceiverID:  msg.ReceiverID,
		Content:     msg.Content,
		Attachments: attachments,
		DeliveredTo: receiptViews(msg.DeliveredTo),
		ReadBy:      receiptViews(msg.ReadBy),
		CreatedAt:   msg.CreatedAt,
		UpdatedAt:   msg.UpdatedAt,
	}
}

func receiptViews(receipts []store.Receipt) []ReceiptView {
	out := make([]ReceiptView, 0, len(receipts))
	for _, r := range receipts {
		out = append(out, ReceiptView{UserID: r.UserID, At: r.At})
	}
	return out
}
