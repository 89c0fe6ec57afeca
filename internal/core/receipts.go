package core

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/tidwall/gjson"

	"github.com/vovakirdan/collab-relay/internal/store"
)

// ReceiptStore is the persistence MarkRead needs.
type ReceiptStore interface {
	GetDirectMessage(ctx context.Context, id string) (*store.DirectMessage, error)
	AddReceipt(ctx context.Context, messageID, userID string, kind store.ReceiptKind, at time.Time) (bool, error)
	DeleteMessageNotification(ctx context.Context, recipientID, messageID string) (bool, error)
}

// ReadResult is the outcome of marking a direct message read.
// First is true only for the call that recorded the receipt.
type ReadResult struct {
	Message *store.DirectMessage
	First   bool
}

// MarkRead records that readerID read the message. Only the receiver may mark
// a message read, deleted messages count as missing, and repeated calls are no-ops. The first read also removes
// the receiver's pending direct_message notification.
func MarkRead(ctx context.Context, st ReceiptStore, messageID, readerID string, at time.Time) (*ReadResult, error) {
	msg, err := st.GetDirectMessage(ctx, messageID)
	if err != nil {
		return nil, fmt.Errorf("load message %s: %w", messageID, err)
	}
	if msg.IsDeleted {
		return nil, fmt.Errorf("load message %s: %w", messageID, store.ErrNotFound)
	}
	if msg.ReceiverID != readerID {
		return nil, ErrNotReceiver
	}
	if msg.ReadByUser(readerID) {
		return &ReadResult{Message: msg}, nil
	}

	added, err := st.AddReceipt(ctx, messageID, readerID, store.ReceiptRead, at)
	if err != nil {
		return nil, fmt.Errorf("add read receipt: %w", err)
	}
	if !added {
		return &ReadResult{Message: msg}, nil
	}
	msg.ReadBy = append(msg.ReadBy, store.Receipt{UserID: readerID, At: at})

	res := &ReadResult{Message: msg, First: true}
	if _, err := st.DeleteMessageNotification(ctx, readerID, messageID); err != nil {
		return res, fmt.Errorf("delete message notification: %w", err)
	}
	return res, nil
}

// AnnounceRead tells the sender the message was read and clears the message
// notification on the reader's other sessions.
func (h *Hub) AnnounceRead(msg *store.DirectMessage, readerID string) error {
	return h.announceRead(msg, readerID, nil)
}

func (h *Hub) announceRead(msg *store.DirectMessage, readerID string, origin *Client) error {
	update, err := newPayload().set("messageId", msg.ID).set("readerId", readerID).bytes()
	if err != nil {
		return err
	}
	deleted, err := newPayload().set("type", store.NotificationDirectMessage).set("messageId", msg.ID).bytes()
	if err != nil {
		return err
	}
	return h.post(func() {
		h.emitRoom(UserRoom(msg.SenderID), origin, EventMessageReadUpdate, update)
		h.emitRoom(UserRoom(readerID), origin, EventNotificationDeleted, deleted)
	})
}

func (h *Hub) relayMessageRead(ctx context.Context, c *Client, data json.RawMessage) {
	messageID := gjson.GetBytes(data, "messageId").String()
	readerID := gjson.GetBytes(data, "readerId").String()
	if messageID == "" || readerID == "" {
		h.dropMalformed(c, EventMessageRead, "missing message or reader id")
		return
	}
	if readerID != c.UserID {
		h.log.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Str("reader_id", readerID).Msg("read receipt for another identity dropped")
		return
	}
	if h.store == nil {
		return
	}

	at := h.now()
	h.tasks.Go(ctx, "message-read", func(ctx context.Context) error {
		res, err := MarkRead(ctx, h.store, messageID, readerID, at)
		if res != nil && res.First {
			if aerr := h.announceRead(res.Message, readerID, c); aerr != nil {
				h.log.Debug().Err(aerr).Str("message_id", messageID).Msg("read update not announced")
			}
		}
		switch {
		case errors.Is(err, ErrNotReceiver), errors.Is(err, store.ErrNotFound):
			h.log.Debug().Err(err).Str("message_id", messageID).Str("reader_id", readerID).Msg("read receipt ignored")
			return nil
		default:
			return err
		}
	})
}
