package core

import "encoding/json"

// Envelope is a room emission crossing process boundaries.
// An empty Room addresses every connection.
type Envelope struct {
	Origin string          `json:"origin"`
	Room   string          `json:"room,omitempty"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

// Bridge fans local emissions out to other relay instances.
// Publish must not block the hub.
type Bridge interface {
	Publish(env Envelope) error
}

// Deliver hands an emission received from another instance to local members.
// It is never republished.
func (h *Hub) Deliver(env Envelope) error {
	ev := &Event{Name: env.Event, Data: env.Data}
	return h.post(func() {
		if env.Room == "" {
			h.broadcastLocal(nil, ev)
			return
		}
		h.deliverLocal(env.Room, nil, ev)
	})
}
