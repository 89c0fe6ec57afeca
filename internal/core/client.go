package core

const defaultClientBuffer = 32

// Client is a live connection as seen by the core layer.
type Client struct {
	ID       string
	UserID   string
	Commands chan *Command
	Events   chan *Event

	// rooms and done are owned by the hub goroutine.
	rooms map[string]struct{}
	done  chan struct{}
}

// NewClient constructs a client with initialized channels.
// A non-positive buffer selects the default channel capacity.
func NewClient(id, userID string, buffer int) *Client {
	if buffer <= 0 {
		buffer = defaultClientBuffer
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Commands: make(chan *Command, buffer),
		Events:   make(chan *Event, buffer),
		rooms:    make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}
