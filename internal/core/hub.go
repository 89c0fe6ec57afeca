package core

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/collab-relay/internal/store"
)

// Store is the persistence the hub relies on for side effects.
// A nil Store disables them; events are still relayed.
type Store interface {
	store.PresenceStore
	store.NotificationStore
	store.DirectMessageStore
}

type clientCommand struct {
	client *Client
	cmd    *Command
}

type handlerFunc func(ctx context.Context, c *Client, data json.RawMessage)

// Option configures a Hub.
type Option func(*Hub)

// WithLogger sets the hub logger.
func WithLogger(log *zerolog.Logger) Option {
	return func(h *Hub) {
		if log != nil {
			h.log = log
		}
	}
}

// WithRoomPolicy sets the policy consulted on room joins.
func WithRoomPolicy(p RoomPolicy) Option {
	return func(h *Hub) {
		if p != nil {
			h.policy = p
		}
	}
}

// WithBridge publishes every emission to other relay instances.
func WithBridge(b Bridge) Option {
	return func(h *Hub) { h.bridge = b }
}

// WithTaskConcurrency bounds concurrently running side-effect tasks.
func WithTaskConcurrency(n int) Option {
	return func(h *Hub) { h.taskLimit = n }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(h *Hub) {
		if now != nil {
			h.now = now
		}
	}
}

// Hub is the central event loop. Connection, room and presence state is owned
// by the Run goroutine; everything else talks to it through channels.
type Hub struct {
	store     Store
	log       *zerolog.Logger
	policy    RoomPolicy
	bridge    Bridge
	now       func() time.Time
	taskLimit int

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	posts      chan func()
	stopped    chan struct{}

	clients  map[*Client]struct{}
	conns    map[string]int
	rooms    map[string]*Room
	handlers map[string]handlerFunc

	tasks    *taskRunner
	presence *presenceWriter
}

// NewHub constructs a hub. Call Run to start it.
func NewHub(st Store, opts ...Option) *Hub {
	nop := zerolog.Nop()
	h := &Hub{
		store:      st,
		log:        &nop,
		policy:     OpenPolicy{},
		now:        time.Now,
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 256),
		posts:      make(chan func(), 64),
		stopped:    make(chan struct{}),
		clients:    make(map[*Client]struct{}),
		conns:      make(map[string]int),
		rooms:      make(map[string]*Room),
	}
	for _, opt := range opts {
		opt(h)
	}
	h.tasks = newTaskRunner(h.taskLimit, h.log)

	var presenceStore store.PresenceStore
	if st != nil {
		presenceStore = st
	}
	h.presence = newPresenceWriter(presenceStore, h.log, h.announcePresence)
	h.handlers = h.routes()
	return h
}

// Run processes hub events until the context is canceled. On shutdown every
// connection's event stream is closed.
func (h *Hub) Run(ctx context.Context) {
	go h.presence.run(ctx)

	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case cc := <-h.commands:
			h.dispatch(ctx, cc.client, cc.cmd)
		case fn := <-h.posts:
			fn()
		}
	}
}

// shutdown tears down every connection. Identities still connected go offline
// and the presence writer is drained before Run returns.
func (h *Hub) shutdown() {
	now := h.now()
	for userID := range h.conns {
		h.presence.enqueue(presenceChange{UserID: userID, Online: false, At: now})
	}
	for c := range h.clients {
		close(c.done)
		close(c.Events)
	}
	clear(h.clients)
	clear(h.rooms)
	clear(h.conns)
	close(h.stopped)
	h.presence.stop()
	h.tasks.Wait()
	h.log.Info().Msg("hub stopped")
}

// RegisterClient adds the client to the hub. The client joins its personal
// room and receives a ready event.
func (h *Hub) RegisterClient(c *Client) error {
	select {
	case h.register <- c:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

// UnregisterClient removes the client from every room and closes its event stream.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.stopped:
	}
}

// EmitToRoom sends an event to every connection in a room.
func (h *Hub) EmitToRoom(room, name string, data any) error {
	buf, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", name, err)
	}
	return h.post(func() { h.emitRoom(room, nil, name, buf) })
}

// EmitToUser sends an event to every connection of an identity.
func (h *Hub) EmitToUser(userID, name string, data any) error {
	return h.EmitToRoom(UserRoom(userID), name, data)
}

// RoomMembers returns the sorted identities connected to a room, one entry per connection.
func (h *Hub) RoomMembers(room string) ([]string, error) {
	var members []string
	err := h.call(func() {
		if r, ok := h.rooms[room]; ok {
			members = r.Members()
		}
	})
	sort.Strings(members)
	return members, err
}

// ClientRooms returns the sorted rooms a connection belongs to.
func (h *Hub) ClientRooms(c *Client) ([]string, error) {
	var rooms []string
	err := h.call(func() {
		if _, ok := h.clients[c]; !ok {
			return
		}
		for name := range c.rooms {
			rooms = append(rooms, name)
		}
	})
	sort.Strings(rooms)
	return rooms, err
}

// ConnectionCount returns the number of live connections of an identity.
func (h *Hub) ConnectionCount(userID string) (int, error) {
	var n int
	err := h.call(func() { n = h.conns[userID] })
	return n, err
}

func (h *Hub) post(fn func()) error {
	select {
	case <-h.stopped:
		return ErrHubStopped
	default:
	}
	select {
	case h.posts <- fn:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

func (h *Hub) call(fn func()) error {
	done := make(chan struct{})
	if err := h.post(func() {
		fn()
		close(done)
	}); err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-h.stopped:
		return ErrHubStopped
	}
}

func (h *Hub) handleRegister(c *Client) {
	h.clients[c] = struct{}{}
	go h.pump(c)

	h.joinRoom(c, UserRoom(c.UserID))
	if data, err := newPayload().set("connectionId", c.ID).set("userId", c.UserID).bytes(); err == nil {
		h.send(c, &Event{Name: EventReady, Data: data})
	}

	h.conns[c.UserID]++
	if h.conns[c.UserID] == 1 {
		h.presence.enqueue(presenceChange{UserID: c.UserID, Online: true, At: h.now(), origin: c})
	}
	h.log.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Int("connections", h.conns[c.UserID]).Msg("client registered")
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for name := range c.rooms {
		h.leaveRoom(c, name)
	}
	close(c.done)
	close(c.Events)

	h.conns[c.UserID]--
	remaining := h.conns[c.UserID]
	if remaining <= 0 {
		delete(h.conns, c.UserID)
		h.presence.enqueue(presenceChange{UserID: c.UserID, Online: false, At: h.now(), origin: c})
	}
	h.log.Info().Str("client_id", c.ID).Str("user_id", c.UserID).Int("connections", remaining).Msg("client unregistered")
}

// pump forwards a client's commands into the hub until the client is gone.
func (h *Hub) pump(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-h.stopped:
				return
			}
		case <-c.done:
			return
		case <-h.stopped:
			return
		}
	}
}

func (h *Hub) dispatch(ctx context.Context, c *Client, cmd *Command) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	handler, ok := h.handlers[cmd.Event]
	if !ok {
		h.send(c, &Event{Error: coreError(ErrCodeUnknownEvent, "unknown event type")})
		return
	}
	h.log.Debug().Str("event", cmd.Event).Str("client_id", c.ID).Str("user_id", c.UserID).Msg("relay event")
	handler(ctx, c, cmd.Data)
}

// send delivers directly to one registered client, dropping on a full buffer.
func (h *Hub) send(c *Client, ev *Event) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.Events <- ev:
	default:
		h.log.Warn().Str("client_id", c.ID).Msg("client buffer full, event dropped")
	}
}

func (h *Hub) joinRoom(c *Client, name string) bool {
	if _, ok := c.rooms[name]; ok {
		return false
	}
	r, ok := h.rooms[name]
	if !ok {
		r = NewRoom(name)
		h.rooms[name] = r
	}
	r.AddClient(c)
	c.rooms[name] = struct{}{}
	h.log.Debug().Str("room", name).Str("client_id", c.ID).Str("user_id", c.UserID).Int("members", r.Size()).Msg("room joined")
	return true
}

func (h *Hub) leaveRoom(c *Client, name string) bool {
	if _, ok := c.rooms[name]; !ok {
		return false
	}
	delete(c.rooms, name)
	if r, ok := h.rooms[name]; ok {
		r.RemoveClient(c)
		if r.Empty() {
			delete(h.rooms, name)
		}
	}
	return true
}

// emitRoom delivers to local members of a room, except the emitter, and
// publishes the emission to the bridge.
func (h *Hub) emitRoom(room string, except *Client, name string, data []byte) {
	h.deliverLocal(room, except, &Event{Name: name, Data: data})
	h.publish(Envelope{Room: room, Event: name, Data: data})
}

// emitAll delivers to every local connection except the emitter and publishes a broadcast.
func (h *Hub) emitAll(except *Client, name string, data []byte) {
	h.broadcastLocal(except, &Event{Name: name, Data: data})
	h.publish(Envelope{Event: name, Data: data})
}

func (h *Hub) deliverLocal(room string, except *Client, ev *Event) {
	r, ok := h.rooms[room]
	if !ok {
		return
	}
	if dropped := r.Broadcast(ev, except); dropped > 0 {
		h.log.Warn().Str("room", room).Str("event", ev.Name).Int("dropped", dropped).Msg("slow consumers skipped")
	}
}

func (h *Hub) broadcastLocal(except *Client, ev *Event) {
	for c := range h.clients {
		if c == except {
			continue
		}
		select {
		case c.Events <- ev:
		default:
			h.log.Warn().Str("client_id", c.ID).Str("event", ev.Name).Msg("client buffer full, event dropped")
		}
	}
}

func (h *Hub) publish(env Envelope) {
	if h.bridge == nil {
		return
	}
	if err := h.bridge.Publish(env); err != nil {
		h.log.Warn().Err(err).Str("room", env.Room).Str("event", env.Event).Msg("bridge publish failed")
	}
}

// announcePresence runs on the presence writer goroutine.
func (h *Hub) announcePresence(ch presenceChange) {
	name := EventUserOffline
	if ch.Online {
		name = EventUserOnline
	}
	data, err := newPayload().set("userId", ch.UserID).bytes()
	if err != nil {
		return
	}
	_ = h.post(func() { h.emitAll(ch.origin, name, data) })
}
