package core

import "strings"

// Room name prefixes. A room name is the prefix followed by an entity id.
const (
	roomPrefixWorkspace = "workspace-"
	roomPrefixDocument  = "document-"
	roomPrefixUser      = "user-"
	roomPrefixTeam      = "team-"
)

// RoomKind classifies a room by its name prefix.
type RoomKind int

// Room kinds recognized by ParseRoom.
const (
	// RoomKindUnknown is any name without a known prefix or with an empty id.
	RoomKindUnknown RoomKind = iota
	// RoomKindWorkspace scopes board, chat and file events of one workspace.
	RoomKindWorkspace
	// RoomKindDocument groups the editors of one document.
	RoomKindDocument
	// RoomKindUser is an identity's personal room, joined on connect.
	RoomKindUser
	// RoomKindTeam receives team membership changes.
	RoomKindTeam
)

// WorkspaceRoom returns the room name of a workspace.
func WorkspaceRoom(id string) string { return roomPrefixWorkspace + id }

// DocumentRoom returns the room name of a document editing session.
func DocumentRoom(id string) string { return roomPrefixDocument + id }

// UserRoom returns the personal room name of an identity.
func UserRoom(id string) string { return roomPrefixUser + id }

// TeamRoom returns the room name of a team.
func TeamRoom(id string) string { return roomPrefixTeam + id }

// ParseRoom splits a room name into its kind and entity id.
func ParseRoom(name string) (RoomKind, string) {
	for prefix, kind := range map[string]RoomKind{
		roomPrefixWorkspace: RoomKindWorkspace,
		roomPrefixDocument:  RoomKindDocument,
		roomPrefixUser:      RoomKindUser,
		roomPrefixTeam:      RoomKindTeam,
	} {
		if id, ok := strings.CutPrefix(name, prefix); ok && id != "" {
			return kind, id
		}
	}
	return RoomKindUnknown, ""
}

// Room groups clients subscribed to the same channel.
type Room struct {
	Name    string
	clients map[*Client]struct{}
}

// NewRoom constructs a room with no clients.
func NewRoom(name string) *Room {
	return &Room{
		Name:    name,
		clients: make(map[*Client]struct{}),
	}
}

// AddClient inserts a client into the room. Returns true if newly added.
func (r *Room) AddClient(c *Client) bool {
	if _, exists := r.clients[c]; exists {
		return false
	}
	r.clients[c] = struct{}{}
	return true
}

// RemoveClient deletes a client from the room. Returns true if removed.
func (r *Room) RemoveClient(c *Client) bool {
	if _, exists := r.clients[c]; !exists {
		return false
	}
	delete(r.clients, c)
	return true
}

// Broadcast sends an event to every client in the room except the given one
// (nil excludes nobody). Returns how many slow consumers were skipped.
func (r *Room) Broadcast(event *Event, except *Client) int {
	dropped := 0
	for client := range r.clients {
		if client == except {
			continue
		}
		select {
		case client.Events <- event:
		default:
			dropped++
		}
	}
	return dropped
}

// Members returns the user ids of the clients in the room, one per connection.
func (r *Room) Members() []string {
	out := make([]string, 0, len(r.clients))
	for c := range r.clients {
		out = append(out, c.UserID)
	}
	return out
}

// Size returns the number of connections in the room.
func (r *Room) Size() int {
	return len(r.clients)
}

// Empty returns true if no clients are in the room.
func (r *Room) Empty() bool {
	return len(r.clients) == 0
}
