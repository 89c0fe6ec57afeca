package core

import "encoding/json"

// Command is an inbound event a client asks the hub to relay.
type Command struct {
	Event string
	Data  json.RawMessage
}
