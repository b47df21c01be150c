package channel

import "encoding/json"

// EventConnect is dispatched once per established connection, after the
// identifier has been assigned.
const EventConnect = "connect"

// Event is one named push event received from the server.
type Event struct {
	Name string
	Data json.RawMessage
}

// Decode unmarshals the event payload into v.
func (e Event) Decode(v any) error {
	if len(e.Data) == 0 {
		return nil
	}
	return json.Unmarshal(e.Data, v)
}

// Handler receives push events. Handlers run on the connection's reader
// goroutine, one at a time, in server emission order.
type Handler func(Event)

// frame is the wire envelope for every message on the socket.
type frame struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// hello is the payload of the server's first frame.
type hello struct {
	SID string `json:"sid"`
}
