// Package streaming defines the JSON messages the websocket trace sink
// exchanges with a live viewer.
package streaming

import (
	"encoding/json"
	"time"
)

// Message type constants matching the streaming protocol.
const (
	TypeHello     = "hello"
	TypeGoodbye   = "goodbye"
	TypeSession   = "session"
	TypeBacktrack = "backtrack"
	TypeRestore   = "restore"
	TypeAck       = "ack"
)

// Envelope wraps all messages sent over the WebSocket.
type Envelope struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// AckMessage is the server's acknowledgement response.
type AckMessage struct {
	Type string `json:"type"` // always "ack"
	For  string `json:"for"`  // the message type being acknowledged
}

// HelloPayload announces the daemon. It is replayed after every reconnect
// so the viewer can tell which server the following records belong to.
type HelloPayload struct {
	Name      string    `json:"name"`
	TickRate  int       `json:"tickRate"`
	StartedAt time.Time `json:"startedAt"`
}
