// Package websocket streams trace records to a live viewer over a WebSocket.
package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/pkg/core"
	"github.com/OCAP2/lagcomp/pkg/streaming"
)

// closeFlushTimeout bounds how long Close waits for queued records.
const closeFlushTimeout = 5 * time.Second

// Backend streams trace records over WebSocket.
type Backend struct {
	conn  *connection
	cfg   config.WebSocketConfig
	hello streaming.HelloPayload
}

// New creates a new WebSocket trace backend. hello is sent on connect and
// after every reconnect.
func New(cfg config.WebSocketConfig, hello streaming.HelloPayload, logger *slog.Logger) *Backend {
	if logger == nil {
		logger = slog.Default()
	}
	return &Backend{
		conn:  newConnection(logger.With("sink", "websocket")),
		cfg:   cfg,
		hello: hello,
	}
}

// Init connects and waits for the server to acknowledge the hello message.
func (b *Backend) Init() error {
	if b.cfg.URL == "" {
		return fmt.Errorf("websocket URL not set")
	}

	data, err := marshalEnvelope(streaming.TypeHello, b.hello)
	if err != nil {
		return err
	}
	b.conn.mu.Lock()
	b.conn.hello = data
	b.conn.mu.Unlock()

	if err := b.conn.dial(b.cfg.URL, b.cfg.Secret); err != nil {
		_ = b.conn.close()
		return err
	}
	if err := b.conn.sendAndWait(data, streaming.TypeHello, ackTimeout); err != nil {
		_ = b.conn.close()
		return err
	}
	return nil
}

// Close flushes queued records, says goodbye and disconnects.
func (b *Backend) Close() error {
	if b.conn.isClosed() {
		return nil
	}
	if data, err := marshalEnvelope(streaming.TypeGoodbye, nil); err == nil {
		b.conn.send(data)
	}
	b.conn.flush(closeFlushTimeout)
	return b.conn.close()
}

// marshalEnvelope builds a JSON-encoded Envelope from a message type and payload.
func marshalEnvelope(msgType string, payload any) ([]byte, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal %s payload: %w", msgType, err)
	}
	env := streaming.Envelope{Type: msgType, Payload: raw}
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("marshal %s envelope: %w", msgType, err)
	}
	return data, nil
}

// sendEnvelope marshals the payload into an Envelope and pushes it
// to the write loop (fire-and-forget).
func (b *Backend) sendEnvelope(msgType string, payload any) error {
	data, err := marshalEnvelope(msgType, payload)
	if err != nil {
		return err
	}
	b.conn.send(data)
	return nil
}

func (b *Backend) RecordSession(s *core.SessionTrace) error {
	return b.sendEnvelope(streaming.TypeSession, s)
}

func (b *Backend) RecordBacktrack(t *core.BacktrackTrace) error {
	return b.sendEnvelope(streaming.TypeBacktrack, t)
}

func (b *Backend) RecordRestore(r *core.RestoreTrace) error {
	return b.sendEnvelope(streaming.TypeRestore, r)
}

// Sent returns how many messages reached a socket.
func (b *Backend) Sent() uint64 {
	return b.conn.sent.Load()
}

// Dropped returns how many messages were discarded.
func (b *Backend) Dropped() uint64 {
	return b.conn.dropped.Load()
}
