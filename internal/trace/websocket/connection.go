package websocket

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/OCAP2/lagcomp/pkg/streaming"
)

const (
	sendChSize   = 10_000
	ackChSize    = 16
	maxReconnect = 10
	maxBackoff   = 30 * time.Second
	writeWait    = 10 * time.Second
	ackTimeout   = 10 * time.Second
)

// connection owns one WebSocket with a single writer goroutine. When either
// loop fails it is torn down and redialled with exponential backoff.
type connection struct {
	mu     sync.Mutex
	conn   *ws.Conn
	sendCh chan []byte
	ackCh  chan streaming.AckMessage
	done   chan struct{} // closed on shutdown
	closed bool

	wsURL  string
	secret string

	// hello is written first on every new socket.
	hello []byte

	// generation increments per socket so a stale loop cannot trigger a
	// second reconnect for the same failure.
	generation   atomic.Uint64
	reconnecting atomic.Bool
	backoff      time.Duration

	queued  atomic.Uint64 // accepted by send
	sent    atomic.Uint64 // written to a socket
	lost    atomic.Uint64 // accepted, then dropped on requeue
	dropped atomic.Uint64 // every message that never reached a socket

	logger *slog.Logger
}

func newConnection(logger *slog.Logger) *connection {
	return &connection{
		sendCh:  make(chan []byte, sendChSize),
		ackCh:   make(chan streaming.AckMessage, ackChSize),
		done:    make(chan struct{}),
		backoff: time.Second,
		logger:  logger,
	}
}

// dial connects to the WebSocket server and starts read/write loops.
func (c *connection) dial(rawURL, secret string) error {
	c.wsURL = rawURL
	c.secret = secret

	conn, err := c.dialOnce()
	if err != nil {
		return err
	}
	c.attach(conn)
	return nil
}

// dialOnce performs a single WebSocket dial with the secret query param.
func (c *connection) dialOnce() (*ws.Conn, error) {
	u, err := url.Parse(c.wsURL)
	if err != nil {
		return nil, fmt.Errorf("invalid websocket URL: %w", err)
	}
	q := u.Query()
	q.Set("secret", c.secret)
	u.RawQuery = q.Encode()

	conn, _, err := ws.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("websocket dial failed: %w", err)
	}
	return conn, nil
}

// attach installs conn as the live socket and starts its loops.
func (c *connection) attach(conn *ws.Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()

	gen := c.generation.Add(1)
	dead := make(chan struct{})
	go c.writeLoop(conn, gen, dead)
	go c.readLoop(conn, gen, dead)
}

// fail schedules a reconnect for the socket of generation gen. Later calls
// for the same generation are ignored.
func (c *connection) fail(gen uint64, err error) {
	select {
	case <-c.done:
		return
	default:
	}
	if c.generation.Load() != gen || !c.reconnecting.CompareAndSwap(false, true) {
		return
	}
	c.logger.Warn("WebSocket connection lost", "error", err)
	go c.reconnect()
}

// writeLoop drains sendCh onto conn until conn fails or shutdown.
func (c *connection) writeLoop(conn *ws.Conn, gen uint64, dead <-chan struct{}) {
	for {
		select {
		case <-c.done:
			return
		case <-dead:
			return
		case data := <-c.sendCh:
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				c.requeue(data)
				c.fail(gen, err)
				return
			}
			if err := conn.WriteMessage(ws.TextMessage, data); err != nil {
				c.requeue(data)
				c.fail(gen, err)
				return
			}
			c.sent.Add(1)
		}
	}
}

// readLoop routes acks from conn to ackCh. It closes dead when conn fails.
func (c *connection) readLoop(conn *ws.Conn, gen uint64, dead chan<- struct{}) {
	defer close(dead)
	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			c.fail(gen, err)
			return
		}

		var ack streaming.AckMessage
		if err := json.Unmarshal(message, &ack); err != nil || ack.Type != streaming.TypeAck {
			c.logger.Debug("Non-ack message received", "raw", string(message))
			continue
		}

		select {
		case c.ackCh <- ack:
		default:
			c.logger.Debug("Ack channel full, dropping", "for", ack.For)
		}
	}
}

// reconnect redials with exponential backoff, writes the hello message on
// the new socket and restarts the loops.
func (c *connection) reconnect() {
	defer c.reconnecting.Store(false)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	backoff := c.backoff
	for attempt := 1; attempt <= maxReconnect; attempt++ {
		select {
		case <-c.done:
			return
		case <-time.After(backoff):
		}

		c.logger.Info("Reconnecting to WebSocket", "attempt", attempt, "backoff", backoff)
		conn, err := c.dialOnce()
		if err != nil {
			c.logger.Warn("Reconnect dial failed", "attempt", attempt, "error", err)
			backoff = min(backoff*2, maxBackoff)
			continue
		}

		c.mu.Lock()
		hello := c.hello
		c.mu.Unlock()

		if hello != nil {
			if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err == nil {
				err = conn.WriteMessage(ws.TextMessage, hello)
			}
			if err != nil {
				c.logger.Warn("Failed to replay hello after reconnect", "error", err)
				_ = conn.Close()
				continue
			}
		}

		c.logger.Info("WebSocket reconnected", "attempt", attempt)
		c.attach(conn)
		return
	}

	c.logger.Error("WebSocket reconnect failed after max attempts", "maxAttempts", maxReconnect)
}

// requeue puts back a message whose write failed, dropping it when the
// channel has filled up meanwhile.
func (c *connection) requeue(data []byte) {
	select {
	case c.sendCh <- data:
	default:
		c.lost.Add(1)
		c.dropped.Add(1)
	}
}

// send pushes data to the write loop. Non-blocking; drops if channel full.
func (c *connection) send(data []byte) {
	select {
	case c.sendCh <- data:
		c.queued.Add(1)
	default:
		c.dropped.Add(1)
		c.logger.Warn("WebSocket send channel full, dropping message")
	}
}

// sendAndWait sends data and blocks until the server acknowledges with a
// matching ack message or the timeout expires.
func (c *connection) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	c.send(data)

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-c.ackCh:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("timeout waiting for ack of %q", ackFor)
		case <-c.done:
			return fmt.Errorf("connection closed while waiting for ack of %q", ackFor)
		}
	}
}

// flush waits until every accepted message has been written or lost, or
// timeout passes.
func (c *connection) flush(timeout time.Duration) {
	deadline := time.Now().Add(timeout)
	for c.sent.Load()+c.lost.Load() < c.queued.Load() && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
}

func (c *connection) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// close sends a WebSocket close frame and shuts down all goroutines.
func (c *connection) close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	close(c.done)
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	if conn != nil {
		_ = conn.WriteControl(
			ws.CloseMessage,
			ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
			time.Now().Add(writeWait),
		)
		return conn.Close()
	}
	return nil
}
