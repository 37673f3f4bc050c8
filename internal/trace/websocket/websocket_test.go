package websocket

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/lagcomp/internal/config"
	"github.com/OCAP2/lagcomp/pkg/core"
	"github.com/OCAP2/lagcomp/pkg/streaming"
)

// viewer is an httptest server that upgrades to WebSocket, records received
// messages, and acks hello. With dropFirst set it closes the first socket
// right after the first record.
type viewer struct {
	srv       *httptest.Server
	mu        sync.Mutex
	messages  []streaming.Envelope
	secrets   []string
	conns     atomic.Int32
	dropFirst bool
}

func newViewer(t *testing.T, dropFirst bool) *viewer {
	t.Helper()
	v := &viewer{dropFirst: dropFirst}

	upgrader := ws.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	v.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Logf("upgrade error: %v", err)
			return
		}
		defer c.Close()
		n := v.conns.Add(1)

		v.mu.Lock()
		v.secrets = append(v.secrets, r.URL.Query().Get("secret"))
		v.mu.Unlock()

		for {
			_, msg, err := c.ReadMessage()
			if err != nil {
				return
			}

			var env streaming.Envelope
			if err := json.Unmarshal(msg, &env); err != nil {
				continue
			}
			v.add(env)

			if env.Type == streaming.TypeHello {
				data, _ := json.Marshal(streaming.AckMessage{Type: streaming.TypeAck, For: env.Type})
				if err := c.WriteMessage(ws.TextMessage, data); err != nil {
					return
				}
			}
			if v.dropFirst && n == 1 && env.Type != streaming.TypeHello {
				return
			}
		}
	}))
	t.Cleanup(v.srv.Close)
	return v
}

func (v *viewer) add(env streaming.Envelope) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.messages = append(v.messages, env)
}

func (v *viewer) all() []streaming.Envelope {
	v.mu.Lock()
	defer v.mu.Unlock()
	cp := make([]streaming.Envelope, len(v.messages))
	copy(cp, v.messages)
	return cp
}

func (v *viewer) types() []string {
	var out []string
	for _, env := range v.all() {
		out = append(out, env.Type)
	}
	return out
}

func (v *viewer) url() string {
	return "ws" + strings.TrimPrefix(v.srv.URL, "http")
}

var testHello = streaming.HelloPayload{Name: "test", TickRate: 64}

func TestInitSendsHello(t *testing.T) {
	v := newViewer(t, false)

	b := New(config.WebSocketConfig{URL: v.url(), Secret: "s3cret"}, testHello, nil)
	require.NoError(t, b.Init())
	defer b.Close()

	msgs := v.all()
	require.Len(t, msgs, 1)
	assert.Equal(t, streaming.TypeHello, msgs[0].Type)

	var hello streaming.HelloPayload
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &hello))
	assert.Equal(t, 64, hello.TickRate)

	v.mu.Lock()
	assert.Equal(t, []string{"s3cret"}, v.secrets)
	v.mu.Unlock()
}

func TestInitErrors(t *testing.T) {
	b := New(config.WebSocketConfig{}, testHello, nil)
	assert.Error(t, b.Init())

	b = New(config.WebSocketConfig{URL: "ws://127.0.0.1:1/trace"}, testHello, nil)
	assert.Error(t, b.Init())
}

func TestRecordsAreStreamedInOrder(t *testing.T) {
	v := newViewer(t, false)

	b := New(config.WebSocketConfig{URL: v.url()}, testHello, nil)
	require.NoError(t, b.Init())

	require.NoError(t, b.RecordSession(&core.SessionTrace{SessionID: "s", Attacker: 1}))
	require.NoError(t, b.RecordBacktrack(&core.BacktrackTrace{SessionID: "s", Actor: 2, To: core.Vec3{X: 7}}))
	require.NoError(t, b.RecordRestore(&core.RestoreTrace{SessionID: "s", Actor: 2, Origin: core.RestoreExact}))
	require.NoError(t, b.Close())

	assert.Eventually(t, func() bool {
		return len(v.all()) == 5
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, []string{
		streaming.TypeHello,
		streaming.TypeSession,
		streaming.TypeBacktrack,
		streaming.TypeRestore,
		streaming.TypeGoodbye,
	}, v.types())

	var bt core.BacktrackTrace
	require.NoError(t, json.Unmarshal(v.all()[2].Payload, &bt))
	assert.Equal(t, core.Vec3{X: 7}, bt.To)
	assert.Equal(t, uint64(5), b.Sent())
	assert.Zero(t, b.Dropped())
}

func TestReconnectReplaysHello(t *testing.T) {
	v := newViewer(t, true)

	b := New(config.WebSocketConfig{URL: v.url()}, testHello, nil)
	b.conn.backoff = 10 * time.Millisecond
	require.NoError(t, b.Init())
	defer b.Close()

	require.NoError(t, b.RecordSession(&core.SessionTrace{SessionID: "first"}))

	assert.Eventually(t, func() bool {
		return v.conns.Load() == 2
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.RecordSession(&core.SessionTrace{SessionID: "second"}))

	assert.Eventually(t, func() bool {
		types := v.types()
		return len(types) >= 4 && types[len(types)-1] == streaming.TypeSession
	}, 2*time.Second, 10*time.Millisecond)

	types := v.types()
	assert.Equal(t, streaming.TypeHello, types[0])
	assert.Equal(t, streaming.TypeSession, types[1])
	assert.Equal(t, streaming.TypeHello, types[2], "hello is replayed on the new socket")
}

func TestCloseIsIdempotent(t *testing.T) {
	v := newViewer(t, false)

	b := New(config.WebSocketConfig{URL: v.url()}, testHello, nil)
	require.NoError(t, b.Init())
	require.NoError(t, b.Close())
	assert.NoError(t, b.Close())
}
