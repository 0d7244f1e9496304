package conn

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raphaelgruber/termchat/internal/models"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

// newWSServer starts a websocket server that runs handler for each
// connection and returns a ws:// base URL for the manager.
func newWSServer(t *testing.T, handler func(ws *websocket.Conn)) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		handler(ws)
	}))
	t.Cleanup(srv.Close)

	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func waitEvent(t *testing.T, events <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-events:
		require.True(t, ok, "event channel closed unexpectedly")
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for event")
		return nil
	}
}

// waitState consumes events until the given state is reported.
func waitState(t *testing.T, events <-chan Event, want State) {
	t.Helper()
	for {
		ev := waitEvent(t, events)
		if st, ok := ev.(StateEvent); ok && st.State == want {
			return
		}
	}
}

func TestRetryDelay(t *testing.T) {
	tests := []struct {
		attempt int
		want    time.Duration
	}{
		{0, time.Second},
		{1, 2 * time.Second},
		{2, 4 * time.Second},
		{3, 8 * time.Second},
		{4, 16 * time.Second},
		{5, 30 * time.Second}, // capped
		{6, 30 * time.Second},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, retryDelay(tt.attempt), "attempt %d", tt.attempt)
	}
}

func TestManager_TypedEvents(t *testing.T) {
	frames := []string{
		`{"type":"message","id":"srv1","role":"assistant","content":"hello","created_at":"2025-06-01T10:00:00Z"}`,
		`{"type":"typing_indicator","is_typing":true}`,
		`not json at all`,
		`{"type":"error","message":"rate limited"}`,
		`{"type":"something_new","payload":1}`,
		`{"type":"message","id":"srv2","role":"assistant","content":"still here","created_at":"2025-06-01T10:00:01Z"}`,
	}

	wsURL := newWSServer(t, func(ws *websocket.Conn) {
		for _, f := range frames {
			if err := ws.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		// Hold the connection open until the client goes away.
		_, _, _ = ws.ReadMessage()
	})

	m := New(wsURL, "client-1", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Close()

	waitState(t, m.Events(), StateOpen)

	ev := waitEvent(t, m.Events())
	msg, ok := ev.(MessageEvent)
	require.True(t, ok, "expected MessageEvent, got %T", ev)
	assert.Equal(t, "srv1", msg.Message.ID)
	assert.Equal(t, models.RoleAssistant, msg.Message.Role)
	assert.Equal(t, models.StatusConfirmed, msg.Message.Status)

	ev = waitEvent(t, m.Events())
	typing, ok := ev.(TypingEvent)
	require.True(t, ok, "expected TypingEvent, got %T", ev)
	assert.True(t, typing.IsTyping)

	// The malformed frame and the unknown type are dropped; next up is the
	// server error, then the second message proves the connection survived.
	ev = waitEvent(t, m.Events())
	srvErr, ok := ev.(ServerErrorEvent)
	require.True(t, ok, "expected ServerErrorEvent, got %T", ev)
	assert.Equal(t, "rate limited", srvErr.Message)

	ev = waitEvent(t, m.Events())
	msg2, ok := ev.(MessageEvent)
	require.True(t, ok, "expected MessageEvent, got %T", ev)
	assert.Equal(t, "srv2", msg2.Message.ID)
}

func TestManager_Send(t *testing.T) {
	received := make(chan string, 1)
	wsURL := newWSServer(t, func(ws *websocket.Conn) {
		_, data, err := ws.ReadMessage()
		if err != nil {
			return
		}
		received <- string(data)
		_, _, _ = ws.ReadMessage()
	})

	m := New(wsURL, "client-1", testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Close()

	waitState(t, m.Events(), StateOpen)
	require.NoError(t, m.Send("hi there"))

	select {
	case data := <-received:
		var f map[string]any
		require.NoError(t, json.Unmarshal([]byte(data), &f))
		assert.Equal(t, "message", f["type"])
		assert.Equal(t, "hi there", f["content"])
	case <-time.After(2 * time.Second):
		t.Fatal("server never received the frame")
	}
}

func TestManager_SendNotConnected(t *testing.T) {
	m := New("ws://localhost:1", "client-1", testLogger())
	// Never started: state is connecting, sends must be rejected.
	assert.ErrorIs(t, m.Send("hi"), ErrNotConnected)
}

func TestManager_RetryCapStopsReconnecting(t *testing.T) {
	var dials atomic.Int32
	m := New("ws://ignored", "client-1", testLogger(),
		WithDialer(func(ctx context.Context) (*websocket.Conn, error) {
			dials.Add(1)
			return nil, context.DeadlineExceeded
		}),
		WithBackoff(func(int) time.Duration { return time.Millisecond }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	waitState(t, m.Events(), StateClosed)

	// Drain: the channel must close with no further retries happening.
	for range m.Events() {
	}
	// Initial attempt plus five retries.
	assert.Equal(t, int32(6), dials.Load())
	assert.Equal(t, StateClosed, m.State())
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	var conns atomic.Int32
	wsURL := newWSServer(t, func(ws *websocket.Conn) {
		n := conns.Add(1)
		if n == 1 {
			// First connection: drop immediately to force a retry.
			return
		}
		_ = ws.WriteMessage(websocket.TextMessage,
			[]byte(`{"type":"message","id":"after-reconnect","role":"assistant","content":"back","created_at":"2025-06-01T10:00:00Z"}`))
		_, _, _ = ws.ReadMessage()
	})

	m := New(wsURL, "client-1", testLogger(),
		WithBackoff(func(int) time.Duration { return time.Millisecond }))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)
	defer m.Close()

	// open -> retrying -> open again, then the message arrives.
	waitState(t, m.Events(), StateOpen)
	waitState(t, m.Events(), StateOpen)

	ev := waitEvent(t, m.Events())
	msg, ok := ev.(MessageEvent)
	require.True(t, ok, "expected MessageEvent, got %T", ev)
	assert.Equal(t, "after-reconnect", msg.Message.ID)
	assert.GreaterOrEqual(t, conns.Load(), int32(2))
}

func TestManager_CloseCancelsPendingRetry(t *testing.T) {
	var dials atomic.Int32
	m := New("ws://ignored", "client-1", testLogger(),
		WithDialer(func(ctx context.Context) (*websocket.Conn, error) {
			dials.Add(1)
			return nil, context.DeadlineExceeded
		}),
		// Long delay: Close must not wait it out.
		WithBackoff(func(int) time.Duration { return time.Hour }),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.Start(ctx)

	waitState(t, m.Events(), StateRetrying)
	m.Close()

	done := make(chan struct{})
	go func() {
		for range m.Events() {
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("event channel did not close after Close")
	}
	assert.Equal(t, int32(1), dials.Load(), "no dial after Close")
	assert.Equal(t, StateClosed, m.State())
}
