// Package conn owns the live websocket connection to the chat backend:
// dialing, the reconnect schedule, frame parsing, and outbound sends.
package conn

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/raphaelgruber/termchat/internal/models"
)

// ErrNotConnected is returned by Send when the connection is not open.
var ErrNotConnected = errors.New("not connected")

// State is the connection lifecycle state.
type State int

const (
	// StateConnecting means a dial/handshake is in progress.
	StateConnecting State = iota
	// StateOpen means the socket is established and sends are accepted.
	StateOpen
	// StateRetrying means the connection dropped and a reconnect is scheduled.
	StateRetrying
	// StateClosed is terminal: either Close was called or the retry budget
	// is exhausted.
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateRetrying:
		return "retrying"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// maxRetries is the reconnect attempt budget. After this many failed
// reconnects the manager gives up; there is no later recovery path.
const maxRetries = 5

// retryDelay returns the backoff delay before reconnect attempt n (0-based):
// 1s, 2s, 4s, 8s, 16s, capped at 30s.
func retryDelay(attempt int) time.Duration {
	d := time.Second << attempt
	if d > 30*time.Second {
		d = 30 * time.Second
	}
	return d
}

// Event is a typed inbound event from the connection. One of MessageEvent,
// TypingEvent, ServerErrorEvent, or StateEvent.
type Event interface {
	event()
}

// MessageEvent carries a server-confirmed chat message.
type MessageEvent struct {
	Message models.Message
}

// TypingEvent carries the assistant typing indicator. Last value wins.
type TypingEvent struct {
	IsTyping bool
}

// ServerErrorEvent carries a non-fatal error frame from the server. The
// connection stays open.
type ServerErrorEvent struct {
	Message string
}

// StateEvent reports a connection state transition.
type StateEvent struct {
	State State
}

func (MessageEvent) event()     {}
func (TypingEvent) event()      {}
func (ServerErrorEvent) event() {}
func (StateEvent) event()       {}

// frame is the wire form of one websocket message, discriminated by Type.
type frame struct {
	Type      string `json:"type"`
	ID        string `json:"id,omitempty"`
	Role      string `json:"role,omitempty"`
	Content   string `json:"content,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	IsTyping  bool   `json:"is_typing,omitempty"`
	Message   string `json:"message,omitempty"`
}

type dialFunc func(ctx context.Context) (*websocket.Conn, error)

// Manager owns the websocket lifecycle. Inbound frames are parsed into typed
// events and delivered in arrival order on Events; outbound sends are only
// accepted while the connection is open.
type Manager struct {
	logger  *slog.Logger
	events  chan Event
	dial    dialFunc
	backoff func(attempt int) time.Duration

	mu     sync.Mutex
	ws     *websocket.Conn
	state  State
	closed bool
	cancel context.CancelFunc
}

// Option configures a Manager.
type Option func(*Manager)

// WithDialer overrides the dial function (used in tests).
func WithDialer(dial func(ctx context.Context) (*websocket.Conn, error)) Option {
	return func(m *Manager) { m.dial = dial }
}

// WithBackoff overrides the reconnect delay schedule (used in tests).
func WithBackoff(backoff func(attempt int) time.Duration) Option {
	return func(m *Manager) { m.backoff = backoff }
}

// New creates a Manager dialing {wsURL}/api/chat/ws/{clientID}.
func New(wsURL, clientID string, logger *slog.Logger, opts ...Option) *Manager {
	endpoint := fmt.Sprintf("%s/api/chat/ws/%s", wsURL, url.PathEscape(clientID))

	m := &Manager{
		logger:  logger,
		events:  make(chan Event, 64),
		backoff: retryDelay,
		state:   StateConnecting,
	}
	m.dial = func(ctx context.Context) (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
		ws, _, err := dialer.DialContext(ctx, endpoint, nil)
		return ws, err
	}

	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Events returns the inbound event stream. The channel is closed once the
// manager stops for good (Close called or retry budget exhausted).
func (m *Manager) Events() <-chan Event {
	return m.events
}

// State returns the current connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start launches the connect/reconnect loop.
func (m *Manager) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	go m.run(ctx)
}

// Send writes an outbound message frame. Returns ErrNotConnected while the
// connection is anything other than open.
func (m *Manager) Send(content string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateOpen || m.ws == nil {
		return ErrNotConnected
	}

	out := frame{Type: "message", Content: content}
	if err := m.ws.WriteJSON(out); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}

// Close cancels any pending reconnect and closes the active socket. After
// Close no automatic reconnection occurs and the event channel is closed.
func (m *Manager) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	cancel := m.cancel
	ws := m.ws
	m.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if ws != nil {
		_ = ws.Close()
	}
}

func (m *Manager) run(ctx context.Context) {
	defer close(m.events)

	attempt := 0
	for {
		m.setState(ctx, StateConnecting)

		ws, err := m.dial(ctx)
		if err != nil {
			m.logger.Warn("websocket dial failed", "error", err, "attempt", attempt)
		} else {
			m.mu.Lock()
			if m.closed {
				m.mu.Unlock()
				_ = ws.Close()
				m.setStateQuiet(StateClosed)
				return
			}
			m.ws = ws
			m.mu.Unlock()

			m.setState(ctx, StateOpen)
			attempt = 0
			m.logger.Info("websocket connected")

			m.readLoop(ctx, ws)

			m.mu.Lock()
			m.ws = nil
			m.mu.Unlock()
			_ = ws.Close()
		}

		if ctx.Err() != nil || m.isClosed() {
			m.setStateQuiet(StateClosed)
			return
		}

		if attempt >= maxRetries {
			m.logger.Error("reconnect budget exhausted, giving up", "attempts", attempt)
			m.setState(ctx, StateClosed)
			return
		}

		delay := m.backoff(attempt)
		attempt++
		m.logger.Info("websocket disconnected, retrying", "delay", delay, "attempt", attempt)
		m.setState(ctx, StateRetrying)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			m.setStateQuiet(StateClosed)
			return
		}
	}
}

// readLoop reads frames until the connection fails. Malformed frames are
// dropped without closing the connection.
func (m *Manager) readLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !m.isClosed() {
				m.logger.Warn("websocket read failed", "error", err)
			}
			return
		}

		var f frame
		if err := json.Unmarshal(data, &f); err != nil {
			m.logger.Warn("discarding malformed frame", "error", err)
			continue
		}

		switch f.Type {
		case "message":
			createdAt, err := models.ParseTime(f.CreatedAt)
			if err != nil {
				m.logger.Warn("discarding message frame with bad timestamp", "id", f.ID, "error", err)
				continue
			}
			m.emit(ctx, MessageEvent{Message: models.Message{
				ID:        f.ID,
				Role:      models.Role(f.Role),
				Content:   f.Content,
				CreatedAt: createdAt,
				Status:    models.StatusConfirmed,
			}})

		case "typing_indicator":
			m.emit(ctx, TypingEvent{IsTyping: f.IsTyping})

		case "error":
			m.logger.Warn("server error frame", "message", f.Message)
			m.emit(ctx, ServerErrorEvent{Message: f.Message})

		default:
			m.logger.Debug("ignoring unknown frame type", "type", f.Type)
		}
	}
}

func (m *Manager) emit(ctx context.Context, ev Event) {
	select {
	case m.events <- ev:
	case <-ctx.Done():
	}
}

func (m *Manager) setState(ctx context.Context, s State) {
	m.mu.Lock()
	changed := m.state != s
	m.state = s
	m.mu.Unlock()

	if changed {
		m.emit(ctx, StateEvent{State: s})
	}
}

// setStateQuiet records a terminal state without emitting; used on the
// shutdown paths where the consumer may already be gone.
func (m *Manager) setStateQuiet(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Manager) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}
