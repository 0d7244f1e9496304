package chat

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/raphaelgruber/termchat/internal/api"
	"github.com/raphaelgruber/termchat/internal/conn"
	"github.com/raphaelgruber/termchat/internal/metrics"
	"github.com/raphaelgruber/termchat/internal/models"
)

var (
	// ErrNotConnected is returned by SendMessage while the live connection
	// is not open.
	ErrNotConnected = errors.New("not connected")
	// ErrEmptyMessage is returned by SendMessage for blank content.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrSessionClosed is returned by commands after the session stopped.
	ErrSessionClosed = errors.New("session closed")
)

// Fetcher retrieves pages of conversation history.
type Fetcher interface {
	Messages(ctx context.Context, clientID string, page, perPage int) (api.MessagePage, error)
}

// Live is the session's view of the live connection.
type Live interface {
	Events() <-chan conn.Event
	Send(content string) error
	Close()
}

// Snapshot is the derived read-only view consumed by presentation.
type Snapshot struct {
	Messages  []models.Message
	Typing    bool
	Connected bool
	ConnState conn.State
	HasMore   bool
	Loading   bool
}

// cursor tracks how much older history has been loaded.
type cursor struct {
	page    int // last loaded page, 0 = none
	hasMore bool
	loading bool
}

type sendCmd struct {
	content string
	reply   chan error
}

type loadCmd struct{}

type pageResult struct {
	page    api.MessagePage
	pageNum int
	err     error
}

// Session composes the live connection, the history fetcher, and the log
// behind two commands: SendMessage and LoadOlderMessages. All state is owned
// by a single event loop; external events and commands are serialized through
// it, so the log needs no locking of its own.
type Session struct {
	clientID string
	fetcher  Fetcher
	live     Live
	logger   *slog.Logger
	stats    *metrics.Collector
	pageSize int

	cmds    chan any
	updates chan struct{}
	done    chan struct{}
	cancel  context.CancelFunc

	mu   sync.Mutex
	snap Snapshot
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithPageSize sets the history page size.
func WithPageSize(n int) SessionOption {
	return func(s *Session) {
		if n > 0 {
			s.pageSize = n
		}
	}
}

// NewSession creates a session for the given client id.
func NewSession(clientID string, fetcher Fetcher, live Live, logger *slog.Logger, stats *metrics.Collector, opts ...SessionOption) *Session {
	s := &Session{
		clientID: clientID,
		fetcher:  fetcher,
		live:     live,
		logger:   logger,
		stats:    stats,
		pageSize: 20,
		cmds:     make(chan any, 16),
		updates:  make(chan struct{}, 1),
		done:     make(chan struct{}),
		snap:     Snapshot{ConnState: conn.StateConnecting, HasMore: true},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the event loop and kicks off the initial history load. The
// initial load runs concurrently with the live connection coming up; neither
// waits for the other.
func (s *Session) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel

	go s.run(ctx)
	s.LoadOlderMessages()
}

// SendMessage appends an optimistic local echo and forwards the content over
// the live connection. Rejected with ErrNotConnected while disconnected and
// ErrEmptyMessage for blank content; in both cases no provisional entry is
// created and nothing goes out on the wire.
func (s *Session) SendMessage(content string) error {
	if strings.TrimSpace(content) == "" {
		return ErrEmptyMessage
	}

	cmd := sendCmd{content: content, reply: make(chan error, 1)}
	select {
	case s.cmds <- cmd:
	case <-s.done:
		return ErrSessionClosed
	}

	select {
	case err := <-cmd.reply:
		return err
	case <-s.done:
		return ErrSessionClosed
	}
}

// LoadOlderMessages requests the next (older) history page. Dropped silently
// when a fetch is already in flight or no more history is available.
func (s *Session) LoadOlderMessages() {
	select {
	case s.cmds <- loadCmd{}:
	case <-s.done:
	}
}

// Snapshot returns the current derived view. Safe to call from any goroutine.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Updates signals (coalesced) whenever the snapshot changes.
func (s *Session) Updates() <-chan struct{} {
	return s.updates
}

// Close stops the event loop and closes the live connection. Results of any
// outstanding history fetch are discarded.
func (s *Session) Close() {
	if s.cancel == nil {
		s.live.Close()
		return
	}
	s.cancel()
	s.live.Close()
	<-s.done
}

// run is the single writer of all session state.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)

	log := NewLog()
	cur := cursor{hasMore: true}
	typing := false
	connState := conn.StateConnecting
	everOpen := false

	publish := func() {
		snap := Snapshot{
			Messages:  log.Messages(),
			Typing:    typing,
			Connected: connState == conn.StateOpen,
			ConnState: connState,
			HasMore:   cur.hasMore,
			Loading:   cur.loading,
		}
		s.mu.Lock()
		s.snap = snap
		s.mu.Unlock()

		select {
		case s.updates <- struct{}{}:
		default:
		}
	}
	publish()

	events := s.live.Events()

	for {
		select {
		case <-ctx.Done():
			return

		case ev, ok := <-events:
			if !ok {
				// Connection manager stopped for good.
				events = nil
				connState = conn.StateClosed
				publish()
				continue
			}

			switch ev := ev.(type) {
			case conn.MessageEvent:
				s.stats.FrameReceived()
				if log.ApplyIncoming(ev.Message) {
					publish()
				}

			case conn.TypingEvent:
				s.stats.FrameReceived()
				typing = ev.IsTyping
				publish()

			case conn.ServerErrorEvent:
				// Non-fatal by contract: report upward, mutate nothing.
				s.stats.FrameReceived()
				s.logger.Warn("server reported error", "message", ev.Message)

			case conn.StateEvent:
				connState = ev.State
				if connState == conn.StateOpen {
					if everOpen {
						s.stats.Reconnected()
					}
					everOpen = true
				}
				publish()
			}

		case cmd := <-s.cmds:
			switch cmd := cmd.(type) {
			case sendCmd:
				cmd.reply <- s.handleSend(log, connState, cmd.content, publish)

			case loadCmd:
				s.handleLoad(ctx, &cur, publish)

			case pageResult:
				s.handlePageResult(log, &cur, cmd, publish)
			}
		}
	}
}

func (s *Session) handleSend(log *Log, connState conn.State, content string, publish func()) error {
	if connState != conn.StateOpen {
		return ErrNotConnected
	}

	msg := log.AppendLocalProvisional(content)
	publish()

	if err := s.live.Send(content); err != nil {
		// Roll back the optimistic echo; the message never left.
		log.RemoveProvisional(msg.ID)
		publish()
		return err
	}

	s.stats.MessageSent()
	return nil
}

func (s *Session) handleLoad(ctx context.Context, cur *cursor, publish func()) {
	if cur.loading || !cur.hasMore {
		return
	}

	cur.loading = true
	pageNum := cur.page + 1
	publish()

	go func() {
		start := time.Now()
		page, err := s.fetcher.Messages(ctx, s.clientID, pageNum, s.pageSize)
		s.stats.RecordFetch(time.Since(start), err)

		select {
		case s.cmds <- pageResult{page: page, pageNum: pageNum, err: err}:
		case <-ctx.Done():
			// Session torn down; result discarded.
		}
	}()
}

func (s *Session) handlePageResult(log *Log, cur *cursor, res pageResult, publish func()) {
	cur.loading = false

	if res.err != nil {
		// Fail closed: one failure stops pagination for the session.
		cur.hasMore = false
		s.logger.Warn("history fetch failed, pagination disabled", "page", res.pageNum, "error", res.err)
		publish()
		return
	}

	if len(res.page.Messages) == 0 {
		cur.hasMore = false
		s.logger.Debug("reached start of conversation", "page", res.pageNum)
		publish()
		return
	}

	log.PrependHistoryPage(res.page.Messages)
	cur.page = res.pageNum
	cur.hasMore = res.page.HasMore
	s.logger.Debug("history page loaded",
		"page", res.pageNum, "messages", len(res.page.Messages), "has_more", cur.hasMore)
	publish()
}
