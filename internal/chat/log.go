// Package chat holds the conversation state: the reconciled message log and
// the session controller that feeds it from the live connection and the
// history fetcher.
package chat

import (
	"time"

	"github.com/google/uuid"

	"github.com/raphaelgruber/termchat/internal/models"
)

// localIDPrefix marks client-generated provisional ids so they can never
// collide with server ids.
const localIDPrefix = "local-"

// Log is the reconciled conversation: loaded history pages followed by live
// messages. It guarantees that no two entries share a server id and that at
// most one provisional entry exists at a time.
//
// Log is not safe for concurrent use; the session loop is its single writer.
type Log struct {
	history []models.Message
	live    []models.Message
	seen    map[string]struct{}
}

// NewLog creates an empty log.
func NewLog() *Log {
	return &Log{seen: make(map[string]struct{})}
}

// AppendLocalProvisional creates a provisional user message, appends it at
// the tail, and returns it. The echo from the server later replaces it via
// ApplyIncoming.
func (l *Log) AppendLocalProvisional(content string) models.Message {
	msg := models.Message{
		ID:        localIDPrefix + uuid.NewString(),
		Role:      models.RoleUser,
		Content:   content,
		CreatedAt: time.Now().UTC(),
		Status:    models.StatusProvisional,
	}
	l.live = append(l.live, msg)
	return msg
}

// ApplyIncoming merges a server-confirmed message into the tail of the log.
// A user-role message confirms the pending optimistic echo: the most recent
// provisional entry is removed before the confirmed copy is appended.
// Redelivery of an already-seen server id is a no-op. Reports whether the
// log changed.
func (l *Log) ApplyIncoming(msg models.Message) bool {
	if msg.ID != "" {
		if _, dup := l.seen[msg.ID]; dup {
			return false
		}
	}

	if msg.Role == models.RoleUser {
		l.removeLatestProvisional()
	}

	msg.Status = models.StatusConfirmed
	l.live = append(l.live, msg)
	if msg.ID != "" {
		l.seen[msg.ID] = struct{}{}
	}
	return true
}

// PrependHistoryPage splices a fetched page before all retained entries.
// The page's internal order (oldest first) is preserved. Entries whose
// server id is already present are skipped.
func (l *Log) PrependHistoryPage(msgs []models.Message) {
	if len(msgs) == 0 {
		return
	}

	page := make([]models.Message, 0, len(msgs))
	for _, msg := range msgs {
		if msg.ID != "" {
			if _, dup := l.seen[msg.ID]; dup {
				continue
			}
			l.seen[msg.ID] = struct{}{}
		}
		msg.Status = models.StatusConfirmed
		page = append(page, msg)
	}

	l.history = append(page, l.history...)
}

// RemoveProvisional deletes the provisional entry with the given local id,
// if present. Used to roll back an optimistic echo whose send failed.
func (l *Log) RemoveProvisional(id string) {
	for i := len(l.live) - 1; i >= 0; i-- {
		if l.live[i].ID == id && l.live[i].Provisional() {
			l.live = append(l.live[:i], l.live[i+1:]...)
			return
		}
	}
}

// Messages returns a copy of the full log, history first.
func (l *Log) Messages() []models.Message {
	out := make([]models.Message, 0, len(l.history)+len(l.live))
	out = append(out, l.history...)
	out = append(out, l.live...)
	return out
}

// Len returns the number of entries in the log.
func (l *Log) Len() int {
	return len(l.history) + len(l.live)
}

func (l *Log) removeLatestProvisional() {
	for i := len(l.live) - 1; i >= 0; i-- {
		if l.live[i].Provisional() {
			l.live = append(l.live[:i], l.live[i+1:]...)
			return
		}
	}
}
