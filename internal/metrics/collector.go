// Package metrics provides in-memory session statistics collection.
package metrics

import (
	"sync"
	"time"
)

// Collector aggregates counters for one client session.
// All methods are thread-safe.
type Collector struct {
	mu        sync.Mutex
	startTime time.Time

	framesReceived int64
	messagesSent   int64
	reconnects     int64
	historyPages   int64
	fetchErrors    int64

	fetchCount int64
	fetchTotal time.Duration
	fetchMin   time.Duration
	fetchMax   time.Duration
}

// Snapshot is a point-in-time copy of the collected statistics.
type Snapshot struct {
	UptimeSeconds  float64
	FramesReceived int64
	MessagesSent   int64
	Reconnects     int64
	HistoryPages   int64
	FetchErrors    int64

	FetchCount int64
	FetchAvgMs float64
	FetchMinMs int64
	FetchMaxMs int64
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{startTime: time.Now()}
}

// FrameReceived counts one inbound socket frame.
func (c *Collector) FrameReceived() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.framesReceived++
}

// MessageSent counts one outbound chat message.
func (c *Collector) MessageSent() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messagesSent++
}

// Reconnected counts one successful reconnect after a drop.
func (c *Collector) Reconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.reconnects++
}

// RecordFetch records the outcome of one history page fetch.
func (c *Collector) RecordFetch(duration time.Duration, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		c.fetchErrors++
		return
	}

	c.historyPages++
	c.fetchCount++
	c.fetchTotal += duration
	if c.fetchMin == 0 || duration < c.fetchMin {
		c.fetchMin = duration
	}
	if duration > c.fetchMax {
		c.fetchMax = duration
	}
}

// Snapshot returns a copy of the current statistics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		UptimeSeconds:  time.Since(c.startTime).Seconds(),
		FramesReceived: c.framesReceived,
		MessagesSent:   c.messagesSent,
		Reconnects:     c.reconnects,
		HistoryPages:   c.historyPages,
		FetchErrors:    c.fetchErrors,
		FetchCount:     c.fetchCount,
		FetchMinMs:     c.fetchMin.Milliseconds(),
		FetchMaxMs:     c.fetchMax.Milliseconds(),
	}
	if c.fetchCount > 0 {
		snap.FetchAvgMs = float64(c.fetchTotal.Milliseconds()) / float64(c.fetchCount)
	}
	return snap
}

// LogArgs returns the snapshot as alternating key/value pairs for slog.
func (s Snapshot) LogArgs() []any {
	return []any{
		"frames_received", s.FramesReceived,
		"messages_sent", s.MessagesSent,
		"reconnects", s.Reconnects,
		"history_pages", s.HistoryPages,
		"fetch_errors", s.FetchErrors,
		"fetch_avg_ms", s.FetchAvgMs,
	}
}
