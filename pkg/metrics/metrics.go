// Package metrics tracks transfer and discovery counters with plain
// atomic integers and periodically emits them through a log sink — no
// external metrics backend, matching the reference pack's
// runtime-stats-over-a-ticker style rather than introducing a
// prometheus/expvar dependency nothing in the pack uses.
package metrics

import (
	"strconv"
	"sync/atomic"
	"time"
)

// Logger is the minimal sink the periodic reporter needs.
type Logger interface {
	Log(message string)
}

// Counters holds the node's atomic transfer and discovery counters. The
// zero value is ready to use.
type Counters struct {
	bytesServed       int64
	bytesReceived     int64
	chunksServed      int64
	chunksReceived    int64
	discoveryMessages int64
	started           time.Time
}

// NewCounters creates a Counters instance stamped with the current time
// as its start time.
func NewCounters(now time.Time) *Counters {
	return &Counters{started: now}
}

// RecordChunkServed records bytes written out in response to a
// REQUEST_CHUNK.
func (c *Counters) RecordChunkServed(n int) {
	atomic.AddInt64(&c.bytesServed, int64(n))
	atomic.AddInt64(&c.chunksServed, 1)
}

// RecordChunkReceived records bytes accepted by the download engine.
func (c *Counters) RecordChunkReceived(n int) {
	atomic.AddInt64(&c.bytesReceived, int64(n))
	atomic.AddInt64(&c.chunksReceived, 1)
}

// RecordDiscoveryMessage increments the discovery packet counter.
func (c *Counters) RecordDiscoveryMessage() {
	atomic.AddInt64(&c.discoveryMessages, 1)
}

// Snapshot is a point-in-time, non-atomic copy of the counters suitable
// for JSON serialization or logging.
type Snapshot struct {
	BytesServed       int64         `json:"bytes_served"`
	BytesReceived     int64         `json:"bytes_received"`
	ChunksServed      int64         `json:"chunks_served"`
	ChunksReceived    int64         `json:"chunks_received"`
	DiscoveryMessages int64         `json:"discovery_messages"`
	Uptime            time.Duration `json:"uptime"`
}

// Snapshot reads every counter.
func (c *Counters) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		BytesServed:       atomic.LoadInt64(&c.bytesServed),
		BytesReceived:     atomic.LoadInt64(&c.bytesReceived),
		ChunksServed:      atomic.LoadInt64(&c.chunksServed),
		ChunksReceived:    atomic.LoadInt64(&c.chunksReceived),
		DiscoveryMessages: atomic.LoadInt64(&c.discoveryMessages),
		Uptime:            now.Sub(c.started),
	}
}

// LogPeriodic logs a snapshot at the given interval until stop is closed.
func (c *Counters) LogPeriodic(logger Logger, interval time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			s := c.Snapshot(time.Now())
			logger.Log(formatSnapshot(s))
		}
	}
}

func formatSnapshot(s Snapshot) string {
	return "[metrics] served=" + strconv.FormatInt(s.BytesServed, 10) + "B" +
		" received=" + strconv.FormatInt(s.BytesReceived, 10) + "B" +
		" chunksServed=" + strconv.FormatInt(s.ChunksServed, 10) +
		" chunksReceived=" + strconv.FormatInt(s.ChunksReceived, 10) +
		" discoveryMsgs=" + strconv.FormatInt(s.DiscoveryMessages, 10) +
		" uptime=" + s.Uptime.Round(time.Second).String()
}
