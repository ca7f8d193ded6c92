// Package clientmetrics counts traffic on a single stream connection: the
// server side of a hub subscriber or the client side of a watcher.
package clientmetrics

import (
	"sync/atomic"
	"time"
)

// ConnStats tracks message and byte counts for one connection.
type ConnStats struct {
	connectedAt atomic.Int64 // unix nanos, 0 when not connected
	sent        atomic.Int64
	sentBytes   atomic.Int64
	received    atomic.Int64
	recvBytes   atomic.Int64
	errors      atomic.Int64
}

func New() *ConnStats {
	return &ConnStats{}
}

// MarkConnected records the connection time.
func (m *ConnStats) MarkConnected() {
	m.connectedAt.Store(time.Now().UnixNano())
}

// MarkDisconnected clears the connection time.
func (m *ConnStats) MarkDisconnected() {
	m.connectedAt.Store(0)
}

func (m *ConnStats) RecordSent(bytes int) {
	m.sent.Add(1)
	m.sentBytes.Add(int64(bytes))
}

func (m *ConnStats) RecordReceived(bytes int) {
	m.received.Add(1)
	m.recvBytes.Add(int64(bytes))
}

func (m *ConnStats) RecordError() {
	m.errors.Add(1)
}

// Connected returns how long the connection has been open, or 0.
func (m *ConnStats) Connected() time.Duration {
	at := m.connectedAt.Load()
	if at == 0 {
		return 0
	}
	return time.Since(time.Unix(0, at))
}

func (m *ConnStats) Sent() int64     { return m.sent.Load() }
func (m *ConnStats) Received() int64 { return m.received.Load() }
func (m *ConnStats) Errors() int64   { return m.errors.Load() }

// Snapshot is a point-in-time copy of ConnStats.
type Snapshot struct {
	Connected     time.Duration `json:"connectedSeconds"`
	Sent          int64         `json:"sent"`
	SentBytes     int64         `json:"sentBytes"`
	Received      int64         `json:"received"`
	ReceivedBytes int64         `json:"receivedBytes"`
	Errors        int64         `json:"errors"`
}

func (m *ConnStats) Snapshot() Snapshot {
	return Snapshot{
		Connected:     m.Connected(),
		Sent:          m.sent.Load(),
		SentBytes:     m.sentBytes.Load(),
		Received:      m.received.Load(),
		ReceivedBytes: m.recvBytes.Load(),
		Errors:        m.errors.Load(),
	}
}
