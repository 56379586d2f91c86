// Package broadcast pushes run-change notifications to live viewers.
package broadcast

import (
	"io"
	"log/slog"
	"sync"
	"time"
)

// Notification tells viewers that a run changed and should be re-fetched.
type Notification struct {
	RunID   string    `json:"run_id"`
	Project string    `json:"project,omitempty"`
	Path    string    `json:"path,omitempty"`
	Time    time.Time `json:"time"`
}

// Conn is one viewer subscription.
type Conn interface {
	Send(Notification) error
	Close() error
}

// Broadcaster fans notifications out to the open connections. It is created
// once by the service and handed to whatever observes changes.
type Broadcaster struct {
	// sendMu serializes Broadcast so notifications for a run reach every
	// connection in the order they were observed.
	sendMu sync.Mutex

	mu     sync.Mutex
	conns  map[Conn]struct{}
	logger *slog.Logger
}

// New returns an empty Broadcaster.
func New(logger *slog.Logger) *Broadcaster {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Broadcaster{
		conns:  make(map[Conn]struct{}),
		logger: logger,
	}
}

// Open registers a connection.
func (b *Broadcaster) Open(c Conn) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.conns[c] = struct{}{}
	b.logger.Debug("viewer connected", "connections", len(b.conns))
}

// Close unregisters and closes a connection. Closing an unknown connection is
// a no-op.
func (b *Broadcaster) Close(c Conn) {
	if b.remove(c) {
		_ = c.Close()
	}
}

// Broadcast sends n to every open connection. A connection whose send fails
// is removed and closed; the others are unaffected.
func (b *Broadcaster) Broadcast(n Notification) {
	b.sendMu.Lock()
	defer b.sendMu.Unlock()

	for _, c := range b.snapshot() {
		if err := c.Send(n); err != nil {
			b.logger.Info("dropping viewer", "run_id", n.RunID, "error", err)
			b.Close(c)
		}
	}
}

// Len returns the number of open connections.
func (b *Broadcaster) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

// Shutdown closes every connection.
func (b *Broadcaster) Shutdown() {
	for _, c := range b.snapshot() {
		b.Close(c)
	}
}

func (b *Broadcaster) snapshot() []Conn {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Conn, 0, len(b.conns))
	for c := range b.conns {
		out = append(out, c)
	}
	return out
}

func (b *Broadcaster) remove(c Conn) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.conns[c]; !ok {
		return false
	}
	delete(b.conns, c)
	b.logger.Debug("viewer disconnected", "connections", len(b.conns))
	return true
}
