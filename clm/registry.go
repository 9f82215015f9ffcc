package clm

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Conn is one live registered connection.
type Conn struct {
	ID       string
	Remote   string
	Opened   time.Time
	Endpoint Endpoint
}

// Registry tracks the set of live endpoint handles on the server so an
// operator command can address all of them at once.
//
// Membership mirrors the underlying connection's lifetime exactly:
// Register on accept, Unregister on close, including abnormal close.
type Registry struct {
	mu    sync.Mutex
	conns map[*Conn]struct{}
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[*Conn]struct{})}
}

// Register inserts a connection and returns its handle for Unregister.
func (r *Registry) Register(ep Endpoint, remote string) *Conn {
	c := &Conn{
		ID:       uuid.NewString(),
		Remote:   remote,
		Opened:   time.Now(),
		Endpoint: ep,
	}
	r.mu.Lock()
	r.conns[c] = struct{}{}
	r.mu.Unlock()
	return c
}

// Unregister removes a connection. Removing twice is a no-op.
func (r *Registry) Unregister(c *Conn) {
	r.mu.Lock()
	delete(r.conns, c)
	r.mu.Unlock()
}

// Len returns the current number of live connections.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.conns)
}

// Snapshot returns the current membership, oldest connection first.
// Iterating a snapshot keeps rotate-all independent of concurrent
// register/unregister calls.
func (r *Registry) Snapshot() []*Conn {
	r.mu.Lock()
	out := make([]*Conn, 0, len(r.conns))
	for c := range r.conns {
		out = append(out, c)
	}
	r.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Opened.Before(out[j].Opened) })
	return out
}

// ForceRotateAll attempts a rotation on every currently registered
// connection, bypassing policy gating, and returns the number of attempts.
// Every attempt yields exactly one event with the given manager's role and
// reason=manual.
//
// A connection that is concurrently closing must not abort the batch: any
// panic while attempting one endpoint is contained, recorded as a failed
// rotation for that endpoint, and iteration continues. Only a log-sink
// failure stops the sweep.
func (r *Registry) ForceRotateAll(m *Manager) (int, error) {
	attempts := 0
	for _, c := range r.Snapshot() {
		attempts++
		if err := forceOne(m, c); err != nil {
			return attempts, err
		}
	}
	return attempts, nil
}

func forceOne(m *Manager, c *Conn) (err error) {
	defer func() {
		if p := recover(); p != nil {
			err = m.log.Append(&Event{
				Kind:   KindRotateFailed,
				Role:   m.role,
				Reason: ReasonManual,
				Detail: Detail{
					Found: []string{},
					Note:  fmt.Sprintf("rotation attempt panicked: %v", p),
				},
			})
		}
	}()
	_, err = m.ForceRotate(c.Endpoint, ReasonManual)
	return err
}
