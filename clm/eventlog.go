package clm

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventLog is an append-only JSONL sink for rotation events. One JSON
// object per line; replaying the file yields exactly the appended records.
//
// Contract:
//   - Append stamps ts at append time, writes the whole line in a single
//     Write call, and syncs before returning.
//   - Appends are serialized; concurrent callers never interleave lines.
//   - Append errors propagate: a broken audit trail must fail the owning
//     task, not disappear.
type EventLog struct {
	mu  sync.Mutex
	f   *os.File
	now func() time.Time
}

// NewEventLog creates or opens the JSONL file at path, creating parent
// directories as needed.
func NewEventLog(path string) (*EventLog, error) {
	if path == "" {
		return nil, os.ErrInvalid
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	return &EventLog{f: f, now: time.Now}, nil
}

// Append stamps ev.TS and writes it as one line.
func (l *EventLog) Append(ev *Event) error {
	if ev == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return os.ErrClosed
	}
	ev.TS = float64(l.now().UnixNano()) / float64(time.Second)
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if _, err := l.f.Write(b); err != nil {
		return err
	}
	return l.f.Sync()
}

// Close closes the underlying file. Appends after Close fail.
func (l *EventLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.f == nil {
		return nil
	}
	err := l.f.Close()
	l.f = nil
	return err
}
