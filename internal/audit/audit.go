// Package audit appends one JSON line per finished transfer to a
// durable log, independent of the structured process logs in
// internal/observability. It exists so an operator can answer "what
// transfers happened" without grepping zerolog output, grounded on
// the audit.WriteEntry call site in the JEND receiver.
package audit

import (
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"
)

// Entry is one completed or failed transfer, keyed by session ID
// rather than by peer connection so a relayed and a direct transfer
// both appear the same way.
type Entry struct {
	Timestamp  time.Time `json:"timestamp"`
	SessionID  string    `json:"session_id"`
	Role       string    `json:"role"` // "sender" | "receiver"
	Code       string    `json:"code"`
	Transport  string    `json:"transport"` // "direct" | "relay"
	FileCount  int       `json:"file_count"`
	TotalBytes uint64    `json:"total_bytes"`
	Status     string    `json:"status"` // "completed" | "cancelled" | "declined" | "error"
	ErrorKind  string    `json:"error_kind,omitempty"`
	Error      string    `json:"error,omitempty"`
	Duration   float64   `json:"duration_seconds"`
}

// Log appends entries to an underlying writer as newline-delimited
// JSON. Writes are serialized so concurrent sessions never interleave
// a partial line.
type Log struct {
	mu sync.Mutex
	w  io.Writer
	c  io.Closer
}

// OpenFile opens (creating if needed) an append-only audit log at path.
func OpenFile(path string) (*Log, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &Log{w: f, c: f}, nil
}

// NewLog wraps an arbitrary writer, useful for tests (a bytes.Buffer)
// where no file descriptor is needed.
func NewLog(w io.Writer) *Log {
	return &Log{w: w}
}

// WriteEntry serializes e as one JSON line.
func (l *Log) WriteEntry(e Entry) error {
	b, err := json.Marshal(e)
	if err != nil {
		return err
	}
	b = append(b, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.w.Write(b)
	return err
}

// Close releases the underlying file, if any.
func (l *Log) Close() error {
	if l.c == nil {
		return nil
	}
	return l.c.Close()
}
