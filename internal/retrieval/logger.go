package retrieval

import (
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// QueryLogEntry is one line of the search audit log.
type QueryLogEntry struct {
	At            time.Time `json:"at"`
	OwnerUserID   string    `json:"owner_user_id"`
	Query         string    `json:"query"`
	Limit         int       `json:"limit"`
	Hits          int       `json:"hits"`
	Reranked      bool      `json:"reranked,omitempty"`
	FileIDs       []string  `json:"file_ids,omitempty"`
	TookMs        int64     `json:"took_ms"`
	Error         string    `json:"error,omitempty"`
	CorrelationID string    `json:"correlation_id"`
}

// QueryLogger writes newline-delimited JSON; safe for concurrent searches.
type QueryLogger struct {
	mu     sync.Mutex
	enc    *json.Encoder
	closer io.Closer
}

func NewQueryLogger(w io.Writer) *QueryLogger {
	return &QueryLogger{enc: json.NewEncoder(w)}
}

// NewFileQueryLogger appends to path, creating parent directories. Lines are
// mirrored to stdout so they reach the container log as well.
func NewFileQueryLogger(path string) (*QueryLogger, error) {
	path = filepath.Clean(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600) // #nosec G304 -- path is from application config
	if err != nil {
		return nil, err
	}
	l := NewQueryLogger(io.MultiWriter(os.Stdout, f))
	l.closer = f
	return l, nil
}

func (l *QueryLogger) Log(entry QueryLogEntry) {
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.enc.Encode(entry); err != nil {
		slog.Error("failed to write query log entry", "error", err)
	}
}

func (l *QueryLogger) Close() error {
	if l.closer == nil {
		return nil
	}
	return l.closer.Close()
}
