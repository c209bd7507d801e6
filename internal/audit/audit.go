// Package audit appends structured records of security-relevant actions to
// an append-only JSONL trail for post-hoc review.
package audit

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/acolita/secure-automation-mcp/internal/security"
)

// ErrWriteFailed marks an audit append that could not be performed. Audit
// failures always propagate to the caller; silently dropping entries would
// defeat the trail's purpose.
var ErrWriteFailed = errors.New("audit write failed")

// Record is one immutable entry in the trail. Entries are never rewritten or
// reordered after being appended.
type Record struct {
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Details   map[string]any `json:"details"`
	SessionID string         `json:"session_id"`
}

// Log appends records to a JSONL file. Each record is serialized to a single
// line and written with one Write call on a descriptor opened O_APPEND, so
// concurrent writers sharing the file do not interleave partial lines. A Log
// is additionally safe for concurrent use within one process.
type Log struct {
	path   string
	mu     sync.Mutex
	f      *os.File
	tokens *security.TokenGenerator
	logger *slog.Logger
}

// Option configures a Log.
type Option func(*Log)

// WithLogger sets the logger used by the Log.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// WithTokenGenerator sets the token generator used for session identifiers.
func WithTokenGenerator(g *security.TokenGenerator) Option {
	return func(l *Log) {
		l.tokens = g
	}
}

// NewLog opens the trail at path, creating the file (0600) and its parent
// directory as needed. Existing content is never truncated.
func NewLog(path string, opts ...Option) (*Log, error) {
	if path == "" {
		return nil, fmt.Errorf("audit log path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create audit directory: %w", err)
	}

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}

	l := &Log{
		path:   path,
		f:      f,
		tokens: security.NewTokenGenerator(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l, nil
}

// Record appends one entry and returns it as written. Every entry carries a
// fresh random session_id: entries are independently correlatable and
// deliberately unlinkable to one another.
func (l *Log) Record(action string, details map[string]any) (Record, error) {
	id, err := l.tokens.Token(16)
	if err != nil {
		return Record{}, fmt.Errorf("%w: session id for %q: %v", ErrWriteFailed, action, err)
	}

	rec := Record{
		Timestamp: time.Now().UTC(),
		Action:    action,
		Details:   details,
		SessionID: id,
	}

	line, err := json.Marshal(rec)
	if err != nil {
		return Record{}, fmt.Errorf("%w: marshal %q: %v", ErrWriteFailed, action, err)
	}
	line = append(line, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()
	if _, err := l.f.Write(line); err != nil {
		return Record{}, fmt.Errorf("%w: append %q: %v", ErrWriteFailed, action, err)
	}

	l.logger.Debug("audit record appended", slog.String("action", action))
	return rec, nil
}

// Path returns the trail's file path.
func (l *Log) Path() string {
	return l.path
}

// Sync forces buffered records to storage.
func (l *Log) Sync() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Sync(); err != nil {
		return fmt.Errorf("sync audit log: %w", err)
	}
	return nil
}

// Close syncs and closes the trail. Further Record calls fail.
func (l *Log) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.f.Sync(); err != nil {
		_ = l.f.Close()
		return fmt.Errorf("sync audit log: %w", err)
	}
	if err := l.f.Close(); err != nil {
		return fmt.Errorf("close audit log: %w", err)
	}
	return nil
}

// ReadRecords reads every complete record from the trail at path. A final
// line that does not parse is tolerated as a crash-truncated tail; a
// malformed line anywhere else is an error. Line order does not imply causal
// order across processes.
func ReadRecords(path string) ([]Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}

	var records []Record
	lines := splitLines(data)
	for i, line := range lines {
		if len(line) == 0 {
			continue
		}
		var rec Record
		if err := json.Unmarshal(line, &rec); err != nil {
			if i == len(lines)-1 {
				break
			}
			return nil, fmt.Errorf("parse audit record on line %d: %w", i+1, err)
		}
		records = append(records, rec)
	}
	return records, nil
}

func splitLines(data []byte) [][]byte {
	var lines [][]byte
	start := 0
	for i, b := range data {
		if b == '\n' {
			lines = append(lines, data[start:i])
			start = i + 1
		}
	}
	if start < len(data) {
		lines = append(lines, data[start:])
	}
	return lines
}
