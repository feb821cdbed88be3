package session

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// AuditEvent is one NDJSON line in the conversation audit log.
type AuditEvent struct {
	Timestamp time.Time `json:"ts"`
	TaskID    string    `json:"task_id,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	EventType string    `json:"event_type"`
	Role      string    `json:"role,omitempty"`
	Agent     string    `json:"agent,omitempty"`
	Model     string    `json:"model,omitempty"`
	Content   string    `json:"content,omitempty"`
	StepCount int       `json:"step_count,omitempty"`
}

// AuditConfig controls the conversation audit logger.
type AuditConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// AuditLogger writes conversation events as NDJSON, one file per session
// plus an optional global file. Writes happen on a background worker fed by
// a bounded queue; when the queue is full events are dropped and counted
// rather than blocking the session manager.
type AuditLogger struct {
	cfg     AuditConfig
	logger  *slog.Logger
	queue   chan AuditEvent
	done    chan struct{}
	wg      sync.WaitGroup
	dropped atomic.Int64

	closeOnce sync.Once
}

// NewAuditLogger creates and starts the audit logger. A disabled config
// returns a logger whose Log is a no-op.
func NewAuditLogger(cfg AuditConfig, logger *slog.Logger) (*AuditLogger, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	l := &AuditLogger{
		cfg:    cfg,
		logger: logger,
		done:   make(chan struct{}),
	}
	if !cfg.Enabled {
		return l, nil
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}
	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global audit log directory: %w", err)
		}
	}

	l.queue = make(chan AuditEvent, cfg.QueueSize)
	l.wg.Add(1)
	go l.worker()
	return l, nil
}

// Log enqueues an event without blocking. The timestamp is stamped here so
// queue latency does not skew event times.
func (l *AuditLogger) Log(event AuditEvent) {
	if !l.cfg.Enabled {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	select {
	case l.queue <- event:
	default:
		if l.dropped.Add(1)%100 == 1 {
			l.logger.Warn("audit log queue full, dropping events", "dropped_total", l.dropped.Load())
		}
	}
}

// Dropped returns how many events were discarded because the queue was full.
func (l *AuditLogger) Dropped() int64 {
	return l.dropped.Load()
}

// Close drains the queue and stops the worker. Safe to call more than once.
func (l *AuditLogger) Close() error {
	l.closeOnce.Do(func() {
		if l.cfg.Enabled {
			close(l.queue)
			l.wg.Wait()
		}
		close(l.done)
	})
	return nil
}

func (l *AuditLogger) worker() {
	defer l.wg.Done()
	for event := range l.queue {
		l.write(event)
	}
}

func (l *AuditLogger) write(event AuditEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal audit event", "error", err)
		return
	}
	line = append(line, '\n')

	if path := l.sessionPath(event); path != "" {
		if err := appendFile(path, line); err != nil {
			l.logger.Warn("failed to write session audit log", "path", path, "error", err)
		}
	}
	if l.cfg.GlobalEnabled {
		if err := appendFile(l.cfg.GlobalPath, line); err != nil {
			l.logger.Warn("failed to write global audit log", "path", l.cfg.GlobalPath, "error", err)
		}
	}
}

// sessionPath groups files by task directory when the event carries a task
// ID; task-less events land in the directory root.
func (l *AuditLogger) sessionPath(event AuditEvent) string {
	name := event.SessionID
	if name == "" {
		name = "events"
	}
	name = sanitizeFileName(name) + ".ndjson"
	if event.TaskID != "" {
		return filepath.Join(l.cfg.Dir, sanitizeFileName(event.TaskID), name)
	}
	return filepath.Join(l.cfg.Dir, name)
}

var unsafeFileChars = regexp.MustCompile(`[^A-Za-z0-9._-]`)

func sanitizeFileName(name string) string {
	name = unsafeFileChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, ".")
	if name == "" {
		return "unnamed"
	}
	return name
}

func appendFile(path string, line []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer func() {
		if closeErr := f.Close(); closeErr != nil {
			slog.Debug("failed to close audit log file", "path", path, "error", closeErr)
		}
	}()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write log line: %w", err)
	}
	return nil
}
