package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// ConversationLogEvent is one NDJSON telemetry record. Telemetry only:
// the conversation itself lives in the remote backend, never here.
type ConversationLogEvent struct {
	Timestamp string         `json:"ts"`
	VisitorID string         `json:"visitor_id"`
	Role      string         `json:"role"`
	Text      string         `json:"text"`
	Meta      map[string]any `json:"meta,omitempty"`
}

// ConversationLogConfig controls conversation telemetry.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// ConversationLogger appends chat turns to per-visitor NDJSON files
// through a bounded queue and a single background writer. When the queue
// is full events are dropped and counted rather than blocking a dispatch.
type ConversationLogger struct {
	cfg     ConversationLogConfig
	logger  *slog.Logger
	queue   chan ConversationLogEvent
	dropped atomic.Int64
	done    chan struct{}
	wg      sync.WaitGroup
	files   map[string]*os.File
}

// NewConversationLogger creates the logger and starts its writer. Returns
// nil (and no error) when telemetry is disabled; a nil logger is safe to
// use.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (*ConversationLogger, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &ConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}
	l.wg.Add(1)
	go l.run()
	return l, nil
}

// Log enqueues one event. Never blocks; overflow is dropped and counted.
func (l *ConversationLogger) Log(ev ConversationLogEvent) {
	if l == nil {
		return
	}
	select {
	case l.queue <- ev:
	default:
		l.dropped.Add(1)
	}
}

// Dropped returns how many events were lost to queue overflow.
func (l *ConversationLogger) Dropped() int64 {
	if l == nil {
		return 0
	}
	return l.dropped.Load()
}

// Close drains the queue and closes all files.
func (l *ConversationLogger) Close() error {
	if l == nil {
		return nil
	}
	close(l.done)
	l.wg.Wait()
	var firstErr error
	for _, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if n := l.dropped.Load(); n > 0 {
		l.logger.Warn("conversation telemetry dropped events", "count", n)
	}
	return firstErr
}

func (l *ConversationLogger) run() {
	defer l.wg.Done()
	for {
		select {
		case ev := <-l.queue:
			l.write(ev)
		case <-l.done:
			for {
				select {
				case ev := <-l.queue:
					l.write(ev)
				default:
					return
				}
			}
		}
	}
}

func (l *ConversationLogger) write(ev ConversationLogEvent) {
	f, err := l.file(ev.VisitorID)
	if err != nil {
		l.logger.Warn("open conversation log file", "visitor_id", ev.VisitorID, "error", err)
		return
	}
	line, err := json.Marshal(ev)
	if err != nil {
		l.logger.Warn("marshal conversation log event", "error", err)
		return
	}
	if _, err := f.Write(append(line, '\n')); err != nil {
		l.logger.Warn("write conversation log line", "error", err)
	}
}

func (l *ConversationLogger) file(visitorID string) (*os.File, error) {
	if visitorID == "" {
		visitorID = "unknown"
	}
	if f, ok := l.files[visitorID]; ok {
		return f, nil
	}
	path := filepath.Join(l.cfg.Dir, visitorID+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	l.files[visitorID] = f
	return f, nil
}
