package chat

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
	"time"
)

// ConversationLogEvent is one NDJSON line in a conversation log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	UserID     string         `json:"user_id"`
	SessionID  string         `json:"session_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

// ConversationLogger records chat traffic for later review.
type ConversationLogger interface {
	// Log enqueues an event. It never blocks the calling turn; events are
	// dropped with a warning when the queue is full.
	Log(event ConversationLogEvent)

	// Close flushes queued events and releases file handles.
	Close() error
}

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

// NewNoopConversationLogger returns a logger that discards everything.
func NewNoopConversationLogger() ConversationLogger {
	return noopConversationLogger{}
}

// ConversationLogConfig controls the NDJSON conversation logger.
type ConversationLogConfig struct {
	Enabled       bool
	Dir           string
	GlobalEnabled bool
	GlobalPath    string
	QueueSize     int
}

// fileConversationLogger appends events to one NDJSON file per user/session
// under Dir, plus an optional global file. Writes happen on a single
// background goroutine fed by a bounded queue.
type fileConversationLogger struct {
	cfg    ConversationLogConfig
	logger *slog.Logger

	queue chan ConversationLogEvent
	done  chan struct{}

	mu      sync.Mutex
	files   map[string]*os.File // userID/sessionID -> per-session file
	global  *os.File
	dropped int64
}

// NewConversationLogger creates the NDJSON logger. Returns a noop logger
// when disabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}

	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("create conversation log dir: %w", err)
	}

	l := &fileConversationLogger{
		cfg:    cfg,
		logger: logger,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		done:   make(chan struct{}),
		files:  make(map[string]*os.File),
	}

	if cfg.GlobalEnabled {
		if err := os.MkdirAll(filepath.Dir(cfg.GlobalPath), 0755); err != nil {
			return nil, fmt.Errorf("create global conversation log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.GlobalPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open global conversation log: %w", err)
		}
		l.global = f
	}

	go l.writeLoop()

	return l, nil
}

// Log enqueues an event, filling in the timestamp and cleaned content.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Timestamp == "" {
		event.Timestamp = time.Now().UTC().Format(time.RFC3339Nano)
	}
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	select {
	case l.queue <- event:
	default:
		l.mu.Lock()
		l.dropped++
		dropped := l.dropped
		l.mu.Unlock()
		l.logger.Warn("conversation log queue full, dropping event",
			"user_id", event.UserID,
			"dropped_total", dropped,
		)
	}
}

func (l *fileConversationLogger) writeLoop() {
	defer close(l.done)
	for event := range l.queue {
		l.write(event)
	}
}

func (l *fileConversationLogger) write(event ConversationLogEvent) {
	line, err := json.Marshal(event)
	if err != nil {
		l.logger.Warn("failed to marshal conversation log event", "error", err)
		return
	}
	line = append(line, '\n')

	f, err := l.sessionFile(event.UserID, event.SessionID)
	if err != nil {
		l.logger.Warn("failed to open conversation log file", "error", err, "user_id", event.UserID)
	} else if _, err := f.Write(line); err != nil {
		l.logger.Warn("failed to write conversation log line", "error", err, "user_id", event.UserID)
	}

	if l.global != nil {
		if _, err := l.global.Write(line); err != nil {
			l.logger.Warn("failed to write global conversation log line", "error", err)
		}
	}
}

func (l *fileConversationLogger) sessionFile(userID, sessionID string) (*os.File, error) {
	if userID == "" {
		userID = "unknown"
	}
	if sessionID == "" {
		sessionID = "default"
	}
	key := userID + "/" + sessionID

	l.mu.Lock()
	defer l.mu.Unlock()

	if f, ok := l.files[key]; ok {
		return f, nil
	}

	dir := filepath.Join(l.cfg.Dir, userID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create session log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(dir, sessionID+".ndjson"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open session log: %w", err)
	}
	l.files[key] = f
	return f, nil
}

// Close drains the queue and closes all open files.
func (l *fileConversationLogger) Close() error {
	close(l.queue)
	<-l.done

	l.mu.Lock()
	defer l.mu.Unlock()

	var firstErr error
	for key, f := range l.files {
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session log %s: %w", key, err)
		}
	}
	l.files = make(map[string]*os.File)

	if l.global != nil {
		if err := l.global.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close global log: %w", err)
		}
		l.global = nil
	}

	return firstErr
}

var ansiPattern = regexp.MustCompile(`\x1b\[[0-9;?]*[ -/]*[@-~]`)

// cleanForReadability strips ANSI escape sequences and control characters so
// logged content stays readable in plain text tools.
func cleanForReadability(raw string) string {
	clean := ansiPattern.ReplaceAllString(raw, "")
	clean = strings.ReplaceAll(clean, "\r", "")
	return strings.Map(func(r rune) rune {
		if r < 0x20 && r != '\n' && r != '\t' {
			return -1
		}
		return r
	}, clean)
}
