// Package eventlog appends session events (readings, follow-ups, chat turns) to daily
// rotated JSONL files. The reading archive keeps results; this log keeps the conversation.
package eventlog

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"fortuneteller/pkg/redact"
)

// Type identifies what happened.
type Type string

const (
	TypeReading   Type = "reading"
	TypeFollowup  Type = "followup"
	TypeChatUser  Type = "chat_user"
	TypeChatReply Type = "chat_reply"
)

// Event is one line of the log.
type Event struct {
	Time       time.Time `json:"time"`
	Type       Type      `json:"type"`
	SessionID  string    `json:"session_id"`
	SystemName string    `json:"system_name,omitempty"`
	Topic      string    `json:"topic,omitempty"`
	ReadingID  string    `json:"reading_id,omitempty"`
	Text       string    `json:"text,omitempty"`
}

// Writer appends events to events-YYYY-MM-DD.jsonl under a directory.
type Writer struct {
	logDir      string
	currentFile *os.File
	currentDate string
	now         func() time.Time
	scanner     redact.Scanner
	mu          sync.Mutex
}

// Option configures a Writer.
type Option func(*Writer)

// WithClock sets the time source used for stamping and rotation.
func WithClock(now func() time.Time) Option {
	return func(w *Writer) { w.now = now }
}

// WithRedaction masks event text with s before it is written.
func WithRedaction(s redact.Scanner) Option {
	return func(w *Writer) { w.scanner = s }
}

// NewWriter creates the directory if needed and opens today's file.
func NewWriter(logDir string, opts ...Option) (*Writer, error) {
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}
	w := &Writer{logDir: logDir, now: time.Now}
	for _, opt := range opts {
		opt(w)
	}
	if err := w.rotateIfNeeded(w.now()); err != nil {
		return nil, fmt.Errorf("failed to initialize log file: %w", err)
	}
	return w, nil
}

// Write appends ev, stamping it when Time is zero. A nil Writer discards events.
func (w *Writer) Write(ev Event) error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	now := w.now()
	if ev.Time.IsZero() {
		ev.Time = now
	}
	ev.Text = redact.Text(context.Background(), w.scanner, ev.Text)
	if err := w.rotateIfNeeded(now); err != nil {
		return fmt.Errorf("failed to rotate log file: %w", err)
	}

	line, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to serialize event: %w", err)
	}
	line = append(line, '\n')
	if _, err := w.currentFile.Write(line); err != nil {
		return fmt.Errorf("failed to write event: %w", err)
	}
	return w.currentFile.Sync()
}

func (w *Writer) rotateIfNeeded(now time.Time) error {
	date := now.Format("2006-01-02")
	if w.currentFile != nil && w.currentDate == date {
		return nil
	}
	if w.currentFile != nil {
		if err := w.currentFile.Close(); err != nil {
			return fmt.Errorf("failed to close current log file: %w", err)
		}
	}

	path := filepath.Join(w.logDir, fileName(date))
	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return fmt.Errorf("failed to open log file %s: %w", path, err)
	}
	w.currentFile = file
	w.currentDate = date
	return nil
}

func fileName(date string) string {
	return fmt.Sprintf("events-%s.jsonl", date)
}

// Close closes the current file.
func (w *Writer) Close() error {
	if w == nil {
		return nil
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile != nil {
		err := w.currentFile.Close()
		w.currentFile = nil
		if err != nil {
			return fmt.Errorf("failed to close event log file: %w", err)
		}
	}
	return nil
}

// Dir returns the log directory.
func (w *Writer) Dir() string { return w.logDir }

// CurrentLogFile returns the path of the active file, or "" once closed.
func (w *Writer) CurrentLogFile() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.currentFile == nil {
		return ""
	}
	return filepath.Join(w.logDir, fileName(w.currentDate))
}

// ReadEvents parses one log file. Blank lines are skipped.
func ReadEvents(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read log file: %w", err)
	}
	defer func() { _ = f.Close() }()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for n := 1; sc.Scan(); n++ {
		if len(sc.Bytes()) == 0 {
			continue
		}
		var ev Event
		if err := json.Unmarshal(sc.Bytes(), &ev); err != nil {
			return nil, fmt.Errorf("failed to parse line %d: %w", n, err)
		}
		events = append(events, ev)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan log file: %w", err)
	}
	return events, nil
}

// ListLogFiles returns the event log files in logDir, oldest first.
func ListLogFiles(logDir string) ([]string, error) {
	files, err := filepath.Glob(filepath.Join(logDir, "events-*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("failed to list log files: %w", err)
	}
	return files, nil
}

// SessionEvents collects the events of one session across every file in logDir.
func SessionEvents(logDir, sessionID string) ([]Event, error) {
	files, err := ListLogFiles(logDir)
	if err != nil {
		return nil, err
	}
	var out []Event
	for _, f := range files {
		events, err := ReadEvents(f)
		if err != nil {
			return nil, err
		}
		for _, ev := range events {
			if ev.SessionID == sessionID {
				out = append(out, ev)
			}
		}
	}
	return out, nil
}
