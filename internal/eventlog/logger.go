// Package eventlog records session and utterance events in a JSON lines
// file that the HTTP API can page through.
package eventlog

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"time"
)

// EventType represents the type of event.
type EventType string

// Session event types.
const (
	SessionStarted EventType = "session_started"
	SessionStopped EventType = "session_stopped"
	DeviceError    EventType = "device_error"
)

// Utterance event types.
const (
	UtteranceClosed EventType = "utterance_closed"
	ExportCompleted EventType = "export_completed"
	ExportFailed    EventType = "export_failed"
)

// Event represents a single log entry with type-specific details.
type Event struct {
	Timestamp time.Time `json:"ts"`
	Type      EventType `json:"type"`
	Message   string    `json:"msg,omitempty"`
	Details   any       `json:"details,omitempty"`
}

// SessionDetails contains session-specific event details.
type SessionDetails struct {
	Backend    string `json:"backend,omitempty"`
	Device     string `json:"device,omitempty"`
	SampleRate int    `json:"sample_rate,omitempty"`
	FrameMs    int64  `json:"frame_ms,omitempty"`
	Utterances int64  `json:"utterances,omitempty"`
	Exported   int64  `json:"exported,omitempty"`
	Failed     int64  `json:"failed,omitempty"`
	Error      string `json:"error,omitempty"`
}

// UtteranceDetails contains utterance-specific event details.
type UtteranceDetails struct {
	UtteranceID string `json:"utterance_id"`
	Frames      int    `json:"frames,omitempty"`
	DurationMs  int64  `json:"duration_ms,omitempty"`
	Reason      string `json:"reason,omitempty"`
	SizeBytes   int64  `json:"size_bytes,omitempty"`
	ElapsedMs   int64  `json:"elapsed_ms,omitempty"`
	Archive     string `json:"archive,omitempty"`
	Stage       string `json:"stage,omitempty"`
	Error       string `json:"error,omitempty"`
}

// Logger writes events to a JSON lines file. A nil *Logger discards events.
type Logger struct {
	mu       sync.Mutex
	filePath string
	file     *os.File
	encoder  *json.Encoder
}

// DefaultLogPath returns the platform-specific log file path.
func DefaultLogPath() string {
	switch runtime.GOOS {
	case "windows":
		programData := os.Getenv("PROGRAMDATA")
		if programData == "" {
			programData = `C:\ProgramData`
		}
		return filepath.Join(programData, "vadrecorder", "logs", "events.jsonl")
	default:
		return filepath.Join("/var/log/vadrecorder", "events.jsonl")
	}
}

// NewLogger creates a new event logger at the specified path.
func NewLogger(filePath string) (*Logger, error) {
	if err := os.MkdirAll(filepath.Dir(filePath), 0o755); err != nil {
		return nil, fmt.Errorf("create log directory: %w", err)
	}

	file, err := os.OpenFile(filePath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}

	return &Logger{
		filePath: filePath,
		file:     file,
		encoder:  json.NewEncoder(file),
	}, nil
}

// Log writes an event to the log file.
func (l *Logger) Log(event *Event) error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	return l.encoder.Encode(event)
}

// LogSession logs a session event.
func (l *Logger) LogSession(eventType EventType, message string, d *SessionDetails) error {
	return l.Log(&Event{Type: eventType, Message: message, Details: d})
}

// LogUtterance logs an utterance event.
func (l *Logger) LogUtterance(eventType EventType, d *UtteranceDetails) error {
	return l.Log(&Event{Type: eventType, Details: d})
}

// Close closes the log file.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.file != nil {
		return l.file.Close()
	}
	return nil
}

// Path returns the path to the log file.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.filePath
}

// TypeFilter specifies which event types to include when reading.
type TypeFilter string

// Filter constants for ReadLast.
const (
	FilterAll       TypeFilter = ""
	FilterSession   TypeFilter = "session"
	FilterUtterance TypeFilter = "utterance"
)

// MaxReadLimit is the maximum number of events that can be read at once.
const MaxReadLimit = 500

// Matches reports whether the filter admits events of type t.
func (f TypeFilter) Matches(t EventType) bool {
	switch f {
	case FilterSession:
		return IsSessionEvent(t)
	case FilterUtterance:
		return IsUtteranceEvent(t)
	default:
		return true
	}
}

// ReadLast returns up to n events newest first, skipping the first offset
// matching events. The boolean reports whether older matching events remain.
func ReadLast(filePath string, n, offset int, filter TypeFilter) ([]Event, bool, error) {
	n = min(n, MaxReadLimit)
	if n <= 0 {
		return []Event{}, false, nil
	}
	offset = max(offset, 0)

	file, err := os.Open(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return []Event{}, false, nil
		}
		return nil, false, err
	}
	defer file.Close() //nolint:errcheck // Read-only

	var lines [][]byte
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		lines = append(lines, append([]byte(nil), scanner.Bytes()...))
	}
	if err := scanner.Err(); err != nil {
		return nil, false, err
	}

	events := make([]Event, 0, n)
	matched := 0
	for i := len(lines) - 1; i >= 0; i-- {
		var event Event
		if err := json.Unmarshal(lines[i], &event); err != nil {
			continue
		}
		if !filter.Matches(event.Type) {
			continue
		}
		matched++
		if matched <= offset {
			continue
		}
		if len(events) == n {
			return events, true, nil
		}
		events = append(events, event)
	}
	return events, false, nil
}

// IsSessionEvent reports whether t is a session event.
func IsSessionEvent(t EventType) bool {
	return t == SessionStarted || t == SessionStopped || t == DeviceError
}

// IsUtteranceEvent reports whether t is an utterance event.
func IsUtteranceEvent(t EventType) bool {
	return t == UtteranceClosed || t == ExportCompleted || t == ExportFailed
}
