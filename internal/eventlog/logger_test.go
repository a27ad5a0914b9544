package eventlog

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func newTestLogger(t *testing.T) *Logger {
	t.Helper()
	l, err := NewLogger(filepath.Join(t.TempDir(), "logs", "events.jsonl"))
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestLoggerWritesJSONLines(t *testing.T) {
	l := newTestLogger(t)
	if err := l.LogSession(SessionStarted, "listening", &SessionDetails{Backend: "process", SampleRate: 16000}); err != nil {
		t.Fatal(err)
	}
	if err := l.LogUtterance(ExportCompleted, &UtteranceDetails{UtteranceID: "u1", SizeBytes: 1200}); err != nil {
		t.Fatal(err)
	}

	data, err := os.ReadFile(l.Path())
	if err != nil {
		t.Fatal(err)
	}
	lines := bytes.Split(bytes.TrimSpace(data), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("got %d lines, want 2", len(lines))
	}
	var first map[string]any
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("first line is not JSON: %v", err)
	}
	if first["type"] != "session_started" || first["msg"] != "listening" {
		t.Errorf("first event = %v", first)
	}
	if _, ok := first["ts"]; !ok {
		t.Error("timestamp missing")
	}
}

func TestReadLastPagination(t *testing.T) {
	l := newTestLogger(t)
	for i := range 5 {
		_ = l.LogUtterance(UtteranceClosed, &UtteranceDetails{UtteranceID: string(rune('a' + i))})
		_ = l.LogSession(DeviceError, "", nil)
	}

	ids := func(events []Event) []string {
		var out []string
		for _, e := range events {
			d, _ := e.Details.(map[string]any)
			out = append(out, d["utterance_id"].(string))
		}
		return out
	}

	page, more, err := ReadLast(l.Path(), 2, 0, FilterUtterance)
	if err != nil {
		t.Fatal(err)
	}
	if got := ids(page); len(got) != 2 || got[0] != "e" || got[1] != "d" {
		t.Errorf("first page = %v", got)
	}
	if !more {
		t.Error("first page should report more")
	}

	page, more, _ = ReadLast(l.Path(), 2, 4, FilterUtterance)
	if got := ids(page); len(got) != 1 || got[0] != "a" {
		t.Errorf("last page = %v", got)
	}
	if more {
		t.Error("last page should not report more")
	}

	page, _, _ = ReadLast(l.Path(), 100, 0, FilterSession)
	if len(page) != 5 {
		t.Errorf("session filter returned %d events, want 5", len(page))
	}
	page, _, _ = ReadLast(l.Path(), 100, 0, FilterAll)
	if len(page) != 10 {
		t.Errorf("all filter returned %d events, want 10", len(page))
	}
}

func TestReadLastExactPage(t *testing.T) {
	l := newTestLogger(t)
	for range 3 {
		_ = l.LogSession(SessionStarted, "", nil)
	}
	page, more, err := ReadLast(l.Path(), 3, 0, FilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 3 || more {
		t.Errorf("got %d events, more=%v; want 3, false", len(page), more)
	}
}

func TestReadLastSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	content := `{"ts":"2026-01-01T00:00:00Z","type":"session_started"}
not json
{"ts":"2026-01-01T00:00:01Z","type":"session_stopped"}
`
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	page, _, err := ReadLast(path, 10, 0, FilterAll)
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].Type != SessionStopped {
		t.Errorf("page = %+v", page)
	}
}

func TestReadLastMissingFile(t *testing.T) {
	page, more, err := ReadLast(filepath.Join(t.TempDir(), "none.jsonl"), 10, 0, FilterAll)
	if err != nil || more || len(page) != 0 {
		t.Errorf("ReadLast(missing) = %v, %v, %v", page, more, err)
	}
}

func TestNilLoggerDiscards(t *testing.T) {
	var l *Logger
	if err := l.LogSession(SessionStarted, "", nil); err != nil {
		t.Errorf("nil logger returned %v", err)
	}
	if err := l.Close(); err != nil {
		t.Errorf("nil Close returned %v", err)
	}
}
