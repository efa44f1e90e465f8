package eventlog

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"fortuneteller/pkg/redact"
)

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func TestNewWriter(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "events")

	writer, err := NewWriter(dir)
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	current := writer.CurrentLogFile()
	if current == "" {
		t.Fatal("No current log file set")
	}
	if _, err := os.Stat(current); os.IsNotExist(err) {
		t.Error("Current log file does not exist")
	}
}

func TestWriteAndReadBack(t *testing.T) {
	clk := &clock{t: time.Date(2024, 3, 25, 10, 0, 0, 0, time.UTC)}
	writer, err := NewWriter(t.TempDir(), WithClock(clk.now))
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	events := []Event{
		{Type: TypeReading, SessionID: "s1", SystemName: "tarot", ReadingID: "r1", Text: "## 总体解读\n\n吉"},
		{Type: TypeChatUser, SessionID: "s1", Text: "我的事业如何？"},
		{Type: TypeChatReply, SessionID: "s1", Text: "稳中有进"},
	}
	for i, ev := range events {
		if err := writer.Write(ev); err != nil {
			t.Fatalf("Failed to write event %d: %v", i, err)
		}
	}

	read, err := ReadEvents(writer.CurrentLogFile())
	if err != nil {
		t.Fatalf("Failed to read events: %v", err)
	}
	if len(read) != len(events) {
		t.Fatalf("Expected %d events, got %d", len(events), len(read))
	}
	for i, ev := range read {
		if ev.Type != events[i].Type || ev.Text != events[i].Text {
			t.Errorf("Event %d mismatch: got %+v", i, ev)
		}
		if !ev.Time.Equal(clk.t) {
			t.Errorf("Event %d not stamped with the clock: %v", i, ev.Time)
		}
	}
}

func TestDailyRotation(t *testing.T) {
	dir := t.TempDir()
	clk := &clock{t: time.Date(2024, 3, 25, 23, 59, 0, 0, time.UTC)}
	writer, err := NewWriter(dir, WithClock(clk.now))
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(Event{Type: TypeReading, SessionID: "a"}); err != nil {
		t.Fatal(err)
	}
	clk.t = clk.t.Add(2 * time.Minute)
	if err := writer.Write(Event{Type: TypeFollowup, SessionID: "a", Topic: "💼 事业运势"}); err != nil {
		t.Fatal(err)
	}
	if err := writer.Write(Event{Type: TypeReading, SessionID: "b"}); err != nil {
		t.Fatal(err)
	}

	files, err := ListLogFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 {
		t.Fatalf("Expected 2 log files after midnight, got %v", files)
	}
	if filepath.Base(writer.CurrentLogFile()) != "events-2024-03-26.jsonl" {
		t.Errorf("Unexpected current file %s", writer.CurrentLogFile())
	}

	sessionA, err := SessionEvents(dir, "a")
	if err != nil {
		t.Fatal(err)
	}
	if len(sessionA) != 2 || sessionA[1].Topic != "💼 事业运势" {
		t.Errorf("Unexpected events for session a: %+v", sessionA)
	}
}

func TestReadEventsSkipsBlankLinesAndRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events-2024-01-01.jsonl")
	content := "{\"type\":\"reading\",\"session_id\":\"x\"}\n\n{\"type\":\"chat_user\",\"session_id\":\"x\"}"
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	events, err := ReadEvents(path)
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 events, got %d", len(events))
	}

	if err := os.WriteFile(path, []byte("not json\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadEvents(path); err == nil {
		t.Error("Expected a parse error")
	}
}

func TestNilWriterDiscards(t *testing.T) {
	var w *Writer
	if err := w.Write(Event{Type: TypeReading}); err != nil {
		t.Errorf("nil writer should discard, got %v", err)
	}
	if err := w.Close(); err != nil {
		t.Error(err)
	}
}

func TestWriterRedactsText(t *testing.T) {
	scanner, err := redact.NewPatternScanner(0)
	if err != nil {
		t.Fatal(err)
	}
	writer, err := NewWriter(t.TempDir(), WithRedaction(scanner))
	if err != nil {
		t.Fatalf("Failed to create writer: %v", err)
	}
	defer writer.Close()

	if err := writer.Write(Event{Type: TypeChatUser, SessionID: "s", Text: "结果发到 a.b@example.com"}); err != nil {
		t.Fatal(err)
	}
	events, err := ReadEvents(writer.CurrentLogFile())
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Text != "结果发到 [redacted]" {
		t.Errorf("Expected masked text, got %+v", events)
	}
}
