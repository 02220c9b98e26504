package audit

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestWriteEntrySerializesOneLine(t *testing.T) {
	var buf bytes.Buffer
	log := NewLog(&buf)

	entry := Entry{
		Timestamp:  time.Unix(0, 0).UTC(),
		SessionID:  "abc123",
		Role:       "sender",
		Code:       "4-cinder-marsh",
		Transport:  "direct",
		FileCount:  2,
		TotalBytes: 4096,
		Status:     "completed",
		Duration:   1.5,
	}
	if err := log.WriteEntry(entry); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 1 {
		t.Fatalf("got %d lines, want 1", len(lines))
	}

	var decoded Entry
	if err := json.Unmarshal([]byte(lines[0]), &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.SessionID != entry.SessionID || decoded.Code != entry.Code {
		t.Fatalf("round trip mismatch: %+v", decoded)
	}
}

func TestWriteEntryAppendsMultipleLines(t *testing.T) {
	var buf bytes.Buffer
	log := NewLog(&buf)

	for i := 0; i < 3; i++ {
		if err := log.WriteEntry(Entry{SessionID: "s"}); err != nil {
			t.Fatalf("WriteEntry: %v", err)
		}
	}
	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3", len(lines))
	}
}

func TestOpenFileAppendsAcrossOpens(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "audit.jsonl")

	log1, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile: %v", err)
	}
	if err := log1.WriteEntry(Entry{SessionID: "first"}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
	if err := log1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	log2, err := OpenFile(path)
	if err != nil {
		t.Fatalf("OpenFile (reopen): %v", err)
	}
	defer log2.Close()
	if err := log2.WriteEntry(Entry{SessionID: "second"}); err != nil {
		t.Fatalf("WriteEntry: %v", err)
	}
}
