package eventlog

import (
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"
)

func fixedClock(t time.Time) func(*Logger) {
	return withClock(func() time.Time { return t })
}

func TestAppend_CreatesDatePartitionedFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	day := time.Date(2026, 7, 30, 12, 0, 0, 0, time.UTC)
	l := New("/events", WithFS(fs), fixedClock(day))

	if err := l.Append([]byte(`{"a":1}`)); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	data, err := afero.ReadFile(fs, "/events/20260730/shadow_00.jsonl")
	if err != nil {
		t.Fatalf("expected date-partitioned file, read error = %v", err)
	}
	if strings.TrimSpace(string(data)) != `{"a":1}` {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestAppend_RotatesOnSize(t *testing.T) {
	fs := afero.NewMemMapFs()
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)
	l := New("/events", WithFS(fs), fixedClock(day), WithMaxBytes(10))

	for i := 0; i < 3; i++ {
		if err := l.Append([]byte(fmt.Sprintf("line-%d", i))); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	exists, err := afero.Exists(fs, "/events/20260730/shadow_01.jsonl")
	if err != nil {
		t.Fatalf("Exists() error = %v", err)
	}
	if !exists {
		t.Fatal("expected rotation to a second file once the first exceeded max bytes")
	}
}

func TestAppend_NewDateStartsFreshIndexFromZero(t *testing.T) {
	fs := afero.NewMemMapFs()
	day1 := time.Date(2026, 7, 30, 23, 59, 0, 0, time.UTC)
	l := New("/events", WithFS(fs), fixedClock(day1))
	if err := l.Append([]byte("a")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	day2 := time.Date(2026, 7, 31, 0, 1, 0, 0, time.UTC)
	l.now = func() time.Time { return day2 }
	if err := l.Append([]byte("b")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	if exists, _ := afero.Exists(fs, "/events/20260731/shadow_00.jsonl"); !exists {
		t.Fatal("expected the new UTC date to start its own shadow_00.jsonl")
	}
}

func TestAppend_DisjointSuffixWhenNNAlreadyClaimed(t *testing.T) {
	fs := afero.NewMemMapFs()
	day := time.Date(2026, 7, 30, 0, 0, 0, 0, time.UTC)

	other := New("/events", WithFS(fs), fixedClock(day))
	if err := other.Append([]byte("claimed-by-other-process")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if err := other.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	l := New("/events", WithFS(fs), fixedClock(day), WithMaxBytes(1))
	if err := l.Append([]byte("x")); err != nil {
		t.Fatalf("Append() error = %v", err)
	}
	if l.index == 0 {
		t.Fatal("expected a fresh logger to skip an already-full NN claimed by another process")
	}
}
