// Package eventlog implements the append-only shadow-compare event log
// (C8): JSONL files under <root>/<YYYYMMDD>/shadow_<NN>.jsonl, rotated by
// size rather than time, one line of canonical JSON per event.
//
// Grounded on the teacher's JSONLWriter (internal/storage/disk/jsonl.go)
// idiom — a lazily-opened, mutex-guarded afero.File plus bufio.Writer —
// rewritten for canonical-codec lines, date (not hour) partitioning, and
// size-based (not count/time-based) rotation. Cross-process safety comes
// from claiming a disjoint NN suffix per process via exclusive file
// creation, rather than from a shared lock file.
package eventlog

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/spf13/afero"
)

const defaultMaxBytes int64 = 100 * 1024 * 1024

// Logger appends canonical-JSON lines to a UTC date-partitioned,
// size-rotated JSONL file tree.
type Logger struct {
	fs       afero.Fs
	root     string
	maxBytes int64
	now      func() time.Time

	mu          sync.Mutex
	file        afero.File
	writer      *bufio.Writer
	currentDate string
	index       int
	written     int64
}

// Option configures a Logger.
type Option func(*Logger)

// WithFS overrides the filesystem backing the logger (afero.NewMemMapFs()
// in tests, afero.NewOsFs() in production).
func WithFS(fs afero.Fs) Option {
	return func(l *Logger) { l.fs = fs }
}

// WithMaxBytes overrides the default 100 MiB rotation threshold.
func WithMaxBytes(n int64) Option {
	return func(l *Logger) { l.maxBytes = n }
}

// withClock overrides the wallclock source; used only by tests to pin the
// UTC date partition.
func withClock(now func() time.Time) Option {
	return func(l *Logger) { l.now = now }
}

// New creates a Logger rooted at root. The root directory is created on
// demand, per day, on the first Append.
func New(root string, opts ...Option) *Logger {
	l := &Logger{
		fs:       afero.NewOsFs(),
		root:     root,
		maxBytes: defaultMaxBytes,
		now:      func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Append writes one line — the canonical JSON bytes of the caller's event
// plus a trailing newline — under a mutex, rotating to a new file first if
// the active file would exceed maxBytes.
func (l *Logger) Append(line []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	date := l.now().Format("20060102")
	if l.file == nil || l.currentDate != date {
		if err := l.rotateLocked(date, true); err != nil {
			return err
		}
	} else if l.written+int64(len(line))+1 > l.maxBytes {
		if err := l.rotateLocked(date, false); err != nil {
			return err
		}
	}

	if _, err := l.writer.Write(line); err != nil {
		return fmt.Errorf("eventlog: write line: %w", err)
	}
	if err := l.writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("eventlog: write newline: %w", err)
	}
	if err := l.writer.Flush(); err != nil {
		return fmt.Errorf("eventlog: flush: %w", err)
	}
	l.written += int64(len(line)) + 1
	return nil
}

// Close flushes and closes the active file, if any.
func (l *Logger) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closeLocked()
}

func (l *Logger) closeLocked() error {
	if l.writer != nil {
		if err := l.writer.Flush(); err != nil {
			return fmt.Errorf("eventlog: flush on close: %w", err)
		}
		l.writer = nil
	}
	if l.file != nil {
		if err := l.file.Close(); err != nil {
			return fmt.Errorf("eventlog: close: %w", err)
		}
		l.file = nil
	}
	return nil
}

// rotateLocked closes any open file and claims the next NN suffix for
// date. newDate distinguishes a fresh day (start scanning from index 0)
// from a same-day size rotation (start scanning from the current index +
// 1); either way the claim is made by O_EXCL creation, so two processes
// racing for the same NN never both succeed.
func (l *Logger) rotateLocked(date string, newDate bool) error {
	if err := l.closeLocked(); err != nil {
		return err
	}

	dir := filepath.Join(l.root, date)
	if err := l.fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("eventlog: create date directory: %w", err)
	}

	start := l.index + 1
	if newDate {
		start = 0
	}

	for idx := start; ; idx++ {
		path := filepath.Join(dir, fmt.Sprintf("shadow_%02d.jsonl", idx))
		file, err := l.fs.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
		if err == nil {
			l.file = file
			l.writer = bufio.NewWriterSize(file, 64*1024)
			l.currentDate = date
			l.index = idx
			l.written = 0
			return nil
		}
		if !os.IsExist(err) {
			return fmt.Errorf("eventlog: claim %s: %w", path, err)
		}
		// Another process already holds this NN for today. If it still
		// has headroom, append to it instead of burning suffixes forever;
		// otherwise keep scanning upward for an unclaimed one.
		{
			file, openErr := l.fs.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o644)
			if openErr != nil {
				return fmt.Errorf("eventlog: open %s: %w", path, err)
			}
			info, statErr := file.Stat()
			if statErr == nil && info.Size() < l.maxBytes {
				l.file = file
				l.writer = bufio.NewWriterSize(file, 64*1024)
				l.currentDate = date
				l.index = idx
				l.written = info.Size()
				return nil
			}
			file.Close()
		}
	}
}
