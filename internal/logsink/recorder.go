package logsink

import (
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
)

// Entry is one message captured by a Recorder.
type Entry struct {
	Level   slog.Level
	Message string
}

// Recorder is an in-memory Sink. It keeps every message so callers can
// assert on what a cycle reported.
type Recorder struct {
	path    string
	mu      sync.Mutex
	entries []Entry
}

func NewRecorder(path string) *Recorder {
	return &Recorder{path: path}
}

func (r *Recorder) Info(msg string)  { r.add(slog.LevelInfo, msg) }
func (r *Recorder) Error(msg string) { r.add(slog.LevelError, msg) }

func (r *Recorder) Dir() string      { return filepath.Dir(r.path) }
func (r *Recorder) FileName() string { return filepath.Base(r.path) }

func (r *Recorder) add(level slog.Level, msg string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, Entry{Level: level, Message: msg})
}

// Entries returns a copy of everything recorded so far.
func (r *Recorder) Entries() []Entry {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Messages returns the recorded message texts in order.
func (r *Recorder) Messages() []string {
	entries := r.Entries()
	msgs := make([]string, len(entries))
	for i, e := range entries {
		msgs[i] = e.Message
	}
	return msgs
}

// Count returns how many messages start with prefix.
func (r *Recorder) Count(prefix string) int {
	n := 0
	for _, m := range r.Messages() {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

// Reset drops all recorded messages.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = nil
}
