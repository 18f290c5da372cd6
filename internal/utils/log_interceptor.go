// Package utils provides small filesystem and logging helpers shared by the SyftMirror packages.
package utils

import (
	"bytes"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// LogInterceptor implements io.Writer and prefixes every complete line with a
// sequence number and a timestamp before forwarding it to the target writer.
// Incomplete trailing data is held back until its newline arrives or Close is called.
type LogInterceptor struct {
	target  io.Writer
	seq     atomic.Uint64
	now     func() time.Time
	mu      sync.Mutex
	pending bytes.Buffer
}

// NewLogInterceptor creates a LogInterceptor writing to target.
func NewLogInterceptor(target io.Writer) *LogInterceptor {
	return &LogInterceptor{
		target: target,
		now:    time.Now,
	}
}

func (i *LogInterceptor) writeFormattedLine(line []byte) error {
	var buf bytes.Buffer
	buf.WriteString(slog.Uint64("line", i.seq.Add(1)).String())
	buf.WriteByte(' ')
	buf.WriteString(slog.String("time", i.now().Format(time.RFC3339)).String())
	buf.WriteByte(' ')
	buf.Write(line)
	if len(line) == 0 || line[len(line)-1] != '\n' {
		buf.WriteByte('\n')
	}
	_, err := i.target.Write(buf.Bytes())
	return err
}

// Write implements io.Writer.
func (i *LogInterceptor) Write(p []byte) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.pending.Write(p)
	for {
		idx := bytes.IndexByte(i.pending.Bytes(), '\n')
		if idx < 0 {
			break
		}
		if err := i.writeFormattedLine(i.pending.Next(idx + 1)); err != nil {
			return 0, err
		}
	}
	return len(p), nil
}

// Close flushes any buffered partial line to the target writer.
func (i *LogInterceptor) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.pending.Len() == 0 {
		return nil
	}
	remaining := i.pending.Next(i.pending.Len())
	return i.writeFormattedLine(remaining)
}
