// Package mirror implements the one-way mirroring cycle: every source entry
// is copied into the replica when missing or different, then every replica
// entry without a source counterpart is deleted.
//
// The engine keeps nothing between cycles. Both trees are listed from scratch
// on every pass, so the filesystem is the only state.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"time"

	"github.com/openmined/syftmirror/internal/logsink"
	"github.com/spf13/afero"
)

type Engine struct {
	fs     afero.Fs
	cmp    Comparator
	sink   logsink.Sink
	ignore *IgnoreList
}

type Option func(*Engine)

// WithFs replaces the OS filesystem.
func WithFs(fs afero.Fs) Option {
	return func(e *Engine) { e.fs = fs }
}

func WithComparator(cmp Comparator) Option {
	return func(e *Engine) { e.cmp = cmp }
}

func WithIgnoreList(l *IgnoreList) Option {
	return func(e *Engine) { e.ignore = l }
}

func NewEngine(sink logsink.Sink, opts ...Option) *Engine {
	e := &Engine{
		fs:   afero.NewOsFs(),
		sink: sink,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cmp == nil {
		e.cmp = NewByteComparator(e.fs)
	}
	return e
}

// Synchronize runs one cycle: CheckAndCopy followed by Cleanup. Cancellation
// is reported through SyncResult.Cancelled, never as an error.
func (e *Engine) Synchronize(ctx context.Context, sourceRoot, replicaRoot string) *SyncResult {
	start := time.Now()

	if e.ignore != nil {
		e.ignore.Load(e.fs, sourceRoot)
	}

	result, err := e.CheckAndCopy(ctx, sourceRoot, replicaRoot)
	if err == nil {
		var cleanup *SyncResult
		cleanup, err = e.Cleanup(ctx, sourceRoot, replicaRoot)
		result.merge(cleanup)
	}

	switch {
	case err == nil:
	case ctx.Err() != nil:
		result.Cancelled = true
		e.sink.Info("Synchronization cancelled")
	default:
		result.Errors++
		e.sink.Error(fmt.Sprintf("Synchronization failed: %v", err))
	}

	if result.HasChanges() || result.Errors > 0 {
		slog.Info("mirror cycle", "result", result, "took", time.Since(start))
	}
	return result
}

// stat returns the entry at path. A missing entry is not an error.
func (e *Engine) stat(path string) (os.FileInfo, error) {
	info, err := e.fs.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	return info, err
}
