// Package scheduler drives the mirror cycle: validate both roots, synchronize,
// sleep for the configured interval, repeat until cancelled.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/openmined/syftmirror/internal/config"
	"github.com/openmined/syftmirror/internal/logsink"
	"github.com/openmined/syftmirror/internal/mirror"
	"github.com/openmined/syftmirror/internal/utils"
)

var (
	ErrSourceMissing      = errors.New("source directory does not exist")
	ErrReplicaUnavailable = errors.New("replica directory unavailable")
)

// Synchronizer runs one mirror cycle.
type Synchronizer interface {
	Synchronize(ctx context.Context, sourceRoot, replicaRoot string) *mirror.SyncResult
}

type Loop struct {
	cfg   config.SyncConfig
	sync  Synchronizer
	sink  logsink.Sink
	clock clockwork.Clock
	wake  <-chan struct{}

	mu     sync.RWMutex
	state  State
	cycles int
}

type Option func(*Loop)

func WithClock(clock clockwork.Clock) Option {
	return func(l *Loop) { l.clock = clock }
}

// WithWake ends a sleep early whenever ch receives. A nil channel never wakes.
func WithWake(ch <-chan struct{}) Option {
	return func(l *Loop) { l.wake = ch }
}

func NewLoop(cfg config.SyncConfig, sync Synchronizer, sink logsink.Sink, opts ...Option) *Loop {
	l := &Loop{
		cfg:   cfg,
		sync:  sync,
		sink:  sink,
		clock: clockwork.NewRealClock(),
		state: StateValidating,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Loop) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Cycles returns how many synchronizations have run.
func (l *Loop) Cycles() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.cycles
}

func (l *Loop) setState(s State) {
	l.mu.Lock()
	l.state = s
	l.mu.Unlock()
	slog.Debug("scheduler", "state", s)
}

// CheckDirectories prepares the log directory and the replica root and makes
// sure the source root exists. ErrSourceMissing is fatal to the loop;
// ErrReplicaUnavailable only skips the current cycle.
func (l *Loop) CheckDirectories() error {
	logDir := l.sink.Dir()
	if !utils.DirExists(logDir) {
		if err := utils.EnsureDir(logDir); err != nil {
			slog.Warn("create log directory", "path", logDir, "error", err)
		} else {
			l.sink.Info(fmt.Sprintf("Created log directory '%s' with file %s", logDir, l.sink.FileName()))
		}
	}

	source := l.cfg.SourceRoot()
	if !utils.DirExists(source) {
		l.sink.Error(fmt.Sprintf("Source directory '%s' does not exist", source))
		return fmt.Errorf("%w: %s", ErrSourceMissing, source)
	}

	replica := l.cfg.ReplicaRoot()
	if !utils.DirExists(replica) {
		if err := utils.EnsureDir(replica); err != nil {
			l.sink.Error(fmt.Sprintf("Error creating replica directory '%s': %v", replica, err))
			return fmt.Errorf("%w: %w", ErrReplicaUnavailable, err)
		}
		l.sink.Info(fmt.Sprintf("Created replica directory '%s'", replica))
	}

	return nil
}

// Run cycles until ctx is cancelled or the source root disappears. It never
// exits the process; the returned code is for the caller to act on.
func (l *Loop) Run(ctx context.Context) ExitCode {
	slog.Info("scheduler start",
		"source", l.cfg.SourceRoot(),
		"replica", l.cfg.ReplicaRoot(),
		"interval", l.cfg.Interval(),
	)

	for {
		if code, stop := l.cycle(ctx); stop {
			return l.terminate(code)
		}

		l.setState(StateSleeping)
		if !l.sleep(ctx) {
			return l.terminate(ExitOK)
		}
	}
}

// RunOnce validates and synchronizes a single time.
func (l *Loop) RunOnce(ctx context.Context) ExitCode {
	code, _ := l.cycle(ctx)
	return l.terminate(code)
}

// cycle reports whether the loop must stop and with which code.
func (l *Loop) cycle(ctx context.Context) (ExitCode, bool) {
	l.setState(StateValidating)
	err := l.CheckDirectories()
	switch {
	case errors.Is(err, ErrSourceMissing):
		return ExitSourceMissing, true
	case err != nil:
		slog.Warn("scheduler skipping cycle", "error", err)
	default:
		l.setState(StateSyncing)
		cycleID := uuid.NewString()
		slog.Debug("scheduler cycle start", "id", cycleID)

		result := l.sync.Synchronize(ctx, l.cfg.SourceRoot(), l.cfg.ReplicaRoot())

		l.mu.Lock()
		l.cycles++
		n := l.cycles
		l.mu.Unlock()
		slog.Debug("scheduler cycle done", "id", cycleID, "cycle", n, "result", result)
	}

	if ctx.Err() != nil {
		return ExitOK, true
	}
	return ExitOK, false
}

// sleep waits for the interval or a wake-up. It returns false if ctx ended it.
func (l *Loop) sleep(ctx context.Context) bool {
	// a timer and not a ticker, so a long cycle never queues extra ticks
	timer := l.clock.NewTimer(l.cfg.Interval())
	defer timer.Stop()

	start := l.clock.Now()
	select {
	case <-ctx.Done():
		return false
	case <-timer.Chan():
		return true
	case <-l.wake:
		slog.Debug("scheduler woken by source change", "slept", l.clock.Since(start).Round(time.Millisecond))
		return true
	}
}

func (l *Loop) terminate(code ExitCode) ExitCode {
	l.setState(StateTerminated)
	l.sink.Info(fmt.Sprintf("Application terminated with exit code %d", code))
	return code
}
