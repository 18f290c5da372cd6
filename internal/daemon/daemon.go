package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/jonboulle/clockwork"
	"github.com/openmined/syftmirror/internal/config"
	"github.com/openmined/syftmirror/internal/logsink"
	"github.com/openmined/syftmirror/internal/mirror"
	"github.com/openmined/syftmirror/internal/scheduler"
	"github.com/openmined/syftmirror/internal/watch"
	"github.com/openmined/syftmirror/internal/workspace"
	"golang.org/x/sync/errgroup"
)

// Daemon owns everything a running mirror needs: the replica lock, the
// engine, the scheduler loop and, when enabled, the source watcher.
type Daemon struct {
	cfg       *config.Config
	syncCfg   config.SyncConfig
	sink      logsink.Sink
	workspace *workspace.Workspace
	ignore    *mirror.IgnoreList
	engine    *mirror.Engine
	watcher   *watch.SourceWatcher
	clock     clockwork.Clock
}

type Option func(*Daemon)

func WithClock(clock clockwork.Clock) Option {
	return func(d *Daemon) { d.clock = clock }
}

// NewDaemon expects a validated config.
func NewDaemon(cfg *config.Config, sink logsink.Sink, opts ...Option) (*Daemon, error) {
	syncCfg, err := cfg.SyncConfig()
	if err != nil {
		return nil, err
	}

	ws, err := workspace.NewWorkspace(syncCfg.ReplicaRoot())
	if err != nil {
		return nil, err
	}

	ignore := mirror.NewIgnoreList(cfg.Ignore...)
	d := &Daemon{
		cfg:       cfg,
		syncCfg:   syncCfg,
		sink:      sink,
		workspace: ws,
		ignore:    ignore,
		engine:    mirror.NewEngine(sink, mirror.WithIgnoreList(ignore)),
		clock:     clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(d)
	}

	if cfg.Watch {
		d.watcher = watch.NewSourceWatcher(syncCfg.SourceRoot())
		d.watcher.FilterPaths(d.ignoredSourcePath)
	}

	return d, nil
}

// Start runs the loop until ctx is cancelled or the loop terminates on its
// own. The error is only set when the daemon could not start.
func (d *Daemon) Start(ctx context.Context) (scheduler.ExitCode, error) {
	slog.Info("mirror daemon start", "source", d.syncCfg.SourceRoot(), "replica", d.syncCfg.ReplicaRoot())

	if err := d.workspace.Lock(); err != nil {
		return scheduler.ExitOK, err
	}
	defer d.unlock()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	eg, egCtx := errgroup.WithContext(ctx)

	var wake <-chan struct{}
	if d.watcher != nil {
		if err := d.watcher.Start(egCtx); err != nil {
			// the loop still runs on the interval alone
			slog.Warn("source watcher unavailable", "dir", d.syncCfg.SourceRoot(), "error", err)
		} else {
			wake = d.watcher.Changes()
		}
	}

	loop := d.newLoop(scheduler.WithWake(wake))

	var code scheduler.ExitCode
	eg.Go(func() error {
		code = loop.Run(egCtx)
		// the loop may stop on its own; release the watcher too
		cancel()
		return nil
	})

	eg.Go(func() error {
		<-egCtx.Done()
		if d.watcher != nil {
			d.watcher.Stop()
		}
		return nil
	})

	if err := eg.Wait(); err != nil {
		return code, err
	}

	slog.Info("mirror daemon stopped", "exitCode", code)
	return code, nil
}

// RunOnce validates the roots and runs a single cycle.
func (d *Daemon) RunOnce(ctx context.Context) (scheduler.ExitCode, error) {
	if err := d.workspace.Lock(); err != nil {
		return scheduler.ExitOK, err
	}
	defer d.unlock()

	return d.newLoop().RunOnce(ctx), nil
}

func (d *Daemon) newLoop(opts ...scheduler.Option) *scheduler.Loop {
	opts = append([]scheduler.Option{scheduler.WithClock(d.clock)}, opts...)
	return scheduler.NewLoop(d.syncCfg, d.engine, d.sink, opts...)
}

func (d *Daemon) unlock() {
	if err := d.workspace.Unlock(); err != nil {
		slog.Warn("failed to release replica lock", "error", fmt.Errorf("%s: %w", d.workspace.LockPath, err))
	}
}

// ignoredSourcePath drops watcher events for paths the engine would skip.
// A path that is already gone is matched as a file, so a removed directory
// caught only by a directory pattern still wakes the loop once.
func (d *Daemon) ignoredSourcePath(path string) bool {
	rel, err := filepath.Rel(d.syncCfg.SourceRoot(), path)
	if err != nil {
		return false
	}
	isDir := false
	if info, err := os.Lstat(path); err == nil {
		isDir = info.IsDir()
	}
	return d.ignore.ShouldIgnore(rel, isDir)
}
