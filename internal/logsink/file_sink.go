package logsink

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/openmined/syftmirror/internal/utils"
)

// FileSink appends messages as slog text lines to a file. Each line is
// prefixed with a sequence number and a timestamp by utils.LogInterceptor.
// An optional console handler receives the same records.
type FileSink struct {
	path        string
	out         *appendFile
	interceptor *utils.LogInterceptor
	handler     slog.Handler
	logger      *slog.Logger
}

// NewFileSink opens (or creates) the log file at path in append mode.
func NewFileSink(path string, console slog.Handler) (*FileSink, error) {
	absPath, err := utils.ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve log path: %w", err)
	}

	out := &appendFile{path: absPath}
	if err := out.open(); err != nil {
		return nil, err
	}

	interceptor := utils.NewLogInterceptor(out)
	fileHandler := slog.NewTextHandler(interceptor, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		// time is added by the interceptor
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if a.Key == slog.TimeKey && len(groups) == 0 {
				return slog.Attr{}
			}
			return a
		},
	})

	handler := utils.NewMultiLogHandler(fileHandler, console)
	return &FileSink{
		path:        absPath,
		out:         out,
		interceptor: interceptor,
		handler:     handler,
		logger:      slog.New(handler),
	}, nil
}

func (s *FileSink) Info(msg string)  { s.logger.Info(msg) }
func (s *FileSink) Error(msg string) { s.logger.Error(msg) }

func (s *FileSink) Dir() string      { return filepath.Dir(s.path) }
func (s *FileSink) FileName() string { return filepath.Base(s.path) }

// Handler exposes the fan-out handler so the process-wide slog default can
// write to the same destinations.
func (s *FileSink) Handler() slog.Handler { return s.handler }

func (s *FileSink) Close() error {
	if err := s.interceptor.Close(); err != nil {
		s.out.Close()
		return err
	}
	return s.out.Close()
}

// appendFile re-opens its file when it has been removed from disk, e.g. when
// the log directory is deleted while the daemon is running.
type appendFile struct {
	path string
	mu   sync.Mutex
	f    *os.File
}

func (a *appendFile) open() error {
	if err := utils.EnsureParent(a.path); err != nil {
		return fmt.Errorf("create log directory: %w", err)
	}
	f, err := os.OpenFile(a.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	a.f = f
	return nil
}

func (a *appendFile) Write(p []byte) (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.f == nil || !utils.FileExists(a.path) {
		if a.f != nil {
			a.f.Close()
			a.f = nil
		}
		if err := a.open(); err != nil {
			return 0, err
		}
	}
	return a.f.Write(p)
}

func (a *appendFile) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.f == nil {
		return nil
	}
	err := a.f.Close()
	a.f = nil
	return err
}
