package mirror

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/afero"
)

// CheckAndCopy makes sure every source entry has an identical counterpart in
// the replica. Per-entry failures are logged and skipped. The returned error
// is non-nil only when the source cannot be listed or ctx is done.
func (e *Engine) CheckAndCopy(ctx context.Context, sourceRoot, replicaRoot string) (*SyncResult, error) {
	result := &SyncResult{}

	entries, err := e.list(ctx, sourceRoot)
	if err != nil {
		return result, err
	}

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		if entry.IsDir {
			e.ensureReplicaDir(filepath.Join(replicaRoot, entry.RelPath), result)
			continue
		}

		if !entry.Mode.IsRegular() {
			slog.Debug("mirror", "op", OpSkipped, "path", entry.RelPath, "reason", "not a regular file", "mode", entry.Mode.String())
			continue
		}

		replicaDir := filepath.Join(replicaRoot, filepath.Dir(entry.RelPath))
		if !e.ensureReplicaDir(replicaDir, result) {
			continue
		}

		replicaFile := filepath.Join(replicaRoot, entry.RelPath)
		needed, err := e.copyNeeded(ctx, entry, replicaFile, result)
		if err != nil {
			return result, err
		}
		if !needed {
			continue
		}

		written, err := e.copyFile(ctx, entry, replicaFile)
		if err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.Errors++
			e.sink.Error(fmt.Sprintf("Error copying file %s: %v", entry.AbsPath, err))
			continue
		}

		result.CopiedFiles++
		result.CopiedBytes += written
		e.sink.Info(fmt.Sprintf("Copied file %s to %s", entry.AbsPath, replicaFile))
		slog.Debug("mirror", "op", OpCopy, "path", entry.RelPath, "size", humanize.Bytes(uint64(written)))
	}

	return result, nil
}

// ensureReplicaDir creates dir (and its parents) when missing. A file that is
// in the way is removed first. It returns false if dir is not usable.
func (e *Engine) ensureReplicaDir(dir string, result *SyncResult) bool {
	info, err := e.stat(dir)
	if err != nil {
		result.Errors++
		e.sink.Error(fmt.Sprintf("Error checking directory %s: %v", dir, err))
		return false
	}
	if info != nil && info.IsDir() {
		return true
	}

	if info != nil {
		if err := e.fs.Remove(dir); err != nil {
			result.Errors++
			e.sink.Error(fmt.Sprintf("Error deleting file %s: %v", dir, err))
			return false
		}
		result.DeletedFiles++
		e.sink.Info(fmt.Sprintf("Deleted file %s", dir))
	}

	if err := e.fs.MkdirAll(dir, 0o755); err != nil {
		result.Errors++
		e.sink.Error(fmt.Sprintf("Error creating directory %s: %v", dir, err))
		return false
	}

	result.CreatedDirs++
	e.sink.Info(fmt.Sprintf("Created directory %s", dir))
	slog.Debug("mirror", "op", OpCreateDir, "path", dir)
	return true
}

// copyNeeded reports whether replicaFile must be (re)written from entry.
// The only error it returns is the context's.
func (e *Engine) copyNeeded(ctx context.Context, entry FileEntry, replicaFile string, result *SyncResult) (bool, error) {
	info, err := e.stat(replicaFile)
	if err != nil {
		slog.Warn("mirror stat", "path", replicaFile, "error", err)
		return true, nil
	}
	if info == nil {
		return true, nil
	}

	if info.IsDir() {
		if err := e.fs.RemoveAll(replicaFile); err != nil {
			result.Errors++
			e.sink.Error(fmt.Sprintf("Error deleting directory %s: %v", replicaFile, err))
			return false, nil
		}
		result.DeletedDirs++
		e.sink.Info(fmt.Sprintf("Deleted directory %s", replicaFile))
		return true, nil
	}

	same, err := e.cmp.Compare(ctx, entry.AbsPath, replicaFile)
	if err != nil {
		if ctx.Err() != nil {
			// inconclusive, leave the replica as it is
			return false, ctx.Err()
		}
		slog.Warn("mirror compare", "path", entry.RelPath, "error", err)
		return true, nil
	}
	return !same, nil
}

// copyFile streams src into a temporary file next to dst and renames it over
// dst, so dst is either the old or the complete new content.
func (e *Engine) copyFile(ctx context.Context, entry FileEntry, dst string) (int64, error) {
	src, err := e.fs.Open(entry.AbsPath)
	if err != nil {
		return 0, err
	}
	defer src.Close()

	tmp, err := afero.TempFile(e.fs, filepath.Dir(dst), "."+filepath.Base(dst)+".mirror-*")
	if err != nil {
		return 0, fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	success := false
	defer func() {
		if !success {
			tmp.Close()
			e.fs.Remove(tmpPath)
		}
	}()

	written, err := io.Copy(tmp, &contextReader{ctx: ctx, r: src})
	if err != nil {
		return written, err
	}
	if err := tmp.Sync(); err != nil {
		return written, fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return written, fmt.Errorf("close temp file: %w", err)
	}
	if err := e.fs.Chmod(tmpPath, entry.Mode.Perm()); err != nil {
		return written, fmt.Errorf("chmod temp file: %w", err)
	}
	if err := e.fs.Rename(tmpPath, dst); err != nil {
		return written, fmt.Errorf("rename temp file: %w", err)
	}

	success = true
	return written, nil
}

// contextReader stops a copy as soon as ctx is done.
type contextReader struct {
	ctx context.Context
	r   io.Reader
}

func (c *contextReader) Read(p []byte) (int, error) {
	if err := c.ctx.Err(); err != nil {
		return 0, err
	}
	return c.r.Read(p)
}
