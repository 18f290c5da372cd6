package mirror

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"

	mapset "github.com/deckarep/golang-set/v2"
)

// Cleanup deletes replica entries that no longer exist in the source. A
// directory missing from the source is removed from the replica in one
// recursive delete and nothing below it is visited again.
func (e *Engine) Cleanup(ctx context.Context, sourceRoot, replicaRoot string) (*SyncResult, error) {
	result := &SyncResult{}

	if info, err := e.stat(replicaRoot); err == nil && info == nil {
		return result, nil
	}

	entries, err := e.list(ctx, replicaRoot)
	if err != nil {
		return result, err
	}

	// replica-relative directories removed during this pass
	removed := mapset.NewThreadUnsafeSet[string]()

	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if isBelowRemoved(removed, entry.RelPath) {
			continue
		}

		relDir := entry.RelPath
		if !entry.IsDir {
			relDir = filepath.Dir(entry.RelPath)
		}

		if relDir != "." {
			exists, err := e.sourceDirExists(filepath.Join(sourceRoot, relDir))
			if err != nil {
				slog.Warn("mirror cleanup", "path", relDir, "error", err)
				continue
			}
			if !exists {
				e.removeReplicaDir(filepath.Join(replicaRoot, relDir), relDir, removed, result)
				continue
			}
		}
		if entry.IsDir {
			continue
		}

		info, err := e.stat(filepath.Join(sourceRoot, entry.RelPath))
		if err != nil {
			slog.Warn("mirror cleanup", "path", entry.RelPath, "error", err)
			continue
		}
		if info != nil && !info.IsDir() {
			continue
		}

		if err := e.fs.Remove(entry.AbsPath); err != nil {
			result.Errors++
			e.sink.Error(fmt.Sprintf("Error deleting file %s: %v", entry.AbsPath, err))
			continue
		}
		result.DeletedFiles++
		e.sink.Info(fmt.Sprintf("Deleted file %s", entry.AbsPath))
		slog.Debug("mirror", "op", OpDeleteFile, "path", entry.RelPath)
	}

	return result, nil
}

func (e *Engine) sourceDirExists(path string) (bool, error) {
	info, err := e.stat(path)
	if err != nil {
		return false, err
	}
	return info != nil && info.IsDir(), nil
}

func (e *Engine) removeReplicaDir(dir, relDir string, removed mapset.Set[string], result *SyncResult) {
	// marked even on failure so the same delete is not retried for every child
	removed.Add(relDir)

	if err := e.fs.RemoveAll(dir); err != nil {
		result.Errors++
		e.sink.Error(fmt.Sprintf("Error deleting directory %s: %v", dir, err))
		return
	}
	result.DeletedDirs++
	e.sink.Info(fmt.Sprintf("Deleted directory %s", dir))
	slog.Debug("mirror", "op", OpDeleteDir, "path", relDir)
}

func isBelowRemoved(removed mapset.Set[string], relPath string) bool {
	for p := relPath; p != "." && p != string(filepath.Separator); p = filepath.Dir(p) {
		if removed.Contains(p) {
			return true
		}
	}
	return false
}
