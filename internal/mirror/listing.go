package mirror

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/afero"
)

// FileEntry is one path found while listing a tree. Entries only live for
// the phase that listed them.
type FileEntry struct {
	AbsPath string
	RelPath string
	IsDir   bool
	Mode    fs.FileMode
	Size    int64
}

// list walks root and returns every entry below it in lexical order, so a
// directory always precedes its contents. Unreadable entries are logged and
// left out; only a failure on root itself is returned.
func (e *Engine) list(ctx context.Context, root string) ([]FileEntry, error) {
	var entries []FileEntry

	err := afero.Walk(e.fs, root, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			if path == root {
				return walkErr
			}
			slog.Warn("mirror list", "path", path, "error", walkErr)
			return nil
		}
		if path == root {
			return nil
		}

		relPath, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("rel path %s: %w", path, err)
		}

		if e.ignore.ShouldIgnore(relPath, info.IsDir()) {
			slog.Debug("mirror", "op", OpSkipped, "path", relPath, "reason", "ignored")
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}

		entries = append(entries, FileEntry{
			AbsPath: path,
			RelPath: relPath,
			IsDir:   info.IsDir(),
			Mode:    info.Mode(),
			Size:    info.Size(),
		})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", root, err)
	}

	return entries, nil
}
