package mirror

import (
	"bufio"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"

	gitignore "github.com/sabhiram/go-gitignore"
	"github.com/spf13/afero"
)

// IgnoreFileName is read from the source root on every cycle.
const IgnoreFileName = ".mirrorignore"

// IgnoreList excludes paths, in gitignore syntax, from both the copy and the
// cleanup phase. Excluded replica entries are left untouched.
type IgnoreList struct {
	patterns []string
	mu       sync.RWMutex
	ignore   *gitignore.GitIgnore
}

func NewIgnoreList(patterns ...string) *IgnoreList {
	l := &IgnoreList{patterns: patterns}
	l.compile(nil)
	return l
}

func (l *IgnoreList) compile(extra []string) {
	lines := make([]string, 0, len(l.patterns)+len(extra))
	lines = append(lines, l.patterns...)
	lines = append(lines, extra...)
	compiled := gitignore.CompileIgnoreLines(lines...)

	l.mu.Lock()
	l.ignore = compiled
	l.mu.Unlock()
}

// Load recompiles the list from the configured patterns plus the
// .mirrorignore file in sourceRoot, if there is one.
func (l *IgnoreList) Load(fs afero.Fs, sourceRoot string) {
	ignorePath := filepath.Join(sourceRoot, IgnoreFileName)

	var extra []string
	if file, err := fs.Open(ignorePath); err == nil {
		defer file.Close()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := strings.TrimSpace(scanner.Text())
			if line != "" && !strings.HasPrefix(line, "#") {
				extra = append(extra, line)
			}
		}
		if err := scanner.Err(); err != nil {
			slog.Warn("mirrorignore read", "path", ignorePath, "error", err)
		}
	}

	l.compile(extra)
}

// ShouldIgnore matches a root-relative path.
func (l *IgnoreList) ShouldIgnore(relPath string, isDir bool) bool {
	if l == nil {
		return false
	}

	l.mu.RLock()
	ignore := l.ignore
	l.mu.RUnlock()
	if ignore == nil {
		return false
	}

	p := filepath.ToSlash(relPath)
	if isDir {
		p += "/"
	}
	return ignore.MatchesPath(p)
}
