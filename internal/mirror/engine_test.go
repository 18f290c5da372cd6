package mirror

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"syscall"
	"testing"

	"github.com/openmined/syftmirror/internal/logsink"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTrees(t *testing.T) (string, string) {
	t.Helper()
	base := t.TempDir()
	src := filepath.Join(base, "source")
	dst := filepath.Join(base, "replica")
	require.NoError(t, os.MkdirAll(src, 0o755))
	require.NoError(t, os.MkdirAll(dst, 0o755))
	return src, dst
}

func writeFile(t *testing.T, root, rel, content string) {
	t.Helper()
	path := filepath.Join(root, filepath.FromSlash(rel))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func readFile(t *testing.T, root, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

// snapshot maps every relative path under root to its content, or "/" for a
// directory.
func snapshot(t *testing.T, root string) map[string]string {
	t.Helper()
	out := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == root {
			return nil
		}
		rel, _ := filepath.Rel(root, path)
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			out[rel] = "/"
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		out[rel] = string(data)
		return nil
	})
	require.NoError(t, err)
	return out
}

// faultyFs fails selected operations with EACCES.
type faultyFs struct {
	afero.Fs
	statFail   string
	mkdirFail  string
	renameFail string
	removeFail string
}

func (f *faultyFs) Stat(path string) (os.FileInfo, error) {
	if path == f.statFail {
		return nil, &os.PathError{Op: "stat", Path: path, Err: syscall.EACCES}
	}
	return f.Fs.Stat(path)
}

func (f *faultyFs) MkdirAll(path string, perm os.FileMode) error {
	if path == f.mkdirFail {
		return &os.PathError{Op: "mkdir", Path: path, Err: syscall.EACCES}
	}
	return f.Fs.MkdirAll(path, perm)
}

func (f *faultyFs) Rename(oldname, newname string) error {
	if f.renameFail != "" && newname == f.renameFail {
		return &os.LinkError{Op: "rename", Old: oldname, New: newname, Err: syscall.EACCES}
	}
	return f.Fs.Rename(oldname, newname)
}

func (f *faultyFs) Remove(path string) error {
	if path == f.removeFail {
		return &os.PathError{Op: "remove", Path: path, Err: syscall.EACCES}
	}
	return f.Fs.Remove(path)
}

func (f *faultyFs) RemoveAll(path string) error {
	if path == f.removeFail {
		return &os.PathError{Op: "unlinkat", Path: path, Err: syscall.EACCES}
	}
	return f.Fs.RemoveAll(path)
}

// cancellingComparator cancels the cycle while comparing.
type cancellingComparator struct {
	cancel context.CancelFunc
}

func (c *cancellingComparator) Compare(ctx context.Context, _, _ string) (bool, error) {
	c.cancel()
	return false, ctx.Err()
}

func TestSynchronizeFreshSync(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "docs/readme.txt", "0123456789")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result := NewEngine(sink).Synchronize(context.Background(), src, dst)

	assert.Equal(t, 1, result.CreatedDirs)
	assert.Equal(t, 1, result.CopiedFiles)
	assert.Equal(t, int64(10), result.CopiedBytes)
	assert.Zero(t, result.Errors)
	assert.False(t, result.Cancelled)

	assert.Equal(t, "0123456789", readFile(t, dst, "docs/readme.txt"))
	assert.Equal(t, []string{
		"Created directory " + filepath.Join(dst, "docs"),
		"Copied file " + filepath.Join(src, "docs", "readme.txt") + " to " + filepath.Join(dst, "docs", "readme.txt"),
	}, sink.Messages())
}

func TestSynchronizeMemFs(t *testing.T) {
	memFs := afero.NewMemMapFs()
	require.NoError(t, memFs.MkdirAll("/replica", 0o755))
	require.NoError(t, afero.WriteFile(memFs, "/source/docs/readme.txt", []byte("0123456789"), 0o644))
	require.NoError(t, afero.WriteFile(memFs, "/replica/old.txt", []byte("old"), 0o644))

	sink := logsink.NewRecorder("/logs/sync.log")
	result := NewEngine(sink, WithFs(memFs)).Synchronize(context.Background(), "/source", "/replica")

	assert.Equal(t, 1, result.CopiedFiles)
	assert.Equal(t, 1, result.DeletedFiles)

	data, err := afero.ReadFile(memFs, "/replica/docs/readme.txt")
	require.NoError(t, err)
	assert.Equal(t, "0123456789", string(data))

	exists, err := afero.Exists(memFs, "/replica/old.txt")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestSynchronizeNoop(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "a.txt", "same")
	writeFile(t, dst, "a.txt", "same")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result := NewEngine(sink).Synchronize(context.Background(), src, dst)

	assert.False(t, result.HasChanges())
	assert.Empty(t, sink.Messages())
}

func TestSynchronizeStaleDeletion(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, dst, "old.txt", "stale")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result := NewEngine(sink).Synchronize(context.Background(), src, dst)

	assert.Equal(t, 1, result.DeletedFiles)
	assert.NoFileExists(t, filepath.Join(dst, "old.txt"))
	assert.Equal(t, []string{"Deleted file " + filepath.Join(dst, "old.txt")}, sink.Messages())
}

func TestSynchronizeIdempotent(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "a.txt", "a")
	writeFile(t, src, "nested/b.txt", "b")
	writeFile(t, src, "nested/deeper/c.txt", "c")
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty"), 0o755))
	writeFile(t, dst, "gone/x.txt", "x")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink)

	first := engine.Synchronize(context.Background(), src, dst)
	require.True(t, first.HasChanges())
	assert.Equal(t, snapshot(t, src), snapshot(t, dst))

	sink.Reset()
	second := engine.Synchronize(context.Background(), src, dst)
	assert.False(t, second.HasChanges())
	assert.Empty(t, sink.Messages())
	assert.Equal(t, snapshot(t, src), snapshot(t, dst))
}

func TestSynchronizeConvergence(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "keep.txt", "keep")
	writeFile(t, src, "change.txt", "aaaa")
	writeFile(t, src, "dir/inner.txt", "inner")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink)
	engine.Synchronize(context.Background(), src, dst)

	// same length so only a byte comparison can tell
	writeFile(t, src, "change.txt", "bbbb")
	writeFile(t, src, "new/file.txt", "new")
	require.NoError(t, os.RemoveAll(filepath.Join(src, "dir")))
	writeFile(t, dst, "extra.txt", "extra")

	result := engine.Synchronize(context.Background(), src, dst)
	assert.Zero(t, result.Errors)
	assert.Equal(t, snapshot(t, src), snapshot(t, dst))
	assert.Equal(t, "bbbb", readFile(t, dst, "change.txt"))
}

func TestCleanupRemovesMissingDirectoryOnce(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, dst, "old/x/1.txt", "1")
	writeFile(t, dst, "old/x/2.txt", "2")
	writeFile(t, dst, "old/3.txt", "3")
	writeFile(t, src, "kept/4.txt", "4")
	writeFile(t, dst, "kept/4.txt", "4")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result, err := NewEngine(sink).Cleanup(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 1, result.DeletedDirs)
	assert.Zero(t, result.DeletedFiles)
	assert.Equal(t, []string{"Deleted directory " + filepath.Join(dst, "old")}, sink.Messages())
	assert.NoDirExists(t, filepath.Join(dst, "old"))
	assert.FileExists(t, filepath.Join(dst, "kept", "4.txt"))
}

func TestCleanupMissingReplicaRoot(t *testing.T) {
	src, dst := setupTrees(t)
	require.NoError(t, os.RemoveAll(dst))

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result, err := NewEngine(sink).Cleanup(context.Background(), src, dst)
	require.NoError(t, err)
	assert.False(t, result.HasChanges())
}

func TestCheckAndCopyDirectoryCreationFailure(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "bad/f.txt", "f")
	writeFile(t, src, "good/ok.txt", "ok")

	badDir := filepath.Join(dst, "bad")
	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink, WithFs(&faultyFs{Fs: afero.NewOsFs(), mkdirFail: badDir}))

	result, err := engine.CheckAndCopy(context.Background(), src, dst)
	require.NoError(t, err)

	// once for the directory entry, once for the file inside it
	assert.Equal(t, 2, result.Errors)
	assert.Equal(t, 2, sink.Count("Error creating directory "+badDir+": "))
	assert.Equal(t, 1, result.CopiedFiles)
	assert.Equal(t, "ok", readFile(t, dst, "good/ok.txt"))
	assert.NoDirExists(t, badDir)
}

func TestCheckAndCopyDirectoryStatFailure(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "locked/f.txt", "f")
	writeFile(t, src, "open/ok.txt", "ok")

	lockedDir := filepath.Join(dst, "locked")
	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink, WithFs(&faultyFs{Fs: afero.NewOsFs(), statFail: lockedDir}))

	result, err := engine.CheckAndCopy(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 2, result.Errors)
	assert.Equal(t, 2, sink.Count("Error checking directory "+lockedDir+": "))
	assert.Zero(t, sink.Count("Error creating directory"))
	assert.Equal(t, 1, result.CopiedFiles)
	assert.NoDirExists(t, lockedDir)
}

func TestCheckAndCopyCopyFailure(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "a.txt", "a")
	writeFile(t, src, "b.txt", "b")
	writeFile(t, src, "c.txt", "c")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink, WithFs(&faultyFs{Fs: afero.NewOsFs(), renameFail: filepath.Join(dst, "b.txt")}))

	result, err := engine.CheckAndCopy(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 2, result.CopiedFiles)
	assert.Equal(t, 1, sink.Count("Error copying file "+filepath.Join(src, "b.txt")+": "))

	// the temp file is removed and the destination never appears
	assert.Equal(t, map[string]string{"a.txt": "a", "c.txt": "c"}, snapshot(t, dst))
}

func TestCleanupDeleteFailure(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, dst, "a.txt", "a")
	writeFile(t, dst, "b.txt", "b")

	locked := filepath.Join(dst, "a.txt")
	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink, WithFs(&faultyFs{Fs: afero.NewOsFs(), removeFail: locked}))

	result, err := engine.Cleanup(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, result.DeletedFiles)
	assert.Equal(t, 1, sink.Count("Error deleting file "+locked+": "))
	assert.FileExists(t, locked)
	assert.NoFileExists(t, filepath.Join(dst, "b.txt"))
}

func TestSynchronizeReadOnlyReplica(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "new.txt", "new")
	writeFile(t, dst, "old.txt", "old")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink, WithFs(afero.NewReadOnlyFs(afero.NewOsFs())))

	result := engine.Synchronize(context.Background(), src, dst)

	assert.Equal(t, 2, result.Errors)
	assert.False(t, result.HasChanges())
	assert.Equal(t, 1, sink.Count("Error copying file "))
	assert.Equal(t, 1, sink.Count("Error deleting file "))
}

func TestSynchronizeCancelled(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "a.txt", "a")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result := NewEngine(sink).Synchronize(ctx, src, dst)

	assert.True(t, result.Cancelled)
	assert.Zero(t, result.Errors)
	assert.Equal(t, []string{"Synchronization cancelled"}, sink.Messages())
	assert.NoFileExists(t, filepath.Join(dst, "a.txt"))
}

func TestCheckAndCopyCancelledComparisonSkipsCopy(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "a.txt", "new")
	writeFile(t, dst, "a.txt", "old")
	writeFile(t, src, "z.txt", "z")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink, WithComparator(&cancellingComparator{cancel: cancel}))

	result, err := engine.CheckAndCopy(ctx, src, dst)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, result.CopiedFiles)
	assert.Equal(t, "old", readFile(t, dst, "a.txt"))
	assert.NoFileExists(t, filepath.Join(dst, "z.txt"))
}

func TestSynchronizeTypeConflicts(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "x", "now a file")
	writeFile(t, dst, "x/inner.txt", "was a dir")
	writeFile(t, src, "y/z.txt", "now a dir")
	writeFile(t, dst, "y", "was a file")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result := NewEngine(sink).Synchronize(context.Background(), src, dst)

	assert.Zero(t, result.Errors)
	assert.Equal(t, snapshot(t, src), snapshot(t, dst))
	assert.Equal(t, 1, sink.Count("Deleted directory "+filepath.Join(dst, "x")))
	assert.Equal(t, 1, sink.Count("Deleted file "+filepath.Join(dst, "y")))
}

func TestSynchronizeIgnorePatterns(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "a.txt", "a")
	writeFile(t, src, "b.tmp", "b")
	writeFile(t, src, "cache/c.txt", "c")
	writeFile(t, src, IgnoreFileName, "cache/\n")
	writeFile(t, dst, "stale.tmp", "keep me")
	writeFile(t, dst, "cache/keep.txt", "keep me too")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	engine := NewEngine(sink, WithIgnoreList(NewIgnoreList("*.tmp")))

	result := engine.Synchronize(context.Background(), src, dst)
	assert.Zero(t, result.Errors)

	assert.Equal(t, map[string]string{
		"a.txt":          "a",
		IgnoreFileName:   "cache/\n",
		"stale.tmp":      "keep me",
		"cache":          "/",
		"cache/keep.txt": "keep me too",
	}, snapshot(t, dst))
}

func TestCheckAndCopyEmptyDirectory(t *testing.T) {
	src, dst := setupTrees(t)
	require.NoError(t, os.MkdirAll(filepath.Join(src, "empty", "nested"), 0o755))

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result, err := NewEngine(sink).CheckAndCopy(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 2, result.CreatedDirs)
	assert.DirExists(t, filepath.Join(dst, "empty", "nested"))
}

func TestCheckAndCopySkipsSymlinks(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "target.txt", "t")
	require.NoError(t, os.Symlink(filepath.Join(src, "target.txt"), filepath.Join(src, "link.txt")))

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result, err := NewEngine(sink).CheckAndCopy(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CopiedFiles)
	assert.FileExists(t, filepath.Join(dst, "target.txt"))
	_, err = os.Lstat(filepath.Join(dst, "link.txt"))
	assert.True(t, os.IsNotExist(err))
}

func TestCheckAndCopyKeepsPermissions(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "secret.txt", "s")
	require.NoError(t, os.Chmod(filepath.Join(src, "secret.txt"), 0o600))

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	_, err := NewEngine(sink).CheckAndCopy(context.Background(), src, dst)
	require.NoError(t, err)

	info, err := os.Stat(filepath.Join(dst, "secret.txt"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCheckAndCopyOverwritesChangedFile(t *testing.T) {
	src, dst := setupTrees(t)
	writeFile(t, src, "a.txt", "fresh content")
	writeFile(t, dst, "a.txt", "stale")

	sink := logsink.NewRecorder(filepath.Join(t.TempDir(), "sync.log"))
	result, err := NewEngine(sink).CheckAndCopy(context.Background(), src, dst)
	require.NoError(t, err)

	assert.Equal(t, 1, result.CopiedFiles)
	assert.Equal(t, "fresh content", readFile(t, dst, "a.txt"))

	for _, msg := range sink.Messages() {
		assert.False(t, strings.HasPrefix(msg, "Created directory"), msg)
	}
}
