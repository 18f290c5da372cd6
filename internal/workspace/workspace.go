package workspace

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/openmined/syftmirror/internal/utils"
)

const lockSuffix = ".syftmirror.lock"

var (
	ErrWorkspaceLocked = errors.New("replica locked by another process")
)

// Workspace guards a replica root so only one daemon mirrors into it. The lock
// file lives next to the replica, not inside it, so cleanup never sees it.
type Workspace struct {
	ReplicaRoot string
	LockPath    string

	flock *flock.Flock
}

func NewWorkspace(replicaRoot string) (*Workspace, error) {
	root, err := utils.ResolvePath(replicaRoot)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path %s: %w", replicaRoot, err)
	}

	lockPath := filepath.Join(filepath.Dir(root), "."+filepath.Base(root)+lockSuffix)
	return &Workspace{
		ReplicaRoot: root,
		LockPath:    lockPath,
		flock:       flock.New(lockPath),
	}, nil
}

func (w *Workspace) Lock() error {
	if err := utils.EnsureParent(w.LockPath); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", filepath.Dir(w.LockPath), err)
	}

	locked, err := w.flock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to lock replica: %w", err)
	}
	if !locked {
		return fmt.Errorf("%w: %s", ErrWorkspaceLocked, w.ReplicaRoot)
	}

	return nil
}

func (w *Workspace) Unlock() error {
	// only the holder removes the lock file
	if !w.flock.Locked() {
		return nil
	}

	if err := w.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to unlock replica: %w", err)
	}

	return os.Remove(w.flock.Path())
}
