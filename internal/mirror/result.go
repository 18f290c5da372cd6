package mirror

import (
	"log/slog"

	"github.com/dustin/go-humanize"
)

type OpType string

const (
	OpCreateDir  OpType = "CreateDir"
	OpCopy       OpType = "Copy"
	OpDeleteFile OpType = "DeleteFile"
	OpDeleteDir  OpType = "DeleteDir"
	OpSkipped    OpType = "Skipped"
)

// SyncResult counts what one phase or one cycle did. It is only logged.
type SyncResult struct {
	CreatedDirs  int
	CopiedFiles  int
	CopiedBytes  int64
	DeletedFiles int
	DeletedDirs  int
	Errors       int
	Cancelled    bool
}

// HasChanges reports whether the replica was modified.
func (r *SyncResult) HasChanges() bool {
	return r.CreatedDirs > 0 ||
		r.CopiedFiles > 0 ||
		r.DeletedFiles > 0 ||
		r.DeletedDirs > 0
}

func (r *SyncResult) merge(o *SyncResult) {
	if o == nil {
		return
	}
	r.CreatedDirs += o.CreatedDirs
	r.CopiedFiles += o.CopiedFiles
	r.CopiedBytes += o.CopiedBytes
	r.DeletedFiles += o.DeletedFiles
	r.DeletedDirs += o.DeletedDirs
	r.Errors += o.Errors
	r.Cancelled = r.Cancelled || o.Cancelled
}

// LogValue implements slog.LogValuer.
func (r *SyncResult) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("createdDirs", r.CreatedDirs),
		slog.Int("copied", r.CopiedFiles),
		slog.String("copiedSize", humanize.Bytes(uint64(r.CopiedBytes))),
		slog.Int("deletedFiles", r.DeletedFiles),
		slog.Int("deletedDirs", r.DeletedDirs),
		slog.Int("errors", r.Errors),
		slog.Bool("cancelled", r.Cancelled),
	)
}
