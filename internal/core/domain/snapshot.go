package domain

import (
	"context"
	"io"
	"time"
)

// FileHandle is one enumerated file of a snapshot. Path is slash separated and
// starts with the snapshot root name (or "/local/" for flat uploads).
type FileHandle interface {
	Path() string
	Name() string
	Size() int64
	ModTime() time.Time
	Open(ctx context.Context) (io.ReadCloser, error)
}

// Snapshot is the current state of a connected root in enumeration order.
// Root is empty for flat, un-rooted upload batches.
type Snapshot struct {
	Root    string
	Entries []FileHandle
}

// NewSnapshot keeps the first handle of each path.
func NewSnapshot(root string, entries []FileHandle) Snapshot {
	seen := make(map[string]struct{}, len(entries))
	kept := make([]FileHandle, 0, len(entries))
	for _, e := range entries {
		if _, dup := seen[e.Path()]; dup {
			continue
		}
		seen[e.Path()] = struct{}{}
		kept = append(kept, e)
	}
	return Snapshot{Root: root, Entries: kept}
}

func (s Snapshot) Len() int {
	return len(s.Entries)
}

// ChangeKind orders queue processing: added before modified.
type ChangeKind string

const (
	ChangeAdded    ChangeKind = "added"
	ChangeModified ChangeKind = "modified"
)

type ChangeItem struct {
	Kind     ChangeKind
	Path     string
	Handle   FileHandle
	Existing *FileRecord
}

// ChangeSet holds three disjoint sets produced by reconciliation.
type ChangeSet struct {
	Root       string
	Added      []ChangeItem
	Modified   []ChangeItem
	DeletedIDs []string
}

func (c ChangeSet) IsEmpty() bool {
	return len(c.Added) == 0 && len(c.Modified) == 0 && len(c.DeletedIDs) == 0
}

// ExtractedContent is the result of content extraction. Text is empty when
// the format carries no extractable text.
type ExtractedContent struct {
	Text      string
	OCRStatus OCRStatus
	Preview   *PreviewPayload
}

type PreviewPayload struct {
	Kind      PreviewKind
	MimeType  string
	Data      []byte
	Text      string
	PageCount int
	Width     int
	Height    int
}
