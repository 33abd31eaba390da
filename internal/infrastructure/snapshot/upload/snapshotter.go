// Package upload turns a set of individually uploaded files into a flat,
// un-rooted snapshot. Un-rooted snapshots never cause deletions.
package upload

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// PathPrefix is the synthetic directory every uploaded file is placed in.
const PathPrefix = "/local/"

type File struct {
	Name    string
	Data    []byte
	ModTime time.Time
}

type Snapshotter struct {
	files []File
}

func New(files ...File) *Snapshotter {
	return &Snapshotter{files: files}
}

func (s *Snapshotter) Add(f File) {
	s.files = append(s.files, f)
}

func (s *Snapshotter) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	entries := make([]domain.FileHandle, 0, len(s.files))
	for _, f := range s.files {
		name := cleanName(f.Name)
		if name == "" {
			continue
		}
		mod := f.ModTime
		if mod.IsZero() {
			mod = time.Now()
		}
		entries = append(entries, &memHandle{
			name:    name,
			data:    f.Data,
			modTime: mod.UTC().Truncate(time.Millisecond),
		})
	}
	return domain.NewSnapshot("", entries), nil
}

// cleanName keeps the base name only; uploads never carry directories.
func cleanName(raw string) string {
	raw = strings.ReplaceAll(strings.TrimSpace(raw), "\\", "/")
	name := path.Base(raw)
	if name == "." || name == "/" || name == ".." {
		return ""
	}
	return name
}

type memHandle struct {
	name    string
	data    []byte
	modTime time.Time
}

func (h *memHandle) Path() string       { return PathPrefix + h.name }
func (h *memHandle) Name() string       { return h.name }
func (h *memHandle) Size() int64        { return int64(len(h.data)) }
func (h *memHandle) ModTime() time.Time { return h.modTime }

func (h *memHandle) Open(_ context.Context) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(h.data)), nil
}
