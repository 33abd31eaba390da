// Package localfs enumerates a connected directory into an archive snapshot.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// Snapshotter walks Dir recursively. Snapshot paths start with the base name
// of Dir, so "/data/Finance/q1.pdf" under Dir "/data/Finance" becomes "Finance/q1.pdf".
type Snapshotter struct {
	dir        string
	skipHidden bool
}

func New(dir string) *Snapshotter {
	return &Snapshotter{dir: filepath.Clean(dir), skipHidden: true}
}

// WithHidden includes dot files and dot directories in the walk.
func (s *Snapshotter) WithHidden() *Snapshotter {
	s.skipHidden = false
	return s
}

func (s *Snapshotter) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	info, err := os.Stat(s.dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return domain.Snapshot{}, domain.WrapError(domain.ErrUnsupportedCapability, "snapshot directory", err)
		}
		return domain.Snapshot{}, fmt.Errorf("stat root: %w", err)
	}
	if !info.IsDir() {
		return domain.Snapshot{}, domain.WrapError(domain.ErrUnsupportedCapability, "snapshot directory", fmt.Errorf("%s is not a directory", s.dir))
	}

	root := filepath.Base(s.dir)
	var entries []domain.FileHandle
	err = filepath.WalkDir(s.dir, func(p string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if p != s.dir && s.skipHidden && strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", p, err)
		}
		rel, err := filepath.Rel(s.dir, p)
		if err != nil {
			return err
		}
		entries = append(entries, &fileHandle{
			abs:     p,
			path:    path.Join(root, filepath.ToSlash(rel)),
			size:    fi.Size(),
			modTime: fi.ModTime().UTC().Truncate(time.Millisecond),
		})
		return nil
	})
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("walk %s: %w", s.dir, err)
	}
	return domain.NewSnapshot(root, entries), nil
}

type fileHandle struct {
	abs     string
	path    string
	size    int64
	modTime time.Time
}

func (h *fileHandle) Path() string       { return h.path }
func (h *fileHandle) Name() string       { return path.Base(h.path) }
func (h *fileHandle) Size() int64        { return h.size }
func (h *fileHandle) ModTime() time.Time { return h.modTime }

func (h *fileHandle) Open(_ context.Context) (io.ReadCloser, error) {
	f, err := os.Open(h.abs)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", h.path, err)
	}
	return f, nil
}
