// Package s3 enumerates an S3 bucket (optionally under a prefix) as a
// connected archive root.
package s3

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

type lister interface {
	ListObjects(ctx context.Context, bucket string, opts minio.ListObjectsOptions) <-chan minio.ObjectInfo
}

type openFunc func(ctx context.Context, bucket, key string) (io.ReadCloser, error)

type Snapshotter struct {
	api    lister
	open   openFunc
	bucket string
	prefix string
}

func New(client *minio.Client, bucket, prefix string) *Snapshotter {
	return &Snapshotter{
		api:    client,
		bucket: bucket,
		prefix: normalizePrefix(prefix),
		open: func(ctx context.Context, bucket, key string) (io.ReadCloser, error) {
			return client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})
		},
	}
}

func normalizePrefix(prefix string) string {
	prefix = strings.Trim(prefix, "/")
	if prefix == "" {
		return ""
	}
	return prefix + "/"
}

// Root is the bucket name, extended by the prefix when one is configured so
// that deletions stay inside the listed subtree.
func (s *Snapshotter) Root() string {
	if s.prefix == "" {
		return s.bucket
	}
	return s.bucket + "/" + strings.TrimSuffix(s.prefix, "/")
}

func (s *Snapshotter) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if s.bucket == "" {
		return domain.Snapshot{}, domain.WrapError(domain.ErrUnsupportedCapability, "snapshot bucket", fmt.Errorf("bucket is not configured"))
	}

	var entries []domain.FileHandle
	opts := minio.ListObjectsOptions{Prefix: s.prefix, Recursive: true}
	for obj := range s.api.ListObjects(ctx, s.bucket, opts) {
		if obj.Err != nil {
			return domain.Snapshot{}, fmt.Errorf("list objects %s: %w", s.bucket, obj.Err)
		}
		if strings.HasSuffix(obj.Key, "/") {
			continue
		}
		entries = append(entries, &objectHandle{
			snapshotter: s,
			key:         obj.Key,
			size:        obj.Size,
			modTime:     obj.LastModified.UTC().Truncate(time.Millisecond),
		})
	}
	if err := ctx.Err(); err != nil {
		return domain.Snapshot{}, err
	}
	return domain.NewSnapshot(s.Root(), entries), nil
}

type objectHandle struct {
	snapshotter *Snapshotter
	key         string
	size        int64
	modTime     time.Time
}

func (h *objectHandle) Path() string       { return h.snapshotter.bucket + "/" + h.key }
func (h *objectHandle) Name() string       { return path.Base(h.key) }
func (h *objectHandle) Size() int64        { return h.size }
func (h *objectHandle) ModTime() time.Time { return h.modTime }

func (h *objectHandle) Open(ctx context.Context) (io.ReadCloser, error) {
	rc, err := h.snapshotter.open(ctx, h.snapshotter.bucket, h.key)
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", h.key, err)
	}
	return rc, nil
}
