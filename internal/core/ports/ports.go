package ports

import (
	"context"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// Snapshotter enumerates a connected root (or an upload batch) into a snapshot.
type Snapshotter interface {
	Snapshot(ctx context.Context) (domain.Snapshot, error)
}

// ContentExtractor produces text and a preview payload from a file handle.
type ContentExtractor interface {
	Extract(ctx context.Context, file domain.FileHandle) (domain.ExtractedContent, error)
}

// OCREngine recognizes text in an encoded image.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}
