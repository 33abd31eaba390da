package ports

import (
	"context"
	"io"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// KeyValueStore is the durable mirror of archive state. Values are JSON documents.
type KeyValueStore interface {
	Get(ctx context.Context, namespace string) ([]byte, bool, error)
	Put(ctx context.Context, namespace string, value []byte) error
}

// ObjectStorage stores preview blobs.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MetadataClassifier calls the external AI service and returns its raw
// response body (expected to contain a JSON object).
type MetadataClassifier interface {
	Classify(ctx context.Context, req domain.ClassificationRequest) (string, error)
}

// ClassificationCache memoizes validated classifier results.
type ClassificationCache interface {
	Get(key string) (domain.Classification, bool)
	Add(key string, value domain.Classification)
}

// AnswerGenerator answers a user question from selected archive records.
type AnswerGenerator interface {
	GenerateArchiveAnswer(ctx context.Context, question string, records []domain.RetrievedRecord) (string, error)
}

// EventPublisher announces finished sync batches.
type EventPublisher interface {
	PublishBatchCompleted(ctx context.Context, report domain.BatchReport) error
}

// SyncRequestSource delivers externally requested syncs (root names).
type SyncRequestSource interface {
	SubscribeSyncRequested(ctx context.Context, handler func(context.Context, string) error) error
}

// PipelineObserver receives per-item and per-batch outcomes.
type PipelineObserver interface {
	StartItem()
	FinishItem(outcome string, duration time.Duration)
	ObserveDegraded()
	ObserveBatch(report domain.BatchReport)
}

// MessageSender forwards a text message to an external chat.
type MessageSender interface {
	SendMessage(ctx context.Context, chatID, text string) error
}
