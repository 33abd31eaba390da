package ports

import (
	"context"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// ArchiveSyncer is the inbound contract for reconciliation batches.
type ArchiveSyncer interface {
	SyncSource(ctx context.Context, source Snapshotter) (*domain.BatchReport, error)
	Status() domain.BatchProgress
}

// ArchiveReader is the read model used by the presentation layer.
type ArchiveReader interface {
	Get(id string) (*domain.FileRecord, error)
	Search(filter domain.RecordFilter) []domain.FileRecord
	ComplianceAlerts(now time.Time) []domain.FileRecord
	Stats(now time.Time) domain.ArchiveStats
}

// ArchiveEditor covers manual record changes made outside a sync batch.
type ArchiveEditor interface {
	UpdateStatus(ctx context.Context, id string, status domain.RecordStatus) (*domain.FileRecord, error)
	AssignPolicy(ctx context.Context, id, policyID string) (*domain.FileRecord, error)
}

// PolicyManager manages retention policies.
type PolicyManager interface {
	List() []domain.RetentionPolicy
	Create(ctx context.Context, policy domain.RetentionPolicy) (domain.RetentionPolicy, error)
	Update(ctx context.Context, policy domain.RetentionPolicy) (domain.RetentionPolicy, error)
	Delete(ctx context.Context, id string) error
}

// AuditReader lists audit entries newest first.
type AuditReader interface {
	List(limit int) []domain.AuditEntry
}

// ArchiveChat answers questions about the archive.
type ArchiveChat interface {
	Ask(ctx context.Context, question string, limit int) (*domain.Answer, error)
}

// MessageRelay is the store-and-forward mailbox for the messaging integration.
type MessageRelay interface {
	Receive(msg domain.RelayMessage) domain.RelayMessage
	Messages(afterID string) []domain.RelayMessage
	Send(ctx context.Context, chatID, text string) error
}
