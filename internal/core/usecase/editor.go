package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// RecordEditor applies manual changes to single records outside a sync batch.
type RecordEditor struct {
	store    *ArchiveStore
	policies *PolicyService
	audit    *AuditLog
	now      func() time.Time
}

func NewRecordEditor(store *ArchiveStore, policies *PolicyService, audit *AuditLog) *RecordEditor {
	return &RecordEditor{
		store:    store,
		policies: policies,
		audit:    audit,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (e *RecordEditor) UpdateStatus(ctx context.Context, id string, status domain.RecordStatus) (*domain.FileRecord, error) {
	parsed, ok := domain.ParseRecordStatus(string(status))
	if !ok {
		return nil, domain.WrapError(domain.ErrInvalidInput, "update status", fmt.Errorf("unknown status %q", status))
	}

	var previous domain.RecordStatus
	record, err := e.store.Update(ctx, id, func(rec *domain.FileRecord) error {
		if err := editable(rec, "update status"); err != nil {
			return err
		}
		previous = rec.ISOMetadata.Status
		rec.ISOMetadata.Status = parsed
		rec.ISOMetadata.UpdatedAt = advance(rec.ISOMetadata.UpdatedAt, e.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("update status: %w", err)
	}

	e.appendAudit(ctx, domain.AuditUpdate,
		fmt.Sprintf("Status of %s changed from %s to %s", record.ISOMetadata.RecordID, previous, parsed), record.ID)
	return record, nil
}

// AssignPolicy links a retention policy to a record and recomputes its
// expiry date. An empty policyID clears the assignment.
func (e *RecordEditor) AssignPolicy(ctx context.Context, id, policyID string) (*domain.FileRecord, error) {
	var policy *domain.RetentionPolicy
	if policyID != "" {
		p, err := e.policies.Get(policyID)
		if err != nil {
			return nil, err
		}
		policy = &p
	}

	record, err := e.store.Update(ctx, id, func(rec *domain.FileRecord) error {
		if err := editable(rec, "assign policy"); err != nil {
			return err
		}
		if policy == nil {
			rec.ISOMetadata.RetentionPolicy = ""
			rec.ISOMetadata.ExpiryDate = nil
		} else {
			rec.ISOMetadata.RetentionPolicy = policy.ID
			rec.ISOMetadata.ExpiryDate = policy.ExpiryFrom(rec.ISOMetadata.CreatedAt)
		}
		rec.ISOMetadata.UpdatedAt = advance(rec.ISOMetadata.UpdatedAt, e.now())
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("assign policy: %w", err)
	}

	details := fmt.Sprintf("Retention policy cleared on %s", record.ISOMetadata.RecordID)
	if policy != nil {
		details = fmt.Sprintf("Retention policy %q assigned to %s", policy.Name, record.ISOMetadata.RecordID)
	}
	e.appendAudit(ctx, domain.AuditPolicy, details, record.ID)
	return record, nil
}

func editable(record *domain.FileRecord, op string) error {
	if record.ISOMetadata == nil {
		return domain.WrapError(domain.ErrInvalidInput, op, fmt.Errorf("record %s has no metadata", record.ID))
	}
	return nil
}

func (e *RecordEditor) appendAudit(ctx context.Context, action domain.AuditAction, details, id string) {
	if e.audit == nil {
		return
	}
	_, _ = e.audit.Append(ctx, action, details, id)
}

// advance returns now, or prev+1ms when now does not move past prev.
func advance(prev, now time.Time) time.Time {
	if now.After(prev) {
		return now
	}
	return prev.Add(time.Millisecond)
}
