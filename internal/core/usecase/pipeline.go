package usecase

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const (
	DefaultIdleReset = 3 * time.Second

	OutcomeCreated = "created"
	OutcomeUpdated = "updated"
	OutcomeFailed  = "failed"
)

type SyncPipelineOptions struct {
	Blobs     ports.ObjectStorage
	Observer  ports.PipelineObserver
	Events    ports.EventPublisher
	Logger    *slog.Logger
	IdleReset time.Duration
}

// SyncPipeline runs one reconciliation batch at a time: snapshot, diff,
// serial extract and classify per changed file, then deletions and the
// batch summary.
type SyncPipeline struct {
	store     *ArchiveStore
	audit     *AuditLog
	policies  *PolicyService
	extractor ports.ContentExtractor
	gateway   *ClassificationGateway
	blobs     ports.ObjectStorage
	observer  ports.PipelineObserver
	events    ports.EventPublisher
	logger    *slog.Logger
	idleReset time.Duration
	now       func() time.Time

	running atomic.Bool

	mu         sync.RWMutex
	progress   domain.BatchProgress
	generation uint64
}

func NewSyncPipeline(
	store *ArchiveStore,
	audit *AuditLog,
	policies *PolicyService,
	extractor ports.ContentExtractor,
	gateway *ClassificationGateway,
	opts SyncPipelineOptions,
) *SyncPipeline {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleReset
	if idle < 0 {
		idle = 0
	}
	return &SyncPipeline{
		store:     store,
		audit:     audit,
		policies:  policies,
		extractor: extractor,
		gateway:   gateway,
		blobs:     opts.Blobs,
		observer:  opts.Observer,
		events:    opts.Events,
		logger:    logger,
		idleReset: idle,
		now:       func() time.Time { return time.Now().UTC() },
		progress:  domain.BatchProgress{Phase: domain.PhaseIdle},
	}
}

func (p *SyncPipeline) Status() domain.BatchProgress {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := p.progress
	if out.StartedAt != nil {
		ts := *out.StartedAt
		out.StartedAt = &ts
	}
	return out
}

// SyncSource reconciles the archive against the snapshot produced by source.
// Only one batch may run at a time; a concurrent call fails with
// domain.ErrBatchInProgress. Items merged before a context cancellation stay
// committed.
func (p *SyncPipeline) SyncSource(ctx context.Context, source ports.Snapshotter) (*domain.BatchReport, error) {
	if !p.running.CompareAndSwap(false, true) {
		return nil, domain.WrapError(domain.ErrBatchInProgress, "sync source", fmt.Errorf("phase %s", p.Status().Phase))
	}
	defer p.running.Store(false)

	started := p.now()
	gen := p.begin(started)

	snapshot, err := source.Snapshot(ctx)
	if err != nil {
		p.setIdle(gen)
		return nil, fmt.Errorf("snapshot source: %w", err)
	}
	if snapshot.Root != "" && snapshot.Root != p.store.ConnectedRoot() {
		if err := p.store.SetConnectedRoot(ctx, snapshot.Root); err != nil {
			p.logger.Warn("connected_root_persist_failed", "root", snapshot.Root, "error", err)
		}
	}

	set := DetectChanges(snapshot, p.store.Records())
	report := &domain.BatchReport{Root: snapshot.Root, StartedAt: started}
	if set.IsEmpty() {
		report.NoChanges = true
		report.FinishedAt = p.now()
		p.setIdle(gen)
		p.logger.Info("sync_no_changes", "root", snapshot.Root, "files", snapshot.Len())
		return report, nil
	}

	queue := NewBatchQueue(set)
	p.update(gen, func(pr *domain.BatchProgress) {
		pr.Phase = domain.PhaseAnalyzing
		pr.Root = snapshot.Root
		pr.Total = queue.Total()
	})

	for {
		if ctx.Err() != nil {
			report.Cancelled = true
			p.logger.Info("sync_cancelled", "root", snapshot.Root, "done", queue.Done(), "remaining", queue.Remaining())
			break
		}
		item, ok := queue.Next()
		if !ok {
			break
		}
		p.update(gen, func(pr *domain.BatchProgress) { pr.CurrentFile = item.Handle.Name() })

		p.processItem(ctx, item, report)

		done := queue.Done()
		p.update(gen, func(pr *domain.BatchProgress) { pr.Current = done })
	}

	p.update(gen, func(pr *domain.BatchProgress) {
		pr.Phase = domain.PhaseReconciling
		pr.CurrentFile = ""
	})
	if !report.Cancelled && len(set.DeletedIDs) > 0 {
		p.removeDeleted(ctx, set, report)
	}

	p.appendAudit(ctx, domain.AuditSync, syncDetails(report), "")
	report.FinishedAt = p.now()
	if !report.Cancelled {
		if err := p.store.MarkSynced(ctx, report.FinishedAt); err != nil {
			p.logger.Warn("last_sync_persist_failed", "error", err)
		}
	}

	if p.observer != nil {
		p.observer.ObserveBatch(*report)
	}
	if p.events != nil {
		if err := p.events.PublishBatchCompleted(context.WithoutCancel(ctx), *report); err != nil {
			p.logger.Warn("batch_event_publish_failed", "root", report.Root, "error", err)
		}
	}
	p.logger.Info("sync_completed",
		"root", report.Root,
		"added", report.Added,
		"modified", report.Modified,
		"deleted", report.Deleted,
		"degraded", report.Degraded,
		"failed", len(report.Failed),
		"cancelled", report.Cancelled,
		"duration", report.FinishedAt.Sub(report.StartedAt).String(),
	)

	p.complete(gen)
	return report, nil
}

func (p *SyncPipeline) processItem(ctx context.Context, item domain.ChangeItem, report *domain.BatchReport) {
	if p.observer != nil {
		p.observer.StartItem()
	}
	started := time.Now()

	record, degraded, err := p.mergeItem(ctx, item)
	outcome := OutcomeCreated
	if item.Kind == domain.ChangeModified {
		outcome = OutcomeUpdated
	}
	if err != nil {
		outcome = OutcomeFailed
		report.Failed = append(report.Failed, domain.ItemFailure{Path: item.Path, Error: err.Error()})
		p.logger.Error("sync_item_failed", "path", item.Path, "kind", item.Kind, "error", err)
	} else {
		if degraded {
			report.Degraded++
			if p.observer != nil {
				p.observer.ObserveDegraded()
			}
		}
		if item.Kind == domain.ChangeModified {
			report.Modified++
			p.appendAudit(ctx, domain.AuditUpdate,
				fmt.Sprintf("Updated %s (%s) after file change", record.ISOMetadata.RecordID, item.Path), record.ID)
		} else {
			report.Added++
			p.appendAudit(ctx, domain.AuditCreate,
				fmt.Sprintf("Archived %s as %s", item.Path, record.ISOMetadata.RecordID), record.ID)
		}
	}

	if p.observer != nil {
		p.observer.FinishItem(outcome, time.Since(started))
	}
}

func (p *SyncPipeline) mergeItem(ctx context.Context, item domain.ChangeItem) (*domain.FileRecord, bool, error) {
	content, err := p.extractor.Extract(ctx, item.Handle)
	if err != nil {
		p.logger.Warn("sync_extract_failed", "path", item.Path, "error", err)
		content = domain.ExtractedContent{OCRStatus: domain.OCRFailed}
	}

	selfID := ""
	if item.Existing != nil {
		selfID = item.Existing.ID
	}
	siblings := p.store.Siblings(item.Path, selfID)
	siblingIDs := make([]string, 0, len(siblings))
	for i := range siblings {
		if rid := siblings[i].RecordID(); rid != "" {
			siblingIDs = append(siblingIDs, rid)
		}
	}

	classification := p.gateway.Classify(ctx, ClassifyInput{
		FileName:   item.Handle.Name(),
		Text:       content.Text,
		Summary:    p.store.RecentSummaries(MaxSummaryRecords),
		SiblingIDs: siblingIDs,
	})
	if classification.Degraded {
		p.logger.Warn("classification_degraded", "path", item.Path, "reason", classification.Reason)
	}

	record, err := p.buildRecord(item, content, classification)
	if err != nil {
		return nil, false, err
	}
	record.Preview = p.savePreview(ctx, record.ID, content.Preview)

	if err := p.store.UpsertMerged(ctx, record, p.keepManualEdits); err != nil {
		return nil, false, err
	}
	return record, classification.Degraded, nil
}

// keepManualEdits carries status and retention fields from the stored record
// so an edit made while the item was being analyzed survives the merge.
func (p *SyncPipeline) keepManualEdits(stored, next *domain.FileRecord) {
	if stored.ISOMetadata == nil || next.ISOMetadata == nil {
		return
	}
	if stored.ISOMetadata.Status != "" {
		next.ISOMetadata.Status = stored.ISOMetadata.Status
	}
	next.ISOMetadata.RetentionPolicy = stored.ISOMetadata.RetentionPolicy
	next.ISOMetadata.ExpiryDate = stored.ISOMetadata.ExpiryDate
	if p.policies != nil {
		p.policies.Apply(next.ISOMetadata)
	}
}

func (p *SyncPipeline) buildRecord(item domain.ChangeItem, content domain.ExtractedContent, c domain.Classification) (*domain.FileRecord, error) {
	now := p.now()
	f := c.Fields

	meta := &domain.ISOMetadata{
		OriginalPath:    item.Path,
		Title:           f.Title,
		Description:     f.Description,
		DocumentType:    f.DocumentType,
		Entity:          f.Entity,
		Category:        f.Category,
		Sender:          f.Sender,
		Recipient:       f.Recipient,
		Keywords:        f.Keywords,
		Importance:      f.Importance,
		Confidentiality: f.Confidentiality,
		Status:          domain.StatusActive,
		OCRStatus:       content.OCRStatus,
		Degraded:        c.Degraded,
	}
	if meta.OCRStatus == "" {
		meta.OCRStatus = domain.OCRSkipped
		if strings.TrimSpace(content.Text) != "" {
			meta.OCRStatus = domain.OCRCompleted
		}
	}

	record := &domain.FileRecord{
		Name:          item.Handle.Name(),
		Size:          item.Handle.Size(),
		LastModified:  item.Handle.ModTime(),
		ExtractedText: content.Text,
		ISOMetadata:   meta,
	}

	if prev := item.Existing; prev != nil && prev.ISOMetadata != nil {
		record.ID = prev.ID
		meta.RecordID = prev.ISOMetadata.RecordID
		meta.CreatedAt = prev.ISOMetadata.CreatedAt
		meta.UpdatedAt = advance(prev.ISOMetadata.UpdatedAt, now)
		meta.RetentionPolicy = prev.ISOMetadata.RetentionPolicy
		if prev.ISOMetadata.Status != "" {
			meta.Status = prev.ISOMetadata.Status
		}
	} else {
		record.ID = uuid.NewString()
		if item.Existing != nil {
			record.ID = item.Existing.ID
		}
		meta.CreatedAt = now
		meta.UpdatedAt = now
	}
	if meta.RecordID == "" {
		rid, err := p.store.NewRecordID(now)
		if err != nil {
			return nil, err
		}
		meta.RecordID = rid
	}

	if p.policies != nil {
		p.policies.Apply(meta)
	}
	return record, nil
}

// savePreview stores binary previews in object storage and keeps text inline.
func (p *SyncPipeline) savePreview(ctx context.Context, recordID string, payload *domain.PreviewPayload) *domain.Preview {
	if payload == nil {
		return nil
	}
	preview := &domain.Preview{
		Kind:      payload.Kind,
		MimeType:  payload.MimeType,
		Text:      payload.Text,
		PageCount: payload.PageCount,
		Width:     payload.Width,
		Height:    payload.Height,
	}
	if len(payload.Data) == 0 || p.blobs == nil {
		return preview
	}
	key := PreviewKey(recordID)
	if err := p.blobs.Save(ctx, key, bytes.NewReader(payload.Data)); err != nil {
		p.logger.Warn("preview_save_failed", "record_id", recordID, "error", err)
		return preview
	}
	preview.BlobKey = key
	return preview
}

func (p *SyncPipeline) removeDeleted(ctx context.Context, set domain.ChangeSet, report *domain.BatchReport) {
	removed, err := p.store.Remove(ctx, set.DeletedIDs)
	if err != nil {
		p.logger.Error("sync_delete_failed", "root", set.Root, "count", len(set.DeletedIDs), "error", err)
		for _, id := range set.DeletedIDs {
			report.Failed = append(report.Failed, domain.ItemFailure{Path: id, Error: err.Error()})
		}
		return
	}
	if len(removed) == 0 {
		return
	}
	report.Deleted = len(removed)

	names := make([]string, 0, len(removed))
	for i := range removed {
		names = append(names, removed[i].Path())
		if p.blobs != nil && removed[i].Preview != nil && removed[i].Preview.BlobKey != "" {
			if err := p.blobs.Delete(ctx, removed[i].Preview.BlobKey); err != nil {
				p.logger.Warn("preview_delete_failed", "record_id", removed[i].ID, "error", err)
			}
		}
	}
	p.appendAudit(ctx, domain.AuditDelete,
		fmt.Sprintf("Removed %d records no longer present in %s: %s", len(removed), set.Root, strings.Join(names, ", ")), "")
}

func (p *SyncPipeline) appendAudit(ctx context.Context, action domain.AuditAction, details, resourceID string) {
	if _, err := p.audit.Append(ctx, action, details, resourceID); err != nil {
		p.logger.Warn("audit_persist_failed", "action", action, "error", err)
	}
}

func (p *SyncPipeline) begin(started time.Time) uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.generation++
	ts := started
	p.progress = domain.BatchProgress{Phase: domain.PhaseScanning, StartedAt: &ts}
	return p.generation
}

func (p *SyncPipeline) update(gen uint64, fn func(*domain.BatchProgress)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.generation == gen {
		fn(&p.progress)
	}
}

func (p *SyncPipeline) setIdle(gen uint64) {
	p.update(gen, func(pr *domain.BatchProgress) { *pr = domain.BatchProgress{Phase: domain.PhaseIdle} })
}

func (p *SyncPipeline) complete(gen uint64) {
	p.update(gen, func(pr *domain.BatchProgress) {
		pr.Phase = domain.PhaseCompleted
		pr.CurrentFile = ""
	})
	if p.idleReset == 0 {
		p.setIdle(gen)
		return
	}
	time.AfterFunc(p.idleReset, func() {
		p.update(gen, func(pr *domain.BatchProgress) {
			if pr.Phase == domain.PhaseCompleted {
				*pr = domain.BatchProgress{Phase: domain.PhaseIdle}
			}
		})
	})
}

// PreviewKey is the object storage key of a record preview.
func PreviewKey(recordID string) string {
	return "previews/" + recordID
}

func syncDetails(r *domain.BatchReport) string {
	root := r.Root
	if root == "" {
		root = "upload"
	}
	details := fmt.Sprintf("Sync of %s: %d added, %d modified, %d deleted, %d degraded, %d failed",
		root, r.Added, r.Modified, r.Deleted, r.Degraded, len(r.Failed))
	if r.Cancelled {
		details += " (cancelled)"
	}
	return details
}
