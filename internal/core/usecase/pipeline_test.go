package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

type pipelineEnv struct {
	kv         *memKV
	store      *ArchiveStore
	audit      *AuditLog
	policies   *PolicyService
	extractor  *contentExtractorFake
	classifier *metadataClassifierFake
	observer   *observerFake
	events     *eventsFake
	blobs      *blobsFake
	pipeline   *SyncPipeline
}

func newPipelineEnv(t *testing.T) *pipelineEnv {
	t.Helper()
	env := &pipelineEnv{
		kv:         newMemKV(),
		extractor:  &contentExtractorFake{},
		classifier: &metadataClassifierFake{},
		observer:   &observerFake{},
		events:     &eventsFake{},
		blobs:      &blobsFake{},
	}
	env.store = NewArchiveStore(env.kv)
	env.audit = NewAuditLog(env.kv, "tester", DefaultAuditCapacity)
	env.policies = NewPolicyService(env.kv, env.audit)
	env.pipeline = NewSyncPipeline(
		env.store,
		env.audit,
		env.policies,
		env.extractor,
		NewClassificationGateway(env.classifier, nil),
		SyncPipelineOptions{
			Blobs:    env.blobs,
			Observer: env.observer,
			Events:   env.events,
			Logger:   slog.New(slog.NewTextHandler(io.Discard, nil)),
		},
	)
	return env
}

func countActions(entries []domain.AuditEntry) map[domain.AuditAction]int {
	out := map[domain.AuditAction]int{}
	for _, e := range entries {
		out[e.Action]++
	}
	return out
}

func TestSyncSourceCreatesRecordsAndAudit(t *testing.T) {
	env := newPipelineEnv(t)
	source := &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/a.txt", 10, 100),
		file("docs/sub/b.txt", 20, 200),
	}}

	report, err := env.pipeline.SyncSource(context.Background(), source)
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if report.Added != 2 || report.Modified != 0 || report.Deleted != 0 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}

	pattern := regexp.MustCompile(`^REC-\d{4}-\d{4}$`)
	for _, rec := range env.store.Records() {
		meta := rec.ISOMetadata
		if !pattern.MatchString(meta.RecordID) {
			t.Fatalf("unexpected record id %q", meta.RecordID)
		}
		if meta.Status != domain.StatusActive || meta.CreatedAt.IsZero() || meta.Title == "" {
			t.Fatalf("unexpected metadata: %+v", meta)
		}
	}

	actions := countActions(env.audit.List(0))
	if actions[domain.AuditCreate] != 2 || actions[domain.AuditSync] != 1 || actions[domain.AuditDelete] != 0 {
		t.Fatalf("unexpected audit actions: %+v", actions)
	}
	if env.store.ConnectedRoot() != "docs" {
		t.Fatalf("expected connected root docs, got %q", env.store.ConnectedRoot())
	}
	if _, ok := env.store.LastSync(); !ok {
		t.Fatal("expected last sync to be recorded")
	}
	if len(env.events.reports) != 1 || len(env.observer.batches) != 1 {
		t.Fatalf("expected batch observed and published once")
	}
}

func TestSyncSourceAuditCountsAcrossBatches(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	initial := &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/a.txt", 10, 100),
		file("docs/b.txt", 10, 100),
		file("docs/c.txt", 10, 100),
	}}
	if _, err := env.pipeline.SyncSource(ctx, initial); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	before := env.audit.Len()

	next := &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/a.txt", 11, 100),
		file("docs/d.txt", 1, 1),
		file("docs/e.txt", 1, 1),
	}}
	report, err := env.pipeline.SyncSource(ctx, next)
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if report.Added != 2 || report.Modified != 1 || report.Deleted != 2 {
		t.Fatalf("unexpected report: %+v", report)
	}

	entries := env.audit.List(env.audit.Len() - before)
	actions := countActions(entries)
	if actions[domain.AuditCreate] != 2 || actions[domain.AuditUpdate] != 1 ||
		actions[domain.AuditDelete] != 1 || actions[domain.AuditSync] != 1 {
		t.Fatalf("unexpected audit actions: %+v", actions)
	}
	if entries[0].Action != domain.AuditSync {
		t.Fatalf("expected SYNC to be the last entry, got %s", entries[0].Action)
	}
}

func TestSyncSourceKeepsEditsMadeDuringBatch(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/a.txt", 10, 100)}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	rec := recordAt(t, env.store, "docs/a.txt")
	policy, err := env.policies.Create(ctx, domain.RetentionPolicy{Name: "Short", DurationMonths: 3, Action: domain.RetentionDestroy})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	editor := NewRecordEditor(env.store, env.policies, env.audit)
	env.extractor.onExtract = func(string) {
		if _, err := editor.UpdateStatus(ctx, rec.ID, domain.StatusArchived); err != nil {
			t.Errorf("UpdateStatus() error = %v", err)
		}
		if _, err := editor.AssignPolicy(ctx, rec.ID, policy.ID); err != nil {
			t.Errorf("AssignPolicy() error = %v", err)
		}
	}
	report, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/a.txt", 15, 100)}})
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if report.Modified != 1 {
		t.Fatalf("expected one modified item, got %+v", report)
	}

	after := recordAt(t, env.store, "docs/a.txt")
	if after.Size != 15 {
		t.Fatalf("expected new content to be merged, size=%d", after.Size)
	}
	if after.ISOMetadata.Status != domain.StatusArchived {
		t.Fatalf("status edit was reverted: %s", after.ISOMetadata.Status)
	}
	if after.ISOMetadata.RetentionPolicy != policy.ID || after.ISOMetadata.ExpiryDate == nil {
		t.Fatalf("policy edit was reverted: %q %v", after.ISOMetadata.RetentionPolicy, after.ISOMetadata.ExpiryDate)
	}

	reloaded := NewArchiveStore(env.kv)
	if err := reloaded.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got := recordAt(t, reloaded, "docs/a.txt"); got.ISOMetadata.Status != domain.StatusArchived {
		t.Fatalf("durable status reverted: %s", got.ISOMetadata.Status)
	}
}

func TestSyncSourcePreservesIdentityOnModify(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/a.txt", 10, 100)}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	before, _ := lookupPath(env.store, "docs/a.txt")

	frozen := before.ISOMetadata.UpdatedAt
	env.pipeline.now = func() time.Time { return frozen }
	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/a.txt", 15, 100)}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	after, _ := lookupPath(env.store, "docs/a.txt")

	if after.ID != before.ID || after.RecordID() != before.RecordID() {
		t.Fatalf("identity changed: before=%s/%s after=%s/%s", before.ID, before.RecordID(), after.ID, after.RecordID())
	}
	if !after.ISOMetadata.CreatedAt.Equal(before.ISOMetadata.CreatedAt) {
		t.Fatalf("createdAt changed")
	}
	if !after.ISOMetadata.UpdatedAt.After(before.ISOMetadata.UpdatedAt) {
		t.Fatalf("updatedAt did not advance: %v -> %v", before.ISOMetadata.UpdatedAt, after.ISOMetadata.UpdatedAt)
	}
	if after.Size != 15 {
		t.Fatalf("expected new size, got %d", after.Size)
	}
}

func TestSyncSourceIdempotentResync(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	source := &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/a.txt", 10, 100), file("docs/b.txt", 1, 1)}}
	if _, err := env.pipeline.SyncSource(ctx, source); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	auditLen := env.audit.Len()

	report, err := env.pipeline.SyncSource(ctx, source)
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if !report.NoChanges || report.Added+report.Modified+report.Deleted != 0 {
		t.Fatalf("expected no-op report, got %+v", report)
	}
	if env.audit.Len() != auditLen {
		t.Fatalf("expected no audit entries for no-op batch")
	}
}

func TestSyncSourceDegradesAndNeverFails(t *testing.T) {
	env := newPipelineEnv(t)
	env.classifier.response = func(req domain.ClassificationRequest) (string, error) {
		if req.FileName == "bad.txt" {
			return "", errors.New("503 upstream")
		}
		return "garbage", nil
	}
	env.extractor.fail = map[string]error{"docs/bad.txt": domain.WrapError(domain.ErrExtraction, "open", errors.New("denied"))}

	report, err := env.pipeline.SyncSource(context.Background(), &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/bad.txt", 1, 1),
		file("docs/worse.txt", 1, 1),
	}})
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if report.Added != 2 || report.Degraded != 2 || len(report.Failed) != 0 {
		t.Fatalf("unexpected report: %+v", report)
	}
	bad, ok := lookupPath(env.store, "docs/bad.txt")
	if !ok || bad.ISOMetadata.Title != "bad.txt" || !bad.ISOMetadata.Degraded || bad.ISOMetadata.OCRStatus != domain.OCRFailed {
		t.Fatalf("unexpected degraded record: %+v", bad)
	}
	if env.observer.degraded != 2 {
		t.Fatalf("expected 2 degraded observations, got %d", env.observer.degraded)
	}
}

func TestSyncSourceSkipsItemOnPersistenceFailure(t *testing.T) {
	env := newPipelineEnv(t)
	env.extractor.onExtract = func(path string) {
		env.kv.mu.Lock()
		if path == "docs/b.txt" {
			env.kv.putErr = errors.New("quota")
		} else {
			env.kv.putErr = nil
		}
		env.kv.mu.Unlock()
	}

	report, err := env.pipeline.SyncSource(context.Background(), &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/a.txt", 1, 1),
		file("docs/b.txt", 1, 1),
		file("docs/c.txt", 1, 1),
	}})
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if report.Added != 2 || len(report.Failed) != 1 || report.Failed[0].Path != "docs/b.txt" {
		t.Fatalf("unexpected report: %+v", report)
	}
	if _, ok := lookupPath(env.store, "docs/b.txt"); ok {
		t.Fatal("expected failed item to be absent from the store")
	}
	if got := env.observer.outcomes; len(got) != 3 || got[1] != OutcomeFailed {
		t.Fatalf("unexpected outcomes: %+v", got)
	}
}

func TestSyncSourceProcessesSeriallyAddedBeforeModified(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/m.txt", 1, 1)}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	env.extractor.calls = nil

	storedBefore := map[string]int{}
	env.extractor.onExtract = func(path string) {
		storedBefore[path] = env.store.Len()
	}
	_, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/m.txt", 2, 2),
		file("docs/x.txt", 1, 1),
		file("docs/y.txt", 1, 1),
	}})
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}

	want := []string{"docs/x.txt", "docs/y.txt", "docs/m.txt"}
	if strings.Join(env.extractor.calls, ",") != strings.Join(want, ",") {
		t.Fatalf("unexpected order: %v", env.extractor.calls)
	}
	if storedBefore["docs/x.txt"] != 1 || storedBefore["docs/y.txt"] != 2 {
		t.Fatalf("expected each merge before next extraction, got %+v", storedBefore)
	}
}

func TestSyncSourcePassesSiblingRecordIDs(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/a.txt", 1, 1),
		file("docs/other/z.txt", 1, 1),
	}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	a, _ := lookupPath(env.store, "docs/a.txt")
	env.classifier.requests = nil

	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/a.txt", 2, 1),
		file("docs/b.txt", 1, 1),
		file("docs/other/z.txt", 1, 1),
	}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}

	byName := map[string]domain.ClassificationRequest{}
	for _, r := range env.classifier.requests {
		byName[r.FileName] = r
	}
	if ids := byName["b.txt"].SiblingIDs; len(ids) != 1 || ids[0] != a.RecordID() {
		t.Fatalf("expected b.txt siblings [%s], got %v", a.RecordID(), ids)
	}
	b, _ := lookupPath(env.store, "docs/b.txt")
	if ids := byName["a.txt"].SiblingIDs; len(ids) != 1 || ids[0] != b.RecordID() {
		t.Fatalf("expected a.txt siblings [%s] without itself, got %v", b.RecordID(), ids)
	}
	if len(byName["b.txt"].ArchiveSummary) != 2 {
		t.Fatalf("expected archive summary of existing records, got %+v", byName["b.txt"].ArchiveSummary)
	}
}

func TestSyncSourceRejectsConcurrentBatch(t *testing.T) {
	env := newPipelineEnv(t)
	blocking := &snapshotterFake{root: "docs", started: make(chan struct{}), release: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := env.pipeline.SyncSource(context.Background(), blocking)
		done <- err
	}()
	<-blocking.started

	if got := env.pipeline.Status().Phase; got != domain.PhaseScanning {
		t.Fatalf("expected scanning phase, got %s", got)
	}
	_, err := env.pipeline.SyncSource(context.Background(), &snapshotterFake{root: "docs"})
	if !domain.IsKind(err, domain.ErrBatchInProgress) {
		t.Fatalf("expected batch in progress, got %v", err)
	}

	close(blocking.release)
	if err := <-done; err != nil {
		t.Fatalf("first SyncSource() error = %v", err)
	}
}

func TestSyncSourceStopsBetweenItemsOnCancel(t *testing.T) {
	env := newPipelineEnv(t)
	ctx, cancel := context.WithCancel(context.Background())
	env.extractor.onExtract = func(path string) {
		if path == "docs/a.txt" {
			cancel()
		}
	}

	report, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{
		file("docs/a.txt", 1, 1),
		file("docs/b.txt", 1, 1),
	}})
	if err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if !report.Cancelled || report.Added != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}
	if env.store.Len() != 1 {
		t.Fatalf("expected merged item to stay, got %d records", env.store.Len())
	}
	if _, ok := env.store.LastSync(); ok {
		t.Fatal("expected cancelled batch not to mark last sync")
	}
}

func TestSyncSourceSnapshotErrorLeavesIdle(t *testing.T) {
	env := newPipelineEnv(t)
	_, err := env.pipeline.SyncSource(context.Background(), &snapshotterFake{
		err: domain.WrapError(domain.ErrUnsupportedCapability, "snapshot", errors.New("not a directory")),
	})
	if !domain.IsKind(err, domain.ErrUnsupportedCapability) {
		t.Fatalf("expected unsupported capability, got %v", err)
	}
	if env.pipeline.Status().Phase != domain.PhaseIdle {
		t.Fatalf("expected idle phase, got %s", env.pipeline.Status().Phase)
	}
	if env.audit.Len() != 0 {
		t.Fatal("expected no audit entries")
	}
}

func TestSyncSourceResetsToIdle(t *testing.T) {
	env := newPipelineEnv(t)
	env.pipeline.idleReset = 20 * time.Millisecond

	if _, err := env.pipeline.SyncSource(context.Background(), &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/a.txt", 1, 1)}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	status := env.pipeline.Status()
	if status.Phase != domain.PhaseCompleted || status.Current != 1 || status.Total != 1 {
		t.Fatalf("unexpected status after batch: %+v", status)
	}

	deadline := time.Now().Add(2 * time.Second)
	for env.pipeline.Status().Phase != domain.PhaseIdle {
		if time.Now().After(deadline) {
			t.Fatal("pipeline did not reset to idle")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestSyncSourceStoresPreviewBlobsAndDeletesThem(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	env.extractor.text = map[string]string{}
	img := &contentExtractorFakeWithData{contentExtractorFake: env.extractor}
	env.pipeline.extractor = img

	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/p.png", 1, 1)}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	rec, _ := lookupPath(env.store, "docs/p.png")
	if rec.Preview == nil || rec.Preview.BlobKey != PreviewKey(rec.ID) {
		t.Fatalf("unexpected preview: %+v", rec.Preview)
	}
	if _, ok := env.blobs.objects[PreviewKey(rec.ID)]; !ok {
		t.Fatal("expected blob to be stored")
	}

	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: nil}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	if len(env.blobs.deleted) != 1 || env.blobs.deleted[0] != PreviewKey(rec.ID) {
		t.Fatalf("expected preview blob cleanup, got %+v", env.blobs.deleted)
	}
}

func TestSyncSourceAppliesRetentionPolicy(t *testing.T) {
	env := newPipelineEnv(t)
	ctx := context.Background()
	if err := env.policies.Load(ctx, []domain.RetentionPolicy{{
		Name:           "Invoices",
		DurationMonths: 12,
		Action:         domain.RetentionDestroy,
		DocumentTypes:  []string{"invoice"},
	}}); err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if _, err := env.pipeline.SyncSource(ctx, &snapshotterFake{root: "docs", files: []domain.FileHandle{file("docs/i.txt", 1, 1)}}); err != nil {
		t.Fatalf("SyncSource() error = %v", err)
	}
	rec, _ := lookupPath(env.store, "docs/i.txt")
	meta := rec.ISOMetadata
	if meta.RetentionPolicy == "" || meta.ExpiryDate == nil {
		t.Fatalf("expected derived policy, got %+v", meta)
	}
	if want := meta.CreatedAt.AddDate(0, 12, 0); !meta.ExpiryDate.Equal(want) {
		t.Fatalf("expected expiry %v, got %v", want, meta.ExpiryDate)
	}
}

type contentExtractorFakeWithData struct {
	*contentExtractorFake
}

func (f *contentExtractorFakeWithData) Extract(ctx context.Context, h domain.FileHandle) (domain.ExtractedContent, error) {
	out, err := f.contentExtractorFake.Extract(ctx, h)
	if err != nil {
		return out, err
	}
	out.Preview = &domain.PreviewPayload{Kind: domain.PreviewImage, MimeType: "image/jpeg", Data: []byte{0xff, 0xd8}}
	return out, nil
}
