package httpadapter

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/kirillkom/records-archive/internal/config"
	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

type syncerFake struct {
	mu       sync.Mutex
	status   domain.BatchProgress
	err      error
	sources  []ports.Snapshotter
	snapshot domain.Snapshot
	done     chan struct{}
}

func (f *syncerFake) SyncSource(ctx context.Context, source ports.Snapshotter) (*domain.BatchReport, error) {
	f.mu.Lock()
	f.sources = append(f.sources, source)
	f.mu.Unlock()
	if f.done != nil {
		defer close(f.done)
	}
	if f.err != nil {
		return nil, f.err
	}
	snap, err := source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.snapshot = snap
	f.mu.Unlock()
	return &domain.BatchReport{Root: snap.Root, Added: snap.Len()}, nil
}

func (f *syncerFake) Status() domain.BatchProgress { return f.status }

type readerFake struct {
	records map[string]*domain.FileRecord
	filter  domain.RecordFilter
}

func (f *readerFake) Get(id string) (*domain.FileRecord, error) {
	rec, ok := f.records[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", errors.New("id="+id))
	}
	return rec.Clone(), nil
}

func (f *readerFake) Search(filter domain.RecordFilter) []domain.FileRecord {
	f.filter = filter
	var out []domain.FileRecord
	for _, rec := range f.records {
		out = append(out, *rec.Clone())
	}
	return out
}

func (f *readerFake) ComplianceAlerts(time.Time) []domain.FileRecord { return nil }

func (f *readerFake) Stats(time.Time) domain.ArchiveStats {
	return domain.ArchiveStats{Total: len(f.records)}
}

type editorFake struct {
	status   domain.RecordStatus
	policyID string
	err      error
}

func (f *editorFake) UpdateStatus(_ context.Context, id string, status domain.RecordStatus) (*domain.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.status = status
	return &domain.FileRecord{ID: id, ISOMetadata: &domain.ISOMetadata{Status: status}}, nil
}

func (f *editorFake) AssignPolicy(_ context.Context, id, policyID string) (*domain.FileRecord, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.policyID = policyID
	return &domain.FileRecord{ID: id, ISOMetadata: &domain.ISOMetadata{RetentionPolicy: policyID}}, nil
}

type policiesFake struct {
	items   []domain.RetentionPolicy
	created domain.RetentionPolicy
	deleted string
	err     error
}

func (f *policiesFake) List() []domain.RetentionPolicy { return f.items }

func (f *policiesFake) Create(_ context.Context, p domain.RetentionPolicy) (domain.RetentionPolicy, error) {
	if f.err != nil {
		return domain.RetentionPolicy{}, f.err
	}
	p.ID = "pol-new"
	f.created = p
	return p, nil
}

func (f *policiesFake) Update(_ context.Context, p domain.RetentionPolicy) (domain.RetentionPolicy, error) {
	if f.err != nil {
		return domain.RetentionPolicy{}, f.err
	}
	return p, nil
}

func (f *policiesFake) Delete(_ context.Context, id string) error {
	if f.err != nil {
		return f.err
	}
	f.deleted = id
	return nil
}

type auditFake struct {
	limit int
}

func (f *auditFake) List(limit int) []domain.AuditEntry {
	f.limit = limit
	return []domain.AuditEntry{{ID: "a1", Action: domain.AuditSync}}
}

type chatFake struct {
	question string
	limit    int
	err      error
}

func (f *chatFake) Ask(_ context.Context, question string, limit int) (*domain.Answer, error) {
	f.question, f.limit = question, limit
	if f.err != nil {
		return nil, f.err
	}
	return &domain.Answer{Text: "42"}, nil
}

type relayFake struct {
	received []domain.RelayMessage
	sentTo   string
	err      error
}

func (f *relayFake) Receive(msg domain.RelayMessage) domain.RelayMessage {
	msg.ID = "m1"
	f.received = append(f.received, msg)
	return msg
}

func (f *relayFake) Messages(string) []domain.RelayMessage { return f.received }

func (f *relayFake) Send(_ context.Context, chatID, _ string) error {
	f.sentTo = chatID
	return f.err
}

type blobsFake struct {
	data map[string][]byte
}

func (f *blobsFake) Save(_ context.Context, key string, r io.Reader) error {
	b, _ := io.ReadAll(r)
	f.data[key] = b
	return nil
}

func (f *blobsFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b, ok := f.data[key]
	if !ok {
		return nil, errors.New("missing blob")
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (f *blobsFake) Delete(_ context.Context, key string) error {
	delete(f.data, key)
	return nil
}

type snapshotterFake struct {
	root string
}

func (s snapshotterFake) Snapshot(context.Context) (domain.Snapshot, error) {
	return domain.NewSnapshot(s.root, nil), nil
}

type testEnv struct {
	syncer   *syncerFake
	reader   *readerFake
	editor   *editorFake
	policies *policiesFake
	audit    *auditFake
	chat     *chatFake
	relay    *relayFake
	blobs    *blobsFake
	handler  http.Handler
}

func newTestEnv(cfg config.Config) *testEnv {
	env := &testEnv{
		syncer: &syncerFake{status: domain.BatchProgress{Phase: domain.PhaseIdle}},
		reader: &readerFake{records: map[string]*domain.FileRecord{
			"id-1": {
				ID:   "id-1",
				Name: "lease.pdf",
				Preview: &domain.Preview{
					Kind: domain.PreviewPDF, MimeType: "application/pdf", BlobKey: "previews/id-1",
				},
				ISOMetadata: &domain.ISOMetadata{RecordID: "REC-2024-0001", OriginalPath: "docs/lease.pdf", Status: domain.StatusActive},
			},
		}},
		editor:   &editorFake{},
		policies: &policiesFake{},
		audit:    &auditFake{},
		chat:     &chatFake{},
		relay:    &relayFake{},
		blobs:    &blobsFake{data: map[string][]byte{"previews/id-1": []byte("%PDF")}},
	}
	if cfg.ChatTopK == 0 {
		cfg.ChatTopK = 5
	}
	env.handler = NewRouter(cfg, Dependencies{
		Syncer:   env.syncer,
		Reader:   env.reader,
		Editor:   env.editor,
		Policies: env.policies,
		Audit:    env.audit,
		Chat:     env.chat,
		Relay:    env.relay,
		Blobs:    env.blobs,
		Sources: func(root string) (ports.Snapshotter, error) {
			if root != "" && root != "docs" {
				return nil, domain.WrapError(domain.ErrInvalidInput, "resolve source", errors.New("unknown root "+root))
			}
			return snapshotterFake{root: "docs"}, nil
		},
	}).Handler()
	return env
}

func newTestHandler(cfg config.Config) http.Handler {
	return newTestEnv(cfg).handler
}
