package usecase

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

type memKV struct {
	mu     sync.Mutex
	data   map[string][]byte
	putErr error
	getErr error
	puts   map[string]int
}

func newMemKV() *memKV {
	return &memKV{data: map[string][]byte{}, puts: map[string]int{}}
}

func (m *memKV) Get(_ context.Context, ns string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.getErr != nil {
		return nil, false, m.getErr
	}
	v, ok := m.data[ns]
	return append([]byte(nil), v...), ok, nil
}

func (m *memKV) Put(_ context.Context, ns string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.putErr != nil {
		return m.putErr
	}
	m.data[ns] = append([]byte(nil), value...)
	m.puts[ns]++
	return nil
}

type fileFake struct {
	path    string
	size    int64
	modTime time.Time
	body    string
	openErr error
}

func (f fileFake) Path() string {
	return f.path
}

func (f fileFake) Name() string {
	if i := strings.LastIndex(f.path, "/"); i >= 0 {
		return f.path[i+1:]
	}
	return f.path
}

func (f fileFake) Size() int64        { return f.size }
func (f fileFake) ModTime() time.Time { return f.modTime }

func (f fileFake) Open(context.Context) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.body)), nil
}

func file(path string, size int64, mtime int64) fileFake {
	return fileFake{path: path, size: size, modTime: time.UnixMilli(mtime).UTC(), body: "body of " + path}
}

type snapshotterFake struct {
	root    string
	files   []domain.FileHandle
	err     error
	started chan struct{}
	release chan struct{}
}

func (s *snapshotterFake) Snapshot(ctx context.Context) (domain.Snapshot, error) {
	if s.started != nil {
		close(s.started)
	}
	if s.release != nil {
		select {
		case <-s.release:
		case <-ctx.Done():
			return domain.Snapshot{}, ctx.Err()
		}
	}
	if s.err != nil {
		return domain.Snapshot{}, s.err
	}
	return domain.NewSnapshot(s.root, s.files), nil
}

type contentExtractorFake struct {
	mu    sync.Mutex
	calls []string
	fail  map[string]error
	text  map[string]string
	// onExtract runs before the result is returned.
	onExtract func(path string)
}

func (f *contentExtractorFake) Extract(_ context.Context, h domain.FileHandle) (domain.ExtractedContent, error) {
	f.mu.Lock()
	f.calls = append(f.calls, h.Path())
	f.mu.Unlock()
	if f.onExtract != nil {
		f.onExtract(h.Path())
	}
	if err := f.fail[h.Path()]; err != nil {
		return domain.ExtractedContent{}, err
	}
	text, ok := f.text[h.Path()]
	if !ok {
		text = "text of " + h.Path()
	}
	return domain.ExtractedContent{
		Text:      text,
		OCRStatus: domain.OCRCompleted,
		Preview:   &domain.PreviewPayload{Kind: domain.PreviewText, MimeType: "text/plain", Text: text},
	}, nil
}

type metadataClassifierFake struct {
	mu       sync.Mutex
	requests []domain.ClassificationRequest
	response func(req domain.ClassificationRequest) (string, error)
}

func (f *metadataClassifierFake) Classify(_ context.Context, req domain.ClassificationRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()
	if f.response == nil {
		return `{"title":"Title of ` + req.FileName + `","documentType":"Invoice","category":"Finance","importance":"high"}`, nil
	}
	return f.response(req)
}

type cacheFake struct {
	items map[string]domain.Classification
	adds  int
}

func (c *cacheFake) Get(key string) (domain.Classification, bool) {
	v, ok := c.items[key]
	return v, ok
}

func (c *cacheFake) Add(key string, value domain.Classification) {
	if c.items == nil {
		c.items = map[string]domain.Classification{}
	}
	c.items[key] = value
	c.adds++
}

type blobsFake struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
}

func (b *blobsFake) Save(_ context.Context, key string, data io.Reader) error {
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.objects == nil {
		b.objects = map[string][]byte{}
	}
	b.objects[key] = raw
	return nil
}

func (b *blobsFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	raw, ok := b.objects[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return io.NopCloser(bytes.NewReader(raw)), nil
}

func (b *blobsFake) Delete(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.objects, key)
	b.deleted = append(b.deleted, key)
	return nil
}

type observerFake struct {
	started  int
	outcomes []string
	degraded int
	batches  []domain.BatchReport
}

func (o *observerFake) StartItem() { o.started++ }

func (o *observerFake) FinishItem(outcome string, _ time.Duration) {
	o.outcomes = append(o.outcomes, outcome)
}

func (o *observerFake) ObserveDegraded() { o.degraded++ }

func (o *observerFake) ObserveBatch(r domain.BatchReport) { o.batches = append(o.batches, r) }

type eventsFake struct {
	reports []domain.BatchReport
	err     error
}

func (e *eventsFake) PublishBatchCompleted(_ context.Context, r domain.BatchReport) error {
	e.reports = append(e.reports, r)
	return e.err
}

type generatorFake struct {
	question string
	records  []domain.RetrievedRecord
	answer   string
	err      error
}

func (g *generatorFake) GenerateArchiveAnswer(_ context.Context, question string, records []domain.RetrievedRecord) (string, error) {
	g.question = question
	g.records = records
	if g.err != nil {
		return "", g.err
	}
	return g.answer, nil
}

func storedRecord(id, path string, size int64, mtime int64) domain.FileRecord {
	created := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	return domain.FileRecord{
		ID:           id,
		Name:         path[strings.LastIndex(path, "/")+1:],
		Size:         size,
		LastModified: time.UnixMilli(mtime).UTC(),
		ISOMetadata: &domain.ISOMetadata{
			RecordID:     "REC-2024-" + id[len(id)-4:],
			OriginalPath: path,
			Title:        "stored " + path,
			Status:       domain.StatusActive,
			CreatedAt:    created,
			UpdatedAt:    created,
			OCRStatus:    domain.OCRCompleted,
		},
	}
}

func lookupPath(s *ArchiveStore, path string) (*domain.FileRecord, bool) {
	for _, rec := range s.Records() {
		if rec.Path() == path {
			return rec.Clone(), true
		}
	}
	return nil, false
}

func recordAt(t *testing.T, s *ArchiveStore, path string) *domain.FileRecord {
	t.Helper()
	rec, ok := lookupPath(s, path)
	if !ok {
		t.Fatalf("no record at %s", path)
	}
	return rec
}
