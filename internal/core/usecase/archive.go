package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const recordIDRandomAttempts = 64

// ArchiveStore holds the authoritative record set and mirrors every mutation
// to the key-value store before it becomes visible to readers.
type ArchiveStore struct {
	kv ports.KeyValueStore

	mu         sync.RWMutex
	order      []string
	byID       map[string]*domain.FileRecord
	byPath     map[string]string
	byDir      map[string]map[string]struct{}
	byRecordID map[string]string
	root       string
	lastSync   *time.Time
}

func NewArchiveStore(kv ports.KeyValueStore) *ArchiveStore {
	return &ArchiveStore{
		kv:         kv,
		byID:       make(map[string]*domain.FileRecord),
		byPath:     make(map[string]string),
		byDir:      make(map[string]map[string]struct{}),
		byRecordID: make(map[string]string),
	}
}

// Load reads the durable state once at startup.
func (s *ArchiveStore) Load(ctx context.Context) error {
	raw, ok, err := s.kv.Get(ctx, NamespaceRecords)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "load records", err)
	}
	var records []domain.FileRecord
	if ok {
		if err := json.Unmarshal(raw, &records); err != nil {
			return fmt.Errorf("decode records: %w", err)
		}
	}

	var root string
	if raw, ok, err := s.kv.Get(ctx, NamespaceConnectedRoot); err != nil {
		return domain.WrapError(domain.ErrPersistence, "load connected root", err)
	} else if ok {
		if err := json.Unmarshal(raw, &root); err != nil {
			return fmt.Errorf("decode connected root: %w", err)
		}
	}

	var lastSync *time.Time
	if raw, ok, err := s.kv.Get(ctx, NamespaceLastSync); err != nil {
		return domain.WrapError(domain.ErrPersistence, "load last sync", err)
	} else if ok {
		var ts time.Time
		if err := json.Unmarshal(raw, &ts); err != nil {
			return fmt.Errorf("decode last sync: %w", err)
		}
		lastSync = &ts
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	for i := range records {
		s.indexLocked(records[i].Clone())
	}
	s.root = root
	s.lastSync = lastSync
	return nil
}

// Upsert inserts or replaces a record by ID. The path must not belong to
// another record.
func (s *ArchiveStore) Upsert(ctx context.Context, record *domain.FileRecord) error {
	return s.UpsertMerged(ctx, record, nil)
}

// UpsertMerged is Upsert with merge run under the store lock against the
// stored version of the same ID, so fields edited since record was built are
// not reverted. merge is skipped for new records.
func (s *ArchiveStore) UpsertMerged(ctx context.Context, record *domain.FileRecord, merge func(stored, next *domain.FileRecord)) error {
	if record == nil || strings.TrimSpace(record.ID) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "upsert record", fmt.Errorf("record id is required"))
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if stored, ok := s.byID[record.ID]; ok && merge != nil {
		merge(stored.Clone(), record)
	}
	return s.upsertLocked(ctx, record)
}

// Update applies fn to the stored record and persists the result atomically
// with respect to other writers. An error from fn aborts the write.
func (s *ArchiveStore) Update(ctx context.Context, id string, fn func(*domain.FileRecord) error) (*domain.FileRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "update record", fmt.Errorf("id %s", id))
	}
	record := stored.Clone()
	if err := fn(record); err != nil {
		return nil, err
	}
	record.ID = id
	if err := s.upsertLocked(ctx, record); err != nil {
		return nil, err
	}
	return record.Clone(), nil
}

func (s *ArchiveStore) upsertLocked(ctx context.Context, record *domain.FileRecord) error {
	if p := record.Path(); p != "" {
		if owner, ok := s.byPath[p]; ok && owner != record.ID {
			return domain.WrapError(domain.ErrInvalidInput, "upsert record", fmt.Errorf("path %s belongs to record %s", p, owner))
		}
	}

	next := make([]domain.FileRecord, 0, len(s.order)+1)
	replaced := false
	for _, id := range s.order {
		if id == record.ID {
			next = append(next, *record)
			replaced = true
			continue
		}
		next = append(next, *s.byID[id])
	}
	if !replaced {
		next = append(next, *record)
	}
	if err := s.persistLocked(ctx, next); err != nil {
		return err
	}

	clone := record.Clone()
	if prev, ok := s.byID[record.ID]; ok {
		s.unindexLocked(prev)
		s.byID[record.ID] = clone
		s.indexPathsLocked(clone)
		return nil
	}
	s.indexLocked(clone)
	return nil
}

func (s *ArchiveStore) Remove(ctx context.Context, ids []string) ([]domain.FileRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	drop := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]domain.FileRecord, 0, len(s.order))
	var removed []domain.FileRecord
	for _, id := range s.order {
		rec := s.byID[id]
		if _, ok := drop[id]; ok {
			removed = append(removed, *rec.Clone())
			continue
		}
		next = append(next, *rec)
	}
	if len(removed) == 0 {
		return nil, nil
	}
	if err := s.persistLocked(ctx, next); err != nil {
		return nil, err
	}

	order := make([]string, 0, len(next))
	for _, id := range s.order {
		if _, ok := drop[id]; ok {
			if rec, exists := s.byID[id]; exists {
				s.unindexLocked(rec)
				delete(s.byID, id)
			}
			continue
		}
		order = append(order, id)
	}
	s.order = order
	return removed, nil
}

func (s *ArchiveStore) Get(id string) (*domain.FileRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.byID[id]
	if !ok {
		return nil, domain.WrapError(domain.ErrRecordNotFound, "get record", fmt.Errorf("id %s", id))
	}
	return rec.Clone(), nil
}

// Records returns a copy of every record in insertion order.
func (s *ArchiveStore) Records() []domain.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.FileRecord, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, *s.byID[id].Clone())
	}
	return out
}

func (s *ArchiveStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// Siblings returns the records sharing the parent directory of path, sorted
// by path, without the record identified by excludeID.
func (s *ArchiveStore) Siblings(path, excludeID string) []domain.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byDir[domain.ParentDir(path)]
	out := make([]domain.FileRecord, 0, len(ids))
	for id := range ids {
		if id == excludeID {
			continue
		}
		out = append(out, *s.byID[id].Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path() < out[j].Path() })
	return out
}

// RecentSummaries returns up to limit summaries, most recently updated first.
func (s *ArchiveStore) RecentSummaries(limit int) []domain.RecordSummary {
	s.mu.RLock()
	defer s.mu.RUnlock()

	recs := make([]*domain.FileRecord, 0, len(s.order))
	for _, id := range s.order {
		if rec := s.byID[id]; rec.ISOMetadata != nil {
			recs = append(recs, rec)
		}
	}
	sort.SliceStable(recs, func(i, j int) bool {
		return recs[i].ISOMetadata.UpdatedAt.After(recs[j].ISOMetadata.UpdatedAt)
	})
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	out := make([]domain.RecordSummary, 0, len(recs))
	for _, rec := range recs {
		out = append(out, rec.Summary())
	}
	return out
}

// NewRecordID generates REC-<year>-<4 digits> unique within the store.
func (s *ArchiveStore) NewRecordID(now time.Time) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	year := now.Year()
	for i := 0; i < recordIDRandomAttempts; i++ {
		candidate := fmt.Sprintf("REC-%04d-%04d", year, rand.IntN(10000))
		if _, taken := s.byRecordID[candidate]; !taken {
			return candidate, nil
		}
	}
	for n := 0; n < 10000; n++ {
		candidate := fmt.Sprintf("REC-%04d-%04d", year, n)
		if _, taken := s.byRecordID[candidate]; !taken {
			return candidate, nil
		}
	}
	return "", domain.WrapError(domain.ErrRecordIDExhausted, "generate record id", fmt.Errorf("year %d", year))
}

func (s *ArchiveStore) Search(filter domain.RecordFilter) []domain.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))
	var out []domain.FileRecord
	skipped := 0
	for _, id := range s.order {
		rec := s.byID[id]
		if !matchesFilter(rec, filter, query) {
			continue
		}
		if skipped < filter.Offset {
			skipped++
			continue
		}
		out = append(out, *rec.Clone())
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out
}

func (s *ArchiveStore) ComplianceAlerts(now time.Time) []domain.FileRecord {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.FileRecord
	for _, id := range s.order {
		if rec := s.byID[id]; rec.IsComplianceAlert(now) {
			out = append(out, *rec.Clone())
		}
	}
	return out
}

func (s *ArchiveStore) Stats(now time.Time) domain.ArchiveStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := domain.ArchiveStats{
		Total:          len(s.order),
		ByStatus:       map[domain.RecordStatus]int{},
		ByCategory:     map[string]int{},
		ByDocumentType: map[string]int{},
		ByOCRStatus:    map[domain.OCRStatus]int{},
		ConnectedRoot:  s.root,
	}
	if s.lastSync != nil {
		ts := *s.lastSync
		stats.LastSync = &ts
	}
	for _, id := range s.order {
		rec := s.byID[id]
		stats.TotalBytes += rec.Size
		if rec.IsComplianceAlert(now) {
			stats.ComplianceAlerts++
		}
		meta := rec.ISOMetadata
		if meta == nil {
			continue
		}
		stats.ByStatus[meta.Status]++
		if meta.Category != "" {
			stats.ByCategory[meta.Category]++
		}
		if meta.DocumentType != "" {
			stats.ByDocumentType[meta.DocumentType]++
		}
		stats.ByOCRStatus[meta.OCRStatus]++
	}
	return stats
}

func (s *ArchiveStore) ConnectedRoot() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.root
}

func (s *ArchiveStore) SetConnectedRoot(ctx context.Context, root string) error {
	payload, err := json.Marshal(root)
	if err != nil {
		return fmt.Errorf("encode connected root: %w", err)
	}
	if err := s.kv.Put(ctx, NamespaceConnectedRoot, payload); err != nil {
		return domain.WrapError(domain.ErrPersistence, "save connected root", err)
	}
	s.mu.Lock()
	s.root = root
	s.mu.Unlock()
	return nil
}

func (s *ArchiveStore) LastSync() (time.Time, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastSync == nil {
		return time.Time{}, false
	}
	return *s.lastSync, true
}

func (s *ArchiveStore) MarkSynced(ctx context.Context, at time.Time) error {
	payload, err := json.Marshal(at)
	if err != nil {
		return fmt.Errorf("encode last sync: %w", err)
	}
	if err := s.kv.Put(ctx, NamespaceLastSync, payload); err != nil {
		return domain.WrapError(domain.ErrPersistence, "save last sync", err)
	}
	s.mu.Lock()
	s.lastSync = &at
	s.mu.Unlock()
	return nil
}

func (s *ArchiveStore) persistLocked(ctx context.Context, records []domain.FileRecord) error {
	payload, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode records: %w", err)
	}
	if err := s.kv.Put(ctx, NamespaceRecords, payload); err != nil {
		return domain.WrapError(domain.ErrPersistence, "mirror records", err)
	}
	return nil
}

func (s *ArchiveStore) resetLocked() {
	s.order = nil
	s.byID = make(map[string]*domain.FileRecord)
	s.byPath = make(map[string]string)
	s.byDir = make(map[string]map[string]struct{})
	s.byRecordID = make(map[string]string)
}

func (s *ArchiveStore) indexLocked(rec *domain.FileRecord) {
	if _, exists := s.byID[rec.ID]; !exists {
		s.order = append(s.order, rec.ID)
	}
	s.byID[rec.ID] = rec
	s.indexPathsLocked(rec)
}

func (s *ArchiveStore) indexPathsLocked(rec *domain.FileRecord) {
	if p := rec.Path(); p != "" {
		s.byPath[p] = rec.ID
		dir := domain.ParentDir(p)
		if s.byDir[dir] == nil {
			s.byDir[dir] = make(map[string]struct{})
		}
		s.byDir[dir][rec.ID] = struct{}{}
	}
	if rid := rec.RecordID(); rid != "" {
		s.byRecordID[rid] = rec.ID
	}
}

func (s *ArchiveStore) unindexLocked(rec *domain.FileRecord) {
	if p := rec.Path(); p != "" && s.byPath[p] == rec.ID {
		delete(s.byPath, p)
		dir := domain.ParentDir(p)
		if ids := s.byDir[dir]; ids != nil {
			delete(ids, rec.ID)
			if len(ids) == 0 {
				delete(s.byDir, dir)
			}
		}
	}
	if rid := rec.RecordID(); rid != "" && s.byRecordID[rid] == rec.ID {
		delete(s.byRecordID, rid)
	}
}

func matchesFilter(rec *domain.FileRecord, filter domain.RecordFilter, query string) bool {
	meta := rec.ISOMetadata
	if meta == nil {
		meta = &domain.ISOMetadata{}
	}
	if filter.Category != "" && !strings.EqualFold(meta.Category, filter.Category) {
		return false
	}
	if filter.DocumentType != "" && !strings.EqualFold(meta.DocumentType, filter.DocumentType) {
		return false
	}
	if filter.Status != "" && meta.Status != filter.Status {
		return false
	}
	if filter.Importance != "" && meta.Importance != filter.Importance {
		return false
	}
	if filter.Confidentiality != "" && meta.Confidentiality != filter.Confidentiality {
		return false
	}
	if filter.PathPrefix != "" && !strings.HasPrefix(meta.OriginalPath, filter.PathPrefix) {
		return false
	}
	if query == "" {
		return true
	}
	fields := []string{rec.Name, meta.RecordID, meta.Title, meta.Description, meta.Entity, meta.Sender, meta.Recipient, rec.ExtractedText}
	fields = append(fields, meta.Keywords...)
	for _, f := range fields {
		if strings.Contains(strings.ToLower(f), query) {
			return true
		}
	}
	return false
}
