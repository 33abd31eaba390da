package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

const (
	NamespaceRecords       = "records"
	NamespacePolicies      = "policies"
	NamespaceAudit         = "audit"
	NamespaceConnectedRoot = "connected_root"
	NamespaceLastSync      = "last_sync"

	DefaultAuditCapacity = 1000
)

// AuditLog is an append-only ring of the most recent audit entries.
type AuditLog struct {
	kv       ports.KeyValueStore
	user     string
	capacity int
	now      func() time.Time

	// persistMu orders mirror writes so an older payload never lands last.
	persistMu sync.Mutex
	mu        sync.RWMutex
	entries   []domain.AuditEntry
}

func NewAuditLog(kv ports.KeyValueStore, user string, capacity int) *AuditLog {
	if capacity <= 0 {
		capacity = DefaultAuditCapacity
	}
	if user == "" {
		user = "system"
	}
	return &AuditLog{
		kv:       kv,
		user:     user,
		capacity: capacity,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (l *AuditLog) Load(ctx context.Context) error {
	raw, ok, err := l.kv.Get(ctx, NamespaceAudit)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "load audit log", err)
	}
	if !ok {
		return nil
	}
	var entries []domain.AuditEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return fmt.Errorf("decode audit log: %w", err)
	}
	if len(entries) > l.capacity {
		entries = entries[len(entries)-l.capacity:]
	}

	l.mu.Lock()
	l.entries = entries
	l.mu.Unlock()
	return nil
}

// Append adds an entry in memory and mirrors the whole log. The in-memory
// append always happens; a failed mirror is reported and caught up by the
// next successful write.
func (l *AuditLog) Append(ctx context.Context, action domain.AuditAction, details, resourceID string) (domain.AuditEntry, error) {
	entry := domain.AuditEntry{
		ID:         uuid.NewString(),
		Action:     action,
		Details:    details,
		User:       l.user,
		Timestamp:  l.now(),
		ResourceID: resourceID,
	}

	l.persistMu.Lock()
	defer l.persistMu.Unlock()

	l.mu.Lock()
	l.entries = append(l.entries, entry)
	if over := len(l.entries) - l.capacity; over > 0 {
		trimmed := make([]domain.AuditEntry, l.capacity)
		copy(trimmed, l.entries[over:])
		l.entries = trimmed
	}
	payload, err := json.Marshal(l.entries)
	l.mu.Unlock()
	if err != nil {
		return entry, fmt.Errorf("encode audit log: %w", err)
	}

	if err := l.kv.Put(ctx, NamespaceAudit, payload); err != nil {
		return entry, domain.WrapError(domain.ErrPersistence, "mirror audit log", err)
	}
	return entry, nil
}

// List returns up to limit entries, newest first. limit <= 0 returns all.
func (l *AuditLog) List(limit int) []domain.AuditEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	n := len(l.entries)
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.AuditEntry, 0, limit)
	for i := n - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, l.entries[i])
	}
	return out
}

func (l *AuditLog) Len() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.entries)
}
