package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/kirillkom/records-archive/internal/core/domain"
	"github.com/kirillkom/records-archive/internal/core/ports"
)

// PolicyService manages retention policies and derives record expiry dates.
type PolicyService struct {
	kv    ports.KeyValueStore
	audit *AuditLog

	mu       sync.RWMutex
	policies []domain.RetentionPolicy
}

func NewPolicyService(kv ports.KeyValueStore, audit *AuditLog) *PolicyService {
	return &PolicyService{kv: kv, audit: audit}
}

// Load reads stored policies. When nothing is stored yet the seed is persisted.
func (s *PolicyService) Load(ctx context.Context, seed []domain.RetentionPolicy) error {
	raw, ok, err := s.kv.Get(ctx, NamespacePolicies)
	if err != nil {
		return domain.WrapError(domain.ErrPersistence, "load policies", err)
	}
	if ok {
		var stored []domain.RetentionPolicy
		if err := json.Unmarshal(raw, &stored); err != nil {
			return fmt.Errorf("decode policies: %w", err)
		}
		s.mu.Lock()
		s.policies = stored
		s.mu.Unlock()
		return nil
	}

	if len(seed) == 0 {
		return nil
	}
	policies := make([]domain.RetentionPolicy, 0, len(seed))
	for _, p := range seed {
		normalized, err := normalizePolicy(p)
		if err != nil {
			return fmt.Errorf("seed policy %q: %w", p.Name, err)
		}
		if normalized.ID == "" {
			normalized.ID = uuid.NewString()
		}
		policies = append(policies, normalized)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.persistLocked(ctx, policies); err != nil {
		return err
	}
	s.policies = policies
	return nil
}

func (s *PolicyService) List() []domain.RetentionPolicy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.RetentionPolicy, len(s.policies))
	for i, p := range s.policies {
		out[i] = clonePolicy(p)
	}
	return out
}

func (s *PolicyService) Get(id string) (domain.RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, p := range s.policies {
		if p.ID == id {
			return clonePolicy(p), nil
		}
	}
	return domain.RetentionPolicy{}, domain.WrapError(domain.ErrPolicyNotFound, "get policy", fmt.Errorf("id %s", id))
}

func (s *PolicyService) Create(ctx context.Context, policy domain.RetentionPolicy) (domain.RetentionPolicy, error) {
	policy, err := normalizePolicy(policy)
	if err != nil {
		return domain.RetentionPolicy{}, domain.WrapError(domain.ErrInvalidInput, "create policy", err)
	}
	policy.ID = uuid.NewString()

	s.mu.Lock()
	next := append(clonePolicies(s.policies), policy)
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.RetentionPolicy{}, err
	}
	s.policies = next
	s.mu.Unlock()

	s.logPolicy(ctx, fmt.Sprintf("Created retention policy %q", policy.Name), policy.ID)
	return clonePolicy(policy), nil
}

func (s *PolicyService) Update(ctx context.Context, policy domain.RetentionPolicy) (domain.RetentionPolicy, error) {
	policy, err := normalizePolicy(policy)
	if err != nil {
		return domain.RetentionPolicy{}, domain.WrapError(domain.ErrInvalidInput, "update policy", err)
	}

	s.mu.Lock()
	next := clonePolicies(s.policies)
	found := false
	for i := range next {
		if next[i].ID == policy.ID {
			next[i] = policy
			found = true
			break
		}
	}
	if !found {
		s.mu.Unlock()
		return domain.RetentionPolicy{}, domain.WrapError(domain.ErrPolicyNotFound, "update policy", fmt.Errorf("id %s", policy.ID))
	}
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return domain.RetentionPolicy{}, err
	}
	s.policies = next
	s.mu.Unlock()

	s.logPolicy(ctx, fmt.Sprintf("Updated retention policy %q", policy.Name), policy.ID)
	return clonePolicy(policy), nil
}

func (s *PolicyService) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	next := make([]domain.RetentionPolicy, 0, len(s.policies))
	var removed *domain.RetentionPolicy
	for _, p := range s.policies {
		if p.ID == id {
			p := p
			removed = &p
			continue
		}
		next = append(next, p)
	}
	if removed == nil {
		s.mu.Unlock()
		return domain.WrapError(domain.ErrPolicyNotFound, "delete policy", fmt.Errorf("id %s", id))
	}
	if err := s.persistLocked(ctx, next); err != nil {
		s.mu.Unlock()
		return err
	}
	s.policies = next
	s.mu.Unlock()

	s.logPolicy(ctx, fmt.Sprintf("Deleted retention policy %q", removed.Name), id)
	return nil
}

// Apply sets the retention policy and expiry date of meta. A manually
// assigned policy that still exists is kept; otherwise the first policy
// targeting the document type is used.
func (s *PolicyService) Apply(meta *domain.ISOMetadata) {
	if meta == nil {
		return
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if meta.RetentionPolicy != "" {
		for _, p := range s.policies {
			if p.ID == meta.RetentionPolicy {
				meta.ExpiryDate = p.ExpiryFrom(meta.CreatedAt)
				return
			}
		}
	}
	for _, p := range s.policies {
		if p.Targets(meta.DocumentType) {
			meta.RetentionPolicy = p.ID
			meta.ExpiryDate = p.ExpiryFrom(meta.CreatedAt)
			return
		}
	}
	meta.RetentionPolicy = ""
	meta.ExpiryDate = nil
}

func (s *PolicyService) persistLocked(ctx context.Context, policies []domain.RetentionPolicy) error {
	payload, err := json.Marshal(policies)
	if err != nil {
		return fmt.Errorf("encode policies: %w", err)
	}
	if err := s.kv.Put(ctx, NamespacePolicies, payload); err != nil {
		return domain.WrapError(domain.ErrPersistence, "mirror policies", err)
	}
	return nil
}

func (s *PolicyService) logPolicy(ctx context.Context, details, id string) {
	if s.audit == nil {
		return
	}
	_, _ = s.audit.Append(ctx, domain.AuditPolicy, details, id)
}

func normalizePolicy(p domain.RetentionPolicy) (domain.RetentionPolicy, error) {
	p.Name = strings.TrimSpace(p.Name)
	if p.Name == "" {
		return p, errors.New("policy name is required")
	}
	action, ok := domain.ParseRetentionAction(string(p.Action))
	if !ok {
		return p, fmt.Errorf("unknown retention action %q", p.Action)
	}
	p.Action = action
	if p.DurationMonths < 0 {
		return p, errors.New("duration must not be negative")
	}
	types := make([]string, 0, len(p.DocumentTypes))
	for _, t := range p.DocumentTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	p.DocumentTypes = types
	return p, nil
}

func clonePolicy(p domain.RetentionPolicy) domain.RetentionPolicy {
	p.DocumentTypes = append([]string(nil), p.DocumentTypes...)
	return p
}

func clonePolicies(in []domain.RetentionPolicy) []domain.RetentionPolicy {
	out := make([]domain.RetentionPolicy, len(in))
	for i, p := range in {
		out[i] = clonePolicy(p)
	}
	return out
}
