package domain

import (
	"strings"
	"time"
)

type RetentionAction string

const (
	RetentionPermanent RetentionAction = "permanent"
	RetentionDestroy   RetentionAction = "destroy"
	RetentionReview    RetentionAction = "review"
)

func ParseRetentionAction(raw string) (RetentionAction, bool) {
	switch a := RetentionAction(strings.ToLower(strings.TrimSpace(raw))); a {
	case RetentionPermanent, RetentionDestroy, RetentionReview:
		return a, true
	default:
		return "", false
	}
}

type RetentionPolicy struct {
	ID             string          `json:"id" yaml:"id"`
	Name           string          `json:"name" yaml:"name"`
	DurationMonths int             `json:"durationMonths" yaml:"duration_months"`
	Action         RetentionAction `json:"action" yaml:"action"`
	DocumentTypes  []string        `json:"documentTypes" yaml:"document_types"`
}

// Targets reports whether the policy covers a document type (case-insensitive).
func (p RetentionPolicy) Targets(documentType string) bool {
	documentType = strings.TrimSpace(documentType)
	if documentType == "" {
		return false
	}
	for _, t := range p.DocumentTypes {
		if strings.EqualFold(strings.TrimSpace(t), documentType) {
			return true
		}
	}
	return false
}

// ExpiryFrom returns the expiry date counted from the record creation time.
// Permanent policies never expire.
func (p RetentionPolicy) ExpiryFrom(createdAt time.Time) *time.Time {
	if p.Action == RetentionPermanent || p.DurationMonths <= 0 {
		return nil
	}
	exp := createdAt.AddDate(0, p.DurationMonths, 0)
	return &exp
}
