package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

type policyFile struct {
	Policies []domain.RetentionPolicy `yaml:"policies"`
}

// LoadRetentionPolicies reads the seed policies. An empty path yields the
// built-in defaults.
func LoadRetentionPolicies(path string) ([]domain.RetentionPolicy, error) {
	if path == "" {
		return DefaultRetentionPolicies(), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read retention policy file: %w", err)
	}
	var file policyFile
	if err := yaml.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("parse retention policy file: %w", err)
	}
	for i, p := range file.Policies {
		if p.ID == "" {
			return nil, fmt.Errorf("retention policy %d (%q): id is required", i, p.Name)
		}
		if _, ok := domain.ParseRetentionAction(string(p.Action)); !ok {
			return nil, fmt.Errorf("retention policy %s: unknown action %q", p.ID, p.Action)
		}
	}
	return file.Policies, nil
}

func DefaultRetentionPolicies() []domain.RetentionPolicy {
	return []domain.RetentionPolicy{
		{
			ID:             "pol-financial",
			Name:           "Financial records",
			DurationMonths: 84,
			Action:         domain.RetentionDestroy,
			DocumentTypes:  []string{"invoice", "receipt", "bank statement", "tax return"},
		},
		{
			ID:             "pol-contracts",
			Name:           "Contracts",
			DurationMonths: 120,
			Action:         domain.RetentionReview,
			DocumentTypes:  []string{"contract", "agreement", "lease"},
		},
		{
			ID:            "pol-personal",
			Name:          "Personal identity documents",
			Action:        domain.RetentionPermanent,
			DocumentTypes: []string{"passport", "certificate", "diploma"},
		},
	}
}
