package usecase

import (
	"strings"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// DetectChanges diffs a snapshot against the recorded files by path, size and
// modification time. A renamed file shows up as one deletion plus one addition.
// Records outside the snapshot root are never deleted, and an un-rooted
// snapshot (flat upload) never deletes anything.
func DetectChanges(snapshot domain.Snapshot, records []domain.FileRecord) domain.ChangeSet {
	byPath := make(map[string]*domain.FileRecord, len(records))
	for i := range records {
		if p := records[i].Path(); p != "" {
			byPath[p] = &records[i]
		}
	}

	set := domain.ChangeSet{Root: snapshot.Root}
	seen := make(map[string]struct{}, len(snapshot.Entries))
	for _, handle := range snapshot.Entries {
		p := handle.Path()
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}

		existing, ok := byPath[p]
		if !ok {
			set.Added = append(set.Added, domain.ChangeItem{Kind: domain.ChangeAdded, Path: p, Handle: handle})
			continue
		}
		if existing.Size != handle.Size() || !existing.LastModified.Equal(handle.ModTime()) {
			set.Modified = append(set.Modified, domain.ChangeItem{
				Kind:     domain.ChangeModified,
				Path:     p,
				Handle:   handle,
				Existing: existing.Clone(),
			})
		}
	}

	if snapshot.Root == "" {
		return set
	}
	prefix := strings.TrimSuffix(snapshot.Root, "/") + "/"
	for i := range records {
		p := records[i].Path()
		if !strings.HasPrefix(p, prefix) {
			continue
		}
		if _, present := seen[p]; !present {
			set.DeletedIDs = append(set.DeletedIDs, records[i].ID)
		}
	}
	return set
}
