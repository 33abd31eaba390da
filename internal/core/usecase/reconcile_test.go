package usecase

import (
	"math/rand"
	"testing"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

func TestDetectChangesAddsUnknownPath(t *testing.T) {
	snapshot := domain.NewSnapshot("docs", []domain.FileHandle{
		file("docs/a.txt", 10, 100),
		file("docs/b.txt", 20, 200),
	})
	records := []domain.FileRecord{storedRecord("id-0001", "docs/a.txt", 10, 100)}

	set := DetectChanges(snapshot, records)
	if len(set.Added) != 1 || set.Added[0].Path != "docs/b.txt" {
		t.Fatalf("expected added=[docs/b.txt], got %+v", set.Added)
	}
	if len(set.Modified) != 0 || len(set.DeletedIDs) != 0 {
		t.Fatalf("expected no modified/deleted, got %+v %+v", set.Modified, set.DeletedIDs)
	}
}

func TestDetectChangesDeletesMissingPathUnderRoot(t *testing.T) {
	snapshot := domain.NewSnapshot("docs", []domain.FileHandle{file("docs/a.txt", 10, 100)})
	records := []domain.FileRecord{
		storedRecord("id-0001", "docs/a.txt", 10, 100),
		storedRecord("id-0002", "docs/c.txt", 5, 50),
	}

	set := DetectChanges(snapshot, records)
	if len(set.DeletedIDs) != 1 || set.DeletedIDs[0] != "id-0002" {
		t.Fatalf("expected deleted=[id-0002], got %+v", set.DeletedIDs)
	}
	if len(set.Added) != 0 || len(set.Modified) != 0 {
		t.Fatalf("expected nothing else, got %+v", set)
	}
}

func TestDetectChangesModifiedCarriesExistingID(t *testing.T) {
	snapshot := domain.NewSnapshot("docs", []domain.FileHandle{file("docs/a.txt", 15, 100)})
	records := []domain.FileRecord{storedRecord("id-0001", "docs/a.txt", 10, 100)}

	set := DetectChanges(snapshot, records)
	if len(set.Modified) != 1 {
		t.Fatalf("expected one modified item, got %+v", set.Modified)
	}
	if set.Modified[0].Existing == nil || set.Modified[0].Existing.ID != "id-0001" {
		t.Fatalf("expected existing id-0001, got %+v", set.Modified[0].Existing)
	}
}

func TestDetectChangesModifiedOnMTimeOnly(t *testing.T) {
	snapshot := domain.NewSnapshot("docs", []domain.FileHandle{file("docs/a.txt", 10, 101)})
	records := []domain.FileRecord{storedRecord("id-0001", "docs/a.txt", 10, 100)}

	if set := DetectChanges(snapshot, records); len(set.Modified) != 1 {
		t.Fatalf("expected mtime change to be detected, got %+v", set)
	}
}

func TestDetectChangesIgnoresOtherRoots(t *testing.T) {
	snapshot := domain.NewSnapshot("docs", []domain.FileHandle{file("docs/a.txt", 10, 100)})
	records := []domain.FileRecord{
		storedRecord("id-0001", "docs/a.txt", 10, 100),
		storedRecord("id-0002", "docs-old/b.txt", 1, 1),
		storedRecord("id-0003", "/local/c.txt", 1, 1),
	}

	if set := DetectChanges(snapshot, records); len(set.DeletedIDs) != 0 {
		t.Fatalf("expected records outside docs/ to survive, got %+v", set.DeletedIDs)
	}
}

func TestDetectChangesUploadNeverDeletes(t *testing.T) {
	snapshot := domain.NewSnapshot("", []domain.FileHandle{file("/local/new.txt", 1, 1)})
	records := []domain.FileRecord{storedRecord("id-0001", "/local/old.txt", 1, 1)}

	set := DetectChanges(snapshot, records)
	if len(set.DeletedIDs) != 0 {
		t.Fatalf("expected upload batch to keep records, got %+v", set.DeletedIDs)
	}
	if len(set.Added) != 1 {
		t.Fatalf("expected one added upload, got %+v", set.Added)
	}
}

func TestDetectChangesRenameIsDeletePlusAdd(t *testing.T) {
	snapshot := domain.NewSnapshot("docs", []domain.FileHandle{file("docs/renamed.txt", 10, 100)})
	records := []domain.FileRecord{storedRecord("id-0001", "docs/a.txt", 10, 100)}

	set := DetectChanges(snapshot, records)
	if len(set.Added) != 1 || len(set.DeletedIDs) != 1 || len(set.Modified) != 0 {
		t.Fatalf("expected delete+add, got %+v", set)
	}
}

func TestDetectChangesUnchangedIsIdempotent(t *testing.T) {
	snapshot := domain.NewSnapshot("docs", []domain.FileHandle{
		file("docs/a.txt", 10, 100),
		file("docs/sub/b.txt", 20, 200),
	})
	records := []domain.FileRecord{
		storedRecord("id-0001", "docs/a.txt", 10, 100),
		storedRecord("id-0002", "docs/sub/b.txt", 20, 200),
	}

	if set := DetectChanges(snapshot, records); !set.IsEmpty() {
		t.Fatalf("expected empty change set, got %+v", set)
	}
}

func TestDetectChangesSetsAreDisjoint(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	paths := []string{"r/a", "r/b", "r/c", "r/d/e", "r/d/f", "r/g", "r/h", "q/x"}

	for round := 0; round < 200; round++ {
		var records []domain.FileRecord
		var files []domain.FileHandle
		for i, p := range paths {
			if rng.Intn(2) == 0 {
				records = append(records, storedRecord("id-000"+string(rune('0'+i)), p, int64(rng.Intn(3)), int64(rng.Intn(3))))
			}
			if rng.Intn(2) == 0 && p[0] == 'r' {
				files = append(files, file(p, int64(rng.Intn(3)), int64(rng.Intn(3))))
			}
		}

		set := DetectChanges(domain.NewSnapshot("r", files), records)

		idByPath := map[string]string{}
		for _, r := range records {
			idByPath[r.Path()] = r.ID
		}
		owner := map[string]string{}
		mark := func(id, kind string) {
			if prev, ok := owner[id]; ok {
				t.Fatalf("round %d: %s is both %s and %s", round, id, prev, kind)
			}
			owner[id] = kind
		}
		for _, it := range set.Added {
			mark("path:"+it.Path, "added")
		}
		for _, it := range set.Modified {
			mark("path:"+it.Path, "modified")
			mark(it.Existing.ID, "modified")
		}
		for _, id := range set.DeletedIDs {
			mark(id, "deleted")
		}
		for _, it := range set.Added {
			if id, ok := idByPath[it.Path]; ok {
				if owner[id] == "deleted" {
					t.Fatalf("round %d: added path %s also deleted", round, it.Path)
				}
			}
		}
	}
}
