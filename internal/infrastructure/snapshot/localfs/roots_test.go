package localfs

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

func TestRootsResolveAllowed(t *testing.T) {
	tmp := t.TempDir()
	archive := filepath.Join(tmp, "archive")
	scans := filepath.Join(tmp, "scans")
	roots, err := NewRoots(archive, []string{scans}, false)
	require.NoError(t, err)

	cases := map[string]string{
		"":                                     archive,
		"archive":                              archive,
		"scans":                                scans,
		"Finance/2024":                         filepath.Join(archive, "Finance", "2024"),
		filepath.Join(scans, "inbox"):          filepath.Join(scans, "inbox"),
		filepath.Join(archive, "a", "..", "b"): filepath.Join(archive, "b"),
	}
	for in, want := range cases {
		s, err := roots.Resolve(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, s.dir, in)
	}
}

func TestRootsRejectOutside(t *testing.T) {
	tmp := t.TempDir()
	roots, err := NewRoots(filepath.Join(tmp, "archive"), nil, false)
	require.NoError(t, err)

	for _, in := range []string{"/etc", "..", "../secrets", filepath.Join(tmp, "archive-old"), tmp} {
		_, err := roots.Resolve(in)
		assert.True(t, domain.IsKind(err, domain.ErrInvalidInput), in)
	}
}

func TestRootsCarryHiddenOption(t *testing.T) {
	base := filepath.Join(t.TempDir(), "docs")
	writeFile(t, filepath.Join(base, ".notes"), "n")
	roots, err := NewRoots(base, nil, true)
	require.NoError(t, err)

	s, err := roots.Resolve("")
	require.NoError(t, err)
	snap, err := s.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, snap.Len())
}

func TestNewRootsRequiresArchiveRoot(t *testing.T) {
	_, err := NewRoots("  ", []string{"/srv/scans"}, false)
	assert.Error(t, err)
}
