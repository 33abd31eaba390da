package localfs

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/kirillkom/records-archive/internal/core/domain"
)

// Roots is the set of directories a sync may be pointed at: the archive root
// and any extra roots, each including its subdirectories.
type Roots struct {
	primary       string
	allowed       []string
	includeHidden bool
}

func NewRoots(primary string, extra []string, includeHidden bool) (Roots, error) {
	r := Roots{includeHidden: includeHidden}
	for i, dir := range append([]string{primary}, extra...) {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		abs, err := filepath.Abs(dir)
		if err != nil {
			return Roots{}, fmt.Errorf("resolve root %q: %w", dir, err)
		}
		if i == 0 {
			r.primary = abs
		}
		r.allowed = append(r.allowed, abs)
	}
	if r.primary == "" {
		return Roots{}, fmt.Errorf("archive root is empty")
	}
	return r, nil
}

// Resolve maps a requested root to a snapshotter. Empty selects the archive
// root, a bare name matches an allowed root by base name, relative paths are
// taken under the archive root. Anything outside the allowed roots is
// rejected with ErrInvalidInput.
func (r Roots) Resolve(root string) (*Snapshotter, error) {
	dir, err := r.dir(strings.TrimSpace(root))
	if err != nil {
		return nil, domain.WrapError(domain.ErrInvalidInput, "resolve root", err)
	}
	s := New(dir)
	if r.includeHidden {
		s.WithHidden()
	}
	return s, nil
}

func (r Roots) dir(root string) (string, error) {
	if root == "" {
		return r.primary, nil
	}
	for _, a := range r.allowed {
		if root == filepath.Base(a) {
			return a, nil
		}
	}
	cand := root
	if !filepath.IsAbs(cand) {
		cand = filepath.Join(r.primary, cand)
	}
	cand = filepath.Clean(cand)
	for _, a := range r.allowed {
		if within(a, cand) {
			return cand, nil
		}
	}
	return "", fmt.Errorf("root %q is outside the connected roots", root)
}

func within(base, p string) bool {
	rel, err := filepath.Rel(base, p)
	if err != nil || filepath.IsAbs(rel) {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
