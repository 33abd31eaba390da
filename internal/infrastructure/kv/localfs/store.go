// Package localfs keeps each archive namespace as a JSON file in a directory.
package localfs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sync"
)

var namespacePattern = regexp.MustCompile(`^[a-z0-9_]+$`)

type Store struct {
	basePath string
	mu       sync.Mutex
}

func New(basePath string) (*Store, error) {
	if basePath == "" {
		basePath = "./data/state"
	}
	if err := os.MkdirAll(basePath, 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	return &Store{basePath: basePath}, nil
}

func (s *Store) Get(_ context.Context, namespace string) ([]byte, bool, error) {
	path, err := s.path(namespace)
	if err != nil {
		return nil, false, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read %s: %w", namespace, err)
	}
	return data, true, nil
}

// Put replaces the namespace file through a temp file and rename so readers
// never observe a partial write.
func (s *Store) Put(_ context.Context, namespace string, value []byte) error {
	path, err := s.path(namespace)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tmp, err := os.CreateTemp(s.basePath, namespace+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(value); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write %s: %w", namespace, err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync %s: %w", namespace, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", namespace, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace %s: %w", namespace, err)
	}
	return nil
}

func (s *Store) path(namespace string) (string, error) {
	if !namespacePattern.MatchString(namespace) {
		return "", fmt.Errorf("invalid namespace %q", namespace)
	}
	return filepath.Join(s.basePath, namespace+".json"), nil
}
