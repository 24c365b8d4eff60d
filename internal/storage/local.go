package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// LocalStore writes request artifacts to per-kind directories on local disk,
// mirroring the temp/uploads and temp/generated layout of the deployment.
type LocalStore struct {
	dirs map[string]string
}

// NewLocalStore maps artifact kinds to directories, creating each directory
// up front so request-time writes only touch the file.
func NewLocalStore(dirs map[string]string) (*LocalStore, error) {
	for kind, dir := range dirs {
		if dir == "" {
			return nil, fmt.Errorf("empty directory for kind %q", kind)
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create %s dir: %w", kind, err)
		}
	}
	return &LocalStore{dirs: dirs}, nil
}

// Save writes the bytes under the kind's directory and returns the file path.
func (s *LocalStore) Save(_ context.Context, kind, name string, data []byte, _ string) (string, error) {
	dir, ok := s.dirs[kind]
	if !ok {
		return "", fmt.Errorf("unknown artifact kind %q", kind)
	}
	path := filepath.Join(dir, filepath.Base(name))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", path, err)
	}
	return path, nil
}
