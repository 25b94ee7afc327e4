// Package assets stores generated binary artifacts and hands back the URL
// they will be served under.
package assets

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
)

// Store persists an artifact under key and returns its public URL.
type Store interface {
	Put(ctx context.Context, key string, data []byte) (string, error)
}

// FileStore writes artifacts under a local directory served as static files.
type FileStore struct {
	dir     string
	baseURL string
	logger  *zap.Logger
}

// NewFileStore creates the root directory if needed. baseURL is the public
// prefix the directory is served under.
func NewFileStore(dir, baseURL string, logger *zap.Logger) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create asset dir: %w", err)
	}
	return &FileStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}, nil
}

// Put writes the artifact. Keys may contain slashes to form subdirectories;
// path escapes are rejected.
func (s *FileStore) Put(_ context.Context, key string, data []byte) (string, error) {
	clean := filepath.Clean(key)
	if clean == "." || strings.HasPrefix(clean, "..") || filepath.IsAbs(clean) {
		return "", fmt.Errorf("invalid asset key %q", key)
	}

	path := filepath.Join(s.dir, clean)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create asset subdir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("write asset %s: %w", clean, err)
	}

	url := s.baseURL + "/" + filepath.ToSlash(clean)
	s.logger.Debug("asset stored",
		zap.String("key", clean),
		zap.Int("bytes", len(data)),
	)
	return url, nil
}
