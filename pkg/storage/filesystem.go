package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// LocalStorage persists uploaded objects on disk under a base directory and
// addresses them through a public base URL.
type LocalStorage struct {
	baseDir string
	baseURL string
}

// NewLocalStorage ensures the base directory exists and returns a handle.
func NewLocalStorage(baseDir, publicBaseURL string) (*LocalStorage, error) {
	if baseDir == "" {
		baseDir = "./uploads"
	}
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("create uploads directory: %w", err)
	}
	return &LocalStorage{baseDir: baseDir, baseURL: strings.TrimRight(publicBaseURL, "/")}, nil
}

// Name identifies the backend in logs and metrics.
func (s *LocalStorage) Name() string {
	return DriverLocal
}

// Upload writes data to folder/name and returns its public URL. Existing objects are never overwritten.
func (s *LocalStorage) Upload(ctx context.Context, folder, name string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	rel, err := objectKey(folder, name)
	if err != nil {
		return "", err
	}
	target := s.resolve(rel)
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return "", fmt.Errorf("prepare upload directory: %w", err)
	}
	file, err := os.OpenFile(target, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return "", fmt.Errorf("create upload file: %w", err)
	}
	if _, err := file.Write(data); err != nil {
		file.Close() //nolint:errcheck
		return "", fmt.Errorf("write upload file: %w", err)
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("close upload file: %w", err)
	}
	return s.URL(rel), nil
}

// URL builds the public address of a stored object.
func (s *LocalStorage) URL(rel string) string {
	escaped := make([]string, 0)
	for _, part := range strings.Split(rel, "/") {
		escaped = append(escaped, url.PathEscape(part))
	}
	return s.baseURL + "/" + strings.Join(escaped, "/")
}

// Open returns a read-only handle for the stored object.
func (s *LocalStorage) Open(rel string) (*os.File, error) {
	file, err := os.Open(s.resolve(rel))
	if err != nil {
		return nil, fmt.Errorf("open upload file: %w", err)
	}
	return file, nil
}

// Dir exposes the base directory for static serving.
func (s *LocalStorage) Dir() string {
	return s.baseDir
}

func (s *LocalStorage) resolve(rel string) string {
	return filepath.Join(s.baseDir, filepath.FromSlash(rel))
}

// objectKey joins folder and name into a clean relative key that cannot escape the root.
func objectKey(folder, name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("object name required")
	}
	key := path.Clean("/" + path.Join(folder, name))
	key = strings.TrimPrefix(key, "/")
	if key == "" || key == "." || strings.HasSuffix(key, "/") {
		return "", fmt.Errorf("invalid object key %q", path.Join(folder, name))
	}
	return key, nil
}
