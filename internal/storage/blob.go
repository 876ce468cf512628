// file: internal/storage/blob.go
// version: 1.0.0
// guid: 0b5e8d2a-7c4f-4a1b-9e6d-3f8a1c5b7d0e

package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// BlobStore persists cover image bytes under a stable key and returns a
// durable public URL. Re-uploading the same key replaces the object.
type BlobStore interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// ExtensionForContentType maps an image content type to a file extension.
func ExtensionForContentType(ct string) string {
	ct = strings.ToLower(ct)
	switch {
	case strings.Contains(ct, "png"):
		return ".png"
	case strings.Contains(ct, "gif"):
		return ".gif"
	case strings.Contains(ct, "webp"):
		return ".webp"
	default:
		return ".jpg"
	}
}

// LocalStore writes blobs to a directory on disk and serves them under a
// base URL (the web server exposes the directory).
type LocalStore struct {
	dir     string
	baseURL string
}

// NewLocalStore creates a local blob store rooted at dir.
func NewLocalStore(dir, baseURL string) *LocalStore {
	return &LocalStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

// Put writes data to {dir}/{key} and returns the public URL.
func (s *LocalStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if key == "" {
		return "", fmt.Errorf("empty blob key")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid blob key: %s", key)
	}

	destPath := filepath.Join(s.dir, filepath.FromSlash(key))
	if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
		return "", fmt.Errorf("failed to create blob directory: %w", err)
	}

	if err := os.WriteFile(destPath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write blob: %w", err)
	}

	return s.baseURL + "/" + key, nil
}

// Verify interface compliance
var _ BlobStore = (*LocalStore)(nil)
