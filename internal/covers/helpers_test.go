// file: internal/covers/helpers_test.go
// version: 1.0.0
// guid: 6f2a8c4e-0b7d-4e5a-b9c3-4a1f8e6b0d2c

package covers

import "context"

// memoryBlobStore is an in-memory BlobStore for resolver tests.
type memoryBlobStore struct {
	baseURL string
	objects map[string][]byte
	err     error
}

func newMemoryBlobStore(baseURL string) *memoryBlobStore {
	return &memoryBlobStore{
		baseURL: baseURL,
		objects: make(map[string][]byte),
	}
}

func (m *memoryBlobStore) Put(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	m.objects[key] = data
	return m.baseURL + "/" + key, nil
}
