// file: internal/database/ids.go
// version: 1.0.0
// guid: 2e7c4a9f-8d1b-4e5a-a6c3-9b0f2d8e4a7c

package database

import (
	"crypto/rand"
	"time"

	ulid "github.com/oklog/ulid/v2"
)

func newULID() (string, error) {
	entropy := ulid.Monotonic(rand.Reader, 0)
	id, err := ulid.New(ulid.Timestamp(time.Now()), entropy)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
