// file: internal/metrics/metrics_test.go
// version: 1.1.0
// guid: 7a8b9c0d-1e2f-3a4b-5c6d-7e8f9a0b1c2d

package metrics

import (
	"testing"
	"time"
)

func TestRegisterIdempotent(t *testing.T) {
	Register()
	Register()
}

func TestIncResolution(t *testing.T) {
	IncResolution("success")
	IncResolution("failure")
	IncResolution("cached")
}

func TestIncSourceHit(t *testing.T) {
	IncSourceHit("google_books")
}

func TestIncSourceRateLimited(t *testing.T) {
	IncSourceRateLimited("open_library")
}

func TestObserveResolutionDuration(t *testing.T) {
	ObserveResolutionDuration(100 * time.Millisecond)
}

func TestIncBackfillBook(t *testing.T) {
	IncBackfillBook("success")
	IncBackfillBook("failed")
	IncBackfillBook("skipped")
}

func TestSetBooks(t *testing.T) {
	SetBooks(42)
}
