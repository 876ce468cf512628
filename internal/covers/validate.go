// file: internal/covers/validate.go
// version: 1.0.0
// guid: 1c7e3a9b-5d2f-4c6a-9e8b-0a4f6c2d8e5a

package covers

import (
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jdfalk/coverfetch/internal/cache"
)

// Accepted image size band. Below the minimum is a placeholder or broken
// image, above the maximum an unreasonable payload.
const (
	minImageBytes = 1000
	maxImageBytes = 10 * 1024 * 1024
)

// Validator confirms a candidate URL points at a real, reasonably sized
// image using a HEAD probe. Verdicts are memoized so repeated candidates
// within a backfill run are probed once.
type Validator struct {
	httpClient *http.Client
	verdicts   *cache.Cache[bool]
}

// NewValidator creates a validator with a 15 minute verdict cache.
func NewValidator() *Validator {
	return &Validator{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		verdicts:   cache.New[bool](15 * time.Minute),
	}
}

// Validate reports whether url serves an acceptable cover image. A missing
// Content-Length header is not a rejection reason.
func (v *Validator) Validate(url string) bool {
	if verdict, ok := v.verdicts.Get(url); ok {
		return verdict
	}

	verdict := v.probe(url)
	v.verdicts.Set(url, verdict)
	return verdict
}

func (v *Validator) probe(url string) bool {
	resp, err := v.httpClient.Head(url)
	if err != nil {
		log.Printf("[WARN] image probe failed for %s: %v", url, err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return false
	}

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), "image/") {
		return false
	}

	if cl := resp.Header.Get("Content-Length"); cl != "" {
		size, err := strconv.Atoi(cl)
		if err != nil || size < minImageBytes || size > maxImageBytes {
			return false
		}
	}

	return true
}
