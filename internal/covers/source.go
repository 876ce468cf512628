// file: internal/covers/source.go
// version: 1.0.0
// guid: 4e8a2c6f-9b1d-4f3a-8e7c-2a5d9f0b4c8e

package covers

import (
	"regexp"
	"strings"
)

// Source names, also used as rate-limit API names and CoverRecord keys.
const (
	SourceGoogleBooks = "google_books"
	SourceOpenLibrary = "open_library"
)

// Match methods recorded on a candidate.
const (
	MatchISBNExact        = "isbn_exact"
	MatchTitleAuthorFuzzy = "title_author_fuzzy"
)

// backoffSeconds is the cooldown applied when an upstream API answers 429.
const backoffSeconds = 60

// Candidate is a cover image proposed by one source. Ephemeral; the
// orchestrator validates it before anything is persisted.
type Candidate struct {
	Source      string
	URL         string
	SourceID    string
	Confidence  float64
	MatchMethod string
}

// Source resolves a cover candidate for a book from one external catalog.
// A nil result means skipped (rate limited) or not found; adapters swallow
// network and parse failures rather than returning errors.
type Source interface {
	Name() string
	Resolve(book *Identity) *Candidate
}

// Identity is the immutable book input to a resolution attempt.
type Identity struct {
	ID            string
	Title         string
	Author        string
	ISBN          string
	ISBN10        string
	ISBN13        string
	GoogleBooksID string
}

var zoomParam = regexp.MustCompile(`zoom=\d`)

// cleanImageURL normalizes a catalog image URL: forces https, drops the
// page-curl viewer decoration, and upgrades the zoom parameter to the
// highest resolution Google serves.
func cleanImageURL(raw string) string {
	u := strings.Replace(raw, "http://", "https://", 1)
	u = strings.ReplaceAll(u, "&edge=curl", "")
	return zoomParam.ReplaceAllString(u, "zoom=3")
}
