// file: internal/covers/openlibrary.go
// version: 1.0.0
// guid: 9f5b1d7e-2a6c-4e8b-b0f4-7c3a9e5d1f8b

package covers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jdfalk/coverfetch/internal/isbn"
	"github.com/jdfalk/coverfetch/internal/metrics"
	"github.com/jdfalk/coverfetch/internal/ratelimit"
)

// placeholderMaxBytes gates the covers-API existence probe: Open Library
// serves a tiny pixel image for unknown ISBNs instead of a 404, so a probe
// only counts as a hit when the declared size exceeds this.
const placeholderMaxBytes = 1000

// OpenLibrarySource resolves covers from the Open Library covers and books APIs.
type OpenLibrarySource struct {
	httpClient    *http.Client
	baseURL       string
	coversBaseURL string
	limiter       *ratelimit.Limiter
}

// NewOpenLibrarySource creates an Open Library cover source.
func NewOpenLibrarySource(limiter *ratelimit.Limiter) *OpenLibrarySource {
	baseURL := os.Getenv("OPENLIBRARY_BASE_URL")
	if baseURL == "" {
		baseURL = "https://openlibrary.org"
	}
	coversBaseURL := os.Getenv("OPENLIBRARY_COVERS_BASE_URL")
	if coversBaseURL == "" {
		coversBaseURL = "https://covers.openlibrary.org"
	}
	return NewOpenLibrarySourceWithBaseURLs(limiter, baseURL, coversBaseURL)
}

// NewOpenLibrarySourceWithBaseURLs creates a source with custom base URLs (for testing).
func NewOpenLibrarySourceWithBaseURLs(limiter *ratelimit.Limiter, baseURL, coversBaseURL string) *OpenLibrarySource {
	return &OpenLibrarySource{
		httpClient:    &http.Client{Timeout: 30 * time.Second},
		baseURL:       strings.TrimRight(baseURL, "/"),
		coversBaseURL: strings.TrimRight(coversBaseURL, "/"),
		limiter:       limiter,
	}
}

// Name returns the source identifier used in records and logs.
func (s *OpenLibrarySource) Name() string {
	return SourceOpenLibrary
}

// Resolve probes the covers API per ISBN variant, then falls back to the
// books API, then to a title search. Returns nil when rate limited, on any
// upstream failure, or when no image is found.
func (s *OpenLibrarySource) Resolve(book *Identity) *Candidate {
	if !s.limiter.TryAcquire(SourceOpenLibrary) {
		log.Printf("[INFO] Open Library rate limited, skipping")
		metrics.IncSourceRateLimited(SourceOpenLibrary)
		return nil
	}

	variants := isbn.AllVariants(book.ISBN, book.ISBN10, book.ISBN13)

	// Covers API existence probe first, it is the cheapest path.
	for _, variant := range variants {
		cand, rateLimited := s.probeCovers(variant)
		if rateLimited {
			return nil
		}
		if cand != nil {
			return cand
		}
	}

	for _, variant := range variants {
		cand, rateLimited := s.lookupBooksAPI(variant)
		if rateLimited {
			return nil
		}
		if cand != nil {
			return cand
		}
	}

	if book.Title != "" {
		return s.searchByText(book.Title, book.Author)
	}
	return nil
}

// probeCovers issues a HEAD request against the covers API for one ISBN.
// The second return value reports an upstream 429, which aborts the attempt.
func (s *OpenLibrarySource) probeCovers(variant string) (*Candidate, bool) {
	coverURL := fmt.Sprintf("%s/b/isbn/%s-L.jpg", s.coversBaseURL, variant)

	resp, err := s.httpClient.Head(coverURL)
	if err != nil {
		log.Printf("[WARN] Open Library cover probe failed: %v", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Printf("[WARN] Open Library returned 429, backing off %ds", backoffSeconds)
		s.limiter.SetBackoff(SourceOpenLibrary, backoffSeconds)
		return nil, true
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, false
	}

	size, err := strconv.Atoi(resp.Header.Get("Content-Length"))
	if err != nil || size <= placeholderMaxBytes {
		return nil, false
	}

	return &Candidate{
		Source:      SourceOpenLibrary,
		URL:         coverURL,
		SourceID:    variant,
		Confidence:  1.0,
		MatchMethod: MatchISBNExact,
	}, false
}

type olBooksEntry struct {
	Cover *olCoverLinks `json:"cover"`
}

type olCoverLinks struct {
	Large  string `json:"large"`
	Medium string `json:"medium"`
	Small  string `json:"small"`
}

func (s *OpenLibrarySource) lookupBooksAPI(variant string) (*Candidate, bool) {
	bibkey := "ISBN:" + variant
	lookupURL := fmt.Sprintf("%s/api/books?bibkeys=%s&format=json&jscmd=data", s.baseURL, url.QueryEscape(bibkey))

	resp, err := s.httpClient.Get(lookupURL)
	if err != nil {
		log.Printf("[WARN] Open Library books lookup failed: %v", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Printf("[WARN] Open Library returned 429, backing off %ds", backoffSeconds)
		s.limiter.SetBackoff(SourceOpenLibrary, backoffSeconds)
		return nil, true
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var data map[string]olBooksEntry
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("[WARN] Open Library response decode failed: %v", err)
		return nil, false
	}

	entry, ok := data[bibkey]
	if !ok || entry.Cover == nil {
		return nil, false
	}

	coverURL := entry.Cover.Large
	if coverURL == "" {
		coverURL = entry.Cover.Medium
	}
	if coverURL == "" {
		return nil, false
	}

	return &Candidate{
		Source:      SourceOpenLibrary,
		URL:         strings.Replace(coverURL, "http://", "https://", 1),
		SourceID:    variant,
		Confidence:  1.0,
		MatchMethod: MatchISBNExact,
	}, false
}

type olSearchResponse struct {
	NumFound int           `json:"numFound"`
	Docs     []olSearchDoc `json:"docs"`
}

type olSearchDoc struct {
	Title  string `json:"title"`
	CoverI int    `json:"cover_i"`
}

func (s *OpenLibrarySource) searchByText(title, author string) *Candidate {
	searchURL := fmt.Sprintf("%s/search.json?title=%s&limit=5", s.baseURL, url.QueryEscape(title))
	if author != "" {
		searchURL += "&author=" + url.QueryEscape(author)
	}

	resp, err := s.httpClient.Get(searchURL)
	if err != nil {
		log.Printf("[WARN] Open Library search failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Printf("[WARN] Open Library returned 429, backing off %ds", backoffSeconds)
		s.limiter.SetBackoff(SourceOpenLibrary, backoffSeconds)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var data olSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("[WARN] Open Library search decode failed: %v", err)
		return nil
	}

	for _, doc := range data.Docs {
		if doc.CoverI == 0 {
			continue
		}

		confidence := 0.7
		if strings.Contains(strings.ToLower(doc.Title), strings.ToLower(title)) {
			confidence = 0.85
		}

		return &Candidate{
			Source:      SourceOpenLibrary,
			URL:         fmt.Sprintf("%s/b/id/%d-L.jpg", s.coversBaseURL, doc.CoverI),
			SourceID:    strconv.Itoa(doc.CoverI),
			Confidence:  confidence,
			MatchMethod: MatchTitleAuthorFuzzy,
		}
	}
	return nil
}

// Verify interface compliance
var _ Source = (*OpenLibrarySource)(nil)
