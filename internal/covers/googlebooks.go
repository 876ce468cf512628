// file: internal/covers/googlebooks.go
// version: 1.0.0
// guid: 7b3d9e1a-4c8f-4b2e-a6d0-5f9c2e7a1b4d

package covers

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jdfalk/coverfetch/internal/isbn"
	"github.com/jdfalk/coverfetch/internal/metrics"
	"github.com/jdfalk/coverfetch/internal/ratelimit"
)

// GoogleBooksSource resolves covers from the Google Books Volume API.
// No API key is required for basic searches (free tier, ~1000 req/day).
type GoogleBooksSource struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	limiter    *ratelimit.Limiter
}

// NewGoogleBooksSource creates a Google Books cover source.
func NewGoogleBooksSource(limiter *ratelimit.Limiter) *GoogleBooksSource {
	baseURL := os.Getenv("GOOGLE_BOOKS_BASE_URL")
	if baseURL == "" {
		baseURL = "https://www.googleapis.com/books/v1"
	}
	return NewGoogleBooksSourceWithBaseURL(limiter, baseURL)
}

// NewGoogleBooksSourceWithBaseURL creates a source with a custom base URL (for testing).
func NewGoogleBooksSourceWithBaseURL(limiter *ratelimit.Limiter, baseURL string) *GoogleBooksSource {
	return &GoogleBooksSource{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    limiter,
	}
}

// SetAPIKey attaches an API key to every request. Optional, the free tier
// works without one.
func (s *GoogleBooksSource) SetAPIKey(key string) {
	s.apiKey = key
}

// Name returns the source identifier used in records and logs.
func (s *GoogleBooksSource) Name() string {
	return SourceGoogleBooks
}

type googleVolumesResponse struct {
	TotalItems int            `json:"totalItems"`
	Items      []googleVolume `json:"items"`
}

type googleVolume struct {
	ID         string           `json:"id"`
	VolumeInfo googleVolumeInfo `json:"volumeInfo"`
}

type googleVolumeInfo struct {
	Title      string            `json:"title"`
	Authors    []string          `json:"authors"`
	ImageLinks *googleImageLinks `json:"imageLinks"`
}

type googleImageLinks struct {
	ExtraLarge     string `json:"extraLarge"`
	Large          string `json:"large"`
	Medium         string `json:"medium"`
	Thumbnail      string `json:"thumbnail"`
	SmallThumbnail string `json:"smallThumbnail"`
}

// bestImage picks the highest-resolution link available.
func (il *googleImageLinks) bestImage() string {
	if il == nil {
		return ""
	}
	for _, u := range []string{il.ExtraLarge, il.Large, il.Medium, il.Thumbnail, il.SmallThumbnail} {
		if u != "" {
			return u
		}
	}
	return ""
}

// Resolve tries each ISBN variant against the volumes endpoint, then falls
// back to a title/author search. Returns nil when rate limited, on any
// upstream failure, or when no image is found.
func (s *GoogleBooksSource) Resolve(book *Identity) *Candidate {
	if !s.limiter.TryAcquire(SourceGoogleBooks) {
		log.Printf("[INFO] Google Books rate limited, skipping")
		metrics.IncSourceRateLimited(SourceGoogleBooks)
		return nil
	}

	for _, variant := range isbn.AllVariants(book.ISBN, book.ISBN10, book.ISBN13) {
		cand, rateLimited := s.lookupByISBN(variant)
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

// lookupByISBN queries the volumes endpoint for one ISBN variant. The second
// return value reports an upstream 429, which aborts the whole attempt.
func (s *GoogleBooksSource) lookupByISBN(variant string) (*Candidate, bool) {
	searchURL := fmt.Sprintf("%s/volumes?q=isbn:%s", s.baseURL, url.QueryEscape(variant))
	if s.apiKey != "" {
		searchURL += "&key=" + url.QueryEscape(s.apiKey)
	}

	resp, err := s.httpClient.Get(searchURL)
	if err != nil {
		log.Printf("[WARN] Google Books ISBN lookup failed: %v", err)
		return nil, false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Printf("[WARN] Google Books returned 429, backing off %ds", backoffSeconds)
		s.limiter.SetBackoff(SourceGoogleBooks, backoffSeconds)
		return nil, true
	}
	if resp.StatusCode != http.StatusOK {
		return nil, false
	}

	var data googleVolumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("[WARN] Google Books response decode failed: %v", err)
		return nil, false
	}
	if len(data.Items) == 0 {
		return nil, false
	}

	item := data.Items[0]
	imageURL := item.VolumeInfo.ImageLinks.bestImage()
	if imageURL == "" {
		return nil, false
	}

	return &Candidate{
		Source:      SourceGoogleBooks,
		URL:         cleanImageURL(imageURL),
		SourceID:    item.ID,
		Confidence:  1.0,
		MatchMethod: MatchISBNExact,
	}, false
}

func (s *GoogleBooksSource) searchByText(title, author string) *Candidate {
	query := "intitle:" + url.QueryEscape(title)
	if author != "" {
		query += "+inauthor:" + url.QueryEscape(author)
	}
	searchURL := fmt.Sprintf("%s/volumes?q=%s&maxResults=5", s.baseURL, query)
	if s.apiKey != "" {
		searchURL += "&key=" + url.QueryEscape(s.apiKey)
	}

	resp, err := s.httpClient.Get(searchURL)
	if err != nil {
		log.Printf("[WARN] Google Books title search failed: %v", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		log.Printf("[WARN] Google Books returned 429, backing off %ds", backoffSeconds)
		s.limiter.SetBackoff(SourceGoogleBooks, backoffSeconds)
		return nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil
	}

	var data googleVolumesResponse
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		log.Printf("[WARN] Google Books response decode failed: %v", err)
		return nil
	}

	for _, item := range data.Items {
		imageURL := item.VolumeInfo.ImageLinks.bestImage()
		if imageURL == "" {
			continue
		}

		confidence := 0.7
		if strings.Contains(strings.ToLower(item.VolumeInfo.Title), strings.ToLower(title)) {
			confidence = 0.85
		}

		return &Candidate{
			Source:      SourceGoogleBooks,
			URL:         cleanImageURL(imageURL),
			SourceID:    item.ID,
			Confidence:  confidence,
			MatchMethod: MatchTitleAuthorFuzzy,
		}
	}
	return nil
}

// Verify interface compliance
var _ Source = (*GoogleBooksSource)(nil)
