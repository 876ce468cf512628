// file: internal/covers/resolver.go
// version: 1.0.0
// guid: 3e9b5d1f-7a4c-4e2b-8d6a-1f8c4a0e6b3d

package covers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/jdfalk/coverfetch/internal/database"
	"github.com/jdfalk/coverfetch/internal/metrics"
	"github.com/jdfalk/coverfetch/internal/storage"
)

// Trigger contexts recorded on fetch logs.
const (
	TriggerAuto      = "auto"
	TriggerUserRetry = "user_retry"
	TriggerBackfill  = "backfill"
)

// ErrorNoCoverFound is logged when the whole cascade comes up empty.
const ErrorNoCoverFound = "NO_COVER_FOUND"

var (
	// ErrMissingBookID is returned when the caller supplies no book ID.
	ErrMissingBookID = errors.New("book_id is required")
	// ErrBookNotFound is returned when the book is absent from the store.
	ErrBookNotFound = errors.New("book not found")
)

// Result is the outcome of one resolution call.
type Result struct {
	Success      bool     `json:"success"`
	CoverURL     string   `json:"coverUrl,omitempty"`
	Source       string   `json:"source,omitempty"`
	Confidence   *float64 `json:"confidence,omitempty"`
	MatchMethod  string   `json:"matchMethod,omitempty"`
	Cached       bool     `json:"cached"`
	Error        string   `json:"error,omitempty"`
	SourcesTried []string `json:"sourcesTried,omitempty"`
	DurationMs   int64    `json:"durationMs"`
}

// Resolver runs the source cascade for one book and persists the outcome.
// Sources are tried strictly in registration order; the first candidate that
// survives image validation wins.
type Resolver struct {
	store      database.Store
	sources    []Source
	validator  *Validator
	blobs      storage.BlobStore
	httpClient *http.Client
	now        func() time.Time
}

// NewResolver creates a resolver. blobs may be nil, in which case winning
// candidates keep their source URL instead of being relayed to durable storage.
func NewResolver(store database.Store, sources []Source, validator *Validator, blobs storage.BlobStore) *Resolver {
	return &Resolver{
		store:      store,
		sources:    sources,
		validator:  validator,
		blobs:      blobs,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		now:        time.Now,
	}
}

// Resolve determines the best cover for a book. With forceRefresh false an
// existing ok record short-circuits the cascade entirely. Persistence
// failures are logged but never fail the call.
func (r *Resolver) Resolve(ctx context.Context, bookID string, forceRefresh bool, trigger string) (*Result, error) {
	if bookID == "" {
		return nil, ErrMissingBookID
	}

	book, err := r.store.GetBookByID(bookID)
	if err != nil || book == nil {
		return nil, fmt.Errorf("%w: %s", ErrBookNotFound, bookID)
	}

	if !forceRefresh {
		if rec, err := r.store.GetOKCoverRecord(bookID); err == nil && rec != nil && rec.CDNURL != nil {
			metrics.IncResolution("cached")
			return &Result{
				Success:    true,
				CoverURL:   *rec.CDNURL,
				Source:     rec.Source,
				Confidence: rec.MatchConfidence,
				Cached:     true,
			}, nil
		}
	}

	start := r.now()
	identity := identityFromBook(book)

	var winner *Candidate
	sourcesTried := make([]string, 0, len(r.sources))
	for _, src := range r.sources {
		sourcesTried = append(sourcesTried, src.Name())

		cand := src.Resolve(identity)
		if cand == nil {
			continue
		}
		if r.validator.Validate(cand.URL) {
			winner = cand
			break
		}
		log.Printf("[INFO] invalid image from %s for book %s, trying next source", src.Name(), bookID)
	}

	duration := r.now().Sub(start)
	metrics.ObserveResolutionDuration(duration)

	if winner == nil {
		r.persistFailure(book, identity, sourcesTried, duration, trigger)
		metrics.IncResolution("failure")
		return &Result{
			Success:      false,
			Error:        "No cover found",
			SourcesTried: sourcesTried,
			DurationMs:   duration.Milliseconds(),
		}, nil
	}

	finalURL, storagePath := r.relayToBlobStore(ctx, bookID, winner)
	r.persistSuccess(book, identity, winner, finalURL, storagePath, sourcesTried, duration, trigger)
	metrics.IncResolution("success")
	metrics.IncSourceHit(winner.Source)

	return &Result{
		Success:      true,
		CoverURL:     finalURL,
		Source:       winner.Source,
		Confidence:   &winner.Confidence,
		MatchMethod:  winner.MatchMethod,
		Cached:       false,
		SourcesTried: sourcesTried,
		DurationMs:   duration.Milliseconds(),
	}, nil
}

// primarySource is the record key for failed resolutions: always the first
// source in priority order, whether or not it was the one that failed last.
func (r *Resolver) primarySource() string {
	if len(r.sources) > 0 {
		return r.sources[0].Name()
	}
	return SourceGoogleBooks
}

// relayToBlobStore downloads the winning image and re-uploads it under a
// stable per-book key. Any failure falls back to the original source URL.
func (r *Resolver) relayToBlobStore(ctx context.Context, bookID string, cand *Candidate) (finalURL, storagePath string) {
	if r.blobs == nil {
		return cand.URL, ""
	}

	resp, err := r.httpClient.Get(cand.URL)
	if err != nil {
		log.Printf("[WARN] cover download failed for book %s: %v", bookID, err)
		return cand.URL, ""
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("[WARN] cover download returned status %d for book %s", resp.StatusCode, bookID)
		return cand.URL, ""
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil || len(data) > maxImageBytes {
		log.Printf("[WARN] cover download unusable for book %s", bookID)
		return cand.URL, ""
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/jpeg"
	}

	key := fmt.Sprintf("%s/%s%s", bookID, cand.Source, storage.ExtensionForContentType(contentType))
	url, err := r.blobs.Put(ctx, key, data, contentType)
	if err != nil {
		log.Printf("[WARN] cover upload failed for book %s: %v", bookID, err)
		return cand.URL, ""
	}

	return url, key
}

func (r *Resolver) persistSuccess(book *database.Book, identity *Identity, cand *Candidate, finalURL, storagePath string, sourcesTried []string, duration time.Duration, trigger string) {
	now := r.now()

	r.appendLog(book, identity, sourcesTried, &cand.Source, &finalURL, duration, nil, trigger)

	rec := &database.CoverRecord{
		BookID:          book.ID,
		Source:          cand.Source,
		SourceURL:       &cand.URL,
		CDNURL:          &finalURL,
		Status:          database.RecordStatusOK,
		MatchConfidence: &cand.Confidence,
		MatchMethod:     &cand.MatchMethod,
		FetchedAt:       now,
	}
	if cand.SourceID != "" {
		rec.SourceID = &cand.SourceID
	}
	if storagePath != "" {
		rec.StoragePath = &storagePath
	}
	if existing, err := r.store.GetCoverRecord(book.ID, cand.Source); err == nil && existing != nil {
		rec.Attempts = existing.Attempts
	}
	if err := r.store.UpsertCoverRecord(rec); err != nil {
		log.Printf("[ERROR] failed to save cover record for book %s: %v", book.ID, err)
	}

	if err := r.store.UpdateBookCover(book.ID, &finalURL, database.CoverStatusOK, book.CoverAttempts, now); err != nil {
		log.Printf("[ERROR] failed to update book %s: %v", book.ID, err)
	}
}

func (r *Resolver) persistFailure(book *database.Book, identity *Identity, sourcesTried []string, duration time.Duration, trigger string) {
	now := r.now()
	attempts := book.CoverAttempts + 1

	r.appendLog(book, identity, sourcesTried, nil, nil, duration, strPtr(ErrorNoCoverFound), trigger)

	errMsg := "No cover found"
	rec := &database.CoverRecord{
		BookID:       book.ID,
		Source:       r.primarySource(),
		Status:       database.RecordStatusError,
		ErrorMessage: &errMsg,
		Attempts:     attempts,
		FetchedAt:    now,
	}
	if err := r.store.UpsertCoverRecord(rec); err != nil {
		log.Printf("[ERROR] failed to save failure record for book %s: %v", book.ID, err)
	}

	if err := r.store.UpdateBookCover(book.ID, nil, database.CoverStatusMissing, attempts, now); err != nil {
		log.Printf("[ERROR] failed to update book %s: %v", book.ID, err)
	}
}

func (r *Resolver) appendLog(book *database.Book, identity *Identity, sourcesTried []string, sourceFound, urlFound *string, duration time.Duration, errorCode *string, trigger string) {
	durationMs := duration.Milliseconds()
	entry := &database.FetchLog{
		BookID:        &book.ID,
		SourcesTried:  sourcesTried,
		SourceFound:   sourceFound,
		CoverURLFound: urlFound,
		DurationMs:    &durationMs,
		ErrorCode:     errorCode,
		TriggeredBy:   trigger,
		CreatedAt:     r.now(),
	}
	if identity.ISBN != "" {
		entry.ISBNSearched = &identity.ISBN
	}
	if identity.Title != "" {
		entry.TitleSearched = &identity.Title
	}
	if identity.Author != "" {
		entry.AuthorSearched = &identity.Author
	}
	if errorCode != nil {
		msg := "No cover found from any source"
		entry.ErrorMessage = &msg
	}

	if err := r.store.AddFetchLog(entry); err != nil {
		log.Printf("[ERROR] failed to append fetch log for book %s: %v", book.ID, err)
	}
}

// identityFromBook flattens a stored book into the immutable resolution input.
func identityFromBook(book *database.Book) *Identity {
	id := &Identity{
		ID:    book.ID,
		Title: book.Title,
	}
	if book.Author != nil {
		id.Author = *book.Author
	}
	if book.ISBN != nil {
		id.ISBN = *book.ISBN
	}
	if book.ISBN10 != nil {
		id.ISBN10 = *book.ISBN10
	}
	if book.ISBN13 != nil {
		id.ISBN13 = *book.ISBN13
	}
	if book.GoogleBooksID != nil {
		id.GoogleBooksID = *book.GoogleBooksID
	}
	return id
}

func strPtr(s string) *string {
	return &s
}
