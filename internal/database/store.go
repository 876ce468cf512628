// file: internal/database/store.go
// version: 1.1.0
// guid: 9d4b7e2a-1c5f-4a8b-b3e6-0f9a2c7d5e1b

package database

import (
	"fmt"
	"time"
)

// Store defines the interface for our database operations
// This abstraction allows us to support both PebbleDB (default) and SQLite3 (opt-in)
type Store interface {
	// Lifecycle
	Close() error
	Reset() error

	// Books
	CreateBook(book *Book) (*Book, error) // Generates ULID if ID is empty
	GetBookByID(id string) (*Book, error)
	UpdateBookCover(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error
	ListBooksNeedingCovers(limit int, userID *string, attemptedBefore *time.Time) ([]Book, error)
	CountBooks() (int, error)

	// Cover records (one per book+source, upserted)
	GetCoverRecord(bookID, source string) (*CoverRecord, error)
	GetOKCoverRecord(bookID string) (*CoverRecord, error)
	UpsertCoverRecord(rec *CoverRecord) error
	GetCoverRecords(bookID string) ([]CoverRecord, error)

	// API rate limit states
	GetRateLimit(apiName string) (*RateLimitState, error)
	PutRateLimit(state *RateLimitState) error

	// Cover fetch logs (append-only)
	AddFetchLog(entry *FetchLog) error
	GetFetchLogs(bookID string, limit int) ([]FetchLog, error)
}

// Cover status values carried on a Book.
const (
	CoverStatusPending = "pending"
	CoverStatusOK      = "ok"
	CoverStatusMissing = "missing"
)

// Cover record status values.
const (
	RecordStatusOK    = "ok"
	RecordStatusError = "error"
)

// Book represents a book whose cover may need resolution
type Book struct {
	ID                 string     `json:"id"` // ULID format
	Title              string     `json:"title"`
	Author             *string    `json:"author,omitempty"`
	ISBN               *string    `json:"isbn,omitempty"`
	ISBN10             *string    `json:"isbn10,omitempty"`
	ISBN13             *string    `json:"isbn13,omitempty"`
	GoogleBooksID      *string    `json:"google_books_id,omitempty"`
	UserID             *string    `json:"user_id,omitempty"`
	CoverURL           *string    `json:"cover_url,omitempty"`
	CoverStatus        *string    `json:"cover_status,omitempty"` // pending, ok, missing
	CoverAttempts      int        `json:"cover_attempts"`
	LastCoverAttemptAt *time.Time `json:"last_cover_attempt_at,omitempty"`
	AddedAt            time.Time  `json:"added_at"`
}

// CoverRecord is the persisted outcome of a resolution for one (book, source) pair.
// Writes are upserts keyed on that pair, never duplicated.
type CoverRecord struct {
	BookID          string    `json:"book_id"`
	Source          string    `json:"source"`
	SourceID        *string   `json:"source_id,omitempty"`
	SourceURL       *string   `json:"source_url,omitempty"`
	CDNURL          *string   `json:"cdn_url,omitempty"`
	StoragePath     *string   `json:"storage_path,omitempty"`
	Status          string    `json:"status"` // ok, error
	MatchConfidence *float64  `json:"match_confidence,omitempty"`
	MatchMethod     *string   `json:"match_method,omitempty"`
	ErrorMessage    *string   `json:"error_message,omitempty"`
	Attempts        int       `json:"attempts"`
	FetchedAt       time.Time `json:"fetched_at"`
}

// RateLimitState tracks the sliding request window for one external API
type RateLimitState struct {
	APIName               string     `json:"api_name"`
	WindowStart           time.Time  `json:"window_start"`
	WindowDurationSeconds int        `json:"window_duration_seconds"`
	RequestsCount         int        `json:"requests_count"`
	MaxRequests           int        `json:"max_requests"`
	BackoffUntil          *time.Time `json:"backoff_until,omitempty"`
	LastRequestAt         *time.Time `json:"last_request_at,omitempty"`
}

// FetchLog is an append-only audit row for one resolution or backfill run
type FetchLog struct {
	ID             string    `json:"id"` // ULID format
	BookID         *string   `json:"book_id,omitempty"`
	ISBNSearched   *string   `json:"isbn_searched,omitempty"`
	TitleSearched  *string   `json:"title_searched,omitempty"`
	AuthorSearched *string   `json:"author_searched,omitempty"`
	SourcesTried   []string  `json:"sources_tried"`
	SourceFound    *string   `json:"source_found,omitempty"`
	CoverURLFound  *string   `json:"cover_url_found,omitempty"`
	DurationMs     *int64    `json:"duration_ms,omitempty"`
	ErrorCode      *string   `json:"error_code,omitempty"`
	ErrorMessage   *string   `json:"error_message,omitempty"`
	TriggeredBy    string    `json:"triggered_by"` // auto, user_retry, backfill
	CreatedAt      time.Time `json:"created_at"`
}

// Global store instance
var GlobalStore Store

// InitializeStore initializes the database store based on configuration
func InitializeStore(dbType, path string, enableSQLite bool) error {
	var err error

	switch dbType {
	case "sqlite", "sqlite3":
		if !enableSQLite {
			return fmt.Errorf("SQLite3 is not enabled. To use SQLite3, you must explicitly enable it with --enable-sqlite3-i-know-the-risks or set 'enable_sqlite3_i_know_the_risks: true' in your config file. PebbleDB is the recommended database for production use")
		}
		GlobalStore, err = NewSQLiteStore(path)
		if err != nil {
			return fmt.Errorf("failed to initialize SQLite store: %w", err)
		}
	case "pebble", "":
		// PebbleDB is the default
		GlobalStore, err = NewPebbleStore(path)
		if err != nil {
			return fmt.Errorf("failed to initialize PebbleDB store: %w", err)
		}
	default:
		return fmt.Errorf("unsupported database type: %s (supported: pebble, sqlite)", dbType)
	}

	return nil
}

// CloseStore closes the global store
func CloseStore() error {
	if GlobalStore != nil {
		return GlobalStore.Close()
	}
	return nil
}
