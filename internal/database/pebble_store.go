// file: internal/database/pebble_store.go
// version: 1.1.0
// guid: 7c3e9a1b-5d2f-4b8c-9a6e-2f0d4b7c8e1a

package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/cockroachdb/pebble/v2"
)

// PebbleStore implements the Store interface using PebbleDB (LSM key-value store)
//
// Key Schema:
// - book:<id>                    -> Book JSON
// - cover:<book_id>:<source>     -> CoverRecord JSON
// - ratelimit:<api_name>         -> RateLimitState JSON
// - fetchlog:<book_id>:<ulid>    -> FetchLog JSON ("-" for batch-level entries)

type PebbleStore struct {
	db *pebble.DB
}

// NewPebbleStore creates a new PebbleDB store
func NewPebbleStore(path string) (*PebbleStore, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open PebbleDB: %w", err)
	}
	return &PebbleStore{db: db}, nil
}

// Close closes the database
func (p *PebbleStore) Close() error {
	return p.db.Close()
}

// Reset deletes all keys
func (p *PebbleStore) Reset() error {
	for _, prefix := range []string{"book:", "cover:", "ratelimit:", "fetchlog:"} {
		if err := p.db.DeleteRange([]byte(prefix), []byte(prefix+"\xff"), pebble.Sync); err != nil {
			return err
		}
	}
	return nil
}

func (p *PebbleStore) getJSON(key string, out interface{}) (bool, error) {
	value, closer, err := p.db.Get([]byte(key))
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()

	if err := json.Unmarshal(value, out); err != nil {
		return false, err
	}
	return true, nil
}

func (p *PebbleStore) setJSON(key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return p.db.Set([]byte(key), data, pebble.Sync)
}

// Book operations

func (p *PebbleStore) CreateBook(book *Book) (*Book, error) {
	if book.ID == "" {
		id, err := newULID()
		if err != nil {
			return nil, fmt.Errorf("failed to generate book ID: %w", err)
		}
		book.ID = id
	}
	if book.AddedAt.IsZero() {
		book.AddedAt = time.Now()
	}

	if err := p.setJSON("book:"+book.ID, book); err != nil {
		return nil, err
	}
	return book, nil
}

func (p *PebbleStore) GetBookByID(id string) (*Book, error) {
	var book Book
	found, err := p.getJSON("book:"+id, &book)
	if err != nil || !found {
		return nil, err
	}
	return &book, nil
}

func (p *PebbleStore) UpdateBookCover(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error {
	book, err := p.GetBookByID(id)
	if err != nil {
		return err
	}
	if book == nil {
		return fmt.Errorf("book not found: %s", id)
	}

	if coverURL != nil {
		book.CoverURL = coverURL
	}
	book.CoverStatus = &coverStatus
	book.CoverAttempts = attempts
	book.LastCoverAttemptAt = &lastAttemptAt

	return p.setJSON("book:"+id, book)
}

func (p *PebbleStore) ListBooksNeedingCovers(limit int, userID *string, attemptedBefore *time.Time) ([]Book, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("book:"),
		UpperBound: []byte("book:\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var books []Book
	for iter.First(); iter.Valid(); iter.Next() {
		var book Book
		if err := json.Unmarshal(iter.Value(), &book); err != nil {
			return nil, err
		}

		if book.CoverStatus != nil && *book.CoverStatus != CoverStatusPending && *book.CoverStatus != CoverStatusMissing {
			continue
		}
		if userID != nil && (book.UserID == nil || *book.UserID != *userID) {
			continue
		}
		if attemptedBefore != nil && book.LastCoverAttemptAt != nil && !book.LastCoverAttemptAt.Before(*attemptedBefore) {
			continue
		}
		books = append(books, book)
	}

	sort.Slice(books, func(i, j int) bool {
		return books[i].AddedAt.After(books[j].AddedAt)
	})
	if limit > 0 && len(books) > limit {
		books = books[:limit]
	}
	return books, nil
}

func (p *PebbleStore) CountBooks() (int, error) {
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("book:"),
		UpperBound: []byte("book:\xff"),
	})
	if err != nil {
		return 0, err
	}
	defer iter.Close()

	count := 0
	for iter.First(); iter.Valid(); iter.Next() {
		count++
	}
	return count, nil
}

// Cover record operations

func coverKey(bookID, source string) string {
	return fmt.Sprintf("cover:%s:%s", bookID, source)
}

func (p *PebbleStore) GetCoverRecord(bookID, source string) (*CoverRecord, error) {
	var rec CoverRecord
	found, err := p.getJSON(coverKey(bookID, source), &rec)
	if err != nil || !found {
		return nil, err
	}
	return &rec, nil
}

func (p *PebbleStore) GetOKCoverRecord(bookID string) (*CoverRecord, error) {
	records, err := p.GetCoverRecords(bookID)
	if err != nil {
		return nil, err
	}
	for i := range records {
		if records[i].Status == RecordStatusOK {
			return &records[i], nil
		}
	}
	return nil, nil
}

func (p *PebbleStore) UpsertCoverRecord(rec *CoverRecord) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}
	return p.setJSON(coverKey(rec.BookID, rec.Source), rec)
}

func (p *PebbleStore) GetCoverRecords(bookID string) ([]CoverRecord, error) {
	prefix := "cover:" + bookID + ":"
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var records []CoverRecord
	for iter.First(); iter.Valid(); iter.Next() {
		var rec CoverRecord
		if err := json.Unmarshal(iter.Value(), &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}

	// Most recent outcome first
	sort.Slice(records, func(i, j int) bool {
		return records[i].FetchedAt.After(records[j].FetchedAt)
	})
	return records, nil
}

// Rate limit operations

func (p *PebbleStore) GetRateLimit(apiName string) (*RateLimitState, error) {
	var state RateLimitState
	found, err := p.getJSON("ratelimit:"+apiName, &state)
	if err != nil || !found {
		return nil, err
	}
	return &state, nil
}

func (p *PebbleStore) PutRateLimit(state *RateLimitState) error {
	return p.setJSON("ratelimit:"+state.APIName, state)
}

// Fetch log operations

func (p *PebbleStore) AddFetchLog(entry *FetchLog) error {
	if entry.ID == "" {
		id, err := newULID()
		if err != nil {
			return fmt.Errorf("failed to generate log ID: %w", err)
		}
		entry.ID = id
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	scope := "-"
	if entry.BookID != nil {
		scope = *entry.BookID
	}
	return p.setJSON(fmt.Sprintf("fetchlog:%s:%s", scope, entry.ID), entry)
}

func (p *PebbleStore) GetFetchLogs(bookID string, limit int) ([]FetchLog, error) {
	prefix := "fetchlog:" + bookID + ":"
	iter, err := p.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(prefix),
		UpperBound: []byte(prefix + "\xff"),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	// ULID keys sort oldest first; walk backwards for newest-first.
	var logs []FetchLog
	for iter.Last(); iter.Valid(); iter.Prev() {
		var entry FetchLog
		if err := json.Unmarshal(iter.Value(), &entry); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
		if limit > 0 && len(logs) >= limit {
			break
		}
	}
	return logs, nil
}
