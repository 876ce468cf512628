// file: internal/database/sqlite_store.go
// version: 1.2.0
// guid: 5a1f8c3e-7b2d-4e9a-8c4f-1d6b9e0a3c5d

package database

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

type rowScanner interface {
	Scan(dest ...interface{}) error
}

const bookSelectColumns = `
	id, title, author, isbn, isbn10, isbn13, google_books_id, user_id,
	cover_url, cover_status, cover_attempts, last_cover_attempt_at, added_at
`

func scanBook(scanner rowScanner, book *Book) error {
	return scanner.Scan(
		&book.ID, &book.Title, &book.Author, &book.ISBN, &book.ISBN10,
		&book.ISBN13, &book.GoogleBooksID, &book.UserID, &book.CoverURL,
		&book.CoverStatus, &book.CoverAttempts, &book.LastCoverAttemptAt,
		&book.AddedAt,
	)
}

const coverRecordSelectColumns = `
	book_id, source, source_id, source_url, cdn_url, storage_path, status,
	match_confidence, match_method, error_message, attempts, fetched_at
`

func scanCoverRecord(scanner rowScanner, rec *CoverRecord) error {
	return scanner.Scan(
		&rec.BookID, &rec.Source, &rec.SourceID, &rec.SourceURL, &rec.CDNURL,
		&rec.StoragePath, &rec.Status, &rec.MatchConfidence, &rec.MatchMethod,
		&rec.ErrorMessage, &rec.Attempts, &rec.FetchedAt,
	)
}

// SQLiteStore implements the Store interface using SQLite3
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore creates a new SQLite store
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping SQLite database: %w", err)
	}

	store := &SQLiteStore{db: db}

	if err := store.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	return store, nil
}

// createTables creates all required tables
func (s *SQLiteStore) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS books (
		id TEXT PRIMARY KEY,
		title TEXT NOT NULL,
		author TEXT,
		isbn TEXT,
		isbn10 TEXT,
		isbn13 TEXT,
		google_books_id TEXT,
		user_id TEXT,
		cover_url TEXT,
		cover_status TEXT,
		cover_attempts INTEGER NOT NULL DEFAULT 0,
		last_cover_attempt_at DATETIME,
		added_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
	);

	CREATE INDEX IF NOT EXISTS idx_books_cover_status ON books(cover_status);
	CREATE INDEX IF NOT EXISTS idx_books_user ON books(user_id);
	CREATE INDEX IF NOT EXISTS idx_books_added ON books(added_at);

	CREATE TABLE IF NOT EXISTS book_covers (
		book_id TEXT NOT NULL,
		source TEXT NOT NULL,
		source_id TEXT,
		source_url TEXT,
		cdn_url TEXT,
		storage_path TEXT,
		status TEXT NOT NULL,
		match_confidence REAL,
		match_method TEXT,
		error_message TEXT,
		attempts INTEGER NOT NULL DEFAULT 0,
		fetched_at DATETIME NOT NULL,
		PRIMARY KEY (book_id, source),
		FOREIGN KEY (book_id) REFERENCES books(id)
	);

	CREATE INDEX IF NOT EXISTS idx_book_covers_status ON book_covers(book_id, status);

	CREATE TABLE IF NOT EXISTS api_rate_limits (
		api_name TEXT PRIMARY KEY,
		window_start DATETIME NOT NULL,
		window_duration_seconds INTEGER NOT NULL,
		requests_count INTEGER NOT NULL DEFAULT 0,
		max_requests INTEGER NOT NULL,
		backoff_until DATETIME,
		last_request_at DATETIME
	);

	CREATE TABLE IF NOT EXISTS cover_fetch_logs (
		id TEXT PRIMARY KEY,
		book_id TEXT,
		isbn_searched TEXT,
		title_searched TEXT,
		author_searched TEXT,
		sources_tried TEXT NOT NULL,
		source_found TEXT,
		cover_url_found TEXT,
		duration_ms INTEGER,
		error_code TEXT,
		error_message TEXT,
		triggered_by TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_fetch_logs_book ON cover_fetch_logs(book_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// Reset drops all data
func (s *SQLiteStore) Reset() error {
	_, err := s.db.Exec(`
		DELETE FROM cover_fetch_logs;
		DELETE FROM api_rate_limits;
		DELETE FROM book_covers;
		DELETE FROM books;
	`)
	return err
}

// Book operations

func (s *SQLiteStore) CreateBook(book *Book) (*Book, error) {
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

	_, err := s.db.Exec(`
		INSERT INTO books (id, title, author, isbn, isbn10, isbn13, google_books_id,
			user_id, cover_url, cover_status, cover_attempts, last_cover_attempt_at, added_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		book.ID, book.Title, book.Author, book.ISBN, book.ISBN10, book.ISBN13,
		book.GoogleBooksID, book.UserID, book.CoverURL, book.CoverStatus,
		book.CoverAttempts, book.LastCoverAttemptAt, book.AddedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to insert book: %w", err)
	}
	return book, nil
}

func (s *SQLiteStore) GetBookByID(id string) (*Book, error) {
	row := s.db.QueryRow(`SELECT `+bookSelectColumns+` FROM books WHERE id = ?`, id)

	var book Book
	if err := scanBook(row, &book); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &book, nil
}

func (s *SQLiteStore) UpdateBookCover(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error {
	result, err := s.db.Exec(`
		UPDATE books
		SET cover_url = COALESCE(?, cover_url), cover_status = ?,
			cover_attempts = ?, last_cover_attempt_at = ?
		WHERE id = ?`,
		coverURL, coverStatus, attempts, lastAttemptAt, id,
	)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("book not found: %s", id)
	}
	return nil
}

func (s *SQLiteStore) ListBooksNeedingCovers(limit int, userID *string, attemptedBefore *time.Time) ([]Book, error) {
	query := `SELECT ` + bookSelectColumns + ` FROM books
		WHERE (cover_status IS NULL OR cover_status IN ('pending', 'missing'))`
	args := []interface{}{}

	if userID != nil {
		query += ` AND user_id = ?`
		args = append(args, *userID)
	}
	if attemptedBefore != nil {
		query += ` AND (last_cover_attempt_at IS NULL OR last_cover_attempt_at < ?)`
		args = append(args, *attemptedBefore)
	}
	query += ` ORDER BY added_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var books []Book
	for rows.Next() {
		var book Book
		if err := scanBook(rows, &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, rows.Err()
}

func (s *SQLiteStore) CountBooks() (int, error) {
	var count int
	err := s.db.QueryRow(`SELECT COUNT(*) FROM books`).Scan(&count)
	return count, err
}

// Cover record operations

func (s *SQLiteStore) GetCoverRecord(bookID, source string) (*CoverRecord, error) {
	row := s.db.QueryRow(`SELECT `+coverRecordSelectColumns+`
		FROM book_covers WHERE book_id = ? AND source = ?`, bookID, source)

	var rec CoverRecord
	if err := scanCoverRecord(row, &rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) GetOKCoverRecord(bookID string) (*CoverRecord, error) {
	row := s.db.QueryRow(`SELECT `+coverRecordSelectColumns+`
		FROM book_covers WHERE book_id = ? AND status = 'ok'
		ORDER BY fetched_at DESC LIMIT 1`, bookID)

	var rec CoverRecord
	if err := scanCoverRecord(row, &rec); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &rec, nil
}

func (s *SQLiteStore) UpsertCoverRecord(rec *CoverRecord) error {
	if rec.FetchedAt.IsZero() {
		rec.FetchedAt = time.Now()
	}
	_, err := s.db.Exec(`
		INSERT INTO book_covers (book_id, source, source_id, source_url, cdn_url,
			storage_path, status, match_confidence, match_method, error_message,
			attempts, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id, source) DO UPDATE SET
			source_id = excluded.source_id,
			source_url = excluded.source_url,
			cdn_url = excluded.cdn_url,
			storage_path = excluded.storage_path,
			status = excluded.status,
			match_confidence = excluded.match_confidence,
			match_method = excluded.match_method,
			error_message = excluded.error_message,
			attempts = excluded.attempts,
			fetched_at = excluded.fetched_at`,
		rec.BookID, rec.Source, rec.SourceID, rec.SourceURL, rec.CDNURL,
		rec.StoragePath, rec.Status, rec.MatchConfidence, rec.MatchMethod,
		rec.ErrorMessage, rec.Attempts, rec.FetchedAt,
	)
	return err
}

func (s *SQLiteStore) GetCoverRecords(bookID string) ([]CoverRecord, error) {
	rows, err := s.db.Query(`SELECT `+coverRecordSelectColumns+`
		FROM book_covers WHERE book_id = ? ORDER BY fetched_at DESC`, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []CoverRecord
	for rows.Next() {
		var rec CoverRecord
		if err := scanCoverRecord(rows, &rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Rate limit operations

func (s *SQLiteStore) GetRateLimit(apiName string) (*RateLimitState, error) {
	row := s.db.QueryRow(`
		SELECT api_name, window_start, window_duration_seconds, requests_count,
			max_requests, backoff_until, last_request_at
		FROM api_rate_limits WHERE api_name = ?`, apiName)

	var state RateLimitState
	if err := row.Scan(&state.APIName, &state.WindowStart, &state.WindowDurationSeconds,
		&state.RequestsCount, &state.MaxRequests, &state.BackoffUntil,
		&state.LastRequestAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &state, nil
}

func (s *SQLiteStore) PutRateLimit(state *RateLimitState) error {
	_, err := s.db.Exec(`
		INSERT INTO api_rate_limits (api_name, window_start, window_duration_seconds,
			requests_count, max_requests, backoff_until, last_request_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(api_name) DO UPDATE SET
			window_start = excluded.window_start,
			window_duration_seconds = excluded.window_duration_seconds,
			requests_count = excluded.requests_count,
			max_requests = excluded.max_requests,
			backoff_until = excluded.backoff_until,
			last_request_at = excluded.last_request_at`,
		state.APIName, state.WindowStart, state.WindowDurationSeconds,
		state.RequestsCount, state.MaxRequests, state.BackoffUntil,
		state.LastRequestAt,
	)
	return err
}

// Fetch log operations

func (s *SQLiteStore) AddFetchLog(entry *FetchLog) error {
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

	sourcesTried, err := json.Marshal(entry.SourcesTried)
	if err != nil {
		return err
	}

	_, err = s.db.Exec(`
		INSERT INTO cover_fetch_logs (id, book_id, isbn_searched, title_searched,
			author_searched, sources_tried, source_found, cover_url_found,
			duration_ms, error_code, error_message, triggered_by, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.ID, entry.BookID, entry.ISBNSearched, entry.TitleSearched,
		entry.AuthorSearched, string(sourcesTried), entry.SourceFound,
		entry.CoverURLFound, entry.DurationMs, entry.ErrorCode,
		entry.ErrorMessage, entry.TriggeredBy, entry.CreatedAt,
	)
	return err
}

func (s *SQLiteStore) GetFetchLogs(bookID string, limit int) ([]FetchLog, error) {
	rows, err := s.db.Query(`
		SELECT id, book_id, isbn_searched, title_searched, author_searched,
			sources_tried, source_found, cover_url_found, duration_ms,
			error_code, error_message, triggered_by, created_at
		FROM cover_fetch_logs WHERE book_id = ?
		ORDER BY created_at DESC LIMIT ?`, bookID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var logs []FetchLog
	for rows.Next() {
		var entry FetchLog
		var sourcesTried string
		if err := rows.Scan(&entry.ID, &entry.BookID, &entry.ISBNSearched,
			&entry.TitleSearched, &entry.AuthorSearched, &sourcesTried,
			&entry.SourceFound, &entry.CoverURLFound, &entry.DurationMs,
			&entry.ErrorCode, &entry.ErrorMessage, &entry.TriggeredBy,
			&entry.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(sourcesTried), &entry.SourcesTried); err != nil {
			return nil, err
		}
		logs = append(logs, entry)
	}
	return logs, rows.Err()
}
