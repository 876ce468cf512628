// file: internal/database/mock_store.go
// version: 1.0.0
// guid: 4b8d2f7a-9e1c-4d6b-8a3f-5c0e7b2d9f4a

package database

import (
	"time"
)

// MockStore is a simple mock implementation for testing services
type MockStore struct {
	// Book methods
	CreateBookFunc             func(book *Book) (*Book, error)
	GetBookByIDFunc            func(id string) (*Book, error)
	UpdateBookCoverFunc        func(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error
	ListBooksNeedingCoversFunc func(limit int, userID *string, attemptedBefore *time.Time) ([]Book, error)
	CountBooksFunc             func() (int, error)

	// Cover record methods
	GetCoverRecordFunc    func(bookID, source string) (*CoverRecord, error)
	GetOKCoverRecordFunc  func(bookID string) (*CoverRecord, error)
	UpsertCoverRecordFunc func(rec *CoverRecord) error
	GetCoverRecordsFunc   func(bookID string) ([]CoverRecord, error)

	// Rate limit methods
	GetRateLimitFunc func(apiName string) (*RateLimitState, error)
	PutRateLimitFunc func(state *RateLimitState) error

	// Fetch log methods
	AddFetchLogFunc  func(entry *FetchLog) error
	GetFetchLogsFunc func(bookID string, limit int) ([]FetchLog, error)
}

func (m *MockStore) Close() error { return nil }
func (m *MockStore) Reset() error { return nil }

func (m *MockStore) CreateBook(book *Book) (*Book, error) {
	if m.CreateBookFunc != nil {
		return m.CreateBookFunc(book)
	}
	return book, nil
}

func (m *MockStore) GetBookByID(id string) (*Book, error) {
	if m.GetBookByIDFunc != nil {
		return m.GetBookByIDFunc(id)
	}
	return nil, nil
}

func (m *MockStore) UpdateBookCover(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error {
	if m.UpdateBookCoverFunc != nil {
		return m.UpdateBookCoverFunc(id, coverURL, coverStatus, attempts, lastAttemptAt)
	}
	return nil
}

func (m *MockStore) ListBooksNeedingCovers(limit int, userID *string, attemptedBefore *time.Time) ([]Book, error) {
	if m.ListBooksNeedingCoversFunc != nil {
		return m.ListBooksNeedingCoversFunc(limit, userID, attemptedBefore)
	}
	return nil, nil
}

func (m *MockStore) CountBooks() (int, error) {
	if m.CountBooksFunc != nil {
		return m.CountBooksFunc()
	}
	return 0, nil
}

func (m *MockStore) GetCoverRecord(bookID, source string) (*CoverRecord, error) {
	if m.GetCoverRecordFunc != nil {
		return m.GetCoverRecordFunc(bookID, source)
	}
	return nil, nil
}

func (m *MockStore) GetOKCoverRecord(bookID string) (*CoverRecord, error) {
	if m.GetOKCoverRecordFunc != nil {
		return m.GetOKCoverRecordFunc(bookID)
	}
	return nil, nil
}

func (m *MockStore) UpsertCoverRecord(rec *CoverRecord) error {
	if m.UpsertCoverRecordFunc != nil {
		return m.UpsertCoverRecordFunc(rec)
	}
	return nil
}

func (m *MockStore) GetCoverRecords(bookID string) ([]CoverRecord, error) {
	if m.GetCoverRecordsFunc != nil {
		return m.GetCoverRecordsFunc(bookID)
	}
	return nil, nil
}

func (m *MockStore) GetRateLimit(apiName string) (*RateLimitState, error) {
	if m.GetRateLimitFunc != nil {
		return m.GetRateLimitFunc(apiName)
	}
	return nil, nil
}

func (m *MockStore) PutRateLimit(state *RateLimitState) error {
	if m.PutRateLimitFunc != nil {
		return m.PutRateLimitFunc(state)
	}
	return nil
}

func (m *MockStore) AddFetchLog(entry *FetchLog) error {
	if m.AddFetchLogFunc != nil {
		return m.AddFetchLogFunc(entry)
	}
	return nil
}

func (m *MockStore) GetFetchLogs(bookID string, limit int) ([]FetchLog, error) {
	if m.GetFetchLogsFunc != nil {
		return m.GetFetchLogsFunc(bookID, limit)
	}
	return nil, nil
}

// Verify interface compliance
var _ Store = (*MockStore)(nil)
