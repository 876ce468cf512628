// file: internal/server/server_test.go
// version: 1.0.0
// guid: 0e6c2a8b-4f1d-4c9e-b7a5-2d8f0c4e6a2b

package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jdfalk/coverfetch/internal/covers"
	"github.com/jdfalk/coverfetch/internal/database"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T, store database.Store) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	resolver := covers.NewResolver(store, nil, covers.NewValidator(), nil)
	backfiller := covers.NewBackfiller(store, resolver)
	return NewServer(store, resolver, backfiller)
}

func doJSON(t *testing.T, s *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	store := &database.MockStore{
		CountBooksFunc: func() (int, error) { return 7, nil },
	}
	s := newTestServer(t, store)

	w := doJSON(t, s, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "healthy", resp["status"])
	assert.Equal(t, float64(7), resp["books"])
}

func TestResolveCover_MissingBookID(t *testing.T) {
	s := newTestServer(t, &database.MockStore{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/covers/resolve", map[string]any{})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "book_id is required")
}

func TestResolveCover_UnknownBook(t *testing.T) {
	s := newTestServer(t, &database.MockStore{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/covers/resolve", map[string]any{"book_id": "nope"})
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Body.String(), "Book not found")
}

func TestResolveCover_CachedResult(t *testing.T) {
	book := &database.Book{ID: "b1", Title: "Cached Book"}
	cdnURL := "https://cdn.example.com/covers/b1.jpg"
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		GetOKCoverRecordFunc: func(bookID string) (*database.CoverRecord, error) {
			return &database.CoverRecord{BookID: bookID, Source: covers.SourceGoogleBooks, CDNURL: &cdnURL}, nil
		},
	}
	s := newTestServer(t, store)

	w := doJSON(t, s, http.MethodPost, "/api/v1/covers/resolve", map[string]any{"book_id": "b1"})
	require.Equal(t, http.StatusOK, w.Code)

	var res covers.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.True(t, res.Success)
	assert.True(t, res.Cached)
	assert.Equal(t, cdnURL, res.CoverURL)
}

func TestResolveCover_ForceRefreshTrigger(t *testing.T) {
	book := &database.Book{ID: "b1", Title: "Retry Me"}
	var trigger string
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		AddFetchLogFunc: func(entry *database.FetchLog) error {
			trigger = entry.TriggeredBy
			return nil
		},
	}
	s := newTestServer(t, store)

	w := doJSON(t, s, http.MethodPost, "/api/v1/covers/resolve", map[string]any{
		"book_id":       "b1",
		"force_refresh": true,
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, covers.TriggerUserRetry, trigger)

	// No sources configured, so this resolves to a failure result.
	var res covers.Result
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.False(t, res.Success)
}

func TestBackfillCovers_EmptyBody(t *testing.T) {
	s := newTestServer(t, &database.MockStore{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/covers/backfill", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var report covers.BackfillReport
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &report))
	assert.Equal(t, 0, report.Processed)
}

func TestBackfillCovers_PassesOptions(t *testing.T) {
	var gotLimit int
	var gotUser *string
	var gotCutoff *time.Time
	store := &database.MockStore{
		ListBooksNeedingCoversFunc: func(limit int, userID *string, attemptedBefore *time.Time) ([]database.Book, error) {
			gotLimit = limit
			gotUser = userID
			gotCutoff = attemptedBefore
			return nil, nil
		},
	}
	s := newTestServer(t, store)

	skip := false
	w := doJSON(t, s, http.MethodPost, "/api/v1/covers/backfill", map[string]any{
		"limit":                10,
		"skip_recent_failures": skip,
		"user_id":              "user-1",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 10, gotLimit)
	require.NotNil(t, gotUser)
	assert.Equal(t, "user-1", *gotUser)
	assert.Nil(t, gotCutoff)
}

func TestCreateBook(t *testing.T) {
	store := &database.MockStore{
		CreateBookFunc: func(book *database.Book) (*database.Book, error) {
			book.ID = "01HNEWBOOK000000000000000"
			return book, nil
		},
	}
	s := newTestServer(t, store)

	w := doJSON(t, s, http.MethodPost, "/api/v1/books", map[string]any{
		"title":  "New Book",
		"isbn13": "9780306406157",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	var book database.Book
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &book))
	assert.Equal(t, "New Book", book.Title)
	require.NotNil(t, book.CoverStatus)
	assert.Equal(t, database.CoverStatusPending, *book.CoverStatus)
}

func TestCreateBook_MissingTitle(t *testing.T) {
	s := newTestServer(t, &database.MockStore{})

	w := doJSON(t, s, http.MethodPost, "/api/v1/books", map[string]any{"isbn": "123"})
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGetBookCovers(t *testing.T) {
	store := &database.MockStore{
		GetCoverRecordsFunc: func(bookID string) ([]database.CoverRecord, error) {
			return []database.CoverRecord{{BookID: bookID, Source: covers.SourceOpenLibrary, Status: database.RecordStatusOK}}, nil
		},
	}
	s := newTestServer(t, store)

	w := doJSON(t, s, http.MethodGet, "/api/v1/books/b1/covers", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), covers.SourceOpenLibrary)
}
