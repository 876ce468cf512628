// file: internal/covers/resolver_test.go
// version: 1.0.0
// guid: 4d0f6b2c-8e5a-4b3d-a1f9-2c7e0b4d8f6a

package covers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"
	"time"

	"github.com/jdfalk/coverfetch/internal/database"
)

// stubSource returns a fixed candidate and counts invocations.
type stubSource struct {
	name  string
	cand  *Candidate
	calls int
}

func (s *stubSource) Name() string { return s.name }

func (s *stubSource) Resolve(*Identity) *Candidate {
	s.calls++
	return s.cand
}

// coverServer serves a plausible image at /good.jpg and an HTML page at /bad.
func coverServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/good.jpg":
			w.Header().Set("Content-Type", "image/jpeg")
			if r.Method == http.MethodHead {
				w.Header().Set("Content-Length", "2048")
				return
			}
			_, _ = w.Write(make([]byte, 2048))
		default:
			w.Header().Set("Content-Type", "text/html")
			_, _ = w.Write([]byte("<html>not an image</html>"))
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func testBook() *database.Book {
	author := "Patrick Rothfuss"
	isbn := "9780756404741"
	return &database.Book{
		ID:            "01HBOOK0000000000000000000",
		Title:         "The Name of the Wind",
		Author:        &author,
		ISBN:          &isbn,
		CoverAttempts: 2,
	}
}

func TestResolver_InputErrors(t *testing.T) {
	logged := 0
	store := &database.MockStore{
		AddFetchLogFunc: func(entry *database.FetchLog) error {
			logged++
			return nil
		},
	}
	r := NewResolver(store, nil, NewValidator(), nil)

	if _, err := r.Resolve(context.Background(), "", false, TriggerAuto); !errors.Is(err, ErrMissingBookID) {
		t.Errorf("expected ErrMissingBookID, got %v", err)
	}
	if _, err := r.Resolve(context.Background(), "unknown", false, TriggerAuto); !errors.Is(err, ErrBookNotFound) {
		t.Errorf("expected ErrBookNotFound, got %v", err)
	}
	if logged != 0 {
		t.Errorf("input errors must not write log entries, got %d", logged)
	}
}

func TestResolver_CachedShortCircuit(t *testing.T) {
	book := testBook()
	cdnURL := "https://cdn.example.com/covers/x.jpg"
	confidence := 1.0
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		GetOKCoverRecordFunc: func(bookID string) (*database.CoverRecord, error) {
			return &database.CoverRecord{
				BookID:          bookID,
				Source:          SourceGoogleBooks,
				CDNURL:          &cdnURL,
				Status:          database.RecordStatusOK,
				MatchConfidence: &confidence,
			}, nil
		},
	}

	src := &stubSource{name: "a"}
	r := NewResolver(store, []Source{src}, NewValidator(), nil)

	res, err := r.Resolve(context.Background(), book.ID, false, TriggerAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Cached || !res.Success {
		t.Errorf("expected cached success, got %+v", res)
	}
	if res.CoverURL != cdnURL {
		t.Errorf("expected cached URL, got %s", res.CoverURL)
	}
	if src.calls != 0 {
		t.Errorf("cached hit must make zero adapter calls, got %d", src.calls)
	}
}

func TestResolver_ForceRefreshSkipsCache(t *testing.T) {
	book := testBook()
	cdnURL := "https://cdn.example.com/covers/x.jpg"
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		GetOKCoverRecordFunc: func(bookID string) (*database.CoverRecord, error) {
			return &database.CoverRecord{BookID: bookID, Source: SourceGoogleBooks, CDNURL: &cdnURL}, nil
		},
	}

	src := &stubSource{name: "a"}
	r := NewResolver(store, []Source{src}, NewValidator(), nil)

	res, err := r.Resolve(context.Background(), book.ID, true, TriggerUserRetry)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Cached {
		t.Error("force refresh must not return a cached result")
	}
	if src.calls != 1 {
		t.Errorf("expected 1 adapter call, got %d", src.calls)
	}
}

func TestResolver_CascadeInvalidThenValid(t *testing.T) {
	server := coverServer(t)
	book := testBook()

	var savedRecord *database.CoverRecord
	var savedLog *database.FetchLog
	var bookStatus string
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		UpsertCoverRecordFunc: func(rec *database.CoverRecord) error {
			savedRecord = rec
			return nil
		},
		AddFetchLogFunc: func(entry *database.FetchLog) error {
			savedLog = entry
			return nil
		},
		UpdateBookCoverFunc: func(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error {
			bookStatus = coverStatus
			return nil
		},
	}

	invalid := &stubSource{name: "a", cand: &Candidate{Source: "a", URL: server.URL + "/bad", Confidence: 1.0, MatchMethod: MatchISBNExact}}
	valid := &stubSource{name: "b", cand: &Candidate{Source: "b", URL: server.URL + "/good.jpg", Confidence: 0.85, MatchMethod: MatchTitleAuthorFuzzy}}
	r := NewResolver(store, []Source{invalid, valid}, NewValidator(), nil)

	res, err := r.Resolve(context.Background(), book.ID, false, TriggerAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatalf("expected success, got %+v", res)
	}
	if res.Source != "b" {
		t.Errorf("expected winner b, got %s", res.Source)
	}
	if !reflect.DeepEqual(res.SourcesTried, []string{"a", "b"}) {
		t.Errorf("unexpected sourcesTried: %v", res.SourcesTried)
	}
	if res.CoverURL != server.URL+"/good.jpg" {
		t.Errorf("expected source URL without blob store, got %s", res.CoverURL)
	}

	if savedRecord == nil || savedRecord.Source != "b" || savedRecord.Status != database.RecordStatusOK {
		t.Errorf("unexpected cover record: %+v", savedRecord)
	}
	if bookStatus != database.CoverStatusOK {
		t.Errorf("expected book status ok, got %q", bookStatus)
	}
	if savedLog == nil || savedLog.SourceFound == nil || *savedLog.SourceFound != "b" {
		t.Errorf("unexpected fetch log: %+v", savedLog)
	}
	if savedLog.TriggeredBy != TriggerAuto {
		t.Errorf("expected trigger auto, got %q", savedLog.TriggeredBy)
	}
}

func TestResolver_FailurePersistsPrimarySourceRecord(t *testing.T) {
	book := testBook()

	var savedRecord *database.CoverRecord
	var savedLog *database.FetchLog
	var bookStatus string
	var bookAttempts int
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		UpsertCoverRecordFunc: func(rec *database.CoverRecord) error {
			savedRecord = rec
			return nil
		},
		AddFetchLogFunc: func(entry *database.FetchLog) error {
			savedLog = entry
			return nil
		},
		UpdateBookCoverFunc: func(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error {
			bookStatus = coverStatus
			bookAttempts = attempts
			if coverURL != nil {
				t.Errorf("failure must not set a cover URL")
			}
			return nil
		},
	}

	empty1 := &stubSource{name: SourceGoogleBooks}
	empty2 := &stubSource{name: SourceOpenLibrary}
	r := NewResolver(store, []Source{empty1, empty2}, NewValidator(), nil)

	res, err := r.Resolve(context.Background(), book.ID, false, TriggerAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Success {
		t.Fatal("expected failure result")
	}
	if !reflect.DeepEqual(res.SourcesTried, []string{SourceGoogleBooks, SourceOpenLibrary}) {
		t.Errorf("unexpected sourcesTried: %v", res.SourcesTried)
	}

	if savedRecord == nil {
		t.Fatal("expected a failure record")
	}
	if savedRecord.Source != SourceGoogleBooks {
		t.Errorf("failure record must be keyed to the primary source, got %q", savedRecord.Source)
	}
	if savedRecord.Status != database.RecordStatusError {
		t.Errorf("expected error status, got %q", savedRecord.Status)
	}
	if savedRecord.Attempts != book.CoverAttempts+1 {
		t.Errorf("expected attempts %d, got %d", book.CoverAttempts+1, savedRecord.Attempts)
	}

	if bookStatus != database.CoverStatusMissing {
		t.Errorf("expected book status missing, got %q", bookStatus)
	}
	if bookAttempts != book.CoverAttempts+1 {
		t.Errorf("expected book attempts %d, got %d", book.CoverAttempts+1, bookAttempts)
	}
	if savedLog == nil || savedLog.ErrorCode == nil || *savedLog.ErrorCode != ErrorNoCoverFound {
		t.Errorf("expected NO_COVER_FOUND log entry, got %+v", savedLog)
	}
}

func TestResolver_BlobRelay(t *testing.T) {
	server := coverServer(t)
	book := testBook()

	var savedRecord *database.CoverRecord
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		UpsertCoverRecordFunc: func(rec *database.CoverRecord) error {
			savedRecord = rec
			return nil
		},
	}

	src := &stubSource{name: "b", cand: &Candidate{Source: "b", URL: server.URL + "/good.jpg", Confidence: 1.0, MatchMethod: MatchISBNExact}}
	blobs := newMemoryBlobStore("https://cdn.example.com")
	r := NewResolver(store, []Source{src}, NewValidator(), blobs)

	res, err := r.Resolve(context.Background(), book.ID, false, TriggerAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantKey := book.ID + "/b.jpg"
	if res.CoverURL != "https://cdn.example.com/"+wantKey {
		t.Errorf("expected relayed URL, got %s", res.CoverURL)
	}
	if len(blobs.objects[wantKey]) != 2048 {
		t.Errorf("expected 2048 relayed bytes, got %d", len(blobs.objects[wantKey]))
	}
	if savedRecord == nil || savedRecord.StoragePath == nil || *savedRecord.StoragePath != wantKey {
		t.Errorf("expected storage path %q on record, got %+v", wantKey, savedRecord)
	}
	if savedRecord.SourceURL == nil || *savedRecord.SourceURL != server.URL+"/good.jpg" {
		t.Errorf("expected original source URL on record, got %+v", savedRecord.SourceURL)
	}
}

func TestResolver_BlobRelayFailureFallsBack(t *testing.T) {
	server := coverServer(t)
	book := testBook()

	var savedRecord *database.CoverRecord
	store := &database.MockStore{
		GetBookByIDFunc: func(id string) (*database.Book, error) { return book, nil },
		UpsertCoverRecordFunc: func(rec *database.CoverRecord) error {
			savedRecord = rec
			return nil
		},
	}

	src := &stubSource{name: "b", cand: &Candidate{Source: "b", URL: server.URL + "/good.jpg", Confidence: 1.0, MatchMethod: MatchISBNExact}}
	blobs := newMemoryBlobStore("https://cdn.example.com")
	blobs.err = errors.New("bucket unavailable")
	r := NewResolver(store, []Source{src}, NewValidator(), blobs)

	res, err := r.Resolve(context.Background(), book.ID, false, TriggerAuto)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Success {
		t.Fatal("relay failure must not fail the resolution")
	}
	if res.CoverURL != server.URL+"/good.jpg" {
		t.Errorf("expected fallback to source URL, got %s", res.CoverURL)
	}
	if savedRecord.StoragePath != nil {
		t.Errorf("expected no storage path after relay failure, got %q", *savedRecord.StoragePath)
	}
}

func TestResolver_PersistenceFailureStillReturnsOutcome(t *testing.T) {
	server := coverServer(t)
	book := testBook()

	store := &database.MockStore{
		GetBookByIDFunc:       func(id string) (*database.Book, error) { return book, nil },
		UpsertCoverRecordFunc: func(rec *database.CoverRecord) error { return errors.New("write failed") },
		AddFetchLogFunc:       func(entry *database.FetchLog) error { return errors.New("write failed") },
		UpdateBookCoverFunc: func(id string, coverURL *string, coverStatus string, attempts int, lastAttemptAt time.Time) error {
			return errors.New("write failed")
		},
	}

	src := &stubSource{name: "b", cand: &Candidate{Source: "b", URL: server.URL + "/good.jpg", Confidence: 1.0, MatchMethod: MatchISBNExact}}
	r := NewResolver(store, []Source{src}, NewValidator(), nil)

	res, err := r.Resolve(context.Background(), book.ID, false, TriggerAuto)
	if err != nil {
		t.Fatalf("persistence failures must not fail the call: %v", err)
	}
	if !res.Success {
		t.Errorf("expected in-memory success outcome, got %+v", res)
	}
}
