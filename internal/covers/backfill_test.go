// file: internal/covers/backfill_test.go
// version: 1.0.0
// guid: 8a4c0e6f-2d9b-4f7c-a5e1-6b3d0f8a4c2e

package covers

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jdfalk/coverfetch/internal/database"
)

// quietBackfiller builds a backfiller without the inter-book delay.
func quietBackfiller(store database.Store, resolver *Resolver) *Backfiller {
	b := NewBackfiller(store, resolver)
	b.delay = 0
	return b
}

func TestBackfiller_MaxAttemptsAlwaysSkipped(t *testing.T) {
	exhausted := database.Book{ID: "book-1", Title: "Tried Too Often", CoverAttempts: 5}

	resolverCalls := 0
	store := &database.MockStore{
		ListBooksNeedingCoversFunc: func(limit int, userID *string, attemptedBefore *time.Time) ([]database.Book, error) {
			return []database.Book{exhausted}, nil
		},
		GetBookByIDFunc: func(id string) (*database.Book, error) {
			resolverCalls++
			return &exhausted, nil
		},
	}

	b := quietBackfiller(store, NewResolver(store, nil, NewValidator(), nil))

	// Recency filters off: the attempts ceiling must still apply.
	report, err := b.Run(context.Background(), BackfillOptions{SkipRecentFailures: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 1 || report.Skipped != 1 {
		t.Errorf("expected 1 processed 1 skipped, got %+v", report)
	}
	if report.Details[0].Status != "skipped" || report.Details[0].Error != "Max attempts reached" {
		t.Errorf("unexpected skip detail: %+v", report.Details[0])
	}
	if resolverCalls != 0 {
		t.Errorf("skipped books must not be resolved, got %d calls", resolverCalls)
	}
}

func TestBackfiller_AggregatesOutcomes(t *testing.T) {
	cdnURL := "https://cdn.example.com/covers/b1.jpg"
	books := []database.Book{
		{ID: "b1", Title: "Has Cached Cover"},
		{ID: "b2", Title: "No Cover Anywhere"},
		{ID: "b3", Title: "Exhausted", CoverAttempts: 7},
	}

	store := &database.MockStore{
		ListBooksNeedingCoversFunc: func(limit int, userID *string, attemptedBefore *time.Time) ([]database.Book, error) {
			return books, nil
		},
		GetBookByIDFunc: func(id string) (*database.Book, error) {
			for i := range books {
				if books[i].ID == id {
					return &books[i], nil
				}
			}
			return nil, nil
		},
		GetOKCoverRecordFunc: func(bookID string) (*database.CoverRecord, error) {
			if bookID == "b1" {
				return &database.CoverRecord{BookID: bookID, Source: SourceGoogleBooks, CDNURL: &cdnURL}, nil
			}
			return nil, nil
		},
	}

	var progress []int
	b := quietBackfiller(store, NewResolver(store, nil, NewValidator(), nil))
	report, err := b.Run(context.Background(), BackfillOptions{
		SkipRecentFailures: false,
		OnProgress:         func(processed, total int) { progress = append(progress, processed) },
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if report.Processed != 3 || report.Success != 1 || report.Failed != 1 || report.Skipped != 1 {
		t.Errorf("unexpected report: %+v", report)
	}
	if report.Details[0].CoverURL != cdnURL {
		t.Errorf("expected cover URL in success detail, got %+v", report.Details[0])
	}
	if report.Details[1].Status != "failed" {
		t.Errorf("expected failed detail, got %+v", report.Details[1])
	}
	if len(progress) != 3 || progress[2] != 3 {
		t.Errorf("unexpected progress callbacks: %v", progress)
	}
}

func TestBackfiller_AppliesDefaults(t *testing.T) {
	var gotLimit int
	var gotCutoff *time.Time
	store := &database.MockStore{
		ListBooksNeedingCoversFunc: func(limit int, userID *string, attemptedBefore *time.Time) ([]database.Book, error) {
			gotLimit = limit
			gotCutoff = attemptedBefore
			return nil, nil
		},
	}

	b := quietBackfiller(store, NewResolver(store, nil, NewValidator(), nil))
	if _, err := b.Run(context.Background(), NewBackfillOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if gotLimit != DefaultBackfillLimit {
		t.Errorf("expected limit %d, got %d", DefaultBackfillLimit, gotLimit)
	}
	if gotCutoff == nil {
		t.Fatal("expected a recency cutoff")
	}
	wantCutoff := time.Now().AddDate(0, 0, -DefaultMinDaysSince)
	if gotCutoff.Sub(wantCutoff) > time.Minute || wantCutoff.Sub(*gotCutoff) > time.Minute {
		t.Errorf("unexpected cutoff: %v", gotCutoff)
	}
}

func TestBackfiller_WritesSummaryLog(t *testing.T) {
	var logs []database.FetchLog
	store := &database.MockStore{
		ListBooksNeedingCoversFunc: func(limit int, userID *string, attemptedBefore *time.Time) ([]database.Book, error) {
			return []database.Book{{ID: "b1", Title: "X", CoverAttempts: 5}}, nil
		},
		AddFetchLogFunc: func(entry *database.FetchLog) error {
			logs = append(logs, *entry)
			return nil
		},
	}

	b := quietBackfiller(store, NewResolver(store, nil, NewValidator(), nil))
	if _, err := b.Run(context.Background(), NewBackfillOptions()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(logs) != 1 {
		t.Fatalf("expected exactly one summary log, got %d", len(logs))
	}
	if logs[0].TriggeredBy != TriggerBackfill {
		t.Errorf("expected backfill trigger, got %q", logs[0].TriggeredBy)
	}
	if logs[0].TitleSearched == nil || !strings.HasPrefix(*logs[0].TitleSearched, "Backfill:") {
		t.Errorf("unexpected summary title: %+v", logs[0].TitleSearched)
	}
}

func TestBackfiller_NoBooks(t *testing.T) {
	store := &database.MockStore{}
	b := quietBackfiller(store, NewResolver(store, nil, NewValidator(), nil))

	report, err := b.Run(context.Background(), NewBackfillOptions())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if report.Processed != 0 || len(report.Details) != 0 {
		t.Errorf("expected empty report, got %+v", report)
	}
}
