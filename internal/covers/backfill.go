// file: internal/covers/backfill.go
// version: 1.0.0
// guid: 5a1c7e3b-9d6f-4a8c-b2e0-3f6a8c1d7e9b

package covers

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/jdfalk/coverfetch/internal/database"
	"github.com/jdfalk/coverfetch/internal/metrics"
)

// Backfill defaults.
const (
	DefaultBackfillLimit  = 50
	DefaultMinDaysSince   = 7
	MaxCoverAttempts      = 5
	defaultInterBookDelay = 500 * time.Millisecond
)

// BackfillOptions controls one backfill run. Zero values fall back to the
// defaults above; SkipRecentFailures defaults to true via NewBackfillOptions.
type BackfillOptions struct {
	Limit               int
	SkipRecentFailures  bool
	MinDaysSinceAttempt int
	UserID              *string

	// OnProgress, when set, is called after each processed book.
	OnProgress func(processed, total int)
}

// NewBackfillOptions returns options with the standard defaults.
func NewBackfillOptions() BackfillOptions {
	return BackfillOptions{
		Limit:               DefaultBackfillLimit,
		SkipRecentFailures:  true,
		MinDaysSinceAttempt: DefaultMinDaysSince,
	}
}

// BackfillDetail is the per-book outcome within a report.
type BackfillDetail struct {
	BookID   string `json:"bookId"`
	Title    string `json:"title"`
	Status   string `json:"status"` // success, failed, skipped
	CoverURL string `json:"coverUrl,omitempty"`
	Error    string `json:"error,omitempty"`
}

// BackfillReport aggregates a whole run.
type BackfillReport struct {
	Processed int              `json:"processed"`
	Success   int              `json:"success"`
	Failed    int              `json:"failed"`
	Skipped   int              `json:"skipped"`
	Details   []BackfillDetail `json:"details"`
}

// Backfiller resolves covers for books that still need one, strictly
// sequentially with a fixed delay between books so the external APIs see a
// bounded request rate. Do not parallelize this loop.
type Backfiller struct {
	store    database.Store
	resolver *Resolver
	delay    time.Duration
	now      func() time.Time
}

// NewBackfiller creates a backfiller with the standard inter-book delay.
func NewBackfiller(store database.Store, resolver *Resolver) *Backfiller {
	return &Backfiller{
		store:    store,
		resolver: resolver,
		delay:    defaultInterBookDelay,
		now:      time.Now,
	}
}

// Run selects books with unset, pending, or missing covers and resolves each
// in turn. Books at the attempt ceiling are always skipped. One summary log
// entry is written for the batch.
func (b *Backfiller) Run(ctx context.Context, opts BackfillOptions) (*BackfillReport, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultBackfillLimit
	}
	minDays := opts.MinDaysSinceAttempt
	if minDays <= 0 {
		minDays = DefaultMinDaysSince
	}

	var attemptedBefore *time.Time
	if opts.SkipRecentFailures {
		cutoff := b.now().AddDate(0, 0, -minDays)
		attemptedBefore = &cutoff
	}

	books, err := b.store.ListBooksNeedingCovers(limit, opts.UserID, attemptedBefore)
	if err != nil {
		return nil, fmt.Errorf("failed to list books needing covers: %w", err)
	}

	report := &BackfillReport{Details: make([]BackfillDetail, 0, len(books))}
	if len(books) == 0 {
		log.Printf("[INFO] backfill: no books need cover fetching")
		return report, nil
	}

	log.Printf("[INFO] backfill: processing %d books", len(books))

	for i := range books {
		book := &books[i]
		report.Processed++

		if book.CoverAttempts >= MaxCoverAttempts {
			report.Skipped++
			metrics.IncBackfillBook("skipped")
			report.Details = append(report.Details, BackfillDetail{
				BookID: book.ID,
				Title:  book.Title,
				Status: "skipped",
				Error:  "Max attempts reached",
			})
			b.notifyProgress(opts, report.Processed, len(books))
			continue
		}

		res, err := b.resolver.Resolve(ctx, book.ID, false, TriggerBackfill)
		switch {
		case err != nil:
			report.Failed++
			metrics.IncBackfillBook("failed")
			report.Details = append(report.Details, BackfillDetail{
				BookID: book.ID,
				Title:  book.Title,
				Status: "failed",
				Error:  err.Error(),
			})
		case res.Success:
			report.Success++
			metrics.IncBackfillBook("success")
			report.Details = append(report.Details, BackfillDetail{
				BookID:   book.ID,
				Title:    book.Title,
				Status:   "success",
				CoverURL: res.CoverURL,
			})
		default:
			report.Failed++
			metrics.IncBackfillBook("failed")
			report.Details = append(report.Details, BackfillDetail{
				BookID: book.ID,
				Title:  book.Title,
				Status: "failed",
				Error:  res.Error,
			})
		}

		b.notifyProgress(opts, report.Processed, len(books))

		if b.delay > 0 {
			select {
			case <-ctx.Done():
				b.writeSummary(report)
				return report, ctx.Err()
			case <-time.After(b.delay):
			}
		}
	}

	b.writeSummary(report)
	log.Printf("[INFO] backfill: done, %d success, %d failed, %d skipped", report.Success, report.Failed, report.Skipped)
	return report, nil
}

func (b *Backfiller) notifyProgress(opts BackfillOptions, processed, total int) {
	if opts.OnProgress != nil {
		opts.OnProgress(processed, total)
	}
}

// writeSummary appends one log row describing the batch as a whole.
func (b *Backfiller) writeSummary(report *BackfillReport) {
	summary := fmt.Sprintf("Backfill: %d books", report.Processed)
	entry := &database.FetchLog{
		TitleSearched: &summary,
		SourcesTried:  []string{"backfill"},
		TriggeredBy:   TriggerBackfill,
		CreatedAt:     b.now(),
	}
	if err := b.store.AddFetchLog(entry); err != nil {
		log.Printf("[ERROR] failed to log backfill run: %v", err)
	}
}
