// file: internal/server/handlers.go
// version: 1.0.0
// guid: 8e4a0c6d-2f9b-4d7e-b5a3-0c6f4e2a8d1b

package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/jdfalk/coverfetch/internal/covers"
	"github.com/jdfalk/coverfetch/internal/database"
)

type resolveRequest struct {
	BookID       string `json:"book_id"`
	ForceRefresh bool   `json:"force_refresh"`
}

// resolveCover runs the source cascade for one book.
func (s *Server) resolveCover(c *gin.Context) {
	var req resolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.BookID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "book_id is required"})
		return
	}

	trigger := covers.TriggerAuto
	if req.ForceRefresh {
		trigger = covers.TriggerUserRetry
	}

	result, err := s.resolver.Resolve(c.Request.Context(), req.BookID, req.ForceRefresh, trigger)
	if err != nil {
		if errors.Is(err, covers.ErrBookNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, result)
}

type backfillRequest struct {
	Limit               int     `json:"limit"`
	SkipRecentFailures  *bool   `json:"skip_recent_failures"`
	MinDaysSinceAttempt int     `json:"min_days_since_attempt"`
	UserID              *string `json:"user_id"`
}

// backfillCovers resolves covers for a batch of books that still need one.
func (s *Server) backfillCovers(c *gin.Context) {
	var req backfillRequest
	if err := c.ShouldBindJSON(&req); err != nil && err.Error() != "EOF" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	opts := covers.NewBackfillOptions()
	if req.Limit > 0 {
		opts.Limit = req.Limit
	}
	if req.SkipRecentFailures != nil {
		opts.SkipRecentFailures = *req.SkipRecentFailures
	}
	if req.MinDaysSinceAttempt > 0 {
		opts.MinDaysSinceAttempt = req.MinDaysSinceAttempt
	}
	opts.UserID = req.UserID

	report, err := s.backfiller.Run(c.Request.Context(), opts)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to query books"})
		return
	}

	c.JSON(http.StatusOK, report)
}

func (s *Server) getBook(c *gin.Context) {
	book, err := s.store.GetBookByID(c.Param("id"))
	if err != nil || book == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Book not found"})
		return
	}
	c.JSON(http.StatusOK, book)
}

// getBookCovers lists the per-source resolution records for a book.
func (s *Server) getBookCovers(c *gin.Context) {
	records, err := s.store.GetCoverRecords(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load cover records"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"covers": records})
}

// getBookLogs lists recent fetch log entries for a book.
func (s *Server) getBookLogs(c *gin.Context) {
	logs, err := s.store.GetFetchLogs(c.Param("id"), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to load fetch logs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": logs})
}

type createBookRequest struct {
	Title         string  `json:"title"`
	Author        *string `json:"author"`
	ISBN          *string `json:"isbn"`
	ISBN10        *string `json:"isbn10"`
	ISBN13        *string `json:"isbn13"`
	GoogleBooksID *string `json:"google_books_id"`
	UserID        *string `json:"user_id"`
}

// createBook registers a book so its cover can be resolved.
func (s *Server) createBook(c *gin.Context) {
	var req createBookRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if req.Title == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "title is required"})
		return
	}

	pending := database.CoverStatusPending
	book, err := s.store.CreateBook(&database.Book{
		Title:         req.Title,
		Author:        req.Author,
		ISBN:          req.ISBN,
		ISBN10:        req.ISBN10,
		ISBN13:        req.ISBN13,
		GoogleBooksID: req.GoogleBooksID,
		UserID:        req.UserID,
		CoverStatus:   &pending,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create book"})
		return
	}

	c.JSON(http.StatusCreated, book)
}
