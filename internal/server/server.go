// file: internal/server/server.go
// version: 1.0.0
// guid: 6c2e8a4f-0d7b-4e9c-a3f1-8b5d2c0e6a4f

package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jdfalk/coverfetch/internal/covers"
	"github.com/jdfalk/coverfetch/internal/database"
	"github.com/jdfalk/coverfetch/internal/metrics"
	"github.com/jdfalk/coverfetch/internal/server/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Server wires the resolver and backfiller behind an HTTP API.
type Server struct {
	httpServer *http.Server
	router     *gin.Engine
	store      database.Store
	resolver   *covers.Resolver
	backfiller *covers.Backfiller
}

// ServerConfig holds server configuration
type ServerConfig struct {
	Port         string
	Host         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// NewServer creates a new server instance
func NewServer(store database.Store, resolver *covers.Resolver, backfiller *covers.Backfiller) *Server {
	router := gin.Default()

	// Set up middleware
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())

	// Register metrics (idempotent)
	metrics.Register()

	server := &Server{
		router:     router,
		store:      store,
		resolver:   resolver,
		backfiller: backfiller,
	}

	server.setupRoutes()

	return server
}

// Start starts the HTTP server
func (s *Server) Start(cfg ServerConfig) error {
	s.httpServer = &http.Server{
		Addr:           fmt.Sprintf("%s:%s", cfg.Host, cfg.Port),
		Handler:        s.router,
		ReadTimeout:    cfg.ReadTimeout,
		WriteTimeout:   cfg.WriteTimeout,
		IdleTimeout:    cfg.IdleTimeout,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	log.Printf("[INFO] Starting server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the HTTP server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) setupRoutes() {
	// Prometheus metrics endpoint (standard path)
	s.router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check endpoint (both paths for compatibility)
	s.router.GET("/healthz", s.healthCheck)
	s.router.GET("/api/v1/health", s.healthCheck)

	// API routes, rate limited per client IP
	limiter := middleware.NewIPRateLimiter(120, 20)
	api := s.router.Group("/api/v1")
	api.Use(limiter.Middleware())
	{
		api.POST("/covers/resolve", s.resolveCover)
		api.POST("/covers/backfill", s.backfillCovers)
		api.GET("/books/:id", s.getBook)
		api.GET("/books/:id/covers", s.getBookCovers)
		api.GET("/books/:id/logs", s.getBookLogs)
		api.POST("/books", s.createBook)
	}
}

// ServeCoverFiles exposes a local covers directory under urlPrefix. Only
// used with the local blob store backend.
func (s *Server) ServeCoverFiles(urlPrefix, dir string) {
	s.router.Static(urlPrefix, dir)
}

func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Header("Access-Control-Allow-Methods", "POST, OPTIONS, GET")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}

func (s *Server) healthCheck(c *gin.Context) {
	// Tolerate store errors, the process is still serving
	status := "healthy"
	bookCount := 0
	if s.store != nil {
		if bc, err := s.store.CountBooks(); err == nil {
			bookCount = bc
			metrics.SetBooks(bc)
		} else {
			status = "degraded"
			log.Printf("[WARN] health check: failed to count books: %v", err)
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"books":  bookCount,
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}
