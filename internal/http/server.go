// Package http exposes the JSON API over the stored transaction set.
package http

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"

	"conti/internal/analytics"
	"conti/internal/categorize"
	"conti/internal/ingest"
	"conti/internal/log"
	"conti/internal/storage"
)

type Server struct {
	http.Server

	store      *storage.Store
	categorize *categorize.Engine
	ingest     *ingest.Service
	analytics  *analytics.Engine
	logger     *log.Logger

	rateLimiter   *rateLimiter
	structured    *log.StructuredLogger
	maxUploadSize int64
	shutdownOnce  sync.Once
}

// Options carries the wiring NewServer needs beyond the engines themselves.
type Options struct {
	Addr          string
	ReadTimeout   time.Duration
	WriteTimeout  time.Duration
	MaxUploadSize int64
	Logger        *log.Logger
}

// NewServer configures routes and middleware, returning a ready-to-run server.
func NewServer(opts Options, store *storage.Store, cat *categorize.Engine, ing *ingest.Service, an *analytics.Engine) *Server {
	mux := http.NewServeMux()

	logger := opts.Logger
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}

	s := &Server{
		Server: http.Server{
			Addr:         opts.Addr,
			Handler:      mux,
			ReadTimeout:  opts.ReadTimeout,
			WriteTimeout: opts.WriteTimeout,
		},
		store:         store,
		categorize:    cat,
		ingest:        ing,
		analytics:     an,
		logger:        logger.WithComponent(log.ComponentHTTP),
		rateLimiter:   newRateLimiter(),
		structured:    log.NewStructuredLogger(logger.WithComponent(log.ComponentHTTP)),
		maxUploadSize: opts.MaxUploadSize,
	}

	mux.HandleFunc("GET /healthz", handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	mux.HandleFunc("GET /api/transactions", s.withMiddleware(s.handleListTransactions))
	mux.HandleFunc("GET /api/transactions/stats", s.withMiddleware(s.handleTransactionStats))
	mux.HandleFunc("GET /api/transactions/export/csv", s.withMiddleware(s.handleExportTransactions))
	mux.HandleFunc("POST /api/transactions/auto-categorize", s.withMiddleware(s.handleAutoCategorize))
	mux.HandleFunc("GET /api/transactions/{id}", s.withMiddleware(s.handleGetTransaction))
	mux.HandleFunc("PATCH /api/transactions/{id}", s.withMiddleware(s.handleUpdateTransactionCategory))
	mux.HandleFunc("GET /api/transactions/{id}/suggest-category", s.withMiddleware(s.handleSuggestCategory))

	mux.HandleFunc("GET /api/categories", s.withMiddleware(s.handleListCategories))
	mux.HandleFunc("GET /api/categories/stats", s.withMiddleware(s.handleCategoryStats))
	mux.HandleFunc("GET /api/categories/mappings", s.withMiddleware(s.handleListMappings))
	mux.HandleFunc("POST /api/categories/mappings", s.withMiddleware(s.handleCreateMapping))
	mux.HandleFunc("DELETE /api/categories/mappings", s.withMiddleware(s.handleClearMappings))
	mux.HandleFunc("GET /api/categories/mappings/export/csv", s.withMiddleware(s.handleExportMappings))

	mux.HandleFunc("POST /api/uploads/csv", s.withMiddleware(s.handleUploadCSV))
	mux.HandleFunc("GET /api/uploads/last-filename", s.withMiddleware(s.handleLastFilename))
	mux.HandleFunc("DELETE /api/uploads/data", s.withMiddleware(s.handleClearData))

	mux.HandleFunc("GET /api/analytics/has-data", s.withMiddleware(s.handleHasData))
	mux.HandleFunc("GET /api/analytics/overview", s.withMiddleware(s.handleOverview))
	mux.HandleFunc("GET /api/analytics/income-vs-expenses", s.withMiddleware(s.handleIncomeVsExpenses))
	mux.HandleFunc("GET /api/analytics/expenses-by-category", s.withMiddleware(s.handleExpensesByCategory))
	mux.HandleFunc("GET /api/analytics/cumulative-expenses", s.withMiddleware(s.handleCumulativeExpenses))
	mux.HandleFunc("GET /api/analytics/trends", s.withMiddleware(s.handleTrends))
	mux.HandleFunc("GET /api/analytics/deepdive", s.withMiddleware(s.handleDeepDive))

	return s
}

// withMiddleware adds security headers, rate limiting, request IDs and
// request logging around a handler.
func (s *Server) withMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		clientIP := r.Header.Get("X-Forwarded-For")
		if clientIP == "" {
			clientIP = r.Header.Get("X-Real-IP")
		}
		if clientIP == "" {
			clientIP = r.RemoteAddr
		}

		requestID := uuid.NewString()
		logger := s.logger.With(log.FieldRequestID, requestID)
		ctx := log.WithLogger(r.Context(), logger)
		r = r.WithContext(ctx)

		s.structured.LogHTTPStart(ctx, r, clientIP)

		// Mutating requests go through the rate limiter.
		if r.Method != http.MethodGet && !s.rateLimiter.allow(clientIP) {
			logger.WarnContext(ctx, "Rate limit exceeded",
				log.FieldClientIP, clientIP,
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path)
			w.Header().Set("Retry-After", "60")
			writeJSON(w, http.StatusTooManyRequests, ErrorResponse{Error: "rate limit exceeded, try again later"})
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next(rw, r)

		s.structured.LogHTTPEnd(ctx, r, rw.statusCode, time.Since(start).Milliseconds(), clientIP)
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.CountTransactions(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, ErrorResponse{Error: "database not ready"})
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// Shutdown stops the rate limiter cleanup goroutine and the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		if s.rateLimiter != nil {
			s.rateLimiter.stop()
		}
		shutdownErr = s.Server.Shutdown(ctx)
	})

	return shutdownErr
}
