package api

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/aliasimcoskun/phishguard"
	"github.com/aliasimcoskun/phishguard/db"
	"github.com/aliasimcoskun/phishguard/internal/metrics"
	"github.com/aliasimcoskun/phishguard/models"
	"github.com/aliasimcoskun/phishguard/storage"
)

// Store is the persistence contract the server needs. *db.DB satisfies it.
type Store interface {
	SaveAnalysis(result *models.AnalysisResult) error
	GetByID(id string) (*models.AnalysisResult, error)
	GetByURL(url string) (*models.AnalysisResult, error)
	List(limit, offset int) ([]*models.AnalysisResult, error)
	Delete(id string) error
	Count() (int, error)
	CountByVerdict() (map[string]int, error)
}

// Server represents the API server
type Server struct {
	store       Store
	database    *db.DB // nil when the server was built around a bare Store
	archive     storage.Backend
	analyzer    *phishguard.Analyzer
	addr        string
	server      *http.Server
	mux         *http.ServeMux
	corsEnabled bool
	metrics     *metrics.AnalysisMetrics
}

// Config contains server configuration
type Config struct {
	Addr           string
	DBConfig       db.Config
	AnalyzerConfig phishguard.Config
	StorageConfig  storage.Config
	S3Config       *storage.S3Config // non-nil selects the S3 report archive
	CORSEnabled    bool
	Metrics        *metrics.AnalysisMetrics // optional
}

// DefaultConfig returns default server configuration
func DefaultConfig() Config {
	return Config{
		Addr:           ":8080",
		AnalyzerConfig: phishguard.DefaultConfig(),
		StorageConfig:  storage.DefaultConfig(),
		CORSEnabled:    true,
	}
}

// NewServer creates a new API server backed by Postgres and the configured
// report archive.
func NewServer(config Config) (*Server, error) {
	database, err := db.New(config.DBConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	var archive storage.Backend
	if config.S3Config != nil {
		archive, err = storage.NewS3Storage(context.Background(), *config.S3Config)
	} else {
		archive, err = storage.New(config.StorageConfig)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to initialize report archive: %w", err)
	}

	analyzer := phishguard.New(config.AnalyzerConfig, nil)

	s := newServer(database, archive, analyzer, config)
	s.database = database
	return s, nil
}

// newServer wires a server around explicit collaborators. Tests use it with
// fakes.
func newServer(store Store, archive storage.Backend, analyzer *phishguard.Analyzer, config Config) *Server {
	s := &Server{
		store:       store,
		archive:     archive,
		analyzer:    analyzer,
		addr:        config.Addr,
		mux:         http.NewServeMux(),
		corsEnabled: config.CORSEnabled,
		metrics:     config.Metrics,
	}

	s.registerRoutes()

	s.server = &http.Server{
		Addr:         config.Addr,
		Handler:      s.middleware(s.mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	return s
}

// registerRoutes sets up all API routes
func (s *Server) registerRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.Handler())
	s.mux.HandleFunc("/api/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/api/analyses", s.handleList)
	s.mux.HandleFunc("/api/analyses/", s.handleAnalysis) // /api/analyses/{id} and /api/analyses/{id}/report
}

// Start starts the API server
func (s *Server) Start() error {
	log.Printf("Starting API server on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down API server...")
	if err := s.server.Shutdown(ctx); err != nil {
		return err
	}
	if s.database != nil {
		return s.database.Close()
	}
	return nil
}

// DB exposes the underlying connection for pool metrics collection. Nil when
// the server is not database-backed.
func (s *Server) DB() *sql.DB {
	if s.database == nil {
		return nil
	}
	return s.database.DB()
}

// UpdateStoredMetrics refreshes the stored-analysis gauges from the database.
func (s *Server) UpdateStoredMetrics() {
	counts, err := s.store.CountByVerdict()
	if err != nil {
		log.Printf("failed to refresh stored-analysis metrics: %v", err)
		return
	}
	s.metrics.SetStoredCounts(counts)
}

// middleware applies common middleware to all routes
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// CORS headers
		if s.corsEnabled {
			w.Header().Set("Access-Control-Allow-Origin", "*")
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

			if r.Method == "OPTIONS" {
				w.WriteHeader(http.StatusOK)
				return
			}
		}

		// Logging (skip health checks to reduce noise)
		start := time.Now()
		if r.URL.Path != "/health" {
			log.Printf("%s %s", r.Method, r.URL.Path)
		}

		next.ServeHTTP(w, r)

		if r.URL.Path != "/health" {
			log.Printf("%s %s - completed in %v", r.Method, r.URL.Path, time.Since(start))
		}
	})
}

// handleHealth returns server health status
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	count, err := s.store.Count()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get count")
		return
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"status": "healthy",
		"count":  count,
		"time":   time.Now(),
	})
}

// AnalyzeRequest represents an analysis request
type AnalyzeRequest struct {
	URL   string `json:"url"`
	Force bool   `json:"force"` // Force re-analysis even if a cached result exists
}

// handleAnalyze handles single URL analysis
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req AnalyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.URL) == "" {
		respondError(w, http.StatusBadRequest, phishguard.ErrEmptyURL.Error())
		return
	}

	// Return the cached result unless force is set
	if !req.Force {
		existing, err := s.store.GetByURL(strings.TrimSpace(req.URL))
		if err != nil {
			respondError(w, http.StatusInternalServerError, "database error")
			return
		}
		if existing != nil {
			existing.Cached = true
			respondJSON(w, http.StatusOK, existing)
			return
		}
	}

	result, err := s.analyzer.Analyze(r.Context(), req.URL)
	if err != nil {
		if errors.Is(err, phishguard.ErrEmptyURL) {
			respondError(w, http.StatusBadRequest, err.Error())
			return
		}
		respondError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	s.metrics.ObserveAnalysis(result.Verdict, result.ProcessingTime)
	if result.Verdict == models.VerdictUnavailable {
		s.metrics.ObserveScorerUnavailable()
	}

	// Archive the report before persisting so the stored row records where
	// the archive actually placed it: the backend may append a uniqueness
	// suffix when a slug repeats. Non-fatal: the row is the source of truth.
	if reportJSON, err := json.Marshal(result); err == nil {
		path, err := s.archive.SaveReport(r.Context(), reportJSON, result.Slug)
		if err != nil {
			log.Printf("failed to archive report for %s: %v", result.ID, err)
		} else {
			result.ReportPath = path
		}
	}

	if err := s.store.SaveAnalysis(result); err != nil {
		respondError(w, http.StatusInternalServerError, "failed to save analysis")
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// handleList returns stored analyses ordered by recency
func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	results, err := s.store.List(limit, offset)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to list analyses")
		return
	}
	if results == nil {
		results = []*models.AnalysisResult{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"analyses": results,
		"count":    len(results),
	})
}

// handleAnalysis handles /api/analyses/{id} and /api/analyses/{id}/report
func (s *Server) handleAnalysis(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/analyses/")
	if rest == "" {
		respondError(w, http.StatusBadRequest, "analysis id is required")
		return
	}

	id, sub, _ := strings.Cut(rest, "/")

	switch {
	case sub == "report":
		s.handleReport(w, r, id)
	case sub == "":
		switch r.Method {
		case http.MethodGet:
			s.handleGet(w, r, id)
		case http.MethodDelete:
			s.handleDelete(w, r, id)
		default:
			respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
	default:
		respondError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleGet(w http.ResponseWriter, _ *http.Request, id string) {
	result, err := s.store.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if result == nil {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request, id string) {
	result, err := s.store.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}

	if err := s.store.Delete(id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			respondError(w, http.StatusNotFound, "analysis not found")
			return
		}
		respondError(w, http.StatusInternalServerError, "failed to delete analysis")
		return
	}

	// Remove the archived report as well. Non-fatal: the row is already gone.
	if result != nil && result.ReportPath != "" {
		if err := s.archive.DeleteReport(r.Context(), result.ReportPath); err != nil {
			log.Printf("failed to delete archived report for %s: %v", id, err)
		}
	}

	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// handleReport serves the archived JSON report for an analysis
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request, id string) {
	if r.Method != http.MethodGet {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	result, err := s.store.GetByID(id)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "database error")
		return
	}
	if result == nil {
		respondError(w, http.StatusNotFound, "analysis not found")
		return
	}

	// The row records where the archive placed this analysis's report; fall
	// back to the row itself when no archived copy exists.
	if result.ReportPath != "" {
		if data, err := s.archive.ReadReport(r.Context(), result.ReportPath); err == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusOK)
			w.Write(data)
			return
		}
	}

	respondJSON(w, http.StatusOK, result)
}

// queryInt parses an integer query parameter with a default
func queryInt(r *http.Request, key string, def int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

// respondJSON writes a JSON response
func respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		log.Printf("failed to encode response: %v", err)
	}
}

// respondError writes a JSON error response
func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
