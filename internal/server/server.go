// Package server exposes qualification runs and knowledge lookups over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"eventqual/internal/event"
	"eventqual/internal/knowledge"
	"eventqual/internal/logging"
	"eventqual/internal/qualify"
)

// Qualifier runs qualifications. *qualify.Orchestrator satisfies it.
type Qualifier interface {
	Qualify(ctx context.Context, personName string, details event.Details) qualify.Report
	QualifyFromURL(ctx context.Context, personName, eventURL string) qualify.Report
}

// Knowledge is the read side of the knowledge store.
type Knowledge interface {
	Query(ctx context.Context, q knowledge.Query) ([]knowledge.Result, error)
	Collections(ctx context.Context) ([]knowledge.CollectionInfo, error)
}

// Options configure a Server.
type Options struct {
	Addr              string
	MaxConcurrentRuns int
	CORSOrigins       []string
	ShutdownTimeout   time.Duration
}

// Server is the HTTP API.
type Server struct {
	qualifier Qualifier
	knowledge Knowledge
	runs      *semaphore.Weighted
	opts      Options
}

// New creates a Server. knowledge may be nil, in which case the knowledge
// endpoints answer 503.
func New(q Qualifier, k Knowledge, opts Options) *Server {
	if opts.MaxConcurrentRuns <= 0 {
		opts.MaxConcurrentRuns = 4
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	if opts.Addr == "" {
		opts.Addr = ":8000"
	}
	return &Server{
		qualifier: q,
		knowledge: k,
		runs:      semaphore.NewWeighted(int64(opts.MaxConcurrentRuns)),
		opts:      opts,
	}
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /qualify", s.handleQualify)
	mux.HandleFunc("POST /qualify-from-url", s.handleQualifyFromURL)
	mux.HandleFunc("GET /knowledge/search", s.handleKnowledgeSearch)
	mux.HandleFunc("GET /knowledge/collections", s.handleCollections)
	return requestID(cors(s.opts.CORSOrigins, mux))
}

// Serve listens on the configured address until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Serve(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logging.Server("HTTP API listening on %s", ln.Addr())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logging.Server("Shutting down HTTP API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logging.ServerError("Graceful shutdown failed: %v", err)
		srv.Close()
		return err
	}
	return <-errCh
}

func (s *Server) handleRoot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Person Qualification API is running"})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

type qualifyRequest struct {
	PersonName   string         `json:"person_name"`
	EventDetails *event.Details `json:"event_details"`
}

type qualifyFromURLRequest struct {
	PersonName string `json:"person_name"`
	EventURL   string `json:"event_url"`
}

func (s *Server) handleQualify(w http.ResponseWriter, r *http.Request) {
	var req qualifyRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PersonName) == "" {
		writeDetail(w, http.StatusBadRequest, "person_name is required")
		return
	}
	details := event.Details{}
	if req.EventDetails != nil {
		details = *req.EventDetails
	}

	release, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	report := s.qualifier.Qualify(r.Context(), req.PersonName, details)
	writeReport(w, report)
}

func (s *Server) handleQualifyFromURL(w http.ResponseWriter, r *http.Request) {
	var req qualifyFromURLRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.PersonName) == "" {
		writeDetail(w, http.StatusBadRequest, "person_name is required")
		return
	}
	if strings.TrimSpace(req.EventURL) == "" {
		writeDetail(w, http.StatusBadRequest, "event_url is required")
		return
	}

	release, ok := s.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	report := s.qualifier.QualifyFromURL(r.Context(), req.PersonName, req.EventURL)
	writeReport(w, report)
}

// acquire takes a run slot, waiting until one frees up or the client goes away.
func (s *Server) acquire(w http.ResponseWriter, r *http.Request) (func(), bool) {
	if err := s.runs.Acquire(r.Context(), 1); err != nil {
		writeDetail(w, http.StatusServiceUnavailable, "request cancelled while waiting for a free run slot")
		return nil, false
	}
	return func() { s.runs.Release(1) }, true
}

// writeReport answers 500 for failure reports, 200 otherwise. The body is
// the report either way.
func writeReport(w http.ResponseWriter, report qualify.Report) {
	status := http.StatusOK
	if report.Failed() {
		status = http.StatusInternalServerError
	}
	writeJSON(w, status, report)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeDetail(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return false
	}
	return true
}

func writeDetail(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, map[string]string{"detail": detail})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.ServerError("Failed to encode response: %v", err)
	}
}

const requestIDHeader = "X-Request-ID"

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		log := logging.WithRequestID(logging.CategoryServer, id)
		start := time.Now()
		log.Debug("%s %s", r.Method, r.URL.Path)
		next.ServeHTTP(w, r)
		log.Info("%s %s done in %v", r.Method, r.URL.Path, time.Since(start))
	})
}

func cors(origins []string, next http.Handler) http.Handler {
	allowAll := false
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" && (allowAll || allowed[origin]) {
			if allowAll {
				w.Header().Set("Access-Control-Allow-Origin", "*")
			} else {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Add("Vary", "Origin")
			}
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+requestIDHeader)
		}
		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
