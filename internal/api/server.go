// Package api exposes the fetch engine over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/IshaanNene/blogscope/internal/engine"
	"github.com/IshaanNene/blogscope/internal/types"
)

// PostService is what the API needs from the engine.
type PostService interface {
	FetchPosts(ctx context.Context, sourceID string, opts types.FetchOptions) (*engine.Result, error)
	Sources() []types.Source
	Source(id string) (types.Source, bool)
}

// Server provides a REST API over the post service.
type Server struct {
	mux     *http.ServeMux
	port    int
	service PostService
	logger  *slog.Logger
	version string
}

// SourceInfo is the listing form of a source.
type SourceInfo struct {
	ID         string           `json:"id"`
	Name       string           `json:"name"`
	Homepage   string           `json:"homepage"`
	Adapter    string           `json:"adapter,omitempty"`
	RSS        string           `json:"rss,omitempty"`
	Categories []types.Category `json:"categories,omitempty"`
}

// NewServer creates a new API server. metrics is mounted at metricsPath
// when both are set.
func NewServer(port int, service PostService, metrics http.Handler, metricsPath, version string, logger *slog.Logger) *Server {
	s := &Server{
		mux:     http.NewServeMux(),
		port:    port,
		service: service,
		logger:  logger.With("component", "api_server"),
		version: version,
	}

	s.registerRoutes()
	if metrics != nil && metricsPath != "" {
		s.mux.Handle("GET "+metricsPath, metrics)
	}
	return s
}

// Handler returns the root handler with request IDs and access logging.
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.mux)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("API server starting", "addr", srv.Addr)

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		s.logger.Info("API server shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/sources", s.handleListSources)
	s.mux.HandleFunc("GET /api/sources/{id}", s.handleGetSource)
	s.mux.HandleFunc("GET /api/sources/{id}/posts", s.handlePosts)
	s.mux.HandleFunc("POST /api/sources/{id}/refresh", s.handleRefresh)
}

type requestIDKey struct{}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		start := time.Now()
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey{}, id)))
		s.logger.Debug("request", "request_id", id, "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version,
	})
}

func (s *Server) handleListSources(w http.ResponseWriter, r *http.Request) {
	all := s.service.Sources()
	out := make([]SourceInfo, 0, len(all))
	for _, src := range all {
		out = append(out, sourceInfo(src))
	}
	s.jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleGetSource(w http.ResponseWriter, r *http.Request) {
	src, ok := s.service.Source(r.PathValue("id"))
	if !ok {
		s.jsonResponse(w, http.StatusNotFound, map[string]string{"error": "source not found"})
		return
	}
	s.jsonResponse(w, http.StatusOK, sourceInfo(src))
}

func (s *Server) handlePosts(w http.ResponseWriter, r *http.Request) {
	opts, err := fetchOptions(r)
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	s.fetch(w, r, opts)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	opts, err := fetchOptions(r)
	if err != nil {
		s.jsonResponse(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	opts.Page = 1
	opts.ForceRefresh = true
	s.fetch(w, r, opts)
}

func (s *Server) fetch(w http.ResponseWriter, r *http.Request, opts types.FetchOptions) {
	id := r.PathValue("id")
	res, err := s.service.FetchPosts(r.Context(), id, opts)
	if err != nil {
		status := statusFor(err)
		s.logger.Warn("fetch posts failed",
			"request_id", r.Context().Value(requestIDKey{}),
			"source", id,
			"status", status,
			"error", err,
		)
		s.jsonResponse(w, status, map[string]string{"error": err.Error()})
		return
	}
	s.jsonResponse(w, http.StatusOK, res)
}

func fetchOptions(r *http.Request) (types.FetchOptions, error) {
	q := r.URL.Query()
	opts := types.FetchOptions{
		Category:     q.Get("category"),
		ResearchArea: q.Get("researchArea"),
	}
	var err error
	if opts.Page, err = intParam(q.Get("page")); err != nil {
		return opts, fmt.Errorf("invalid page: %w", err)
	}
	if opts.MaxPosts, err = intParam(q.Get("maxPosts")); err != nil {
		return opts, fmt.Errorf("invalid maxPosts: %w", err)
	}
	opts.ForceRefresh, _ = strconv.ParseBool(q.Get("force"))
	opts.ForceOverwrite, _ = strconv.ParseBool(q.Get("overwrite"))
	return opts, nil
}

func intParam(v string) (int, error) {
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a non-negative integer", v)
	}
	return n, nil
}

// statusFor maps engine errors to HTTP status codes.
func statusFor(err error) int {
	var (
		nfs    *types.NoFetchStrategyError
		robots *types.RobotsDisallowedError
		fe     *types.FetchError
	)
	switch {
	case errors.Is(err, types.ErrUnknownSource):
		return http.StatusNotFound
	case errors.As(err, &nfs):
		return http.StatusUnprocessableEntity
	case errors.As(err, &robots):
		return http.StatusForbidden
	case errors.Is(err, types.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.As(err, &fe):
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func sourceInfo(src types.Source) SourceInfo {
	return SourceInfo{
		ID:         src.ID,
		Name:       src.Name,
		Homepage:   src.Homepage,
		Adapter:    src.Adapter,
		RSS:        src.RSS,
		Categories: src.Categories,
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("writing response failed", "error", err)
	}
}
