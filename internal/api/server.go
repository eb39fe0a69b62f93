// Package api exposes repository loading and querying over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"repolens/internal/embedder"
	"repolens/internal/index"
	"repolens/internal/llm"
	"repolens/internal/rag"
	"repolens/internal/registry"
)

// ErrBadRequest is returned for bodies that cannot be decoded.
var ErrBadRequest = errors.New("invalid request body")

// Server serves the HTTP API.
type Server struct {
	indexer    *index.Indexer
	engine     *rag.Engine
	summarizer *rag.Summarizer
	log        *slog.Logger
}

func NewServer(ix *index.Indexer, e *rag.Engine, s *rag.Summarizer, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	return &Server{indexer: ix, engine: e, summarizer: s, log: log}
}

// Handler returns the routed handler with CORS and request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.HandleHealth)
	mux.HandleFunc("GET /api/repositories", s.HandleList)
	mux.HandleFunc("POST /api/repository", s.HandleLoad)
	mux.HandleFunc("GET /api/repository/status", s.HandleStatus)
	mux.HandleFunc("GET /api/repository/summary", s.HandleSummary)
	mux.HandleFunc("DELETE /api/repository", s.HandleUnload)
	mux.HandleFunc("DELETE /api/repository/{repo_url...}", s.HandleUnload)
	mux.HandleFunc("POST /api/query", s.HandleQuery)
	mux.HandleFunc("GET /api/can_restart", s.HandleCanRestart)
	return withCORS(withLogging(s.log, mux))
}

// Serve runs the API on addr until ctx is done, then shuts down
// gracefully within timeout.
func (s *Server) Serve(ctx context.Context, addr string, timeout time.Duration) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.ServeListener(ctx, ln, timeout)
}

// ServeListener is Serve on an existing listener.
func (s *Server) ServeListener(ctx context.Context, ln net.Listener, timeout time.Duration) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("api listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	status := errorStatus(err)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "status", status, "err", err)
	}
	writeJSON(w, status, MessageResponse{Success: false, Message: err.Error()})
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, ErrBadRequest), errors.Is(err, registry.ErrInvalidIdentity), errors.Is(err, rag.ErrEmptyQuestion):
		return http.StatusBadRequest
	case errors.Is(err, index.ErrNotLoaded):
		return http.StatusNotFound
	case errors.Is(err, index.ErrLockConflict), errors.Is(err, rag.ErrNotReady):
		return http.StatusConflict
	case errors.Is(err, llm.ErrCompletion), errors.Is(err, embedder.ErrEmbedding):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func decode(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return fmt.Errorf("%w: %v", ErrBadRequest, err)
	}
	return nil
}

func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "healthy"})
}

func (s *Server) HandleLoad(w http.ResponseWriter, r *http.Request) {
	var req LoadRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	res, err := s.indexer.Load(r.Context(), req.RepoURL, req.ForceReload)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if !res.Started {
		writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "repository already loaded", RepoID: res.Record.ID})
		return
	}
	writeJSON(w, http.StatusAccepted, MessageResponse{Success: true, Message: "repository loading started", RepoID: res.Record.ID})
}

func (s *Server) HandleStatus(w http.ResponseWriter, r *http.Request) {
	rec, err := s.indexer.Status(r.URL.Query().Get("repo_url"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusResponse(rec))
}

func (s *Server) HandleList(w http.ResponseWriter, r *http.Request) {
	recs := s.indexer.List()
	out := make([]StatusResponse, len(recs))
	for i, rec := range recs {
		out[i] = statusResponse(rec)
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) HandleQuery(w http.ResponseWriter, r *http.Request) {
	var req QueryRequest
	if err := decode(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	ans, err := s.engine.Answer(r.Context(), req.RepoURL, req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, QueryResponse{Answer: ans.Text, Sources: ans.Sources})
}

func (s *Server) HandleSummary(w http.ResponseWriter, r *http.Request) {
	repoURL := r.URL.Query().Get("repo_url")
	summary, err := s.summarizer.Summarize(r.Context(), repoURL)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id, _ := registry.NormalizeID(repoURL)
	writeJSON(w, http.StatusOK, SummaryResponse{RepoID: id, Summary: summary})
}

// HandleUnload accepts the repository either as a query parameter or as
// the rest of the path, e.g. DELETE /api/repository/github.com/o/r.
func (s *Server) HandleUnload(w http.ResponseWriter, r *http.Request) {
	repoURL := r.URL.Query().Get("repo_url")
	if repoURL == "" {
		repoURL = strings.TrimSpace(r.PathValue("repo_url"))
	}
	if err := s.indexer.Unload(r.Context(), repoURL); err != nil {
		s.writeError(w, err)
		return
	}
	id, _ := registry.NormalizeID(repoURL)
	writeJSON(w, http.StatusOK, MessageResponse{Success: true, Message: "repository unloaded", RepoID: id})
}

func (s *Server) HandleCanRestart(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, CanRestartResponse{CanRestart: s.indexer.CanRestart()})
}
