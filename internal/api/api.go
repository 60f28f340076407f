// Package api implements the reviewlens HTTP API server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/reviewlens/reviewlens/internal/config"
	"github.com/reviewlens/reviewlens/internal/pipeline"
	"github.com/reviewlens/reviewlens/internal/report"
	"github.com/reviewlens/reviewlens/internal/source"
	"github.com/reviewlens/reviewlens/internal/telemetry"
)

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 16 << 20

// Options configures the reviews the server runs.
type Options struct {
	Config     config.Config
	Source     source.Lister
	IndexPath  string
	Summarizer report.Summarizer
	Telemetry  *telemetry.Emitter
	Logger     *slog.Logger
	Version    string
}

// Server is the reviewlens HTTP API server.
type Server struct {
	addr   string
	opts   Options
	logger *slog.Logger
	mux    *http.ServeMux
	server *http.Server
}

// New creates a new API server.
func New(addr string, opts Options) *Server {
	s := &Server{addr: addr, opts: opts, logger: opts.Logger}
	if s.logger == nil {
		s.logger = slog.New(slog.DiscardHandler)
	}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.mux,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: opts.Config.Budget + 60*time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /api/rules", s.handleRules)
	s.mux.HandleFunc("POST /api/review", s.handleReview)
	s.mux.HandleFunc("POST /api/parse", s.handleParse)
	s.mux.HandleFunc("GET /api/ws", s.handleWebSocket)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("reviewlens API server listening", "addr", s.addr)
		errCh <- s.server.ListenAndServe()
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
		return s.server.Shutdown(shutdownCtx)
	}
}

// Handler returns the HTTP handler for testing.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// pipeline returns a fresh pipeline for one review. Request-supplied files
// are indexed in memory and never touch the persisted snapshot.
func (s *Server) pipeline(failOn string, files map[string]string) *pipeline.Pipeline {
	cfg := s.opts.Config
	if failOn != "" {
		cfg.FailOn = failOn
	}
	src, indexPath := s.opts.Source, s.opts.IndexPath
	if files != nil {
		m := make(source.Map, len(files))
		for path, body := range files {
			m[path] = []byte(body)
		}
		src, indexPath = m, ""
	}
	return &pipeline.Pipeline{
		Config:     cfg,
		Source:     src,
		Summarizer: s.opts.Summarizer,
		Telemetry:  s.opts.Telemetry,
		Logger:     s.logger,
		Version:    s.opts.Version,
		IndexPath:  indexPath,
		NoIndex:    src == nil,
	}
}

// writeJSON writes a JSON response.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		s.logger.Warn("json encode error", "error", err)
	}
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, status int, msg string) {
	s.writeJSON(w, status, map[string]string{"error": msg})
}

// readJSON decodes a JSON request body into v.
func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	if r.Body == nil {
		return fmt.Errorf("empty request body")
	}
	defer r.Body.Close()
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return dec.Decode(v)
}
