// Package server exposes reports over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/ArionMiles/budgetbrief/pkg/api"
	"github.com/ArionMiles/budgetbrief/pkg/commentary"
	"github.com/ArionMiles/budgetbrief/pkg/report"
	"github.com/ArionMiles/budgetbrief/pkg/writer"
)

// Default server settings.
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Reporter builds reports.
type Reporter interface {
	Build(ctx context.Context, req report.Request) (*report.Report, error)
}

// Config holds configuration for the HTTP server.
type Config struct {
	Addr            string
	ShutdownTimeout time.Duration
}

// Server serves the report API.
type Server struct {
	reporter   Reporter
	summarizer commentary.Summarizer
	cfg        Config
	logger     *slog.Logger
}

// New creates a Server. summarizer may be nil.
func New(reporter Reporter, summarizer commentary.Summarizer, cfg Config, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = DefaultShutdownTimeout
	}
	return &Server{
		reporter:   reporter,
		summarizer: summarizer,
		cfg:        cfg,
		logger:     logger.With("component", "server"),
	}
}

// Handler returns the router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.handleHealth)
	r.Get("/api/report", s.handleReport)
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
		close(errChan)
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("serving http: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down http server: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleReport serves GET /api/report?mode=&from=&to=&budget=&refresh=&format=.
func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	mode := q.Get("mode")
	if mode == "" {
		mode = string(api.ModeWeekly)
	}
	req, err := report.ParseRequest(mode, q.Get("from"), q.Get("to"), q.Get("budget"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if v := q.Get("refresh"); v != "" {
		if req.Refresh, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, fmt.Errorf("refresh %q is not a boolean", v))
			return
		}
	}

	format := q.Get("format")
	if format == "" {
		format = writer.FormatJSON
	}
	// Validate the format before doing any upstream work.
	if _, err := writer.New(format, nil, "", s.logger); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	rep, err := s.reporter.Build(r.Context(), req)
	if err != nil {
		status := statusFor(err)
		if status >= http.StatusInternalServerError {
			s.logger.Error("report failed", "error", err, "request_id", middleware.GetReqID(r.Context()))
		}
		writeError(w, status, err)
		return
	}

	note := ""
	if format != writer.FormatCSV {
		note = commentary.Best(r.Context(), s.summarizer, rep, s.logger)
	}

	switch format {
	case writer.FormatJSON:
		w.Header().Set("Content-Type", "application/json")
	case writer.FormatCSV:
		w.Header().Set("Content-Type", "text/csv")
	default:
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	}
	out, _ := writer.New(format, w, note, s.logger)
	if err := out.Write(r.Context(), rep); err != nil {
		s.logger.Error("writing report response", "error", err)
	}
}

// statusFor maps pipeline errors onto HTTP statuses.
func statusFor(err error) int {
	var modeErr *api.InvalidModeError
	switch {
	case errors.Is(err, api.ErrInvalidWindow), errors.Is(err, api.ErrZeroDays), errors.As(err, &modeErr):
		return http.StatusBadRequest
	case errors.Is(err, api.ErrNoCredentials):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

// requestLogger logs each request with slog.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}
