// Package server exposes the icon orchestrator over HTTP.
package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/iconforge/iconforge/pkg/icons"
	"github.com/iconforge/iconforge/pkg/metrics"
	"github.com/iconforge/iconforge/pkg/models"
	"github.com/iconforge/iconforge/pkg/style"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"

	maxBodyBytes = 64 << 10
)

// Generator runs one generation request. *icons.Orchestrator implements it.
type Generator interface {
	Generate(ctx context.Context, req models.GenerationRequest) (*models.GenerationResponse, error)
}

// Options configures a Server.
type Options struct {
	Listen         string
	AllowedOrigins []string
	MetricsPath    string
	Metrics        *metrics.Metrics
	Logger         *zap.Logger
}

// Server is the iconforge HTTP API.
type Server struct {
	gen    Generator
	opts   Options
	logger *zap.Logger
	mux    *http.ServeMux
}

// New creates a Server. The metrics endpoint is mounted only when
// opts.Metrics is set.
func New(gen Generator, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}
	s := &Server{
		gen:    gen,
		opts:   opts,
		logger: opts.Logger,
		mux:    http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/generate-icons", s.handleGenerate)
	s.mux.HandleFunc("/api/styles", s.handleStyles)
	s.mux.HandleFunc("/healthz", s.handleHealth)
	if opts.Metrics != nil {
		s.mux.Handle(opts.MetricsPath, opts.Metrics.Handler())
	}
	s.mux.HandleFunc("/", s.handleRoot)
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	id := r.Header.Get(RequestIDHeader)
	if id == "" {
		id = uuid.NewString()
	}
	w.Header().Set(RequestIDHeader, id)
	r = r.WithContext(withRequestID(r.Context(), id))

	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	if s.applyCORS(rec, r) {
		s.mux.ServeHTTP(rec, r)
	}

	s.logger.Debug("http request",
		zap.String("request_id", id),
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)))
}

// ListenAndServe starts the server with graceful shutdown support.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Listen,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("iconforge listening", zap.String("addr", s.opts.Listen))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	case err := <-errCh:
		return err
	}
}

// applyCORS sets the CORS headers and answers preflight requests. It reports
// whether the request still needs routing.
func (s *Server) applyCORS(w http.ResponseWriter, r *http.Request) bool {
	origin := r.Header.Get("Origin")
	h := w.Header()
	switch {
	case slices.Contains(s.opts.AllowedOrigins, "*"):
		h.Set("Access-Control-Allow-Origin", "*")
	case origin != "" && slices.Contains(s.opts.AllowedOrigins, origin):
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
	}
	h.Set("Access-Control-Expose-Headers", RequestIDHeader)

	if r.Method != http.MethodOptions {
		return true
	}
	h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
	h.Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
	h.Set("Access-Control-Max-Age", "600")
	w.WriteHeader(http.StatusNoContent)
	return false
}

// generateRequest is the wire form of a generation request. Prompt is the
// legacy name for Topic.
type generateRequest struct {
	Topic   string  `json:"topic"`
	Prompt  string  `json:"prompt"`
	StyleID styleID `json:"styleId"`
	Colors  string  `json:"colors"`
}

// styleID accepts a JSON number or a numeric string.
type styleID int

func (id *styleID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*id = 0
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			*id = 0
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("styleId %q is not a number", s)
		}
		*id = styleID(n)
		return nil
	}
	var n int
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("styleId must be an integer")
	}
	*id = styleID(n)
	return nil
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body generateRequest
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&body); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	topic := body.Topic
	if strings.TrimSpace(topic) == "" {
		topic = body.Prompt
	}
	req := models.GenerationRequest{
		RequestID: requestIDFrom(r.Context()),
		Topic:     topic,
		StyleID:   int(body.StyleID),
		Colors:    body.Colors,
	}

	resp, err := s.gen.Generate(r.Context(), req)
	if err != nil {
		code, msg := errorResponse(err)
		writeJSONError(w, code, msg)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// errorResponse maps a generation error to a status code and client message.
// Unexpected failures are not described to the client.
func errorResponse(err error) (int, string) {
	var ierr *icons.Error
	if !errors.As(err, &ierr) {
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
	switch ierr.Kind {
	case icons.KindInvalidInput:
		return http.StatusBadRequest, ierr.Error()
	case icons.KindExpansion, icons.KindGeneration:
		return http.StatusInternalServerError, ierr.Error()
	default:
		return http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError)
	}
}

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSONError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, style.All())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		writeJSONError(w, http.StatusNotFound, "not found")
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	fmt.Fprint(w, "Icon Generator API is running")
}

type ctxKey struct{}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func requestIDFrom(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeJSONError(w http.ResponseWriter, code int, message string) {
	writeJSON(w, code, map[string]string{"error": message})
}
