// Package server exposes scoring, label intake and agent summaries over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"cxqa-go/internal/actionable"
	"cxqa-go/internal/aggregator"
	"cxqa-go/internal/logger"
	"cxqa-go/internal/metrics"
	"cxqa-go/internal/processor"
	"cxqa-go/internal/store"
	"cxqa-go/internal/types"
)

const maxBodyBytes = 1 << 20

// RecordProcessor scores and stores one ingest record.
type RecordProcessor interface {
	Process(ctx context.Context, rec types.ConversationRecord) (processor.Outcome, error)
}

type Options struct {
	Port      string
	Processor RecordProcessor
	Store     store.Store
	Metrics   *metrics.Metrics
	Logger    *logger.Logger
}

type Server struct {
	httpServer *http.Server
	processor  RecordProcessor
	store      store.Store
	metrics    *metrics.Metrics
	log        *logger.Logger
}

type SummaryResponse struct {
	Insight aggregator.Insight      `json:"insight"`
	Cards   []actionable.ActionCard `json:"cards"`
}

func New(opts Options) *Server {
	s := &Server{
		processor: opts.Processor,
		store:     opts.Store,
		metrics:   opts.Metrics,
		log:       opts.Logger,
	}
	if s.metrics == nil {
		s.metrics = metrics.Default
	}
	if s.log == nil {
		s.log = logger.New()
	}

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%s", opts.Port),
		Handler:      s.Handler(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}
	return s
}

// Handler returns the routed handler wrapped in request logging.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /score", s.handleScore)
	mux.HandleFunc("POST /labels", s.handleLabel)
	mux.HandleFunc("GET /agents/summary", s.handleAgentSummary)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.Handle("GET /metrics", s.metrics.Handler())
	return s.withLogging(mux)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	log := s.log.WithComponent("server")
	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.httpServer.Addr).Info("listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server terminated: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}
	return nil
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logger.RequestID(r)
		r.Header.Set("X-Request-ID", id)
		w.Header().Set("X-Request-ID", id)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		entry := s.log.WithRequest(r).
			WithField("status", rec.status).
			WithField("duration_ms", time.Since(start).Milliseconds())
		if r.URL.Path == "/healthz" || r.URL.Path == "/metrics" {
			entry.Debug("request completed")
			return
		}
		entry.Info("request completed")
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScore(w http.ResponseWriter, r *http.Request) {
	var rec types.ConversationRecord
	if err := decodeBody(w, r, &rec); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	out, err := s.processor.Process(r.Context(), rec)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusOK, out)
}

func (s *Server) handleLabel(w http.ResponseWriter, r *http.Request) {
	var label types.HumanLabel
	if err := decodeBody(w, r, &label); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if err := label.Validate(); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	if label.LabeledAt.IsZero() {
		label.LabeledAt = time.Now().UTC()
	}
	if err := s.store.SaveHumanLabel(r.Context(), label); err != nil {
		s.errorResponse(w, r, err)
		return
	}
	s.jsonResponse(w, http.StatusCreated, label)
}

func (s *Server) handleAgentSummary(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := store.Filter{
		AgentID:      q.Get("agent_id"),
		ModelVersion: q.Get("model_version"),
	}
	if v := q.Get("since"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			s.errorResponse(w, r, &types.ValidationError{Field: "since", Message: "must be RFC3339"})
			return
		}
		f.Since = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			s.errorResponse(w, r, &types.ValidationError{Field: "limit", Message: "must be a positive integer"})
			return
		}
		f.Limit = n
	}

	rows, err := s.store.ScoredConversations(r.Context(), f)
	if err != nil {
		s.errorResponse(w, r, err)
		return
	}
	insight := aggregator.Aggregate(rows)
	s.jsonResponse(w, http.StatusOK, SummaryResponse{Insight: insight, Cards: actionable.GenerateAll(insight)})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return &types.ValidationError{Field: "body", Message: fmt.Sprintf("invalid JSON: %v", err)}
	}
	return nil
}

// HTTPStatus maps an error to its response status.
func HTTPStatus(err error) int {
	if errors.Is(err, store.ErrNotFound) {
		return http.StatusNotFound
	}
	switch types.KindOf(err) {
	case types.KindValidation:
		return http.StatusBadRequest
	case types.KindProvider:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithComponent("server").WithError(err).Error("failed to write response")
	}
}

func (s *Server) errorResponse(w http.ResponseWriter, r *http.Request, err error) {
	status := HTTPStatus(err)
	entry := s.log.WithRequest(r).WithField("status", status).WithField("error", err.Error())
	kind := string(types.KindOf(err))
	if status == http.StatusNotFound {
		kind = "not_found"
	}
	body := map[string]string{"error": err.Error(), "kind": kind}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		entry.Error("request failed")
		// internal details stay in the log
		body["error"] = "internal error"
	} else {
		entry.Warn("request rejected")
	}
	s.jsonResponse(w, status, body)
}
