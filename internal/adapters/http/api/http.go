// Package api exposes the feedback loop and scoring over HTTP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/okian/talentloop/internal/adapters/mq/queue"
	"github.com/okian/talentloop/internal/adapters/repository"
	"github.com/okian/talentloop/internal/domain/calibration"
	"github.com/okian/talentloop/internal/domain/dedupe"
	"github.com/okian/talentloop/internal/domain/evaluation"
	"github.com/okian/talentloop/internal/domain/feedback"
	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/pkg/logger"
)

const (
	defaultRewardLimit = 50
	defaultMaxLimit    = 500
	maxBodyBytes       = 1 << 20
)

// FeedbackService records recruiter feedback and answers calibration reads.
type FeedbackService interface {
	Process(ctx context.Context, req feedback.Request) (feedback.Result, error)
	PolicyStats(ctx context.Context, jobID string, version int) (model.PolicyState, bool, error)
	History(ctx context.Context, jobID string, limit int) ([]model.RewardRecord, error)
	Calibration(ctx context.Context, jobID string) (calibration.Metrics, error)
	Summary(ctx context.Context, jobID string, version int) (feedback.JobSummary, error)
}

// ScoringService scores candidates synchronously.
type ScoringService interface {
	Evaluate(ctx context.Context, req evaluation.Request) (evaluation.Evaluation, error)
	EvaluateAll(ctx context.Context, jobID, requirements string, candidates []evaluation.Candidate) (evaluation.Batch, error)
}

// EvaluationQueue accepts evaluations for asynchronous scoring.
type EvaluationQueue interface {
	Enqueue(ctx context.Context, e model.Evaluation) error
}

// CandidateReader loads candidate score snapshots.
type CandidateReader interface {
	Candidate(ctx context.Context, candidateID string) (model.CandidateScore, error)
}

// StatsProvider defines the interface for getting service statistics.
type StatsProvider interface {
	GetStats(ctx context.Context) map[string]any
}

// Dependencies bundles what the handlers need.
type Dependencies struct {
	Feedback   FeedbackService
	Scoring    ScoringService
	Queue      EvaluationQueue
	Deduper    dedupe.Deduper
	Candidates CandidateReader
	Stats      StatsProvider
}

// Server wires HTTP routes for the business API.
type Server struct {
	deps     Dependencies
	service  string
	version  string
	maxLimit int
	log      logger.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithServiceInfo sets the name and version reported by GET /.
func WithServiceInfo(name, version string) Option {
	return func(s *Server) {
		if name != "" {
			s.service = name
		}
		if version != "" {
			s.version = version
		}
	}
}

// WithMaxRewardLimit bounds the limit accepted by the reward history route.
func WithMaxRewardLimit(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxLimit = n
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.log = l
		}
	}
}

// NewServer creates a new API server.
func NewServer(deps Dependencies, opts ...Option) *Server {
	s := &Server{
		deps:     deps,
		service:  "talentloop",
		version:  "1.0.0",
		maxLimit: defaultMaxLimit,
		log:      logger.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register attaches all HTTP routes to mux.
func (s *Server) Register(_ context.Context, mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", MetricsMiddleware(s.handleRoot, "root"))
	mux.HandleFunc("GET /healthz", MetricsMiddleware(handleMetrics, "healthz"))
	mux.HandleFunc("GET /stats", MetricsMiddleware(s.handleStats, "stats"))

	mux.HandleFunc("POST /api/feedback", MetricsMiddleware(s.handleFeedback, "feedback"))
	mux.HandleFunc("GET /api/policy/{job_id}", MetricsMiddleware(s.handlePolicy, "policy"))
	mux.HandleFunc("GET /api/calibration/{job_id}", MetricsMiddleware(s.handleCalibration, "calibration"))
	mux.HandleFunc("GET /api/rewards/{job_id}", MetricsMiddleware(s.handleRewards, "rewards"))
	mux.HandleFunc("GET /api/jobs/{job_id}/summary", MetricsMiddleware(s.handleSummary, "summary"))

	mux.HandleFunc("POST /api/score", MetricsMiddleware(s.handleScore, "score"))
	mux.HandleFunc("POST /api/score/batch", MetricsMiddleware(s.handleScoreBatch, "score_batch"))
	mux.HandleFunc("POST /api/evaluations", MetricsMiddleware(s.handleEvaluation, "evaluations"))
	mux.HandleFunc("GET /api/candidates/{candidate_id}", MetricsMiddleware(s.handleCandidate, "candidates"))
}

type errorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Code: code, Message: msg})
}

// fail maps a classified error to its status and body.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status int
		code   string
	)
	switch {
	case errors.Is(err, ErrBadRequest):
		status, code = http.StatusBadRequest, "bad_request"
	case errors.Is(err, ErrNotFound):
		status, code = http.StatusNotFound, "not_found"
	case errors.Is(err, ErrBackpressure):
		status, code = http.StatusTooManyRequests, "backpressure"
	case errors.Is(err, ErrUnavailable):
		status, code = http.StatusServiceUnavailable, "unavailable"
	case errors.Is(err, ErrScoring):
		status, code = http.StatusBadGateway, "no_evaluation"
	default:
		status, code = http.StatusInternalServerError, "internal_error"
	}
	if status >= http.StatusInternalServerError {
		s.log.Error(r.Context(), "request failed",
			logger.String("path", r.URL.Path),
			logger.Int("status", status),
			logger.Error(err))
		if status == http.StatusInternalServerError {
			err = NewKind(opOf(err), ErrInternal)
		}
	}
	writeError(w, status, code, err)
}

func opOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Op
	}
	return "api"
}

// classify maps domain errors onto API kinds.
func classify(op string, err error) error {
	switch {
	case errors.Is(err, feedback.ErrInvalidInput),
		errors.Is(err, evaluation.ErrInvalidRequest),
		errors.Is(err, repository.ErrInvalidLimit):
		return WrapKind(op, ErrBadRequest, err)
	case errors.Is(err, repository.ErrNotFound):
		return WrapKind(op, ErrNotFound, err)
	case errors.Is(err, queue.ErrFull):
		return WrapKind(op, ErrBackpressure, err)
	case errors.Is(err, queue.ErrClosed):
		return WrapKind(op, ErrUnavailable, err)
	default:
		return Wrap(op, err)
	}
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	return nil
}

// versionParam reads ?version=; absent means 0, which the pipeline treats as the default.
func versionParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("version")
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < model.DefaultPolicyVersion {
		return 0, fmt.Errorf("version must be an integer >= %d", model.DefaultPolicyVersion)
	}
	return v, nil
}
