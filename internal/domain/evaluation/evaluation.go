// Package evaluation scores candidates with calibration guidance applied.
package evaluation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/okian/talentloop/internal/domain/scoring"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

const (
	defaultConcurrency = 4
	defaultTimeout     = 20 * time.Second
)

// ContextSource yields calibration guidance for a job; "" means none.
type ContextSource interface {
	Context(ctx context.Context, jobID string) string
}

// Request asks for one candidate score.
type Request struct {
	JobID                string
	CandidateDescription string
	JobRequirements      string
}

// Evaluation is a usable score.
type Evaluation struct {
	Score int `json:"score"`
	// Calibrated reports whether calibration guidance was part of the prompt.
	Calibrated bool `json:"calibrated"`
}

// Candidate is one entry of a batch.
type Candidate struct {
	CandidateID string `json:"candidate_id"`
	Description string `json:"description"`
}

// Result is the score of one batch candidate.
type Result struct {
	CandidateID string `json:"candidate_id"`
	Score       int    `json:"score"`
}

// Batch holds the scored candidates in input order and the ids of those that
// could not be scored.
type Batch struct {
	Results    []Result `json:"results"`
	Dropped    []string `json:"dropped"`
	Calibrated bool     `json:"calibrated"`
}

// Evaluator runs a Scorer with calibration guidance.
type Evaluator struct {
	scorer      scoring.Scorer
	contexts    ContextSource
	concurrency int
	timeout     time.Duration
	log         logger.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithContextSource sets where calibration guidance comes from.
func WithContextSource(src ContextSource) Option {
	return func(e *Evaluator) { e.contexts = src }
}

// WithConcurrency bounds how many batch candidates are scored at once.
func WithConcurrency(n int) Option {
	return func(e *Evaluator) {
		if n > 0 {
			e.concurrency = n
		}
	}
}

// WithTimeout bounds each scorer call.
func WithTimeout(d time.Duration) Option {
	return func(e *Evaluator) {
		if d > 0 {
			e.timeout = d
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Evaluator) {
		if l != nil {
			e.log = l
		}
	}
}

// New builds an Evaluator around scorer.
func New(scorer scoring.Scorer, opts ...Option) *Evaluator {
	e := &Evaluator{
		scorer:      scorer,
		concurrency: defaultConcurrency,
		timeout:     defaultTimeout,
		log:         logger.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Evaluator) guidance(ctx context.Context, jobID string) string {
	if e.contexts == nil || strings.TrimSpace(jobID) == "" {
		return ""
	}
	return e.contexts.Context(ctx, jobID)
}

// Evaluate scores one candidate. A scorer answer without a score is
// ErrNoEvaluation.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Evaluation, error) {
	if strings.TrimSpace(req.CandidateDescription) == "" {
		return Evaluation{}, fmt.Errorf("%w: candidate_description is required", ErrInvalidRequest)
	}
	if strings.TrimSpace(req.JobRequirements) == "" {
		return Evaluation{}, fmt.Errorf("%w: job_requirements is required", ErrInvalidRequest)
	}

	guidance := e.guidance(ctx, req.JobID)
	score, err := e.score(ctx, scoring.Input{
		CandidateDescription: req.CandidateDescription,
		JobRequirements:      req.JobRequirements,
		CalibrationContext:   guidance,
	})
	if err != nil {
		metrics.RecordEvaluation("failed")
		return Evaluation{}, err
	}
	metrics.RecordEvaluation("scored")
	return Evaluation{Score: score, Calibrated: guidance != ""}, nil
}

func (e *Evaluator) score(ctx context.Context, in scoring.Input) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	out, err := e.scorer.Score(ctx, in)
	if err != nil {
		return 0, err
	}
	switch o := out.(type) {
	case scoring.Scored:
		return o.Score, nil
	case scoring.Unparsed:
		return 0, fmt.Errorf("%w: %s", ErrNoEvaluation, o.Reason)
	default:
		return 0, ErrNoEvaluation
	}
}

// EvaluateAll scores every candidate against the same job with bounded
// concurrency. Guidance is fetched once for the batch. A failing candidate is
// logged and listed in Dropped; it never stops the others.
func (e *Evaluator) EvaluateAll(ctx context.Context, jobID, requirements string, candidates []Candidate) (Batch, error) {
	if strings.TrimSpace(requirements) == "" {
		return Batch{}, fmt.Errorf("%w: job_requirements is required", ErrInvalidRequest)
	}

	guidance := e.guidance(ctx, jobID)
	scores := make([]int, len(candidates))
	ok := make([]bool, len(candidates))

	var g errgroup.Group
	g.SetLimit(e.concurrency)
	for i, c := range candidates {
		g.Go(func() error {
			if strings.TrimSpace(c.Description) == "" {
				e.log.Warn(ctx, "batch candidate without description",
					logger.String("job_id", jobID),
					logger.String("candidate_id", c.CandidateID))
				return nil
			}
			s, err := e.score(ctx, scoring.Input{
				CandidateDescription: c.Description,
				JobRequirements:      requirements,
				CalibrationContext:   guidance,
			})
			if err != nil {
				metrics.RecordEvaluation("failed")
				e.log.Warn(ctx, "batch candidate not scored",
					logger.String("job_id", jobID),
					logger.String("candidate_id", c.CandidateID),
					logger.Error(err))
				return nil
			}
			metrics.RecordEvaluation("scored")
			scores[i] = s
			ok[i] = true
			return nil
		})
	}
	_ = g.Wait()

	batch := Batch{
		Results:    make([]Result, 0, len(candidates)),
		Dropped:    []string{},
		Calibrated: guidance != "",
	}
	for i, c := range candidates {
		if ok[i] {
			batch.Results = append(batch.Results, Result{CandidateID: c.CandidateID, Score: scores[i]})
		} else {
			batch.Dropped = append(batch.Dropped, c.CandidateID)
		}
	}
	return batch, nil
}
