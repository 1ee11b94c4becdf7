package calibration

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"

	"github.com/okian/talentloop/internal/adapters/repository"
	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

// Defaults for the guidance thresholds.
const (
	DefaultMinSamples     = 2
	DefaultBiasThreshold  = 5.0
	DefaultMAEThreshold   = 15.0
	DefaultLowTrustWeight = 0.5
)

// PolicySource loads policy states; a missing state is repository.ErrNotFound.
type PolicySource interface {
	Policy(ctx context.Context, jobID string, version int) (model.PolicyState, error)
}

// Cache stores generated guidance per job.
type Cache interface {
	Get(ctx context.Context, jobID string) (string, bool, error)
	Set(ctx context.Context, jobID, text string) error
	Invalidate(ctx context.Context, jobID string) error
}

// ContextGenerator turns policy and metrics into prompt guidance.
type ContextGenerator struct {
	policies PolicySource
	engine   *Engine
	cache    Cache
	log      logger.Logger

	// gens counts invalidations per job. mu orders cache writes against
	// Invalidate so guidance computed before a commit is never stored after it.
	mu   sync.Mutex
	gens map[string]uint64

	minSamples     int
	biasThreshold  float64
	maeThreshold   float64
	lowTrustWeight float64
}

// Option configures a ContextGenerator.
type Option func(*ContextGenerator)

// WithMinSamples sets how many feedback samples are needed before any guidance is given.
func WithMinSamples(n int) Option {
	return func(g *ContextGenerator) {
		if n > 0 {
			g.minSamples = n
		}
	}
}

// WithBiasThreshold sets the |bias| above which a shift instruction is emitted.
func WithBiasThreshold(v float64) Option {
	return func(g *ContextGenerator) {
		if v >= 0 {
			g.biasThreshold = v
		}
	}
}

// WithMAEThreshold sets the MAE above which a precision warning is emitted.
func WithMAEThreshold(v float64) Option {
	return func(g *ContextGenerator) {
		if v >= 0 {
			g.maeThreshold = v
		}
	}
}

// WithLowTrustWeight sets the weight below which a low-confidence notice is emitted.
func WithLowTrustWeight(v float64) Option {
	return func(g *ContextGenerator) {
		if v > 0 && v <= 1 {
			g.lowTrustWeight = v
		}
	}
}

// WithCache enables caching of generated guidance.
func WithCache(c Cache) Option {
	return func(g *ContextGenerator) { g.cache = c }
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(g *ContextGenerator) {
		if l != nil {
			g.log = l
		}
	}
}

// NewContextGenerator builds a generator over policies and engine.
func NewContextGenerator(policies PolicySource, engine *Engine, opts ...Option) *ContextGenerator {
	g := &ContextGenerator{
		policies:       policies,
		engine:         engine,
		log:            logger.Nop(),
		gens:           make(map[string]uint64),
		minSamples:     DefaultMinSamples,
		biasThreshold:  DefaultBiasThreshold,
		maeThreshold:   DefaultMAEThreshold,
		lowTrustWeight: DefaultLowTrustWeight,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Context returns guidance for scoring candidates of jobID, or "" when there is
// not enough signal. It never fails: errors and panics are logged and yield "".
func (g *ContextGenerator) Context(ctx context.Context, jobID string) (text string) {
	defer func() {
		if r := recover(); r != nil {
			g.log.Error(ctx, "calibration context panicked", logger.String("job_id", jobID), logger.Any("panic", r))
			metrics.RecordContextRequest("error")
			text = ""
		}
	}()

	if strings.TrimSpace(jobID) == "" {
		metrics.RecordContextRequest("empty")
		return ""
	}

	var gen uint64
	if g.cache != nil {
		gen = g.generation(jobID)
		cached, ok, err := g.cache.Get(ctx, jobID)
		switch {
		case err != nil:
			g.log.Warn(ctx, "calibration cache read failed", logger.String("job_id", jobID), logger.Error(err))
		case ok:
			metrics.RecordContextRequest("hit")
			return cached
		}
	}

	text, err := g.compose(ctx, jobID)
	if err != nil {
		g.log.Error(ctx, "calibration context unavailable", logger.String("job_id", jobID), logger.Error(err))
		metrics.RecordContextRequest("error")
		return ""
	}

	if g.cache != nil {
		g.store(ctx, jobID, text, gen)
	}
	if text == "" {
		metrics.RecordContextRequest("empty")
	} else {
		metrics.RecordContextRequest("miss")
	}
	return text
}

func (g *ContextGenerator) generation(jobID string) uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.gens[jobID]
}

// store caches text unless jobID was invalidated since gen was read.
func (g *ContextGenerator) store(ctx context.Context, jobID, text string, gen uint64) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.gens[jobID] != gen {
		g.log.Debug(ctx, "calibration context outdated, not cached", logger.String("job_id", jobID))
		return
	}
	if err := g.cache.Set(ctx, jobID, text); err != nil {
		g.log.Warn(ctx, "calibration cache write failed", logger.String("job_id", jobID), logger.Error(err))
	}
}

// Invalidate drops cached guidance for jobID. Guidance composed before the
// call is not cached afterwards.
func (g *ContextGenerator) Invalidate(ctx context.Context, jobID string) {
	if g.cache == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	g.gens[jobID]++
	if err := g.cache.Invalidate(ctx, jobID); err != nil {
		g.log.Warn(ctx, "calibration cache invalidation failed", logger.String("job_id", jobID), logger.Error(err))
	}
}

func (g *ContextGenerator) compose(ctx context.Context, jobID string) (string, error) {
	st, err := g.policies.Policy(ctx, jobID, model.DefaultPolicyVersion)
	if errors.Is(err, repository.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("load policy: %w", err)
	}
	if st.SampleCount < g.minSamples {
		return "", nil
	}

	m, err := g.engine.Metrics(ctx, jobID)
	if err != nil {
		return "", err
	}

	var lines []string
	if m.Defined() {
		bias := *m.Bias
		switch {
		case bias > g.biasThreshold:
			lines = append(lines, fmt.Sprintf(
				"Recruiters rated candidates about %.1f points higher than you did. You tend to underrate; raise your scores by roughly %.1f points.",
				bias, bias))
		case bias < -g.biasThreshold:
			lines = append(lines, fmt.Sprintf(
				"Recruiters rated candidates about %.1f points lower than you did. You tend to overrate; lower your scores by roughly %.1f points.",
				math.Abs(bias), math.Abs(bias)))
		}
		if *m.MAE > g.maeThreshold {
			lines = append(lines, fmt.Sprintf(
				"Your scores differ from recruiter judgement by %.1f points on average. Check each requirement against the candidate evidence before scoring.",
				*m.MAE))
		}
	}
	if st.Weight < g.lowTrustWeight {
		lines = append(lines, fmt.Sprintf(
			"Confidence in automated scores for this job is low (trust weight %.2f). Avoid extreme scores unless the evidence is unambiguous.",
			st.Weight))
	}
	if len(lines) == 0 {
		return "", nil
	}

	var b strings.Builder
	fmt.Fprintf(&b, "CALIBRATION NOTES (from %d recruiter reviews of your past scores for this job):\n", m.SampleCount)
	for _, l := range lines {
		b.WriteString("- ")
		b.WriteString(l)
		b.WriteString("\n")
	}
	return b.String(), nil
}
