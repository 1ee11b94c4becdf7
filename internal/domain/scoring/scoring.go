// Package scoring defines the contract for scoring a candidate against a job.
package scoring

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/pkg/metrics"
)

// Default keyword scorer configuration.
const (
	defaultMinTermLength = 2
	defaultRandomSeed    = 42
)

// Input carries what a scorer needs to rate one candidate.
type Input struct {
	CandidateDescription string
	JobRequirements      string
	// CalibrationContext is guidance derived from recruiter feedback; it may be empty.
	CalibrationContext string
}

// Outcome is either Scored or Unparsed.
type Outcome interface {
	outcome()
}

// Scored is a usable score in [model.MinScore, model.MaxScore].
type Scored struct {
	Score int
}

// Unparsed means the scorer answered but no score could be extracted.
type Unparsed struct {
	Raw    string
	Reason string
}

func (Scored) outcome()   {}
func (Unparsed) outcome() {}

// ScoreOf returns the score of a Scored outcome.
func ScoreOf(o Outcome) (int, bool) {
	s, ok := o.(Scored)
	if !ok {
		return 0, false
	}
	return s.Score, true
}

// Scorer rates a candidate description against job requirements.
type Scorer interface {
	// Score computes an outcome, honoring ctx for cancellation. Transport
	// failures are errors; unusable answers are Unparsed.
	Score(ctx context.Context, in Input) (Outcome, error)
}

// Clamp bounds v to the score range.
func Clamp(v int) int {
	return max(model.MinScore, min(model.MaxScore, v))
}

// Option applies a configuration option to the KeywordScorer.
type Option func(*KeywordScorer)

// WithLatencyRange sets a simulated latency range.
func WithLatencyRange(minLatency, maxLatency time.Duration) Option {
	return func(s *KeywordScorer) {
		if minLatency > 0 && maxLatency > minLatency {
			s.minLatency = minLatency
			s.maxLatency = maxLatency
		}
	}
}

// WithMinTermLength ignores requirement words shorter than n runes.
func WithMinTermLength(n int) Option {
	return func(s *KeywordScorer) {
		if n > 0 {
			s.minTermLength = n
		}
	}
}

// WithStopWords replaces the set of words ignored in requirements.
func WithStopWords(words ...string) Option {
	return func(s *KeywordScorer) {
		s.stopWords = make(map[string]struct{}, len(words))
		for _, w := range words {
			s.stopWords[strings.ToLower(w)] = struct{}{}
		}
	}
}

// KeywordScorer scores by the share of requirement terms found in the
// candidate description. It runs offline and ignores calibration guidance.
type KeywordScorer struct {
	minTermLength int
	stopWords     map[string]struct{}

	minLatency time.Duration
	maxLatency time.Duration
	mu         sync.Mutex
	rng        *rand.Rand
}

var _ Scorer = (*KeywordScorer)(nil)

// NewKeywordScorer creates a keyword scorer with configuration options.
func NewKeywordScorer(opts ...Option) *KeywordScorer {
	s := &KeywordScorer{
		minTermLength: defaultMinTermLength,
		stopWords:     defaultStopWords(),
		rng:           rand.New(rand.NewSource(defaultRandomSeed)), //nolint:gosec // deterministic seed for reproducible latency
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func defaultStopWords() map[string]struct{} {
	words := []string{
		"and", "the", "with", "for", "years", "year", "experience", "must", "have",
		"required", "preferred", "plus", "strong", "knowledge", "ability", "skills",
		"working", "our", "you", "your", "are", "will", "who", "least",
		"of", "in", "to", "an", "or", "on", "at", "is", "be", "as",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}

// Score computes the keyword coverage score for in.
func (s *KeywordScorer) Score(ctx context.Context, in Input) (Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency("keyword", float64(time.Since(start).Milliseconds()))
	}()

	if err := s.wait(ctx); err != nil {
		return nil, err
	}

	terms := s.terms(in.JobRequirements)
	if len(terms) == 0 {
		return Unparsed{Raw: in.JobRequirements, Reason: "job requirements contain no usable terms"}, nil
	}

	have := make(map[string]struct{})
	for _, w := range tokenize(in.CandidateDescription) {
		have[w] = struct{}{}
	}
	matched := 0
	for _, t := range terms {
		if _, ok := have[t]; ok {
			matched++
		}
	}

	score := int(math.Round(float64(matched) / float64(len(terms)) * model.MaxScore))
	return Scored{Score: Clamp(score)}, nil
}

func (s *KeywordScorer) wait(ctx context.Context) error {
	if s.maxLatency <= 0 {
		return ctx.Err()
	}
	s.mu.Lock()
	latency := s.minLatency + time.Duration(s.rng.Int63n(int64(s.maxLatency-s.minLatency)))
	s.mu.Unlock()

	t := time.NewTimer(latency)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("context cancelled: %w", ctx.Err())
	case <-t.C:
		return nil
	}
}

// terms returns the distinct requirement words in first-seen order.
func (s *KeywordScorer) terms(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, w := range tokenize(text) {
		if len([]rune(w)) < s.minTermLength {
			continue
		}
		if _, stop := s.stopWords[w]; stop {
			continue
		}
		if _, dup := seen[w]; dup {
			continue
		}
		seen[w] = struct{}{}
		out = append(out, w)
	}
	return out
}

// tokenize lowercases text and splits it on anything that is not a letter,
// digit, '+' or '#', so "C++" and "C#" survive.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '+' && r != '#'
	})
}
