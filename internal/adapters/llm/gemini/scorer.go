package gemini

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/kaptinlin/jsonrepair"

	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/internal/domain/scoring"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

const (
	scorerName          = "gemini"
	defaultMaxLogLength = 512
)

type contentGenerator interface {
	GenerateContent(ctx context.Context, prompt string) (string, error)
	Model() string
}

// Scorer implements scoring.Scorer on top of a Gemini generator.
type Scorer struct {
	generator    contentGenerator
	log          logger.Logger
	maxLogLength int
}

var _ scoring.Scorer = (*Scorer)(nil)

// Option configures a Scorer.
type Option func(*Scorer)

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scorer) {
		if l != nil {
			s.log = l
		}
	}
}

// WithMaxLogLength truncates raw model answers in logs to n bytes.
func WithMaxLogLength(n int) Option {
	return func(s *Scorer) {
		if n > 0 {
			s.maxLogLength = n
		}
	}
}

// NewScorer builds a Scorer around generator.
func NewScorer(generator contentGenerator, opts ...Option) *Scorer {
	s := &Scorer{
		generator:    generator,
		log:          logger.Nop(),
		maxLogLength: defaultMaxLogLength,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Score asks the model for a score. Transport failures are errors; answers
// without a usable score are scoring.Unparsed.
func (s *Scorer) Score(ctx context.Context, in scoring.Input) (scoring.Outcome, error) {
	start := time.Now()
	defer func() {
		metrics.RecordScoringLatency(scorerName, float64(time.Since(start).Milliseconds()))
	}()

	raw, err := s.generator.GenerateContent(ctx, scoring.BuildPrompt(in))
	if err != nil {
		metrics.RecordScoringError("transport")
		s.log.Warn(ctx, "gemini request failed",
			logger.String("model", s.generator.Model()),
			logger.Error(err))
		return nil, fmt.Errorf("gemini score: %w", err)
	}

	out := parseResponse(raw)
	if u, ok := out.(scoring.Unparsed); ok {
		metrics.RecordScoringError("unparsed")
		s.log.Warn(ctx, "gemini answer has no usable score",
			logger.String("model", s.generator.Model()),
			logger.String("reason", u.Reason),
			logger.String("raw", truncate(raw, s.maxLogLength)))
	}
	return out, nil
}

func parseResponse(raw string) scoring.Outcome {
	cleaned := extractJSON(raw)
	if cleaned == "" {
		return scoring.Unparsed{Raw: raw, Reason: "no JSON object in answer"}
	}

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		repaired, repairErr := jsonrepair.JSONRepair(cleaned)
		if repairErr != nil {
			return scoring.Unparsed{Raw: raw, Reason: fmt.Sprintf("invalid JSON: %v", err)}
		}
		if err := json.Unmarshal([]byte(repaired), &data); err != nil {
			return scoring.Unparsed{Raw: raw, Reason: fmt.Sprintf("invalid JSON after repair: %v", err)}
		}
	}

	v, present := data["score"]
	if !present {
		return scoring.Unparsed{Raw: raw, Reason: "score field missing"}
	}
	f := coerceFloat(v)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return scoring.Unparsed{Raw: raw, Reason: "score is not a number"}
	}
	score := int(math.Round(f))
	if score < model.MinScore || score > model.MaxScore {
		return scoring.Unparsed{Raw: raw, Reason: fmt.Sprintf("score %d out of range", score)}
	}
	return scoring.Scored{Score: score}
}

// extractJSON strips code fences and returns the first balanced JSON object.
// When the object is never closed the remainder is returned for repair.
func extractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.TrimSpace(strings.Trim(raw, "`"))

	start := strings.Index(raw, "{")
	if start == -1 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		ch := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return raw[start : i+1]
			}
		}
	}
	return raw[start:]
}

func coerceFloat(v any) float64 {
	switch val := v.(type) {
	case float64:
		return val
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return math.NaN()
		}
		return f
	default:
		return math.NaN()
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
