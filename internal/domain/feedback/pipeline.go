package feedback

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/okian/talentloop/internal/adapters/repository"
	"github.com/okian/talentloop/internal/domain/calibration"
	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/internal/domain/policy"
	"github.com/okian/talentloop/internal/domain/types"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

// SuccessMessage accompanies every committed feedback result.
const SuccessMessage = "Feedback processed successfully"

// NoDataMessage explains an empty job summary.
const NoDataMessage = "No feedback data available for this job"

// Request is one recruiter rating of a scored candidate.
type Request struct {
	CandidateID    string
	JobID          string
	AIScore        int
	RecruiterStars int
	// Version selects the calibration history; 0 means model.DefaultPolicyVersion.
	Version int
}

// Result reports what a committed feedback event recorded.
type Result struct {
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	AIScore        int    `json:"ai_score"`
	RecruiterScore int    `json:"recruiter_score"`
	Delta          int    `json:"delta"`
	RewardID       int64  `json:"reward_id"`
	Message        string `json:"message"`
}

// JobSummary combines policy state and calibration metrics for a job.
type JobSummary struct {
	JobID       string              `json:"job_id"`
	Status      types.SummaryStatus `json:"status"`
	Policy      *model.PolicyState  `json:"policy,omitempty"`
	Calibration calibration.Metrics `json:"calibration"`
	TrustLevel  types.TrustLevel    `json:"trust_level,omitempty"`
	Message     string              `json:"message,omitempty"`
}

// Invalidator drops derived state for a job after its policy changed.
type Invalidator interface {
	Invalidate(ctx context.Context, jobID string)
}

// Pipeline processes recruiter feedback.
type Pipeline struct {
	store       repository.Store
	tracker     policy.Tracker
	engine      *calibration.Engine
	invalidator Invalidator
	locks       *KeyLock
	now         func() time.Time
	log         logger.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithTracker sets the policy tracker.
func WithTracker(t policy.Tracker) Option {
	return func(p *Pipeline) { p.tracker = t }
}

// WithInvalidator registers a hook run after every committed feedback event.
func WithInvalidator(inv Invalidator) Option {
	return func(p *Pipeline) { p.invalidator = inv }
}

// WithClock overrides the time source used for created_at stamps.
func WithClock(now func() time.Time) Option {
	return func(p *Pipeline) {
		if now != nil {
			p.now = now
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l logger.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.log = l
		}
	}
}

// New builds a Pipeline on top of store.
func New(store repository.Store, opts ...Option) *Pipeline {
	p := &Pipeline{
		store:   store,
		tracker: policy.New(),
		engine:  calibration.NewEngine(store),
		locks:   NewKeyLock(),
		now:     time.Now,
		log:     logger.Nop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

// normalizeVersion maps 0 to the default version and rejects negatives.
func normalizeVersion(v int) (int, error) {
	if v == 0 {
		return model.DefaultPolicyVersion, nil
	}
	if v < model.DefaultPolicyVersion {
		return 0, invalid("version must be >= %d, got %d", model.DefaultPolicyVersion, v)
	}
	return v, nil
}

func validate(req Request) (Request, error) {
	req.CandidateID = strings.TrimSpace(req.CandidateID)
	req.JobID = strings.TrimSpace(req.JobID)
	if req.CandidateID == "" {
		return req, invalid("candidate_id is required")
	}
	if req.JobID == "" {
		return req, invalid("job_id is required")
	}
	if req.AIScore < model.MinScore || req.AIScore > model.MaxScore {
		return req, invalid("ai_score must be between %d and %d, got %d", model.MinScore, model.MaxScore, req.AIScore)
	}
	v, err := normalizeVersion(req.Version)
	if err != nil {
		return req, err
	}
	req.Version = v
	return req, nil
}

func lockKey(jobID string, version int) string {
	return jobID + "\x00" + strconv.Itoa(version)
}

// Process records one feedback event: the candidate snapshot, the reward row and
// the policy update commit together or not at all. Calls are not idempotent;
// submitting the same rating twice records two observations.
func (p *Pipeline) Process(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	defer func() {
		metrics.RecordFeedbackLatency(float64(time.Since(start).Milliseconds()))
	}()

	req, err := validate(req)
	if err != nil {
		metrics.RecordFeedback("invalid")
		return Result{}, err
	}
	recruiterScore, delta, err := ComputeDelta(req.AIScore, req.RecruiterStars)
	if err != nil {
		metrics.RecordFeedback("invalid")
		return Result{}, err
	}

	unlock := p.locks.Lock(lockKey(req.JobID, req.Version))
	defer unlock()

	now := p.now().Unix()
	var (
		rewardID int64
		state    model.PolicyState
	)
	err = p.store.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
		err := tx.SetCandidateScore(ctx, model.CandidateScore{
			CandidateID: req.CandidateID,
			JobID:       req.JobID,
			Score:       req.AIScore,
			UpdatedAt:   now,
		})
		if err != nil {
			return err
		}

		rewardID, err = tx.AppendReward(ctx, model.RewardRecord{
			CandidateID:    req.CandidateID,
			JobID:          req.JobID,
			AIScore:        req.AIScore,
			RecruiterScore: recruiterScore,
			Delta:          delta,
			CreatedAt:      now,
		})
		if err != nil {
			return err
		}

		state, err = tx.UpdatePolicy(ctx, req.JobID, req.Version, func(prev *model.PolicyState) model.PolicyState {
			return p.tracker.Next(prev, req.JobID, req.Version, delta, now)
		})
		return err
	})
	if err != nil {
		metrics.RecordFeedback("failed")
		metrics.RecordErrorByComponent("feedback", "persistence")
		p.log.Error(ctx, "feedback not recorded",
			logger.String("job_id", req.JobID),
			logger.String("candidate_id", req.CandidateID),
			logger.Error(err))
		return Result{}, err
	}

	if p.invalidator != nil {
		p.invalidator.Invalidate(ctx, req.JobID)
	}
	metrics.RecordFeedback("applied")
	metrics.RecordRewardDelta(float64(delta))
	metrics.RecordPolicyUpdate(state.Weight)

	p.log.Debug(ctx, "feedback recorded",
		logger.String("job_id", req.JobID),
		logger.Int("version", req.Version),
		logger.Int64("reward_id", rewardID),
		logger.Int("delta", delta),
		logger.Int("sample_count", state.SampleCount),
		logger.Float64("weight", state.Weight))

	return Result{
		CandidateID:    req.CandidateID,
		JobID:          req.JobID,
		AIScore:        req.AIScore,
		RecruiterScore: recruiterScore,
		Delta:          delta,
		RewardID:       rewardID,
		Message:        SuccessMessage,
	}, nil
}

// PolicyStats returns the policy state for (jobID, version). A missing state is
// reported as found == false with a nil error.
func (p *Pipeline) PolicyStats(ctx context.Context, jobID string, version int) (model.PolicyState, bool, error) {
	if strings.TrimSpace(jobID) == "" {
		return model.PolicyState{}, false, invalid("job_id is required")
	}
	v, err := normalizeVersion(version)
	if err != nil {
		return model.PolicyState{}, false, err
	}

	st, err := p.store.Policy(ctx, jobID, v)
	if errors.Is(err, repository.ErrNotFound) {
		return model.PolicyState{}, false, nil
	}
	if err != nil {
		return model.PolicyState{}, false, err
	}
	return st, true, nil
}

// History returns up to limit rewards for jobID, newest first.
func (p *Pipeline) History(ctx context.Context, jobID string, limit int) ([]model.RewardRecord, error) {
	if limit < 1 {
		return nil, invalid("limit must be >= 1, got %d", limit)
	}
	return p.store.RewardHistory(ctx, jobID, limit)
}

// Calibration computes calibration metrics for jobID across all versions.
func (p *Pipeline) Calibration(ctx context.Context, jobID string) (calibration.Metrics, error) {
	return p.engine.Metrics(ctx, jobID)
}

// Summary combines policy state, metrics and a trust bucket for a job.
func (p *Pipeline) Summary(ctx context.Context, jobID string, version int) (JobSummary, error) {
	st, found, err := p.PolicyStats(ctx, jobID, version)
	if err != nil {
		return JobSummary{}, err
	}
	m, err := p.engine.Metrics(ctx, jobID)
	if err != nil {
		return JobSummary{}, err
	}

	if !found {
		return JobSummary{
			JobID:       jobID,
			Status:      types.StatusNoData,
			Calibration: m,
			Message:     NoDataMessage,
		}, nil
	}
	return JobSummary{
		JobID:       jobID,
		Status:      types.StatusActive,
		Policy:      &st,
		Calibration: m,
		TrustLevel:  types.TrustLevelFor(st.Weight),
	}, nil
}
