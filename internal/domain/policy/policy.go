// Package policy implements the per-job trust estimate that is updated from
// every recruiter feedback event.
//
// The error average is an exponential moving average of |delta| seeded with the
// first observation. The weight is a clamped linear function of that average so
// a perfectly calibrated scorer has weight 1 and the weight never reaches 0.
package policy

import (
	"math"

	"github.com/okian/talentloop/internal/domain/model"
)

// Defaults for the tracker tunables.
const (
	DefaultAlpha       = 0.7
	DefaultWeightFloor = 0.05
)

// Tracker computes successive policy states. The zero value is not useful;
// build one with New.
type Tracker struct {
	alpha       float64
	weightFloor float64
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithAlpha sets the smoothing factor applied to the previous error average.
// Values outside [0,1) are ignored.
func WithAlpha(alpha float64) Option {
	return func(t *Tracker) {
		if alpha >= 0 && alpha < 1 {
			t.alpha = alpha
		}
	}
}

// WithWeightFloor sets the minimum weight. Values outside (0,1] are ignored.
func WithWeightFloor(floor float64) Option {
	return func(t *Tracker) {
		if floor > 0 && floor <= 1 {
			t.weightFloor = floor
		}
	}
}

// New returns a Tracker with defaults overridden by opts.
func New(opts ...Option) Tracker {
	t := Tracker{alpha: DefaultAlpha, weightFloor: DefaultWeightFloor}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

// Alpha returns the configured smoothing factor.
func (t Tracker) Alpha() float64 { return t.alpha }

// WeightFloor returns the configured minimum weight.
func (t Tracker) WeightFloor() float64 { return t.weightFloor }

// Weight maps an error average to a trust weight in [floor, 1].
func (t Tracker) Weight(errorAvg float64) float64 {
	w := 1 - errorAvg/float64(model.MaxScore)
	return math.Min(1, math.Max(t.weightFloor, w))
}

// Next folds one delta into prev. A nil prev, or one with no samples, starts a
// fresh state stamped with now.
func (t Tracker) Next(prev *model.PolicyState, jobID string, version, delta int, now int64) model.PolicyState {
	absDelta := math.Abs(float64(delta))

	if prev == nil || prev.SampleCount <= 0 {
		return model.PolicyState{
			JobID:       jobID,
			Version:     version,
			Weight:      t.Weight(absDelta),
			ErrorAvg:    absDelta,
			SampleCount: 1,
			CreatedAt:   now,
			UpdatedAt:   now,
		}
	}

	errorAvg := prev.ErrorAvg*t.alpha + absDelta*(1-t.alpha)
	createdAt := prev.CreatedAt
	if createdAt == 0 {
		createdAt = now
	}
	return model.PolicyState{
		JobID:       jobID,
		Version:     version,
		Weight:      t.Weight(errorAvg),
		ErrorAvg:    errorAvg,
		SampleCount: prev.SampleCount + 1,
		CreatedAt:   createdAt,
		UpdatedAt:   now,
	}
}
