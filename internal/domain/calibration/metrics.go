// Package calibration derives scorer calibration statistics from recorded
// reward deltas and turns them into guidance for the scoring prompt.
package calibration

import (
	"context"
	"fmt"
	"math"
)

// Metrics summarizes the scorer's error for a job across all versions.
// MAE, Bias and RMSE are nil when there are no samples.
type Metrics struct {
	JobID       string   `json:"job_id"`
	SampleCount int      `json:"sample_count"`
	MAE         *float64 `json:"mae"`
	Bias        *float64 `json:"bias"`
	RMSE        *float64 `json:"rmse"`
}

// Defined reports whether the statistics carry values.
func (m Metrics) Defined() bool {
	return m.SampleCount > 0 && m.MAE != nil && m.Bias != nil && m.RMSE != nil
}

// ComputeMetrics is a pure function of the delta multiset.
func ComputeMetrics(jobID string, deltas []int) Metrics {
	m := Metrics{JobID: jobID, SampleCount: len(deltas)}
	if len(deltas) == 0 {
		return m
	}

	var sum, sumAbs, sumSq float64
	for _, d := range deltas {
		f := float64(d)
		sum += f
		sumAbs += math.Abs(f)
		sumSq += f * f
	}
	n := float64(len(deltas))
	bias := sum / n
	mae := sumAbs / n
	rmse := math.Sqrt(sumSq / n)

	m.Bias = &bias
	m.MAE = &mae
	m.RMSE = &rmse
	return m
}

// DeltaSource loads reward deltas for a job.
type DeltaSource interface {
	RewardDeltas(ctx context.Context, jobID string) ([]int, error)
}

// Engine computes metrics from stored rewards.
type Engine struct {
	deltas DeltaSource
}

// NewEngine returns an Engine reading from src.
func NewEngine(src DeltaSource) *Engine {
	return &Engine{deltas: src}
}

// Metrics loads every delta for jobID and summarizes it.
func (e *Engine) Metrics(ctx context.Context, jobID string) (Metrics, error) {
	deltas, err := e.deltas.RewardDeltas(ctx, jobID)
	if err != nil {
		return Metrics{}, fmt.Errorf("load deltas for %s: %w", jobID, err)
	}
	return ComputeMetrics(jobID, deltas), nil
}
