package feedbacksim

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"sort"

	"github.com/okian/talentloop/internal/domain/calibration"
	"github.com/okian/talentloop/internal/domain/feedback"
	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/pkg/logger"
)

const metricTolerance = 1e-6

// expectation is what the service must report for one job.
type expectation struct {
	deltas []int
}

func expectations(events []Feedback, accepted []bool) (map[string]*expectation, error) {
	out := make(map[string]*expectation)
	for i, ev := range events {
		if !accepted[i] {
			continue
		}
		_, delta, err := feedback.ComputeDelta(ev.AIScore, ev.RecruiterStars)
		if err != nil {
			return nil, err
		}
		exp, ok := out[ev.JobID]
		if !ok {
			exp = &expectation{}
			out[ev.JobID] = exp
		}
		exp.deltas = append(exp.deltas, delta)
	}
	return out, nil
}

// verifyJobs checks policy sample counts and calibration metrics for every job
// against what was accepted. Deltas are order independent so the expected
// metrics do not depend on how submissions interleaved.
func verifyJobs(ctx context.Context, cfg *Config, events []Feedback, accepted []bool, stats *Stats) error {
	log := logger.Get()
	exps, err := expectations(events, accepted)
	if err != nil {
		return err
	}

	jobs := make([]string, 0, len(exps))
	for job := range exps {
		jobs = append(jobs, job)
	}
	sort.Strings(jobs)

	client := newHTTPClient(cfg.Timeout)
	for _, job := range jobs {
		exp := exps[job]

		var st model.PolicyState
		status, err := client.Get(ctx, cfg.BaseURL+"/api/policy/"+job, &st)
		if err != nil {
			return fmt.Errorf("get policy %s: %w", job, err)
		}
		if status != http.StatusOK {
			return fmt.Errorf("%w: policy %s answered %d", ErrLostUpdate, job, status)
		}
		if st.SampleCount != len(exp.deltas) {
			return fmt.Errorf("%w: job %s has sample_count %d, want %d", ErrLostUpdate, job, st.SampleCount, len(exp.deltas))
		}

		var got calibration.Metrics
		if _, err := client.Get(ctx, cfg.BaseURL+"/api/calibration/"+job, &got); err != nil {
			return fmt.Errorf("get calibration %s: %w", job, err)
		}
		if err := compareMetrics(got, calibration.ComputeMetrics(job, exp.deltas)); err != nil {
			return fmt.Errorf("%w: job %s: %w", ErrLostUpdate, job, err)
		}

		stats.JobsVerified++
		log.Debug(ctx, "job verified",
			logger.String("job_id", job),
			logger.Int("samples", st.SampleCount),
			logger.Float64("weight", st.Weight))
	}
	return nil
}

func compareMetrics(got, want calibration.Metrics) error {
	if got.SampleCount != want.SampleCount {
		return fmt.Errorf("calibration sample_count %d, want %d", got.SampleCount, want.SampleCount)
	}
	for _, m := range []struct {
		name      string
		got, want *float64
	}{
		{"mae", got.MAE, want.MAE},
		{"bias", got.Bias, want.Bias},
		{"rmse", got.RMSE, want.RMSE},
	} {
		if (m.got == nil) != (m.want == nil) {
			return fmt.Errorf("%s presence mismatch", m.name)
		}
		if m.got != nil && math.Abs(*m.got-*m.want) > metricTolerance {
			return fmt.Errorf("%s %.6f, want %.6f", m.name, *m.got, *m.want)
		}
	}
	return nil
}
