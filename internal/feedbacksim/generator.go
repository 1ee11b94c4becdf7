package feedbacksim

import (
	"crypto/rand"
	"math/big"
	"strconv"

	"github.com/google/uuid"

	"github.com/okian/talentloop/internal/domain/feedback"
	"github.com/okian/talentloop/internal/domain/model"
)

func randomInt(minVal, maxVal int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxVal-minVal+1)))
	if err != nil {
		return minVal
	}
	return minVal + int(n.Int64())
}

// generateFeedback spreads cfg.Events ratings round-robin over cfg.Jobs fresh
// job ids so repeated runs never share state.
func generateFeedback(cfg *Config) []Feedback {
	run := uuid.NewString()[:8]
	jobs := make([]string, cfg.Jobs)
	for i := range jobs {
		jobs[i] = "sim-" + run + "-job-" + strconv.Itoa(i)
	}

	events := make([]Feedback, cfg.Events)
	for i := range events {
		events[i] = Feedback{
			CandidateID:    "sim-" + run + "-cand-" + strconv.Itoa(i),
			JobID:          jobs[i%len(jobs)],
			AIScore:        randomInt(model.MinScore, model.MaxScore),
			RecruiterStars: randomInt(feedback.MinStars, feedback.MaxStars),
		}
	}
	return events
}
