// Package model contains domain models passed between layers.
package model

import "time"

// DefaultPolicyVersion is used when a caller does not pick a calibration version.
const DefaultPolicyVersion = 1

// Score bounds shared by AI and recruiter scores.
const (
	MinScore = 0
	MaxScore = 100
)

// RewardRecord is one observation of scorer error. Immutable once stored.
type RewardRecord struct {
	ID             int64  `json:"id"`
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	AIScore        int    `json:"ai_score"`
	RecruiterScore int    `json:"recruiter_score"`
	Delta          int    `json:"delta"`
	CreatedAt      int64  `json:"created_at"`
}

// PolicyState is the running calibration estimate for one (job, version).
type PolicyState struct {
	JobID       string  `json:"job_id"`
	Version     int     `json:"version"`
	Weight      float64 `json:"weight"`
	ErrorAvg    float64 `json:"error_avg"`
	SampleCount int     `json:"sample_count"`
	CreatedAt   int64   `json:"created_at"`
	UpdatedAt   int64   `json:"updated_at"`
}

// CandidateScore is the latest AI score recorded for a candidate.
type CandidateScore struct {
	CandidateID string `json:"candidate_id"`
	JobID       string `json:"job_id"`
	Score       int    `json:"score"`
	UpdatedAt   int64  `json:"updated_at"`
}

// Evaluation is a request to score one candidate asynchronously.
type Evaluation struct {
	EvaluationID         string
	CandidateID          string
	JobID                string
	CandidateDescription string
	JobRequirements      string
	SubmittedAt          time.Time
}
