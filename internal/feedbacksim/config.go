// Package feedbacksim drives a running service with concurrent recruiter
// feedback and checks that no update was lost.
package feedbacksim

import "time"

// Config holds configuration for a simulation run.
type Config struct {
	BaseURL string        // Base URL of the service
	Events  int           // Number of feedback events to submit
	Jobs    int           // Number of jobs the events are spread over
	Workers int           // Number of concurrent submitters
	Timeout time.Duration // HTTP request timeout
	Verbose bool          // Log every failed submission
}

// Feedback is one recruiter rating as posted to /api/feedback.
type Feedback struct {
	CandidateID    string `json:"candidate_id"`
	JobID          string `json:"job_id"`
	AIScore        int    `json:"ai_score"`
	RecruiterStars int    `json:"recruiter_stars"`
}

// Stats holds run statistics.
type Stats struct {
	EventsGenerated  int
	EventsSuccessful int
	EventsFailed     int
	JobsVerified     int
	StartTime        time.Time
	EndTime          time.Time
	Duration         time.Duration
}
