// Package repository persists reward observations, policy states and candidate
// score snapshots.
package repository

import (
	"context"

	"github.com/okian/talentloop/internal/domain/model"
)

// PolicyUpdate computes the next policy state from the previous one. prev is
// nil when no state exists yet for the (job, version) pair.
type PolicyUpdate func(prev *model.PolicyState) model.PolicyState

// Tx is the write side of a store, valid only inside Store.Atomically.
type Tx interface {
	// SetCandidateScore upserts the latest AI score for a candidate.
	SetCandidateScore(ctx context.Context, score model.CandidateScore) error
	// AppendReward stores an immutable reward row and returns its id.
	// Ids are unique and strictly increasing across all writers.
	AppendReward(ctx context.Context, rec model.RewardRecord) (int64, error)
	// UpdatePolicy runs fn against the current state of (jobID, version) and
	// stores its result. No other transaction observes the state in between.
	UpdatePolicy(ctx context.Context, jobID string, version int, fn PolicyUpdate) (model.PolicyState, error)
}

// Stats counts stored rows.
type Stats struct {
	Rewards    int64 `json:"rewards"`
	Policies   int64 `json:"policies"`
	Candidates int64 `json:"candidates"`
}

// Store provides read/write access to the feedback loop state.
type Store interface {
	// Atomically runs fn in one transaction. Nothing fn wrote is visible
	// unless fn returns nil and the commit succeeds.
	Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	// RewardHistory returns up to limit rewards for a job, newest first.
	// Returns ErrInvalidLimit when limit < 1.
	RewardHistory(ctx context.Context, jobID string, limit int) ([]model.RewardRecord, error)
	// RewardDeltas returns every delta recorded for a job in insertion order.
	RewardDeltas(ctx context.Context, jobID string) ([]int, error)

	// Policy returns the policy state or ErrNotFound.
	Policy(ctx context.Context, jobID string, version int) (model.PolicyState, error)

	// Candidate returns the candidate snapshot or ErrNotFound.
	Candidate(ctx context.Context, candidateID string) (model.CandidateScore, error)
	// SaveCandidateScore upserts a snapshot outside of a feedback transaction.
	SaveCandidateScore(ctx context.Context, score model.CandidateScore) error

	Stats(ctx context.Context) (Stats, error)
	Close() error
}
