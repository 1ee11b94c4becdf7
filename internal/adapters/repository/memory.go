package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

type policyKey struct {
	jobID   string
	version int
}

// MemoryStore keeps everything in process memory. Transactions hold the write
// lock for their whole duration and stage their writes until commit.
type MemoryStore struct {
	mu         sync.RWMutex
	nextID     int64
	rewards    []model.RewardRecord
	byJob      map[string][]int // indexes into rewards, ascending id
	policies   map[policyKey]model.PolicyState
	candidates map[string]model.CandidateScore
	closed     bool

	log logger.Logger
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}
	return &MemoryStore{
		byJob:      make(map[string][]int),
		policies:   make(map[policyKey]model.PolicyState),
		candidates: make(map[string]model.CandidateScore),
		log:        s.log.Named("memory_store"),
	}
}

// memTx stages writes on top of the store; it is only used while the store
// write lock is held.
type memTx struct {
	s          *MemoryStore
	nextID     int64
	rewards    []model.RewardRecord
	policies   map[policyKey]model.PolicyState
	candidates map[string]model.CandidateScore
}

// Atomically runs fn under the store write lock and applies its writes on success.
func (s *MemoryStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryLatency("transaction", float64(time.Since(start).Milliseconds()))
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		metrics.RecordRepositoryError("transaction")
		return fmt.Errorf("%w: store closed", ErrPersistence)
	}

	tx := &memTx{
		s:          s,
		nextID:     s.nextID,
		policies:   make(map[policyKey]model.PolicyState),
		candidates: make(map[string]model.CandidateScore),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}

	for _, rec := range tx.rewards {
		s.byJob[rec.JobID] = append(s.byJob[rec.JobID], len(s.rewards))
		s.rewards = append(s.rewards, rec)
	}
	s.nextID = tx.nextID
	for k, v := range tx.policies {
		s.policies[k] = v
	}
	for k, v := range tx.candidates {
		s.candidates[k] = v
	}
	return nil
}

func (t *memTx) SetCandidateScore(_ context.Context, score model.CandidateScore) error {
	t.candidates[score.CandidateID] = score
	return nil
}

func (t *memTx) AppendReward(_ context.Context, rec model.RewardRecord) (int64, error) {
	t.nextID++
	rec.ID = t.nextID
	t.rewards = append(t.rewards, rec)
	return rec.ID, nil
}

func (t *memTx) UpdatePolicy(_ context.Context, jobID string, version int, fn PolicyUpdate) (model.PolicyState, error) {
	key := policyKey{jobID: jobID, version: version}

	var prev *model.PolicyState
	if staged, ok := t.policies[key]; ok {
		prev = &staged
	} else if stored, ok := t.s.policies[key]; ok {
		prev = &stored
	}

	next := fn(prev)
	t.policies[key] = next
	return next, nil
}

// RewardHistory returns up to limit rewards for a job, newest first.
func (s *MemoryStore) RewardHistory(_ context.Context, jobID string, limit int) ([]model.RewardRecord, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	start := time.Now()
	defer func() {
		metrics.RecordRepositoryLatency("reward_history", float64(time.Since(start).Milliseconds()))
	}()

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", ErrPersistence)
	}

	idx := s.byJob[jobID]
	n := min(limit, len(idx))
	out := make([]model.RewardRecord, 0, n)
	for i := len(idx) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.rewards[idx[i]])
	}
	return out, nil
}

// RewardDeltas returns all deltas for a job in insertion order.
func (s *MemoryStore) RewardDeltas(_ context.Context, jobID string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, fmt.Errorf("%w: store closed", ErrPersistence)
	}

	idx := s.byJob[jobID]
	out := make([]int, len(idx))
	for i, j := range idx {
		out[i] = s.rewards[j].Delta
	}
	return out, nil
}

// Policy returns the stored policy state or ErrNotFound.
func (s *MemoryStore) Policy(_ context.Context, jobID string, version int) (model.PolicyState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.PolicyState{}, fmt.Errorf("%w: store closed", ErrPersistence)
	}

	st, ok := s.policies[policyKey{jobID: jobID, version: version}]
	if !ok {
		return model.PolicyState{}, ErrNotFound
	}
	return st, nil
}

// Candidate returns the candidate snapshot or ErrNotFound.
func (s *MemoryStore) Candidate(_ context.Context, candidateID string) (model.CandidateScore, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return model.CandidateScore{}, fmt.Errorf("%w: store closed", ErrPersistence)
	}

	c, ok := s.candidates[candidateID]
	if !ok {
		return model.CandidateScore{}, ErrNotFound
	}
	return c, nil
}

// SaveCandidateScore upserts a snapshot.
func (s *MemoryStore) SaveCandidateScore(ctx context.Context, score model.CandidateScore) error {
	return s.Atomically(ctx, func(ctx context.Context, tx Tx) error {
		return tx.SetCandidateScore(ctx, score)
	})
}

// Stats counts stored rows.
func (s *MemoryStore) Stats(_ context.Context) (Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Stats{}, fmt.Errorf("%w: store closed", ErrPersistence)
	}
	return Stats{
		Rewards:    int64(len(s.rewards)),
		Policies:   int64(len(s.policies)),
		Candidates: int64(len(s.candidates)),
	}, nil
}

// Close marks the store unusable; later calls fail with ErrPersistence.
func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		s.log.Info(context.Background(), "memory store closed", logger.Int("rewards", len(s.rewards)))
	}
	return nil
}
