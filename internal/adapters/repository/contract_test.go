package repository_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/talentloop/internal/adapters/repository"
	"github.com/okian/talentloop/internal/domain/model"
)

var errAbort = errors.New("abort")

// appendReward writes one reward in its own transaction.
func appendReward(ctx context.Context, s repository.Store, jobID string, delta int) (int64, error) {
	var id int64
	err := s.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
		var err error
		id, err = tx.AppendReward(ctx, model.RewardRecord{
			CandidateID:    "c-" + jobID,
			JobID:          jobID,
			AIScore:        50,
			RecruiterScore: 50 + delta,
			Delta:          delta,
			CreatedAt:      1_700_000_000,
		})
		return err
	})
	return id, err
}

// countUp is a PolicyUpdate that bumps the sample count and remembers what it saw.
func countUp(seen **model.PolicyState, jobID string, version int) repository.PolicyUpdate {
	return func(prev *model.PolicyState) model.PolicyState {
		*seen = prev
		next := model.PolicyState{JobID: jobID, Version: version, Weight: 0.9, ErrorAvg: 10, SampleCount: 1, CreatedAt: 5, UpdatedAt: 5}
		if prev != nil {
			next.SampleCount = prev.SampleCount + 1
			next.CreatedAt = prev.CreatedAt
			next.UpdatedAt = prev.UpdatedAt + 1
		}
		return next
	}
}

// storeContract exercises behavior every Store implementation must share.
// Job ids are random so the suite can run against a shared database.
func storeContract(t *testing.T, newStore func() repository.Store) {
	Convey("Given a fresh store", t, func() {
		ctx := context.Background()
		s := newStore()
		Reset(func() { _ = s.Close() })

		job := "job-" + uuid.NewString()
		other := "job-" + uuid.NewString()

		Convey("Appended rewards get strictly increasing ids", func() {
			var ids []int64
			for _, d := range []int{-30, 5, 10} {
				id, err := appendReward(ctx, s, job, d)
				So(err, ShouldBeNil)
				ids = append(ids, id)
			}
			So(ids[1], ShouldBeGreaterThan, ids[0])
			So(ids[2], ShouldBeGreaterThan, ids[1])

			Convey("History is newest first and bounded by limit", func() {
				recs, err := s.RewardHistory(ctx, job, 2)
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 2)
				So(recs[0].ID, ShouldEqual, ids[2])
				So(recs[1].ID, ShouldEqual, ids[1])
				So(recs[0].Delta, ShouldEqual, 10)
				So(recs[0].JobID, ShouldEqual, job)
				So(recs[0].CreatedAt, ShouldEqual, 1_700_000_000)
			})

			Convey("A limit above the row count returns every row", func() {
				recs, err := s.RewardHistory(ctx, job, 50)
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 3)
			})

			Convey("Deltas come back in insertion order and per job", func() {
				_, err := appendReward(ctx, s, other, 99)
				So(err, ShouldBeNil)

				deltas, err := s.RewardDeltas(ctx, job)
				So(err, ShouldBeNil)
				So(deltas, ShouldResemble, []int{-30, 5, 10})
			})
		})

		Convey("A limit below one is rejected", func() {
			_, err := s.RewardHistory(ctx, job, 0)
			So(errors.Is(err, repository.ErrInvalidLimit), ShouldBeTrue)
		})

		Convey("An unknown job has no deltas and no history", func() {
			deltas, err := s.RewardDeltas(ctx, job)
			So(err, ShouldBeNil)
			So(len(deltas), ShouldEqual, 0)

			recs, err := s.RewardHistory(ctx, job, 10)
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 0)
		})

		Convey("An absent policy is ErrNotFound", func() {
			_, err := s.Policy(ctx, job, 1)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("UpdatePolicy sees nil first and the stored state afterwards", func() {
			var seen *model.PolicyState
			err := s.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.UpdatePolicy(ctx, job, 1, countUp(&seen, job, 1))
				return err
			})
			So(err, ShouldBeNil)
			So(seen, ShouldBeNil)

			err = s.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.UpdatePolicy(ctx, job, 1, countUp(&seen, job, 1))
				return err
			})
			So(err, ShouldBeNil)
			So(seen, ShouldNotBeNil)
			So(seen.SampleCount, ShouldEqual, 1)

			st, err := s.Policy(ctx, job, 1)
			So(err, ShouldBeNil)
			So(st.SampleCount, ShouldEqual, 2)
			So(st.CreatedAt, ShouldEqual, 5)
			So(st.UpdatedAt, ShouldEqual, 6)
			So(st.Weight, ShouldEqual, 0.9)
			So(st.ErrorAvg, ShouldEqual, 10.0)

			Convey("Versions are independent", func() {
				_, err := s.Policy(ctx, job, 2)
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
			})
		})

		Convey("A failed transaction leaves nothing behind", func() {
			var seen *model.PolicyState
			err := s.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
				if err := tx.SetCandidateScore(ctx, model.CandidateScore{CandidateID: job, JobID: job, Score: 70}); err != nil {
					return err
				}
				if _, err := tx.AppendReward(ctx, model.RewardRecord{CandidateID: "c", JobID: job, Delta: 1}); err != nil {
					return err
				}
				if _, err := tx.UpdatePolicy(ctx, job, 1, countUp(&seen, job, 1)); err != nil {
					return err
				}
				return errAbort
			})
			So(errors.Is(err, errAbort), ShouldBeTrue)

			recs, err := s.RewardHistory(ctx, job, 10)
			So(err, ShouldBeNil)
			So(len(recs), ShouldEqual, 0)

			_, err = s.Policy(ctx, job, 1)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			_, err = s.Candidate(ctx, job)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
		})

		Convey("Candidate snapshots are upserted", func() {
			cand := "cand-" + uuid.NewString()
			_, err := s.Candidate(ctx, cand)
			So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)

			So(s.SaveCandidateScore(ctx, model.CandidateScore{CandidateID: cand, JobID: job, Score: 40, UpdatedAt: 1}), ShouldBeNil)
			So(s.SaveCandidateScore(ctx, model.CandidateScore{CandidateID: cand, JobID: job, Score: 85, UpdatedAt: 2}), ShouldBeNil)

			got, err := s.Candidate(ctx, cand)
			So(err, ShouldBeNil)
			So(got.Score, ShouldEqual, 85)
			So(got.UpdatedAt, ShouldEqual, 2)
			So(got.JobID, ShouldEqual, job)
		})

		Convey("Stats count committed rows", func() {
			before, err := s.Stats(ctx)
			So(err, ShouldBeNil)

			_, err = appendReward(ctx, s, job, 3)
			So(err, ShouldBeNil)
			var seen *model.PolicyState
			So(s.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
				_, err := tx.UpdatePolicy(ctx, job, 1, countUp(&seen, job, 1))
				return err
			}), ShouldBeNil)

			after, err := s.Stats(ctx)
			So(err, ShouldBeNil)
			So(after.Rewards-before.Rewards, ShouldEqual, 1)
			So(after.Policies-before.Policies, ShouldEqual, 1)
		})

		Convey("Concurrent appends get unique ids", func() {
			const writers = 16
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				ids  = map[int64]bool{}
				errs []error
			)
			for i := 0; i < writers; i++ {
				wg.Add(1)
				go func(d int) {
					defer wg.Done()
					id, err := appendReward(ctx, s, job, d)
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					ids[id] = true
				}(i)
			}
			wg.Wait()

			So(errs, ShouldBeEmpty)
			So(len(ids), ShouldEqual, writers)
			deltas, err := s.RewardDeltas(ctx, job)
			So(err, ShouldBeNil)
			So(len(deltas), ShouldEqual, writers)
		})
	})
}
