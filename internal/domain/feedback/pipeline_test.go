package feedback_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/talentloop/internal/adapters/repository"
	"github.com/okian/talentloop/internal/domain/feedback"
	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/internal/domain/types"
)

var fixedNow = time.Unix(1_700_000_000, 0)

func fixedClock() time.Time { return fixedNow }

type countingInvalidator struct {
	mu   sync.Mutex
	jobs []string
}

func (c *countingInvalidator) Invalidate(_ context.Context, jobID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.jobs = append(c.jobs, jobID)
}

func (c *countingInvalidator) calls() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.jobs...)
}

// faultyStore fails the named step inside feedback transactions.
type faultyStore struct {
	repository.Store
	failOn string
}

func (f faultyStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx repository.Tx) error) error {
	return f.Store.Atomically(ctx, func(ctx context.Context, tx repository.Tx) error {
		return fn(ctx, faultyTx{Tx: tx, failOn: f.failOn})
	})
}

type faultyTx struct {
	repository.Tx
	failOn string
}

var errDiskFull = fmt.Errorf("%w: disk full", repository.ErrPersistence)

func (t faultyTx) AppendReward(ctx context.Context, rec model.RewardRecord) (int64, error) {
	if t.failOn == "reward" {
		return 0, errDiskFull
	}
	return t.Tx.AppendReward(ctx, rec)
}

func (t faultyTx) UpdatePolicy(ctx context.Context, jobID string, version int, fn repository.PolicyUpdate) (model.PolicyState, error) {
	if t.failOn == "policy" {
		return model.PolicyState{}, errDiskFull
	}
	return t.Tx.UpdatePolicy(ctx, jobID, version, fn)
}

func openSQLite(t *testing.T) repository.Store {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString())
	s, err := repository.Open(context.Background(), repository.DialectSQLite, dsn)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate sqlite: %v", err)
	}
	return s
}

func TestPipelineMemory(t *testing.T) {
	pipelineSuite(t, func() repository.Store { return repository.NewMemoryStore() })
}

func TestPipelineSQLite(t *testing.T) {
	pipelineSuite(t, func() repository.Store { return openSQLite(t) })
}

func pipelineSuite(t *testing.T, newStore func() repository.Store) {
	Convey("Given a feedback pipeline", t, func() {
		ctx := context.Background()
		store := newStore()
		Reset(func() { _ = store.Close() })
		inv := &countingInvalidator{}
		p := feedback.New(store, feedback.WithClock(fixedClock), feedback.WithInvalidator(inv))

		Convey("When c1 scored 85 for j1 gets three stars", func() {
			res, err := p.Process(ctx, feedback.Request{CandidateID: "c1", JobID: "j1", AIScore: 85, RecruiterStars: 3})
			So(err, ShouldBeNil)

			Convey("Then the result carries the recruiter score and delta", func() {
				So(res.CandidateID, ShouldEqual, "c1")
				So(res.JobID, ShouldEqual, "j1")
				So(res.AIScore, ShouldEqual, 85)
				So(res.RecruiterScore, ShouldEqual, 50)
				So(res.Delta, ShouldEqual, -35)
				So(res.RewardID, ShouldBeGreaterThan, 0)
				So(res.Message, ShouldEqual, feedback.SuccessMessage)
			})

			Convey("Then the policy holds one sample with error_avg 35", func() {
				st, found, err := p.PolicyStats(ctx, "j1", 1)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(st.SampleCount, ShouldEqual, 1)
				So(st.ErrorAvg, ShouldEqual, 35.0)
				So(st.Weight, ShouldAlmostEqual, 0.65, 1e-9)
				So(st.CreatedAt, ShouldEqual, fixedNow.Unix())
			})

			Convey("Then the reward row reflects the same delta", func() {
				recs, err := p.History(ctx, "j1", 50)
				So(err, ShouldBeNil)
				So(len(recs), ShouldEqual, 1)
				So(recs[0].ID, ShouldEqual, res.RewardID)
				So(recs[0].Delta, ShouldEqual, -35)
				So(recs[0].RecruiterScore, ShouldEqual, 50)
				So(recs[0].CreatedAt, ShouldEqual, fixedNow.Unix())
			})

			Convey("Then the candidate snapshot holds the AI score", func() {
				c, err := store.Candidate(ctx, "c1")
				So(err, ShouldBeNil)
				So(c.Score, ShouldEqual, 85)
				So(c.JobID, ShouldEqual, "j1")
			})

			Convey("Then the job's derived state is invalidated once", func() {
				So(inv.calls(), ShouldResemble, []string{"j1"})
			})

			Convey("Then the summary is active with a medium trust level", func() {
				sum, err := p.Summary(ctx, "j1", 1)
				So(err, ShouldBeNil)
				So(sum.Status, ShouldEqual, types.StatusActive)
				So(sum.Policy, ShouldNotBeNil)
				So(sum.Policy.SampleCount, ShouldEqual, 1)
				So(sum.TrustLevel, ShouldEqual, types.TrustMedium)
				So(sum.Calibration.SampleCount, ShouldEqual, 1)
				So(*sum.Calibration.Bias, ShouldEqual, -35.0)
			})
		})

		Convey("When the same feedback is submitted twice", func() {
			req := feedback.Request{CandidateID: "c1", JobID: "j1", AIScore: 60, RecruiterStars: 4}
			first, err := p.Process(ctx, req)
			So(err, ShouldBeNil)
			second, err := p.Process(ctx, req)
			So(err, ShouldBeNil)

			Convey("Then both are recorded with distinct reward ids", func() {
				So(second.RewardID, ShouldNotEqual, first.RewardID)
				st, _, err := p.PolicyStats(ctx, "j1", 0)
				So(err, ShouldBeNil)
				So(st.SampleCount, ShouldEqual, 2)
			})
		})

		Convey("When many recruiters rate the same job concurrently", func() {
			const n = 24
			var (
				wg   sync.WaitGroup
				mu   sync.Mutex
				ids  = map[int64]bool{}
				errs []error
			)
			for i := 0; i < n; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					res, err := p.Process(ctx, feedback.Request{
						CandidateID:    fmt.Sprintf("c%d", i),
						JobID:          "j-busy",
						AIScore:        (i * 7) % 101,
						RecruiterStars: i%5 + 1,
					})
					mu.Lock()
					defer mu.Unlock()
					if err != nil {
						errs = append(errs, err)
						return
					}
					ids[res.RewardID] = true
				}(i)
			}
			wg.Wait()

			Convey("Then no update is lost", func() {
				So(errs, ShouldBeEmpty)
				So(len(ids), ShouldEqual, n)
				st, found, err := p.PolicyStats(ctx, "j-busy", 1)
				So(err, ShouldBeNil)
				So(found, ShouldBeTrue)
				So(st.SampleCount, ShouldEqual, n)

				m, err := p.Calibration(ctx, "j-busy")
				So(err, ShouldBeNil)
				So(m.SampleCount, ShouldEqual, n)
			})
		})

		Convey("When versions differ", func() {
			_, err := p.Process(ctx, feedback.Request{CandidateID: "c1", JobID: "j1", AIScore: 50, RecruiterStars: 3})
			So(err, ShouldBeNil)
			_, err = p.Process(ctx, feedback.Request{CandidateID: "c1", JobID: "j1", AIScore: 50, RecruiterStars: 1, Version: 2})
			So(err, ShouldBeNil)

			Convey("Then each version keeps its own policy", func() {
				v1, _, err := p.PolicyStats(ctx, "j1", 1)
				So(err, ShouldBeNil)
				v2, _, err := p.PolicyStats(ctx, "j1", 2)
				So(err, ShouldBeNil)
				So(v1.SampleCount, ShouldEqual, 1)
				So(v1.ErrorAvg, ShouldEqual, 0.0)
				So(v2.SampleCount, ShouldEqual, 1)
				So(v2.ErrorAvg, ShouldEqual, 50.0)
			})

			Convey("Then calibration metrics span every version", func() {
				m, err := p.Calibration(ctx, "j1")
				So(err, ShouldBeNil)
				So(m.SampleCount, ShouldEqual, 2)
			})
		})

		Convey("When the request is invalid", func() {
			bad := []feedback.Request{
				{CandidateID: "", JobID: "j1", AIScore: 50, RecruiterStars: 3},
				{CandidateID: "c1", JobID: "  ", AIScore: 50, RecruiterStars: 3},
				{CandidateID: "c1", JobID: "j1", AIScore: -1, RecruiterStars: 3},
				{CandidateID: "c1", JobID: "j1", AIScore: 101, RecruiterStars: 3},
				{CandidateID: "c1", JobID: "j1", AIScore: 50, RecruiterStars: 0},
				{CandidateID: "c1", JobID: "j1", AIScore: 50, RecruiterStars: 6},
				{CandidateID: "c1", JobID: "j1", AIScore: 50, RecruiterStars: 3, Version: -1},
			}

			Convey("Then it is rejected and nothing is stored", func() {
				for _, req := range bad {
					_, err := p.Process(ctx, req)
					So(errors.Is(err, feedback.ErrInvalidInput), ShouldBeTrue)
				}
				recs, err := p.History(ctx, "j1", 10)
				So(err, ShouldBeNil)
				So(recs, ShouldBeEmpty)
				So(inv.calls(), ShouldBeEmpty)
			})
		})

		Convey("When no feedback exists for a job", func() {
			Convey("Then PolicyStats reports not found without error", func() {
				_, found, err := p.PolicyStats(ctx, "nobody", 1)
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)
			})

			Convey("Then the summary says there is no data", func() {
				sum, err := p.Summary(ctx, "nobody", 1)
				So(err, ShouldBeNil)
				So(sum.Status, ShouldEqual, types.StatusNoData)
				So(sum.Message, ShouldEqual, feedback.NoDataMessage)
				So(sum.Policy, ShouldBeNil)
				So(sum.Calibration.SampleCount, ShouldEqual, 0)
				So(sum.Calibration.MAE, ShouldBeNil)
			})
		})

		Convey("When reads get bad arguments", func() {
			_, err := p.History(ctx, "j1", 0)
			So(errors.Is(err, feedback.ErrInvalidInput), ShouldBeTrue)
			_, _, err = p.PolicyStats(ctx, "j1", -2)
			So(errors.Is(err, feedback.ErrInvalidInput), ShouldBeTrue)
			_, _, err = p.PolicyStats(ctx, "", 1)
			So(errors.Is(err, feedback.ErrInvalidInput), ShouldBeTrue)
		})

		Convey("When storage fails part way", func() {
			for _, step := range []string{"reward", "policy"} {
				fp := feedback.New(faultyStore{Store: store, failOn: step}, feedback.WithInvalidator(inv))
				_, err := fp.Process(ctx, feedback.Request{CandidateID: "c9", JobID: "j9", AIScore: 40, RecruiterStars: 2})
				So(errors.Is(err, repository.ErrPersistence), ShouldBeTrue)
			}

			Convey("Then nothing partial is committed", func() {
				recs, err := p.History(ctx, "j9", 10)
				So(err, ShouldBeNil)
				So(recs, ShouldBeEmpty)
				_, found, err := p.PolicyStats(ctx, "j9", 1)
				So(err, ShouldBeNil)
				So(found, ShouldBeFalse)
				_, err = store.Candidate(ctx, "c9")
				So(errors.Is(err, repository.ErrNotFound), ShouldBeTrue)
				So(inv.calls(), ShouldBeEmpty)
			})
		})
	})
}
