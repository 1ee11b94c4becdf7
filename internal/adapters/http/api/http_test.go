package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/okian/talentloop/internal/adapters/http/api"
	"github.com/okian/talentloop/internal/adapters/mq/queue"
	"github.com/okian/talentloop/internal/adapters/repository"
	"github.com/okian/talentloop/internal/domain/calibration"
	"github.com/okian/talentloop/internal/domain/dedupe"
	"github.com/okian/talentloop/internal/domain/evaluation"
	"github.com/okian/talentloop/internal/domain/feedback"
	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/internal/domain/scoring"
	. "github.com/smartystreets/goconvey/convey"
)

type staticStats map[string]any

func (s staticStats) GetStats(context.Context) map[string]any { return s }

type brokenFeedback struct{ api.FeedbackService }

func (brokenFeedback) Process(context.Context, feedback.Request) (feedback.Result, error) {
	return feedback.Result{}, repository.ErrPersistence
}

func (brokenFeedback) Calibration(context.Context, string) (calibration.Metrics, error) {
	return calibration.Metrics{}, repository.ErrPersistence
}

type fixture struct {
	mux   *http.ServeMux
	store *repository.MemoryStore
	queue *queue.InMemoryQueue
	dedup dedupe.Deduper
}

func newFixture(mutate func(*api.Dependencies)) fixture {
	store := repository.NewMemoryStore()
	q := queue.NewInMemoryQueue(queue.WithCapacity(1))
	d := dedupe.NewInMemoryDeduper()
	deps := api.Dependencies{
		Feedback:   feedback.New(store),
		Scoring:    evaluation.New(scoring.NewKeywordScorer()),
		Queue:      q,
		Deduper:    d,
		Candidates: store,
		Stats:      staticStats{"queue_size": 0},
	}
	if mutate != nil {
		mutate(&deps)
	}
	mux := http.NewServeMux()
	api.NewServer(deps, api.WithMaxRewardLimit(500)).Register(context.Background(), mux)
	return fixture{mux: mux, store: store, queue: q, dedup: d}
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, http.NoBody)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.mux.ServeHTTP(w, req)
	return w
}

func decode(w *httptest.ResponseRecorder) map[string]any {
	var m map[string]any
	So(json.Unmarshal(w.Body.Bytes(), &m), ShouldBeNil)
	return m
}

func TestServiceRoutes(t *testing.T) {
	Convey("Given the API server", t, func() {
		f := newFixture(nil)

		Convey("When requesting the root document", func() {
			w := f.do("GET", "/", "")

			Convey("Then it reports a healthy service", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w), ShouldResemble, map[string]any{
					"status": "healthy", "service": "talentloop", "version": "1.0.0",
				})
			})
		})

		Convey("When requesting an unknown path", func() {
			So(f.do("GET", "/nope", "").Code, ShouldEqual, http.StatusNotFound)
		})

		Convey("When requesting metrics", func() {
			w := f.do("GET", "/healthz", "")
			So(w.Code, ShouldEqual, http.StatusOK)
		})

		Convey("When requesting stats", func() {
			w := f.do("GET", "/stats", "")
			So(w.Code, ShouldEqual, http.StatusOK)
			So(decode(w), ShouldContainKey, "queue_size")
		})

		Convey("When using the wrong method", func() {
			So(f.do("GET", "/api/feedback", "").Code, ShouldEqual, http.StatusMethodNotAllowed)
		})
	})
}

func TestFeedbackRoutes(t *testing.T) {
	Convey("Given the API server over a memory store", t, func() {
		f := newFixture(nil)

		Convey("When feedback is posted", func() {
			w := f.do("POST", "/api/feedback", `{"candidate_id":"c1","job_id":"j1","ai_score":85,"recruiter_stars":3}`)

			Convey("Then the reward is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["recruiter_score"], ShouldEqual, 50.0)
				So(body["delta"], ShouldEqual, -35.0)
				So(body["reward_id"], ShouldEqual, 1.0)
				So(body["message"], ShouldEqual, feedback.SuccessMessage)
			})

			Convey("And the policy is readable", func() {
				w := f.do("GET", "/api/policy/j1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["sample_count"], ShouldEqual, 1.0)
				So(body["error_avg"], ShouldEqual, 35.0)
				So(body["weight"], ShouldAlmostEqual, 0.65, 1e-9)
			})

			Convey("And the reward history lists it", func() {
				w := f.do("GET", "/api/rewards/j1", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				var recs []model.RewardRecord
				So(json.Unmarshal(w.Body.Bytes(), &recs), ShouldBeNil)
				So(recs, ShouldHaveLength, 1)
				So(recs[0].Delta, ShouldEqual, -35)
			})

			Convey("And the summary is active", func() {
				body := decode(f.do("GET", "/api/jobs/j1/summary", ""))
				So(body["status"], ShouldEqual, "active")
				So(body["trust_level"], ShouldEqual, "medium")
			})

			Convey("And the candidate snapshot carries the AI score", func() {
				body := decode(f.do("GET", "/api/candidates/c1", ""))
				So(body["score"], ShouldEqual, 85.0)
			})
		})

		Convey("When feedback is incomplete or invalid", func() {
			cases := map[string]string{
				"missing ai_score":   `{"candidate_id":"c1","job_id":"j1","recruiter_stars":3}`,
				"missing stars":      `{"candidate_id":"c1","job_id":"j1","ai_score":10}`,
				"blank job":          `{"candidate_id":"c1","job_id":" ","ai_score":10,"recruiter_stars":3}`,
				"stars out of range": `{"candidate_id":"c1","job_id":"j1","ai_score":10,"recruiter_stars":6}`,
				"fractional stars":   `{"candidate_id":"c1","job_id":"j1","ai_score":10,"recruiter_stars":3.5}`,
				"fractional score":   `{"candidate_id":"c1","job_id":"j1","ai_score":72.5,"recruiter_stars":3}`,
				"string stars":       `{"candidate_id":"c1","job_id":"j1","ai_score":10,"recruiter_stars":"3"}`,
				"score out of range": `{"candidate_id":"c1","job_id":"j1","ai_score":101,"recruiter_stars":3}`,
				"zero version":       `{"candidate_id":"c1","job_id":"j1","ai_score":10,"recruiter_stars":3,"version":0}`,
				"not json":           `{"candidate_id":`,
			}

			Convey("Then each is rejected with 400 and nothing is stored", func() {
				for _, body := range cases {
					w := f.do("POST", "/api/feedback", body)
					So(w.Code, ShouldEqual, http.StatusBadRequest)
					So(decode(w)["code"], ShouldEqual, "bad_request")
				}
				st, err := f.store.Stats(context.Background())
				So(err, ShouldBeNil)
				So(st.Rewards, ShouldEqual, 0)
				So(st.Policies, ShouldEqual, 0)
				So(st.Candidates, ShouldEqual, 0)
			})
		})

		Convey("When reading a job without feedback", func() {
			Convey("Then the policy is not found", func() {
				w := f.do("GET", "/api/policy/unknown", "")
				So(w.Code, ShouldEqual, http.StatusNotFound)
				So(decode(w)["code"], ShouldEqual, "not_found")
			})

			Convey("And calibration metrics are null", func() {
				w := f.do("GET", "/api/calibration/unknown", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["sample_count"], ShouldEqual, 0.0)
				So(body, ShouldContainKey, "mae")
				So(body["mae"], ShouldBeNil)
				So(body["bias"], ShouldBeNil)
				So(body["rmse"], ShouldBeNil)
			})

			Convey("And the summary reports no data", func() {
				body := decode(f.do("GET", "/api/jobs/unknown/summary", ""))
				So(body["status"], ShouldEqual, "no_data")
				So(body["message"], ShouldEqual, feedback.NoDataMessage)
			})

			Convey("And the history is empty", func() {
				w := f.do("GET", "/api/rewards/unknown", "")
				So(w.Code, ShouldEqual, http.StatusOK)
				So(strings.TrimSpace(w.Body.String()), ShouldEqual, "[]")
			})

			Convey("And the candidate is not found", func() {
				So(f.do("GET", "/api/candidates/nobody", "").Code, ShouldEqual, http.StatusNotFound)
			})
		})

		Convey("When query parameters are invalid", func() {
			So(f.do("GET", "/api/rewards/j1?limit=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/api/rewards/j1?limit=501", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/api/rewards/j1?limit=ten", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/api/rewards/j1?limit=500", "").Code, ShouldEqual, http.StatusOK)
			So(f.do("GET", "/api/policy/j1?version=abc", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/api/policy/j1?version=0", "").Code, ShouldEqual, http.StatusBadRequest)
			So(f.do("GET", "/api/jobs/j1/summary?version=-2", "").Code, ShouldEqual, http.StatusBadRequest)
		})
	})

	Convey("Given a failing store", t, func() {
		f := newFixture(func(d *api.Dependencies) { d.Feedback = brokenFeedback{} })

		Convey("When feedback is posted", func() {
			w := f.do("POST", "/api/feedback", `{"candidate_id":"c1","job_id":"j1","ai_score":85,"recruiter_stars":3}`)

			Convey("Then a 500 without internal details is returned", func() {
				So(w.Code, ShouldEqual, http.StatusInternalServerError)
				body := decode(w)
				So(body["code"], ShouldEqual, "internal_error")
				So(body["message"], ShouldNotContainSubstring, "persistence")
			})
		})

		Convey("When calibration is requested", func() {
			So(f.do("GET", "/api/calibration/j1", "").Code, ShouldEqual, http.StatusInternalServerError)
		})
	})
}

func TestScoringRoutes(t *testing.T) {
	Convey("Given the API server with the keyword scorer", t, func() {
		f := newFixture(nil)

		Convey("When a candidate is scored", func() {
			w := f.do("POST", "/api/score", `{"candidate_description":"Go and Kubernetes","job_requirements":"Go, Kubernetes, PostgreSQL, Kafka"}`)

			Convey("Then the score is returned", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				body := decode(w)
				So(body["score"], ShouldEqual, 50.0)
				So(body["calibrated"], ShouldBeFalse)
			})
		})

		Convey("When the scorer produces no evaluation", func() {
			w := f.do("POST", "/api/score", `{"candidate_description":"anything","job_requirements":"must have the experience"}`)

			Convey("Then the gateway error is reported", func() {
				So(w.Code, ShouldEqual, http.StatusBadGateway)
				So(decode(w)["code"], ShouldEqual, "no_evaluation")
			})
		})

		Convey("When the description is missing", func() {
			So(f.do("POST", "/api/score", `{"job_requirements":"Go"}`).Code, ShouldEqual, http.StatusBadRequest)
		})

		Convey("When a batch is scored", func() {
			w := f.do("POST", "/api/score/batch", `{"job_id":"j1","job_requirements":"Go, SQL","candidates":[
				{"candidate_id":"a","description":"Go and SQL"},
				{"candidate_id":"b","description":""},
				{"candidate_id":"c","description":"Go"}]}`)

			Convey("Then results and dropped candidates are listed", func() {
				So(w.Code, ShouldEqual, http.StatusOK)
				var batch evaluation.Batch
				So(json.Unmarshal(w.Body.Bytes(), &batch), ShouldBeNil)
				So(batch.Results, ShouldResemble, []evaluation.Result{
					{CandidateID: "a", Score: 100},
					{CandidateID: "c", Score: 50},
				})
				So(batch.Dropped, ShouldResemble, []string{"b"})
			})
		})

		Convey("When a batch is empty", func() {
			So(f.do("POST", "/api/score/batch", `{"job_requirements":"Go","candidates":[]}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestEvaluationRoutes(t *testing.T) {
	Convey("Given the API server with a queue of capacity one", t, func() {
		f := newFixture(nil)
		body := `{"evaluation_id":"e1","candidate_id":"c1","job_id":"j1","candidate_description":"Go","job_requirements":"Go"}`

		Convey("When an evaluation is submitted", func() {
			w := f.do("POST", "/api/evaluations", body)

			Convey("Then it is accepted and queued", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["status"], ShouldEqual, "accepted")
				So(f.queue.Len(context.Background()), ShouldEqual, 1)
			})

			Convey("And a resubmission is a duplicate", func() {
				w := f.do("POST", "/api/evaluations", body)
				So(w.Code, ShouldEqual, http.StatusOK)
				So(decode(w)["duplicate"], ShouldBeTrue)
				So(f.queue.Len(context.Background()), ShouldEqual, 1)
			})

			Convey("And a second evaluation hits backpressure and is forgotten", func() {
				second := strings.Replace(body, `"e1"`, `"e2"`, 1)
				w := f.do("POST", "/api/evaluations", second)
				So(w.Code, ShouldEqual, http.StatusTooManyRequests)
				So(decode(w)["code"], ShouldEqual, "backpressure")
				So(f.dedup.SeenAndRecord(context.Background(), "e2"), ShouldBeFalse)
			})
		})

		Convey("When the evaluation id is omitted", func() {
			w := f.do("POST", "/api/evaluations", `{"candidate_id":"c1","job_id":"j1","candidate_description":"Go","job_requirements":"Go"}`)

			Convey("Then one is generated", func() {
				So(w.Code, ShouldEqual, http.StatusAccepted)
				So(decode(w)["evaluation_id"], ShouldNotBeEmpty)
			})
		})

		Convey("When the queue is closed", func() {
			_ = f.queue.Close()
			So(f.do("POST", "/api/evaluations", body).Code, ShouldEqual, http.StatusServiceUnavailable)
		})

		Convey("When fields are missing", func() {
			So(f.do("POST", "/api/evaluations", `{"candidate_id":"c1"}`).Code, ShouldEqual, http.StatusBadRequest)
		})
	})
}

func TestErrorKinds(t *testing.T) {
	Convey("Classified errors match both kind and cause", t, func() {
		cause := repository.ErrNotFound
		err := api.WrapKind("api.test", api.ErrNotFound, cause)
		So(err.Error(), ShouldContainSubstring, "api.test")
		So(errors.Is(err, api.ErrNotFound), ShouldBeTrue)
		So(errors.Is(err, cause), ShouldBeTrue)
		So(errors.Is(api.NewKind("op", api.ErrBadRequest), api.ErrBadRequest), ShouldBeTrue)
		So(errors.Is(api.Wrap("op", cause), api.ErrInternal), ShouldBeTrue)
	})
}
