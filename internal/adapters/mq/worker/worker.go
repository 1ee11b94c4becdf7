// Package worker scores queued evaluations and records candidate snapshots.
package worker

import (
	"context"
	"fmt"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/okian/talentloop/internal/domain/evaluation"
	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

const poolShutdownTimeout = 30 * time.Second

// Evaluator scores one candidate.
type Evaluator interface {
	Evaluate(ctx context.Context, req evaluation.Request) (evaluation.Evaluation, error)
}

// Recorder stores the latest score for a candidate.
type Recorder interface {
	SaveCandidateScore(ctx context.Context, score model.CandidateScore) error
}

// Queue defines how workers receive evaluations.
type Queue interface {
	Dequeue(ctx context.Context) <-chan model.Evaluation
}

// Counters tracks evaluation outcomes across a pool.
type Counters struct {
	processed atomic.Int64
	failed    atomic.Int64
}

// Processed returns how many evaluations were recorded.
func (c *Counters) Processed() int64 { return c.processed.Load() }

// Failed returns how many evaluations could not be scored or recorded.
func (c *Counters) Failed() int64 { return c.failed.Load() }

// Stats is a snapshot of pool counters.
type Stats struct {
	Workers   int   `json:"workers"`
	Processed int64 `json:"processed"`
	Failed    int64 `json:"failed"`
}

// InMemoryWorker processes evaluations from a queue.
type InMemoryWorker struct {
	queue     Queue
	evaluator Evaluator
	recorder  Recorder
	name      string
	now       func() time.Time
	counters  *Counters

	done   chan struct{}
	base   logger.Logger
	logger logger.Logger
}

// NewInMemoryWorker creates a new worker with configuration options.
func NewInMemoryWorker(q Queue, evaluator Evaluator, recorder Recorder, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		queue:     q,
		evaluator: evaluator,
		recorder:  recorder,
		name:      "worker",
		now:       time.Now,
		counters:  &Counters{},
		done:      make(chan struct{}),
		logger:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(w)
	}
	w.base = w.logger
	w.logger = w.logger.Named(w.name)
	return w
}

// Run consumes evaluations until the queue is drained and closed or ctx is done.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for e := range w.queue.Dequeue(ctx) {
		if err := w.process(ctx, e); err != nil {
			w.counters.failed.Add(1)
			w.logger.Warn(ctx, "evaluation not recorded",
				logger.String("evaluation_id", e.EvaluationID),
				logger.String("candidate_id", e.CandidateID),
				logger.Error(err))
			continue
		}
		w.counters.processed.Add(1)
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) process(ctx context.Context, e model.Evaluation) error { //nolint:gocritic // hugeParam: passed by value for channel semantics
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	res, err := w.evaluator.Evaluate(ctx, evaluation.Request{
		JobID:                e.JobID,
		CandidateDescription: e.CandidateDescription,
		JobRequirements:      e.JobRequirements,
	})
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "scoring_error")
		return fmt.Errorf("score evaluation %s: %w", e.EvaluationID, err)
	}

	err = w.recorder.SaveCandidateScore(ctx, model.CandidateScore{
		CandidateID: e.CandidateID,
		JobID:       e.JobID,
		Score:       res.Score,
		UpdatedAt:   w.now().Unix(),
	})
	if err != nil {
		metrics.RecordWorkerError()
		metrics.RecordErrorByComponent("worker", "persistence_error")
		return fmt.Errorf("record evaluation %s: %w", e.EvaluationID, err)
	}

	w.logger.Debug(ctx, "evaluation recorded",
		logger.String("evaluation_id", e.EvaluationID),
		logger.String("candidate_id", e.CandidateID),
		logger.Int("score", res.Score),
		logger.Bool("calibrated", res.Calibrated))
	return nil
}

// Pool manages multiple workers sharing one queue.
type Pool struct {
	workers  []*InMemoryWorker
	queue    Queue
	counters *Counters
	once     sync.Once
	logger   logger.Logger
}

// NewPool creates a pool of workerCount workers; values below 1 mean one per CPU.
func NewPool(workerCount int, q Queue, evaluator Evaluator, recorder Recorder, opts ...Option) *Pool {
	if workerCount < 1 {
		workerCount = runtime.NumCPU()
	}

	p := &Pool{
		workers:  make([]*InMemoryWorker, workerCount),
		queue:    q,
		counters: &Counters{},
	}
	for i := range p.workers {
		wopts := append([]Option{}, opts...)
		wopts = append(wopts, WithName("worker-"+strconv.Itoa(i)), WithCounters(p.counters))
		p.workers[i] = NewInMemoryWorker(q, evaluator, recorder, wopts...)
	}
	p.logger = p.workers[0].base.Named("worker-pool")
	return p
}

// Start launches every worker. Workers exit once ctx is done or the queue is
// closed and empty.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	metrics.UpdateWorkerActiveCount(len(p.workers))
	p.logger.Info(ctx, "worker pool started", logger.Int("workers", len(p.workers)))
}

// Stats reports pool counters.
func (p *Pool) Stats() Stats {
	return Stats{
		Workers:   len(p.workers),
		Processed: p.counters.Processed(),
		Failed:    p.counters.Failed(),
	}
}

// Shutdown closes the queue and waits for workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	var err error
	p.once.Do(func() {
		if closer, ok := p.queue.(interface{ Close() error }); ok {
			if cerr := closer.Close(); cerr != nil {
				p.logger.Error(ctx, "error closing queue", logger.Error(cerr))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
		defer cancel()

		for i, w := range p.workers {
			select {
			case <-w.done:
			case <-shutdownCtx.Done():
				p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
				err = fmt.Errorf("shutdown timed out: %w", shutdownCtx.Err())
			}
		}
		metrics.UpdateWorkerActiveCount(0)
	})
	return err
}
