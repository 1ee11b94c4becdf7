// Package service composes the feedback loop, the scorers and the evaluation
// workers into the dependencies required by the HTTP API.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/okian/talentloop/internal/adapters/cache"
	"github.com/okian/talentloop/internal/adapters/http/api"
	"github.com/okian/talentloop/internal/adapters/llm/gemini"
	eventqueue "github.com/okian/talentloop/internal/adapters/mq/queue"
	workerpool "github.com/okian/talentloop/internal/adapters/mq/worker"
	"github.com/okian/talentloop/internal/adapters/repository"
	"github.com/okian/talentloop/internal/config"
	"github.com/okian/talentloop/internal/domain/calibration"
	"github.com/okian/talentloop/internal/domain/dedupe"
	"github.com/okian/talentloop/internal/domain/evaluation"
	"github.com/okian/talentloop/internal/domain/feedback"
	"github.com/okian/talentloop/internal/domain/policy"
	"github.com/okian/talentloop/internal/domain/scoring"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

const shutdownTimeout = 30 * time.Second

// ErrNotStarted is returned when dependencies are requested before Start.
var ErrNotStarted = errors.New("service not started")

// Service owns every long-lived component of the process.
type Service struct {
	mu  sync.RWMutex
	cfg *config.Config

	store     repository.Store
	cache     calibration.Cache
	contexts  *calibration.ContextGenerator
	pipeline  *feedback.Pipeline
	scorer    scoring.Scorer
	evaluator *evaluation.Evaluator
	queue     *eventqueue.InMemoryQueue
	deduper   dedupe.Deduper
	pool      *workerpool.Pool

	// components opened by Start and closed by Stop
	closers []func() error
	// Start opened these rather than receiving them through options
	ownsStore, ownsCache, ownsScorer bool

	started bool
	logger  logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithStore injects a store instead of opening the configured database.
// The caller keeps ownership of it.
func WithStore(st repository.Store) Option {
	return func(s *Service) { s.store = st }
}

// WithScorer injects a scorer instead of the configured one.
func WithScorer(sc scoring.Scorer) Option {
	return func(s *Service) { s.scorer = sc }
}

// WithCache injects a context cache instead of the configured one.
func WithCache(c calibration.Cache) Option {
	return func(s *Service) { s.cache = c }
}

// New constructs a Service; nil cfg means defaults.
func New(cfg *config.Config, opts ...Option) *Service {
	if cfg == nil {
		cfg = config.New(context.Background())
	}
	s := &Service{cfg: cfg}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start opens storage, builds the pipeline and scorers and starts the workers.
func (s *Service) Start(ctx context.Context) (err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Get()
	}
	defer func() {
		if err != nil {
			s.closeAll()
		}
	}()

	s.logger.Info(ctx, "starting talentloop service...")

	if s.store == nil {
		if s.store, err = OpenStore(ctx, s.cfg, s.logger); err != nil {
			return err
		}
		s.ownsStore = true
		s.closers = append(s.closers, s.store.Close)
	}

	if s.cache == nil {
		if s.cache, err = s.openCache(ctx); err != nil {
			return err
		}
		s.ownsCache = true
	}

	tracker := policy.New(
		policy.WithAlpha(s.cfg.PolicyAlpha),
		policy.WithWeightFloor(s.cfg.PolicyWeightFloor),
	)
	s.contexts = calibration.NewContextGenerator(s.store, calibration.NewEngine(s.store),
		calibration.WithMinSamples(s.cfg.CalibrationMinSamples),
		calibration.WithBiasThreshold(s.cfg.CalibrationBiasThreshold),
		calibration.WithMAEThreshold(s.cfg.CalibrationMAEThreshold),
		calibration.WithLowTrustWeight(s.cfg.CalibrationLowTrustWeight),
		calibration.WithCache(s.cache),
		calibration.WithLogger(s.logger.Named("calibration")),
	)
	s.pipeline = feedback.New(s.store,
		feedback.WithTracker(tracker),
		feedback.WithInvalidator(s.contexts),
		feedback.WithLogger(s.logger.Named("feedback")),
	)

	if s.scorer == nil {
		if s.scorer, err = s.openScorer(ctx); err != nil {
			return err
		}
		s.ownsScorer = true
	}
	s.evaluator = evaluation.New(s.scorer,
		evaluation.WithContextSource(s.contexts),
		evaluation.WithConcurrency(s.cfg.BatchConcurrency),
		evaluation.WithTimeout(s.cfg.ScoringTimeout()),
		evaluation.WithLogger(s.logger.Named("evaluation")),
	)

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.cfg.DedupeSize))
	s.queue = eventqueue.NewInMemoryQueue(eventqueue.WithCapacity(s.cfg.EventQueueSize))
	s.pool = workerpool.NewPool(s.cfg.WorkerCount, s.queue, s.evaluator, s.store,
		workerpool.WithLogger(s.logger))
	// Workers outlive ctx; Stop closes the queue and waits for it to drain.
	s.pool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "talentloop service started",
		logger.Int("workers", s.cfg.WorkerCount),
		logger.Int("queueSize", s.cfg.EventQueueSize),
		logger.Int("dedupeSize", s.cfg.DedupeSize),
	)
	return nil
}

// OpenStore opens and migrates the configured database.
func OpenStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, error) {
	if cfg.DatabaseDriver == config.DriverMemory {
		log.Info(ctx, "using in-memory store")
		return repository.NewMemoryStore(repository.WithLogger(log)), nil
	}

	st, err := repository.Open(ctx, cfg.DatabaseDriver, cfg.DatabaseDSN, repository.WithLogger(log))
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("migrate store: %w", err)
	}
	return st, nil
}

func (s *Service) openCache(ctx context.Context) (calibration.Cache, error) {
	if s.cfg.RedisAddr == "" {
		s.logger.Info(ctx, "using in-process context cache", logger.Int("size", s.cfg.ContextCacheSize))
		return cache.NewLRU(s.cfg.ContextCacheSize, s.cfg.ContextCacheTTL()), nil
	}

	rc, err := cache.Dial(ctx, s.cfg.RedisAddr, s.cfg.RedisPassword, s.cfg.RedisDB, s.cfg.ContextCacheTTL())
	if err != nil {
		return nil, fmt.Errorf("open context cache: %w", err)
	}
	s.closers = append(s.closers, rc.Close)
	s.logger.Info(ctx, "using redis context cache", logger.String("addr", s.cfg.RedisAddr))
	return rc, nil
}

func (s *Service) openScorer(ctx context.Context) (scoring.Scorer, error) {
	if s.cfg.GeminiAPIKey == "" {
		s.logger.Warn(ctx, "gemini_api_key not set; falling back to keyword scorer")
		return scoring.NewKeywordScorer(), nil
	}

	gen, err := gemini.NewGenerator(ctx, s.cfg.GeminiAPIKey, s.cfg.GeminiModel)
	if err != nil {
		return nil, fmt.Errorf("open gemini scorer: %w", err)
	}
	s.logger.Info(ctx, "using gemini scorer", logger.String("model", gen.Model()))
	return gemini.NewScorer(gen, gemini.WithLogger(s.logger.Named("gemini"))), nil
}

// Dependencies returns what the HTTP API needs.
func (s *Service) Dependencies() (api.Dependencies, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return api.Dependencies{}, ErrNotStarted
	}
	return api.Dependencies{
		Feedback:   s.pipeline,
		Scoring:    s.evaluator,
		Queue:      s.queue,
		Deduper:    s.deduper,
		Candidates: s.store,
		Stats:      s,
	}, nil
}

// Stop closes the queue, waits for the workers to finish what was already
// queued and releases storage and cache connections. A stopped service can be
// started again.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}
	s.logger.Info(ctx, "stopping talentloop service...")

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := s.pool.Shutdown(shutdownCtx); err != nil {
		s.logger.Error(ctx, "worker pool shutdown failed", logger.Error(err))
	}

	s.closeAll()
	s.started = false
	s.logger.Info(ctx, "talentloop service stopped")
}

func (s *Service) closeAll() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && s.logger != nil {
			s.logger.Warn(context.Background(), "close failed", logger.Error(err))
		}
	}
	s.closers = nil

	if s.ownsStore {
		s.store, s.ownsStore = nil, false
	}
	if s.ownsCache {
		s.cache, s.ownsCache = nil, false
	}
	if s.ownsScorer {
		s.scorer, s.ownsScorer = nil, false
	}
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats(ctx context.Context) map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":        s.started,
		"workerCount":    s.cfg.WorkerCount,
		"queueCapacity":  s.cfg.EventQueueSize,
		"dedupeCapacity": s.cfg.DedupeSize,
	}
	if !s.started {
		return stats
	}

	queueLen := s.queue.Len(ctx)
	stats["queueLength"] = queueLen
	stats["dedupeSize"] = s.deduper.Size()
	stats["workers"] = s.pool.Stats()
	metrics.UpdateQueueSize(queueLen)

	if st, err := s.store.Stats(ctx); err != nil {
		s.logger.Warn(ctx, "store stats failed", logger.Error(err))
	} else {
		stats["store"] = st
	}
	return stats
}
