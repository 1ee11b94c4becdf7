package repository

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormLogger "gorm.io/gorm/logger"

	"github.com/okian/talentloop/internal/domain/model"
	"github.com/okian/talentloop/pkg/logger"
	"github.com/okian/talentloop/pkg/metrics"
)

// Supported SQL dialects.
const (
	DialectSQLite   = "sqlite"
	DialectPostgres = "postgres"
)

type rewardRow struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	CandidateID    string `gorm:"not null;index"`
	JobID          string `gorm:"not null;index:idx_reward_log_job_id"`
	AIScore        int    `gorm:"column:ai_score;not null"`
	RecruiterScore int    `gorm:"column:recruiter_score;not null"`
	Delta          int    `gorm:"not null"`
	CreatedAt      int64  `gorm:"not null;autoCreateTime:false"`
}

func (rewardRow) TableName() string { return "reward_log" }

type policyRow struct {
	JobID       string  `gorm:"primaryKey;column:job_id"`
	Version     int     `gorm:"primaryKey;autoIncrement:false"`
	Weight      float64 `gorm:"not null"`
	ErrorAvg    float64 `gorm:"not null"`
	SampleCount int     `gorm:"not null"`
	CreatedAt   int64   `gorm:"not null;autoCreateTime:false"`
	UpdatedAt   int64   `gorm:"not null;autoUpdateTime:false"`
}

func (policyRow) TableName() string { return "policy_state" }

type candidateRow struct {
	CandidateID string `gorm:"primaryKey;column:candidate_id"`
	JobID       string `gorm:"not null;index"`
	Score       int    `gorm:"not null"`
	UpdatedAt   int64  `gorm:"not null;autoUpdateTime:false"`
}

func (candidateRow) TableName() string { return "candidates" }

func (r rewardRow) toModel() model.RewardRecord {
	return model.RewardRecord{
		ID:             r.ID,
		CandidateID:    r.CandidateID,
		JobID:          r.JobID,
		AIScore:        r.AIScore,
		RecruiterScore: r.RecruiterScore,
		Delta:          r.Delta,
		CreatedAt:      r.CreatedAt,
	}
}

func (r policyRow) toModel() model.PolicyState {
	return model.PolicyState{
		JobID:       r.JobID,
		Version:     r.Version,
		Weight:      r.Weight,
		ErrorAvg:    r.ErrorAvg,
		SampleCount: r.SampleCount,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}

// GormStore persists state in a SQL database through GORM.
type GormStore struct {
	db      *gorm.DB
	dialect string
	log     logger.Logger
}

var _ Store = (*GormStore)(nil)

// Open connects to the database named by dialect and dsn. Call Migrate before
// first use on an empty database.
func Open(ctx context.Context, dialect, dsn string, opts ...Option) (*GormStore, error) {
	s := defaultSettings()
	for _, opt := range opts {
		opt(&s)
	}

	var dialector gorm.Dialector
	switch dialect {
	case DialectSQLite:
		dialector = sqlite.Open(dsn)
	case DialectPostgres:
		dialector = postgres.Open(dsn)
	default:
		return nil, fmt.Errorf("%w: unsupported dialect %q", ErrPersistence, dialect)
	}

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             s.slowThreshold,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)

	db, err := gorm.Open(dialector, &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: connect %s: %w", ErrPersistence, dialect, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	if dialect == DialectSQLite {
		// SQLite allows one writer; a single connection also serializes transactions.
		sqlDB.SetMaxOpenConns(1)
	} else {
		sqlDB.SetMaxOpenConns(s.maxOpenConns)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("%w: ping %s: %w", ErrPersistence, dialect, err)
	}

	st := &GormStore{db: db, dialect: dialect, log: s.log.Named("gorm_store")}
	st.log.Info(ctx, "database connected", logger.String("dialect", dialect))
	return st, nil
}

// Migrate creates or updates the reward_log, policy_state and candidates relations.
func (s *GormStore) Migrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(&rewardRow{}, &policyRow{}, &candidateRow{}); err != nil {
		return fmt.Errorf("%w: migrate: %w", ErrPersistence, err)
	}
	s.log.Info(ctx, "schema migrated", logger.String("dialect", s.dialect))
	return nil
}

// Dialect reports the SQL dialect in use.
func (s *GormStore) Dialect() string { return s.dialect }

// persistErr wraps err as a persistence failure for op and counts it.
func persistErr(op string, err error) error {
	metrics.RecordRepositoryError(op)
	return fmt.Errorf("%w: %s: %w", ErrPersistence, op, err)
}

func observe(op string, start time.Time) {
	metrics.RecordRepositoryLatency(op, float64(time.Since(start).Milliseconds()))
}

// Atomically runs fn inside one database transaction.
func (s *GormStore) Atomically(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error {
	defer observe("transaction", time.Now())

	var fnErr error
	err := s.db.WithContext(ctx).Transaction(func(db *gorm.DB) error {
		fnErr = fn(ctx, &gormTx{db: db, dialect: s.dialect})
		return fnErr
	})
	if fnErr != nil {
		return fnErr
	}
	if err != nil {
		return persistErr("transaction", err)
	}
	return nil
}

type gormTx struct {
	db      *gorm.DB
	dialect string
}

func (t *gormTx) SetCandidateScore(ctx context.Context, score model.CandidateScore) error {
	return upsertCandidate(t.db.WithContext(ctx), score)
}

func upsertCandidate(db *gorm.DB, score model.CandidateScore) error {
	row := candidateRow{
		CandidateID: score.CandidateID,
		JobID:       score.JobID,
		Score:       score.Score,
		UpdatedAt:   score.UpdatedAt,
	}
	err := db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "candidate_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"job_id", "score", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return persistErr("set_candidate_score", err)
	}
	return nil
}

func (t *gormTx) AppendReward(ctx context.Context, rec model.RewardRecord) (int64, error) {
	row := rewardRow{
		CandidateID:    rec.CandidateID,
		JobID:          rec.JobID,
		AIScore:        rec.AIScore,
		RecruiterScore: rec.RecruiterScore,
		Delta:          rec.Delta,
		CreatedAt:      rec.CreatedAt,
	}
	if err := t.db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, persistErr("append_reward", err)
	}
	return row.ID, nil
}

// UpdatePolicy inserts a placeholder row if none exists, then re-reads it.
// On PostgreSQL the re-read takes a row lock that is held until commit.
func (t *gormTx) UpdatePolicy(ctx context.Context, jobID string, version int, fn PolicyUpdate) (model.PolicyState, error) {
	db := t.db.WithContext(ctx)

	placeholder := policyRow{JobID: jobID, Version: version, Weight: 1}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&placeholder).Error; err != nil {
		return model.PolicyState{}, persistErr("update_policy", err)
	}

	q := db.Where("job_id = ? AND version = ?", jobID, version)
	if t.dialect == DialectPostgres {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var row policyRow
	if err := q.Take(&row).Error; err != nil {
		return model.PolicyState{}, persistErr("update_policy", err)
	}

	var prev *model.PolicyState
	if row.SampleCount > 0 {
		st := row.toModel()
		prev = &st
	}
	next := fn(prev)

	updated := policyRow{
		JobID:       jobID,
		Version:     version,
		Weight:      next.Weight,
		ErrorAvg:    next.ErrorAvg,
		SampleCount: next.SampleCount,
		CreatedAt:   next.CreatedAt,
		UpdatedAt:   next.UpdatedAt,
	}
	if err := db.Save(&updated).Error; err != nil {
		return model.PolicyState{}, persistErr("update_policy", err)
	}
	return next, nil
}

// RewardHistory returns up to limit rewards for a job, newest first.
func (s *GormStore) RewardHistory(ctx context.Context, jobID string, limit int) ([]model.RewardRecord, error) {
	if limit < 1 {
		return nil, ErrInvalidLimit
	}
	defer observe("reward_history", time.Now())

	var rows []rewardRow
	err := s.db.WithContext(ctx).
		Where("job_id = ?", jobID).
		Order("id DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, persistErr("reward_history", err)
	}

	out := make([]model.RewardRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toModel()
	}
	return out, nil
}

// RewardDeltas returns all deltas for a job in insertion order.
func (s *GormStore) RewardDeltas(ctx context.Context, jobID string) ([]int, error) {
	defer observe("reward_deltas", time.Now())

	var deltas []int
	err := s.db.WithContext(ctx).
		Model(&rewardRow{}).
		Where("job_id = ?", jobID).
		Order("id ASC").
		Pluck("delta", &deltas).Error
	if err != nil {
		return nil, persistErr("reward_deltas", err)
	}
	return deltas, nil
}

// Policy returns the stored policy state or ErrNotFound.
func (s *GormStore) Policy(ctx context.Context, jobID string, version int) (model.PolicyState, error) {
	defer observe("policy", time.Now())

	var row policyRow
	err := s.db.WithContext(ctx).
		Where("job_id = ? AND version = ? AND sample_count > 0", jobID, version).
		Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.PolicyState{}, ErrNotFound
	}
	if err != nil {
		return model.PolicyState{}, persistErr("policy", err)
	}
	return row.toModel(), nil
}

// Candidate returns the candidate snapshot or ErrNotFound.
func (s *GormStore) Candidate(ctx context.Context, candidateID string) (model.CandidateScore, error) {
	var row candidateRow
	err := s.db.WithContext(ctx).Where("candidate_id = ?", candidateID).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return model.CandidateScore{}, ErrNotFound
	}
	if err != nil {
		return model.CandidateScore{}, persistErr("candidate", err)
	}
	return model.CandidateScore{
		CandidateID: row.CandidateID,
		JobID:       row.JobID,
		Score:       row.Score,
		UpdatedAt:   row.UpdatedAt,
	}, nil
}

// SaveCandidateScore upserts a snapshot outside of a feedback transaction.
func (s *GormStore) SaveCandidateScore(ctx context.Context, score model.CandidateScore) error {
	defer observe("set_candidate_score", time.Now())
	return upsertCandidate(s.db.WithContext(ctx), score)
}

// Stats counts stored rows.
func (s *GormStore) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	db := s.db.WithContext(ctx)
	if err := db.Model(&rewardRow{}).Count(&st.Rewards).Error; err != nil {
		return Stats{}, persistErr("stats", err)
	}
	if err := db.Model(&policyRow{}).Where("sample_count > 0").Count(&st.Policies).Error; err != nil {
		return Stats{}, persistErr("stats", err)
	}
	if err := db.Model(&candidateRow{}).Count(&st.Candidates).Error; err != nil {
		return Stats{}, persistErr("stats", err)
	}
	return st, nil
}

// Close releases the connection pool.
func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPersistence, err)
	}
	return sqlDB.Close()
}
