package feedbacksim

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/okian/talentloop/pkg/logger"
)

// Run executes a complete simulation: health check, concurrent submission and
// verification of the stored state.
func Run(ctx context.Context, cfg *Config) (*Stats, error) {
	if cfg.Events < 1 || cfg.Jobs < 1 || cfg.Workers < 1 {
		return nil, fmt.Errorf("%w: events, jobs and workers must be positive", ErrInvalidConfig)
	}

	log := logger.Get()
	stats := &Stats{StartTime: time.Now()}

	log.Info(ctx, "starting feedback simulation",
		logger.String("baseURL", cfg.BaseURL),
		logger.Int("events", cfg.Events),
		logger.Int("jobs", cfg.Jobs),
		logger.Int("workers", cfg.Workers),
		logger.String("timeout", cfg.Timeout.String()))

	if err := checkServiceHealth(ctx, cfg); err != nil {
		return stats, err
	}

	events := generateFeedback(cfg)
	stats.EventsGenerated = len(events)

	accepted := submitFeedback(ctx, cfg, events, stats)

	if err := verifyJobs(ctx, cfg, events, accepted, stats); err != nil {
		return stats, fmt.Errorf("verification failed: %w", err)
	}

	stats.EndTime = time.Now()
	stats.Duration = stats.EndTime.Sub(stats.StartTime)
	displayFinalStats(ctx, stats)
	return stats, nil
}

func checkServiceHealth(ctx context.Context, cfg *Config) error {
	var doc struct {
		Status string `json:"status"`
	}
	status, err := newHTTPClient(cfg.Timeout).Get(ctx, cfg.BaseURL+"/", &doc)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnhealthy, err)
	}
	if status != http.StatusOK || doc.Status != "healthy" {
		return fmt.Errorf("%w: status %d %q", ErrUnhealthy, status, doc.Status)
	}
	logger.Get().Info(ctx, "service is healthy")
	return nil
}

func displayFinalStats(ctx context.Context, stats *Stats) {
	var perSecond float64
	if stats.Duration > 0 {
		perSecond = float64(stats.EventsGenerated) / stats.Duration.Seconds()
	}
	logger.Get().Info(ctx, "final statistics",
		logger.Int("eventsGenerated", stats.EventsGenerated),
		logger.Int("eventsSuccessful", stats.EventsSuccessful),
		logger.Int("eventsFailed", stats.EventsFailed),
		logger.Int("jobsVerified", stats.JobsVerified),
		logger.String("duration", stats.Duration.String()),
		logger.Float64("eventsPerSecond", perSecond))
}
