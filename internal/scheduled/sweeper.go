package scheduled

import (
	"context"
	"log/slog"
	"time"

	"github.com/chatpay/chatpay/internal/metrics"
)

const defaultBatchSize = 50

// Runner carries out an approved intent.
type Runner interface {
	RunScheduled(ctx context.Context, in Intent) error
}

// RunnerFunc adapts a function to Runner.
type RunnerFunc func(ctx context.Context, in Intent) error

func (f RunnerFunc) RunScheduled(ctx context.Context, in Intent) error { return f(ctx, in) }

// Sweeper claims due intents and hands them to a Runner.
type Sweeper struct {
	repo      Repository
	runner    Runner
	logger    *slog.Logger
	batchSize int
	now       func() time.Time
}

func NewSweeper(repo Repository, runner Runner, logger *slog.Logger) *Sweeper {
	return &Sweeper{
		repo:      repo,
		runner:    runner,
		logger:    logger,
		batchSize: defaultBatchSize,
		now:       time.Now,
	}
}

// RunOnce processes one batch of due intents and returns how many it claimed.
func (s *Sweeper) RunOnce(ctx context.Context) int {
	due, err := s.repo.Due(ctx, s.now(), s.batchSize)
	if err != nil {
		s.logger.Error("failed to load due scheduled intents", "error", err)
		return 0
	}
	claimed := 0
	for _, in := range due {
		// the approve transition is the claim; a concurrent worker loses it here
		if err := s.repo.UpdateStatus(ctx, in.ID, StatusPending, StatusApproved); err != nil {
			s.logger.Warn("scheduled intent already claimed", "intent_id", in.ID, "error", err)
			continue
		}
		claimed++
		s.process(ctx, in)
	}
	return claimed
}

func (s *Sweeper) process(ctx context.Context, in Intent) {
	final := StatusExecuted
	if in.Type != TypeSend {
		s.logger.Warn("unsupported scheduled intent type", "intent_id", in.ID, "type", in.Type)
		final = StatusCancelled
	} else if err := s.runner.RunScheduled(ctx, in); err != nil {
		s.logger.Error("scheduled intent failed", "intent_id", in.ID, "error", err)
		final = StatusCancelled
	}
	if err := s.repo.UpdateStatus(ctx, in.ID, StatusApproved, final); err != nil {
		s.logger.Error("failed to finalise scheduled intent", "intent_id", in.ID, "status", final, "error", err)
		return
	}
	metrics.ScheduledProcessedTotal.WithLabelValues(final).Inc()
	s.logger.Info("scheduled intent processed", "intent_id", in.ID, "status", final)
}

// Run sweeps on every tick until ctx is cancelled.
func (s *Sweeper) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.RunOnce(ctx)
		}
	}
}
