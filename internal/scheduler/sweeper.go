package scheduler

import (
	"context"
	"time"

	"leadpilot_backend/internal/followups"
	"leadpilot_backend/platform/logger"
)

const sweepBatchSize = 200

// Sweeper periodically reads due follow-ups straight from the primary store
// and enqueues their step tasks. It is the self-healing layer under the
// Redis due queue: a lost queue entry costs at most one sweep interval of
// delay, never a missed step.
type Sweeper struct {
	followups *followups.Service
	client    *Client
	interval  time.Duration
	log       *logger.Logger
}

// NewSweeper creates the due-queue sweeper.
func NewSweeper(fups *followups.Service, client *Client, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Sweeper{followups: fups, client: client, interval: interval, log: log}
}

// Run sweeps on a fixed interval until ctx is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.Info("follow-up sweeper started", "interval", s.interval.String())
	for {
		select {
		case <-ctx.Done():
			s.log.Info("follow-up sweeper stopped")
			return
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	due, err := s.followups.DueFollowUps(ctx, sweepBatchSize)
	if err != nil {
		s.log.TaskError("followup_sweep", err)
		return
	}

	enqueued := 0
	for _, f := range due {
		if err := s.client.EnqueueFollowUpStep(ctx, f.ID, f.AgentID, f.CurrentStep); err != nil {
			s.log.TaskError("followup_sweep_enqueue", err)
			continue
		}
		enqueued++
	}
	if enqueued > 0 {
		s.log.Info("follow-up sweep enqueued steps", "count", enqueued)
	}
}
