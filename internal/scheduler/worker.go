package scheduler

import (
	"context"
	"fmt"

	"github.com/hibiken/asynq"

	"leadpilot_backend/internal/followups"
	"leadpilot_backend/internal/scoring"
	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/logger"
)

// Worker consumes background tasks: scoring runs and follow-up steps.
type Worker struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	leads     *store.Store
	engine    *scoring.Engine
	followups *followups.Service
	log       *logger.Logger
}

// NewWorker creates the task worker.
func NewWorker(cfg config.SchedulerConfig, leads *store.Store, engine *scoring.Engine,
	fups *followups.Service, log *logger.Logger) (*Worker, error) {
	opt, err := redisClientOpt(cfg)
	if err != nil {
		return nil, err
	}

	concurrency := cfg.GetAsynqConcurrency()
	if concurrency <= 0 {
		concurrency = 10
	}

	server := asynq.NewServer(opt, asynq.Config{
		Concurrency: concurrency,
		Queues:      map[string]int{cfg.GetAsynqQueueName(): 1},
	})

	w := &Worker{
		server:    server,
		mux:       asynq.NewServeMux(),
		leads:     leads,
		engine:    engine,
		followups: fups,
		log:       log,
	}
	w.mux.HandleFunc(TypeLeadScore, w.handleLeadScore)
	w.mux.HandleFunc(TypeFollowUpStep, w.handleFollowUpStep)
	return w, nil
}

// Run serves tasks until ctx is canceled, then shuts the server down
// gracefully.
func (w *Worker) Run(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		w.server.Shutdown()
	}()
	w.log.Info("task worker started")
	return w.server.Run(w.mux)
}

func (w *Worker) handleLeadScore(ctx context.Context, t *asynq.Task) error {
	payload, err := ParseLeadScorePayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	lead, err := w.leads.GetLead(ctx, payload.AgentID, payload.LeadID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			// Deleted between enqueue and execution. Nothing to score.
			return nil
		}
		return err
	}

	interactions, err := w.leads.ListInteractions(ctx, payload.AgentID, payload.LeadID, 0)
	if err != nil {
		return err
	}

	score := w.engine.Score(ctx, scoring.Input{Lead: lead, Interactions: interactions})
	if err := w.leads.AttachScore(ctx, payload.AgentID, payload.LeadID, score); err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		return err
	}

	w.log.Info("lead scored",
		"leadId", payload.LeadID, "score", score.Score, "fallback", score.Fallback)
	return nil
}

func (w *Worker) handleFollowUpStep(ctx context.Context, t *asynq.Task) error {
	payload, err := ParseFollowUpStepPayload(t)
	if err != nil {
		return fmt.Errorf("%w: %w", asynq.SkipRetry, err)
	}

	outcome, err := w.followups.ExecuteDueStep(ctx, payload.FollowUpID)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil
		}
		w.log.TaskError(TypeFollowUpStep, err)
		return err
	}

	w.log.Info("follow-up step handled",
		"followUpId", payload.FollowUpID, "step", payload.Step, "outcome", string(outcome))
	return nil
}
