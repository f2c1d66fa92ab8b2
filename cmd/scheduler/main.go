// The scheduler binary runs the background side of the lead pipeline: the
// asynq worker for scoring and follow-up steps, the due-queue sweeper, and
// the event subscriptions that glue lead creation to scoring and scoring to
// follow-up attachment.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"leadpilot_backend/internal/events"
	"leadpilot_backend/internal/followups"
	"leadpilot_backend/internal/notify"
	"leadpilot_backend/internal/scheduler"
	"leadpilot_backend/internal/scoring"
	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/ai/gemini"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/db"
	"leadpilot_backend/platform/logger"
	platformredis "leadpilot_backend/platform/redis"
	"leadpilot_backend/platform/validator"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "scheduler: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Env)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := withRetry(ctx, log, "postgres", func() (*pgxpool.Pool, error) {
		return db.NewPool(ctx, cfg)
	})
	if err != nil {
		return err
	}
	defer pool.Close()

	if err := db.RunMigrations(ctx, cfg); err != nil {
		return fmt.Errorf("migrations: %w", err)
	}

	rdb, err := platformredis.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	bus := events.NewInMemoryBus(log)
	validate := validator.New()

	repo := store.NewRepository(pool)
	index := store.NewIndex(rdb, log)
	leads := store.NewStore(repo, index, bus, validate, log)

	completer, err := gemini.NewClient(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("gemini client: %w", err)
	}
	var engine *scoring.Engine
	if completer != nil {
		engine = scoring.NewEngine(completer, scoring.DefaultConfig(), log)
	} else {
		log.Warn("completion service not configured, keyword scoring only")
		engine = scoring.NewEngine(nil, scoring.DefaultConfig(), log)
	}

	emailSender, err := notify.NewEmailSender(cfg, log)
	if err != nil {
		return fmt.Errorf("email sender: %w", err)
	}
	dispatcher := notify.NewDispatcher(notify.NewWhatsAppClient(cfg, log), emailSender, log)

	fups := followups.NewService(repo, index, dispatcher, bus, validate, cfg, log)

	taskClient, err := scheduler.NewClient(cfg, log)
	if err != nil {
		return err
	}
	defer taskClient.Close()

	// Lead created: queue a scoring run. Creation never waits for scoring.
	bus.Subscribe(events.LeadCreated{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, e events.Event) error {
			ev, ok := e.(events.LeadCreated)
			if !ok {
				return nil
			}
			return taskClient.EnqueueLeadScore(ctx, ev.LeadID, ev.AgentID)
		}))

	// Lead scored: attach any matching follow-up sequences.
	bus.Subscribe(events.LeadScored{}.EventName(), events.HandlerFunc(
		func(ctx context.Context, e events.Event) error {
			ev, ok := e.(events.LeadScored)
			if !ok {
				return nil
			}
			return fups.AttachMatching(ctx, ev.AgentID, ev.LeadID)
		}))

	worker, err := scheduler.NewWorker(cfg, leads, engine, fups, log)
	if err != nil {
		return err
	}

	sweeper := scheduler.NewSweeper(fups, taskClient, cfg.GetFollowUpSweepInterval(), log)
	go sweeper.Run(ctx)

	log.Info("scheduler running", "queue", cfg.GetAsynqQueueName())
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	log.Info("scheduler stopped")
	return nil
}

// withRetry retries a connection a few times before giving up, so a restart
// race with the database does not kill the process.
func withRetry[T any](ctx context.Context, log *logger.Logger, name string, connect func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	for attempt := 1; attempt <= 5; attempt++ {
		v, err := connect()
		if err == nil {
			return v, nil
		}
		lastErr = err
		log.Warn("connection failed, retrying", "target", name, "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(time.Duration(attempt) * 2 * time.Second):
		}
	}
	return zero, fmt.Errorf("connect %s: %w", name, lastErr)
}
