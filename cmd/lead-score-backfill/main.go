// lead-score-backfill enqueues a scoring run for every live lead of one
// agent. Used after scoring configuration changes or to score leads imported
// before the pipeline existed.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"leadpilot_backend/internal/scheduler"
	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/db"
	"leadpilot_backend/platform/logger"
)

func main() {
	agentFlag := flag.String("agent", "", "agent id whose leads to rescore")
	parallel := flag.Int("parallel", 8, "concurrent enqueues")
	flag.Parse()

	if err := run(*agentFlag, *parallel); err != nil {
		fmt.Fprintf(os.Stderr, "lead-score-backfill: %v\n", err)
		os.Exit(1)
	}
}

func run(agentFlag string, parallel int) error {
	agentID, err := uuid.Parse(agentFlag)
	if err != nil {
		return fmt.Errorf("invalid -agent: %w", err)
	}
	if parallel < 1 {
		parallel = 1
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := logger.New(cfg.Env)
	ctx := context.Background()

	pool, err := db.NewPool(ctx, cfg)
	if err != nil {
		return err
	}
	defer pool.Close()

	client, err := scheduler.NewClient(cfg, log)
	if err != nil {
		return err
	}
	defer client.Close()

	repo := store.NewRepository(pool)
	ids, err := repo.AllLeadIDs(ctx, agentID)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(parallel)
	for _, id := range ids {
		leadID := id
		g.Go(func() error {
			return client.EnqueueLeadScore(ctx, leadID, agentID)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	log.Info("backfill enqueued", "agentId", agentID, "leads", len(ids))
	return nil
}
