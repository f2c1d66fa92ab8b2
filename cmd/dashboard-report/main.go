// dashboard-report prints one agent's pipeline snapshot as JSON. Handy for
// support and for checking the aggregates without the app in front of you.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"github.com/google/uuid"

	"leadpilot_backend/internal/dashboard"
	"leadpilot_backend/internal/store"
	"leadpilot_backend/platform/config"
	"leadpilot_backend/platform/db"
	"leadpilot_backend/platform/logger"
	platformredis "leadpilot_backend/platform/redis"
)

func main() {
	agentFlag := flag.String("agent", "", "agent id to report on")
	flag.Parse()

	if err := run(*agentFlag); err != nil {
		fmt.Fprintf(os.Stderr, "dashboard-report: %v\n", err)
		os.Exit(1)
	}
}

func run(agentFlag string) error {
	agentID, err := uuid.Parse(agentFlag)
	if err != nil {
		return fmt.Errorf("invalid -agent: %w", err)
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

	rdb, err := platformredis.NewClient(ctx, cfg)
	if err != nil {
		return err
	}
	defer rdb.Close()

	repo := store.NewRepository(pool)
	index := store.NewIndex(rdb, log)

	snap, err := dashboard.NewService(repo, index, log).Build(ctx, agentID)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}
