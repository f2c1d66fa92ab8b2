package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
)

// Index maintains the Redis secondary indices over the Postgres primary
// records: per-agent recency ranking, status and source buckets, the
// follow-up due queue, claim guards and counters. Postgres stays the source
// of truth; every index read is backed by a primary fetch.
type Index struct {
	rdb *redis.Client
	log *logger.Logger
}

// NewIndex creates a Redis-backed secondary index.
func NewIndex(rdb *redis.Client, log *logger.Logger) *Index {
	return &Index{rdb: rdb, log: log}
}

func keyByTime(agentID uuid.UUID) string {
	return fmt.Sprintf("agent:%s:leads:by_time", agentID)
}

func keyStatus(agentID uuid.UUID, status string) string {
	return fmt.Sprintf("agent:%s:leads:status:%s", agentID, status)
}

func keySource(agentID uuid.UUID, source string) string {
	return fmt.Sprintf("agent:%s:leads:source:%s", agentID, source)
}

func keyDue(agentID uuid.UUID) string {
	return fmt.Sprintf("agent:%s:followups:due", agentID)
}

func keyLeadCount(agentID uuid.UUID) string {
	return fmt.Sprintf("agent:%s:leads:count", agentID)
}

func keyStepClaim(followUpID uuid.UUID) string {
	return fmt.Sprintf("followup:claim:%s", followUpID)
}

// AddLead registers a freshly created lead in every index in one pipeline.
func (ix *Index) AddLead(ctx context.Context, l *Lead) error {
	pipe := ix.rdb.TxPipeline()
	pipe.ZAdd(ctx, keyByTime(l.AgentID), redis.Z{
		Score:  float64(l.CreatedAt.UnixMilli()),
		Member: l.ID.String(),
	})
	pipe.SAdd(ctx, keyStatus(l.AgentID, l.Status), l.ID.String())
	pipe.SAdd(ctx, keySource(l.AgentID, l.Source), l.ID.String())
	pipe.Incr(ctx, keyLeadCount(l.AgentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("index lead: %w", err)
	}
	return nil
}

// RemoveLead drops a lead from every index.
func (ix *Index) RemoveLead(ctx context.Context, l *Lead) error {
	pipe := ix.rdb.TxPipeline()
	pipe.ZRem(ctx, keyByTime(l.AgentID), l.ID.String())
	for _, status := range AllStatuses {
		pipe.SRem(ctx, keyStatus(l.AgentID, status), l.ID.String())
	}
	pipe.SRem(ctx, keySource(l.AgentID, l.Source), l.ID.String())
	pipe.Decr(ctx, keyLeadCount(l.AgentID))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("deindex lead: %w", err)
	}
	return nil
}

// statusReader reads the authoritative status of a lead from the primary
// store. Satisfied by *Repository.
type statusReader interface {
	GetLeadStatus(ctx context.Context, id uuid.UUID) (string, error)
}

const syncStatusAttempts = 5

// SyncStatus converges the status buckets for one lead to the primary
// record's current status. It runs a WATCH transaction over all buckets and
// re-reads the primary status inside each attempt, so under concurrent
// updates the buckets always settle on the last primary write with the lead
// in exactly one bucket. The same routine is the repair path for a detected
// bucket inconsistency.
func (ix *Index) SyncStatus(ctx context.Context, primary statusReader, agentID, leadID uuid.UUID) error {
	keys := make([]string, 0, len(AllStatuses))
	for _, status := range AllStatuses {
		keys = append(keys, keyStatus(agentID, status))
	}

	var lastErr error
	for attempt := 0; attempt < syncStatusAttempts; attempt++ {
		err := ix.rdb.Watch(ctx, func(tx *redis.Tx) error {
			status, err := primary.GetLeadStatus(ctx, leadID)
			if err != nil {
				return err
			}
			_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
				for _, s := range AllStatuses {
					if s == status {
						pipe.SAdd(ctx, keyStatus(agentID, s), leadID.String())
					} else {
						pipe.SRem(ctx, keyStatus(agentID, s), leadID.String())
					}
				}
				return nil
			})
			return err
		}, keys...)
		if err == nil {
			return nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return fmt.Errorf("sync status index: %w", err)
		}
		lastErr = err
	}
	return apperr.Wrap(apperr.KindIndexInconsistency, "status index did not converge", lastErr)
}

// VerifyStatus checks that the lead sits in exactly the bucket matching the
// primary status. It returns the list of buckets the lead was found in; a
// mismatch is reported as an index inconsistency after an automatic repair
// attempt.
func (ix *Index) VerifyStatus(ctx context.Context, primary statusReader, agentID, leadID uuid.UUID) ([]string, error) {
	status, err := primary.GetLeadStatus(ctx, leadID)
	if err != nil {
		return nil, err
	}

	pipe := ix.rdb.Pipeline()
	members := make(map[string]*redis.BoolCmd, len(AllStatuses))
	for _, s := range AllStatuses {
		members[s] = pipe.SIsMember(ctx, keyStatus(agentID, s), leadID.String())
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("verify status index: %w", err)
	}

	var found []string
	for _, s := range AllStatuses {
		if members[s].Val() {
			found = append(found, s)
		}
	}

	if len(found) == 1 && found[0] == status {
		return found, nil
	}

	if err := ix.SyncStatus(ctx, primary, agentID, leadID); err != nil {
		return found, err
	}
	ix.log.IndexRepaired(agentID.String(), leadID.String(), status)
	return found, apperr.IndexInconsistency(
		fmt.Sprintf("lead %s found in %d status buckets, repaired to %q", leadID, len(found), status))
}

// UpdateSource moves a lead between source buckets.
func (ix *Index) UpdateSource(ctx context.Context, agentID, leadID uuid.UUID, oldSource, newSource string) error {
	if oldSource == newSource {
		return nil
	}
	pipe := ix.rdb.TxPipeline()
	pipe.SRem(ctx, keySource(agentID, oldSource), leadID.String())
	pipe.SAdd(ctx, keySource(agentID, newSource), leadID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("update source index: %w", err)
	}
	return nil
}

// ListFilter narrows a recency-ordered listing to one status or source
// bucket. Zero value means no filtering.
type ListFilter struct {
	Status string
	Source string
}

// LeadIDs returns lead ids for an agent, newest first, optionally
// intersected with a status or source bucket, paginated by offset/limit.
func (ix *Index) LeadIDs(ctx context.Context, agentID uuid.UUID, f ListFilter, offset, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 50
	}

	ids, err := ix.rdb.ZRevRange(ctx, keyByTime(agentID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list lead ids: %w", err)
	}

	var bucket map[string]struct{}
	if f.Status != "" || f.Source != "" {
		key := keyStatus(agentID, f.Status)
		if f.Source != "" {
			key = keySource(agentID, f.Source)
		}
		members, err := ix.rdb.SMembers(ctx, key).Result()
		if err != nil {
			return nil, fmt.Errorf("list lead ids: %w", err)
		}
		bucket = make(map[string]struct{}, len(members))
		for _, m := range members {
			bucket[m] = struct{}{}
		}
	}

	var out []uuid.UUID
	skipped := 0
	for _, raw := range ids {
		if bucket != nil {
			if _, ok := bucket[raw]; !ok {
				continue
			}
		}
		if skipped < offset {
			skipped++
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			continue
		}
		out = append(out, id)
		if len(out) >= limit {
			break
		}
	}
	return out, nil
}

// LeadCount reads the cached per-agent lead counter.
func (ix *Index) LeadCount(ctx context.Context, agentID uuid.UUID) (int64, error) {
	n, err := ix.rdb.Get(ctx, keyLeadCount(agentID)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("lead count: %w", err)
	}
	return n, nil
}

// StatusBucketSize reports the size of one status bucket.
func (ix *Index) StatusBucketSize(ctx context.Context, agentID uuid.UUID, status string) (int64, error) {
	n, err := ix.rdb.SCard(ctx, keyStatus(agentID, status)).Result()
	if err != nil {
		return 0, fmt.Errorf("status bucket size: %w", err)
	}
	return n, nil
}

// ScheduleFollowUp places or moves a follow-up in the agent's due queue.
func (ix *Index) ScheduleFollowUp(ctx context.Context, agentID, followUpID uuid.UUID, at time.Time) error {
	err := ix.rdb.ZAdd(ctx, keyDue(agentID), redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: followUpID.String(),
	}).Err()
	if err != nil {
		return fmt.Errorf("schedule follow-up: %w", err)
	}
	return nil
}

// UnscheduleFollowUp removes a follow-up from the due queue.
func (ix *Index) UnscheduleFollowUp(ctx context.Context, agentID, followUpID uuid.UUID) error {
	if err := ix.rdb.ZRem(ctx, keyDue(agentID), followUpID.String()).Err(); err != nil {
		return fmt.Errorf("unschedule follow-up: %w", err)
	}
	return nil
}

// DueFollowUpIDs returns follow-ups in the agent's due queue whose action
// time is at or before now, soonest first.
func (ix *Index) DueFollowUpIDs(ctx context.Context, agentID uuid.UUID, now time.Time, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	raw, err := ix.rdb.ZRangeByScore(ctx, keyDue(agentID), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   fmt.Sprintf("%d", now.UnixMilli()),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("due follow-up ids: %w", err)
	}

	out := make([]uuid.UUID, 0, len(raw))
	for _, m := range raw {
		id, err := uuid.Parse(m)
		if err != nil {
			continue
		}
		out = append(out, id)
	}
	return out, nil
}

// ClaimStep takes a short-lived exclusive claim on a follow-up so two
// workers never execute the same step twice. Returns false when another
// worker already holds the claim.
func (ix *Index) ClaimStep(ctx context.Context, followUpID uuid.UUID, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	ok, err := ix.rdb.SetNX(ctx, keyStepClaim(followUpID), "1", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("claim step: %w", err)
	}
	return ok, nil
}

// ReleaseClaim drops a step claim early, letting a retry proceed before the
// TTL expires.
func (ix *Index) ReleaseClaim(ctx context.Context, followUpID uuid.UUID) {
	if err := ix.rdb.Del(ctx, keyStepClaim(followUpID)).Err(); err != nil {
		ix.log.Warn("release step claim failed", "followUpId", followUpID, "error", err)
	}
}
