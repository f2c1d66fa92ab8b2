package store

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"leadpilot_backend/platform/apperr"
	"leadpilot_backend/platform/logger"
)

func newTestIndex(t *testing.T) (*Index, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return NewIndex(rdb, logger.New("development")), mr
}

// fakeStatusSource serves lead statuses the way the primary store would,
// with a mutex so tests can flip statuses mid-flight.
type fakeStatusSource struct {
	mu       sync.Mutex
	statuses map[uuid.UUID]string
}

func (f *fakeStatusSource) GetLeadStatus(_ context.Context, id uuid.UUID) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	status, ok := f.statuses[id]
	if !ok {
		return "", apperr.NotFound("lead not found")
	}
	return status, nil
}

func (f *fakeStatusSource) set(id uuid.UUID, status string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[id] = status
}

func membershipCount(t *testing.T, ix *Index, agentID, leadID uuid.UUID) (int, string) {
	t.Helper()
	ctx := context.Background()
	count := 0
	var bucket string
	for _, status := range AllStatuses {
		ok, err := ix.rdb.SIsMember(ctx, keyStatus(agentID, status), leadID.String()).Result()
		if err != nil {
			t.Fatalf("SIsMember: %v", err)
		}
		if ok {
			count++
			bucket = status
		}
	}
	return count, bucket
}

func TestAddLeadIndexesEverything(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	agentID := uuid.New()
	lead := &Lead{
		ID:        uuid.New(),
		AgentID:   agentID,
		Status:    StatusNew,
		Source:    SourceWebsite,
		CreatedAt: time.Now(),
	}
	if err := ix.AddLead(ctx, lead); err != nil {
		t.Fatalf("AddLead: %v", err)
	}

	n, bucket := membershipCount(t, ix, agentID, lead.ID)
	if n != 1 || bucket != StatusNew {
		t.Fatalf("expected exactly one bucket (new), got %d (%s)", n, bucket)
	}

	ids, err := ix.LeadIDs(ctx, agentID, ListFilter{}, 0, 10)
	if err != nil {
		t.Fatalf("LeadIDs: %v", err)
	}
	if len(ids) != 1 || ids[0] != lead.ID {
		t.Fatalf("expected [%s], got %v", lead.ID, ids)
	}

	count, err := ix.LeadCount(ctx, agentID)
	if err != nil {
		t.Fatalf("LeadCount: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected count 1, got %d", count)
	}
}

func TestSyncStatusMovesBetweenBuckets(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	agentID := uuid.New()
	leadID := uuid.New()
	primary := &fakeStatusSource{statuses: map[uuid.UUID]string{leadID: StatusNew}}

	lead := &Lead{ID: leadID, AgentID: agentID, Status: StatusNew, Source: SourceReferral, CreatedAt: time.Now()}
	if err := ix.AddLead(ctx, lead); err != nil {
		t.Fatalf("AddLead: %v", err)
	}

	primary.set(leadID, StatusHot)
	if err := ix.SyncStatus(ctx, primary, agentID, leadID); err != nil {
		t.Fatalf("SyncStatus: %v", err)
	}

	n, bucket := membershipCount(t, ix, agentID, leadID)
	if n != 1 || bucket != StatusHot {
		t.Fatalf("expected exactly hot, got %d buckets (%s)", n, bucket)
	}
}

// Two concurrent status updates must leave the lead in exactly one bucket,
// and that bucket must match whatever the primary record settled on.
func TestSyncStatusConcurrentUpdatesConverge(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	agentID := uuid.New()
	leadID := uuid.New()
	primary := &fakeStatusSource{statuses: map[uuid.UUID]string{leadID: StatusNew}}

	lead := &Lead{ID: leadID, AgentID: agentID, Status: StatusNew, Source: SourceWebsite, CreatedAt: time.Now()}
	if err := ix.AddLead(ctx, lead); err != nil {
		t.Fatalf("AddLead: %v", err)
	}

	var wg sync.WaitGroup
	for _, target := range []string{StatusWarm, StatusHot} {
		wg.Add(1)
		go func(status string) {
			defer wg.Done()
			primary.set(leadID, status)
			if err := ix.SyncStatus(ctx, primary, agentID, leadID); err != nil {
				t.Errorf("SyncStatus(%s): %v", status, err)
			}
		}(target)
	}
	wg.Wait()

	// One more sync settles any interleaving, then membership must equal
	// the primary status exactly.
	if err := ix.SyncStatus(ctx, primary, agentID, leadID); err != nil {
		t.Fatalf("final SyncStatus: %v", err)
	}

	final, _ := primary.GetLeadStatus(ctx, leadID)
	n, bucket := membershipCount(t, ix, agentID, leadID)
	if n != 1 {
		t.Fatalf("lead in %d buckets, want exactly 1", n)
	}
	if bucket != final {
		t.Fatalf("bucket %s disagrees with primary status %s", bucket, final)
	}
}

func TestVerifyStatusRepairsCorruption(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	agentID := uuid.New()
	leadID := uuid.New()
	primary := &fakeStatusSource{statuses: map[uuid.UUID]string{leadID: StatusQualified}}

	// Corrupt state: present in two buckets, neither matching the primary.
	if err := ix.rdb.SAdd(ctx, keyStatus(agentID, StatusNew), leadID.String()).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := ix.rdb.SAdd(ctx, keyStatus(agentID, StatusCold), leadID.String()).Err(); err != nil {
		t.Fatalf("seed: %v", err)
	}

	_, err := ix.VerifyStatus(ctx, primary, agentID, leadID)
	if !apperr.Is(err, apperr.KindIndexInconsistency) {
		t.Fatalf("expected index inconsistency, got %v", err)
	}

	n, bucket := membershipCount(t, ix, agentID, leadID)
	if n != 1 || bucket != StatusQualified {
		t.Fatalf("repair left %d buckets (%s), want exactly qualified", n, bucket)
	}

	// A second verification passes clean.
	if _, err := ix.VerifyStatus(ctx, primary, agentID, leadID); err != nil {
		t.Fatalf("verify after repair: %v", err)
	}
}

func TestLeadIDsFilterAndPagination(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	agentID := uuid.New()
	base := time.Now().Add(-time.Hour)
	var hotIDs []uuid.UUID
	for i := 0; i < 5; i++ {
		status := StatusCold
		if i%2 == 0 {
			status = StatusHot
		}
		lead := &Lead{
			ID:        uuid.New(),
			AgentID:   agentID,
			Status:    status,
			Source:    SourceWebsite,
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := ix.AddLead(ctx, lead); err != nil {
			t.Fatalf("AddLead: %v", err)
		}
		if status == StatusHot {
			hotIDs = append(hotIDs, lead.ID)
		}
	}

	ids, err := ix.LeadIDs(ctx, agentID, ListFilter{Status: StatusHot}, 0, 10)
	if err != nil {
		t.Fatalf("LeadIDs: %v", err)
	}
	if len(ids) != len(hotIDs) {
		t.Fatalf("expected %d hot leads, got %d", len(hotIDs), len(ids))
	}
	// Newest first: the last created hot lead comes back first.
	if ids[0] != hotIDs[len(hotIDs)-1] {
		t.Fatalf("expected newest hot lead first")
	}

	page, err := ix.LeadIDs(ctx, agentID, ListFilter{}, 2, 2)
	if err != nil {
		t.Fatalf("LeadIDs paged: %v", err)
	}
	if len(page) != 2 {
		t.Fatalf("expected page of 2, got %d", len(page))
	}
}

func TestDueQueueOrderingAndCutoff(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	agentID := uuid.New()
	now := time.Now()

	early := uuid.New()
	late := uuid.New()
	future := uuid.New()
	if err := ix.ScheduleFollowUp(ctx, agentID, late, now.Add(-time.Minute)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := ix.ScheduleFollowUp(ctx, agentID, early, now.Add(-time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}
	if err := ix.ScheduleFollowUp(ctx, agentID, future, now.Add(time.Hour)); err != nil {
		t.Fatalf("schedule: %v", err)
	}

	due, err := ix.DueFollowUpIDs(ctx, agentID, now, 10)
	if err != nil {
		t.Fatalf("DueFollowUpIDs: %v", err)
	}
	if len(due) != 2 {
		t.Fatalf("expected 2 due, got %d", len(due))
	}
	if due[0] != early || due[1] != late {
		t.Fatalf("expected soonest first [%s %s], got %v", early, late, due)
	}

	if err := ix.UnscheduleFollowUp(ctx, agentID, early); err != nil {
		t.Fatalf("unschedule: %v", err)
	}
	due, err = ix.DueFollowUpIDs(ctx, agentID, now, 10)
	if err != nil {
		t.Fatalf("DueFollowUpIDs: %v", err)
	}
	if len(due) != 1 || due[0] != late {
		t.Fatalf("expected only late entry, got %v", due)
	}
}

func TestClaimStepIsExclusive(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	id := uuid.New()
	ok, err := ix.ClaimStep(ctx, id, time.Minute)
	if err != nil {
		t.Fatalf("ClaimStep: %v", err)
	}
	if !ok {
		t.Fatal("first claim should succeed")
	}

	ok, err = ix.ClaimStep(ctx, id, time.Minute)
	if err != nil {
		t.Fatalf("ClaimStep: %v", err)
	}
	if ok {
		t.Fatal("second claim should be rejected while the first is held")
	}

	ix.ReleaseClaim(ctx, id)
	ok, err = ix.ClaimStep(ctx, id, time.Minute)
	if err != nil {
		t.Fatalf("ClaimStep: %v", err)
	}
	if !ok {
		t.Fatal("claim should succeed after release")
	}
}

func TestRemoveLeadClearsEverything(t *testing.T) {
	ix, _ := newTestIndex(t)
	ctx := context.Background()

	agentID := uuid.New()
	lead := &Lead{ID: uuid.New(), AgentID: agentID, Status: StatusWarm, Source: SourceReferral, CreatedAt: time.Now()}
	if err := ix.AddLead(ctx, lead); err != nil {
		t.Fatalf("AddLead: %v", err)
	}
	if err := ix.RemoveLead(ctx, lead); err != nil {
		t.Fatalf("RemoveLead: %v", err)
	}

	n, _ := membershipCount(t, ix, agentID, lead.ID)
	if n != 0 {
		t.Fatalf("expected no bucket membership, got %d", n)
	}
	ids, err := ix.LeadIDs(ctx, agentID, ListFilter{}, 0, 10)
	if err != nil {
		t.Fatalf("LeadIDs: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty listing, got %v", ids)
	}
	count, err := ix.LeadCount(ctx, agentID)
	if err != nil {
		t.Fatalf("LeadCount: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected count 0, got %d", count)
	}
}
