package worker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"

	"github.com/jkrishnan-dev/textjobs/internal/config"
	"github.com/jkrishnan-dev/textjobs/internal/queue"
)

func TestReaper_ReclaimsExpiredLease(t *testing.T) {
	repo := setupRepo(t)
	q := queue.New()
	ctx := context.Background()

	j, err := repo.Create(ctx, "stuck")
	require.NoError(t, err)
	_, err = repo.ClaimLease(ctx, j.ID, "w-1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	r := NewReaper(repo, q, time.Minute)
	r.Sweep(ctx)

	saved, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, string(config.StatusPending), saved.Status)
	assert.Nil(t, saved.Owner)
	assert.Nil(t, saved.LeaseUntil)
	assert.Zero(t, saved.LeaseEpoch, "outstanding epoch invalidated")

	// Re-enqueued exactly once.
	require.Equal(t, 1, q.Len())
	id, err := q.Dequeue(ctx)
	require.NoError(t, err)
	assert.Equal(t, j.ID, id)

	// A second sweep finds nothing to do.
	r.Sweep(ctx)
	assert.Equal(t, 0, q.Len())
}

func TestReaper_LeavesLiveLeaseAlone(t *testing.T) {
	repo := setupRepo(t)
	q := queue.New()
	ctx := context.Background()

	j, err := repo.Create(ctx, "busy")
	require.NoError(t, err)
	_, err = repo.ClaimLease(ctx, j.ID, "w-1", time.Minute)
	require.NoError(t, err)

	NewReaper(repo, q, time.Minute).Sweep(ctx)

	saved, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, string(config.StatusStarted), saved.Status)
	require.NotNil(t, saved.Owner)
	assert.Equal(t, 0, q.Len())
}

func TestReaper_LeavesFinishedJobAlone(t *testing.T) {
	repo := setupRepo(t)
	q := queue.New()
	ctx := context.Background()

	j, err := repo.Create(ctx, "quick")
	require.NoError(t, err)
	epoch, err := repo.ClaimLease(ctx, j.ID, "w-1", time.Millisecond)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)

	// The job finishes after its lease expired but before the sweep.
	require.NoError(t, repo.UpdateStatus(ctx, j.ID, config.StatusDone, datatypes.JSON("5"), epoch))
	require.NoError(t, repo.ClearLease(ctx, j.ID, epoch))

	NewReaper(repo, q, time.Minute).Sweep(ctx)

	saved, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, string(config.StatusDone), saved.Status)
	assert.Equal(t, "5", string(saved.Result))
	assert.Equal(t, 0, q.Len(), "finished job never re-enqueued")
}

func TestReaper_RunSweepsPeriodically(t *testing.T) {
	repo := setupRepo(t)
	q := queue.New()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j, err := repo.Create(ctx, "stuck")
	require.NoError(t, err)
	_, err = repo.ClaimLease(ctx, j.ID, "w-1", time.Millisecond)
	require.NoError(t, err)

	r := NewReaper(repo, q, 5*time.Millisecond)
	stopped := make(chan struct{})
	go func() {
		r.Run(ctx)
		close(stopped)
	}()

	// The ticker eventually picks the expired lease up.
	dqCtx, dqCancel := context.WithTimeout(ctx, 5*time.Second)
	defer dqCancel()
	id, err := q.Dequeue(dqCtx)
	require.NoError(t, err)
	assert.Equal(t, j.ID, id)

	cancel()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("reaper did not stop on cancellation")
	}
}

// Crash then recover: the worker abandons its lease, the reaper returns the
// job to the queue, and a healthy worker finishes it.
func TestReaper_RecoversFromWorkerCrash(t *testing.T) {
	repo := setupRepo(t)
	q := queue.New()
	cfg := testConfig()
	cfg.LeaseTTL = 20 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	j, err := repo.Create(ctx, "survivor")
	require.NoError(t, err)
	q.Enqueue(j.ID)

	// First incarnation crashes while holding the lease.
	crashed := New(0, repo, q, cfg, &crashNTimes{n: 1})
	require.ErrorIs(t, crashed.Run(ctx), ErrSimulatedCrash)

	go NewReaper(repo, q, 5*time.Millisecond).Run(ctx)

	healthy := New(1, repo, q, cfg, nil)
	go func() { _ = healthy.Run(ctx) }()

	require.Eventually(t, func() bool {
		saved, err := repo.Get(ctx, j.ID)
		return err == nil && saved.Status == string(config.StatusDone)
	}, 10*time.Second, 5*time.Millisecond, "crashed job never recovered")

	saved, err := repo.Get(ctx, j.ID)
	require.NoError(t, err)
	assert.Equal(t, "8", string(saved.Result))
	assert.Equal(t, 0, saved.Attempts, "a crash is not a retry")
}
