package worker

import (
	"context"
	"log"
	"time"

	"github.com/jkrishnan-dev/textjobs/internal/job"
	"github.com/jkrishnan-dev/textjobs/internal/queue"
)

// Reaper periodically reclaims jobs whose lease expired and re-enqueues
// them. It is the only mechanism that restores liveness after a worker
// crashes mid-lease, since a crash does not clear the lease.
type Reaper struct {
	repo     job.JobRepoInterface
	queue    *queue.Queue
	interval time.Duration
}

func NewReaper(repo job.JobRepoInterface, q *queue.Queue, interval time.Duration) *Reaper {
	return &Reaper{repo: repo, queue: q, interval: interval}
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *Reaper) Run(ctx context.Context) {
	log.Printf("reaper started (interval=%s)", r.interval)

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Println("reaper shutting down")
			return
		case <-ticker.C:
			r.Sweep(ctx)
		}
	}
}

// Sweep performs one reclamation cycle. The reset re-checks expiry
// atomically, so a job finished between the scan and the write is left alone
// and never re-enqueued.
func (r *Reaper) Sweep(ctx context.Context) {
	now := time.Now().UTC()

	ids, err := r.repo.ListExpired(ctx, now)
	if err != nil {
		log.Printf("reaper: list expired: %v", err)
		return
	}

	for _, id := range ids {
		reclaimed, err := r.repo.ResetToPending(ctx, id, now)
		if err != nil {
			log.Printf("reaper: reset job %s: %v", id, err)
			continue
		}
		if !reclaimed {
			continue
		}
		r.queue.Enqueue(id)
		log.Printf("reaper: returned expired job %s to queue", id)
	}
}
