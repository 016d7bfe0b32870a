package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/sethvargo/go-retry"
	"gorm.io/datatypes"

	"github.com/jkrishnan-dev/textjobs/internal/config"
	"github.com/jkrishnan-dev/textjobs/internal/job"
	"github.com/jkrishnan-dev/textjobs/internal/queue"
)

// ErrSimulatedCrash terminates a worker loop outright. It is not an ordinary
// job failure: the job's retry bookkeeping is untouched and its lease is
// simply abandoned for the reaper to reclaim.
var ErrSimulatedCrash = errors.New("simulated worker crash")

// Worker pulls job ids off the dispatch queue and runs the processing
// pipeline: claim lease, mark processing, fetch payload, count characters,
// mark done. Every write after the claim carries the claim's fencing epoch.
type Worker struct {
	label  string
	repo   job.JobRepoInterface
	queue  *queue.Queue
	cfg    *config.Config
	faults FaultInjector
}

// New creates the worker for slot index; its label survives supervisor
// restarts.
func New(index int, repo job.JobRepoInterface, q *queue.Queue, cfg *config.Config, faults FaultInjector) *Worker {
	if faults == nil {
		faults = NopInjector{}
	}
	return &Worker{
		label:  fmt.Sprintf("w-%d", index+1),
		repo:   repo,
		queue:  q,
		cfg:    cfg,
		faults: faults,
	}
}

func (w *Worker) Label() string { return w.label }

// Run processes jobs until ctx is cancelled. A nil return is a clean stop;
// any error is a loop crash for the supervisor to handle. Store errors on the
// claim or on retry bookkeeping are deliberately not absorbed here: they
// crash the loop and leave the job's lease for the reaper.
func (w *Worker) Run(ctx context.Context) error {
	log.Printf("worker %s started", w.label)

	for {
		id, err := w.queue.Dequeue(ctx)
		if err != nil {
			return nil
		}

		epoch, err := w.repo.ClaimLease(ctx, id, w.label, w.cfg.LeaseTTL)
		if errors.Is(err, job.ErrNotClaimable) {
			log.Printf("worker %s: job %s not claimable, skipping", w.label, id)
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("worker %s: claim job %s: %w", w.label, id, err)
		}

		if w.faults.Crash() {
			log.Printf("worker %s: simulated hard crash while owning job %s", w.label, id)
			return ErrSimulatedCrash
		}

		if err := w.process(ctx, id, epoch); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if err := w.handleFailure(ctx, id, epoch, err); err != nil {
				return fmt.Errorf("worker %s: bookkeeping for job %s: %w", w.label, id, err)
			}
		}
	}
}

// process runs the pipeline stages for one claimed job.
func (w *Worker) process(ctx context.Context, id uuid.UUID, epoch int64) error {
	if err := w.faults.Fail(FaultAfterClaim); err != nil {
		return err
	}
	if err := sleepCtx(ctx, w.cfg.ClaimDelay); err != nil {
		return err
	}

	if err := w.repo.UpdateStatus(ctx, id, config.StatusProcessing, nil, epoch); err != nil {
		return err
	}
	if err := w.faults.Fail(FaultDuringProcess); err != nil {
		return err
	}

	text, err := w.repo.GetPayload(ctx, id)
	if err != nil {
		return err
	}

	if err := w.work(ctx, id, epoch); err != nil {
		return err
	}
	chars := utf8.RuneCountInString(text)

	if err := w.faults.Fail(FaultBeforeDone); err != nil {
		return err
	}

	result, err := json.Marshal(chars)
	if err != nil {
		return err
	}
	if err := w.repo.UpdateStatus(ctx, id, config.StatusDone, datatypes.JSON(result), epoch); err != nil {
		return err
	}
	if err := w.repo.ClearLease(ctx, id, epoch); err != nil {
		return err
	}

	log.Printf("worker %s: job %s done (%d chars)", w.label, id, chars)
	return nil
}

// work stands in for the real computation. It heartbeats the lease at a
// third of the TTL so work that outlives the initial lease is not falsely
// reclaimed.
func (w *Worker) work(ctx context.Context, id uuid.UUID, epoch int64) error {
	interval := w.cfg.LeaseTTL / 3
	if interval <= 0 {
		interval = time.Second
	}

	done := time.NewTimer(w.cfg.WorkDelay)
	defer done.Stop()
	heartbeat := time.NewTicker(interval)
	defer heartbeat.Stop()

	for {
		select {
		case <-done.C:
			return nil
		case <-heartbeat.C:
			if err := w.repo.ExtendLease(ctx, id, w.cfg.LeaseTTL, epoch); err != nil {
				return err
			}
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// handleFailure applies the bounded-retry policy after a pipeline error:
// while the attempt budget lasts the job is re-enqueued after a backoff,
// otherwise it is failed terminally. A stale epoch on either write means the
// reaper already reclaimed the job, so the outcome is dropped.
func (w *Worker) handleFailure(ctx context.Context, id uuid.UUID, epoch int64, cause error) error {
	attempts, err := w.repo.GetAttempts(ctx, id)
	if err != nil {
		attempts = 0
	}

	if attempts < w.cfg.MaxRetries {
		if err := w.repo.RecordRetry(ctx, id, cause.Error(), epoch); err != nil {
			if errors.Is(err, job.ErrLeaseLost) {
				log.Printf("worker %s: job %s was reclaimed, dropping retry", w.label, id)
				return nil
			}
			return err
		}

		delay := w.retryDelay(attempts + 1)
		log.Printf("worker %s: job %s failed (attempts=%d/%d), requeueing in %s: %v",
			w.label, id, attempts+1, w.cfg.MaxRetries, delay, cause)
		time.AfterFunc(delay, func() { w.queue.Enqueue(id) })
		return nil
	}

	if err := w.repo.RecordFailed(ctx, id, cause.Error(), epoch); err != nil {
		if errors.Is(err, job.ErrLeaseLost) {
			log.Printf("worker %s: job %s was reclaimed, dropping terminal failure", w.label, id)
			return nil
		}
		return err
	}

	log.Printf("worker %s: job %s failed permanently (attempts=%d): %v", w.label, id, attempts, cause)
	return nil
}

// retryDelay is exponential in the attempt number with jitter, so a
// persistently failing dependency is not hot-looped.
func (w *Worker) retryDelay(attempt int) time.Duration {
	b := retry.WithJitterPercent(20, retry.NewExponential(w.cfg.RetryBackoffBase))
	var d time.Duration
	for i := 0; i < attempt; i++ {
		d, _ = b.Next()
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
