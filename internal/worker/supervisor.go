package worker

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

// Supervisor runs one worker's control loop and restarts it after a fixed
// delay whenever it crashes, preserving the worker's identity. One worker
// crashing never stops the rest of the pool.
type Supervisor struct {
	worker       *Worker
	restartDelay time.Duration
}

func NewSupervisor(w *Worker, restartDelay time.Duration) *Supervisor {
	return &Supervisor{worker: w, restartDelay: restartDelay}
}

// Run supervises until ctx is cancelled.
func (s *Supervisor) Run(ctx context.Context) {
	for {
		err := s.runOnce(ctx)

		if ctx.Err() != nil {
			log.Printf("worker %s shutting down", s.worker.Label())
			return
		}

		switch {
		case errors.Is(err, ErrSimulatedCrash):
			log.Printf("worker %s crashed, restarting in %s", s.worker.Label(), s.restartDelay)
		case err != nil:
			log.Printf("worker %s died unexpectedly (%v), restarting in %s", s.worker.Label(), err, s.restartDelay)
		default:
			log.Printf("worker %s loop exited, restarting in %s", s.worker.Label(), s.restartDelay)
		}

		select {
		case <-time.After(s.restartDelay):
		case <-ctx.Done():
			log.Printf("worker %s shutting down", s.worker.Label())
			return
		}
	}
}

// runOnce converts a panic in the worker loop into an error so the
// supervisor treats it like any other crash.
func (s *Supervisor) runOnce(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("worker panic: %v", r)
		}
	}()
	return s.worker.Run(ctx)
}
