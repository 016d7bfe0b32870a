package worker

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/jkrishnan-dev/textjobs/internal/config"
)

// FaultPoint identifies where in the pipeline an injected failure fires.
type FaultPoint string

const (
	FaultAfterClaim    FaultPoint = "after_claim"
	FaultDuringProcess FaultPoint = "during_process"
	FaultBeforeDone    FaultPoint = "before_done"
)

// FaultInjector is the hook the worker consults at each pipeline stage.
// Production wiring installs NopInjector, so the normal code path carries no
// fault-simulation branches; the probabilistic injector exists for
// fault-tolerance testing and is enabled through FAULTS_ENABLED.
type FaultInjector interface {
	// Crash reports whether the worker loop should terminate abruptly,
	// abandoning its lease without touching the job's retry bookkeeping.
	Crash() bool

	// Fail returns a non-nil error when the pipeline should fail at point.
	Fail(point FaultPoint) error
}

type NopInjector struct{}

func (NopInjector) Crash() bool           { return false }
func (NopInjector) Fail(FaultPoint) error { return nil }

type randomInjector struct {
	cfg config.Faults
	mu  sync.Mutex
	rng *rand.Rand
}

// NewInjector builds the injector described by cfg: a no-op unless fault
// injection is enabled.
func NewInjector(cfg config.Faults) FaultInjector {
	if !cfg.Enabled {
		return NopInjector{}
	}
	return &randomInjector{
		cfg: cfg,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (i *randomInjector) Crash() bool {
	return i.roll(i.cfg.CrashP)
}

func (i *randomInjector) Fail(point FaultPoint) error {
	var p float64
	switch point {
	case FaultAfterClaim:
		p = i.cfg.AfterClaimP
	case FaultDuringProcess:
		p = i.cfg.DuringProcessP
	case FaultBeforeDone:
		p = i.cfg.BeforeDoneP
	}
	if i.roll(p) {
		return fmt.Errorf("injected failure: %s", point)
	}
	return nil
}

func (i *randomInjector) roll(p float64) bool {
	if p <= 0 {
		return false
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.rng.Float64() < p
}
