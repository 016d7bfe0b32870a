package job

import "errors"

var (
	// ErrInvalidStatus rejects a transition to an unrecognized status value
	// before any mutation happens.
	ErrInvalidStatus = errors.New("invalid job status")

	// ErrLeaseLost means a write carried a stale lease epoch: the reaper (or
	// another claimant) took the lease away since it was granted.
	ErrLeaseLost = errors.New("job lease lost")

	// ErrNotClaimable means the job was not pending when a claim was
	// attempted, typically because a duplicate dispatch raced a live claim
	// or the job already reached a terminal status.
	ErrNotClaimable = errors.New("job is not claimable")
)
