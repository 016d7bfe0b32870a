package pool

import (
	"context"
	"fmt"

	"gorm.io/gorm"
)

// Pool is a fixed-size pool of storage handles. Every job store operation
// runs inside With, so the pool size is what bounds concurrent access to the
// backing database. Acquisition blocks until a handle is free; there is no
// acquire timeout, a blocked caller waits until a handle returns or its
// context is cancelled.
type Pool struct {
	handles chan *gorm.DB
	size    int
}

// New creates a pool of size handles derived from db. The underlying sql.DB
// is capped to the same size so the bound holds end to end.
func New(db *gorm.DB, size int) (*Pool, error) {
	if size < 1 {
		return nil, fmt.Errorf("pool size must be at least 1, got %d", size)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("unwrap sql.DB: %w", err)
	}
	sqlDB.SetMaxOpenConns(size)

	p := &Pool{
		handles: make(chan *gorm.DB, size),
		size:    size,
	}
	for i := 0; i < size; i++ {
		p.handles <- db.Session(&gorm.Session{NewDB: true})
	}
	return p, nil
}

// With acquires a handle, runs fn with it, and returns the handle on every
// exit path. The handle is scoped to fn; callers must not retain it.
func (p *Pool) With(ctx context.Context, fn func(db *gorm.DB) error) error {
	var h *gorm.DB
	select {
	case h = <-p.handles:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { p.handles <- h }()

	return fn(h.WithContext(ctx))
}

// Size returns the fixed pool size.
func (p *Pool) Size() int { return p.size }

// Idle returns the number of handles currently available. Used by tests to
// verify no handle is ever leaked or duplicated.
func (p *Pool) Idle() int { return len(p.handles) }

// Close drains the pool so no further acquisition can succeed. It blocks
// until every outstanding handle has been returned.
func (p *Pool) Close() {
	for i := 0; i < p.size; i++ {
		<-p.handles
	}
}
