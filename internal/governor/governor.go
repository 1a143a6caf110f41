// Package governor bounds process-wide concurrency per resource class.
package governor

import (
	"context"
	"fmt"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// Class identifies a resource class with its own permit pool.
type Class int

const (
	// Network bounds concurrent segment downloads.
	Network Class = iota
	// HeavyIO bounds concurrent combine and mux operations.
	HeavyIO
)

func (c Class) String() string {
	switch c {
	case Network:
		return "network"
	case HeavyIO:
		return "heavy_io"
	default:
		return fmt.Sprintf("class(%d)", int(c))
	}
}

type permit struct {
	sem      *semaphore.Weighted
	capacity int64
	inUse    atomic.Int64
}

// Governor holds one counting permit per resource class.
// A single Governor is shared by every worker for the life of the process.
type Governor struct {
	permits [2]*permit
}

// New creates a Governor. Capacities below 1 are raised to 1.
func New(maxNetwork, maxHeavyIO int) *Governor {
	return &Governor{
		permits: [2]*permit{
			newPermit(maxNetwork),
			newPermit(maxHeavyIO),
		},
	}
}

func newPermit(n int) *permit {
	if n < 1 {
		n = 1
	}
	return &permit{sem: semaphore.NewWeighted(int64(n)), capacity: int64(n)}
}

func (g *Governor) permit(c Class) *permit {
	if c < 0 || int(c) >= len(g.permits) {
		panic(fmt.Sprintf("governor: unknown class %d", int(c)))
	}
	return g.permits[c]
}

// Acquire blocks until a slot of class c is free or ctx is done.
// Every successful Acquire must be paired with exactly one Release.
func (g *Governor) Acquire(ctx context.Context, c Class) error {
	p := g.permit(c)
	if err := p.sem.Acquire(ctx, 1); err != nil {
		return fmt.Errorf("acquire %s permit: %w", c, err)
	}
	p.inUse.Add(1)
	return nil
}

// Release returns a slot of class c.
func (g *Governor) Release(c Class) {
	p := g.permit(c)
	p.inUse.Add(-1)
	p.sem.Release(1)
}

// Do runs fn while holding a slot of class c.
// The slot is released on every exit path, including a panic in fn.
func (g *Governor) Do(ctx context.Context, c Class, fn func() error) error {
	if err := g.Acquire(ctx, c); err != nil {
		return err
	}
	defer g.Release(c)

	return fn()
}

// InUse returns the number of slots of class c currently held.
func (g *Governor) InUse(c Class) int64 {
	return g.permit(c).inUse.Load()
}

// Capacity returns the configured slot count of class c.
func (g *Governor) Capacity(c Class) int64 {
	return g.permit(c).capacity
}
