/*
Package hotswap lets a node replace an owned heavy resource without ever
blocking the block-processing path.

A Slot holds one active resource behind an atomic pointer. The building
goroutine constructs the replacement fully in its own staging space,
invisible to readers, and publishes it with a single atomic exchange. The
displaced resource is not released immediately: the block path may still
hold a local copy for the rest of its block. It goes onto a deferred
retire list instead, stamped with the current block epoch, and is released
by a later block once the epoch proves no in-flight block can hold it.

The block path interacts with the slot through Acquire only: one call per
block, one atomic load, and an opportunistic try-lock drain of the retire
list. A failed try is not an error, the drain simply happens on a later
block. The slot supports a single block-path consumer.
*/
package hotswap

import (
	"sync"
	"sync/atomic"
)

// Slot is a hot-swappable resource holder.
type Slot[T any] struct {
	active atomic.Pointer[T]
	epoch  atomic.Uint64

	// mu guards retired. The block path only ever TryLocks it.
	mu      sync.Mutex
	retired []retiree[T]

	release func(*T)
}

type retiree[T any] struct {
	res   *T
	epoch uint64
}

// NewSlot returns an empty slot. The release hook is called when a
// displaced resource is proven unreachable; pass nil when garbage
// collection is all the cleanup a resource needs.
func NewSlot[T any](release func(*T)) *Slot[T] {
	return &Slot[T]{release: release}
}

// Commit publishes a fully built resource. It runs on the building
// goroutine and may take the retire lock, it is not the block path. The
// displaced resource is retired, never released inline.
func (s *Slot[T]) Commit(next *T) {
	old := s.active.Swap(next)
	if old == nil {
		return
	}
	s.mu.Lock()
	s.retired = append(s.retired, retiree[T]{res: old, epoch: s.epoch.Load()})
	s.mu.Unlock()
}

// Acquire is the once-per-block read. It advances the block epoch, drains
// retirees stranded before this block if the retire lock is free, and
// returns the active resource. The returned pointer stays valid for the
// whole block: nothing retired during this block is released before the
// next Acquire. Returns nil while nothing was committed yet.
func (s *Slot[T]) Acquire() *T {
	e := s.epoch.Add(1)
	if s.mu.TryLock() {
		kept := s.retired[:0]
		for _, r := range s.retired {
			if r.epoch < e {
				if s.release != nil {
					s.release(r.res)
				}
				continue
			}
			kept = append(kept, r)
		}
		s.retired = kept
		s.mu.Unlock()
	}
	return s.active.Load()
}

// Load peeks at the active resource without touching the epoch or the
// retire list. Safe from any goroutine; used by editors and persistence,
// never as the block-path read.
func (s *Slot[T]) Load() *T {
	return s.active.Load()
}

// Close releases everything the slot still holds, the active resource
// included. Only call it after block processing stopped for good.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	retired := s.retired
	s.retired = nil
	s.mu.Unlock()
	if s.release == nil {
		s.active.Store(nil)
		return
	}
	for _, r := range retired {
		s.release(r.res)
	}
	if active := s.active.Swap(nil); active != nil {
		s.release(active)
	}
}
