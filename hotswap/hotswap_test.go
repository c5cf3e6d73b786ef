package hotswap_test

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"

	"pipelined.dev/graph/hotswap"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type resource struct {
	id int
}

func TestEmptySlot(t *testing.T) {
	s := hotswap.NewSlot[resource](nil)
	assert.Nil(t, s.Acquire())
	assert.Nil(t, s.Load())
	s.Close()
}

func TestCommitPublishes(t *testing.T) {
	s := hotswap.NewSlot[resource](nil)
	a := &resource{id: 1}
	s.Commit(a)
	assert.Same(t, a, s.Acquire())
	assert.Same(t, a, s.Load())

	b := &resource{id: 2}
	s.Commit(b)
	assert.Same(t, b, s.Acquire())
	s.Close()
}

func TestDeferredRelease(t *testing.T) {
	var released []int
	s := hotswap.NewSlot(func(r *resource) {
		released = append(released, r.id)
	})

	a := &resource{id: 1}
	s.Commit(a)
	assert.Same(t, a, s.Acquire())

	// the displaced resource survives the block that may still hold it
	b := &resource{id: 2}
	s.Commit(b)
	assert.Empty(t, released)

	// the next block proves no holder is left and releases it
	assert.Same(t, b, s.Acquire())
	assert.Equal(t, []int{1}, released)

	s.Close()
	assert.Equal(t, []int{1, 2}, released)
}

func TestCloseReleasesEverything(t *testing.T) {
	var released []int
	s := hotswap.NewSlot(func(r *resource) {
		released = append(released, r.id)
	})
	s.Commit(&resource{id: 1})
	s.Commit(&resource{id: 2})
	s.Commit(&resource{id: 3})

	s.Close()
	assert.ElementsMatch(t, []int{1, 2, 3}, released)
	assert.Nil(t, s.Load())
}

func TestSwapUnderLoad(t *testing.T) {
	const commits = 100
	var released atomic.Int64
	s := hotswap.NewSlot(func(r *resource) {
		released.Add(1)
	})

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	// the block loop: one Acquire per block, the returned resource must
	// stay usable for the whole block
	go func() {
		defer wg.Done()
		for {
			select {
			case <-done:
				return
			default:
			}
			if r := s.Acquire(); r != nil {
				_ = r.id
			}
		}
	}()

	for i := 1; i <= commits; i++ {
		s.Commit(&resource{id: i})
	}
	close(done)
	wg.Wait()

	// every committed resource is released exactly once, the active one
	// by Close
	s.Close()
	assert.Equal(t, int64(commits), released.Load())
}
