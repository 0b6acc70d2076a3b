package hotswap

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Concurrency tests. All of them are written to be run under -race; none
// depend on a particular schedule to pass.

func TestConcurrentStoreRace(t *testing.T) {
	t.Parallel()
	for i := 0; i < 200; i++ {
		v := New(0)
		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			v.Store(1)
		}()
		go func() {
			defer wg.Done()
			<-start
			v.Store(2)
		}()
		close(start)
		wg.Wait()

		got := v.Get()
		require.Contains(t, []int{1, 2}, got, "slot must hold one of the raced stores, never the initial value")
	}
}

func TestReadersNeverObserveUnpublishedValue(t *testing.T) {
	t.Parallel()
	const (
		readers = 8
		stores  = 10_000
	)
	v := New(0)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < readers; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := v.Load()
				got := s.Get()
				if got < 0 || got > stores {
					t.Errorf("observed %d, which was never stored", got)
					s.Release()
					return
				}
				s.Release()
			}
		}()
	}

	for i := 1; i <= stores; i++ {
		v.Store(i)
	}
	close(stop)
	wg.Wait()

	assert.Equal(t, stores, v.Get())
}

// pair's invariant B == A*2 is established by every mutator, so any torn
// mix of two attempted outputs would break it.
type pair struct {
	A, B int
}

func TestConcurrentUpdateLastWriteWins(t *testing.T) {
	t.Parallel()
	v := New(pair{A: 0, B: 0})

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 1_000; i++ {
				v.Update(func(old pair) pair {
					next := old.A + 1
					return pair{A: next, B: next * 2}
				})
			}
		}()
	}
	wg.Wait()

	final := v.Get()
	// Lost updates are allowed; a value that no single mutator produced
	// is not.
	assert.Equal(t, final.A*2, final.B)
	assert.Greater(t, final.A, 0)
	assert.LessOrEqual(t, final.A, 8*1_000)
}

func TestSnapshotsSurviveConcurrentStores(t *testing.T) {
	t.Parallel()
	v := New(0)

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := v.Load()
				pinned := s.Get()
				c := s.Clone()
				time.Sleep(time.Microsecond)
				// the pinned value never changes under the handle
				if s.Get() != pinned || c.Get() != pinned {
					t.Error("snapshot value changed under a live handle")
				}
				c.Release()
				s.Release()
			}
		}()
	}

	for i := 1; i <= 2_000; i++ {
		v.Store(i)
	}
	close(stop)
	wg.Wait()
}

// Port of the original crate's flip test: readers spin on Load until the
// writer publishes the sentinel, then everybody agrees on what is stored.
func TestManyReadersObserveFlip(t *testing.T) {
	t.Parallel()
	const readers = 32
	v := New([]int{0, 1, 2})

	var wg sync.WaitGroup
	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				s := v.Load()
				empty := len(s.Get()) == 0
				s.Release()
				if empty {
					return
				}
				time.Sleep(time.Millisecond)
			}
		}()
	}
	time.Sleep(10 * time.Millisecond)

	v.Store(nil)
	wg.Wait()

	s := v.Load()
	assert.Empty(t, s.Get())
	assert.Equal(t, int64(2), s.p.refs.Load())
	s.Release()
}

func TestEveryPayloadReclaimedExactlyOnce(t *testing.T) {
	t.Parallel()
	var frees atomic.Int64
	v := New(0, WithReleaseFunc[int](func(int) { frees.Add(1) }))

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				s := v.Load()
				_ = s.Get()
				s.Release()
			}
		}()
	}

	const stores = 5_000
	for i := 1; i <= stores; i++ {
		if i%100 == 0 {
			old := v.Swap(i)
			old.Release()
		} else {
			v.Store(i)
		}
	}
	close(stop)
	wg.Wait()
	v.Close()

	// one payload per publish: New + every Store + every Swap
	created := int64(1 + stores)
	assert.Equal(t, created, frees.Load(), "every payload must be reclaimed exactly once")
	assert.Equal(t, int64(0), v.Stats().LivePayloads)
}
