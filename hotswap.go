// Package hotswap provides a concurrent read-mostly container: a single
// shared slot holding a logically-immutable value that many goroutines read
// while, rarely, one goroutine replaces it.
//
// Readers obtain reference-counted Snapshot handles that stay valid no
// matter how many replacements happen afterwards. Writers publish with a
// single atomic exchange and never retry. The only spinning in the package
// is a brief compare-and-swap window inside Load; there is no mutex and no
// kernel-level blocking anywhere.
//
// The contained value must be treated as immutable once stored. The
// container never mutates it; keeping external code from doing so is the
// caller's contract.
package hotswap

import (
	"runtime"
	"sync"
	"sync/atomic"
)

// cell is one state of the slot's state machine. The slot always points at
// exactly one cell:
//
//	ref != nil           Published: ref is the current payload
//	ref == nil, !closed  Borrowed: a reader is inside its borrow window
//	ref == nil, closed   Closed: terminal, installed once by Close
//
// Published cells are allocated fresh on every publish and never reused,
// so a pointer comparison against one can never pass spuriously. Borrow
// markers are identity-unique while in flight and pooled between rounds.
type cell[T any] struct {
	ref    *payload[T]
	closed bool
}

// payload pairs one stored value with its reference count. The count is the
// number of owners: the slot (while the payload is published) plus every
// live Snapshot. It reaches zero exactly once, at which point the release
// hook runs and the node goes back to the pool.
type payload[T any] struct {
	val  T
	refs atomic.Int64
}

// Value is the container. Create one with New; the zero Value is not usable.
// A Value must not be copied after first use.
type Value[T any] struct {
	slot     atomic.Pointer[cell[T]]
	release  func(T)
	terminal cell[T]

	markers  sync.Pool // spare borrow-marker cells
	payloads sync.Pool // zeroed payload nodes

	loads    atomic.Uint64
	stores   atomic.Uint64
	swaps    atomic.Uint64
	retries  atomic.Uint64
	recycled atomic.Uint64
	live     atomic.Int64
}

// Option configures a Value at construction time.
type Option[T any] func(*Value[T])

// WithReleaseFunc installs a hook that runs exactly once per payload, when
// its reference count reaches zero. Useful when the stored value owns
// resources that need explicit teardown, and by tests that want to observe
// reclamation. The hook runs on whichever goroutine dropped the last
// reference, so it must not block for long.
func WithReleaseFunc[T any](fn func(T)) Option[T] {
	return func(v *Value[T]) { v.release = fn }
}

// New returns a container publishing initial. Every container is an explicit
// instance; there is deliberately no package-level default.
func New[T any](initial T, opts ...Option[T]) *Value[T] {
	v := &Value[T]{}
	for _, opt := range opts {
		opt(v)
	}
	v.terminal.closed = true
	v.slot.Store(&cell[T]{ref: v.newPayload(initial)})
	return v
}

// Load returns a counted handle to whichever value is published at the
// moment of the call. The handle stays valid until released, regardless of
// later stores. Load never blocks other loads or the writer beyond a short
// compare-and-swap retry; the retry count is reported through Stats.
//
// The naive "read pointer, then increment its count" is unsafe here: a
// concurrent Store could replace and reclaim the payload between the two
// steps. Load instead borrows the slot outright: it swaps in a marker cell,
// increments the count of the payload it observed, then restores the slot.
// If the restore fails, a Store displaced the marker meanwhile; the newer
// value stays published and the slot's now-orphaned share of the observed
// payload transfers to this loader, which drops it.
func (v *Value[T]) Load() *Snapshot[T] {
	m, _ := v.markers.Get().(*cell[T])
	if m == nil {
		m = new(cell[T])
	}
	for {
		cur := v.slot.Load()
		if cur.closed {
			v.markers.Put(m)
			panic("hotswap: Load of closed Value")
		}
		if cur.ref == nil {
			// Another reader holds the borrow window.
			v.retries.Add(1)
			runtime.Gosched()
			continue
		}
		if !v.slot.CompareAndSwap(cur, m) {
			v.retries.Add(1)
			continue
		}
		p := cur.ref
		p.refs.Add(1)
		if !v.slot.CompareAndSwap(m, cur) {
			// A Store landed inside the borrow window. Its exchange removed
			// our marker and handed us the slot's share of p; the newer
			// value must stay published, so drop the orphaned share instead
			// of restoring.
			v.releasePayload(p)
		}
		v.markers.Put(m)
		v.loads.Add(1)
		return &Snapshot[T]{v: v, p: p}
	}
}

// Get is shorthand for Load, copy the value out, Release.
func (v *Value[T]) Get() T {
	s := v.Load()
	val := s.Get()
	s.Release()
	return val
}

// Store publishes val, superseding the current value. It is a single
// unconditional atomic exchange plus a reference-count decrement; writers
// never spin, even against readers mid-borrow. Snapshots handed out earlier
// keep their old value.
func (v *Value[T]) Store(val T) {
	nc := &cell[T]{ref: v.newPayload(val)}
	old := v.slot.Swap(nc)
	if old.closed {
		v.reinstate(old)
		panic("hotswap: Store to closed Value")
	}
	v.stores.Add(1)
	if old.ref != nil {
		v.releasePayload(old.ref)
		return
	}
	// We displaced a reader's borrow marker. The reader's restore will fail
	// and it inherits the slot's share of the payload it observed, so there
	// is nothing for the writer to release.
}

// Swap publishes val and returns the previous value as a Snapshot whose
// reference is the slot's transferred share. Unlike Store it exchanges only
// against a published slot, so it may briefly retry while a reader is inside
// its borrow window.
func (v *Value[T]) Swap(val T) *Snapshot[T] {
	nc := &cell[T]{ref: v.newPayload(val)}
	for {
		old := v.slot.Load()
		if old.closed {
			v.releasePayload(nc.ref)
			panic("hotswap: Swap on closed Value")
		}
		if old.ref == nil {
			v.retries.Add(1)
			runtime.Gosched()
			continue
		}
		if v.slot.CompareAndSwap(old, nc) {
			v.swaps.Add(1)
			// The slot's share of old.ref moves to the returned handle.
			return &Snapshot[T]{v: v, p: old.ref}
		}
		v.retries.Add(1)
	}
}

// Update loads the current value, applies fn, and stores the result. It is
// not atomic as a whole: two concurrent Updates may both read the same base
// value, and the later Store wins while the earlier result is discarded.
// That is the documented last-write-wins semantic, not a bug; callers that
// need atomic read-modify-write must serialize writers externally.
func (v *Value[T]) Update(fn func(T) T) {
	s := v.Load()
	next := fn(s.Get())
	v.Store(next)
	s.Release()
}

// Close retires the container: it waits out any in-flight borrow window,
// installs the terminal cell, and releases the slot's share of the final
// payload. The payload itself is reclaimed once the last outstanding
// Snapshot is released. Close is idempotent; every other operation on a
// closed Value panics. Close must not race with Store, Swap or Update: a
// writer that loses that race restores the terminal state and then panics.
func (v *Value[T]) Close() {
	for {
		old := v.slot.Load()
		if old.closed {
			return
		}
		if old.ref == nil {
			runtime.Gosched()
			continue
		}
		if v.slot.CompareAndSwap(old, &v.terminal) {
			v.releasePayload(old.ref)
			return
		}
	}
}

// reinstate puts the terminal cell back after a Store's exchange displaced
// it. The store's own cell may meanwhile have been borrowed by a reader, so
// this waits out borrow windows the same way Close does, then releases the
// slot's share of whatever it displaced. The container ends up closed again
// and any snapshot a reader took of the briefly-republished value stays
// valid.
func (v *Value[T]) reinstate(terminal *cell[T]) {
	for {
		cur := v.slot.Load()
		if cur.closed {
			return
		}
		if cur.ref == nil {
			runtime.Gosched()
			continue
		}
		if v.slot.CompareAndSwap(cur, terminal) {
			v.releasePayload(cur.ref)
			return
		}
	}
}

func (v *Value[T]) newPayload(val T) *payload[T] {
	p, _ := v.payloads.Get().(*payload[T])
	if p == nil {
		p = new(payload[T])
	}
	p.val = val
	p.refs.Store(1)
	v.live.Add(1)
	return p
}

// releasePayload drops one counted reference. On the transition to zero the
// release hook runs, the value is zeroed so the node retains nothing, and
// the node goes back to the pool.
func (v *Value[T]) releasePayload(p *payload[T]) {
	switch n := p.refs.Add(-1); {
	case n > 0:
		return
	case n < 0:
		panic("hotswap: payload refcount underflow")
	}
	if v.release != nil {
		v.release(p.val)
	}
	var zero T
	p.val = zero
	v.payloads.Put(p)
	v.recycled.Add(1)
	v.live.Add(-1)
}
