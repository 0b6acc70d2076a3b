package hotswap

// Snapshot is an independently-lived, counted reference to one published
// value. It keeps that value alive no matter how many stores happen after it
// was taken; nothing done through a Snapshot can affect what the container
// currently publishes.
//
// A Snapshot belongs to the goroutine holding it. Hand a Clone to another
// goroutine instead of sharing one handle. Using a handle after Release
// panics.
type Snapshot[T any] struct {
	v *Value[T]
	p *payload[T]
}

// Get returns the value this handle pins. The value must not be mutated.
func (s *Snapshot[T]) Get() T {
	if s.p == nil {
		panic("hotswap: Get on released Snapshot")
	}
	return s.p.val
}

// Clone returns a second handle to the same value, with its own reference.
func (s *Snapshot[T]) Clone() *Snapshot[T] {
	if s.p == nil {
		panic("hotswap: Clone of released Snapshot")
	}
	s.p.refs.Add(1)
	return &Snapshot[T]{v: s.v, p: s.p}
}

// Release drops this handle's reference. When the last owner (the slot or
// any handle) lets go, the payload is reclaimed. Releasing twice panics.
func (s *Snapshot[T]) Release() {
	if s.p == nil {
		panic("hotswap: Snapshot released twice")
	}
	p := s.p
	s.p = nil
	s.v.releasePayload(p)
}
