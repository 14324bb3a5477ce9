package pool

import "sync/atomic"

// Slice is a reference-counted handle onto a pool-owned byte chunk.
// Lifetime is the longest holder: the chunk returns to its pool only when
// the last reference is dropped (spec.md §3 "Ownership"). Slice itself is
// safe to share read-only across goroutines; Ref/Release use atomics.
type Slice struct {
	pool *Pool
	idx  int32
	buf  []byte
	refs int32
}

// Bytes returns the full-capacity backing chunk. Callers needing a
// specific length should reslice: s.Bytes()[:n].
func (s *Slice) Bytes() []byte {
	return s.buf
}

// Ref increments the reference count and returns s, so callers can do
// `held := slice.Ref()` when handing a copy of the handle to another
// component that will independently call Release.
func (s *Slice) Ref() *Slice {
	atomic.AddInt32(&s.refs, 1)
	return s
}

// Release decrements the reference count. When it reaches zero the
// chunk is returned to its pool (and poisoned, if poisoning is enabled).
// Calling Release more times than Ref+1 is a programming error; the
// pool's poisoning option is the intended way to catch that in tests.
func (s *Slice) Release() {
	if atomic.AddInt32(&s.refs, -1) == 0 {
		s.pool.release(s.idx, s.buf)
	}
}

// RefCount returns the current reference count, for tests.
func (s *Slice) RefCount() int32 {
	return atomic.LoadInt32(&s.refs)
}
