// Package pool implements the fixed-capacity, reference-counted buffer
// pools spec.md §4.1 describes: preallocated chunks of a fixed size,
// O(1) mutex-guarded acquisition (not wait-free), and optional poisoning
// to catch use-after-free bugs in tests.
package pool

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/sirupsen/logrus"
)

// poisonByte is written into a chunk on acquire and on release when
// poisoning is enabled, matching roc_core::Poisoner's fixed byte pattern.
const poisonByte = 0xCD

// Pool preallocates a fixed number of chunks of chunkSize bytes. Acquire
// pops a stack of free chunk indices under a mutex, so it is O(1) but
// not wait-free: it blocks while another Acquire or Release holds the
// lock. It never grows past its initial capacity — once exhausted it returns
// OutOfMemory rather than allocating, so the audio data plane never hits
// allocator jitter.
type Pool struct {
	chunkSize int
	capacity  int

	chunks [][]byte

	// free is a stack: free[:top] holds the indices of available chunks.
	// mu serializes both the push (Release) and pop (Acquire) against it
	// — a single CAS on top alone is not enough, since Release's write of
	// free[top] and its CAS of top are two separate steps and two
	// concurrent Releases can clobber each other's write between them.
	mu   sync.Mutex
	free []int32
	top  int32

	poison int32 // atomic bool

	inUse   int64
	highest int64
}

// Config configures a new Pool.
type Config struct {
	ChunkSize int
	Capacity  int
	// Poison enables writing a fixed byte pattern into chunks on acquire
	// and release, to surface use-after-free bugs in tests.
	Poison bool
}

// New creates a Pool with the given chunk size and capacity. Both must be
// positive.
func New(cfg Config) (*Pool, error) {
	logrus.WithFields(logrus.Fields{
		"function":   "pool.New",
		"chunk_size": cfg.ChunkSize,
		"capacity":   cfg.Capacity,
		"poison":     cfg.Poison,
	}).Debug("creating buffer pool")

	if cfg.ChunkSize <= 0 {
		return nil, fmt.Errorf("pool: chunk size must be positive, got %d", cfg.ChunkSize)
	}
	if cfg.Capacity <= 0 {
		return nil, fmt.Errorf("pool: capacity must be positive, got %d", cfg.Capacity)
	}

	p := &Pool{
		chunkSize: cfg.ChunkSize,
		capacity:  cfg.Capacity,
		chunks:    make([][]byte, cfg.Capacity),
		free:      make([]int32, cfg.Capacity),
	}
	for i := 0; i < cfg.Capacity; i++ {
		p.chunks[i] = make([]byte, cfg.ChunkSize)
		p.free[i] = int32(i)
	}
	p.top = int32(cfg.Capacity)
	if cfg.Poison {
		atomic.StoreInt32(&p.poison, 1)
	}

	return p, nil
}

// ChunkSize returns the fixed chunk size this pool was created with.
func (p *Pool) ChunkSize() int { return p.chunkSize }

// EnablePoisoning toggles poisoning at runtime (tests flip this on to
// detect use-after-free without paying the write cost in production).
func (p *Pool) EnablePoisoning(enabled bool) {
	v := int32(0)
	if enabled {
		v = 1
	}
	atomic.StoreInt32(&p.poison, v)
}

// InUse reports the number of chunks currently checked out.
func (p *Pool) InUse() int64 {
	return atomic.LoadInt64(&p.inUse)
}

// acquireIndex pops a free chunk index.
func (p *Pool) acquireIndex() (int32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.top == 0 {
		return 0, false
	}
	p.top--
	return p.free[p.top], true
}

func (p *Pool) releaseIndex(idx int32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free[p.top] = idx
	p.top++
}

// Acquire returns a new reference-counted Slice backed by a pool chunk, or
// fails with OutOfMemory when the pool is exhausted.
func (p *Pool) Acquire() (*Slice, error) {
	idx, ok := p.acquireIndex()
	if !ok {
		logrus.WithFields(logrus.Fields{
			"function": "Pool.Acquire",
			"capacity": p.capacity,
		}).Warn("buffer pool exhausted")
		return nil, fmt.Errorf("pool: exhausted (capacity=%d): %w", p.capacity, errOutOfMemory)
	}

	buf := p.chunks[idx]
	if atomic.LoadInt32(&p.poison) != 0 {
		poisonFill(buf)
	}

	n := atomic.AddInt64(&p.inUse, 1)
	p.mu.Lock()
	if n > p.highest {
		p.highest = n
	}
	p.mu.Unlock()

	return &Slice{pool: p, idx: idx, buf: buf, refs: 1}, nil
}

func (p *Pool) release(idx int32, buf []byte) {
	if atomic.LoadInt32(&p.poison) != 0 {
		poisonFill(buf)
	}
	atomic.AddInt64(&p.inUse, -1)
	p.releaseIndex(idx)
}

func poisonFill(buf []byte) {
	for i := range buf {
		buf[i] = poisonByte
	}
}

// errOutOfMemory is the sentinel wrapped by Acquire's error; exported via
// IsOutOfMemory for callers that need to branch on it without importing
// the status package (which sits above pool in the dependency graph).
var errOutOfMemory = fmt.Errorf("pool exhausted")

// IsOutOfMemory reports whether err originated from pool exhaustion.
func IsOutOfMemory(err error) bool {
	return err != nil && (err == errOutOfMemory || wrapsOutOfMemory(err))
}

func wrapsOutOfMemory(err error) bool {
	u, ok := err.(interface{ Unwrap() error })
	if !ok {
		return false
	}
	return IsOutOfMemory(u.Unwrap())
}
