// Package interleave implements the fixed-window packet interleaver
// (spec.md §4.6): it permutes outbound packets within a sliding window so
// a burst of network loss is spread across multiple FEC blocks instead
// of landing entirely inside one.
package interleave

import (
	"fmt"
	"math/rand"

	"github.com/rocwire/streamcore/packet"
)

// Interleaver holds a sliding window of W packets and releases them in a
// fixed pseudo-random order derived from a seed. For an FEC-enabled
// sender W should equal the FEC block size N, so each block's packets
// are scattered across the same window.
type Interleaver struct {
	window int
	perm   []int
	buf    []*packet.Packet
}

// New returns an Interleaver with the given window size and permutation
// seed. Two Interleavers built with the same (window, seed) produce
// identical release orders, which is what lets a sender and its test
// harness agree on the scatter pattern without transmitting it.
func New(window int, seed int64) (*Interleaver, error) {
	if window <= 0 {
		return nil, fmt.Errorf("interleave: window must be positive, got %d", window)
	}
	// #nosec G404 -- deterministic scatter pattern, not security-sensitive randomness.
	r := rand.New(rand.NewSource(seed))
	return &Interleaver{
		window: window,
		perm:   r.Perm(window),
		buf:    make([]*packet.Packet, 0, window),
	}, nil
}

// Write buffers pkt. Once the window fills, it returns the buffered
// packets in permuted order and resets the window; otherwise it returns
// nil.
func (i *Interleaver) Write(pkt *packet.Packet) []*packet.Packet {
	i.buf = append(i.buf, pkt)
	if len(i.buf) < i.window {
		return nil
	}
	out := i.release(i.buf)
	i.buf = i.buf[:0]
	return out
}

// Flush drains every packet currently buffered, in the same permuted
// order a full window would have released them in, and resets the
// window. Used when a stream ends before the window fills.
func (i *Interleaver) Flush() []*packet.Packet {
	if len(i.buf) == 0 {
		return nil
	}
	out := i.release(i.buf)
	i.buf = i.buf[:0]
	return out
}

// release orders buf (length <= window) by each packet's rank in the
// window-wide permutation, skipping positions beyond what was written.
func (i *Interleaver) release(buf []*packet.Packet) []*packet.Packet {
	out := make([]*packet.Packet, 0, len(buf))
	for _, pos := range i.perm {
		if pos < len(buf) {
			out = append(out, buf[pos])
		}
	}
	return out
}
