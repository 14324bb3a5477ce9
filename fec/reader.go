package fec

import (
	"fmt"

	"github.com/rocwire/streamcore/packet"
)

// DefaultMaxLookaheadBlocks bounds how many blocks ahead of the next
// block to be read the reader will buffer, per spec.md §4.5 "bounded
// lookahead": a sender that never completes a block cannot make the
// reader buffer unboundedly.
const DefaultMaxLookaheadBlocks = 4

// block holds everything received so far for one source block number.
type block struct {
	k, m      int
	symbolLen int
	packets   map[uint16]*packet.Packet // encoding_symbol_id -> packet
	decoder   BlockDecoder
	began     bool
}

func (b *block) ensureDecoder(scheme packet.SchemeID) error {
	if b.began {
		return nil
	}
	dec, err := NewBlockDecoder(scheme)
	if err != nil {
		return err
	}
	if err := dec.BeginBlock(b.k, b.m, b.symbolLen); err != nil {
		return err
	}
	b.decoder = dec
	b.began = true
	for esi, pkt := range b.packets {
		if err := b.decoder.SetBuffer(int(esi), pkt.FEC.Payload); err != nil {
			return err
		}
	}
	return nil
}

// Reader aligns the source and repair packet streams of a scheme into
// blocks, reorders within a block, and recovers missing source packets
// from repair symbols once enough of the block has arrived (spec.md
// §4.5). Packets are emitted in non-decreasing (block_number,
// encoding_symbol_id) order; Read never goes backward even across
// blocks distinguished only by a wrapped block_number.
type Reader struct {
	scheme          packet.SchemeID
	maxLookahead    int
	blocks          map[uint16]*block
	nextBlockNumber uint16
	nextSymbolID    uint16
	haveNext        bool
}

// NewReader returns a Reader for scheme with the default lookahead bound.
func NewReader(scheme packet.SchemeID) *Reader {
	return &Reader{
		scheme:       scheme,
		maxLookahead: DefaultMaxLookaheadBlocks,
		blocks:       make(map[uint16]*block),
	}
}

// blockDistance returns the wrap-aware forward distance from a to b
// (both block numbers), i.e. how many increments of a reach b.
func blockDistance(a, b uint16) int {
	return int(uint16(b - a))
}

// Push admits a parsed FEC packet (source or repair) into its block. It
// is dropped, not an error, if its block lies beyond the lookahead
// window ahead of the next block to be read, or behind a block already
// fully consumed.
func (r *Reader) Push(pkt *packet.Packet) error {
	if pkt.FEC == nil {
		return fmt.Errorf("fec: reader: packet has no FEC fields")
	}
	f := pkt.FEC
	bn := f.SourceBlockNumber

	if !r.haveNext {
		r.nextBlockNumber = bn
		r.nextSymbolID = 0
		r.haveNext = true
	}

	dist := blockDistance(r.nextBlockNumber, bn)
	// A forward distance close to the full 16-bit range means bn is
	// actually behind the read cursor (block_number wrapped): drop the
	// stale packet.
	if dist > 1<<15 {
		pkt.Release()
		return nil
	}
	if dist > r.maxLookahead {
		// bn has pushed the window past the read cursor's current
		// symbol. Read alone never skips an unrecoverable symbol, so
		// without this the cursor would stick there forever once that
		// symbol can't be recovered (spec.md §4.5.4 "bounded lookahead"
		// requires forward progress, not just a buffering cap). Force
		// the stuck symbol past — the gap it leaves shows up downstream
		// as a stream_timestamp discontinuity for the validator/streamer
		// to conceal — then re-check: bn may still be outside the
		// window if more than one symbol is stuck, in which case this
		// packet is dropped same as before, and a later push finishes
		// the job.
		r.Skip()
		dist = blockDistance(r.nextBlockNumber, bn)
		if dist > r.maxLookahead {
			pkt.Release()
			return nil
		}
	}

	b, ok := r.blocks[bn]
	if !ok {
		k := int(f.SourceBlockLength)
		n := int(f.BlockLength)
		b = &block{k: k, m: n - k, symbolLen: len(f.Payload), packets: make(map[uint16]*packet.Packet)}
		r.blocks[bn] = b
	}
	if _, dup := b.packets[f.EncodingSymbolID]; dup {
		pkt.Release()
		return nil
	}
	b.packets[f.EncodingSymbolID] = pkt

	if b.began {
		if err := b.decoder.SetBuffer(int(f.EncodingSymbolID), f.Payload); err != nil {
			return fmt.Errorf("fec: reader: %w", err)
		}
	}
	return nil
}

// Read returns the next packet in block/symbol order, recovering it
// from repair symbols if necessary. ok is false when the next packet is
// not yet available (neither received nor recoverable) — the caller
// should treat this as "not yet", not as permanent loss, and retry after
// admitting more packets via Push, up to its own playout deadline.
func (r *Reader) Read() (pkt *packet.Packet, ok bool, err error) {
	if !r.haveNext {
		return nil, false, nil
	}

	b, known := r.blocks[r.nextBlockNumber]
	if !known {
		return nil, false, nil
	}

	if got, present := b.packets[r.nextSymbolID]; present {
		// The block keeps its own reference until the block ends, so a
		// decoder started later for a missing symbol still sees it.
		out := got.Ref()
		r.advance(b)
		return out, true, nil
	}

	if int(r.nextSymbolID) < b.k {
		if err := b.ensureDecoder(r.scheme); err != nil {
			return nil, false, fmt.Errorf("fec: reader: %w", err)
		}
		data, recovered, err := b.decoder.Repair(int(r.nextSymbolID))
		if err != nil {
			return nil, false, fmt.Errorf("fec: reader: %w", err)
		}
		if recovered {
			out := r.synthesize(b, data)
			r.advance(b)
			return out, true, nil
		}
	}

	return nil, false, nil
}

// Skip gives up on the current symbol (e.g. the playout deadline for it
// has passed) and advances the read cursor past it. The skipped symbol
// is never emitted; Skip itself reports nothing.
func (r *Reader) Skip() {
	if b, known := r.blocks[r.nextBlockNumber]; known {
		r.advance(b)
		return
	}
	// Nothing was ever received for this block, so its k is unknown and
	// there is no symbol count to advance against. There is nothing to
	// wait for either: move straight to the next block rather than
	// incrementing a symbol id that will never reach a bound.
	r.nextBlockNumber++
	r.nextSymbolID = 0
}

func (r *Reader) advance(b *block) {
	r.nextSymbolID++
	if int(r.nextSymbolID) >= b.k {
		if b.began {
			b.decoder.EndBlock()
		}
		for _, leftover := range b.packets {
			leftover.Release()
		}
		delete(r.blocks, r.nextBlockNumber)
		r.nextBlockNumber++
		r.nextSymbolID = 0
	}
}

// synthesize builds a recovered packet around reconstructed payload
// bytes. It carries no pool-owned slice (the bytes live in the
// decoder's own working buffer), FlagRecovered distinguishes it from a
// packet that arrived off the wire.
func (r *Reader) synthesize(b *block, payload []byte) *packet.Packet {
	pkt := packet.New(packet.FlagAudio|packet.FlagFEC|packet.FlagRecovered, nil)
	pkt.FEC = &packet.FECFields{
		Scheme:            r.scheme,
		Payload:           payload,
		EncodingSymbolID:  r.nextSymbolID,
		SourceBlockNumber: r.nextBlockNumber,
		SourceBlockLength: uint16(b.k),
		BlockLength:       uint16(b.k + b.m),
	}
	pkt.MarkComposed()
	return pkt
}
