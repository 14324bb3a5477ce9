package fec

import (
	"fmt"

	"github.com/rocwire/streamcore/packet"
)

// Writer accumulates K source packets into a block, then computes and
// composes M repair packets from them (spec.md §4.4). Source packets are
// returned to the caller for immediate transmission as soon as they are
// composed; repair packets are only produced once the block is full, so
// a Writer never delays a source packet behind FEC computation.
type Writer struct {
	composer    *Composer
	scheme      packet.SchemeID
	k, m        int
	blockNumber uint16
	symbolLen   int
	sourceIdx   int
	encoder     BlockEncoder
}

// NewWriter returns a Writer that composes source packets via composer
// and produces repair blocks of k source / m repair symbols using
// scheme.
func NewWriter(composer *Composer, scheme packet.SchemeID, k, m int) (*Writer, error) {
	if k <= 0 || m <= 0 {
		return nil, fmt.Errorf("fec: writer: k and m must be positive, got k=%d m=%d", k, m)
	}
	enc, err := NewBlockEncoder(scheme)
	if err != nil {
		return nil, fmt.Errorf("fec: writer: %w", err)
	}
	return &Writer{composer: composer, scheme: scheme, k: k, m: m, encoder: enc}, nil
}

// WriteSource prepares the next source packet of the current block. stamp
// assigns the packet's RTP identity (SourceID, Seqnum, StreamTimestamp,
// ...) — typically a *rtp.Sequencer's Next method — and fill populates its
// audio payload; both run before the packet is composed. WriteSource
// returns the composed packet for immediate transmission. When this call
// completes the block (the k-th source packet), it also returns the
// freshly composed repair packets for the block, each run through stamp
// as well; repairs is nil on every other call.
func (w *Writer) WriteSource(payloadLen int, stamp func(*packet.Packet), fill func(buf []byte) error) (source *packet.Packet, repairs []*packet.Packet, err error) {
	if w.sourceIdx == 0 {
		w.symbolLen = payloadLen
		if err := w.encoder.BeginBlock(w.k, w.m, w.symbolLen); err != nil {
			return nil, nil, fmt.Errorf("fec: writer: %w", err)
		}
	} else if payloadLen != w.symbolLen {
		return nil, nil, fmt.Errorf("fec: writer: payload length %d does not match block symbol length %d", payloadLen, w.symbolLen)
	}

	pkt, buf, err := w.composer.Prepare(payloadLen)
	if err != nil {
		return nil, nil, fmt.Errorf("fec: writer: %w", err)
	}
	stamp(pkt)
	if err := fill(buf); err != nil {
		return nil, nil, fmt.Errorf("fec: writer: fill source payload: %w", err)
	}

	if err := w.encoder.SetBuffer(w.sourceIdx, buf); err != nil {
		return nil, nil, fmt.Errorf("fec: writer: %w", err)
	}

	pkt.FEC.EncodingSymbolID = uint16(w.sourceIdx)
	pkt.FEC.SourceBlockNumber = w.blockNumber
	pkt.FEC.SourceBlockLength = uint16(w.k)
	pkt.FEC.BlockLength = uint16(w.k + w.m)

	if err := w.composer.Compose(pkt); err != nil {
		return nil, nil, fmt.Errorf("fec: writer: %w", err)
	}

	w.sourceIdx++
	if w.sourceIdx < w.k {
		return pkt, nil, nil
	}

	repairs, err = w.flush(stamp)
	if err != nil {
		return nil, nil, fmt.Errorf("fec: writer: %w", err)
	}
	return pkt, repairs, nil
}

func (w *Writer) flush(stamp func(*packet.Packet)) ([]*packet.Packet, error) {
	if err := w.encoder.FillBuffers(); err != nil {
		return nil, err
	}

	repairs := make([]*packet.Packet, 0, w.m)
	for ri := 0; ri < w.m; ri++ {
		repairPayload, err := w.encoder.RepairPayload(ri)
		if err != nil {
			return nil, err
		}

		pkt, buf, err := w.composer.Prepare(w.symbolLen)
		if err != nil {
			return nil, err
		}
		stamp(pkt)
		copy(buf, repairPayload)

		pkt.Flags |= packet.FlagRepair
		pkt.FEC.EncodingSymbolID = uint16(w.k + ri)
		pkt.FEC.SourceBlockNumber = w.blockNumber
		pkt.FEC.SourceBlockLength = uint16(w.k)
		pkt.FEC.BlockLength = uint16(w.k + w.m)

		if err := w.composer.Compose(pkt); err != nil {
			return nil, err
		}
		repairs = append(repairs, pkt)
	}

	w.encoder.EndBlock()
	w.sourceIdx = 0
	w.blockNumber++
	return repairs, nil
}
