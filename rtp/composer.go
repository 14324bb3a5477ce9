// Package rtp implements the RTP wire format (spec.md §6), the
// packet-model compose/parse contract (§4.2), the sequencer/identity
// (§4.9), the validator (§4.10), and the timestamp extractor/mapper
// (§4.14). Header encoding/decoding is delegated to github.com/pion/rtp;
// this package adds the pool-backed alignment, chaining-composer
// contract, and sample-spec registry spec.md requires on top of it.
package rtp

import (
	"fmt"

	pionrtp "github.com/pion/rtp"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/pool"
)

// HeaderSize is the fixed RTP header size this composer produces: no
// CSRC, no extension (spec.md §6 base 12-byte header). Parse still
// accepts and skips CSRC/extension on inbound packets per §6.
const HeaderSize = 12

// Composer prepares and finalizes RTP packets. prepare must be called
// before any field mutation; compose finalizes bit-exact bytes; once
// composed the packet is immutable (spec.md §4.2 "Composer contract").
//
// Composer is also the "inner composer" the FEC composer wraps: Prepare
// reserves header+payload+footer space and Compose writes only the RTP
// header, leaving any outer framing (FEC payload ID) untouched in the
// surrounding bytes.
type Composer struct {
	pool *pool.Pool
}

// NewComposer returns a Composer that allocates packet backing storage
// from p.
func NewComposer(p *pool.Pool) *Composer {
	return &Composer{pool: p}
}

// Prepare allocates a packet sized for an RTP header plus a payload of
// payloadLen bytes, plus trailing space for footerLen bytes an outer
// composer (e.g. FEC) may want to append after the payload. It returns
// the packet and the payload sub-slice the caller should fill before
// calling Compose.
func (c *Composer) Prepare(payloadLen, footerLen int) (*packet.Packet, []byte, error) {
	total := HeaderSize + payloadLen + footerLen

	slice, err := c.pool.Acquire()
	if err != nil {
		return nil, nil, fmt.Errorf("rtp: composer prepare: %w", err)
	}
	if total > len(slice.Bytes()) {
		slice.Release()
		return nil, nil, fmt.Errorf("rtp: composer prepare: packet of %d bytes exceeds pool chunk size %d", total, len(slice.Bytes()))
	}

	buf := slice.Bytes()[:total]
	pkt := packet.New(packet.FlagRTP|packet.FlagAudio, slice)
	pkt.RTP = &packet.RTPFields{
		Payload: buf[HeaderSize : HeaderSize+payloadLen],
	}
	pkt.Flags |= packet.FlagPrepared

	return pkt, pkt.RTP.Payload, nil
}

// Compose finalizes the RTP header bytes from pkt.RTP's fields. It must
// be called exactly once, after Prepare and after the payload has been
// filled.
func (c *Composer) Compose(pkt *packet.Packet) error {
	if pkt.Composed() {
		return fmt.Errorf("rtp: composer compose: packet already composed")
	}
	if pkt.RTP == nil {
		return fmt.Errorf("rtp: composer compose: packet has no RTP fields")
	}
	if !pkt.Flags.Has(packet.FlagPrepared) {
		return fmt.Errorf("rtp: composer compose: packet was not prepared")
	}

	header := pionrtp.Header{
		Version:        2,
		Padding:        false,
		Extension:      false,
		Marker:         pkt.RTP.Marker,
		PayloadType:    pkt.RTP.PayloadType,
		SequenceNumber: pkt.RTP.Seqnum,
		Timestamp:      pkt.RTP.StreamTimestamp,
		SSRC:           pkt.RTP.SourceID,
	}

	buf := pkt.Slice().Bytes()
	n, err := header.MarshalTo(buf[:HeaderSize])
	if err != nil {
		return fmt.Errorf("rtp: composer compose: marshal header: %w", err)
	}
	if n != HeaderSize {
		return fmt.Errorf("rtp: composer compose: unexpected header size %d", n)
	}

	pkt.MarkComposed()
	return nil
}
