package fec

import (
	"fmt"

	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/rtp"
)

// Composer wraps an inner RTP composer (spec.md §4.2 "an outer FEC
// composer delegates inner payload composition to the RTP composer"),
// writing the FEC payload-ID header or footer around the audio payload.
// The scheme (Reed-Solomon vs LDPC, header vs footer) is carried as a
// value, not a type, per the design note in spec.md §9.
type Composer struct {
	inner    *rtp.Composer
	scheme   packet.SchemeID
	position Position
}

// NewComposer returns a Composer delegating header composition to inner.
func NewComposer(inner *rtp.Composer, scheme packet.SchemeID, position Position) *Composer {
	return &Composer{inner: inner, scheme: scheme, position: position}
}

// Prepare reserves space for an FEC payload ID plus an audio payload of
// payloadLen bytes and returns the packet and the audio-payload sub-slice
// to fill.
func (c *Composer) Prepare(payloadLen int) (*packet.Packet, []byte, error) {
	pkt, buf, err := c.inner.Prepare(PayloadIDSize+payloadLen, 0)
	if err != nil {
		return nil, nil, fmt.Errorf("fec: composer prepare: %w", err)
	}

	var payloadIDBuf, payloadBuf []byte
	if c.position == PositionHeader {
		payloadIDBuf, payloadBuf = buf[:PayloadIDSize], buf[PayloadIDSize:]
	} else {
		payloadBuf, payloadIDBuf = buf[:payloadLen], buf[payloadLen:]
	}

	pkt.Flags |= packet.FlagFEC
	pkt.FEC = &packet.FECFields{
		Scheme:    c.scheme,
		PayloadID: payloadIDBuf,
		Payload:   payloadBuf,
	}

	return pkt, payloadBuf, nil
}

// Compose writes the FEC payload-ID bytes from pkt.FEC's fields, then
// delegates to the inner composer to finalize the RTP header.
func (c *Composer) Compose(pkt *packet.Packet) error {
	if pkt.FEC == nil {
		return fmt.Errorf("fec: composer compose: packet has no FEC fields")
	}

	encodePayloadID(pkt.FEC.PayloadID, payloadIDFields{
		EncodingSymbolID:  pkt.FEC.EncodingSymbolID,
		SourceBlockNumber: pkt.FEC.SourceBlockNumber,
		SourceBlockLength: pkt.FEC.SourceBlockLength,
		BlockLength:       pkt.FEC.BlockLength,
	})

	if err := c.inner.Compose(pkt); err != nil {
		return fmt.Errorf("fec: composer compose: %w", err)
	}
	return nil
}
