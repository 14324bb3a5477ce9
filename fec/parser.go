package fec

import (
	"fmt"

	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/pool"
	"github.com/rocwire/streamcore/rtp"
)

// Parser is the dual of Composer: it unwraps the FEC payload ID from
// around the audio payload the inner RTP parser decoded.
type Parser struct {
	inner    *rtp.Parser
	scheme   packet.SchemeID
	position Position
}

// NewParser returns a Parser expecting payload IDs at position for
// scheme.
func NewParser(inner *rtp.Parser, scheme packet.SchemeID, position Position) *Parser {
	return &Parser{inner: inner, scheme: scheme, position: position}
}

// Parse decodes buf into a Packet carrying both RTP and FEC fields. On
// any format violation it returns a wrapped errBadFormat (spec.md §4.3
// "If a received buffer is shorter than the block's declared symbol
// length, the block is aborted" — that specific abort is the block
// reader's job; here we only reject buffers too short to contain a
// payload ID at all).
func (p *Parser) Parse(buf []byte, slice *pool.Slice) (*packet.Packet, error) {
	pkt, err := p.inner.Parse(buf, slice)
	if err != nil {
		return nil, fmt.Errorf("fec: parser: %w", err)
	}

	raw := pkt.RTP.Payload
	if len(raw) < PayloadIDSize {
		return nil, fmt.Errorf("fec: parser: payload too short for payload id (%d bytes): %w", len(raw), errBadFormat)
	}

	var idBuf, payload []byte
	if p.position == PositionHeader {
		idBuf, payload = raw[:PayloadIDSize], raw[PayloadIDSize:]
	} else {
		payload, idBuf = raw[:len(raw)-PayloadIDSize], raw[len(raw)-PayloadIDSize:]
	}

	fields := decodePayloadID(idBuf)

	pkt.Flags |= packet.FlagFEC
	pkt.FEC = &packet.FECFields{
		Scheme:            p.scheme,
		PayloadID:         idBuf,
		Payload:           payload,
		EncodingSymbolID:  fields.EncodingSymbolID,
		SourceBlockNumber: fields.SourceBlockNumber,
		SourceBlockLength: fields.SourceBlockLength,
		BlockLength:       fields.BlockLength,
	}

	return pkt, nil
}

var errBadFormat = fmt.Errorf("bad fec format")
