package rtp

import (
	"fmt"

	pionrtp "github.com/pion/rtp"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/pool"
)

// Parser validates and decodes RTP packets from raw wire bytes
// (spec.md §4.2, §6). On any format violation it returns a BadFormat
// error; the caller (typically the router or FEC reader) is responsible
// for converting that into a dropped-packet counter increment rather
// than propagating it upward, per spec.md §7 tier 1.
type Parser struct{}

// NewParser returns a stateless RTP Parser.
func NewParser() *Parser { return &Parser{} }

// Parse decodes buf (exactly the received datagram, referencing slice's
// backing array) into a Packet. The returned packet's RTP.Payload is a
// sub-slice of slice's backing array, so slice must outlive the packet.
func (p *Parser) Parse(buf []byte, slice *pool.Slice) (*packet.Packet, error) {
	if len(buf) < HeaderSize {
		return nil, fmt.Errorf("rtp: parser: packet too short (%d bytes): %w", len(buf), errBadFormat)
	}

	var pkt pionrtp.Packet
	if err := pkt.Unmarshal(buf); err != nil {
		return nil, fmt.Errorf("rtp: parser: %w: %w", errBadFormat, err)
	}
	if pkt.Version != 2 {
		return nil, fmt.Errorf("rtp: parser: unsupported version %d: %w", pkt.Version, errBadFormat)
	}
	if pkt.Padding {
		if len(pkt.Payload) == 0 {
			return nil, fmt.Errorf("rtp: parser: padding flag set but empty payload: %w", errBadFormat)
		}
		padLen := int(pkt.Payload[len(pkt.Payload)-1])
		if padLen <= 0 || padLen > len(pkt.Payload) {
			return nil, fmt.Errorf("rtp: parser: invalid padding length %d: %w", padLen, errBadFormat)
		}
		pkt.Payload = pkt.Payload[:len(pkt.Payload)-padLen]
	}

	out := packet.New(packet.FlagRTP|packet.FlagAudio, slice)
	out.RTP = &packet.RTPFields{
		SourceID:        pkt.SSRC,
		Seqnum:          pkt.SequenceNumber,
		StreamTimestamp: pkt.Timestamp,
		PayloadType:     pkt.PayloadType,
		Marker:          pkt.Marker,
		Payload:         pkt.Payload,
	}
	out.MarkComposed()

	return out, nil
}

var errBadFormat = fmt.Errorf("bad rtp format")
