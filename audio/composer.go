package audio

import (
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/pool"
	"github.com/rocwire/streamcore/rtp"
)

// Composer is the narrowed single-argument prepare/compose contract the
// packetizer needs. Both *fec.Composer and (via WrapComposer) *rtp.Composer
// satisfy it, so a packetizer can sit directly on the wire or behind FEC
// framing without caring which (spec.md §9's "schemes as values, not
// types" carried through to composer chaining).
type Composer interface {
	Prepare(payloadLen int) (*packet.Packet, []byte, error)
	Compose(pkt *packet.Packet) error
}

// Parser is the matching single-argument parse contract; *rtp.Parser and
// *fec.Parser both already satisfy it.
type Parser interface {
	Parse(buf []byte, slice *pool.Slice) (*packet.Packet, error)
}

// rtpComposerAdapter adapts *rtp.Composer's two-argument Prepare (it also
// reserves footer space for an outer FEC composer) to the single-argument
// Composer contract, for use when RTP composes directly onto the wire
// with no outer framing.
type rtpComposerAdapter struct {
	inner *rtp.Composer
}

// WrapComposer adapts inner for direct (non-FEC) use by a packetizer.
func WrapComposer(inner *rtp.Composer) Composer {
	return rtpComposerAdapter{inner: inner}
}

func (a rtpComposerAdapter) Prepare(payloadLen int) (*packet.Packet, []byte, error) {
	return a.inner.Prepare(payloadLen, 0)
}

func (a rtpComposerAdapter) Compose(pkt *packet.Packet) error {
	return a.inner.Compose(pkt)
}

// Emitter is what a Packetizer actually drives to turn one fixed-size
// payload into wire packets. *fec.Writer satisfies this directly: its
// WriteSource fuses prepare/stamp/fill/compose into one call so it can
// hold the source packet back from nothing but return a batch of repair
// packets the instant a block completes. plainEmitter adapts a Composer
// to the same shape for the no-FEC path, where repairs is always nil.
type Emitter interface {
	WriteSource(payloadLen int, stamp func(*packet.Packet), fill func(buf []byte) error) (source *packet.Packet, repairs []*packet.Packet, err error)
}

// plainEmitter adapts a Composer to the Emitter contract for a
// packetizer that composes straight onto the wire with no FEC framing.
type plainEmitter struct {
	composer Composer
}

// WrapEmitter adapts composer for direct (non-FEC) use by a packetizer.
func WrapEmitter(composer Composer) Emitter {
	return plainEmitter{composer: composer}
}

func (e plainEmitter) WriteSource(payloadLen int, stamp func(*packet.Packet), fill func(buf []byte) error) (*packet.Packet, []*packet.Packet, error) {
	pkt, buf, err := e.composer.Prepare(payloadLen)
	if err != nil {
		return nil, nil, err
	}
	stamp(pkt)
	if err := fill(buf); err != nil {
		return nil, nil, err
	}
	if err := e.composer.Compose(pkt); err != nil {
		return nil, nil, err
	}
	return pkt, nil, nil
}
