package audio

import (
	"fmt"
	"time"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/rtp"
)

// Packetizer consumes frames at a fixed sample spec and emits
// fixed-size packets spanning exactly samplesPerPacket samples per
// channel (spec.md §4.7). Fixed-size packets are what let the FEC block
// writer treat every source symbol as equal length. The emitter decides
// what happens to each prepared packet: composed straight onto the wire,
// or folded into a FEC block that may hand back a batch of repair
// packets alongside the source packet once a block completes.
type Packetizer struct {
	emitter Emitter
	encoder rtp.Encoder
	seq     *rtp.Sequencer
	spec    format.SampleSpec

	samplesPerPacket int

	pending            []float32
	pendingCaptureTime time.Time

	encodedPackets uint64
	payloadBytes   uint64
}

// NewPacketizer returns a Packetizer producing packets of packetDuration
// worth of samples, encoded with encoder and emitted via emitter.
func NewPacketizer(emitter Emitter, encoder rtp.Encoder, seq *rtp.Sequencer, spec format.SampleSpec, packetDuration time.Duration) (*Packetizer, error) {
	samplesPerPacket := int(spec.NsToNumSamples(packetDuration))
	if samplesPerPacket <= 0 {
		return nil, fmt.Errorf("audio: packetizer: packet_duration %s yields zero samples at rate %d", packetDuration, spec.SampleRate)
	}
	return &Packetizer{
		emitter: emitter,
		encoder: encoder,
		seq:     seq,
		spec:    spec,

		samplesPerPacket: samplesPerPacket,
	}, nil
}

// EncodedPackets returns the running count of packets emitted.
func (p *Packetizer) EncodedPackets() uint64 { return p.encodedPackets }

// PayloadBytes returns the running count of payload bytes emitted.
func (p *Packetizer) PayloadBytes() uint64 { return p.payloadBytes }

// Push appends frame's samples to the pending buffer and emits every
// fixed-size packet that can be completed from it, in source-then-repair
// order. A partial remainder is buffered for the next Push or a closing
// Flush.
func (p *Packetizer) Push(frame *format.Frame) ([]*packet.Packet, error) {
	if len(p.pending) == 0 {
		p.pendingCaptureTime = frame.CaptureTime
	}
	p.pending = append(p.pending, frame.Samples...)

	frameSize := p.samplesPerPacket * p.spec.NumChannels
	var out []*packet.Packet
	for len(p.pending) >= frameSize {
		source, repairs, err := p.emit(p.pending[:frameSize], p.pendingCaptureTime)
		if err != nil {
			return out, fmt.Errorf("audio: packetizer: %w", err)
		}
		out = append(out, source)
		out = append(out, repairs...)

		remainder := len(p.pending) - frameSize
		copy(p.pending, p.pending[frameSize:])
		p.pending = p.pending[:remainder]
		// The capture time for any further packets assembled from this
		// same Push's carry-over is best approximated by this frame's
		// capture time; a later Push call overwrites it once the pending
		// buffer drains to empty.
		p.pendingCaptureTime = frame.CaptureTime
	}
	return out, nil
}

// Flush pads any partial pending packet with silence to the fixed size
// and emits it (spec.md §4.7 "On flush() any partial packet is padded
// with silence"). It returns nil if there is no partial packet pending.
func (p *Packetizer) Flush() ([]*packet.Packet, error) {
	if len(p.pending) == 0 {
		return nil, nil
	}
	frameSize := p.samplesPerPacket * p.spec.NumChannels
	padded := make([]float32, frameSize)
	copy(padded, p.pending)

	source, repairs, err := p.emit(padded, p.pendingCaptureTime)
	p.pending = nil
	if err != nil {
		return nil, fmt.Errorf("audio: packetizer: flush: %w", err)
	}
	return append([]*packet.Packet{source}, repairs...), nil
}

func (p *Packetizer) emit(samples []float32, captureTime time.Time) (source *packet.Packet, repairs []*packet.Packet, err error) {
	payloadLen := p.encoder.EncodedBytes(p.samplesPerPacket)
	duration := p.spec.NumSamplesToNs(uint64(p.samplesPerPacket))

	stamp := func(pkt *packet.Packet) {
		p.seq.Next(pkt, p.samplesPerPacket, captureTime, duration)
	}
	fill := func(buf []byte) error {
		return p.encoder.Encode(buf, samples)
	}

	source, repairs, err = p.emitter.WriteSource(payloadLen, stamp, fill)
	if err != nil {
		return nil, nil, err
	}

	p.encodedPackets++
	p.payloadBytes += uint64(payloadLen)
	return source, repairs, nil
}
