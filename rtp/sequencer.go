package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"time"

	"github.com/rocwire/streamcore/packet"
)

// Sequencer assigns seqnum and stream-timestamp fields to outbound
// packets (spec.md §4.9). Seqnum and stream-timestamp are seeded with
// unbiased random values per RFC 3550 at construction.
type Sequencer struct {
	identity  *Identity
	seqnum    uint16
	timestamp uint32
}

// NewSequencer returns a Sequencer bound to identity, with seqnum and
// stream-timestamp seeded from crypto/rand.
func NewSequencer(identity *Identity) (*Sequencer, error) {
	seqnum, err := randomUint16()
	if err != nil {
		return nil, fmt.Errorf("rtp: sequencer: seed seqnum: %w", err)
	}
	ts, err := randomUint32()
	if err != nil {
		return nil, fmt.Errorf("rtp: sequencer: seed timestamp: %w", err)
	}

	return &Sequencer{identity: identity, seqnum: seqnum, timestamp: ts}, nil
}

// Next assigns source_id/seqnum/stream_timestamp/capture_timestamp to pkt,
// advances seqnum by one and advances the stream timestamp by
// numSamplesPerChannel, the exact per-channel sample count the packet
// carries (advancing by the
// sample count, not a rounded duration, keeps the stream-timestamp
// exact across arbitrarily many packets).
func (s *Sequencer) Next(pkt *packet.Packet, numSamplesPerChannel int, captureTime time.Time, duration time.Duration) {
	pkt.RTP.SourceID = s.identity.SSRC()
	pkt.RTP.Seqnum = s.seqnum
	pkt.RTP.StreamTimestamp = s.timestamp
	pkt.RTP.Duration = duration
	pkt.RTP.CaptureTimestamp = captureTime.UnixNano()

	s.seqnum++
	s.timestamp += uint32(numSamplesPerChannel)
}

func randomUint16() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}

func randomUint32() (uint32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b[:]), nil
}
