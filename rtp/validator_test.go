package rtp

import (
	"testing"
	"time"

	"github.com/rocwire/streamcore/format"
	"github.com/rocwire/streamcore/packet"
	"github.com/stretchr/testify/assert"
)

func testSpec() format.SampleSpec {
	return format.SampleSpec{
		SampleRate: 44100, NumChannels: 2, Layout: format.ChannelLayoutStereo,
		Format: format.SampleFormatPCMSigned, BitWidth: 16, Order: format.ByteOrderBig,
	}
}

func TestValidatorAcceptsInitialPacket(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testSpec())
	next := &packet.RTPFields{SourceID: 1, Seqnum: 100, StreamTimestamp: 1000}
	assert.True(t, v.Validate(next))
}

func TestValidatorRejectsSourceChange(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testSpec())
	first := &packet.RTPFields{SourceID: 1, Seqnum: 100, StreamTimestamp: 1000, CaptureTimestamp: 1}
	v.Accept(first)

	next := &packet.RTPFields{SourceID: 2, Seqnum: 101, StreamTimestamp: 1010, CaptureTimestamp: 2}
	assert.False(t, v.Validate(next))
}

func TestValidatorSeqnumWrapSymmetry(t *testing.T) {
	cfg := ValidatorConfig{MaxSeqnumJump: 10, MaxTimestampJump: time.Hour}
	v := NewValidator(cfg, testSpec())
	first := &packet.RTPFields{SourceID: 1, Seqnum: 5, StreamTimestamp: 0, CaptureTimestamp: 1}
	v.Accept(first)

	// Within tolerance, wrapping backward through zero.
	within := &packet.RTPFields{SourceID: 1, Seqnum: 65533, StreamTimestamp: 0, CaptureTimestamp: 1}
	assert.True(t, v.Validate(within), "delta of -8 mod 2^16 should be accepted")

	// Outside tolerance.
	outside := &packet.RTPFields{SourceID: 1, Seqnum: 20, StreamTimestamp: 0, CaptureTimestamp: 1}
	assert.False(t, v.Validate(outside), "delta of +15 exceeds max_sn_jump=10")
}

func TestValidatorRejectsNegativeCaptureTimestamp(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testSpec())
	first := &packet.RTPFields{SourceID: 1, Seqnum: 1, CaptureTimestamp: 5}
	v.Accept(first)

	next := &packet.RTPFields{SourceID: 1, Seqnum: 2, CaptureTimestamp: -1}
	assert.False(t, v.Validate(next))
}

func TestValidatorRejectsZeroAfterNonZeroCapture(t *testing.T) {
	v := NewValidator(DefaultValidatorConfig(), testSpec())
	first := &packet.RTPFields{SourceID: 1, Seqnum: 1, CaptureTimestamp: 5}
	v.Accept(first)

	next := &packet.RTPFields{SourceID: 1, Seqnum: 2, CaptureTimestamp: 0}
	assert.False(t, v.Validate(next))
}

func TestTimestampMapperNoMappingUntilNonZeroCapture(t *testing.T) {
	m := NewTimestampMapper(testSpec())
	_, ok := m.Map(time.Now())
	assert.False(t, ok)

	base := time.Unix(100, 0)
	m.Update(base.UnixNano(), 48000)

	ts, ok := m.Map(base.Add(time.Second))
	assert.True(t, ok)
	assert.Equal(t, uint32(48000+44100), ts)
}
