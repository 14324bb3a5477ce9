package rtcp

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestReceiveStatsTracksNoLossOnContiguousSequence(t *testing.T) {
	s := NewReceiveStats(48000)
	now := int64(0)
	for i := uint16(0); i < 10; i++ {
		s.OnPacket(i, uint32(i)*160, now)
		now += int64(160) * 1e9 / 48000
	}
	require.EqualValues(t, 0, s.CumulativeLost())
	require.EqualValues(t, 9, s.ExtendedHighestSeq())
}

func TestReceiveStatsDetectsLoss(t *testing.T) {
	s := NewReceiveStats(48000)
	s.OnPacket(0, 0, 0)
	s.OnPacket(1, 160, 1)
	// seq 2 missing
	s.OnPacket(3, 480, 2)

	require.EqualValues(t, 1, s.CumulativeLost())
	require.Greater(t, s.FractionLost(), uint8(0))
}

func TestReceiveStatsHandlesSequenceWrap(t *testing.T) {
	s := NewReceiveStats(48000)
	s.OnPacket(65534, 0, 0)
	s.OnPacket(65535, 160, 1)
	s.OnPacket(0, 320, 2)
	s.OnPacket(1, 480, 3)

	require.EqualValues(t, 1<<16+1, s.ExtendedHighestSeq())
	require.EqualValues(t, 0, s.CumulativeLost())
}

func TestReceiveStatsLastSRRequiresPriorSenderReport(t *testing.T) {
	s := NewReceiveStats(48000)
	_, _, ok := s.LastSR(100)
	require.False(t, ok)

	s.OnSenderReport(ToNTPRaw(), 50)
	_, _, ok = s.LastSR(100)
	require.True(t, ok)
}

// ToNTPRaw returns an arbitrary nonzero NTP-formatted timestamp for tests
// that only care that a sender report was observed, not its exact value.
func ToNTPRaw() uint64 { return 0x00000001_00000000 }
