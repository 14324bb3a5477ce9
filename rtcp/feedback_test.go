package rtcp

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFeedbackMonitorRecordsSenderReportAndBuildsReceiverBlock(t *testing.T) {
	m := NewFeedbackMonitor(48000)
	now := time.Unix(1700000000, 0)

	m.OnPacket(0xabc, 1, 160, now)
	m.OnPacket(0xabc, 2, 320, now.Add(time.Millisecond))

	buf, err := BuildSenderReport(SenderInfo{SSRC: 0xabc, NTPTime: ToNTP(now), RTPTime: 320, PacketCount: 2, OctetCount: 640}, "sender-cname", nil)
	require.NoError(t, err)

	parsed, err := m.OnCompoundPacket(buf, now.Add(2*time.Millisecond))
	require.NoError(t, err)
	require.Len(t, parsed.SenderInfos, 1)

	info, ok := m.LastSenderInfo(0xabc)
	require.True(t, ok)
	require.Equal(t, uint32(320), info.RTPTime)

	block := m.BuildReceiverBlock(0xabc, now.Add(3*time.Millisecond))
	require.Equal(t, uint32(0xabc), block.SSRC)
	require.NotZero(t, block.LastSR)
}

func TestFeedbackMonitorForgetDropsState(t *testing.T) {
	m := NewFeedbackMonitor(48000)
	m.OnPacket(0xdef, 1, 0, time.Now())
	require.Contains(t, m.stats, uint32(0xdef))

	m.Forget(0xdef)
	require.NotContains(t, m.stats, uint32(0xdef))
	_, ok := m.LastSenderInfo(0xdef)
	require.False(t, ok)
}
