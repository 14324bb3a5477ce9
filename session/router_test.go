package session

import (
	"net"
	"testing"

	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/status"
	"github.com/stretchr/testify/require"
)

type recordingWriter struct {
	got []*packet.Packet
	err error
}

func (w *recordingWriter) Write(pkt *packet.Packet) error {
	if w.err != nil {
		return w.err
	}
	w.got = append(w.got, pkt)
	return nil
}

func TestOutboundRouterDeliversFirstMatchingRoute(t *testing.T) {
	audio, repair := &recordingWriter{}, &recordingWriter{}
	r := NewOutboundRouter()
	r.AddRoute(packet.FlagRepair, repair)
	r.AddRoute(packet.FlagAudio, audio)

	source := packet.New(packet.FlagAudio, nil)
	require.NoError(t, r.Write(source))
	require.Len(t, audio.got, 1)
	require.Empty(t, repair.got)

	rep := packet.New(packet.FlagAudio|packet.FlagRepair, nil)
	require.NoError(t, r.Write(rep))
	require.Len(t, repair.got, 1)
}

func TestOutboundRouterReturnsNoRouteWhenUnmatched(t *testing.T) {
	r := NewOutboundRouter()
	r.AddRoute(packet.FlagRepair, &recordingWriter{})

	pkt := packet.New(packet.FlagAudio, nil)
	err := r.Write(pkt)
	require.Error(t, err)
	require.Equal(t, status.NoRoute, status.CodeOf(err))
}

type stubAddr string

func (a stubAddr) Network() string { return "test" }
func (a stubAddr) String() string  { return string(a) }

type recordingSink struct {
	got []*packet.Packet
}

func (s *recordingSink) PushPacket(pkt *packet.Packet, addr net.Addr) {
	s.got = append(s.got, pkt)
}

func TestSessionRouterCreatesSessionOnFirstAudioPacket(t *testing.T) {
	created := 0
	factory := func(ssrc uint32, addr net.Addr) (PacketSink, error) {
		created++
		return &recordingSink{}, nil
	}
	r := NewSessionRouter(0, factory)

	pkt := packet.New(packet.FlagAudio, nil)
	pkt.RTP = &packet.RTPFields{SourceID: 42}
	r.Dispatch(InboundPacket{Packet: pkt, Addr: stubAddr("1.2.3.4:5")})

	require.Equal(t, 1, created)
	require.Equal(t, 1, r.Count())

	pkt2 := packet.New(packet.FlagAudio, nil)
	pkt2.RTP = &packet.RTPFields{SourceID: 42}
	r.Dispatch(InboundPacket{Packet: pkt2, Addr: stubAddr("1.2.3.4:5")})
	require.Equal(t, 1, created, "second packet from the same SSRC reuses the existing session")
}

func TestSessionRouterDropsNewSourceBeyondMaxSessions(t *testing.T) {
	factory := func(ssrc uint32, addr net.Addr) (PacketSink, error) {
		return &recordingSink{}, nil
	}
	r := NewSessionRouter(1, factory)

	first := packet.New(packet.FlagAudio, nil)
	first.RTP = &packet.RTPFields{SourceID: 1}
	r.Dispatch(InboundPacket{Packet: first, Addr: stubAddr("a")})

	second := packet.New(packet.FlagAudio, nil)
	second.RTP = &packet.RTPFields{SourceID: 2}
	r.Dispatch(InboundPacket{Packet: second, Addr: stubAddr("b")})

	require.Equal(t, 1, r.Count())
}

func TestSessionRouterDropsControlPacketFromUnknownAddress(t *testing.T) {
	r := NewSessionRouter(0, func(ssrc uint32, addr net.Addr) (PacketSink, error) {
		return &recordingSink{}, nil
	})

	pkt := packet.New(packet.FlagControl, nil)
	r.Dispatch(InboundPacket{Packet: pkt, Addr: stubAddr("nobody")})
	require.Equal(t, 0, r.Count())
}

func TestSessionRouterRoutesControlPacketToSessionByAddress(t *testing.T) {
	var sink *recordingSink
	r := NewSessionRouter(0, func(ssrc uint32, addr net.Addr) (PacketSink, error) {
		sink = &recordingSink{}
		return sink, nil
	})

	audioPkt := packet.New(packet.FlagAudio, nil)
	audioPkt.RTP = &packet.RTPFields{SourceID: 7}
	r.Dispatch(InboundPacket{Packet: audioPkt, Addr: stubAddr("1.1.1.1:9")})

	ctrl := packet.New(packet.FlagControl, nil)
	r.Dispatch(InboundPacket{Packet: ctrl, Addr: stubAddr("1.1.1.1:9")})

	require.Len(t, sink.got, 2)
}

func TestSessionRouterRemoveUnlinksBothIndices(t *testing.T) {
	r := NewSessionRouter(0, func(ssrc uint32, addr net.Addr) (PacketSink, error) {
		return &recordingSink{}, nil
	})
	pkt := packet.New(packet.FlagAudio, nil)
	pkt.RTP = &packet.RTPFields{SourceID: 9}
	r.Dispatch(InboundPacket{Packet: pkt, Addr: stubAddr("x")})
	require.Equal(t, 1, r.Count())

	r.Remove(9, stubAddr("x"))
	require.Equal(t, 0, r.Count())
}
