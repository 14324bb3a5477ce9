package session

import (
	"fmt"
	"net"
	"sync"

	"github.com/rocwire/streamcore/packet"
	"github.com/rocwire/streamcore/status"
	"github.com/sirupsen/logrus"
)

// PacketWriter is a transport-level sink a route delivers matched packets
// to (typically an *ioudp.Conn wrapper bound to one remote address).
type PacketWriter interface {
	Write(pkt *packet.Packet) error
}

// route is one outbound routing rule: packets whose Flags carry every bit
// in mask are delivered to writer.
type route struct {
	mask   packet.Flags
	writer PacketWriter
}

// OutboundRouter dispatches composed outbound packets to the transport
// endpoint matching their flags (spec.md §4.15 "outbound router"):
// typically one route for plain audio/FEC-source packets and a second
// for FEC-repair packets, when source and repair symbols travel over
// separate endpoints. Routes are matched in registration order; the
// first whose mask is satisfied wins. A packet matching no route is a
// fatal protocol error — every outbound packet a session composes must
// have been built for a route that exists.
type OutboundRouter struct {
	mu     sync.Mutex
	routes []route
}

// NewOutboundRouter returns an empty router; AddRoute populates it.
func NewOutboundRouter() *OutboundRouter {
	return &OutboundRouter{}
}

// AddRoute registers a rule: any packet carrying every flag in mask is
// delivered to writer.
func (r *OutboundRouter) AddRoute(mask packet.Flags, writer PacketWriter) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route{mask: mask, writer: writer})
}

// Write delivers pkt to the first matching route's writer. No match is a
// fatal protocol error (status.NoRoute): the session that produced pkt
// was misconfigured, not the packet itself.
func (r *OutboundRouter) Write(pkt *packet.Packet) error {
	r.mu.Lock()
	routes := r.routes
	r.mu.Unlock()

	for _, rt := range routes {
		if pkt.Flags.Has(rt.mask) {
			if err := rt.writer.Write(pkt); err != nil {
				return fmt.Errorf("session: outbound router: %w", err)
			}
			return nil
		}
	}

	logrus.WithFields(logrus.Fields{
		"function": "OutboundRouter.Write",
		"flags":    pkt.Flags,
	}).Error("session: outbound router: no route matched packet flags")
	return status.New(status.NoRoute, "no outbound route matches flags %v", pkt.Flags)
}

// InboundPacket is what the session router dispatches: a parsed packet
// plus the remote address it arrived from, needed to key control-plane
// (no-SSRC) traffic and to seed a brand-new session.
type InboundPacket struct {
	Packet *packet.Packet
	Addr   net.Addr
}

// SessionFactory creates a new receiver session for a just-seen SSRC
// arriving from addr. Returning an error aborts admission of the packet
// that triggered creation; the packet is dropped (tier 1), not the
// router.
type SessionFactory func(ssrc uint32, addr net.Addr) (PacketSink, error)

// PacketSink is the minimal receiver-session surface the session router
// needs: somewhere to hand a packet once a session has been found or
// created for it.
type PacketSink interface {
	PushPacket(pkt *packet.Packet, addr net.Addr)
}

// SessionRouter dispatches inbound packets parsed off one UDP port to
// the receiver session they belong to, creating one on first contact
// from a new source (spec.md §4.15 "session router"). RTP/FEC packets
// are keyed by SSRC; control (RTCP) packets carry no SSRC of their own
// and are keyed by remote address instead, matching the session most
// recently created from that address (the mapping is set only when a
// session is created, not updated by later packets).
type SessionRouter struct {
	mu          sync.Mutex
	bySSRC      map[uint32]PacketSink
	byAddr      map[string]PacketSink
	maxSessions int
	factory     SessionFactory
}

// NewSessionRouter returns a router that creates sessions via factory, up
// to maxSessions concurrently. maxSessions <= 0 means unbounded.
func NewSessionRouter(maxSessions int, factory SessionFactory) *SessionRouter {
	return &SessionRouter{
		bySSRC:      make(map[uint32]PacketSink),
		byAddr:      make(map[string]PacketSink),
		maxSessions: maxSessions,
		factory:     factory,
	}
}

// Dispatch routes in to the matching session, creating one if in is the
// first audio/FEC packet seen from a new SSRC and the session count
// hasn't hit maxSessions. A control packet with no session bound to its
// address, or an audio packet that would exceed maxSessions, is dropped
// (tier 1: logged and counted by the caller, never propagated as an
// error) rather than treated as a router fault.
func (r *SessionRouter) Dispatch(in InboundPacket) {
	pkt := in.Packet

	if pkt.Flags.Has(packet.FlagControl) {
		r.mu.Lock()
		sink, ok := r.byAddr[in.Addr.String()]
		r.mu.Unlock()
		if !ok {
			logrus.WithFields(logrus.Fields{
				"function": "SessionRouter.Dispatch",
				"addr":     in.Addr.String(),
			}).Debug("session: router: control packet from unknown address dropped")
			pkt.Release()
			return
		}
		sink.PushPacket(pkt, in.Addr)
		return
	}

	if pkt.RTP == nil {
		pkt.Release()
		return
	}
	ssrc := pkt.RTP.SourceID

	r.mu.Lock()
	sink, ok := r.bySSRC[ssrc]
	if !ok {
		if r.maxSessions > 0 && len(r.bySSRC) >= r.maxSessions {
			r.mu.Unlock()
			logrus.WithFields(logrus.Fields{
				"function":     "SessionRouter.Dispatch",
				"ssrc":         ssrc,
				"max_sessions": r.maxSessions,
			}).Warn("session: router: max_sessions reached, dropping new source")
			pkt.Release()
			return
		}
		r.mu.Unlock()

		created, err := r.factory(ssrc, in.Addr)
		if err != nil {
			logrus.WithFields(logrus.Fields{
				"function": "SessionRouter.Dispatch",
				"ssrc":     ssrc,
				"error":    err.Error(),
			}).Error("session: router: session creation failed, dropping packet")
			pkt.Release()
			return
		}

		r.mu.Lock()
		r.bySSRC[ssrc] = created
		r.byAddr[in.Addr.String()] = created
		sink = created
	}
	r.mu.Unlock()

	sink.PushPacket(pkt, in.Addr)
}

// Remove unlinks the session bound to ssrc and addr, e.g. after its
// watchdog fires or the control refresh loop observes a terminal status.
func (r *SessionRouter) Remove(ssrc uint32, addr net.Addr) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.bySSRC, ssrc)
	if addr != nil {
		delete(r.byAddr, addr.String())
	}
}

// Count reports the number of sessions currently tracked by SSRC.
func (r *SessionRouter) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.bySSRC)
}
