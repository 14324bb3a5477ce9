// Package packet defines the tagged-union packet model shared by the RTP,
// FEC, and transport layers (spec.md §3 "Packet"). A Packet owns its
// sub-record tags exclusively but shares the underlying pool-allocated
// byte slice with every other component holding a reference to it.
package packet

import (
	"net"
	"time"

	"github.com/rocwire/streamcore/pool"
)

// Flags is a combinable bitmask tagging what a Packet carries.
type Flags uint16

const (
	// FlagAudio marks a packet as carrying audio payload (as opposed to
	// pure control data).
	FlagAudio Flags = 1 << iota
	// FlagRepair marks a packet as an FEC repair symbol.
	FlagRepair
	// FlagFEC marks a packet as participating in FEC framing (source or
	// repair); combined with FlagAudio for FEC-protected source packets.
	FlagFEC
	// FlagControl marks an RTCP packet.
	FlagControl
	// FlagUDP marks a packet that has been read from, or is destined to,
	// a UDP socket and carries UDP-level fields.
	FlagUDP
	// FlagPrepared marks a packet whose byte slice has been aligned and
	// sized by a composer's Prepare step but not yet finalized.
	FlagPrepared
	// FlagRTP marks a packet carrying an RTP header.
	FlagRTP
	// FlagRecovered marks a packet reconstructed by an FEC decoder rather
	// than received off the wire.
	FlagRecovered
)

// Has reports whether all bits in mask are set.
func (f Flags) Has(mask Flags) bool { return f&mask == mask }

// Any reports whether any bit in mask is set.
func (f Flags) Any(mask Flags) bool { return f&mask != 0 }

// RTPFields mirrors the RTP sub-record of spec.md §3.
type RTPFields struct {
	SourceID        uint32
	Seqnum          uint16
	StreamTimestamp uint32
	Duration        time.Duration
	PayloadType     uint8
	Marker          bool
	// CaptureTimestamp is signed nanoseconds since the Unix epoch. It is
	// signed so validators can reject negative values explicitly
	// (spec.md §4.10) rather than relying on unsigned wraparound.
	CaptureTimestamp int64
	// Payload is a view into the packet's backing slice: Payload's
	// backing array is always a subslice of Packet.Slice().Bytes().
	Payload []byte
}

// SchemeID identifies an FEC erasure-coding scheme (spec.md §4.3).
type SchemeID int

const (
	// SchemeReedSolomon is Reed-Solomon GF(2^8).
	SchemeReedSolomon SchemeID = iota
	// SchemeLDPCStaircase is LDPC-Staircase.
	SchemeLDPCStaircase
)

func (s SchemeID) String() string {
	switch s {
	case SchemeReedSolomon:
		return "rs8m"
	case SchemeLDPCStaircase:
		return "ldpc-staircase"
	default:
		return "unknown-scheme"
	}
}

// FECFields mirrors the FEC sub-record of spec.md §3.
type FECFields struct {
	Scheme            SchemeID
	PayloadID         []byte
	Payload           []byte
	EncodingSymbolID  uint16
	SourceBlockNumber uint16
	SourceBlockLength uint16 // K
	BlockLength       uint16 // N = K+M
}

// UDPFields mirrors the UDP sub-record of spec.md §3.
type UDPFields struct {
	SrcAddr        net.Addr
	DstAddr        net.Addr
	QueueTimestamp time.Time
}

// Packet is a tagged union over a pool-owned byte slice. A Packet
// exclusively owns its sub-record tags, but the underlying slice may be
// shared with other components (spec.md §3 "Ownership"): calling Ref
// shares it, Release drops this Packet's hold.
type Packet struct {
	Flags Flags

	slice *pool.Slice

	RTP *RTPFields
	FEC *FECFields
	UDP *UDPFields

	composed bool
}

// New creates an empty Packet backed by slice. slice may be nil for
// synthetic packets constructed directly in memory (tests, or packets
// that never touch the wire).
func New(flags Flags, slice *pool.Slice) *Packet {
	return &Packet{Flags: flags, slice: slice}
}

// Slice returns the packet's backing pool slice, or nil if it has none.
func (p *Packet) Slice() *pool.Slice { return p.slice }

// Ref returns a new Packet sharing the same backing slice (with its
// refcount bumped) and a shallow copy of the sub-record tags. Used when a
// component (e.g. the FEC reader) must hold a packet across a block
// boundary while also forwarding it downstream.
func (p *Packet) Ref() *Packet {
	clone := &Packet{Flags: p.Flags, composed: p.composed}
	if p.slice != nil {
		clone.slice = p.slice.Ref()
	}
	if p.RTP != nil {
		rtp := *p.RTP
		clone.RTP = &rtp
	}
	if p.FEC != nil {
		fec := *p.FEC
		clone.FEC = &fec
	}
	if p.UDP != nil {
		udp := *p.UDP
		clone.UDP = &udp
	}
	return clone
}

// Release drops this Packet's hold on its backing slice. After Release
// the Packet must not be used.
func (p *Packet) Release() {
	if p.slice != nil {
		p.slice.Release()
	}
}

// Composed reports whether Compose has been called and the packet's bytes
// are finalized (spec.md §4.2 "once composed the packet is immutable").
func (p *Packet) Composed() bool { return p.composed }

// MarkComposed is called by composers once they have finalized the
// packet's bytes.
func (p *Packet) MarkComposed() { p.composed = true }
