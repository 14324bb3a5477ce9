package fec

import (
	"fmt"

	"github.com/rocwire/streamcore/packet"
)

// NewBlockEncoder returns a fresh BlockEncoder for scheme.
func NewBlockEncoder(scheme packet.SchemeID) (BlockEncoder, error) {
	switch scheme {
	case packet.SchemeReedSolomon:
		return newRSEncoder(), nil
	case packet.SchemeLDPCStaircase:
		return newLDPCEncoder(), nil
	default:
		return nil, fmt.Errorf("fec: unknown scheme %v", scheme)
	}
}

// NewBlockDecoder returns a fresh BlockDecoder for scheme.
func NewBlockDecoder(scheme packet.SchemeID) (BlockDecoder, error) {
	switch scheme {
	case packet.SchemeReedSolomon:
		return newRSDecoder(), nil
	case packet.SchemeLDPCStaircase:
		return newLDPCDecoder(), nil
	default:
		return nil, fmt.Errorf("fec: unknown scheme %v", scheme)
	}
}
