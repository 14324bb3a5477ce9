package fec

import "fmt"

// BlockEncoder computes M repair symbols from K source symbols
// (spec.md §4.3). The sequence is always: BeginBlock, SetBuffer for each
// source index, FillBuffers, RepairPayload for each repair index,
// EndBlock.
type BlockEncoder interface {
	BeginBlock(k, m, symbolLen int) error
	SetBuffer(sourceIndex int, data []byte) error
	FillBuffers() error
	RepairPayload(repairIndex int) ([]byte, error)
	EndBlock()
}

// BlockDecoder is the dual of BlockEncoder: it accepts any subset of the
// N symbols of a block and attempts to recover a missing source symbol
// on request. Recovery success depends on the scheme's recovery
// condition (spec.md §4.3); failure returns ok=false, not an error.
type BlockDecoder interface {
	BeginBlock(k, m, symbolLen int) error
	// SetBuffer records a received symbol at its block-wide index
	// (source indices [0,k), repair indices [k,k+m)).
	SetBuffer(index int, data []byte) error
	// Repair attempts to recover source symbol sourceIndex. ok is false
	// (not an error) when the scheme's recovery condition does not hold
	// yet.
	Repair(sourceIndex int) (data []byte, ok bool, err error)
	EndBlock()
}

// errShortBuffer is returned (wrapped) by the LDPC encoder's and
// decoder's SetBuffer when a buffer shorter than the block's declared
// symbol length is supplied. The short buffer is not recorded, but the
// block is not aborted and no other block state is reset. The
// Reed-Solomon codec never returns it: its SetBuffer does not check
// buffer length.
var errShortBuffer = fmt.Errorf("fec: codec: buffer shorter than block symbol length")
