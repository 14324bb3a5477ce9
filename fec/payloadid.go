// Package fec implements the FEC payload-ID composer/parser (spec.md
// §4.2, §6), the polymorphic block codec (§4.3), the block writer (§4.4)
// and block reader (§4.5).
package fec

import "encoding/binary"

// PayloadIDSize is the bit-exact size of the FEC payload ID (spec.md §6):
// (encoding_symbol_id, source_block_number, source_block_length,
// block_length), each a network-byte-order uint16. Both schemes this
// package supports (Reed-Solomon and LDPC-Staircase) share this layout.
const PayloadIDSize = 8

// Position selects whether the payload ID is written as a header
// (prefix) or footer (suffix) of the payload, per spec.md §6.
type Position int

const (
	// PositionHeader places the payload ID before the audio payload.
	PositionHeader Position = iota
	// PositionFooter places the payload ID after the audio payload.
	PositionFooter
)

// payloadIDFields is the decoded form of a PayloadIDSize-byte buffer.
type payloadIDFields struct {
	EncodingSymbolID  uint16
	SourceBlockNumber uint16
	SourceBlockLength uint16
	BlockLength       uint16
}

func encodePayloadID(buf []byte, f payloadIDFields) {
	binary.BigEndian.PutUint16(buf[0:2], f.EncodingSymbolID)
	binary.BigEndian.PutUint16(buf[2:4], f.SourceBlockNumber)
	binary.BigEndian.PutUint16(buf[4:6], f.SourceBlockLength)
	binary.BigEndian.PutUint16(buf[6:8], f.BlockLength)
}

func decodePayloadID(buf []byte) payloadIDFields {
	return payloadIDFields{
		EncodingSymbolID:  binary.BigEndian.Uint16(buf[0:2]),
		SourceBlockNumber: binary.BigEndian.Uint16(buf[2:4]),
		SourceBlockLength: binary.BigEndian.Uint16(buf[4:6]),
		BlockLength:       binary.BigEndian.Uint16(buf[6:8]),
	}
}
