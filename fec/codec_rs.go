package fec

import (
	"fmt"

	"github.com/klauspost/reedsolomon"
)

// rsEncoder implements BlockEncoder using a systematic Reed-Solomon code
// over GF(2^8) (spec.md §4.3, scheme ReedSolomon). Source shards are
// shards[0:k], repair shards are shards[k:k+m]; klauspost/reedsolomon's
// Encode fills the repair shards in place from the source shards.
type rsEncoder struct {
	enc    reedsolomon.Encoder
	k, m   int
	shards [][]byte
}

func newRSEncoder() *rsEncoder {
	return &rsEncoder{}
}

func (e *rsEncoder) BeginBlock(k, m, symbolLen int) error {
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return fmt.Errorf("fec: rs encoder: %w", err)
	}
	e.enc, e.k, e.m = enc, k, m
	e.shards = make([][]byte, k+m)
	for i := k; i < k+m; i++ {
		e.shards[i] = make([]byte, symbolLen)
	}
	return nil
}

func (e *rsEncoder) SetBuffer(sourceIndex int, data []byte) error {
	if sourceIndex < 0 || sourceIndex >= e.k {
		return fmt.Errorf("fec: rs encoder: source index %d out of range [0,%d)", sourceIndex, e.k)
	}
	e.shards[sourceIndex] = data
	return nil
}

func (e *rsEncoder) FillBuffers() error {
	if err := e.enc.Encode(e.shards); err != nil {
		return fmt.Errorf("fec: rs encoder: %w", err)
	}
	return nil
}

func (e *rsEncoder) RepairPayload(repairIndex int) ([]byte, error) {
	if repairIndex < 0 || repairIndex >= e.m {
		return nil, fmt.Errorf("fec: rs encoder: repair index %d out of range [0,%d)", repairIndex, e.m)
	}
	return e.shards[e.k+repairIndex], nil
}

func (e *rsEncoder) EndBlock() {
	e.enc = nil
	e.shards = nil
}

// rsDecoder implements BlockDecoder using reedsolomon.Reconstruct: any
// k of the n=k+m shards recover the rest. Repair is attempted lazily,
// each time the caller asks for a missing source symbol, since the
// recovery condition (at least k of n present) can start false and
// become true as more symbols arrive.
type rsDecoder struct {
	enc      reedsolomon.Encoder
	k, m     int
	shards   [][]byte
	present  []bool
	repaired bool
}

func newRSDecoder() *rsDecoder {
	return &rsDecoder{}
}

func (d *rsDecoder) BeginBlock(k, m, symbolLen int) error {
	enc, err := reedsolomon.New(k, m)
	if err != nil {
		return fmt.Errorf("fec: rs decoder: %w", err)
	}
	d.enc, d.k, d.m = enc, k, m
	d.shards = make([][]byte, k+m)
	d.present = make([]bool, k+m)
	d.repaired = false
	return nil
}

func (d *rsDecoder) SetBuffer(index int, data []byte) error {
	if index < 0 || index >= d.k+d.m {
		return fmt.Errorf("fec: rs decoder: index %d out of range [0,%d)", index, d.k+d.m)
	}
	d.shards[index] = data
	d.present[index] = true
	d.repaired = false
	return nil
}

func (d *rsDecoder) Repair(sourceIndex int) ([]byte, bool, error) {
	if sourceIndex < 0 || sourceIndex >= d.k {
		return nil, false, fmt.Errorf("fec: rs decoder: source index %d out of range [0,%d)", sourceIndex, d.k)
	}
	if d.present[sourceIndex] {
		return d.shards[sourceIndex], true, nil
	}

	received := 0
	for _, ok := range d.present {
		if ok {
			received++
		}
	}
	if received < d.k {
		return nil, false, nil
	}

	if !d.repaired {
		if err := d.enc.Reconstruct(d.shards); err != nil {
			// Not enough shards to reconstruct: not an error condition
			// the caller needs to see, recovery simply did not succeed.
			return nil, false, nil
		}
		d.repaired = true
	}
	return d.shards[sourceIndex], true, nil
}

func (d *rsDecoder) EndBlock() {
	d.enc = nil
	d.shards = nil
	d.present = nil
}
