package fec

import (
	"fmt"
	"math/rand"
)

// ldpcDegree is the number of source symbols each repair symbol's parity
// equation covers, besides the staircase chaining term. A small constant
// degree keeps block setup O(m) and mirrors the sparse, low-density
// property that gives LDPC codes their name.
const ldpcDegree = 4

// ldpcNeighbors deterministically derives, for a block of k source and m
// repair symbols, each repair symbol's set of source-symbol neighbors.
// Both encoder and decoder call this with identical (k, m) and therefore
// independently reconstruct the same parity-check structure without it
// ever crossing the wire (spec.md §4.3, scheme LDPCStaircase).
func ldpcNeighbors(k, m int) [][]int {
	// #nosec G404 -- deterministic structure generation, not security-sensitive randomness.
	r := rand.New(rand.NewSource(int64(k)*1000003 + int64(m)*97))
	degree := ldpcDegree
	if degree > k {
		degree = k
	}
	neighbors := make([][]int, m)
	for j := 0; j < m; j++ {
		set := make(map[int]struct{}, degree)
		for len(set) < degree {
			set[r.Intn(k)] = struct{}{}
		}
		row := make([]int, 0, degree)
		for idx := range set {
			row = append(row, idx)
		}
		neighbors[j] = row
	}
	return neighbors
}

func xorInto(dst, src []byte) {
	for i := range dst {
		dst[i] ^= src[i]
	}
}

// ldpcEncoder implements BlockEncoder for the staircase scheme: repair
// symbol j is the XOR of its source neighbors and the previous repair
// symbol (repair[-1] treated as all-zero), the "staircase" recurrence
// that gives the scheme its name.
type ldpcEncoder struct {
	k, m, symbolLen int
	neighbors       [][]int
	sources         [][]byte
	repairs         [][]byte
}

func newLDPCEncoder() *ldpcEncoder {
	return &ldpcEncoder{}
}

func (e *ldpcEncoder) BeginBlock(k, m, symbolLen int) error {
	e.k, e.m, e.symbolLen = k, m, symbolLen
	e.neighbors = ldpcNeighbors(k, m)
	e.sources = make([][]byte, k)
	e.repairs = make([][]byte, m)
	for j := range e.repairs {
		e.repairs[j] = make([]byte, symbolLen)
	}
	return nil
}

func (e *ldpcEncoder) SetBuffer(sourceIndex int, data []byte) error {
	if sourceIndex < 0 || sourceIndex >= e.k {
		return fmt.Errorf("fec: ldpc encoder: source index %d out of range [0,%d)", sourceIndex, e.k)
	}
	if len(data) < e.symbolLen {
		return fmt.Errorf("fec: ldpc encoder: %w", errShortBuffer)
	}
	e.sources[sourceIndex] = data
	return nil
}

func (e *ldpcEncoder) FillBuffers() error {
	for j := 0; j < e.m; j++ {
		out := e.repairs[j]
		for i := range out {
			out[i] = 0
		}
		for _, si := range e.neighbors[j] {
			if e.sources[si] == nil {
				return fmt.Errorf("fec: ldpc encoder: missing source symbol %d", si)
			}
			xorInto(out, e.sources[si])
		}
		if j > 0 {
			xorInto(out, e.repairs[j-1])
		}
	}
	return nil
}

func (e *ldpcEncoder) RepairPayload(repairIndex int) ([]byte, error) {
	if repairIndex < 0 || repairIndex >= e.m {
		return nil, fmt.Errorf("fec: ldpc encoder: repair index %d out of range [0,%d)", repairIndex, e.m)
	}
	return e.repairs[repairIndex], nil
}

func (e *ldpcEncoder) EndBlock() {
	e.neighbors = nil
	e.sources = nil
	e.repairs = nil
}

// ldpcDecoder recovers missing source symbols by iterative peeling over
// the staircase parity equations: an equation with exactly one unknown
// term among its source neighbors and its two repair terms can be
// solved directly by XOR, and newly solved symbols may unblock further
// equations. This converges whenever the staircase's recovery condition
// holds and is far cheaper than general Gaussian elimination for the
// sparse, chain-structured equations this scheme produces.
type ldpcDecoder struct {
	k, m, symbolLen int
	neighbors       [][]int
	symbols         [][]byte
	known           []bool
}

func newLDPCDecoder() *ldpcDecoder {
	return &ldpcDecoder{}
}

func (d *ldpcDecoder) BeginBlock(k, m, symbolLen int) error {
	d.k, d.m, d.symbolLen = k, m, symbolLen
	d.neighbors = ldpcNeighbors(k, m)
	d.symbols = make([][]byte, k+m)
	d.known = make([]bool, k+m)
	return nil
}

func (d *ldpcDecoder) SetBuffer(index int, data []byte) error {
	if index < 0 || index >= d.k+d.m {
		return fmt.Errorf("fec: ldpc decoder: index %d out of range [0,%d)", index, d.k+d.m)
	}
	if len(data) < d.symbolLen {
		return fmt.Errorf("fec: ldpc decoder: %w", errShortBuffer)
	}
	d.symbols[index] = data
	d.known[index] = true
	return nil
}

// equationTerms returns the block-wide indices participating in repair
// equation j: its source neighbors, repair j itself, and repair j-1 (the
// staircase chaining term), omitted for j==0.
func (d *ldpcDecoder) equationTerms(j int) []int {
	terms := make([]int, 0, len(d.neighbors[j])+2)
	terms = append(terms, d.neighbors[j]...)
	terms = append(terms, d.k+j)
	if j > 0 {
		terms = append(terms, d.k+j-1)
	}
	return terms
}

func (d *ldpcDecoder) solveEquation(j int) bool {
	terms := d.equationTerms(j)
	missingIdx := -1
	missingCount := 0
	for _, t := range terms {
		if !d.known[t] {
			missingCount++
			missingIdx = t
		}
	}
	if missingCount != 1 {
		return false
	}

	out := make([]byte, d.symbolLen)
	for _, t := range terms {
		if t != missingIdx {
			xorInto(out, d.symbols[t])
		}
	}
	d.symbols[missingIdx] = out
	d.known[missingIdx] = true
	return true
}

func (d *ldpcDecoder) peel() {
	for progress := true; progress; {
		progress = false
		for j := 0; j < d.m; j++ {
			if d.solveEquation(j) {
				progress = true
			}
		}
	}
}

func (d *ldpcDecoder) Repair(sourceIndex int) ([]byte, bool, error) {
	if sourceIndex < 0 || sourceIndex >= d.k {
		return nil, false, fmt.Errorf("fec: ldpc decoder: source index %d out of range [0,%d)", sourceIndex, d.k)
	}
	if d.known[sourceIndex] {
		return d.symbols[sourceIndex], true, nil
	}
	d.peel()
	if !d.known[sourceIndex] {
		return nil, false, nil
	}
	return d.symbols[sourceIndex], true, nil
}

func (d *ldpcDecoder) EndBlock() {
	d.neighbors = nil
	d.symbols = nil
	d.known = nil
}
