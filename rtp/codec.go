package rtp

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/rocwire/streamcore/format"
)

// Encoder converts interleaved float32 samples into on-wire payload bytes
// for one payload type's sample format (spec.md §4.2 registry).
type Encoder interface {
	// EncodedBytes returns the payload size in bytes for numSamples
	// per-channel samples.
	EncodedBytes(numSamples int) int
	// Encode writes len(samples) interleaved samples into out, which
	// must be exactly EncodedBytes(len(samples)/numChannels) long.
	Encode(out []byte, samples []float32) error
}

// Decoder is the inverse of Encoder.
type Decoder interface {
	// Decode converts a wire payload into interleaved float32 samples.
	Decode(payload []byte) ([]float32, error)
}

// pcmCodec implements Encoder/Decoder for signed/unsigned integer PCM of
// a given bit width and byte order, plus the float32-native format.
type pcmCodec struct {
	spec format.SampleSpec
}

func newPCMCodec(spec format.SampleSpec) *pcmCodec {
	return &pcmCodec{spec: spec}
}

func (c *pcmCodec) EncodedBytes(numSamples int) int {
	return numSamples * c.spec.NumChannels * c.spec.BytesPerSample()
}

func (c *pcmCodec) Encode(out []byte, samples []float32) error {
	want := len(samples) * c.spec.BytesPerSample()
	if len(out) != want {
		return fmt.Errorf("rtp: codec encode: out buffer is %d bytes, want %d", len(out), want)
	}

	switch c.spec.Format {
	case format.SampleFormatFloat32:
		for i, s := range samples {
			bits := math.Float32bits(s)
			putUint32(out[i*4:i*4+4], bits, c.spec.Order)
		}
	case format.SampleFormatPCMSigned:
		return c.encodeSigned(out, samples)
	case format.SampleFormatPCMUnsigned:
		return c.encodeUnsigned(out, samples)
	default:
		return fmt.Errorf("rtp: codec encode: unsupported sample format %d", c.spec.Format)
	}
	return nil
}

func (c *pcmCodec) encodeSigned(out []byte, samples []float32) error {
	bw := c.spec.BitWidth
	bps := bw / 8
	maxVal := float64(int64(1)<<(bw-1)) - 1
	for i, s := range samples {
		v := int64(math.Round(float64(s) * maxVal))
		if v > int64(maxVal) {
			v = int64(maxVal)
		}
		if v < -int64(maxVal)-1 {
			v = -int64(maxVal) - 1
		}
		putSigned(out[i*bps:(i+1)*bps], v, bps, c.spec.Order)
	}
	return nil
}

func (c *pcmCodec) encodeUnsigned(out []byte, samples []float32) error {
	bw := c.spec.BitWidth
	bps := bw / 8
	half := float64(int64(1) << (bw - 1))
	maxU := uint64(1)<<bw - 1
	for i, s := range samples {
		v := int64(math.Round(float64(s)*half)) + int64(half)
		if v < 0 {
			v = 0
		}
		if uint64(v) > maxU {
			v = int64(maxU)
		}
		putUnsigned(out[i*bps:(i+1)*bps], uint64(v), bps, c.spec.Order)
	}
	return nil
}

func (c *pcmCodec) Decode(payload []byte) ([]float32, error) {
	bps := c.spec.BytesPerSample()
	if bps == 0 || len(payload)%bps != 0 {
		return nil, fmt.Errorf("rtp: codec decode: payload length %d not a multiple of sample size %d", len(payload), bps)
	}
	n := len(payload) / bps
	out := make([]float32, n)

	switch c.spec.Format {
	case format.SampleFormatFloat32:
		for i := 0; i < n; i++ {
			bits := getUint32(payload[i*4:i*4+4], c.spec.Order)
			out[i] = math.Float32frombits(bits)
		}
	case format.SampleFormatPCMSigned:
		bw := c.spec.BitWidth
		maxVal := float64(int64(1)<<(bw-1)) - 1
		for i := 0; i < n; i++ {
			v := getSigned(payload[i*bps:(i+1)*bps], bps, c.spec.Order)
			out[i] = float32(float64(v) / maxVal)
		}
	case format.SampleFormatPCMUnsigned:
		bw := c.spec.BitWidth
		half := float64(int64(1) << (bw - 1))
		for i := 0; i < n; i++ {
			v := getUnsigned(payload[i*bps:(i+1)*bps], bps, c.spec.Order)
			out[i] = float32((float64(v) - half) / half)
		}
	default:
		return nil, fmt.Errorf("rtp: codec decode: unsupported sample format %d", c.spec.Format)
	}
	return out, nil
}

func putUint32(b []byte, v uint32, order format.ByteOrder) {
	if order == format.ByteOrderBig {
		binary.BigEndian.PutUint32(b, v)
	} else {
		binary.LittleEndian.PutUint32(b, v)
	}
}

func getUint32(b []byte, order format.ByteOrder) uint32 {
	if order == format.ByteOrderBig {
		return binary.BigEndian.Uint32(b)
	}
	return binary.LittleEndian.Uint32(b)
}

func putSigned(b []byte, v int64, bps int, order format.ByteOrder) {
	putUnsigned(b, uint64(v)&mask(bps), bps, order)
}

func getSigned(b []byte, bps int, order format.ByteOrder) int64 {
	u := getUnsigned(b, bps, order)
	bits := uint(bps * 8)
	signBit := uint64(1) << (bits - 1)
	if u&signBit != 0 {
		return int64(u) - int64(uint64(1)<<bits)
	}
	return int64(u)
}

func putUnsigned(b []byte, v uint64, bps int, order format.ByteOrder) {
	for i := 0; i < bps; i++ {
		shift := uint(i * 8)
		byteVal := byte(v >> shift)
		if order == format.ByteOrderBig {
			b[bps-1-i] = byteVal
		} else {
			b[i] = byteVal
		}
	}
}

func getUnsigned(b []byte, bps int, order format.ByteOrder) uint64 {
	var v uint64
	for i := 0; i < bps; i++ {
		var byteVal byte
		if order == format.ByteOrderBig {
			byteVal = b[bps-1-i]
		} else {
			byteVal = b[i]
		}
		v |= uint64(byteVal) << uint(i*8)
	}
	return v
}

func mask(bps int) uint64 {
	if bps >= 8 {
		return ^uint64(0)
	}
	return uint64(1)<<(uint(bps)*8) - 1
}
