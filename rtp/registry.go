package rtp

import (
	"fmt"
	"sync"

	"github.com/rocwire/streamcore/format"
)

// EncoderCtor builds an Encoder for an entry's sample spec.
type EncoderCtor func(spec format.SampleSpec) Encoder

// DecoderCtor builds a Decoder for an entry's sample spec.
type DecoderCtor func(spec format.SampleSpec) Decoder

// EntryFlags are per-payload-type hints the registry carries alongside
// the codec constructors.
type EntryFlags int

const (
	// FlagNone marks a plain PCM entry.
	FlagNone EntryFlags = 0
	// FlagVariableBitrate marks a codec whose encoded size cannot be
	// computed from the sample count alone. Spec.md's payload model
	// requires fixed-size payloads (Non-goals: "variable-size frames at
	// the transport layer"), so no built-in entry sets this; it exists
	// for embedder-registered codec entries to document the limitation.
	FlagVariableBitrate EntryFlags = 1 << iota
)

// Entry is one row of the payload-type registry (spec.md §4.2):
// payload_type -> (sample_spec, encoder_ctor, decoder_ctor, flags).
type Entry struct {
	PayloadType uint8
	SampleSpec  format.SampleSpec
	NewEncoder  EncoderCtor
	NewDecoder  DecoderCtor
	Flags       EntryFlags
}

// Registry maps payload types to codec entries. Lookup takes the mutex
// until Freeze has been called and reads without it afterwards; nothing
// in this module calls Freeze, so that is left to the embedder.
type Registry struct {
	mu      sync.Mutex
	entries map[uint8]Entry
	frozen  bool
}

// NewRegistry returns a Registry pre-populated with the built-in PCM
// entries: PT 10 -> L16 stereo 44.1kHz, PT 11 -> L16 mono 44.1kHz
// (spec.md §4.2).
func NewRegistry() *Registry {
	r := &Registry{entries: make(map[uint8]Entry)}

	stereo := format.SampleSpec{
		SampleRate: 44100, Layout: format.ChannelLayoutStereo, NumChannels: 2,
		Format: format.SampleFormatPCMSigned, BitWidth: 16, Order: format.ByteOrderBig,
	}
	mono := format.SampleSpec{
		SampleRate: 44100, Layout: format.ChannelLayoutMono, NumChannels: 1,
		Format: format.SampleFormatPCMSigned, BitWidth: 16, Order: format.ByteOrderBig,
	}

	// Errors are impossible here: the built-in specs are always valid.
	_ = r.Register(Entry{PayloadType: 10, SampleSpec: stereo, NewEncoder: pcmEncoderCtor, NewDecoder: pcmDecoderCtor})
	_ = r.Register(Entry{PayloadType: 11, SampleSpec: mono, NewEncoder: pcmEncoderCtor, NewDecoder: pcmDecoderCtor})

	return r
}

func pcmEncoderCtor(spec format.SampleSpec) Encoder { return newPCMCodec(spec) }
func pcmDecoderCtor(spec format.SampleSpec) Decoder { return newPCMCodec(spec) }

// Register adds or replaces an entry. Embedders call this at session
// construction time to add PCM-variant or codec entries beyond the
// built-ins (spec.md §4.2 "additional ... entries may be registered by
// the embedder"). Register after Freeze returns an error.
func (r *Registry) Register(e Entry) error {
	if err := e.SampleSpec.Validate(); err != nil {
		return fmt.Errorf("rtp: registry: invalid sample spec for payload type %d: %w", e.PayloadType, err)
	}
	if e.NewEncoder == nil || e.NewDecoder == nil {
		return fmt.Errorf("rtp: registry: payload type %d missing encoder/decoder constructor", e.PayloadType)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.frozen {
		return fmt.Errorf("rtp: registry: cannot register payload type %d after freeze", e.PayloadType)
	}
	r.entries[e.PayloadType] = e
	return nil
}

// Freeze stops further registration, so later Lookup calls need no
// locking. The session constructors do not call it.
func (r *Registry) Freeze() {
	r.mu.Lock()
	r.frozen = true
	r.mu.Unlock()
}

// Lookup returns the entry for pt, or ok=false if unregistered. Safe for
// concurrent use without locking once Freeze has been called.
func (r *Registry) Lookup(pt uint8) (Entry, bool) {
	if r.frozen {
		e, ok := r.entries[pt]
		return e, ok
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entries[pt]
	return e, ok
}
