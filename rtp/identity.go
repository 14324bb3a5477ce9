package rtp

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// SSRCProvider abstracts SSRC generation so tests can inject determinism
// (spec.md §4.9 "secure random SSRC").
type SSRCProvider interface {
	GenerateSSRC() (uint32, error)
}

// DefaultSSRCProvider draws a non-zero 32-bit SSRC from crypto/rand.
type DefaultSSRCProvider struct{}

// GenerateSSRC implements SSRCProvider.
func (DefaultSSRCProvider) GenerateSSRC() (uint32, error) {
	for i := 0; i < 8; i++ {
		var b [4]byte
		if _, err := rand.Read(b[:]); err != nil {
			return 0, fmt.Errorf("rtp: identity: generate ssrc: %w", err)
		}
		v := binary.BigEndian.Uint32(b[:])
		if v != 0 {
			return v, nil
		}
	}
	return 0, fmt.Errorf("rtp: identity: generate ssrc: exhausted retries drawing a non-zero value")
}

// Identity holds a session's SSRC and CNAME (spec.md §4.9): a secure
// random 32-bit non-zero SSRC, and a UUID-based CNAME that survives SSRC
// changes. ChangeSSRC is called on SSRC collision, reported via RTCP.
type Identity struct {
	ssrc     uint32
	cname    string
	provider SSRCProvider
}

// NewIdentity draws a fresh SSRC and CNAME using the default secure
// random provider.
func NewIdentity() (*Identity, error) {
	return NewIdentityWithProvider(DefaultSSRCProvider{})
}

// NewIdentityWithProvider draws a fresh SSRC and CNAME using an
// injectable SSRCProvider, for deterministic tests.
func NewIdentityWithProvider(provider SSRCProvider) (*Identity, error) {
	if provider == nil {
		provider = DefaultSSRCProvider{}
	}

	id := &Identity{cname: uuid.NewString(), provider: provider}
	if err := id.ChangeSSRC(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function": "NewIdentity",
		"ssrc":     id.ssrc,
		"cname":    id.cname,
	}).Debug("rtp identity created")

	return id, nil
}

// SSRC returns the current synchronization source identifier.
func (id *Identity) SSRC() uint32 { return id.ssrc }

// CNAME returns the canonical endpoint name, stable across SSRC changes.
func (id *Identity) CNAME() string { return id.cname }

// ChangeSSRC draws a new SSRC, keeping CNAME unchanged. Called
// deterministically on SSRC collision (spec.md §4.9).
func (id *Identity) ChangeSSRC() error {
	ssrc, err := id.provider.GenerateSSRC()
	if err != nil {
		return fmt.Errorf("rtp: identity: change ssrc: %w", err)
	}
	id.ssrc = ssrc

	logrus.WithFields(logrus.Fields{
		"function": "Identity.ChangeSSRC",
		"ssrc":     id.ssrc,
		"cname":    id.cname,
	}).Info("rtp identity ssrc changed")

	return nil
}
