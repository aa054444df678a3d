package node

import (
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/peers"
)

// Validator holds the identity of a node: its key-pair under the configured
// signature scheme, and its friendly name.
type Validator struct {
	Scheme  identity.Scheme
	Key     identity.SecretKey
	Moniker string

	pubKey identity.PublicKey
	addr   peers.Addr
}

// NewValidator derives the public key and address of a secret key.
func NewValidator(scheme identity.Scheme, key identity.SecretKey, moniker string) (*Validator, error) {
	pk, err := scheme.PublicKey(key)
	if err != nil {
		return nil, err
	}
	return &Validator{
		Scheme:  scheme,
		Key:     key,
		Moniker: moniker,
		pubKey:  pk,
		addr:    peers.AddrFromPublicKey(pk),
	}, nil
}

// PublicKey returns the validator's public key.
func (v *Validator) PublicKey() identity.PublicKey {
	return v.pubKey
}

// PublicKeyHex returns the validator's public key as a hex string.
func (v *Validator) PublicKeyHex() string {
	return v.Scheme.Display(v.pubKey)
}

// Addr returns the peer address derived from the public key.
func (v *Validator) Addr() peers.Addr {
	return v.addr
}
