// Package identity abstracts the signature scheme used to prove group
// membership.
//
// Keys and signatures are opaque byte slices. A Scheme knows how to produce
// and check them, and how to render a public key for logs and APIs. Every
// admission policy is written against Scheme, so any concrete scheme can be
// plugged in without touching the policies.
package identity

import (
	"bytes"
	"fmt"
)

// PublicKey is the durable identity of a peer.
type PublicKey []byte

// SecretKey never leaves the process that owns it.
type SecretKey []byte

// Signature is produced by Sign and checked by Verify.
type Signature []byte

// Equal reports whether the two keys are byte-identical.
func (pk PublicKey) Equal(other PublicKey) bool {
	return bytes.Equal(pk, other)
}

// Scheme is the signing capability required by the admission policies.
type Scheme interface {
	// Name identifies the scheme in configuration and logs.
	Name() string

	// GenerateKey creates a fresh key-pair.
	GenerateKey() (PublicKey, SecretKey, error)

	// PublicKey derives the public key of a secret key.
	PublicKey(sk SecretKey) (PublicKey, error)

	// Sign signs an arbitrary message. The scheme hashes the message itself if
	// it needs to.
	Sign(sk SecretKey, msg []byte) (Signature, error)

	// Verify reports whether sig is a valid signature of msg by pk. It never
	// panics on malformed input, it returns false.
	Verify(pk PublicKey, msg []byte, sig Signature) bool

	// EncodePublicKey returns the canonical byte form of a public key.
	EncodePublicKey(pk PublicKey) []byte

	// Display returns a human readable form of a public key.
	Display(pk PublicKey) string
}

// Scheme names accepted by FromName.
const (
	Secp256k1Name = "secp256k1"
	SchnorrName   = "schnorr"
)

// FromName returns the scheme registered under name.
func FromName(name string) (Scheme, error) {
	switch name {
	case Secp256k1Name, "":
		return NewSecp256k1(), nil
	case SchnorrName:
		return NewSchnorr(), nil
	default:
		return nil, fmt.Errorf("unknown signature scheme %q", name)
	}
}
