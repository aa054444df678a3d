package keys

import (
	"crypto/ecdsa"
	"errors"

	"github.com/btcsuite/btcd/btcec"
)

var errNilKey = errors.New("nil private key")

// Sign signs hash with the private key and returns the DER encoded signature.
// The hash is expected to be a digest of the message, not the message itself.
func Sign(priv *ecdsa.PrivateKey, hash []byte) ([]byte, error) {
	if priv == nil {
		return nil, errNilKey
	}
	sig, err := (*btcec.PrivateKey)(priv).Sign(hash)
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

// Verify reports whether sig is a valid DER encoded signature of hash by the
// owner of the private key associated with pub. Malformed signatures do not
// verify.
func Verify(pub *ecdsa.PublicKey, hash []byte, sig []byte) bool {
	if pub == nil || len(sig) == 0 {
		return false
	}
	parsed, err := btcec.ParseDERSignature(sig, btcec.S256())
	if err != nil {
		return false
	}
	return parsed.Verify(hash, (*btcec.PublicKey)(pub))
}
