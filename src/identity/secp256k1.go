package identity

import (
	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/crypto"
	"github.com/mosaicnetworks/turnstile/src/crypto/keys"
)

// Secp256k1 signs the SHA256 hash of messages with ECDSA over secp256k1.
// Secret keys are the 32-byte dump of the private scalar, public keys are
// uncompressed points. Compressed points are accepted by Verify.
type Secp256k1 struct{}

// NewSecp256k1 returns the secp256k1 scheme.
func NewSecp256k1() *Secp256k1 {
	return &Secp256k1{}
}

// Name implements Scheme.
func (s *Secp256k1) Name() string {
	return Secp256k1Name
}

// GenerateKey implements Scheme.
func (s *Secp256k1) GenerateKey() (PublicKey, SecretKey, error) {
	priv, err := keys.GenerateECDSAKey()
	if err != nil {
		return nil, nil, err
	}
	return keys.FromPublicKey(&priv.PublicKey), keys.DumpPrivateKey(priv), nil
}

// PublicKey implements Scheme.
func (s *Secp256k1) PublicKey(sk SecretKey) (PublicKey, error) {
	priv, err := keys.ParsePrivateKey(sk)
	if err != nil {
		return nil, err
	}
	return keys.FromPublicKey(&priv.PublicKey), nil
}

// Sign implements Scheme.
func (s *Secp256k1) Sign(sk SecretKey, msg []byte) (Signature, error) {
	priv, err := keys.ParsePrivateKey(sk)
	if err != nil {
		return nil, err
	}
	return keys.Sign(priv, crypto.SHA256(msg))
}

// Verify implements Scheme.
func (s *Secp256k1) Verify(pk PublicKey, msg []byte, sig Signature) bool {
	pub, err := keys.ToPublicKey(pk)
	if err != nil {
		return false
	}
	return keys.Verify(pub, crypto.SHA256(msg), sig)
}

// EncodePublicKey implements Scheme. Keys are normalised to the uncompressed
// form so that the two encodings of a point sign the same bytes.
func (s *Secp256k1) EncodePublicKey(pk PublicKey) []byte {
	pub, err := keys.ToPublicKey(pk)
	if err != nil {
		return []byte(pk)
	}
	return keys.FromPublicKey(pub)
}

// Display implements Scheme.
func (s *Secp256k1) Display(pk PublicKey) string {
	return common.EncodeToString(pk)
}
