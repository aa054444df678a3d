package identity

import (
	"github.com/mosaicnetworks/turnstile/src/common"
	"go.dedis.ch/kyber/v4"
	"go.dedis.ch/kyber/v4/group/edwards25519"
	"go.dedis.ch/kyber/v4/sign/schnorr"
)

// Schnorr signs with Schnorr signatures over the Ed25519 curve. Keys are the
// 32-byte binary encodings of the kyber scalar and point.
type Schnorr struct {
	suite *edwards25519.SuiteEd25519
}

// NewSchnorr returns the Schnorr scheme.
func NewSchnorr() *Schnorr {
	return &Schnorr{
		suite: edwards25519.NewBlakeSHA256Ed25519(),
	}
}

// Name implements Scheme.
func (s *Schnorr) Name() string {
	return SchnorrName
}

// GenerateKey implements Scheme.
func (s *Schnorr) GenerateKey() (PublicKey, SecretKey, error) {
	secret := s.suite.Scalar().Pick(s.suite.RandomStream())
	public := s.suite.Point().Mul(secret, nil)

	sk, err := secret.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	pk, err := public.MarshalBinary()
	if err != nil {
		return nil, nil, err
	}
	return pk, sk, nil
}

// PublicKey implements Scheme.
func (s *Schnorr) PublicKey(sk SecretKey) (PublicKey, error) {
	secret, err := s.scalar(sk)
	if err != nil {
		return nil, err
	}
	return s.suite.Point().Mul(secret, nil).MarshalBinary()
}

// Sign implements Scheme.
func (s *Schnorr) Sign(sk SecretKey, msg []byte) (Signature, error) {
	secret, err := s.scalar(sk)
	if err != nil {
		return nil, err
	}
	return schnorr.Sign(s.suite, secret, msg)
}

// Verify implements Scheme.
func (s *Schnorr) Verify(pk PublicKey, msg []byte, sig Signature) bool {
	public := s.suite.Point()
	if err := public.UnmarshalBinary(pk); err != nil {
		return false
	}
	return schnorr.Verify(s.suite, public, msg, sig) == nil
}

// EncodePublicKey implements Scheme. Ed25519 points have a single encoding.
func (s *Schnorr) EncodePublicKey(pk PublicKey) []byte {
	return []byte(pk)
}

// Display implements Scheme.
func (s *Schnorr) Display(pk PublicKey) string {
	return common.EncodeToString(pk)
}

func (s *Schnorr) scalar(sk SecretKey) (kyber.Scalar, error) {
	secret := s.suite.Scalar()
	if err := secret.UnmarshalBinary(sk); err != nil {
		return nil, err
	}
	return secret, nil
}
