package vote

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/wire"
	"github.com/ugorji/go/codec"
)

// ErrMalformedCertificate is returned when certificate bytes cannot be
// decoded.
var ErrMalformedCertificate = errors.New("malformed certificate")

// Certificate is the endorsement of PubKey by CA: Proof is CA's signature over
// the canonical serialization of PubKey. In a vote group every certificate
// issued by a current member counts as one vote.
type Certificate struct {
	_struct struct{} `codec:",toarray"`

	PubKey identity.PublicKey
	CA     identity.PublicKey
	Proof  identity.Signature
}

// NewCertificate assembles a certificate from its parts.
func NewCertificate(pk identity.PublicKey, ca identity.PublicKey, proof identity.Signature) *Certificate {
	return &Certificate{
		PubKey: pk,
		CA:     ca,
		Proof:  proof,
	}
}

// Issue signs pk with the secret key of ca.
func Issue(scheme identity.Scheme, caSK identity.SecretKey, ca identity.PublicKey, pk identity.PublicKey) (*Certificate, error) {
	proof, err := scheme.Sign(caSK, wire.EncodeBytes(scheme.EncodePublicKey(pk)))
	if err != nil {
		return nil, err
	}
	return NewCertificate(pk, ca, proof), nil
}

// SelfCertificate issues a certificate of pk by itself. Founders of a group
// use it; it never counts as a vote in someone else's group.
func SelfCertificate(scheme identity.Scheme, sk identity.SecretKey, pk identity.PublicKey) (*Certificate, error) {
	return Issue(scheme, sk, pk, pk)
}

// Verify checks the signature of the certificate. It says nothing about
// whether CA is a member of any group.
func (c *Certificate) Verify(scheme identity.Scheme) bool {
	if c == nil || len(c.PubKey) == 0 || len(c.CA) == 0 {
		return false
	}
	return scheme.Verify(c.CA, wire.EncodeBytes(scheme.EncodePublicKey(c.PubKey)), c.Proof)
}

func certificateHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	mh.WriteExt = true
	return mh
}

// Marshal returns the binary form of the certificate, a msgpack array of
// three bins.
func (c *Certificate) Marshal() ([]byte, error) {
	var out []byte
	enc := codec.NewEncoderBytes(&out, certificateHandle())
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	return out, nil
}

// UnmarshalCertificate decodes the output of Marshal. Every field must be
// present and the bytes must be canonical.
func UnmarshalCertificate(data []byte) (*Certificate, error) {
	c := new(Certificate)
	dec := codec.NewDecoderBytes(data, certificateHandle())
	if err := dec.Decode(c); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
	}
	if len(c.PubKey) == 0 || len(c.CA) == 0 || len(c.Proof) == 0 {
		return nil, ErrMalformedCertificate
	}

	canonical, err := c.Marshal()
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(canonical, data) {
		return nil, ErrMalformedCertificate
	}

	return c, nil
}

// certificateString is the copy-paste friendly form of a certificate.
type certificateString struct {
	PK  string `codec:"pk" json:"pk"`
	CA  string `codec:"ca" json:"ca"`
	PKC string `codec:"pkc" json:"pkc"`
}

// ToJSON returns the certificate as a JSON object of hex strings.
func (c *Certificate) ToJSON() (string, error) {
	cs := certificateString{
		PK:  common.EncodeToString(c.PubKey),
		CA:  common.EncodeToString(c.CA),
		PKC: common.EncodeToString(c.Proof),
	}

	var out []byte
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	if err := codec.NewEncoderBytes(&out, jh).Encode(cs); err != nil {
		return "", err
	}
	return string(out), nil
}

// CertificateFromJSON parses the output of ToJSON.
func CertificateFromJSON(s string) (*Certificate, error) {
	var cs certificateString
	jh := new(codec.JsonHandle)
	if err := codec.NewDecoderBytes([]byte(s), jh).Decode(&cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedCertificate, err)
	}

	pk, err := common.DecodeFromString(cs.PK)
	if err != nil {
		return nil, fmt.Errorf("pk: %w", err)
	}
	ca, err := common.DecodeFromString(cs.CA)
	if err != nil {
		return nil, fmt.Errorf("ca: %w", err)
	}
	proof, err := common.DecodeFromString(cs.PKC)
	if err != nil {
		return nil, fmt.Errorf("pkc: %w", err)
	}
	if len(pk) == 0 || len(ca) == 0 || len(proof) == 0 {
		return nil, ErrMalformedCertificate
	}

	return NewCertificate(pk, ca, proof), nil
}
