// Package wire defines the byte format of join payloads.
//
// A payload is one format-version byte followed by a MessagePack array of two
// binary strings: the public key of the joining peer and the proof that backs
// it (a CA signature or a serialized certificate). Encoding is deterministic
// and decoding is strict: any payload that does not re-encode to the exact
// same bytes is rejected.
package wire

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
)

// Version is the current payload format version.
const Version byte = 0x01

var (
	// ErrEmpty is returned when decoding an empty payload.
	ErrEmpty = errors.New("empty payload")
	// ErrVersion is returned for an unknown format version.
	ErrVersion = errors.New("unsupported payload version")
	// ErrShape is returned when the body is not a canonical array of two
	// binary strings.
	ErrShape = errors.New("payload is not a [public key, proof] pair")
)

var handle = newHandle()

func newHandle() *codec.MsgpackHandle {
	mh := new(codec.MsgpackHandle)
	// WriteExt makes []byte travel as msgpack bin instead of raw str.
	mh.WriteExt = true
	mh.Canonical = true
	return mh
}

// JoinPayload is the pair presented by a peer that wants to join.
type JoinPayload struct {
	PubKey []byte
	Proof  []byte
}

// Marshal encodes the payload.
func (p JoinPayload) Marshal() ([]byte, error) {
	pair := [][]byte{nonNil(p.PubKey), nonNil(p.Proof)}

	out := []byte{Version}
	if err := codec.NewEncoderBytes(&out, handle).Encode(pair); err != nil {
		return nil, err
	}
	return out, nil
}

// UnmarshalJoinPayload decodes a payload produced by Marshal.
func UnmarshalJoinPayload(data []byte) (JoinPayload, error) {
	if len(data) == 0 {
		return JoinPayload{}, ErrEmpty
	}
	if data[0] != Version {
		return JoinPayload{}, fmt.Errorf("%w: 0x%02x", ErrVersion, data[0])
	}

	var pair [][]byte
	if err := codec.NewDecoderBytes(data[1:], handle).Decode(&pair); err != nil {
		return JoinPayload{}, fmt.Errorf("%w: %v", ErrShape, err)
	}
	if len(pair) != 2 {
		return JoinPayload{}, ErrShape
	}

	p := JoinPayload{PubKey: pair[0], Proof: pair[1]}

	canonical, err := p.Marshal()
	if err != nil {
		return JoinPayload{}, err
	}
	if !bytes.Equal(canonical, data) {
		return JoinPayload{}, ErrShape
	}

	return p, nil
}

// EncodeBytes returns the canonical serialization of a byte string, a msgpack
// bin. Issuers sign EncodeBytes(public key), never the raw key.
func EncodeBytes(b []byte) []byte {
	var out []byte
	codec.NewEncoderBytes(&out, handle).MustEncode(nonNil(b))
	return out
}

func nonNil(b []byte) []byte {
	if b == nil {
		return []byte{}
	}
	return b
}
