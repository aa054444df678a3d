package peers

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/mosaicnetworks/turnstile/src/crypto"
)

// AddrSize is the byte length of Addr and GroupID.
const AddrSize = 32

// Addr is the network-level handle of a peer.
type Addr [AddrSize]byte

// GroupID identifies a peer group.
type GroupID [AddrSize]byte

// AddrFromPublicKey derives the default address of a public key.
func AddrFromPublicKey(pubKey []byte) Addr {
	var a Addr
	copy(a[:], crypto.SHA256(pubKey))
	return a
}

// GroupIDFromName derives a group identifier from a human readable name.
func GroupIDFromName(name string) GroupID {
	var id GroupID
	copy(id[:], crypto.SHA256([]byte(name)))
	return id
}

// ParseAddr decodes the hexadecimal form produced by Addr.Hex. A 0x prefix is
// tolerated.
func ParseAddr(s string) (Addr, error) {
	var a Addr
	err := decodeFixed(a[:], s)
	return a, err
}

// ParseGroupID decodes the hexadecimal form produced by GroupID.Hex.
func ParseGroupID(s string) (GroupID, error) {
	var id GroupID
	err := decodeFixed(id[:], s)
	return id, err
}

// Hex returns the lower-case hexadecimal form of the address.
func (a Addr) Hex() string {
	return hex.EncodeToString(a[:])
}

// String returns a short form for logs.
func (a Addr) String() string {
	return a.Hex()[:12]
}

// IsZero reports whether the address is unset.
func (a Addr) IsZero() bool {
	return a == Addr{}
}

// MarshalText implements encoding.TextMarshaler.
func (a Addr) MarshalText() ([]byte, error) {
	return []byte(a.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (a *Addr) UnmarshalText(text []byte) error {
	return decodeFixed(a[:], string(text))
}

// Hex returns the lower-case hexadecimal form of the group id.
func (id GroupID) Hex() string {
	return hex.EncodeToString(id[:])
}

// String returns a short form for logs.
func (id GroupID) String() string {
	return id.Hex()[:12]
}

// MarshalText implements encoding.TextMarshaler.
func (id GroupID) MarshalText() ([]byte, error) {
	return []byte(id.Hex()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *GroupID) UnmarshalText(text []byte) error {
	return decodeFixed(id[:], string(text))
}

func decodeFixed(dst []byte, s string) error {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	b, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	if len(b) != len(dst) {
		return fmt.Errorf("expected %d bytes, got %d", len(dst), len(b))
	}
	copy(dst, b)
	return nil
}
