package identity

import (
	"encoding/binary"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mosaicnetworks/turnstile/src/crypto"
)

// DefaultVerifyCacheSize is the number of verification results remembered by
// a CachedScheme when no size is given.
const DefaultVerifyCacheSize = 4096

// CachedScheme decorates a Scheme with an LRU cache of verification results.
// Joins are retried until quorum is reached, so the same certificates are
// checked over and over. Sign and key handling are passed through.
type CachedScheme struct {
	Scheme
	cache *lru.Cache[string, bool]
}

// NewCachedScheme wraps inner with a cache of size entries. A size <= 0 uses
// DefaultVerifyCacheSize.
func NewCachedScheme(inner Scheme, size int) (*CachedScheme, error) {
	if size <= 0 {
		size = DefaultVerifyCacheSize
	}
	cache, err := lru.New[string, bool](size)
	if err != nil {
		return nil, err
	}
	return &CachedScheme{
		Scheme: inner,
		cache:  cache,
	}, nil
}

// Verify implements Scheme.
func (c *CachedScheme) Verify(pk PublicKey, msg []byte, sig Signature) bool {
	key := verifyKey(pk, msg, sig)
	if ok, found := c.cache.Get(key); found {
		return ok
	}
	ok := c.Scheme.Verify(pk, msg, sig)
	c.cache.Add(key, ok)
	return ok
}

// Len returns the number of cached results.
func (c *CachedScheme) Len() int {
	return c.cache.Len()
}

// verifyKey hashes the length-prefixed triple so that distinct triples never
// collide by concatenation.
func verifyKey(pk PublicKey, msg []byte, sig Signature) string {
	buf := make([]byte, 0, 12+len(pk)+len(msg)+len(sig))
	for _, part := range [][]byte{pk, msg, sig} {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(part)))
		buf = append(buf, l[:]...)
		buf = append(buf, part...)
	}
	return string(crypto.SHA256(buf))
}
