// Package crypto holds the hash used to derive peer addresses and group
// identifiers. Signature keys live in the keys sub-package.
package crypto

import (
	"crypto/sha256"
)

// SHA256 returns the SHA256 hash of the data.
func SHA256(data []byte) []byte {
	hasher := sha256.New()
	hasher.Write(data)
	hash := hasher.Sum(nil)
	return hash
}
