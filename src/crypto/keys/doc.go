// Package keys implements the secp256k1 public key cryptography used by the
// default identity scheme.
//
// Every peer owns a key-pair. The private key never leaves the process, the
// public key is the durable identity of a group member. A certificate
// authority, or an existing member in vote-based groups, uses its private key
// to sign the serialized public key of a candidate, and any other member can
// check that signature with the issuer's public key.
//
// Signatures are DER encoded and always computed over the SHA256 hash of the
// message.
package keys
