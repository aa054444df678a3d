// Package service implements a read-only HTTP API to inspect a running node:
// its stats, the members of its group, the members known to be alive, and the
// standing of any public key.
package service
