// Package membership holds the set of admitted peers of a group.
//
// The Store indexes records by peer address and keeps a reverse index by
// public key. It is not safe for concurrent use: a group has exactly one
// owner goroutine and only that goroutine touches its Store.
//
// Persistence is a side concern. A Persister reads and writes snapshots of the
// key-to-address mapping, and a Checkpointer writes snapshots in the
// background so that admissions never wait on disk. Write failures are logged
// and never affect the in-memory set.
package membership
