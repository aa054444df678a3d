// Package peers defines the identifiers used to address peers and groups, and
// the peers.json file a node reads on startup.
//
// A peer is known under two names. Its public key is the durable identity that
// admission policies reason about. Its address (Addr) is the routing handle
// used by the transport layer, and the unit by which membership tables are
// indexed. The two are distinct: a peer may come back under a new address
// with the same key. AddrFromPublicKey derives the default address of a key.
//
// A group is identified by a GroupID, usually derived from a human readable
// name with GroupIDFromName.
//
// Upon starting up, a node looks for a peers.json file in its data directory.
// It lists the peers the node should know from the start: in vote-based
// groups they seed the membership directly, and for every policy they are the
// candidates the node tries to join through.
package peers
