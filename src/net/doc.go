// Package net implements the transports used by turnstile nodes to exchange
// admission RPCs.
//
// A Transport sends requests (JoinRequest, JoinResultRequest, LeaveRequest,
// HeartbeatRequest, SyncPeersRequest) to other nodes, and exposes the
// requests it receives on a Consumer channel. Each received RPC must be
// answered exactly once with RPC.Respond. There are two implementations:
//
// - Inmem: in-memory transport used for testing
//
// - TCP: communicating over plain TCP
//
// TCP
//
// To use a TCP transport, set the following configuration options in the
// Config object (cf config package):
//
// - BindAddr: the IP:PORT of the TCP socket that the node binds to.
//
// - AdvertiseAddr: (optional) The address that is advertised to other nodes. If
// BindAddr is a local address not reachable by other peers, it is useful to
// set AdvertiseAddr to the reachable public address.
//
// Each request is a msgpack stream carrying the request kind, then the
// request. Each answer carries a header with the remote error, if any, then
// the response. Errors raised by the remote handler come back as RemoteError.
package net
