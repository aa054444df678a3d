package net

import (
	"github.com/mosaicnetworks/turnstile/src/peers"
)

// JoinRequest asks the receiving node to admit FromAddr into GroupID. Payload
// is the join payload of the requester's policy.
type JoinRequest struct {
	FromAddr   peers.Addr
	GroupID    peers.GroupID
	SocketAddr string
	Payload    []byte
}

// JoinResponse carries the verdict on a JoinRequest. On acceptance, Payload is
// the responder's own join payload so that the requester can validate it in
// turn; on rejection it is the reason code.
type JoinResponse struct {
	FromAddr  peers.Addr
	Accepted  bool
	NeedRetry bool
	Payload   []byte
}

// JoinResultRequest tells the node that accepted us whether we accepted it
// back. A negative result makes it undo our admission.
type JoinResultRequest struct {
	FromAddr peers.Addr
	GroupID  peers.GroupID
	Accepted bool
	Payload  []byte
}

// JoinResultResponse acknowledges a JoinResultRequest.
type JoinResultResponse struct {
	FromAddr peers.Addr
	Success  bool
}

// LeaveRequest announces that FromAddr leaves the group.
type LeaveRequest struct {
	FromAddr peers.Addr
	GroupID  peers.GroupID
}

// LeaveResponse acknowledges a LeaveRequest.
type LeaveResponse struct {
	FromAddr peers.Addr
	Success  bool
}

// HeartbeatRequest tells the receiver that the owner of PubKey is alive.
type HeartbeatRequest struct {
	FromAddr peers.Addr
	GroupID  peers.GroupID
	PubKey   []byte
}

// HeartbeatResponse acknowledges a HeartbeatRequest. Success is false when
// the sender is not a member of the receiver's group.
type HeartbeatResponse struct {
	FromAddr peers.Addr
	Success  bool
}

// SyncPeersRequest asks for the living members of the group.
type SyncPeersRequest struct {
	FromAddr peers.Addr
	GroupID  peers.GroupID
	PubKey   []byte
}

// PeerInfo is a living member as known by the responder.
type PeerInfo struct {
	Addr       peers.Addr
	SocketAddr string
}

// SyncPeersResponse lists the living members of the group.
type SyncPeersResponse struct {
	FromAddr peers.Addr
	Peers    []PeerInfo
}
