package net

// Transport provides an interface for network transports
// to allow a node to communicate with other nodes.
type Transport interface {

	// Starts the transport listening
	Listen()

	// Consumer returns a channel that can be used to
	// consume and respond to RPC requests.
	Consumer() <-chan RPC

	// LocalAddr is used to return our local address
	LocalAddr() string

	// AdvertiseAddr is used to return our advertise address where other peers
	// can reach us
	AdvertiseAddr() string

	// Join, JoinResult, Leave, Heartbeat and SyncPeers send the appropriate
	// RPC to the target node.

	Join(target string, args *JoinRequest, resp *JoinResponse) error

	JoinResult(target string, args *JoinResultRequest, resp *JoinResultResponse) error

	Leave(target string, args *LeaveRequest, resp *LeaveResponse) error

	Heartbeat(target string, args *HeartbeatRequest, resp *HeartbeatResponse) error

	SyncPeers(target string, args *SyncPeersRequest, resp *SyncPeersResponse) error

	// Close permanently closes a transport, stopping
	// any associated goroutines and freeing other resources.
	Close() error
}
