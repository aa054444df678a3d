// Package node runs an admission policy on the network.
//
// A Node owns a group.Coordinator and a net.Transport. Every RPC received on
// the transport is turned into a coordinator event, and join requests are
// answered with the verdict of the policy. Node implements a state machine
// where the states are defined in the state package.
//
// Joining
//
// A node started with bootstrap peers enters the Joining state and asks them,
// one at a time, to admit it. The JoinRequest carries one of our join
// payloads. Policies holding several credentials, like the vote policy with
// one certificate per endorser, present them in turn while the remote group
// answers that it awaits more votes.
//
// Admission is symmetric. When the remote node admits us, its response carries
// its own payload, which we evaluate with our local policy. The result is sent
// back in a JoinResultRequest; a negative result makes the remote node roll
// back our admission.
//
// Liveness
//
// With policies that track liveness, the node periodically sends a
// HeartbeatRequest to every known member and learns the socket addresses of
// the living members with a SyncPeersRequest. Members that cannot be reached
// are reported to the policy as disconnected.
//
// Leaving
//
// Leave notifies every known member with a LeaveRequest before shutting the
// node down.
package node
