// Package group implements the peer lifecycle shared by every admission
// policy.
//
// A runtime delivers three kinds of events to a group: a peer wants to join
// with a payload, the remote side of a join resolved it, and a peer went away.
// A Policy turns each join request into exactly one JoinVerdict, which the
// Coordinator sends back through a Sender once the policy has committed its
// in-memory mutation.
//
// The Coordinator is the single owner of a policy. Policies carry no locks;
// every access, including read-only inspection, goes through Deliver or Query
// and runs on the coordinator goroutine.
//
// Concrete policies live in sub-packages: ca (certificate authority) and vote
// (quorum of existing members). Open is the permissionless baseline.
package group
