package group

import (
	"github.com/mosaicnetworks/turnstile/src/peers"
)

// Policy decides admission into one group. Implementations are not safe for
// concurrent use; a Coordinator serializes every call.
type Policy interface {
	// ID returns the identifier of the group.
	ID() peers.GroupID

	// JoinPayload returns the bytes this peer presents when joining, and
	// returns to peers it accepts.
	JoinPayload() []byte

	// EvaluateJoin decides on a join request and commits the resulting
	// mutation before returning.
	EvaluateJoin(addr peers.Addr, socketAddr string, payload []byte) Outcome

	// ResolveJoinResult handles the remote verdict on a join. A negative
	// result undoes the admission of addr, if any.
	ResolveJoinResult(addr peers.Addr, accepted bool, response []byte)

	// Leave handles the departure of addr.
	Leave(addr peers.Addr)
}

// Inspector is implemented by policies that can report the standing of a
// peer and their member count.
type Inspector interface {
	StandingOf(addr peers.Addr) Standing
	Members() int
}
