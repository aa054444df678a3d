package group

import (
	"github.com/mosaicnetworks/turnstile/src/peers"
)

// Open is the permissionless policy. It lets every peer into the routing
// table but never makes it a stable member: joins are answered with a
// negative verdict that does not ask for a retry, and no state is kept.
type Open struct {
	id peers.GroupID
}

// NewOpen creates an Open policy.
func NewOpen(id peers.GroupID) *Open {
	return &Open{id: id}
}

// ID implements Policy.
func (o *Open) ID() peers.GroupID {
	return o.id
}

// JoinPayload implements Policy.
func (o *Open) JoinPayload() []byte {
	return []byte{}
}

// EvaluateJoin implements Policy.
func (o *Open) EvaluateJoin(addr peers.Addr, socketAddr string, payload []byte) Outcome {
	return Outcome{
		Accepted:  false,
		NeedRetry: false,
		Response:  []byte{},
	}
}

// ResolveJoinResult implements Policy.
func (o *Open) ResolveJoinResult(addr peers.Addr, accepted bool, response []byte) {}

// Leave implements Policy.
func (o *Open) Leave(addr peers.Addr) {}

// StandingOf implements Inspector.
func (o *Open) StandingOf(addr peers.Addr) Standing {
	return UnknownStanding()
}

// Members implements Inspector.
func (o *Open) Members() int {
	return 0
}
