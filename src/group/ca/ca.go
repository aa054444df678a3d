// Package ca implements certificate-authority admission: a peer is admitted
// if it presents a signature of its public key by the configured CA.
package ca

import (
	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/membership"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/mosaicnetworks/turnstile/src/wire"
	"github.com/sirupsen/logrus"
)

const source = "CAGroup"

// Option configures a Group.
type Option func(*Group)

// WithCheckpointer makes the group snapshot its membership after every change.
func WithCheckpointer(c *membership.Checkpointer) Option {
	return func(g *Group) {
		g.checkpointer = c
	}
}

// WithLogger sets the logger of the group.
func WithLogger(logger *logrus.Entry) Option {
	return func(g *Group) {
		g.logger = logger
	}
}

// Group is a CA-permissioned group. It implements group.Policy.
type Group struct {
	id        peers.GroupID
	scheme    identity.Scheme
	ca        identity.PublicKey
	selfPK    identity.PublicKey
	selfProof identity.Signature
	payload   []byte

	store        *membership.Store
	checkpointer *membership.Checkpointer
	logger       *logrus.Entry
}

// New creates a group trusting ca. selfProof is the CA signature over selfPK,
// as produced by SignProof.
func New(id peers.GroupID,
	scheme identity.Scheme,
	selfPK identity.PublicKey,
	selfProof identity.Signature,
	ca identity.PublicKey,
	opts ...Option) (*Group, error) {

	payload, err := wire.JoinPayload{PubKey: selfPK, Proof: selfProof}.Marshal()
	if err != nil {
		return nil, err
	}

	g := &Group{
		id:        id,
		scheme:    scheme,
		ca:        ca,
		selfPK:    selfPK,
		selfProof: selfProof,
		payload:   payload,
		store:     membership.NewStore(),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = logrus.NewEntry(logrus.New())
	}
	g.logger = g.logger.WithField("policy", "ca")

	return g, nil
}

// Load creates a group from the last snapshot found in persister, and keeps
// snapshotting through a Checkpointer that owns persister. Restored members
// carry no proof. Close must be called to flush and release the persister.
func Load(id peers.GroupID,
	scheme identity.Scheme,
	selfPK identity.PublicKey,
	selfProof identity.Signature,
	ca identity.PublicKey,
	persister membership.Persister,
	opts ...Option) (*Group, error) {

	snap, err := persister.Load(id)
	if err != nil && !common.IsStore(err, common.KeyNotFound) {
		return nil, err
	}

	g, err := New(id, scheme, selfPK, selfProof, ca, opts...)
	if err != nil {
		return nil, err
	}

	if skipped := g.store.Restore(snap); skipped > 0 {
		g.logger.WithField("skipped", skipped).Warn("Ignoring undecodable members in snapshot")
	}

	g.logger.WithField("members", g.store.Len()).Debug("Group loaded")

	g.checkpointer = membership.NewCheckpointer(id, persister, g.logger)

	return g, nil
}

// Close flushes and closes the checkpointer, if any.
func (g *Group) Close() error {
	if g.checkpointer == nil {
		return nil
	}
	return g.checkpointer.Close()
}

// SignProof is used by the CA to issue the proof of pk.
func SignProof(scheme identity.Scheme, sk identity.SecretKey, pk identity.PublicKey) (identity.Signature, error) {
	return scheme.Sign(sk, wire.EncodeBytes(scheme.EncodePublicKey(pk)))
}

// VerifyProof reports whether proof is a signature of pk by ca.
func VerifyProof(scheme identity.Scheme, ca identity.PublicKey, pk identity.PublicKey, proof identity.Signature) bool {
	return scheme.Verify(ca, wire.EncodeBytes(scheme.EncodePublicKey(pk)), proof)
}

// ID implements group.Policy.
func (g *Group) ID() peers.GroupID {
	return g.id
}

// JoinPayload implements group.Policy. It encodes our public key and proof.
func (g *Group) JoinPayload() []byte {
	return g.payload
}

// EvaluateJoin implements group.Policy. An address that is already a member
// is accepted again without re-verification.
func (g *Group) EvaluateJoin(addr peers.Addr, socketAddr string, payload []byte) group.Outcome {
	if g.store.Contains(addr) {
		return group.Accept(g.payload)
	}

	p, err := wire.UnmarshalJoinPayload(payload)
	if err != nil {
		return group.Reject(group.ReasonMalformed, source, addr.String(), err)
	}

	if !VerifyProof(g.scheme, g.ca, p.PubKey, p.Proof) {
		return group.Reject(group.ReasonBadSignature, source, g.scheme.Display(p.PubKey), nil)
	}

	g.store.Add(addr, &membership.Record{
		PubKey:     p.PubKey,
		Proof:      p.Proof,
		SocketAddr: socketAddr,
	})
	g.checkpoint()

	g.logger.WithFields(logrus.Fields{
		"peer":    addr.String(),
		"pub_key": common.ShortString(p.PubKey, 16),
		"members": g.store.Len(),
	}).Info("Peer admitted")

	return group.Accept(g.payload)
}

// ResolveJoinResult implements group.Policy.
func (g *Group) ResolveJoinResult(addr peers.Addr, accepted bool, response []byte) {
	if accepted {
		return
	}
	if _, ok := g.store.Remove(addr); ok {
		g.checkpoint()
		g.logger.WithField("peer", addr.String()).Info("Admission rolled back")
	}
}

// Leave implements group.Policy.
func (g *Group) Leave(addr peers.Addr) {
	if _, ok := g.store.Remove(addr); ok {
		g.checkpoint()
		g.logger.WithField("peer", addr.String()).Info("Peer left")
	}
}

// Add inserts a member directly, without checking its proof.
func (g *Group) Add(addr peers.Addr, pk identity.PublicKey, proof identity.Signature, socketAddr string) {
	g.store.Add(addr, &membership.Record{
		PubKey:     pk,
		Proof:      proof,
		SocketAddr: socketAddr,
	})
	g.checkpoint()
}

// Peers returns the records of all members.
func (g *Group) Peers() []*membership.Record {
	return g.store.Records()
}

// Peer returns the record bound to addr.
func (g *Group) Peer(addr peers.Addr) (*membership.Record, bool) {
	return g.store.Get(addr)
}

// PeerAddr returns the address bound to pk.
func (g *Group) PeerAddr(pk identity.PublicKey) (peers.Addr, bool) {
	return g.store.GetByKey(pk)
}

// Standing returns the standing of addr. CA groups have no pending state.
func (g *Group) Standing(addr peers.Addr) group.Standing {
	if r, ok := g.store.Get(addr); ok {
		return group.MemberStanding(r)
	}
	return group.UnknownStanding()
}

// StandingOf implements group.Inspector.
func (g *Group) StandingOf(addr peers.Addr) group.Standing {
	return g.Standing(addr)
}

// Members implements group.Inspector.
func (g *Group) Members() int {
	return g.store.Len()
}

// Snapshot returns the key-to-address mapping of the members.
func (g *Group) Snapshot() membership.Snapshot {
	return g.store.Snapshot()
}

func (g *Group) checkpoint() {
	if g.checkpointer != nil {
		g.checkpointer.Notify(g.store.Snapshot())
	}
}
