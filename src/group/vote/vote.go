// Package vote implements quorum admission: a candidate becomes a member once
// a configurable fraction of the current members have each issued it a
// certificate.
//
// Votes are counted per group instance. A candidate presents its certificates
// one join at a time; each certificate issued by a current member adds one
// vote, and a repeated issuer counts once. The candidate is admitted when
// votes / members >= rate, with members counted at the time of the vote.
//
// The group also tracks which members are alive (HeartBeat), and can seed
// its membership from a list of known peers (Bootstrap) since an empty group
// can never reach quorum.
package vote

import (
	"errors"
	"fmt"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/membership"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
)

const source = "VoteGroup"

// ErrInvalidRate is returned by New for a rate outside (0, 1].
var ErrInvalidRate = errors.New("acceptance rate must be in (0, 1]")

// BootstrapPeer is a member known out of band.
type BootstrapPeer struct {
	PubKey identity.PublicKey
	Addr   peers.Addr
}

type ballot struct {
	issuer identity.PublicKey
	proof  identity.Signature
}

type candidate struct {
	addr       peers.Addr
	socketAddr string
	ballots    []ballot
}

func (c *candidate) hasIssuer(issuer identity.PublicKey) bool {
	for _, b := range c.ballots {
		if b.issuer.Equal(issuer) {
			return true
		}
	}
	return false
}

// Option configures a Group.
type Option func(*Group)

// WithLogger sets the logger of the group.
func WithLogger(logger *logrus.Entry) Option {
	return func(g *Group) {
		g.logger = logger
	}
}

// WithCheckpointer makes the group snapshot its membership after every
// admission or eviction.
func WithCheckpointer(c *membership.Checkpointer) Option {
	return func(g *Group) {
		g.checkpointer = c
	}
}

// WithCertificates sets the certificates this peer presents when joining
// another group instance, one per join attempt.
func WithCertificates(certs ...*Certificate) Option {
	return func(g *Group) {
		g.certificates = append(g.certificates, certs...)
	}
}

// Group is a vote-permissioned group. It implements group.Policy.
type Group struct {
	id       peers.GroupID
	scheme   identity.Scheme
	rate     float64
	selfPK   identity.PublicKey
	selfAddr peers.Addr

	store   *membership.Store
	living  []identity.PublicKey
	waiting map[string]*candidate

	certificates []*Certificate
	checkpointer *membership.Checkpointer
	logger       *logrus.Entry
}

// New creates a group whose only member is this peer.
func New(id peers.GroupID,
	scheme identity.Scheme,
	selfPK identity.PublicKey,
	selfAddr peers.Addr,
	rate float64,
	opts ...Option) (*Group, error) {

	if !(rate > 0 && rate <= 1) {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRate, rate)
	}

	g := &Group{
		id:       id,
		scheme:   scheme,
		rate:     rate,
		selfPK:   selfPK,
		selfAddr: selfAddr,
		store:    membership.NewStore(),
		waiting:  make(map[string]*candidate),
	}

	for _, opt := range opts {
		opt(g)
	}

	if g.logger == nil {
		g.logger = logrus.NewEntry(logrus.New())
	}
	g.logger = g.logger.WithField("policy", "vote")

	g.store.Add(selfAddr, &membership.Record{PubKey: selfPK})

	return g, nil
}

// Load creates a group from the last snapshot found in persister, and keeps
// snapshotting through a Checkpointer that owns persister. Close must be
// called to flush and release it. This peer is always a member.
func Load(id peers.GroupID,
	scheme identity.Scheme,
	selfPK identity.PublicKey,
	selfAddr peers.Addr,
	rate float64,
	persister membership.Persister,
	opts ...Option) (*Group, error) {

	snap, err := persister.Load(id)
	if err != nil && !common.IsStore(err, common.KeyNotFound) {
		return nil, err
	}

	g, err := New(id, scheme, selfPK, selfAddr, rate, opts...)
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

// ID implements group.Policy.
func (g *Group) ID() peers.GroupID {
	return g.id
}

// Rate returns the acceptance rate.
func (g *Group) Rate() float64 {
	return g.rate
}

// Join counts the vote carried by cert for the candidate cert.PubKey, who
// will be bound to addr once admitted. It returns true if the candidate is
// already a member, or if the certificate is valid and its issuer is a member,
// whether or not quorum was reached.
func (g *Group) Join(cert *Certificate, addr peers.Addr) bool {
	_, err := g.join(cert, addr, "")
	return err == nil
}

// join returns whether the candidate is a member after the vote. A non-nil
// error is an AdmissionErr explaining why the vote was not counted.
func (g *Group) join(cert *Certificate, addr peers.Addr, socketAddr string) (bool, error) {
	if cert == nil {
		return false, common.NewAdmissionErr(source, common.MalformedPayload, "nil")
	}

	if g.store.ContainsKey(cert.PubKey) {
		return true, nil
	}

	if !cert.Verify(g.scheme) {
		return false, common.NewAdmissionErr(source, common.BadCertificate, g.scheme.Display(cert.PubKey))
	}

	if !g.store.ContainsKey(cert.CA) {
		return false, common.NewAdmissionErr(source, common.BadVote, g.scheme.Display(cert.CA))
	}

	if g.store.Contains(addr) {
		return false, common.NewAdmissionErr(source, common.MalformedPayload, addr.String())
	}

	key := membership.KeyString(cert.PubKey)

	c, ok := g.waiting[key]
	if !ok {
		c = &candidate{}
		g.waiting[key] = c
	}
	// The latest vote decides the address the candidate is admitted at.
	c.addr = addr
	if socketAddr != "" {
		c.socketAddr = socketAddr
	}
	if !c.hasIssuer(cert.CA) {
		c.ballots = append(c.ballots, ballot{issuer: cert.CA, proof: cert.Proof})
	}

	votes := len(c.ballots)
	members := g.store.Len()

	entry := g.logger.WithFields(logrus.Fields{
		"candidate": common.ShortString(cert.PubKey, 16),
		"votes":     votes,
		"members":   members,
	})

	if float64(votes)/float64(members) < g.rate {
		entry.Debug("Vote counted")
		return false, nil
	}

	delete(g.waiting, key)
	g.store.Add(addr, &membership.Record{
		PubKey:     cert.PubKey,
		Proof:      cert.Proof,
		SocketAddr: c.socketAddr,
	})
	g.checkpoint()

	entry.Info("Peer admitted")

	return true, nil
}

// Leave marks the members bound to addr as no longer alive. They remain
// members.
func (g *Group) Leave(addr peers.Addr) {
	r, ok := g.store.Get(addr)
	if !ok {
		return
	}
	g.removeLiving(r.PubKey)
}

// Remove evicts pk: its record, its liveness, its own pending entry and the
// votes it cast for pending candidates.
func (g *Group) Remove(pk identity.PublicKey) {
	key := membership.KeyString(pk)

	delete(g.waiting, key)
	for k, c := range g.waiting {
		kept := c.ballots[:0]
		for _, b := range c.ballots {
			if !b.issuer.Equal(pk) {
				kept = append(kept, b)
			}
		}
		c.ballots = kept
		if len(c.ballots) == 0 {
			delete(g.waiting, k)
		}
	}

	g.removeLiving(pk)

	if _, ok := g.store.RemoveKey(pk); ok {
		g.checkpoint()
		g.logger.WithField("pub_key", common.ShortString(pk, 16)).Info("Peer removed")
	}
}

// HeartBeat marks a member as alive.
func (g *Group) HeartBeat(pk identity.PublicKey) {
	if !g.store.ContainsKey(pk) {
		return
	}
	for _, l := range g.living {
		if l.Equal(pk) {
			return
		}
	}
	g.living = append(g.living, pk)
}

// HelpSyncPeers returns the addresses of the living members, in the order
// they were first seen alive.
func (g *Group) HelpSyncPeers(pk identity.PublicKey) []peers.Addr {
	res := make([]peers.Addr, 0, len(g.living))
	for _, l := range g.living {
		if a, ok := g.store.GetByKey(l); ok {
			res = append(res, a)
		}
	}
	return res
}

// Bootstrap adds members without voting. Existing bindings are never
// overwritten.
func (g *Group) Bootstrap(list []BootstrapPeer) {
	added := 0
	for _, p := range list {
		if g.store.ContainsKey(p.PubKey) || g.store.Contains(p.Addr) {
			continue
		}
		g.store.Add(p.Addr, &membership.Record{PubKey: p.PubKey})
		added++
	}
	if added > 0 {
		g.checkpoint()
	}
	g.logger.WithFields(logrus.Fields{
		"added":   added,
		"members": g.store.Len(),
	}).Debug("Bootstrapped")
}

// HasPeer reports whether pk is a member.
func (g *Group) HasPeer(pk identity.PublicKey) bool {
	return g.store.ContainsKey(pk)
}

// Verify reports whether pk is a member.
func (g *Group) Verify(pk identity.PublicKey) bool {
	return g.HasPeer(pk)
}

// PeerAddr returns the address bound to pk.
func (g *Group) PeerAddr(pk identity.PublicKey) (peers.Addr, bool) {
	return g.store.GetByKey(pk)
}

// ByPeerAddr returns the public key bound to addr.
func (g *Group) ByPeerAddr(addr peers.Addr) (identity.PublicKey, bool) {
	r, ok := g.store.Get(addr)
	if !ok {
		return nil, false
	}
	return r.PubKey, true
}

// AllPeerKeys returns the public keys of all members.
func (g *Group) AllPeerKeys() []identity.PublicKey {
	return g.store.AllKeys()
}

// LivingPeers returns the members known to be alive.
func (g *Group) LivingPeers() []identity.PublicKey {
	res := make([]identity.PublicKey, len(g.living))
	copy(res, g.living)
	return res
}

// Peers returns the records of all members.
func (g *Group) Peers() []*membership.Record {
	return g.store.Records()
}

// Votes returns the number of distinct votes collected by a pending
// candidate.
func (g *Group) Votes(pk identity.PublicKey) int {
	if c, ok := g.waiting[membership.KeyString(pk)]; ok {
		return len(c.ballots)
	}
	return 0
}

// Standing returns the standing of pk.
func (g *Group) Standing(pk identity.PublicKey) group.Standing {
	if a, ok := g.store.GetByKey(pk); ok {
		r, _ := g.store.Get(a)
		return group.MemberStanding(r)
	}
	if c, ok := g.waiting[membership.KeyString(pk)]; ok {
		return group.PendingStanding(len(c.ballots))
	}
	return group.UnknownStanding()
}

// StandingOf implements group.Inspector.
func (g *Group) StandingOf(addr peers.Addr) group.Standing {
	if r, ok := g.store.Get(addr); ok {
		return group.MemberStanding(r)
	}
	for _, c := range g.waiting {
		if c.addr == addr {
			return group.PendingStanding(len(c.ballots))
		}
	}
	return group.UnknownStanding()
}

// Members implements group.Inspector.
func (g *Group) Members() int {
	return g.store.Len()
}

// Snapshot returns the key-to-address mapping of the members.
func (g *Group) Snapshot() membership.Snapshot {
	return g.store.Snapshot()
}

func (g *Group) removeLiving(pk identity.PublicKey) {
	for i, l := range g.living {
		if l.Equal(pk) {
			g.living = append(g.living[:i], g.living[i+1:]...)
			return
		}
	}
}

func (g *Group) checkpoint() {
	if g.checkpointer != nil {
		g.checkpointer.Notify(g.store.Snapshot())
	}
}
