package node

import (
	"context"
	"testing"
	"time"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/config"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/group/ca"
	"github.com/mosaicnetworks/turnstile/src/group/vote"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/net"
	"github.com/mosaicnetworks/turnstile/src/node/state"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

type testNode struct {
	validator *Validator
	trans     *net.InmemTransport
	addr      string
	node      *Node
	stopped   chan struct{}
}

type policyFactory func(v *Validator) group.Policy

func newTestNode(t *testing.T, scheme identity.Scheme, moniker string, mk policyFactory, bootstrap ...*testNode) *testNode {
	_, sk, err := scheme.GenerateKey()
	require.NoError(t, err)
	return newTestNodeWithKey(t, scheme, sk, moniker, mk, bootstrap...)
}

func newTestNodeWithKey(t *testing.T, scheme identity.Scheme, sk identity.SecretKey, moniker string, mk policyFactory, bootstrap ...*testNode) *testNode {
	v, err := NewValidator(scheme, sk, moniker)
	require.NoError(t, err)

	addr, trans := net.NewInmemTransport("")

	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.HeartbeatTimeout = 20 * time.Millisecond

	var targets []*peers.Peer
	for _, b := range bootstrap {
		targets = append(targets, peers.NewPeer(b.validator.PublicKeyHex(), b.addr, b.validator.Moniker))
	}

	return &testNode{
		validator: v,
		trans:     trans,
		addr:      addr,
		node:      NewNode(conf, v, mk(v), trans, targets),
		stopped:   make(chan struct{}),
	}
}

func connect(nodes ...*testNode) {
	for _, a := range nodes {
		for _, b := range nodes {
			if a != b {
				a.trans.Connect(b.addr, b.trans)
			}
		}
	}
}

func (tn *testNode) start(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		defer close(tn.stopped)
		tn.node.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-tn.stopped
	})
}

func (tn *testNode) members(t *testing.T) []MemberInfo {
	ms, err := tn.node.GetMembers(context.Background())
	require.NoError(t, err)
	return ms
}

func (tn *testNode) hasMember(t *testing.T, other *testNode) bool {
	for _, m := range tn.members(t) {
		if m.PubKey == other.validator.PublicKeyHex() {
			return true
		}
	}
	return false
}

func waitServing(t *testing.T, tn *testNode) {
	require.Eventually(t, func() bool {
		return tn.node.GetState() == state.Serving
	}, waitFor, tick)
}

// caPolicy returns a factory for CA groups trusting caPK. The node's proof is
// signed with proofSK.
func caPolicy(t *testing.T, scheme identity.Scheme, caPK identity.PublicKey, proofSK identity.SecretKey) policyFactory {
	return func(v *Validator) group.Policy {
		proof, err := ca.SignProof(scheme, proofSK, v.PublicKey())
		require.NoError(t, err)
		g, err := ca.New(peers.GroupIDFromName("test"), scheme, v.PublicKey(), proof, caPK,
			ca.WithLogger(common.NewTestEntry(t, common.TestLogLevel)))
		require.NoError(t, err)
		return g
	}
}

func TestCAJoin(t *testing.T) {
	scheme := identity.NewSecp256k1()
	caPK, caSK, err := scheme.GenerateKey()
	require.NoError(t, err)

	a := newTestNode(t, scheme, "a", caPolicy(t, scheme, caPK, caSK))
	b := newTestNode(t, scheme, "b", caPolicy(t, scheme, caPK, caSK), a)
	connect(a, b)

	a.start(t)
	b.start(t)

	waitServing(t, a)
	waitServing(t, b)

	require.Eventually(t, func() bool {
		return a.hasMember(t, b) && b.hasMember(t, a)
	}, waitFor, tick)

	stats, err := a.node.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", stats["join_accepted"])
	assert.Equal(t, "1", stats["members"])
	assert.Equal(t, "ca", stats["policy"])

	standing, err := a.node.GetStanding(context.Background(), b.validator.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, group.Member, standing.State)
	assert.Equal(t, b.node.Addr(), standing.Record.Addr)
}

func TestCARejectsRogueProof(t *testing.T) {
	scheme := identity.NewSchnorr()
	caPK, caSK, err := scheme.GenerateKey()
	require.NoError(t, err)
	_, rogueSK, err := scheme.GenerateKey()
	require.NoError(t, err)

	a := newTestNode(t, scheme, "a", caPolicy(t, scheme, caPK, caSK))
	b := newTestNode(t, scheme, "b", caPolicy(t, scheme, caPK, rogueSK))
	connect(a, b)

	a.start(t)
	b.start(t)
	waitServing(t, b)

	err = b.node.JoinGroup(context.Background(), a.addr)
	require.Error(t, err)
	assert.True(t, common.IsAdmission(err, common.BadCertificate), err.Error())

	assert.Empty(t, a.members(t))
	assert.Empty(t, b.members(t))

	stats, err := a.node.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "1", stats["join_rejected"])
}

func TestCAJoinResultRollback(t *testing.T) {
	scheme := identity.NewSecp256k1()
	caPK, caSK, err := scheme.GenerateKey()
	require.NoError(t, err)
	_, otherSK, err := scheme.GenerateKey()
	require.NoError(t, err)

	// a trusts the CA but presents a proof the CA did not sign
	a := newTestNode(t, scheme, "a", caPolicy(t, scheme, caPK, otherSK))
	b := newTestNode(t, scheme, "b", caPolicy(t, scheme, caPK, caSK))
	connect(a, b)

	a.start(t)
	b.start(t)
	waitServing(t, b)

	err = b.node.JoinGroup(context.Background(), a.addr)
	require.Error(t, err)
	assert.True(t, common.IsAdmission(err, common.BadCertificate), err.Error())

	// a admitted b, then rolled back on the negative join result
	require.Eventually(t, func() bool {
		return len(a.members(t)) == 0
	}, waitFor, tick)
	assert.Empty(t, b.members(t))
}

func TestLeave(t *testing.T) {
	scheme := identity.NewSecp256k1()
	caPK, caSK, err := scheme.GenerateKey()
	require.NoError(t, err)

	a := newTestNode(t, scheme, "a", caPolicy(t, scheme, caPK, caSK))
	b := newTestNode(t, scheme, "b", caPolicy(t, scheme, caPK, caSK), a)
	connect(a, b)

	a.start(t)
	b.start(t)

	waitServing(t, b)
	require.True(t, a.hasMember(t, b))

	require.NoError(t, b.node.Leave())

	select {
	case <-b.stopped:
	case <-time.After(waitFor):
		t.Fatal("node should stop after leaving")
	}

	assert.False(t, a.hasMember(t, b))
	assert.Empty(t, a.node.Routes())
}

func TestOpenJoinNotAdmitted(t *testing.T) {
	scheme := identity.NewSecp256k1()
	open := func(v *Validator) group.Policy {
		return group.NewOpen(peers.GroupIDFromName("test"))
	}

	a := newTestNode(t, scheme, "a", open)
	b := newTestNode(t, scheme, "b", open)
	connect(a, b)

	a.start(t)
	b.start(t)
	waitServing(t, b)

	err := b.node.JoinGroup(context.Background(), a.addr)
	assert.Equal(t, ErrNotAdmitted, err)
}

func TestUnknownGroup(t *testing.T) {
	scheme := identity.NewSecp256k1()
	caPK, caSK, err := scheme.GenerateKey()
	require.NoError(t, err)

	a := newTestNode(t, scheme, "a", caPolicy(t, scheme, caPK, caSK))
	b := newTestNode(t, scheme, "b", func(v *Validator) group.Policy {
		return group.NewOpen(peers.GroupIDFromName("other"))
	})
	connect(a, b)

	a.start(t)
	b.start(t)
	waitServing(t, b)

	err = b.node.JoinGroup(context.Background(), a.addr)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown group")
	assert.Empty(t, a.members(t))
}

type voteKit struct {
	pk   identity.PublicKey
	sk   identity.SecretKey
	addr peers.Addr
}

func newVoteKit(t *testing.T, scheme identity.Scheme) voteKit {
	pk, sk, err := scheme.GenerateKey()
	require.NoError(t, err)
	return voteKit{pk: pk, sk: sk, addr: peers.AddrFromPublicKey(pk)}
}

func votePolicy(t *testing.T, scheme identity.Scheme, rate float64, certs []*vote.Certificate, members ...voteKit) policyFactory {
	return func(v *Validator) group.Policy {
		g, err := vote.New(peers.GroupIDFromName("test"), scheme, v.PublicKey(), v.Addr(), rate,
			vote.WithLogger(common.NewTestEntry(t, common.TestLogLevel)),
			vote.WithCertificates(certs...))
		require.NoError(t, err)
		var list []vote.BootstrapPeer
		for _, m := range members {
			list = append(list, vote.BootstrapPeer{PubKey: m.pk, Addr: m.addr})
		}
		g.Bootstrap(list)
		return g
	}
}

func TestVoteJoinAndHeartbeat(t *testing.T) {
	scheme := identity.NewSecp256k1()
	ka := newVoteKit(t, scheme)
	kb := newVoteKit(t, scheme)

	selfA, err := vote.SelfCertificate(scheme, ka.sk, ka.pk)
	require.NoError(t, err)
	certB, err := vote.Issue(scheme, ka.sk, ka.pk, kb.pk)
	require.NoError(t, err)

	a := newTestNodeWithKey(t, scheme, ka.sk, "a", votePolicy(t, scheme, 0.5, []*vote.Certificate{selfA}))
	b := newTestNodeWithKey(t, scheme, kb.sk, "b", votePolicy(t, scheme, 0.5, []*vote.Certificate{certB}, ka), a)
	connect(a, b)

	a.start(t)
	b.start(t)

	waitServing(t, b)
	require.Eventually(t, func() bool {
		return a.hasMember(t, b)
	}, waitFor, tick)

	// a beats for itself, b beats for a
	require.Eventually(t, func() bool {
		living, err := a.node.GetLiving(context.Background())
		return err == nil && len(living) == 2
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		living, err := b.node.GetLiving(context.Background())
		return err == nil && len(living) == 2
	}, waitFor, tick)

	stats, err := a.node.GetStats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "2", stats["members"])
	assert.Equal(t, "2", stats["living"])
}

func TestVotePendingThenQuorum(t *testing.T) {
	scheme := identity.NewSecp256k1()
	ka := newVoteKit(t, scheme)
	kb := newVoteKit(t, scheme)
	kc := newVoteKit(t, scheme)

	selfA, err := vote.SelfCertificate(scheme, ka.sk, ka.pk)
	require.NoError(t, err)
	fromA, err := vote.Issue(scheme, ka.sk, ka.pk, kb.pk)
	require.NoError(t, err)
	fromC, err := vote.Issue(scheme, kc.sk, kc.pk, kb.pk)
	require.NoError(t, err)

	// a's group has two members, a and c; b needs both votes at 0.6
	a := newTestNodeWithKey(t, scheme, ka.sk, "a", votePolicy(t, scheme, 0.6, []*vote.Certificate{selfA}, kc))
	b1 := newTestNodeWithKey(t, scheme, kb.sk, "b", votePolicy(t, scheme, 0.6, []*vote.Certificate{fromA}, ka))
	connect(a, b1)

	a.start(t)
	b1.start(t)
	waitServing(t, b1)

	err = b1.node.JoinGroup(context.Background(), a.addr)
	require.Error(t, err)
	assert.True(t, common.IsAdmission(err, common.NotYetQuorum), err.Error())

	standing, err := a.node.GetStanding(context.Background(), b1.validator.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, group.Pending, standing.State)
	assert.Equal(t, 1, standing.Votes)

	// same identity, now holding both certificates
	b2 := newTestNodeWithKey(t, scheme, kb.sk, "b", votePolicy(t, scheme, 0.6, []*vote.Certificate{fromA, fromC}, ka))
	connect(a, b2)
	b2.start(t)
	waitServing(t, b2)

	require.NoError(t, b2.node.JoinGroup(context.Background(), a.addr))

	standing, err = a.node.GetStanding(context.Background(), b2.validator.PublicKeyHex())
	require.NoError(t, err)
	assert.Equal(t, group.Member, standing.State)
	assert.Len(t, a.members(t), 3)
}
