package turnstile

import (
	"context"
	"io/ioutil"
	"path/filepath"
	"testing"
	"time"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/config"
	"github.com/mosaicnetworks/turnstile/src/crypto/keys"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/group/ca"
	"github.com/mosaicnetworks/turnstile/src/group/vote"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/net"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 3 * time.Second
	tick    = 10 * time.Millisecond
)

func newTestConfig(t *testing.T) *config.Config {
	conf := config.NewTestConfig(t, common.TestLogLevel)
	conf.NoService = true
	conf.HeartbeatTimeout = 20 * time.Millisecond
	return conf
}

func writeKey(t *testing.T, scheme identity.Scheme, conf *config.Config) (identity.PublicKey, identity.SecretKey) {
	pk, sk, err := scheme.GenerateKey()
	require.NoError(t, err)
	require.NoError(t, keys.NewSimpleKeyfile(conf.Keyfile()).WriteRaw(sk))
	return pk, sk
}

func newEngine(t *testing.T, conf *config.Config) (*Turnstile, *net.InmemTransport) {
	_, trans := net.NewInmemTransport("")
	engine := NewTurnstile(conf)
	engine.Transport = trans
	require.NoError(t, engine.Init())
	return engine, trans
}

func run(t *testing.T, engine *Turnstile) context.CancelFunc {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- engine.Run(ctx)
	}()
	stop := func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("engine did not stop")
		}
	}
	t.Cleanup(func() {
		select {
		case <-ctx.Done():
		default:
			stop()
		}
	})
	return stop
}

func memberCount(t *testing.T, engine *Turnstile) int {
	ms, err := engine.Node.GetMembers(context.Background())
	require.NoError(t, err)
	return len(ms)
}

func TestInitKey(t *testing.T) {
	conf := newTestConfig(t)
	conf.Policy = config.PolicyOpen

	first, _ := newEngine(t, conf)
	second, _ := newEngine(t, conf)

	assert.Equal(t, first.Node.Addr(), second.Node.Addr())
	assert.Equal(t, conf.BindAddr, conf.Moniker)
}

func TestKeygen(t *testing.T) {
	scheme := identity.NewSchnorr()
	keyfile := filepath.Join(t.TempDir(), "priv_key")

	pk, err := Keygen(scheme, keyfile)
	require.NoError(t, err)

	raw, err := keys.NewSimpleKeyfile(keyfile).ReadRaw()
	require.NoError(t, err)
	derived, err := scheme.PublicKey(raw)
	require.NoError(t, err)
	assert.True(t, pk.Equal(derived))

	_, err = Keygen(scheme, keyfile)
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cases := []func(c *config.Config){
		func(c *config.Config) { c.Policy = "bogus" },
		func(c *config.Config) { c.Policy = config.PolicyCA },
		func(c *config.Config) { c.Policy = config.PolicyVote; c.Rate = 0 },
		func(c *config.Config) { c.Policy = config.PolicyOpen; c.Store = "bogus" },
		func(c *config.Config) { c.Policy = config.PolicyOpen; c.Scheme = "bogus" },
	}
	for _, mutate := range cases {
		conf := newTestConfig(t)
		mutate(conf)
		assert.Error(t, NewTurnstile(conf).Init())
	}
}

func caConfig(t *testing.T, scheme identity.Scheme, caPK identity.PublicKey, caSK identity.SecretKey) *config.Config {
	conf := newTestConfig(t)
	conf.Policy = config.PolicyCA
	conf.Store = config.StoreSQLite

	pk, _ := writeKey(t, scheme, conf)
	proof, err := ca.SignProof(scheme, caSK, pk)
	require.NoError(t, err)

	conf.CAKey = common.EncodeToString(caPK)
	conf.Proof = common.EncodeToString(proof)
	return conf
}

func TestCAJoinAndReload(t *testing.T) {
	scheme := identity.NewSecp256k1()
	caPK, caSK, err := scheme.GenerateKey()
	require.NoError(t, err)

	confA := caConfig(t, scheme, caPK, caSK)
	confB := caConfig(t, scheme, caPK, caSK)

	a, transA := newEngine(t, confA)
	confB.JoinAddrs = []string{transA.LocalAddr()}
	b, transB := newEngine(t, confB)
	transA.Connect(transB.LocalAddr(), transB)
	transB.Connect(transA.LocalAddr(), transA)

	stopA := run(t, a)
	stopB := run(t, b)

	require.Eventually(t, func() bool {
		return memberCount(t, a) == 1 && memberCount(t, b) == 1
	}, waitFor, tick)

	stopB()
	stopA()

	// the membership map was checkpointed in the sqlite database
	reloaded, _ := newEngine(t, confA)
	defer reloaded.Close()

	g, ok := reloaded.Policy.(*ca.Group)
	require.True(t, ok)
	assert.Equal(t, 1, g.Members())
	assert.Equal(t, group.Member, g.StandingOf(b.Node.Addr()).State)
}

func TestVoteJoinWithBootstrap(t *testing.T) {
	scheme := identity.NewSecp256k1()

	confA := newTestConfig(t)
	confA.Policy = config.PolicyVote
	pkA, skA := writeKey(t, scheme, confA)
	selfA, err := vote.SelfCertificate(scheme, skA, pkA)
	require.NoError(t, err)
	confA.Certificates = []string{writeCertificate(t, selfA)}

	confB := newTestConfig(t)
	confB.Policy = config.PolicyVote
	confB.Store = config.StoreBadger
	pkB, _ := writeKey(t, scheme, confB)
	certB, err := vote.Issue(scheme, skA, pkA, pkB)
	require.NoError(t, err)
	confB.Certificates = []string{writeCertificate(t, certB)}

	a, transA := newEngine(t, confA)

	require.NoError(t, confB.PeerSet().Write([]*peers.Peer{
		peers.NewPeer(common.EncodeToString(pkA), transA.LocalAddr(), "a"),
	}))
	b, transB := newEngine(t, confB)

	transA.Connect(transB.LocalAddr(), transB)
	transB.Connect(transA.LocalAddr(), transA)

	run(t, a)
	run(t, b)

	require.Eventually(t, func() bool {
		return memberCount(t, a) == 2 && memberCount(t, b) == 2
	}, waitFor, tick)

	require.Eventually(t, func() bool {
		living, err := a.Node.GetLiving(context.Background())
		return err == nil && len(living) == 2
	}, waitFor, tick)
}

func TestVoteRejectsForeignCertificate(t *testing.T) {
	scheme := identity.NewSecp256k1()

	conf := newTestConfig(t)
	conf.Policy = config.PolicyVote
	writeKey(t, scheme, conf)

	otherPK, otherSK, err := scheme.GenerateKey()
	require.NoError(t, err)
	cert, err := vote.SelfCertificate(scheme, otherSK, otherPK)
	require.NoError(t, err)
	conf.Certificates = []string{writeCertificate(t, cert)}

	assert.Error(t, NewTurnstile(conf).Init())
}

func writeCertificate(t *testing.T, cert *vote.Certificate) string {
	js, err := cert.ToJSON()
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "cert.json")
	require.NoError(t, ioutil.WriteFile(path, []byte(js), 0600))
	return path
}
