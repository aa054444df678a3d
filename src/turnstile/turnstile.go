package turnstile

import (
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"os"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/config"
	"github.com/mosaicnetworks/turnstile/src/crypto/keys"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/group/ca"
	"github.com/mosaicnetworks/turnstile/src/group/vote"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/membership"
	"github.com/mosaicnetworks/turnstile/src/net"
	"github.com/mosaicnetworks/turnstile/src/node"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/mosaicnetworks/turnstile/src/service"
	"github.com/sirupsen/logrus"
)

// Turnstile is a struct containing the key parts of a turnstile node.
type Turnstile struct {
	Config    *config.Config
	Node      *node.Node
	Transport net.Transport
	Policy    group.Policy
	Peers     []*peers.Peer
	Service   *service.Service

	scheme    identity.Scheme
	key       identity.SecretKey
	persister membership.Persister
	logger    *logrus.Entry
}

// NewTurnstile is a factory method to produce a Turnstile instance.
func NewTurnstile(c *config.Config) *Turnstile {
	engine := &Turnstile{
		Config: c,
		logger: c.Logger(),
	}

	return engine
}

// Init initialises the node from the configuration. The parts already set,
// like a custom Transport, are kept.
func (t *Turnstile) Init() error {
	t.logger.Debug("validateConfig")
	if err := t.validateConfig(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() validateConfig")
		return err
	}

	t.logger.Debug("initKey")
	if err := t.initKey(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() initKey")
		return err
	}

	t.logger.Debug("initPeers")
	if err := t.initPeers(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() initPeers")
		return err
	}

	t.logger.Debug("initPersister")
	if err := t.initPersister(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() initPersister")
		return err
	}

	t.logger.Debug("initPolicy")
	if err := t.initPolicy(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() initPolicy")
		return err
	}

	t.logger.Debug("initTransport")
	if err := t.initTransport(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() initTransport")
		return err
	}

	t.logger.Debug("initNode")
	if err := t.initNode(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() initNode")
		return err
	}

	t.logger.Debug("initService")
	if err := t.initService(); err != nil {
		t.logger.WithError(err).Error("turnstile.go:Init() initService")
		return err
	}

	return nil
}

// Run starts the service, if any, and runs the node until ctx is cancelled
// or the node is shut down. The policy is closed when Run returns.
func (t *Turnstile) Run(ctx context.Context) error {
	if t.Service != nil {
		go t.Service.Serve()
		defer t.Service.Shutdown()
	}

	err := t.Node.Run(ctx)

	if cerr := t.Close(); cerr != nil && err == nil {
		err = cerr
	}

	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Close flushes the membership checkpoints and releases the database. It is
// called by Run.
func (t *Turnstile) Close() error {
	if c, ok := t.Policy.(interface{ Close() error }); ok {
		return c.Close()
	}
	// a persister not handed to a policy is still ours
	if t.persister != nil {
		return t.persister.Close()
	}
	return nil
}

func (t *Turnstile) validateConfig() error {
	scheme, err := t.Config.SignatureScheme()
	if err != nil {
		return err
	}
	t.scheme = scheme

	switch t.Config.Policy {
	case config.PolicyCA:
		if t.Config.CAKey == "" {
			return fmt.Errorf("the ca policy requires a CA public key")
		}
		if t.Config.Proof == "" {
			return fmt.Errorf("the ca policy requires a proof signed by the CA")
		}
	case config.PolicyVote:
		if !(t.Config.Rate > 0 && t.Config.Rate <= 1) {
			return fmt.Errorf("invalid rate %v, must be in (0, 1]", t.Config.Rate)
		}
	case config.PolicyOpen:
	default:
		return fmt.Errorf("unknown policy %q", t.Config.Policy)
	}

	switch t.Config.Store {
	case config.StoreNone, config.StoreBadger, config.StoreSQLite:
	default:
		return fmt.Errorf("unknown store %q", t.Config.Store)
	}

	if t.Config.Moniker == "" {
		t.Config.Moniker = t.Config.BindAddr
	}

	return nil
}

// initKey reads the secret key from the keyfile in DataDir, or generates and
// writes a new one.
func (t *Turnstile) initKey() error {
	if t.key != nil {
		return nil
	}

	keyfile := keys.NewSimpleKeyfile(t.Config.Keyfile())

	raw, err := keyfile.ReadRaw()
	if err == nil {
		t.key = identity.SecretKey(raw)
		return nil
	}
	if !os.IsNotExist(err) {
		return err
	}

	t.logger.WithField("keyfile", t.Config.Keyfile()).Warn("No key found, generating a new one")

	pk, sk, err := t.scheme.GenerateKey()
	if err != nil {
		return err
	}

	if err := keyfile.WriteRaw(sk); err != nil {
		return err
	}

	t.logger.WithField("pub_key", t.scheme.Display(pk)).Info("Created a new key")

	t.key = sk
	return nil
}

// initPeers reads the optional peers.json file of bootstrap peers.
func (t *Turnstile) initPeers() error {
	if t.Peers != nil {
		return nil
	}

	list, err := t.Config.PeerSet().Peers()
	if err != nil && !os.IsNotExist(err) {
		return err
	}

	t.Peers = list

	t.logger.WithField("peers", len(list)).Debug("Loaded bootstrap peers")

	return nil
}

func (t *Turnstile) initPersister() error {
	switch t.Config.Store {
	case config.StoreBadger:
		p, err := membership.NewBadgerPersister(t.Config.DatabaseDir, t.logger)
		if err != nil {
			return err
		}
		t.persister = p
		t.logger.WithField("path", t.Config.DatabaseDir).Debug("Opened badger persister")
	case config.StoreSQLite:
		p, err := membership.NewSQLitePersister(t.Config.SQLiteFile())
		if err != nil {
			return err
		}
		t.persister = p
		t.logger.WithField("path", t.Config.SQLiteFile()).Debug("Opened sqlite persister")
	}
	return nil
}

func (t *Turnstile) initPolicy() error {
	if t.Policy != nil {
		return nil
	}

	selfPK, err := t.scheme.PublicKey(t.key)
	if err != nil {
		return err
	}

	id := t.Config.GroupID()

	switch t.Config.Policy {
	case config.PolicyCA:
		t.Policy, err = t.newCAPolicy(id, selfPK)
	case config.PolicyVote:
		t.Policy, err = t.newVotePolicy(id, selfPK)
	default:
		t.Policy = group.NewOpen(id)
	}

	return err
}

func (t *Turnstile) newCAPolicy(id peers.GroupID, selfPK identity.PublicKey) (group.Policy, error) {
	caPK, err := common.DecodeFromString(t.Config.CAKey)
	if err != nil {
		return nil, fmt.Errorf("ca-key: %v", err)
	}

	proof, err := common.DecodeFromString(t.Config.Proof)
	if err != nil {
		return nil, fmt.Errorf("proof: %v", err)
	}

	if !ca.VerifyProof(t.scheme, caPK, selfPK, proof) {
		t.logger.Warn("Our proof is not signed by the CA, other members will reject us")
	}

	opts := []ca.Option{ca.WithLogger(t.logger)}

	if t.persister != nil {
		return ca.Load(id, t.scheme, selfPK, proof, caPK, t.persister, opts...)
	}
	return ca.New(id, t.scheme, selfPK, proof, caPK, opts...)
}

func (t *Turnstile) newVotePolicy(id peers.GroupID, selfPK identity.PublicKey) (group.Policy, error) {
	certs := make([]*vote.Certificate, 0, len(t.Config.Certificates))
	for _, path := range t.Config.Certificates {
		cert, err := ReadCertificate(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %v", path, err)
		}
		if !cert.PubKey.Equal(selfPK) {
			return nil, fmt.Errorf("%s: certificate is not for our key", path)
		}
		certs = append(certs, cert)
	}

	opts := []vote.Option{
		vote.WithLogger(t.logger),
		vote.WithCertificates(certs...),
	}

	var (
		g   *vote.Group
		err error
	)
	selfAddr := peers.AddrFromPublicKey(selfPK)
	if t.persister != nil {
		g, err = vote.Load(id, t.scheme, selfPK, selfAddr, t.Config.Rate, t.persister, opts...)
	} else {
		g, err = vote.New(id, t.scheme, selfPK, selfAddr, t.Config.Rate, opts...)
	}
	if err != nil {
		return nil, err
	}

	// bootstrap peers with a known key are trusted members
	var bootstrap []vote.BootstrapPeer
	for _, p := range t.Peers {
		if p.PubKeyHex == "" {
			continue
		}
		pk, err := p.PubKeyBytes()
		if err != nil {
			return nil, fmt.Errorf("peers.json: %v", err)
		}
		if identity.PublicKey(pk).Equal(selfPK) {
			continue
		}
		bootstrap = append(bootstrap, vote.BootstrapPeer{
			PubKey: pk,
			Addr:   peers.AddrFromPublicKey(pk),
		})
	}
	g.Bootstrap(bootstrap)

	return g, nil
}

func (t *Turnstile) initTransport() error {
	if t.Transport != nil {
		return nil
	}

	transport, err := net.NewTCPTransport(
		t.Config.BindAddr,
		t.Config.AdvertiseAddr,
		t.Config.MaxPool,
		t.Config.TCPTimeout,
		t.Config.JoinTimeout,
		t.logger,
	)
	if err != nil {
		return err
	}

	t.Transport = transport

	return nil
}

func (t *Turnstile) initNode() error {
	validator, err := node.NewValidator(t.scheme, t.key, t.Config.Moniker)
	if err != nil {
		return err
	}

	t.logger.WithFields(logrus.Fields{
		"pub_key": validator.PublicKeyHex(),
		"addr":    validator.Addr().String(),
		"policy":  t.Config.Policy,
		"group":   t.Config.Group,
	}).Debug("VALIDATOR")

	t.Node = node.NewNode(
		t.Config,
		validator,
		t.Policy,
		t.Transport,
		t.Peers,
	)

	return nil
}

func (t *Turnstile) initService() error {
	if !t.Config.NoService && t.Config.ServiceAddr != "" {
		t.Service = service.NewService(t.Config.ServiceAddr, t.Node, t.logger)
	}
	return nil
}

// ReadCertificate reads a vote certificate from a JSON file.
func ReadCertificate(path string) (*vote.Certificate, error) {
	buf, err := ioutil.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return vote.CertificateFromJSON(string(buf))
}

// Keygen creates a new key-pair under scheme and writes the secret key to
// keyfile. It fails if a key already lives there.
func Keygen(scheme identity.Scheme, keyfile string) (identity.PublicKey, error) {
	skf := keys.NewSimpleKeyfile(keyfile)

	if _, err := skf.ReadRaw(); err == nil {
		return nil, fmt.Errorf("another key already lives under %s", keyfile)
	}

	pk, sk, err := scheme.GenerateKey()
	if err != nil {
		return nil, err
	}

	if err := skf.WriteRaw(sk); err != nil {
		return nil, err
	}

	return pk, nil
}
