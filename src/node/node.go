package node

import (
	"context"
	"errors"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/config"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/membership"
	"github.com/mosaicnetworks/turnstile/src/net"
	"github.com/mosaicnetworks/turnstile/src/node/state"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/mosaicnetworks/turnstile/src/version"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// ErrNotAdmitted is returned by JoinGroup when the remote group answers
// without admitting nor rejecting us, as a permissionless group does.
var ErrNotAdmitted = errors.New("not admitted")

// LivenessTracker is implemented by policies that keep track of the members
// known to be alive.
type LivenessTracker interface {
	HeartBeat(pk identity.PublicKey)
	HelpSyncPeers(pk identity.PublicKey) []peers.Addr
	HasPeer(pk identity.PublicKey) bool
	LivingPeers() []identity.PublicKey
}

// MemberLister is implemented by policies that can list their members.
type MemberLister interface {
	Peers() []*membership.Record
}

type addrResolver interface {
	PeerAddr(pk identity.PublicKey) (peers.Addr, bool)
}

type keyStanding interface {
	Standing(pk identity.PublicKey) group.Standing
}

type multiPayload interface {
	JoinPayloads() [][]byte
}

// Node runs an admission policy on the network. It turns the RPCs received on
// its transport into coordinator events, and answers them with the verdicts.
type Node struct {
	// The node's state is managed by the embedded state.Manager.
	state.Manager

	conf   *config.Config
	logger *logrus.Entry

	validator *Validator
	groupID   peers.GroupID

	coordinator *group.Coordinator

	trans net.Transport
	netCh <-chan net.RPC

	selector       PeerSelector
	heartbeatTimer *ControlTimer

	routesLock sync.RWMutex
	routes     map[peers.Addr]string

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	start        time.Time
	joinRequests int64
	joinAccepted int64
	joinRejected int64
}

// NewNode is a factory method that returns a Node instance. bootstrap lists the
// peers to join through on startup; the addresses in conf.JoinAddrs are added
// to it.
func NewNode(conf *config.Config,
	validator *Validator,
	policy group.Policy,
	trans net.Transport,
	bootstrap []*peers.Peer,
) *Node {
	logger := conf.Logger().WithFields(logrus.Fields{
		"this_addr": validator.Addr().String(),
		"moniker":   validator.Moniker,
	})

	targets := make([]*peers.Peer, 0, len(bootstrap)+len(conf.JoinAddrs))
	for _, p := range bootstrap {
		if p.NetAddr != trans.AdvertiseAddr() {
			targets = append(targets, p)
		}
	}
	for _, a := range conf.JoinAddrs {
		if a != trans.AdvertiseAddr() {
			targets = append(targets, peers.NewPeer("", a, ""))
		}
	}

	routes := make(map[peers.Addr]string)
	for _, p := range targets {
		if addr, err := p.Addr(); err == nil && p.PubKeyHex != "" && addr != validator.Addr() {
			routes[addr] = p.NetAddr
		}
	}

	node := &Node{
		conf:           conf,
		logger:         logger,
		validator:      validator,
		groupID:        policy.ID(),
		coordinator:    group.NewCoordinator(policy, logger),
		trans:          trans,
		netCh:          trans.Consumer(),
		selector:       NewRandomPeerSelector(targets, validator.PublicKeyHex()),
		heartbeatTimer: NewRandomControlTimer(),
		routes:         routes,
		shutdownCh:     make(chan struct{}),
	}

	return node
}

// Run starts the node and blocks until ctx is cancelled or Shutdown is
// called. The transport is closed when Run returns.
func (n *Node) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	n.start = time.Now()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return n.coordinator.Run(gctx)
	})

	g.Go(func() error {
		select {
		case <-n.shutdownCh:
			cancel()
		case <-gctx.Done():
		}
		return nil
	})

	// Listen returns when the transport is closed
	go n.trans.Listen()

	g.Go(func() error {
		n.doBackgroundWork(gctx)
		return nil
	})

	g.Go(func() error {
		n.heartbeatTimer.Run(gctx, n.conf.HeartbeatTimeout)
		return nil
	})

	g.Go(func() error {
		n.heartbeatLoop(gctx)
		return nil
	})

	g.Go(func() error {
		n.bootstrap(gctx)
		return nil
	})

	err := g.Wait()

	n.SetState(state.Shutdown)

	// transport should only be closed once all concurrent operations are
	// finished
	n.WaitRoutines()
	n.trans.Close()

	n.logger.Debug("Node stopped")

	return err
}

func (n *Node) doBackgroundWork(ctx context.Context) {
	for {
		select {
		case rpc := <-n.netCh:
			if !n.GoFunc(func() { n.processRPC(ctx, rpc) }) {
				n.processRPC(ctx, rpc)
			}
		case <-ctx.Done():
			return
		}
	}
}

// bootstrap tries the bootstrap peers in turn until one of them admits us.
func (n *Node) bootstrap(ctx context.Context) {
	attempts := len(n.selector.Peers())
	if n.selector.Next() == nil {
		n.logger.Debug("No bootstrap peer => Serving")
		n.SetState(state.Serving)
		return
	}

	n.SetState(state.Joining)
	n.logger.Debug("JOINING")

	for i := 0; i < attempts; i++ {
		peer := n.selector.Next()

		start := time.Now()
		err := n.JoinGroup(ctx, peer.NetAddr)
		n.logger.WithFields(logrus.Fields{
			"target":   peer.NetAddr,
			"duration": time.Since(start).Nanoseconds(),
		}).Debug("JoinGroup()")

		if err == nil {
			n.SetState(state.Serving)
			return
		}

		if ctx.Err() != nil {
			return
		}

		n.logger.WithError(err).WithField("target", peer.NetAddr).Warn("Cannot join")
		n.selector.UpdateLast(peer.NetAddr)
	}

	// A candidate may still be admitted later, once it has collected enough
	// votes, so the node keeps answering requests.
	n.logger.Warn("Not admitted through any bootstrap peer => Serving")
	n.SetState(state.Serving)
}

// JoinGroup asks the node at target to admit us. Our join payloads are
// presented in turn until one is accepted. On acceptance the responder's own
// payload is evaluated locally and the result is sent back with a
// JoinResultRequest.
func (n *Node) JoinGroup(ctx context.Context, target string) error {
	payloads, err := n.joinPayloads(ctx)
	if err != nil {
		return err
	}

	var lastErr error
	for _, payload := range payloads {
		resp, err := n.requestJoin(target, payload)
		if err != nil {
			return err
		}

		n.logger.WithFields(logrus.Fields{
			"from":       resp.FromAddr.String(),
			"accepted":   resp.Accepted,
			"need_retry": resp.NeedRetry,
		}).Debug("JoinResponse")

		if resp.Accepted {
			return n.acknowledgeJoin(ctx, target, &resp)
		}

		if !resp.NeedRetry {
			return ErrNotAdmitted
		}

		verdict := group.JoinVerdict{
			NeedRetry: resp.NeedRetry,
			Response:  resp.Payload,
		}
		lastErr = common.NewAdmissionErr("Node", verdict.Reason().ErrType(), target)
	}

	return lastErr
}

func (n *Node) acknowledgeJoin(ctx context.Context, target string, resp *net.JoinResponse) error {
	n.setRoute(resp.FromAddr, target)

	promise := NewVerdictPromise()
	ev := group.PeerJoinRequest{
		Addr:       resp.FromAddr,
		SocketAddr: target,
		Payload:    resp.Payload,
	}
	if err := n.coordinator.Deliver(ctx, ev, promise); err != nil {
		return err
	}

	verdict, _ := promise.Verdict()
	accepted := !verdict.Rejected()

	if !accepted {
		n.deleteRoute(resp.FromAddr)
	}

	out, err := n.requestJoinResult(target, accepted, verdict.Response)
	if err != nil {
		n.logger.WithError(err).Error("requestJoinResult()")
		return err
	}

	n.logger.WithFields(logrus.Fields{
		"from":     out.FromAddr.String(),
		"accepted": accepted,
		"success":  out.Success,
	}).Debug("JoinResultResponse")

	if !accepted {
		return common.NewAdmissionErr("Node", verdict.Reason().ErrType(), resp.FromAddr.String())
	}

	return nil
}

func (n *Node) joinPayloads(ctx context.Context) ([][]byte, error) {
	var payloads [][]byte
	err := n.coordinator.Query(ctx, func(p group.Policy) {
		if mp, ok := p.(multiPayload); ok {
			payloads = mp.JoinPayloads()
		}
		if len(payloads) == 0 {
			payloads = [][]byte{p.JoinPayload()}
		}
	})
	return payloads, err
}

func (n *Node) heartbeatLoop(ctx context.Context) {
	for {
		select {
		case <-n.heartbeatTimer.Ticks():
			if n.GetState() == state.Serving {
				n.heartbeat(ctx)
			}
		case <-ctx.Done():
			return
		}
	}
}

// heartbeat tells every known member that we are alive, marks those that
// cannot be reached as disconnected, and learns new routes from one of them.
func (n *Node) heartbeat(ctx context.Context) {
	tracked := false
	err := n.coordinator.Query(ctx, func(p group.Policy) {
		if lt, ok := p.(LivenessTracker); ok {
			tracked = true
			lt.HeartBeat(n.validator.PublicKey())
		}
	})
	if err != nil || !tracked {
		return
	}

	routes := n.Routes()

	g := new(errgroup.Group)
	g.SetLimit(n.conf.MaxPool + 1)

	var unreachable sync.Map
	for addr, target := range routes {
		addr, target := addr, target
		g.Go(func() error {
			if _, err := n.requestHeartbeat(target); err != nil {
				unreachable.Store(addr, err)
			}
			return nil
		})
	}
	g.Wait()

	unreachable.Range(func(k, v interface{}) bool {
		addr := k.(peers.Addr)
		n.logger.WithError(v.(error)).WithField("peer", addr.String()).Debug("Heartbeat failed")
		if err := n.coordinator.Deliver(ctx, group.PeerDisconnected{Addr: addr}, nil); err != nil {
			return false
		}
		delete(routes, addr)
		return true
	})

	for _, target := range routes {
		if err := n.syncPeers(target); err == nil {
			break
		}
	}
}

func (n *Node) syncPeers(target string) error {
	resp, err := n.requestSyncPeers(target)
	if err != nil {
		n.logger.WithError(err).Debug("requestSyncPeers()")
		return err
	}

	learnt := 0
	for _, p := range resp.Peers {
		if p.Addr == n.validator.Addr() || p.SocketAddr == "" {
			continue
		}
		if _, ok := n.route(p.Addr); !ok {
			n.setRoute(p.Addr, p.SocketAddr)
			learnt++
		}
	}

	if learnt > 0 {
		n.logger.WithField("learnt", learnt).Debug("Routes synced")
	}
	return nil
}

// Leave announces to every known peer that we leave the group, then shuts the
// node down.
func (n *Node) Leave() error {
	n.logger.Debug("LEAVING")

	defer n.Shutdown()

	n.SetState(state.Leaving)

	var errs int
	for addr, target := range n.Routes() {
		if _, err := n.requestLeave(target); err != nil {
			n.logger.WithError(err).WithField("peer", addr.String()).Error("Leaving")
			errs++
		}
	}

	if errs > 0 {
		return errors.New("some peers were not notified")
	}
	return nil
}

// Shutdown makes Run return. It can be called more than once.
func (n *Node) Shutdown() {
	n.shutdownOnce.Do(func() {
		n.logger.Debug("Shutdown")
		close(n.shutdownCh)
	})
}

// ID returns the identifier of the group.
func (n *Node) ID() peers.GroupID {
	return n.groupID
}

// Addr returns the peer address of this node.
func (n *Node) Addr() peers.Addr {
	return n.validator.Addr()
}

// Routes returns a copy of the known socket addresses, indexed by peer
// address.
func (n *Node) Routes() map[peers.Addr]string {
	n.routesLock.RLock()
	defer n.routesLock.RUnlock()

	res := make(map[peers.Addr]string, len(n.routes))
	for k, v := range n.routes {
		res[k] = v
	}
	return res
}

func (n *Node) route(addr peers.Addr) (string, bool) {
	n.routesLock.RLock()
	defer n.routesLock.RUnlock()
	s, ok := n.routes[addr]
	return s, ok
}

func (n *Node) setRoute(addr peers.Addr, socketAddr string) {
	if addr == n.validator.Addr() {
		return
	}
	n.routesLock.Lock()
	defer n.routesLock.Unlock()
	n.routes[addr] = socketAddr
}

func (n *Node) deleteRoute(addr peers.Addr) {
	n.routesLock.Lock()
	defer n.routesLock.Unlock()
	delete(n.routes, addr)
}

// GetStats returns stats
func (n *Node) GetStats(ctx context.Context) (map[string]string, error) {
	members, living := 0, -1
	err := n.coordinator.Query(ctx, func(p group.Policy) {
		if in, ok := p.(group.Inspector); ok {
			members = in.Members()
		}
		if lt, ok := p.(LivenessTracker); ok {
			living = len(lt.LivingPeers())
		}
	})
	if err != nil {
		return nil, err
	}

	s := map[string]string{
		"state":         n.GetState().String(),
		"group":         n.groupID.Hex(),
		"policy":        n.conf.Policy,
		"moniker":       n.validator.Moniker,
		"pub_key":       n.validator.PublicKeyHex(),
		"addr":          n.validator.Addr().Hex(),
		"members":       strconv.Itoa(members),
		"routes":        strconv.Itoa(len(n.Routes())),
		"join_requests": strconv.FormatInt(atomic.LoadInt64(&n.joinRequests), 10),
		"join_accepted": strconv.FormatInt(atomic.LoadInt64(&n.joinAccepted), 10),
		"join_rejected": strconv.FormatInt(atomic.LoadInt64(&n.joinRejected), 10),
		"uptime":        time.Since(n.start).Truncate(time.Second).String(),
		"version":       version.Version,
	}
	if living >= 0 {
		s["living"] = strconv.Itoa(living)
	}
	return s, nil
}

// MemberInfo describes one member of the group.
type MemberInfo struct {
	PubKey     string `json:"pub_key"`
	Addr       string `json:"addr"`
	SocketAddr string `json:"socket_addr,omitempty"`
}

// GetMembers lists the members of the group, ordered by public key.
func (n *Node) GetMembers(ctx context.Context) ([]MemberInfo, error) {
	var records []*membership.Record
	err := n.coordinator.Query(ctx, func(p group.Policy) {
		if ml, ok := p.(MemberLister); ok {
			records = ml.Peers()
		}
	})
	if err != nil {
		return nil, err
	}

	res := make([]MemberInfo, 0, len(records))
	for _, r := range records {
		socket := r.SocketAddr
		if socket == "" {
			socket, _ = n.route(r.Addr)
		}
		if r.Addr == n.validator.Addr() {
			socket = n.trans.AdvertiseAddr()
		}
		res = append(res, MemberInfo{
			PubKey:     n.validator.Scheme.Display(r.PubKey),
			Addr:       r.Addr.Hex(),
			SocketAddr: socket,
		})
	}
	return res, nil
}

// GetLiving lists the public keys of the members known to be alive. It is
// empty for policies that do not track liveness.
func (n *Node) GetLiving(ctx context.Context) ([]string, error) {
	res := []string{}
	err := n.coordinator.Query(ctx, func(p group.Policy) {
		if lt, ok := p.(LivenessTracker); ok {
			for _, pk := range lt.LivingPeers() {
				res = append(res, n.validator.Scheme.Display(pk))
			}
		}
	})
	return res, err
}

// GetStanding returns the standing of the peer whose public key is pubKeyHex.
func (n *Node) GetStanding(ctx context.Context, pubKeyHex string) (group.Standing, error) {
	pk, err := common.DecodeFromString(pubKeyHex)
	if err != nil {
		return group.Standing{}, err
	}

	standing := group.UnknownStanding()
	err = n.coordinator.Query(ctx, func(p group.Policy) {
		if ks, ok := p.(keyStanding); ok {
			standing = ks.Standing(pk)
			return
		}
		in, ok := p.(group.Inspector)
		if !ok {
			return
		}
		addr := peers.AddrFromPublicKey(pk)
		if ar, ok := p.(addrResolver); ok {
			if a, ok := ar.PeerAddr(pk); ok {
				addr = a
			}
		}
		standing = in.StandingOf(addr)
	})
	return standing, err
}
