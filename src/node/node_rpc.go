package node

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/net"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
)

func (n *Node) requestJoin(target string, payload []byte) (net.JoinResponse, error) {
	args := net.JoinRequest{
		FromAddr:   n.validator.Addr(),
		GroupID:    n.groupID,
		SocketAddr: n.trans.AdvertiseAddr(),
		Payload:    payload,
	}

	var out net.JoinResponse

	err := n.trans.Join(target, &args, &out)

	return out, err
}

func (n *Node) requestJoinResult(target string, accepted bool, payload []byte) (net.JoinResultResponse, error) {
	args := net.JoinResultRequest{
		FromAddr: n.validator.Addr(),
		GroupID:  n.groupID,
		Accepted: accepted,
		Payload:  payload,
	}

	var out net.JoinResultResponse

	err := n.trans.JoinResult(target, &args, &out)

	return out, err
}

func (n *Node) requestLeave(target string) (net.LeaveResponse, error) {
	args := net.LeaveRequest{
		FromAddr: n.validator.Addr(),
		GroupID:  n.groupID,
	}

	var out net.LeaveResponse

	err := n.trans.Leave(target, &args, &out)

	return out, err
}

func (n *Node) requestHeartbeat(target string) (net.HeartbeatResponse, error) {
	args := net.HeartbeatRequest{
		FromAddr: n.validator.Addr(),
		GroupID:  n.groupID,
		PubKey:   n.validator.PublicKey(),
	}

	var out net.HeartbeatResponse

	err := n.trans.Heartbeat(target, &args, &out)

	return out, err
}

func (n *Node) requestSyncPeers(target string) (net.SyncPeersResponse, error) {
	args := net.SyncPeersRequest{
		FromAddr: n.validator.Addr(),
		GroupID:  n.groupID,
		PubKey:   n.validator.PublicKey(),
	}

	var out net.SyncPeersResponse

	err := n.trans.SyncPeers(target, &args, &out)

	return out, err
}

func (n *Node) processRPC(ctx context.Context, rpc net.RPC) {
	switch cmd := rpc.Command.(type) {
	case *net.JoinRequest:
		n.processJoinRequest(ctx, rpc, cmd)
	case *net.JoinResultRequest:
		n.processJoinResultRequest(ctx, rpc, cmd)
	case *net.LeaveRequest:
		n.processLeaveRequest(ctx, rpc, cmd)
	case *net.HeartbeatRequest:
		n.processHeartbeatRequest(ctx, rpc, cmd)
	case *net.SyncPeersRequest:
		n.processSyncPeersRequest(ctx, rpc, cmd)
	default:
		n.logger.WithField("cmd", rpc.Command).Error("Unexpected RPC command")
		rpc.Respond(nil, fmt.Errorf("unexpected command"))
	}
}

func (n *Node) checkGroup(id peers.GroupID) error {
	if id != n.groupID {
		return fmt.Errorf("unknown group %s", id)
	}
	return nil
}

func (n *Node) processJoinRequest(ctx context.Context, rpc net.RPC, cmd *net.JoinRequest) {
	n.logger.WithFields(logrus.Fields{
		"from":        cmd.FromAddr.String(),
		"socket_addr": cmd.SocketAddr,
	}).Debug("process JoinRequest")

	atomic.AddInt64(&n.joinRequests, 1)

	resp := &net.JoinResponse{
		FromAddr: n.validator.Addr(),
	}

	if err := n.checkGroup(cmd.GroupID); err != nil {
		rpc.Respond(resp, err)
		return
	}

	promise := NewVerdictPromise()

	ev := group.PeerJoinRequest{
		Addr:       cmd.FromAddr,
		SocketAddr: cmd.SocketAddr,
		Payload:    cmd.Payload,
	}

	if err := n.coordinator.Deliver(ctx, ev, promise); err != nil {
		n.logger.WithError(err).Error("Delivering JoinRequest")
		rpc.Respond(resp, err)
		return
	}

	verdict, ok := promise.Verdict()
	if !ok {
		rpc.Respond(resp, fmt.Errorf("no verdict for %s", cmd.FromAddr))
		return
	}

	switch {
	case verdict.Accepted:
		atomic.AddInt64(&n.joinAccepted, 1)
		if cmd.SocketAddr != "" {
			n.setRoute(cmd.FromAddr, cmd.SocketAddr)
		}
	case verdict.Rejected():
		atomic.AddInt64(&n.joinRejected, 1)
	}

	resp.Accepted = verdict.Accepted
	resp.NeedRetry = verdict.NeedRetry
	resp.Payload = verdict.Response

	rpc.Respond(resp, nil)
}

func (n *Node) processJoinResultRequest(ctx context.Context, rpc net.RPC, cmd *net.JoinResultRequest) {
	n.logger.WithFields(logrus.Fields{
		"from":     cmd.FromAddr.String(),
		"accepted": cmd.Accepted,
	}).Debug("process JoinResultRequest")

	resp := &net.JoinResultResponse{
		FromAddr: n.validator.Addr(),
	}

	if err := n.checkGroup(cmd.GroupID); err != nil {
		rpc.Respond(resp, err)
		return
	}

	ev := group.PeerJoinOutcome{
		Addr:     cmd.FromAddr,
		Accepted: cmd.Accepted,
		Response: cmd.Payload,
	}

	if err := n.coordinator.Deliver(ctx, ev, nil); err != nil {
		rpc.Respond(resp, err)
		return
	}

	if !cmd.Accepted {
		n.deleteRoute(cmd.FromAddr)
	}

	resp.Success = true
	rpc.Respond(resp, nil)
}

func (n *Node) processLeaveRequest(ctx context.Context, rpc net.RPC, cmd *net.LeaveRequest) {
	n.logger.WithField("from", cmd.FromAddr.String()).Debug("process LeaveRequest")

	resp := &net.LeaveResponse{
		FromAddr: n.validator.Addr(),
	}

	if err := n.checkGroup(cmd.GroupID); err != nil {
		rpc.Respond(resp, err)
		return
	}

	if err := n.coordinator.Deliver(ctx, group.PeerDisconnected{Addr: cmd.FromAddr}, nil); err != nil {
		rpc.Respond(resp, err)
		return
	}

	n.deleteRoute(cmd.FromAddr)

	resp.Success = true
	rpc.Respond(resp, nil)
}

func (n *Node) processHeartbeatRequest(ctx context.Context, rpc net.RPC, cmd *net.HeartbeatRequest) {
	resp := &net.HeartbeatResponse{
		FromAddr: n.validator.Addr(),
	}

	if err := n.checkGroup(cmd.GroupID); err != nil {
		rpc.Respond(resp, err)
		return
	}

	err := n.coordinator.Query(ctx, func(p group.Policy) {
		if lt, ok := p.(LivenessTracker); ok {
			if lt.HasPeer(cmd.PubKey) {
				lt.HeartBeat(cmd.PubKey)
				resp.Success = true
			}
			return
		}
		if in, ok := p.(group.Inspector); ok {
			resp.Success = in.StandingOf(cmd.FromAddr).State == group.Member
		}
	})

	rpc.Respond(resp, err)
}

func (n *Node) processSyncPeersRequest(ctx context.Context, rpc net.RPC, cmd *net.SyncPeersRequest) {
	resp := &net.SyncPeersResponse{
		FromAddr: n.validator.Addr(),
	}

	if err := n.checkGroup(cmd.GroupID); err != nil {
		rpc.Respond(resp, err)
		return
	}

	var living []peers.Addr
	err := n.coordinator.Query(ctx, func(p group.Policy) {
		if lt, ok := p.(LivenessTracker); ok {
			living = lt.HelpSyncPeers(cmd.PubKey)
		}
	})
	if err != nil {
		rpc.Respond(resp, err)
		return
	}

	for _, addr := range living {
		var socket string
		if addr == n.validator.Addr() {
			socket = n.trans.AdvertiseAddr()
		} else if s, ok := n.route(addr); ok {
			socket = s
		} else {
			continue
		}
		resp.Peers = append(resp.Peers, net.PeerInfo{
			Addr:       addr,
			SocketAddr: socket,
		})
	}

	rpc.Respond(resp, nil)
}
