package net

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/ugorji/go/codec"
)

var msgpackHandle = &codec.MsgpackHandle{}

var (
	// ErrTransportShutdown is returned when operations on a transport are
	// invoked after it's been terminated.
	ErrTransportShutdown = errors.New("transport shutdown")
)

// rpcKind tags every request frame.
type rpcKind uint8

const (
	rpcJoin rpcKind = iota
	rpcJoinResult
	rpcLeave
	rpcHeartbeat
	rpcSyncPeers
)

func (k rpcKind) String() string {
	switch k {
	case rpcJoin:
		return "Join"
	case rpcJoinResult:
		return "JoinResult"
	case rpcLeave:
		return "Leave"
	case rpcHeartbeat:
		return "Heartbeat"
	case rpcSyncPeers:
		return "SyncPeers"
	default:
		return fmt.Sprintf("rpcKind(%d)", uint8(k))
	}
}

// newCommand returns an empty request for kind, ready to be decoded into.
func newCommand(kind rpcKind) (interface{}, error) {
	switch kind {
	case rpcJoin:
		return &JoinRequest{}, nil
	case rpcJoinResult:
		return &JoinResultRequest{}, nil
	case rpcLeave:
		return &LeaveRequest{}, nil
	case rpcHeartbeat:
		return &HeartbeatRequest{}, nil
	case rpcSyncPeers:
		return &SyncPeersRequest{}, nil
	default:
		return nil, fmt.Errorf("unknown rpc kind %d", uint8(kind))
	}
}

// responseHeader precedes every response body.
type responseHeader struct {
	Error string
}

// RemoteError is an error reported by the node at Target while handling the
// request. The connection that carried it stays usable.
type RemoteError struct {
	Target  string
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// IsRemote reports whether err was returned by the remote handler rather than
// by the network.
func IsRemote(err error) bool {
	var re *RemoteError
	return errors.As(err, &re)
}

/*
NetworkTransport carries admission RPCs between nodes over a StreamLayer.

Every frame is a msgpack stream: the request kind, then the request. The
answer is a responseHeader, then the response body. Outbound connections are
pooled per target and reused once an exchange completes cleanly. Join calls
use their own deadline because the remote may have to verify certificates
and persist a snapshot before answering.
*/
type NetworkTransport struct {
	logger *logrus.Entry

	stream StreamLayer
	pool   *connPool

	consumeCh chan RPC

	shutdownOnce sync.Once
	shutdownCh   chan struct{}

	timeout     time.Duration
	joinTimeout time.Duration
}

// NewNetworkTransport creates a transport over stream. maxPool bounds the
// idle connections kept per target. timeout is the I/O deadline of every
// call except Join, which uses joinTimeout.
func NewNetworkTransport(
	stream StreamLayer,
	maxPool int,
	timeout time.Duration,
	joinTimeout time.Duration,
	logger *logrus.Entry,
) *NetworkTransport {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &NetworkTransport{
		logger:      logger,
		stream:      stream,
		pool:        newConnPool(maxPool),
		consumeCh:   make(chan RPC),
		shutdownCh:  make(chan struct{}),
		timeout:     timeout,
		joinTimeout: joinTimeout,
	}
}

// Close stops the listener and releases pooled connections. It is safe to
// call more than once.
func (n *NetworkTransport) Close() error {
	var err error
	n.shutdownOnce.Do(func() {
		close(n.shutdownCh)
		err = n.stream.Close()
		n.pool.drain()
	})
	return err
}

// Consumer implements the Transport interface.
func (n *NetworkTransport) Consumer() <-chan RPC {
	return n.consumeCh
}

// LocalAddr implements the Transport interface.
func (n *NetworkTransport) LocalAddr() string {
	if addr := n.stream.Addr(); addr != nil {
		return addr.String()
	}
	return ""
}

// AdvertiseAddr implements the Transport interface.
func (n *NetworkTransport) AdvertiseAddr() string {
	return n.stream.AdvertiseAddr()
}

// IsShutdown is used to check if the transport is shutdown.
func (n *NetworkTransport) IsShutdown() bool {
	select {
	case <-n.shutdownCh:
		return true
	default:
		return false
	}
}

// Join implements the Transport interface.
func (n *NetworkTransport) Join(target string, args *JoinRequest, resp *JoinResponse) error {
	return n.call(target, rpcJoin, args, resp)
}

// JoinResult implements the Transport interface.
func (n *NetworkTransport) JoinResult(target string, args *JoinResultRequest, resp *JoinResultResponse) error {
	return n.call(target, rpcJoinResult, args, resp)
}

// Leave implements the Transport interface.
func (n *NetworkTransport) Leave(target string, args *LeaveRequest, resp *LeaveResponse) error {
	return n.call(target, rpcLeave, args, resp)
}

// Heartbeat implements the Transport interface.
func (n *NetworkTransport) Heartbeat(target string, args *HeartbeatRequest, resp *HeartbeatResponse) error {
	return n.call(target, rpcHeartbeat, args, resp)
}

// SyncPeers implements the Transport interface.
func (n *NetworkTransport) SyncPeers(target string, args *SyncPeersRequest, resp *SyncPeersResponse) error {
	return n.call(target, rpcSyncPeers, args, resp)
}

func (n *NetworkTransport) deadline(kind rpcKind) time.Duration {
	if kind == rpcJoin {
		return n.joinTimeout
	}
	return n.timeout
}

// call performs one request/response exchange with target. A connection that
// failed mid-exchange is closed; one that carried a RemoteError is pooled.
func (n *NetworkTransport) call(target string, kind rpcKind, args interface{}, resp interface{}) error {
	if n.IsShutdown() {
		return ErrTransportShutdown
	}

	timeout := n.deadline(kind)

	conn := n.pool.take(target)
	if conn == nil {
		raw, err := n.stream.Dial(target, timeout)
		if err != nil {
			return err
		}
		conn = newNetConn(target, raw)
	}

	if timeout > 0 {
		conn.conn.SetDeadline(time.Now().Add(timeout))
	}

	remote, err := conn.exchange(kind, args, resp)
	if err != nil {
		conn.Release()
		n.logger.WithFields(logrus.Fields{
			"target": target,
			"rpc":    kind,
		}).WithError(err).Debug("RPC failed")
		return err
	}

	n.pool.put(conn)

	if remote != "" {
		return &RemoteError{Target: target, Message: remote}
	}
	return nil
}

// exchange writes the request and reads back the header and body. It returns
// the remote error message, if any, separately from transport errors.
func (c *netConn) exchange(kind rpcKind, args interface{}, resp interface{}) (string, error) {
	if err := c.enc.Encode(kind); err != nil {
		return "", err
	}
	if err := c.enc.Encode(args); err != nil {
		return "", err
	}
	if err := c.w.Flush(); err != nil {
		return "", err
	}

	var header responseHeader
	if err := c.dec.Decode(&header); err != nil {
		return "", err
	}
	if err := c.dec.Decode(resp); err != nil {
		return "", err
	}
	return header.Error, nil
}

// Listen accepts inbound connections until the transport is closed.
func (n *NetworkTransport) Listen() {
	for {
		conn, err := n.stream.Accept()
		if err != nil {
			if n.IsShutdown() {
				return
			}
			n.logger.WithError(err).Error("Failed to accept connection")
			continue
		}

		n.logger.WithFields(logrus.Fields{
			"node": conn.LocalAddr(),
			"from": conn.RemoteAddr(),
		}).Debug("Accepted connection")

		go n.serveConn(conn)
	}
}

// serveConn answers requests on an inbound connection until it fails.
func (n *NetworkTransport) serveConn(conn net.Conn) {
	defer conn.Close()

	logger := n.logger.WithField("from", conn.RemoteAddr())

	w := bufio.NewWriterSize(conn, bufSize)
	dec := codec.NewDecoder(bufio.NewReaderSize(conn, bufSize), msgpackHandle)
	enc := codec.NewEncoder(w, msgpackHandle)

	for {
		err := n.serveOne(dec, enc)
		if err == nil {
			err = w.Flush()
		}

		switch {
		case err == nil:
			continue
		case err == io.EOF:
		case err == ErrTransportShutdown:
			logger.Debug("Dropping connection on shutdown")
		default:
			logger.WithError(err).Error("Failed to serve request")
		}
		return
	}
}

// serveOne decodes a single request, hands it to the consumer and encodes the
// answer.
func (n *NetworkTransport) serveOne(dec *codec.Decoder, enc *codec.Encoder) error {
	var kind rpcKind
	if err := dec.Decode(&kind); err != nil {
		return err
	}

	cmd, err := newCommand(kind)
	if err != nil {
		return err
	}
	if err := dec.Decode(cmd); err != nil {
		return err
	}

	respCh := make(chan RPCResponse, 1)
	rpc := RPC{
		Command:  cmd,
		RespChan: respCh,
	}

	select {
	case n.consumeCh <- rpc:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	var resp RPCResponse
	select {
	case resp = <-respCh:
	case <-n.shutdownCh:
		return ErrTransportShutdown
	}

	var header responseHeader
	if resp.Error != nil {
		header.Error = resp.Error.Error()
	}
	if err := enc.Encode(&header); err != nil {
		return err
	}
	return enc.Encode(resp.Response)
}
