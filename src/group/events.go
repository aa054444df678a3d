package group

import (
	"context"
	"errors"

	"github.com/mosaicnetworks/turnstile/src/peers"
)

// Event is one of PeerJoinRequest, PeerJoinOutcome or PeerDisconnected.
type Event interface {
	peerAddr() peers.Addr
}

// PeerJoinRequest is delivered when a peer asks to join the group.
type PeerJoinRequest struct {
	Addr       peers.Addr
	SocketAddr string
	Payload    []byte
}

// PeerJoinOutcome is delivered when the remote side of our own join request,
// or of a join we accepted, resolved it.
type PeerJoinOutcome struct {
	Addr     peers.Addr
	Accepted bool
	Response []byte
}

// PeerDisconnected is delivered when a peer leaves or becomes unreachable.
type PeerDisconnected struct {
	Addr peers.Addr
}

func (e PeerJoinRequest) peerAddr() peers.Addr  { return e.Addr }
func (e PeerJoinOutcome) peerAddr() peers.Addr  { return e.Addr }
func (e PeerDisconnected) peerAddr() peers.Addr { return e.Addr }

// JoinVerdict is the one outbound message produced for a join request.
type JoinVerdict struct {
	Addr      peers.Addr
	Accepted  bool
	NeedRetry bool
	Response  []byte
}

// Sender carries verdicts back to the runtime.
type Sender interface {
	SendVerdict(ctx context.Context, v JoinVerdict) error
}

// ErrSenderClosed is returned by ChanSender after Close.
var ErrSenderClosed = errors.New("sender closed")

// ChanSender is a Sender backed by a channel.
type ChanSender struct {
	ch     chan JoinVerdict
	closed chan struct{}
}

// NewChanSender creates a ChanSender with the given buffer size.
func NewChanSender(buffer int) *ChanSender {
	return &ChanSender{
		ch:     make(chan JoinVerdict, buffer),
		closed: make(chan struct{}),
	}
}

// SendVerdict implements Sender. It blocks until the verdict is buffered or
// consumed, the context is done, or the sender is closed.
func (s *ChanSender) SendVerdict(ctx context.Context, v JoinVerdict) error {
	select {
	case <-s.closed:
		return ErrSenderClosed
	default:
	}

	select {
	case s.ch <- v:
		return nil
	case <-s.closed:
		return ErrSenderClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Verdicts returns the consumer side of the sender.
func (s *ChanSender) Verdicts() <-chan JoinVerdict {
	return s.ch
}

// Close makes every subsequent send fail. It must be called once.
func (s *ChanSender) Close() {
	close(s.closed)
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, v JoinVerdict) error

// SendVerdict implements Sender.
func (f SenderFunc) SendVerdict(ctx context.Context, v JoinVerdict) error {
	return f(ctx, v)
}

// Reason returns the reason code of a negative verdict, ReasonNone otherwise.
func (v JoinVerdict) Reason() Reason {
	if v.Accepted || !v.NeedRetry || len(v.Response) != 1 {
		return ReasonNone
	}
	return Reason(v.Response[0])
}

// Rejected reports whether the verdict refuses the peer. A candidate
// awaiting quorum, or the answer of a permissionless group, is not rejected.
func (v JoinVerdict) Rejected() bool {
	r := v.Reason()
	return r != ReasonNone && r != ReasonAwaitingQuorum
}
