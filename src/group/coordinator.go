package group

import (
	"context"
	"errors"
	"fmt"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
)

// ErrStopped is returned by Deliver and Query once Run has returned.
var ErrStopped = errors.New("coordinator stopped")

type request struct {
	run   func() error
	reply chan error
}

// Coordinator owns a Policy and runs every operation on it from a single
// goroutine, one event at a time.
type Coordinator struct {
	id       peers.GroupID
	policy   Policy
	logger   *logrus.Entry
	requests chan request
	done     chan struct{}
}

// NewCoordinator creates a Coordinator for policy. Run must be called for
// Deliver and Query to make progress.
func NewCoordinator(policy Policy, logger *logrus.Entry) *Coordinator {
	if logger == nil {
		logger = logrus.NewEntry(logrus.New())
	}
	return &Coordinator{
		id:       policy.ID(),
		policy:   policy,
		logger:   logger.WithField("group", policy.ID().String()),
		requests: make(chan request),
		done:     make(chan struct{}),
	}
}

// ID returns the identifier of the group.
func (c *Coordinator) ID() peers.GroupID {
	return c.id
}

// Run processes events until ctx is cancelled. It must be called once.
func (c *Coordinator) Run(ctx context.Context) error {
	defer close(c.done)

	c.logger.Debug("Coordinator running")

	for {
		select {
		case r := <-c.requests:
			r.reply <- r.run()
		case <-ctx.Done():
			c.logger.Debug("Coordinator stopped")
			return nil
		}
	}
}

// Done is closed when Run returns.
func (c *Coordinator) Done() <-chan struct{} {
	return c.done
}

// Deliver hands ev to the policy and waits until it has been handled. For a
// PeerJoinRequest the verdict is sent through sender after the policy has
// committed its decision; a send failure is returned as a ChannelClosed
// AdmissionErr and the decision stands.
func (c *Coordinator) Deliver(ctx context.Context, ev Event, sender Sender) error {
	return c.submit(ctx, func() error {
		return c.handle(ctx, ev, sender)
	})
}

// Query runs fn with exclusive access to the policy. fn must not retain the
// policy or call back into the Coordinator.
func (c *Coordinator) Query(ctx context.Context, fn func(Policy)) error {
	return c.submit(ctx, func() error {
		fn(c.policy)
		return nil
	})
}

func (c *Coordinator) submit(ctx context.Context, run func() error) error {
	r := request{
		run:   run,
		reply: make(chan error, 1),
	}

	select {
	case c.requests <- r:
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}

	// once accepted the request always runs to completion
	return <-r.reply
}

func (c *Coordinator) handle(ctx context.Context, ev Event, sender Sender) error {
	switch e := ev.(type) {
	case PeerJoinRequest:
		out := c.policy.EvaluateJoin(e.Addr, e.SocketAddr, e.Payload)

		entry := c.logger.WithFields(logrus.Fields{
			"peer":       e.Addr.String(),
			"accepted":   out.Accepted,
			"need_retry": out.NeedRetry,
		})
		if out.Err != nil {
			entry = entry.WithError(out.Err)
		}
		entry.Debug("Join evaluated")

		if sender == nil {
			return common.NewAdmissionErr("Coordinator", common.ChannelClosed, e.Addr.String()).
				WithCause(errors.New("no sender"))
		}

		if err := sender.SendVerdict(ctx, out.Verdict(e.Addr)); err != nil {
			cerr := common.NewAdmissionErr("Coordinator", common.ChannelClosed, e.Addr.String()).WithCause(err)
			c.logger.WithError(cerr).Error("Sending join verdict")
			return cerr
		}
	case PeerJoinOutcome:
		c.policy.ResolveJoinResult(e.Addr, e.Accepted, e.Response)
		c.logger.WithFields(logrus.Fields{
			"peer":     e.Addr.String(),
			"accepted": e.Accepted,
		}).Debug("Join result resolved")
	case PeerDisconnected:
		c.policy.Leave(e.Addr)
		c.logger.WithField("peer", e.Addr.String()).Debug("Peer left")
	default:
		return fmt.Errorf("unknown event type %T", ev)
	}
	return nil
}
