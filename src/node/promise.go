package node

import (
	"context"

	"github.com/mosaicnetworks/turnstile/src/group"
)

// VerdictPromise is the group.Sender handed to the coordinator for one join
// request. It captures the verdict so that the node can answer the RPC.
type VerdictPromise struct {
	RespCh chan group.JoinVerdict
}

// NewVerdictPromise creates a promise for a single verdict.
func NewVerdictPromise() *VerdictPromise {
	return &VerdictPromise{
		// buffered because the coordinator must not block on a reader that
		// gave up
		RespCh: make(chan group.JoinVerdict, 1),
	}
}

// SendVerdict implements group.Sender.
func (p *VerdictPromise) SendVerdict(ctx context.Context, v group.JoinVerdict) error {
	select {
	case p.RespCh <- v:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return group.ErrSenderClosed
	}
}

// Verdict returns the captured verdict, if any.
func (p *VerdictPromise) Verdict() (group.JoinVerdict, bool) {
	select {
	case v := <-p.RespCh:
		return v, true
	default:
		return group.JoinVerdict{}, false
	}
}
