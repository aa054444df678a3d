package group

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingPolicy admits every payload equal to "ok".
type recordingPolicy struct {
	id      peers.GroupID
	members map[peers.Addr]bool
}

func newRecordingPolicy() *recordingPolicy {
	return &recordingPolicy{
		id:      peers.GroupIDFromName("test"),
		members: make(map[peers.Addr]bool),
	}
}

func (p *recordingPolicy) ID() peers.GroupID   { return p.id }
func (p *recordingPolicy) JoinPayload() []byte { return []byte("me") }

func (p *recordingPolicy) EvaluateJoin(addr peers.Addr, socketAddr string, payload []byte) Outcome {
	if string(payload) != "ok" {
		return Reject(ReasonMalformed, "recordingPolicy", addr.String(), nil)
	}
	p.members[addr] = true
	return Accept(p.JoinPayload())
}

func (p *recordingPolicy) ResolveJoinResult(addr peers.Addr, accepted bool, response []byte) {
	if !accepted {
		delete(p.members, addr)
	}
}

func (p *recordingPolicy) Leave(addr peers.Addr) {
	delete(p.members, addr)
}

func startCoordinator(t *testing.T, p Policy) *Coordinator {
	c := NewCoordinator(p, common.NewTestEntry(t, logrus.DebugLevel))

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return c
}

func members(t *testing.T, c *Coordinator) int {
	var n int
	require.NoError(t, c.Query(context.Background(), func(p Policy) {
		n = len(p.(*recordingPolicy).members)
	}))
	return n
}

func TestCoordinatorJoinLifecycle(t *testing.T) {
	c := startCoordinator(t, newRecordingPolicy())
	ctx := context.Background()
	sender := NewChanSender(4)
	a := peers.AddrFromPublicKey([]byte("a"))

	require.NoError(t, c.Deliver(ctx, PeerJoinRequest{Addr: a, Payload: []byte("ok")}, sender))
	v := <-sender.Verdicts()
	assert.Equal(t, a, v.Addr)
	assert.True(t, v.Accepted)
	assert.False(t, v.NeedRetry)
	assert.Equal(t, []byte("me"), v.Response)
	assert.Equal(t, 1, members(t, c))

	require.NoError(t, c.Deliver(ctx, PeerJoinOutcome{Addr: a, Accepted: false}, nil))
	assert.Equal(t, 0, members(t, c))

	require.NoError(t, c.Deliver(ctx, PeerJoinRequest{Addr: a, Payload: []byte("ok")}, sender))
	<-sender.Verdicts()
	require.NoError(t, c.Deliver(ctx, PeerDisconnected{Addr: a}, nil))
	assert.Equal(t, 0, members(t, c))
}

func TestCoordinatorRejectCarriesCode(t *testing.T) {
	c := startCoordinator(t, newRecordingPolicy())
	sender := NewChanSender(1)
	a := peers.AddrFromPublicKey([]byte("a"))

	require.NoError(t, c.Deliver(context.Background(), PeerJoinRequest{Addr: a, Payload: []byte{0xff}}, sender))
	v := <-sender.Verdicts()
	assert.False(t, v.Accepted)
	assert.Equal(t, []byte{2}, v.Response)
	assert.Equal(t, 0, members(t, c))
}

func TestCoordinatorSendFailureKeepsDecision(t *testing.T) {
	c := startCoordinator(t, newRecordingPolicy())
	sender := NewChanSender(0)
	sender.Close()
	a := peers.AddrFromPublicKey([]byte("a"))

	err := c.Deliver(context.Background(), PeerJoinRequest{Addr: a, Payload: []byte("ok")}, sender)
	require.Error(t, err)
	assert.True(t, common.IsAdmission(err, common.ChannelClosed))
	assert.True(t, errors.Is(err, ErrSenderClosed))

	// committed, not rolled back
	assert.Equal(t, 1, members(t, c))

	err = c.Deliver(context.Background(), PeerJoinRequest{Addr: a, Payload: []byte("ok")}, nil)
	assert.True(t, common.IsAdmission(err, common.ChannelClosed))
}

func TestCoordinatorStopped(t *testing.T) {
	c := NewCoordinator(newRecordingPolicy(), common.NewTestEntry(t, logrus.DebugLevel))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, c.Run(ctx))

	<-c.Done()
	err := c.Query(context.Background(), func(Policy) {})
	assert.Equal(t, ErrStopped, err)
}

func TestCoordinatorDeliverTimeout(t *testing.T) {
	c := NewCoordinator(newRecordingPolicy(), common.NewTestEntry(t, logrus.DebugLevel))

	// Run never called
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := c.Deliver(ctx, PeerDisconnected{}, nil)
	assert.Equal(t, context.DeadlineExceeded, err)
}

func TestCoordinatorSerializesEvents(t *testing.T) {
	c := startCoordinator(t, newRecordingPolicy())
	sender := NewChanSender(100)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			a := peers.AddrFromPublicKey([]byte{byte(i)})
			assert.NoError(t, c.Deliver(context.Background(), PeerJoinRequest{Addr: a, Payload: []byte("ok")}, sender))
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 50, members(t, c))
	assert.Len(t, sender.Verdicts(), 50)
}

func TestOpenPolicy(t *testing.T) {
	o := NewOpen(peers.GroupIDFromName("open"))
	c := startCoordinator(t, o)
	sender := NewChanSender(1)
	a := peers.AddrFromPublicKey([]byte("a"))

	require.NoError(t, c.Deliver(context.Background(), PeerJoinRequest{Addr: a, Payload: []byte("anything")}, sender))
	v := <-sender.Verdicts()
	assert.False(t, v.Accepted)
	assert.False(t, v.NeedRetry)
	assert.Empty(t, v.Response)

	assert.Equal(t, Unknown, o.StandingOf(a).State)
	assert.Equal(t, 0, o.Members())
}

func TestStandingString(t *testing.T) {
	assert.Equal(t, "Unknown", UnknownStanding().String())
	assert.Equal(t, "Pending(2)", PendingStanding(2).String())
	assert.Equal(t, ReasonAwaitingQuorum.ErrType(), common.NotYetQuorum)
	assert.Equal(t, "Bad Vote", ReasonNotMember.String())
}
