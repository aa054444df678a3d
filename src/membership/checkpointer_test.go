package membership

import (
	"errors"
	"sync"
	"testing"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type failingPersister struct {
	l      sync.Mutex
	fail   bool
	writes int
	closed bool
}

func (p *failingPersister) Load(id peers.GroupID) (Snapshot, error) {
	return nil, common.NewStoreErr("failingPersister", common.KeyNotFound, groupKey(id))
}

func (p *failingPersister) Write(id peers.GroupID, snap Snapshot) error {
	p.l.Lock()
	defer p.l.Unlock()
	if p.fail {
		return errors.New("disk full")
	}
	p.writes++
	return nil
}

func (p *failingPersister) Close() error {
	p.l.Lock()
	defer p.l.Unlock()
	p.closed = true
	return nil
}

func TestCheckpointerWritesLatest(t *testing.T) {
	id := peers.GroupIDFromName("g")
	p := NewInmemPersister()
	c := NewCheckpointer(id, p, common.NewTestEntry(t, logrus.DebugLevel))

	s := NewStore()
	for i := byte(1); i <= 5; i++ {
		s.Add(addr(i), &Record{PubKey: identity.PublicKey{i}})
		c.Notify(s.Snapshot())
	}
	c.Flush()

	loaded, err := p.Load(id)
	require.NoError(t, err)
	assert.Equal(t, s.Snapshot(), loaded)
	assert.True(t, p.Writes() >= 1 && p.Writes() <= 5)

	require.NoError(t, c.Close())
	require.NoError(t, c.Close())

	// ignored after close
	c.Notify(Snapshot{})
	c.Flush()
	loaded, err = p.Load(id)
	require.NoError(t, err)
	assert.Len(t, loaded, 5)
}

func TestCheckpointerFailureDoesNotStop(t *testing.T) {
	id := peers.GroupIDFromName("g")
	p := &failingPersister{fail: true}
	c := NewCheckpointer(id, p, common.NewTestEntry(t, logrus.DebugLevel))

	c.Notify(Snapshot{"0X01": addr(1)})
	c.Flush()
	assert.Equal(t, 1, c.Failures())

	p.l.Lock()
	p.fail = false
	p.l.Unlock()

	c.Notify(Snapshot{"0X01": addr(1)})
	c.Flush()
	assert.Equal(t, 1, c.Failures())

	require.NoError(t, c.Close())

	p.l.Lock()
	defer p.l.Unlock()
	assert.Equal(t, 1, p.writes)
	assert.True(t, p.closed)
}
