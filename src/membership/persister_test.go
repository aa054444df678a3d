package membership

import (
	"path/filepath"
	"testing"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPersisters(t *testing.T) map[string]Persister {
	dir := t.TempDir()

	bp, err := NewBadgerPersister(filepath.Join(dir, "badger"), common.NewTestEntry(t, logrus.WarnLevel))
	require.NoError(t, err)

	sp, err := NewSQLitePersister(filepath.Join(dir, "sqlite", "members.db"))
	require.NoError(t, err)

	return map[string]Persister{
		"inmem":  NewInmemPersister(),
		"badger": bp,
		"sqlite": sp,
	}
}

func TestPersisters(t *testing.T) {
	for name, p := range testPersisters(t) {
		t.Run(name, func(t *testing.T) {
			defer p.Close()

			g1 := peers.GroupIDFromName("one")
			g2 := peers.GroupIDFromName("two")

			_, err := p.Load(g1)
			require.Error(t, err)
			assert.True(t, common.IsStore(err, common.KeyNotFound), err.Error())

			snap := Snapshot{
				KeyString(identity.PublicKey{0x01}): addr(1),
				KeyString(identity.PublicKey{0x02}): addr(2),
			}
			require.NoError(t, p.Write(g1, snap))

			loaded, err := p.Load(g1)
			require.NoError(t, err)
			assert.Equal(t, snap, loaded)

			// overwrite shrinks the set
			smaller := Snapshot{KeyString(identity.PublicKey{0x02}): addr(2)}
			require.NoError(t, p.Write(g1, smaller))
			loaded, err = p.Load(g1)
			require.NoError(t, err)
			assert.Equal(t, smaller, loaded)

			// groups are independent, an empty snapshot is not "not found"
			require.NoError(t, p.Write(g2, Snapshot{}))
			loaded, err = p.Load(g2)
			require.NoError(t, err)
			assert.Empty(t, loaded)
		})
	}
}

func TestSnapshotMarshal(t *testing.T) {
	snap := Snapshot{"0X01": addr(1)}

	data, err := snap.Marshal()
	require.NoError(t, err)

	again, err := snap.Marshal()
	require.NoError(t, err)
	assert.Equal(t, data, again)

	back, err := UnmarshalSnapshot(data)
	require.NoError(t, err)
	assert.Equal(t, snap, back)

	_, err = UnmarshalSnapshot([]byte(`{"0X01":"nothex"}`))
	assert.Error(t, err)
}
