package membership

import (
	"github.com/dgraph-io/badger"
	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/sirupsen/logrus"
)

// BadgerPersister stores snapshots in a Badger database, one key per group.
type BadgerPersister struct {
	db   *badger.DB
	path string
}

// NewBadgerPersister opens an existing database or creates a new one if
// nothing is found in path.
func NewBadgerPersister(path string, logger *logrus.Entry) (*BadgerPersister, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerPersister{
		db:   handle,
		path: path,
	}, nil
}

// Load implements Persister.
func (p *BadgerPersister) Load(id peers.GroupID) (Snapshot, error) {
	var data []byte
	key := groupKey(id)
	err := p.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		return nil, mapError(err, "BadgerPersister", key)
	}

	return UnmarshalSnapshot(data)
}

// Write implements Persister.
func (p *BadgerPersister) Write(id peers.GroupID, snap Snapshot) error {
	val, err := snap.Marshal()
	if err != nil {
		return err
	}

	tx := p.db.NewTransaction(true)
	defer tx.Discard()

	//insert [group_<id>] => [snapshot json]
	if err := tx.Set([]byte(groupKey(id)), val); err != nil {
		return err
	}

	return tx.Commit()
}

// Close implements Persister.
func (p *BadgerPersister) Close() error {
	return p.db.Close()
}

// Path returns the database directory.
func (p *BadgerPersister) Path() string {
	return p.path
}

func mapError(err error, name, key string) error {
	if err == badger.ErrKeyNotFound {
		return common.NewStoreErr(name, common.KeyNotFound, key)
	}
	return err
}
