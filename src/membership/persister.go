package membership

import (
	"bytes"
	"sync"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/ugorji/go/codec"
)

// Persister stores membership snapshots by group. Load returns a
// common.StoreErr of type KeyNotFound when nothing was ever written for the
// group.
type Persister interface {
	Load(id peers.GroupID) (Snapshot, error)
	Write(id peers.GroupID, snap Snapshot) error
	Close() error
}

// groupKey is the key under which the snapshot of a group is stored.
func groupKey(id peers.GroupID) string {
	return "group_" + id.Hex()
}

// Marshal returns the canonical JSON encoding of the snapshot, with addresses
// in hexadecimal.
func (s Snapshot) Marshal() ([]byte, error) {
	flat := make(map[string]string, len(s))
	for k, a := range s {
		flat[k] = a.Hex()
	}

	b := new(bytes.Buffer)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	enc := codec.NewEncoder(b, jh)

	if err := enc.Encode(flat); err != nil {
		return nil, err
	}

	return b.Bytes(), nil
}

// UnmarshalSnapshot decodes the output of Snapshot.Marshal.
func UnmarshalSnapshot(data []byte) (Snapshot, error) {
	flat := make(map[string]string)

	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	jh.Canonical = true
	dec := codec.NewDecoder(b, jh)

	if err := dec.Decode(&flat); err != nil {
		return nil, err
	}

	res := make(Snapshot, len(flat))
	for k, h := range flat {
		a, err := peers.ParseAddr(h)
		if err != nil {
			return nil, err
		}
		res[k] = a
	}
	return res, nil
}

// InmemPersister keeps snapshots in memory. It is used when no database is
// configured and in tests.
type InmemPersister struct {
	l      sync.Mutex
	groups map[peers.GroupID][]byte
	writes int
}

// NewInmemPersister creates an empty InmemPersister.
func NewInmemPersister() *InmemPersister {
	return &InmemPersister{
		groups: make(map[peers.GroupID][]byte),
	}
}

// Load implements Persister.
func (p *InmemPersister) Load(id peers.GroupID) (Snapshot, error) {
	p.l.Lock()
	defer p.l.Unlock()

	data, ok := p.groups[id]
	if !ok {
		return nil, common.NewStoreErr("InmemPersister", common.KeyNotFound, groupKey(id))
	}
	return UnmarshalSnapshot(data)
}

// Write implements Persister.
func (p *InmemPersister) Write(id peers.GroupID, snap Snapshot) error {
	data, err := snap.Marshal()
	if err != nil {
		return err
	}

	p.l.Lock()
	defer p.l.Unlock()

	p.groups[id] = data
	p.writes++
	return nil
}

// Writes returns the number of successful writes.
func (p *InmemPersister) Writes() int {
	p.l.Lock()
	defer p.l.Unlock()
	return p.writes
}

// Close implements Persister.
func (p *InmemPersister) Close() error {
	return nil
}
