package membership

import (
	"sort"

	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/identity"
	"github.com/mosaicnetworks/turnstile/src/peers"
)

// Record is the membership entry of an admitted peer.
type Record struct {
	PubKey     identity.PublicKey
	Proof      []byte
	Addr       peers.Addr
	SocketAddr string
}

// Snapshot maps the hexadecimal form of public keys to addresses. It is the
// unit of persistence.
type Snapshot map[string]peers.Addr

// Copy returns an independent copy of the snapshot.
func (s Snapshot) Copy() Snapshot {
	res := make(Snapshot, len(s))
	for k, v := range s {
		res[k] = v
	}
	return res
}

// KeyString is the map key under which a public key is indexed.
func KeyString(pk identity.PublicKey) string {
	return common.EncodeToString(pk)
}

// Store is the membership table of one group.
type Store struct {
	byAddr map[peers.Addr]*Record
	byKey  map[string]peers.Addr
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		byAddr: make(map[peers.Addr]*Record),
		byKey:  make(map[string]peers.Addr),
	}
}

// Add binds record to addr. A stale binding of addr to another key, or of the
// record's key to another address, is dropped so that both indexes always
// agree.
func (s *Store) Add(addr peers.Addr, record *Record) {
	key := KeyString(record.PubKey)

	if old, ok := s.byAddr[addr]; ok {
		oldKey := KeyString(old.PubKey)
		if oldKey != key {
			delete(s.byKey, oldKey)
		}
	}

	if oldAddr, ok := s.byKey[key]; ok && oldAddr != addr {
		delete(s.byAddr, oldAddr)
	}

	record.Addr = addr
	s.byAddr[addr] = record
	s.byKey[key] = addr
}

// Get returns the record bound to addr.
func (s *Store) Get(addr peers.Addr) (*Record, bool) {
	r, ok := s.byAddr[addr]
	return r, ok
}

// GetByKey returns the address bound to pk.
func (s *Store) GetByKey(pk identity.PublicKey) (peers.Addr, bool) {
	a, ok := s.byKey[KeyString(pk)]
	return a, ok
}

// Contains reports whether addr is bound.
func (s *Store) Contains(addr peers.Addr) bool {
	_, ok := s.byAddr[addr]
	return ok
}

// ContainsKey reports whether pk is a member.
func (s *Store) ContainsKey(pk identity.PublicKey) bool {
	_, ok := s.byKey[KeyString(pk)]
	return ok
}

// Remove unbinds addr and its key. Removing an absent address is a no-op. It
// returns the removed record, if any.
func (s *Store) Remove(addr peers.Addr) (*Record, bool) {
	r, ok := s.byAddr[addr]
	if !ok {
		return nil, false
	}
	delete(s.byAddr, addr)
	key := KeyString(r.PubKey)
	if s.byKey[key] == addr {
		delete(s.byKey, key)
	}
	return r, true
}

// RemoveKey unbinds pk and the address it is bound to.
func (s *Store) RemoveKey(pk identity.PublicKey) (*Record, bool) {
	addr, ok := s.GetByKey(pk)
	if !ok {
		return nil, false
	}
	return s.Remove(addr)
}

// Len returns the number of members.
func (s *Store) Len() int {
	return len(s.byAddr)
}

// AllKeys returns the public keys of all members, ordered by their hex form.
func (s *Store) AllKeys() []identity.PublicKey {
	res := make([]identity.PublicKey, 0, len(s.byAddr))
	for _, r := range s.Records() {
		res = append(res, r.PubKey)
	}
	return res
}

// Addrs returns the addresses of all members, ordered by public key.
func (s *Store) Addrs() []peers.Addr {
	res := make([]peers.Addr, 0, len(s.byAddr))
	for _, r := range s.Records() {
		res = append(res, r.Addr)
	}
	return res
}

// Records returns all records ordered by the hex form of their public key.
func (s *Store) Records() []*Record {
	keys := make([]string, 0, len(s.byKey))
	for k := range s.byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := make([]*Record, 0, len(keys))
	for _, k := range keys {
		res = append(res, s.byAddr[s.byKey[k]])
	}
	return res
}

// Snapshot returns the key-to-address mapping.
func (s *Store) Snapshot() Snapshot {
	res := make(Snapshot, len(s.byKey))
	for k, a := range s.byKey {
		res[k] = a
	}
	return res
}

// Restore binds every entry of snap that is not already bound. Restored
// records carry no proof and no socket address. Entries with undecodable keys
// are skipped and counted.
func (s *Store) Restore(snap Snapshot) (skipped int) {
	for k, addr := range snap {
		if _, ok := s.byKey[k]; ok {
			continue
		}
		if _, ok := s.byAddr[addr]; ok {
			continue
		}
		pk, err := common.DecodeFromString(k)
		if err != nil || len(pk) == 0 {
			skipped++
			continue
		}
		s.Add(addr, &Record{PubKey: pk})
	}
	return skipped
}
