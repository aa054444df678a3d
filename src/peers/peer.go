package peers

import (
	"github.com/mosaicnetworks/turnstile/src/common"
)

// Peer is a known peer as listed in peers.json.
type Peer struct {
	NetAddr   string
	PubKeyHex string
	Moniker   string
}

// NewPeer creates a new peer.
func NewPeer(pubKeyHex, netAddr, moniker string) *Peer {
	return &Peer{
		PubKeyHex: pubKeyHex,
		NetAddr:   netAddr,
		Moniker:   moniker,
	}
}

// PubKeyBytes returns the decoded public key.
func (p *Peer) PubKeyBytes() ([]byte, error) {
	return common.DecodeFromString(p.PubKeyHex)
}

// Addr returns the default address of the peer, derived from its public key.
func (p *Peer) Addr() (Addr, error) {
	pk, err := p.PubKeyBytes()
	if err != nil {
		return Addr{}, err
	}
	return AddrFromPublicKey(pk), nil
}

// ExcludePeer is used to exclude a single peer from a list of peers.
func ExcludePeer(peers []*Peer, pubKeyHex string) (int, []*Peer) {
	index := -1
	otherPeers := make([]*Peer, 0, len(peers))
	for i, p := range peers {
		if p.PubKeyHex != pubKeyHex {
			otherPeers = append(otherPeers, p)
		} else {
			index = i
		}
	}
	return index, otherPeers
}
