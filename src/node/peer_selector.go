package node

import (
	"math/rand"

	"github.com/mosaicnetworks/turnstile/src/peers"
)

// PeerSelector defines an interface for choosing the next bootstrap peer to
// join through.
type PeerSelector interface {
	Peers() []*peers.Peer
	UpdateLast(netAddr string)
	Next() *peers.Peer
}

//+++++++++++++++++++++++++++++++++++++++
//RANDOM

// RandomPeerSelector picks bootstrap peers at random, avoiding the last one
// that failed.
type RandomPeerSelector struct {
	peers           []*peers.Peer
	selectablePeers []*peers.Peer
	last            string
}

// NewRandomPeerSelector is a factory method that returns a new instance of
// RandomPeerSelector. The peer whose key is selfPubKeyHex, if any, is never
// selected.
func NewRandomPeerSelector(peerList []*peers.Peer, selfPubKeyHex string) *RandomPeerSelector {
	_, selectablePeers := peers.ExcludePeer(peerList, selfPubKeyHex)
	return &RandomPeerSelector{
		peers:           peerList,
		selectablePeers: selectablePeers,
	}
}

// Peers returns every peer given to the selector.
func (ps *RandomPeerSelector) Peers() []*peers.Peer {
	return ps.peers
}

// UpdateLast sets the last peer
func (ps *RandomPeerSelector) UpdateLast(netAddr string) {
	ps.last = netAddr
}

// Next returns the next peer, or nil if there is none.
func (ps *RandomPeerSelector) Next() *peers.Peer {
	selectablePeers := ps.selectablePeers

	if len(selectablePeers) == 0 {
		return nil
	}

	if len(selectablePeers) > 1 {
		others := make([]*peers.Peer, 0, len(selectablePeers))
		for _, p := range selectablePeers {
			if p.NetAddr != ps.last {
				others = append(others, p)
			}
		}
		if len(others) > 0 {
			selectablePeers = others
		}
	}

	return selectablePeers[rand.Intn(len(selectablePeers))]
}
