package vote

import (
	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/group"
	"github.com/mosaicnetworks/turnstile/src/peers"
	"github.com/mosaicnetworks/turnstile/src/wire"
)

// JoinPayload implements group.Policy. It encodes our public key and the
// first of our certificates. Without a certificate the proof is empty and
// remote groups reject the payload.
func (g *Group) JoinPayload() []byte {
	payloads := g.JoinPayloads()
	if len(payloads) == 0 {
		p, err := wire.JoinPayload{PubKey: g.selfPK}.Marshal()
		if err != nil {
			g.logger.WithError(err).Error("Encoding join payload")
			return nil
		}
		return p
	}
	return payloads[0]
}

// JoinPayloads returns one payload per certificate. A joining node presents
// them in turn while the remote group asks for more votes.
func (g *Group) JoinPayloads() [][]byte {
	res := make([][]byte, 0, len(g.certificates))
	for _, c := range g.certificates {
		cb, err := c.Marshal()
		if err != nil {
			g.logger.WithError(err).Error("Encoding certificate")
			continue
		}
		p, err := wire.JoinPayload{PubKey: g.selfPK, Proof: cb}.Marshal()
		if err != nil {
			g.logger.WithError(err).Error("Encoding join payload")
			continue
		}
		res = append(res, p)
	}
	return res
}

// EvaluateJoin implements group.Policy. The payload carries the candidate's
// public key and a certificate for it.
func (g *Group) EvaluateJoin(addr peers.Addr, socketAddr string, payload []byte) group.Outcome {
	p, err := wire.UnmarshalJoinPayload(payload)
	if err != nil {
		return group.Reject(group.ReasonMalformed, source, addr.String(), err)
	}

	if g.store.ContainsKey(p.PubKey) {
		return group.Accept(g.JoinPayload())
	}

	cert, err := UnmarshalCertificate(p.Proof)
	if err != nil {
		return group.Reject(group.ReasonMalformed, source, addr.String(), err)
	}
	if !cert.PubKey.Equal(p.PubKey) {
		return group.Reject(group.ReasonMalformed, source, addr.String(), nil)
	}

	admitted, err := g.join(cert, addr, socketAddr)
	switch {
	case common.IsAdmission(err, common.BadCertificate):
		return group.Reject(group.ReasonBadSignature, source, g.scheme.Display(cert.PubKey), nil)
	case common.IsAdmission(err, common.BadVote):
		return group.Reject(group.ReasonNotMember, source, g.scheme.Display(cert.CA), nil)
	case err != nil:
		return group.Reject(group.ReasonMalformed, source, addr.String(), err)
	case !admitted:
		return group.Reject(group.ReasonAwaitingQuorum, source, g.scheme.Display(cert.PubKey), nil)
	}

	return group.Accept(g.JoinPayload())
}

// ResolveJoinResult implements group.Policy. A negative result evicts the
// member bound to addr.
func (g *Group) ResolveJoinResult(addr peers.Addr, accepted bool, response []byte) {
	if accepted {
		return
	}
	if pk, ok := g.ByPeerAddr(addr); ok {
		if pk.Equal(g.selfPK) {
			return
		}
		g.Remove(pk)
	}
}
