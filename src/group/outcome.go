package group

import (
	"github.com/mosaicnetworks/turnstile/src/common"
	"github.com/mosaicnetworks/turnstile/src/peers"
)

// Reason is the numeric rationale carried by a negative verdict.
type Reason byte

const (
	// ReasonNone is used by accepting verdicts.
	ReasonNone Reason = 0
	// ReasonMalformed means the join payload could not be decoded.
	ReasonMalformed Reason = 2
	// ReasonBadSignature means a proof did not verify.
	ReasonBadSignature Reason = 3
	// ReasonNotMember means a certificate was issued by a non-member.
	ReasonNotMember Reason = 4
	// ReasonAwaitingQuorum means the vote was counted but more are needed.
	ReasonAwaitingQuorum Reason = 5
)

// ErrType maps a reason to the corresponding admission error type.
func (r Reason) ErrType() common.AdmissionErrType {
	switch r {
	case ReasonMalformed:
		return common.MalformedPayload
	case ReasonBadSignature:
		return common.BadCertificate
	case ReasonNotMember:
		return common.BadVote
	case ReasonAwaitingQuorum:
		return common.NotYetQuorum
	default:
		return common.MalformedPayload
	}
}

// String ...
func (r Reason) String() string {
	if r == ReasonNone {
		return "None"
	}
	return r.ErrType().String()
}

// Outcome is the result of evaluating one join request.
type Outcome struct {
	Accepted  bool
	NeedRetry bool
	Reason    Reason
	Response  []byte
	// Err describes a rejection. It is an AdmissionErr.
	Err error
}

// Accept returns an accepting outcome that carries response, normally the
// local join payload so the remote peer can validate us in turn.
func Accept(response []byte) Outcome {
	return Outcome{
		Accepted: true,
		Response: response,
	}
}

// Reject returns a negative outcome for reason. The response is the reason
// code alone. The peer may come back with a new request.
func Reject(reason Reason, source string, key string, cause error) Outcome {
	err := common.NewAdmissionErr(source, reason.ErrType(), key)
	if cause != nil {
		err = err.WithCause(cause)
	}
	return Outcome{
		NeedRetry: true,
		Reason:    reason,
		Response:  []byte{byte(reason)},
		Err:       err,
	}
}

// Verdict binds the outcome to the address it answers.
func (o Outcome) Verdict(addr peers.Addr) JoinVerdict {
	return JoinVerdict{
		Addr:      addr,
		Accepted:  o.Accepted,
		NeedRetry: o.NeedRetry,
		Response:  o.Response,
	}
}
