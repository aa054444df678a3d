package group

import (
	"fmt"

	"github.com/mosaicnetworks/turnstile/src/membership"
)

// State is the position of a peer in the lifecycle of a group:
// Unknown -> Pending -> Member -> Unknown. There is no banned state.
type State uint32

const (
	// Unknown is the state of any peer the group has no record of.
	Unknown State = iota

	// Pending is the state of a candidate that collected some, but not
	// enough, endorsements. Only quorum policies use it.
	Pending

	// Member is the state of an admitted peer.
	Member
)

// String returns the string representation of a State
func (s State) String() string {
	switch s {
	case Unknown:
		return "Unknown"
	case Pending:
		return "Pending"
	case Member:
		return "Member"
	default:
		return "Invalid"
	}
}

// Standing is the view of one peer in a group. Votes is only meaningful in
// the Pending state and Record only in the Member state.
type Standing struct {
	State  State
	Votes  int
	Record *membership.Record
}

// UnknownStanding is the standing of a peer the group knows nothing about.
func UnknownStanding() Standing {
	return Standing{State: Unknown}
}

// PendingStanding is the standing of a candidate with the given number of
// votes.
func PendingStanding(votes int) Standing {
	return Standing{State: Pending, Votes: votes}
}

// MemberStanding is the standing of an admitted peer.
func MemberStanding(record *membership.Record) Standing {
	return Standing{State: Member, Record: record}
}

// String ...
func (s Standing) String() string {
	switch s.State {
	case Pending:
		return fmt.Sprintf("Pending(%d)", s.Votes)
	case Member:
		return fmt.Sprintf("Member(%s)", s.Record.Addr)
	default:
		return s.State.String()
	}
}
