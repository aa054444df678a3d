package common

import (
	"errors"
	"fmt"
)

// AdmissionErrType enumerates the ways an admission attempt, or the handling
// around it, can fail.
type AdmissionErrType uint32

const (
	// MalformedPayload means the join bytes could not be decoded. The attempt
	// is rejected and never retried by the core.
	MalformedPayload AdmissionErrType = iota
	// BadCertificate means a signature did not verify.
	BadCertificate
	// BadVote means the certificate was signed by a peer that is not a current
	// member.
	BadVote
	// NotYetQuorum is not a failure: the vote was recorded but the candidate
	// still waits for more endorsements.
	NotYetQuorum
	// PersistenceWriteFailed means a membership snapshot could not be written.
	// In-memory state is unaffected.
	PersistenceWriteFailed
	// ChannelClosed means the outbound response path is gone.
	ChannelClosed
)

var admissionErrNames = []string{
	"Malformed Payload",
	"Bad Certificate",
	"Bad Vote",
	"Not Yet Quorum",
	"Persistence Write Failed",
	"Channel Closed",
}

// String ...
func (t AdmissionErrType) String() string {
	if int(t) < len(admissionErrNames) {
		return admissionErrNames[t]
	}
	return "Unknown"
}

// AdmissionErr ...
type AdmissionErr struct {
	source  string
	errType AdmissionErrType
	key     string
	cause   error
}

// NewAdmissionErr ...
func NewAdmissionErr(source string, errType AdmissionErrType, key string) AdmissionErr {
	return AdmissionErr{
		source:  source,
		errType: errType,
		key:     key,
	}
}

// WithCause returns a copy of the error that wraps cause.
func (e AdmissionErr) WithCause(cause error) AdmissionErr {
	e.cause = cause
	return e
}

// Type ...
func (e AdmissionErr) Type() AdmissionErrType {
	return e.errType
}

// Error ...
func (e AdmissionErr) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s, %s, %s: %v", e.source, e.key, e.errType, e.cause)
	}
	return fmt.Sprintf("%s, %s, %s", e.source, e.key, e.errType)
}

// Unwrap ...
func (e AdmissionErr) Unwrap() error {
	return e.cause
}

// IsAdmission checks that err, or an error it wraps, is an AdmissionErr with
// the provided type.
func IsAdmission(err error, t AdmissionErrType) bool {
	var admissionErr AdmissionErr
	return errors.As(err, &admissionErr) && admissionErr.errType == t
}
