package common

import (
	"errors"
	"fmt"
	"testing"
)

func TestIsAdmission(t *testing.T) {
	err := NewAdmissionErr("CAGroup", BadCertificate, "0XAB")

	if !IsAdmission(err, BadCertificate) {
		t.Fatalf("err should be BadCertificate")
	}

	if IsAdmission(err, MalformedPayload) {
		t.Fatalf("err should not be MalformedPayload")
	}

	wrapped := fmt.Errorf("handling join: %w", err)
	if !IsAdmission(wrapped, BadCertificate) {
		t.Fatalf("wrapped err should be BadCertificate")
	}

	if IsAdmission(errors.New("other"), BadCertificate) {
		t.Fatalf("plain error should not be an AdmissionErr")
	}
}

func TestAdmissionErrCause(t *testing.T) {
	cause := errors.New("disk full")
	err := NewAdmissionErr("Checkpointer", PersistenceWriteFailed, "group").WithCause(cause)

	if !errors.Is(err, cause) {
		t.Fatalf("err should unwrap to its cause")
	}

	expected := "Checkpointer, group, Persistence Write Failed: disk full"
	if err.Error() != expected {
		t.Fatalf("Error() should be %q, not %q", expected, err.Error())
	}
}

func TestDecodeFromString(t *testing.T) {
	for _, s := range []string{"0XABCD", "0xabcd", "abcd"} {
		b, err := DecodeFromString(s)
		if err != nil {
			t.Fatalf("decoding %s: %v", s, err)
		}
		if EncodeToString(b) != "0XABCD" {
			t.Fatalf("round trip of %s gave %s", s, EncodeToString(b))
		}
	}
}
