package crypto

import (
	"encoding/hex"
	"testing"
)

func TestSHA256(t *testing.T) {
	// echo -n abc | sha256sum
	expected := "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad"

	if got := hex.EncodeToString(SHA256([]byte("abc"))); got != expected {
		t.Fatalf("SHA256(abc) should be %s, not %s", expected, got)
	}
}
