package common

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// EncodeToString returns the UPPERCASE string representation of hexBytes with
// the 0X prefix
func EncodeToString(hexBytes []byte) string {
	return fmt.Sprintf("0X%X", hexBytes)
}

// DecodeFromString converts a hex string to a byte slice. The 0X (or 0x)
// prefix is optional.
func DecodeFromString(hexString string) ([]byte, error) {
	trimmed := strings.TrimPrefix(strings.TrimPrefix(hexString, "0X"), "0x")
	return hex.DecodeString(trimmed)
}

// ShortString returns the first n characters of the hex representation of
// hexBytes, without prefix. It is only meant for log output.
func ShortString(hexBytes []byte, n int) string {
	s := fmt.Sprintf("%X", hexBytes)
	if len(s) > n {
		return s[:n]
	}
	return s
}
