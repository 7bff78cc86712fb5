// Package eth holds the hashing and signature primitives shared by the proxy.
package eth

import (
	"encoding/hex"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
)

// HexToBytes decodes an hex string with or without 0x prefix.
// Odd length strings are left padded with a zero nibble.
// Invalid strings decode to nil.
func HexToBytes(s string) []byte {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(s)%2 == 1 {
		s = "0" + s
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil
	}
	return b
}

// ConcatenateAndHash hex-decodes every part, concatenates them and returns the
// 0x prefixed keccak256 of the result.
func ConcatenateAndHash(parts ...string) string {
	var buf []byte
	for _, p := range parts {
		buf = append(buf, HexToBytes(p)...)
	}
	return hexutil.Encode(crypto.Keccak256(buf))
}

// IsZeroHex reports whether s is empty or only made of zero digits.
func IsZeroHex(s string) bool {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	return strings.Trim(s, "0") == ""
}
