// internal/chains/tron/address.go
package tron

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/fbsobreira/gotron-sdk/pkg/address"
)

// ValidateAddress validates a base58 TRON address
func ValidateAddress(addr string) error {
	_, err := address.Base58ToAddress(addr)
	if err != nil {
		return fmt.Errorf("invalid TRON address %s: %w", addr, err)
	}
	return nil
}

// NormalizeAddress converts hex forms (41..., 0x...) to base58 and leaves base58 untouched.
// Unrecognized input is returned trimmed so that comparisons simply fail to match.
func NormalizeAddress(addr string) string {
	addr = strings.TrimSpace(addr)

	raw := addr
	if strings.HasPrefix(raw, "0x") || strings.HasPrefix(raw, "0X") {
		raw = "41" + raw[2:]
	}
	if len(raw) == 42 && strings.HasPrefix(raw, "41") {
		b, err := hex.DecodeString(raw)
		if err == nil {
			return address.Address(b).String()
		}
	}
	return addr
}

// SameAddress compares two TRON addresses in any supported encoding
func SameAddress(a, b string) bool {
	return strings.EqualFold(NormalizeAddress(a), NormalizeAddress(b))
}
