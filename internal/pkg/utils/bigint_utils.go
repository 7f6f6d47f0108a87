package utils

import (
	"fmt"
	"math/big"
	"strings"
)

// ParseBigInt parses a non-negative decimal or 0x-prefixed hex integer, as accepted
// for proposal indexes on the command line and in requests.
// Example: "12" => 12, "0x0c" => 12
func ParseBigInt(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("empty integer")
	}

	base := 10
	digits := s
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		base = 16
		digits = s[2:]
	}

	v, ok := new(big.Int).SetString(digits, base)
	if !ok {
		return nil, fmt.Errorf("invalid integer %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("negative integer %q", s)
	}
	// uint256 upper bound
	if v.BitLen() > 256 {
		return nil, fmt.Errorf("integer %q overflows uint256", s)
	}
	return v, nil
}

// ParseUint8 parses a vote choice.
func ParseUint8(s string) (uint8, error) {
	v, err := ParseBigInt(s)
	if err != nil {
		return 0, err
	}
	if !v.IsUint64() || v.Uint64() > 255 {
		return 0, fmt.Errorf("value %q out of range for uint8", s)
	}
	return uint8(v.Uint64()), nil
}
