package utils

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// EmitterAddressBytes left-pads a 20-byte EVM address to the 32-byte emitter form
// used by the messaging layer.
func EmitterAddressBytes(address string) ([32]byte, error) {
	var out [32]byte
	if !common.IsHexAddress(address) {
		return out, fmt.Errorf("invalid EVM address %q", address)
	}
	copy(out[:], common.LeftPadBytes(common.HexToAddress(address).Bytes(), 32))
	return out, nil
}

// EmitterAddressHex is EmitterAddressBytes rendered as 64 lowercase hex chars without 0x,
// the form the attestation service expects in its path.
func EmitterAddressHex(address string) (string, error) {
	b, err := EmitterAddressBytes(address)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}

// NormalizeEmitterHex accepts an emitter address either as 32-byte hex (with or without 0x)
// or as a 20-byte EVM address, and returns the canonical 64-char form.
func NormalizeEmitterHex(s string) (string, error) {
	s = strings.TrimSpace(s)
	if common.IsHexAddress(s) {
		return EmitterAddressHex(s)
	}
	raw := strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	if len(raw) != 64 {
		return "", fmt.Errorf("emitter address %q is neither 20 nor 32 bytes", s)
	}
	b, err := hex.DecodeString(raw)
	if err != nil {
		return "", fmt.Errorf("emitter address %q is not hex: %w", s, err)
	}
	return hex.EncodeToString(b), nil
}
