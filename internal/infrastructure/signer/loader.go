package signer

import (
	"crypto/ecdsa"
	"fmt"
	"os"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Signer is the single signing identity used for every chain client in a process.
// It is loaded once and handed to client providers explicitly.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
}

// FromHex builds a Signer from a hex private key, with or without 0x.
func FromHex(hexKey string) (*Signer, error) {
	hexKey = strings.TrimSpace(hexKey)
	hexKey = strings.TrimPrefix(strings.TrimPrefix(hexKey, "0x"), "0X")
	if hexKey == "" {
		return nil, fmt.Errorf("empty private key")
	}
	key, err := crypto.HexToECDSA(hexKey)
	if err != nil {
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	return &Signer{key: key, address: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

// LoadFromEnv reads the private key from the named environment variable.
func LoadFromEnv(envVar string, loggerInfo func(msg string, args ...any)) (*Signer, error) {
	raw, ok := os.LookupEnv(envVar)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil, fmt.Errorf("environment variable %s is not set", envVar)
	}
	s, err := FromHex(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to load signer from %s: %w", envVar, err)
	}
	if loggerInfo != nil {
		loggerInfo("Signer loaded", "address", s.address.Hex(), "source", envVar)
	}
	return s, nil
}

// Address returns the signer's account address.
func (s *Signer) Address() common.Address {
	return s.address
}

// PrivateKey returns the key for building transactors.
func (s *Signer) PrivateKey() *ecdsa.PrivateKey {
	return s.key
}
