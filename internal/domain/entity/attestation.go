package entity

import "fmt"

// AttestationKey identifies a guardian-signed message.
type AttestationKey struct {
	EmitterChainID uint16
	// EmitterAddress is the 32-byte emitter address, hex encoded without 0x.
	EmitterAddress string
	Sequence       uint64
}

// String renders the key as chain/emitter/sequence, the same order the REST path uses.
func (k AttestationKey) String() string {
	return fmt.Sprintf("%d/%s/%d", k.EmitterChainID, k.EmitterAddress, k.Sequence)
}

// Attestation is an opaque signed payload. Bytes are transported, never inspected.
type Attestation struct {
	Key   AttestationKey
	Bytes []byte
}
