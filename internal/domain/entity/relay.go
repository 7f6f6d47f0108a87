package entity

// RelayRequest asks the relay to carry one attestation across.
// ContractType is the role of the network that emitted it.
type RelayRequest struct {
	EmitterChainID uint16
	EmitterAddress string
	Sequence       uint64
	ContractType   ContractRole
}

// Key returns the attestation key of the request.
func (r RelayRequest) Key() AttestationKey {
	return AttestationKey{
		EmitterChainID: r.EmitterChainID,
		EmitterAddress: r.EmitterAddress,
		Sequence:       r.Sequence,
	}
}
