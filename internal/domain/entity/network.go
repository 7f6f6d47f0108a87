package entity

import "strings"

// ContractRole is the role a governance contract plays on its chain.
type ContractRole string

const (
	// RoleMain hosts the proposal lifecycle, tallying and execution.
	RoleMain ContractRole = "main"
	// RoleSide hosts only the mirrored voting contract.
	RoleSide ContractRole = "side"
)

// Valid reports whether r is a known role.
func (r ContractRole) Valid() bool {
	return r == RoleMain || r == RoleSide
}

// NetworkDescriptor describes one chain participating in governance.
// The JSON layout matches the registry file written by the deployment scripts.
type NetworkDescriptor struct {
	Name            string       `json:"-"`
	Type            string       `json:"type,omitempty"`
	EndpointURL     string       `json:"rpc"`
	Role            ContractRole `json:"contractType"`
	DeployedAddress string       `json:"deployedAddress,omitempty"`
	BridgeAddress   string       `json:"bridgeAddress"`
	ChainID         uint16       `json:"wormholeChainId"`
	// PendingAttestations are serialized as base64 strings.
	PendingAttestations [][]byte `json:"emittedVAAs"`
}

// IsDeployed reports whether the governance contract has been deployed.
func (n NetworkDescriptor) IsDeployed() bool {
	return strings.TrimSpace(n.DeployedAddress) != ""
}

// Clone returns a deep copy, so callers may mutate the queue freely.
func (n NetworkDescriptor) Clone() NetworkDescriptor {
	c := n
	if n.PendingAttestations != nil {
		c.PendingAttestations = make([][]byte, len(n.PendingAttestations))
		for i, a := range n.PendingAttestations {
			c.PendingAttestations[i] = append([]byte(nil), a...)
		}
	}
	return c
}

// WormholeConfig points at the attestation (guardian REST) service.
type WormholeConfig struct {
	RestAddress string `json:"restAddress"`
}

// RegistryState is the whole persisted registry.
type RegistryState struct {
	Wormhole WormholeConfig                `json:"wormhole"`
	Networks map[string]*NetworkDescriptor `json:"networks"`
}

// Network returns the named descriptor, filling in its Name.
func (s *RegistryState) Network(name string) (*NetworkDescriptor, bool) {
	if s == nil || s.Networks == nil {
		return nil, false
	}
	n, ok := s.Networks[name]
	if !ok || n == nil {
		return nil, false
	}
	n.Name = name
	return n, true
}

// Clone returns a deep copy of the state.
func (s *RegistryState) Clone() *RegistryState {
	if s == nil {
		return nil
	}
	c := &RegistryState{
		Wormhole: s.Wormhole,
		Networks: make(map[string]*NetworkDescriptor, len(s.Networks)),
	}
	for name, n := range s.Networks {
		if n == nil {
			continue
		}
		nc := n.Clone()
		nc.Name = name
		c.Networks[name] = &nc
	}
	return c
}
