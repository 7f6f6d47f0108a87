package networkdefinition

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"sync"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"

	"github.com/ethereum/go-ethereum/accounts/abi"
	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Contract method names shared by both governance contracts.
const (
	MethodCreateProposal       = "createProposal"
	MethodVoteOnProposal       = "voteOnProposal"
	MethodEndVoting            = "endVoting"
	MethodExecuteProposal      = "executeProposal"
	MethodRegisterDaoContracts = "registerDaoContracts"
	MethodReceiveEncodedMsg    = "receiveEncodedMsg"
)

// mainChainABI is the call surface of the Main governance contract.
const mainChainABI = `[
 {"type":"function","name":"createProposal","stateMutability":"nonpayable","inputs":[{"name":"title","type":"string"}],"outputs":[{"name":"sequence","type":"uint64"}]},
 {"type":"function","name":"voteOnProposal","stateMutability":"nonpayable","inputs":[{"name":"proposalIndex","type":"uint256"},{"name":"vote","type":"uint8"}],"outputs":[]},
 {"type":"function","name":"endVoting","stateMutability":"nonpayable","inputs":[{"name":"proposalIndex","type":"uint256"}],"outputs":[{"name":"sequence","type":"uint64"}]},
 {"type":"function","name":"executeProposal","stateMutability":"nonpayable","inputs":[{"name":"proposalIndex","type":"uint256"}],"outputs":[{"name":"sequence","type":"uint64"}]},
 {"type":"function","name":"registerDaoContracts","stateMutability":"nonpayable","inputs":[{"name":"chainId","type":"uint16"},{"name":"applicationAddr","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"receiveEncodedMsg","stateMutability":"nonpayable","inputs":[{"name":"encodedMsg","type":"bytes"}],"outputs":[]}
]`

// sideChainABI is the call surface of the Side (mirrored voting) contract.
const sideChainABI = `[
 {"type":"function","name":"voteOnProposal","stateMutability":"nonpayable","inputs":[{"name":"proposalIndex","type":"uint256"},{"name":"vote","type":"uint8"}],"outputs":[]},
 {"type":"function","name":"registerDaoContracts","stateMutability":"nonpayable","inputs":[{"name":"chainId","type":"uint16"},{"name":"applicationAddr","type":"bytes32"}],"outputs":[]},
 {"type":"function","name":"receiveEncodedMsg","stateMutability":"nonpayable","inputs":[{"name":"encodedMsg","type":"bytes"}],"outputs":[]}
]`

// BridgeEventABI is the core bridge event carrying the per-emitter sequence.
const BridgeEventABI = `[
 {"type":"event","name":"LogMessagePublished","anonymous":false,"inputs":[
  {"name":"sender","type":"address","indexed":true},
  {"name":"sequence","type":"uint64","indexed":false},
  {"name":"nonce","type":"uint32","indexed":false},
  {"name":"payload","type":"bytes","indexed":false},
  {"name":"consistencyLevel","type":"uint8","indexed":false}]}
]`

// BridgeEventName is the name of the sequence-carrying event in BridgeEventABI.
const BridgeEventName = "LogMessagePublished"

var (
	parsedBridgeABI  abi.ABI
	parsedBridgeOnce sync.Once
)

// BridgeABI returns the parsed bridge event ABI.
func BridgeABI() abi.ABI {
	parsedBridgeOnce.Do(func() {
		var err error
		parsedBridgeABI, err = abi.JSON(strings.NewReader(BridgeEventABI))
		if err != nil {
			// compile-time constant, cannot fail at runtime
			panic(fmt.Sprintf("failed to parse bridge ABI: %v", err))
		}
	})
	return parsedBridgeABI
}

// ContractABIProvider resolves the governance contract ABI for a role.
type ContractABIProvider struct {
	logger port.Logger
	abis   map[entity.ContractRole]abi.ABI
}

// NewContractABIProvider parses the embedded ABIs and, when an artifact path is set,
// replaces the embedded ABI with the one from the hardhat artifact.
func NewContractABIProvider(logger port.Logger, mainArtifact, sideArtifact string) (*ContractABIProvider, error) {
	p := &ContractABIProvider{
		logger: logger,
		abis:   make(map[entity.ContractRole]abi.ABI, 2),
	}

	sources := []struct {
		role     entity.ContractRole
		artifact string
		embedded string
	}{
		{entity.RoleMain, mainArtifact, mainChainABI},
		{entity.RoleSide, sideArtifact, sideChainABI},
	}

	for _, src := range sources {
		var (
			parsed abi.ABI
			err    error
		)
		if src.artifact != "" {
			parsed, err = LoadArtifactABI(src.artifact)
			if err != nil {
				return nil, fmt.Errorf("failed to load %s contract artifact: %w", src.role, err)
			}
			logger.Info("Loaded contract ABI from artifact", "role", src.role, "path", src.artifact, "methods", len(parsed.Methods))
		} else {
			parsed, err = abi.JSON(strings.NewReader(src.embedded))
			if err != nil {
				return nil, fmt.Errorf("failed to parse embedded %s ABI: %w", src.role, err)
			}
			logger.Debug("Using embedded contract ABI", "role", src.role)
		}
		p.abis[src.role] = parsed
	}
	return p, nil
}

// ABIFor returns the ABI for a contract role.
func (p *ContractABIProvider) ABIFor(role entity.ContractRole) (abi.ABI, error) {
	parsed, ok := p.abis[role]
	if !ok {
		return abi.ABI{}, entity.ConfigError("unknown contract role %q", role)
	}
	return parsed, nil
}

type hardhatArtifact struct {
	ContractName string              `json:"contractName"`
	ABI          jsoniter.RawMessage `json:"abi"`
}

// LoadArtifactABI reads the "abi" field of a hardhat build artifact.
func LoadArtifactABI(path string) (abi.ABI, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to read artifact %s: %w", path, err)
	}
	var artifact hardhatArtifact
	if err := json.Unmarshal(data, &artifact); err != nil {
		return abi.ABI{}, fmt.Errorf("failed to decode artifact %s: %w", path, err)
	}
	if len(artifact.ABI) == 0 {
		return abi.ABI{}, fmt.Errorf("artifact %s has no abi field", path)
	}
	parsed, err := abi.JSON(bytes.NewReader(artifact.ABI))
	if err != nil {
		return abi.ABI{}, fmt.Errorf("failed to parse abi in %s: %w", path, err)
	}
	return parsed, nil
}
