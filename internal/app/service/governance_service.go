package service

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	networkdefinition "governance_relayer/internal/infrastructure/network/definition"
	"governance_relayer/internal/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// governanceServiceImpl implements port.GovernanceService.
// Each action is a short saga: preconditions, a call on the source chain and, for actions
// that emit a cross-chain message, sequence extraction, attestation wait and a queue append.
type governanceServiceImpl struct {
	store     port.RegistryStore
	clients   port.ChainClientProvider
	extractor port.SequenceExtractor
	waiter    port.AttestationWaiter
	metrics   port.Metrics
	logger    port.Logger
}

// NewGovernanceService creates a new governance service.
func NewGovernanceService(
	store port.RegistryStore,
	clients port.ChainClientProvider,
	extractor port.SequenceExtractor,
	waiter port.AttestationWaiter,
	metrics port.Metrics,
	logger port.Logger,
) port.GovernanceService {
	return &governanceServiceImpl{
		store:     store,
		clients:   clients,
		extractor: extractor,
		waiter:    waiter,
		metrics:   metrics,
		logger:    logger,
	}
}

// Execute implements port.GovernanceService.
func (s *governanceServiceImpl) Execute(ctx context.Context, action entity.GovernanceAction) (*entity.ActionResult, error) {
	if action == nil {
		return nil, entity.ConfigError("no action given")
	}
	s.logger.Info("Running governance action", "action", action.Name(), "network", action.SourceNetwork())

	state, err := s.store.Load(ctx)
	if err != nil {
		s.metrics.ActionCompleted(action.Name(), err)
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}

	var result *entity.ActionResult
	switch a := action.(type) {
	case entity.RegisterChain:
		result, err = s.registerChain(ctx, state, a)
	case entity.CreateProposal:
		result, err = s.publishOnMain(ctx, state, a.Source, a.Name(), networkdefinition.MethodCreateProposal, a.Title)
	case entity.CastVote:
		result, err = s.castVote(ctx, state, a)
	case entity.EndVoting:
		result, err = s.publishOnMain(ctx, state, a.Source, a.Name(), networkdefinition.MethodEndVoting, a.ProposalIndex)
	case entity.SubmitAttestation:
		result, err = s.submitAttestation(ctx, state, a.Name(), a.Source, a.Target, a.QueueIndex)
	case entity.SubmitEndOfVotingAttestation:
		result, err = s.submitEndOfVoting(ctx, state, a)
	case entity.ExecuteProposal:
		result, err = s.publishOnMain(ctx, state, a.Source, a.Name(), networkdefinition.MethodExecuteProposal, a.ProposalIndex)
	default:
		err = entity.ConfigError("unsupported governance action %T", action)
	}

	s.metrics.ActionCompleted(action.Name(), err)
	if err != nil {
		s.logger.Error("Governance action failed", "action", action.Name(), "network", action.SourceNetwork(), "error", err)
		return result, err
	}
	s.logger.Info("Governance action completed", "action", action.Name(), "network", result.Network,
		"tx", result.TxHash, "queued", len(result.Emitted))
	return result, nil
}

func requireNetwork(state *entity.RegistryState, name string) (*entity.NetworkDescriptor, error) {
	n, ok := state.Network(name)
	if !ok {
		return nil, entity.ConfigError("network %q is not defined in the registry", name)
	}
	return n, nil
}

func requireDeployed(state *entity.RegistryState, name string) (*entity.NetworkDescriptor, error) {
	n, err := requireNetwork(state, name)
	if err != nil {
		return nil, err
	}
	if !n.IsDeployed() {
		return nil, entity.ConfigError("network %q has no deployed governance contract, deploy to it first", name)
	}
	return n, nil
}

func requireMain(n *entity.NetworkDescriptor, action string) error {
	if n.Role != entity.RoleMain {
		return entity.ConfigError("%s is only allowed on a main contract, %q is %q", action, n.Name, n.Role)
	}
	return nil
}

// emitterKey builds the attestation key of a message n's contract emitted with seq.
func emitterKey(n *entity.NetworkDescriptor, seq uint64) (entity.AttestationKey, error) {
	emitter, err := utils.EmitterAddressHex(n.DeployedAddress)
	if err != nil {
		return entity.AttestationKey{}, entity.ConfigError("network %q: %v", n.Name, err)
	}
	return entity.AttestationKey{EmitterChainID: n.ChainID, EmitterAddress: emitter, Sequence: seq}, nil
}

// send broadcasts a call and waits for its inclusion.
func (s *governanceServiceImpl) send(ctx context.Context, client port.ChainClient, method string, args ...any) (*types.Transaction, *types.Receipt, error) {
	tx, err := client.Transact(ctx, method, args...)
	if err != nil {
		return nil, nil, fmt.Errorf("%s on %s: %w", method, client.Network().Name, err)
	}
	receipt, err := client.WaitMined(ctx, tx)
	if err != nil {
		return tx, receipt, fmt.Errorf("%s on %s (tx %s): %w", method, client.Network().Name, tx.Hash().Hex(), err)
	}
	return tx, receipt, nil
}

func (s *governanceServiceImpl) registerChain(ctx context.Context, state *entity.RegistryState, a entity.RegisterChain) (*entity.ActionResult, error) {
	src, err := requireDeployed(state, a.Source)
	if err != nil {
		return nil, err
	}
	target, err := requireDeployed(state, a.Target)
	if err != nil {
		return nil, err
	}
	emitter, err := utils.EmitterAddressBytes(target.DeployedAddress)
	if err != nil {
		return nil, entity.ConfigError("network %q: %v", target.Name, err)
	}

	client, err := s.clients.GetClient(ctx, *src)
	if err != nil {
		return nil, err
	}
	tx, _, err := s.send(ctx, client, networkdefinition.MethodRegisterDaoContracts, target.ChainID, emitter)
	result := &entity.ActionResult{Action: a.Name(), Network: src.Name}
	if tx != nil {
		result.TxHash = tx.Hash().Hex()
	}
	if err != nil {
		return result, err
	}
	s.logger.Info("Registered emitter", "network", src.Name, "emitter_network", target.Name,
		"emitter", target.DeployedAddress, "emitter_chain", target.ChainID)
	return result, nil
}

func (s *governanceServiceImpl) castVote(ctx context.Context, state *entity.RegistryState, a entity.CastVote) (*entity.ActionResult, error) {
	src, err := requireDeployed(state, a.Source)
	if err != nil {
		return nil, err
	}
	if a.ProposalIndex == nil || a.ProposalIndex.Sign() < 0 {
		return nil, entity.ConfigError("invalid proposal index")
	}

	client, err := s.clients.GetClient(ctx, *src)
	if err != nil {
		return nil, err
	}
	tx, _, err := s.send(ctx, client, networkdefinition.MethodVoteOnProposal, a.ProposalIndex, a.Choice)
	result := &entity.ActionResult{Action: a.Name(), Network: src.Name}
	if tx != nil {
		result.TxHash = tx.Hash().Hex()
	}
	if err != nil {
		return result, err
	}
	s.logger.Info("Vote cast", "network", src.Name, "proposal", a.ProposalIndex, "choice", a.Choice)
	return result, nil
}

// publishOnMain runs a main-contract call whose receipt carries a bridge message, then
// queues that message's attestation on the same network.
func (s *governanceServiceImpl) publishOnMain(ctx context.Context, state *entity.RegistryState, source, action, method string, arg any) (*entity.ActionResult, error) {
	src, err := requireDeployed(state, source)
	if err != nil {
		return nil, err
	}
	if err := requireMain(src, action); err != nil {
		return nil, err
	}

	client, err := s.clients.GetClient(ctx, *src)
	if err != nil {
		return nil, err
	}
	tx, receipt, err := s.send(ctx, client, method, arg)
	result := &entity.ActionResult{Action: action, Network: src.Name}
	if tx != nil {
		result.TxHash = tx.Hash().Hex()
	}
	if err != nil {
		return result, err
	}

	att, seq, err := s.attestAndQueue(ctx, state.Wormhole.RestAddress, src, receipt, false)
	if err != nil {
		return result, s.afterBroadcast(src.Name, result.TxHash, err)
	}
	result.Sequence = &seq
	result.Emitted = append(result.Emitted, att)
	return result, nil
}

// attestAndQueue extracts the message n's contract emitted in receipt, waits for its
// attestation and appends it to n's queue. With skipDuplicate an attestation that is
// already queued is not appended again.
func (s *governanceServiceImpl) attestAndQueue(
	ctx context.Context,
	restAddress string,
	n *entity.NetworkDescriptor,
	receipt *types.Receipt,
	skipDuplicate bool,
) (entity.Attestation, uint64, error) {
	seq, err := s.extractor.ExtractSequence(receipt, n.BridgeAddress)
	if err != nil {
		return entity.Attestation{}, 0, err
	}
	key, err := emitterKey(n, seq)
	if err != nil {
		return entity.Attestation{}, seq, err
	}
	s.logger.Info("Message published", "network", n.Name, "sequence", seq, "emitter", key.EmitterAddress)

	att, err := s.waiter.WaitForAttestation(ctx, restAddress, key)
	if err != nil {
		return entity.Attestation{}, seq, err
	}

	var queued int
	err = s.store.UpdateNetwork(ctx, n.Name, func(stored *entity.NetworkDescriptor) error {
		if skipDuplicate {
			for _, pending := range stored.PendingAttestations {
				if bytes.Equal(pending, att.Bytes) {
					queued = len(stored.PendingAttestations)
					s.logger.Warn("Attestation already queued, not adding it twice", "network", n.Name, "key", key.String())
					return nil
				}
			}
		}
		stored.PendingAttestations = append(stored.PendingAttestations, att.Bytes)
		queued = len(stored.PendingAttestations)
		return nil
	})
	if err != nil {
		return att, seq, fmt.Errorf("failed to persist attestation %s: %w", key, err)
	}
	s.metrics.PendingAttestations(n.Name, queued)
	s.logger.Info("Attestation queued", "network", n.Name, "key", key.String(), "queue_length", queued)
	return att, seq, nil
}

// afterBroadcast marks errors that happen once a transaction is already mined, so the
// operator knows the chain changed and how to recover the local record.
func (s *governanceServiceImpl) afterBroadcast(network, txHash string, err error) error {
	s.logger.Warn("Chain state changed but the attestation was not recorded, rerun recover with this tx",
		"network", network, "tx", txHash, "error", err)
	return fmt.Errorf("tx %s on %s is mined but its attestation was not recorded (use recover): %w", txHash, network, err)
}

// selectAttestation picks the attestation to submit from target's queue. Without an index
// the last entry is popped and the pop persisted; with an index the entry is only read.
// popped reports whether the queue was modified.
func (s *governanceServiceImpl) selectAttestation(ctx context.Context, target *entity.NetworkDescriptor, index *int) (vaa []byte, popped bool, err error) {
	if index != nil {
		entry, ok := utils.At(target.PendingAttestations, *index)
		if !ok {
			return nil, false, fmt.Errorf("%w: network %q has no queued attestation at index %d (queue length %d)",
				entity.ErrQueueEmpty, target.Name, *index, len(target.PendingAttestations))
		}
		return entry, false, nil
	}

	var remaining int
	err = s.store.UpdateNetwork(ctx, target.Name, func(stored *entity.NetworkDescriptor) error {
		rest, last, ok := utils.PopLast(stored.PendingAttestations)
		if !ok {
			return fmt.Errorf("%w: network %q has no queued attestations", entity.ErrQueueEmpty, target.Name)
		}
		stored.PendingAttestations = rest
		vaa = last
		remaining = len(rest)
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	s.metrics.PendingAttestations(target.Name, remaining)
	return vaa, true, nil
}

// pushBack returns a popped attestation to the end of target's queue.
func (s *governanceServiceImpl) pushBack(ctx context.Context, target string, vaa []byte) {
	err := s.store.UpdateNetwork(context.WithoutCancel(ctx), target, func(stored *entity.NetworkDescriptor) error {
		stored.PendingAttestations = append(stored.PendingAttestations, vaa)
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to return attestation to the queue", "network", target, "error", err)
		return
	}
	s.logger.Info("Attestation returned to the queue after a failed broadcast", "network", target)
}

// submit sends the selected attestation to src. A pop is undone when the broadcast
// itself fails, since nothing reached the chain.
func (s *governanceServiceImpl) submit(ctx context.Context, state *entity.RegistryState, action, source, targetName string, index *int) (*entity.ActionResult, *types.Receipt, error) {
	src, err := requireDeployed(state, source)
	if err != nil {
		return nil, nil, err
	}
	target, err := requireNetwork(state, targetName)
	if err != nil {
		return nil, nil, err
	}
	client, err := s.clients.GetClient(ctx, *src)
	if err != nil {
		return nil, nil, err
	}

	vaa, popped, err := s.selectAttestation(ctx, target, index)
	if err != nil {
		return nil, nil, err
	}

	result := &entity.ActionResult{Action: action, Network: src.Name, Submitted: vaa}
	tx, err := client.Transact(ctx, networkdefinition.MethodReceiveEncodedMsg, vaa)
	if err != nil {
		if popped {
			s.pushBack(ctx, target.Name, vaa)
		}
		return result, nil, fmt.Errorf("%s on %s: %w", networkdefinition.MethodReceiveEncodedMsg, src.Name, err)
	}
	result.TxHash = tx.Hash().Hex()
	s.logger.Info("Attestation submitted", "network", src.Name, "from_queue", target.Name, "tx", result.TxHash, "consumed", popped)

	receipt, err := client.WaitMined(ctx, tx)
	if err != nil {
		return result, receipt, fmt.Errorf("%s on %s (tx %s): %w", networkdefinition.MethodReceiveEncodedMsg, src.Name, result.TxHash, err)
	}
	return result, receipt, nil
}

func (s *governanceServiceImpl) submitAttestation(ctx context.Context, state *entity.RegistryState, action, source, target string, index *int) (*entity.ActionResult, error) {
	result, _, err := s.submit(ctx, state, action, source, target, index)
	return result, err
}

func (s *governanceServiceImpl) submitEndOfVoting(ctx context.Context, state *entity.RegistryState, a entity.SubmitEndOfVotingAttestation) (*entity.ActionResult, error) {
	result, receipt, err := s.submit(ctx, state, a.Name(), a.Source, a.Target, a.QueueIndex)
	if err != nil {
		return result, err
	}

	src, _ := state.Network(a.Source)
	att, seq, err := s.attestAndQueue(ctx, state.Wormhole.RestAddress, src, receipt, false)
	if err != nil {
		return result, s.afterBroadcast(src.Name, result.TxHash, err)
	}
	result.Sequence = &seq
	result.Emitted = append(result.Emitted, att)
	return result, nil
}

// RecordDeployment implements port.GovernanceService.
func (s *governanceServiceImpl) RecordDeployment(ctx context.Context, network, address string) error {
	if !common.IsHexAddress(address) {
		return entity.ConfigError("invalid contract address %q", address)
	}
	checksummed := common.HexToAddress(address).Hex()

	err := s.store.UpdateNetwork(ctx, network, func(n *entity.NetworkDescriptor) error {
		n.DeployedAddress = checksummed
		n.PendingAttestations = [][]byte{}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record deployment on %s: %w", network, err)
	}
	s.metrics.PendingAttestations(network, 0)
	s.logger.Info("Deployment recorded", "network", network, "address", checksummed)
	return nil
}

// RecoverAttestation implements port.GovernanceService.
func (s *governanceServiceImpl) RecoverAttestation(ctx context.Context, network, txHash string) (*entity.ActionResult, error) {
	result, err := s.recoverAttestation(ctx, network, txHash)
	s.metrics.ActionCompleted("recover", err)
	if err != nil {
		s.logger.Error("Recovery failed", "network", network, "tx", txHash, "error", err)
	}
	return result, err
}

func (s *governanceServiceImpl) recoverAttestation(ctx context.Context, network, txHash string) (*entity.ActionResult, error) {
	raw := common.FromHex(txHash)
	if len(raw) != common.HashLength {
		return nil, entity.ConfigError("invalid transaction hash %q", txHash)
	}
	hash := common.BytesToHash(raw)

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	src, err := requireDeployed(state, network)
	if err != nil {
		return nil, err
	}
	client, err := s.clients.GetClient(ctx, *src)
	if err != nil {
		return nil, err
	}

	receipt, err := client.Receipt(ctx, hash)
	if err != nil {
		return nil, err
	}
	if receipt.Status == types.ReceiptStatusFailed {
		return nil, &entity.ChainError{
			Kind:    entity.ErrChainReverted,
			Network: src.Name,
			Reason:  fmt.Sprintf("tx %s reverted, it emitted nothing", hash.Hex()),
		}
	}

	result := &entity.ActionResult{Action: "recover", Network: src.Name, TxHash: hash.Hex()}
	att, seq, err := s.attestAndQueue(ctx, state.Wormhole.RestAddress, src, receipt, true)
	if err != nil {
		return result, err
	}
	result.Sequence = &seq
	result.Emitted = []entity.Attestation{att}
	return result, nil
}

// ListNetworks implements port.GovernanceService.
func (s *governanceServiceImpl) ListNetworks(ctx context.Context) ([]entity.NetworkDescriptor, error) {
	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	names := make([]string, 0, len(state.Networks))
	for name := range state.Networks {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]entity.NetworkDescriptor, 0, len(names))
	for _, name := range names {
		n, _ := state.Network(name)
		out = append(out, n.Clone())
	}
	return out, nil
}
