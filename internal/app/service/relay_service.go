package service

import (
	"context"
	"fmt"
	"sync"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	networkdefinition "governance_relayer/internal/infrastructure/network/definition"
	"governance_relayer/internal/pkg/utils"
)

// relayServiceImpl implements port.RelayService.
// Requests are handled one at a time; the registry queues are never touched.
type relayServiceImpl struct {
	store       port.RegistryStore
	clients     port.ChainClientProvider
	extractor   port.SequenceExtractor
	waiter      port.AttestationWaiter
	logger      port.Logger
	mainNetwork string
	sideNetwork string
	mu          sync.Mutex
}

// NewRelayService creates a relay between the named main and side networks.
func NewRelayService(
	store port.RegistryStore,
	clients port.ChainClientProvider,
	extractor port.SequenceExtractor,
	waiter port.AttestationWaiter,
	logger port.Logger,
	mainNetwork, sideNetwork string,
) port.RelayService {
	return &relayServiceImpl{
		store:       store,
		clients:     clients,
		extractor:   extractor,
		waiter:      waiter,
		logger:      logger,
		mainNetwork: mainNetwork,
		sideNetwork: sideNetwork,
	}
}

// destination returns the network that receives a message emitted by a contract of role.
func (s *relayServiceImpl) destination(role entity.ContractRole) string {
	if role == entity.RoleMain {
		return s.sideNetwork
	}
	return s.mainNetwork
}

type firstHop struct {
	state  *entity.RegistryState
	dest   *entity.NetworkDescriptor
	client port.ChainClient
	vaa    entity.Attestation
}

// prepare validates the request and fetches the attestation to carry.
func (s *relayServiceImpl) prepare(ctx context.Context, req entity.RelayRequest) (*firstHop, error) {
	emitter, err := utils.NormalizeEmitterHex(req.EmitterAddress)
	if err != nil {
		return nil, entity.ConfigError("%v", err)
	}
	req.EmitterAddress = emitter

	state, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load registry: %w", err)
	}
	dest, err := requireDeployed(state, s.destination(req.ContractType))
	if err != nil {
		return nil, err
	}
	client, err := s.clients.GetClient(ctx, *dest)
	if err != nil {
		return nil, err
	}

	vaa, err := s.waiter.WaitForAttestation(ctx, state.Wormhole.RestAddress, req.Key())
	if err != nil {
		return nil, err
	}
	return &firstHop{state: state, dest: dest, client: client, vaa: vaa}, nil
}

// Relay implements port.RelayService.
func (s *relayServiceImpl) Relay(ctx context.Context, req entity.RelayRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hop, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	tx, err := hop.client.Transact(ctx, networkdefinition.MethodReceiveEncodedMsg, hop.vaa.Bytes)
	if err != nil {
		return "", fmt.Errorf("%s on %s: %w", networkdefinition.MethodReceiveEncodedMsg, hop.dest.Name, err)
	}
	s.logger.Info("Relayed attestation", "key", hop.vaa.Key.String(), "network", hop.dest.Name, "tx", tx.Hash().Hex())
	return tx.Hash().Hex(), nil
}

// RelayEndOfVoting implements port.RelayService.
func (s *relayServiceImpl) RelayEndOfVoting(ctx context.Context, req entity.RelayRequest) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	hop, err := s.prepare(ctx, req)
	if err != nil {
		return "", err
	}
	main, err := requireDeployed(hop.state, s.mainNetwork)
	if err != nil {
		return "", err
	}
	mainClient, err := s.clients.GetClient(ctx, *main)
	if err != nil {
		return "", err
	}

	tx, err := hop.client.Transact(ctx, networkdefinition.MethodReceiveEncodedMsg, hop.vaa.Bytes)
	if err != nil {
		return "", fmt.Errorf("%s on %s: %w", networkdefinition.MethodReceiveEncodedMsg, hop.dest.Name, err)
	}
	receipt, err := hop.client.WaitMined(ctx, tx)
	if err != nil {
		return "", fmt.Errorf("%s on %s (tx %s): %w", networkdefinition.MethodReceiveEncodedMsg, hop.dest.Name, tx.Hash().Hex(), err)
	}
	s.logger.Info("End of voting delivered", "network", hop.dest.Name, "tx", tx.Hash().Hex())

	seq, err := s.extractor.ExtractSequence(receipt, hop.dest.BridgeAddress)
	if err != nil {
		return "", fmt.Errorf("return message from %s (tx %s): %w", hop.dest.Name, tx.Hash().Hex(), err)
	}
	key, err := emitterKey(hop.dest, seq)
	if err != nil {
		return "", err
	}
	tally, err := s.waiter.WaitForAttestation(ctx, hop.state.Wormhole.RestAddress, key)
	if err != nil {
		return "", err
	}

	returnTx, err := mainClient.Transact(ctx, networkdefinition.MethodReceiveEncodedMsg, tally.Bytes)
	if err != nil {
		return "", fmt.Errorf("%s on %s: %w", networkdefinition.MethodReceiveEncodedMsg, main.Name, err)
	}
	s.logger.Info("Relayed vote tally", "key", key.String(), "network", main.Name, "tx", returnTx.Hash().Hex())
	return returnTx.Hash().Hex(), nil
}
