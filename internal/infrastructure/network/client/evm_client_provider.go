package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/infrastructure/configloader"
	networkdefinition "governance_relayer/internal/infrastructure/network/definition"
	"governance_relayer/internal/infrastructure/signer"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/ethclient"
)

type cachedClient struct {
	client   port.ChainClient
	eth      *ethclient.Client
	endpoint string
	address  string
}

// evmClientProvider implements port.ChainClientProvider.
// It dials each network once and reuses the connection while the endpoint and contract
// address stay the same.
type evmClientProvider struct {
	clients           map[string]cachedClient
	mu                sync.Mutex
	signer            *signer.Signer
	abis              *networkdefinition.ContractABIProvider
	logger            port.Logger
	connectionTimeout time.Duration
	options           EVMClientOptions
}

var _ port.ChainClientProvider = (*evmClientProvider)(nil)

// NewEVMClientProvider creates a chain client provider signing with s.
func NewEVMClientProvider(
	cfg configloader.RpcClientConfig,
	s *signer.Signer,
	abis *networkdefinition.ContractABIProvider,
	logger port.Logger,
) port.ChainClientProvider {
	return &evmClientProvider{
		clients:           make(map[string]cachedClient),
		signer:            s,
		abis:              abis,
		logger:            logger,
		connectionTimeout: configloader.Millis(cfg.ConnectionTimeoutMs),
		options: EVMClientOptions{
			RPCCallTimeout:      configloader.Millis(cfg.CallTimeoutMs),
			ReceiptPollInterval: configloader.Millis(cfg.ReceiptPollIntervalMs),
			InclusionTimeout:    configloader.Millis(cfg.InclusionTimeoutMs),
		},
	}
}

// GetClient returns a chain client for network, dialing it on first use.
func (p *evmClientProvider) GetClient(ctx context.Context, network entity.NetworkDescriptor) (port.ChainClient, error) {
	if p.signer == nil {
		return nil, entity.ConfigError("no signer configured")
	}
	if !network.IsDeployed() {
		return nil, entity.ConfigError("network %s has no deployed governance contract", network.Name)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if cached, ok := p.clients[network.Name]; ok {
		if cached.endpoint == network.EndpointURL && cached.address == network.DeployedAddress {
			p.logger.Debug("Returning cached EVM client", "network", network.Name)
			return cached.client, nil
		}
		p.logger.Info("Network descriptor changed, redialing", "network", network.Name)
		cached.eth.Close()
		delete(p.clients, network.Name)
	}

	contractABI, err := p.abis.ABIFor(network.Role)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", network.Name, err)
	}

	p.logger.Info("Creating new EVM client", "network", network.Name, "rpc", network.EndpointURL)

	dialCtx, cancel := context.WithTimeout(ctx, p.connectionTimeout)
	defer cancel()

	eth, err := ethclient.DialContext(dialCtx, network.EndpointURL)
	if err != nil {
		return nil, &entity.ChainError{Kind: entity.ErrChainUnreachable, Network: network.Name, Reason: "dial " + network.EndpointURL, Err: err}
	}
	chainID, err := eth.ChainID(dialCtx)
	if err != nil {
		eth.Close()
		return nil, &entity.ChainError{Kind: entity.ErrChainUnreachable, Network: network.Name, Reason: "eth_chainId", Err: err}
	}

	auth, err := bind.NewKeyedTransactorWithChainID(p.signer.PrivateKey(), chainID)
	if err != nil {
		eth.Close()
		return nil, fmt.Errorf("failed to build transactor for %s: %w", network.Name, err)
	}

	client, err := NewEVMClient(eth, network, contractABI, auth, p.options, p.logger)
	if err != nil {
		eth.Close()
		return nil, err
	}

	p.clients[network.Name] = cachedClient{
		client:   client,
		eth:      eth,
		endpoint: network.EndpointURL,
		address:  network.DeployedAddress,
	}
	p.logger.Info("Successfully created and cached new EVM client", "network", network.Name, "chain_id", chainID, "signer", p.signer.Address().Hex())
	return client, nil
}

// Close closes every cached connection.
func (p *evmClientProvider) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for name, cached := range p.clients {
		cached.eth.Close()
		delete(p.clients, name)
	}
}
