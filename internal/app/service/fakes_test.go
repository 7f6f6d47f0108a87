package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/infrastructure/sequence"
	"governance_relayer/internal/pkg/utils"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	guardianURL   = "http://guardian.test"
	mainAddress   = "0x0000000000000000000000000000000000000AAA"
	sideAddress   = "0x0000000000000000000000000000000000000BBB"
	bridgeAddress = "0xC89Ce4735882C9F0f0FE26686c53074E09B0D550"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// memoryStore is an in-memory port.RegistryStore.
type memoryStore struct {
	mu    sync.Mutex
	state *entity.RegistryState
}

func (s *memoryStore) Load(context.Context) (*entity.RegistryState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Clone(), nil
}

func (s *memoryStore) Save(_ context.Context, state *entity.RegistryState) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = state.Clone()
	return nil
}

func (s *memoryStore) Update(_ context.Context, mutate func(*entity.RegistryState) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	next := s.state.Clone()
	if err := mutate(next); err != nil {
		return err
	}
	s.state = next
	return nil
}

func (s *memoryStore) UpdateNetwork(ctx context.Context, name string, mutate func(*entity.NetworkDescriptor) error) error {
	return s.Update(ctx, func(state *entity.RegistryState) error {
		n, ok := state.Network(name)
		if !ok {
			return entity.ConfigError("network %q is not in the registry", name)
		}
		return mutate(n)
	})
}

func (s *memoryStore) Close() error { return nil }

func (s *memoryStore) queue(name string) [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.Networks[name].PendingAttestations
}

func newRegistry(mainQueue, sideQueue [][]byte) *memoryStore {
	return &memoryStore{state: &entity.RegistryState{
		Wormhole: entity.WormholeConfig{RestAddress: guardianURL},
		Networks: map[string]*entity.NetworkDescriptor{
			"main": {
				EndpointURL:         "http://localhost:8545",
				Role:                entity.RoleMain,
				DeployedAddress:     mainAddress,
				BridgeAddress:       bridgeAddress,
				ChainID:             6,
				PendingAttestations: mainQueue,
			},
			"side": {
				EndpointURL:         "http://localhost:8546",
				Role:                entity.RoleSide,
				DeployedAddress:     sideAddress,
				BridgeAddress:       bridgeAddress,
				ChainID:             2,
				PendingAttestations: sideQueue,
			},
		},
	}}
}

type sentCall struct {
	method string
	args   []any
	tx     *types.Transaction
}

// fakeChainClient records calls. WaitMined returns a successful receipt carrying the
// bridge logs registered for the method that produced the transaction.
type fakeChainClient struct {
	mu          sync.Mutex
	network     entity.NetworkDescriptor
	sent        []sentCall
	transactErr error
	waitErr     error
	logs        map[string][]*types.Log
	mined       map[common.Hash]*types.Receipt
	waited      int
}

func newFakeClient(n entity.NetworkDescriptor) *fakeChainClient {
	return &fakeChainClient{
		network: n,
		logs:    map[string][]*types.Log{},
		mined:   map[common.Hash]*types.Receipt{},
	}
}

func (c *fakeChainClient) Transact(_ context.Context, method string, args ...any) (*types.Transaction, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transactErr != nil {
		return nil, c.transactErr
	}
	to := common.HexToAddress(c.network.DeployedAddress)
	tx := types.NewTx(&types.LegacyTx{
		Nonce: uint64(len(c.sent)),
		To:    &to,
		Data:  []byte(c.network.Name + "/" + method),
	})
	c.sent = append(c.sent, sentCall{method: method, args: args, tx: tx})
	return tx, nil
}

func (c *fakeChainClient) WaitMined(_ context.Context, tx *types.Transaction) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.waited++
	if c.waitErr != nil {
		return nil, c.waitErr
	}
	var method string
	for _, s := range c.sent {
		if s.tx.Hash() == tx.Hash() {
			method = s.method
		}
	}
	return &types.Receipt{Status: types.ReceiptStatusSuccessful, TxHash: tx.Hash(), Logs: c.logs[method]}, nil
}

func (c *fakeChainClient) Receipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.mined[hash]
	if !ok {
		return nil, entity.ConfigError("transaction %s is not mined", hash.Hex())
	}
	return r, nil
}

func (c *fakeChainClient) Network() entity.NetworkDescriptor { return c.network }

func (c *fakeChainClient) calls() []sentCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]sentCall(nil), c.sent...)
}

type fakeProvider struct {
	clients map[string]*fakeChainClient
}

func (p *fakeProvider) GetClient(_ context.Context, n entity.NetworkDescriptor) (port.ChainClient, error) {
	c, ok := p.clients[n.Name]
	if !ok {
		return nil, fmt.Errorf("no client for %s", n.Name)
	}
	return c, nil
}

func (p *fakeProvider) Close() {}

type mockWaiter struct{ mock.Mock }

func (m *mockWaiter) WaitForAttestation(ctx context.Context, base string, key entity.AttestationKey) (entity.Attestation, error) {
	args := m.Called(ctx, base, key)
	return args.Get(0).(entity.Attestation), args.Error(1)
}

type mockFetcher struct{ mock.Mock }

func (m *mockFetcher) FetchAttestation(ctx context.Context, base string, key entity.AttestationKey) ([]byte, error) {
	args := m.Called(ctx, base, key)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

type recordingMetrics struct {
	mu      sync.Mutex
	actions map[string]int
	pending map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{actions: map[string]int{}, pending: map[string]int{}}
}

func (m *recordingMetrics) ActionCompleted(action string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	m.actions[action+"/"+outcome]++
}

func (m *recordingMetrics) AttestationFetched(string, time.Duration) {}

func (m *recordingMetrics) PendingAttestations(network string, count int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.pending[network] = count
}

func (m *recordingMetrics) RelayRequest(string, error) {}

// bridgeLogs returns the log the bridge emits when the contract at sender publishes seq.
func bridgeLogs(t *testing.T, sender string, seq uint64) []*types.Log {
	t.Helper()
	lg, err := sequence.EncodeBridgeLog(common.HexToAddress(bridgeAddress), common.HexToAddress(sender), seq, 0, []byte("msg"), 1)
	require.NoError(t, err)
	return []*types.Log{lg}
}

func keyFor(t *testing.T, chainID uint16, address string, seq uint64) entity.AttestationKey {
	t.Helper()
	emitter, err := utils.EmitterAddressHex(address)
	require.NoError(t, err)
	return entity.AttestationKey{EmitterChainID: chainID, EmitterAddress: emitter, Sequence: seq}
}

// harness wires a governance service over fakes.
type harness struct {
	store   *memoryStore
	main    *fakeChainClient
	side    *fakeChainClient
	waiter  *mockWaiter
	metrics *recordingMetrics
	svc     port.GovernanceService
}

func newHarness(t *testing.T, mainQueue, sideQueue [][]byte) *harness {
	t.Helper()
	store := newRegistry(mainQueue, sideQueue)
	state, _ := store.Load(context.Background())
	mainNet, _ := state.Network("main")
	sideNet, _ := state.Network("side")

	h := &harness{
		store:   store,
		main:    newFakeClient(*mainNet),
		side:    newFakeClient(*sideNet),
		waiter:  &mockWaiter{},
		metrics: newRecordingMetrics(),
	}
	provider := &fakeProvider{clients: map[string]*fakeChainClient{"main": h.main, "side": h.side}}
	h.svc = NewGovernanceService(store, provider, sequence.NewBridgeLogExtractor(), h.waiter, h.metrics, nopLogger{})
	t.Cleanup(func() { h.waiter.AssertExpectations(t) })
	return h
}
