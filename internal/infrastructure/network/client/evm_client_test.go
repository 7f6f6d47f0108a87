package client

import (
	"context"
	"errors"
	"math/big"
	"sync/atomic"
	"testing"
	"time"

	"governance_relayer/internal/domain/entity"
	"governance_relayer/internal/infrastructure/configloader"
	networkdefinition "governance_relayer/internal/infrastructure/network/definition"
	"governance_relayer/internal/infrastructure/signer"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// fakeBackend answers receipt lookups and replays; anything else panics through the nil
// embedded interface, which proves no transaction was broadcast.
type fakeBackend struct {
	bind.ContractBackend
	receipts   func(call int) (*types.Receipt, error)
	calls      atomic.Int32
	replayErr  error
	replayedAt *big.Int
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, _ common.Hash) (*types.Receipt, error) {
	n := int(f.calls.Add(1))
	return f.receipts(n)
}

func (f *fakeBackend) CallContract(_ context.Context, _ ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.replayedAt = block
	return nil, f.replayErr
}

type rpcDataError struct {
	msg  string
	data any
}

func (e rpcDataError) Error() string  { return e.msg }
func (e rpcDataError) ErrorData() any { return e.data }

var mainNetwork = entity.NetworkDescriptor{
	Name:            "main",
	EndpointURL:     "http://localhost:8545",
	Role:            entity.RoleMain,
	DeployedAddress: "0x0000000000000000000000000000000000000AAA",
	BridgeAddress:   "0xC89Ce4735882C9F0f0FE26686c53074E09B0D550",
	ChainID:         6,
}

func newTestClient(t *testing.T, backend *fakeBackend) *EVMClient {
	t.Helper()
	abis, err := networkdefinition.NewContractABIProvider(nopLogger{}, "", "")
	require.NoError(t, err)
	mainABI, err := abis.ABIFor(entity.RoleMain)
	require.NoError(t, err)

	c, err := NewEVMClient(backend, mainNetwork, mainABI, &bind.TransactOpts{From: common.HexToAddress("0x01")}, EVMClientOptions{
		RPCCallTimeout:      time.Second,
		ReceiptPollInterval: 5 * time.Millisecond,
		InclusionTimeout:    100 * time.Millisecond,
	}, nopLogger{})
	require.NoError(t, err)
	require.IsType(t, &EVMClient{}, c)
	return c.(*EVMClient)
}

func endVotingTx(t *testing.T, c *EVMClient) *types.Transaction {
	t.Helper()
	data, err := c.contractABI.Pack(networkdefinition.MethodEndVoting, big.NewInt(1))
	require.NoError(t, err)
	to := c.address
	return types.NewTx(&types.LegacyTx{Nonce: 1, To: &to, Gas: 100000, GasPrice: big.NewInt(1), Data: data})
}

func revertData(t *testing.T, reason string) string {
	t.Helper()
	stringType, err := abi.NewType("string", "", nil)
	require.NoError(t, err)
	packed, err := abi.Arguments{{Type: stringType}}.Pack(reason)
	require.NoError(t, err)
	return hexutil.Encode(append([]byte{0x08, 0xc3, 0x79, 0xa0}, packed...))
}

func TestTransact_RejectsBadCallsBeforeSending(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	_, err := c.Transact(context.Background(), "selfDestruct")
	require.ErrorIs(t, err, entity.ErrConfiguration)

	_, err = c.Transact(context.Background(), networkdefinition.MethodEndVoting, "not a number")
	require.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestWaitMined_PollsUntilIncluded(t *testing.T) {
	want := &types.Receipt{Status: types.ReceiptStatusSuccessful, BlockNumber: big.NewInt(10)}
	backend := &fakeBackend{receipts: func(call int) (*types.Receipt, error) {
		if call < 3 {
			return nil, ethereum.NotFound
		}
		return want, nil
	}}
	c := newTestClient(t, backend)

	got, err := c.WaitMined(context.Background(), endVotingTx(t, c))
	require.NoError(t, err)
	assert.Same(t, want, got)
	assert.Equal(t, int32(3), backend.calls.Load())
}

func TestWaitMined_TimesOut(t *testing.T) {
	backend := &fakeBackend{receipts: func(int) (*types.Receipt, error) { return nil, ethereum.NotFound }}
	c := newTestClient(t, backend)

	_, err := c.WaitMined(context.Background(), endVotingTx(t, c))
	require.ErrorIs(t, err, entity.ErrTimedOut)

	var chainErr *entity.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, "main", chainErr.Network)
}

func TestWaitMined_CallerCancellation(t *testing.T) {
	backend := &fakeBackend{receipts: func(int) (*types.Receipt, error) { return nil, ethereum.NotFound }}
	c := newTestClient(t, backend)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.WaitMined(ctx, endVotingTx(t, c))
	require.ErrorIs(t, err, context.Canceled)
}

func TestWaitMined_RevertedReceipt(t *testing.T) {
	backend := &fakeBackend{
		receipts: func(int) (*types.Receipt, error) {
			return &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(12)}, nil
		},
		replayErr: rpcDataError{msg: "execution reverted", data: revertData(t, "voting already ended")},
	}
	c := newTestClient(t, backend)

	receipt, err := c.WaitMined(context.Background(), endVotingTx(t, c))
	require.ErrorIs(t, err, entity.ErrChainReverted)
	require.NotNil(t, receipt)
	assert.Equal(t, big.NewInt(12), backend.replayedAt)

	var chainErr *entity.ChainError
	require.ErrorAs(t, err, &chainErr)
	assert.Equal(t, networkdefinition.MethodEndVoting, chainErr.Method)
	assert.Contains(t, chainErr.Reason, "voting already ended")
}

func TestReceipt_NotMined(t *testing.T) {
	backend := &fakeBackend{receipts: func(int) (*types.Receipt, error) { return nil, ethereum.NotFound }}
	_, err := newTestClient(t, backend).Receipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, entity.ErrConfiguration)

	backend = &fakeBackend{receipts: func(int) (*types.Receipt, error) { return nil, errors.New("connection refused") }}
	_, err = newTestClient(t, backend).Receipt(context.Background(), common.HexToHash("0x01"))
	require.ErrorIs(t, err, entity.ErrChainUnreachable)
}

func TestRevertReason(t *testing.T) {
	reason, ok := revertReason(rpcDataError{msg: "execution reverted", data: revertData(t, "only main")})
	assert.True(t, ok)
	assert.Equal(t, "only main", reason)

	reason, ok = revertReason(errors.New("execution reverted: not registered"))
	assert.True(t, ok)
	assert.Equal(t, "not registered", reason)

	reason, ok = revertReason(rpcDataError{msg: "execution reverted", data: "0xdeadbeef"})
	assert.True(t, ok)
	assert.Equal(t, "custom error 0xdeadbeef", reason)

	_, ok = revertReason(errors.New("dial tcp 127.0.0.1:8545: connect: connection refused"))
	assert.False(t, ok)
}

func TestChainError_Classification(t *testing.T) {
	c := newTestClient(t, &fakeBackend{})

	err := c.chainError("endVoting", errors.New("execution reverted: too early"))
	require.ErrorIs(t, err, entity.ErrChainReverted)

	err = c.chainError("endVoting", errors.New("i/o timeout"))
	require.ErrorIs(t, err, entity.ErrChainUnreachable)
}

func TestNewEVMClient_RequiresDeployment(t *testing.T) {
	undeployed := mainNetwork
	undeployed.DeployedAddress = ""
	_, err := NewEVMClient(&fakeBackend{}, undeployed, abi.ABI{}, &bind.TransactOpts{}, EVMClientOptions{}, nopLogger{})
	require.ErrorIs(t, err, entity.ErrConfiguration)
}

func TestProvider_GetClient(t *testing.T) {
	abis, err := networkdefinition.NewContractABIProvider(nopLogger{}, "", "")
	require.NoError(t, err)
	s, err := signer.FromHex("0xac0974bec39a17e36ba4a6b4d238ff944bacb478cbed5efcae784d7bf4f2ff80")
	require.NoError(t, err)

	cfg := configloader.Config{}
	configloader.ApplyDefaults(&cfg)
	cfg.RpcClient.ConnectionTimeoutMs = 500
	p := NewEVMClientProvider(cfg.RpcClient, s, abis, nopLogger{})
	defer p.Close()

	undeployed := mainNetwork
	undeployed.DeployedAddress = ""
	_, err = p.GetClient(context.Background(), undeployed)
	require.ErrorIs(t, err, entity.ErrConfiguration)

	unreachable := mainNetwork
	unreachable.EndpointURL = "http://127.0.0.1:1"
	_, err = p.GetClient(context.Background(), unreachable)
	require.ErrorIs(t, err, entity.ErrChainUnreachable)

	_, err = NewEVMClientProvider(cfg.RpcClient, nil, abis, nopLogger{}).GetClient(context.Background(), mainNetwork)
	require.ErrorIs(t, err, entity.ErrConfiguration)
}
