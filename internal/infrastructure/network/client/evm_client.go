package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
)

// chainBackend is the part of ethclient.Client the governance client needs.
type chainBackend interface {
	bind.ContractBackend
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
}

// EVMClient implements port.ChainClient for the governance contract on one EVM network.
type EVMClient struct {
	backend          chainBackend
	contract         *bind.BoundContract
	contractABI      abi.ABI
	address          common.Address
	auth             bind.TransactOpts
	network          entity.NetworkDescriptor
	logger           port.Logger
	rpcCallTimeout   time.Duration
	pollInterval     time.Duration
	inclusionTimeout time.Duration
}

// EVMClientOptions holds the timing settings of an EVMClient.
type EVMClientOptions struct {
	RPCCallTimeout      time.Duration
	ReceiptPollInterval time.Duration
	InclusionTimeout    time.Duration
}

// NewEVMClient binds auth to the governance contract deployed on network.
func NewEVMClient(
	backend chainBackend,
	network entity.NetworkDescriptor,
	contractABI abi.ABI,
	auth *bind.TransactOpts,
	opts EVMClientOptions,
	logger port.Logger,
) (port.ChainClient, error) {
	if !network.IsDeployed() {
		return nil, entity.ConfigError("network %s has no deployed governance contract", network.Name)
	}
	if !common.IsHexAddress(network.DeployedAddress) {
		return nil, entity.ConfigError("network %s: invalid deployed address %q", network.Name, network.DeployedAddress)
	}
	address := common.HexToAddress(network.DeployedAddress)

	return &EVMClient{
		backend:          backend,
		contract:         bind.NewBoundContract(address, contractABI, backend, backend, backend),
		contractABI:      contractABI,
		address:          address,
		auth:             *auth,
		network:          network.Clone(),
		logger:           logger,
		rpcCallTimeout:   opts.RPCCallTimeout,
		pollInterval:     opts.ReceiptPollInterval,
		inclusionTimeout: opts.InclusionTimeout,
	}, nil
}

// Transact implements port.ChainClient. Arguments are packed before anything is sent,
// so a bad method or argument list never reaches the chain.
func (c *EVMClient) Transact(ctx context.Context, method string, args ...any) (*types.Transaction, error) {
	if _, ok := c.contractABI.Methods[method]; !ok {
		return nil, entity.ConfigError("contract on %s (%s) has no method %s", c.network.Name, c.network.Role, method)
	}
	input, err := c.contractABI.Pack(method, args...)
	if err != nil {
		return nil, entity.ConfigError("invalid arguments for %s on %s: %v", method, c.network.Name, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	opts := c.auth
	opts.Context = callCtx

	tx, err := c.contract.RawTransact(&opts, input)
	if err != nil {
		return nil, c.chainError(method, err)
	}
	c.logger.Info("Transaction sent", "network", c.network.Name, "method", method, "tx", tx.Hash().Hex())
	return tx, nil
}

// WaitMined implements port.ChainClient by polling for the receipt until inclusionTimeout.
func (c *EVMClient) WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
	if tx == nil {
		return nil, errors.New("nil transaction")
	}
	waitCtx, cancel := context.WithTimeout(ctx, c.inclusionTimeout)
	defer cancel()

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	var lastErr error
	for {
		receipt, err := c.backend.TransactionReceipt(waitCtx, tx.Hash())
		if err == nil && receipt != nil {
			if receipt.Status == types.ReceiptStatusFailed {
				return receipt, c.revertError(ctx, tx, receipt)
			}
			c.logger.Debug("Transaction mined", "network", c.network.Name, "tx", tx.Hash().Hex(),
				"block", receipt.BlockNumber, "logs", len(receipt.Logs))
			return receipt, nil
		}
		if err != nil && !errors.Is(err, ethereum.NotFound) {
			lastErr = err
			c.logger.Debug("Receipt lookup failed, retrying", "network", c.network.Name, "tx", tx.Hash().Hex(), "error", err)
		}

		select {
		case <-waitCtx.Done():
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, &entity.ChainError{
				Kind:    entity.ErrTimedOut,
				Network: c.network.Name,
				Reason:  fmt.Sprintf("tx %s not mined within %s", tx.Hash().Hex(), c.inclusionTimeout),
				Err:     lastErr,
			}
		case <-ticker.C:
		}
	}
}

// Receipt implements port.ChainClient.
func (c *EVMClient) Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	receipt, err := c.backend.TransactionReceipt(callCtx, txHash)
	if err != nil {
		if errors.Is(err, ethereum.NotFound) {
			return nil, entity.ConfigError("transaction %s is not mined on %s", txHash.Hex(), c.network.Name)
		}
		return nil, c.chainError("", err)
	}
	return receipt, nil
}

// Network implements port.ChainClient.
func (c *EVMClient) Network() entity.NetworkDescriptor {
	return c.network.Clone()
}

// revertError replays a failed transaction at its block to recover the revert reason.
func (c *EVMClient) revertError(ctx context.Context, tx *types.Transaction, receipt *types.Receipt) error {
	callCtx, cancel := context.WithTimeout(ctx, c.rpcCallTimeout)
	defer cancel()

	method := c.methodOf(tx.Data())
	msg := ethereum.CallMsg{
		From:  c.auth.From,
		To:    tx.To(),
		Data:  tx.Data(),
		Value: tx.Value(),
		Gas:   tx.Gas(),
	}
	reason := "no reason returned"
	if _, err := c.backend.CallContract(callCtx, msg, receipt.BlockNumber); err != nil {
		if r, ok := revertReason(err); ok {
			reason = r
		} else {
			reason = err.Error()
		}
	}
	c.logger.Warn("Transaction reverted", "network", c.network.Name, "tx", tx.Hash().Hex(), "method", method, "reason", reason)
	return &entity.ChainError{
		Kind:    entity.ErrChainReverted,
		Network: c.network.Name,
		Method:  method,
		Reason:  fmt.Sprintf("tx %s: %s", tx.Hash().Hex(), reason),
	}
}

func (c *EVMClient) methodOf(data []byte) string {
	if len(data) < 4 {
		return ""
	}
	m, err := c.contractABI.MethodById(data[:4])
	if err != nil {
		return ""
	}
	return m.Name
}

// chainError classifies an RPC failure as a revert or an unreachable endpoint.
func (c *EVMClient) chainError(method string, err error) error {
	if reason, ok := revertReason(err); ok {
		c.logger.Warn("Call reverted", "network", c.network.Name, "method", method, "reason", reason)
		return &entity.ChainError{Kind: entity.ErrChainReverted, Network: c.network.Name, Method: method, Reason: reason, Err: err}
	}
	c.logger.Error("RPC call failed", "network", c.network.Name, "method", method, "error", err)
	return &entity.ChainError{Kind: entity.ErrChainUnreachable, Network: c.network.Name, Method: method, Err: err}
}

// dataError matches rpc.DataError without depending on the concrete JSON-RPC error type.
type dataError interface {
	Error() string
	ErrorData() any
}

// revertReason reports whether err is an execution revert and extracts its reason.
func revertReason(err error) (string, bool) {
	var derr dataError
	if errors.As(err, &derr) {
		if data, ok := derr.ErrorData().(string); ok && data != "" {
			if raw, decErr := hexutil.Decode(data); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(raw); unpackErr == nil {
					return reason, true
				}
				if len(raw) >= 4 {
					return fmt.Sprintf("custom error 0x%x", raw[:4]), true
				}
			}
		}
	}
	msg := err.Error()
	if idx := strings.Index(msg, "execution reverted"); idx >= 0 {
		reason := strings.TrimPrefix(msg[idx+len("execution reverted"):], ":")
		reason = strings.TrimSpace(reason)
		if reason == "" {
			reason = "execution reverted"
		}
		return reason, true
	}
	return "", false
}
