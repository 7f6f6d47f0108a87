package port

import (
	"context"

	"governance_relayer/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// ChainClient defines the interface for calling the governance contract deployed on one network.
// Implementations are bound to a single signer and endpoint and never retry on their own.
type ChainClient interface {
	// Transact broadcasts a state-changing call. It does not wait for inclusion.
	Transact(ctx context.Context, method string, args ...any) (*types.Transaction, error)

	// WaitMined blocks until the transaction is included and returns its receipt.
	// A reverted receipt is returned together with an entity.ErrChainReverted error.
	WaitMined(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)

	// Receipt fetches the receipt of an already-mined transaction.
	Receipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)

	// Network returns the descriptor this client was built for.
	Network() entity.NetworkDescriptor
}

// ChainClientProvider defines the interface for providing chain clients.
type ChainClientProvider interface {
	GetClient(ctx context.Context, network entity.NetworkDescriptor) (ChainClient, error)
	// Close releases every connection the provider opened.
	Close()
}

// SequenceExtractor finds the bridge sequence number emitted in a receipt.
type SequenceExtractor interface {
	ExtractSequence(receipt *types.Receipt, bridgeAddress string) (uint64, error)
}
