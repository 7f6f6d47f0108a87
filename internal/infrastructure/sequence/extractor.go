package sequence

import (
	"fmt"

	"governance_relayer/internal/app/port"
	"governance_relayer/internal/domain/entity"
	networkdefinition "governance_relayer/internal/infrastructure/network/definition"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

var _ port.SequenceExtractor = (*BridgeLogExtractor)(nil)

// BridgeLogExtractor reads the sequence number out of the core bridge's
// LogMessagePublished event.
type BridgeLogExtractor struct {
	bridgeABI abi.ABI
	event     abi.Event
}

// NewBridgeLogExtractor creates an extractor for the standard bridge event.
func NewBridgeLogExtractor() *BridgeLogExtractor {
	parsed := networkdefinition.BridgeABI()
	return &BridgeLogExtractor{
		bridgeABI: parsed,
		event:     parsed.Events[networkdefinition.BridgeEventName],
	}
}

// ExtractSequence returns the sequence of the first LogMessagePublished log emitted by
// bridgeAddress. It never returns 0 in place of a missing log.
func (e *BridgeLogExtractor) ExtractSequence(receipt *types.Receipt, bridgeAddress string) (uint64, error) {
	if receipt == nil {
		return 0, fmt.Errorf("%w: nil receipt", entity.ErrSequenceNotFound)
	}
	if !common.IsHexAddress(bridgeAddress) {
		return 0, entity.ConfigError("invalid bridge address %q", bridgeAddress)
	}
	bridge := common.HexToAddress(bridgeAddress)

	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != bridge {
			continue
		}
		if len(lg.Topics) == 0 || lg.Topics[0] != e.event.ID {
			continue
		}

		values, err := e.bridgeABI.Unpack(networkdefinition.BridgeEventName, lg.Data)
		if err != nil {
			return 0, fmt.Errorf("%w: failed to decode bridge log %d in tx %s: %v",
				entity.ErrSequenceNotFound, lg.Index, receipt.TxHash.Hex(), err)
		}
		if len(values) == 0 {
			return 0, fmt.Errorf("%w: empty bridge log in tx %s", entity.ErrSequenceNotFound, receipt.TxHash.Hex())
		}
		seq, ok := values[0].(uint64)
		if !ok {
			return 0, fmt.Errorf("%w: unexpected sequence type %T in tx %s",
				entity.ErrSequenceNotFound, values[0], receipt.TxHash.Hex())
		}
		return seq, nil
	}

	return 0, fmt.Errorf("%w: no log from bridge %s in tx %s (%d logs)",
		entity.ErrSequenceNotFound, bridge.Hex(), receipt.TxHash.Hex(), len(receipt.Logs))
}

// EncodeBridgeLog builds the log the bridge emits for a published message.
// Used to construct receipts in tests and tooling.
func EncodeBridgeLog(bridge, sender common.Address, seq uint64, nonce uint32, payload []byte, consistency uint8) (*types.Log, error) {
	parsed := networkdefinition.BridgeABI()
	ev := parsed.Events[networkdefinition.BridgeEventName]
	data, err := ev.Inputs.NonIndexed().Pack(seq, nonce, payload, consistency)
	if err != nil {
		return nil, fmt.Errorf("failed to pack bridge log: %w", err)
	}
	return &types.Log{
		Address: bridge,
		Topics:  []common.Hash{ev.ID, common.BytesToHash(sender.Bytes())},
		Data:    data,
	}, nil
}
