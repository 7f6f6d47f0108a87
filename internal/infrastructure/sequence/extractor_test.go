package sequence

import (
	"testing"

	"governance_relayer/internal/domain/entity"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	bridge = common.HexToAddress("0x706abc4E45D419950511e474C7B9Ed348A4a716c")
	dao    = common.HexToAddress("0x0000000000000000000000000000000000000AAA")
)

func bridgeLog(t *testing.T, from common.Address, seq uint64) *types.Log {
	t.Helper()
	lg, err := EncodeBridgeLog(from, dao, seq, 0, []byte("payload"), 1)
	require.NoError(t, err)
	return lg
}

func TestExtractSequence_FindsBridgeLog(t *testing.T) {
	other := &types.Log{Address: dao, Topics: []common.Hash{common.HexToHash("0x01")}, Data: []byte{1}}
	receipt := &types.Receipt{Logs: []*types.Log{other, bridgeLog(t, bridge, 3), bridgeLog(t, bridge, 4)}}

	seq, err := NewBridgeLogExtractor().ExtractSequence(receipt, bridge.Hex())
	require.NoError(t, err)
	assert.Equal(t, uint64(3), seq, "first bridge log wins")
}

func TestExtractSequence_AddressIsCaseInsensitive(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{bridgeLog(t, bridge, 42)}}

	seq, err := NewBridgeLogExtractor().ExtractSequence(receipt, "0x706abc4e45d419950511e474c7b9ed348a4a716c")
	require.NoError(t, err)
	assert.Equal(t, uint64(42), seq)
}

func TestExtractSequence_NoBridgeLog(t *testing.T) {
	receipt := &types.Receipt{Logs: []*types.Log{bridgeLog(t, dao, 7)}}

	_, err := NewBridgeLogExtractor().ExtractSequence(receipt, bridge.Hex())
	require.ErrorIs(t, err, entity.ErrSequenceNotFound)

	_, err = NewBridgeLogExtractor().ExtractSequence(&types.Receipt{}, bridge.Hex())
	require.ErrorIs(t, err, entity.ErrSequenceNotFound)

	_, err = NewBridgeLogExtractor().ExtractSequence(nil, bridge.Hex())
	require.ErrorIs(t, err, entity.ErrSequenceNotFound)
}

func TestExtractSequence_CorruptData(t *testing.T) {
	lg := bridgeLog(t, bridge, 1)
	lg.Data = lg.Data[:10]
	_, err := NewBridgeLogExtractor().ExtractSequence(&types.Receipt{Logs: []*types.Log{lg}}, bridge.Hex())
	require.ErrorIs(t, err, entity.ErrSequenceNotFound)
}

func TestExtractSequence_BadBridgeAddress(t *testing.T) {
	_, err := NewBridgeLogExtractor().ExtractSequence(&types.Receipt{}, "bridge")
	require.ErrorIs(t, err, entity.ErrConfiguration)
}
