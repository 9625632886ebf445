package adapter

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tx-ledger/internal/config"
	"github.com/tx-ledger/internal/types"
)

func TestDecodeMethod(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		wantName string
		wantType types.TransactionType
	}{
		{"transfer", common.FromHex("0xa9059cbb0000"), "transfer", ""},
		{"approve", common.FromHex("0x095ea7b3"), "approve", ""},
		{"short", []byte{0x01, 0x02}, MethodUnknown, ""},
		{"empty", nil, MethodUnknown, ""},
		{"unmatched", common.FromHex("0xdeadbeef00"), MethodUnknown, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := DecodeMethod(tt.data)
			assert.Equal(t, tt.wantName, m.Name)
			assert.Equal(t, tt.wantType, m.Type)
		})
	}
}

func TestDecodeMethod_TableRoundTrip(t *testing.T) {
	for _, name := range []string{"supply", "borrow", "repay", "withdraw", "liquidationCall", "depositForBurn", "stake", "unstake"} {
		m, ok := LookupMethod(name)
		require.True(t, ok, name)

		data := append(m.Selector[:], make([]byte, 64)...)
		decoded := DecodeMethod(data)
		assert.Equal(t, name, decoded.Name)
		assert.True(t, decoded.Known())
		assert.NotEmpty(t, decoded.Type, name)
	}

	m, _ := LookupMethod("transfer")
	assert.Equal(t, "0xa9059cbb", m.SelectorHex())
}

func TestParseTokenTransfers(t *testing.T) {
	token := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	from := common.HexToAddress("0x1111111111111111111111111111111111111111")
	to := common.HexToAddress("0x2222222222222222222222222222222222222222")

	logs := []*ethtypes.Log{
		{
			Address: token,
			Topics:  []common.Hash{TransferEventTopic, common.BytesToHash(from.Bytes()), common.BytesToHash(to.Bytes())},
			Data:    common.LeftPadBytes(big.NewInt(2_500_000).Bytes(), 32),
		},
		{Address: token, Topics: []common.Hash{common.HexToHash("0x01")}},
		nil,
	}

	transfers := ParseTokenTransfers(logs)
	require.Len(t, transfers, 1)
	assert.Equal(t, token.Hex(), transfers[0].Token)
	assert.Equal(t, from.Hex(), transfers[0].From)
	assert.Equal(t, to.Hex(), transfers[0].To)
	assert.Equal(t, "2500000", transfers[0].Value)

	assert.Len(t, TransfersTouching(transfers, "0x2222222222222222222222222222222222222222"), 1)
	assert.Empty(t, TransfersTouching(transfers, "0x3333333333333333333333333333333333333333"))
}

func TestSender(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	want := crypto.PubkeyToAddress(key.PublicKey)

	chainID := big.NewInt(int64(types.ChainBase))
	to := common.HexToAddress("0xA238Dd80C259a72e81d7e4664a9801593F98d1c5")

	tx, err := ethtypes.SignTx(ethtypes.NewTx(&ethtypes.DynamicFeeTx{
		ChainID:   chainID,
		Nonce:     1,
		GasTipCap: big.NewInt(1),
		GasFeeCap: big.NewInt(2),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(0),
	}), ethtypes.LatestSignerForChainID(chainID), key)
	require.NoError(t, err)

	got, err := Sender(tx, types.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestRegistry(t *testing.T) {
	r := DefaultRegistry()

	pool := common.HexToAddress("0xA238Dd80C259a72e81d7e4664a9801593F98d1c5")
	assert.True(t, r.IsKnownContract(types.ChainBase, pool))
	assert.False(t, r.IsKnownContract(types.ChainSepolia, pool))

	usdc, ok := r.TokenByHex(types.ChainEthereum, "0xa0b86991c6218b36c1d19d4a2e9eb0ce3606eb48")
	require.True(t, ok)
	assert.Equal(t, "USDC", usdc.Symbol)
	assert.Equal(t, 6, usdc.Decimals)

	_, ok = r.TokenByHex(types.ChainEthereum, "not-an-address")
	assert.False(t, ok)

	// duplicates are ignored
	before := len(r.Contracts(types.ChainBase))
	r.AddContract(types.ChainBase, pool)
	assert.Len(t, r.Contracts(types.ChainBase), before)
}

func TestRegistryFromConfig(t *testing.T) {
	chains := config.ChainsConfig{
		Enabled: []types.ChainID{types.ChainSepolia},
		Chains: map[types.ChainID]config.ChainConfig{
			types.ChainSepolia: {
				Contracts: []string{"0x1111111111111111111111111111111111111111"},
				Tokens:    []config.TokenConfig{{Address: "0x2222222222222222222222222222222222222222", Symbol: "tusd", Decimals: 6}},
			},
		},
	}

	r, err := RegistryFromConfig(chains)
	require.NoError(t, err)
	assert.Len(t, r.Contracts(types.ChainSepolia), 1)

	tok, ok := r.TokenByHex(types.ChainSepolia, "0x2222222222222222222222222222222222222222")
	require.True(t, ok)
	assert.Equal(t, "TUSD", tok.Symbol)

	chains.Chains[types.ChainSepolia] = config.ChainConfig{Contracts: []string{"0xnope"}}
	_, err = RegistryFromConfig(chains)
	assert.ErrorIs(t, err, ErrInvalidAddress)
}

func TestStaticClients(t *testing.T) {
	_, err := StaticClients{}.Client(types.ChainEthereum)
	assert.ErrorIs(t, err, ErrChainNotConfigured)

	reg := NewClientRegistry()
	_, err = reg.Client(types.ChainBase)
	assert.ErrorIs(t, err, ErrChainNotConfigured)
	assert.Empty(t, reg.Chains())
}
