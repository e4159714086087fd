package ethapi

import (
	"context"
	"encoding/json"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

var testChainID = big.NewInt(10)

func signedDynamicTx(t *testing.T) (*insoTypes.RecoveredTx, *types.Transaction) {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	signer := types.LatestSignerForChainID(testChainID)
	to := common.HexToAddress("0x1111")
	tx := types.MustSignNewTx(key, signer, &types.DynamicFeeTx{
		ChainID:   testChainID,
		Nonce:     3,
		GasTipCap: big.NewInt(2),
		GasFeeCap: big.NewInt(100),
		Gas:       21000,
		To:        &to,
		Value:     big.NewInt(7),
	})
	rec, err := insoTypes.RecoverTx(tx, signer)
	require.NoError(t, err)
	return rec, tx
}

func TestFillPendingDynamicFee(t *testing.T) {
	rec, tx := signedDynamicTx(t)
	got := EthTxBuilder{}.Fill(rec, insoTypes.PendingInfo(tx.Hash()))

	assert.Equal(t, tx.Hash(), got.Hash)
	assert.Equal(t, rec.From, got.From)
	assert.Nil(t, got.BlockHash)
	assert.Nil(t, got.BlockNumber)
	assert.Nil(t, got.TransactionIndex)
	assert.Equal(t, int64(100), got.GasPrice.ToInt().Int64(), "pending gasPrice is the fee cap")
	assert.Equal(t, int64(2), got.GasTipCap.ToInt().Int64())
	assert.Equal(t, testChainID.Int64(), got.ChainID.ToInt().Int64())
	require.NotNil(t, got.YParity)
	assert.Equal(t, uint64(types.DynamicFeeTxType), uint64(got.Type))

	raw, err := json.Marshal(got)
	require.NoError(t, err)
	var fields map[string]any
	require.NoError(t, json.Unmarshal(raw, &fields))
	assert.Contains(t, fields, "blockHash")
	assert.Nil(t, fields["blockHash"])
	assert.NotContains(t, fields, "sourceHash")
}

func TestFillIncludedEffectiveGasPrice(t *testing.T) {
	rec, tx := signedDynamicTx(t)
	info := insoTypes.IncludedInfo(tx.Hash(), common.HexToHash("0xb1"), 12, 4, big.NewInt(50))
	got := EthTxBuilder{}.Fill(rec, info)

	require.NotNil(t, got.BlockHash)
	assert.Equal(t, common.HexToHash("0xb1"), *got.BlockHash)
	assert.Equal(t, int64(12), got.BlockNumber.ToInt().Int64())
	assert.Equal(t, uint64(4), uint64(*got.TransactionIndex))
	assert.Equal(t, int64(52), got.GasPrice.ToInt().Int64(), "tip + baseFee below cap")

	info.BaseFee = big.NewInt(1000)
	got = EthTxBuilder{}.Fill(rec, info)
	assert.Equal(t, int64(100), got.GasPrice.ToInt().Int64(), "capped at maxFeePerGas")
}

func TestFillLegacy(t *testing.T) {
	key, _ := crypto.GenerateKey()
	signer := types.NewEIP155Signer(testChainID)
	tx := types.MustSignNewTx(key, signer, &types.LegacyTx{
		Nonce:    1,
		GasPrice: big.NewInt(9),
		Gas:      21000,
		Value:    big.NewInt(1),
	})
	rec, err := insoTypes.RecoverTx(tx, signer)
	require.NoError(t, err)

	got := EthTxBuilder{}.Fill(rec, insoTypes.PendingInfo(tx.Hash()))
	assert.Equal(t, int64(9), got.GasPrice.ToInt().Int64())
	assert.Nil(t, got.GasFeeCap)
	assert.Nil(t, got.YParity)
	assert.Nil(t, got.To)
	assert.Equal(t, testChainID.Int64(), got.ChainID.ToInt().Int64())
}

func TestFillDeposit(t *testing.T) {
	d := insoTypes.NewDepositTx(insoTypes.DepositTxData{
		SourceHash: common.HexToHash("0x5e"),
		From:       common.HexToAddress("0xdd"),
		Gas:        90_000,
	})
	ptx, err := insoTypes.NewPooledDeposit(d)
	require.NoError(t, err)

	got := EthTxBuilder{}.Fill(ptx.Recovered(), insoTypes.PendingInfo(d.Hash()))
	assert.Equal(t, uint64(insoTypes.DepositTxType), uint64(got.Type))
	assert.Equal(t, common.HexToAddress("0xdd"), got.From)
	assert.Zero(t, got.V.ToInt().Sign())
	assert.Zero(t, got.R.ToInt().Sign())
	assert.Zero(t, got.GasPrice.ToInt().Sign())
	assert.Nil(t, got.ChainID)
}

type fakeLookup map[common.Hash]insoTypes.PoolTransaction

func (f fakeLookup) Get(hash common.Hash) (insoTypes.PoolTransaction, bool) {
	tx, ok := f[hash]
	return tx, ok
}

func TestTransactionAPI(t *testing.T) {
	rec, tx := signedDynamicTx(t)
	ptx, err := insoTypes.NewPooledTx(tx, rec.From)
	require.NoError(t, err)
	lookup := fakeLookup{tx.Hash(): ptx}

	api := NewTransactionAPI[*RPCTransaction](lookup, PendingFormatter[*RPCTransaction](EthTxBuilder{}))
	got, found, err := api.GetTransactionByHash(context.Background(), tx.Hash())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, tx.Hash(), got.Hash)

	_, found, err = api.GetTransactionByHash(context.Background(), common.HexToHash("0x01"))
	require.NoError(t, err)
	assert.False(t, found)

	boom := errors.New("boom")
	failing := NewTransactionAPI[int](lookup, func(insoTypes.PoolTransaction) (int, error) { return 0, boom })
	_, found, err = failing.GetTransactionByHash(context.Background(), tx.Hash())
	assert.True(t, found)
	assert.ErrorIs(t, err, boom)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err = api.GetTransactionByHash(ctx, tx.Hash())
	assert.ErrorIs(t, err, context.Canceled)
}
