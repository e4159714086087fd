package ethapi

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/core/types"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// TransactionBuilder fills a recovered transaction and its positional
// metadata into the response object of one chain flavor.
type TransactionBuilder[T any] interface {
	Fill(tx *insoTypes.RecoveredTx, info insoTypes.TransactionInfo) T
}

// RPCTransaction represents a transaction that will serialize to the RPC representation of a transaction
type RPCTransaction struct {
	BlockHash           *common.Hash      `json:"blockHash"`
	BlockNumber         *hexutil.Big      `json:"blockNumber"`
	From                common.Address    `json:"from"`
	Gas                 hexutil.Uint64    `json:"gas"`
	GasPrice            *hexutil.Big      `json:"gasPrice"`
	GasFeeCap           *hexutil.Big      `json:"maxFeePerGas,omitempty"`
	GasTipCap           *hexutil.Big      `json:"maxPriorityFeePerGas,omitempty"`
	MaxFeePerBlobGas    *hexutil.Big      `json:"maxFeePerBlobGas,omitempty"`
	Hash                common.Hash       `json:"hash"`
	Input               hexutil.Bytes     `json:"input"`
	Nonce               hexutil.Uint64    `json:"nonce"`
	To                  *common.Address   `json:"to"`
	TransactionIndex    *hexutil.Uint64   `json:"transactionIndex"`
	Value               *hexutil.Big      `json:"value"`
	Type                hexutil.Uint64    `json:"type"`
	Accesses            *types.AccessList `json:"accessList,omitempty"`
	ChainID             *hexutil.Big      `json:"chainId,omitempty"`
	BlobVersionedHashes []common.Hash     `json:"blobVersionedHashes,omitempty"`
	V                   *hexutil.Big      `json:"v"`
	R                   *hexutil.Big      `json:"r"`
	S                   *hexutil.Big      `json:"s"`
	YParity             *hexutil.Uint64   `json:"yParity,omitempty"`
}

// EthTxBuilder renders transactions in the standard Ethereum response shape.
type EthTxBuilder struct{}

// Fill implements TransactionBuilder.
func (EthTxBuilder) Fill(rtx *insoTypes.RecoveredTx, info insoTypes.TransactionInfo) *RPCTransaction {
	tx := rtx.Tx
	result := &RPCTransaction{
		Type:     hexutil.Uint64(tx.Type()),
		From:     rtx.From,
		Gas:      hexutil.Uint64(tx.Gas()),
		GasPrice: (*hexutil.Big)(tx.GasPrice()),
		Hash:     tx.Hash(),
		Input:    hexutil.Bytes(tx.Data()),
		Nonce:    hexutil.Uint64(tx.Nonce()),
		To:       tx.To(),
		Value:    (*hexutil.Big)(tx.Value()),
	}
	if info.Included() {
		result.BlockHash = info.BlockHash
		result.BlockNumber = (*hexutil.Big)(new(big.Int).SetUint64(*info.BlockNumber))
		result.TransactionIndex = (*hexutil.Uint64)(info.Index)
	}

	signed, ok := tx.(*types.Transaction)
	if !ok {
		// Unsigned envelopes such as deposits carry zero signature values.
		zero := (*hexutil.Big)(new(big.Int))
		result.V, result.R, result.S = zero, zero, zero
		return result
	}

	v, r, s := signed.RawSignatureValues()
	result.V = (*hexutil.Big)(v)
	result.R = (*hexutil.Big)(r)
	result.S = (*hexutil.Big)(s)

	switch signed.Type() {
	case types.LegacyTxType:
		// if a legacy transaction has an EIP-155 chain id, include it explicitly
		if id := signed.ChainId(); id.Sign() != 0 {
			result.ChainID = (*hexutil.Big)(id)
		}

	case types.AccessListTxType:
		al := signed.AccessList()
		yparity := hexutil.Uint64(v.Sign())
		result.Accesses = &al
		result.ChainID = (*hexutil.Big)(signed.ChainId())
		result.YParity = &yparity

	case types.DynamicFeeTxType, types.BlobTxType:
		al := signed.AccessList()
		yparity := hexutil.Uint64(v.Sign())
		result.Accesses = &al
		result.ChainID = (*hexutil.Big)(signed.ChainId())
		result.YParity = &yparity
		result.GasFeeCap = (*hexutil.Big)(signed.GasFeeCap())
		result.GasTipCap = (*hexutil.Big)(signed.GasTipCap())
		result.GasPrice = (*hexutil.Big)(effectiveGasPrice(signed, info))
		if signed.Type() == types.BlobTxType {
			result.MaxFeePerBlobGas = (*hexutil.Big)(signed.BlobGasFeeCap())
			result.BlobVersionedHashes = signed.BlobHashes()
		}
	}
	return result
}

// effectiveGasPrice is min(tip+baseFee, feeCap) for included transactions
// and the fee cap for pending ones.
func effectiveGasPrice(tx *types.Transaction, info insoTypes.TransactionInfo) *big.Int {
	if info.BaseFee == nil || !info.Included() {
		return tx.GasFeeCap()
	}
	price := new(big.Int).Add(tx.GasTipCap(), info.BaseFee)
	return math.BigMin(price, tx.GasFeeCap())
}
