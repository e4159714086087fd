package types

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// TransactionInfo is the positional metadata used when rendering a
// transaction. Pooled transactions have no block position: every field
// except Hash is left nil.
type TransactionInfo struct {
	Hash        *common.Hash
	BlockHash   *common.Hash
	BlockNumber *uint64
	Index       *uint64
	// BaseFee of the including block, used to compute the effective gas price.
	BaseFee *big.Int
}

// PendingInfo returns the metadata of a transaction that is not yet included.
func PendingInfo(hash common.Hash) TransactionInfo {
	return TransactionInfo{Hash: &hash}
}

// IncludedInfo returns the metadata of a transaction at a block position.
func IncludedInfo(hash, blockHash common.Hash, number, index uint64, baseFee *big.Int) TransactionInfo {
	return TransactionInfo{
		Hash:        &hash,
		BlockHash:   &blockHash,
		BlockNumber: &number,
		Index:       &index,
		BaseFee:     baseFee,
	}
}

// Included reports whether the transaction has a block position.
func (i TransactionInfo) Included() bool {
	return i.BlockHash != nil && *i.BlockHash != (common.Hash{})
}
