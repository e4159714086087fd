package ethapi

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// PoolLookup finds a pooled transaction by hash.
type PoolLookup interface {
	Get(hash common.Hash) (insoTypes.PoolTransaction, bool)
}

// TxFormatter renders a single pooled transaction for a detail response.
// Formatting may fail, in which case no partial object is returned.
type TxFormatter[T any] func(tx insoTypes.PoolTransaction) (T, error)

// PendingFormatter adapts a builder into a TxFormatter for transactions
// that have no block position yet.
func PendingFormatter[T any](b TransactionBuilder[T]) TxFormatter[T] {
	return func(tx insoTypes.PoolTransaction) (T, error) {
		return b.Fill(tx.Recovered(), insoTypes.PendingInfo(tx.Hash())), nil
	}
}

// TransactionAPI serves transaction lookups against the pool.
type TransactionAPI[T any] struct {
	pool   PoolLookup
	format TxFormatter[T]
	logger log.Logger
}

// NewTransactionAPI creates a lookup service over pool, rendering with format.
func NewTransactionAPI[T any](pool PoolLookup, format TxFormatter[T]) *TransactionAPI[T] {
	return &TransactionAPI[T]{
		pool:   pool,
		format: format,
		logger: log.New("module", "ethapi"),
	}
}

// GetTransactionByHash returns the pooled transaction with the given hash.
// found is false when the pool does not hold it.
func (api *TransactionAPI[T]) GetTransactionByHash(ctx context.Context, hash common.Hash) (result T, found bool, err error) {
	if err := ctx.Err(); err != nil {
		return result, false, err
	}
	tx, ok := api.pool.Get(hash)
	if !ok {
		api.logger.Debug("Transaction not in pool", "hash", hash)
		return result, false, nil
	}
	result, err = api.format(tx)
	if err != nil {
		api.logger.Warn("Failed to format pooled transaction", "hash", hash, "err", err)
		return result, true, err
	}
	return result, true, nil
}
