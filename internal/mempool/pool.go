package mempool

import (
	"context"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"

	"github.com/insoblok/inso-txpool/internal/ethapi"
	"github.com/insoblok/inso-txpool/internal/txpool"
)

// TxPool is the pool surface served over RPC.
type TxPool interface {
	txpool.Provider
	ethapi.PoolLookup

	// Submit adds a signed transaction, recovering its sender.
	Submit(ctx context.Context, tx *types.Transaction) error

	// SubscribeNewTxs delivers an event for every accepted transaction.
	SubscribeNewTxs(ch chan<- NewTxsEvent) event.Subscription

	// Stats returns the number of pending and queued transactions.
	Stats() (pending, queued int)
}

var _ TxPool = (*Mempool)(nil)
