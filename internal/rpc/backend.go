package rpc

import (
	"context"

	"github.com/ethereum/go-ethereum/common"

	"github.com/insoblok/inso-txpool/internal/ethapi"
	"github.com/insoblok/inso-txpool/internal/txpool"
)

// TxpoolBackend serves the txpool namespace regardless of the chain's
// transaction response shape.
type TxpoolBackend interface {
	Status(ctx context.Context) (txpool.Status, error)
	Inspect(ctx context.Context) (*txpool.Inspect, error)
	Content(ctx context.Context) (interface{}, error)
	ContentFrom(ctx context.Context, addr common.Address) (interface{}, error)
}

// TransactionBackend looks up pooled transactions.
type TransactionBackend interface {
	GetTransactionByHash(ctx context.Context, hash common.Hash) (interface{}, bool, error)
}

// NewTxpoolBackend erases the response type of api.
func NewTxpoolBackend[T any](api *txpool.API[T]) TxpoolBackend {
	return txpoolAdapter[T]{api: api}
}

// NewTransactionBackend erases the response type of api.
func NewTransactionBackend[T any](api *ethapi.TransactionAPI[T]) TransactionBackend {
	return transactionAdapter[T]{api: api}
}

type txpoolAdapter[T any] struct {
	api *txpool.API[T]
}

func (a txpoolAdapter[T]) Status(ctx context.Context) (txpool.Status, error) {
	return a.api.Status(ctx)
}

func (a txpoolAdapter[T]) Inspect(ctx context.Context) (*txpool.Inspect, error) {
	return a.api.Inspect(ctx)
}

func (a txpoolAdapter[T]) Content(ctx context.Context) (interface{}, error) {
	content, err := a.api.Content(ctx)
	if err != nil {
		return nil, err
	}
	return content, nil
}

func (a txpoolAdapter[T]) ContentFrom(ctx context.Context, addr common.Address) (interface{}, error) {
	content, err := a.api.ContentFrom(ctx, addr)
	if err != nil {
		return nil, err
	}
	return content, nil
}

type transactionAdapter[T any] struct {
	api *ethapi.TransactionAPI[T]
}

func (a transactionAdapter[T]) GetTransactionByHash(ctx context.Context, hash common.Hash) (interface{}, bool, error) {
	tx, found, err := a.api.GetTransactionByHash(ctx, hash)
	if err != nil || !found {
		return nil, found, err
	}
	return tx, true, nil
}
