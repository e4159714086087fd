package txpool

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"

	"github.com/insoblok/inso-txpool/internal/ethapi"
)

// API serves the txpool namespace. Every call takes exactly one snapshot and
// aggregates it; nothing is cached between calls.
type API[T any] struct {
	provider Provider
	builder  ethapi.TransactionBuilder[T]
	logger   log.Logger
}

// NewAPI creates a txpool API rendering transactions with builder.
func NewAPI[T any](provider Provider, builder ethapi.TransactionBuilder[T]) *API[T] {
	return &API[T]{
		provider: provider,
		builder:  builder,
		logger:   log.New("module", "txpool"),
	}
}

// Status returns the number of pending and queued transactions.
func (api *API[T]) Status(ctx context.Context) (Status, error) {
	snap, err := takeSnapshot(ctx, api.provider)
	if err != nil {
		return Status{}, err
	}
	status := StatusOf(snap)
	api.logger.Debug("Serving txpool_status", "pending", uint64(status.Pending), "queued", uint64(status.Queued))
	return status, nil
}

// Inspect returns a summary of every pooled transaction.
func (api *API[T]) Inspect(ctx context.Context) (*Inspect, error) {
	snap, err := takeSnapshot(ctx, api.provider)
	if err != nil {
		return nil, err
	}
	api.logger.Debug("Serving txpool_inspect", "pending", len(snap.Pending), "queued", len(snap.Queued))
	return InspectOf(snap), nil
}

// Content returns every pooled transaction, formatted.
func (api *API[T]) Content(ctx context.Context) (*Content[T], error) {
	snap, err := takeSnapshot(ctx, api.provider)
	if err != nil {
		return nil, err
	}
	api.logger.Debug("Serving txpool_content", "pending", len(snap.Pending), "queued", len(snap.Queued))
	return ContentOf(snap, api.builder), nil
}

// ContentFrom returns the formatted transactions sent by addr.
func (api *API[T]) ContentFrom(ctx context.Context, addr common.Address) (*Content[T], error) {
	snap, err := takeSnapshot(ctx, api.provider)
	if err != nil {
		return nil, err
	}
	api.logger.Debug("Serving txpool_contentFrom", "from", addr)
	return ContentFromOf(snap, addr, api.builder), nil
}
