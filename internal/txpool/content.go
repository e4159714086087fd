package txpool

import (
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/insoblok/inso-txpool/internal/ethapi"
	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// Status is the number of pending and queued transactions.
type Status struct {
	Pending hexutil.Uint64 `json:"pending"`
	Queued  hexutil.Uint64 `json:"queued"`
}

// Content groups formatted transactions by sender (checksummed hex) and then
// by decimal nonce.
type Content[T any] struct {
	Pending map[string]map[string]T `json:"pending"`
	Queued  map[string]map[string]T `json:"queued"`
}

// Inspect groups inspection summaries the same way Content does.
type Inspect = Content[InspectSummary]

// StatusOf counts the partitions of snap.
func StatusOf(snap *Snapshot) Status {
	return Status{
		Pending: hexutil.Uint64(len(snap.Pending)),
		Queued:  hexutil.Uint64(len(snap.Queued)),
	}
}

// InspectOf summarises every transaction of snap.
func InspectOf(snap *Snapshot) *Inspect {
	return &Inspect{
		Pending: group(snap.Pending, nil, summarize),
		Queued:  group(snap.Queued, nil, summarize),
	}
}

// ContentOf formats every transaction of snap with builder.
func ContentOf[T any](snap *Snapshot, builder ethapi.TransactionBuilder[T]) *Content[T] {
	format := pendingFill(builder)
	return &Content[T]{
		Pending: group(snap.Pending, nil, format),
		Queued:  group(snap.Queued, nil, format),
	}
}

// ContentFromOf is ContentOf restricted to transactions sent by addr. A
// partition without transactions from addr is an empty map.
func ContentFromOf[T any](snap *Snapshot, addr common.Address, builder ethapi.TransactionBuilder[T]) *Content[T] {
	format := pendingFill(builder)
	return &Content[T]{
		Pending: group(snap.Pending, &addr, format),
		Queued:  group(snap.Queued, &addr, format),
	}
}

func pendingFill[T any](builder ethapi.TransactionBuilder[T]) func(insoTypes.PoolTransaction) T {
	return func(tx insoTypes.PoolTransaction) T {
		return builder.Fill(tx.Recovered(), insoTypes.PendingInfo(tx.Hash()))
	}
}

// group buckets txs by sender and nonce. Duplicate keys are resolved by
// snapshot order: the later transaction wins.
func group[T any](txs []insoTypes.PoolTransaction, only *common.Address, format func(insoTypes.PoolTransaction) T) map[string]map[string]T {
	out := make(map[string]map[string]T)
	for _, tx := range txs {
		sender := tx.Sender()
		if only != nil && sender != *only {
			continue
		}
		key := sender.Hex()
		byNonce, ok := out[key]
		if !ok {
			byNonce = make(map[string]T)
			out[key] = byNonce
		}
		byNonce[strconv.FormatUint(tx.Nonce(), 10)] = format(tx)
	}
	return out
}
