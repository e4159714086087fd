package mempool

import (
	"container/heap"
	"sort"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// nonceHeap implements heap.Interface over account nonces (min-heap).
type nonceHeap []uint64

func (h nonceHeap) Len() int           { return len(h) }
func (h nonceHeap) Less(i, j int) bool { return h[i] < h[j] }
func (h nonceHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *nonceHeap) Push(x interface{}) {
	*h = append(*h, x.(uint64))
}

func (h *nonceHeap) Pop() interface{} {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[:n-1]
	return x
}

// senderTxs holds one account's transactions keyed by nonce, with a heap
// index so they can be walked in nonce order.
type senderTxs struct {
	items map[uint64]*insoTypes.PooledTx
	index nonceHeap
}

func newSenderTxs() *senderTxs {
	return &senderTxs{items: make(map[uint64]*insoTypes.PooledTx)}
}

func (s *senderTxs) Len() int { return len(s.items) }

func (s *senderTxs) Get(nonce uint64) *insoTypes.PooledTx { return s.items[nonce] }

// Put stores tx, overwriting any transaction with the same nonce.
func (s *senderTxs) Put(tx *insoTypes.PooledTx) {
	nonce := tx.Nonce()
	if s.items[nonce] == nil {
		heap.Push(&s.index, nonce)
	}
	s.items[nonce] = tx
}

// Forward drops every transaction with a nonce below threshold and returns
// the dropped ones.
func (s *senderTxs) Forward(threshold uint64) []*insoTypes.PooledTx {
	var removed []*insoTypes.PooledTx
	for s.index.Len() > 0 && s.index[0] < threshold {
		nonce := heap.Pop(&s.index).(uint64)
		removed = append(removed, s.items[nonce])
		delete(s.items, nonce)
	}
	return removed
}

// Remove deletes the transaction with the given nonce, reporting whether
// one was present.
func (s *senderTxs) Remove(nonce uint64) bool {
	if _, ok := s.items[nonce]; !ok {
		return false
	}
	delete(s.items, nonce)
	for i, n := range s.index {
		if n == nonce {
			heap.Remove(&s.index, i)
			break
		}
	}
	return true
}

// Sorted returns a fresh slice of the transactions in increasing nonce order.
// It does not mutate s, so it is safe under a read lock.
func (s *senderTxs) Sorted() []*insoTypes.PooledTx {
	sorted := make([]*insoTypes.PooledTx, 0, len(s.items))
	for _, tx := range s.items {
		sorted = append(sorted, tx)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Nonce() < sorted[j].Nonce() })
	return sorted
}
