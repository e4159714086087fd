package mempool

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/ethereum/go-ethereum/log"

	"github.com/insoblok/inso-txpool/internal/txpool"
	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// Config bounds what the pool accepts.
type Config struct {
	MaxSize int
	// MinFeeCap is the lowest max fee per gas accepted, nil for no floor.
	MinFeeCap *big.Int
	// PriceBump is the percentage a same-nonce replacement must raise the
	// fee cap by.
	PriceBump uint64
}

// NewTxsEvent is posted when transactions enter the pool.
type NewTxsEvent struct {
	Txs []insoTypes.PoolTransaction
}

// Mempool is a thread-safe in-memory transaction pool. Transactions are
// indexed per sender by nonce; a sender's contiguous run starting at its
// account nonce is pending and everything after a gap is queued. Deposits
// are always pending.
type Mempool struct {
	mu       sync.RWMutex
	senders  map[common.Address]*senderTxs
	deposits []*insoTypes.PooledTx
	// depositors maps a deposit's From to its hash. A deposit occupies
	// nonce 0 of its sender, so at most one is held per address.
	depositors map[common.Address]common.Hash
	all        map[common.Hash]*insoTypes.PooledTx
	nonces   map[common.Address]uint64

	cfg    Config
	signer types.Signer
	source NonceSource
	txFeed event.Feed
	logger log.Logger
}

// New creates a new Mempool. signer recovers senders of submitted
// transactions; source supplies account nonces.
func New(cfg Config, signer types.Signer, source NonceSource) *Mempool {
	if source == nil {
		source = ZeroNonces{}
	}
	return &Mempool{
		senders:    make(map[common.Address]*senderTxs),
		depositors: make(map[common.Address]common.Hash),
		all:        make(map[common.Hash]*insoTypes.PooledTx, cfg.MaxSize),
		nonces:     make(map[common.Address]uint64),
		cfg:        cfg,
		signer:     signer,
		source:     source,
		logger:     log.New("module", "mempool"),
	}
}

// Submit recovers the sender of a signed transaction and adds it. Blob
// transactions are not accepted.
func (m *Mempool) Submit(ctx context.Context, tx *types.Transaction) error {
	if tx.Type() == types.BlobTxType {
		return fmt.Errorf("%w: type %d", ErrUnsupportedTxType, tx.Type())
	}
	sender, err := types.Sender(m.signer, tx)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidSender, err)
	}
	ptx, err := insoTypes.NewPooledTx(tx, sender)
	if err != nil {
		return err
	}
	return m.Add(ctx, ptx)
}

// AddDeposit adds a deposit transaction. Deposits skip nonce and fee checks.
func (m *Mempool) AddDeposit(d *insoTypes.DepositTx) error {
	ptx, err := insoTypes.NewPooledDeposit(d)
	if err != nil {
		return err
	}
	return m.Add(context.Background(), ptx)
}

// Add inserts a transaction whose sender is already known.
func (m *Mempool) Add(ctx context.Context, ptx *insoTypes.PooledTx) error {
	hash := ptx.Hash()
	if m.Has(hash) {
		return ErrAlreadyKnown
	}
	if ptx.IsDeposit() {
		return m.addDeposit(ptx)
	}

	sender := ptx.Sender()
	next, err := m.accountNonce(ctx, sender)
	if err != nil {
		return fmt.Errorf("fetch nonce of %s: %w", sender.Hex(), err)
	}
	if ptx.Nonce() < next {
		return fmt.Errorf("%w: address %s, tx: %d state: %d", ErrNonceTooLow, sender.Hex(), ptx.Nonce(), next)
	}
	if m.cfg.MinFeeCap != nil && ptx.GasFeeCap().Cmp(m.cfg.MinFeeCap) < 0 {
		return fmt.Errorf("%w: have %s, want %s", ErrFeeCapTooLow, ptx.GasFeeCap(), m.cfg.MinFeeCap)
	}

	m.mu.Lock()
	if _, ok := m.all[hash]; ok {
		m.mu.Unlock()
		return ErrAlreadyKnown
	}
	if _, taken := m.depositors[sender]; taken && ptx.Nonce() == 0 {
		m.mu.Unlock()
		return fmt.Errorf("%w: address %s has a pending deposit", ErrNonceConflict, sender.Hex())
	}
	list, ok := m.senders[sender]
	if !ok {
		list = newSenderTxs()
		m.senders[sender] = list
	}
	replaced := list.Get(ptx.Nonce())
	if replaced != nil {
		if !m.outbids(ptx, replaced) {
			m.mu.Unlock()
			return ErrReplaceUnderpriced
		}
		delete(m.all, replaced.Hash())
	} else if m.full() {
		if list.Len() == 0 {
			delete(m.senders, sender)
		}
		m.mu.Unlock()
		return ErrMempoolFull
	}
	list.Put(ptx)
	m.all[hash] = ptx
	size := len(m.all)
	m.mu.Unlock()

	m.logger.Debug("Transaction added to mempool",
		"hash", hash.Hex(),
		"sender", sender.Hex(),
		"nonce", ptx.Nonce(),
		"replaced", replaced != nil,
		"poolSize", size,
	)
	m.txFeed.Send(NewTxsEvent{Txs: []insoTypes.PoolTransaction{ptx}})
	return nil
}

func (m *Mempool) addDeposit(ptx *insoTypes.PooledTx) error {
	from := ptx.Sender()
	m.mu.Lock()
	if _, ok := m.all[ptx.Hash()]; ok {
		m.mu.Unlock()
		return ErrAlreadyKnown
	}
	if held, taken := m.depositors[from]; taken {
		m.mu.Unlock()
		return fmt.Errorf("%w: address %s has pending deposit %s", ErrNonceConflict, from.Hex(), held.Hex())
	}
	if list, ok := m.senders[from]; ok && list.Get(0) != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: address %s has a pending nonce 0 transaction", ErrNonceConflict, from.Hex())
	}
	if m.full() {
		m.mu.Unlock()
		return ErrMempoolFull
	}
	m.deposits = append(m.deposits, ptx)
	m.depositors[from] = ptx.Hash()
	m.all[ptx.Hash()] = ptx
	m.mu.Unlock()

	m.logger.Debug("Deposit added to mempool", "hash", ptx.Hash().Hex(), "from", ptx.Sender().Hex())
	m.txFeed.Send(NewTxsEvent{Txs: []insoTypes.PoolTransaction{ptx}})
	return nil
}

// full must be called with the lock held.
func (m *Mempool) full() bool {
	return m.cfg.MaxSize > 0 && len(m.all) >= m.cfg.MaxSize
}

// outbids reports whether tx raises old's fee cap by at least the price bump.
func (m *Mempool) outbids(tx, old *insoTypes.PooledTx) bool {
	threshold := new(big.Int).Mul(old.GasFeeCap(), big.NewInt(int64(100+m.cfg.PriceBump)))
	threshold.Div(threshold, big.NewInt(100))
	return tx.GasFeeCap().Cmp(threshold) >= 0
}

// accountNonce returns the cached account nonce of addr, fetching it from
// the nonce source on first use.
func (m *Mempool) accountNonce(ctx context.Context, addr common.Address) (uint64, error) {
	m.mu.RLock()
	nonce, ok := m.nonces[addr]
	m.mu.RUnlock()
	if ok {
		return nonce, nil
	}

	nonce, err := m.source.NonceAt(ctx, addr)
	if err != nil {
		return 0, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if cached, ok := m.nonces[addr]; ok {
		return cached, nil
	}
	m.nonces[addr] = nonce
	return nonce, nil
}

// SetNonce records the account nonce of addr and drops its transactions
// below it.
func (m *Mempool) SetNonce(addr common.Address, nonce uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nonces[addr] = nonce
	list, ok := m.senders[addr]
	if !ok {
		return
	}
	dropped := list.Forward(nonce)
	for _, tx := range dropped {
		delete(m.all, tx.Hash())
	}
	if list.Len() == 0 {
		delete(m.senders, addr)
	}
	if len(dropped) > 0 {
		m.logger.Debug("Dropped stale transactions", "sender", addr.Hex(), "nonce", nonce, "count", len(dropped))
	}
}

// Refresh re-reads the account nonce of every sender in the pool.
func (m *Mempool) Refresh(ctx context.Context) error {
	m.mu.RLock()
	addrs := make([]common.Address, 0, len(m.senders))
	for addr := range m.senders {
		addrs = append(addrs, addr)
	}
	m.mu.RUnlock()

	for _, addr := range addrs {
		nonce, err := m.source.NonceAt(ctx, addr)
		if err != nil {
			return fmt.Errorf("refresh nonce of %s: %w", addr.Hex(), err)
		}
		m.SetNonce(addr, nonce)
	}
	return nil
}

// Run refreshes account nonces every interval until ctx is cancelled.
func (m *Mempool) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	m.logger.Info("Nonce refresher started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Nonce refresher stopped")
			return
		case <-ticker.C:
			if err := m.Refresh(ctx); err != nil {
				m.logger.Warn("Nonce refresh failed", "err", err)
			}
		}
	}
}

// Remove discards a transaction from the pool (e.g., after inclusion).
func (m *Mempool) Remove(hash common.Hash) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	ptx, ok := m.all[hash]
	if !ok {
		return false
	}
	delete(m.all, hash)
	if ptx.IsDeposit() {
		delete(m.depositors, ptx.Sender())
		for i, d := range m.deposits {
			if d == ptx {
				m.deposits = append(m.deposits[:i], m.deposits[i+1:]...)
				break
			}
		}
		return true
	}
	if list, ok := m.senders[ptx.Sender()]; ok {
		list.Remove(ptx.Nonce())
		if list.Len() == 0 {
			delete(m.senders, ptx.Sender())
		}
	}
	return true
}

// Get returns the pooled transaction with the given hash.
func (m *Mempool) Get(hash common.Hash) (insoTypes.PoolTransaction, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ptx, ok := m.all[hash]
	if !ok {
		return nil, false
	}
	return ptx, true
}

// Has returns true if the transaction is in the pool.
func (m *Mempool) Has(hash common.Hash) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.all[hash]
	return ok
}

// Len returns the number of pooled transactions.
func (m *Mempool) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.all)
}

// AllTransactions partitions the pool into pending and queued under one
// read lock. Deposits come first, then senders in address order, each in
// nonce order.
func (m *Mempool) AllTransactions(ctx context.Context) (*txpool.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	snap := &txpool.Snapshot{
		Pending: make([]insoTypes.PoolTransaction, 0, len(m.all)),
	}
	for _, d := range m.deposits {
		snap.Pending = append(snap.Pending, d)
	}
	m.walk(func(tx *insoTypes.PooledTx, pending bool) {
		if pending {
			snap.Pending = append(snap.Pending, tx)
		} else {
			snap.Queued = append(snap.Queued, tx)
		}
	})
	return snap, nil
}

// Stats returns the number of pending and queued transactions.
func (m *Mempool) Stats() (pending, queued int) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pending = len(m.deposits)
	m.walk(func(_ *insoTypes.PooledTx, p bool) {
		if p {
			pending++
		} else {
			queued++
		}
	})
	return pending, queued
}

// walk visits every non-deposit transaction, classifying it. It must be
// called with at least the read lock held.
func (m *Mempool) walk(visit func(tx *insoTypes.PooledTx, pending bool)) {
	addrs := make([]common.Address, 0, len(m.senders))
	for addr := range m.senders {
		addrs = append(addrs, addr)
	}
	sort.Slice(addrs, func(i, j int) bool { return bytes.Compare(addrs[i][:], addrs[j][:]) < 0 })

	for _, addr := range addrs {
		next := m.nonces[addr]
		gapped := false
		for _, tx := range m.senders[addr].Sorted() {
			if !gapped && tx.Nonce() == next {
				visit(tx, true)
				next++
				continue
			}
			gapped = true
			visit(tx, false)
		}
	}
}

// SubscribeNewTxs registers ch to receive a NewTxsEvent for every addition.
func (m *Mempool) SubscribeNewTxs(ch chan<- NewTxsEvent) event.Subscription {
	return m.txFeed.Subscribe(ch)
}
