package signer

import (
	"bytes"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
)

// ErrUnknownAccount is returned when signing for an address without a key.
var ErrUnknownAccount = errors.New("unknown account")

// Registry holds the signing keys managed by the node. Reads are far more
// frequent than additions, so it is guarded by a reader/writer lock.
type Registry struct {
	mu     sync.RWMutex
	keys   map[common.Address]*ecdsa.PrivateKey
	signer types.Signer
	logger log.Logger
}

// NewRegistry creates an empty registry signing for chainID.
func NewRegistry(chainID *big.Int) *Registry {
	return &Registry{
		keys:   make(map[common.Address]*ecdsa.PrivateKey),
		signer: types.LatestSignerForChainID(chainID),
		logger: log.New("module", "signer"),
	}
}

// Add registers key and returns its address.
func (r *Registry) Add(key *ecdsa.PrivateKey) common.Address {
	addr := crypto.PubkeyToAddress(key.PublicKey)
	r.mu.Lock()
	r.keys[addr] = key
	r.mu.Unlock()

	r.logger.Info("Signer added", "address", addr.Hex())
	return addr
}

// AddHex registers a hex-encoded private key, with or without 0x prefix.
func (r *Registry) AddHex(hexkey string) (common.Address, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexkey, "0x"))
	if err != nil {
		return common.Address{}, fmt.Errorf("parse signer key: %w", err)
	}
	return r.Add(key), nil
}

// Accounts returns the managed addresses in ascending order.
func (r *Registry) Accounts() []common.Address {
	r.mu.RLock()
	accounts := make([]common.Address, 0, len(r.keys))
	for addr := range r.keys {
		accounts = append(accounts, addr)
	}
	r.mu.RUnlock()

	sort.Slice(accounts, func(i, j int) bool { return bytes.Compare(accounts[i][:], accounts[j][:]) < 0 })
	return accounts
}

// SignTx signs tx with the key of from.
func (r *Registry) SignTx(from common.Address, tx *types.Transaction) (*types.Transaction, error) {
	r.mu.RLock()
	key, ok := r.keys[from]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownAccount, from.Hex())
	}
	return types.SignTx(tx, r.signer, key)
}
