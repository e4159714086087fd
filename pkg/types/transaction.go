package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
)

// Transaction is the read surface shared by signed Ethereum transactions
// (*types.Transaction) and rollup deposits (*DepositTx).
type Transaction interface {
	Hash() common.Hash
	Type() uint8
	ChainId() *big.Int
	Nonce() uint64
	To() *common.Address
	Value() *big.Int
	Gas() uint64
	GasPrice() *big.Int
	GasFeeCap() *big.Int
	GasTipCap() *big.Int
	Data() []byte
	MarshalBinary() ([]byte, error)
}

// RecoveredTx is a transaction paired with its verified sender.
type RecoveredTx struct {
	Tx   Transaction
	From common.Address
}

// RecoverTx derives the sender of a signed transaction.
func RecoverTx(tx *types.Transaction, signer types.Signer) (*RecoveredTx, error) {
	from, err := types.Sender(signer, tx)
	if err != nil {
		return nil, fmt.Errorf("recover sender: %w", err)
	}
	return &RecoveredTx{Tx: tx, From: from}, nil
}

// Deposit returns the underlying deposit, if the transaction is one.
func (r *RecoveredTx) Deposit() (*DepositTx, bool) {
	d, ok := r.Tx.(*DepositTx)
	return d, ok
}

// PoolTransaction is everything the read path needs from a pooled transaction.
type PoolTransaction interface {
	Hash() common.Hash
	Sender() common.Address
	Nonce() uint64
	To() *common.Address
	Value() *big.Int
	Gas() uint64
	GasFeeCap() *big.Int
	IsDeposit() bool
	EncodedBytes() []byte
	Recovered() *RecoveredTx
}

// PooledTx is a transaction held by the mempool together with its sender
// and canonical encoding.
type PooledTx struct {
	tx      Transaction
	sender  common.Address
	encoded []byte
}

// NewPooledTx wraps a transaction whose sender has already been verified.
// The canonical encoding is computed once here.
func NewPooledTx(tx Transaction, sender common.Address) (*PooledTx, error) {
	enc, err := tx.MarshalBinary()
	if err != nil {
		return nil, fmt.Errorf("encode tx %s: %w", tx.Hash().Hex(), err)
	}
	return &PooledTx{
		tx:      tx,
		sender:  sender,
		encoded: enc,
	}, nil
}

// NewPooledDeposit wraps a deposit; its sender is the deposit's From.
func NewPooledDeposit(d *DepositTx) (*PooledTx, error) {
	return NewPooledTx(d, d.From())
}

func (p *PooledTx) Hash() common.Hash { return p.tx.Hash() }
func (p *PooledTx) Sender() common.Address { return p.sender }
func (p *PooledTx) Nonce() uint64 { return p.tx.Nonce() }
func (p *PooledTx) To() *common.Address { return p.tx.To() }
func (p *PooledTx) Value() *big.Int { return p.tx.Value() }
func (p *PooledTx) Gas() uint64 { return p.tx.Gas() }
func (p *PooledTx) GasFeeCap() *big.Int { return p.tx.GasFeeCap() }
func (p *PooledTx) IsDeposit() bool { return p.tx.Type() == DepositTxType }
func (p *PooledTx) EncodedBytes() []byte { return p.encoded }
func (p *PooledTx) Recovered() *RecoveredTx { return &RecoveredTx{Tx: p.tx, From: p.sender} }
