package types

import (
	"bytes"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
)

// DepositTxType is the EIP-2718 type byte of rollup deposit transactions.
const DepositTxType = 0x7E

var errNotDeposit = errors.New("not a deposit transaction")

// DepositTxData holds the consensus fields of a deposit, in encoding order.
type DepositTxData struct {
	// SourceHash uniquely identifies the L1 origin of the deposit.
	SourceHash common.Hash
	From       common.Address
	To         *common.Address `rlp:"nil"`
	// Mint is the amount minted on L2, nil when nothing is minted.
	Mint                *big.Int `rlp:"nil"`
	Value               *big.Int
	Gas                 uint64
	IsSystemTransaction bool
	Data                []byte
}

// DepositTx is a transaction derived from an L1 deposit event. It carries no
// signature: the sender is asserted by the L1 contract that emitted it.
type DepositTx struct {
	inner DepositTxData
}

// NewDepositTx creates a deposit from its fields.
func NewDepositTx(data DepositTxData) *DepositTx {
	if data.Value == nil {
		data.Value = new(big.Int)
	}
	return &DepositTx{inner: data}
}

func (d *DepositTx) Type() uint8         { return DepositTxType }
func (d *DepositTx) ChainId() *big.Int   { return nil }
func (d *DepositTx) Nonce() uint64       { return 0 }
func (d *DepositTx) To() *common.Address { return d.inner.To }
func (d *DepositTx) Value() *big.Int     { return d.inner.Value }
func (d *DepositTx) Gas() uint64         { return d.inner.Gas }
func (d *DepositTx) GasPrice() *big.Int  { return new(big.Int) }
func (d *DepositTx) GasFeeCap() *big.Int { return new(big.Int) }
func (d *DepositTx) GasTipCap() *big.Int { return new(big.Int) }
func (d *DepositTx) Data() []byte        { return d.inner.Data }

func (d *DepositTx) SourceHash() common.Hash { return d.inner.SourceHash }
func (d *DepositTx) From() common.Address    { return d.inner.From }
func (d *DepositTx) IsSystemTx() bool        { return d.inner.IsSystemTransaction }

// Mint returns the minted amount, or nil if the deposit mints nothing.
func (d *DepositTx) Mint() *big.Int {
	if d.inner.Mint == nil || d.inner.Mint.Sign() == 0 {
		return nil
	}
	return d.inner.Mint
}

// MarshalBinary returns the canonical encoding: 0x7E || rlp(fields).
func (d *DepositTx) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(DepositTxType)
	if err := rlp.Encode(&buf, &d.inner); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalBinary decodes the canonical encoding produced by MarshalBinary.
func (d *DepositTx) UnmarshalBinary(b []byte) error {
	if !IsDepositEncoding(b) {
		return errNotDeposit
	}
	var data DepositTxData
	if err := rlp.DecodeBytes(b[1:], &data); err != nil {
		return err
	}
	if data.Value == nil {
		data.Value = new(big.Int)
	}
	d.inner = data
	return nil
}

// Hash is the keccak256 of the canonical encoding.
func (d *DepositTx) Hash() common.Hash {
	enc, err := d.MarshalBinary()
	if err != nil {
		return common.Hash{}
	}
	return crypto.Keccak256Hash(enc)
}

// IsDepositEncoding reports whether raw is a type-0x7E envelope.
func IsDepositEncoding(raw []byte) bool {
	return len(raw) > 0 && raw[0] == DepositTxType
}
