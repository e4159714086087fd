package optimism

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/insoblok/inso-txpool/internal/fees"
	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

var (
	// ErrL1BlockFee is returned when the L1 data fee could not be derived.
	ErrL1BlockFee = errors.New("failed to compute l1 data fee")

	// ErrL1BlockGas is returned when the L1 data gas could not be derived.
	ErrL1BlockGas = errors.New("failed to compute l1 data gas")
)

// TxMeta is the L1 cost accounting of one rollup transaction. All fields are
// nil when no L1 block context was available; fee and gas are nil for
// deposits.
type TxMeta struct {
	L1BlockInfo fees.L1BlockInfo
	L1Fee       *uint256.Int
	L1DataGas   *uint256.Int
}

// BuildTxMeta derives the L1 data fee and data gas of tx at blockTimestamp.
// Results are clamped to 128 bits.
func BuildTxMeta(l1 fees.L1BlockInfo, tx insoTypes.PoolTransaction, spec *fees.ChainSpec, blockTimestamp uint64) (TxMeta, error) {
	if l1 == nil {
		return TxMeta{}, nil
	}
	if tx.IsDeposit() {
		return TxMeta{L1BlockInfo: l1}, nil
	}

	raw := tx.EncodedBytes()
	fee, err := l1.DataFee(spec, blockTimestamp, raw, false)
	if err != nil {
		return TxMeta{}, fmt.Errorf("%w: %w", ErrL1BlockFee, err)
	}
	gas, err := l1.DataGas(spec, blockTimestamp, raw)
	if err != nil {
		return TxMeta{}, fmt.Errorf("%w: %w", ErrL1BlockGas, err)
	}
	return TxMeta{
		L1BlockInfo: l1,
		L1Fee:       fees.SaturateU128(fee),
		L1DataGas:   fees.SaturateU128(gas),
	}, nil
}
