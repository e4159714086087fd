package fees

import (
	"fmt"

	"github.com/holiman/uint256"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// Gas charged per byte of L1 calldata.
const (
	zeroByteCost    = 4
	nonZeroByteCost = 16
)

var (
	// Pre-Regolith every transaction was charged for 68 extra non-zero bytes
	// to account for the signature.
	preRegolithPadding = uint256.NewInt(68 * nonZeroByteCost)

	scalarDecimals = uint256.NewInt(1_000_000)
	ecotoneDivisor = uint256.NewInt(16 * 1_000_000)
	fjordDivisor   = uint256.NewInt(1_000_000_000_000)

	fjordFastLZCoef  = uint256.NewInt(836_500)
	fjordIntercept   = uint256.NewInt(42_585_600)
	fjordMinTxSize   = uint256.NewInt(100_000_000)
	nonZeroByteCostU = uint256.NewInt(nonZeroByteCost)

	maxU256 = new(uint256.Int).SetAllOne()
)

// L1BlockInfo derives the L1 data cost of rollup transactions from the L1
// block context of the L2 block being built.
type L1BlockInfo interface {
	// DataFee returns the L1 data fee in wei. Deposits are charged nothing.
	DataFee(spec *ChainSpec, timestamp uint64, input []byte, isDeposit bool) (*uint256.Int, error)
	// DataGas returns the L1 gas the transaction's data is accounted for.
	DataGas(spec *ChainSpec, timestamp uint64, input []byte) (*uint256.Int, error)
}

// L1Block is the L1 attributes snapshot carried by an L2 block.
//
// Bedrock and Regolith use BaseFee, FeeOverhead and FeeScalar. Ecotone and
// Fjord use BaseFee, BaseFeeScalar, BlobBaseFee and BlobBaseFeeScalar.
type L1Block struct {
	Number            uint64
	BaseFee           *uint256.Int
	FeeOverhead       *uint256.Int
	FeeScalar         *uint256.Int
	BlobBaseFee       *uint256.Int
	BaseFeeScalar     *uint256.Int
	BlobBaseFeeScalar *uint256.Int
	// EmptyEcotoneScalars is set on the Ecotone activation block, which
	// still carries Bedrock-style scalars.
	EmptyEcotoneScalars bool
}

// DataFee implements L1BlockInfo.
func (b *L1Block) DataFee(spec *ChainSpec, timestamp uint64, input []byte, isDeposit bool) (*uint256.Int, error) {
	if isDeposit || insoTypes.IsDepositEncoding(input) {
		return new(uint256.Int), nil
	}
	fork, err := spec.ActiveFork(timestamp)
	if err != nil {
		return nil, err
	}
	if b.BaseFee == nil {
		return nil, ErrMissingBaseFee
	}

	switch fork {
	case Fjord:
		if b.BlobBaseFee == nil {
			return nil, fmt.Errorf("%s: %w", fork, ErrMissingBlobBaseFee)
		}
		return b.fjordCost(input), nil
	case Ecotone:
		if b.EmptyEcotoneScalars {
			return b.bedrockCost(input, true), nil
		}
		if b.BlobBaseFee == nil {
			return nil, fmt.Errorf("%s: %w", fork, ErrMissingBlobBaseFee)
		}
		return b.ecotoneCost(input), nil
	default:
		return b.bedrockCost(input, fork >= Regolith), nil
	}
}

// DataGas implements L1BlockInfo.
func (b *L1Block) DataGas(spec *ChainSpec, timestamp uint64, input []byte) (*uint256.Int, error) {
	fork, err := spec.ActiveFork(timestamp)
	if err != nil {
		return nil, err
	}
	if fork == Fjord {
		size := estimatedSizeFjord(input)
		return size.Div(satMul(size, nonZeroByteCostU), scalarDecimals), nil
	}
	return calldataGas(input, fork >= Regolith), nil
}

// bedrockCost = (dataGas + overhead) * l1BaseFee * scalar / 1e6
func (b *L1Block) bedrockCost(input []byte, regolith bool) *uint256.Int {
	gas := satAdd(calldataGas(input, regolith), orZero(b.FeeOverhead))
	cost := satMul(satMul(gas, b.BaseFee), orZero(b.FeeScalar))
	return cost.Div(cost, scalarDecimals)
}

// ecotoneCost = dataGas * (16*l1BaseFee*baseFeeScalar + blobBaseFee*blobBaseFeeScalar) / 16e6
func (b *L1Block) ecotoneCost(input []byte) *uint256.Int {
	gas := calldataGas(input, true)
	cost := satMul(gas, b.feeScaled())
	return cost.Div(cost, ecotoneDivisor)
}

// fjordCost = estimatedSize * (16*l1BaseFee*baseFeeScalar + blobBaseFee*blobBaseFeeScalar) / 1e12
func (b *L1Block) fjordCost(input []byte) *uint256.Int {
	cost := satMul(estimatedSizeFjord(input), b.feeScaled())
	return cost.Div(cost, fjordDivisor)
}

func (b *L1Block) feeScaled() *uint256.Int {
	base := satMul(satMul(b.BaseFee, nonZeroByteCostU), orZero(b.BaseFeeScalar))
	blob := satMul(orZero(b.BlobBaseFee), orZero(b.BlobBaseFeeScalar))
	return satAdd(base, blob)
}

// calldataGas counts 4 gas per zero byte and 16 per non-zero byte.
func calldataGas(input []byte, regolith bool) *uint256.Int {
	var gas uint64
	for _, c := range input {
		if c == 0 {
			gas += zeroByteCost
		} else {
			gas += nonZeroByteCost
		}
	}
	total := uint256.NewInt(gas)
	if !regolith {
		total.Add(total, preRegolithPadding)
	}
	return total
}

// estimatedSizeFjord returns the linear-regression size estimate of the
// compressed transaction, scaled by 1e6 and floored at 100 bytes.
func estimatedSizeFjord(input []byte) *uint256.Int {
	size := satMul(uint256.NewInt(uint64(FlzCompressLen(input))), fjordFastLZCoef)
	size = satSub(size, fjordIntercept)
	if size.Lt(fjordMinTxSize) {
		return new(uint256.Int).Set(fjordMinTxSize)
	}
	return size
}

func orZero(x *uint256.Int) *uint256.Int {
	if x == nil {
		return new(uint256.Int)
	}
	return x
}

func satMul(a, b *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).MulOverflow(a, b)
	if overflow {
		return new(uint256.Int).Set(maxU256)
	}
	return z
}

func satAdd(a, b *uint256.Int) *uint256.Int {
	z, overflow := new(uint256.Int).AddOverflow(a, b)
	if overflow {
		return new(uint256.Int).Set(maxU256)
	}
	return z
}

func satSub(a, b *uint256.Int) *uint256.Int {
	z, underflow := new(uint256.Int).SubOverflow(a, b)
	if underflow {
		return new(uint256.Int)
	}
	return z
}
