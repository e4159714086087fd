package optimism

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/insoblok/inso-txpool/internal/ethapi"
	"github.com/insoblok/inso-txpool/internal/fees"
	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// RPCTransaction is the rollup response shape: the Ethereum shape plus the
// deposit fields. IsSystemTx is only ever set for deposits.
type RPCTransaction struct {
	ethapi.RPCTransaction

	SourceHash *common.Hash `json:"sourceHash,omitempty"`
	Mint       *hexutil.Big `json:"mint,omitempty"`
	IsSystemTx *bool        `json:"isSystemTx,omitempty"`
}

// OpTxBuilder renders transactions for rollup chains on top of the
// Ethereum builder.
type OpTxBuilder struct {
	Eth ethapi.EthTxBuilder
}

// Fill implements ethapi.TransactionBuilder.
func (b OpTxBuilder) Fill(tx *insoTypes.RecoveredTx, info insoTypes.TransactionInfo) *RPCTransaction {
	out := &RPCTransaction{RPCTransaction: *b.Eth.Fill(tx, info)}

	deposit, ok := tx.Deposit()
	if !ok {
		return out
	}
	source := deposit.SourceHash()
	isSystem := deposit.IsSystemTx()
	out.SourceHash = &source
	out.IsSystemTx = &isSystem
	if mint := deposit.Mint(); mint != nil {
		out.Mint = (*hexutil.Big)(mint)
	}
	return out
}

// TransactionDetail is a rollup transaction with its L1 cost merged in.
type TransactionDetail struct {
	*RPCTransaction

	L1Fee     *hexutil.Big `json:"l1Fee,omitempty"`
	L1GasUsed *hexutil.Big `json:"l1GasUsed,omitempty"`
}

// L1Source supplies the current L1 block context, or nil when none is known.
type L1Source interface {
	Latest() fees.L1BlockInfo
}

// DetailFormatter renders pooled transactions with their L1 cost, as
// charged if the transaction were included in a block built now. A fee or
// gas failure aborts the whole response.
func DetailFormatter(b OpTxBuilder, l1 L1Source, spec *fees.ChainSpec, now func() time.Time) ethapi.TxFormatter[*TransactionDetail] {
	if now == nil {
		now = time.Now
	}
	return func(tx insoTypes.PoolTransaction) (*TransactionDetail, error) {
		meta, err := BuildTxMeta(l1.Latest(), tx, spec, uint64(now().Unix()))
		if err != nil {
			return nil, err
		}
		detail := &TransactionDetail{
			RPCTransaction: b.Fill(tx.Recovered(), insoTypes.PendingInfo(tx.Hash())),
		}
		if meta.L1Fee != nil {
			detail.L1Fee = (*hexutil.Big)(meta.L1Fee.ToBig())
		}
		if meta.L1DataGas != nil {
			detail.L1GasUsed = (*hexutil.Big)(meta.L1DataGas.ToBig())
		}
		return detail, nil
	}
}
