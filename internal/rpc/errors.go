package rpc

import (
	"errors"
	"fmt"

	"github.com/insoblok/inso-txpool/internal/mempool"
	"github.com/insoblok/inso-txpool/internal/optimism"
	"github.com/insoblok/inso-txpool/internal/signer"
	"github.com/insoblok/inso-txpool/internal/txpool"
)

// Error kinds reported in JSONRPCError.Data.
const (
	KindSnapshotUnavailable = "snapshot_unavailable"
	KindL1FeeComputation    = "l1_fee_computation"
	KindL1GasComputation    = "l1_gas_computation"
	KindInvalidParams       = "invalid_params"
	KindPoolRejected        = "pool_rejected"
	KindMethodNotFound      = "method_not_found"
	KindRateLimited         = "rate_limited"
	KindInternal            = "internal"
)

var errDepositSubmission = errors.New("deposit transactions cannot be submitted over RPC")

// paramsError marks a malformed request parameter.
type paramsError struct {
	msg string
}

func (e *paramsError) Error() string { return e.msg }

func invalidParams(format string, args ...interface{}) error {
	return &paramsError{msg: fmt.Sprintf(format, args...)}
}

// classify maps an error to its JSON-RPC code and kind.
func classify(err error) (code int, kind string) {
	var (
		pe *paramsError
		se *txpool.SnapshotError
	)
	switch {
	case errors.As(err, &pe), errors.Is(err, errDepositSubmission), errors.Is(err, signer.ErrUnknownAccount):
		return codeInvalidParams, KindInvalidParams
	case errors.As(err, &se):
		return codeServerError, KindSnapshotUnavailable
	case errors.Is(err, optimism.ErrL1BlockFee):
		return codeServerError, KindL1FeeComputation
	case errors.Is(err, optimism.ErrL1BlockGas):
		return codeServerError, KindL1GasComputation
	case rejectReason(err) != "":
		return codeServerError, KindPoolRejected
	default:
		return codeServerError, KindInternal
	}
}

// rejectReason returns a short label for pool rejections, or "" if err is
// not one.
func rejectReason(err error) string {
	switch {
	case errors.Is(err, mempool.ErrAlreadyKnown):
		return "already_known"
	case errors.Is(err, mempool.ErrMempoolFull):
		return "pool_full"
	case errors.Is(err, mempool.ErrInvalidSender):
		return "invalid_sender"
	case errors.Is(err, mempool.ErrNonceTooLow):
		return "nonce_too_low"
	case errors.Is(err, mempool.ErrFeeCapTooLow):
		return "fee_cap_too_low"
	case errors.Is(err, mempool.ErrReplaceUnderpriced):
		return "replace_underpriced"
	case errors.Is(err, mempool.ErrNonceConflict):
		return "nonce_conflict"
	case errors.Is(err, mempool.ErrUnsupportedTxType):
		return "unsupported_type"
	default:
		return ""
	}
}
