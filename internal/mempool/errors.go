package mempool

import "errors"

var (
	// ErrAlreadyKnown is returned when adding a transaction that already exists in the pool.
	ErrAlreadyKnown = errors.New("transaction already known")

	// ErrMempoolFull is returned when the mempool has reached its maximum capacity.
	ErrMempoolFull = errors.New("mempool is full")

	// ErrInvalidSender is returned when the transaction sender cannot be derived.
	ErrInvalidSender = errors.New("invalid sender")

	// ErrNonceTooLow is returned when the transaction nonce is below the sender's current nonce.
	ErrNonceTooLow = errors.New("nonce too low")

	// ErrFeeCapTooLow is returned when the max fee per gas is below the pool minimum.
	ErrFeeCapTooLow = errors.New("max fee per gas too low")

	// ErrReplaceUnderpriced is returned when a same-nonce replacement does not
	// raise the fee cap by the required bump.
	ErrReplaceUnderpriced = errors.New("replacement transaction underpriced")

	// ErrNonceConflict is returned when a deposit and a signed transaction
	// from the same address would both occupy nonce 0.
	ErrNonceConflict = errors.New("nonce already taken by a pending transaction")

	// ErrUnsupportedTxType is returned for transaction types the pool does not accept.
	ErrUnsupportedTxType = errors.New("transaction type not supported")
)
