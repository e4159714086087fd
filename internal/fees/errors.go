package fees

import "errors"

var (
	// ErrNotRollupChain is returned when L1 costs are requested for a chain
	// spec without rollup forks.
	ErrNotRollupChain = errors.New("chain spec is not a rollup chain")

	// ErrMissingBaseFee is returned when the L1 block context has no base fee.
	ErrMissingBaseFee = errors.New("l1 block info missing base fee")

	// ErrMissingBlobBaseFee is returned when an Ecotone or later cost is
	// requested without the L1 blob base fee.
	ErrMissingBlobBaseFee = errors.New("l1 block info missing blob base fee")
)
