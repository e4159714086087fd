package fees

import "math/big"

// Fork identifies the rollup hardfork that governs L1 cost derivation.
type Fork int

const (
	Bedrock Fork = iota
	Regolith
	Ecotone
	Fjord
)

func (f Fork) String() string {
	switch f {
	case Bedrock:
		return "bedrock"
	case Regolith:
		return "regolith"
	case Ecotone:
		return "ecotone"
	case Fjord:
		return "fjord"
	default:
		return "unknown"
	}
}

// ChainSpec carries the chain identity and the timestamp-activated rollup
// forks that change how L1 data costs are charged. A nil fork time means the
// fork is not scheduled.
type ChainSpec struct {
	ChainID      *big.Int
	Optimism     bool
	RegolithTime *uint64
	EcotoneTime  *uint64
	FjordTime    *uint64
}

func isForked(activation *uint64, timestamp uint64) bool {
	return activation != nil && *activation <= timestamp
}

func (s *ChainSpec) IsRegolith(timestamp uint64) bool { return isForked(s.RegolithTime, timestamp) }
func (s *ChainSpec) IsEcotone(timestamp uint64) bool  { return isForked(s.EcotoneTime, timestamp) }
func (s *ChainSpec) IsFjord(timestamp uint64) bool    { return isForked(s.FjordTime, timestamp) }

// ActiveFork returns the latest fork active at timestamp.
func (s *ChainSpec) ActiveFork(timestamp uint64) (Fork, error) {
	if s == nil || !s.Optimism {
		return Bedrock, ErrNotRollupChain
	}
	switch {
	case s.IsFjord(timestamp):
		return Fjord, nil
	case s.IsEcotone(timestamp):
		return Ecotone, nil
	case s.IsRegolith(timestamp):
		return Regolith, nil
	default:
		return Bedrock, nil
	}
}
