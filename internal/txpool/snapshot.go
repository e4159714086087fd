package txpool

import (
	"context"
	"fmt"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

// Snapshot is the pool partitioned at one instant. Pending transactions are
// includable now; queued ones are blocked. The two sequences are disjoint.
type Snapshot struct {
	Pending []insoTypes.PoolTransaction
	Queued  []insoTypes.PoolTransaction
}

// Provider produces pool snapshots. AllTransactions may block and must
// honor ctx cancellation.
type Provider interface {
	AllTransactions(ctx context.Context) (*Snapshot, error)
}

// SnapshotError reports that the pool could not produce a snapshot.
type SnapshotError struct {
	Err error
}

func (e *SnapshotError) Error() string {
	return fmt.Sprintf("txpool snapshot unavailable: %v", e.Err)
}

func (e *SnapshotError) Unwrap() error { return e.Err }

func takeSnapshot(ctx context.Context, p Provider) (*Snapshot, error) {
	snap, err := p.AllTransactions(ctx)
	if err != nil {
		return nil, &SnapshotError{Err: err}
	}
	if snap == nil {
		return &Snapshot{}, nil
	}
	return snap, nil
}
