package txpool

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	insoTypes "github.com/insoblok/inso-txpool/pkg/types"
)

var (
	addrA = common.HexToAddress("0x000000000000000000000000000000000000000a")
	addrB = common.HexToAddress("0x000000000000000000000000000000000000000b")
)

// fakeTx is a PoolTransaction backed by an unsigned legacy transaction.
type fakeTx struct {
	tx     *types.Transaction
	sender common.Address
}

func newFakeTx(sender common.Address, nonce uint64) *fakeTx {
	to := common.HexToAddress("0xc0ffee")
	return &fakeTx{
		tx: types.NewTx(&types.LegacyTx{
			Nonce:    nonce,
			GasPrice: big.NewInt(30),
			Gas:      21000,
			To:       &to,
			Value:    big.NewInt(int64(nonce) + 1),
		}),
		sender: sender,
	}
}

func (f *fakeTx) Hash() common.Hash      { return f.tx.Hash() }
func (f *fakeTx) Sender() common.Address { return f.sender }
func (f *fakeTx) Nonce() uint64          { return f.tx.Nonce() }
func (f *fakeTx) To() *common.Address    { return f.tx.To() }
func (f *fakeTx) Value() *big.Int        { return f.tx.Value() }
func (f *fakeTx) Gas() uint64            { return f.tx.Gas() }
func (f *fakeTx) GasFeeCap() *big.Int    { return f.tx.GasFeeCap() }
func (f *fakeTx) IsDeposit() bool        { return false }

func (f *fakeTx) EncodedBytes() []byte {
	b, _ := f.tx.MarshalBinary()
	return b
}

func (f *fakeTx) Recovered() *insoTypes.RecoveredTx {
	return &insoTypes.RecoveredTx{Tx: f.tx, From: f.sender}
}

// labelBuilder renders "<sender>/<nonce>".
type labelBuilder struct{}

func (labelBuilder) Fill(tx *insoTypes.RecoveredTx, info insoTypes.TransactionInfo) string {
	return fmt.Sprintf("%s/%d", tx.From.Hex(), tx.Tx.Nonce())
}

type staticProvider struct {
	snap *Snapshot
	err  error
}

func (p staticProvider) AllTransactions(ctx context.Context) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return p.snap, p.err
}

func scenario() *Snapshot {
	return &Snapshot{
		Pending: []insoTypes.PoolTransaction{newFakeTx(addrA, 0)},
		Queued: []insoTypes.PoolTransaction{
			newFakeTx(addrB, 5),
			newFakeTx(addrB, 7),
		},
	}
}

func TestStatusCountsSnapshot(t *testing.T) {
	status := StatusOf(scenario())
	assert.Equal(t, Status{Pending: 1, Queued: 2}, status)

	raw, err := json.Marshal(status)
	require.NoError(t, err)
	assert.JSONEq(t, `{"pending":"0x1","queued":"0x2"}`, string(raw))
}

func TestContentScenario(t *testing.T) {
	content := ContentOf[string](scenario(), labelBuilder{})

	assert.Equal(t, map[string]map[string]string{
		addrA.Hex(): {"0": addrA.Hex() + "/0"},
	}, content.Pending)
	assert.Equal(t, map[string]map[string]string{
		addrB.Hex(): {"5": addrB.Hex() + "/5", "7": addrB.Hex() + "/7"},
	}, content.Queued)
}

func TestContentFromScenario(t *testing.T) {
	snap := scenario()

	from := ContentFromOf[string](snap, addrB, labelBuilder{})
	require.NotNil(t, from.Pending)
	assert.Empty(t, from.Pending)
	assert.Equal(t, ContentOf[string](snap, labelBuilder{}).Queued, from.Queued)

	raw, err := json.Marshal(from)
	require.NoError(t, err)
	assert.JSONEq(t, fmt.Sprintf(`{"pending":{},"queued":{%q:{"5":%q,"7":%q}}}`,
		addrB.Hex(), addrB.Hex()+"/5", addrB.Hex()+"/7"), string(raw))

	none := ContentFromOf[string](snap, common.HexToAddress("0x99"), labelBuilder{})
	assert.Empty(t, none.Pending)
	assert.Empty(t, none.Queued)
}

func TestSenderInBothPartitions(t *testing.T) {
	snap := &Snapshot{
		Pending: []insoTypes.PoolTransaction{newFakeTx(addrA, 3)},
		Queued:  []insoTypes.PoolTransaction{newFakeTx(addrA, 5)},
	}
	content := ContentFromOf[string](snap, addrA, labelBuilder{})
	assert.Contains(t, content.Pending[addrA.Hex()], "3")
	assert.NotContains(t, content.Pending[addrA.Hex()], "5")
	assert.Contains(t, content.Queued[addrA.Hex()], "5")
}

func TestDuplicateNonceLastWriteWins(t *testing.T) {
	first := newFakeTx(addrA, 1)
	second := newFakeTx(addrA, 1)
	second.tx = types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(99), Gas: 50_000})

	inspect := InspectOf(&Snapshot{Pending: []insoTypes.PoolTransaction{first, second}})
	got := inspect.Pending[addrA.Hex()]["1"]
	assert.Equal(t, uint64(50_000), got.Gas)
	assert.Nil(t, got.To)
}

func TestAggregationIsIdempotent(t *testing.T) {
	snap := scenario()
	assert.Equal(t, ContentOf[string](snap, labelBuilder{}), ContentOf[string](snap, labelBuilder{}))
	assert.Equal(t, InspectOf(snap), InspectOf(snap))
	assert.Equal(t, StatusOf(snap), StatusOf(snap))
}

func TestNonceKeysAreDecimal(t *testing.T) {
	snap := &Snapshot{Pending: []insoTypes.PoolTransaction{
		newFakeTx(addrA, 2),
		newFakeTx(addrA, 10),
	}}
	content := ContentOf[string](snap, labelBuilder{})
	assert.Contains(t, content.Pending[addrA.Hex()], "2")
	assert.Contains(t, content.Pending[addrA.Hex()], "10")

	raw, err := json.Marshal(content.Pending[addrA.Hex()])
	require.NoError(t, err)
	// encoding/json sorts map keys as strings.
	assert.Equal(t, fmt.Sprintf(`{"10":%q,"2":%q}`, addrA.Hex()+"/10", addrA.Hex()+"/2"), string(raw))
}

func TestInspectSummaryFormat(t *testing.T) {
	to := common.HexToAddress("0xc0ffee")
	tests := []struct {
		name    string
		summary InspectSummary
		want    string
	}{
		{
			name:    "call",
			summary: InspectSummary{To: &to, Value: big.NewInt(1), Gas: 21000, GasPrice: big.NewInt(30)},
			want:    to.Hex() + ": 1 wei + 21000 gas × 30 wei",
		},
		{
			name:    "creation",
			summary: InspectSummary{Value: big.NewInt(0), Gas: 53000, GasPrice: big.NewInt(7)},
			want:    "contract creation: 0 wei + 53000 gas × 7 wei",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.summary.String())

			raw, err := json.Marshal(tt.summary)
			require.NoError(t, err)
			var back InspectSummary
			require.NoError(t, json.Unmarshal(raw, &back))
			assert.Equal(t, tt.summary.String(), back.String())
		})
	}

	var bad InspectSummary
	assert.Error(t, json.Unmarshal([]byte(`"nonsense"`), &bad))
	assert.Error(t, json.Unmarshal([]byte(`"0x01: x wei + 1 gas × 1 wei"`), &bad))
}

func TestInspectUsesMaxFeePerGas(t *testing.T) {
	inspect := InspectOf(scenario())
	got := inspect.Queued[addrB.Hex()]["7"]
	assert.Equal(t, int64(30), got.GasPrice.Int64())
	assert.Equal(t, int64(8), got.Value.Int64())
	assert.Equal(t, uint64(21000), got.Gas)
}

func TestAPISnapshotFailure(t *testing.T) {
	cause := errors.New("pool closed")
	api := NewAPI[string](staticProvider{err: cause}, labelBuilder{})

	_, err := api.Status(context.Background())
	var snapErr *SnapshotError
	require.ErrorAs(t, err, &snapErr)
	assert.ErrorIs(t, err, cause)

	_, err = api.Content(context.Background())
	assert.ErrorIs(t, err, cause)
	_, err = api.Inspect(context.Background())
	assert.ErrorIs(t, err, cause)
	_, err = api.ContentFrom(context.Background(), addrA)
	assert.ErrorIs(t, err, cause)
}

func TestAPICancelledContext(t *testing.T) {
	api := NewAPI[string](staticProvider{snap: scenario()}, labelBuilder{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := api.Content(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestAPIServesScenario(t *testing.T) {
	api := NewAPI[string](staticProvider{snap: scenario()}, labelBuilder{})
	ctx := context.Background()

	status, err := api.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Pending: 1, Queued: 2}, status)

	from, err := api.ContentFrom(ctx, addrB)
	require.NoError(t, err)
	assert.Len(t, from.Queued[addrB.Hex()], 2)

	inspect, err := api.Inspect(ctx)
	require.NoError(t, err)
	assert.Len(t, inspect.Queued[addrB.Hex()], 2)

	empty := NewAPI[string](staticProvider{}, labelBuilder{})
	status, err = empty.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{}, status)
}
