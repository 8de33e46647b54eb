package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

func testKey() entity.BalanceKey {
	return entity.BalanceKey{
		CompanyID:   "acme",
		WarehouseID: id.MustParse("0191a8c0-0000-7000-8000-000000000001"),
		ProductID:   id.MustParse("0191a8c0-0000-7000-8000-000000000002"),
		LotCode:     "LOT-A",
	}
}

func movement(key entity.BalanceKey, kind entity.MovementKind, qty float64, unitCost string, seq int64) entity.MovementRecord {
	return entity.MovementRecord{
		ID:          id.New(),
		Sequence:    seq,
		CompanyID:   key.CompanyID,
		WarehouseID: key.WarehouseID,
		ProductID:   key.ProductID,
		LotCode:     key.LotCode,
		Kind:        kind,
		Quantity:    types.NewQuantityFromFloat64(qty),
		UnitCost:    types.MustMoney(unitCost),
		CreatedAt:   time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
	}
}

func TestApply_IncreaseRecomputesWeightedAverage(t *testing.T) {
	key := testKey()
	bal := entity.StockBalance{BalanceKey: key}

	bal, err := Apply(bal, movement(key, entity.KindPurchaseReceipt, 10, "2.00", 1))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), bal.OnHand)
	assert.True(t, bal.AvgCost.Equal(types.MustMoney("2.00")), "avg=%s", bal.AvgCost)

	bal, err = Apply(bal, movement(key, entity.KindPurchaseReceipt, 10, "4.00", 2))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(20), bal.OnHand)
	assert.True(t, bal.AvgCost.Equal(types.MustMoney("3.00")), "avg=%s", bal.AvgCost)
	assert.Equal(t, int64(2), bal.Version)
}

func TestApply_ZeroCostInboundKeepsAverage(t *testing.T) {
	key := testKey()
	bal := entity.StockBalance{BalanceKey: key}

	bal, err := Apply(bal, movement(key, entity.KindPurchaseReceipt, 10, "2.50", 1))
	require.NoError(t, err)

	bal, err = Apply(bal, movement(key, entity.KindSaleReturn, 5, "0", 2))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(15), bal.OnHand)
	assert.True(t, bal.AvgCost.Equal(types.MustMoney("2.50")), "avg=%s", bal.AvgCost)
}

func TestApply_DecreaseLeavesAverageUntouched(t *testing.T) {
	key := testKey()
	bal := entity.StockBalance{BalanceKey: key}

	bal, err := Apply(bal, movement(key, entity.KindPurchaseReceipt, 10, "3.00", 1))
	require.NoError(t, err)

	bal, err = Apply(bal, movement(key, entity.KindSaleFulfillment, 4, "3.00", 2))
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(6), bal.OnHand)
	assert.True(t, bal.AvgCost.Equal(types.MustMoney("3.00")))
}

func TestApply_OverdrawIsCorruption(t *testing.T) {
	key := testKey()
	bal := entity.StockBalance{BalanceKey: key, OnHand: types.NewQuantityFromFloat64(3)}

	_, err := Apply(bal, movement(key, entity.KindSaleFulfillment, 5, "1.00", 1))
	require.Error(t, err)
	assert.True(t, apperror.IsCorruptionDetected(err))
}

func TestApply_AdjustmentSetsQuantityAndCost(t *testing.T) {
	key := testKey()
	bal := entity.StockBalance{
		BalanceKey: key,
		OnHand:     types.NewQuantityFromFloat64(17),
		AvgCost:    types.MustMoney("2.00"),
	}

	m := movement(key, entity.KindAdjustment, 12, "2.20", 1)
	m.Reason = "cycle count"
	bal, err := Apply(bal, m)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(12), bal.OnHand)
	assert.True(t, bal.AvgCost.Equal(types.MustMoney("2.20")))
}

func TestApply_RejectsForeignKey(t *testing.T) {
	key := testKey()
	other := key
	other.LotCode = "LOT-B"

	_, err := Apply(entity.StockBalance{BalanceKey: key}, movement(other, entity.KindPurchaseReceipt, 1, "1.00", 1))
	require.Error(t, err)
}

func TestRebuild_MatchesIncrementalFold(t *testing.T) {
	key := testKey()
	movements := []entity.MovementRecord{
		movement(key, entity.KindPurchaseReceipt, 10, "2.00", 1),
		movement(key, entity.KindPurchaseReceipt, 10, "4.00", 2),
		movement(key, entity.KindSaleFulfillment, 7, "3.00", 3),
		movement(key, entity.KindSaleReturn, 2, "0", 4),
	}

	incremental := entity.StockBalance{BalanceKey: key}
	for _, m := range movements {
		var err error
		incremental, err = Apply(incremental, m)
		require.NoError(t, err)
	}

	replayed, err := Rebuild(key, movements)
	require.NoError(t, err)
	assert.True(t, Reconciles(replayed, incremental))
	assert.Equal(t, types.NewQuantityFromFloat64(15), replayed.OnHand)
	assert.True(t, replayed.AvgCost.Equal(types.MustMoney("3.00")))
}

func TestRebuild_IsIdempotent(t *testing.T) {
	key := testKey()
	movements := []entity.MovementRecord{
		movement(key, entity.KindPurchaseReceipt, 5, "1.50", 1),
		movement(key, entity.KindOutboundGeneric, 2, "1.50", 2),
	}

	first, err := Rebuild(key, movements)
	require.NoError(t, err)
	second, err := Rebuild(key, movements)
	require.NoError(t, err)
	assert.Equal(t, first.OnHand, second.OnHand)
	assert.True(t, first.AvgCost.Equal(second.AvgCost))
}

func TestRebuild_RejectsOutOfOrderHistory(t *testing.T) {
	key := testKey()
	movements := []entity.MovementRecord{
		movement(key, entity.KindPurchaseReceipt, 5, "1.00", 2),
		movement(key, entity.KindPurchaseReceipt, 5, "1.00", 1),
	}

	_, err := Rebuild(key, movements)
	require.Error(t, err)
}

func TestReconciles_DetectsDrift(t *testing.T) {
	key := testKey()
	a := entity.StockBalance{BalanceKey: key, OnHand: types.NewQuantityFromFloat64(10), AvgCost: types.MustMoney("2.00")}

	b := a
	assert.True(t, Reconciles(a, b))

	b.OnHand = types.NewQuantityFromFloat64(11)
	assert.False(t, Reconciles(a, b))

	b = a
	b.AvgCost = types.MustMoney("2.01")
	assert.False(t, Reconciles(a, b))
}
