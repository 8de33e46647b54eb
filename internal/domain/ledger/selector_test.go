package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/types"
)

func lot(code string, available float64, cost string, expiry, received *time.Time) entity.StockBalance {
	key := testKey()
	key.LotCode = code
	return entity.StockBalance{
		BalanceKey: key,
		OnHand:     types.NewQuantityFromFloat64(available),
		AvgCost:    types.MustMoney(cost),
		ExpiryDate: expiry,
		ReceivedAt: received,
	}
}

func datePtr(t time.Time) *time.Time { return &t }

func TestSelectLots_FEFOTakesClosestExpiryFirst(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	balances := []entity.StockBalance{
		lot("A", 5, "1.00", datePtr(base.AddDate(0, 0, 10)), nil),
		lot("B", 5, "1.10", datePtr(base.AddDate(0, 0, 5)), nil),
		lot("C", 5, "1.20", nil, nil), // no expiry sorts last
	}

	plan, err := SelectLots(balances, types.NewQuantityFromFloat64(8), PolicyFEFO)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, "B", plan.Allocations[0].LotCode)
	assert.Equal(t, types.NewQuantityFromFloat64(5), plan.Allocations[0].Quantity)
	assert.Equal(t, "A", plan.Allocations[1].LotCode)
	assert.Equal(t, types.NewQuantityFromFloat64(3), plan.Allocations[1].Quantity)
	assert.Equal(t, types.NewQuantityFromFloat64(8), plan.Allocated)
}

func TestSelectLots_FIFOTakesOldestReceiptFirst(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	balances := []entity.StockBalance{
		lot("L2", 4, "1.00", nil, datePtr(base.Add(2*time.Hour))),
		lot("L1", 4, "1.00", nil, datePtr(base.Add(1*time.Hour))),
		lot("L3", 4, "1.00", nil, datePtr(base.Add(3*time.Hour))),
	}

	plan, err := SelectLots(balances, types.NewQuantityFromFloat64(6), PolicyFIFO)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, "L1", plan.Allocations[0].LotCode)
	assert.Equal(t, "L2", plan.Allocations[1].LotCode)
	assert.Equal(t, types.NewQuantityFromFloat64(2), plan.Allocations[1].Quantity)
}

func TestSelectLots_TieBreaksByLotCode(t *testing.T) {
	exp := datePtr(time.Date(2026, 9, 1, 0, 0, 0, 0, time.UTC))
	balances := []entity.StockBalance{
		lot("B", 3, "1.00", exp, nil),
		lot("A", 3, "1.00", exp, nil),
	}

	plan, err := SelectLots(balances, types.NewQuantityFromFloat64(4), PolicyFEFO)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.Equal(t, "A", plan.Allocations[0].LotCode)
	assert.Equal(t, "B", plan.Allocations[1].LotCode)
}

func TestSelectLots_SkipsQuarantinedAndReservedOut(t *testing.T) {
	quarantined := lot("Q", 10, "1.00", nil, nil)
	quarantined.Quarantined = true

	reserved := lot("R", 10, "1.00", nil, nil)
	reserved.Reserved = reserved.OnHand // nothing available

	open := lot("S", 4, "1.00", nil, nil)

	plan, err := SelectLots([]entity.StockBalance{quarantined, reserved, open},
		types.NewQuantityFromFloat64(4), PolicyFIFO)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "S", plan.Allocations[0].LotCode)
}

func TestSelectLots_ShortfallCarriesDetails(t *testing.T) {
	balances := []entity.StockBalance{
		lot("A", 3, "1.00", nil, nil),
	}

	_, err := SelectLots(balances, types.NewQuantityFromFloat64(5), PolicyFIFO)
	require.Error(t, err)
	require.True(t, apperror.IsInsufficientStock(err))

	appErr, ok := apperror.AsAppError(err)
	require.True(t, ok)
	assert.Equal(t, "5.0000", appErr.Details["requested"])
	assert.Equal(t, "3.0000", appErr.Details["available"])
	assert.Equal(t, "2.0000", appErr.Details["shortfall"])
}

func TestSelectLots_UntrackedProductSingleRow(t *testing.T) {
	plan, err := SelectLots([]entity.StockBalance{lot("", 9, "2.00", nil, nil)},
		types.NewQuantityFromFloat64(4), PolicyFIFO)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 1)
	assert.Equal(t, "", plan.Allocations[0].LotCode)
	assert.Equal(t, types.NewQuantityFromFloat64(4), plan.Allocations[0].Quantity)
}

func TestSelectLots_RejectsNonPositiveRequest(t *testing.T) {
	_, err := SelectLots(nil, types.NewQuantityFromFloat64(0), PolicyFIFO)
	require.Error(t, err)
	assert.True(t, apperror.IsCode(err, apperror.CodeValidation))
}

func TestSelectLots_PlanCarriesLotCosts(t *testing.T) {
	base := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	balances := []entity.StockBalance{
		lot("L1", 2, "1.50", nil, datePtr(base)),
		lot("L2", 2, "2.50", nil, datePtr(base.Add(time.Hour))),
	}

	plan, err := SelectLots(balances, types.NewQuantityFromFloat64(3), PolicyFIFO)
	require.NoError(t, err)
	require.Len(t, plan.Allocations, 2)
	assert.True(t, plan.Allocations[0].UnitCost.Equal(types.MustMoney("1.50")))
	assert.True(t, plan.Allocations[1].UnitCost.Equal(types.MustMoney("2.50")))
}
