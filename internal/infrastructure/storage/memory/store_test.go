package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

func balanceKey() entity.BalanceKey {
	return entity.BalanceKey{
		CompanyID:   "acme",
		WarehouseID: id.MustParse("0191a8c0-0000-7000-8000-000000000001"),
		ProductID:   id.MustParse("0191a8c0-0000-7000-8000-000000000002"),
		LotCode:     "L1",
	}
}

func TestRunInTransaction_RollbackDiscardsStagedWrites(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := balanceKey()
	boom := errors.New("boom")

	err := store.RunInTransaction(ctx, func(ctx context.Context) error {
		bal, err := store.GetBalanceForUpdate(ctx, key)
		require.NoError(t, err)
		bal.OnHand = types.NewQuantityFromFloat64(5)
		bal.Version++
		require.NoError(t, store.UpsertBalance(ctx, bal, 0))

		_, err = store.AppendMovements(ctx, []entity.MovementRecord{{
			ID: id.New(), CompanyID: key.CompanyID, WarehouseID: key.WarehouseID,
			ProductID: key.ProductID, LotCode: key.LotCode,
			Kind: entity.KindInboundGeneric, Quantity: types.NewQuantityFromFloat64(5),
			CreatedAt: time.Now().UTC(),
		}})
		require.NoError(t, err)
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, bal.OnHand.IsZero())

	movements, err := store.ListMovementsForKey(ctx, key)
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestRunInTransaction_StaleVersionAbortsCommit(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := balanceKey()

	// Committed state at version 1.
	require.NoError(t, store.UpsertBalance(ctx, entity.StockBalance{
		BalanceKey: key, OnHand: types.NewQuantityFromFloat64(10), Version: 1,
	}, 0))

	err := store.RunInTransaction(ctx, func(ctx context.Context) error {
		bal, err := store.GetBalanceForUpdate(ctx, key)
		require.NoError(t, err)

		// A concurrent writer commits before this unit does.
		sneaked := bal
		sneaked.Version++
		require.NoError(t, store.UpsertBalance(context.Background(), sneaked, bal.Version))

		bal.OnHand -= types.NewQuantityFromFloat64(3)
		next := bal
		next.Version++
		return store.UpsertBalance(ctx, next, bal.Version)
	})
	require.Error(t, err)
	assert.True(t, apperror.IsConcurrentModification(err))

	bal, err := store.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(10), bal.OnHand, "losing unit wrote nothing")
}

func TestRunInTransaction_NestedCallsJoin(t *testing.T) {
	store := NewStore()
	key := balanceKey()

	err := store.RunInTransaction(context.Background(), func(ctx context.Context) error {
		return store.RunInTransaction(ctx, func(ctx context.Context) error {
			bal, err := store.GetBalanceForUpdate(ctx, key)
			if err != nil {
				return err
			}
			bal.OnHand = types.NewQuantityFromFloat64(1)
			bal.Version++
			return store.UpsertBalance(ctx, bal, 0)
		})
	})
	require.NoError(t, err)

	bal, err := store.GetBalance(context.Background(), key)
	require.NoError(t, err)
	assert.Equal(t, types.NewQuantityFromFloat64(1), bal.OnHand)
}

func TestGetBalanceForUpdate_ReadsOwnStagedWrites(t *testing.T) {
	store := NewStore()
	key := balanceKey()

	err := store.RunInTransaction(context.Background(), func(ctx context.Context) error {
		bal, err := store.GetBalanceForUpdate(ctx, key)
		require.NoError(t, err)
		bal.OnHand = types.NewQuantityFromFloat64(7)
		bal.Version++
		require.NoError(t, store.UpsertBalance(ctx, bal, 0))

		again, err := store.GetBalanceForUpdate(ctx, key)
		require.NoError(t, err)
		assert.Equal(t, types.NewQuantityFromFloat64(7), again.OnHand)
		return nil
	})
	require.NoError(t, err)
}

func TestAppendMovements_AssignsMonotonicSequencePerCompany(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	key := balanceKey()

	first, err := store.AppendMovements(ctx, []entity.MovementRecord{{
		ID: id.New(), CompanyID: key.CompanyID, WarehouseID: key.WarehouseID,
		ProductID: key.ProductID, Kind: entity.KindInboundGeneric,
		Quantity: types.NewQuantityFromFloat64(1), CreatedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)

	second, err := store.AppendMovements(ctx, []entity.MovementRecord{{
		ID: id.New(), CompanyID: key.CompanyID, WarehouseID: key.WarehouseID,
		ProductID: key.ProductID, Kind: entity.KindInboundGeneric,
		Quantity: types.NewQuantityFromFloat64(1), CreatedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)

	other, err := store.AppendMovements(ctx, []entity.MovementRecord{{
		ID: id.New(), CompanyID: "globex", WarehouseID: key.WarehouseID,
		ProductID: key.ProductID, Kind: entity.KindInboundGeneric,
		Quantity: types.NewQuantityFromFloat64(1), CreatedAt: time.Now().UTC(),
	}})
	require.NoError(t, err)

	assert.Equal(t, int64(1), first[0].Sequence)
	assert.Equal(t, int64(2), second[0].Sequence)
	assert.Equal(t, int64(1), other[0].Sequence, "sequences are per company")
}

func TestNextFolio_CountersArePerCompanyPrefixYear(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	period := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	f1, err := store.NextFolio(ctx, "acme", "REC", period)
	require.NoError(t, err)
	f2, err := store.NextFolio(ctx, "acme", "REC", period)
	require.NoError(t, err)
	f3, err := store.NextFolio(ctx, "acme", "FUL", period)
	require.NoError(t, err)
	f4, err := store.NextFolio(ctx, "globex", "REC", period)
	require.NoError(t, err)

	assert.Equal(t, "REC-2026-00001", f1)
	assert.Equal(t, "REC-2026-00002", f2)
	assert.Equal(t, "FUL-2026-00001", f3)
	assert.Equal(t, "REC-2026-00001", f4)
}

func TestSetQuarantined_SurvivesEnclosingRollback(t *testing.T) {
	store := NewStore()
	key := balanceKey()
	boom := errors.New("boom")

	err := store.RunInTransaction(context.Background(), func(ctx context.Context) error {
		if err := store.SetQuarantined(ctx, key, true); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	bal, err := store.GetBalance(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, bal.Quarantined)
}
