// Package ledger_repo provides the PostgreSQL implementation of the
// movement ledger store. Movements live in ledger_movements
// (append-only), balances in ledger_balances, folio and sequence
// counters in sys_sequences.
package ledger_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/jackc/pgx/v5"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
	"kardex/internal/domain/ledger"
	"kardex/internal/infrastructure/storage/postgres"
)

const (
	movementsTable = "ledger_movements"
	balancesTable  = "ledger_balances"
)

var movementColumns = []string{
	"id", "sequence", "folio", "company_id",
	"warehouse_id", "warehouse_name",
	"product_id", "sku", "base_unit",
	"kind", "quantity", "quantity_before", "quantity_after",
	"unit_cost", "total_cost",
	"lot_code", "serial_code", "expiry_date", "received_at",
	"reference", "reason", "actor_id", "created_at",
}

var balanceColumns = []string{
	"company_id", "warehouse_id", "product_id", "lot_code",
	"on_hand", "reserved", "avg_cost",
	"expiry_date", "received_at",
	"version", "quarantined", "last_movement_at", "updated_at",
}

// LedgerRepo implements ledger.Store.
type LedgerRepo struct {
	builder   squirrel.StatementBuilderType
	txManager *postgres.TxManager
	pool      *postgres.Pool
	inserter  *postgres.BatchInserter
}

var _ ledger.Store = (*LedgerRepo)(nil)

// NewLedgerRepo creates a new ledger repository.
func NewLedgerRepo(txManager *postgres.TxManager, pool *postgres.Pool) *LedgerRepo {
	return &LedgerRepo{
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		txManager: txManager,
		pool:      pool,
		inserter:  postgres.NewBatchInserter(txManager),
	}
}

// AppendMovements reserves a per-company sequence range and inserts
// the movements. The sys_sequences row lock serializes sequence
// assignment for the company; the numbers are assigned in slice order.
// Uses COPY when inside a transaction.
func (r *LedgerRepo) AppendMovements(ctx context.Context, movements []entity.MovementRecord) ([]entity.MovementRecord, error) {
	if len(movements) == 0 {
		return nil, nil
	}

	out := make([]entity.MovementRecord, len(movements))
	copy(out, movements)

	// One reservation per company in the batch.
	counts := map[string]int64{}
	for _, m := range out {
		counts[m.CompanyID]++
	}
	querier := r.txManager.GetQuerier(ctx)
	next := map[string]int64{}
	for companyID, n := range counts {
		var max int64
		err := querier.QueryRow(ctx, `
			INSERT INTO sys_sequences (key, current_val)
			VALUES ($1, $2)
			ON CONFLICT (key) DO UPDATE SET current_val = sys_sequences.current_val + $2
			RETURNING current_val
		`, "movements_"+companyID, n).Scan(&max)
		if err != nil {
			return nil, fmt.Errorf("reserve sequence range: %w", err)
		}
		next[companyID] = max - n + 1
	}
	for i := range out {
		out[i].Sequence = next[out[i].CompanyID]
		next[out[i].CompanyID]++
	}

	if tx := r.txManager.GetTx(ctx); tx != nil {
		rows := make([][]any, 0, len(out))
		for _, m := range out {
			rows = append(rows, movementValues(m))
		}
		if _, err := r.inserter.CopyFromSlice(ctx, movementsTable, movementColumns, rows); err != nil {
			return nil, fmt.Errorf("copy movements: %w", err)
		}
		return out, nil
	}

	// Fallback: non-transactional insert. Prefer appending within tx.
	q := r.builder.Insert(movementsTable).Columns(movementColumns...)
	for _, m := range out {
		q = q.Values(movementValues(m)...)
	}
	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build insert: %w", err)
	}
	if _, err := querier.Exec(ctx, sql, args...); err != nil {
		return nil, fmt.Errorf("insert movements: %w", err)
	}
	return out, nil
}

func movementValues(m entity.MovementRecord) []any {
	return []any{
		m.ID, m.Sequence, m.Folio, m.CompanyID,
		m.WarehouseID, m.WarehouseName,
		m.ProductID, m.SKU, m.BaseUnit,
		m.Kind, m.Quantity, m.QuantityBefore, m.QuantityAfter,
		m.UnitCost, m.TotalCost,
		m.LotCode, m.SerialCode, m.ExpiryDate, m.ReceivedAt,
		m.Reference, m.Reason, m.ActorID, m.CreatedAt,
	}
}

// GetBalance returns the balance for a key, zero-valued when absent.
func (r *LedgerRepo) GetBalance(ctx context.Context, key entity.BalanceKey) (entity.StockBalance, error) {
	q := r.builder.Select(balanceColumns...).From(balancesTable).
		Where(keyEq(key)).Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return entity.StockBalance{}, fmt.Errorf("build query: %w", err)
	}

	var balance entity.StockBalance
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Get(ctx, querier, &balance, sql, args...); err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockBalance{BalanceKey: key}, nil
		}
		return entity.StockBalance{}, fmt.Errorf("get balance: %w", err)
	}
	return balance, nil
}

// GetBalanceForUpdate returns the balance with a pessimistic row lock.
// A missing row returns the zero balance at version 0; the insert path
// of UpsertBalance keeps two concurrent first writers from both
// succeeding.
func (r *LedgerRepo) GetBalanceForUpdate(ctx context.Context, key entity.BalanceKey) (entity.StockBalance, error) {
	sql := `
		SELECT company_id, warehouse_id, product_id, lot_code,
		       on_hand, reserved, avg_cost,
		       expiry_date, received_at,
		       version, quarantined, last_movement_at, updated_at
		FROM ledger_balances
		WHERE company_id = $1 AND warehouse_id = $2 AND product_id = $3 AND lot_code = $4
		FOR UPDATE
	`

	var balance entity.StockBalance
	querier := r.txManager.GetQuerier(ctx)
	err := pgxscan.Get(ctx, querier, &balance, sql, key.CompanyID, key.WarehouseID, key.ProductID, key.LotCode)
	if err != nil {
		if pgxscan.NotFound(err) {
			return entity.StockBalance{BalanceKey: key}, nil
		}
		return entity.StockBalance{}, fmt.Errorf("get balance for update: %w", err)
	}
	return balance, nil
}

// UpsertBalance writes the projected balance, guarded by the version
// read before projecting. A stale version means a concurrent writer
// won the key; the caller's transaction must abort.
func (r *LedgerRepo) UpsertBalance(ctx context.Context, b entity.StockBalance, expectedVersion int64) error {
	querier := r.txManager.GetQuerier(ctx)

	if expectedVersion == 0 {
		q := r.builder.Insert(balancesTable).Columns(balanceColumns...).
			Values(
				b.CompanyID, b.WarehouseID, b.ProductID, b.LotCode,
				b.OnHand, b.Reserved, b.AvgCost,
				b.ExpiryDate, b.ReceivedAt,
				b.Version, b.Quarantined, b.LastMovementAt, b.UpdatedAt,
			).
			Suffix("ON CONFLICT (company_id, warehouse_id, product_id, lot_code) DO NOTHING")
		sql, args, err := q.ToSql()
		if err != nil {
			return fmt.Errorf("build insert: %w", err)
		}
		tag, err := querier.Exec(ctx, sql, args...)
		if err != nil {
			return fmt.Errorf("insert balance: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return apperror.NewConcurrentModification("stock_balance", b.BalanceKey.String())
		}
		return nil
	}

	q := r.builder.Update(balancesTable).
		Set("on_hand", b.OnHand).
		Set("reserved", b.Reserved).
		Set("avg_cost", b.AvgCost).
		Set("expiry_date", b.ExpiryDate).
		Set("received_at", b.ReceivedAt).
		Set("version", b.Version).
		Set("quarantined", b.Quarantined).
		Set("last_movement_at", b.LastMovementAt).
		Set("updated_at", b.UpdatedAt).
		Where(keyEq(b.BalanceKey)).
		Where(squirrel.Eq{"version": expectedVersion})
	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	tag, err := querier.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("update balance: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperror.NewConcurrentModification("stock_balance", b.BalanceKey.String())
	}
	return nil
}

// ListBalances returns all per-lot balances for (warehouse, product),
// ordered by lot code.
func (r *LedgerRepo) ListBalances(ctx context.Context, companyID string, warehouseID, productID id.ID) ([]entity.StockBalance, error) {
	q := r.builder.Select(balanceColumns...).From(balancesTable).
		Where(squirrel.Eq{
			"company_id":   companyID,
			"warehouse_id": warehouseID,
			"product_id":   productID,
		}).
		OrderBy("lot_code")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var balances []entity.StockBalance
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &balances, sql, args...); err != nil {
		return nil, fmt.Errorf("select balances: %w", err)
	}
	return balances, nil
}

// ListMovementsForKey returns the full ordered history for one key.
func (r *LedgerRepo) ListMovementsForKey(ctx context.Context, key entity.BalanceKey) ([]entity.MovementRecord, error) {
	q := r.builder.Select(movementColumns...).From(movementsTable).
		Where(keyEq(key)).
		OrderBy("sequence")

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.MovementRecord
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// ListMovements returns the audit trail, sequence ascending.
func (r *LedgerRepo) ListMovements(ctx context.Context, companyID string, filter ledger.MovementFilter) ([]entity.MovementRecord, error) {
	q := r.builder.Select(movementColumns...).From(movementsTable).
		Where(squirrel.Eq{"company_id": companyID})

	if filter.WarehouseID != nil {
		q = q.Where(squirrel.Eq{"warehouse_id": *filter.WarehouseID})
	}
	if filter.ProductID != nil {
		q = q.Where(squirrel.Eq{"product_id": *filter.ProductID})
	}
	if filter.LotCode != nil {
		q = q.Where(squirrel.Eq{"lot_code": *filter.LotCode})
	}
	if filter.Kind != nil {
		q = q.Where(squirrel.Eq{"kind": *filter.Kind})
	}
	if filter.FromDate != nil {
		q = q.Where(squirrel.GtOrEq{"created_at": *filter.FromDate})
	}
	if filter.ToDate != nil {
		q = q.Where(squirrel.Lt{"created_at": *filter.ToDate})
	}

	q = q.OrderBy("sequence")
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	var movements []entity.MovementRecord
	querier := r.txManager.GetQuerier(ctx)
	if err := pgxscan.Select(ctx, querier, &movements, sql, args...); err != nil {
		return nil, fmt.Errorf("select movements: %w", err)
	}
	return movements, nil
}

// SetQuarantined flags a key after corruption was detected. It writes
// on the pool so the flag outlives the aborted unit that detected the
// drift. Callers must invoke it only after that unit has released its
// balance row lock; a call from inside the locked unit would block
// behind its own lock.
func (r *LedgerRepo) SetQuarantined(ctx context.Context, key entity.BalanceKey, quarantined bool) error {
	sql := `
		INSERT INTO ledger_balances (
			company_id, warehouse_id, product_id, lot_code,
			on_hand, reserved, avg_cost, version, quarantined,
			last_movement_at, updated_at
		) VALUES ($1, $2, $3, $4, 0, 0, 0, 0, $5, now(), now())
		ON CONFLICT (company_id, warehouse_id, product_id, lot_code)
		DO UPDATE SET quarantined = $5, updated_at = now()
	`
	_, err := r.pool.Exec(ctx, sql, key.CompanyID, key.WarehouseID, key.ProductID, key.LotCode, quarantined)
	if err != nil {
		return fmt.Errorf("set quarantined: %w", err)
	}
	return nil
}

// Turnover aggregates receipts and expenses for a period from the
// cached before/after quantities, which give the signed delta
// uniformly for all kinds, adjustments included.
func (r *LedgerRepo) Turnover(ctx context.Context, companyID string, filter ledger.TurnoverFilter) (ledger.Turnover, error) {
	var result ledger.Turnover

	args := []any{companyID, filter.FromDate, filter.ToDate}
	conditions := "company_id = $1 AND created_at >= $2 AND created_at < $3"
	argIndex := 4

	if filter.WarehouseID != nil {
		conditions += fmt.Sprintf(" AND warehouse_id = $%d", argIndex)
		args = append(args, *filter.WarehouseID)
		result.WarehouseID = *filter.WarehouseID
		argIndex++
	}
	if filter.ProductID != nil {
		conditions += fmt.Sprintf(" AND product_id = $%d", argIndex)
		args = append(args, *filter.ProductID)
		result.ProductID = *filter.ProductID
	}

	sql := fmt.Sprintf(`
		SELECT
			COALESCE(SUM(CASE WHEN quantity_after > quantity_before THEN quantity_after - quantity_before ELSE 0 END), 0) AS receipt,
			COALESCE(SUM(CASE WHEN quantity_before > quantity_after THEN quantity_before - quantity_after ELSE 0 END), 0) AS expense
		FROM ledger_movements
		WHERE %s
	`, conditions)

	openingArgs := []any{companyID, filter.FromDate}
	openingConditions := "company_id = $1 AND created_at < $2"
	argIndex = 3

	if filter.WarehouseID != nil {
		openingConditions += fmt.Sprintf(" AND warehouse_id = $%d", argIndex)
		openingArgs = append(openingArgs, *filter.WarehouseID)
		argIndex++
	}
	if filter.ProductID != nil {
		openingConditions += fmt.Sprintf(" AND product_id = $%d", argIndex)
		openingArgs = append(openingArgs, *filter.ProductID)
	}

	openingSQL := fmt.Sprintf(`
		SELECT COALESCE(SUM(quantity_after - quantity_before), 0)
		FROM ledger_movements
		WHERE %s
	`, openingConditions)

	// Period sums and the opening balance must read one snapshot, or a
	// movement committed between the two queries skews the closing
	// balance.
	err := r.txManager.ReadOnly(ctx, func(ctx context.Context) error {
		querier := r.txManager.GetQuerier(ctx)

		var receiptScaled, expenseScaled int64
		err := querier.QueryRow(ctx, sql, args...).Scan(&receiptScaled, &expenseScaled)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("calculate turnover: %w", err)
		}
		result.Receipt = types.NewQuantityFromInt64Scaled(receiptScaled)
		result.Expense = types.NewQuantityFromInt64Scaled(expenseScaled)

		var openingScaled int64
		err = querier.QueryRow(ctx, openingSQL, openingArgs...).Scan(&openingScaled)
		if err != nil && err != pgx.ErrNoRows {
			return fmt.Errorf("calculate opening balance: %w", err)
		}
		result.OpeningBalance = types.NewQuantityFromInt64Scaled(openingScaled)
		return nil
	})
	if err != nil {
		return result, err
	}
	result.ClosingBalance = result.OpeningBalance + result.Receipt - result.Expense

	return result, nil
}

func keyEq(key entity.BalanceKey) squirrel.Eq {
	return squirrel.Eq{
		"company_id":   key.CompanyID,
		"warehouse_id": key.WarehouseID,
		"product_id":   key.ProductID,
		"lot_code":     key.LotCode,
	}
}
