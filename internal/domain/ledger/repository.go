// Package ledger provides the inventory movement ledger: an append-only
// log of stock-affecting events per (company, warehouse, product, lot)
// key, the balance projection derived from it, and the lot-fulfillment
// engine built on top.
package ledger

import (
	"context"
	"time"

	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

// Scope carries the explicit tenant and caller identity for every
// engine operation. Never read from ambient context.
type Scope struct {
	CompanyID string
	ActorID   string
}

// WarehouseRef identifies the warehouse a movement touches.
// The warehouse catalog itself is an external collaborator.
type WarehouseRef struct {
	ID   id.ID
	Name string
}

// ProductRef carries the product configuration the engine needs.
// The product catalog itself is an external collaborator.
type ProductRef struct {
	ID             id.ID
	SKU            string
	BaseUnit       string
	LotTracked     bool
	ExpiryRequired bool
}

// Store is the append-only ledger storage plus the balance projection.
//
// Append-only discipline: movements are never updated or deleted.
// Balance rows are versioned; UpsertBalance with a stale expected
// version must fail so concurrent writers on the same key serialize.
type Store interface {
	// AppendMovements durably appends movements, assigning each a
	// per-company monotonic sequence. Must be called inside the same
	// transaction as the balance upserts it belongs with.
	AppendMovements(ctx context.Context, movements []entity.MovementRecord) ([]entity.MovementRecord, error)

	// GetBalance returns the balance for a key, zero-valued when the
	// key has no movements yet.
	GetBalance(ctx context.Context, key entity.BalanceKey) (entity.StockBalance, error)

	// GetBalanceForUpdate returns the balance with a pessimistic lock
	// where the backend supports one. Implementations without row
	// locks return the current version for optimistic commit.
	GetBalanceForUpdate(ctx context.Context, key entity.BalanceKey) (entity.StockBalance, error)

	// UpsertBalance writes the projected balance. expectedVersion is
	// the version read before projecting; a mismatch fails with
	// CONCURRENT_MODIFICATION and must abort the whole unit.
	UpsertBalance(ctx context.Context, balance entity.StockBalance, expectedVersion int64) error

	// ListBalances returns all per-lot balances for (warehouse, product),
	// ordered by lot code.
	ListBalances(ctx context.Context, companyID string, warehouseID, productID id.ID) ([]entity.StockBalance, error)

	// ListMovementsForKey returns the full ordered history for one key,
	// sequence ascending. Used by rebuild and reconciliation.
	ListMovementsForKey(ctx context.Context, key entity.BalanceKey) ([]entity.MovementRecord, error)

	// ListMovements returns the audit trail, sequence ascending.
	ListMovements(ctx context.Context, companyID string, filter MovementFilter) ([]entity.MovementRecord, error)

	// SetQuarantined flags a key after corruption was detected.
	// Quarantined keys reject further mutation until reconciled.
	SetQuarantined(ctx context.Context, key entity.BalanceKey, quarantined bool) error

	// Turnover aggregates receipts and expenses for a period.
	Turnover(ctx context.Context, companyID string, filter TurnoverFilter) (Turnover, error)
}

// FolioSequencer generates human-readable movement folios
// (e.g. FUL-2026-00042). One folio covers one commit unit.
type FolioSequencer interface {
	NextFolio(ctx context.Context, companyID, prefix string, period time.Time) (string, error)
}

// AuditRecorder records adjustment audit entries (reason, actor,
// before/after snapshot). Optional; a nil recorder skips auditing.
type AuditRecorder interface {
	RecordAdjustment(ctx context.Context, entry AdjustmentAudit) error
}

// AdjustmentAudit is the audit payload for a physical-count adjustment.
type AdjustmentAudit struct {
	MovementID id.ID
	Key        entity.BalanceKey
	Before     types.Quantity
	After      types.Quantity
	Reason     string
	ActorID    string
	OccurredAt time.Time
}

// MovementFilter filters the movement audit trail.
type MovementFilter struct {
	WarehouseID *id.ID
	ProductID   *id.ID
	LotCode     *string
	Kind        *entity.MovementKind
	FromDate    *time.Time
	ToDate      *time.Time
	Limit       int
	Offset      int
}

// TurnoverFilter scopes a turnover report.
type TurnoverFilter struct {
	WarehouseID *id.ID
	ProductID   *id.ID
	FromDate    time.Time
	ToDate      time.Time
}

// Turnover represents receipt/expense totals for a period.
type Turnover struct {
	WarehouseID    id.ID          `json:"warehouseId,omitempty"`
	ProductID      id.ID          `json:"productId,omitempty"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	Receipt        types.Quantity `json:"receipt"`
	Expense        types.Quantity `json:"expense"`
	ClosingBalance types.Quantity `json:"closingBalance"`
}
