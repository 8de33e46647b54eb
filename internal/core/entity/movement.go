// Package entity provides the core ledger entities.
package entity

import (
	"time"

	"kardex/internal/core/id"
	"kardex/internal/core/types"
)

// MovementKind classifies a movement record.
// The set is closed: every kind maps statically to an effect class.
type MovementKind string

const (
	KindInboundGeneric        MovementKind = "inbound-generic"
	KindOutboundGeneric       MovementKind = "outbound-generic"
	KindAdjustment            MovementKind = "adjustment"
	KindPurchaseReceipt       MovementKind = "purchase-receipt"
	KindPurchaseReturn        MovementKind = "purchase-return"
	KindSaleFulfillment       MovementKind = "sale-fulfillment"
	KindSaleReturn            MovementKind = "sale-return"
	KindTransferOut           MovementKind = "transfer-out"
	KindTransferIn            MovementKind = "transfer-in"
	KindProductionConsumption MovementKind = "production-consumption"
	KindProductionOutput      MovementKind = "production-output"
)

// Effect defines how a movement kind changes the on-hand balance.
type Effect int

const (
	// EffectIncrease adds the quantity to on-hand.
	EffectIncrease Effect = iota
	// EffectDecrease subtracts the quantity from on-hand.
	EffectDecrease
	// EffectSet replaces on-hand with the quantity (physical count).
	EffectSet
)

var kindEffects = map[MovementKind]Effect{
	KindInboundGeneric:        EffectIncrease,
	KindOutboundGeneric:       EffectDecrease,
	KindAdjustment:            EffectSet,
	KindPurchaseReceipt:       EffectIncrease,
	KindPurchaseReturn:        EffectDecrease,
	KindSaleFulfillment:       EffectDecrease,
	KindSaleReturn:            EffectIncrease,
	KindTransferOut:           EffectDecrease,
	KindTransferIn:            EffectIncrease,
	KindProductionConsumption: EffectDecrease,
	KindProductionOutput:      EffectIncrease,
}

// Effect returns the effect class for the kind.
func (k MovementKind) Effect() Effect {
	return kindEffects[k]
}

// IsValid reports whether k belongs to the closed kind set.
func (k MovementKind) IsValid() bool {
	_, ok := kindEffects[k]
	return ok
}

// OutboundKinds are the kinds the fulfillment path may produce.
func OutboundKinds() []MovementKind {
	return []MovementKind{
		KindOutboundGeneric,
		KindSaleFulfillment,
		KindPurchaseReturn,
		KindTransferOut,
		KindProductionConsumption,
	}
}

// MovementRecord is the immutable event appended to the ledger.
// Records are never updated or deleted; corrections are new
// compensating records.
type MovementRecord struct {
	// ID is unique identifier for this movement (UUIDv7)
	ID id.ID `db:"id" json:"id"`

	// Sequence is the per-company monotonic commit order,
	// assigned by the store on append
	Sequence int64 `db:"sequence" json:"sequence"`

	// Folio is the human-readable reference (e.g. FUL-2026-00042)
	Folio string `db:"folio" json:"folio"`

	// CompanyID partitions the ledger logically
	CompanyID string `db:"company_id" json:"companyId"`

	// Location
	WarehouseID   id.ID  `db:"warehouse_id" json:"warehouseId"`
	WarehouseName string `db:"warehouse_name" json:"warehouseName,omitempty"`

	// Product
	ProductID id.ID  `db:"product_id" json:"productId"`
	SKU       string `db:"sku" json:"sku,omitempty"`
	BaseUnit  string `db:"base_unit" json:"baseUnit,omitempty"`

	// Classification
	Kind MovementKind `db:"kind" json:"kind"`

	// Quantity in base units. Magnitude for increase/decrease kinds,
	// the new absolute quantity for adjustment.
	Quantity types.Quantity `db:"quantity" json:"quantity"`

	// Cached balances for this key at commit time. Convenience values;
	// the authoritative state is always the fold over all records.
	QuantityBefore types.Quantity `db:"quantity_before" json:"quantityBefore"`
	QuantityAfter  types.Quantity `db:"quantity_after" json:"quantityAfter"`

	// Costing. Inbound and output movements carry the acquisition cost;
	// outbound movements inherit the cost of the lot(s) consumed.
	UnitCost  types.Money `db:"unit_cost" json:"unitCost"`
	TotalCost types.Money `db:"total_cost" json:"totalCost"`

	// Lot identity, empty for untracked products
	LotCode    string     `db:"lot_code" json:"lotCode,omitempty"`
	SerialCode string     `db:"serial_code" json:"serialCode,omitempty"`
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`

	// ReceivedAt is the lot receipt time, used for FIFO ordering
	ReceivedAt *time.Time `db:"received_at" json:"receivedAt,omitempty"`

	// Traceability to the originating business document.
	// Informational only; never used by engine invariants.
	Reference string `db:"reference" json:"reference,omitempty"`

	// Reason is mandatory for adjustments
	Reason string `db:"reason" json:"reason,omitempty"`

	// Actor and timestamp
	ActorID   string    `db:"actor_id" json:"actorId"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// SignedQuantity returns the on-hand delta this movement applies.
// Meaningless for EffectSet kinds, which replace the balance outright.
func (m *MovementRecord) SignedQuantity() types.Quantity {
	if m.Kind.Effect() == EffectDecrease {
		return m.Quantity.Neg()
	}
	return m.Quantity
}

// Key returns the balance key this movement belongs to.
func (m *MovementRecord) Key() BalanceKey {
	return BalanceKey{
		CompanyID:   m.CompanyID,
		WarehouseID: m.WarehouseID,
		ProductID:   m.ProductID,
		LotCode:     m.LotCode,
	}
}

// BalanceKey identifies one (company, warehouse, product, lot) balance.
// Untracked products use the empty lot code.
type BalanceKey struct {
	CompanyID   string `db:"company_id" json:"companyId"`
	WarehouseID id.ID  `db:"warehouse_id" json:"warehouseId"`
	ProductID   id.ID  `db:"product_id" json:"productId"`
	LotCode     string `db:"lot_code" json:"lotCode,omitempty"`
}

// String renders the key for error details and log fields.
func (k BalanceKey) String() string {
	s := k.CompanyID + "/" + k.WarehouseID.String() + "/" + k.ProductID.String()
	if k.LotCode != "" {
		s += "/" + k.LotCode
	}
	return s
}

// StockBalance is the materialized projection for one balance key.
// It is an optimization over the fold; full replay is the source of truth
// and must always reconcile with it.
type StockBalance struct {
	BalanceKey

	// OnHand is the signed sum of all movements for the key
	OnHand types.Quantity `db:"on_hand" json:"onHand"`

	// Reserved is earmarked by not-yet-fulfilled demand.
	// Maintained by callers; the engine only reads it.
	Reserved types.Quantity `db:"reserved" json:"reserved"`

	// AvgCost is the weighted-average unit cost, recomputed on every
	// inbound movement, untouched by outbound ones
	AvgCost types.Money `db:"avg_cost" json:"avgCost"`

	// Lot metadata carried for selection ordering
	ExpiryDate *time.Time `db:"expiry_date" json:"expiryDate,omitempty"`
	ReceivedAt *time.Time `db:"received_at" json:"receivedAt,omitempty"`

	// Version increments on every committed movement for the key.
	// Stale-version commits fail with CONCURRENT_MODIFICATION.
	Version int64 `db:"version" json:"version"`

	// Quarantined blocks mutation after corruption was detected
	Quarantined bool `db:"quarantined" json:"quarantined"`

	LastMovementAt time.Time `db:"last_movement_at" json:"lastMovementAt"`
	UpdatedAt      time.Time `db:"updated_at" json:"updatedAt"`
}

// Available returns on-hand minus reserved.
func (b *StockBalance) Available() types.Quantity {
	return b.OnHand - b.Reserved
}

// TotalValue returns on-hand valued at the average cost.
func (b *StockBalance) TotalValue() types.Money {
	return b.OnHand.Decimal().Mul(b.AvgCost)
}
