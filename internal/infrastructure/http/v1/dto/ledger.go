package dto

import (
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/types"
	"kardex/internal/domain/ledger"
)

// WarehouseRefRequest identifies a warehouse in mutation requests.
type WarehouseRefRequest struct {
	ID   string `json:"id" binding:"required"`
	Name string `json:"name"`
}

// ProductRefRequest carries product configuration in mutation requests.
// The product catalog lives outside this service, so the caller is the
// source of truth for tracking flags.
type ProductRefRequest struct {
	ID             string `json:"id" binding:"required"`
	SKU            string `json:"sku"`
	BaseUnit       string `json:"baseUnit"`
	LotTracked     bool   `json:"lotTracked"`
	ExpiryRequired bool   `json:"expiryRequired"`
}

// ToWarehouseRef converts the request to the domain value.
func (w WarehouseRefRequest) ToWarehouseRef() (ledger.WarehouseRef, error) {
	parsed, err := id.Parse(w.ID)
	if err != nil {
		return ledger.WarehouseRef{}, apperror.NewValidation("invalid warehouse id format")
	}
	return ledger.WarehouseRef{ID: parsed, Name: w.Name}, nil
}

// ToProductRef converts the request to the domain value.
func (p ProductRefRequest) ToProductRef() (ledger.ProductRef, error) {
	parsed, err := id.Parse(p.ID)
	if err != nil {
		return ledger.ProductRef{}, apperror.NewValidation("invalid product id format")
	}
	return ledger.ProductRef{
		ID:             parsed,
		SKU:            p.SKU,
		BaseUnit:       p.BaseUnit,
		LotTracked:     p.LotTracked,
		ExpiryRequired: p.ExpiryRequired,
	}, nil
}

// FulfillRequest asks for quantity drawn in policy order.
type FulfillRequest struct {
	Warehouse WarehouseRefRequest `json:"warehouse" binding:"required"`
	Product   ProductRefRequest   `json:"product" binding:"required"`
	Quantity  types.Quantity      `json:"quantity" binding:"required"`
	Kind      string              `json:"kind"`
	Policy    string              `json:"policy" binding:"required"`
	Reference string              `json:"reference"`
}

// ReceiveRequest records a purchase receipt in purchase units.
type ReceiveRequest struct {
	Warehouse       WarehouseRefRequest `json:"warehouse" binding:"required"`
	Product         ProductRefRequest   `json:"product" binding:"required"`
	PurchaseQty     types.Quantity      `json:"purchaseQty" binding:"required"`
	UnitsPerPackage types.Quantity      `json:"unitsPerPackage" binding:"required"`
	TotalCost       types.Money         `json:"totalCost"`
	LotCode         string              `json:"lotCode"`
	ExpiryDate      *time.Time          `json:"expiryDate"`
	Reference       string              `json:"reference"`
}

// InboundRequest records a generic increasing movement in base units.
type InboundRequest struct {
	Warehouse  WarehouseRefRequest `json:"warehouse" binding:"required"`
	Product    ProductRefRequest   `json:"product" binding:"required"`
	Quantity   types.Quantity      `json:"quantity" binding:"required"`
	UnitCost   types.Money         `json:"unitCost"`
	Kind       string              `json:"kind" binding:"required"`
	LotCode    string              `json:"lotCode"`
	ExpiryDate *time.Time          `json:"expiryDate"`
	Reference  string              `json:"reference"`
}

// WithdrawRequest records a decreasing movement against a named lot.
type WithdrawRequest struct {
	Warehouse WarehouseRefRequest `json:"warehouse" binding:"required"`
	Product   ProductRefRequest   `json:"product" binding:"required"`
	LotCode   string              `json:"lotCode"`
	Quantity  types.Quantity      `json:"quantity" binding:"required"`
	Kind      string              `json:"kind" binding:"required"`
	Reference string              `json:"reference"`
}

// SupplierReturnRequest sends stock from a named lot back to the supplier.
type SupplierReturnRequest struct {
	Warehouse WarehouseRefRequest `json:"warehouse" binding:"required"`
	Product   ProductRefRequest   `json:"product" binding:"required"`
	LotCode   string              `json:"lotCode"`
	Quantity  types.Quantity      `json:"quantity" binding:"required"`
	Reference string              `json:"reference"`
}

// CustomerReturnRequest restocks goods a customer sent back.
type CustomerReturnRequest struct {
	Warehouse  WarehouseRefRequest `json:"warehouse" binding:"required"`
	Product    ProductRefRequest   `json:"product" binding:"required"`
	Quantity   types.Quantity      `json:"quantity" binding:"required"`
	UnitCost   types.Money         `json:"unitCost"`
	LotCode    string              `json:"lotCode"`
	ExpiryDate *time.Time          `json:"expiryDate"`
	Reference  string              `json:"reference"`
}

// AdjustRequest sets the absolute on-hand quantity from a count.
type AdjustRequest struct {
	Warehouse WarehouseRefRequest `json:"warehouse" binding:"required"`
	Product   ProductRefRequest   `json:"product" binding:"required"`
	LotCode   string              `json:"lotCode"`
	Quantity  types.Quantity      `json:"quantity"`
	UnitCost  types.Money         `json:"unitCost"`
	Reason    string              `json:"reason" binding:"required"`
	Reference string              `json:"reference"`
}

// TransferRequest moves stock between two warehouses atomically.
type TransferRequest struct {
	Source    WarehouseRefRequest `json:"source" binding:"required"`
	Dest      WarehouseRefRequest `json:"dest" binding:"required"`
	Product   ProductRefRequest   `json:"product" binding:"required"`
	LotCode   string              `json:"lotCode"`
	Quantity  types.Quantity      `json:"quantity" binding:"required"`
	Reference string              `json:"reference"`
}

// RebuildRequest replays one key and reconciles it.
type RebuildRequest struct {
	WarehouseID string `json:"warehouseId" binding:"required"`
	ProductID   string `json:"productId" binding:"required"`
	LotCode     string `json:"lotCode"`
}

// MovementResponse represents a committed movement.
type MovementResponse struct {
	ID             string         `json:"id"`
	Sequence       int64          `json:"sequence"`
	Folio          string         `json:"folio"`
	WarehouseID    string         `json:"warehouseId"`
	WarehouseName  string         `json:"warehouseName,omitempty"`
	ProductID      string         `json:"productId"`
	SKU            string         `json:"sku,omitempty"`
	Kind           string         `json:"kind"`
	Quantity       types.Quantity `json:"quantity"`
	QuantityBefore types.Quantity `json:"quantityBefore"`
	QuantityAfter  types.Quantity `json:"quantityAfter"`
	UnitCost       types.Money    `json:"unitCost"`
	TotalCost      types.Money    `json:"totalCost"`
	LotCode        string         `json:"lotCode,omitempty"`
	ExpiryDate     *time.Time     `json:"expiryDate,omitempty"`
	ReceivedAt     *time.Time     `json:"receivedAt,omitempty"`
	Reference      string         `json:"reference,omitempty"`
	Reason         string         `json:"reason,omitempty"`
	ActorID        string         `json:"actorId,omitempty"`
	CreatedAt      time.Time      `json:"createdAt"`
}

// FromMovement converts the entity to a response DTO.
func FromMovement(m entity.MovementRecord) MovementResponse {
	return MovementResponse{
		ID:             m.ID.String(),
		Sequence:       m.Sequence,
		Folio:          m.Folio,
		WarehouseID:    m.WarehouseID.String(),
		WarehouseName:  m.WarehouseName,
		ProductID:      m.ProductID.String(),
		SKU:            m.SKU,
		Kind:           string(m.Kind),
		Quantity:       m.Quantity,
		QuantityBefore: m.QuantityBefore,
		QuantityAfter:  m.QuantityAfter,
		UnitCost:       m.UnitCost,
		TotalCost:      m.TotalCost,
		LotCode:        m.LotCode,
		ExpiryDate:     m.ExpiryDate,
		ReceivedAt:     m.ReceivedAt,
		Reference:      m.Reference,
		Reason:         m.Reason,
		ActorID:        m.ActorID,
		CreatedAt:      m.CreatedAt,
	}
}

// MovementListResponse represents a list of movements.
type MovementListResponse struct {
	Items      []MovementResponse `json:"items"`
	TotalCount int                `json:"totalCount,omitempty"`
}

// FromMovements converts entities to a list response.
func FromMovements(movements []entity.MovementRecord) MovementListResponse {
	items := make([]MovementResponse, len(movements))
	for i, m := range movements {
		items[i] = FromMovement(m)
	}
	return MovementListResponse{Items: items, TotalCount: len(items)}
}

// BalanceResponse represents one per-lot stock balance.
type BalanceResponse struct {
	WarehouseID    string         `json:"warehouseId"`
	ProductID      string         `json:"productId"`
	LotCode        string         `json:"lotCode,omitempty"`
	OnHand         types.Quantity `json:"onHand"`
	Reserved       types.Quantity `json:"reserved"`
	Available      types.Quantity `json:"available"`
	AvgCost        types.Money    `json:"avgCost"`
	TotalValue     types.Money    `json:"totalValue"`
	ExpiryDate     *time.Time     `json:"expiryDate,omitempty"`
	ReceivedAt     *time.Time     `json:"receivedAt,omitempty"`
	Quarantined    bool           `json:"quarantined,omitempty"`
	LastMovementAt *time.Time     `json:"lastMovementAt,omitempty"`
}

// FromBalance converts the entity to a response DTO.
func FromBalance(b entity.StockBalance) BalanceResponse {
	var lastMovement *time.Time
	if !b.LastMovementAt.IsZero() {
		val := b.LastMovementAt
		lastMovement = &val
	}

	return BalanceResponse{
		WarehouseID:    b.WarehouseID.String(),
		ProductID:      b.ProductID.String(),
		LotCode:        b.LotCode,
		OnHand:         b.OnHand,
		Reserved:       b.Reserved,
		Available:      b.Available(),
		AvgCost:        b.AvgCost,
		TotalValue:     b.TotalValue(),
		ExpiryDate:     b.ExpiryDate,
		ReceivedAt:     b.ReceivedAt,
		Quarantined:    b.Quarantined,
		LastMovementAt: lastMovement,
	}
}

// BalanceListResponse represents a list of balances.
type BalanceListResponse struct {
	Items []BalanceResponse `json:"items"`
}

// TurnoverResponse represents a turnover report.
type TurnoverResponse struct {
	WarehouseID    string         `json:"warehouseId,omitempty"`
	ProductID      string         `json:"productId,omitempty"`
	OpeningBalance types.Quantity `json:"openingBalance"`
	Receipt        types.Quantity `json:"receipt"`
	Expense        types.Quantity `json:"expense"`
	ClosingBalance types.Quantity `json:"closingBalance"`
}

// FromTurnover converts the domain turnover to a response DTO.
func FromTurnover(t ledger.Turnover) TurnoverResponse {
	resp := TurnoverResponse{
		OpeningBalance: t.OpeningBalance,
		Receipt:        t.Receipt,
		Expense:        t.Expense,
		ClosingBalance: t.ClosingBalance,
	}
	if !id.IsNil(t.WarehouseID) {
		resp.WarehouseID = t.WarehouseID.String()
	}
	if !id.IsNil(t.ProductID) {
		resp.ProductID = t.ProductID.String()
	}
	return resp
}

// TransferResponse carries both halves of a committed transfer.
type TransferResponse struct {
	Out MovementResponse `json:"out"`
	In  MovementResponse `json:"in"`
}
