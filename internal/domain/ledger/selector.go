package ledger

import (
	"sort"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/types"
)

// Policy selects the order in which lots are drawn down.
type Policy string

const (
	// PolicyFIFO consumes the oldest-received stock first.
	PolicyFIFO Policy = "fifo"
	// PolicyFEFO consumes the stock closest to expiry first.
	// Lots without an expiry sort after all lots that have one.
	PolicyFEFO Policy = "fefo"
)

// IsValid reports whether p is a known policy.
func (p Policy) IsValid() bool {
	return p == PolicyFIFO || p == PolicyFEFO
}

// Allocation is one (lot, quantity, cost) slice of a plan.
type Allocation struct {
	LotCode  string         `json:"lotCode,omitempty"`
	Quantity types.Quantity `json:"quantity"`
	UnitCost types.Money    `json:"unitCost"`
}

// AllocationPlan is the concrete answer to "which lots satisfy this
// request". Producing it performs no writes and reserves nothing.
type AllocationPlan struct {
	Policy      Policy         `json:"policy"`
	Requested   types.Quantity `json:"requested"`
	Allocated   types.Quantity `json:"allocated"`
	Allocations []Allocation   `json:"allocations"`
}

// SelectLots walks the available lots for one (warehouse, product) in
// policy order and returns a plan summing to the requested quantity,
// or INSUFFICIENT_STOCK carrying the shortfall.
//
// A product without lot tracking has a single balance row with the
// empty lot code, and the walk degenerates to one take.
func SelectLots(balances []entity.StockBalance, requested types.Quantity, policy Policy) (AllocationPlan, error) {
	plan := AllocationPlan{Policy: policy, Requested: requested}
	if !requested.IsPositive() {
		return plan, apperror.NewValidation("requested quantity must be positive")
	}

	lots := make([]entity.StockBalance, 0, len(balances))
	for _, b := range balances {
		if b.Quarantined {
			continue
		}
		if b.Available().IsPositive() {
			lots = append(lots, b)
		}
	}
	orderLots(lots, policy)

	remaining := requested
	for i := range lots {
		if remaining.IsZero() {
			break
		}
		take := lots[i].Available().Min(remaining)
		plan.Allocations = append(plan.Allocations, Allocation{
			LotCode:  lots[i].LotCode,
			Quantity: take,
			UnitCost: lots[i].AvgCost,
		})
		plan.Allocated += take
		remaining -= take
	}

	if remaining.IsPositive() {
		var productID string
		if len(balances) > 0 {
			productID = balances[0].ProductID.String()
		}
		return plan, apperror.NewInsufficientStock(
			productID,
			requested.String(),
			plan.Allocated.String(),
			remaining.String(),
		)
	}

	return plan, nil
}

// orderLots sorts lots in consumption order for the policy.
// Ties on the sort key break by lot code ascending for determinism.
func orderLots(lots []entity.StockBalance, policy Policy) {
	switch policy {
	case PolicyFEFO:
		sort.Slice(lots, func(i, j int) bool {
			ei, ej := lots[i].ExpiryDate, lots[j].ExpiryDate
			switch {
			case ei == nil && ej == nil:
				return lots[i].LotCode < lots[j].LotCode
			case ei == nil:
				return false
			case ej == nil:
				return true
			case !ei.Equal(*ej):
				return ei.Before(*ej)
			}
			return lots[i].LotCode < lots[j].LotCode
		})
	default: // FIFO
		sort.Slice(lots, func(i, j int) bool {
			ri, rj := lots[i].ReceivedAt, lots[j].ReceivedAt
			switch {
			case ri == nil && rj == nil:
				return lots[i].LotCode < lots[j].LotCode
			case ri == nil:
				return true
			case rj == nil:
				return false
			case !ri.Equal(*rj):
				return ri.Before(*rj)
			}
			return lots[i].LotCode < lots[j].LotCode
		})
	}
}
