// Package uom provides unit conversion and costing between a product's
// purchase unit (case, box) and its base unit (piece, kilogram).
package uom

import (
	"kardex/internal/core/apperror"
	"kardex/internal/core/types"
)

// ToBaseUnits converts a purchase-unit quantity into base units via the
// units-per-package factor. Fails with INVALID_CONVERSION when the factor
// is not positive.
func ToBaseUnits(purchaseQty, unitsPerPackage types.Quantity) (types.Quantity, error) {
	if !unitsPerPackage.IsPositive() {
		return 0, apperror.NewInvalidConversion(unitsPerPackage.String())
	}
	base := purchaseQty.Decimal().Mul(unitsPerPackage.Decimal())
	return types.NewQuantityFromDecimal(base), nil
}

// CostPerBaseUnit derives the base-unit cost from a total cost and a
// purchase quantity. Fails with DIVISION_BY_ZERO when the computed base
// quantity is zero, and with INVALID_CONVERSION on a bad factor.
func CostPerBaseUnit(totalCost types.Money, purchaseQty, unitsPerPackage types.Quantity) (types.Money, error) {
	baseQty, err := ToBaseUnits(purchaseQty, unitsPerPackage)
	if err != nil {
		return types.ZeroMoney(), err
	}
	if baseQty.IsZero() {
		return types.ZeroMoney(), apperror.NewDivisionByZero()
	}
	return totalCost.Div(baseQty.Decimal()), nil
}

// WeightedAverageCost recomputes the running average cost after an
// inbound movement:
//
//	new = (onHand*avgCost + inQty*inCost) / (onHand + inQty)
//
// Returns zero when the combined quantity is not positive, which only
// happens on corrupted input (negative on-hand).
func WeightedAverageCost(onHand types.Quantity, avgCost types.Money, inQty types.Quantity, inCost types.Money) types.Money {
	total := onHand + inQty
	if !total.IsPositive() {
		return types.ZeroMoney()
	}
	value := onHand.Decimal().Mul(avgCost).Add(inQty.Decimal().Mul(inCost))
	return value.Div(total.Decimal())
}
