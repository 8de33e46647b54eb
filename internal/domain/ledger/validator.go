package ledger

import (
	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
)

// ValidateMovement enforces the commit invariants for one prospective
// movement against the most recently committed balance for its key.
// It must run inside the same atomic unit as the append, against a
// balance read under the store's serialization discipline, so that two
// movements that separately look valid cannot jointly overdraw.
func ValidateMovement(m *entity.MovementRecord, product ProductRef, balance *entity.StockBalance) error {
	if m.CompanyID == "" {
		return apperror.NewMissingRequiredField("companyId")
	}
	if id.IsNil(m.WarehouseID) {
		return apperror.NewMissingRequiredField("warehouseId")
	}
	if id.IsNil(m.ProductID) {
		return apperror.NewMissingRequiredField("productId")
	}
	if !m.Kind.IsValid() {
		return apperror.NewValidation("unknown movement kind").
			WithDetail("kind", string(m.Kind))
	}

	switch m.Kind.Effect() {
	case entity.EffectSet:
		// Physical counts set the new quantity directly; it may be
		// zero but never negative.
		if m.Quantity.IsNegative() {
			return apperror.NewValidation("adjustment quantity must not be negative").
				WithDetail("quantity", m.Quantity.String())
		}
		if m.Reason == "" {
			return apperror.NewMissingRequiredField("reason")
		}
	default:
		if !m.Quantity.IsPositive() {
			return apperror.NewValidation("quantity must be positive").
				WithDetail("quantity", m.Quantity.String())
		}
	}

	if product.LotTracked && m.LotCode == "" {
		return apperror.NewMissingRequiredField("lotCode")
	}
	if product.ExpiryRequired && m.Kind.Effect() == entity.EffectIncrease && m.ExpiryDate == nil {
		return apperror.NewMissingRequiredField("expiryDate")
	}

	if balance != nil {
		if balance.Quarantined {
			return apperror.NewKeyQuarantined(balance.BalanceKey.String())
		}
		if m.Kind.Effect() == entity.EffectDecrease && m.Quantity > balance.OnHand {
			shortfall := m.Quantity - balance.OnHand
			return apperror.NewInsufficientStock(
				m.ProductID.String(),
				m.Quantity.String(),
				balance.OnHand.String(),
				shortfall.String(),
			)
		}
	}

	return nil
}
