package ledger

import (
	"fmt"
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/domain/uom"
)

// Apply folds one movement into a balance: the O(1) incremental update
// run on every commit. Appending a movement and applying it must always
// agree with a full replay over the key's history.
func Apply(balance entity.StockBalance, m entity.MovementRecord) (entity.StockBalance, error) {
	if balance.BalanceKey != m.Key() {
		return balance, apperror.NewInternal(
			fmt.Errorf("movement %s folded into wrong key %s", m.Key(), balance.BalanceKey))
	}

	switch m.Kind.Effect() {
	case entity.EffectIncrease:
		prevOnHand := balance.OnHand
		balance.OnHand += m.Quantity
		// Inbound movements without a cost inherit the running average
		// instead of dragging it toward zero.
		if !m.UnitCost.IsZero() {
			balance.AvgCost = uom.WeightedAverageCost(prevOnHand, balance.AvgCost, m.Quantity, m.UnitCost)
		}
		if balance.ReceivedAt == nil && m.ReceivedAt != nil {
			t := *m.ReceivedAt
			balance.ReceivedAt = &t
		}
		if balance.ExpiryDate == nil && m.ExpiryDate != nil {
			t := *m.ExpiryDate
			balance.ExpiryDate = &t
		}

	case entity.EffectDecrease:
		if m.Quantity > balance.OnHand {
			// Committed data should never overdraw a lot; a negative
			// fold means the history itself is corrupt.
			return balance, apperror.NewCorruptionDetected(
				m.Key().String(),
				(balance.OnHand - m.Quantity).String(),
				balance.OnHand.String(),
			)
		}
		balance.OnHand -= m.Quantity
		// Outbound consumes at the lot's recorded cost; the average is untouched.

	case entity.EffectSet:
		balance.OnHand = m.Quantity
		if !m.UnitCost.IsZero() {
			balance.AvgCost = m.UnitCost
		}
	}

	balance.Version++
	balance.LastMovementAt = m.CreatedAt
	balance.UpdatedAt = time.Now().UTC()
	return balance, nil
}

// Rebuild replays the full ordered history for one key from scratch.
// It is the source of truth: the incrementally maintained balance is an
// optimization that must reconcile to this result.
func Rebuild(key entity.BalanceKey, movements []entity.MovementRecord) (entity.StockBalance, error) {
	balance := entity.StockBalance{BalanceKey: key}

	var lastSeq int64 = -1
	for i := range movements {
		m := &movements[i]
		if m.Sequence < lastSeq {
			return balance, apperror.NewInternal(
				fmt.Errorf("replay out of order at sequence %d for key %s", m.Sequence, key))
		}
		lastSeq = m.Sequence

		next, err := Apply(balance, *m)
		if err != nil {
			return balance, err
		}
		balance = next
	}

	return balance, nil
}

// Reconciles compares a replayed balance against the stored projection.
// On-hand and average cost must match exactly.
func Reconciles(replayed, stored entity.StockBalance) bool {
	if replayed.OnHand != stored.OnHand {
		return false
	}
	return replayed.AvgCost.Equal(stored.AvgCost)
}
