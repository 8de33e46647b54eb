package ledger

import (
	"context"
	"fmt"
	"sort"
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/core/tx"
	"kardex/internal/core/types"
	"kardex/internal/domain/uom"
	"kardex/pkg/logger"
)

// Folio prefixes per movement kind.
var folioPrefixes = map[entity.MovementKind]string{
	entity.KindInboundGeneric:        "INB",
	entity.KindOutboundGeneric:       "OUT",
	entity.KindAdjustment:            "ADJ",
	entity.KindPurchaseReceipt:       "REC",
	entity.KindPurchaseReturn:        "DEV",
	entity.KindSaleFulfillment:       "FUL",
	entity.KindSaleReturn:            "RET",
	entity.KindTransferOut:           "TRF",
	entity.KindTransferIn:            "TRF",
	entity.KindProductionConsumption: "CON",
	entity.KindProductionOutput:      "PRD",
}

// Service is the fulfillment orchestrator: the only mutating entry
// point into the ledger. One call to Fulfill, Receive, Inbound,
// Withdraw, Adjust or Transfer is one atomic unit — either every
// constituent movement commits and the balances reflect it, or none do.
type Service struct {
	store     Store
	txManager tx.Manager
	folios    FolioSequencer
	audit     AuditRecorder // optional
}

// NewService creates a new ledger service.
func NewService(store Store, txManager tx.Manager, folios FolioSequencer, audit AuditRecorder) *Service {
	return &Service{
		store:     store,
		txManager: txManager,
		folios:    folios,
		audit:     audit,
	}
}

// Fulfill turns "I need qty of product from warehouse" into committed
// outbound movements, drawing lots in policy order.
//
// Selection is a pure read and reserves nothing. The balances are
// re-checked under lock inside the commit unit; if a concurrent writer
// drained a selected lot in between, the whole fulfillment aborts with
// CONCURRENT_MODIFICATION and nothing is written. Callers retry.
func (s *Service) Fulfill(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	qty types.Quantity,
	kind entity.MovementKind,
	policy Policy,
	reference string,
) ([]entity.MovementRecord, error) {
	if kind.Effect() != entity.EffectDecrease || !kind.IsValid() {
		return nil, apperror.NewValidation("fulfillment kind must be a decreasing kind").
			WithDetail("kind", string(kind))
	}
	if !policy.IsValid() {
		return nil, apperror.NewValidation("unknown selection policy").
			WithDetail("policy", string(policy))
	}

	// Selecting: gather available lots and build the allocation plan.
	balances, err := s.store.ListBalances(ctx, scope.CompanyID, warehouse.ID, product.ID)
	if err != nil {
		return nil, fmt.Errorf("list balances: %w", err)
	}
	plan, err := SelectLots(balances, qty, policy)
	if err != nil {
		return nil, err
	}

	folio, err := s.nextFolio(ctx, scope, kind)
	if err != nil {
		return nil, err
	}

	var committed []entity.MovementRecord
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		staged := make([]entity.MovementRecord, 0, len(plan.Allocations))

		// Lock lots in lot-code order so concurrent fulfillments
		// against overlapping plans cannot deadlock.
		allocations := append([]Allocation(nil), plan.Allocations...)
		sort.Slice(allocations, func(i, j int) bool {
			return allocations[i].LotCode < allocations[j].LotCode
		})

		for _, alloc := range allocations {
			key := entity.BalanceKey{
				CompanyID:   scope.CompanyID,
				WarehouseID: warehouse.ID,
				ProductID:   product.ID,
				LotCode:     alloc.LotCode,
			}
			bal, err := s.store.GetBalanceForUpdate(ctx, key)
			if err != nil {
				return fmt.Errorf("lock balance %s: %w", key, err)
			}

			// Validating: the plan was computed without a reservation,
			// so the lot may have been drained since.
			if bal.Available() < alloc.Quantity {
				return apperror.NewConcurrentModification("stock_balance", key.String()).
					WithDetail("allocated", alloc.Quantity.String()).
					WithDetail("available", bal.Available().String())
			}

			m := entity.MovementRecord{
				ID:            id.New(),
				Folio:         folio,
				CompanyID:     scope.CompanyID,
				WarehouseID:   warehouse.ID,
				WarehouseName: warehouse.Name,
				ProductID:     product.ID,
				SKU:           product.SKU,
				BaseUnit:      product.BaseUnit,
				Kind:          kind,
				Quantity:      alloc.Quantity,
				// Outbound draws at the lot's recorded cost.
				UnitCost:       bal.AvgCost,
				TotalCost:      bal.AvgCost.Mul(alloc.Quantity.Decimal()),
				LotCode:        alloc.LotCode,
				ExpiryDate:     bal.ExpiryDate,
				Reference:      reference,
				ActorID:        scope.ActorID,
				CreatedAt:      now,
				QuantityBefore: bal.OnHand,
			}
			if err := ValidateMovement(&m, product, &bal); err != nil {
				return err
			}

			next, err := Apply(bal, m)
			if err != nil {
				return err
			}
			m.QuantityAfter = next.OnHand

			if err := s.store.UpsertBalance(ctx, next, bal.Version); err != nil {
				return err
			}
			staged = append(staged, m)
		}

		// Committing: all movements of the unit append together.
		appended, err := s.store.AppendMovements(ctx, staged)
		if err != nil {
			return fmt.Errorf("append movements: %w", err)
		}
		committed = appended
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "fulfillment committed",
		"folio", folio,
		"kind", kind,
		"product_id", product.ID,
		"warehouse_id", warehouse.ID,
		"quantity", qty,
		"lots", len(committed),
	)
	return committed, nil
}

// Receive converts a purchase-unit receipt to base units and cost, and
// commits one increasing purchase-receipt movement.
func (s *Service) Receive(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	purchaseQty, unitsPerPackage types.Quantity,
	totalCost types.Money,
	lotCode string,
	expiry *time.Time,
	reference string,
) (entity.MovementRecord, error) {
	baseQty, err := uom.ToBaseUnits(purchaseQty, unitsPerPackage)
	if err != nil {
		return entity.MovementRecord{}, err
	}
	unitCost, err := uom.CostPerBaseUnit(totalCost, purchaseQty, unitsPerPackage)
	if err != nil {
		return entity.MovementRecord{}, err
	}

	return s.commitInbound(ctx, scope, warehouse, product, baseQty, unitCost,
		entity.KindPurchaseReceipt, lotCode, expiry, reference)
}

// Inbound commits one generic increasing movement (production output,
// customer return, opening stock) at the supplied unit cost.
func (s *Service) Inbound(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	qty types.Quantity,
	unitCost types.Money,
	kind entity.MovementKind,
	lotCode string,
	expiry *time.Time,
	reference string,
) (entity.MovementRecord, error) {
	if kind.Effect() != entity.EffectIncrease || !kind.IsValid() {
		return entity.MovementRecord{}, apperror.NewValidation("inbound kind must be an increasing kind").
			WithDetail("kind", string(kind))
	}
	return s.commitInbound(ctx, scope, warehouse, product, qty, unitCost, kind, lotCode, expiry, reference)
}

func (s *Service) commitInbound(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	qty types.Quantity,
	unitCost types.Money,
	kind entity.MovementKind,
	lotCode string,
	expiry *time.Time,
	reference string,
) (entity.MovementRecord, error) {
	folio, err := s.nextFolio(ctx, scope, kind)
	if err != nil {
		return entity.MovementRecord{}, err
	}

	var committed entity.MovementRecord
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		key := entity.BalanceKey{
			CompanyID:   scope.CompanyID,
			WarehouseID: warehouse.ID,
			ProductID:   product.ID,
			LotCode:     lotCode,
		}
		bal, err := s.store.GetBalanceForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}

		m := entity.MovementRecord{
			ID:             id.New(),
			Folio:          folio,
			CompanyID:      scope.CompanyID,
			WarehouseID:    warehouse.ID,
			WarehouseName:  warehouse.Name,
			ProductID:      product.ID,
			SKU:            product.SKU,
			BaseUnit:       product.BaseUnit,
			Kind:           kind,
			Quantity:       qty,
			UnitCost:       unitCost,
			TotalCost:      unitCost.Mul(qty.Decimal()),
			LotCode:        lotCode,
			ExpiryDate:     expiry,
			ReceivedAt:     &now,
			Reference:      reference,
			ActorID:        scope.ActorID,
			CreatedAt:      now,
			QuantityBefore: bal.OnHand,
		}
		if err := ValidateMovement(&m, product, &bal); err != nil {
			return err
		}

		next, err := Apply(bal, m)
		if err != nil {
			return err
		}
		m.QuantityAfter = next.OnHand

		if err := s.store.UpsertBalance(ctx, next, bal.Version); err != nil {
			return err
		}
		appended, err := s.store.AppendMovements(ctx, []entity.MovementRecord{m})
		if err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		committed = appended[0]
		return nil
	})
	if err != nil {
		return entity.MovementRecord{}, err
	}

	logger.Info(ctx, "inbound committed",
		"folio", folio,
		"kind", kind,
		"product_id", product.ID,
		"warehouse_id", warehouse.ID,
		"quantity", qty,
		"unit_cost", unitCost,
	)
	return committed, nil
}

// Withdraw commits one decreasing movement against a specific lot
// (supplier return, spoilage write-off). Unlike Fulfill it does not
// select lots; the caller names the lot to draw from.
func (s *Service) Withdraw(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	lotCode string,
	qty types.Quantity,
	kind entity.MovementKind,
	reference string,
) (entity.MovementRecord, error) {
	if kind.Effect() != entity.EffectDecrease || !kind.IsValid() {
		return entity.MovementRecord{}, apperror.NewValidation("withdraw kind must be a decreasing kind").
			WithDetail("kind", string(kind))
	}

	folio, err := s.nextFolio(ctx, scope, kind)
	if err != nil {
		return entity.MovementRecord{}, err
	}

	var committed entity.MovementRecord
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		key := entity.BalanceKey{
			CompanyID:   scope.CompanyID,
			WarehouseID: warehouse.ID,
			ProductID:   product.ID,
			LotCode:     lotCode,
		}
		bal, err := s.store.GetBalanceForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}

		if bal.Available() < qty {
			shortfall := qty - bal.Available()
			return apperror.NewInsufficientStock(
				product.ID.String(),
				qty.String(),
				bal.Available().String(),
				shortfall.String(),
			)
		}

		m := entity.MovementRecord{
			ID:             id.New(),
			Folio:          folio,
			CompanyID:      scope.CompanyID,
			WarehouseID:    warehouse.ID,
			WarehouseName:  warehouse.Name,
			ProductID:      product.ID,
			SKU:            product.SKU,
			BaseUnit:       product.BaseUnit,
			Kind:           kind,
			Quantity:       qty,
			UnitCost:       bal.AvgCost,
			TotalCost:      bal.AvgCost.Mul(qty.Decimal()),
			LotCode:        lotCode,
			ExpiryDate:     bal.ExpiryDate,
			Reference:      reference,
			ActorID:        scope.ActorID,
			CreatedAt:      now,
			QuantityBefore: bal.OnHand,
		}
		if err := ValidateMovement(&m, product, &bal); err != nil {
			return err
		}

		next, err := Apply(bal, m)
		if err != nil {
			return err
		}
		m.QuantityAfter = next.OnHand

		if err := s.store.UpsertBalance(ctx, next, bal.Version); err != nil {
			return err
		}
		appended, err := s.store.AppendMovements(ctx, []entity.MovementRecord{m})
		if err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		committed = appended[0]
		return nil
	})
	if err != nil {
		return entity.MovementRecord{}, err
	}

	logger.Info(ctx, "withdrawal committed",
		"folio", folio,
		"kind", kind,
		"product_id", product.ID,
		"lot_code", lotCode,
		"quantity", qty,
	)
	return committed, nil
}

// Adjust commits one absolute-set movement from a physical count.
// Adjustments may increase or decrease and always succeed for valid
// input, but the reason is mandatory and the change is audited.
func (s *Service) Adjust(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	lotCode string,
	newQty types.Quantity,
	unitCost types.Money,
	reason string,
	reference string,
) (entity.MovementRecord, error) {
	folio, err := s.nextFolio(ctx, scope, entity.KindAdjustment)
	if err != nil {
		return entity.MovementRecord{}, err
	}

	var committed entity.MovementRecord
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		key := entity.BalanceKey{
			CompanyID:   scope.CompanyID,
			WarehouseID: warehouse.ID,
			ProductID:   product.ID,
			LotCode:     lotCode,
		}
		bal, err := s.store.GetBalanceForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}

		m := entity.MovementRecord{
			ID:             id.New(),
			Folio:          folio,
			CompanyID:      scope.CompanyID,
			WarehouseID:    warehouse.ID,
			WarehouseName:  warehouse.Name,
			ProductID:      product.ID,
			SKU:            product.SKU,
			BaseUnit:       product.BaseUnit,
			Kind:           entity.KindAdjustment,
			Quantity:       newQty,
			UnitCost:       unitCost,
			TotalCost:      unitCost.Mul(newQty.Decimal()),
			LotCode:        lotCode,
			ExpiryDate:     bal.ExpiryDate,
			Reason:         reason,
			Reference:      reference,
			ActorID:        scope.ActorID,
			CreatedAt:      now,
			QuantityBefore: bal.OnHand,
		}
		if err := ValidateMovement(&m, product, &bal); err != nil {
			return err
		}

		next, err := Apply(bal, m)
		if err != nil {
			return err
		}
		m.QuantityAfter = next.OnHand

		if err := s.store.UpsertBalance(ctx, next, bal.Version); err != nil {
			return err
		}
		appended, err := s.store.AppendMovements(ctx, []entity.MovementRecord{m})
		if err != nil {
			return fmt.Errorf("append movement: %w", err)
		}
		committed = appended[0]

		if s.audit != nil {
			err = s.audit.RecordAdjustment(ctx, AdjustmentAudit{
				MovementID: committed.ID,
				Key:        key,
				Before:     committed.QuantityBefore,
				After:      committed.QuantityAfter,
				Reason:     reason,
				ActorID:    scope.ActorID,
				OccurredAt: now,
			})
			if err != nil {
				return fmt.Errorf("record adjustment audit: %w", err)
			}
		}
		return nil
	})
	if err != nil {
		return entity.MovementRecord{}, err
	}

	logger.Info(ctx, "adjustment committed",
		"folio", folio,
		"product_id", product.ID,
		"lot_code", lotCode,
		"new_quantity", newQty,
		"reason", reason,
	)
	return committed, nil
}

// Transfer atomically commits a transfer-out at the source and a
// transfer-in at the destination, carrying the source cost. If the
// source lacks stock, neither half is committed.
func (s *Service) Transfer(
	ctx context.Context,
	scope Scope,
	source, dest WarehouseRef,
	product ProductRef,
	qty types.Quantity,
	lotCode string,
	reference string,
) (entity.MovementRecord, entity.MovementRecord, error) {
	var out, in entity.MovementRecord

	if source.ID == dest.ID {
		return out, in, apperror.NewValidation("source and destination warehouse must differ")
	}

	folio, err := s.nextFolio(ctx, scope, entity.KindTransferOut)
	if err != nil {
		return out, in, err
	}

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		srcKey := entity.BalanceKey{
			CompanyID:   scope.CompanyID,
			WarehouseID: source.ID,
			ProductID:   product.ID,
			LotCode:     lotCode,
		}
		dstKey := entity.BalanceKey{
			CompanyID:   scope.CompanyID,
			WarehouseID: dest.ID,
			ProductID:   product.ID,
			LotCode:     lotCode,
		}

		// Deterministic lock order across both keys.
		first, second := srcKey, dstKey
		if second.String() < first.String() {
			first, second = second, first
		}
		locked := map[entity.BalanceKey]entity.StockBalance{}
		for _, key := range []entity.BalanceKey{first, second} {
			bal, err := s.store.GetBalanceForUpdate(ctx, key)
			if err != nil {
				return fmt.Errorf("lock balance %s: %w", key, err)
			}
			locked[key] = bal
		}
		srcBal := locked[srcKey]
		dstBal := locked[dstKey]

		if srcBal.Available() < qty {
			shortfall := qty - srcBal.Available()
			return apperror.NewInsufficientStock(
				product.ID.String(),
				qty.String(),
				srcBal.Available().String(),
				shortfall.String(),
			)
		}

		unitCost := srcBal.AvgCost
		out = entity.MovementRecord{
			ID:             id.New(),
			Folio:          folio,
			CompanyID:      scope.CompanyID,
			WarehouseID:    source.ID,
			WarehouseName:  source.Name,
			ProductID:      product.ID,
			SKU:            product.SKU,
			BaseUnit:       product.BaseUnit,
			Kind:           entity.KindTransferOut,
			Quantity:       qty,
			UnitCost:       unitCost,
			TotalCost:      unitCost.Mul(qty.Decimal()),
			LotCode:        lotCode,
			ExpiryDate:     srcBal.ExpiryDate,
			Reference:      reference,
			ActorID:        scope.ActorID,
			CreatedAt:      now,
			QuantityBefore: srcBal.OnHand,
		}
		in = entity.MovementRecord{
			ID:             id.New(),
			Folio:          folio,
			CompanyID:      scope.CompanyID,
			WarehouseID:    dest.ID,
			WarehouseName:  dest.Name,
			ProductID:      product.ID,
			SKU:            product.SKU,
			BaseUnit:       product.BaseUnit,
			Kind:           entity.KindTransferIn,
			Quantity:       qty,
			UnitCost:       unitCost,
			TotalCost:      unitCost.Mul(qty.Decimal()),
			LotCode:        lotCode,
			ExpiryDate:     srcBal.ExpiryDate,
			ReceivedAt:     srcBal.ReceivedAt,
			Reference:      reference,
			ActorID:        scope.ActorID,
			CreatedAt:      now,
			QuantityBefore: dstBal.OnHand,
		}

		if err := ValidateMovement(&out, product, &srcBal); err != nil {
			return err
		}
		if err := ValidateMovement(&in, product, &dstBal); err != nil {
			return err
		}

		nextSrc, err := Apply(srcBal, out)
		if err != nil {
			return err
		}
		out.QuantityAfter = nextSrc.OnHand

		nextDst, err := Apply(dstBal, in)
		if err != nil {
			return err
		}
		in.QuantityAfter = nextDst.OnHand

		if err := s.store.UpsertBalance(ctx, nextSrc, srcBal.Version); err != nil {
			return err
		}
		if err := s.store.UpsertBalance(ctx, nextDst, dstBal.Version); err != nil {
			return err
		}

		appended, err := s.store.AppendMovements(ctx, []entity.MovementRecord{out, in})
		if err != nil {
			return fmt.Errorf("append movements: %w", err)
		}
		out, in = appended[0], appended[1]
		return nil
	})
	if err != nil {
		return entity.MovementRecord{}, entity.MovementRecord{}, err
	}

	logger.Info(ctx, "transfer committed",
		"folio", folio,
		"product_id", product.ID,
		"source_warehouse", source.ID,
		"dest_warehouse", dest.ID,
		"quantity", qty,
	)
	return out, in, nil
}

// ReturnToSupplier sends stock from a named lot back to the supplier.
// A purchase return draws from the lot it was received into, at the
// lot's current average cost.
func (s *Service) ReturnToSupplier(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	lotCode string,
	qty types.Quantity,
	reference string,
) (entity.MovementRecord, error) {
	return s.Withdraw(ctx, scope, warehouse, product, lotCode, qty, entity.KindPurchaseReturn, reference)
}

// ReturnFromCustomer restocks goods a customer sent back, at the
// supplied unit cost. Restocking joins the weighted average like any
// other inbound movement.
func (s *Service) ReturnFromCustomer(
	ctx context.Context,
	scope Scope,
	warehouse WarehouseRef,
	product ProductRef,
	qty types.Quantity,
	unitCost types.Money,
	lotCode string,
	expiry *time.Time,
	reference string,
) (entity.MovementRecord, error) {
	return s.Inbound(ctx, scope, warehouse, product, qty, unitCost, entity.KindSaleReturn, lotCode, expiry, reference)
}

// GetBalance returns the balance for one key.
func (s *Service) GetBalance(ctx context.Context, scope Scope, warehouseID, productID id.ID, lotCode string) (entity.StockBalance, error) {
	return s.store.GetBalance(ctx, entity.BalanceKey{
		CompanyID:   scope.CompanyID,
		WarehouseID: warehouseID,
		ProductID:   productID,
		LotCode:     lotCode,
	})
}

// GetBalances returns all per-lot balances for (warehouse, product).
func (s *Service) GetBalances(ctx context.Context, scope Scope, warehouseID, productID id.ID) ([]entity.StockBalance, error) {
	return s.store.ListBalances(ctx, scope.CompanyID, warehouseID, productID)
}

// ListMovements returns the audit trail in commit order.
func (s *Service) ListMovements(ctx context.Context, scope Scope, filter MovementFilter) ([]entity.MovementRecord, error) {
	return s.store.ListMovements(ctx, scope.CompanyID, filter)
}

// Turnover aggregates receipts and expenses for a period.
func (s *Service) Turnover(ctx context.Context, scope Scope, filter TurnoverFilter) (Turnover, error) {
	return s.store.Turnover(ctx, scope.CompanyID, filter)
}

// Plan computes an allocation plan without committing anything.
// Exposed for availability checks ("can I promise this order").
func (s *Service) Plan(ctx context.Context, scope Scope, warehouseID, productID id.ID, qty types.Quantity, policy Policy) (AllocationPlan, error) {
	balances, err := s.store.ListBalances(ctx, scope.CompanyID, warehouseID, productID)
	if err != nil {
		return AllocationPlan{}, fmt.Errorf("list balances: %w", err)
	}
	return SelectLots(balances, qty, policy)
}

// Rebuild replays the full history for one key and reconciles it
// against the maintained balance. On mismatch the key is quarantined
// and CORRUPTION_DETECTED is returned; the discrepancy is never
// silently repaired.
func (s *Service) Rebuild(ctx context.Context, scope Scope, warehouseID, productID id.ID, lotCode string) (entity.StockBalance, error) {
	key := entity.BalanceKey{
		CompanyID:   scope.CompanyID,
		WarehouseID: warehouseID,
		ProductID:   productID,
		LotCode:     lotCode,
	}

	var replayed entity.StockBalance
	corrupted := false
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		stored, err := s.store.GetBalanceForUpdate(ctx, key)
		if err != nil {
			return fmt.Errorf("lock balance %s: %w", key, err)
		}
		movements, err := s.store.ListMovementsForKey(ctx, key)
		if err != nil {
			return fmt.Errorf("list movements %s: %w", key, err)
		}

		replayed, err = Rebuild(key, movements)
		if err != nil {
			corrupted = true
			return err
		}

		if !Reconciles(replayed, stored) {
			corrupted = true
			return apperror.NewCorruptionDetected(
				key.String(),
				replayed.OnHand.String(),
				stored.OnHand.String(),
			)
		}
		return nil
	})
	if err != nil {
		// The quarantine write must wait for the unit above to abort:
		// inside it the balance row is still locked, and the store
		// writes the flag on its own connection. It also must not be
		// skipped because the caller went away mid-rebuild.
		if corrupted {
			if quarantineErr := s.store.SetQuarantined(context.WithoutCancel(ctx), key, true); quarantineErr != nil {
				logger.Error(ctx, "failed to quarantine key", "key", key.String(), "error", quarantineErr)
			}
		}
		return entity.StockBalance{}, err
	}
	return replayed, nil
}

// ClearQuarantine lifts the mutation block after manual reconciliation.
func (s *Service) ClearQuarantine(ctx context.Context, scope Scope, warehouseID, productID id.ID, lotCode string) error {
	key := entity.BalanceKey{
		CompanyID:   scope.CompanyID,
		WarehouseID: warehouseID,
		ProductID:   productID,
		LotCode:     lotCode,
	}
	if err := s.store.SetQuarantined(ctx, key, false); err != nil {
		return err
	}
	logger.Warn(ctx, "quarantine cleared", "key", key.String(), "actor_id", scope.ActorID)
	return nil
}

func (s *Service) nextFolio(ctx context.Context, scope Scope, kind entity.MovementKind) (string, error) {
	prefix, ok := folioPrefixes[kind]
	if !ok {
		prefix = "MOV"
	}
	folio, err := s.folios.NextFolio(ctx, scope.CompanyID, prefix, time.Now().UTC())
	if err != nil {
		return "", fmt.Errorf("generate folio: %w", err)
	}
	return folio, nil
}
