// Package memory provides an in-memory ledger store with optimistic
// version checks. It backs tests and single-node deployments; the
// durable backend is the postgres package.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kardex/internal/core/apperror"
	"kardex/internal/core/entity"
	"kardex/internal/core/id"
	"kardex/internal/domain/ledger"
)

// Store keeps the ledger in process memory. It implements
// ledger.Store, tx.Manager, ledger.FolioSequencer and
// ledger.AuditRecorder.
//
// Transactions are units of work carried in the context: writes are
// staged and applied at commit under the store mutex, with a version
// check per touched balance. A stale version aborts the whole unit
// with CONCURRENT_MODIFICATION.
type Store struct {
	mu        sync.Mutex
	movements []entity.MovementRecord
	balances  map[entity.BalanceKey]entity.StockBalance
	sequences map[string]int64 // per-company movement sequence
	folios    map[string]int64 // per company+prefix+year folio counter
	audits    []ledger.AdjustmentAudit
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		balances:  make(map[entity.BalanceKey]entity.StockBalance),
		sequences: make(map[string]int64),
		folios:    make(map[string]int64),
	}
}

type txContextKey struct{}

// unitOfWork stages the writes of one transaction.
type unitOfWork struct {
	balances map[entity.BalanceKey]entity.StockBalance
	expected map[entity.BalanceKey]int64
	appended []entity.MovementRecord
	audits   []ledger.AdjustmentAudit
}

func newUnitOfWork() *unitOfWork {
	return &unitOfWork{
		balances: make(map[entity.BalanceKey]entity.StockBalance),
		expected: make(map[entity.BalanceKey]int64),
	}
}

func uowFromContext(ctx context.Context) *unitOfWork {
	uow, _ := ctx.Value(txContextKey{}).(*unitOfWork)
	return uow
}

// RunInTransaction executes fn inside a unit of work. Nested calls
// join the enclosing unit. On success all staged writes apply
// atomically; any error discards them.
func (s *Store) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if uowFromContext(ctx) != nil {
		return fn(ctx)
	}

	uow := newUnitOfWork()
	if err := fn(context.WithValue(ctx, txContextKey{}, uow)); err != nil {
		return err
	}
	return s.commit(uow)
}

func (s *Store) commit(uow *unitOfWork) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, expected := range uow.expected {
		if current := s.balances[key].Version; current != expected {
			return apperror.NewConcurrentModification("stock_balance", key.String()).
				WithDetail("expectedVersion", expected).
				WithDetail("currentVersion", current)
		}
	}
	for key, bal := range uow.balances {
		s.balances[key] = bal
	}
	s.movements = append(s.movements, uow.appended...)
	s.audits = append(s.audits, uow.audits...)
	return nil
}

// AppendMovements stages movements for commit, reserving per-company
// sequence numbers immediately. Aborted units leave sequence gaps,
// which is fine: the guarantee is monotonic commit order, not density.
func (s *Store) AppendMovements(ctx context.Context, movements []entity.MovementRecord) ([]entity.MovementRecord, error) {
	out := make([]entity.MovementRecord, len(movements))

	s.mu.Lock()
	for i, m := range movements {
		s.sequences[m.CompanyID]++
		m.Sequence = s.sequences[m.CompanyID]
		out[i] = m
	}
	s.mu.Unlock()

	if uow := uowFromContext(ctx); uow != nil {
		uow.appended = append(uow.appended, out...)
		return out, nil
	}

	s.mu.Lock()
	s.movements = append(s.movements, out...)
	s.mu.Unlock()
	return out, nil
}

// GetBalance returns the committed balance, zero-valued when the key
// has no movements yet.
func (s *Store) GetBalance(_ context.Context, key entity.BalanceKey) (entity.StockBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.balanceLocked(key), nil
}

func (s *Store) balanceLocked(key entity.BalanceKey) entity.StockBalance {
	if bal, ok := s.balances[key]; ok {
		return bal
	}
	return entity.StockBalance{BalanceKey: key}
}

// GetBalanceForUpdate returns the balance for optimistic commit.
// There is no row lock here; the version carried on the balance is
// re-checked when the unit of work commits. Inside a unit it reads
// its own staged writes.
func (s *Store) GetBalanceForUpdate(ctx context.Context, key entity.BalanceKey) (entity.StockBalance, error) {
	if uow := uowFromContext(ctx); uow != nil {
		if bal, ok := uow.balances[key]; ok {
			return bal, nil
		}
	}
	return s.GetBalance(ctx, key)
}

// UpsertBalance stages the projected balance. The expected version of
// the first write per key is what the commit check runs against.
func (s *Store) UpsertBalance(ctx context.Context, balance entity.StockBalance, expectedVersion int64) error {
	if uow := uowFromContext(ctx); uow != nil {
		if _, seen := uow.expected[balance.BalanceKey]; !seen {
			uow.expected[balance.BalanceKey] = expectedVersion
		}
		uow.balances[balance.BalanceKey] = balance
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if current := s.balances[balance.BalanceKey].Version; current != expectedVersion {
		return apperror.NewConcurrentModification("stock_balance", balance.BalanceKey.String()).
			WithDetail("expectedVersion", expectedVersion).
			WithDetail("currentVersion", current)
	}
	s.balances[balance.BalanceKey] = balance
	return nil
}

// ListBalances returns committed per-lot balances ordered by lot code.
func (s *Store) ListBalances(_ context.Context, companyID string, warehouseID, productID id.ID) ([]entity.StockBalance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.StockBalance
	for key, bal := range s.balances {
		if key.CompanyID == companyID && key.WarehouseID == warehouseID && key.ProductID == productID {
			out = append(out, bal)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LotCode < out[j].LotCode })
	return out, nil
}

// ListMovementsForKey returns the committed history for one key,
// sequence ascending.
func (s *Store) ListMovementsForKey(_ context.Context, key entity.BalanceKey) ([]entity.MovementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.MovementRecord
	for _, m := range s.movements {
		if m.Key() == key {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out, nil
}

// ListMovements returns the committed audit trail, sequence ascending.
func (s *Store) ListMovements(_ context.Context, companyID string, filter ledger.MovementFilter) ([]entity.MovementRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []entity.MovementRecord
	for _, m := range s.movements {
		if m.CompanyID != companyID {
			continue
		}
		if filter.WarehouseID != nil && m.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.ProductID != nil && m.ProductID != *filter.ProductID {
			continue
		}
		if filter.LotCode != nil && m.LotCode != *filter.LotCode {
			continue
		}
		if filter.Kind != nil && m.Kind != *filter.Kind {
			continue
		}
		if filter.FromDate != nil && m.CreatedAt.Before(*filter.FromDate) {
			continue
		}
		if filter.ToDate != nil && !m.CreatedAt.Before(*filter.ToDate) {
			continue
		}
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })

	if filter.Offset > 0 {
		if filter.Offset >= len(out) {
			return nil, nil
		}
		out = out[filter.Offset:]
	}
	if filter.Limit > 0 && filter.Limit < len(out) {
		out = out[:filter.Limit]
	}
	return out, nil
}

// SetQuarantined writes the quarantine flag directly to committed
// state, bypassing any enclosing unit of work. Corruption detection
// aborts the unit it runs in; the flag must survive that abort.
func (s *Store) SetQuarantined(_ context.Context, key entity.BalanceKey, quarantined bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bal := s.balanceLocked(key)
	bal.Quarantined = quarantined
	bal.UpdatedAt = time.Now().UTC()
	s.balances[key] = bal
	return nil
}

// Turnover aggregates movement deltas for a period. The cached
// before/after quantities give the delta uniformly for all kinds,
// adjustments included.
func (s *Store) Turnover(_ context.Context, companyID string, filter ledger.TurnoverFilter) (ledger.Turnover, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var t ledger.Turnover
	if filter.WarehouseID != nil {
		t.WarehouseID = *filter.WarehouseID
	}
	if filter.ProductID != nil {
		t.ProductID = *filter.ProductID
	}
	for _, m := range s.movements {
		if m.CompanyID != companyID {
			continue
		}
		if filter.WarehouseID != nil && m.WarehouseID != *filter.WarehouseID {
			continue
		}
		if filter.ProductID != nil && m.ProductID != *filter.ProductID {
			continue
		}
		delta := m.QuantityAfter - m.QuantityBefore
		switch {
		case m.CreatedAt.Before(filter.FromDate):
			t.OpeningBalance += delta
		case m.CreatedAt.Before(filter.ToDate):
			if delta >= 0 {
				t.Receipt += delta
			} else {
				t.Expense -= delta
			}
		}
	}
	t.ClosingBalance = t.OpeningBalance + t.Receipt - t.Expense
	return t, nil
}

// NextFolio generates prefix-YYYY-NNNNN folios, one counter per
// (company, prefix, year). Counters advance immediately, so aborted
// units leave folio gaps, same as the database-backed numerator.
func (s *Store) NextFolio(_ context.Context, companyID, prefix string, period time.Time) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	year := period.UTC().Year()
	key := fmt.Sprintf("%s|%s|%d", companyID, prefix, year)
	s.folios[key]++
	return fmt.Sprintf("%s-%d-%05d", prefix, year, s.folios[key]), nil
}

// RecordAdjustment stages an adjustment audit entry.
func (s *Store) RecordAdjustment(ctx context.Context, entry ledger.AdjustmentAudit) error {
	if uow := uowFromContext(ctx); uow != nil {
		uow.audits = append(uow.audits, entry)
		return nil
	}
	s.mu.Lock()
	s.audits = append(s.audits, entry)
	s.mu.Unlock()
	return nil
}

// Adjustments returns recorded audit entries, oldest first.
func (s *Store) Adjustments() []ledger.AdjustmentAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]ledger.AdjustmentAudit(nil), s.audits...)
}
