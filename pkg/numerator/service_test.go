package numerator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
)

type mockRow struct {
	val int64
	err error
}

func (m *mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	if len(dest) > 0 {
		if ptr, ok := dest[0].(*int64); ok {
			*ptr = m.val
		}
	}
	return nil
}

type mockQuerier struct {
	mu           sync.Mutex
	currentValue int64 // simulates the sys_sequences counter
	calls        int
}

func (m *mockQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++

	// Absolute set (migration seeding) overwrites the counter.
	if strings.Contains(sql, "SET current_val = $2") {
		if val, ok := args[1].(int64); ok {
			m.currentValue = val
		}
		return &mockRow{val: m.currentValue}
	}

	// Strict passes (key); cached passes (key, increment).
	var increment int64 = 1
	if len(args) == 2 {
		if val, ok := args[1].(int64); ok {
			increment = val
		}
	}

	m.currentValue += increment
	return &mockRow{val: m.currentValue}
}

func yearStr() string {
	return time.Now().Format("2006")
}

func TestGetNextNumber_Strict(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("REC")

	num, err := svc.GetNextNumber(ctx, "acme", cfg, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fmt.Sprintf("REC-%s-00001", yearStr()); num != want {
		t.Errorf("expected %s, got %s", want, num)
	}

	num, err = svc.GetNextNumber(ctx, "acme", cfg, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fmt.Sprintf("REC-%s-00002", yearStr()); num != want {
		t.Errorf("expected %s, got %s", want, num)
	}
	if q.calls != 2 {
		t.Errorf("strict must hit the DB per folio, got %d calls", q.calls)
	}
}

func TestGetNextNumber_Cached(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("FUL")

	opts := &Options{
		Strategy:  StrategyCached,
		RangeSize: 10,
	}

	// First call reserves 1..10: DB counter jumps to 10, folio is 1.
	num, err := svc.GetNextNumber(ctx, "acme", cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fmt.Sprintf("FUL-%s-00001", yearStr()); num != want {
		t.Errorf("expected %s, got %s", want, num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to be 10, got %d", q.currentValue)
	}

	// Second call comes from memory; the DB stays put.
	num, err = svc.GetNextNumber(ctx, "acme", cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fmt.Sprintf("FUL-%s-00002", yearStr()); num != want {
		t.Errorf("expected %s, got %s", want, num)
	}
	if q.currentValue != 10 {
		t.Errorf("expected DB value to stay 10, got %d", q.currentValue)
	}

	// Exhaust the range; the next call reserves 11..20.
	for i := 0; i < 8; i++ {
		_, _ = svc.GetNextNumber(ctx, "acme", cfg, opts, time.Now())
	}
	num, err = svc.GetNextNumber(ctx, "acme", cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fmt.Sprintf("FUL-%s-00011", yearStr()); num != want {
		t.Errorf("expected %s, got %s", want, num)
	}
	if q.currentValue != 20 {
		t.Errorf("expected DB value to be 20, got %d", q.currentValue)
	}
}

func TestGetNextNumber_CachedRangesArePerCompany(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("FUL")
	opts := &Options{Strategy: StrategyCached, RangeSize: 5}

	first, err := svc.GetNextNumber(ctx, "acme", cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// A different company must reserve its own range,
	// not continue acme's in-memory one.
	calls := q.calls
	if _, err := svc.GetNextNumber(ctx, "globex", cfg, opts, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.calls != calls+1 {
		t.Errorf("expected a fresh range reservation for the second company")
	}
	if want := fmt.Sprintf("FUL-%s-00001", yearStr()); first != want {
		t.Errorf("expected %s, got %s", want, first)
	}
}

func TestSetNextNumber_SeedsCounterAndDropsCachedRange(t *testing.T) {
	q := &mockQuerier{}
	svc := New(q)
	ctx := context.Background()
	cfg := DefaultConfig("REC")
	opts := &Options{Strategy: StrategyCached, RangeSize: 10}

	// Warm an in-memory range 1..10.
	if _, err := svc.GetNextNumber(ctx, "acme", cfg, opts, time.Now()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q.currentValue != 10 {
		t.Fatalf("expected DB value to be 10, got %d", q.currentValue)
	}

	// Seeding from a migration overwrites the counter.
	if err := svc.SetNextNumber(ctx, "acme", cfg, time.Now(), 500); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	num, err := svc.GetNextNumber(ctx, "acme", cfg, nil, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fmt.Sprintf("REC-%s-00501", yearStr()); num != want {
		t.Errorf("expected %s, got %s", want, num)
	}

	// The stale 1..10 range must be gone: the next cached call
	// reserves fresh numbers above the seeded value.
	num, err = svc.GetNextNumber(ctx, "acme", cfg, opts, time.Now())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want := fmt.Sprintf("REC-%s-00502", yearStr()); num != want {
		t.Errorf("expected %s, got %s", want, num)
	}
	if q.currentValue != 511 {
		t.Errorf("expected DB value to be 511, got %d", q.currentValue)
	}
}

func TestParseNumber(t *testing.T) {
	if got := ParseNumber("REC-2026-00042"); got != 42 {
		t.Errorf("expected 42, got %d", got)
	}
	if got := ParseNumber("REC-00007"); got != 7 {
		t.Errorf("expected 7, got %d", got)
	}
	if got := ParseNumber("garbage"); got != -1 {
		t.Errorf("expected -1, got %d", got)
	}
}

func TestBuildKey(t *testing.T) {
	period := time.Date(2026, 5, 10, 0, 0, 0, 0, time.UTC)

	cfg := DefaultConfig("REC")
	if got := buildKey("acme", cfg, period); got != "acme_REC_2026" {
		t.Errorf("unexpected key %s", got)
	}

	cfg.ResetPeriod = "month"
	if got := buildKey("acme", cfg, period); got != "acme_REC_2026_05" {
		t.Errorf("unexpected key %s", got)
	}

	cfg.ResetPeriod = "never"
	if got := buildKey("", cfg, period); got != "REC" {
		t.Errorf("unexpected key %s", got)
	}
}
