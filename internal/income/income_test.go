package income

import (
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/ledger"
)

func biz(base int64, rating float64) *ledger.Business {
	return &ledger.Business{BaseIncomePerDay: base, IncomePerDay: base, Rating: rating}
}

func TestStockScenario(t *testing.T) {
	b := biz(30, 1.0)
	if got := StockAdjusted(b.BaseIncomePerDay, 50); got != 30 {
		t.Fatalf("income at 50%% = %d, want 30", got)
	}
	if got := Display(b, nil, 50); got != 30 {
		t.Fatalf("display at 50%% = %d, want 30", got)
	}
	if got := StockAdjusted(b.BaseIncomePerDay, 75); got != 45 {
		t.Fatalf("income at 75%% = %d, want 45", got)
	}
	if got := StockFactor(0); got != 0 {
		t.Fatalf("stock factor at 0 = %v", got)
	}
}

func TestLedgerEntriesTakePrecedence(t *testing.T) {
	b := biz(100, 1.0)
	b.Upgrades = []ledger.AppliedUpgrade{{ID: 1, BoostPct: 50}}

	if got := TotalBoostPct(b, nil); got != 50 {
		t.Fatalf("fallback boost = %v, want 50", got)
	}
	entries := []ledger.AppliedUpgrade{{ID: 2, BoostPct: 10}}
	if got := TotalBoostPct(b, entries); got != 10 {
		t.Fatalf("ledger boost = %v, want 10", got)
	}
	if got := Effective(b, entries); got != 110 {
		t.Fatalf("effective = %d, want 110", got)
	}
}

func TestEffectiveMonotonic(t *testing.T) {
	prev := int64(-1)
	for r := 0.1; r < 5; r += 0.1 {
		got := Effective(biz(37, r), nil)
		if got < prev {
			t.Fatalf("effective decreased at rating %v: %d < %d", r, got, prev)
		}
		prev = got
	}
	prev = -1
	for boost := 0.0; boost < 200; boost += 7.5 {
		got := Effective(biz(37, 1.3), []ledger.AppliedUpgrade{{BoostPct: boost}})
		if got < prev {
			t.Fatalf("effective decreased at boost %v", boost)
		}
		prev = got
	}
	if got := Effective(biz(10, -2), nil); got != 0 {
		t.Fatalf("negative effective must clamp to 0, got %d", got)
	}
}

func TestAccrued(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	b := biz(0, 1)
	b.IncomePerDay = 48
	b.CreatedAt = now.Add(-48 * time.Hour)
	b.LastCollectedAt = now.Add(-12 * time.Hour)
	b.PendingCollect = 7

	if got := Accrued(b, now); got != 31 {
		t.Fatalf("accrued = %d, want 31", got)
	}

	b.LastCollectedAt = time.Time{}
	if got := Accrued(b, now); got != 103 {
		t.Fatalf("accrued from created_at = %d, want 103", got)
	}

	b.LastCollectedAt = now.Add(time.Hour)
	if got := Accrued(b, now); got != 7 {
		t.Fatalf("future collection must count zero days, got %d", got)
	}
}

func TestSellValue(t *testing.T) {
	now := time.Now()
	b := biz(101, 1)
	b.LastCollectedAt = now
	if got := SellValue(b, nil, now); got != 50 {
		t.Fatalf("sell value = %d, want 50", got)
	}
}

func TestNextSlotCost(t *testing.T) {
	tests := []struct {
		purchased int
		want      int64
	}{
		{0, 1000},
		{1, 2000},
		{3, 8000},
		{-1, 1000},
	}
	for _, tc := range tests {
		if got := NextSlotCost(tc.purchased); got != tc.want {
			t.Fatalf("NextSlotCost(%d)=%d want %d", tc.purchased, got, tc.want)
		}
	}
}

func TestFromTuningMatchesDefault(t *testing.T) {
	if got := FromTuning(config.DefaultTuning()); got != Default {
		t.Fatalf("FromTuning(defaults) = %+v, want %+v", got, Default)
	}
	tun := config.DefaultTuning()
	tun.Stock.NeutralPct = 40
	if got := FromTuning(tun).StockFactor(40); got != 1 {
		t.Fatalf("factor at custom neutral = %v", got)
	}
}
