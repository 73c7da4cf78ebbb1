package equity

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
	"serotonyl.ru/bizbattle/internal/ledger/ledgertest"
)

var t0 = time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)

// Бизнес с ценой продажи ровно 1000: trunc(2000 × 0.5) и ничего не накоплено.
func seedOwner(t *testing.T, store ledger.Store, ownerID, balance int64) {
	t.Helper()
	a := ledger.NewAccount(ownerID, balance)
	a.Slots = []*ledger.Business{{Name: "Завод", BaseIncomePerDay: 2000, IncomePerDay: 0, Rating: 1, CreatedAt: t0, LastCollectedAt: t0}}
	ledgertest.Seed(t, store, a)
}

func newService(t *testing.T) (*Service, ledger.Store, *time.Time) {
	t.Helper()
	store := ledgertest.Open(t)
	svc := NewService(store, income.Default, config.DefaultTuning().Equity)
	now := t0.Add(time.Hour)
	svc.SetClock(func() time.Time { return now })
	return svc, store, &now
}

func TestBuyAndSellTenPercent(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	seedOwner(t, store, 1, 0)
	ledgertest.Seed(t, store, ledger.NewAccount(2, 500))

	r, err := svc.Buy(ctx, 1, 0, 2, 10)
	if err != nil {
		t.Fatalf("buy: %v", err)
	}
	if r.Amount != 100 || r.Balance != 400 || r.Holding != 10 {
		t.Fatalf("unexpected receipt: %+v", r)
	}
	if got := ledgertest.Account(t, store, 1).Balance; got != 100 {
		t.Fatalf("owner balance = %d", got)
	}
	table, _ := svc.Holdings(ctx, 1, 0)
	if len(table.Stakes) != 1 || table.Stakes[0].Pct != 10 || table.Stakes[0].Paid != 100 {
		t.Fatalf("unexpected stakes: %+v", table.Stakes)
	}

	r, err = svc.Sell(ctx, 1, 0, 2, 10)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	if r.Amount != 100 || r.Balance != 500 || r.Holding != 0 {
		t.Fatalf("unexpected sell receipt: %+v", r)
	}
	table, _ = svc.Holdings(ctx, 1, 0)
	if len(table.Stakes) != 0 {
		t.Fatalf("stake must be removed: %+v", table.Stakes)
	}
	if got := ledgertest.Account(t, store, 1).Balance; got != 0 {
		t.Fatalf("owner balance after buyback = %d", got)
	}
}

func TestBuyPreconditions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	seedOwner(t, store, 1, 0)
	ledgertest.Seed(t, store, ledger.NewAccount(2, 50))
	ledgertest.Seed(t, store, ledger.NewAccount(3, 10000))

	tests := []struct {
		name     string
		investor int64
		slot     int
		pct      float64
		want     error
	}{
		{"self trade", 1, 0, 10, common.ErrSelfTrade},
		{"zero percent", 2, 0, 0, common.ErrInvalidPercent},
		{"too much", 2, 0, 101, common.ErrInvalidPercent},
		{"poor investor", 2, 0, 10, common.ErrInsufficientBalance},
		{"empty slot", 3, 4, 10, common.ErrInvalidSlot},
	}
	for _, tc := range tests {
		if _, err := svc.Buy(ctx, 1, tc.slot, tc.investor, tc.pct); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}

	if _, err := svc.Buy(ctx, 1, 0, 3, 60); err != nil {
		t.Fatalf("buy 60: %v", err)
	}
	if _, err := svc.Buy(ctx, 1, 0, 3, 30); err != nil {
		t.Fatalf("repeat buy 30: %v", err)
	}
	if _, err := svc.Buy(ctx, 1, 0, 3, 11); !errors.Is(err, common.ErrOverAllocated) {
		t.Fatalf("expected ErrOverAllocated, got %v", err)
	}
	table, _ := svc.Holdings(ctx, 1, 0)
	if len(table.Stakes) != 1 || table.Stakes[0].Pct != 90 || table.Stakes[0].Paid != 900 {
		t.Fatalf("repeat purchase must accumulate: %+v", table.Stakes)
	}
	if got := ledgertest.Account(t, store, 2).Balance; got != 50 {
		t.Fatalf("failed buy changed balance: %d", got)
	}
}

func TestSellPreconditions(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	seedOwner(t, store, 1, 0)
	ledgertest.Seed(t, store, ledger.NewAccount(2, 1000))

	if _, err := svc.Sell(ctx, 1, 0, 2, 5); !errors.Is(err, common.ErrInsufficientOwnership) {
		t.Fatalf("expected ErrInsufficientOwnership, got %v", err)
	}
	if _, err := svc.Buy(ctx, 1, 0, 2, 40); err != nil {
		t.Fatalf("buy: %v", err)
	}
	// Владелец потратил выручку: выкупить нечем.
	owner := ledgertest.Account(t, store, 1)
	owner.Balance = 50
	ledgertest.Seed(t, store, owner)
	if _, err := svc.Sell(ctx, 1, 0, 2, 10); !errors.Is(err, common.ErrOwnerInsufficientFunds) {
		t.Fatalf("expected ErrOwnerInsufficientFunds, got %v", err)
	}

	owner.Balance = 1000
	ledgertest.Seed(t, store, owner)
	r, err := svc.Sell(ctx, 1, 0, 2, 10)
	if err != nil {
		t.Fatalf("partial sell: %v", err)
	}
	table, _ := svc.Holdings(ctx, 1, 0)
	if r.Holding != 30 || table.Stakes[0].Pct != 30 || table.Stakes[0].Paid != 300 {
		t.Fatalf("partial sell bookkeeping: %+v %+v", r, table.Stakes)
	}
}

func TestNonFinitePercentChangesNothing(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	seedOwner(t, store, 1, 0)
	ledgertest.Seed(t, store, ledger.NewAccount(2, 500))
	ledgertest.Seed(t, store, ledger.NewAccount(3, 500))

	if _, err := svc.Buy(ctx, 1, 0, 2, 10); err != nil {
		t.Fatalf("buy: %v", err)
	}

	for _, pct := range []float64{math.NaN(), math.Inf(1), math.Inf(-1)} {
		if _, err := svc.Buy(ctx, 1, 0, 3, pct); !errors.Is(err, common.ErrInvalidPercent) {
			t.Fatalf("Buy(%v): got %v", pct, err)
		}
		if _, err := svc.Sell(ctx, 1, 0, 2, pct); !errors.Is(err, common.ErrInvalidPercent) {
			t.Fatalf("Sell(%v): got %v", pct, err)
		}
		if _, err := svc.Quote(ctx, 1, 0, 3, pct); !errors.Is(err, common.ErrInvalidPercent) {
			t.Fatalf("Quote(%v): got %v", pct, err)
		}
	}

	table, _ := svc.Holdings(ctx, 1, 0)
	if len(table.Stakes) != 1 || table.Stakes[0].InvestorID != 2 || table.Stakes[0].Pct != 10 || table.Stakes[0].Paid != 100 {
		t.Fatalf("stakes changed: %+v", table.Stakes)
	}
	if got := ledgertest.Account(t, store, 2).Balance; got != 400 {
		t.Fatalf("investor balance = %d", got)
	}
	if got := ledgertest.Account(t, store, 3).Balance; got != 500 {
		t.Fatalf("bystander balance = %d", got)
	}
}

func TestQuoteConfirmAndExpiry(t *testing.T) {
	ctx := context.Background()
	svc, store, now := newService(t)
	seedOwner(t, store, 1, 0)
	ledgertest.Seed(t, store, ledger.NewAccount(2, 500))

	if _, err := svc.Confirm(ctx, 2); !errors.Is(err, common.ErrQuoteExpired) {
		t.Fatalf("expected ErrQuoteExpired without quote, got %v", err)
	}
	q, err := svc.Quote(ctx, 1, 0, 2, 20)
	if err != nil {
		t.Fatalf("quote: %v", err)
	}
	if q.Cost != 200 || q.ID == "" || q.Available != 100 {
		t.Fatalf("unexpected quote: %+v", q)
	}
	if svc.Pending(2) == nil {
		t.Fatalf("quote must be pending")
	}
	r, err := svc.Confirm(ctx, 2)
	if err != nil || r.Amount != 200 {
		t.Fatalf("confirm: %+v %v", r, err)
	}

	if _, err := svc.Quote(ctx, 1, 0, 2, 5); err != nil {
		t.Fatalf("second quote: %v", err)
	}
	*now = now.Add(3 * time.Minute)
	if _, err := svc.Confirm(ctx, 2); !errors.Is(err, common.ErrQuoteExpired) {
		t.Fatalf("expected expired quote, got %v", err)
	}
	if _, err := svc.Quote(ctx, 1, 0, 2, 5); err != nil {
		t.Fatalf("third quote: %v", err)
	}
	*now = now.Add(3 * time.Minute)
	if n := svc.SweepQuotes(); n != 1 {
		t.Fatalf("swept %d quotes", n)
	}
}

func TestConcurrentBuysNeverOverAllocate(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)
	seedOwner(t, store, 1, 0)
	for id := int64(2); id <= 9; id++ {
		ledgertest.Seed(t, store, ledger.NewAccount(id, 10000))
	}

	var wg sync.WaitGroup
	for id := int64(2); id <= 9; id++ {
		wg.Add(1)
		go func(investor int64) {
			defer wg.Done()
			_, _ = svc.Buy(ctx, 1, 0, investor, 30)
		}(id)
	}
	wg.Wait()

	table, _ := svc.Holdings(ctx, 1, 0)
	if table.Staked() > 100 || len(table.Stakes) != 3 {
		t.Fatalf("over-allocated: %+v", table.Stakes)
	}

	ps, err := svc.Portfolio(ctx, table.Stakes[0].InvestorID)
	if err != nil || len(ps) != 1 || ps[0].Value != 300 || ps[0].BusinessName != "Завод" {
		t.Fatalf("portfolio = %+v, %v", ps, err)
	}
}
