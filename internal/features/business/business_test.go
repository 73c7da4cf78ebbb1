package business

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
	"serotonyl.ru/bizbattle/internal/ledger/ledgertest"
)

type fixedScorer struct{ scores ledger.BusinessScores }

func (f fixedScorer) ScoreBusiness(context.Context, string, string) ledger.BusinessScores {
	return f.scores
}

type fixedStock float64

func (f fixedStock) CurrentPct(context.Context) (float64, error) { return float64(f), nil }

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newService(t *testing.T, pct float64) (*Service, ledger.Store, *time.Time) {
	t.Helper()
	store := ledgertest.Open(t)
	scorer := fixedScorer{ledger.BusinessScores{Difficulty: 8, Earning: 9, Realistic: 7, Total: 24}}
	svc := NewService(store, scorer, fixedStock(pct), income.Default, config.DefaultTuning().Economy)
	now := t0
	svc.SetClock(func() time.Time { return now })
	return svc, store, &now
}

func TestCreateBusiness(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, 75)

	b, err := svc.Create(ctx, 1, 0, "  Кофейня ", "Варим кофе.")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if b.Name != "Кофейня" || b.BaseIncomePerDay != 24 || b.IncomePerDay != 36 || b.Rating != 1.0 {
		t.Fatalf("unexpected business: %+v", b)
	}
	a := ledgertest.Account(t, store, 1)
	if a.Slots[0] == nil || a.Slots[0].Name != "Кофейня" {
		t.Fatalf("business not stored: %+v", a.Slots)
	}

	tests := []struct {
		name string
		slot int
		biz  string
		desc string
		want error
	}{
		{"occupied", 0, "x", "y", common.ErrSlotOccupied},
		{"missing slot", 3, "x", "y", common.ErrInvalidSlot},
		{"empty name", 0, " ", "y", common.ErrEmptyName},
		{"long name", 1, strings.Repeat("я", 65), "y", common.ErrNameTooLong},
		{"long description", 1, "x", strings.Repeat("я", 601), common.ErrDescriptionTooLong},
	}
	for _, tc := range tests {
		if _, err := svc.Create(ctx, 1, tc.slot, tc.biz, tc.desc); !errors.Is(err, tc.want) {
			t.Fatalf("%s: got %v want %v", tc.name, err, tc.want)
		}
	}
}

func TestCreateClearsStaleSlotState(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, 50)

	_ = store.InTx(ctx, func(tx ledger.Tx) error {
		if err := tx.SavePurchases(ctx, &ledger.Purchases{UserID: 1, Slots: map[int][]ledger.AppliedUpgrade{0: {{ID: 1, BoostPct: 5}}}}); err != nil {
			return err
		}
		return tx.SaveEquity(ctx, &ledger.EquityTable{OwnerID: 1, Slot: 0, Stakes: []ledger.Stake{{InvestorID: 2, Pct: 10}}})
	})
	if _, err := svc.Create(ctx, 1, 0, "Пекарня", "Печём хлеб."); err != nil {
		t.Fatalf("create: %v", err)
	}
	_ = store.InTx(ctx, func(tx ledger.Tx) error {
		p, _ := tx.Purchases(ctx, 1)
		if len(p.ForSlot(0)) != 0 {
			t.Fatalf("purchases not cleared")
		}
		eq, _ := tx.Equity(ctx, 1, 0)
		if len(eq.Stakes) != 0 {
			t.Fatalf("equity not cleared")
		}
		return nil
	})
}

func TestCollect(t *testing.T) {
	ctx := context.Background()
	svc, store, now := newService(t, 50)

	if _, _, err := svc.CollectAll(ctx, 1); !errors.Is(err, common.ErrNoBusiness) {
		t.Fatalf("expected ErrNoBusiness, got %v", err)
	}

	a := ledger.NewAccount(1, 100)
	a.Slots = []*ledger.Business{
		{Name: "A", BaseIncomePerDay: 30, IncomePerDay: 30, Rating: 1, CreatedAt: t0, LastCollectedAt: t0, PendingCollect: 40},
		nil,
		{Name: "B", BaseIncomePerDay: 10, IncomePerDay: 10, Rating: 1, CreatedAt: t0},
	}
	ledgertest.Seed(t, store, a)

	*now = t0.Add(36 * time.Hour)
	amount, balance, err := svc.Collect(ctx, 1, 0)
	if err != nil {
		t.Fatalf("collect: %v", err)
	}
	// 1.5 дня × 30 + 40 с рынка
	if amount != 85 || balance != 185 {
		t.Fatalf("collect = %d, balance %d", amount, balance)
	}
	if _, _, err := svc.Collect(ctx, 1, 1); !errors.Is(err, common.ErrSlotEmpty) {
		t.Fatalf("expected ErrSlotEmpty, got %v", err)
	}

	total, balance, err := svc.CollectAll(ctx, 1)
	if err != nil {
		t.Fatalf("collect all: %v", err)
	}
	if total != 15 || balance != 200 {
		t.Fatalf("collect all = %d, balance %d", total, balance)
	}
	got := ledgertest.Account(t, store, 1)
	if got.Slots[0].PendingCollect != 0 || got.Slots[0].TotalEarned != 85 || !got.Slots[2].LastCollectedAt.Equal(*now) {
		t.Fatalf("collect bookkeeping wrong: %+v %+v", got.Slots[0], got.Slots[2])
	}
}

func TestSellHoldPeriodAndEquityPayout(t *testing.T) {
	ctx := context.Background()
	svc, store, now := newService(t, 50)

	a := ledger.NewAccount(1, 0)
	a.Slots = []*ledger.Business{{Name: "Кофейня", BaseIncomePerDay: 100, IncomePerDay: 100, Rating: 1, CreatedAt: t0, LastCollectedAt: t0}}
	ledgertest.Seed(t, store, a)
	_ = store.InTx(ctx, func(tx ledger.Tx) error {
		return tx.SaveEquity(ctx, &ledger.EquityTable{OwnerID: 1, Slot: 0, Stakes: []ledger.Stake{{InvestorID: 2, Pct: 25, Paid: 10}}})
	})

	*now = t0.Add(4 * time.Minute)
	_, err := svc.Sell(ctx, 1, 0)
	var early *TooEarlyError
	if !errors.As(err, &early) || !errors.Is(err, common.ErrSellTooEarly) {
		t.Fatalf("expected TooEarlyError, got %v", err)
	}
	if early.Remaining != 6*time.Minute {
		t.Fatalf("remaining = %v", early.Remaining)
	}

	*now = t0.Add(24 * time.Hour)
	r, err := svc.Sell(ctx, 1, 0)
	if err != nil {
		t.Fatalf("sell: %v", err)
	}
	// trunc(100 × 0.5) + 100 за сутки
	if r.Value != 150 || len(r.Payouts) != 1 || r.Payouts[0].Amount != 37 || r.OwnerShare != 113 {
		t.Fatalf("unexpected receipt: %+v", r)
	}
	if got := ledgertest.Account(t, store, 2).Balance; got != 137 {
		t.Fatalf("investor balance = %d", got)
	}
	owner := ledgertest.Account(t, store, 1)
	if owner.Balance != 113 || owner.Slots[0] != nil {
		t.Fatalf("owner after sale: %+v", owner)
	}
	_ = store.InTx(ctx, func(tx ledger.Tx) error {
		eq, _ := tx.Equity(ctx, 1, 0)
		if len(eq.Stakes) != 0 {
			t.Fatalf("equity must be removed on sale")
		}
		return nil
	})
}

func TestBuySlotDoublesCost(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t, 50)
	ledgertest.Seed(t, store, ledger.NewAccount(1, 3500))

	slot, cost, err := svc.BuySlot(ctx, 1)
	if err != nil || slot != 1 || cost != 1000 {
		t.Fatalf("first slot = %d, %d, %v", slot, cost, err)
	}
	slot, cost, err = svc.BuySlot(ctx, 1)
	if err != nil || slot != 2 || cost != 2000 {
		t.Fatalf("second slot = %d, %d, %v", slot, cost, err)
	}
	_, cost, err = svc.BuySlot(ctx, 1)
	if !errors.Is(err, common.ErrInsufficientBalance) || cost != 4000 {
		t.Fatalf("third slot: cost %d, err %v", cost, err)
	}
	if a := ledgertest.Account(t, store, 1); a.Balance != 500 || a.PurchasedSlots != 2 || len(a.Slots) != 3 {
		t.Fatalf("account after purchases: %+v", a)
	}
}

func TestOverviewAndLeaderboard(t *testing.T) {
	ctx := context.Background()
	svc, store, now := newService(t, 75)

	a := ledger.NewAccount(1, 500)
	a.Slots = []*ledger.Business{{Name: "A", BaseIncomePerDay: 30, IncomePerDay: 45, Rating: 1, CreatedAt: t0, LastCollectedAt: t0}, nil}
	ledgertest.Seed(t, store, a)
	b := ledger.NewAccount(2, 0)
	b.Slots = []*ledger.Business{{Name: "B", BaseIncomePerDay: 20, IncomePerDay: 30, Rating: 0.05, CreatedAt: t0}}
	ledgertest.Seed(t, store, b)

	*now = t0.Add(12 * time.Hour)
	ov, err := svc.Overview(ctx, 1)
	if err != nil {
		t.Fatalf("overview: %v", err)
	}
	if ov.CombinedRate != 45 || ov.Ready != 22 || ov.Businesses != 1 || len(ov.Slots) != 2 {
		t.Fatalf("unexpected overview: %+v", ov)
	}
	if ov.Slots[0].Display != 45 || ov.Slots[0].SellValue != 15+22 {
		t.Fatalf("unexpected slot view: %+v", ov.Slots[0])
	}

	rows, err := svc.Leaderboard(ctx, LeaderboardRichest, 20)
	if err != nil || len(rows) != 2 || rows[0].UserID != 1 {
		t.Fatalf("richest = %+v, %v", rows, err)
	}
	rows, err = svc.Leaderboard(ctx, LeaderboardBusinesses, 1)
	if err != nil || len(rows) != 1 || rows[0].Name != "A" || rows[0].Value != 30 {
		t.Fatalf("businesses = %+v, %v", rows, err)
	}
	if _, err := svc.Leaderboard(ctx, "bogus", 5); err == nil {
		t.Fatalf("expected error for unknown leaderboard")
	}
}
