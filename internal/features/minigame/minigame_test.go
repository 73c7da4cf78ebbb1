package minigame

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
	"serotonyl.ru/bizbattle/internal/ledger/ledgertest"
)

// fakeJudge: покупатель всегда один и тот же, вердикты по кругу.
type fakeJudge struct {
	mu       sync.Mutex
	verdicts []bool
	pitches  int
}

func (f *fakeJudge) Customer(_ context.Context, p config.Persona, _, _ string) string {
	return "I'm a " + p.Name + ". Why should I buy?"
}

func (f *fakeJudge) JudgePitch(context.Context, string, string) (bool, string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ok := true
	if len(f.verdicts) > 0 {
		ok = f.verdicts[f.pitches%len(f.verdicts)]
	}
	f.pitches++
	return ok, "ok"
}

type fixedStock float64

func (f fixedStock) CurrentPct(context.Context) (float64, error) { return float64(f), nil }

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

// Все случайные числа = минимум диапазона: цель 5, награда income+10,
// штраф 10, бонус income+200.
func newEngine(t *testing.T, j *fakeJudge, balance int64, rating float64) (*Engine, ledger.Store, *time.Time) {
	t.Helper()
	store := ledgertest.Open(t)
	a := ledger.NewAccount(1, balance)
	a.Slots[0] = &ledger.Business{
		Name:             "Кофейня",
		Description:      "Варим кофе.",
		BaseIncomePerDay: 24,
		IncomePerDay:     24,
		Rating:           rating,
		CreatedAt:        t0,
		LastCollectedAt:  t0,
	}
	ledgertest.Seed(t, store, a)

	e := NewEngine(store, j, fixedStock(50), income.Default, &ledgertest.Rand{Ints: []int{0}}, config.DefaultTuning().Minigame)
	now := t0
	e.SetClock(func() time.Time { return now })
	return e, store, &now
}

func begin(t *testing.T, e *Engine) View {
	t.Helper()
	ctx := context.Background()
	if _, err := e.Start(ctx, 100, 1); err != nil {
		t.Fatalf("start: %v", err)
	}
	v, err := e.Select(ctx, 1, 0)
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if v.State != StateAwaiting || v.Customer == "" || v.Goal != 5 || v.Lives != 3 {
		t.Fatalf("unexpected view after select: %+v", v)
	}
	return v
}

func TestStartGuards(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newEngine(t, &fakeJudge{}, 100, 1.0)
	ledgertest.Seed(t, store, ledger.NewAccount(2, 100))

	if _, err := e.Start(ctx, 100, 2); !errors.Is(err, common.ErrNoBusiness) {
		t.Fatalf("no business: %v", err)
	}
	first, err := e.Start(ctx, 100, 1)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	again, err := e.Start(ctx, 100, 1)
	if !errors.Is(err, common.ErrAlreadyInMinigame) || again != first {
		t.Fatalf("second start: %v %v", again, err)
	}
	if _, _, err := e.Pitch(ctx, 1, "hello"); !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("pitch before select: %v", err)
	}
	if _, _, err := e.Pitch(ctx, 1, "  "); !errors.Is(err, common.ErrEmptyText) {
		t.Fatalf("empty pitch: %v", err)
	}

	v, err := e.End(ctx, 1)
	if err != nil || v.Outcome != OutcomeQuit {
		t.Fatalf("end: %+v %v", v, err)
	}
	if e.Active() != 0 {
		t.Fatalf("session left after end")
	}
	if got := ledgertest.Account(t, store, 1).Balance; got != 100 {
		t.Fatalf("ending must be free, balance %d", got)
	}
}

func TestWinningRun(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newEngine(t, &fakeJudge{}, 100, 1.0)
	begin(t, e)

	var res *TurnResult
	var v View
	var err error
	for i := 0; i < 5; i++ {
		res, v, err = e.Pitch(ctx, 1, "Это сэкономит вам 2 часа в день")
		if err != nil || !res.Success {
			t.Fatalf("pitch %d: %+v %v", i, res, err)
		}
		if res.Amount != 34 {
			t.Fatalf("reward = %d", res.Amount)
		}
	}
	if !res.Ended || res.Bonus != 224 || res.Balance != 100+5*34+224 {
		t.Fatalf("final turn: %+v", res)
	}
	if v.State != StateEnded || v.Summary == nil || v.Summary.Outcome != OutcomeWon {
		t.Fatalf("view: %+v", v)
	}
	sum := v.Summary
	if sum.StartRating != 1.0 || sum.Rating != 1.5 || sum.IncomeBefore != 24 || sum.IncomeAfter != 36 {
		t.Fatalf("summary: %+v", sum)
	}

	b := ledgertest.Account(t, store, 1).Slots[0]
	if b.Rating != 1.5 || b.ProductsSold != 5 {
		t.Fatalf("business: %+v", b)
	}
	if e.Active() != 0 {
		t.Fatalf("session left after win")
	}
}

func TestLosingRunAndPenaltyFloor(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newEngine(t, &fakeJudge{verdicts: []bool{false}}, 15, 0.15)
	begin(t, e)

	res, _, err := e.Pitch(ctx, 1, "купите")
	if err != nil || res.Success || res.Amount != -10 || res.Balance != 5 {
		t.Fatalf("first fail: %+v %v", res, err)
	}
	// пропуск стоит жизни и рейтинга, но не пленок
	res, v, err := e.Skip(ctx, 1)
	if err != nil || !res.Skipped || res.Amount != 0 || res.Balance != 5 || v.Lives != 1 {
		t.Fatalf("skip: %+v lives=%d %v", res, v.Lives, err)
	}
	res, v, err = e.Pitch(ctx, 1, "купите")
	if err != nil || res.Amount != -5 || res.Balance != 0 || !res.Ended {
		t.Fatalf("last life with low balance: %+v %v", res, err)
	}
	if v.Summary == nil || v.Summary.Outcome != OutcomeLost || v.Lives != 0 {
		t.Fatalf("view: %+v", v)
	}
	if v.Summary.Rating != 0 {
		t.Fatalf("rating should stop at floor 0, got %v", v.Summary.Rating)
	}

	a := ledgertest.Account(t, store, 1)
	if a.Balance != 0 || a.Slots[0].Rating != 0 {
		t.Fatalf("account: balance=%d rating=%v", a.Balance, a.Slots[0].Rating)
	}
}

func TestStaleTurnIsIgnored(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newEngine(t, &fakeJudge{}, 100, 1.0)
	begin(t, e)
	s, _ := e.lookup(1)

	s.mu.Lock()
	s.state = StateJudging
	s.mu.Unlock()
	if _, _, err := e.resolve(ctx, s, 42, true, false, ""); !errors.Is(err, common.ErrSessionFinished) {
		t.Fatalf("stale turn applied: %v", err)
	}
	if got := ledgertest.Account(t, store, 1).Balance; got != 100 {
		t.Fatalf("balance changed: %d", got)
	}
}

func TestSweepEndsIdleGames(t *testing.T) {
	e, _, now := newEngine(t, &fakeJudge{}, 100, 1.0)
	begin(t, e)

	if got := e.Sweep(t0.Add(time.Minute)); len(got) != 0 {
		t.Fatalf("swept too early")
	}
	*now = t0.Add(10 * time.Minute)
	got := e.Sweep(*now)
	if len(got) != 1 || got[0].Outcome != OutcomeTimedOut {
		t.Fatalf("sweep = %+v", got)
	}
	if _, err := e.Get(1); !errors.Is(err, common.ErrSessionNotFound) {
		t.Fatalf("session still registered: %v", err)
	}
}
