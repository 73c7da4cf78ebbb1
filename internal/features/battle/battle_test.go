package battle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/judge"
	"serotonyl.ru/bizbattle/internal/ledger"
	"serotonyl.ru/bizbattle/internal/ledger/ledgertest"
)

// fakeJudge: детектор отвечает по таблице текстов, победитель фиксирован.
type fakeJudge struct {
	mu      sync.Mutex
	ai      map[string]int
	winner  judge.Side
	detects int
	picks   int
}

func (f *fakeJudge) DetectAI(_ context.Context, text string) (int, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detects++
	v, ok := f.ai[text]
	return v, ok
}

func (f *fakeJudge) PickWinner(context.Context, string, string, string, string) judge.Verdict {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.picks++
	return judge.Verdict{Winner: f.winner, Source: judge.SourceJudge}
}

func (f *fakeJudge) Explain(context.Context, judge.Side, string, string, string, string) string {
	return "Сильнее аргумент."
}

type fixedStock float64

func (f fixedStock) CurrentPct(context.Context) (float64, error) { return float64(f), nil }

type brokenStock struct{}

func (brokenStock) CurrentPct(context.Context) (float64, error) {
	return 0, errors.New("ticker down")
}

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func seedBusiness(t *testing.T, store ledger.Store, uid int64, name string, rating float64) {
	t.Helper()
	a := ledger.NewAccount(uid, 100)
	a.Slots[0] = &ledger.Business{
		Name:             name,
		Description:      "desc",
		BaseIncomePerDay: 24,
		IncomePerDay:     24,
		Rating:           rating,
		CreatedAt:        t0,
		LastCollectedAt:  t0,
	}
	ledgertest.Seed(t, store, a)
}

func newEngine(t *testing.T, j *fakeJudge) (*Engine, ledger.Store, *time.Time) {
	t.Helper()
	store := ledgertest.Open(t)
	seedBusiness(t, store, 1, "Кофейня", 1.0)
	seedBusiness(t, store, 2, "Пекарня", 1.0)
	e := NewEngine(store, j, fixedStock(50), income.Default, config.DefaultTuning().Battle)
	now := t0
	e.SetClock(func() time.Time { return now })
	return e, store, &now
}

func startBattle(t *testing.T, e *Engine) *Session {
	t.Helper()
	ctx := context.Background()
	s, err := e.Challenge(ctx, 100, 1, 2)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	if _, err := e.Select(ctx, 1, 0); err != nil {
		t.Fatalf("select a: %v", err)
	}
	v, err := e.Select(ctx, 2, 0)
	if err != nil {
		t.Fatalf("select b: %v", err)
	}
	if v.State != StateAwaitingStart {
		t.Fatalf("state after both picks = %v", v.State)
	}
	if _, err := e.Start(ctx, 2); err != nil {
		t.Fatalf("start: %v", err)
	}
	return s
}

func TestRoundDelta(t *testing.T) {
	tun := config.DefaultTuning().Battle
	tests := []struct {
		round int
		want  float64
	}{
		{1, 0.1}, {5, 0.1}, {6, 0.2}, {10, 0.2}, {11, 0.4}, {16, 0.8},
	}
	for _, tc := range tests {
		if got := RoundDelta(tc.round, tun); got != tc.want {
			t.Fatalf("RoundDelta(%d) = %v want %v", tc.round, got, tc.want)
		}
	}
}

func TestApplyVerdict(t *testing.T) {
	tun := config.DefaultTuning().Battle
	tests := []struct {
		name      string
		ratings   [2]float64
		delta     float64
		flagged   [2]bool
		verdict   judge.Side
		want      [2]float64
		winner    judge.Side
		hasWinner bool
	}{
		{"plain", [2]float64{1, 1}, 0.1, [2]bool{}, judge.SideB, [2]float64{0.9, 1.1}, judge.SideB, true},
		{"a flagged", [2]float64{1, 1}, 0.1, [2]bool{true, false}, judge.SideA, [2]float64{0.8, 1.2}, judge.SideB, true},
		{"both flagged", [2]float64{1, 1}, 0.2, [2]bool{true, true}, judge.SideA, [2]float64{0.6, 0.6}, judge.SideA, false},
		{"floor", [2]float64{0.15, 1}, 0.1, [2]bool{true, false}, judge.SideA, [2]float64{0.1, 1.2}, judge.SideB, true},
	}
	for _, tc := range tests {
		got, w, has := applyVerdict(tc.ratings, tc.delta, tc.flagged, tc.verdict, tun)
		if got != tc.want || has != tc.hasWinner || (has && w != tc.winner) {
			t.Fatalf("%s: got %v %v %v want %v %v %v", tc.name, got, w, has, tc.want, tc.winner, tc.hasWinner)
		}
	}
}

func TestLoser(t *testing.T) {
	tun := config.DefaultTuning().Battle
	tests := []struct {
		name    string
		start   [2]float64
		current [2]float64
		want    judge.Side
		ok      bool
	}{
		{"nobody", [2]float64{1, 1}, [2]float64{0.6, 1.4}, judge.SideA, false},
		{"b crosses", [2]float64{1, 1}, [2]float64{1.5, 0.5}, judge.SideB, true},
		{"deeper loses", [2]float64{1, 1}, [2]float64{0.4, 0.3}, judge.SideB, true},
		{"tie challenger loses", [2]float64{1, 1}, [2]float64{0.4, 0.4}, judge.SideA, true},
		{"floor threshold", [2]float64{0.1, 1}, [2]float64{0.1, 1.2}, judge.SideA, true},
	}
	for _, tc := range tests {
		got, ok := loser(tc.start, tc.current, tun)
		if ok != tc.ok || (ok && got != tc.want) {
			t.Fatalf("%s: got %v %v want %v %v", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}

func TestChallengeErrors(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newEngine(t, &fakeJudge{})
	ledgertest.Seed(t, store, ledger.NewAccount(3, 100))

	if _, err := e.Challenge(ctx, 100, 1, 1); !errors.Is(err, common.ErrSelfBattle) {
		t.Fatalf("self battle: %v", err)
	}
	if _, err := e.Challenge(ctx, 100, 1, 3); !errors.Is(err, common.ErrNoBusiness) {
		t.Fatalf("no business: %v", err)
	}
	first, err := e.Challenge(ctx, 100, 1, 2)
	if err != nil {
		t.Fatalf("challenge: %v", err)
	}
	again, err := e.Challenge(ctx, 100, 3, 2)
	if !errors.Is(err, common.ErrAlreadyInBattle) || again != first {
		t.Fatalf("busy: %v %v", err, again)
	}
	if _, err := e.Start(ctx, 1); !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("start before picks: %v", err)
	}
	if _, err := e.Forfeit(ctx, 1); !errors.Is(err, common.ErrWrongState) {
		t.Fatalf("forfeit before start: %v", err)
	}
}

func TestBattleUntilThreshold(t *testing.T) {
	ctx := context.Background()
	j := &fakeJudge{winner: judge.SideA}
	e, store, _ := newEngine(t, j)
	startBattle(t, e)

	var last *RoundResult
	for round := 1; round <= 5; round++ {
		res, _, err := e.SubmitArgument(ctx, 1, "выручка растёт")
		if err != nil || res != nil {
			t.Fatalf("round %d first arg: %v %v", round, res, err)
		}
		if _, _, err := e.SubmitArgument(ctx, 1, "ещё"); !errors.Is(err, common.ErrAlreadySubmitted) {
			t.Fatalf("round %d double submit: %v", round, err)
		}
		res, _, err = e.SubmitArgument(ctx, 2, "у нас вкусно")
		if err != nil || res == nil {
			t.Fatalf("round %d second arg: %v %v", round, res, err)
		}
		if res.Round != round || !res.HasWinner || res.Winner != judge.SideA {
			t.Fatalf("round %d result: %+v", round, res)
		}
		last = res
	}
	if last.Final == nil || last.Final.Outcome != OutcomeDecided || last.Final.Winner != judge.SideA {
		t.Fatalf("battle should end after 5 rounds: %+v", last)
	}
	if last.Ratings != [2]float64{1.5, 0.5} {
		t.Fatalf("ratings = %v", last.Ratings)
	}
	f := last.Final
	if f.IncomeBefore != [2]int64{24, 24} || f.IncomeAfter != [2]int64{36, 12} {
		t.Fatalf("income before %v after %v", f.IncomeBefore, f.IncomeAfter)
	}
	if j.detects != 10 || j.picks != 5 {
		t.Fatalf("judge calls: detects=%d picks=%d", j.detects, j.picks)
	}

	a := ledgertest.Account(t, store, 1).Slots[0]
	b := ledgertest.Account(t, store, 2).Slots[0]
	if a.Rating != 1.5 || a.Wins != 1 || b.Rating != 0.5 || b.Losses != 1 {
		t.Fatalf("persisted a=%+v b=%+v", a, b)
	}
	if a.BaseIncomePerDay != 24 || a.IncomePerDay != 24 {
		t.Fatalf("income fields must stay untouched: %+v", a)
	}
	if _, err := e.Get(1); !errors.Is(err, common.ErrSessionNotFound) {
		t.Fatalf("registry not cleared: %v", err)
	}
}

func TestFlaggedArgumentLosesDouble(t *testing.T) {
	ctx := context.Background()
	j := &fakeJudge{winner: judge.SideA, ai: map[string]int{"gpt text": 90, "мой текст": 10}}
	e, _, _ := newEngine(t, j)
	startBattle(t, e)

	if _, _, err := e.SubmitArgument(ctx, 1, "gpt text"); err != nil {
		t.Fatalf("submit: %v", err)
	}
	res, v, err := e.SubmitArgument(ctx, 2, "мой текст")
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !res.Flagged[0] || res.Flagged[1] || res.Winner != judge.SideB {
		t.Fatalf("flags: %+v", res)
	}
	if res.Ratings != [2]float64{0.8, 1.2} {
		t.Fatalf("ratings = %v", res.Ratings)
	}
	if j.picks != 0 {
		t.Fatalf("winner should not be asked when detection decided")
	}
	if v.State != StateRound || v.Round != 2 {
		t.Fatalf("next round expected: %+v", v)
	}
}

func TestStaleResultIsIgnored(t *testing.T) {
	ctx := context.Background()
	e, _, _ := newEngine(t, &fakeJudge{})
	s := startBattle(t, e)

	s.mu.Lock()
	s.state = StateJudging
	s.mu.Unlock()
	if _, _, err := e.applyRound(ctx, s, RoundResult{Round: 7, Delta: 0.1}); !errors.Is(err, common.ErrSessionFinished) {
		t.Fatalf("stale round applied: %v", err)
	}
	if v := s.View(); v.Players[0].Rating != 1.0 || v.Players[1].Rating != 1.0 {
		t.Fatalf("ratings changed: %+v", v.Players)
	}
}

func TestForfeitPersistsAndSkipsReplacedBusiness(t *testing.T) {
	ctx := context.Background()
	e, store, _ := newEngine(t, &fakeJudge{winner: judge.SideB})
	startBattle(t, e)

	_, _, _ = e.SubmitArgument(ctx, 1, "a")
	if _, _, err := e.SubmitArgument(ctx, 2, "b"); err != nil {
		t.Fatalf("round: %v", err)
	}

	// бизнес A пересоздан во время батла
	a := ledgertest.Account(t, store, 1)
	a.Slots[0].CreatedAt = t0.Add(time.Hour)
	ledgertest.Seed(t, store, a)

	v, err := e.Forfeit(ctx, 1)
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	f := v.Final
	if f == nil || f.Outcome != OutcomeForfeit || f.Winner != judge.SideB {
		t.Fatalf("final: %+v", f)
	}
	if f.Persisted[0] || !f.Persisted[1] {
		t.Fatalf("persisted = %v", f.Persisted)
	}
	if got := ledgertest.Account(t, store, 1).Slots[0]; got.Rating != 1.0 || got.Losses != 0 {
		t.Fatalf("replaced business touched: %+v", got)
	}
	if got := ledgertest.Account(t, store, 2).Slots[0]; got.Rating != 1.1 || got.Wins != 1 {
		t.Fatalf("winner not persisted: %+v", got)
	}
}

func TestResultsPersistWhenTickerFails(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.Open(t)
	seedBusiness(t, store, 1, "Кофейня", 1.0)
	seedBusiness(t, store, 2, "Пекарня", 1.0)
	e := NewEngine(store, &fakeJudge{winner: judge.SideB}, brokenStock{}, income.Default, config.DefaultTuning().Battle)
	e.SetClock(func() time.Time { return t0 })
	startBattle(t, e)

	_, _, _ = e.SubmitArgument(ctx, 1, "a")
	if _, _, err := e.SubmitArgument(ctx, 2, "b"); err != nil {
		t.Fatalf("round: %v", err)
	}
	v, err := e.Forfeit(ctx, 1)
	if err != nil {
		t.Fatalf("forfeit: %v", err)
	}
	f := v.Final
	if f == nil || f.Persisted != [2]bool{true, true} {
		t.Fatalf("final: %+v", f)
	}
	// доход считается по сохранённой серии (50%)
	if f.IncomeBefore != [2]int64{24, 24} || f.IncomeAfter != [2]int64{22, 26} {
		t.Fatalf("income before %v after %v", f.IncomeBefore, f.IncomeAfter)
	}
	if got := ledgertest.Account(t, store, 1).Slots[0]; got.Rating != 0.9 || got.Losses != 1 {
		t.Fatalf("loser not persisted: %+v", got)
	}
	if got := ledgertest.Account(t, store, 2).Slots[0]; got.Rating != 1.1 || got.Wins != 1 {
		t.Fatalf("winner not persisted: %+v", got)
	}
}

func TestSweepTimesOut(t *testing.T) {
	e, store, now := newEngine(t, &fakeJudge{})
	startBattle(t, e)

	if got := e.Sweep(t0.Add(4 * time.Minute)); len(got) != 0 {
		t.Fatalf("swept too early: %d", len(got))
	}
	*now = t0.Add(6 * time.Minute)
	got := e.Sweep(*now)
	if len(got) != 1 || got[0].Outcome != OutcomeTimedOut || got[0].State != StateFinalized {
		t.Fatalf("sweep = %+v", got)
	}
	if e.Active() != 0 {
		t.Fatalf("sessions left: %d", e.Active())
	}
	if b := ledgertest.Account(t, store, 1).Slots[0]; b.Wins != 0 || b.Losses != 0 {
		t.Fatalf("timeout must not persist: %+v", b)
	}
}
