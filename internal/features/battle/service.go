// Package battle — service.go реализует движок батлов: реестр сессий,
// переходы между шагами, судейство раундов и запись итогов в хранилище.
//
// Блокировки: сначала мьютекс сессии, затем мьютекс реестра, никогда наоборот.
// Судья вызывается без блокировок; результат применяется только если сессия
// всё ещё ждёт именно этот раунд.
package battle

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/judge"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Judge — то, что движку нужно от судьи.
type Judge interface {
	DetectAI(ctx context.Context, text string) (int, bool)
	PickWinner(ctx context.Context, nameA, argA, nameB, argB string) judge.Verdict
	Explain(ctx context.Context, winner judge.Side, nameA, argA, nameB, argB string) string
}

// StockReader отдаёт текущий процент биржи.
type StockReader interface {
	CurrentPct(ctx context.Context) (float64, error)
}

// Engine — движок батлов.
type Engine struct {
	store  ledger.Store
	judge  Judge
	stock  StockReader
	model  income.Model
	tuning config.BattleTuning
	now    func() time.Time

	mu     sync.Mutex
	byUser map[int64]*Session
}

// NewEngine создаёт движок.
func NewEngine(store ledger.Store, j Judge, stock StockReader, model income.Model, tuning config.BattleTuning) *Engine {
	return &Engine{
		store:  store,
		judge:  j,
		stock:  stock,
		model:  model,
		tuning: tuning,
		now:    time.Now,
		byUser: make(map[int64]*Session),
	}
}

// SetClock подменяет часы (для тестов).
func (e *Engine) SetClock(now func() time.Time) {
	e.now = now
}

func (e *Engine) lookup(userID int64) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	s, ok := e.byUser[userID]
	if !ok {
		return nil, common.ErrSessionNotFound
	}
	return s, nil
}

// unregister убирает сессию из реестра, если участники ещё привязаны к ней.
func (e *Engine) unregister(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, p := range s.players {
		if e.byUser[p.userID] == s {
			delete(e.byUser, p.userID)
		}
	}
}

// Get возвращает снимок активного батла пользователя.
func (e *Engine) Get(userID int64) (View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// Active — число активных сессий.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	seen := make(map[*Session]struct{}, len(e.byUser))
	for _, s := range e.byUser {
		seen[s] = struct{}{}
	}
	return len(seen)
}

// Challenge создаёт батл между challenger (сторона A) и challenged (сторона B).
// Если кто-то из них уже в батле, возвращается его сессия и ErrAlreadyInBattle.
func (e *Engine) Challenge(ctx context.Context, chatID, challenger, challenged int64) (*Session, error) {
	if challenger == challenged {
		return nil, common.ErrSelfBattle
	}
	if s, err := e.busy(challenger, challenged); err != nil {
		return s, err
	}

	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		for _, uid := range []int64{challenger, challenged} {
			a, err := tx.Account(ctx, uid)
			if err != nil {
				return err
			}
			if !a.HasBusiness() {
				return common.ErrNoBusiness
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, uid := range []int64{challenger, challenged} {
		if s, ok := e.byUser[uid]; ok {
			return s, common.ErrAlreadyInBattle
		}
	}
	s := newSession(uuid.NewString(), chatID, challenger, challenged, e.now())
	e.byUser[challenger] = s
	e.byUser[challenged] = s

	log.WithFields(log.Fields{
		"battle_id":  s.ID,
		"challenger": challenger,
		"challenged": challenged,
	}).Info("Батл создан")
	return s, nil
}

func (e *Engine) busy(users ...int64) (*Session, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, uid := range users {
		if s, ok := e.byUser[uid]; ok {
			return s, common.ErrAlreadyInBattle
		}
	}
	return nil, nil
}

func (e *Engine) readBusiness(ctx context.Context, userID int64, slot int) (*ledger.Business, error) {
	var out *ledger.Business
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		b, err := a.Business(slot)
		if err != nil {
			return err
		}
		cp := *b
		out = &cp
		return nil
	})
	return out, err
}

// Select закрепляет бизнес за игроком. До старта выбор можно менять.
func (e *Engine) Select(ctx context.Context, userID int64, slot int) (View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, err
	}
	b, err := e.readBusiness(ctx, userID, slot)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateSelecting && s.state != StateAwaitingStart {
		return s.view(), e.stateErr(s)
	}
	side, _ := s.side(userID)
	p := s.players[side]
	p.slot = slot
	p.business = b
	p.rating = b.Rating
	if s.bothSelected() {
		s.state = StateAwaitingStart
	}
	s.lastActivity = e.now()
	return s.view(), nil
}

// Start запускает первый раунд и фиксирует стартовые рейтинги.
func (e *Engine) Start(ctx context.Context, userID int64) (View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if s.state != StateAwaitingStart {
		defer s.mu.Unlock()
		return s.view(), e.stateErr(s)
	}
	picks := [2]struct {
		uid  int64
		slot int
	}{{s.players[0].userID, s.players[0].slot}, {s.players[1].userID, s.players[1].slot}}
	s.mu.Unlock()

	var fresh [2]*ledger.Business
	for i, p := range picks {
		b, err := e.readBusiness(ctx, p.uid, p.slot)
		if err != nil {
			return s.View(), err
		}
		fresh[i] = b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAwaitingStart {
		return s.view(), e.stateErr(s)
	}
	for i, p := range s.players {
		// выбор могли поменять, пока читали хранилище
		if p.slot != picks[i].slot {
			return s.view(), common.ErrWrongState
		}
		p.business = fresh[i]
		p.startRating = common.AddRating(fresh[i].Rating, 0, e.tuning.RatingFloor)
		p.rating = p.startRating
	}
	s.round = 1
	s.state = StateRound
	s.lastActivity = e.now()

	log.WithFields(log.Fields{
		"battle_id": s.ID,
		"rating_a":  s.players[0].startRating,
		"rating_b":  s.players[1].startRating,
	}).Info("Батл начался")
	return s.view(), nil
}

// judgeInput — всё, что нужно судье; копируется из сессии под блокировкой.
type judgeInput struct {
	round int
	names [2]string
	args  [2]string
}

// SubmitArgument принимает аргумент игрока в текущем раунде.
// Пока второй игрок не ответил, результат nil. Когда ответили оба,
// раунд судится и результат возвращается тому, чей аргумент был последним.
func (e *Engine) SubmitArgument(ctx context.Context, userID int64, text string) (*RoundResult, View, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, View{}, common.ErrEmptyText
	}
	if r := []rune(text); e.tuning.MaxArgRunes > 0 && len(r) > e.tuning.MaxArgRunes {
		text = string(r[:e.tuning.MaxArgRunes])
	}
	s, err := e.lookup(userID)
	if err != nil {
		return nil, View{}, err
	}

	s.mu.Lock()
	if s.state != StateRound {
		defer s.mu.Unlock()
		return nil, s.view(), e.stateErr(s)
	}
	side, _ := s.side(userID)
	p := s.players[side]
	if p.submitted {
		defer s.mu.Unlock()
		return nil, s.view(), common.ErrAlreadySubmitted
	}
	p.argument = text
	p.submitted = true
	s.lastActivity = e.now()
	if !s.bothSubmitted() {
		defer s.mu.Unlock()
		return nil, s.view(), nil
	}

	s.state = StateJudging
	in := judgeInput{round: s.round}
	for i, pl := range s.players {
		in.names[i] = pl.business.Name
		in.args[i] = pl.argument
	}
	s.mu.Unlock()

	res := e.judgeRound(ctx, in)
	return e.applyRound(ctx, s, res)
}

// judgeRound вызывает судью без блокировок. Детекторы для обоих аргументов
// работают параллельно; если кто-то пойман, выбирать победителя не нужно.
func (e *Engine) judgeRound(ctx context.Context, in judgeInput) RoundResult {
	res := RoundResult{Round: in.round, Delta: RoundDelta(in.round, e.tuning)}

	var wg sync.WaitGroup
	for i := range in.args {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res.AIScore[i], res.AIKnown[i] = e.judge.DetectAI(ctx, in.args[i])
		}(i)
	}
	wg.Wait()
	for i := range in.args {
		res.Flagged[i] = res.AIKnown[i] && res.AIScore[i] >= e.tuning.AIThreshold
	}

	switch {
	case res.Flagged[0] && res.Flagged[1]:
		res.Source = "ai"
		res.Reason = "Оба аргумента похожи на текст нейросети."
	case res.Flagged[0] || res.Flagged[1]:
		cheat := judge.SideA
		if res.Flagged[1] {
			cheat = judge.SideB
		}
		res.Winner, res.HasWinner = cheat.Other(), true
		res.Source = "ai"
		res.Reason = fmt.Sprintf("Аргумент %s похож на текст нейросети.", in.names[cheat])
	default:
		v := e.judge.PickWinner(ctx, in.names[0], in.args[0], in.names[1], in.args[1])
		res.Winner, res.HasWinner = v.Winner, true
		res.Source = v.Source
		res.Reason = e.judge.Explain(ctx, v.Winner, in.names[0], in.args[0], in.names[1], in.args[1])
	}
	return res
}

// applyRound применяет результат ровно один раз: только если сессия всё ещё
// судит тот же раунд.
func (e *Engine) applyRound(ctx context.Context, s *Session, res RoundResult) (*RoundResult, View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateJudging || s.round != res.Round {
		return nil, s.view(), common.ErrSessionFinished
	}

	current := [2]float64{s.players[0].rating, s.players[1].rating}
	start := [2]float64{s.players[0].startRating, s.players[1].startRating}
	next, winner, has := applyVerdict(current, res.Delta, res.Flagged, res.Winner, e.tuning)
	res.Winner, res.HasWinner = winner, has
	res.Ratings = next
	for i, p := range s.players {
		p.rating = next[i]
	}
	s.lastActivity = e.now()

	log.WithFields(log.Fields{
		"battle_id": s.ID,
		"round":     res.Round,
		"winner":    winner.String(),
		"has":       has,
		"source":    res.Source,
		"rating_a":  next[0],
		"rating_b":  next[1],
	}).Info("Раунд батла завершён")

	if lost, ok := loser(start, next, e.tuning); ok {
		res.Final = e.finalize(ctx, s, OutcomeDecided, lost.Other(), true)
	} else {
		s.round++
		s.state = StateRound
		for _, p := range s.players {
			p.argument = ""
			p.submitted = false
		}
	}
	s.rounds = append(s.rounds, res)
	out := res
	return &out, s.view(), nil
}

// Forfeit — игрок сдаётся, соперник побеждает. Доступно только после старта.
func (e *Engine) Forfeit(ctx context.Context, userID int64) (View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateRound && s.state != StateJudging {
		return s.view(), e.stateErr(s)
	}
	side, _ := s.side(userID)
	e.finalize(ctx, s, OutcomeForfeit, side.Other(), true)
	return s.view(), nil
}

// Release снимает пользователя с батла без записи итогов (команда администратора).
func (e *Engine) Release(userID int64) (View, bool) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateFinalized {
		e.unregister(s)
		return s.view(), true
	}
	e.finalize(context.Background(), s, OutcomeReleased, judge.SideA, false)
	return s.view(), true
}

// Sweep завершает сессии, в которых никто ничего не делал дольше таймаута.
// Итоги таких батлов не записываются.
func (e *Engine) Sweep(now time.Time) []View {
	e.mu.Lock()
	seen := make(map[*Session]struct{})
	var all []*Session
	for _, s := range e.byUser {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		all = append(all, s)
	}
	e.mu.Unlock()

	var out []View
	for _, s := range all {
		s.mu.Lock()
		if s.state != StateFinalized && now.Sub(s.lastActivity) > e.tuning.SessionTimeout {
			e.finalize(context.Background(), s, OutcomeTimedOut, judge.SideA, false)
			out = append(out, s.view())
		}
		s.mu.Unlock()
	}
	return out
}

// finalize завершает сессию; вызывать под s.mu.
// Итоги пишутся только для батла, который дошёл до раундов и закончился
// победой или сдачей.
func (e *Engine) finalize(ctx context.Context, s *Session, outcome Outcome, winner judge.Side, hasWinner bool) *Final {
	s.state = StateFinalized
	s.outcome = outcome
	s.winner, s.hasWinner = winner, hasWinner

	f := &Final{Outcome: outcome, Winner: winner, HasWinner: hasWinner}
	for i, p := range s.players {
		f.Ratings[i] = p.rating
	}
	if hasWinner && s.started() && (outcome == OutcomeDecided || outcome == OutcomeForfeit) {
		if err := e.persist(ctx, s, f); err != nil {
			f.Persisted = [2]bool{}
			log.WithError(err).WithField("battle_id", s.ID).Error("Ошибка записи итогов батла")
		}
	}
	s.final = f
	e.unregister(s)

	log.WithFields(log.Fields{
		"battle_id": s.ID,
		"outcome":   outcome.String(),
		"winner":    winner.String(),
		"has":       hasWinner,
	}).Info("Батл завершён")
	return f
}

// persist записывает чистое изменение рейтинга и победы/поражения.
// Если бизнес в слоте успели пересоздать или продать, игрок пропускается.
func (e *Engine) persist(ctx context.Context, s *Session, f *Final) error {
	// биржа нужна только для показа дохода до/после
	pct, err := e.stock.CurrentPct(ctx)
	fresh := err == nil
	if !fresh {
		log.WithError(err).WithField("battle_id", s.ID).Warn("Биржа недоступна, доход считаем по сохранённой серии")
	}
	floor := e.tuning.RatingFloor

	return e.store.InTx(ctx, func(tx ledger.Tx) error {
		if !fresh {
			series, err := tx.Stock(ctx)
			if err != nil {
				return err
			}
			pct = series.CurrentPct
		}
		for i, p := range s.players {
			a, err := tx.Account(ctx, p.userID)
			if err != nil {
				return err
			}
			b, err := a.Business(p.slot)
			if err != nil || !b.SameAs(p.business) {
				log.WithFields(log.Fields{
					"battle_id": s.ID,
					"user_id":   p.userID,
					"slot":      p.slot,
				}).Warn("Бизнес изменился за время батла, итог не записан")
				continue
			}
			pur, err := tx.Purchases(ctx, p.userID)
			if err != nil {
				return err
			}
			entries := pur.ForSlot(p.slot)

			stored := common.AddRating(b.Rating, 0, floor)
			b.Rating = stored
			f.IncomeBefore[i] = e.model.Display(b, entries, pct)

			b.Rating = common.AddRating(stored, p.rating-p.startRating, floor)
			if f.Winner == judge.Side(i) {
				b.Wins++
			} else {
				b.Losses++
			}
			f.IncomeAfter[i] = e.model.Display(b, entries, pct)
			f.Ratings[i] = b.Rating

			if err := tx.SaveAccount(ctx, a); err != nil {
				return err
			}
			f.Persisted[i] = true
		}
		return nil
	})
}

func (e *Engine) stateErr(s *Session) error {
	if s.state == StateFinalized {
		return common.ErrSessionFinished
	}
	return common.ErrWrongState
}
