// Package minigame — service.go реализует движок мини-игры: реестр сессий,
// генерацию покупателей, судейство питчей, награды и штрафы.
//
// Генерация покупателя и судейство питча идут без блокировок; результат
// применяется только если номер хода не изменился.
package minigame

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
	"serotonyl.ru/bizbattle/internal/features/economy"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Judge — то, что движку нужно от судьи.
type Judge interface {
	Customer(ctx context.Context, p config.Persona, bizName, bizDesc string) string
	JudgePitch(ctx context.Context, customer, pitch string) (bool, string)
}

// StockReader отдаёт текущий процент биржи.
type StockReader interface {
	CurrentPct(ctx context.Context) (float64, error)
}

// Engine — движок мини-игры.
type Engine struct {
	store  ledger.Store
	judge  Judge
	stock  StockReader
	model  income.Model
	rnd    common.Random
	tuning config.MinigameTuning
	now    func() time.Time

	mu     sync.Mutex
	byUser map[int64]*Session
}

// NewEngine создаёт движок мини-игры.
func NewEngine(store ledger.Store, j Judge, stock StockReader, model income.Model, rnd common.Random, tuning config.MinigameTuning) *Engine {
	return &Engine{
		store:  store,
		judge:  j,
		stock:  stock,
		model:  model,
		rnd:    rnd,
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

func (e *Engine) unregister(s *Session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.byUser[s.UserID] == s {
		delete(e.byUser, s.UserID)
	}
}

// Active — число активных игр.
func (e *Engine) Active() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.byUser)
}

// Get возвращает снимок активной игры пользователя.
func (e *Engine) Get(userID int64) (View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, err
	}
	return s.View(), nil
}

// Start начинает игру. Если игра уже идёт, возвращается она и ErrAlreadyInMinigame.
func (e *Engine) Start(ctx context.Context, chatID, userID int64) (*Session, error) {
	if s, err := e.lookup(userID); err == nil {
		return s, common.ErrAlreadyInMinigame
	}

	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		if !a.HasBusiness() {
			return common.ErrNoBusiness
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok := e.byUser[userID]; ok {
		return s, common.ErrAlreadyInMinigame
	}
	now := e.now()
	s := &Session{
		ID:           uuid.NewString(),
		ChatID:       chatID,
		UserID:       userID,
		CreatedAt:    now,
		state:        StateSelecting,
		goal:         common.RandRange(e.rnd, e.tuning.GoalMin, e.tuning.GoalMax),
		lives:        e.tuning.Lives,
		slot:         -1,
		lastActivity: now,
	}
	e.byUser[userID] = s

	log.WithFields(log.Fields{
		"minigame_id": s.ID,
		"user_id":     userID,
		"goal":        s.goal,
	}).Info("Мини-игра начата")
	return s, nil
}

// Select выбирает бизнес и генерирует первого покупателя.
func (e *Engine) Select(ctx context.Context, userID int64, slot int) (View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, err
	}

	var b *ledger.Business
	err = e.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		found, err := a.Business(slot)
		if err != nil {
			return err
		}
		cp := *found
		b = &cp
		return nil
	})
	if err != nil {
		return View{}, err
	}

	s.mu.Lock()
	if s.state != StateSelecting {
		defer s.mu.Unlock()
		return s.view(), stateErr(s)
	}
	s.slot = slot
	s.business = b
	s.startRating = b.Rating
	s.rating = b.Rating
	s.lastActivity = e.now()
	turn := e.beginCustomer(s)
	s.mu.Unlock()

	return e.generateCustomer(ctx, s, turn), nil
}

// beginCustomer переводит сессию в генерацию покупателя; вызывать под s.mu.
func (e *Engine) beginCustomer(s *Session) int {
	s.state = StateGenerating
	s.turn++
	s.customer = ""
	s.persona = e.tuning.Personas[e.rnd.Intn(len(e.tuning.Personas))]
	return s.turn
}

// generateCustomer просит судью придумать покупателя и ставит его в сессию,
// если за это время ход не сменился.
func (e *Engine) generateCustomer(ctx context.Context, s *Session, turn int) View {
	s.mu.Lock()
	persona, name, desc := s.persona, s.business.Name, s.business.Description
	s.mu.Unlock()

	text := e.judge.Customer(ctx, persona, name, desc)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateGenerating && s.turn == turn {
		s.customer = text
		s.state = StateAwaiting
		s.lastActivity = e.now()
	}
	return s.view()
}

// Pitch отправляет питч текущему покупателю.
func (e *Engine) Pitch(ctx context.Context, userID int64, text string) (*TurnResult, View, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, View{}, common.ErrEmptyText
	}
	s, err := e.lookup(userID)
	if err != nil {
		return nil, View{}, err
	}

	s.mu.Lock()
	if s.state != StateAwaiting {
		defer s.mu.Unlock()
		return nil, s.view(), stateErr(s)
	}
	s.state = StateJudging
	turn, customer := s.turn, s.customer
	s.lastActivity = e.now()
	s.mu.Unlock()

	ok, reason := e.judge.JudgePitch(ctx, customer, text)
	return e.resolve(ctx, s, turn, ok, false, reason)
}

// Skip пропускает покупателя: минус жизнь и рейтинг, но без штрафа пленками.
func (e *Engine) Skip(ctx context.Context, userID int64) (*TurnResult, View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return nil, View{}, err
	}
	s.mu.Lock()
	if s.state != StateAwaiting {
		defer s.mu.Unlock()
		return nil, s.view(), stateErr(s)
	}
	s.state = StateJudging
	turn := s.turn
	s.mu.Unlock()

	return e.resolve(ctx, s, turn, false, true, "Покупатель пропущен.")
}

// resolve применяет итог хода ровно один раз и, если игра не кончилась,
// генерирует следующего покупателя.
func (e *Engine) resolve(ctx context.Context, s *Session, turn int, ok, skipped bool, reason string) (*TurnResult, View, error) {
	s.mu.Lock()
	if s.state != StateJudging || s.turn != turn {
		defer s.mu.Unlock()
		return nil, s.view(), common.ErrSessionFinished
	}

	res := &TurnResult{Turn: turn, Success: ok, Skipped: skipped, Reason: reason}
	t := e.tuning
	rating := s.rating
	step := t.RatingStep
	if !ok {
		step = -step
	}
	err := e.store.InTx(ctx, func(tx ledger.Tx) error {
		res.Bonus = 0
		a, err := tx.Account(ctx, s.UserID)
		if err != nil {
			return err
		}
		incomePerDay := s.business.IncomePerDay
		b, berr := a.Business(s.slot)
		same := berr == nil && b.SameAs(s.business)
		if same {
			incomePerDay = b.IncomePerDay
		}

		if ok {
			reward := incomePerDay + int64(common.RandRange(e.rnd, t.RewardMin, t.RewardMax))
			a.Balance += reward
			res.Amount = reward
			if err := tx.Journal(ctx, economy.Credit(s.UserID, reward, economy.TxTypeMinigameReward, "Продажа: "+s.business.Name)); err != nil {
				return err
			}
		} else if !skipped {
			penalty := int64(common.RandRange(e.rnd, t.PenaltyMin, t.PenaltyMax))
			taken := min(penalty, max(a.Balance, 0))
			a.Balance -= taken
			res.Amount = -taken
			if taken > 0 {
				if err := tx.Journal(ctx, economy.Debit(s.UserID, taken, economy.TxTypeMinigamePenalty, "Провал продажи: "+s.business.Name)); err != nil {
					return err
				}
			}
		}
		rating = common.AddRating(s.rating, step, t.RatingFloor)
		if same {
			b.Rating = common.AddRating(b.Rating, step, t.RatingFloor)
			if ok {
				b.ProductsSold++
			}
		}

		if ok && s.wins+1 >= s.goal {
			bonus := incomePerDay + int64(common.RandRange(e.rnd, t.VictoryMin, t.VictoryMax))
			a.Balance += bonus
			res.Bonus = bonus
			if err := tx.Journal(ctx, economy.Credit(s.UserID, bonus, economy.TxTypeMinigameBonus, "Победа в мини-игре: "+s.business.Name)); err != nil {
				return err
			}
		}
		res.Balance = a.Balance
		return tx.SaveAccount(ctx, a)
	})
	if err != nil {
		// ход не засчитан, игрок может попробовать ещё раз
		s.state = StateAwaiting
		defer s.mu.Unlock()
		return nil, s.view(), err
	}

	s.rating = rating
	if ok {
		s.wins++
	} else {
		s.fails++
		s.lives--
	}
	s.gained += res.Amount + res.Bonus
	res.Rating = s.rating
	s.lastActivity = e.now()

	log.WithFields(log.Fields{
		"minigame_id": s.ID,
		"user_id":     s.UserID,
		"turn":        turn,
		"success":     ok,
		"amount":      res.Amount,
		"bonus":       res.Bonus,
	}).Info("Ход мини-игры")

	switch {
	case s.wins >= s.goal:
		e.end(ctx, s, OutcomeWon)
	case s.fails >= t.Lives:
		e.end(ctx, s, OutcomeLost)
	}
	if s.state == StateEnded {
		res.Ended = true
		defer s.mu.Unlock()
		return res, s.view(), nil
	}

	next := e.beginCustomer(s)
	s.mu.Unlock()
	return res, e.generateCustomer(ctx, s, next), nil
}

// End завершает игру по желанию игрока, без штрафа.
func (e *Engine) End(ctx context.Context, userID int64) (View, error) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateEnded {
		return s.view(), common.ErrSessionFinished
	}
	e.end(ctx, s, OutcomeQuit)
	return s.view(), nil
}

// Release снимает пользователя с игры (команда администратора).
func (e *Engine) Release(userID int64) (View, bool) {
	s, err := e.lookup(userID)
	if err != nil {
		return View{}, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateEnded {
		e.end(context.Background(), s, OutcomeReleased)
	}
	e.unregister(s)
	return s.view(), true
}

// Sweep завершает игры, простаивающие дольше таймаута.
func (e *Engine) Sweep(now time.Time) []View {
	e.mu.Lock()
	all := make([]*Session, 0, len(e.byUser))
	for _, s := range e.byUser {
		all = append(all, s)
	}
	e.mu.Unlock()

	var out []View
	for _, s := range all {
		s.mu.Lock()
		if s.state != StateEnded && now.Sub(s.lastActivity) > e.tuning.SessionTimeout {
			e.end(context.Background(), s, OutcomeTimedOut)
			out = append(out, s.view())
		}
		s.mu.Unlock()
	}
	return out
}

// end завершает игру и считает итог; вызывать под s.mu.
func (e *Engine) end(ctx context.Context, s *Session, outcome Outcome) {
	s.state = StateEnded
	s.outcome = outcome
	sum := &Summary{
		Outcome:     outcome,
		Wins:        s.wins,
		Goal:        s.goal,
		StartRating: s.startRating,
		Rating:      s.rating,
		Gained:      s.gained,
	}
	if s.business != nil {
		if before, after, err := e.incomeChange(ctx, s); err != nil {
			log.WithError(err).WithField("minigame_id", s.ID).Warn("Не удалось посчитать изменение дохода")
		} else {
			sum.IncomeBefore, sum.IncomeAfter = before, after
		}
	}
	s.summary = sum
	e.unregister(s)

	log.WithFields(log.Fields{
		"minigame_id": s.ID,
		"user_id":     s.UserID,
		"outcome":     outcome.String(),
		"wins":        s.wins,
		"goal":        s.goal,
	}).Info("Мини-игра завершена")
}

// incomeChange — доход для показа при стартовом и текущем рейтинге.
func (e *Engine) incomeChange(ctx context.Context, s *Session) (int64, int64, error) {
	pct, err := e.stock.CurrentPct(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("ошибка чтения биржи: %w", err)
	}
	var entries []ledger.AppliedUpgrade
	err = e.store.InTx(ctx, func(tx ledger.Tx) error {
		p, err := tx.Purchases(ctx, s.UserID)
		if err != nil {
			return err
		}
		entries = p.ForSlot(s.slot)
		return nil
	})
	if err != nil {
		return 0, 0, err
	}
	b := *s.business
	b.Rating = s.startRating
	before := e.model.Display(&b, entries, pct)
	b.Rating = s.rating
	return before, e.model.Display(&b, entries, pct), nil
}

func stateErr(s *Session) error {
	if s.state == StateEnded {
		return common.ErrSessionFinished
	}
	return common.ErrWrongState
}
