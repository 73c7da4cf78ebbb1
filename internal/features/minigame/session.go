// Package minigame — session.go описывает сессию мини-игры «продажи» и её снимок.
//
// Шаги: выбор бизнеса → генерация покупателя → ожидание питча → судейство →
// следующий покупатель или конец игры.
package minigame

import (
	"sync"
	"time"

	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// State — шаг сессии.
type State int

const (
	StateSelecting State = iota
	StateGenerating
	StateAwaiting
	StateJudging
	StateEnded
)

func (s State) String() string {
	switch s {
	case StateSelecting:
		return "selecting"
	case StateGenerating:
		return "generating"
	case StateAwaiting:
		return "awaiting"
	case StateJudging:
		return "judging"
	case StateEnded:
		return "ended"
	}
	return "unknown"
}

// Outcome — чем закончилась игра.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeWon
	OutcomeLost
	OutcomeQuit
	OutcomeTimedOut
	OutcomeReleased
)

func (o Outcome) String() string {
	switch o {
	case OutcomeWon:
		return "won"
	case OutcomeLost:
		return "lost"
	case OutcomeQuit:
		return "quit"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeReleased:
		return "released"
	}
	return "none"
}

// Session — одна мини-игра. Все поля под mu.
type Session struct {
	ID        string
	ChatID    int64
	UserID    int64
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	outcome      Outcome
	goal         int
	lives        int
	wins         int
	fails        int
	turn         int
	slot         int
	business     *ledger.Business
	persona      config.Persona
	customer     string
	startRating  float64
	rating       float64
	gained       int64
	lastActivity time.Time
	summary      *Summary
}

// TurnResult — итог одного питча или пропуска.
type TurnResult struct {
	Turn    int
	Success bool
	Skipped bool
	Reason  string
	// Amount — награда (>0) или фактически списанный штраф (<0).
	Amount  int64
	Bonus   int64
	Balance int64
	Rating  float64
	Ended   bool
}

// Summary — итог игры для показа.
type Summary struct {
	Outcome      Outcome
	Wins         int
	Goal         int
	StartRating  float64
	Rating       float64
	IncomeBefore int64
	IncomeAfter  int64
	Gained       int64
}

// View — снимок сессии.
type View struct {
	ID           string
	ChatID       int64
	UserID       int64
	State        State
	Outcome      Outcome
	Goal         int
	Lives        int
	Wins         int
	Fails        int
	Turn         int
	Slot         int
	BusinessName string
	Persona      config.Persona
	Customer     string
	StartRating  float64
	Rating       float64
	Gained       int64
	Summary      *Summary
}

func (s *Session) view() View {
	v := View{
		ID:          s.ID,
		ChatID:      s.ChatID,
		UserID:      s.UserID,
		State:       s.state,
		Outcome:     s.outcome,
		Goal:        s.goal,
		Lives:       s.lives,
		Wins:        s.wins,
		Fails:       s.fails,
		Turn:        s.turn,
		Slot:        s.slot,
		Persona:     s.persona,
		Customer:    s.customer,
		StartRating: s.startRating,
		Rating:      s.rating,
		Gained:      s.gained,
	}
	if s.business != nil {
		v.BusinessName = s.business.Name
	}
	if s.summary != nil {
		sum := *s.summary
		v.Summary = &sum
	}
	return v
}

// View возвращает снимок сессии.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}
