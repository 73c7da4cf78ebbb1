// Package battle — session.go описывает сессию батла и её снимок для отображения.
//
// Сессия проходит шаги: выбор бизнесов → ожидание старта → раунд N →
// судейство раунда N → раунд N+1 или завершение. Завершить сессию можно
// также сдачей или по таймауту бездействия.
package battle

import (
	"sync"
	"time"

	"serotonyl.ru/bizbattle/internal/judge"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// State — шаг сессии.
type State int

const (
	StateSelecting State = iota
	StateAwaitingStart
	StateRound
	StateJudging
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateSelecting:
		return "selecting"
	case StateAwaitingStart:
		return "awaiting_start"
	case StateRound:
		return "round"
	case StateJudging:
		return "judging"
	case StateFinalized:
		return "finalized"
	}
	return "unknown"
}

// Outcome — чем закончился батл.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeDecided
	OutcomeForfeit
	OutcomeTimedOut
	OutcomeReleased
)

func (o Outcome) String() string {
	switch o {
	case OutcomeDecided:
		return "decided"
	case OutcomeForfeit:
		return "forfeit"
	case OutcomeTimedOut:
		return "timed_out"
	case OutcomeReleased:
		return "released"
	}
	return "none"
}

// player — участник. Индекс в Session.players совпадает с judge.Side:
// A — тот, кто вызвал, B — тот, кого вызвали.
type player struct {
	userID      int64
	slot        int
	business    *ledger.Business
	startRating float64
	rating      float64
	argument    string
	submitted   bool
}

// Session — один батл. Все поля под mu.
type Session struct {
	ID        string
	ChatID    int64
	CreatedAt time.Time

	mu           sync.Mutex
	state        State
	round        int
	players      [2]*player
	winner       judge.Side
	hasWinner    bool
	outcome      Outcome
	lastActivity time.Time
	rounds       []RoundResult
	final        *Final
}

func newSession(id string, chatID, challenger, challenged int64, now time.Time) *Session {
	return &Session{
		ID:           id,
		ChatID:       chatID,
		CreatedAt:    now,
		state:        StateSelecting,
		players:      [2]*player{{userID: challenger, slot: -1}, {userID: challenged, slot: -1}},
		lastActivity: now,
	}
}

func (s *Session) side(userID int64) (judge.Side, bool) {
	for i, p := range s.players {
		if p.userID == userID {
			return judge.Side(i), true
		}
	}
	return judge.SideA, false
}

func (s *Session) bothSelected() bool {
	return s.players[0].business != nil && s.players[1].business != nil
}

func (s *Session) bothSubmitted() bool {
	return s.players[0].submitted && s.players[1].submitted
}

func (s *Session) started() bool {
	return s.round > 0
}

// RoundResult — итог одного раунда.
type RoundResult struct {
	Round     int
	Delta     float64
	AIScore   [2]int
	AIKnown   [2]bool
	Flagged   [2]bool
	Winner    judge.Side
	HasWinner bool
	Source    string
	Reason    string
	Ratings   [2]float64
	Final     *Final
}

// Final — итог батла.
type Final struct {
	Outcome      Outcome
	Winner       judge.Side
	HasWinner    bool
	Ratings      [2]float64
	Persisted    [2]bool
	IncomeBefore [2]int64
	IncomeAfter  [2]int64
}

// PlayerView — участник в снимке.
type PlayerView struct {
	UserID       int64
	Slot         int
	BusinessName string
	StartRating  float64
	Rating       float64
	Submitted    bool
}

// View — снимок сессии; безопасно читать без блокировок.
type View struct {
	ID      string
	ChatID  int64
	State   State
	Round   int
	Players [2]PlayerView
	Outcome Outcome
	Final   *Final
}

// Player возвращает участника по стороне.
func (v View) Player(side judge.Side) PlayerView {
	return v.Players[side]
}

// view снимает копию; вызывать под s.mu.
func (s *Session) view() View {
	v := View{
		ID:      s.ID,
		ChatID:  s.ChatID,
		State:   s.state,
		Round:   s.round,
		Outcome: s.outcome,
	}
	for i, p := range s.players {
		pv := PlayerView{
			UserID:      p.userID,
			Slot:        p.slot,
			StartRating: p.startRating,
			Rating:      p.rating,
			Submitted:   p.submitted,
		}
		if p.business != nil {
			pv.BusinessName = p.business.Name
		}
		v.Players[i] = pv
	}
	if s.final != nil {
		f := *s.final
		v.Final = &f
	}
	return v
}

// View возвращает снимок сессии.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}
