// Package ledger — models.go описывает документы, которые хранит игра:
// счета игроков, рынок апгрейдов, купленные апгрейды, биржу, доли и участников.
// Каждый документ хранится целиком в JSON и целиком же перезаписывается.
package ledger

import (
	"time"

	"serotonyl.ru/bizbattle/internal/common"
)

// Account — счёт игрока. Создаётся при первом обращении и никогда не удаляется.
type Account struct {
	UserID         int64       `json:"user_id"`
	Balance        int64       `json:"balance"`
	Slots          []*Business `json:"slots"` // nil в слоте = пустой слот
	PurchasedSlots int         `json:"purchased_slots"`
	CreatedAt      time.Time   `json:"created_at"`
}

// NewAccount возвращает новый счёт со стартовым балансом и одним пустым слотом.
func NewAccount(userID, startingBalance int64) *Account {
	return &Account{
		UserID:    userID,
		Balance:   startingBalance,
		Slots:     []*Business{nil},
		CreatedAt: time.Now().UTC(),
	}
}

// Normalize чинит то, что могло прийти из старых или битых записей.
func (a *Account) Normalize() {
	if len(a.Slots) == 0 {
		a.Slots = []*Business{nil}
	}
	if a.PurchasedSlots < 0 {
		a.PurchasedSlots = 0
	}
	for _, b := range a.Slots {
		if b == nil {
			continue
		}
		if b.Wins < 0 {
			b.Wins = 0
		}
		if b.Losses < 0 {
			b.Losses = 0
		}
		if b.PendingCollect < 0 {
			b.PendingCollect = 0
		}
	}
}

// Business возвращает бизнес в слоте (слоты нумеруются с нуля).
func (a *Account) Business(slot int) (*Business, error) {
	if slot < 0 || slot >= len(a.Slots) {
		return nil, common.ErrInvalidSlot
	}
	if a.Slots[slot] == nil {
		return nil, common.ErrSlotEmpty
	}
	return a.Slots[slot], nil
}

// HasBusiness сообщает, есть ли у игрока хотя бы один бизнес.
func (a *Account) HasBusiness() bool {
	for _, b := range a.Slots {
		if b != nil {
			return true
		}
	}
	return false
}

// BusinessCount — число занятых слотов.
func (a *Account) BusinessCount() int {
	n := 0
	for _, b := range a.Slots {
		if b != nil {
			n++
		}
	}
	return n
}

// BusinessScores — оценки судьи при создании бизнеса (каждая 0–10).
type BusinessScores struct {
	Difficulty int `json:"difficulty"`
	Earning    int `json:"earning"`
	Realistic  int `json:"realistic"`
	Total      int `json:"total"`
}

// Business — бизнес в слоте.
type Business struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Scores      BusinessScores `json:"scores"`

	// Базовый доход фиксируется при создании и больше не меняется.
	BaseIncomePerDay int64 `json:"base_income_per_day"`
	// Текущий доход с поправкой на биржу, пересчитывается тикером.
	IncomePerDay int64 `json:"income_per_day"`

	Rating float64 `json:"rating"`
	Wins   int     `json:"wins"`
	Losses int     `json:"losses"`

	CreatedAt       time.Time `json:"created_at"`
	LastCollectedAt time.Time `json:"last_collected_at"`

	TotalEarned    int64 `json:"total_earned"`
	ProductsSold   int64 `json:"products_sold"`
	PendingCollect int64 `json:"pending_collect"` // выручка с рынка, ждёт сбора

	// Апгрейды, вшитые прямо в бизнес старыми версиями игры.
	// Читаются только если в журнале покупок для слота ничего нет.
	Upgrades []AppliedUpgrade `json:"upgrades,omitempty"`
}

// SameAs сообщает, что это тот же самый бизнес (слот не пересоздавали).
func (b *Business) SameAs(other *Business) bool {
	if b == nil || other == nil {
		return false
	}
	return b.CreatedAt.Equal(other.CreatedAt) && b.Name == other.Name
}

// AppliedUpgrade — апгрейд, применённый к бизнесу.
type AppliedUpgrade struct {
	ID       int64   `json:"id"`
	Name     string  `json:"name"`
	BoostPct float64 `json:"boost_pct"`
}

// UpgradeRating — оценка апгрейда судьёй.
type UpgradeRating struct {
	Realistic int     `json:"realistic"`
	Useful    int     `json:"useful"`
	Total     int     `json:"total"`
	Average   float64 `json:"average"`
}

// Upgrade — лот на рынке апгрейдов.
type Upgrade struct {
	ID          int64         `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	CreatorID   int64         `json:"creator_id"`
	SellerSlot  int           `json:"seller_slot"`
	SellerName  string        `json:"seller_name"` // название бизнеса-продавца на момент выставления
	Rating      UpgradeRating `json:"rating"`
	BoostPct    float64       `json:"boost_pct"`
	Price       int64         `json:"price"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Market — глобальный рынок. Новые лоты вставляются в начало.
type Market struct {
	LastID   int64     `json:"last_id"`
	Upgrades []Upgrade `json:"upgrades"`
}

// Find возвращает индекс лота или -1.
func (m *Market) Find(id int64) int {
	for i := range m.Upgrades {
		if m.Upgrades[i].ID == id {
			return i
		}
	}
	return -1
}

// Purchases — журнал купленных апгрейдов игрока по слотам.
type Purchases struct {
	UserID int64                    `json:"user_id"`
	Slots  map[int][]AppliedUpgrade `json:"slots"`
}

// ForSlot возвращает апгрейды слота (nil, если их нет).
func (p *Purchases) ForSlot(slot int) []AppliedUpgrade {
	if p == nil || p.Slots == nil {
		return nil
	}
	return p.Slots[slot]
}

// Clear удаляет записи слота.
func (p *Purchases) Clear(slot int) {
	if p.Slots != nil {
		delete(p.Slots, slot)
	}
}

// StockPoint — одна точка истории биржи.
type StockPoint struct {
	At  time.Time `json:"at"`
	Pct float64   `json:"pct"`
}

// StockSeries — глобальная биржа. Нулевой LastTick значит «ещё не запускалась».
type StockSeries struct {
	CurrentPct float64      `json:"current_pct"`
	LastTick   time.Time    `json:"last_tick"`
	History    []StockPoint `json:"history"`
}

// DefaultStock — биржа по умолчанию: нейтральные 50%.
func DefaultStock() *StockSeries {
	return &StockSeries{CurrentPct: 50}
}

// Stake — доля инвестора.
type Stake struct {
	InvestorID int64   `json:"investor_id"`
	Pct        float64 `json:"pct"`
	Paid       int64   `json:"paid"`
}

// EquityTable — таблица долей одного бизнеса (владелец + слот).
type EquityTable struct {
	OwnerID int64   `json:"owner_id"`
	Slot    int     `json:"slot"`
	Stakes  []Stake `json:"stakes"`
}

// Staked — сколько процентов бизнеса уже принадлежит инвесторам.
func (e *EquityTable) Staked() float64 {
	var sum float64
	for _, s := range e.Stakes {
		sum += s.Pct
	}
	return common.RoundTo(sum, 4)
}

// Find возвращает индекс доли инвестора или -1.
func (e *EquityTable) Find(investorID int64) int {
	for i := range e.Stakes {
		if e.Stakes[i].InvestorID == investorID {
			return i
		}
	}
	return -1
}

// Member — участник чата.
type Member struct {
	UserID    int64     `json:"user_id"`
	Username  string    `json:"username"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	JoinedAt  time.Time `json:"joined_at"`
}

// DisplayName возвращает отображаемое имя пользователя.
// Если есть @username — возвращает его, иначе — имя + фамилию.
func (m *Member) DisplayName() string {
	if m.Username != "" {
		return "@" + m.Username
	}
	name := m.FirstName
	if m.LastName != "" {
		name += " " + m.LastName
	}
	return name
}

// AdminAuth — вход администратора: недавние неудачные попытки и текущая сессия.
type AdminAuth struct {
	UserID          int64       `json:"user_id"`
	FailedAttempts  []time.Time `json:"failed_attempts,omitempty"`
	SessionToken    string      `json:"session_token,omitempty"`
	AuthenticatedAt time.Time   `json:"authenticated_at"`
	ExpiresAt       time.Time   `json:"expires_at"`
	LastActivity    time.Time   `json:"last_activity"`
}

// FailedSince считает неудачные попытки после since.
func (a *AdminAuth) FailedSince(since time.Time) int {
	n := 0
	for _, t := range a.FailedAttempts {
		if t.After(since) {
			n++
		}
	}
	return n
}

// Active сообщает, что сессия открыта на момент now.
func (a *AdminAuth) Active(now time.Time) bool {
	return a.SessionToken != "" && now.Before(a.ExpiresAt)
}

// JournalEntry — одно движение пленок. FromUserID == nil — эмиссия (доход, награда),
// ToUserID == nil — списание в никуда (покупка слота, штраф).
type JournalEntry struct {
	ID          int64
	FromUserID  *int64
	ToUserID    *int64
	Amount      int64
	Kind        string
	Description string
	CreatedAt   time.Time
}
