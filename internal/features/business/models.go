// Package business — бизнесы игрока: создание, сбор дохода, продажа, слоты, обзор и топы.
// models.go описывает то, что сервис возвращает обработчикам и HTTP API.
package business

import (
	"fmt"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Виды таблиц лидеров.
const (
	LeaderboardRichest    = "richest"
	LeaderboardBusinesses = "businesses"
)

// SlotView — слот в обзоре. Business == nil — слот пуст.
type SlotView struct {
	Index     int              `json:"index"`
	Business  *ledger.Business `json:"business,omitempty"`
	BoostPct  float64          `json:"boost_pct"`
	Upgrades  int              `json:"upgrades"`
	Effective int64            `json:"effective_income"`
	Display   int64            `json:"display_income"`
	Accrued   int64            `json:"accrued"`
	SellValue int64            `json:"sell_value"`
	// Сколько ещё ждать до возможности продажи (0 — можно продавать)
	SellableIn time.Duration `json:"sellable_in"`
}

// Overview — обзор всех бизнесов игрока.
type Overview struct {
	UserID       int64      `json:"user_id"`
	Balance      int64      `json:"balance"`
	CombinedRate int64      `json:"combined_rate"`
	Ready        int64      `json:"ready"`
	Businesses   int        `json:"businesses"`
	TotalRating  float64    `json:"total_rating"`
	NextSlotCost int64      `json:"next_slot_cost"`
	StockPct     float64    `json:"stock_pct"`
	Slots        []SlotView `json:"slots"`
}

// Payout — выплата инвестору при продаже бизнеса.
type Payout struct {
	InvestorID int64   `json:"investor_id"`
	Pct        float64 `json:"pct"`
	Amount     int64   `json:"amount"`
}

// SaleReceipt — итог продажи бизнеса.
type SaleReceipt struct {
	Name       string   `json:"name"`
	Value      int64    `json:"value"`
	OwnerShare int64    `json:"owner_share"`
	Payouts    []Payout `json:"payouts,omitempty"`
	Balance    int64    `json:"balance"`
}

// LeaderRow — строка таблицы лидеров.
// Для richest: Income — сумма income_per_day, Rating — сумма рейтингов, Count — число бизнесов.
// Для businesses: Name — название, Income — income_per_day, Value — base × rating.
type LeaderRow struct {
	UserID int64   `json:"user_id"`
	Name   string  `json:"name,omitempty"`
	Income int64   `json:"income"`
	Rating float64 `json:"rating"`
	Count  int     `json:"count,omitempty"`
	Value  float64 `json:"value,omitempty"`
}

// TooEarlyError — бизнес ещё в периоде удержания.
type TooEarlyError struct {
	Remaining time.Duration
}

func (e *TooEarlyError) Error() string {
	return fmt.Sprintf("%s: осталось %s", common.ErrSellTooEarly, common.FormatWait(e.Remaining))
}

func (e *TooEarlyError) Unwrap() error { return common.ErrSellTooEarly }

// minRating — нижняя граница рейтинга в топах и суммарном рейтинге.
const minRating = 0.1

func clampRating(r float64) float64 {
	if r < minRating {
		return minRating
	}
	return r
}
