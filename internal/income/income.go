// Package income — единственное место, где считается доход бизнеса.
//
// Все функции чистые: одинаковый вход даёт побитово одинаковый результат,
// поэтому профиль, батл, продажа и доли видят одни и те же числа.
package income

import (
	"math"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Параметры модели дохода по умолчанию.
const (
	NeutralStockPct = 50.0
	SellMultiplier  = 0.5
	BaseSlotCost    = 1000
)

// Model хранит параметры, которые можно переопределить файлом настроек.
type Model struct {
	NeutralPct     float64
	SellMultiplier float64
	BaseSlotCost   int64
}

// Default — модель с игровым балансом по умолчанию.
var Default = Model{
	NeutralPct:     NeutralStockPct,
	SellMultiplier: SellMultiplier,
	BaseSlotCost:   BaseSlotCost,
}

// FromTuning собирает модель из игровых констант.
func FromTuning(t config.Tuning) Model {
	return Model{
		NeutralPct:     t.Stock.NeutralPct,
		SellMultiplier: t.Economy.SellMultiplier,
		BaseSlotCost:   t.Economy.BaseSlotCost,
	}
}

// TotalBoostPct суммирует бусты апгрейдов слота.
// Записи журнала покупок имеют приоритет; если их нет, берутся бусты,
// вшитые в сам бизнес старыми версиями.
func TotalBoostPct(b *ledger.Business, entries []ledger.AppliedUpgrade) float64 {
	src := entries
	if len(src) == 0 && b != nil {
		src = b.Upgrades
	}
	var sum float64
	for _, u := range src {
		sum += u.BoostPct
	}
	return sum
}

// Effective — эффективный доход: base × rating × (1 + boost/100), не меньше нуля.
func Effective(b *ledger.Business, entries []ledger.AppliedUpgrade) int64 {
	if b == nil {
		return 0
	}
	v := float64(b.BaseIncomePerDay) * b.Rating * (1 + TotalBoostPct(b, entries)/100)
	if v <= 0 || math.IsNaN(v) {
		return 0
	}
	return common.RoundInt(v)
}

// StockFactor — множитель биржи: pct / neutral. Ноль при нулевой бирже.
func (m Model) StockFactor(pct float64) float64 {
	if pct <= 0 || m.NeutralPct <= 0 {
		return 0
	}
	return pct / m.NeutralPct
}

// Display — доход для показа: эффективный доход с поправкой на биржу.
func (m Model) Display(b *ledger.Business, entries []ledger.AppliedUpgrade, pct float64) int64 {
	return common.RoundInt(float64(Effective(b, entries)) * m.StockFactor(pct))
}

// StockAdjusted — income_per_day для базового дохода при данной бирже.
func (m Model) StockAdjusted(base int64, pct float64) int64 {
	return common.RoundInt(float64(base) * m.StockFactor(pct))
}

// Accrued — сколько накопилось к сбору: дни с последнего сбора × income_per_day
// плюс выручка с рынка. Дробная часть отбрасывается.
func Accrued(b *ledger.Business, now time.Time) int64 {
	if b == nil {
		return 0
	}
	since := b.LastCollectedAt
	if since.IsZero() {
		since = b.CreatedAt
	}
	var days float64
	if !since.IsZero() {
		if elapsed := now.Sub(since); elapsed > 0 {
			days = elapsed.Seconds() / 86400
		}
	}
	total := days*float64(b.IncomePerDay) + float64(b.PendingCollect)
	if total <= 0 {
		return 0
	}
	return int64(total)
}

// SellValue — цена продажи: эффективный доход × множитель + накопленное.
func (m Model) SellValue(b *ledger.Business, entries []ledger.AppliedUpgrade, now time.Time) int64 {
	return int64(float64(Effective(b, entries))*m.SellMultiplier) + Accrued(b, now)
}

// NextSlotCost — цена следующего слота: удваивается с каждой покупкой.
func (m Model) NextSlotCost(purchased int) int64 {
	if purchased < 0 {
		purchased = 0
	}
	if purchased > 40 {
		purchased = 40
	}
	return m.BaseSlotCost << uint(purchased)
}

// StockFactor, Display, StockAdjusted, SellValue и NextSlotCost с балансом по умолчанию.

func StockFactor(pct float64) float64 { return Default.StockFactor(pct) }

func Display(b *ledger.Business, entries []ledger.AppliedUpgrade, pct float64) int64 {
	return Default.Display(b, entries, pct)
}

func StockAdjusted(base int64, pct float64) int64 { return Default.StockAdjusted(base, pct) }

func SellValue(b *ledger.Business, entries []ledger.AppliedUpgrade, now time.Time) int64 {
	return Default.SellValue(b, entries, now)
}

func NextSlotCost(purchased int) int64 { return Default.NextSlotCost(purchased) }
