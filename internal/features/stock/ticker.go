// Package stock — глобальная биржа: случайное блуждание процента раз в час.
//
// ticker.go содержит чистую часть: применение пропущенных шагов к серии.
package stock

import (
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Initialize запускает биржу с нуля: LastTick = now, одна точка истории.
// Возвращает true, если серия была пустой.
func Initialize(s *ledger.StockSeries, now time.Time) bool {
	if !s.LastTick.IsZero() {
		return false
	}
	s.LastTick = now.UTC()
	if len(s.History) == 0 {
		s.History = []ledger.StockPoint{{At: s.LastTick, Pct: s.CurrentPct}}
	}
	return true
}

// Advance применяет все целые шаги, прошедшие с LastTick.
// Каждый шаг: pct += U(-maxDelta, maxDelta), зажатый в [0, 100], округлённый до десятых.
// LastTick сдвигается ровно на шаг, а не на now, чтобы не терять фазу.
func Advance(s *ledger.StockSeries, now time.Time, rnd common.Random, t config.StockTuning) int {
	if s.LastTick.IsZero() || t.StepInterval <= 0 {
		return 0
	}
	elapsed := now.Sub(s.LastTick)
	if elapsed < t.StepInterval {
		return 0
	}

	steps := int(elapsed / t.StepInterval)
	for i := 0; i < steps; i++ {
		delta := common.Uniform(rnd, -t.MaxDelta, t.MaxDelta)
		s.CurrentPct = common.RoundTo(common.Clamp(s.CurrentPct+delta, 0, 100), 1)
		s.LastTick = s.LastTick.Add(t.StepInterval)
		s.History = append(s.History, ledger.StockPoint{At: s.LastTick, Pct: s.CurrentPct})
	}
	if limit := t.HistoryLimit; limit > 0 && len(s.History) > limit {
		s.History = append([]ledger.StockPoint(nil), s.History[len(s.History)-limit:]...)
	}
	return steps
}

// NextTickIn — сколько осталось до следующего шага.
func NextTickIn(s *ledger.StockSeries, now time.Time, step time.Duration) time.Duration {
	if s.LastTick.IsZero() {
		return step
	}
	left := s.LastTick.Add(step).Sub(now)
	if left < 0 {
		return 0
	}
	return left
}
