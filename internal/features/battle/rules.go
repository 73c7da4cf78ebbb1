// Package battle — rules.go содержит арифметику рейтинга: размер шага раунда,
// применение вердикта и проверку проигрыша.
package battle

import (
	"math"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/judge"
)

// RoundDelta — изменение рейтинга в раунде n: base × 2^⌊(n−1)/every⌋, до сотых.
func RoundDelta(round int, t config.BattleTuning) float64 {
	if round < 1 {
		round = 1
	}
	every := t.DoubleEvery
	if every <= 0 {
		every = 1
	}
	return common.RoundTo(t.BaseDelta*math.Pow(2, float64((round-1)/every)), 2)
}

// applyVerdict меняет рейтинги по итогам раунда.
// Пойманный на нейросети теряет двойной шаг; если пойманы оба — оба теряют,
// победителя нет. Иначе победитель получает шаг, проигравший его теряет.
func applyVerdict(ratings [2]float64, delta float64, flagged [2]bool, verdict judge.Side, t config.BattleTuning) ([2]float64, judge.Side, bool) {
	double := common.RoundTo(delta*t.AIPenaltyMult, 2)
	floor := t.RatingFloor
	out := ratings

	switch {
	case flagged[0] && flagged[1]:
		out[0] = common.AddRating(out[0], -double, floor)
		out[1] = common.AddRating(out[1], -double, floor)
		return out, judge.SideA, false
	case flagged[0] || flagged[1]:
		cheat := judge.SideA
		if flagged[1] {
			cheat = judge.SideB
		}
		out[cheat] = common.AddRating(out[cheat], -double, floor)
		out[cheat.Other()] = common.AddRating(out[cheat.Other()], double, floor)
		return out, cheat.Other(), true
	}

	out[verdict] = common.AddRating(out[verdict], delta, floor)
	out[verdict.Other()] = common.AddRating(out[verdict.Other()], -delta, floor)
	return out, verdict, true
}

// lossThreshold — рейтинг, на котором игрок проигрывает.
func lossThreshold(start float64, t config.BattleTuning) float64 {
	return math.Max(common.RoundTo(start-t.LossMargin, 2), t.RatingFloor)
}

// loser ищет проигравшего. Если порог пересекли оба, проигрывает тот,
// кто ушёл под свой порог глубже; при равенстве побеждает вызванный (B).
func loser(start, current [2]float64, t config.BattleTuning) (judge.Side, bool) {
	var crossed [2]bool
	var margin [2]float64
	for i := range current {
		th := lossThreshold(start[i], t)
		crossed[i] = current[i] <= th
		margin[i] = common.RoundTo(th-current[i], 2)
	}
	switch {
	case crossed[0] && crossed[1]:
		if margin[1] > margin[0] {
			return judge.SideB, true
		}
		return judge.SideA, true
	case crossed[0]:
		return judge.SideA, true
	case crossed[1]:
		return judge.SideB, true
	}
	return judge.SideA, false
}
