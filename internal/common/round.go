// Package common — round.go содержит округление денежных и рейтинговых величин.
// Рейтинги и проценты хранятся как float64, поэтому округляем через decimal,
// чтобы 1.0+0.1 давало ровно 1.1, а не 1.1000000000000001.
package common

import (
	"math"

	"github.com/shopspring/decimal"
)

// RoundTo округляет x до places знаков после запятой (банковское округление).
func RoundTo(x float64, places int32) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	f, _ := decimal.NewFromFloat(x).RoundBank(places).Float64()
	return f
}

// RoundInt округляет до целого (половины — к чётному).
func RoundInt(x float64) int64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return 0
	}
	return int64(math.RoundToEven(x))
}

// Clamp ограничивает x отрезком [lo, hi].
func Clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}

// AddRating прибавляет delta к рейтингу, округляет до сотых и не даёт упасть ниже floor.
func AddRating(rating, delta, floor float64) float64 {
	return math.Max(floor, RoundTo(rating+delta, 2))
}
