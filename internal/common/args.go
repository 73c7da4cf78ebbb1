// Package common — args.go разбирает аргументы команд.
package common

import (
	"context"
	"math"
	"strconv"
	"strings"
)

// ParseSlot превращает номер слота, как его пишет игрок (с единицы), в индекс.
func ParseSlot(arg string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(arg))
	if err != nil || n < 1 {
		return 0, ErrInvalidSlot
	}
	return n - 1, nil
}

// ParsePercent разбирает процент: "10", "10%", "2,5".
func ParsePercent(arg string) (float64, error) {
	s := strings.TrimSuffix(strings.TrimSpace(arg), "%")
	s = strings.ReplaceAll(s, ",", ".")
	p, err := strconv.ParseFloat(s, 64)
	if err != nil || !ValidPercent(p) {
		return 0, ErrInvalidPercent
	}
	return p, nil
}

// ValidPercent — 0 < p ≤ 100; NaN и бесконечности не проходят.
func ValidPercent(p float64) bool {
	if math.IsNaN(p) || math.IsInf(p, 0) {
		return false
	}
	return p > 0 && p <= 100
}

// SplitTitle делит «название | описание». Без разделителя всё считается названием.
func SplitTitle(args []string) (string, string) {
	text := strings.Join(args, " ")
	name, desc, _ := strings.Cut(text, "|")
	return strings.TrimSpace(name), strings.TrimSpace(desc)
}

// UserName — то, чем обработчики превращают user_id в имя для показа.
type UserName interface {
	DisplayName(ctx context.Context, userID int64) string
}

// Directory находит игроков по @username или id и показывает их имена.
type Directory interface {
	UserName
	Resolve(ctx context.Context, arg string) (int64, error)
}
