// Package common — pluralize.go содержит форматирование сумм со знаком,
// чисел с разделителями и процентов.
package common

import "fmt"

// FormatFilmsAmount создаёт строку вида "+100 пленок" или "-50 пленок".
//
// Примеры:
//
//	FormatFilmsAmount(100)  → "+100 пленок"
//	FormatFilmsAmount(-50)  → "-50 пленок"
//	FormatFilmsAmount(1)    → "+1 пленка"
func FormatFilmsAmount(amount int64) string {
	if amount >= 0 {
		return fmt.Sprintf("+%s %s", FormatNumber(amount), PluralizeFilms(amount))
	}
	return fmt.Sprintf("%s %s", FormatNumber(amount), PluralizeFilms(amount))
}

// FormatNumber форматирует число с разделителями тысяч (пробелами).
// Пример: FormatNumber(2350) → "2 350"
func FormatNumber(n int64) string {
	if n < 0 {
		return "-" + FormatNumber(-n)
	}
	if n < 1000 {
		return fmt.Sprintf("%d", n)
	}
	return fmt.Sprintf("%s %03d", FormatNumber(n/1000), n%1000)
}

// FormatPercent форматирует процент с одной цифрой после запятой: "52.3%".
func FormatPercent(p float64) string {
	return fmt.Sprintf("%.1f%%", p)
}
