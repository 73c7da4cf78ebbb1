// Package common содержит общие утилиты, используемые во всём проекте.
// Сюда входят: русская плюрализация, форматирование сумм и времени, округление.
package common

import (
	"fmt"
	"time"
)

// pluralize выбирает форму слова по правилам русского языка.
//
//   - n%10==1 И n%100!=11 → one (1, 21, 31, 101, ...)
//   - n%10 в [2,3,4] И n%100 НЕ в [12,13,14] → few (2, 3, 4, 22, ...)
//   - остальные случаи → many (0, 5-20, 25-30, 100, ...)
func pluralize(n int64, one, few, many string) string {
	if n < 0 {
		n = -n
	}
	lastDigit := n % 10
	lastTwoDigits := n % 100

	if lastDigit == 1 && lastTwoDigits != 11 {
		return one
	}
	if lastDigit >= 2 && lastDigit <= 4 && (lastTwoDigits < 12 || lastTwoDigits > 14) {
		return few
	}
	return many
}

// PluralizeFilms возвращает правильную форму слова «пленка» для числа n.
//
// Примеры:
//
//	PluralizeFilms(1)  → "пленка"
//	PluralizeFilms(3)  → "пленки"
//	PluralizeFilms(11) → "пленок"
//	PluralizeFilms(21) → "пленка"
func PluralizeFilms(n int64) string {
	return pluralize(n, "пленка", "пленки", "пленок")
}

// PluralizeBusinesses возвращает форму слова «бизнес».
func PluralizeBusinesses(n int) string {
	return pluralize(int64(n), "бизнес", "бизнеса", "бизнесов")
}

// PluralizeSales возвращает форму слова «продажа».
func PluralizeSales(n int) string {
	return pluralize(int64(n), "продажа", "продажи", "продаж")
}

// FormatBalance форматирует баланс в читабельную строку.
// Пример: FormatBalance(150) → "150 пленок"
func FormatBalance(balance int64) string {
	return fmt.Sprintf("%s %s", FormatNumber(balance), PluralizeFilms(balance))
}

// FormatRate форматирует доход в день: "120 пленок/день".
func FormatRate(perDay int64) string {
	return FormatBalance(perDay) + "/день"
}

// FormatDateTime форматирует время как "02.01.2006 15:04" в указанном поясе.
// Если пояс не задан — используется Europe/Moscow.
func FormatDateTime(t time.Time, loc *time.Location) string {
	if loc == nil {
		loc = MoscowLocation()
	}
	return t.In(loc).Format("02.01.2006 15:04")
}

// FormatWait форматирует оставшееся время ожидания: "9м 05с".
func FormatWait(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	mins := int(d / time.Minute)
	secs := int((d % time.Minute) / time.Second)
	return fmt.Sprintf("%dм %02dс", mins, secs)
}

// MoscowLocation возвращает часовой пояс Europe/Moscow (или UTC+3, если tzdata нет).
func MoscowLocation() *time.Location {
	loc, err := time.LoadLocation("Europe/Moscow")
	if err != nil {
		return time.FixedZone("MSK", 3*60*60)
	}
	return loc
}

// LoadLocation загружает часовой пояс по имени, откатываясь на Москву.
func LoadLocation(name string) *time.Location {
	if name == "" {
		return MoscowLocation()
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return MoscowLocation()
	}
	return loc
}
