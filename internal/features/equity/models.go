// Package equity — доли в чужих бизнесах: котировка, покупка, обратный выкуп владельцем.
// models.go описывает котировки, квитанции и позиции инвестора.
package equity

import "time"

// Quote — цена покупки доли, ожидающая подтверждения.
type Quote struct {
	ID           string    `json:"id"`
	OwnerID      int64     `json:"owner_id"`
	Slot         int       `json:"slot"`
	InvestorID   int64     `json:"investor_id"`
	Pct          float64   `json:"pct"`
	Cost         int64     `json:"cost"`
	SellValue    int64     `json:"sell_value"`
	BusinessName string    `json:"business_name"`
	Available    float64   `json:"available"` // свободный процент на момент котировки
	ExpiresAt    time.Time `json:"expires_at"`
}

// Receipt — итог покупки или продажи доли.
type Receipt struct {
	OwnerID      int64   `json:"owner_id"`
	Slot         int     `json:"slot"`
	InvestorID   int64   `json:"investor_id"`
	BusinessName string  `json:"business_name"`
	Pct          float64 `json:"pct"`
	Amount       int64   `json:"amount"`
	Holding      float64 `json:"holding"` // доля инвестора после операции
	Staked       float64 `json:"staked"`  // сумма всех долей бизнеса после операции
	Balance      int64   `json:"balance"` // баланс инвестора после операции
}

// Position — доля инвестора в одном бизнесе.
type Position struct {
	OwnerID      int64   `json:"owner_id"`
	Slot         int     `json:"slot"`
	BusinessName string  `json:"business_name"`
	Pct          float64 `json:"pct"`
	Paid         int64   `json:"paid"`
	Value        int64   `json:"value"` // сколько стоит доля по текущей цене продажи
}
