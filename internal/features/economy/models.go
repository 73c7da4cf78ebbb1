// Package economy управляет виртуальной валютой «пленки» и журналом её движений.
// models.go описывает типы записей журнала.
package economy

import "serotonyl.ru/bizbattle/internal/ledger"

// Типы записей журнала
const (
	TxTypeCollect         = "collect"          // Сбор дохода бизнесов
	TxTypeSell            = "sell"             // Продажа бизнеса
	TxTypeSlotPurchase    = "slot_purchase"    // Покупка слота
	TxTypeUpgradePurchase = "upgrade_purchase" // Покупка апгрейда на рынке
	TxTypeEquityBuy       = "equity_buy"       // Покупка доли
	TxTypeEquitySell      = "equity_sell"      // Продажа доли владельцу
	TxTypeEquityPayout    = "equity_payout"    // Выплата инвестору при продаже бизнеса
	TxTypeMinigameReward  = "minigame_reward"  // Удачная продажа в мини-игре
	TxTypeMinigamePenalty = "minigame_penalty" // Штраф за провал в мини-игре
	TxTypeMinigameBonus   = "minigame_bonus"   // Бонус за победу в мини-игре
	TxTypeAdminGrant      = "admin_grant"      // Выдача админом
)

// Credit — начисление из системы (доход, награда).
func Credit(userID, amount int64, kind, description string) *ledger.JournalEntry {
	return &ledger.JournalEntry{ToUserID: &userID, Amount: amount, Kind: kind, Description: description}
}

// Debit — списание в систему (покупка слота, штраф).
func Debit(userID, amount int64, kind, description string) *ledger.JournalEntry {
	return &ledger.JournalEntry{FromUserID: &userID, Amount: amount, Kind: kind, Description: description}
}

// Move — перевод между двумя игроками.
func Move(fromUserID, toUserID, amount int64, kind, description string) *ledger.JournalEntry {
	return &ledger.JournalEntry{FromUserID: &fromUserID, ToUserID: &toUserID, Amount: amount, Kind: kind, Description: description}
}
