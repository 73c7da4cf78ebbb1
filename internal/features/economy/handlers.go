// Package economy — handlers.go обрабатывает команды:
// !пленки (баланс), !транзакции (история).
package economy

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// Handler обрабатывает команды экономики.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт новый обработчик экономических команд.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleBalance обрабатывает команду !пленки — показывает баланс.
//
// Формат ответа:
//
//	💰 Баланс: 150 пленок
func (h *Handler) HandleBalance(ctx context.Context, chatID int64, userID int64) {
	balance, err := h.service.GetBalance(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения баланса")
		h.sendMessage(chatID, "❌ Ошибка получения баланса")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("💰 Баланс: %s", common.FormatBalance(balance)))
}

// HandleTransactions обрабатывает команду !транзакции — показывает историю.
func (h *Handler) HandleTransactions(ctx context.Context, chatID int64, userID int64) {
	history, err := h.service.GetTransactionHistory(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения транзакций")
		h.sendMessage(chatID, "❌ Ошибка получения истории транзакций")
		return
	}

	msg := tgbotapi.NewMessage(chatID, history)
	msg.ParseMode = tgbotapi.ModeMarkdownV2
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Warn("MarkdownV2 не принят, отправляем без форматирования")
		h.sendMessage(chatID, history)
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
