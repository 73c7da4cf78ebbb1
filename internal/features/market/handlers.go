// Package market — handlers.go обрабатывает команды:
// !рынок, !апгрейд <слот> <название> | <описание>, !купитьапгрейд <id> <слот>.
package market

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// Handler обрабатывает команды рынка.
type Handler struct {
	service *Service
	names   common.UserName
	bot     common.Sender
}

// NewHandler создаёт обработчик команд рынка.
func NewHandler(service *Service, names common.UserName, bot common.Sender) *Handler {
	return &Handler{service: service, names: names, bot: bot}
}

// HandleMarket — !рынок: последние лоты.
func (h *Handler) HandleMarket(ctx context.Context, chatID int64) {
	ups, err := h.service.List(ctx, 0)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения рынка")
		h.sendMessage(chatID, "❌ Ошибка чтения рынка")
		return
	}
	if len(ups) == 0 {
		h.sendMessage(chatID, "🛒 На рынке пока пусто. Выставьте свой апгрейд: !апгрейд <слот> <название> | <описание>")
		return
	}
	var sb strings.Builder
	sb.WriteString("🛒 Рынок апгрейдов\n\n")
	for _, u := range ups {
		fmt.Fprintf(&sb, "#%d %s — %s\n", u.ID, u.Name, common.FormatBalance(u.Price))
		fmt.Fprintf(&sb, "  ⭐ %d/20 • Буст +%.1f%% • %s (%s)\n", u.Rating.Total, u.BoostPct, u.SellerName, h.names.DisplayName(ctx, u.CreatorID))
	}
	sb.WriteString("\nКупить: !купитьапгрейд <id> <слот>")
	h.sendMessage(chatID, sb.String())
}

// HandleCreate — !апгрейд <слот> <название> | <описание>.
func (h *Handler) HandleCreate(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Использование: !апгрейд <слот> <название> | <описание>")
		return
	}
	slot, err := common.ParseSlot(args[0])
	if err != nil {
		h.sendMessage(chatID, "❌ Неверный номер слота")
		return
	}
	name, desc := common.SplitTitle(args[1:])

	h.sendMessage(chatID, "⏳ Оцениваем апгрейд...")
	up, err := h.service.CreateUpgrade(ctx, userID, slot, name, desc)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Апгрейд #%d «%s» выставлен\nРеалистичность %d • Польза %d\nБуст +%.1f%% • Цена %s",
		up.ID, up.Name, up.Rating.Realistic, up.Rating.Useful, up.BoostPct, common.FormatBalance(up.Price),
	))
}

// HandleBuy — !купитьапгрейд <id> <слот>.
func (h *Handler) HandleBuy(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Использование: !купитьапгрейд <id> <слот>")
		return
	}
	id, err := strconv.ParseInt(strings.TrimPrefix(args[0], "#"), 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Неверный id апгрейда")
		return
	}
	slot, err := common.ParseSlot(args[1])
	if err != nil {
		h.sendMessage(chatID, "❌ Неверный номер слота")
		return
	}
	p, err := h.service.BuyUpgrade(ctx, userID, id, slot)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ «%s» применён к слоту %d\nБуст слота: +%.1f%% • Доход %d → %d\n💰 Баланс: %s",
		p.Upgrade.Name, p.Slot+1, p.TotalBoostPct, p.IncomeBefore, p.IncomeAfter, common.FormatBalance(p.Balance),
	))
}

func (h *Handler) sendError(chatID int64, err error) {
	switch {
	case errors.Is(err, common.ErrUpgradeNotFound),
		errors.Is(err, common.ErrOwnUpgrade),
		errors.Is(err, common.ErrUpgradeAlreadyApplied),
		errors.Is(err, common.ErrInsufficientBalance),
		errors.Is(err, common.ErrInvalidSlot),
		errors.Is(err, common.ErrSlotEmpty),
		errors.Is(err, common.ErrEmptyName),
		errors.Is(err, common.ErrNameTooLong),
		errors.Is(err, common.ErrDescriptionTooLong):
		h.sendMessage(chatID, "❌ "+common.Cause(err).Error())
	default:
		log.WithError(err).Error("Ошибка операции на рынке")
		h.sendMessage(chatID, "❌ Что-то пошло не так, попробуйте позже")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
