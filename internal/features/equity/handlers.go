// Package equity — handlers.go обрабатывает команды:
// !доля @user <слот> <процент>, !подтвердить, !продатьдолю @user <слот> <процент>, !доли.
package equity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// Handler обрабатывает команды долей.
type Handler struct {
	service *Service
	users   common.Directory
	bot     common.Sender
}

// NewHandler создаёт обработчик команд долей.
func NewHandler(service *Service, users common.Directory, bot common.Sender) *Handler {
	return &Handler{service: service, users: users, bot: bot}
}

// parseTarget разбирает «@user <слот> <процент>».
func (h *Handler) parseTarget(ctx context.Context, args []string) (int64, int, float64, error) {
	if len(args) < 3 {
		return 0, 0, 0, errors.New("мало аргументов")
	}
	ownerID, err := h.users.Resolve(ctx, args[0])
	if err != nil {
		return 0, 0, 0, err
	}
	slot, err := common.ParseSlot(args[1])
	if err != nil {
		return 0, 0, 0, err
	}
	pct, err := common.ParsePercent(args[2])
	if err != nil {
		return 0, 0, 0, err
	}
	return ownerID, slot, pct, nil
}

// HandleQuote — !доля @user <слот> <процент>: котировка, ждёт !подтвердить.
func (h *Handler) HandleQuote(ctx context.Context, chatID, userID int64, args []string) {
	ownerID, slot, pct, err := h.parseTarget(ctx, args)
	if err != nil {
		h.sendUsage(chatID, err, "!доля @user <слот> <процент>")
		return
	}
	q, err := h.service.Quote(ctx, ownerID, slot, userID, pct)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"📄 Доля %.2f%% в «%s» (%s)\nЦена: %s (оценка бизнеса %s)\nСвободно: %.2f%%\nПодтвердите в течение %s: !подтвердить",
		q.Pct, q.BusinessName, h.users.DisplayName(ctx, ownerID),
		common.FormatBalance(q.Cost), common.FormatBalance(q.SellValue),
		q.Available, common.FormatWait(q.ExpiresAt.Sub(h.service.now())),
	))
}

// HandleConfirm — !подтвердить: исполняет котировку по свежей цене.
func (h *Handler) HandleConfirm(ctx context.Context, chatID, userID int64) {
	r, err := h.service.Confirm(ctx, userID)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Куплено %.2f%% «%s» за %s\nВаша доля: %.2f%% • Всего продано: %.2f%%\n💰 Баланс: %s",
		r.Pct, r.BusinessName, common.FormatBalance(r.Amount), r.Holding, r.Staked, common.FormatBalance(r.Balance),
	))
}

// HandleSell — !продатьдолю @user <слот> <процент>: владелец выкупает долю.
func (h *Handler) HandleSell(ctx context.Context, chatID, userID int64, args []string) {
	ownerID, slot, pct, err := h.parseTarget(ctx, args)
	if err != nil {
		h.sendUsage(chatID, err, "!продатьдолю @user <слот> <процент>")
		return
	}
	r, err := h.service.Sell(ctx, ownerID, slot, userID, pct)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Продано %.2f%% «%s» за %s\nОсталось: %.2f%%\n💰 Баланс: %s",
		r.Pct, r.BusinessName, common.FormatBalance(r.Amount), r.Holding, common.FormatBalance(r.Balance),
	))
}

// HandleStakes — !доли: портфель; !доли @user <слот>: кому принадлежит бизнес.
func (h *Handler) HandleStakes(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) >= 2 {
		h.handleHoldings(ctx, chatID, args)
		return
	}
	ps, err := h.service.Portfolio(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения портфеля")
		h.sendMessage(chatID, "❌ Ошибка чтения портфеля")
		return
	}
	if len(ps) == 0 {
		h.sendMessage(chatID, "📊 У вас пока нет долей")
		return
	}
	var sb strings.Builder
	sb.WriteString("📊 Ваши доли\n\n")
	for _, p := range ps {
		fmt.Fprintf(&sb, "• %s, слот %d «%s»: %.2f%% • вложено %d • стоит %d\n",
			h.users.DisplayName(ctx, p.OwnerID), p.Slot+1, p.BusinessName, p.Pct, p.Paid, p.Value)
	}
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) handleHoldings(ctx context.Context, chatID int64, args []string) {
	ownerID, err := h.users.Resolve(ctx, args[0])
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	slot, err := common.ParseSlot(args[1])
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	t, err := h.service.Holdings(ctx, ownerID, slot)
	if err != nil {
		log.WithError(err).Error("Ошибка чтения долей")
		h.sendMessage(chatID, "❌ Ошибка чтения долей")
		return
	}
	if len(t.Stakes) == 0 {
		h.sendMessage(chatID, "📊 Бизнес целиком принадлежит владельцу")
		return
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "📊 Доли в бизнесе %s, слот %d\n\n", h.users.DisplayName(ctx, ownerID), slot+1)
	for _, st := range t.Stakes {
		fmt.Fprintf(&sb, "• %s: %.2f%% (вложено %d)\n", h.users.DisplayName(ctx, st.InvestorID), st.Pct, st.Paid)
	}
	fmt.Fprintf(&sb, "\nСвободно: %.2f%%", 100-t.Staked())
	h.sendMessage(chatID, sb.String())
}

func (h *Handler) sendUsage(chatID int64, err error, usage string) {
	if errors.Is(err, common.ErrUserNotFound) || errors.Is(err, common.ErrInvalidSlot) || errors.Is(err, common.ErrInvalidPercent) {
		h.sendMessage(chatID, "❌ "+common.Cause(err).Error())
		return
	}
	h.sendMessage(chatID, "❌ Использование: "+usage)
}

func (h *Handler) sendError(chatID int64, err error) {
	switch {
	case errors.Is(err, common.ErrSelfTrade),
		errors.Is(err, common.ErrInvalidPercent),
		errors.Is(err, common.ErrOverAllocated),
		errors.Is(err, common.ErrInsufficientBalance),
		errors.Is(err, common.ErrInsufficientOwnership),
		errors.Is(err, common.ErrOwnerInsufficientFunds),
		errors.Is(err, common.ErrQuoteExpired),
		errors.Is(err, common.ErrUserNotFound),
		errors.Is(err, common.ErrInvalidSlot),
		errors.Is(err, common.ErrSlotEmpty):
		h.sendMessage(chatID, "❌ "+common.Cause(err).Error())
	default:
		log.WithError(err).Error("Ошибка операции с долями")
		h.sendMessage(chatID, "❌ Что-то пошло не так, попробуйте позже")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
