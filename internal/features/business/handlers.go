// Package business — handlers.go обрабатывает команды:
// !бизнес, !создать, !собрать, !продать, !слот, !доход, !топ.
package business

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// Handler обрабатывает команды бизнесов.
type Handler struct {
	service *Service
	names   common.UserName
	bot     common.Sender
	topSize int
}

// NewHandler создаёт обработчик. topSize — сколько строк показывать в топах.
func NewHandler(service *Service, names common.UserName, bot common.Sender, topSize int) *Handler {
	return &Handler{service: service, names: names, bot: bot, topSize: topSize}
}

// HandlePassive — !бизнес: все слоты с доходом, накопленным и ценой продажи.
func (h *Handler) HandlePassive(ctx context.Context, chatID, userID int64) {
	ov, err := h.service.Overview(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения бизнесов")
		h.sendMessage(chatID, "❌ Ошибка получения бизнесов")
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🏢 Бизнесы • 📉 Биржа: %.1f%%\n\n", ov.StockPct)
	for _, v := range ov.Slots {
		if v.Business == nil {
			fmt.Fprintf(&sb, "Слот %d — пусто\n\n", v.Index+1)
			continue
		}
		b := v.Business
		fmt.Fprintf(&sb, "Слот %d — %s\n", v.Index+1, b.Name)
		fmt.Fprintf(&sb, "  %s (база %d) • ⭐ %.2f\n", common.FormatRate(b.IncomePerDay), b.BaseIncomePerDay, b.Rating)
		fmt.Fprintf(&sb, "  С биржей: %s\n", common.FormatRate(v.Display))
		fmt.Fprintf(&sb, "  П/П: %d/%d • К сбору: %d • Продано: %d\n", b.Wins, b.Losses, v.Accrued, b.ProductsSold)
		if v.Upgrades > 0 {
			fmt.Fprintf(&sb, "  Апгрейды: %d • Буст: +%.1f%%\n", v.Upgrades, v.BoostPct)
		}
		if v.SellableIn > 0 {
			fmt.Fprintf(&sb, "  Продажа через %s\n", common.FormatWait(v.SellableIn))
		} else {
			fmt.Fprintf(&sb, "  Цена продажи: %s\n", common.FormatBalance(v.SellValue))
		}
		sb.WriteString("\n")
	}
	fmt.Fprintf(&sb, "Новый слот: %s • Баланс: %s", common.FormatBalance(ov.NextSlotCost), common.FormatBalance(ov.Balance))
	h.sendMessage(chatID, sb.String())
}

// HandleIncome — !доход: сводка по всем бизнесам.
func (h *Handler) HandleIncome(ctx context.Context, chatID, userID int64) {
	ov, err := h.service.Overview(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Ошибка получения дохода")
		h.sendMessage(chatID, "❌ Ошибка получения дохода")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"💰 Баланс: %s\n📈 Общий доход: %s\n💵 К сбору: %s\n🏢 %d %s\n⭐ Суммарный рейтинг: %.1f",
		common.FormatBalance(ov.Balance),
		common.FormatRate(ov.CombinedRate),
		common.FormatBalance(ov.Ready),
		ov.Businesses, common.PluralizeBusinesses(ov.Businesses),
		ov.TotalRating,
	))
}

// HandleCreate — !создать <слот> <название> | <описание>.
func (h *Handler) HandleCreate(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Использование: !создать <слот> <название> | <описание>")
		return
	}
	slot, err := common.ParseSlot(args[0])
	if err != nil {
		h.sendMessage(chatID, "❌ Неверный номер слота")
		return
	}
	name, desc := common.SplitTitle(args[1:])

	h.sendMessage(chatID, "⏳ Оцениваем идею...")
	b, err := h.service.Create(ctx, userID, slot, name, desc)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf(
		"✅ Бизнес «%s» открыт в слоте %d\nСложность %d • Доходность %d • Реалистичность %d\n📈 База: %d • Доход: %s",
		b.Name, slot+1,
		b.Scores.Difficulty, b.Scores.Earning, b.Scores.Realistic,
		b.BaseIncomePerDay, common.FormatRate(b.IncomePerDay),
	))
}

// HandleCollect — !собрать [слот].
func (h *Handler) HandleCollect(ctx context.Context, chatID, userID int64, args []string) {
	var amount, balance int64
	var err error
	if len(args) > 0 {
		slot, perr := common.ParseSlot(args[0])
		if perr != nil {
			h.sendMessage(chatID, "❌ Неверный номер слота")
			return
		}
		amount, balance, err = h.service.Collect(ctx, userID, slot)
	} else {
		amount, balance, err = h.service.CollectAll(ctx, userID)
	}
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	if amount == 0 {
		h.sendMessage(chatID, "ℹ️ Собирать пока нечего")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("🤑 Собрано %s. Баланс: %s", common.FormatBalance(amount), common.FormatBalance(balance)))
}

// HandleSell — !продать <слот>.
func (h *Handler) HandleSell(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Использование: !продать <слот>")
		return
	}
	slot, err := common.ParseSlot(args[0])
	if err != nil {
		h.sendMessage(chatID, "❌ Неверный номер слота")
		return
	}
	r, err := h.service.Sell(ctx, userID, slot)
	if err != nil {
		h.sendError(chatID, err)
		return
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "✅ «%s» продан за %s\n", r.Name, common.FormatBalance(r.Value))
	for _, p := range r.Payouts {
		fmt.Fprintf(&sb, "  %s (%.2f%%): %s\n", h.names.DisplayName(ctx, p.InvestorID), p.Pct, common.FormatBalance(p.Amount))
	}
	fmt.Fprintf(&sb, "Вам: %s. Баланс: %s", common.FormatBalance(r.OwnerShare), common.FormatBalance(r.Balance))
	h.sendMessage(chatID, sb.String())
}

// HandleBuySlot — !слот: покупка нового слота.
func (h *Handler) HandleBuySlot(ctx context.Context, chatID, userID int64) {
	slot, cost, err := h.service.BuySlot(ctx, userID)
	if errors.Is(err, common.ErrInsufficientBalance) {
		h.sendMessage(chatID, fmt.Sprintf("❌ Новый слот стоит %s", common.FormatBalance(cost)))
		return
	}
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Куплен слот %d за %s", slot+1, common.FormatBalance(cost)))
}

// HandleLeaderboard — !топ [богачи|бизнесы].
func (h *Handler) HandleLeaderboard(ctx context.Context, chatID int64, args []string) {
	kind := LeaderboardRichest
	if len(args) > 0 {
		switch strings.ToLower(args[0]) {
		case "бизнесы", "business", "businesses":
			kind = LeaderboardBusinesses
		}
	}
	rows, err := h.service.Leaderboard(ctx, kind, h.topSize)
	if err != nil {
		log.WithError(err).Error("Ошибка построения топа")
		h.sendMessage(chatID, "❌ Ошибка построения топа")
		return
	}
	if len(rows) == 0 {
		h.sendMessage(chatID, "🏆 Топ пока пуст")
		return
	}

	var sb strings.Builder
	if kind == LeaderboardRichest {
		sb.WriteString("🏆 Самые богатые (доход в день)\n\n")
		for i, r := range rows {
			fmt.Fprintf(&sb, "%d. %s — %s • ⭐ %.1f • %d %s\n",
				i+1, h.names.DisplayName(ctx, r.UserID), common.FormatRate(r.Income),
				r.Rating, r.Count, common.PluralizeBusinesses(r.Count))
		}
	} else {
		sb.WriteString("🏆 Самые ценные бизнесы\n\n")
		for i, r := range rows {
			fmt.Fprintf(&sb, "%d. %s (%s) — ценность %.1f • %s • ⭐ %.2f\n",
				i+1, r.Name, h.names.DisplayName(ctx, r.UserID), r.Value, common.FormatRate(r.Income), r.Rating)
		}
	}
	h.sendMessage(chatID, sb.String())
}

// sendError переводит ошибку сервиса в понятное сообщение.
func (h *Handler) sendError(chatID int64, err error) {
	var early *TooEarlyError
	switch {
	case errors.As(err, &early):
		h.sendMessage(chatID, fmt.Sprintf("❌ Продать можно через 10 минут после открытия.\n⌚ Осталось: %s", common.FormatWait(early.Remaining)))
	case errors.Is(err, common.ErrInvalidSlot),
		errors.Is(err, common.ErrSlotEmpty),
		errors.Is(err, common.ErrSlotOccupied),
		errors.Is(err, common.ErrEmptyName),
		errors.Is(err, common.ErrNameTooLong),
		errors.Is(err, common.ErrDescriptionTooLong),
		errors.Is(err, common.ErrNoBusiness),
		errors.Is(err, common.ErrInsufficientBalance):
		h.sendMessage(chatID, "❌ "+common.Cause(err).Error())
	default:
		log.WithError(err).Error("Ошибка операции с бизнесом")
		h.sendMessage(chatID, "❌ Что-то пошло не так, попробуйте позже")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
