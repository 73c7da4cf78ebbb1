// Package minigame — handlers.go обрабатывает команды:
// !продажи, !выбрать <слот>, !питч <текст>, !пропустить, !закончить.
package minigame

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// Handler обрабатывает команды мини-игры.
type Handler struct {
	engine *Engine
	bot    common.Sender
}

// NewHandler создаёт обработчик мини-игры.
func NewHandler(engine *Engine, bot common.Sender) *Handler {
	return &Handler{engine: engine, bot: bot}
}

// Playing сообщает, идёт ли у пользователя мини-игра.
func (h *Handler) Playing(userID int64) bool {
	_, err := h.engine.Get(userID)
	return err == nil
}

// HandleStart — !продажи.
func (h *Handler) HandleStart(ctx context.Context, chatID, userID int64) {
	s, err := h.engine.Start(ctx, chatID, userID)
	if errors.Is(err, common.ErrAlreadyInMinigame) && s != nil {
		h.sendMessage(chatID, "ℹ️ Мини-игра уже идёт\n\n"+h.renderStatus(s.View()))
		return
	}
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	v := s.View()
	h.sendMessage(chatID, fmt.Sprintf(
		"🛒 Мини-игра «Продажи»\n\n🎯 Цель: закрыть %d продаж\n❤️ Жизни: %d\n\nВыберите бизнес: !выбрать <слот>",
		v.Goal, v.Lives,
	))
}

// HandlePick — !выбрать <слот> во время мини-игры.
func (h *Handler) HandlePick(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Использование: !выбрать <слот>")
		return
	}
	slot, err := common.ParseSlot(args[0])
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	v, err := h.engine.Select(ctx, userID, slot)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, h.renderStatus(v))
}

// HandlePitch — !питч <текст>.
func (h *Handler) HandlePitch(ctx context.Context, chatID, userID int64, args []string) {
	res, v, err := h.engine.Pitch(ctx, userID, strings.Join(args, " "))
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, h.renderTurn(res, v))
}

// HandleSkip — !пропустить.
func (h *Handler) HandleSkip(ctx context.Context, chatID, userID int64) {
	res, v, err := h.engine.Skip(ctx, userID)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, h.renderTurn(res, v))
}

// HandleEnd — !закончить.
func (h *Handler) HandleEnd(ctx context.Context, chatID, userID int64) {
	v, err := h.engine.End(ctx, userID)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, h.renderSummary(v))
}

// NotifyTimeouts завершает брошенные игры и сообщает о них.
func (h *Handler) NotifyTimeouts(ctx context.Context) int {
	views := h.engine.Sweep(h.engine.now())
	for _, v := range views {
		h.sendMessage(v.ChatID, "⌛ Мини-игра завершена по таймауту\n\n"+h.renderSummary(v))
	}
	return len(views)
}

func (h *Handler) renderStatus(v View) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "🎯 %d/%d • ❤️ %d", v.Wins, v.Goal, v.Lives)
	if v.BusinessName != "" {
		fmt.Fprintf(&sb, " • 🏢 %s ⭐ %.2f", v.BusinessName, v.Rating)
	}
	sb.WriteString("\n")
	switch v.State {
	case StateSelecting:
		sb.WriteString("\nВыберите бизнес: !выбрать <слот>")
	case StateAwaiting:
		fmt.Fprintf(&sb, "\n🧑 %s: «%s»\n\n!питч <текст> • !пропустить • !закончить", v.Persona.Name, v.Customer)
	case StateGenerating, StateJudging:
		sb.WriteString("\n⏳ Подождите…")
	}
	return sb.String()
}

func (h *Handler) renderTurn(res *TurnResult, v View) string {
	var sb strings.Builder
	switch {
	case res.Success:
		fmt.Fprintf(&sb, "✅ Продано! +%s\n", common.FormatBalance(res.Amount))
	case res.Skipped:
		fmt.Fprintf(&sb, "⏭ Пропуск. Штраф %s\n", common.FormatBalance(-res.Amount))
	default:
		fmt.Fprintf(&sb, "❌ Не убедили. Штраф %s\n", common.FormatBalance(-res.Amount))
	}
	if res.Reason != "" && !res.Skipped {
		sb.WriteString("💬 " + res.Reason + "\n")
	}
	if res.Bonus > 0 {
		fmt.Fprintf(&sb, "🏆 Бонус за победу: +%s\n", common.FormatBalance(res.Bonus))
	}
	fmt.Fprintf(&sb, "💰 Баланс: %s\n\n", common.FormatBalance(res.Balance))
	if res.Ended {
		sb.WriteString(h.renderSummary(v))
	} else {
		sb.WriteString(h.renderStatus(v))
	}
	return sb.String()
}

func (h *Handler) renderSummary(v View) string {
	sum := v.Summary
	if sum == nil {
		return "🏁 Мини-игра завершена"
	}
	var sb strings.Builder
	switch sum.Outcome {
	case OutcomeWon:
		fmt.Fprintf(&sb, "🏆 Победа! Продаж: %d/%d\n", sum.Wins, sum.Goal)
	case OutcomeLost:
		fmt.Fprintf(&sb, "🪦 Поражение. Продаж: %d/%d\n", sum.Wins, sum.Goal)
	default:
		fmt.Fprintf(&sb, "🏁 Игра окончена. Продаж: %d/%d\n", sum.Wins, sum.Goal)
	}
	fmt.Fprintf(&sb, "⭐ %.2f → %.2f (%+.2f)\n", sum.StartRating, sum.Rating, sum.Rating-sum.StartRating)
	fmt.Fprintf(&sb, "📈 %s → %s\n", common.FormatRate(sum.IncomeBefore), common.FormatRate(sum.IncomeAfter))
	fmt.Fprintf(&sb, "💵 Итого: %+d", sum.Gained)
	return sb.String()
}

// sendError переводит ошибку движка в понятное сообщение.
func (h *Handler) sendError(chatID int64, err error) {
	switch {
	case errors.Is(err, common.ErrNoBusiness),
		errors.Is(err, common.ErrSessionNotFound),
		errors.Is(err, common.ErrSessionFinished),
		errors.Is(err, common.ErrWrongState),
		errors.Is(err, common.ErrEmptyText),
		errors.Is(err, common.ErrInvalidSlot),
		errors.Is(err, common.ErrSlotEmpty):
		h.sendMessage(chatID, "❌ "+common.Cause(err).Error())
	default:
		log.WithError(err).Error("Ошибка мини-игры")
		h.sendMessage(chatID, "❌ Что-то пошло не так, попробуйте позже")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
