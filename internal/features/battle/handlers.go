// Package battle — handlers.go обрабатывает команды:
// !батл @user, !выбрать <слот>, !старт, !аргумент <текст>, !сдаться.
package battle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/judge"
)

// Handler обрабатывает команды батлов.
type Handler struct {
	engine *Engine
	users  common.Directory
	bot    common.Sender
}

// NewHandler создаёт обработчик батлов.
func NewHandler(engine *Engine, users common.Directory, bot common.Sender) *Handler {
	return &Handler{engine: engine, users: users, bot: bot}
}

// InBattle сообщает, участвует ли пользователь в батле.
func (h *Handler) InBattle(userID int64) bool {
	_, err := h.engine.Get(userID)
	return err == nil
}

// HandleChallenge — !батл @user.
func (h *Handler) HandleChallenge(ctx context.Context, chatID, userID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Использование: !батл @user")
		return
	}
	opponent, err := h.users.Resolve(ctx, args[0])
	if err != nil {
		h.sendError(chatID, err)
		return
	}

	s, err := h.engine.Challenge(ctx, chatID, userID, opponent)
	if err != nil {
		if errors.Is(err, common.ErrNoBusiness) {
			h.sendMessage(chatID, "❌ У обоих игроков должен быть хотя бы один бизнес")
			return
		}
		if errors.Is(err, common.ErrAlreadyInBattle) && s != nil {
			v := s.View()
			h.sendMessage(chatID, fmt.Sprintf("❌ Уже идёт батл: %s vs %s",
				h.name(ctx, v.Players[0].UserID), h.name(ctx, v.Players[1].UserID)))
			return
		}
		h.sendError(chatID, err)
		return
	}

	h.sendMessage(chatID, fmt.Sprintf(
		"⚔️ %s вызывает %s на батл!\n\nОба игрока выбирают бизнес: !выбрать <слот>\nЗатем любой из вас пишет !старт",
		h.name(ctx, userID), h.name(ctx, opponent),
	))
	log.WithFields(log.Fields{"battle_id": s.ID, "chat_id": chatID}).Debug("Вызов на батл отправлен")
}

// HandlePick — !выбрать <слот>.
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

	var sb strings.Builder
	for i, p := range v.Players {
		name := "не выбран"
		if p.BusinessName != "" {
			name = p.BusinessName
		}
		fmt.Fprintf(&sb, "%s %s: %s\n", judge.Side(i), h.name(ctx, p.UserID), name)
	}
	if v.State == StateAwaitingStart {
		sb.WriteString("\nВсё готово! Напишите !старт")
	}
	h.sendMessage(chatID, sb.String())
}

// HandleStart — !старт.
func (h *Handler) HandleStart(ctx context.Context, chatID, userID int64) {
	v, err := h.engine.Start(ctx, userID)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	a, b := v.Players[0], v.Players[1]
	h.sendMessage(chatID, fmt.Sprintf(
		"🔔 Раунд 1!\n\nA: %s (%s) ⭐ %.2f\nB: %s (%s) ⭐ %.2f\n\nОтправьте аргумент: !аргумент <почему ваш бизнес лучше>",
		a.BusinessName, h.name(ctx, a.UserID), a.StartRating,
		b.BusinessName, h.name(ctx, b.UserID), b.StartRating,
	))
}

// HandleArgue — !аргумент <текст>.
func (h *Handler) HandleArgue(ctx context.Context, chatID, userID int64, args []string) {
	res, v, err := h.engine.SubmitArgument(ctx, userID, strings.Join(args, " "))
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	if res == nil {
		h.sendMessage(chatID, fmt.Sprintf("✍️ Аргумент принят. Ждём соперника (раунд %d)", v.Round))
		return
	}
	h.sendMessage(chatID, h.renderRound(ctx, res, v))
	if res.Final != nil {
		h.sendMessage(chatID, h.renderFinal(ctx, v))
	}
}

// HandleForfeit — !сдаться.
func (h *Handler) HandleForfeit(ctx context.Context, chatID, userID int64) {
	v, err := h.engine.Forfeit(ctx, userID)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, h.renderFinal(ctx, v))
}

// NotifyTimeouts завершает брошенные батлы и сообщает о них в чаты.
func (h *Handler) NotifyTimeouts(ctx context.Context) int {
	views := h.engine.Sweep(h.engine.now())
	for _, v := range views {
		h.sendMessage(v.ChatID, fmt.Sprintf("⌛ Батл %s vs %s отменён: никто ничего не делал %s",
			h.name(ctx, v.Players[0].UserID), h.name(ctx, v.Players[1].UserID),
			common.FormatWait(h.engine.tuning.SessionTimeout)))
	}
	return len(views)
}

func (h *Handler) renderRound(ctx context.Context, res *RoundResult, v View) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "⚖️ Итоги раунда %d (шаг ±%.2f)\n\n", res.Round, res.Delta)
	for i, p := range v.Players {
		line := fmt.Sprintf("%s %s: ⭐ %.2f", judge.Side(i), p.BusinessName, res.Ratings[i])
		if res.AIKnown[i] {
			line += fmt.Sprintf(" • ИИ %d%%", res.AIScore[i])
		}
		if res.Flagged[i] {
			line += " 🤖"
		}
		sb.WriteString(line + "\n")
	}
	sb.WriteString("\n")
	if res.HasWinner {
		fmt.Fprintf(&sb, "🏆 Раунд за %s (%s)\n", v.Players[res.Winner].BusinessName, h.name(ctx, v.Players[res.Winner].UserID))
	} else {
		sb.WriteString("🤝 Победителя в раунде нет\n")
	}
	if res.Reason != "" {
		sb.WriteString("💬 " + res.Reason + "\n")
	}
	if res.Final == nil {
		fmt.Fprintf(&sb, "\n🔔 Раунд %d! Жду аргументы.", v.Round)
	}
	return sb.String()
}

func (h *Handler) renderFinal(ctx context.Context, v View) string {
	f := v.Final
	if f == nil {
		return "🏁 Батл завершён"
	}
	var sb strings.Builder
	switch {
	case f.Outcome == OutcomeForfeit:
		fmt.Fprintf(&sb, "🏳️ %s сдаётся.\n", h.name(ctx, v.Players[f.Winner.Other()].UserID))
	case !f.HasWinner:
		sb.WriteString("🏁 Батл завершён без победителя.\n")
	}
	if f.HasWinner {
		w := v.Players[f.Winner]
		fmt.Fprintf(&sb, "🏆 Победитель: %s (%s)\n\n", w.BusinessName, h.name(ctx, w.UserID))
	}
	for i, p := range v.Players {
		fmt.Fprintf(&sb, "%s %s: ⭐ %.2f → %.2f", judge.Side(i), p.BusinessName, p.StartRating, f.Ratings[i])
		if f.Persisted[i] {
			fmt.Fprintf(&sb, " • доход %s → %s", common.FormatRate(f.IncomeBefore[i]), common.FormatRate(f.IncomeAfter[i]))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (h *Handler) name(ctx context.Context, userID int64) string {
	return h.users.DisplayName(ctx, userID)
}

// sendError переводит ошибку движка в понятное сообщение.
func (h *Handler) sendError(chatID int64, err error) {
	switch {
	case errors.Is(err, common.ErrSelfBattle),
		errors.Is(err, common.ErrAlreadyInBattle),
		errors.Is(err, common.ErrSessionNotFound),
		errors.Is(err, common.ErrSessionFinished),
		errors.Is(err, common.ErrWrongState),
		errors.Is(err, common.ErrAlreadySubmitted),
		errors.Is(err, common.ErrEmptyText),
		errors.Is(err, common.ErrUserNotFound),
		errors.Is(err, common.ErrInvalidSlot),
		errors.Is(err, common.ErrSlotEmpty):
		h.sendMessage(chatID, "❌ "+common.Cause(err).Error())
	default:
		log.WithError(err).Error("Ошибка батла")
		h.sendMessage(chatID, "❌ Что-то пошло не так, попробуйте позже")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
