// Package admin — handlers.go обрабатывает взаимодействие с админ-панелью.
// Панель работает в личных сообщениях через Reply Keyboard.
// Поток: аутентификация → клавиатура → команда.
package admin

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

// Кнопки клавиатуры.
const (
	btnStock  = "Пересчитать биржу"
	btnHelp   = "Команды"
	btnLogout = "Выйти"
)

const helpText = `🛠 Команды администратора:
выдать @user <сумма> — начислить пленки
освободить @user — снять с батла и мини-игры
биржа — пересчитать биржу
выйти — закрыть сессию`

// Handler обрабатывает админ-команды.
type Handler struct {
	service *Service
	users   common.Directory
	bot     common.Sender
}

// NewHandler создаёт обработчик админ-панели.
func NewHandler(service *Service, users common.Directory, bot common.Sender) *Handler {
	return &Handler{service: service, users: users, bot: bot}
}

// HandleAdminMessage обрабатывает сообщение администратора в личке.
// Возвращает false, если сообщение не для панели.
func (h *Handler) HandleAdminMessage(ctx context.Context, chatID, userID int64, text string) bool {
	if !h.service.IsAdmin(userID) {
		return false
	}
	text = strings.TrimSpace(text)

	state := h.service.GetState(userID)
	if state != nil && state.State == StateAwaitingPassword {
		h.handlePasswordInput(ctx, chatID, userID, text)
		return true
	}

	fields := strings.Fields(strings.ToLower(strings.TrimLeft(text, "!./")))
	if len(fields) == 0 {
		return false
	}
	cmd, args := fields[0], strings.Fields(text)[1:]

	isPanel := cmd == "админ" || cmd == "панель" || cmd == "admin"
	if !h.service.HasActiveSession(ctx, userID) {
		if !isPanel {
			return false
		}
		h.sendMessage(chatID, "🔐 Введите пароль для доступа к админ-панели:")
		h.service.SetState(userID, StateAwaitingPassword)
		return true
	}
	h.service.Touch(ctx, userID)

	switch {
	case isPanel:
		h.showKeyboard(chatID)
	case text == btnHelp || cmd == "команды":
		h.sendMessage(chatID, helpText)
	case text == btnStock || cmd == "биржа":
		h.handleRefresh(ctx, chatID, userID)
	case text == btnLogout || cmd == "выйти" || cmd == "logout":
		h.handleLogout(ctx, chatID, userID)
	case cmd == "выдать" || cmd == "grant":
		h.handleGrant(ctx, chatID, userID, args)
	case cmd == "освободить" || cmd == "release":
		h.handleRelease(ctx, chatID, userID, args)
	default:
		return false
	}
	return true
}

// handlePasswordInput обрабатывает ввод пароля.
func (h *Handler) handlePasswordInput(ctx context.Context, chatID, userID int64, password string) {
	h.service.ClearState(userID)
	if err := h.service.VerifyPassword(ctx, userID, password); err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, "✅ Аутентификация успешна!")
	h.showKeyboard(chatID)
}

func (h *Handler) handleGrant(ctx context.Context, chatID, adminID int64, args []string) {
	if len(args) < 2 {
		h.sendMessage(chatID, "❌ Использование: выдать @user <сумма>")
		return
	}
	target, err := h.users.Resolve(ctx, args[0])
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	amount, err := strconv.ParseInt(args[1], 10, 64)
	if err != nil {
		h.sendMessage(chatID, "❌ Сумма должна быть числом")
		return
	}
	balance, err := h.service.Grant(ctx, adminID, target, amount)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ %s получил %s. Баланс: %s",
		h.users.DisplayName(ctx, target), common.FormatBalance(amount), common.FormatBalance(balance)))
}

func (h *Handler) handleRefresh(ctx context.Context, chatID, adminID int64) {
	series, steps, err := h.service.RefreshStock(ctx, adminID)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("📈 Биржа: %.1f%%. Применено шагов: %d", series.CurrentPct, steps))
}

func (h *Handler) handleRelease(ctx context.Context, chatID, adminID int64, args []string) {
	if len(args) < 1 {
		h.sendMessage(chatID, "❌ Использование: освободить @user")
		return
	}
	target, err := h.users.Resolve(ctx, args[0])
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	r, err := h.service.ReleaseSessions(ctx, adminID, target)
	if err != nil {
		h.sendError(chatID, err)
		return
	}
	if !r.Battle && !r.Minigame {
		h.sendMessage(chatID, "ℹ️ У пользователя нет активных игр")
		return
	}
	h.sendMessage(chatID, fmt.Sprintf("✅ Снято: батл — %s, мини-игра — %s", yesNo(r.Battle), yesNo(r.Minigame)))
}

func (h *Handler) handleLogout(ctx context.Context, chatID, userID int64) {
	if err := h.service.Logout(ctx, userID); err != nil {
		h.sendError(chatID, err)
		return
	}
	msg := tgbotapi.NewMessage(chatID, "👋 Сессия закрыта")
	msg.ReplyMarkup = tgbotapi.NewRemoveKeyboard(true)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}

// showKeyboard отображает клавиатуру админ-панели.
func (h *Handler) showKeyboard(chatID int64) {
	keyboard := tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnStock),
			tgbotapi.NewKeyboardButton(btnHelp),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton(btnLogout),
		),
	)
	msg := tgbotapi.NewMessage(chatID, "🛠 Админ-панель\n\n"+helpText)
	msg.ReplyMarkup = keyboard
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки клавиатуры")
	}
}

func yesNo(b bool) string {
	if b {
		return "да"
	}
	return "нет"
}

// sendError переводит ошибку в понятное сообщение.
func (h *Handler) sendError(chatID int64, err error) {
	switch {
	case errors.Is(err, common.ErrNotAdmin),
		errors.Is(err, common.ErrWrongPassword),
		errors.Is(err, common.ErrTooManyAttempts),
		errors.Is(err, common.ErrSessionExpired),
		errors.Is(err, common.ErrInvalidAmount),
		errors.Is(err, common.ErrUserNotFound):
		h.sendMessage(chatID, "❌ "+common.Cause(err).Error())
	default:
		log.WithError(err).Error("Ошибка админ-панели")
		h.sendMessage(chatID, "❌ Что-то пошло не так, попробуйте позже")
	}
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
