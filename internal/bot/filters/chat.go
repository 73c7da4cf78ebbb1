// Package filters — chat.go решает, обрабатывать ли сообщение:
// бот работает в основном чате и в личке у его участников.
package filters

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// MemberStore — справочник участников.
type MemberStore interface {
	IsMember(ctx context.Context, userID int64) (bool, error)
	EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error
}

// ChatAPI — то, что фильтру нужно от Telegram. *tgbotapi.BotAPI подходит.
type ChatAPI interface {
	GetChatMember(config tgbotapi.GetChatMemberConfig) (tgbotapi.ChatMember, error)
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
}

// ChatFilter пропускает основной чат и личку участников.
type ChatFilter struct {
	floodChatID int64
	members     MemberStore
	api         ChatAPI
}

// NewChatFilter создаёт фильтр.
func NewChatFilter(floodChatID int64, members MemberStore, api ChatAPI) *ChatFilter {
	return &ChatFilter{
		floodChatID: floodChatID,
		members:     members,
		api:         api,
	}
}

// CheckAccess возвращает true, если сообщение надо обработать.
// Неизвестного в БД собеседника в личке проверяем через Telegram и дописываем в участники.
func (f *ChatFilter) CheckAccess(ctx context.Context, message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil || message.From == nil {
		return false
	}
	if f.floodChatID == 0 {
		log.WithField("component", "ChatFilter").Error("floodChatID is 0 (config bug)")
		return false
	}

	chatID := message.Chat.ID
	userID := message.From.ID
	logger := log.WithFields(log.Fields{
		"component": "ChatFilter",
		"chat_id":   chatID,
		"user_id":   userID,
	})

	if chatID == f.floodChatID {
		return true
	}
	if !message.Chat.IsPrivate() {
		logger.Debug("deny: foreign chat")
		return false
	}

	isMember, err := f.members.IsMember(ctx, userID)
	if err != nil {
		logger.WithError(err).Error("member check failed (db)")
		return false
	}
	if isMember {
		return true
	}

	cm, err := f.api.GetChatMember(tgbotapi.GetChatMemberConfig{
		ChatConfigWithUser: tgbotapi.ChatConfigWithUser{
			ChatID: f.floodChatID,
			UserID: userID,
		},
	})
	if err != nil {
		logger.WithError(err).Error("member check failed (telegram GetChatMember)")
		return false
	}

	switch cm.Status {
	case "creator", "administrator", "member", "restricted":
		if err := f.members.EnsureMember(ctx, userID,
			message.From.UserName, message.From.FirstName, message.From.LastName,
		); err != nil {
			logger.WithError(err).Warn("failed to backfill member (allowing anyway)")
		}
		logger.WithField("tg_status", cm.Status).Info("allow: private (telegram member, backfilled)")
		return true
	default:
		logger.WithField("tg_status", cm.Status).Info("deny: private (not a chat member)")
		msg := tgbotapi.NewMessage(chatID, "❌ Бот работает только для участников основного чата")
		if _, err := f.api.Send(msg); err != nil {
			logger.WithError(err).Warn("failed to send deny message")
		}
		return false
	}
}
