// Package bot содержит главный модуль бота: polling, фильтры и маршрутизацию команд.
// bot.go принимает готовые обработчики фич и раздаёт им апдейты.
package bot

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/bot/filters"
	"serotonyl.ru/bizbattle/internal/bot/middleware"
	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/features/admin"
	"serotonyl.ru/bizbattle/internal/features/battle"
	"serotonyl.ru/bizbattle/internal/features/business"
	"serotonyl.ru/bizbattle/internal/features/economy"
	"serotonyl.ru/bizbattle/internal/features/equity"
	"serotonyl.ru/bizbattle/internal/features/market"
	"serotonyl.ru/bizbattle/internal/features/members"
	"serotonyl.ru/bizbattle/internal/features/minigame"
	"serotonyl.ru/bizbattle/internal/features/stock"
)

// Handlers — обработчики всех фич.
type Handlers struct {
	Members  *members.Handler
	Economy  *economy.Handler
	Business *business.Handler
	Market   *market.Handler
	Stock    *stock.Handler
	Equity   *equity.Handler
	Battle   *battle.Handler
	Minigame *minigame.Handler
	Admin    *admin.Handler
}

// Bot — главная структура бота, объединяющая все компоненты.
type Bot struct {
	api *tgbotapi.BotAPI
	cfg *config.Config

	chatFilter  *filters.ChatFilter
	rateLimiter *middleware.RateLimiter

	memberService *members.Service
	h             Handlers

	parser *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
}

// New создаёт новый экземпляр бота со всеми зависимостями.
func New(
	api *tgbotapi.BotAPI,
	cfg *config.Config,
	memberService *members.Service,
	handlers Handlers,
	chatFilter *filters.ChatFilter,
) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 64
	}

	return &Bot{
		api:           api,
		cfg:           cfg,
		chatFilter:    chatFilter,
		rateLimiter:   middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
		memberService: memberService,
		h:             handlers,
		parser:        NewCommandParser(),
		inflight:      make(chan struct{}, maxInFlight),
	}
}

// Start запускает polling обновлений от Telegram. Возвращается после отмены ctx.
func (b *Bot) Start(ctx context.Context) {
	defer b.rateLimiter.Close()

	u := tgbotapi.NewUpdate(0)
	u.Timeout = b.cfg.BotUpdateTimeoutSeconds

	updates := b.api.GetUpdatesChan(u)

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Бот запущен и ожидает сообщения...")

	for {
		select {
		case <-ctx.Done():
			log.Info("Бот останавливается (ctx done)...")
			b.api.StopReceivingUpdates()
			return

		case update, ok := <-updates:
			if !ok {
				log.Info("Канал updates закрыт, бот остановлен")
				return
			}

			// лимит параллелизма
			b.inflight <- struct{}{}
			go func(upd tgbotapi.Update) {
				defer func() { <-b.inflight }()
				b.handleUpdate(ctx, upd)
			}(update)
		}
	}
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	defer middleware.RecoverFromPanic(update.UpdateID)

	message := update.Message
	if message == nil || message.Chat == nil {
		return
	}

	// Вступление новых участников в основной чат
	if len(message.NewChatMembers) > 0 {
		if message.Chat.ID == b.cfg.FloodChatID {
			b.h.Members.HandleNewChatMembers(ctx, message.NewChatMembers)
		}
		return
	}

	if message.Text == "" || message.From == nil {
		return
	}

	middleware.LogMessage(message)

	// Доступ: FLOOD_CHAT_ID или личка участника
	if !b.chatFilter.CheckAccess(ctx, message) {
		return
	}

	if !b.rateLimiter.Allow(message.From.ID) {
		log.WithField("user_id", message.From.ID).Debug("rate limited")
		return
	}

	chatID := message.Chat.ID
	userID := message.From.ID

	if err := b.memberService.EnsureMember(ctx, userID,
		message.From.UserName, message.From.FirstName, message.From.LastName,
	); err != nil {
		log.WithError(err).WithField("user_id", userID).Warn("EnsureMember failed")
	}

	// В личке сначала админ-панель
	if message.Chat.IsPrivate() && b.h.Admin.HandleAdminMessage(ctx, chatID, userID, message.Text) {
		return
	}

	cmd, args, isCommand := b.parser.ParseCommand(message.Text)
	if !isCommand {
		return
	}
	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": args,
	}).Debug("routing command")
	b.routeCommand(ctx, chatID, userID, cmd, args)
}

// routeCommand маршрутизирует команду к нужному обработчику.
func (b *Bot) routeCommand(ctx context.Context, chatID, userID int64, cmd string, args []string) {
	if !b.enabled(cmd) {
		b.sendMessage(chatID, "❌ "+common.ErrFeatureDisabled.Error())
		return
	}

	switch cmd {
	case "help", "помощь", "команды":
		b.sendMessage(chatID, helpText)

	// --- Экономика ---
	case "пленки":
		b.h.Economy.HandleBalance(ctx, chatID, userID)
	case "транзакции":
		b.h.Economy.HandleTransactions(ctx, chatID, userID)

	// --- Бизнесы ---
	case "бизнес":
		b.h.Business.HandlePassive(ctx, chatID, userID)
	case "доход":
		b.h.Business.HandleIncome(ctx, chatID, userID)
	case "создать":
		b.h.Business.HandleCreate(ctx, chatID, userID, args)
	case "собрать":
		b.h.Business.HandleCollect(ctx, chatID, userID, args)
	case "продать":
		b.h.Business.HandleSell(ctx, chatID, userID, args)
	case "слот":
		b.h.Business.HandleBuySlot(ctx, chatID, userID)
	case "топ":
		b.h.Business.HandleLeaderboard(ctx, chatID, args)

	// --- Биржа и рынок ---
	case "акции":
		b.h.Stock.HandleStocks(ctx, chatID)
	case "рынок":
		b.h.Market.HandleMarket(ctx, chatID)
	case "апгрейд":
		b.h.Market.HandleCreate(ctx, chatID, userID, args)
	case "купитьапгрейд":
		b.h.Market.HandleBuy(ctx, chatID, userID, args)

	// --- Доли ---
	case "доля":
		b.h.Equity.HandleQuote(ctx, chatID, userID, args)
	case "подтвердить":
		b.h.Equity.HandleConfirm(ctx, chatID, userID)
	case "продатьдолю":
		b.h.Equity.HandleSell(ctx, chatID, userID, args)
	case "доли":
		b.h.Equity.HandleStakes(ctx, chatID, userID, args)

	// --- Батлы ---
	case "батл":
		b.h.Battle.HandleChallenge(ctx, chatID, userID, args)
	case "выбрать":
		if b.pickGoesToMinigame(userID) {
			b.h.Minigame.HandlePick(ctx, chatID, userID, args)
		} else {
			b.h.Battle.HandlePick(ctx, chatID, userID, args)
		}
	case "старт":
		b.h.Battle.HandleStart(ctx, chatID, userID)
	case "аргумент":
		b.h.Battle.HandleArgue(ctx, chatID, userID, args)
	case "сдаться":
		b.h.Battle.HandleForfeit(ctx, chatID, userID)

	// --- Мини-игра ---
	case "продажи":
		b.h.Minigame.HandleStart(ctx, chatID, userID)
	case "питч":
		b.h.Minigame.HandlePitch(ctx, chatID, userID, args)
	case "пропустить":
		b.h.Minigame.HandleSkip(ctx, chatID, userID)
	case "закончить":
		b.h.Minigame.HandleEnd(ctx, chatID, userID)
	}
}

// pickGoesToMinigame: !выбрать уходит в мини-игру, только если она идёт, а батла нет.
func (b *Bot) pickGoesToMinigame(userID int64) bool {
	if !b.cfg.FeatureMinigameEnabled || !b.h.Minigame.Playing(userID) {
		return false
	}
	return !b.cfg.FeatureBattlesEnabled || !b.h.Battle.InBattle(userID)
}

// enabled проверяет флаги фич для команды.
func (b *Bot) enabled(cmd string) bool {
	switch featureOf(cmd) {
	case featureBattle:
		return b.cfg.FeatureBattlesEnabled
	case featureMinigame:
		return b.cfg.FeatureMinigameEnabled
	case featureEquity:
		return b.cfg.FeatureEquityEnabled
	case featurePick:
		return b.cfg.FeatureBattlesEnabled || b.cfg.FeatureMinigameEnabled
	}
	return true
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := b.api.Send(msg); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

// CommandParser парсит русские команды с префиксами ! . /
type CommandParser struct {
	validPrefixes []string
}

// NewCommandParser создаёт парсер команд.
func NewCommandParser() *CommandParser {
	return &CommandParser{
		validPrefixes: []string{"!", ".", "/"},
	}
}

// ParseCommand разбирает текст на команду и аргументы.
// Команда приводится к каноническому русскому имени (см. commands.go).
func (p *CommandParser) ParseCommand(text string) (string, []string, bool) {
	text = strings.TrimSpace(text)

	hasPrefix := false
	for _, prefix := range p.validPrefixes {
		if strings.HasPrefix(text, prefix) {
			text = strings.TrimPrefix(text, prefix)
			hasPrefix = true
			break
		}
	}

	if !hasPrefix {
		return "", nil, false
	}

	parts := strings.Fields(text)
	if len(parts) == 0 {
		return "", nil, false
	}

	var args []string
	if len(parts) > 1 {
		args = parts[1:]
	}

	return canonical(parts[0]), args, true
}
