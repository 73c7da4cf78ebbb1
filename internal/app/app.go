// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: хранилище, судья, сервисы, обработчики,
// фильтры, планировщик и HTTP API.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/bot"
	"serotonyl.ru/bizbattle/internal/bot/filters"
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
	"serotonyl.ru/bizbattle/internal/httpapi"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/jobs"
	"serotonyl.ru/bizbattle/internal/judge"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// App содержит все компоненты приложения.
type App struct {
	Bot       *bot.Bot
	Scheduler *jobs.Scheduler
	Store     ledger.Store
	BotAPI    *tgbotapi.BotAPI
	// HTTP == nil, если HTTP_ADDR пуст
	HTTP *http.Server
	api  *httpapi.Server
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. Игровые константы и хранилище ===
	tuning, err := LoadTuning(&cfg.StorageConfig)
	if err != nil {
		return nil, err
	}
	loc := common.LoadLocation(cfg.AppTimezone)

	store, err := OpenStore(ctx, &cfg.StorageConfig, tuning)
	if err != nil {
		return nil, err
	}

	// === 2. Telegram Bot API ===
	botAPI, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}
	botAPI.Debug = cfg.AppEnv == "development"
	log.Infof("Авторизован как @%s", botAPI.Self.UserName)

	// === 3. Судья ===
	rnd := common.NewLockedRand(time.Now().UnixNano())
	gemini := judge.NewGeminiClient(judge.GeminiConfig{
		APIKey:  cfg.GeminiAPIKey,
		Model:   cfg.GeminiModel,
		BaseURL: cfg.GeminiBaseURL,
	})
	if !gemini.Available() {
		log.Warn("GEMINI_API_KEY не задан — судья работает на локальных эвристиках")
	}
	j := judge.New(gemini, rnd, judge.ConfigFromTuning(tuning))

	// === 4. Сервисы ===
	model := income.FromTuning(tuning)
	memberService := members.NewService(members.NewRepository(store))
	economyService := economy.NewService(economy.NewRepository(store), loc)
	stockService := stock.NewService(store, rnd, tuning.Stock, model)
	businessService := business.NewService(store, j, stockService, model, tuning.Economy)
	marketService := market.NewService(store, j, tuning.Market, tuning.Economy)
	equityService := equity.NewService(store, model, tuning.Equity)
	battleEngine := battle.NewEngine(store, j, stockService, model, tuning.Battle)
	minigameEngine := minigame.NewEngine(store, j, stockService, model, rnd, tuning.Minigame)
	adminService := admin.NewService(admin.NewRepository(store), cfg, economyService, stockService, battleEngine, minigameEngine)

	// === 5. Обработчики ===
	handlers := bot.Handlers{
		Members:  members.NewHandler(memberService),
		Economy:  economy.NewHandler(economyService, botAPI),
		Business: business.NewHandler(businessService, memberService, botAPI, tuning.Leaderboard.Size),
		Market:   market.NewHandler(marketService, memberService, botAPI),
		Stock:    stock.NewHandler(stockService, botAPI),
		Equity:   equity.NewHandler(equityService, memberService, botAPI),
		Battle:   battle.NewHandler(battleEngine, memberService, botAPI),
		Minigame: minigame.NewHandler(minigameEngine, botAPI),
		Admin:    admin.NewHandler(adminService, memberService, botAPI),
	}

	// === 6. Фильтры и бот ===
	chatFilter := filters.NewChatFilter(cfg.FloodChatID, memberService, botAPI)
	b := bot.New(botAPI, cfg, memberService, handlers, chatFilter)

	// === 7. Планировщик задач ===
	scheduler := jobs.NewScheduler(loc, stockService, equityService, handlers.Battle, handlers.Minigame)

	a := &App{
		Bot:       b,
		Scheduler: scheduler,
		Store:     store,
		BotAPI:    botAPI,
	}

	// === 8. HTTP API ===
	if cfg.HTTPAddr != "" {
		a.api = httpapi.New(httpapi.Deps{
			Store:      store,
			Stock:      stockService,
			Businesses: businessService,
			Market:     marketService,
			Names:      memberService,
			TopSize:    tuning.Leaderboard.Size,
		})
		a.HTTP = &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           a.api.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return a, nil
}

// ServeHTTP запускает HTTP API и блокируется до его остановки.
func (a *App) ServeHTTP() {
	if a.HTTP == nil {
		return
	}
	log.WithField("addr", a.HTTP.Addr).Info("HTTP API запущен")
	if err := a.HTTP.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("HTTP API остановился с ошибкой")
	}
}

// Close останавливает HTTP API и закрывает хранилище.
func (a *App) Close(ctx context.Context) {
	if a.HTTP != nil {
		a.api.Feed().Close()
		if err := a.HTTP.Shutdown(ctx); err != nil {
			log.WithError(err).Warn("HTTP API не остановился вовремя")
		}
	}
	if err := a.Store.Close(); err != nil {
		log.WithError(err).Warn("Ошибка закрытия хранилища")
	}
}
