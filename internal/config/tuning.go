// Package config — tuning.go описывает игровые константы: стоимость слотов,
// параметры биржи, батлов и мини-игры. Значения по умолчанию совпадают с
// балансом игры; файл GAME_TUNING_FILE (YAML) может переопределить любое поле.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Tuning — все игровые константы.
type Tuning struct {
	Economy     EconomyTuning     `yaml:"economy"`
	Stock       StockTuning       `yaml:"stock"`
	Market      MarketTuning      `yaml:"market"`
	Equity      EquityTuning      `yaml:"equity"`
	Battle      BattleTuning      `yaml:"battle"`
	Minigame    MinigameTuning    `yaml:"minigame"`
	Leaderboard LeaderboardTuning `yaml:"leaderboard"`
	Judge       JudgeTuning       `yaml:"judge"`
}

// EconomyTuning — счета, слоты, продажа бизнеса.
type EconomyTuning struct {
	StartingBalance int64         `yaml:"starting_balance"`
	BaseSlotCost    int64         `yaml:"base_slot_cost"`
	SellMultiplier  float64       `yaml:"sell_multiplier"`
	SellHoldPeriod  time.Duration `yaml:"sell_hold_period"`
	MaxNameRunes    int           `yaml:"max_name_runes"`
	MaxDescRunes    int           `yaml:"max_desc_runes"`
}

// StockTuning — глобальная биржа.
type StockTuning struct {
	StepInterval time.Duration `yaml:"step_interval"`
	MaxDelta     float64       `yaml:"max_delta"`
	HistoryLimit int           `yaml:"history_limit"`
	NeutralPct   float64       `yaml:"neutral_pct"`
}

// MarketTuning — цены апгрейдов.
type MarketTuning struct {
	BasePrice     int64 `yaml:"base_price"`
	PricePerPoint int64 `yaml:"price_per_point"`
	ListLimit     int   `yaml:"list_limit"`
}

// EquityTuning — котировки долей.
type EquityTuning struct {
	QuoteTTL time.Duration `yaml:"quote_ttl"`
}

// BattleTuning — батлы.
type BattleTuning struct {
	BaseDelta      float64       `yaml:"base_delta"`
	DoubleEvery    int           `yaml:"double_every"`
	LossMargin     float64       `yaml:"loss_margin"`
	RatingFloor    float64       `yaml:"rating_floor"`
	AIThreshold    int           `yaml:"ai_threshold"`
	AIPenaltyMult  float64       `yaml:"ai_penalty_multiplier"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
	JudgeTimeout   time.Duration `yaml:"judge_timeout"`
	ExplainTimeout time.Duration `yaml:"explain_timeout"`
	MaxArgRunes    int           `yaml:"max_argument_runes"`
	BusinessWords  []string      `yaml:"business_words"`
}

// Persona — покупатель в мини-игре.
type Persona struct {
	Name string `yaml:"name"`
	Need string `yaml:"need"`
	Mood string `yaml:"mood"`
}

// MinigameTuning — мини-игра «продажи».
type MinigameTuning struct {
	GoalMin         int           `yaml:"goal_min"`
	GoalMax         int           `yaml:"goal_max"`
	Lives           int           `yaml:"lives"`
	RewardMin       int           `yaml:"reward_min"`
	RewardMax       int           `yaml:"reward_max"`
	PenaltyMin      int           `yaml:"penalty_min"`
	PenaltyMax      int           `yaml:"penalty_max"`
	VictoryMin      int           `yaml:"victory_min"`
	VictoryMax      int           `yaml:"victory_max"`
	RatingStep      float64       `yaml:"rating_step"`
	RatingFloor     float64       `yaml:"rating_floor"`
	SessionTimeout  time.Duration `yaml:"session_timeout"`
	CustomerTimeout time.Duration `yaml:"customer_timeout"`
	PitchTimeout    time.Duration `yaml:"pitch_timeout"`
	MinPitchWords   int           `yaml:"min_pitch_words"`
	PassScore       int           `yaml:"pass_score"`
	ValueWords      []string      `yaml:"value_words"`
	CustomerWords   []string      `yaml:"customer_words"`
	Personas        []Persona     `yaml:"personas"`
}

// LeaderboardTuning — таблицы лидеров.
type LeaderboardTuning struct {
	Size int `yaml:"size"`
}

// JudgeTuning — таймауты вызовов судьи при оценке бизнесов и апгрейдов.
type JudgeTuning struct {
	ScoreTimeout time.Duration `yaml:"score_timeout"`
}

// DefaultTuning возвращает игровой баланс по умолчанию.
func DefaultTuning() Tuning {
	return Tuning{
		Economy: EconomyTuning{
			StartingBalance: 100,
			BaseSlotCost:    1000,
			SellMultiplier:  0.5,
			SellHoldPeriod:  10 * time.Minute,
			MaxNameRunes:    64,
			MaxDescRunes:    600,
		},
		Stock: StockTuning{
			StepInterval: time.Hour,
			MaxDelta:     10,
			HistoryLimit: 48,
			NeutralPct:   50,
		},
		Market: MarketTuning{
			BasePrice:     100,
			PricePerPoint: 50,
			ListLimit:     10,
		},
		Equity: EquityTuning{
			QuoteTTL: 2 * time.Minute,
		},
		Battle: BattleTuning{
			BaseDelta:      0.1,
			DoubleEvery:    5,
			LossMargin:     0.5,
			RatingFloor:    0.1,
			AIThreshold:    85,
			AIPenaltyMult:  2,
			SessionTimeout: 5 * time.Minute,
			JudgeTimeout:   8 * time.Second,
			ExplainTimeout: 6 * time.Second,
			MaxArgRunes:    1000,
			BusinessWords: []string{
				"revenue", "sales", "profit", "customers", "growth", "cost", "margin", "market", "demand",
				"выручка", "продажи", "прибыль", "клиент", "рост", "издержки", "маржа", "рынок", "спрос",
			},
		},
		Minigame: MinigameTuning{
			GoalMin:         5,
			GoalMax:         10,
			Lives:           3,
			RewardMin:       10,
			RewardMax:       500,
			PenaltyMin:      10,
			PenaltyMax:      200,
			VictoryMin:      200,
			VictoryMax:      600,
			RatingStep:      0.1,
			RatingFloor:     0,
			SessionTimeout:  5 * time.Minute,
			CustomerTimeout: 20 * time.Second,
			PitchTimeout:    20 * time.Second,
			MinPitchWords:   8,
			PassScore:       3,
			ValueWords: []string{
				"save", "increase", "boost", "improve", "benefit", "value", "roi", "return",
				"сэконом", "увелич", "улучш", "выгод", "польз", "окупа",
			},
			CustomerWords: []string{
				"you", "your", "customers", "client", "audience",
				"вы", "вам", "ваш", "клиент", "аудитори",
			},
			Personas: []Persona{
				{Name: "Tech-savvy student", Need: "affordable but high-quality", Mood: "curious"},
				{Name: "Busy parent", Need: "convenient and reliable", Mood: "practical"},
				{Name: "Small business owner", Need: "cost-effective with clear ROI", Mood: "results-driven"},
				{Name: "Hobbyist", Need: "fun and customizable", Mood: "enthusiastic"},
				{Name: "Eco-conscious buyer", Need: "sustainable and ethical", Mood: "thoughtful"},
			},
		},
		Leaderboard: LeaderboardTuning{Size: 20},
		Judge:       JudgeTuning{ScoreTimeout: 20 * time.Second},
	}
}

// Validate проверяет, что константы не ломают игру.
func (t *Tuning) Validate() error {
	switch {
	case t.Economy.BaseSlotCost <= 0:
		return fmt.Errorf("economy.base_slot_cost должен быть > 0")
	case t.Economy.SellMultiplier < 0:
		return fmt.Errorf("economy.sell_multiplier не может быть отрицательным")
	case t.Stock.StepInterval <= 0:
		return fmt.Errorf("stock.step_interval должен быть > 0")
	case t.Stock.NeutralPct <= 0:
		return fmt.Errorf("stock.neutral_pct должен быть > 0")
	case t.Stock.HistoryLimit <= 0:
		return fmt.Errorf("stock.history_limit должен быть > 0")
	case t.Battle.DoubleEvery <= 0:
		return fmt.Errorf("battle.double_every должен быть > 0")
	case t.Battle.BaseDelta <= 0:
		return fmt.Errorf("battle.base_delta должен быть > 0")
	case t.Minigame.GoalMin <= 0 || t.Minigame.GoalMax < t.Minigame.GoalMin:
		return fmt.Errorf("minigame.goal_min/goal_max некорректны")
	case t.Minigame.Lives <= 0:
		return fmt.Errorf("minigame.lives должен быть > 0")
	case len(t.Minigame.Personas) == 0:
		return fmt.Errorf("minigame.personas не может быть пустым")
	case t.Leaderboard.Size <= 0:
		return fmt.Errorf("leaderboard.size должен быть > 0")
	}
	return nil
}

// LoadTuning читает YAML поверх значений по умолчанию.
// Пустой путь — просто значения по умолчанию.
func LoadTuning(path string) (Tuning, error) {
	t := DefaultTuning()
	if path == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, fmt.Errorf("ошибка чтения %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, fmt.Errorf("ошибка разбора %s: %w", path, err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("%s: %w", path, err)
	}
	return t, nil
}
