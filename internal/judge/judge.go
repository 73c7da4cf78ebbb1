// Package judge — judge.go: операции судьи с таймаутами и откатом на эвристики.
// Ни одна операция не возвращает ошибку: при любом сбое результат
// считается локально, и игра не зависает.
package judge

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// Контракт ответа модели на оценку бизнеса и апгрейда.
var (
	businessSchema = jsonschema.MustCompileString("business_scores.json", `{
		"type": "object",
		"properties": {
			"difficulty": {"type": "number"},
			"earning":    {"type": "number"},
			"realistic":  {"type": "number"}
		}
	}`)
	upgradeSchema = jsonschema.MustCompileString("upgrade_scores.json", `{
		"type": "object",
		"properties": {
			"realistic": {"type": "number"},
			"useful":    {"type": "number"}
		}
	}`)
)

// Side — сторона батла.
type Side int

const (
	SideA Side = iota
	SideB
)

// Other возвращает противоположную сторону.
func (s Side) Other() Side {
	if s == SideA {
		return SideB
	}
	return SideA
}

func (s Side) String() string {
	if s == SideA {
		return "A"
	}
	return "B"
}

// Источники решения о победителе раунда.
const (
	SourceJudge = "judge"
	SourceWords = "words"
	SourceCoin  = "coin"
)

// Verdict — решение по раунду.
type Verdict struct {
	Winner Side
	Source string
}

// Config — таймауты и словари эвристик.
type Config struct {
	ScoreTimeout    time.Duration
	VerdictTimeout  time.Duration
	ExplainTimeout  time.Duration
	CustomerTimeout time.Duration
	PitchTimeout    time.Duration

	BusinessWords []string
	ValueWords    []string
	CustomerWords []string
	MinPitchWords int
	PassScore     int
}

// ConfigFromTuning собирает Config из игровых констант.
func ConfigFromTuning(t config.Tuning) Config {
	return Config{
		ScoreTimeout:    t.Judge.ScoreTimeout,
		VerdictTimeout:  t.Battle.JudgeTimeout,
		ExplainTimeout:  t.Battle.ExplainTimeout,
		CustomerTimeout: t.Minigame.CustomerTimeout,
		PitchTimeout:    t.Minigame.PitchTimeout,
		BusinessWords:   t.Battle.BusinessWords,
		ValueWords:      t.Minigame.ValueWords,
		CustomerWords:   t.Minigame.CustomerWords,
		MinPitchWords:   t.Minigame.MinPitchWords,
		PassScore:       t.Minigame.PassScore,
	}
}

// Judge — судья поверх Generator.
type Judge struct {
	gen Generator
	rnd common.Random
	cfg Config
}

// New создаёт судью. gen == nil — судья всегда недоступен.
func New(gen Generator, rnd common.Random, cfg Config) *Judge {
	return &Judge{gen: gen, rnd: rnd, cfg: cfg}
}

func (j *Judge) ask(ctx context.Context, timeout time.Duration, prompt string) string {
	if j.gen == nil {
		return ""
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	// Generator может не уважать контекст, поэтому ждём в отдельной горутине.
	ch := make(chan string, 1)
	go func() { ch <- j.gen.Generate(ctx, prompt) }()
	select {
	case text := <-ch:
		return strings.TrimSpace(text)
	case <-ctx.Done():
		log.WithField("timeout", timeout).Warn("Судья не уложился в таймаут")
		return ""
	}
}

func toInt(v any, def int) int {
	switch n := v.(type) {
	case json.Number:
		f, err := n.Float64()
		if err != nil {
			return def
		}
		return int(f)
	case float64:
		return int(n)
	default:
		return def
	}
}

func clamp10(v int) int {
	if v < 0 {
		return 0
	}
	if v > 10 {
		return 10
	}
	return v
}

func parseScores(text string, schema *jsonschema.Schema) (map[string]any, bool) {
	data := extractJSON(text)
	if data == nil {
		return nil, false
	}
	if err := schema.Validate(map[string]any(data)); err != nil {
		log.WithError(err).Warn("Ответ судьи не прошёл схему")
		return nil, false
	}
	return data, true
}

// ScoreBusiness оценивает идею бизнеса: сложность, доходность, реалистичность (0–10).
// Пустой ответ — (0,0,0), неразборчивый — (1,1,1). Короткое описание штрафуется на 3.
func (j *Judge) ScoreBusiness(ctx context.Context, name, desc string) ledger.BusinessScores {
	text := j.ask(ctx, j.cfg.ScoreTimeout, businessPrompt(name, desc))
	if text == "" {
		return ledger.BusinessScores{}
	}
	data, ok := parseScores(text, businessSchema)
	if !ok {
		return ledger.BusinessScores{Difficulty: 1, Earning: 1, Realistic: 1, Total: 3}
	}

	d := clamp10(toInt(data["difficulty"], 5))
	e := clamp10(toInt(data["earning"], 10))
	r := clamp10(toInt(data["realistic"], 5))
	if IsShortDescription(desc) {
		d, e, r = max(0, d-3), max(0, e-3), max(0, r-3)
	}
	return ledger.BusinessScores{Difficulty: d, Earning: e, Realistic: r, Total: d + e + r}
}

// ScoreUpgrade оценивает апгрейд: реалистичность и польза (0–10).
// Без ответа — (5,5). Короткое описание штрафуется на 2.
func (j *Judge) ScoreUpgrade(ctx context.Context, name, desc string) ledger.UpgradeRating {
	realistic, useful := 5, 5
	text := j.ask(ctx, j.cfg.ScoreTimeout, upgradePrompt(name, desc))
	if text == "" {
		return upgradeRating(realistic, useful)
	}
	if data, ok := parseScores(text, upgradeSchema); ok {
		realistic = clamp10(toInt(data["realistic"], 5))
		useful = clamp10(toInt(data["useful"], 5))
	}
	if IsShortDescription(desc) {
		realistic, useful = max(0, realistic-2), max(0, useful-2)
	}
	return upgradeRating(realistic, useful)
}

func upgradeRating(realistic, useful int) ledger.UpgradeRating {
	total := realistic + useful
	return ledger.UpgradeRating{
		Realistic: realistic,
		Useful:    useful,
		Total:     total,
		Average:   float64(total) / 2,
	}
}

// DetectAI возвращает вероятность (0–100), что текст написан нейросетью.
// ok == false — детектор недоступен.
func (j *Judge) DetectAI(ctx context.Context, text string) (int, bool) {
	if strings.TrimSpace(text) == "" {
		return 0, false
	}
	resp := j.ask(ctx, j.cfg.VerdictTimeout, detectAIPrompt(text))
	if resp == "" {
		return 0, false
	}
	v, ok := firstInt(resp)
	if !ok {
		return 0, false
	}
	if v > 100 {
		v = 100
	}
	return v, true
}

// PickWinner выбирает более сильный аргумент. Если судья молчит —
// побеждает аргумент длиннее по словам, при равенстве решает монетка.
func (j *Judge) PickWinner(ctx context.Context, nameA, argA, nameB, argB string) Verdict {
	resp := strings.ToUpper(j.ask(ctx, j.cfg.VerdictTimeout, winnerPrompt(nameA, argA, nameB, argB)))
	switch {
	case strings.HasPrefix(resp, "B"):
		return Verdict{Winner: SideB, Source: SourceJudge}
	case strings.HasPrefix(resp, "A"):
		return Verdict{Winner: SideA, Source: SourceJudge}
	}

	wa, wb := WordCount(argA), WordCount(argB)
	if wa != wb {
		if wa > wb {
			return Verdict{Winner: SideA, Source: SourceWords}
		}
		return Verdict{Winner: SideB, Source: SourceWords}
	}
	if j.rnd.Intn(2) == 0 {
		return Verdict{Winner: SideA, Source: SourceCoin}
	}
	return Verdict{Winner: SideB, Source: SourceCoin}
}

// Explain — короткое (1–2 предложения) объяснение решения.
func (j *Judge) Explain(ctx context.Context, winner Side, nameA, argA, nameB, argB string) string {
	winName, loseName, winArg, loseArg := nameA, nameB, argA, argB
	if winner == SideB {
		winName, loseName, winArg, loseArg = nameB, nameA, argB, argA
	}
	resp := j.ask(ctx, j.cfg.ExplainTimeout, explainPrompt(winName, loseName, nameA, argA, nameB, argB))
	if s := firstTwoSentences(resp); s != "" {
		return s
	}
	return reasonFor(winner.String(), winner.Other().String(), winArg, loseArg, j.cfg.BusinessWords)
}

const maxCustomerRunes = 200

// Customer генерирует реплику покупателя: 1–2 коротких предложения, не длиннее 200 символов.
func (j *Judge) Customer(ctx context.Context, p config.Persona, bizName, bizDesc string) string {
	text := j.ask(ctx, j.cfg.CustomerTimeout, customerPrompt(p.Mood, p.Name, p.Need, bizName, bizDesc))
	text = strings.Join(strings.Fields(strings.ReplaceAll(text, "\n", " ")), " ")
	text = strings.Trim(text, `"'`)

	sents := splitSentences(text)
	if len(sents) == 0 {
		text = "I'm a " + p.Name + " looking for something " + p.Need + ". Before I buy, how will this help me?"
		sents = splitSentences(text)
	}
	if len(sents) == 1 {
		follow := "Can you explain briefly how this solves my need?"
		if p.Need != "" {
			follow = "Can you explain briefly how this meets my '" + p.Need + "' need?"
		}
		if !endsWithPunct(sents[0]) {
			sents[0] += "."
		}
		sents = append(sents, follow)
	}

	text = sents[0] + " " + sents[1]
	if len([]rune(text)) > maxCustomerRunes {
		text = sents[0]
		if r := []rune(text); len(r) > maxCustomerRunes {
			text = strings.TrimRight(string(r[:maxCustomerRunes-3]), " ") + "..."
		}
	}
	if !endsWithPunct(text) {
		text += "."
	}
	return text
}

func endsWithPunct(s string) bool {
	return strings.HasSuffix(s, ".") || strings.HasSuffix(s, "!") ||
		strings.HasSuffix(s, "?") || strings.HasSuffix(s, "…")
}

// JudgePitch решает, убедил ли питч покупателя. Без ответа — эвристика.
func (j *Judge) JudgePitch(ctx context.Context, customer, pitch string) (bool, string) {
	verdict := strings.ToUpper(j.ask(ctx, j.cfg.PitchTimeout, pitchPrompt(customer, pitch)))
	switch {
	case strings.HasPrefix(verdict, "YES"):
		return true, "Покупатель убеждён."
	case strings.HasPrefix(verdict, "NO"):
		return false, "Покупатель не убеждён."
	}
	ok := PitchConvincing(pitch, j.cfg.MinPitchWords, j.cfg.PassScore, j.cfg.ValueWords, j.cfg.CustomerWords)
	if ok {
		return true, "Эвристика: убедительно."
	}
	return false, "Эвристика: неубедительно."
}
