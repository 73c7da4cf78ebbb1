// Package judge — внешний судья (LLM) и локальные эвристики на случай его отказа.
//
// gemini.go: HTTP-клиент Gemini. Любая ошибка (нет ключа, сеть, странный
// ответ) превращается в пустую строку; вызывающий код обязан считать её
// «судья недоступен» и включать свою эвристику.
package judge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"
)

// Generator — единственная операция внешнего сервиса: промпт → текст.
// Пустая строка означает недоступность.
type Generator interface {
	Generate(ctx context.Context, prompt string) string
}

// GeminiConfig — параметры подключения к Gemini.
type GeminiConfig struct {
	APIKey     string
	Model      string
	BaseURL    string
	HTTPClient *http.Client
}

// GeminiClient вызывает models/{model}:generateContent.
type GeminiClient struct {
	cfg GeminiConfig
}

// NewGeminiClient создаёт клиента. Без ключа клиент всегда возвращает "".
func NewGeminiClient(cfg GeminiConfig) *GeminiClient {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = "https://generativelanguage.googleapis.com/v1beta"
	}
	if strings.TrimSpace(cfg.Model) == "" {
		cfg.Model = "gemini-2.0-flash"
	}
	return &GeminiClient{cfg: cfg}
}

// Available сообщает, настроен ли ключ.
func (c *GeminiClient) Available() bool {
	return strings.TrimSpace(c.cfg.APIKey) != ""
}

type geminiPart struct {
	Text string `json:"text"`
}

type geminiContent struct {
	Parts []geminiPart `json:"parts"`
}

type geminiRequest struct {
	Contents []geminiContent `json:"contents"`
}

// Generate отправляет промпт и возвращает текст первого кандидата.
func (c *GeminiClient) Generate(ctx context.Context, prompt string) string {
	if !c.Available() {
		return ""
	}
	text, err := c.generate(ctx, prompt)
	if err != nil {
		log.WithError(err).WithField("model", c.cfg.Model).Warn("Судья недоступен, используем эвристику")
		return ""
	}
	return text
}

func (c *GeminiClient) generate(ctx context.Context, prompt string) (string, error) {
	payload, err := json.Marshal(geminiRequest{
		Contents: []geminiContent{{Parts: []geminiPart{{Text: prompt}}}},
	})
	if err != nil {
		return "", fmt.Errorf("ошибка сериализации запроса: %w", err)
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/models/" + url.PathEscape(c.cfg.Model) + ":generateContent"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("ошибка создания запроса: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-goog-api-key", c.cfg.APIKey)

	resp, err := c.cfg.HTTPClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ошибка запроса к Gemini: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return "", fmt.Errorf("ошибка чтения ответа: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg := gjson.GetBytes(body, "error.message").String()
		if msg == "" {
			msg = strings.TrimSpace(string(body))
		}
		return "", fmt.Errorf("gemini вернул %d: %s", resp.StatusCode, msg)
	}

	text := gjson.GetBytes(body, "candidates.0.content.parts.0.text")
	if !text.Exists() {
		return "", fmt.Errorf("в ответе нет текста кандидата")
	}
	return strings.TrimSpace(text.String()), nil
}
