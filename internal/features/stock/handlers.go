// Package stock — handlers.go обрабатывает команду !акции.
package stock

import (
	"context"
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// historyShown — сколько последних точек показываем в чате.
const historyShown = 6

// Handler обрабатывает команды биржи.
type Handler struct {
	service *Service
	bot     common.Sender
}

// NewHandler создаёт обработчик биржи.
func NewHandler(service *Service, bot common.Sender) *Handler {
	return &Handler{service: service, bot: bot}
}

// HandleStocks — !акции: текущий процент, множитель дохода и короткая история.
func (h *Handler) HandleStocks(ctx context.Context, chatID int64) {
	snap, err := h.service.Current(ctx)
	if err != nil {
		log.WithError(err).Error("Ошибка получения биржи")
		h.sendMessage(chatID, "❌ Что-то пошло не так, попробуйте позже")
		return
	}
	h.sendMessage(chatID, render(snap))
}

func render(snap *Snapshot) string {
	var sb strings.Builder
	s := snap.Series
	fmt.Fprintf(&sb, "📈 Биржа: %.1f%%\n", s.CurrentPct)
	fmt.Fprintf(&sb, "💹 Множитель дохода: ×%.2f\n", snap.Factor)

	hist := s.History
	if len(hist) > historyShown {
		hist = hist[len(hist)-historyShown:]
	}
	if len(hist) > 1 {
		sb.WriteString("\n🕑 История:\n")
		prev := hist[0].Pct
		for i, p := range hist {
			arrow := "•"
			switch {
			case i == 0:
			case p.Pct > prev:
				arrow = "▲"
			case p.Pct < prev:
				arrow = "▼"
			}
			fmt.Fprintf(&sb, "%s %s %.1f%%\n", p.At.Format("15:04"), arrow, p.Pct)
			prev = p.Pct
		}
	}
	fmt.Fprintf(&sb, "\n⏳ Следующее изменение через %s", common.FormatWait(snap.NextTickIn))
	return sb.String()
}

func (h *Handler) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.bot.Send(msg); err != nil {
		log.WithError(err).Error("Ошибка отправки сообщения")
	}
}
