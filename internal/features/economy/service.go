// Package economy — service.go: баланс, история движений пленок и выдача админом.
package economy

import (
	"context"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// Service управляет экономикой бота (пленки).
type Service struct {
	repo *Repository
	loc  *time.Location
}

// NewService создаёт новый сервис экономики. loc — пояс для дат в истории.
func NewService(repo *Repository, loc *time.Location) *Service {
	return &Service{repo: repo, loc: loc}
}

// GetBalance возвращает текущий баланс пользователя.
func (s *Service) GetBalance(ctx context.Context, userID int64) (int64, error) {
	return s.repo.GetBalance(ctx, userID)
}

// Grant начисляет пленки от имени администратора (или оператора CLI).
func (s *Service) Grant(ctx context.Context, adminID, userID, amount int64) (int64, error) {
	if amount <= 0 {
		return 0, common.ErrInvalidAmount
	}
	entry := Credit(userID, amount, TxTypeAdminGrant, "Выдача администратором")
	balance, err := s.repo.AddBalance(ctx, userID, amount, entry)
	if err != nil {
		return 0, err
	}
	log.WithFields(log.Fields{
		"admin_id": adminID,
		"user_id":  userID,
		"amount":   amount,
	}).Info("Пленки выданы администратором")
	return balance, nil
}

// GetTransactionHistory возвращает историю в MarkdownV2.
// Последние 10 транзакций. Если больше 5 — остальные прячутся под спойлер.
func (s *Service) GetTransactionHistory(ctx context.Context, userID int64) (string, error) {
	transactions, err := s.repo.GetTransactions(ctx, userID, 10)
	if err != nil {
		return "", err
	}

	if len(transactions) == 0 {
		return esc("📋 У вас пока нет транзакций"), nil
	}

	var sb strings.Builder
	sb.WriteString(esc(fmt.Sprintf("📋 Последние %d транзакций:", len(transactions))))
	sb.WriteString("\n\n")

	var lines []string
	for i, tx := range transactions {
		// + если получили, - если отправили
		sign := "+"
		if tx.FromUserID != nil && *tx.FromUserID == userID {
			sign = "-"
		}
		line := fmt.Sprintf("%d. %s | %s%s %s | %s",
			i+1,
			common.FormatDateTime(tx.CreatedAt, s.loc),
			sign,
			common.FormatNumber(tx.Amount),
			common.PluralizeFilms(tx.Amount),
			tx.Description,
		)
		lines = append(lines, esc(line))
	}

	if len(lines) > 5 {
		for _, line := range lines[:5] {
			sb.WriteString(line + "\n")
		}
		sb.WriteString("\n||")
		for _, line := range lines[5:] {
			sb.WriteString(line + "\n")
		}
		sb.WriteString("||")
	} else {
		for _, line := range lines {
			sb.WriteString(line + "\n")
		}
	}

	return sb.String(), nil
}

func esc(s string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdownV2, s)
}
