// Package members — service.go содержит логику управления участниками.
// Сервис регистрирует новых участников, проверяет членство и
// превращает @username в user_id для батлов, долей и выдачи пленок.
package members

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/common"
)

// Service управляет участниками чата.
type Service struct {
	repo *Repository
}

// NewService создаёт новый сервис участников.
func NewService(repo *Repository) *Service {
	return &Service{repo: repo}
}

// HandleNewMember обрабатывает вступление нового пользователя в чат.
// Если пользователь уже есть (перезашёл) — обновляет его данные.
func (s *Service) HandleNewMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrUserNotFound) {
		return err
	}
	if existing != nil {
		log.WithField("user_id", userID).Info("Участник перезашёл в чат, обновляем данные")
		return s.repo.UpdateInfo(ctx, userID, UpdateInfo{
			Username:  username,
			FirstName: firstName,
			LastName:  lastName,
		})
	}

	member := &Member{
		UserID:    userID,
		Username:  username,
		FirstName: firstName,
		LastName:  lastName,
	}
	if err := s.repo.Create(ctx, member); err != nil {
		return fmt.Errorf("ошибка регистрации нового участника: %w", err)
	}

	log.WithFields(log.Fields{
		"user_id":  userID,
		"username": username,
	}).Info("Новый участник зарегистрирован")
	return nil
}

// IsMember проверяет, является ли пользователь участником чата.
// Используется для валидации доступа к DM.
func (s *Service) IsMember(ctx context.Context, userID int64) (bool, error) {
	return s.repo.Exists(ctx, userID)
}

// GetByUserID возвращает участника по его Telegram user ID.
func (s *Service) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	return s.repo.GetByUserID(ctx, userID)
}

// GetByUsername возвращает участника по @username (с @ или без).
func (s *Service) GetByUsername(ctx context.Context, username string) (*Member, error) {
	return s.repo.GetByUsername(ctx, username)
}

// EnsureMember гарантирует, что пользователь есть в справочнике,
// и подтягивает свежий username. Вызывается на каждое сообщение в чате.
func (s *Service) EnsureMember(ctx context.Context, userID int64, username, firstName, lastName string) error {
	existing, err := s.repo.GetByUserID(ctx, userID)
	if err != nil && !errors.Is(err, common.ErrUserNotFound) {
		return err
	}
	if existing != nil && existing.Username == username && existing.FirstName == firstName && existing.LastName == lastName {
		return nil
	}
	return s.HandleNewMember(ctx, userID, username, firstName, lastName)
}

// DisplayName возвращает имя для показа; незнакомого пользователя зовём по ID.
func (s *Service) DisplayName(ctx context.Context, userID int64) string {
	m, err := s.repo.GetByUserID(ctx, userID)
	if err != nil || m == nil {
		return "id" + strconv.FormatInt(userID, 10)
	}
	if name := m.DisplayName(); name != "" {
		return name
	}
	return "id" + strconv.FormatInt(userID, 10)
}

// Resolve превращает аргумент команды (@username или числовой ID) в user_id.
func (s *Service) Resolve(ctx context.Context, arg string) (int64, error) {
	if id, err := strconv.ParseInt(arg, 10, 64); err == nil && id > 0 {
		return id, nil
	}
	m, err := s.repo.GetByUsername(ctx, arg)
	if err != nil {
		return 0, err
	}
	return m.UserID, nil
}
