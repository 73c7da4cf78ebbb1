// Package members — repository.go хранит участников в документах хранилища игры.
// Индекс username → user_id поддерживает само хранилище.
package members

import (
	"context"
	"errors"
	"fmt"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/ledger"
)

type Repository struct {
	store ledger.Store
}

func NewRepository(store ledger.Store) *Repository {
	return &Repository{store: store}
}

// Create добавляет нового участника. Если он уже есть — обновляет только имя/username.
func (r *Repository) Create(ctx context.Context, m *Member) error {
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		existing, err := tx.Member(ctx, m.UserID)
		if err != nil {
			return err
		}
		if existing != nil {
			m.JoinedAt = existing.JoinedAt
		}
		if m.JoinedAt.IsZero() {
			m.JoinedAt = time.Now().UTC()
		}
		return tx.SaveMember(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("ошибка создания/обновления участника: %w", err)
	}
	return nil
}

// GetByUserID возвращает участника или common.ErrUserNotFound.
func (r *Repository) GetByUserID(ctx context.Context, userID int64) (*Member, error) {
	var m *Member
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		m, err = tx.Member(ctx, userID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка получения участника: %w", err)
	}
	if m == nil {
		return nil, common.ErrUserNotFound
	}
	return m, nil
}

// GetByUsername ищет участника по @username без учёта регистра.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*Member, error) {
	var m *Member
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		m, err = tx.MemberByUsername(ctx, username)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка поиска участника по username: %w", err)
	}
	if m == nil {
		return nil, common.ErrUserNotFound
	}
	return m, nil
}

// UpdateInfo обновляет имя и username существующего участника.
func (r *Repository) UpdateInfo(ctx context.Context, userID int64, info UpdateInfo) error {
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		m, err := tx.Member(ctx, userID)
		if err != nil {
			return err
		}
		if m == nil {
			return common.ErrUserNotFound
		}
		m.Username = info.Username
		m.FirstName = info.FirstName
		m.LastName = info.LastName
		return tx.SaveMember(ctx, m)
	})
	if err != nil {
		return fmt.Errorf("ошибка обновления участника: %w", err)
	}
	return nil
}

// Exists проверяет, зарегистрирован ли пользователь.
func (r *Repository) Exists(ctx context.Context, userID int64) (bool, error) {
	_, err := r.GetByUserID(ctx, userID)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, common.ErrUserNotFound) {
		return false, nil
	}
	return false, err
}
