// Package admin — repository.go хранит попытки входа и сессии администраторов
// в документе admin_auth хранилища.
package admin

import (
	"context"
	"fmt"
	"time"

	"serotonyl.ru/bizbattle/internal/ledger"
)

// Repository работает с документами входа администраторов.
type Repository struct {
	store ledger.Store
}

// NewRepository создаёт репозиторий.
func NewRepository(store ledger.Store) *Repository {
	return &Repository{store: store}
}

// Update выполняет read-modify-write записи входа в одной транзакции.
func (r *Repository) Update(ctx context.Context, userID int64, fn func(a *ledger.AdminAuth) error) error {
	return r.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.AdminAuth(ctx, userID)
		if err != nil {
			return err
		}
		if err := fn(a); err != nil {
			return err
		}
		if err := tx.SaveAdminAuth(ctx, a); err != nil {
			return fmt.Errorf("ошибка сохранения сессии: %w", err)
		}
		return nil
	})
}

// Get возвращает запись входа.
func (r *Repository) Get(ctx context.Context, userID int64) (*ledger.AdminAuth, error) {
	var out *ledger.AdminAuth
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.AdminAuth(ctx, userID)
		return err
	})
	return out, err
}

// Deactivate закрывает сессию.
func (r *Repository) Deactivate(ctx context.Context, userID int64) error {
	return r.Update(ctx, userID, func(a *ledger.AdminAuth) error {
		a.SessionToken = ""
		a.ExpiresAt = time.Time{}
		return nil
	})
}

// Touch обновляет время последней активности.
func (r *Repository) Touch(ctx context.Context, userID int64, now time.Time) error {
	return r.Update(ctx, userID, func(a *ledger.AdminAuth) error {
		a.LastActivity = now
		return nil
	})
}
