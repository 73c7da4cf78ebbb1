// Package economy — repository.go читает балансы и журнал из хранилища игры.
package economy

import (
	"context"
	"fmt"

	"serotonyl.ru/bizbattle/internal/ledger"
)

// Repository — доступ к балансам и журналу.
type Repository struct {
	store ledger.Store
}

// NewRepository создаёт репозиторий.
func NewRepository(store ledger.Store) *Repository {
	return &Repository{store: store}
}

// GetBalance возвращает баланс (новый счёт — стартовый баланс).
func (r *Repository) GetBalance(ctx context.Context, userID int64) (int64, error) {
	var balance int64
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		balance = a.Balance
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка получения баланса: %w", err)
	}
	return balance, nil
}

// AddBalance начисляет пленки и пишет запись в журнал в одной транзакции.
func (r *Repository) AddBalance(ctx context.Context, userID, amount int64, entry *ledger.JournalEntry) (int64, error) {
	var balance int64
	err := r.store.InTx(ctx, func(tx ledger.Tx) error {
		a, err := tx.Account(ctx, userID)
		if err != nil {
			return err
		}
		a.Balance += amount
		if err := tx.SaveAccount(ctx, a); err != nil {
			return err
		}
		balance = a.Balance
		return tx.Journal(ctx, entry)
	})
	if err != nil {
		return 0, fmt.Errorf("ошибка начисления: %w", err)
	}
	return balance, nil
}

// GetTransactions возвращает последние limit записей журнала пользователя.
func (r *Repository) GetTransactions(ctx context.Context, userID int64, limit int) ([]ledger.JournalEntry, error) {
	return r.store.Transactions(ctx, userID, limit)
}
