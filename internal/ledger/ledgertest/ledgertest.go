// Package ledgertest открывает временное хранилище SQLite для тестов.
package ledgertest

import (
	"context"
	"path/filepath"
	"testing"

	"serotonyl.ru/bizbattle/internal/ledger"
)

// Open создаёт хранилище в t.TempDir() со стартовым балансом 100.
func Open(t testing.TB) *ledger.SQLiteStore {
	t.Helper()
	s, err := ledger.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "ledger.db"), ledger.Options{StartingBalance: 100})
	if err != nil {
		t.Fatalf("open ledger: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// Seed сохраняет счёт в отдельной транзакции.
func Seed(t testing.TB, s ledger.Store, a *ledger.Account) {
	t.Helper()
	ctx := context.Background()
	if err := s.InTx(ctx, func(tx ledger.Tx) error { return tx.SaveAccount(ctx, a) }); err != nil {
		t.Fatalf("seed account %d: %v", a.UserID, err)
	}
}

// Account читает счёт в отдельной транзакции.
func Account(t testing.TB, s ledger.Store, userID int64) *ledger.Account {
	t.Helper()
	ctx := context.Background()
	var out *ledger.Account
	err := s.InTx(ctx, func(tx ledger.Tx) error {
		var err error
		out, err = tx.Account(ctx, userID)
		return err
	})
	if err != nil {
		t.Fatalf("read account %d: %v", userID, err)
	}
	return out
}

// Rand — детерминированный источник: Float64 и Intn берутся по кругу.
type Rand struct {
	Floats []float64
	Ints   []int
	fi, ii int
}

func (r *Rand) Float64() float64 {
	if len(r.Floats) == 0 {
		return 0.5
	}
	v := r.Floats[r.fi%len(r.Floats)]
	r.fi++
	return v
}

func (r *Rand) Intn(n int) int {
	if len(r.Ints) == 0 || n <= 0 {
		return 0
	}
	v := r.Ints[r.ii%len(r.Ints)]
	r.ii++
	if v >= n {
		v = n - 1
	}
	return v
}
