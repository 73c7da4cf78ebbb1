package economy

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/ledger"
	"serotonyl.ru/bizbattle/internal/ledger/ledgertest"
)

func TestGrantAndHistory(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.Open(t)
	svc := NewService(NewRepository(store), time.UTC)

	if _, err := svc.Grant(ctx, 1, 2, 0); !errors.Is(err, common.ErrInvalidAmount) {
		t.Fatalf("expected ErrInvalidAmount, got %v", err)
	}
	for i := 0; i < 7; i++ {
		if _, err := svc.Grant(ctx, 1, 2, 1000); err != nil {
			t.Fatalf("grant: %v", err)
		}
	}
	balance, err := svc.GetBalance(ctx, 2)
	if err != nil || balance != 7100 {
		t.Fatalf("balance = %d, err = %v", balance, err)
	}

	history, err := svc.GetTransactionHistory(ctx, 2)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if !strings.Contains(history, "+1 000 пленок") {
		t.Fatalf("history misses formatted amount:\n%s", history)
	}
	if strings.Count(history, "||") != 2 {
		t.Fatalf("expected spoiler for entries after 5:\n%s", history)
	}
}

func TestHistorySignForOutgoing(t *testing.T) {
	ctx := context.Background()
	store := ledgertest.Open(t)
	svc := NewService(NewRepository(store), time.UTC)

	_ = store.InTx(ctx, func(tx ledger.Tx) error {
		return tx.Journal(ctx, Move(5, 6, 30, TxTypeEquityBuy, "Покупка доли"))
	})
	history, _ := svc.GetTransactionHistory(ctx, 5)
	if !strings.Contains(history, `\-30 пленок`) {
		t.Fatalf("outgoing entry must be negative:\n%s", history)
	}
	empty, _ := svc.GetTransactionHistory(ctx, 99)
	if !strings.Contains(empty, "нет транзакций") {
		t.Fatalf("unexpected empty history: %s", empty)
	}
}
