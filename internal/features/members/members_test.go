package members

import (
	"context"
	"errors"
	"testing"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/ledger/ledgertest"
)

func TestRegisterAndResolve(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewRepository(ledgertest.Open(t)))

	if err := svc.EnsureMember(ctx, 10, "Alice", "Алиса", ""); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	id, err := svc.Resolve(ctx, "@alice")
	if err != nil || id != 10 {
		t.Fatalf("resolve @alice = %d, %v", id, err)
	}
	if id, _ := svc.Resolve(ctx, "42"); id != 42 {
		t.Fatalf("numeric id not resolved: %d", id)
	}
	if _, err := svc.Resolve(ctx, "@nobody"); !errors.Is(err, common.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if name := svc.DisplayName(ctx, 10); name != "@Alice" {
		t.Fatalf("display name = %q", name)
	}
	if name := svc.DisplayName(ctx, 77); name != "id77" {
		t.Fatalf("unknown display name = %q", name)
	}
}

func TestUsernameChangeMovesIndex(t *testing.T) {
	ctx := context.Background()
	svc := NewService(NewRepository(ledgertest.Open(t)))

	if err := svc.HandleNewMember(ctx, 5, "old", "Боб", ""); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := svc.EnsureMember(ctx, 5, "new", "Боб", ""); err != nil {
		t.Fatalf("update: %v", err)
	}
	if _, err := svc.GetByUsername(ctx, "old"); !errors.Is(err, common.ErrUserNotFound) {
		t.Fatalf("old username still resolves: %v", err)
	}
	m, err := svc.GetByUsername(ctx, "NEW")
	if err != nil || m.UserID != 5 {
		t.Fatalf("new username lookup: %+v %v", m, err)
	}
	ok, err := svc.IsMember(ctx, 5)
	if err != nil || !ok {
		t.Fatalf("IsMember = %v, %v", ok, err)
	}
}
