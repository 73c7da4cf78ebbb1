package admin

import (
	"context"
	"errors"
	"testing"
	"time"

	"serotonyl.ru/bizbattle/internal/common"
	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/features/economy"
	"serotonyl.ru/bizbattle/internal/features/minigame"
	"serotonyl.ru/bizbattle/internal/income"
	"serotonyl.ru/bizbattle/internal/ledger"
	"serotonyl.ru/bizbattle/internal/ledger/ledgertest"
)

type noStock struct{}

func (noStock) Refresh(context.Context) (*ledger.StockSeries, int, error) {
	return ledger.DefaultStock(), 0, nil
}

func (noStock) CurrentPct(context.Context) (float64, error) { return 50, nil }

const adminID = 7

func newService(t *testing.T) (*Service, ledger.Store, *time.Time) {
	t.Helper()
	store := ledgertest.Open(t)
	cfg := &config.Config{
		AdminIDs:          []int64{adminID},
		AdminPasswordHash: HashPassword("secret", []byte("0123456789abcdef")),
	}
	tun := config.DefaultTuning()
	games := minigame.NewEngine(store, nil, noStock{}, income.Default, &ledgertest.Rand{}, tun.Minigame)
	econ := economy.NewService(economy.NewRepository(store), time.UTC)
	svc := NewService(NewRepository(store), cfg, econ, noStock{}, nil, games)
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.SetClock(func() time.Time { return now })
	return svc, store, &now
}

func TestVerifyArgon2id(t *testing.T) {
	hash := HashPassword("pa$$", []byte("saltsaltsaltsalt"))
	if !verifyArgon2id("pa$$", hash) {
		t.Fatalf("correct password rejected")
	}
	if verifyArgon2id("wrong", hash) {
		t.Fatalf("wrong password accepted")
	}
	if verifyArgon2id("pa$$", "garbage") {
		t.Fatalf("garbage hash accepted")
	}
}

func TestLoginOpensSession(t *testing.T) {
	ctx := context.Background()
	svc, _, now := newService(t)

	if err := svc.VerifyPassword(ctx, 99, "secret"); !errors.Is(err, common.ErrNotAdmin) {
		t.Fatalf("non-admin: %v", err)
	}
	if svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("session before login")
	}
	if err := svc.VerifyPassword(ctx, adminID, "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	if !svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("no session after login")
	}
	*now = now.Add(25 * time.Hour)
	if svc.HasActiveSession(ctx, adminID) {
		t.Fatalf("session must expire after 24h")
	}
}

func TestTooManyAttempts(t *testing.T) {
	ctx := context.Background()
	svc, _, now := newService(t)

	for i := 0; i < MaxFailedAttempts; i++ {
		if err := svc.VerifyPassword(ctx, adminID, "nope"); !errors.Is(err, common.ErrWrongPassword) {
			t.Fatalf("attempt %d: %v", i, err)
		}
	}
	if err := svc.VerifyPassword(ctx, adminID, "secret"); !errors.Is(err, common.ErrTooManyAttempts) {
		t.Fatalf("locked out expected, got %v", err)
	}
	*now = now.Add(AttemptWindow + time.Minute)
	if err := svc.VerifyPassword(ctx, adminID, "secret"); err != nil {
		t.Fatalf("login after window: %v", err)
	}
}

func TestCommandsRequireSession(t *testing.T) {
	ctx := context.Background()
	svc, store, _ := newService(t)

	if _, err := svc.Grant(ctx, adminID, 1, 500); !errors.Is(err, common.ErrSessionExpired) {
		t.Fatalf("grant without session: %v", err)
	}
	if err := svc.VerifyPassword(ctx, adminID, "secret"); err != nil {
		t.Fatalf("login: %v", err)
	}
	balance, err := svc.Grant(ctx, adminID, 1, 500)
	if err != nil || balance != 600 {
		t.Fatalf("grant: %d %v", balance, err)
	}
	if got := ledgertest.Account(t, store, 1).Balance; got != 600 {
		t.Fatalf("stored balance %d", got)
	}

	r, err := svc.ReleaseSessions(ctx, adminID, 1)
	if err != nil || r.Battle || r.Minigame {
		t.Fatalf("release with no games: %+v %v", r, err)
	}
	if err := svc.Logout(ctx, adminID); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, _, err := svc.RefreshStock(ctx, adminID); !errors.Is(err, common.ErrSessionExpired) {
		t.Fatalf("refresh after logout: %v", err)
	}
}
