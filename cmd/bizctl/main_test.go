package main

import (
	"bytes"
	"path/filepath"
	"strings"
	"testing"

	"serotonyl.ru/bizbattle/internal/features/admin"
)

func runCLI(t *testing.T, stdin string, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func useSQLite(t *testing.T) {
	t.Helper()
	t.Setenv("LEDGER_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("GAME_TUNING_FILE", "")
}

func TestGrantAndLeaderboard(t *testing.T) {
	useSQLite(t)

	if _, err := runCLI(t, "", "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	out, err := runCLI(t, "", "grant", "5", "300")
	if err != nil {
		t.Fatalf("grant: %v", err)
	}
	if !strings.Contains(out, "баланс 400") {
		t.Fatalf("grant output = %q", out)
	}

	out, err = runCLI(t, "", "leaderboard", "richest")
	if err != nil {
		t.Fatalf("leaderboard: %v", err)
	}
	if !strings.Contains(out, "игрок") {
		t.Fatalf("leaderboard output = %q", out)
	}
}

func TestGrantRejectsBadInput(t *testing.T) {
	useSQLite(t)

	tests := []struct {
		name string
		args []string
	}{
		{"нечисловой id", []string{"grant", "abc", "10"}},
		{"нулевой id", []string{"grant", "0", "10"}},
		{"нечисловая сумма", []string{"grant", "5", "много"}},
		{"отрицательная сумма", []string{"grant", "5", "-10"}},
		{"не хватает аргументов", []string{"grant", "5"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := runCLI(t, "", tt.args...); err == nil {
				t.Fatalf("%v: ожидали ошибку", tt.args)
			}
		})
	}
}

func TestLeaderboardUnknownKind(t *testing.T) {
	useSQLite(t)
	if _, err := runCLI(t, "", "leaderboard", "poorest"); err == nil {
		t.Fatal("ожидали ошибку для неизвестного топа")
	}
}

func TestStockShowAndRefresh(t *testing.T) {
	useSQLite(t)

	out, err := runCLI(t, "", "stock", "show")
	if err != nil {
		t.Fatalf("stock show: %v", err)
	}
	if !strings.Contains(out, "биржа: 50.0%") {
		t.Fatalf("stock show output = %q", out)
	}

	out, err = runCLI(t, "", "stock", "refresh")
	if err != nil {
		t.Fatalf("stock refresh: %v", err)
	}
	if !strings.Contains(out, "шагов применено:") {
		t.Fatalf("stock refresh output = %q", out)
	}
}

func TestHashPasswordFromStdin(t *testing.T) {
	out, err := runCLI(t, "s3cret\n", "hash-password")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	hash := strings.TrimSpace(out)
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("hash = %q", hash)
	}
	if parts := strings.Split(hash, "$"); len(parts) != 6 || parts[3] != "m=65536,t=3,p=2" {
		t.Fatalf("формат хеша: %q", hash)
	}
	if hash == admin.HashPassword("s3cret", make([]byte, 16)) {
		t.Fatal("соль не случайная")
	}

	if _, err := runCLI(t, "", "hash-password"); err == nil {
		t.Fatal("ожидали ошибку на пустой пароль")
	}
}
