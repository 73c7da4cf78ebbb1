package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestParseInt64CSV(t *testing.T) {
	got, err := parseInt64CSV(" 1, 22 ,333,")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []int64{1, 22, 333}
	if len(got) != len(want) {
		t.Fatalf("got %v want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v want %v", got, want)
		}
	}
	if _, err := parseInt64CSV("1,abc"); err == nil {
		t.Fatalf("expected error for bad id")
	}
}

func TestStorageValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     StorageConfig
		wantErr bool
	}{
		{"postgres without password", StorageConfig{LedgerDriver: DriverPostgres, DBMaxConns: 5, DBMinConns: 1}, true},
		{"postgres ok", StorageConfig{LedgerDriver: DriverPostgres, DBPassword: "x", DBMaxConns: 5, DBMinConns: 1}, false},
		{"postgres bad pool", StorageConfig{LedgerDriver: DriverPostgres, DBPassword: "x", DBMaxConns: 1, DBMinConns: 2}, true},
		{"sqlite ok", StorageConfig{LedgerDriver: DriverSQLite, SQLitePath: "x.db"}, false},
		{"sqlite without path", StorageConfig{LedgerDriver: DriverSQLite}, true},
		{"unknown", StorageConfig{LedgerDriver: "mongo"}, true},
	}
	for _, tc := range tests {
		err := tc.cfg.Validate()
		if (err != nil) != tc.wantErr {
			t.Fatalf("%s: err=%v wantErr=%v", tc.name, err, tc.wantErr)
		}
	}
}

func TestDefaultTuningIsValid(t *testing.T) {
	tun := DefaultTuning()
	if err := tun.Validate(); err != nil {
		t.Fatalf("default tuning invalid: %v", err)
	}
	if len(tun.Minigame.Personas) != 5 {
		t.Fatalf("expected 5 personas, got %d", len(tun.Minigame.Personas))
	}
}

func TestLoadTuningOverlay(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := []byte("economy:\n  starting_balance: 250\n  sell_hold_period: 30s\nbattle:\n  ai_threshold: 90\n")
	if err := os.WriteFile(path, body, 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	tun, err := LoadTuning(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if tun.Economy.StartingBalance != 250 {
		t.Fatalf("starting balance = %d", tun.Economy.StartingBalance)
	}
	if tun.Economy.SellHoldPeriod != 30*time.Second {
		t.Fatalf("hold period = %v", tun.Economy.SellHoldPeriod)
	}
	if tun.Battle.AIThreshold != 90 {
		t.Fatalf("ai threshold = %d", tun.Battle.AIThreshold)
	}
	// не указанные в файле поля остаются по умолчанию
	if tun.Economy.BaseSlotCost != 1000 || tun.Stock.HistoryLimit != 48 {
		t.Fatalf("defaults lost: %+v %+v", tun.Economy, tun.Stock)
	}
}

func TestLoadTuningRejectsBrokenValues(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("minigame:\n  lives: 0\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	if _, err := LoadTuning(path); err == nil {
		t.Fatalf("expected validation error")
	}
}
