// Package app — store.go открывает хранилище по LEDGER_DRIVER.
// Используется и ботом, и CLI.
package app

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/ledger"
)

// OpenStore подключается к хранилищу и применяет его миграции.
func OpenStore(ctx context.Context, cfg *config.StorageConfig, t config.Tuning) (ledger.Store, error) {
	opts := ledger.Options{StartingBalance: t.Economy.StartingBalance}
	switch cfg.LedgerDriver {
	case config.DriverPostgres:
		store, err := ledger.OpenPostgres(ctx, cfg, opts)
		if err != nil {
			return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
		}
		log.WithFields(log.Fields{"host": cfg.DBHost, "db": cfg.DBName}).Info("Хранилище: PostgreSQL")
		return store, nil
	case config.DriverSQLite:
		store, err := ledger.OpenSQLite(ctx, cfg.SQLitePath, opts)
		if err != nil {
			return nil, fmt.Errorf("ошибка открытия SQLite: %w", err)
		}
		log.WithField("path", cfg.SQLitePath).Info("Хранилище: SQLite")
		return store, nil
	default:
		return nil, fmt.Errorf("неизвестный LEDGER_DRIVER %q", cfg.LedgerDriver)
	}
}

// LoadTuning читает игровые константы из GAME_TUNING_FILE (или значения по умолчанию).
func LoadTuning(cfg *config.StorageConfig) (config.Tuning, error) {
	t, err := config.LoadTuning(cfg.GameTuningFile)
	if err != nil {
		return t, fmt.Errorf("ошибка загрузки игровых констант: %w", err)
	}
	return t, nil
}
