// Package ledger — postgres.go: хранилище на PostgreSQL (pgx).
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/bizbattle/internal/config"
	"serotonyl.ru/bizbattle/internal/db/postgres"
)

// maxTxAttempts — сколько раз повторяем транзакцию при deadlock/serialization failure.
const maxTxAttempts = 3

var postgresMigrations = []postgres.Migration{
	{Version: 1, SQL: `
		CREATE TABLE IF NOT EXISTS ledger_documents (
			kind       TEXT NOT NULL,
			key        TEXT NOT NULL,
			body       TEXT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (kind, key)
		)
	`},
	{Version: 2, SQL: `
		CREATE TABLE IF NOT EXISTS ledger_journal (
			id           BIGSERIAL PRIMARY KEY,
			from_user_id BIGINT,
			to_user_id   BIGINT,
			amount       BIGINT NOT NULL,
			kind         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_journal_from ON ledger_journal (from_user_id, id DESC);
		CREATE INDEX IF NOT EXISTS idx_ledger_journal_to ON ledger_journal (to_user_id, id DESC);
	`},
}

// PostgresStore — Store поверх пула pgx.
type PostgresStore struct {
	pool *pgxpool.Pool
	opts Options
}

// OpenPostgres подключается к PostgreSQL и применяет миграции хранилища.
func OpenPostgres(ctx context.Context, cfg *config.StorageConfig, opts Options) (*PostgresStore, error) {
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := postgres.RunMigrations(ctx, pool, postgresMigrations); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	return &PostgresStore{pool: pool, opts: opts}, nil
}

// InTx выполняет fn в транзакции; deadlock и конфликты сериализации повторяются.
func (s *PostgresStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	var err error
	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		err = s.runTx(ctx, fn)
		if err == nil || !postgres.IsRetryable(err) {
			return err
		}
		log.WithError(err).WithField("attempt", attempt).Warn("Конфликт транзакции, повторяем")
	}
	return err
}

func (s *PostgresStore) runTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&docTx{b: &pgBackend{tx: tx}, opts: s.opts}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("ошибка коммита: %w", err)
	}
	return nil
}

// Transactions возвращает последние движения пленок пользователя.
func (s *PostgresStore) Transactions(ctx context.Context, userID int64, limit int) ([]JournalEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, from_user_id, to_user_id, amount, kind, description, created_at
		FROM ledger_journal
		WHERE from_user_id = $1 OR to_user_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса журнала: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var e JournalEntry
		if err := rows.Scan(&e.ID, &e.FromUserID, &e.ToUserID, &e.Amount, &e.Kind, &e.Description, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("ошибка сканирования журнала: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	return out, nil
}

func (s *PostgresStore) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// pgBackend — операции с документами внутри pgx.Tx.
type pgBackend struct {
	tx pgx.Tx
}

// get блокирует строку документа до конца транзакции. Отсутствующий документ
// сначала создаётся заглушкой 'null', чтобы было что блокировать.
func (b *pgBackend) get(ctx context.Context, kind, key string) ([]byte, error) {
	if _, err := b.tx.Exec(ctx, `
		INSERT INTO ledger_documents (kind, key, body) VALUES ($1, $2, 'null')
		ON CONFLICT (kind, key) DO NOTHING
	`, kind, key); err != nil {
		return nil, err
	}
	var body string
	err := b.tx.QueryRow(ctx,
		`SELECT body FROM ledger_documents WHERE kind = $1 AND key = $2 FOR UPDATE`,
		kind, key,
	).Scan(&body)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (b *pgBackend) put(ctx context.Context, kind, key string, body []byte) error {
	_, err := b.tx.Exec(ctx, `
		INSERT INTO ledger_documents (kind, key, body, updated_at) VALUES ($1, $2, $3, NOW())
		ON CONFLICT (kind, key) DO UPDATE SET body = EXCLUDED.body, updated_at = NOW()
	`, kind, key, string(body))
	return err
}

func (b *pgBackend) del(ctx context.Context, kind, key string) error {
	_, err := b.tx.Exec(ctx, `DELETE FROM ledger_documents WHERE kind = $1 AND key = $2`, kind, key)
	return err
}

func (b *pgBackend) list(ctx context.Context, kind string) ([]rawDoc, error) {
	rows, err := b.tx.Query(ctx,
		`SELECT key, body FROM ledger_documents WHERE kind = $1 ORDER BY key FOR UPDATE`, kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rawDoc
	for rows.Next() {
		var key, body string
		if err := rows.Scan(&key, &body); err != nil {
			return nil, err
		}
		out = append(out, rawDoc{Key: key, Body: []byte(body)})
	}
	return out, rows.Err()
}

func (b *pgBackend) journal(ctx context.Context, e *JournalEntry) error {
	return b.tx.QueryRow(ctx, `
		INSERT INTO ledger_journal (from_user_id, to_user_id, amount, kind, description, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id
	`, e.FromUserID, e.ToUserID, e.Amount, e.Kind, e.Description, e.CreatedAt).Scan(&e.ID)
}
