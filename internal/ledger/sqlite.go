// Package ledger — sqlite.go: хранилище на SQLite (один процесс, одно соединение).
package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"serotonyl.ru/bizbattle/internal/db/sqlite"
)

var sqliteMigrations = []sqlite.Migration{
	{Version: 1, SQL: `
		CREATE TABLE IF NOT EXISTS ledger_documents (
			kind       TEXT NOT NULL,
			key        TEXT NOT NULL,
			body       TEXT NOT NULL,
			updated_at INTEGER NOT NULL,
			PRIMARY KEY (kind, key)
		)
	`},
	{Version: 2, SQL: `
		CREATE TABLE IF NOT EXISTS ledger_journal (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			from_user_id INTEGER,
			to_user_id   INTEGER,
			amount       INTEGER NOT NULL,
			kind         TEXT NOT NULL,
			description  TEXT NOT NULL DEFAULT '',
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_ledger_journal_from ON ledger_journal (from_user_id, id);
		CREATE INDEX IF NOT EXISTS idx_ledger_journal_to ON ledger_journal (to_user_id, id);
	`},
}

// SQLiteStore — Store поверх database/sql + modernc.org/sqlite.
// Соединение одно, так что транзакции процесса идут строго по очереди.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// OpenSQLite открывает (или создаёт) файл базы и применяет миграции.
func OpenSQLite(ctx context.Context, path string, opts Options) (*SQLiteStore, error) {
	db, err := sqlite.Open(ctx, path)
	if err != nil {
		return nil, err
	}
	if err := sqlite.RunMigrations(ctx, db, sqliteMigrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}
	return &SQLiteStore{db: db, opts: opts}, nil
}

func (s *SQLiteStore) InTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("ошибка начала транзакции: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&docTx{b: &sqlBackend{tx: tx}, opts: s.opts}); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("ошибка коммита: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Transactions(ctx context.Context, userID int64, limit int) ([]JournalEntry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, from_user_id, to_user_id, amount, kind, description, created_at
		FROM ledger_journal
		WHERE from_user_id = ? OR to_user_id = ?
		ORDER BY id DESC
		LIMIT ?
	`, userID, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка запроса журнала: %w", err)
	}
	defer rows.Close()

	var out []JournalEntry
	for rows.Next() {
		var (
			e        JournalEntry
			from, to sql.NullInt64
			created  int64
		)
		if err := rows.Scan(&e.ID, &from, &to, &e.Amount, &e.Kind, &e.Description, &created); err != nil {
			return nil, fmt.Errorf("ошибка сканирования журнала: %w", err)
		}
		if from.Valid {
			v := from.Int64
			e.FromUserID = &v
		}
		if to.Valid {
			v := to.Int64
			e.ToUserID = &v
		}
		e.CreatedAt = time.UnixMilli(created).UTC()
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка чтения журнала: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *SQLiteStore) Close() error { return s.db.Close() }

type sqlBackend struct {
	tx *sql.Tx
}

func (b *sqlBackend) get(ctx context.Context, kind, key string) ([]byte, error) {
	var body string
	err := b.tx.QueryRowContext(ctx,
		`SELECT body FROM ledger_documents WHERE kind = ? AND key = ?`, kind, key,
	).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return []byte(body), nil
}

func (b *sqlBackend) put(ctx context.Context, kind, key string, body []byte) error {
	_, err := b.tx.ExecContext(ctx, `
		INSERT INTO ledger_documents (kind, key, body, updated_at) VALUES (?, ?, ?, ?)
		ON CONFLICT (kind, key) DO UPDATE SET body = excluded.body, updated_at = excluded.updated_at
	`, kind, key, string(body), time.Now().UnixMilli())
	return err
}

func (b *sqlBackend) del(ctx context.Context, kind, key string) error {
	_, err := b.tx.ExecContext(ctx, `DELETE FROM ledger_documents WHERE kind = ? AND key = ?`, kind, key)
	return err
}

func (b *sqlBackend) list(ctx context.Context, kind string) ([]rawDoc, error) {
	rows, err := b.tx.QueryContext(ctx,
		`SELECT key, body FROM ledger_documents WHERE kind = ? ORDER BY key`, kind)
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

func (b *sqlBackend) journal(ctx context.Context, e *JournalEntry) error {
	res, err := b.tx.ExecContext(ctx, `
		INSERT INTO ledger_journal (from_user_id, to_user_id, amount, kind, description, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, e.FromUserID, e.ToUserID, e.Amount, e.Kind, e.Description, e.CreatedAt.UnixMilli())
	if err != nil {
		return err
	}
	e.ID, err = res.LastInsertId()
	return err
}
