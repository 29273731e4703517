package ownership

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// SQLiteBackend keeps fight stats in a local database file.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend opens (and migrates) the database at path.
func NewSQLiteBackend(path string) (*SQLiteBackend, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	backend := &SQLiteBackend{db: db}
	if err := backend.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return backend, nil
}

func (s *SQLiteBackend) Close() error {
	return s.db.Close()
}

func (s *SQLiteBackend) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS waifu_fight_stats (
			user_id TEXT NOT NULL,
			channel TEXT NOT NULL,
			waifu TEXT NOT NULL DEFAULT '',
			previous_loser TEXT NOT NULL DEFAULT '',
			stolen_by TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL DEFAULT 0,
			PRIMARY KEY (user_id, channel)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_fight_stats_channel ON waifu_fight_stats(channel)`,
	}

	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}

	return nil
}

func (s *SQLiteBackend) Get(ctx context.Context, key Key) (Record, bool, error) {
	rec := Record{User: key.User, Channel: key.Channel}
	err := s.db.QueryRowContext(ctx, `
		SELECT waifu, previous_loser, stolen_by, updated_at
		FROM waifu_fight_stats WHERE user_id = ? AND channel = ?
	`, key.User, key.Channel).Scan(&rec.Current, &rec.PreviousLoser, &rec.StolenBy, &rec.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	return rec, true, nil
}

func (s *SQLiteBackend) Put(ctx context.Context, rec Record) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO waifu_fight_stats (user_id, channel, waifu, previous_loser, stolen_by, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, channel) DO UPDATE SET
			waifu = excluded.waifu,
			previous_loser = excluded.previous_loser,
			stolen_by = excluded.stolen_by,
			updated_at = excluded.updated_at
	`, rec.User, rec.Channel, rec.Current, rec.PreviousLoser, rec.StolenBy, rec.UpdatedAt)
	return err
}
