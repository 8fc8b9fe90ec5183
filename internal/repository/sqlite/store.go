// Package sqlite stores game snapshots in a local SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/repository/sqlite/migrations"
)

// Store persists snapshots in SQLite.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens the database at path and applies the embedded migrations.
// Use ":memory:" for a throwaway store.
func Open(ctx context.Context, path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, oatherr.InvalidArgumentf("sqlite path is required")
	}
	dsn := path
	if path != ":memory:" {
		dsn = filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if path == ":memory:" {
		// Every connection to :memory: is a separate database.
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(ctx, db, migrations.FS); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db, now: func() time.Time { return time.Now().UTC() }}, nil
}

// WithClock replaces the time source used to stamp saves.
func (s *Store) WithClock(now func() time.Time) *Store {
	s.now = now
	return s
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) Save(ctx context.Context, gameID, checksum string, data []byte) error {
	if strings.TrimSpace(gameID) == "" {
		return oatherr.InvalidArgumentf("game id is required")
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO game_snapshots (game_id, checksum, data, saved_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (game_id) DO UPDATE SET
		   checksum = excluded.checksum,
		   data = excluded.data,
		   saved_at = excluded.saved_at`,
		gameID, checksum, data, s.now().UnixMilli(),
	)
	if err != nil {
		if isBusy(err) {
			return oatherr.Wrapf(err, "save snapshot %s: database busy", gameID)
		}
		return fmt.Errorf("save snapshot %s: %w", gameID, err)
	}
	return nil
}

func (s *Store) Load(ctx context.Context, gameID string) ([]byte, error) {
	var data []byte
	err := s.db.QueryRowContext(ctx, `SELECT data FROM game_snapshots WHERE game_id = ?`, gameID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", gameID, err)
	}
	return data, nil
}

// Checksum returns the checksum the snapshot was saved with.
func (s *Store) Checksum(ctx context.Context, gameID string) (string, error) {
	var sum string
	err := s.db.QueryRowContext(ctx, `SELECT checksum FROM game_snapshots WHERE game_id = ?`, gameID).Scan(&sum)
	if errors.Is(err, sql.ErrNoRows) {
		return "", oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	if err != nil {
		return "", fmt.Errorf("load checksum %s: %w", gameID, err)
	}
	return sum, nil
}

func (s *Store) List(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT game_id FROM game_snapshots ORDER BY saved_at DESC, game_id`)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	ids := []string{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan snapshot id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return ids, nil
}

func (s *Store) Delete(ctx context.Context, gameID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM game_snapshots WHERE game_id = ?`, gameID)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", gameID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", gameID, err)
	}
	if n == 0 {
		return oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	return nil
}

func isBusy(err error) bool {
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			return true
		}
	}
	return false
}
