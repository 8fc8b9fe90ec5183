package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
)

// SnapshotRepository stores snapshots in Postgres.
type SnapshotRepository struct {
	db    DBTX
	clock Clock
}

// NewSnapshotRepository creates a repository on db. A nil clock uses the
// wall clock.
func NewSnapshotRepository(db DBTX, clock Clock) *SnapshotRepository {
	if clock == nil {
		clock = SystemClock
	}
	return &SnapshotRepository{db: db, clock: clock}
}

const upsertSnapshot = `
INSERT INTO game_snapshots (game_id, checksum, data, saved_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (game_id) DO UPDATE
SET checksum = EXCLUDED.checksum, data = EXCLUDED.data, saved_at = EXCLUDED.saved_at`

func (r *SnapshotRepository) Save(ctx context.Context, gameID, checksum string, data []byte) error {
	if gameID == "" {
		return oatherr.InvalidArgumentf("game id is required")
	}
	if _, err := r.db.Exec(ctx, upsertSnapshot, gameID, checksum, data, r.clock.Now()); err != nil {
		return fmt.Errorf("save snapshot %s: %w", gameID, err)
	}
	return nil
}

func (r *SnapshotRepository) Load(ctx context.Context, gameID string) ([]byte, error) {
	var data []byte
	err := r.db.QueryRow(ctx, `SELECT data FROM game_snapshots WHERE game_id = $1`, gameID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot %s: %w", gameID, err)
	}
	return data, nil
}

// Checksum returns the checksum the snapshot was saved with.
func (r *SnapshotRepository) Checksum(ctx context.Context, gameID string) (string, error) {
	var checksum string
	err := r.db.QueryRow(ctx, `SELECT checksum FROM game_snapshots WHERE game_id = $1`, gameID).Scan(&checksum)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	if err != nil {
		return "", fmt.Errorf("load checksum %s: %w", gameID, err)
	}
	return checksum, nil
}

func (r *SnapshotRepository) List(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.QueryRow(ctx,
		`SELECT coalesce(array_agg(game_id ORDER BY saved_at DESC), '{}') FROM game_snapshots`).Scan(&ids)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return ids, nil
}

func (r *SnapshotRepository) Delete(ctx context.Context, gameID string) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM game_snapshots WHERE game_id = $1`, gameID)
	if err != nil {
		return fmt.Errorf("delete snapshot %s: %w", gameID, err)
	}
	if tag.RowsAffected() == 0 {
		return oatherr.NotFoundf("no snapshot for game %s", gameID)
	}
	return nil
}
