// Package repository persists game snapshots. Every store keeps the latest
// snapshot of each game, keyed by game id.
package repository

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mocks/mock_clock.go -package=mocks -source=repository.go

// SnapshotStore is implemented by every backend.
type SnapshotStore interface {
	Save(ctx context.Context, gameID, checksum string, data []byte) error
	Load(ctx context.Context, gameID string) ([]byte, error)
	// List returns the stored game ids, most recently saved first.
	List(ctx context.Context) ([]string, error)
	Delete(ctx context.Context, gameID string) error
}

// Clock stamps saved snapshots.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}
