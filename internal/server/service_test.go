package server

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"go.uber.org/zap/zaptest"

	"github.com/thraizz/oath-server-go/internal/game"
	"github.com/thraizz/oath-server-go/internal/game/actions"
	"github.com/thraizz/oath-server-go/internal/repository/mocks"
)

func TestServiceAutosavesAcceptedRequests(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSnapshotStore(ctrl)
	logger := zaptest.NewLogger(t)
	engine := game.NewEngine(logger, game.WithStore(store))
	svc := NewService(engine, logger, WithAutosave(true), WithDefaultSeed(7))
	ctx := context.Background()

	// One save for the new game, one for the accepted muster.
	store.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	snap, err := svc.StartGame(ctx, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), snap.Seed)

	_, err = svc.StartAction(ctx, snap.ID, "player:1", actions.KindMuster)
	require.NoError(t, err)

	// Rejected requests are not saved.
	_, err = svc.StartAction(ctx, snap.ID, "player:2", actions.KindTravel)
	require.Error(t, err)
}

func TestServiceAutosaveFailureDoesNotFailRequest(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSnapshotStore(ctrl)
	logger := zaptest.NewLogger(t)
	svc := NewService(game.NewEngine(logger, game.WithStore(store)), logger, WithAutosave(true))

	store.EXPECT().Save(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	_, err := svc.StartGame(context.Background(), 3, 2)
	assert.NoError(t, err)
}

func TestServiceWithoutAutosave(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := mocks.NewMockSnapshotStore(ctrl)
	logger := zaptest.NewLogger(t)
	svc := NewService(game.NewEngine(logger, game.WithStore(store)), logger)

	snap, err := svc.StartGame(context.Background(), 3, 2)
	require.NoError(t, err)

	store.EXPECT().Save(gomock.Any(), snap.ID, gomock.Any(), gomock.Any()).Return(nil)
	require.NoError(t, svc.Save(context.Background(), snap.ID))
}
