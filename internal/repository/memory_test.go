package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/repository/mocks"
)

func TestMemorySnapshots(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	clock := mocks.NewMockClock(ctrl)
	base := time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	gomock.InOrder(
		clock.EXPECT().Now().Return(base),
		clock.EXPECT().Now().Return(base.Add(time.Minute)),
	)
	store := NewMemorySnapshots(clock)

	data := []byte{1, 2, 3}
	require.NoError(t, store.Save(ctx, "old", "a", data))
	require.NoError(t, store.Save(ctx, "new", "b", []byte{4}))
	data[0] = 9

	got, err := store.Load(ctx, "old")
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 2, 3}, got, "stored bytes are copied")

	sum, err := store.Checksum(ctx, "new")
	require.NoError(t, err)
	assert.Equal(t, "b", sum)

	ids, err := store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"new", "old"}, ids)

	require.NoError(t, store.Delete(ctx, "old"))
	_, err = store.Load(ctx, "old")
	assert.True(t, oatherr.IsNotFound(err))
	assert.True(t, oatherr.IsNotFound(store.Delete(ctx, "old")))
}

func TestMemorySnapshotsRejectEmptyID(t *testing.T) {
	store := NewMemorySnapshots(nil)
	err := store.Save(context.Background(), "", "sum", nil)
	assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err))
}
