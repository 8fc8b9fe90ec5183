package repository

import (
	"context"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/repository/mocks"
)

type RedisSnapshotsTestSuite struct {
	suite.Suite
	client   *redis.Client
	mock     redismock.ClientMock
	mockCtrl *gomock.Controller
	clock    *mocks.MockClock
	repo     *RedisSnapshots
	ttl      time.Duration
}

func (s *RedisSnapshotsTestSuite) SetupTest() {
	s.client, s.mock = redismock.NewClientMock()
	s.mockCtrl = gomock.NewController(s.T())
	s.clock = mocks.NewMockClock(s.mockCtrl)
	s.ttl = time.Hour
	s.repo = NewRedisSnapshots(s.client, "oath", s.ttl, s.clock)
}

func (s *RedisSnapshotsTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
	s.NoError(s.mock.ExpectationsWereMet())
}

func TestRedisSnapshotsTestSuite(t *testing.T) {
	suite.Run(t, new(RedisSnapshotsTestSuite))
}

func (s *RedisSnapshotsTestSuite) TestSave() {
	ctx := context.Background()
	now := time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	data := []byte("snapshot")
	s.clock.EXPECT().Now().Return(now)

	s.mock.ExpectSet("oath:snapshot:game-1", data, s.ttl).SetVal("OK")
	s.mock.ExpectSet("oath:snapshot:game-1:checksum", "sum", s.ttl).SetVal("OK")
	s.mock.ExpectZAdd("oath:snapshots", redis.Z{Score: float64(now.UnixMilli()), Member: "game-1"}).SetVal(1)

	s.NoError(s.repo.Save(ctx, "game-1", "sum", data))
}

func (s *RedisSnapshotsTestSuite) TestSaveRejectsEmptyID() {
	err := s.repo.Save(context.Background(), "", "sum", []byte("x"))
	s.Equal(oatherr.CodeInvalidArgument, oatherr.GetCode(err))
}

func (s *RedisSnapshotsTestSuite) TestSaveDependencyError() {
	ctx := context.Background()
	now := time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	data := []byte("snapshot")
	s.clock.EXPECT().Now().Return(now)

	s.mock.ExpectSet("oath:snapshot:game-1", data, s.ttl).SetErr(errors.New("redis down"))

	s.Error(s.repo.Save(ctx, "game-1", "sum", data))
}

func (s *RedisSnapshotsTestSuite) TestLoad() {
	ctx := context.Background()
	s.mock.ExpectGet("oath:snapshot:game-1").SetVal("snapshot")

	data, err := s.repo.Load(ctx, "game-1")
	s.Require().NoError(err)
	s.Equal([]byte("snapshot"), data)
}

func (s *RedisSnapshotsTestSuite) TestLoadMissing() {
	s.mock.ExpectGet("oath:snapshot:gone").RedisNil()

	_, err := s.repo.Load(context.Background(), "gone")
	s.True(oatherr.IsNotFound(err))
}

func (s *RedisSnapshotsTestSuite) TestChecksum() {
	s.mock.ExpectGet("oath:snapshot:game-1:checksum").SetVal("sum")

	sum, err := s.repo.Checksum(context.Background(), "game-1")
	s.Require().NoError(err)
	s.Equal("sum", sum)
}

func (s *RedisSnapshotsTestSuite) TestListPrunesExpired() {
	ctx := context.Background()
	now := time.Date(2026, time.May, 4, 10, 0, 0, 0, time.UTC)
	s.clock.EXPECT().Now().Return(now)
	cutoff := now.Add(-s.ttl).UnixMilli()

	s.mock.ExpectZRemRangeByScore("oath:snapshots", "-inf", "("+strconv.FormatInt(cutoff, 10)).SetVal(2)
	s.mock.ExpectZRevRange("oath:snapshots", 0, -1).SetVal([]string{"game-2", "game-1"})

	ids, err := s.repo.List(ctx)
	s.Require().NoError(err)
	s.Equal([]string{"game-2", "game-1"}, ids)
}

func (s *RedisSnapshotsTestSuite) TestListWithoutTTL() {
	repo := NewRedisSnapshots(s.client, "oath", 0, s.clock)
	s.mock.ExpectZRevRange("oath:snapshots", 0, -1).SetVal([]string{})

	ids, err := repo.List(context.Background())
	s.Require().NoError(err)
	s.Empty(ids)
}

func (s *RedisSnapshotsTestSuite) TestDelete() {
	s.mock.ExpectDel("oath:snapshot:game-1", "oath:snapshot:game-1:checksum").SetVal(2)
	s.mock.ExpectZRem("oath:snapshots", "game-1").SetVal(1)

	s.NoError(s.repo.Delete(context.Background(), "game-1"))
}

func (s *RedisSnapshotsTestSuite) TestDeleteMissing() {
	s.mock.ExpectDel("oath:snapshot:gone", "oath:snapshot:gone:checksum").SetVal(0)
	s.mock.ExpectZRem("oath:snapshots", "gone").SetVal(0)

	err := s.repo.Delete(context.Background(), "gone")
	s.True(oatherr.IsNotFound(err))
}
