package integration

import (
	"context"
	"net"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/thraizz/oath-server-go/internal/config"
	"github.com/thraizz/oath-server-go/internal/game"
	"github.com/thraizz/oath-server-go/internal/game/actions"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/repository"
	"github.com/thraizz/oath-server-go/internal/server"
)

type gameServerEnv struct {
	engine *game.Engine
	store  repository.ChecksumStore
	conn   *grpc.ClientConn
}

func newGameServerEnv(t *testing.T) *gameServerEnv {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx := context.Background()

	cfg := &config.Config{Storage: config.StorageConfig{
		Driver:     config.DriverSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "oath.db"),
		Autosave:   true,
	}}
	store, closeStore, err := repository.Open(ctx, cfg, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = closeStore() })

	engine := game.NewEngine(logger, game.WithStore(store))
	broker := server.NewBroker(logger)
	engine.SetNotificationHandler(broker.Publish)
	service := server.NewService(engine, logger, server.WithAutosave(cfg.Storage.Autosave))

	srv := server.NewGRPCServer(config.GRPCConfig{KeepaliveTime: time.Minute, KeepaliveTimeout: 10 * time.Second}, logger)
	server.RegisterGameServiceServer(srv, server.NewGameServer(service, broker, logger))
	lis := bufconn.Listen(1 << 20)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) { return lis.DialContext(ctx) }),
		grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	return &gameServerEnv{engine: engine, store: store, conn: conn}
}

func (env *gameServerEnv) call(t *testing.T, method string, fields map[string]any) *structpb.Struct {
	t.Helper()
	out, err := env.try(method, fields)
	require.NoError(t, err, method)
	return out
}

func (env *gameServerEnv) try(method string, fields map[string]any) (*structpb.Struct, error) {
	in, err := structpb.NewStruct(fields)
	if err != nil {
		return nil, err
	}
	out := &structpb.Struct{}
	err = env.conn.Invoke(context.Background(), "/"+server.GameServiceName+"/"+method, in, out)
	return out, err
}

// endTurn ends the current player's turn, passing on every modifier choice.
func (env *gameServerEnv) endTurn(t *testing.T, id, player string) *structpb.Struct {
	t.Helper()
	res := env.call(t, "StartAction", map[string]any{"game_id": id, "player": player, "action": actions.KindEndTurn})
	for {
		open := res.Fields["open"].GetStructValue()
		if open == nil || open.Fields["kind"].GetStringValue() != rules.KindChooseModifiers {
			return res
		}
		res = env.call(t, "ContinueAction", map[string]any{
			"game_id":    id,
			"player":     player,
			"submission": map[string]any{"modifiers": []any{}},
		})
	}
}

func TestGameFlowAutosavesToSQLite(t *testing.T) {
	env := newGameServerEnv(t)
	ctx := context.Background()

	started := env.call(t, "StartGame", map[string]any{"seed": "7", "players": 2})
	id := started.Fields["id"].GetStringValue()
	require.NotEmpty(t, id)

	env.call(t, "StartAction", map[string]any{"game_id": id, "player": "player:1", "action": actions.KindMuster})
	env.call(t, "CancelAction", map[string]any{"game_id": id, "player": "player:1"})
	res := env.endTurn(t, id, "player:1")
	assert.Equal(t, "player:2", res.Fields["turn"].GetStructValue().Fields["player"].GetStringValue())

	ids, err := env.store.List(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{id}, ids)

	data, err := env.store.Load(ctx, id)
	require.NoError(t, err)
	checksum, err := env.store.Checksum(ctx, id)
	require.NoError(t, err)
	gameID, err := game.VerifySnapshot(data, checksum)
	require.NoError(t, err)
	assert.Equal(t, id, gameID)
}

func TestGameFlowSurvivesEndAndLoad(t *testing.T) {
	env := newGameServerEnv(t)

	id := env.call(t, "StartGame", map[string]any{"seed": "11", "players": 3}).Fields["id"].GetStringValue()
	env.endTurn(t, id, "player:1")
	before := env.call(t, "GetView", map[string]any{"game_id": id})

	env.call(t, "EndGame", map[string]any{"game_id": id})
	_, err := env.try("GetView", map[string]any{"game_id": id})
	assert.Equal(t, codes.NotFound, status.Code(err))

	loaded := env.call(t, "LoadGame", map[string]any{"game_id": id})
	assert.Equal(t, id, loaded.Fields["id"].GetStringValue())
	assert.Equal(t, before.Fields["turn"].AsInterface(), loaded.Fields["turn"].AsInterface())
	assert.Equal(t, before.Fields["entities"].AsInterface(), loaded.Fields["entities"].AsInterface())

	res := env.endTurn(t, id, "player:2")
	assert.Equal(t, "player:3", res.Fields["turn"].GetStructValue().Fields["player"].GetStringValue())
}

func TestGameFlowReplayRebuildsState(t *testing.T) {
	env := newGameServerEnv(t)
	ctx := context.Background()

	id := env.call(t, "StartGame", map[string]any{"seed": "3", "players": 2}).Fields["id"].GetStringValue()
	env.call(t, "StartAction", map[string]any{"game_id": id, "player": "player:1", "action": actions.KindMuster})
	env.call(t, "CancelAction", map[string]any{"game_id": id, "player": "player:1"})
	env.endTurn(t, id, "player:1")
	env.endTurn(t, id, "player:2")

	// Rejected requests never reach the log.
	_, err := env.try("StartAction", map[string]any{"game_id": id, "player": "player:2", "action": actions.KindTravel})
	require.Error(t, err)

	view, err := env.engine.View(id)
	require.NoError(t, err)
	log, err := env.engine.Replay(id)
	require.NoError(t, err)

	replayed, err := env.engine.ReplayGame(ctx, log)
	require.NoError(t, err)
	assert.NotEqual(t, id, replayed.ID)
	assert.Equal(t, view.Turn, replayed.Turn)
	assert.Equal(t, view.Entities, replayed.Entities)
	assert.Len(t, env.engine.ListGames(), 2)
}
