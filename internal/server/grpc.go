package server

import (
	"context"
	"encoding/json"
	"strconv"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/thraizz/oath-server-go/internal/config"
	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// GameServiceName is the fully qualified gRPC service name.
const GameServiceName = "oath.v1.GameService"

// GameServiceServer is the server API for oath.v1.GameService. Messages are
// google.protobuf.Struct values shaped like the engine's JSON views.
type GameServiceServer interface {
	StartGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	StartAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ContinueAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	CancelAction(context.Context, *structpb.Struct) (*structpb.Struct, error)
	Peek(context.Context, *structpb.Struct) (*structpb.Struct, error)
	GetView(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListGames(context.Context, *structpb.Struct) (*structpb.Struct, error)
	ListPowers(context.Context, *structpb.Struct) (*structpb.Struct, error)
	SaveGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	LoadGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	EndGame(context.Context, *structpb.Struct) (*structpb.Struct, error)
	WatchGame(*structpb.Struct, grpc.ServerStream) error
}

func unaryMethod(name string, call func(GameServiceServer, context.Context, *structpb.Struct) (*structpb.Struct, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			in := new(structpb.Struct)
			if err := dec(in); err != nil {
				return nil, err
			}
			if interceptor == nil {
				return call(srv.(GameServiceServer), ctx, in)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + GameServiceName + "/" + name}
			handler := func(ctx context.Context, req any) (any, error) {
				return call(srv.(GameServiceServer), ctx, req.(*structpb.Struct))
			}
			return interceptor(ctx, in, info, handler)
		},
	}
}

// GameServiceDesc describes oath.v1.GameService.
var GameServiceDesc = grpc.ServiceDesc{
	ServiceName: GameServiceName,
	HandlerType: (*GameServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		unaryMethod("StartGame", GameServiceServer.StartGame),
		unaryMethod("StartAction", GameServiceServer.StartAction),
		unaryMethod("ContinueAction", GameServiceServer.ContinueAction),
		unaryMethod("CancelAction", GameServiceServer.CancelAction),
		unaryMethod("Peek", GameServiceServer.Peek),
		unaryMethod("GetView", GameServiceServer.GetView),
		unaryMethod("ListGames", GameServiceServer.ListGames),
		unaryMethod("ListPowers", GameServiceServer.ListPowers),
		unaryMethod("SaveGame", GameServiceServer.SaveGame),
		unaryMethod("LoadGame", GameServiceServer.LoadGame),
		unaryMethod("EndGame", GameServiceServer.EndGame),
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName: "WatchGame",
			Handler: func(srv any, stream grpc.ServerStream) error {
				in := new(structpb.Struct)
				if err := stream.RecvMsg(in); err != nil {
					return err
				}
				return srv.(GameServiceServer).WatchGame(in, stream)
			},
			ServerStreams: true,
		},
	},
	Metadata: "oath/v1/game.proto",
}

// RegisterGameServiceServer registers srv on s.
func RegisterGameServiceServer(s grpc.ServiceRegistrar, srv GameServiceServer) {
	s.RegisterService(&GameServiceDesc, srv)
}

// NewGRPCServer builds a gRPC server with the standard interceptor chain,
// tracing and a health service. Register services on it before serving.
func NewGRPCServer(cfg config.GRPCConfig, logger *zap.Logger) *grpc.Server {
	opts := []grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(ChainUnaryInterceptors(
			RecoveryInterceptor(logger),
			LoggingInterceptor(logger),
			ErrorInterceptor(),
		)),
		grpc.StreamInterceptor(StreamRecoveryInterceptor(logger)),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    cfg.KeepaliveTime,
			Timeout: cfg.KeepaliveTimeout,
		}),
	}
	if cfg.MaxConcurrentStreams > 0 {
		opts = append(opts, grpc.MaxConcurrentStreams(uint32(cfg.MaxConcurrentStreams)))
	}
	srv := grpc.NewServer(opts...)

	hs := health.NewServer()
	hs.SetServingStatus(GameServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(srv, hs)
	return srv
}

// gameServer implements GameServiceServer on a Service.
type gameServer struct {
	service *Service
	broker  *Broker
	logger  *zap.Logger
}

// NewGameServer returns the gRPC front of service. Watchers are fed from
// broker.
func NewGameServer(service *Service, broker *Broker, logger *zap.Logger) GameServiceServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &gameServer{service: service, broker: broker, logger: logger}
}

func (g *gameServer) StartGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	seed, err := uintField(req, "seed")
	if err != nil {
		return nil, err
	}
	players, err := uintField(req, "players")
	if err != nil {
		return nil, err
	}
	snap, err := g.service.StartGame(ctx, seed, int(players))
	if err != nil {
		return nil, err
	}
	return toStruct(snap)
}

func (g *gameServer) StartAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, player, err := gameAndPlayer(req)
	if err != nil {
		return nil, err
	}
	action := stringField(req, "action")
	if action == "" {
		return nil, oatherr.InvalidArgumentf("action is required")
	}
	res, err := g.service.StartAction(ctx, gameID, player, action)
	if err != nil {
		return nil, err
	}
	return toStruct(res)
}

func (g *gameServer) ContinueAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, player, err := gameAndPlayer(req)
	if err != nil {
		return nil, err
	}
	submission, err := submissionField(req)
	if err != nil {
		return nil, err
	}
	res, err := g.service.ContinueAction(ctx, gameID, player, submission)
	if err != nil {
		return nil, err
	}
	return toStruct(res)
}

func (g *gameServer) CancelAction(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, player, err := gameAndPlayer(req)
	if err != nil {
		return nil, err
	}
	res, err := g.service.CancelAction(ctx, gameID, player)
	if err != nil {
		return nil, err
	}
	return toStruct(res)
}

func (g *gameServer) Peek(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, err := requiredString(req, "game_id")
	if err != nil {
		return nil, err
	}
	open, err := g.service.Peek(gameID)
	if err != nil {
		return nil, err
	}
	if open == nil {
		return &structpb.Struct{Fields: map[string]*structpb.Value{}}, nil
	}
	return toStruct(open)
}

func (g *gameServer) GetView(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, err := requiredString(req, "game_id")
	if err != nil {
		return nil, err
	}
	snap, err := g.service.View(gameID)
	if err != nil {
		return nil, err
	}
	return toStruct(snap)
}

func (g *gameServer) ListGames(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"games": g.service.ListGames()})
}

func (g *gameServer) ListPowers(context.Context, *structpb.Struct) (*structpb.Struct, error) {
	return toStruct(map[string]any{"powers": g.service.Powers()})
}

func (g *gameServer) SaveGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, err := requiredString(req, "game_id")
	if err != nil {
		return nil, err
	}
	if err := g.service.Save(ctx, gameID); err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"game_id": gameID, "saved": true})
}

func (g *gameServer) LoadGame(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, err := requiredString(req, "game_id")
	if err != nil {
		return nil, err
	}
	snap, err := g.service.Load(ctx, gameID)
	if err != nil {
		return nil, err
	}
	return toStruct(snap)
}

func (g *gameServer) EndGame(_ context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	gameID, err := requiredString(req, "game_id")
	if err != nil {
		return nil, err
	}
	if err := g.service.EndGame(gameID); err != nil {
		return nil, err
	}
	return toStruct(map[string]any{"game_id": gameID, "ended": true})
}

// WatchGame streams the game's notifications until the client goes away.
func (g *gameServer) WatchGame(req *structpb.Struct, stream grpc.ServerStream) error {
	gameID, err := requiredString(req, "game_id")
	if err != nil {
		return toStatus(err)
	}
	if _, err := g.service.View(gameID); err != nil {
		return toStatus(err)
	}
	notifications, unsubscribe := g.broker.Subscribe(gameID, 64)
	defer unsubscribe()

	g.logger.Debug("watch started", zap.String("game_id", gameID))
	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			g.logger.Debug("watch ended", zap.String("game_id", gameID))
			return nil
		case n, ok := <-notifications:
			if !ok {
				return nil
			}
			msg, err := toStruct(n.Event)
			if err != nil {
				return toStatus(err)
			}
			msg.Fields["notification"] = structpb.NewStringValue(n.Type)
			if err := stream.SendMsg(msg); err != nil {
				return err
			}
		}
	}
}

// toStruct converts v to a Struct through its JSON encoding.
func toStruct(v any) (*structpb.Struct, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, oatherr.Wrap(err, "encode response")
	}
	out := &structpb.Struct{}
	if err := protojson.Unmarshal(data, out); err != nil {
		return nil, oatherr.Wrap(err, "encode response")
	}
	return out, nil
}

func stringField(req *structpb.Struct, key string) string {
	return req.GetFields()[key].GetStringValue()
}

func requiredString(req *structpb.Struct, key string) (string, error) {
	v := stringField(req, key)
	if v == "" {
		return "", oatherr.InvalidArgumentf("%s is required", key)
	}
	return v, nil
}

func gameAndPlayer(req *structpb.Struct) (string, state.Key, error) {
	gameID, err := requiredString(req, "game_id")
	if err != nil {
		return "", "", err
	}
	player, err := requiredString(req, "player")
	if err != nil {
		return "", "", err
	}
	return gameID, state.Key(player), nil
}

// uintField reads a number or a decimal string. Seeds are sent as strings
// when they do not fit a double.
func uintField(req *structpb.Struct, key string) (uint64, error) {
	v, ok := req.GetFields()[key]
	if !ok {
		return 0, nil
	}
	switch kind := v.GetKind().(type) {
	case *structpb.Value_NumberValue:
		if kind.NumberValue < 0 {
			return 0, oatherr.InvalidArgumentf("%s must not be negative", key)
		}
		return uint64(kind.NumberValue), nil
	case *structpb.Value_StringValue:
		n, err := strconv.ParseUint(kind.StringValue, 10, 64)
		if err != nil {
			return 0, oatherr.InvalidArgumentf("%s is not a number: %q", key, kind.StringValue)
		}
		return n, nil
	case *structpb.Value_NullValue:
		return 0, nil
	}
	return 0, oatherr.InvalidArgumentf("%s must be a number", key)
}

// submissionField reads {"slot": ["choice", ...]}.
func submissionField(req *structpb.Struct) (map[string][]string, error) {
	raw := req.GetFields()["submission"].GetStructValue()
	submission := make(map[string][]string, len(raw.GetFields()))
	for slot, v := range raw.GetFields() {
		if _, isNull := v.GetKind().(*structpb.Value_NullValue); isNull {
			submission[slot] = nil
			continue
		}
		list := v.GetListValue()
		if list == nil {
			return nil, oatherr.InvalidArgumentf("submission slot %s must be a list", slot)
		}
		choices := make([]string, 0, len(list.GetValues()))
		for _, c := range list.GetValues() {
			s, ok := c.GetKind().(*structpb.Value_StringValue)
			if !ok {
				return nil, oatherr.InvalidArgumentf("submission slot %s holds a non-string choice", slot)
			}
			choices = append(choices, s.StringValue)
		}
		submission[slot] = choices
	}
	return submission, nil
}
