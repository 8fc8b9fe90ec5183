package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/sync/errgroup"

	"github.com/thraizz/oath-server-go/internal/config"
	"github.com/thraizz/oath-server-go/internal/game"
	"github.com/thraizz/oath-server-go/internal/repository"
	"github.com/thraizz/oath-server-go/internal/server"
	"github.com/thraizz/oath-server-go/internal/telemetry"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Failed to read .env: %v\n", err)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(cfg, logger); err != nil {
		logger.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg *config.Config, logger *zap.Logger) error {
	logger.Info("starting Oath server",
		zap.String("version", version),
		zap.String("config", *configPath),
		zap.String("storage", cfg.Storage.Driver),
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("set up tracing: %w", err)
	}
	defer func() {
		if err := shutdownTracing(context.Background()); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	store, closeStore, err := repository.Open(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("open snapshot store: %w", err)
	}
	defer func() {
		if err := closeStore(); err != nil {
			logger.Warn("closing snapshot store failed", zap.Error(err))
		}
	}()

	engine := game.NewEngine(logger,
		game.WithStore(store),
		game.WithMaxPlayers(cfg.Game.MaxPlayers),
	)
	broker := server.NewBroker(logger)
	engine.SetNotificationHandler(broker.Publish)
	logger.Info("game engine initialized", zap.Int("max_players", cfg.Game.MaxPlayers), zap.Strings("powers", engine.Powers()))

	service := server.NewService(engine, logger,
		server.WithAutosave(cfg.Storage.Autosave),
		server.WithDefaultSeed(cfg.Game.DefaultSeed),
	)

	grpcServer := server.NewGRPCServer(cfg.Server.GRPC, logger)
	server.RegisterGameServiceServer(grpcServer, server.NewGameServer(service, broker, logger))

	lis, err := net.Listen("tcp", cfg.Server.GRPC.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", cfg.Server.GRPC.Address, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("starting gRPC server", zap.String("address", cfg.Server.GRPC.Address))
		return grpcServer.Serve(lis)
	})

	var hub *server.Hub
	var wsServer *http.Server
	if cfg.Server.WebSocket.Enabled {
		hub = server.NewHub(cfg.Server.WebSocket, service, broker, logger)
		wsServer = server.NewWebSocketServer(cfg.Server.WebSocket, hub)
		g.Go(func() error {
			logger.Info("starting WebSocket server",
				zap.String("address", cfg.Server.WebSocket.Address),
				zap.String("path", cfg.Server.WebSocket.Path))
			if err := wsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down gracefully...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if wsServer != nil {
			hub.CloseAll()
			if err := wsServer.Shutdown(shutdownCtx); err != nil {
				logger.Warn("WebSocket shutdown failed", zap.Error(err))
			}
		}
		if cfg.Storage.Autosave {
			for _, id := range engine.ListGames() {
				if err := engine.Save(shutdownCtx, id); err != nil {
					logger.Warn("final save failed", zap.String("game_id", id), zap.Error(err))
				}
			}
		}
		grpcServer.GracefulStop()
		return nil
	})

	logger.Info("Oath server initialized",
		zap.String("version", version),
		zap.String("grpc_address", cfg.Server.GRPC.Address),
		zap.Bool("websocket", cfg.Server.WebSocket.Enabled),
	)

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("Oath server stopped")
	return nil
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
