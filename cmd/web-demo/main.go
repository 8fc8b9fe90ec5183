// Command web-demo serves the WebSocket API on an in-memory engine and can
// play a demo game by itself so connected clients have something to watch.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/thraizz/oath-server-go/internal/config"
	"github.com/thraizz/oath-server-go/internal/game"
	"github.com/thraizz/oath-server-go/internal/game/actions"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/repository"
	"github.com/thraizz/oath-server-go/internal/server"
)

var (
	addr     = flag.String("addr", ":8080", "listen address")
	players  = flag.Int("players", 3, "players in the demo game")
	seed     = flag.Uint64("seed", 1, "seed of the demo game")
	autoplay = flag.Duration("autoplay", 0, "play the demo game with this delay between requests; 0 disables")
)

func main() {
	flag.Parse()

	logger, err := zap.NewDevelopment()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	engine := game.NewEngine(logger, game.WithStore(repository.NewMemorySnapshots(nil)))
	broker := server.NewBroker(logger)
	engine.SetNotificationHandler(broker.Publish)
	service := server.NewService(engine, logger, server.WithAutosave(true))

	wsCfg := config.WebSocketConfig{Enabled: true, Address: *addr, Path: "/ws", ReadBufferSize: 1024, WriteBufferSize: 1024}
	hub := server.NewHub(wsCfg, service, broker, logger)
	srv := server.NewWebSocketServer(wsCfg, hub)

	snap, err := service.StartGame(ctx, *seed, *players)
	if err != nil {
		logger.Fatal("failed to start demo game", zap.Error(err))
	}
	logger.Info("demo game ready", zap.String("game_id", snap.ID), zap.Int("players", *players))

	if *autoplay > 0 {
		go play(ctx, service, snap.ID, *autoplay, logger)
	}

	go func() {
		<-ctx.Done()
		hub.CloseAll()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("WebSocket server starting", zap.String("endpoint", "ws://localhost"+*addr+"/ws"))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("ListenAndServe", zap.Error(err))
	}
}

// play drives the game with a naive bot: every player travels once, then
// ends their turn. Open selects get their first choices.
func play(ctx context.Context, svc *server.Service, gameID string, delay time.Duration, logger *zap.Logger) {
	travelled := make(map[string]int)
	ticker := time.NewTicker(delay)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		view, err := svc.View(gameID)
		if err != nil {
			logger.Warn("autoplay stopped", zap.Error(err))
			return
		}
		if view.Turn.Winner != "" {
			logger.Info("demo game over", zap.String("winner", string(view.Turn.Winner)))
			return
		}
		player := view.Turn.Player

		if view.Open != nil {
			_, err = svc.ContinueAction(ctx, gameID, view.Open.Player, firstChoices(view.Open))
		} else if travelled[string(player)] < view.Turn.Round {
			travelled[string(player)] = view.Turn.Round
			_, err = svc.StartAction(ctx, gameID, player, actions.KindTravel)
		} else {
			_, err = svc.StartAction(ctx, gameID, player, actions.KindEndTurn)
		}
		if err != nil {
			logger.Debug("autoplay request rejected", zap.String("player", string(player)), zap.Error(err))
			if view.Open != nil {
				_, _ = svc.CancelAction(ctx, gameID, view.Open.Player)
			}
		}
	}
}

func firstChoices(open *rules.OpenView) map[string][]string {
	submission := make(map[string][]string, len(open.Selects))
	for name, sel := range open.Selects {
		n := min(sel.Min, len(sel.Choices))
		submission[name] = append([]string(nil), sel.Choices[:n]...)
	}
	return submission
}
