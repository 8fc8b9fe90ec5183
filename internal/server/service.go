// Package server exposes the game engine over gRPC and WebSocket.
package server

import (
	"context"

	"go.uber.org/zap"

	"github.com/thraizz/oath-server-go/internal/game"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// Engine is the part of game.Engine the transports use.
type Engine interface {
	StartGame(ctx context.Context, seed uint64, playerCount int) (*game.GameSnapshot, error)
	StartAction(ctx context.Context, gameID string, player state.Key, action string) (*game.Result, error)
	ContinueAction(ctx context.Context, gameID string, player state.Key, submission map[string][]string) (*game.Result, error)
	CancelAction(ctx context.Context, gameID string, player state.Key) (*game.Result, error)
	Peek(gameID string) (*rules.OpenView, error)
	View(gameID string) (*game.GameSnapshot, error)
	ListGames() []string
	Powers() []string
	EndGame(gameID string) error
	Save(ctx context.Context, gameID string) error
	Load(ctx context.Context, gameID string) (*game.GameSnapshot, error)
}

var _ Engine = (*game.Engine)(nil)

// Service is the transport independent front of the engine. Both the gRPC
// service and the WebSocket hub call through it.
type Service struct {
	engine      Engine
	logger      *zap.Logger
	autosave    bool
	defaultSeed uint64
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithAutosave saves a game after every accepted request.
func WithAutosave(enabled bool) ServiceOption {
	return func(s *Service) { s.autosave = enabled }
}

// WithDefaultSeed is used when a client starts a game without a seed.
func WithDefaultSeed(seed uint64) ServiceOption {
	return func(s *Service) { s.defaultSeed = seed }
}

func NewService(engine Engine, logger *zap.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{engine: engine, logger: logger}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) StartGame(ctx context.Context, seed uint64, players int) (*game.GameSnapshot, error) {
	if seed == 0 {
		seed = s.defaultSeed
	}
	snap, err := s.engine.StartGame(ctx, seed, players)
	if err != nil {
		return nil, err
	}
	s.save(ctx, snap.ID)
	return snap, nil
}

func (s *Service) StartAction(ctx context.Context, gameID string, player state.Key, action string) (*game.Result, error) {
	res, err := s.engine.StartAction(ctx, gameID, player, action)
	if err != nil {
		return nil, err
	}
	s.save(ctx, gameID)
	return res, nil
}

func (s *Service) ContinueAction(ctx context.Context, gameID string, player state.Key, submission map[string][]string) (*game.Result, error) {
	res, err := s.engine.ContinueAction(ctx, gameID, player, submission)
	if err != nil {
		return nil, err
	}
	s.save(ctx, gameID)
	return res, nil
}

func (s *Service) CancelAction(ctx context.Context, gameID string, player state.Key) (*game.Result, error) {
	res, err := s.engine.CancelAction(ctx, gameID, player)
	if err != nil {
		return nil, err
	}
	s.save(ctx, gameID)
	return res, nil
}

func (s *Service) Peek(gameID string) (*rules.OpenView, error) { return s.engine.Peek(gameID) }

func (s *Service) View(gameID string) (*game.GameSnapshot, error) { return s.engine.View(gameID) }

func (s *Service) ListGames() []string { return s.engine.ListGames() }

func (s *Service) Powers() []string { return s.engine.Powers() }

func (s *Service) EndGame(gameID string) error { return s.engine.EndGame(gameID) }

func (s *Service) Save(ctx context.Context, gameID string) error { return s.engine.Save(ctx, gameID) }

func (s *Service) Load(ctx context.Context, gameID string) (*game.GameSnapshot, error) {
	return s.engine.Load(ctx, gameID)
}

// save is the autosave hook. A failed autosave is logged, not returned: the
// request itself already succeeded.
func (s *Service) save(ctx context.Context, gameID string) {
	if !s.autosave {
		return
	}
	if err := s.engine.Save(ctx, gameID); err != nil {
		s.logger.Error("autosave failed", zap.String("game_id", gameID), zap.Error(err))
	}
}
