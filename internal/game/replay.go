package game

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/gob"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// Op names a player request.
type Op string

const (
	OpStart    Op = "start"
	OpContinue Op = "continue"
	OpCancel   Op = "cancel"
)

// Request is one accepted player request. A game is fully described by its
// seed, player count and the requests it accepted.
type Request struct {
	Op         Op                  `json:"op"`
	Player     state.Key           `json:"player"`
	Action     string              `json:"action,omitempty"`
	Submission map[string][]string `json:"submission,omitempty"`
}

// ReplayLog is the recorded history of a game.
type ReplayLog struct {
	GameID   string
	Seed     uint64
	Players  int
	Requests []Request
}

// Replay returns the game's request log, gob encoded and gzipped.
func (e *Engine) Replay(gameID string) ([]byte, error) {
	s, err := e.session(gameID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	log := ReplayLog{
		GameID:   s.id,
		Seed:     s.seed,
		Players:  s.players,
		Requests: append([]Request(nil), s.requests...),
	}
	s.mu.Unlock()

	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if err := gob.NewEncoder(gz).Encode(log); err != nil {
		return nil, fmt.Errorf("encode replay: %w", err)
	}
	if err := gz.Close(); err != nil {
		return nil, fmt.Errorf("compress replay: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeReplay reads a log written by Replay.
func DecodeReplay(data []byte) (ReplayLog, error) {
	gz, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return ReplayLog{}, oatherr.InvalidArgumentf("replay is not gzipped: %v", err)
	}
	defer gz.Close()

	var log ReplayLog
	if err := gob.NewDecoder(gz).Decode(&log); err != nil {
		return ReplayLog{}, oatherr.InvalidArgumentf("replay is not readable: %v", err)
	}
	return log, nil
}

// ReplayGame deals the recorded game again and feeds it every request. The
// rebuilt game runs under a new id. A request that no longer resolves means
// the rules changed since the log was written.
func (e *Engine) ReplayGame(ctx context.Context, data []byte) (_ *GameSnapshot, err error) {
	log, err := DecodeReplay(data)
	if err != nil {
		return nil, err
	}
	id := uuid.NewString()
	_, span := e.span(ctx, "replay", id,
		attribute.String("replay.source", log.GameID),
		attribute.Int("replay.requests", len(log.Requests)))
	defer func() { finish(span, err) }()

	s, err := e.setup(id, log.Seed, log.Players)
	if err != nil {
		return nil, err
	}
	for i, req := range log.Requests {
		if err := s.apply(req); err != nil {
			e.logger.Error("replay diverged",
				zap.String("source", log.GameID),
				zap.Int("request", i),
				zap.Error(err))
			return nil, oatherr.Wrapf(err, "replay request %d (%s by %s)", i, req.Op, req.Player)
		}
		s.requests = append(s.requests, req)
	}
	e.register(s)
	e.logger.Info("game replayed",
		zap.String("game_id", id),
		zap.String("source", log.GameID),
		zap.Int("requests", len(log.Requests)))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return s.snapshot(), nil
}
