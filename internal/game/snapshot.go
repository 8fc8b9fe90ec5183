package game

import (
	"bytes"
	"context"
	"encoding/gob"
	"encoding/hex"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/crypto/blake2b"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// SnapshotVersion is bumped whenever the encoded layout changes.
const SnapshotVersion = 1

// snapshotState is everything needed to bring a game back: the committed
// arena, the stack, the dice stream and the request log.
type snapshotState struct {
	Version  int
	GameID   string
	Seed     uint64
	Players  int
	World    state.Data
	Stack    []rules.FrameRecord
	Dice     []byte
	Requests []Request
}

// envelope carries the encoded state with the checksum it was written with.
type envelope struct {
	Checksum []byte
	Payload  []byte
}

// Checksum returns the hex blake2b-256 digest of payload.
func Checksum(payload []byte) string {
	sum := blake2b.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

func (s *session) encode() ([]byte, string, error) {
	records, err := s.game.Records()
	if err != nil {
		return nil, "", oatherr.Wrap(err, "record stack")
	}
	diceState, err := s.roller.MarshalBinary()
	if err != nil {
		return nil, "", fmt.Errorf("encode dice: %w", err)
	}
	st := snapshotState{
		Version:  SnapshotVersion,
		GameID:   s.id,
		Seed:     s.seed,
		Players:  s.players,
		World:    s.game.World.Export(),
		Stack:    records,
		Dice:     diceState,
		Requests: append([]Request(nil), s.requests...),
	}

	var payload bytes.Buffer
	if err := gob.NewEncoder(&payload).Encode(st); err != nil {
		return nil, "", fmt.Errorf("encode snapshot: %w", err)
	}
	sum := blake2b.Sum256(payload.Bytes())

	var out bytes.Buffer
	if err := gob.NewEncoder(&out).Encode(envelope{Checksum: sum[:], Payload: payload.Bytes()}); err != nil {
		return nil, "", fmt.Errorf("encode envelope: %w", err)
	}
	return out.Bytes(), hex.EncodeToString(sum[:]), nil
}

// decodeSnapshot checks the envelope's checksum before decoding the state.
// It returns the state and its hex checksum.
func decodeSnapshot(data []byte) (snapshotState, string, error) {
	var env envelope
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&env); err != nil {
		return snapshotState{}, "", oatherr.InvalidArgumentf("snapshot is not readable: %v", err)
	}
	sum := blake2b.Sum256(env.Payload)
	if !bytes.Equal(sum[:], env.Checksum) {
		return snapshotState{}, "", oatherr.InvalidArgumentf("snapshot checksum mismatch").
			WithMeta("expected", hex.EncodeToString(env.Checksum)).
			WithMeta("actual", hex.EncodeToString(sum[:]))
	}
	var st snapshotState
	if err := gob.NewDecoder(bytes.NewReader(env.Payload)).Decode(&st); err != nil {
		return snapshotState{}, "", oatherr.InvalidArgumentf("snapshot payload is not readable: %v", err)
	}
	if st.Version != SnapshotVersion {
		return snapshotState{}, "", oatherr.InvalidArgumentf("snapshot version %d is not supported", st.Version)
	}
	return st, hex.EncodeToString(sum[:]), nil
}

// VerifySnapshot checks a stored snapshot against the checksum it was saved
// with and returns the id of the game it holds.
func VerifySnapshot(data []byte, checksum string) (string, error) {
	st, sum, err := decodeSnapshot(data)
	if err != nil {
		return "", err
	}
	if sum != checksum {
		return st.GameID, oatherr.InvalidArgumentf("stored checksum does not match snapshot").
			WithMeta("stored", checksum).
			WithMeta("actual", sum)
	}
	return st.GameID, nil
}

// Snapshot encodes a game between requests and returns it with its
// checksum.
func (e *Engine) Snapshot(gameID string) ([]byte, string, error) {
	s, err := e.session(gameID)
	if err != nil {
		return nil, "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.encode()
}

// Restore brings back a game from a snapshot, replacing a running game with
// the same id. The action that was waiting for input is started again, so
// its selects reflect the restored state.
func (e *Engine) Restore(ctx context.Context, data []byte) (_ *GameSnapshot, err error) {
	_, span := e.span(ctx, "restore", "", attribute.Int("snapshot.bytes", len(data)))
	defer func() { finish(span, err) }()

	st, _, err := decodeSnapshot(data)
	if err != nil {
		e.logger.Warn("snapshot rejected", zap.Error(err))
		return nil, err
	}
	world, err := state.Import(st.World)
	if err != nil {
		return nil, oatherr.Wrap(err, "import world")
	}
	roller := dice.NewSeededRoller(st.Seed)
	if err := roller.UnmarshalBinary(st.Dice); err != nil {
		return nil, fmt.Errorf("restore dice: %w", err)
	}
	s, err := e.newSession(st.GameID, st.Seed, st.Players, world, roller)
	if err != nil {
		return nil, err
	}
	if err := s.game.RestoreStack(st.Stack); err != nil {
		return nil, oatherr.Wrap(err, "restore stack")
	}
	s.requests = st.Requests
	e.register(s)
	e.logger.Info("game restored",
		zap.String("game_id", st.GameID),
		zap.Int("stack", len(st.Stack)),
		zap.Int("requests", len(st.Requests)))

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Save writes a snapshot of the game to the configured store.
func (e *Engine) Save(ctx context.Context, gameID string) (err error) {
	ctx, span := e.span(ctx, "save", gameID)
	defer func() { finish(span, err) }()

	if e.store == nil {
		return oatherr.Internalf("no snapshot store configured")
	}
	data, checksum, err := e.Snapshot(gameID)
	if err != nil {
		return err
	}
	if err := e.store.Save(ctx, gameID, checksum, data); err != nil {
		return oatherr.Wrapf(err, "save game %s", gameID)
	}
	e.logger.Debug("game saved", zap.String("game_id", gameID), zap.String("checksum", checksum))
	return nil
}

// Load restores a game from the configured store.
func (e *Engine) Load(ctx context.Context, gameID string) (_ *GameSnapshot, err error) {
	ctx, span := e.span(ctx, "load", gameID)
	defer func() { finish(span, err) }()

	if e.store == nil {
		return nil, oatherr.Internalf("no snapshot store configured")
	}
	data, err := e.store.Load(ctx, gameID)
	if err != nil {
		return nil, oatherr.Wrapf(err, "load game %s", gameID)
	}
	return e.Restore(ctx, data)
}
