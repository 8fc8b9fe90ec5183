// Package game hosts running games behind one facade. Each game is a rules
// interpreter over its own arena; requests for the same game are
// serialised, independent games proceed in parallel.
package game

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/actions"
	"github.com/thraizz/oath-server-go/internal/game/campaign"
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/powers"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const tracerName = "github.com/thraizz/oath-server-go/internal/game"

// offered are the actions a player may start on their own turn.
var offered = map[string]func(player state.Key) rules.Action{
	actions.KindMuster:   func(p state.Key) rules.Action { return &actions.Muster{Base: rules.Base{Actor: p}} },
	actions.KindTravel:   func(p state.Key) rules.Action { return &actions.Travel{Base: rules.Base{Actor: p}} },
	campaign.KindDeclare: func(p state.Key) rules.Action { return &campaign.Declare{Base: rules.Base{Actor: p}} },
	actions.KindEndTurn:  func(p state.Key) rules.Action { return &actions.EndTurn{Base: rules.Base{Actor: p}} },
}

// OfferedActions lists the actions StartAction accepts, sorted.
func OfferedActions() []string {
	out := make([]string, 0, len(offered))
	for kind := range offered {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}

// Notification is pushed to the registered handler for every event a game
// publishes.
type Notification struct {
	Type      string
	GameID    string
	PlayerID  string
	Timestamp time.Time
	Event     rules.Event
}

// NotificationHandler receives notifications. It runs on its own goroutine
// and may call back into the engine.
type NotificationHandler func(notification Notification)

// Store persists snapshots produced by Engine.Snapshot.
type Store interface {
	Save(ctx context.Context, gameID, checksum string, data []byte) error
	Load(ctx context.Context, gameID string) ([]byte, error)
}

// Result is what a player request returns: the action now waiting for
// input, if any, the turn and the events the request published.
type Result struct {
	GameID string          `json:"game_id"`
	Open   *rules.OpenView `json:"open,omitempty"`
	Turn   state.Turn      `json:"turn"`
	Events []rules.Event   `json:"events,omitempty"`
}

// GameSnapshot is a read-only picture of a game.
type GameSnapshot struct {
	ID       string          `json:"id"`
	Seed     uint64          `json:"seed"`
	Turn     state.Turn      `json:"turn"`
	Entities []state.Entity  `json:"entities"`
	Stack    []string        `json:"stack,omitempty"`
	Open     *rules.OpenView `json:"open,omitempty"`
	Offered  []string        `json:"offered,omitempty"`
}

// Option configures an Engine.
type Option func(*Engine)

// WithStore sets the snapshot store used by Save and Load.
func WithStore(store Store) Option {
	return func(e *Engine) { e.store = store }
}

// WithMaxPlayers lowers the player cap of new games.
func WithMaxPlayers(n int) Option {
	return func(e *Engine) {
		if n >= MinPlayers && n <= MaxPlayers {
			e.maxPlayers = n
		}
	}
}

// WithTracer replaces the global tracer.
func WithTracer(tracer trace.Tracer) Option {
	return func(e *Engine) { e.tracer = tracer }
}

// Engine runs games.
type Engine struct {
	logger     *zap.Logger
	tracer     trace.Tracer
	store      Store
	maxPlayers int

	mu                  sync.RWMutex
	games               map[string]*session
	notificationHandler NotificationHandler
}

// session is one running game. Its mutex serialises every request.
type session struct {
	mu       sync.Mutex
	id       string
	seed     uint64
	players  int
	game     *rules.Game
	roller   *dice.SeededRoller
	requests []Request
	events   []rules.Event
}

// NewEngine creates an engine with no games.
func NewEngine(logger *zap.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		logger:     logger,
		tracer:     otel.Tracer(tracerName),
		maxPlayers: MaxPlayers,
		games:      make(map[string]*session),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// SetNotificationHandler sets the handler for game notifications.
func (e *Engine) SetNotificationHandler(handler NotificationHandler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.notificationHandler = handler
}

func (e *Engine) emitNotification(n Notification) {
	e.mu.RLock()
	handler := e.notificationHandler
	e.mu.RUnlock()
	if handler != nil {
		go handler(n)
	}
}

// newSession wires a rules interpreter around world. Nothing is resolved.
func (e *Engine) newSession(id string, seed uint64, players int, world *state.World, roller *dice.SeededRoller) (*session, error) {
	reg := rules.NewActionRegistry()
	if err := actions.Register(reg); err != nil {
		return nil, oatherr.Wrap(err, "register turn actions")
	}
	if err := campaign.Register(reg); err != nil {
		return nil, oatherr.Wrap(err, "register campaign actions")
	}
	s := &session{id: id, seed: seed, players: players, roller: roller}
	s.game = rules.NewGame(world, rules.Options{
		ID:      id,
		Catalog: powers.Catalog(),
		Actions: reg,
		Dice:    roller,
		Logger:  e.logger,
	})
	s.game.Events.Subscribe(func(ev rules.Event) {
		s.events = append(s.events, ev)
		e.emitNotification(Notification{
			Type:      string(ev.Type),
			GameID:    id,
			PlayerID:  ev.Player,
			Timestamp: ev.Timestamp,
			Event:     ev,
		})
	})
	return s, nil
}

// setup deals a fresh board and wakes the first player.
func (e *Engine) setup(id string, seed uint64, playerCount int) (*session, error) {
	if playerCount < MinPlayers || playerCount > e.maxPlayers {
		return nil, oatherr.InvalidArgumentf("a game needs %d to %d players", MinPlayers, e.maxPlayers).
			WithMeta("players", playerCount)
	}
	roller := dice.NewSeededRoller(seed)
	world, err := deal(roller, playerCount)
	if err != nil {
		return nil, oatherr.Wrap(err, "deal board")
	}
	s, err := e.newSession(id, seed, playerCount, world, roller)
	if err != nil {
		return nil, err
	}
	first := world.Turn().Player
	if err := s.game.Start(&actions.Wake{Base: rules.Base{Actor: first}}); err != nil {
		return nil, oatherr.Wrap(err, "wake first player")
	}
	return s, nil
}

func (e *Engine) register(s *session) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.games[s.id] = s
}

func (e *Engine) session(gameID string) (*session, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	s, ok := e.games[gameID]
	if !ok {
		return nil, oatherr.NotFoundf("game %s not found", gameID).WithMeta("game_id", gameID)
	}
	return s, nil
}

func (e *Engine) span(ctx context.Context, name, gameID string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("game.id", gameID))
	return e.tracer.Start(ctx, "game."+name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// StartGame deals a new game for playerCount players from seed and wakes
// the first player.
func (e *Engine) StartGame(ctx context.Context, seed uint64, playerCount int) (_ *GameSnapshot, err error) {
	id := uuid.NewString()
	_, span := e.span(ctx, "start_game", id, attribute.Int("game.players", playerCount))
	defer func() { finish(span, err) }()

	s, err := e.setup(id, seed, playerCount)
	if err != nil {
		e.logger.Warn("game not started", zap.Int("players", playerCount), zap.Error(err))
		return nil, err
	}
	e.register(s)
	e.logger.Info("game started",
		zap.String("game_id", id),
		zap.Uint64("seed", seed),
		zap.Int("players", playerCount))

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	return s.snapshot(), nil
}

// StartAction starts one of the offered actions for the player whose turn
// it is.
func (e *Engine) StartAction(ctx context.Context, gameID string, player state.Key, action string) (*Result, error) {
	return e.do(ctx, "start_action", gameID, Request{Op: OpStart, Player: player, Action: action})
}

// ContinueAction submits values for the open action's slots.
func (e *Engine) ContinueAction(ctx context.Context, gameID string, player state.Key, submission map[string][]string) (*Result, error) {
	return e.do(ctx, "continue_action", gameID, Request{Op: OpContinue, Player: player, Submission: submission})
}

// CancelAction discards the open action.
func (e *Engine) CancelAction(ctx context.Context, gameID string, player state.Key) (*Result, error) {
	return e.do(ctx, "cancel_action", gameID, Request{Op: OpCancel, Player: player})
}

func (e *Engine) do(ctx context.Context, name, gameID string, req Request) (_ *Result, err error) {
	_, span := e.span(ctx, name, gameID,
		attribute.String("game.player", string(req.Player)),
		attribute.String("game.action", req.Action))
	defer func() { finish(span, err) }()

	s, err := e.session(gameID)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = nil
	if err = s.apply(req); err != nil {
		e.logger.Warn("request rejected",
			zap.String("game_id", gameID),
			zap.String("op", string(req.Op)),
			zap.String("player", string(req.Player)),
			zap.Error(err))
		return nil, err
	}
	s.requests = append(s.requests, req)
	return s.result(), nil
}

// apply runs one request against the game.
func (s *session) apply(req Request) error {
	switch req.Op {
	case OpStart:
		a, err := s.offer(req.Player, req.Action)
		if err != nil {
			return err
		}
		return s.game.Start(a)
	case OpContinue:
		return s.game.Continue(req.Player, req.Submission)
	case OpCancel:
		return s.game.Cancel(req.Player)
	default:
		return oatherr.InvalidArgumentf("unknown request %q", req.Op)
	}
}

// offer builds the named action if the player may start it now.
func (s *session) offer(player state.Key, kind string) (rules.Action, error) {
	build, ok := offered[kind]
	if !ok {
		return nil, oatherr.Validationf("%q is not an action a player can take", kind).WithMeta("action", kind)
	}
	turn := s.game.World.Turn()
	switch {
	case turn.Winner != "":
		return nil, oatherr.Validationf("the game is over")
	case !s.game.Stack.IsEmpty():
		return nil, oatherr.Validationf("another action is still being resolved")
	case turn.Player != player:
		return nil, oatherr.Validationf("it is not %s's turn", player).WithMeta("player", string(player))
	case turn.Phase != state.PhaseAct:
		return nil, oatherr.Validationf("actions can only be taken in the act phase, not %s", turn.Phase)
	}
	return build(player), nil
}

func (s *session) result() *Result {
	return &Result{
		GameID: s.id,
		Open:   s.game.Peek(),
		Turn:   s.game.World.Turn(),
		Events: append([]rules.Event(nil), s.events...),
	}
}

func (s *session) snapshot() *GameSnapshot {
	snap := &GameSnapshot{
		ID:       s.id,
		Seed:     s.seed,
		Turn:     s.game.World.Turn(),
		Entities: state.All(s.game.World),
		Open:     s.game.Peek(),
	}
	for _, item := range s.game.Stack.List() {
		snap.Stack = append(snap.Stack, item.Frame.Action.Kind())
	}
	if s.game.Stack.IsEmpty() && snap.Turn.Phase == state.PhaseAct && snap.Turn.Winner == "" {
		snap.Offered = OfferedActions()
	}
	return snap
}

// View returns the current picture of a game.
func (e *Engine) View(gameID string) (*GameSnapshot, error) {
	s, err := e.session(gameID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot(), nil
}

// Peek returns the action waiting for input, or nil.
func (e *Engine) Peek(gameID string) (*rules.OpenView, error) {
	s, err := e.session(gameID)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.game.Peek(), nil
}

// Powers names every power a game can deal, sorted.
func (e *Engine) Powers() []string { return powers.Catalog().Names() }

// ListGames returns the ids of running games, sorted.
func (e *Engine) ListGames() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := make([]string, 0, len(e.games))
	for id := range e.games {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// EndGame forgets a game.
func (e *Engine) EndGame(gameID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.games[gameID]; !ok {
		return oatherr.NotFoundf("game %s not found", gameID)
	}
	delete(e.games, gameID)
	e.logger.Info("game ended", zap.String("game_id", gameID))
	return nil
}
