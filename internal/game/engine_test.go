package game

import (
	"bytes"
	"context"
	"encoding/gob"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
	"golang.org/x/sync/errgroup"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/actions"
	"github.com/thraizz/oath-server-go/internal/game/powers"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

func newTestEngine(t *testing.T, opts ...Option) *Engine {
	t.Helper()
	return NewEngine(zaptest.NewLogger(t), opts...)
}

func startGame(t *testing.T, e *Engine, players int) *GameSnapshot {
	t.Helper()
	snap, err := e.StartGame(context.Background(), 42, players)
	require.NoError(t, err)
	return snap
}

// settle declines every optional modifier until the action itself is open
// or resolved.
func settle(t *testing.T, e *Engine, gameID string, player state.Key, res *Result) *Result {
	t.Helper()
	for res.Open != nil && res.Open.Kind == rules.KindChooseModifiers {
		var err error
		res, err = e.ContinueAction(context.Background(), gameID, player, map[string][]string{"modifiers": nil})
		require.NoError(t, err)
	}
	return res
}

func entityIn(t *testing.T, snap *GameSnapshot, key state.Key) state.Entity {
	t.Helper()
	for _, e := range snap.Entities {
		if e.Key == key {
			return e
		}
	}
	t.Fatalf("entity %s not in snapshot", key)
	return state.Entity{}
}

func endTurn(t *testing.T, e *Engine, gameID string, player state.Key) *Result {
	t.Helper()
	res, err := e.StartAction(context.Background(), gameID, player, actions.KindEndTurn)
	require.NoError(t, err)
	return settle(t, e, gameID, player, res)
}

// travel moves the player to the first destination offered.
func travel(t *testing.T, e *Engine, gameID string, player state.Key) *Result {
	t.Helper()
	res, err := e.StartAction(context.Background(), gameID, player, actions.KindTravel)
	require.NoError(t, err)
	return finishTravel(t, e, gameID, player, res)
}

// finishTravel answers an open travel with the first destination offered.
func finishTravel(t *testing.T, e *Engine, gameID string, player state.Key, res *Result) *Result {
	t.Helper()
	res = settle(t, e, gameID, player, res)
	if res.Open == nil {
		return res
	}
	require.Equal(t, actions.KindTravel, res.Open.Kind)
	choices := res.Open.Selects["site"].Choices
	require.NotEmpty(t, choices)
	res, err := e.ContinueAction(context.Background(), gameID, player, map[string][]string{"site": {choices[0]}})
	require.NoError(t, err)
	return res
}

func TestStartGameDealsBoard(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 3)

	counts := make(map[state.Kind]int)
	for _, ent := range snap.Entities {
		counts[ent.Kind]++
	}
	assert.Equal(t, 3, counts[state.KindPlayer])
	assert.Equal(t, 5, counts[state.KindSite])
	assert.Equal(t, 6, counts[state.KindDenizen])
	assert.Equal(t, 3, counts[state.KindRelic])
	assert.Equal(t, 2, counts[state.KindBanner])
	assert.Equal(t, 1, counts[state.KindReliquary])
	assert.Equal(t, 1, counts[state.KindBank])

	for _, key := range []state.Key{"site:4", "site:5"} {
		site := entityIn(t, snap, key)
		assert.Empty(t, site.Owner)
		assert.Equal(t, startingBandits, site.Warbands.Get(state.BanditColor))
	}
	assert.Equal(t, state.Key("site:4"), entityIn(t, snap, "relic:1").Location)
	assert.Equal(t, state.Key("site:5"), entityIn(t, snap, "banner:1").Location)
	assert.Equal(t, state.Key("site:4"), entityIn(t, snap, "banner:2").Location)
	reliquary := entityIn(t, snap, "reliquary")
	assert.Equal(t, reliquarySecrets, reliquary.Resources.Secret)
	assert.Equal(t, powers.ReliquaryPowers, reliquary.Powers)
	assert.Equal(t, state.Key("player:2"), entityIn(t, snap, "site:2").Owner)

	assert.Equal(t, state.Key("player:1"), snap.Turn.Player)
	assert.Equal(t, state.PhaseAct, snap.Turn.Phase, "the first player is woken")
	assert.Equal(t, 1, snap.Turn.Round)
	assert.Equal(t, OfferedActions(), snap.Offered)
	assert.Nil(t, snap.Open)
	assert.Equal(t, []string{snap.ID}, e.ListGames())

	names := e.Powers()
	assert.True(t, sort.StringsAreSorted(names))
	for _, ent := range snap.Entities {
		for _, p := range ent.Powers {
			assert.Contains(t, names, p, "%s deals an unknown power", ent.Key)
		}
	}
}

func TestSameSeedDealsSameBoard(t *testing.T) {
	e := newTestEngine(t)
	a := startGame(t, e, 4)
	b := startGame(t, e, 4)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, a.Entities, b.Entities)
}

func TestStartGameRejectsPlayerCount(t *testing.T) {
	e := newTestEngine(t, WithMaxPlayers(4))
	for _, n := range []int{0, 1, 5, 7} {
		_, err := e.StartGame(context.Background(), 1, n)
		require.Error(t, err, "%d players", n)
		assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err))
	}
	assert.Empty(t, e.ListGames())
}

func TestStartActionValidation(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 2)
	ctx := context.Background()

	_, err := e.StartAction(ctx, snap.ID, "player:2", actions.KindTravel)
	assert.True(t, oatherr.IsValidation(err), "not player 2's turn: %v", err)

	_, err = e.StartAction(ctx, snap.ID, "player:1", actions.KindWake)
	assert.True(t, oatherr.IsValidation(err), "wake is never offered: %v", err)

	_, err = e.StartAction(ctx, "missing", "player:1", actions.KindTravel)
	assert.True(t, oatherr.IsNotFound(err))

	res, err := e.StartAction(ctx, snap.ID, "player:1", actions.KindTravel)
	require.NoError(t, err)
	if res.Open != nil {
		_, err = e.StartAction(ctx, snap.ID, "player:1", actions.KindMuster)
		assert.True(t, oatherr.IsValidation(err), "stack is busy: %v", err)
	}
}

func TestTravelSpendsSupply(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 2)

	res := travel(t, e, snap.ID, "player:1")
	assert.Nil(t, res.Open)

	view, err := e.View(snap.ID)
	require.NoError(t, err)
	red := entityIn(t, view, "player:1")
	assert.NotEqual(t, state.Key("site:1"), red.Location)
	assert.Equal(t, actions.MaxSupply-actions.TravelSupply, red.Supply)
	assert.Empty(t, view.Stack)
	assert.Equal(t, OfferedActions(), view.Offered)

	var kinds []rules.EventType
	for _, ev := range res.Events {
		kinds = append(kinds, ev.Type)
	}
	assert.Contains(t, kinds, rules.EventActionResolved)
}

func TestCancelAction(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 2)
	ctx := context.Background()

	res, err := e.StartAction(ctx, snap.ID, "player:1", actions.KindMuster)
	require.NoError(t, err)
	require.NotNil(t, res.Open, "two denizens to choose from")

	_, err = e.CancelAction(ctx, snap.ID, "player:2")
	assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err), "only the owner cancels")

	res, err = e.CancelAction(ctx, snap.ID, "player:1")
	require.NoError(t, err)
	assert.Nil(t, res.Open)

	view, err := e.View(snap.ID)
	require.NoError(t, err)
	assert.Empty(t, view.Stack)
	assert.Equal(t, actions.MaxSupply, entityIn(t, view, "player:1").Supply)
}

func TestEndTurnPassesToNextPlayer(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 2)

	res := endTurn(t, e, snap.ID, "player:1")
	assert.Nil(t, res.Open)
	assert.Equal(t, state.Key("player:2"), res.Turn.Player)
	assert.Equal(t, state.PhaseAct, res.Turn.Phase)
	assert.Equal(t, 1, res.Turn.Round)

	res = endTurn(t, e, snap.ID, "player:2")
	assert.Equal(t, state.Key("player:1"), res.Turn.Player)
	assert.Equal(t, 2, res.Turn.Round)
}

func TestSnapshotRoundTrip(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 3)
	ctx := context.Background()

	endTurn(t, e, snap.ID, "player:1")
	res, err := e.StartAction(ctx, snap.ID, "player:2", actions.KindTravel)
	require.NoError(t, err)

	before, err := e.View(snap.ID)
	require.NoError(t, err)
	data, checksum, err := e.Snapshot(snap.ID)
	require.NoError(t, err)
	assert.Len(t, checksum, 64)

	other := newTestEngine(t)
	after, err := other.Restore(ctx, data)
	require.NoError(t, err)

	assert.Equal(t, before.ID, after.ID)
	assert.Equal(t, before.Turn, after.Turn)
	assert.Equal(t, before.Entities, after.Entities)
	assert.Equal(t, before.Stack, after.Stack)
	assert.Equal(t, res.Open, after.Open, "the open action asks the same question")

	_, err = VerifySnapshot(data, checksum)
	require.NoError(t, err)

	// Both copies resolve the rest of the turn the same way.
	a := finishTravel(t, e, snap.ID, "player:2", res)
	b := finishTravel(t, other, snap.ID, "player:2", &Result{GameID: after.ID, Open: after.Open})
	assert.Equal(t, a.Turn, b.Turn)
	va, err := e.View(snap.ID)
	require.NoError(t, err)
	vb, err := other.View(snap.ID)
	require.NoError(t, err)
	assert.Equal(t, va.Entities, vb.Entities)
}

func TestRestoreRejectsTamperedSnapshot(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 2)
	data, _, err := e.Snapshot(snap.ID)
	require.NoError(t, err)

	var env envelope
	require.NoError(t, gob.NewDecoder(bytes.NewReader(data)).Decode(&env))
	env.Payload[len(env.Payload)/2] ^= 0xff
	var tampered bytes.Buffer
	require.NoError(t, gob.NewEncoder(&tampered).Encode(env))

	_, err = e.Restore(context.Background(), tampered.Bytes())
	require.Error(t, err)
	assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err))
	assert.Contains(t, err.Error(), "checksum mismatch")

	_, err = e.Restore(context.Background(), []byte("not a snapshot"))
	assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err))
}

func TestVerifySnapshot(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 2)
	data, checksum, err := e.Snapshot(snap.ID)
	require.NoError(t, err)

	id, err := VerifySnapshot(data, checksum)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, id)

	id, err = VerifySnapshot(data, Checksum([]byte("something else")))
	assert.Equal(t, snap.ID, id)
	assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err))
}

type memStore struct {
	mu   sync.Mutex
	data map[string][]byte
	sums map[string]string
}

func newMemStore() *memStore {
	return &memStore{data: make(map[string][]byte), sums: make(map[string]string)}
}

func (m *memStore) Save(_ context.Context, gameID, checksum string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[gameID] = append([]byte(nil), data...)
	m.sums[gameID] = checksum
	return nil
}

func (m *memStore) Load(_ context.Context, gameID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.data[gameID]
	if !ok {
		return nil, oatherr.NotFoundf("no snapshot for %s", gameID)
	}
	return data, nil
}

func TestSaveAndLoad(t *testing.T) {
	store := newMemStore()
	e := newTestEngine(t, WithStore(store))
	snap := startGame(t, e, 2)
	ctx := context.Background()
	travel(t, e, snap.ID, "player:1")

	before, err := e.View(snap.ID)
	require.NoError(t, err)
	require.NoError(t, e.Save(ctx, snap.ID))
	assert.Len(t, store.sums[snap.ID], 64)

	require.NoError(t, e.EndGame(snap.ID))
	_, err = e.View(snap.ID)
	assert.True(t, oatherr.IsNotFound(err))

	after, err := e.Load(ctx, snap.ID)
	require.NoError(t, err)
	assert.Equal(t, before.Entities, after.Entities)
	assert.Equal(t, before.Turn, after.Turn)

	_, err = e.Load(ctx, "missing")
	assert.True(t, oatherr.IsNotFound(err))
}

func TestSaveWithoutStore(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 2)
	assert.True(t, oatherr.IsInternal(e.Save(context.Background(), snap.ID)))
}

func TestReplayGameReproducesState(t *testing.T) {
	e := newTestEngine(t)
	snap := startGame(t, e, 3)

	travel(t, e, snap.ID, "player:1")
	endTurn(t, e, snap.ID, "player:1")
	travel(t, e, snap.ID, "player:2")
	endTurn(t, e, snap.ID, "player:2")

	// A rejected request is not part of the history.
	_, err := e.StartAction(context.Background(), snap.ID, "player:1", actions.KindWake)
	require.Error(t, err)

	original, err := e.View(snap.ID)
	require.NoError(t, err)
	data, err := e.Replay(snap.ID)
	require.NoError(t, err)

	log, err := DecodeReplay(data)
	require.NoError(t, err)
	assert.Equal(t, snap.ID, log.GameID)
	assert.Equal(t, uint64(42), log.Seed)
	assert.Equal(t, 3, log.Players)

	replayed, err := e.ReplayGame(context.Background(), data)
	require.NoError(t, err)
	assert.NotEqual(t, original.ID, replayed.ID)
	assert.Equal(t, original.Turn, replayed.Turn)
	assert.Equal(t, original.Entities, replayed.Entities)

	_, err = e.ReplayGame(context.Background(), []byte("garbage"))
	assert.Equal(t, oatherr.CodeInvalidArgument, oatherr.GetCode(err))
}

func TestGamesRunIndependently(t *testing.T) {
	e := newTestEngine(t)
	var g errgroup.Group
	for i := 0; i < 8; i++ {
		seed := uint64(i)
		g.Go(func() error {
			snap, err := e.StartGame(context.Background(), seed, 2)
			if err != nil {
				return err
			}
			for _, player := range []state.Key{"player:1", "player:2", "player:1"} {
				res, err := e.StartAction(context.Background(), snap.ID, player, actions.KindEndTurn)
				if err != nil {
					return err
				}
				for res.Open != nil {
					if res.Open.Kind != rules.KindChooseModifiers {
						return fmt.Errorf("unexpected open action %s", res.Open.Kind)
					}
					if res, err = e.ContinueAction(context.Background(), snap.ID, player, map[string][]string{"modifiers": nil}); err != nil {
						return err
					}
				}
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
	assert.Len(t, e.ListGames(), 8)
}

func TestNotificationsFollowEvents(t *testing.T) {
	e := newTestEngine(t)
	got := make(chan Notification, 64)
	e.SetNotificationHandler(func(n Notification) { got <- n })

	snap := startGame(t, e, 2)
	endTurn(t, e, snap.ID, "player:1")

	deadline := time.After(2 * time.Second)
	for {
		select {
		case n := <-got:
			assert.Equal(t, snap.ID, n.GameID)
			if n.Type == string(rules.EventTurnChanged) {
				assert.Equal(t, "player:2", n.PlayerID)
				return
			}
		case <-deadline:
			t.Fatalf("no turn change notification")
		}
	}
}
