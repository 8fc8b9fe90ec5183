package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thraizz/oath-server-go/internal/game/effects"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

func moveFavor(from state.Key, amount int) *effects.MoveResources {
	return &effects.MoveResources{Actor: from, From: from, To: "bank", Resource: ledger.Favor, Amount: amount}
}

func TestEffectOutsideRequestIsRejected(t *testing.T) {
	g, _ := newTestGame(t)
	_, err := Do[int](g, moveFavor("player:1", 1))
	assert.Error(t, err)
	assert.Equal(t, 3, favor(t, g.World, "player:1"))
}

func TestEffectDuringHookRewritesEffect(t *testing.T) {
	double := &Power{
		Name:      "Double",
		AppliesTo: "move_resources",
		Access:    AccessAny,
		Hooks: Hooks{ApplyDuring: func(m *Modifier, next func() error) error {
			m.Effect.(*effects.MoveResources).Amount *= 2
			return next()
		}},
	}
	g, _ := newTestGame(t, on("site:2", double))

	var moved int
	require.NoError(t, g.Run(func() error {
		var err error
		moved, err = Do[int](g, moveFavor("player:1", 1))
		return err
	}))
	assert.Equal(t, 2, moved)
	assert.Equal(t, 1, favor(t, g.World, "player:1"))
	assert.Equal(t, 12, favor(t, g.World, "bank"))
}

func TestEffectCancelledByBeforeIsNoOp(t *testing.T) {
	guard := &Power{
		Name:      "Guard",
		AppliesTo: "move_resources",
		Access:    AccessAny,
		Hooks: Hooks{
			CanApply: func(m *Modifier) bool {
				return m.Effect.(*effects.MoveResources).From == "player:2"
			},
			ApplyBefore: func(m *Modifier) (bool, error) { return false, nil },
			ApplyAfter:  tracer("guard-after"),
		},
	}
	g, log := newTestGame(t, on("site:2", guard))

	var fromOne, fromTwo int
	require.NoError(t, g.Run(func() error {
		var err error
		if fromOne, err = Do[int](g, moveFavor("player:1", 1)); err != nil {
			return err
		}
		fromTwo, err = Do[int](g, moveFavor("player:2", 1))
		return err
	}))
	assert.Equal(t, 1, fromOne)
	assert.Zero(t, fromTwo)
	assert.Equal(t, 2, favor(t, g.World, "player:2"))
	assert.Empty(t, *log)
}

func TestEffectHooksDoNotRediscoverTheirOwnPower(t *testing.T) {
	echo := &Power{
		Name:      "Echo",
		AppliesTo: "move_resources",
		Access:    AccessAny,
		Hooks: Hooks{ApplyAfter: func(m *Modifier) error {
			trace(m.Game, "echo")
			_, err := Do[int](m.Game, moveFavor("player:2", 1))
			return err
		}},
	}
	g, log := newTestGame(t, on("bank", echo))

	require.NoError(t, g.Run(func() error {
		_, err := Do[int](g, moveFavor("player:1", 1))
		return err
	}))
	assert.Equal(t, []string{"echo"}, *log)
	assert.Equal(t, 2, favor(t, g.World, "player:1"))
	assert.Equal(t, 1, favor(t, g.World, "player:2"))
}

func TestRegistryRebuildsWhenLayoutChanges(t *testing.T) {
	p := &Power{Name: "Watch", AppliesTo: "test", Access: AccessAny}
	catalog := Catalog{}
	require.NoError(t, catalog.Register(p))

	w := testWorld(t)
	txn := w.Begin()
	relic, err := txn.Mutable("relic:1")
	require.NoError(t, err)
	relic.Powers = []string{"Watch"}
	require.NoError(t, txn.Commit())

	r := NewRegistry(catalog)
	assert.Len(t, r.For(w, "test"), 1)
	assert.Len(t, r.For(w, "test"), 1)
	assert.Empty(t, r.For(w, "other"))
	assert.Equal(t, 1, r.Builds(), "same layout is served from cache")

	txn = w.Begin()
	relic, err = txn.Mutable("relic:1")
	require.NoError(t, err)
	relic.InPlay = false
	assert.Empty(t, r.For(txn, "test"), "staged layout changes are seen")
	assert.Equal(t, 2, r.Builds())
	require.NoError(t, txn.Commit())

	assert.Empty(t, r.For(w, "test"))
	assert.Equal(t, 3, r.Builds())
}

func TestModifierAccess(t *testing.T) {
	powers := []*Power{
		{Name: "Mine", AppliesTo: "test", Access: AccessOwner},
		{Name: "Theirs", AppliesTo: "test", Access: AccessRival},
		{Name: "Here", AppliesTo: "test", Access: AccessPresent},
		{Name: "Anyone", AppliesTo: "test", Access: AccessAny},
	}
	var bindings []binding
	for _, p := range powers {
		bindings = append(bindings, on("site:2", p))
	}
	g, _ := newTestGame(t, bindings...)

	names := func(activator state.Key) []string {
		var out []string
		for _, m := range g.discover("test", activator, func(*Modifier) {}) {
			out = append(out, m.Name())
		}
		return out
	}
	assert.Equal(t, []string{"Theirs", "Anyone"}, names("player:1"))
	assert.Equal(t, []string{"Mine", "Here", "Anyone"}, names("player:2"))
	assert.Equal(t, []string{"Anyone"}, names(""))
}

func TestMaskIsPerFrameAndNeverWritesBack(t *testing.T) {
	peek := &Power{
		Name:      "Scout",
		AppliesTo: "test",
		MustUse:   true,
		Hooks: Hooks{ApplyBefore: func(m *Modifier) (bool, error) {
			proxy, ok := m.Game.Mask().Proxy("player:1")
			if !ok {
				return false, nil
			}
			proxy.Resources.Favor = 0
			again, _ := m.Game.Mask().Proxy("player:1")
			if again != proxy {
				trace(m.Game, "not memoised")
			}
			original, _ := m.Game.View().Entity("player:1")
			trace(m.Game, ledger.Resources{Favor: original.Resources.Favor}.String())
			return true, nil
		}},
	}
	g, log := newTestGame(t, on("site:1", peek))

	a := act("X")
	a.Mod = true
	require.NoError(t, g.Start(a))
	assert.Equal(t, []string{"3 favor", "X"}, *log)
	assert.Equal(t, 3, favor(t, g.World, "player:1"))
}

func TestCandidatesDoNotSeeEachOthersProxies(t *testing.T) {
	spendthrift := &Power{
		Name:      "Spendthrift",
		AppliesTo: "test",
		Access:    AccessAny,
		Hooks: Hooks{CanApply: func(m *Modifier) bool {
			proxy, ok := m.Game.Mask().Proxy(m.Activator)
			if !ok {
				return false
			}
			proxy.Resources.Favor = 0
			return true
		}},
	}
	needsFavor := &Power{
		Name:      "Needs Favor",
		AppliesTo: "test",
		Access:    AccessAny,
		Hooks: Hooks{CanApply: func(m *Modifier) bool {
			e, ok := m.Game.Mask().Entity(m.Activator)
			return ok && e.Resources.Favor >= 1
		}},
	}
	g, _ := newTestGame(t, on("site:1", spendthrift), on("site:1", needsFavor))

	a := act("X")
	a.Mod = true
	require.NoError(t, g.Start(a))

	view := g.Peek()
	require.NotNil(t, view)
	assert.Equal(t, []string{"Spendthrift (Plains)", "Needs Favor (Plains)"}, view.Selects["modifiers"].Choices)
	assert.Equal(t, 3, favor(t, g.World, "player:1"))
}

func TestModifierParamsAreACopy(t *testing.T) {
	meddler := &Power{
		Name:      "Meddler",
		AppliesTo: "test",
		MustUse:   true,
		Hooks: Hooks{ApplyBefore: func(m *Modifier) (bool, error) {
			m.Params["choice"] = []any{"b"}
			return true, nil
		}},
	}
	g, log := newTestGame(t, on("site:1", meddler))

	a := act("X")
	a.Mod = true
	a.Choices = []string{"a", "b"}
	a.Min, a.Max = 1, 1
	require.NoError(t, g.Start(a))
	require.NoError(t, g.Continue("player:1", map[string][]string{"choice": {"a"}}))
	assert.Equal(t, []string{"X:a"}, *log)
}
