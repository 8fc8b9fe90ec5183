package rules

import (
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/effects"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const eventTrace EventType = "TRACE"

func trace(g *Game, label string) {
	ev := NewEvent(eventTrace, "", "")
	ev.Data = label
	g.Emit(ev)
}

// testAction is a scripted action: it offers Choices, traces its name and
// the chosen labels, and schedules Children and Then when executed.
type testAction struct {
	Base
	Name     string        `json:"name"`
	Choices  []string      `json:"choices,omitempty"`
	Min      int           `json:"min,omitempty"`
	Max      int           `json:"max,omitempty"`
	Children []*testAction `json:"children,omitempty"`
	Then     []*testAction `json:"then,omitempty"`
	Mod      bool          `json:"mod,omitempty"`
	Must     bool          `json:"must,omitempty"`
	Fail     bool          `json:"fail,omitempty"`
	Roll     int           `json:"roll,omitempty"`
	Forever  bool          `json:"forever,omitempty"`
}

func (a *testAction) Kind() string     { return "test" }
func (a *testAction) Modifiable() bool { return a.Mod }
func (a *testAction) Mandatory() bool  { return a.Must }

func (a *testAction) Start(*Game) ([]*selects.Select, error) {
	if len(a.Choices) == 0 {
		return nil, nil
	}
	opts := make([]selects.Option, len(a.Choices))
	for i, c := range a.Choices {
		opts[i] = selects.Option{Label: c, Value: c}
	}
	s, err := selects.New("choice", "Choice", opts, a.Min, a.Max)
	if err != nil {
		return nil, err
	}
	return []*selects.Select{s}, nil
}

func (a *testAction) Execute(g *Game, params selects.Params) error {
	label := a.Name
	if chosen := selects.Values[string](params, "choice"); len(chosen) > 0 {
		label = fmt.Sprintf("%s:%s", a.Name, strings.Join(chosen, ","))
	}
	trace(g, label)

	if a.Roll > 0 {
		if _, err := Do[dice.Roll](g, &effects.RollDice{Actor: a.Actor, Die: dice.AttackDie, Count: a.Roll, Roller: g.Dice}); err != nil {
			return err
		}
	}
	for _, c := range a.Children {
		c.Actor = a.Actor
		g.Push(c)
	}
	for _, c := range a.Then {
		c.Actor = a.Actor
		g.Then(c)
	}
	if a.Forever {
		g.Push(&testAction{Base: a.Base, Name: a.Name, Forever: true})
	}
	if a.Fail {
		return oatherr.InvalidResolutionf("%s refused", a.Name)
	}
	return nil
}

func act(name string) *testAction {
	return &testAction{Base: Base{Actor: "player:1"}, Name: name}
}

type binding struct {
	source state.Key
	power  *Power
}

func on(source state.Key, p *Power) binding { return binding{source: source, power: p} }

func testWorld(t *testing.T) *state.World {
	t.Helper()
	w := state.NewWorld()
	for _, e := range []state.Entity{
		{Key: "player:1", Kind: state.KindPlayer, Name: "Red", Location: "site:1", InPlay: true, Resources: ledger.Resources{Favor: 3, Secret: 1}},
		{Key: "player:2", Kind: state.KindPlayer, Name: "Blue", Location: "site:2", InPlay: true, Resources: ledger.Resources{Favor: 2}},
		{Key: "site:1", Kind: state.KindSite, Name: "Plains", Owner: "player:1", InPlay: true},
		{Key: "site:2", Kind: state.KindSite, Name: "Hills", Owner: "player:2", InPlay: true},
		{Key: "relic:1", Kind: state.KindRelic, Name: "Horn", Owner: "player:2", Location: "player:2", InPlay: true},
		{Key: "bank", Kind: state.KindBank, Name: "Bank", InPlay: true, Resources: ledger.Resources{Favor: 10}},
	} {
		require.NoError(t, w.Add(e))
	}
	w.SetTurn(state.Turn{Round: 1, Phase: state.PhaseAct, Player: "player:1", Order: []state.Key{"player:1", "player:2"}})
	return w
}

func testActions() *ActionRegistry {
	r := NewActionRegistry()
	r.MustRegister(func() Action { return &testAction{} })
	return r
}

// newTestGame builds a game whose entities declare the given powers, and
// returns it with the ordered trace log.
func newTestGame(t *testing.T, bindings ...binding) (*Game, *[]string) {
	t.Helper()
	w := testWorld(t)
	catalog := Catalog{}
	declared := make(map[state.Key][]string)
	for _, b := range bindings {
		if _, ok := catalog[b.power.Name]; !ok {
			require.NoError(t, catalog.Register(b.power))
		}
		declared[b.source] = append(declared[b.source], b.power.Name)
	}
	if len(declared) > 0 {
		txn := w.Begin()
		for key, names := range declared {
			e, err := txn.Mutable(key)
			require.NoError(t, err)
			e.Powers = append(e.Powers, names...)
		}
		require.NoError(t, txn.Commit())
	}

	g := NewGame(w, Options{
		ID:      "test",
		Catalog: catalog,
		Actions: testActions(),
		Dice:    dice.NewSeededRoller(7),
		Logger:  zaptest.NewLogger(t),
	})
	log := &[]string{}
	g.Events.SubscribeTyped(eventTrace, func(e Event) {
		*log = append(*log, e.Data)
	})
	return g, log
}

func tracer(label string) func(m *Modifier) error {
	return func(m *Modifier) error {
		trace(m.Game, label)
		return nil
	}
}

func favor(t *testing.T, v state.View, key state.Key) int {
	t.Helper()
	e, ok := v.Entity(key)
	require.True(t, ok, "entity %s", key)
	return e.Resources.Favor
}
