// Package actions holds the basic player actions of a turn.
package actions

import (
	"go.uber.org/zap"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/effects"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const (
	KindMuster  = "muster"
	KindTravel  = "travel"
	KindEndTurn = "end_turn"
	KindWake    = "wake"
)

const (
	// MusterSupply and TravelSupply are the supply costs of those actions.
	MusterSupply = 1
	TravelSupply = 2

	// MusterWarbands is how many warbands one muster raises.
	MusterWarbands = 2

	// MaxSupply caps what resting recovers; RestSupply is recovered per rest.
	MaxSupply  = 7
	RestSupply = 3

	// LastRound is the final round; the game ends when it completes.
	LastRound = 8
)

// MusterCost is placed on the card mustered from.
var MusterCost = ledger.MustParseCost("{F}")

// Register adds the turn actions to reg.
func Register(reg *rules.ActionRegistry) error {
	for _, f := range []rules.ActionFactory{
		func() rules.Action { return &Muster{} },
		func() rules.Action { return &Travel{} },
		func() rules.Action { return &EndTurn{} },
		func() rules.Action { return &Wake{} },
	} {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// Muster places favor on a denizen at the player's site to raise warbands
// onto the player's pawn.
type Muster struct {
	rules.Base
}

func (a *Muster) Kind() string     { return KindMuster }
func (a *Muster) Modifiable() bool { return true }
func (a *Muster) Message() string  { return "Choose a card to muster from" }

func (a *Muster) Start(g *rules.Game) ([]*selects.Select, error) {
	v := g.View()
	site := state.SiteOf(v, a.Actor)
	var opts []selects.Option
	for _, e := range state.OfKind(v, state.KindDenizen) {
		if e.Location == site {
			opts = append(opts, selects.Option{Label: e.Name, Value: e.Key})
		}
	}
	s, err := selects.New("card", "Card", opts, 1, 1)
	if err != nil {
		return nil, err
	}
	return []*selects.Select{s}, nil
}

func (a *Muster) Execute(g *rules.Game, params selects.Params) error {
	card, ok := selects.One[state.Key](params, "card")
	if !ok {
		return oatherr.Internalf("muster without a card")
	}
	if err := rules.Apply(g, &effects.SpendSupply{Actor: a.Actor, Amount: MusterSupply}); err != nil {
		return err
	}
	if err := rules.Apply(g, &effects.PayCost{Actor: a.Actor, Payer: a.Actor, Target: card, Bank: g.Bank(), Cost: MusterCost}); err != nil {
		return err
	}
	raised, err := rules.Do[int](g, &effects.PutWarbands{Actor: a.Actor, Owner: a.Actor, Target: a.Actor, Amount: MusterWarbands})
	if err != nil {
		return err
	}
	g.Logger.Debug("mustered", zap.String("player", string(a.Actor)), zap.String("card", string(card)), zap.Int("warbands", raised))
	return nil
}

// Travel moves the player's pawn to another site.
type Travel struct {
	rules.Base
}

func (a *Travel) Kind() string     { return KindTravel }
func (a *Travel) Modifiable() bool { return true }
func (a *Travel) Message() string  { return "Choose where to travel" }

func (a *Travel) Start(g *rules.Game) ([]*selects.Select, error) {
	v := g.View()
	here := state.SiteOf(v, a.Actor)
	var opts []selects.Option
	for _, e := range state.OfKind(v, state.KindSite) {
		if e.Key != here {
			opts = append(opts, selects.Option{Label: e.Name, Value: e.Key})
		}
	}
	s, err := selects.New("site", "Destination", opts, 1, 1)
	if err != nil {
		return nil, err
	}
	return []*selects.Select{s}, nil
}

func (a *Travel) Execute(g *rules.Game, params selects.Params) error {
	site, ok := selects.One[state.Key](params, "site")
	if !ok {
		return oatherr.Internalf("travel without a destination")
	}
	if err := rules.Apply(g, &effects.SpendSupply{Actor: a.Actor, Amount: TravelSupply}); err != nil {
		return err
	}
	return rules.Apply(g, &effects.MovePawn{Actor: a.Actor, To: site})
}

// EndTurn rests, passes the turn and wakes the next player. After the last
// round the player ruling the most sites wins.
type EndTurn struct {
	rules.Base
}

func (a *EndTurn) Kind() string     { return KindEndTurn }
func (a *EndTurn) Modifiable() bool { return true }

func (a *EndTurn) Execute(g *rules.Game, _ selects.Params) error {
	if err := rules.Apply(g, &effects.ChangePhase{Actor: a.Actor, Phase: state.PhaseRest}); err != nil {
		return err
	}
	if err := rules.Apply(g, &effects.RecoverSupply{Actor: a.Actor, Amount: RestSupply, Max: MaxSupply}); err != nil {
		return err
	}
	turn, err := rules.Do[state.Turn](g, &effects.PassTurn{Actor: a.Actor})
	if err != nil {
		return err
	}
	if turn.Player == "" {
		return nil
	}

	ev := rules.NewEvent(rules.EventTurnChanged, KindEndTurn, string(turn.Player))
	ev.Amount = turn.Round
	g.Emit(ev)

	if turn.Round > LastRound {
		return declareWinner(g)
	}
	g.Then(&Wake{Base: rules.Base{Actor: turn.Player}})
	return nil
}

// Wake starts a player's turn. Wake powers hook it; it then moves the turn
// to the act phase.
type Wake struct {
	rules.Base
}

func (a *Wake) Kind() string     { return KindWake }
func (a *Wake) Modifiable() bool { return true }

func (a *Wake) Execute(g *rules.Game, _ selects.Params) error {
	return rules.Apply(g, &effects.ChangePhase{Actor: a.Actor, Phase: state.PhaseAct})
}

// Leader returns the player ruling the most sites. Ties go to the earlier
// player in turn order.
func Leader(v state.View) state.Key {
	ruled := make(map[state.Key]int)
	for _, site := range state.OfKind(v, state.KindSite) {
		if site.Owner != "" {
			ruled[site.Owner]++
		}
	}
	var leader state.Key
	best := -1
	for _, p := range v.Turn().Order {
		if ruled[p] > best {
			leader, best = p, ruled[p]
		}
	}
	return leader
}

func declareWinner(g *rules.Game) error {
	winner := Leader(g.View())
	if err := rules.Apply(g, &effects.DeclareWinner{Winner: winner}); err != nil {
		return err
	}
	g.Emit(rules.NewEvent(rules.EventGameOver, KindEndTurn, string(winner)))
	g.Logger.Info("game over", zap.String("winner", string(winner)))
	return nil
}
