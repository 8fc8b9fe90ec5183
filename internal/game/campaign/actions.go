package campaign

import (
	"fmt"

	"go.uber.org/zap"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/effects"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const (
	KindDeclare   = "campaign"
	KindAttack    = "campaign_attack"
	KindDefense   = "campaign_defense"
	KindRoll      = "campaign_roll"
	KindSacrifice = "campaign_sacrifice"
	KindEnd       = "campaign_end"
)

// SupplyCost is what declaring a campaign costs.
const SupplyCost = 2

// BanditsLabel names the defender of unruled targets.
const BanditsLabel = "Bandits"

// Register adds every campaign action to reg.
func Register(reg *rules.ActionRegistry) error {
	for _, f := range []rules.ActionFactory{
		func() rules.Action { return &Declare{} },
		func() rules.Action { return &Attack{} },
		func() rules.Action { return &Defense{} },
		func() rules.Action { return &Roll{} },
		func() rules.Action { return &Sacrifice{} },
		func() rules.Action { return &End{} },
	} {
		if err := reg.Register(f); err != nil {
			return err
		}
	}
	return nil
}

// phase is embedded by every action after the declaration. The campaign
// record is only ever reached through its key.
type phase struct {
	rules.Base
	Campaign state.Key `json:"campaign"`
}

// CampaignKey lets modifiers find the record of the campaign they target.
func (p phase) CampaignKey() state.Key { return p.Campaign }

func (p phase) load(g *rules.Game) (state.Campaign, error) {
	c, ok := g.View().Campaign(p.Campaign)
	if !ok {
		return c, oatherr.NotFoundf("campaign %s", p.Campaign)
	}
	return c, nil
}

func (p phase) update(g *rules.Game, change func(c *state.Campaign)) error {
	return rules.Apply(g, &effects.UpdateCampaign{Actor: p.Actor, Campaign: p.Campaign, Change: change})
}

func (p phase) next(actor state.Key) phase {
	return phase{Base: rules.Base{Actor: actor}, Campaign: p.Campaign}
}

// Declare opens a campaign against the defender of some of the entities at
// the attacker's site.
type Declare struct {
	rules.Base
}

func (a *Declare) Kind() string     { return KindDeclare }
func (a *Declare) Modifiable() bool { return true }
func (a *Declare) Message() string  { return "Choose who to campaign against" }

func (a *Declare) Start(g *rules.Game) ([]*selects.Select, error) {
	v := g.View()
	site := state.SiteOf(v, a.Actor)
	if site == "" {
		return nil, oatherr.InvalidResolutionf("%s is not on the map", state.Name(v, a.Actor))
	}
	if state.TotalWarbands(v, attackerForces(v, a.Actor, site), string(a.Actor)) == 0 {
		return nil, oatherr.InvalidResolutionf("%s has no warbands to campaign with", state.Name(v, a.Actor))
	}

	var opts []selects.Option
	for _, e := range targetsAt(v, a.Actor, site) {
		label := BanditsLabel
		if e.Owner != "" {
			label = state.Name(v, e.Owner)
		}
		opts = append(opts, selects.Option{Label: label, Value: e.Owner})
	}
	if len(opts) == 0 {
		return nil, oatherr.InvalidResolutionf("nothing to campaign against at %s", state.Name(v, site))
	}
	s, err := selects.New("defender", "Defender", opts, 1, 1)
	if err != nil {
		return nil, err
	}
	return []*selects.Select{s}, nil
}

func (a *Declare) Execute(g *rules.Game, params selects.Params) error {
	defender, _ := selects.One[state.Key](params, "defender")
	if err := rules.Apply(g, &effects.SpendSupply{Actor: a.Actor, Amount: SupplyCost}); err != nil {
		return err
	}

	v := g.View()
	site := state.SiteOf(v, a.Actor)
	c := state.Campaign{
		Attacker:       a.Actor,
		Defender:       defender,
		AttackerForces: attackerForces(v, a.Actor, site),
		DefenderForces: defenderForces(v, defender, site),
	}
	for _, e := range targetsAt(v, a.Actor, site) {
		if e.Owner == defender {
			c.Targets = append(c.Targets, e.Key)
		}
	}

	key, err := rules.Do[state.Key](g, &effects.OpenCampaign{Actor: a.Actor, Campaign: c})
	if err != nil || key == "" {
		return err
	}
	g.Logger.Debug("campaign declared",
		zap.String("campaign", string(key)),
		zap.String("attacker", string(a.Actor)),
		zap.String("defender", string(defender)))
	g.Then(&Attack{phase: phase{Base: a.Base, Campaign: key}})
	return nil
}

// targetsAt lists what the attacker could take at site: the site unless
// they rule it, and relics or banners there not held by them.
func targetsAt(v state.View, attacker, site state.Key) []state.Entity {
	var out []state.Entity
	if s, ok := v.Entity(site); ok && s.Owner != attacker {
		out = append(out, s)
	}
	for _, e := range state.InPlay(v) {
		if e.Kind != state.KindRelic && e.Kind != state.KindBanner {
			continue
		}
		if e.Owner != attacker && state.SiteOf(v, e.Key) == site {
			out = append(out, e)
		}
	}
	return out
}

func attackerForces(v state.View, attacker, site state.Key) []state.Key {
	forces := []state.Key{attacker}
	if state.WarbandsOf(v, site, string(attacker)) > 0 {
		forces = append(forces, site)
	}
	return forces
}

func defenderForces(v state.View, defender, site state.Key) []state.Key {
	var forces []state.Key
	if s, ok := v.Entity(site); ok && s.Owner == defender {
		forces = append(forces, site)
	}
	if defender != "" && state.SiteOf(v, defender) == site {
		forces = append(forces, defender)
	}
	return forces
}

// Attack picks the targets and the attack pool. Attack modifiers are
// chosen in the round before it.
type Attack struct {
	phase
}

func (a *Attack) Kind() string     { return KindAttack }
func (a *Attack) Modifiable() bool { return true }
func (a *Attack) Mandatory() bool  { return true }
func (a *Attack) Message() string  { return "Choose targets and how many dice to attack with" }

func (a *Attack) Start(g *rules.Game) ([]*selects.Select, error) {
	c, err := a.load(g)
	if err != nil {
		return nil, err
	}
	v := g.View()
	opts := make([]selects.Option, len(c.Targets))
	for i, key := range c.Targets {
		opts[i] = selects.Option{Label: state.Name(v, key), Value: key}
	}
	targets, err := selects.New("targets", "Targets", opts, 1, len(opts))
	if err != nil {
		return nil, err
	}
	// AttackPool holds bonus dice granted before this point.
	force := state.TotalWarbands(v, c.AttackerForces, string(c.Attacker))
	pool, err := selects.Range("pool", "Attack pool", 1, force+c.AttackPool)
	if err != nil {
		return nil, err
	}
	return []*selects.Select{targets, pool}, nil
}

func (a *Attack) Execute(g *rules.Game, params selects.Params) error {
	targets := selects.Values[state.Key](params, "targets")
	pool, _ := selects.One[int](params, "pool")

	v := g.View()
	defense := 0
	for _, key := range targets {
		if e, ok := v.Entity(key); ok {
			defense += e.Defense
		}
	}
	if err := a.update(g, func(c *state.Campaign) {
		c.Targets = targets
		c.AttackPool = pool
		c.DefensePool += defense
	}); err != nil {
		return err
	}

	c, err := a.load(g)
	if err != nil {
		return err
	}
	if c.Defender != "" {
		g.Then(&Defense{phase: a.next(c.Defender)})
	}
	for _, ally := range c.Allies {
		g.Then(&Defense{phase: a.next(ally)})
	}
	g.Then(&Roll{phase: a.next(c.Attacker)})
	return nil
}

// Defense is the choose-modifiers round of one defending player.
type Defense struct {
	phase
}

func (a *Defense) Kind() string     { return KindDefense }
func (a *Defense) Modifiable() bool { return true }
func (a *Defense) Mandatory() bool  { return true }
func (a *Defense) Message() string  { return "Defend the campaign" }

func (a *Defense) Execute(*rules.Game, selects.Params) error { return nil }

// Roll freezes the campaign, rolls both pools and decides whether the
// attacker is offered a sacrifice.
type Roll struct {
	phase
}

func (a *Roll) Kind() string { return KindRoll }

func (a *Roll) Execute(g *rules.Game, _ selects.Params) error {
	if g.Dice == nil {
		return oatherr.Internalf("no dice roller configured")
	}
	if err := a.update(g, func(c *state.Campaign) { c.Frozen = true }); err != nil {
		return err
	}
	c, err := a.load(g)
	if err != nil {
		return err
	}

	attack, err := rules.Do[dice.Roll](g, &effects.RollDice{Actor: c.Attacker, Die: dice.AttackDie, Count: c.AttackPool, Roller: g.Dice})
	if err != nil {
		return err
	}
	defense, err := rules.Do[dice.Roll](g, &effects.RollDice{Actor: c.Defender, Die: dice.DefenseDie, Count: c.DefensePool, Roller: g.Dice})
	if err != nil {
		return err
	}
	if err := a.update(g, func(c *state.Campaign) {
		c.AttackRoll = attack
		c.DefenseRoll = defense
	}); err != nil {
		return err
	}

	if c, err = a.load(g); err != nil {
		return err
	}
	t := Count(g.View(), c)
	g.Logger.Debug("campaign rolled",
		zap.String("campaign", string(a.Campaign)),
		zap.Int("attack", t.Attack),
		zap.Int("defense", t.Defense),
		zap.Int("required_sacrifice", t.Required))

	end := &End{phase: a.next(c.Attacker)}
	switch {
	case t.Wins():
		if err := a.update(g, func(c *state.Campaign) { c.Successful = true }); err != nil {
			return err
		}
		g.Then(end)
	case t.Could:
		g.Then(&Sacrifice{phase: a.next(c.Attacker), Required: t.Required})
	default:
		g.Then(end)
	}
	return nil
}

// Sacrifice asks the attacker whether to kill warbands to win.
type Sacrifice struct {
	phase
	Required int `json:"required"`
}

func (a *Sacrifice) Kind() string    { return KindSacrifice }
func (a *Sacrifice) Mandatory() bool { return true }

func (a *Sacrifice) Message() string {
	return fmt.Sprintf("Sacrifice %d warbands to win the campaign?", a.Required)
}

func (a *Sacrifice) Start(*rules.Game) ([]*selects.Select, error) {
	return []*selects.Select{selects.Bool("sacrifice", "Sacrifice")}, nil
}

func (a *Sacrifice) Execute(g *rules.Game, params selects.Params) error {
	end := &End{phase: a.next(a.Actor)}
	if yes, _ := selects.One[bool](params, "sacrifice"); !yes {
		g.Then(end)
		return nil
	}

	c, err := a.load(g)
	if err != nil {
		return err
	}
	t := Count(g.View(), c)
	if !t.Could {
		return oatherr.InvalidResolutionf("cannot sacrifice %d warbands with a force of %d", t.Required, t.AttackerForce)
	}
	killed, err := rules.Do[int](g, &effects.KillWarbands{
		Actor:   a.Actor,
		Color:   string(c.Attacker),
		Targets: c.AttackerForces,
		Amount:  t.Required,
	})
	if err != nil {
		return err
	}
	if err := a.update(g, func(c *state.Campaign) {
		c.Successful = true
		c.Sacrificed = killed
	}); err != nil {
		return err
	}
	g.Then(end)
	return nil
}

// End applies the consequences and frees the campaign record.
type End struct {
	phase
}

func (a *End) Kind() string { return KindEnd }

func (a *End) Execute(g *rules.Game, _ selects.Params) error {
	c, err := a.load(g)
	if err != nil {
		return err
	}
	v := g.View()

	forces, color := c.AttackerForces, string(c.Attacker)
	if c.Successful {
		forces, color = c.DefenderForces, c.DefenderColor()
	}
	if lost := Losses(c, state.TotalWarbands(v, forces, color)); lost > 0 {
		if err := rules.Apply(g, &effects.KillWarbands{Actor: a.Actor, Color: color, Targets: forces, Amount: lost}); err != nil {
			return err
		}
	}
	if skulls := c.AttackRoll.Skulls(); skulls > 0 {
		if err := rules.Apply(g, &effects.KillWarbands{Actor: a.Actor, Color: string(c.Attacker), Targets: c.AttackerForces, Amount: skulls}); err != nil {
			return err
		}
	}

	if c.Successful {
		for _, key := range c.Targets {
			if e, ok := v.Entity(key); ok && e.Owner == c.Attacker {
				continue
			}
			if err := rules.Apply(g, &effects.MoveOwnership{Actor: a.Actor, Target: key, NewOwner: c.Attacker}); err != nil {
				return err
			}
		}
	}

	for _, cb := range c.Callbacks {
		if err := g.Invoke(cb.Power, cb.Source, cb.Player, a); err != nil {
			return fmt.Errorf("campaign callback %s: %w", cb.Power, err)
		}
	}
	if err := rules.Apply(g, &effects.CloseCampaign{Actor: a.Actor, Campaign: a.Campaign}); err != nil {
		return err
	}

	ev := rules.NewEvent(rules.EventCampaignResolved, KindEnd, string(c.Attacker))
	ev.Target = string(c.Defender)
	ev.Amount = c.Sacrificed
	ev.Data = "failure"
	if c.Successful {
		ev.Data = "success"
	}
	g.Emit(ev)
	g.Logger.Info("campaign resolved",
		zap.String("campaign", string(a.Campaign)),
		zap.Bool("successful", c.Successful),
		zap.Int("sacrificed", c.Sacrificed))
	return nil
}
