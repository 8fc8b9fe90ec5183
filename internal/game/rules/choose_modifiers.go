package rules

import (
	"fmt"

	"go.uber.org/zap"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/effects"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// KindChooseModifiers is the kind of the nested modifier choice.
const KindChooseModifiers = "choose_modifiers"

const modifiersSlot = "modifiers"

// ChooseModifiers precedes every modifiable action. It discovers the powers
// that could modify Target, lets the acting player pick optional ones,
// charges for them and then pushes Target with the chosen modifiers.
type ChooseModifiers struct {
	Target Action `json:"-"`

	mandatory []*Modifier
	optional  []*Modifier
}

func (c *ChooseModifiers) Kind() string      { return KindChooseModifiers }
func (c *ChooseModifiers) Player() state.Key { return c.Target.Player() }

func (c *ChooseModifiers) Message() string {
	return fmt.Sprintf("Choose modifiers for %s", c.Target.Kind())
}

// Mandatory follows the target: a choice for an action that cannot be
// cancelled cannot be cancelled either.
func (c *ChooseModifiers) Mandatory() bool { return isMandatory(c.Target) }

func (c *ChooseModifiers) Start(g *Game) ([]*selects.Select, error) {
	c.mandatory, c.optional = nil, nil
	for _, m := range g.discover(c.Target.Kind(), c.Target.Player(), func(m *Modifier) { m.Action = c.Target }) {
		if m.MustUse {
			c.mandatory = append(c.mandatory, m)
		} else {
			c.optional = append(c.optional, m)
		}
	}

	v := g.View()
	opts := make([]selects.Option, 0, len(c.optional))
	for _, m := range c.optional {
		label := m.Label(v)
		if cost := c.quote(m); !cost.IsFree() {
			label = fmt.Sprintf("%s %s", label, cost)
		}
		opts = append(opts, selects.Option{Label: label, Value: m})
	}
	s, err := selects.New(modifiersSlot, "Modifiers", opts, 0, len(opts))
	if err != nil {
		return nil, err
	}
	return []*selects.Select{s}, nil
}

// quote is what m costs when picked on its own next to the mandatory
// modifiers, once their ApplyImmediately hooks have surcharged or waived it.
// The hooks run over copies.
func (c *ChooseModifiers) quote(m *Modifier) ledger.Cost {
	trial := make([]*Modifier, 0, len(c.mandatory)+1)
	for _, other := range c.mandatory {
		cp := *other
		trial = append(trial, &cp)
	}
	mine := *m
	trial = append(trial, &mine)
	runImmediately(trial)
	return mine.Cost
}

func (c *ChooseModifiers) Execute(g *Game, params selects.Params) error {
	chosen := append([]*Modifier(nil), c.mandatory...)
	chosen = append(chosen, selects.Values[*Modifier](params, modifiersSlot)...)
	chosen = runImmediately(chosen)

	if err := c.pay(g, chosen); err != nil {
		return err
	}

	for _, m := range chosen {
		if m.Power.Hooks.ApplyWhenApplied == nil {
			continue
		}
		ok, err := g.guard(m, func() (bool, error) { return m.Power.Hooks.ApplyWhenApplied(m) })
		if err != nil {
			return err
		}
		if !ok {
			g.Logger.Debug("action replaced by modifier",
				zap.String("action", c.Target.Kind()),
				zap.String("power", m.Name()))
			g.Emit(NewEvent(EventActionCancelled, c.Target.Kind(), string(c.Player())))
			return nil
		}
	}

	for _, m := range chosen {
		ev := NewEvent(EventModifierApplied, c.Target.Kind(), string(m.Activator))
		ev.Source = string(m.Source)
		ev.Data = m.Name()
		g.Emit(ev)
	}
	g.pushModified(c.Target, chosen)
	return nil
}

// pay checks the total against a proxy of the activator first, so a
// shortfall is reported before any effect runs, then pays each cost.
func (c *ChooseModifiers) pay(g *Game, chosen []*Modifier) error {
	var costs []ledger.Cost
	for _, m := range chosen {
		if !m.Cost.IsFree() {
			costs = append(costs, m.Cost)
		}
	}
	if len(costs) == 0 {
		return nil
	}

	activator := c.Player()
	proxy, ok := g.Mask().Proxy(activator)
	if !ok {
		return oatherr.Internalf("activator %s not found", activator)
	}
	result := ledger.CalculatePayment(proxy.Resources, costs...)
	if !result.Success {
		return oatherr.InvalidResolutionf("cannot pay for modifiers: %s", result.Reason).
			WithMeta("player", string(activator))
	}
	proxy.Resources = result.Remaining

	bank := g.Bank()
	for _, m := range chosen {
		if m.Cost.IsFree() {
			continue
		}
		err := Apply(g, &effects.PayCost{
			Actor:  activator,
			Payer:  activator,
			Target: m.Source,
			Bank:   bank,
			Cost:   m.Cost,
		})
		if err != nil {
			return fmt.Errorf("pay for %s: %w", m.Name(), err)
		}
	}
	return nil
}
