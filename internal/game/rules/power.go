package rules

import (
	"fmt"
	"sort"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// Access restricts which activators a power answers to, relative to the
// entity declaring it.
type Access string

const (
	// AccessOwner applies when the activator rules or holds the source.
	AccessOwner Access = "owner"
	// AccessPresent applies when the activator is at the source's site.
	AccessPresent Access = "present"
	// AccessRival applies when someone other than the activator holds the source.
	AccessRival Access = "rival"
	// AccessAny always applies.
	AccessAny Access = "any"
)

// Hooks are the optional interception points of a power. Boolean results
// of WhenApplied and Before are "continue"; false cancels the target.
type Hooks struct {
	CanApply func(m *Modifier) bool

	// ApplyImmediately runs over every modifier chosen for the target and
	// returns the ones to discard. It may change their costs.
	ApplyImmediately func(m *Modifier, chosen []*Modifier) []*Modifier

	ApplyWhenApplied func(m *Modifier) (bool, error)

	// ApplyAtStart may rewrite the slots the target built.
	ApplyAtStart func(m *Modifier, slots []*selects.Select) ([]*selects.Select, error)

	ApplyBefore func(m *Modifier) (bool, error)
	ApplyDuring func(m *Modifier, next func() error) error
	ApplyAfter  func(m *Modifier) error
	ApplyAtEnd  func(m *Modifier) error
}

// Power is the static description of a modifier: what it intercepts, who
// may use it, what it costs and its hooks.
type Power struct {
	Name      string
	AppliesTo string
	MustUse   bool
	Cost      ledger.Cost
	Access    Access
	Hooks     Hooks
}

// Catalog maps power names to powers.
type Catalog map[string]*Power

// Register adds powers to the catalog.
func (c Catalog) Register(powers ...*Power) error {
	for _, p := range powers {
		if p.Name == "" {
			return fmt.Errorf("power without a name")
		}
		if _, exists := c[p.Name]; exists {
			return fmt.Errorf("power %q already registered", p.Name)
		}
		if p.Access == "" {
			p.Access = AccessOwner
		}
		c[p.Name] = p
	}
	return nil
}

// Names lists the catalog in sorted order.
func (c Catalog) Names() []string {
	out := make([]string, 0, len(c))
	for name := range c {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Modifier binds a power to one source entity and one target action or
// effect, on behalf of an activator.
type Modifier struct {
	Power     *Power
	Source    state.Key
	Activator state.Key
	Cost      ledger.Cost
	MustUse   bool

	// Exactly one of Action and Effect is set.
	Action Action
	Effect Effect

	// Params are the target action's values once submitted.
	Params selects.Params
	Game   *Game
}

func newModifier(g *Game, p *Power, source, activator state.Key) *Modifier {
	return &Modifier{
		Power:     p,
		Source:    source,
		Activator: activator,
		Cost:      p.Cost,
		MustUse:   p.MustUse,
		Game:      g,
	}
}

// Name is the power name.
func (m *Modifier) Name() string { return m.Power.Name }

// Label names the modifier for a player: the power and where it comes from.
func (m *Modifier) Label(v state.View) string {
	src := state.Name(v, m.Source)
	if src == m.Power.Name {
		return m.Power.Name
	}
	return fmt.Sprintf("%s (%s)", m.Power.Name, src)
}

// SourceOwner is the player ruling or holding the modifier's source.
func (m *Modifier) SourceOwner() state.Key {
	return ownerOf(m.Game.View(), m.Source)
}

// CampaignKey is the key of the campaign the target refers to, if any.
func (m *Modifier) CampaignKey() (state.Key, bool) {
	ref, ok := m.Action.(interface{ CampaignKey() state.Key })
	if !ok {
		return "", false
	}
	return ref.CampaignKey(), true
}

// Campaign returns the campaign the target refers to, if any.
func (m *Modifier) Campaign() (state.Campaign, bool) {
	key, ok := m.CampaignKey()
	if !ok {
		return state.Campaign{}, false
	}
	return m.Game.View().Campaign(key)
}

// Invoke runs the AtEnd hook of a catalog power for player, bound to
// target. Deferred consequences recorded by name resolve through it.
func (g *Game) Invoke(name string, source, player state.Key, target Action) error {
	p, ok := g.Catalog[name]
	if !ok {
		return oatherr.Internalf("unknown power %q", name)
	}
	if p.Hooks.ApplyAtEnd == nil {
		return nil
	}
	m := newModifier(g, p, source, player)
	m.Action = target
	_, err := g.guard(m, func() (bool, error) { return true, p.Hooks.ApplyAtEnd(m) })
	return err
}

func ownerOf(v state.View, key state.Key) state.Key {
	e, ok := v.Entity(key)
	if !ok {
		return ""
	}
	if e.Kind == state.KindPlayer {
		return e.Key
	}
	return e.Owner
}

func (m *Modifier) accessible(v state.View) bool {
	switch m.Power.Access {
	case AccessAny:
		return true
	case AccessOwner:
		return m.Activator != "" && ownerOf(v, m.Source) == m.Activator
	case AccessRival:
		owner := ownerOf(v, m.Source)
		return m.Activator != "" && owner != "" && owner != m.Activator
	case AccessPresent:
		site := state.SiteOf(v, m.Source)
		return m.Activator != "" && site != "" && state.SiteOf(v, m.Activator) == site
	}
	return false
}

// applicable checks access and CanApply against v.
func (m *Modifier) applicable(v state.View) bool {
	if !m.accessible(v) {
		return false
	}
	return m.Power.Hooks.CanApply == nil || m.Power.Hooks.CanApply(m)
}

func (m *Modifier) record() ModifierRecord {
	return ModifierRecord{
		Power:     m.Power.Name,
		Source:    m.Source,
		Activator: m.Activator,
		Cost:      m.Cost,
		MustUse:   m.MustUse,
	}
}
