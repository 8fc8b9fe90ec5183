// Package powers is a small catalog of card and site powers. Between them
// they use every hook the rules engine offers.
package powers

import (
	"slices"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/actions"
	"github.com/thraizz/oath-server-go/internal/game/campaign"
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/effects"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/rules"
	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const (
	Tithe         = "Tithe"
	TollRoad      = "Toll Road"
	Curfew        = "Curfew"
	Fortress      = "Fortress"
	Sanctuary     = "Sanctuary"
	Scouts        = "Scouts"
	Quartermaster = "Quartermaster"
	HiredBlades   = "Hired Blades"
	BattlePlan    = "Battle Plan"
	Warlord       = "Warlord"
	SpoilsOfWar   = "Spoils of War"
	NightWatch    = "Night Watch"
	ForcedMarch   = "Forced March"
	LuckyCharm    = "Lucky Charm"
	Beacon        = "Beacon"
	KeepersDue    = "Keepers' Due"
)

// The catalog grouped by the kind of card that declares each power, for
// dealing a board.
var (
	SitePowers      = []string{Tithe, TollRoad, Curfew, Fortress, Sanctuary}
	DenizenPowers   = []string{Scouts, Quartermaster, HiredBlades, BattlePlan, Warlord, NightWatch}
	RelicPowers     = []string{ForcedMarch, LuckyCharm, Beacon}
	ReliquaryPowers = []string{KeepersDue}
)

// Catalog returns a fresh catalog holding every power.
func Catalog() rules.Catalog {
	c := rules.Catalog{}
	if err := Register(c); err != nil {
		panic(err)
	}
	return c
}

// Register adds every power to c.
func Register(c rules.Catalog) error {
	return c.Register(
		tithe(), tollRoad(), curfew(), fortress(), sanctuary(),
		scouts(), quartermaster(), hiredBlades(), battlePlan(), warlord(), spoilsOfWar(), nightWatch(),
		forcedMarch(), luckyCharm(), beacon(),
		keepersDue(),
	)
}

// ruler is the player ruling the site a modifier's source stands on.
func ruler(m *rules.Modifier) state.Key {
	v := m.Game.View()
	site, ok := v.Entity(state.SiteOf(v, m.Source))
	if !ok {
		return ""
	}
	return site.Owner
}

func gainFavor(m *rules.Modifier, amount int) error {
	return rules.Apply(m.Game, &effects.MoveResources{
		Actor:    m.Activator,
		From:     m.Game.Bank(),
		To:       m.Activator,
		Resource: ledger.Favor,
		Amount:   amount,
	})
}

func updateCampaign(m *rules.Modifier, change func(c *state.Campaign)) error {
	c, ok := m.Campaign()
	if !ok {
		return oatherr.Internalf("%s used outside a campaign", m.Name())
	}
	return rules.Apply(m.Game, &effects.UpdateCampaign{Actor: m.Activator, Campaign: c.Key, Change: change})
}

// campaignProxy is the modifier's private copy of the campaign it targets.
func campaignProxy(m *rules.Modifier) (*state.Campaign, bool) {
	key, ok := m.CampaignKey()
	if !ok {
		return nil, false
	}
	return m.Game.Mask().ProxyCampaign(key)
}

// Tithe: the ruler of this site gains a favor when waking.
func tithe() *rules.Power {
	return &rules.Power{
		Name:      Tithe,
		AppliesTo: actions.KindWake,
		MustUse:   true,
		Hooks: rules.Hooks{
			ApplyAfter: func(m *rules.Modifier) error { return gainFavor(m, 1) },
		},
	}
}

// Toll Road: whoever moves their pawn here pays the ruler a favor.
func tollRoad() *rules.Power {
	return &rules.Power{
		Name:      TollRoad,
		AppliesTo: "move_pawn",
		Access:    rules.AccessAny,
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool {
				move, ok := m.Effect.(*effects.MovePawn)
				if !ok || move.To != m.Source {
					return false
				}
				owner := ruler(m)
				return owner != "" && owner != m.Activator
			},
			ApplyWhenApplied: func(m *rules.Modifier) (bool, error) {
				return true, rules.Apply(m.Game, &effects.MoveResources{
					Actor:    m.Activator,
					From:     m.Activator,
					To:       ruler(m),
					Resource: ledger.Favor,
					Amount:   1,
				})
			},
		},
	}
}

// Curfew: mustering here as a visitor costs the ruler's favor; a visitor
// without favor cannot muster at all.
func curfew() *rules.Power {
	return &rules.Power{
		Name:      Curfew,
		AppliesTo: actions.KindMuster,
		MustUse:   true,
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool {
				owner := ruler(m)
				return owner != "" && owner != m.Activator
			},
			ApplyBefore: func(m *rules.Modifier) (bool, error) {
				visitor, ok := m.Game.Mask().Proxy(m.Activator)
				if !ok || visitor.Resources.Favor < 1 {
					return false, nil
				}
				visitor.Resources.Take(ledger.Favor, 1)
				return true, rules.Apply(m.Game, &effects.MoveResources{
					Actor:    m.Activator,
					From:     m.Activator,
					To:       ruler(m),
					Resource: ledger.Favor,
					Amount:   1,
				})
			},
		},
	}
}

// Fortress: its ruler defends with an extra die.
func fortress() *rules.Power {
	return &rules.Power{
		Name:      Fortress,
		AppliesTo: campaign.KindDefense,
		MustUse:   true,
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool {
				c, ok := m.Campaign()
				return ok && slices.Contains(c.Targets, m.Source)
			},
			ApplyWhenApplied: func(m *rules.Modifier) (bool, error) {
				return true, updateCampaign(m, func(c *state.Campaign) { c.DefensePool++ })
			},
		},
	}
}

// Sanctuary: no campaign may be declared here by anyone but its ruler.
func sanctuary() *rules.Power {
	return &rules.Power{
		Name:      Sanctuary,
		AppliesTo: campaign.KindDeclare,
		MustUse:   true,
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool { return ruler(m) != m.Activator },
			ApplyWhenApplied: func(*rules.Modifier) (bool, error) {
				return false, nil
			},
		},
	}
}

// Scouts: travellers from here avoid sites held by bandits.
func scouts() *rules.Power {
	return &rules.Power{
		Name:      Scouts,
		AppliesTo: actions.KindTravel,
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			ApplyAtStart: func(m *rules.Modifier, slots []*selects.Select) ([]*selects.Select, error) {
				v := m.Game.View()
				out := make([]*selects.Select, 0, len(slots))
				for _, s := range slots {
					if s.Name != "site" {
						out = append(out, s)
						continue
					}
					var safe []selects.Option
					for _, opt := range s.Options() {
						key, _ := opt.Value.(state.Key)
						if state.WarbandsOf(v, key, state.BanditColor) == 0 {
							safe = append(safe, opt)
						}
					}
					if len(safe) == 0 {
						out = append(out, s)
						continue
					}
					filtered, err := selects.New(s.Name, s.Label, safe, s.Min, s.Max)
					if err != nil {
						return nil, err
					}
					out = append(out, filtered)
				}
				return out, nil
			},
		},
	}
}

// Quartermaster: the other powers used for the same muster are free.
func quartermaster() *rules.Power {
	return &rules.Power{
		Name:      Quartermaster,
		AppliesTo: actions.KindMuster,
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			ApplyImmediately: func(m *rules.Modifier, chosen []*rules.Modifier) []*rules.Modifier {
				for _, other := range chosen {
					if other != m {
						other.Cost = ledger.Cost{}
					}
				}
				return nil
			},
		},
	}
}

// Hired Blades: pay a favor to raise one more warband when mustering.
func hiredBlades() *rules.Power {
	return &rules.Power{
		Name:      HiredBlades,
		AppliesTo: actions.KindMuster,
		Cost:      ledger.MustParseCost("{F}"),
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			ApplyAfter: func(m *rules.Modifier) error {
				return rules.Apply(m.Game, &effects.PutWarbands{Actor: m.Activator, Owner: m.Activator, Target: m.Activator, Amount: 1})
			},
		},
	}
}

// Battle Plan: an extra attack die, offered while the attacker has a force.
func battlePlan() *rules.Power {
	return &rules.Power{
		Name:      BattlePlan,
		AppliesTo: campaign.KindAttack,
		Cost:      ledger.MustParseCost("{F}"),
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool {
				c, ok := campaignProxy(m)
				if !ok {
					return false
				}
				return state.TotalWarbands(m.Game.Mask(), c.AttackerForces, string(c.Attacker)) > 0
			},
			ApplyWhenApplied: func(m *rules.Modifier) (bool, error) {
				return true, updateCampaign(m, func(c *state.Campaign) { c.AttackPool++ })
			},
		},
	}
}

// Warlord: a lost defense loses the entire force, and a won campaign pays
// the spoils.
func warlord() *rules.Power {
	return &rules.Power{
		Name:      Warlord,
		AppliesTo: campaign.KindAttack,
		Cost:      ledger.MustParseCost("{2F}"),
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			ApplyWhenApplied: func(m *rules.Modifier) (bool, error) {
				return true, updateCampaign(m, func(c *state.Campaign) {
					c.KillsEntireForce = true
					c.Callbacks = append(c.Callbacks, state.Callback{Power: SpoilsOfWar, Source: m.Source, Player: m.Activator})
				})
			},
		},
	}
}

// Spoils of War is only ever invoked when a campaign ends.
func spoilsOfWar() *rules.Power {
	return &rules.Power{
		Name: SpoilsOfWar,
		Hooks: rules.Hooks{
			ApplyAtEnd: func(m *rules.Modifier) error {
				c, ok := m.Campaign()
				if !ok || !c.Successful {
					return nil
				}
				return gainFavor(m, 2)
			},
		},
	}
}

// Night Watch: after ending a turn here, raise a warband.
func nightWatch() *rules.Power {
	return &rules.Power{
		Name:      NightWatch,
		AppliesTo: actions.KindEndTurn,
		MustUse:   true,
		Access:    rules.AccessPresent,
		Hooks: rules.Hooks{
			ApplyAtEnd: func(m *rules.Modifier) error {
				return rules.Apply(m.Game, &effects.PutWarbands{Actor: m.Activator, Owner: m.Activator, Target: m.Activator, Amount: 1})
			},
		},
	}
}

// Forced March: travelling costs no supply.
func forcedMarch() *rules.Power {
	return &rules.Power{
		Name:      ForcedMarch,
		AppliesTo: actions.KindTravel,
		Cost:      ledger.MustParseCost("{F}"),
		Hooks: rules.Hooks{
			ApplyDuring: func(m *rules.Modifier, next func() error) error {
				if err := next(); err != nil {
					return err
				}
				return rules.Apply(m.Game, &effects.RecoverSupply{Actor: m.Activator, Amount: actions.TravelSupply, Max: actions.MaxSupply})
			},
		},
	}
}

// Lucky Charm: its holder rerolls hollow swords once.
func luckyCharm() *rules.Power {
	return &rules.Power{
		Name:      LuckyCharm,
		AppliesTo: "roll_dice",
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool {
				roll, ok := m.Effect.(*effects.RollDice)
				return ok && roll.Die.Kind == dice.Attack
			},
			ApplyAfter: func(m *rules.Modifier) error {
				roll := m.Effect.(*effects.RollDice)
				_, err := roll.Reroll(func(f dice.Face) bool { return f == dice.HollowSword })
				return err
			},
		},
	}
}

// Beacon: when a player is attacked, the holder of this relic joins the
// defense and rolls a defense of their own.
func beacon() *rules.Power {
	return &rules.Power{
		Name:      Beacon,
		AppliesTo: campaign.KindAttack,
		MustUse:   true,
		Access:    rules.AccessAny,
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool {
				holder := m.SourceOwner()
				c, ok := campaignProxy(m)
				if !ok || holder == "" || c.Defender == "" {
					return false
				}
				return holder != c.Attacker && holder != c.Defender && !slices.Contains(c.Allies, holder)
			},
			ApplyWhenApplied: func(m *rules.Modifier) (bool, error) {
				key, _ := m.CampaignKey()
				_, err := rules.Do[bool](m.Game, &effects.JoinDefense{Actor: m.Activator, Campaign: key, Ally: m.SourceOwner()})
				return true, err
			},
		},
	}
}

// Keepers' Due: a relic holder waking up collects a secret from the
// reliquary while it has any.
func keepersDue() *rules.Power {
	return &rules.Power{
		Name:      KeepersDue,
		AppliesTo: actions.KindWake,
		MustUse:   true,
		Access:    rules.AccessAny,
		Hooks: rules.Hooks{
			CanApply: func(m *rules.Modifier) bool {
				v := m.Game.Mask()
				source, ok := v.Entity(m.Source)
				if !ok || source.Resources.Secret < 1 {
					return false
				}
				return slices.ContainsFunc(state.OfKind(v, state.KindRelic), func(e state.Entity) bool {
					return e.Owner == m.Activator
				})
			},
			ApplyAfter: func(m *rules.Modifier) error {
				return rules.Apply(m.Game, &effects.MoveResources{
					Actor:    m.Activator,
					From:     m.Source,
					To:       m.Activator,
					Resource: ledger.Secret,
					Amount:   1,
				})
			},
		},
	}
}
