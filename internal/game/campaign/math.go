// Package campaign resolves a campaign: a chain of actions from declaring a
// defender to paying the losses, sharing one record in the arena.
package campaign

import (
	"math"

	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// Impossible is the sacrifice required when warbands are worth nothing.
const Impossible = math.MaxInt

// AttackValue is the rounded down sum of the sword symbols rolled.
func AttackValue(roll dice.Roll) int {
	if roll.Kind != dice.Attack {
		return 0
	}
	return roll.Value()
}

// DefenseValue is the shield total, doubled per double face, plus every
// defending warband.
func DefenseValue(roll dice.Roll, warbands int) int {
	value := max(warbands, 0)
	if roll.Kind == dice.Defense {
		value += roll.Value()
	}
	return value
}

// RequiredSacrifice is how many attacking warbands must die to turn the
// result around. It is zero when the attack already wins and Impossible
// when a warband is worth nothing.
func RequiredSacrifice(attack, defense, sacrificeValue int) int {
	if attack > defense {
		return 0
	}
	if sacrificeValue <= 0 {
		return Impossible
	}
	missing := defense - attack + 1
	return (missing + sacrificeValue - 1) / sacrificeValue
}

// CouldSacrifice reports whether the attacker's force can pay required.
func CouldSacrifice(required, force int) bool {
	return required > 0 && required <= force
}

// Losses is how many warbands a losing force of the given size loses.
// NoWarbandsKilled wins over KillsEntireForce.
func Losses(c state.Campaign, force int) int {
	switch {
	case force <= 0 || c.NoWarbandsKilled:
		return 0
	case c.KillsEntireForce:
		return force
	}
	return force / 2
}

// Tally is the derived state of a campaign at one moment.
type Tally struct {
	Attack        int
	Defense       int
	AttackerForce int
	DefenderForce int
	Required      int
	Could         bool
}

// Wins reports whether the attack succeeds without a sacrifice.
func (t Tally) Wins() bool { return t.Attack > t.Defense }

// Count recomputes the tally from the record and the warbands currently in
// the view. It is never stored.
func Count(v state.View, c state.Campaign) Tally {
	t := Tally{
		AttackerForce: state.TotalWarbands(v, c.AttackerForces, string(c.Attacker)),
		DefenderForce: state.TotalWarbands(v, c.DefenderForces, c.DefenderColor()),
		Attack:        AttackValue(c.AttackRoll),
	}
	t.Defense = DefenseValue(c.DefenseRoll, t.DefenderForce)
	t.Required = RequiredSacrifice(t.Attack, t.Defense, c.SacrificeValue)
	t.Could = CouldSacrifice(t.Required, t.AttackerForce)
	return t
}
