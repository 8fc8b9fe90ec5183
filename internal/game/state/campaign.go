package state

import (
	"slices"

	"github.com/thraizz/oath-server-go/internal/game/dice"
)

// Callback is a deferred end-of-campaign consequence, resolved through the
// power catalog by name when the campaign ends.
type Callback struct {
	Power  string `json:"power"`
	Source Key    `json:"source"`
	Player Key    `json:"player"`
}

// Campaign is the arena record of one campaign in progress. Every phase
// action refers to it by key.
type Campaign struct {
	Key      Key `json:"key"`
	Attacker Key `json:"attacker"`

	// Defender is empty when bandits defend.
	Defender Key   `json:"defender,omitempty"`
	Allies   []Key `json:"allies,omitempty"`
	Targets  []Key `json:"targets,omitempty"`

	AttackerForces []Key `json:"attacker_forces,omitempty"`
	DefenderForces []Key `json:"defender_forces,omitempty"`

	AttackPool  int `json:"attack_pool"`
	DefensePool int `json:"defense_pool"`

	// Frozen is set once dice are rolled; forces and pools no longer change.
	Frozen      bool      `json:"frozen"`
	AttackRoll  dice.Roll `json:"attack_roll"`
	DefenseRoll dice.Roll `json:"defense_roll"`

	SacrificeValue   int  `json:"sacrifice_value"`
	KillsEntireForce bool `json:"kills_entire_force,omitempty"`
	NoWarbandsKilled bool `json:"no_warbands_killed,omitempty"`

	Successful bool `json:"successful"`
	Sacrificed int  `json:"sacrificed,omitempty"`

	Callbacks []Callback `json:"callbacks,omitempty"`
}

// DefenderColor is the warband color defending the targets.
func (c Campaign) DefenderColor() string {
	if c.Defender == "" {
		return BanditColor
	}
	return string(c.Defender)
}

func (c *Campaign) clone() *Campaign {
	cpy := *c
	cpy.Allies = slices.Clone(c.Allies)
	cpy.Targets = slices.Clone(c.Targets)
	cpy.AttackerForces = slices.Clone(c.AttackerForces)
	cpy.DefenderForces = slices.Clone(c.DefenderForces)
	cpy.AttackRoll.Faces = slices.Clone(c.AttackRoll.Faces)
	cpy.DefenseRoll.Faces = slices.Clone(c.DefenseRoll.Faces)
	cpy.Callbacks = slices.Clone(c.Callbacks)
	return &cpy
}
