// Package state is the arena holding every game entity by stable key, plus
// the overlays used to stage (Txn) and speculate on (Mask) changes to it.
package state

import (
	"slices"
	"strings"

	"github.com/thraizz/oath-server-go/internal/game/ledger"
)

// Key addresses an entity or record in the arena. Keys are stable for the
// lifetime of a game and survive snapshots.
type Key string

func (k Key) String() string { return string(k) }

// Prefix returns the part of the key before the first colon.
func (k Key) Prefix() string {
	prefix, _, _ := strings.Cut(string(k), ":")
	return prefix
}

// Kind classifies entities.
type Kind string

const (
	KindPlayer    Kind = "player"
	KindSite      Kind = "site"
	KindDenizen   Kind = "denizen"
	KindRelic     Kind = "relic"
	KindBanner    Kind = "banner"
	KindReliquary Kind = "reliquary"
	KindBank      Kind = "bank"
)

// BanditColor is the warband color of unowned defenders.
const BanditColor = "bandits"

// Entity is one object of the game graph. References to other entities
// (Owner, Location) are keys, so a reader resolves them through whichever
// view it holds.
type Entity struct {
	Key  Key    `json:"key"`
	Kind Kind   `json:"kind"`
	Name string `json:"name"`

	// Owner is the holding player of a relic, banner or adviser, or the
	// ruler of a site.
	Owner Key `json:"owner,omitempty"`

	// Location is the site a pawn, denizen or relic is at, or the player
	// holding it.
	Location Key `json:"location,omitempty"`

	InPlay    bool             `json:"in_play"`
	Powers    []string         `json:"powers,omitempty"`
	Resources ledger.Resources `json:"resources"`
	Warbands  ledger.Warbands  `json:"warbands,omitempty"`
	Defense   int              `json:"defense,omitempty"`

	// Supply and Reserve are only used by players: supply pays for major
	// actions, reserve holds warbands not on the map.
	Supply  int `json:"supply,omitempty"`
	Reserve int `json:"reserve,omitempty"`
}

// Clone returns a deep copy. The copy always has a non-nil warband map.
func (e *Entity) Clone() *Entity {
	cpy := *e
	cpy.Powers = slices.Clone(e.Powers)
	if e.Warbands == nil {
		cpy.Warbands = ledger.Warbands{}
	} else {
		cpy.Warbands = e.Warbands.Clone()
	}
	return &cpy
}

// HasPower reports whether the entity declares the named power.
func (e Entity) HasPower(name string) bool {
	return slices.Contains(e.Powers, name)
}

// sameLayout reports whether two versions of an entity contribute the same
// powers from the same place.
func sameLayout(a, b *Entity) bool {
	return a.Owner == b.Owner &&
		a.Location == b.Location &&
		a.InPlay == b.InPlay &&
		slices.Equal(a.Powers, b.Powers)
}

// Phase is a step of a player's turn.
type Phase string

const (
	PhaseWake Phase = "wake"
	PhaseAct  Phase = "act"
	PhaseRest Phase = "rest"
)

// Turn is the game-wide turn state.
type Turn struct {
	Round  int   `json:"round"`
	Phase  Phase `json:"phase"`
	Player Key   `json:"player"`
	Order  []Key `json:"order"`
	Winner Key   `json:"winner,omitempty"`
}

func (t Turn) clone() Turn {
	t.Order = slices.Clone(t.Order)
	return t
}

// Next returns the player after the current one in turn order and whether
// the order wrapped around to start a new round.
func (t Turn) Next() (Key, bool) {
	idx := slices.Index(t.Order, t.Player)
	if idx < 0 || len(t.Order) == 0 {
		return "", false
	}
	next := (idx + 1) % len(t.Order)
	return t.Order[next], next == 0
}
