package effects

import (
	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// MoveOwnership hands an entity to a new owner. For a site this changes
// its ruler; for a relic or banner its holder, which also moves it onto the
// new holder. The result is the previous owner.
type MoveOwnership struct {
	Actor    state.Key
	Target   state.Key
	NewOwner state.Key

	previous state.Key
}

func (e *MoveOwnership) Kind() string      { return "move_ownership" }
func (e *MoveOwnership) Player() state.Key { return e.Actor }
func (e *MoveOwnership) Result() state.Key { return e.previous }

func (e *MoveOwnership) Apply(w state.Writer) error {
	target, err := mutable(w, e.Target)
	if err != nil {
		return err
	}
	e.previous = target.Owner
	target.Owner = e.NewOwner
	if target.Kind != state.KindSite && e.NewOwner != "" {
		target.Location = e.NewOwner
	}
	return nil
}

// MovePawn moves a player's pawn to a site. The result is the site it left.
type MovePawn struct {
	Actor state.Key
	To    state.Key

	from state.Key
}

func (e *MovePawn) Kind() string      { return "move_pawn" }
func (e *MovePawn) Player() state.Key { return e.Actor }
func (e *MovePawn) Result() state.Key { return e.from }

func (e *MovePawn) Apply(w state.Writer) error {
	site, ok := w.Entity(e.To)
	if !ok || site.Kind != state.KindSite {
		return oatherr.InvalidResolutionf("%s is not a site", e.To)
	}
	player, err := mutable(w, e.Actor)
	if err != nil {
		return err
	}
	e.from = player.Location
	player.Location = e.To
	return nil
}
