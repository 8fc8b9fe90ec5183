package effects

import (
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// PutWarbands moves warbands of Owner from the owner's reserve onto
// Target. The result is how many were placed.
type PutWarbands struct {
	Actor  state.Key
	Owner  state.Key
	Target state.Key
	Amount int

	placed int
}

func (e *PutWarbands) Kind() string      { return "put_warbands" }
func (e *PutWarbands) Player() state.Key { return e.Actor }
func (e *PutWarbands) Result() int       { return e.placed }

func (e *PutWarbands) Apply(w state.Writer) error {
	owner, err := mutable(w, e.Owner)
	if err != nil {
		return err
	}
	amount := min(e.Amount, owner.Reserve)
	if amount <= 0 {
		return nil
	}
	if e.Target == e.Owner {
		owner.Reserve -= amount
		owner.Warbands.Add(string(e.Owner), amount)
		e.placed = amount
		return nil
	}
	target, err := mutable(w, e.Target)
	if err != nil {
		return err
	}
	owner.Reserve -= amount
	target.Warbands.Add(string(e.Owner), amount)
	e.placed = amount
	return nil
}

// MoveWarbands moves up to Amount warbands of one color between entities.
type MoveWarbands struct {
	Actor  state.Key
	Color  string
	From   state.Key
	To     state.Key
	Amount int

	moved int
}

func (e *MoveWarbands) Kind() string      { return "move_warbands" }
func (e *MoveWarbands) Player() state.Key { return e.Actor }
func (e *MoveWarbands) Result() int       { return e.moved }

func (e *MoveWarbands) Apply(w state.Writer) error {
	if e.Amount <= 0 || e.From == e.To {
		return nil
	}
	from, err := mutable(w, e.From)
	if err != nil {
		return err
	}
	to, err := mutable(w, e.To)
	if err != nil {
		return err
	}
	e.moved = from.Warbands.Remove(e.Color, e.Amount)
	to.Warbands.Add(e.Color, e.moved)
	return nil
}

// KillWarbands removes up to Amount warbands of one color, taking them from
// Targets in order. Player warbands return to their owner's reserve;
// bandits leave the game. The result is how many were killed.
type KillWarbands struct {
	Actor   state.Key
	Color   string
	Targets []state.Key
	Amount  int

	killed int
}

func (e *KillWarbands) Kind() string      { return "kill_warbands" }
func (e *KillWarbands) Player() state.Key { return e.Actor }
func (e *KillWarbands) Result() int       { return e.killed }

func (e *KillWarbands) Apply(w state.Writer) error {
	left := e.Amount
	for _, key := range e.Targets {
		if left <= 0 {
			break
		}
		if state.WarbandsOf(w, key, e.Color) == 0 {
			continue
		}
		target, err := mutable(w, key)
		if err != nil {
			return err
		}
		removed := target.Warbands.Remove(e.Color, left)
		left -= removed
		e.killed += removed
	}
	if e.killed == 0 || e.Color == state.BanditColor {
		return nil
	}
	owner, err := mutable(w, state.Key(e.Color))
	if err != nil {
		return err
	}
	owner.Reserve += e.killed
	return nil
}
