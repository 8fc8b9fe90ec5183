package effects

import (
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// RollDice rolls Count dice. It writes nothing; it is an effect so powers
// can intercept rolls. Outcome may be edited by After hooks.
type RollDice struct {
	Actor  state.Key
	Die    dice.Die
	Count  int
	Roller dice.Roller

	Outcome dice.Roll
}

func (e *RollDice) Kind() string      { return "roll_dice" }
func (e *RollDice) Player() state.Key { return e.Actor }
func (e *RollDice) Result() dice.Roll { return e.Outcome }

func (e *RollDice) Apply(state.Writer) error {
	if e.Count <= 0 {
		e.Outcome = dice.Roll{Kind: e.Die.Kind}
		return nil
	}
	roll, err := e.Roller.Roll(e.Die, e.Count)
	if err != nil {
		return err
	}
	e.Outcome = roll
	return nil
}

// Reroll rolls again every face matching and replaces it in Outcome.
func (e *RollDice) Reroll(match func(dice.Face) bool) (int, error) {
	var idx []int
	for i, f := range e.Outcome.Faces {
		if match(f) {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return 0, nil
	}
	again, err := e.Roller.Roll(e.Die, len(idx))
	if err != nil {
		return 0, err
	}
	faces := append([]dice.Face(nil), e.Outcome.Faces...)
	for n, i := range idx {
		faces[i] = again.Faces[n]
	}
	e.Outcome.Faces = faces
	return len(idx), nil
}
