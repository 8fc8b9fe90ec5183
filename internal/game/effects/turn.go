package effects

import (
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// ChangePhase sets the phase of the current turn. The result is the new
// turn state.
type ChangePhase struct {
	Actor state.Key
	Phase state.Phase

	turn state.Turn
}

func (e *ChangePhase) Kind() string       { return "change_phase" }
func (e *ChangePhase) Player() state.Key  { return e.Actor }
func (e *ChangePhase) Result() state.Turn { return e.turn }

func (e *ChangePhase) Apply(w state.Writer) error {
	turn := w.Turn()
	turn.Phase = e.Phase
	w.SetTurn(turn)
	e.turn = turn
	return nil
}

// PassTurn hands the turn to the next player in order, starting a new round
// when the order wraps. The new turn starts in the wake phase.
type PassTurn struct {
	Actor state.Key

	turn state.Turn
}

func (e *PassTurn) Kind() string       { return "pass_turn" }
func (e *PassTurn) Player() state.Key  { return e.Actor }
func (e *PassTurn) Result() state.Turn { return e.turn }

func (e *PassTurn) Apply(w state.Writer) error {
	turn := w.Turn()
	next, wrapped := turn.Next()
	if next == "" {
		next = turn.Player
	}
	if wrapped {
		turn.Round++
	}
	turn.Player = next
	turn.Phase = state.PhaseWake
	w.SetTurn(turn)
	e.turn = turn
	return nil
}

// DeclareWinner ends the game.
type DeclareWinner struct {
	Winner state.Key
}

func (e *DeclareWinner) Kind() string      { return "declare_winner" }
func (e *DeclareWinner) Player() state.Key { return e.Winner }
func (e *DeclareWinner) Result() state.Key { return e.Winner }

func (e *DeclareWinner) Apply(w state.Writer) error {
	turn := w.Turn()
	turn.Winner = e.Winner
	w.SetTurn(turn)
	return nil
}
