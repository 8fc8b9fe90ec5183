package effects

import (
	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// MoveResources moves up to Amount of one resource between entities. The
// result is how many actually moved.
type MoveResources struct {
	Actor    state.Key
	From     state.Key
	To       state.Key
	Resource ledger.Resource
	Amount   int

	moved int
}

func (e *MoveResources) Kind() string      { return "move_resources" }
func (e *MoveResources) Player() state.Key { return e.Actor }
func (e *MoveResources) Result() int       { return e.moved }

func (e *MoveResources) Apply(w state.Writer) error {
	if e.Amount <= 0 {
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
	e.moved = from.Resources.Take(e.Resource, e.Amount)
	to.Resources.Add(e.Resource, e.moved)
	return nil
}

// PayCost takes a cost from a payer. Placed resources go onto Target, burnt
// favor returns to Bank and burnt secrets leave the game. Paying what the
// payer does not have is an invalid resolution.
type PayCost struct {
	Actor  state.Key
	Payer  state.Key
	Target state.Key
	Bank   state.Key
	Cost   ledger.Cost

	paid bool
}

func (e *PayCost) Kind() string      { return "pay_cost" }
func (e *PayCost) Player() state.Key { return e.Actor }
func (e *PayCost) Result() bool      { return e.paid }

func (e *PayCost) Apply(w state.Writer) error {
	if e.Cost.IsFree() {
		e.paid = true
		return nil
	}
	payer, err := mutable(w, e.Payer)
	if err != nil {
		return err
	}
	result := ledger.CalculatePayment(payer.Resources, e.Cost)
	if !result.Success {
		return oatherr.InvalidResolutionf("%s cannot pay %s: %s", payer.Name, e.Cost, result.Reason).
			WithMeta("player", string(e.Payer))
	}
	payer.Resources = result.Remaining

	if !e.Cost.Placed.IsZero() && e.Target != "" && e.Target != e.Payer {
		target, err := mutable(w, e.Target)
		if err != nil {
			return err
		}
		target.Resources = target.Resources.Plus(e.Cost.Placed)
	}
	if e.Cost.Burnt.Favor > 0 && e.Bank != "" {
		bank, err := mutable(w, e.Bank)
		if err != nil {
			return err
		}
		bank.Resources.Add(ledger.Favor, e.Cost.Burnt.Favor)
	}
	e.paid = true
	return nil
}

// SpendSupply takes supply from a player for a major action.
type SpendSupply struct {
	Actor  state.Key
	Amount int

	spent bool
}

func (e *SpendSupply) Kind() string      { return "spend_supply" }
func (e *SpendSupply) Player() state.Key { return e.Actor }
func (e *SpendSupply) Result() bool      { return e.spent }

func (e *SpendSupply) Apply(w state.Writer) error {
	player, err := mutable(w, e.Actor)
	if err != nil {
		return err
	}
	if player.Supply < e.Amount {
		return oatherr.InvalidResolutionf("%s needs %d supply, has %d", player.Name, e.Amount, player.Supply).
			WithMeta("player", string(e.Actor))
	}
	player.Supply -= e.Amount
	e.spent = true
	return nil
}

// RecoverSupply refills a player's supply up to Max. The result is the
// amount recovered.
type RecoverSupply struct {
	Actor  state.Key
	Amount int
	Max    int

	recovered int
}

func (e *RecoverSupply) Kind() string      { return "recover_supply" }
func (e *RecoverSupply) Player() state.Key { return e.Actor }
func (e *RecoverSupply) Result() int       { return e.recovered }

func (e *RecoverSupply) Apply(w state.Writer) error {
	player, err := mutable(w, e.Actor)
	if err != nil {
		return err
	}
	amount := min(e.Amount, e.Max-player.Supply)
	if amount <= 0 {
		return nil
	}
	player.Supply += amount
	e.recovered = amount
	return nil
}
