package effects

import (
	"slices"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// OpenCampaign allocates an arena slot for a new campaign. The result is
// the slot's key.
type OpenCampaign struct {
	Actor    state.Key
	Campaign state.Campaign

	key state.Key
}

func (e *OpenCampaign) Kind() string      { return "open_campaign" }
func (e *OpenCampaign) Player() state.Key { return e.Actor }
func (e *OpenCampaign) Result() state.Key { return e.key }

func (e *OpenCampaign) Apply(w state.Writer) error {
	c := e.Campaign
	c.Key = w.NextKey("campaign")
	if c.SacrificeValue == 0 {
		c.SacrificeValue = 1
	}
	w.PutCampaign(c)
	e.key = c.Key
	return nil
}

// UpdateCampaign changes a campaign record in place.
type UpdateCampaign struct {
	Actor    state.Key
	Campaign state.Key
	Change   func(c *state.Campaign)

	result state.Campaign
}

func (e *UpdateCampaign) Kind() string           { return "update_campaign" }
func (e *UpdateCampaign) Player() state.Key      { return e.Actor }
func (e *UpdateCampaign) Result() state.Campaign { return e.result }

func (e *UpdateCampaign) Apply(w state.Writer) error {
	c, err := w.MutableCampaign(e.Campaign)
	if err != nil {
		return oatherr.Wrapf(err, "update campaign")
	}
	if c.Frozen && e.Change != nil {
		before := *c
		e.Change(c)
		if c.AttackPool != before.AttackPool || c.DefensePool != before.DefensePool ||
			len(c.AttackerForces) != len(before.AttackerForces) || len(c.DefenderForces) != len(before.DefenderForces) {
			return oatherr.InvalidResolutionf("campaign %s is frozen; pools and forces can no longer change", e.Campaign)
		}
	} else if e.Change != nil {
		e.Change(c)
	}
	e.result = *c
	return nil
}

// JoinDefense adds a player to the defending side of a campaign. Each ally
// gets a defense round of their own. The attacker, the defender and players
// already allied are left alone; the result reports whether Ally joined.
type JoinDefense struct {
	Actor    state.Key
	Campaign state.Key
	Ally     state.Key

	joined bool
}

func (e *JoinDefense) Kind() string      { return "join_defense" }
func (e *JoinDefense) Player() state.Key { return e.Actor }
func (e *JoinDefense) Result() bool      { return e.joined }

func (e *JoinDefense) Apply(w state.Writer) error {
	c, err := w.MutableCampaign(e.Campaign)
	if err != nil {
		return oatherr.Wrapf(err, "join defense")
	}
	if c.Frozen {
		return oatherr.InvalidResolutionf("campaign %s is frozen; no one can join it", e.Campaign)
	}
	if e.Ally == "" || e.Ally == c.Attacker || e.Ally == c.Defender || slices.Contains(c.Allies, e.Ally) {
		return nil
	}
	c.Allies = append(c.Allies, e.Ally)
	e.joined = true
	return nil
}

// CloseCampaign frees a campaign's arena slot.
type CloseCampaign struct {
	Actor    state.Key
	Campaign state.Key
}

func (e *CloseCampaign) Kind() string      { return "close_campaign" }
func (e *CloseCampaign) Player() state.Key { return e.Actor }
func (e *CloseCampaign) Result() bool      { return true }

func (e *CloseCampaign) Apply(w state.Writer) error {
	w.DeleteCampaign(e.Campaign)
	return nil
}
