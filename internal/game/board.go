package game

import (
	"fmt"

	"github.com/thraizz/oath-server-go/internal/game/actions"
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/powers"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const (
	MinPlayers = 2
	MaxPlayers = 6

	// ExtraSites are the unruled sites dealt on top of one per player.
	ExtraSites = 2

	startingFavor    = 1
	startingSecret   = 1
	startingWarbands = 3
	startingReserve  = 12
	startingBandits  = 2
	bankFavor        = 30
	reliquarySecrets = 4
)

var (
	playerNames = []string{"Purple", "Red", "Brown", "Blue", "Yellow", "White"}
	siteNames   = []string{"Plains", "Hills", "Marsh", "Forest", "Mountain", "Coast", "Valley", "Ruins"}
	relicNames  = map[string]string{
		powers.ForcedMarch: "Ancient Boots",
		powers.LuckyCharm:  "Lucky Coin",
		powers.Beacon:      "Signal Fire",
	}
)

// shuffler is the part of the seeded roller used to deal the board.
type shuffler interface {
	Shuffle(n int, swap func(i, j int))
}

// deal builds the starting board. Each player rules the site they start on;
// the extra sites hold bandits, the relics and the banners. Denizens are dealt round
// robin over the sites from a shuffled deck, so the same seed always gives
// the same board.
func deal(rng shuffler, playerCount int) (*state.World, error) {
	if playerCount < MinPlayers || playerCount > MaxPlayers {
		return nil, fmt.Errorf("a game needs %d to %d players, got %d", MinPlayers, MaxPlayers, playerCount)
	}
	w := state.NewWorld()
	add := func(e state.Entity) error {
		if err := w.Add(e); err != nil {
			return fmt.Errorf("deal %s: %w", e.Key, err)
		}
		return nil
	}

	siteCount := playerCount + ExtraSites
	sitePowers := append([]string(nil), powers.SitePowers...)
	rng.Shuffle(len(sitePowers), func(i, j int) { sitePowers[i], sitePowers[j] = sitePowers[j], sitePowers[i] })

	order := make([]state.Key, 0, playerCount)
	for i := 1; i <= playerCount; i++ {
		player := state.Key(fmt.Sprintf("player:%d", i))
		order = append(order, player)
		if err := add(state.Entity{
			Key:       player,
			Kind:      state.KindPlayer,
			Name:      playerNames[i-1],
			Location:  siteKey(i),
			InPlay:    true,
			Resources: ledger.Resources{Favor: startingFavor, Secret: startingSecret},
			Warbands:  ledger.Warbands{string(player): startingWarbands},
			Supply:    actions.MaxSupply,
			Reserve:   startingReserve,
		}); err != nil {
			return nil, err
		}
	}

	var unruled []state.Key
	for i := 1; i <= siteCount; i++ {
		site := state.Entity{
			Key:      siteKey(i),
			Kind:     state.KindSite,
			Name:     siteNames[i-1],
			InPlay:   true,
			Defense:  1,
			Warbands: ledger.Warbands{},
		}
		if i <= len(sitePowers) {
			site.Powers = []string{sitePowers[i-1]}
		}
		if i <= playerCount {
			site.Owner = order[i-1]
			site.Warbands[string(site.Owner)] = 1
		} else {
			site.Warbands[state.BanditColor] = startingBandits
			unruled = append(unruled, site.Key)
		}
		if err := add(site); err != nil {
			return nil, err
		}
	}

	deck := append([]string(nil), powers.DenizenPowers...)
	rng.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	for i, power := range deck {
		if err := add(state.Entity{
			Key:      state.Key(fmt.Sprintf("denizen:%d", i+1)),
			Kind:     state.KindDenizen,
			Name:     power,
			Location: siteKey(i%siteCount + 1),
			InPlay:   true,
			Powers:   []string{power},
		}); err != nil {
			return nil, err
		}
	}

	for i, power := range powers.RelicPowers {
		if err := add(state.Entity{
			Key:      state.Key(fmt.Sprintf("relic:%d", i+1)),
			Kind:     state.KindRelic,
			Name:     relicNames[power],
			Location: unruled[i%len(unruled)],
			InPlay:   true,
			Powers:   []string{power},
			Defense:  1,
		}); err != nil {
			return nil, err
		}
	}

	// Banners wait at the last unruled sites for someone to seize them.
	banner := func(i int) state.Key { return unruled[len(unruled)-1-i%len(unruled)] }
	for _, e := range []state.Entity{
		{Key: "banner:1", Kind: state.KindBanner, Name: "Darkest Secret", Location: banner(0), InPlay: true, Defense: 1, Resources: ledger.Resources{Secret: 1}},
		{Key: "banner:2", Kind: state.KindBanner, Name: "People's Favor", Location: banner(1), InPlay: true, Defense: 1, Resources: ledger.Resources{Favor: 1}},
		{Key: "reliquary", Kind: state.KindReliquary, Name: "Reliquary", InPlay: true, Powers: append([]string(nil), powers.ReliquaryPowers...), Resources: ledger.Resources{Secret: reliquarySecrets}},
		{Key: "bank", Kind: state.KindBank, Name: "Favor Bank", InPlay: true, Resources: ledger.Resources{Favor: bankFavor}},
	} {
		if err := add(e); err != nil {
			return nil, err
		}
	}

	w.SetTurn(state.Turn{Round: 1, Phase: state.PhaseWake, Player: order[0], Order: order})
	return w, nil
}

func siteKey(i int) state.Key {
	return state.Key(fmt.Sprintf("site:%d", i))
}

var _ shuffler = (*dice.SeededRoller)(nil)
