package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResourcesSpend(t *testing.T) {
	r := Resources{Favor: 2}
	assert.False(t, r.Spend(Favor, 3))
	assert.Equal(t, 2, r.Favor, "failed spend leaves bag untouched")
	assert.True(t, r.Spend(Favor, 2))
	assert.Equal(t, 0, r.Favor)
	assert.True(t, r.Spend(Secret, 0))
}

func TestResourcesTakeClamps(t *testing.T) {
	r := Resources{Secret: 1}
	assert.Equal(t, 1, r.Take(Secret, 4))
	assert.Equal(t, 0, r.Take(Secret, 1))
	assert.True(t, r.IsZero())
}

func TestResourcesString(t *testing.T) {
	assert.Equal(t, "nothing", Resources{}.String())
	assert.Equal(t, "2 favor, 1 secret", Resources{Favor: 2, Secret: 1}.String())
}

func TestWarbandsRemoveClamps(t *testing.T) {
	w := Warbands{"player:1": 3, "bandits": 1}
	assert.Equal(t, 3, w.Remove("player:1", 5))
	assert.Equal(t, 0, w.Get("player:1"))
	assert.Equal(t, []string{"bandits"}, w.Colors())
	assert.Equal(t, 0, w.Remove("player:2", 1), "empty force cannot be reduced")
	assert.Equal(t, 1, w.Total())
}

func TestWarbandsClone(t *testing.T) {
	w := Warbands{"player:1": 2}
	cpy := w.Clone()
	cpy.Add("player:1", 1)
	assert.Equal(t, 2, w.Get("player:1"))
	assert.Equal(t, 3, cpy.Get("player:1"))
	var empty Warbands
	assert.Equal(t, 0, empty.Get("x"))
}
