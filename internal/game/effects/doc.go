// Package effects holds the primitive state transitions of the game. Each
// effect is self-describing, writes through a state.Writer and reports a
// typed result. Effects are applied through rules.Do so powers can
// intercept them; Apply is never called directly by game code.
package effects

import (
	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

func mutable(w state.Writer, key state.Key) (*state.Entity, error) {
	e, err := w.Mutable(key)
	if err != nil {
		return nil, oatherr.Wrapf(err, "load %s", key).WithMeta("entity", string(key))
	}
	return e, nil
}
