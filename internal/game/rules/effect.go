package rules

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/thraizz/oath-server-go/internal/game/state"
)

// Effect is a primitive state transition. Only effects receive a
// state.Writer.
type Effect interface {
	Kind() string
	Player() state.Key
	Apply(w state.Writer) error
}

// Applier is an effect with a typed result.
type Applier[R any] interface {
	Effect
	Result() R
}

// Do applies an effect through its modifier pipeline and returns its
// result. Effect modifiers cost nothing and are always used. A WhenApplied
// or Before hook returning false makes the effect a no-op with a zero
// result.
func Do[R any](g *Game, e Applier[R]) (R, error) {
	var zero R
	applied, err := g.apply(e)
	if err != nil || !applied {
		return zero, err
	}
	return e.Result(), nil
}

// Apply is Do for callers that only need the error.
func Apply(g *Game, e Effect) error {
	_, err := g.apply(e)
	return err
}

// apply reports whether the effect ran, or was cancelled by a modifier.
func (g *Game) apply(e Effect) (bool, error) {
	w, err := g.writer()
	if err != nil {
		return false, err
	}

	mods := g.discover(e.Kind(), e.Player(), func(m *Modifier) { m.Effect = e })
	mods = runImmediately(mods)

	cancelled := false
	for _, m := range mods {
		if m.Power.Hooks.ApplyWhenApplied == nil {
			continue
		}
		ok, err := g.guard(m, func() (bool, error) { return m.Power.Hooks.ApplyWhenApplied(m) })
		if err != nil {
			return false, err
		}
		cancelled = cancelled || !ok
	}
	for _, m := range mods {
		if cancelled || m.Power.Hooks.ApplyBefore == nil {
			continue
		}
		ok, err := g.guard(m, func() (bool, error) { return m.Power.Hooks.ApplyBefore(m) })
		if err != nil {
			return false, err
		}
		cancelled = !ok
	}
	if cancelled {
		g.Logger.Debug("effect cancelled", zap.String("effect", e.Kind()), zap.String("player", string(e.Player())))
		g.Emit(NewEvent(EventEffectCancelled, e.Kind(), string(e.Player())))
		return false, nil
	}

	run := func() error { return e.Apply(w) }
	run = wrapDuring(g, mods, run)
	if err := run(); err != nil {
		return false, fmt.Errorf("%s: %w", e.Kind(), err)
	}

	for _, m := range mods {
		if m.Power.Hooks.ApplyAfter == nil {
			continue
		}
		if _, err := g.guard(m, func() (bool, error) { return true, m.Power.Hooks.ApplyAfter(m) }); err != nil {
			return false, err
		}
	}
	for _, m := range mods {
		if m.Power.Hooks.ApplyAtEnd == nil {
			continue
		}
		if _, err := g.guard(m, func() (bool, error) { return true, m.Power.Hooks.ApplyAtEnd(m) }); err != nil {
			return false, err
		}
	}

	g.Logger.Debug("effect applied", zap.String("effect", e.Kind()), zap.Int("modifiers", len(mods)))
	g.Emit(NewEvent(EventEffectApplied, e.Kind(), string(e.Player())))
	return true, nil
}

// guard runs a hook with its power marked active, so effects issued by the
// hook do not rediscover the same power.
func (g *Game) guard(m *Modifier, hook func() (bool, error)) (bool, error) {
	name := m.Power.Name
	g.active[name]++
	defer func() {
		g.active[name]--
		if g.active[name] == 0 {
			delete(g.active, name)
		}
	}()
	return hook()
}

func wrapDuring(g *Game, mods []*Modifier, run func() error) func() error {
	for i := len(mods) - 1; i >= 0; i-- {
		m := mods[i]
		if m.Power.Hooks.ApplyDuring == nil {
			continue
		}
		next := run
		run = func() error {
			_, err := g.guard(m, func() (bool, error) { return true, m.Power.Hooks.ApplyDuring(m, next) })
			return err
		}
	}
	return run
}

// runImmediately lets each modifier look at the whole chosen set and drop
// some of it. Dropped modifiers do not get to run their own hook.
func runImmediately(mods []*Modifier) []*Modifier {
	dropped := make(map[*Modifier]bool)
	for _, m := range mods {
		if dropped[m] || m.Power.Hooks.ApplyImmediately == nil {
			continue
		}
		var live []*Modifier
		for _, other := range mods {
			if !dropped[other] {
				live = append(live, other)
			}
		}
		for _, d := range m.Power.Hooks.ApplyImmediately(m, live) {
			dropped[d] = true
		}
	}
	if len(dropped) == 0 {
		return mods
	}
	out := make([]*Modifier, 0, len(mods)-len(dropped))
	for _, m := range mods {
		if !dropped[m] {
			out = append(out, m)
		}
	}
	return out
}

// discover builds the modifiers that may intercept a target of type tag on
// behalf of activator. Powers whose hooks are currently running are
// skipped. Each candidate is checked against its own fork of the frame's
// mask, so proxies one candidate edits are never seen by the next.
func (g *Game) discover(tag string, activator state.Key, bind func(*Modifier)) []*Modifier {
	base := g.Mask()
	var out []*Modifier
	for _, b := range g.registry.For(g.View(), tag) {
		if g.active[b.Power.Name] > 0 {
			continue
		}
		m := newModifier(g, b.Power, b.Source, activator)
		bind(m)
		if !g.speculate(base.Fork(), m.applicable) {
			continue
		}
		out = append(out, m)
	}
	return out
}

// speculate runs check with mask standing in for the frame's mask.
func (g *Game) speculate(mask *state.Mask, check func(v state.View) bool) bool {
	prev := g.speculation
	g.speculation = mask
	defer func() { g.speculation = prev }()
	return check(mask)
}
