package rules

import (
	"encoding"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	oatherr "github.com/thraizz/oath-server-go/internal/errors"
	"github.com/thraizz/oath-server-go/internal/game/dice"
	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

const atEndSuffix = ":end"

// DefaultMaxSteps bounds the stack items resolved by a single request.
const DefaultMaxSteps = 1000

// Options configures a Game.
type Options struct {
	ID       string
	Catalog  Catalog
	Actions  *ActionRegistry
	Dice     dice.Roller
	Events   *EventBus
	Logger   *zap.Logger
	MaxSteps int
}

// Game is the interpreter state of one game: the committed arena, the
// action stack and everything needed to resolve it. Nothing here is
// global; independent games share no mutable state.
type Game struct {
	ID      string
	World   *state.World
	Stack   *StackManager
	Catalog Catalog
	Actions *ActionRegistry
	Dice    dice.Roller
	Events  *EventBus
	Logger  *zap.Logger

	registry *Registry
	maxSteps int

	tx          *state.Txn
	current     *Frame
	speculation *state.Mask
	spawn   *spawnList
	active  map[string]int
	pending []Event
}

type spawnList struct {
	pushed []StackItem
	then   []StackItem
}

// NewGame wraps a world in an interpreter.
func NewGame(world *state.World, opts Options) *Game {
	if opts.ID == "" {
		opts.ID = uuid.NewString()
	}
	if opts.Catalog == nil {
		opts.Catalog = Catalog{}
	}
	if opts.Actions == nil {
		opts.Actions = NewActionRegistry()
	}
	if opts.Events == nil {
		opts.Events = NewEventBus()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	return &Game{
		ID:       opts.ID,
		World:    world,
		Stack:    NewStackManager(),
		Catalog:  opts.Catalog,
		Actions:  opts.Actions,
		Dice:     opts.Dice,
		Events:   opts.Events,
		Logger:   opts.Logger.With(zap.String("game_id", opts.ID)),
		registry: NewRegistry(opts.Catalog),
		maxSteps: opts.MaxSteps,
		active:   make(map[string]int),
	}
}

// View returns what the game currently looks like: the open request's
// staged state, or the committed world between requests.
func (g *Game) View() state.View {
	if g.tx != nil && !g.tx.Closed() {
		return g.tx
	}
	return g.World
}

func (g *Game) writer() (state.Writer, error) {
	if g.tx == nil || g.tx.Closed() {
		return nil, oatherr.Internalf("effects can only be applied while resolving a request")
	}
	return g.tx, nil
}

// Registry returns the power registry.
func (g *Game) Registry() *Registry { return g.registry }

// liveView follows the game's current view, so masks never read through a
// closed transaction.
type liveView struct{ g *Game }

func (l liveView) Entity(key state.Key) (state.Entity, bool)     { return l.g.View().Entity(key) }
func (l liveView) Keys() []state.Key                             { return l.g.View().Keys() }
func (l liveView) Turn() state.Turn                              { return l.g.View().Turn() }
func (l liveView) Campaign(key state.Key) (state.Campaign, bool) { return l.g.View().Campaign(key) }
func (l liveView) LayoutVersion() uint64                         { return l.g.View().LayoutVersion() }

// Mask returns the proxy manager of the frame being resolved. Proxies live
// until the frame pops or the request ends. While a candidate modifier is
// being checked it gets a private fork instead.
func (g *Game) Mask() *state.Mask {
	if g.speculation != nil {
		return g.speculation
	}
	if g.current == nil {
		return state.NewMask(liveView{g})
	}
	if g.current.mask == nil {
		g.current.mask = state.NewMask(liveView{g})
	}
	return g.current.mask
}

// Current returns the frame being started or executed.
func (g *Game) Current() *Frame { return g.current }

// Bank returns the key of the favor bank, if the board has one.
func (g *Game) Bank() state.Key {
	banks := state.OfKind(g.View(), state.KindBank)
	if len(banks) == 0 {
		return ""
	}
	return banks[0].Key
}

// Push schedules an action. While an action executes, pushed actions run
// right after it in the order pushed; otherwise the action goes on top of
// the stack. Modifiable actions are preceded by their modifier choice.
func (g *Game) Push(a Action) {
	item := g.itemFor(a)
	if g.spawn != nil {
		g.spawn.pushed = append(g.spawn.pushed, item)
		return
	}
	g.Stack.Push(item)
}

// Then schedules a continuation of the executing action: it runs after
// every action the executing one pushed, in FIFO order with other
// continuations.
func (g *Game) Then(a Action) {
	item := g.itemFor(a)
	if g.spawn != nil {
		g.spawn.then = append(g.spawn.then, item)
		return
	}
	g.Stack.Push(item)
}

func (g *Game) pushModified(a Action, mods []*Modifier) {
	for _, m := range mods {
		m.Action = a
	}
	item := newItem(a, mods)
	if g.spawn != nil {
		g.spawn.pushed = append(g.spawn.pushed, item)
		return
	}
	g.Stack.Push(item)
}

func (g *Game) itemFor(a Action) StackItem {
	if isModifiable(a) {
		return newItem(&ChooseModifiers{Target: a}, nil)
	}
	return newItem(a, nil)
}

func newItem(a Action, mods []*Modifier) StackItem {
	f := &Frame{ID: uuid.NewString(), Action: a, Modifiers: mods}
	return StackItem{ID: f.ID, Kind: StackItemAction, Frame: f}
}

// Emit records an event. Events raised during a request are published once
// it commits and dropped if it rolls back.
func (g *Game) Emit(ev Event) {
	ev.GameID = g.ID
	if g.tx != nil {
		g.pending = append(g.pending, ev)
		return
	}
	g.Events.Publish(ev)
}

// Start pushes an action and resolves the stack until it suspends or
// empties.
func (g *Game) Start(a Action) error {
	return g.request(func() error {
		g.Push(a)
		return nil
	})
}

// Run resolves fn inside a request, then the stack. Setup code uses it to
// apply effects.
func (g *Game) Run(fn func() error) error {
	return g.request(fn)
}

// Continue submits values for the open action's slots. A submission that
// does not fit is a validation error and leaves everything as it was.
func (g *Game) Continue(player state.Key, submission map[string][]string) error {
	f, err := g.openFrame(player)
	if err != nil {
		return err
	}
	open := make(map[string]bool, len(f.open))
	for _, name := range f.open {
		open[name] = true
	}
	for name := range submission {
		if !open[name] {
			return oatherr.Validationf("%s has no open select %q", f.Action.Kind(), name).WithMeta("select", name)
		}
	}
	values := make(selects.Params, len(f.open))
	for _, name := range f.open {
		s, _ := f.Select(name)
		v, err := s.Validate(submission[name])
		if err != nil {
			return err
		}
		values[name] = v
	}

	return g.request(func() error {
		for name, v := range values {
			f.params[name] = v
		}
		f.open = nil
		return nil
	})
}

// Cancel discards the open action without executing it.
func (g *Game) Cancel(player state.Key) error {
	f, err := g.openFrame(player)
	if err != nil {
		return err
	}
	if isMandatory(f.Action) {
		return oatherr.InvalidResolutionf("%s cannot be cancelled", f.Action.Kind())
	}
	return g.request(func() error {
		if _, ok := g.Stack.Remove(f.ID); !ok {
			return oatherr.Internalf("frame %s vanished", f.ID)
		}
		g.Logger.Debug("action cancelled", zap.String("action", f.Action.Kind()))
		g.Emit(NewEvent(EventActionCancelled, f.Action.Kind(), string(player)))
		return nil
	})
}

func (g *Game) openFrame(player state.Key) (*Frame, error) {
	item, ok := g.Stack.Peek()
	if !ok || item.Kind != StackItemAction || !item.Frame.started || len(item.Frame.open) == 0 {
		return nil, oatherr.InvalidArgumentf("no action is waiting for input")
	}
	if owner := item.Frame.Action.Player(); owner != player {
		return nil, oatherr.InvalidArgumentf("the open action belongs to %s", owner).WithMeta("player", string(player))
	}
	return item.Frame, nil
}

type checkpoint struct {
	frames []FrameRecord
	dice   []byte
}

func (g *Game) checkpoint() (checkpoint, error) {
	frames, err := g.Records()
	if err != nil {
		return checkpoint{}, err
	}
	cp := checkpoint{frames: frames}
	if m, ok := g.Dice.(encoding.BinaryMarshaler); ok {
		if cp.dice, err = m.MarshalBinary(); err != nil {
			return checkpoint{}, fmt.Errorf("checkpoint dice: %w", err)
		}
	}
	return cp, nil
}

func (g *Game) rollback(cp checkpoint) error {
	if u, ok := g.Dice.(encoding.BinaryUnmarshaler); ok && cp.dice != nil {
		if err := u.UnmarshalBinary(cp.dice); err != nil {
			return fmt.Errorf("restore dice: %w", err)
		}
	}
	return g.RestoreStack(cp.frames)
}

// request runs fn and resolves the stack inside one transaction. On error
// the transaction is dropped and the stack and dice are put back as they
// were when the request began.
func (g *Game) request(fn func() error) (err error) {
	cp, err := g.checkpoint()
	if err != nil {
		return err
	}
	g.tx = g.World.Begin()
	g.pending = nil

	defer func() {
		if r := recover(); r != nil {
			err = oatherr.Internalf("panic while resolving: %v", r)
		}
		g.current, g.spawn = nil, nil
		clear(g.active)
		for _, item := range g.Stack.List() {
			item.Frame.mask = nil
		}

		if err != nil {
			g.tx.Discard()
			g.tx = nil
			g.pending = nil
			if rbErr := g.rollback(cp); rbErr != nil {
				g.Logger.Error("rollback failed", zap.Error(rbErr))
			}
			g.Logger.Warn("request rolled back", zap.Error(err))
			ev := NewEvent(EventRequestFailed, "", "")
			ev.Data = err.Error()
			g.Emit(ev)
			return
		}

		if cErr := g.tx.Commit(); cErr != nil {
			err = oatherr.Wrap(cErr, "commit")
		}
		g.tx = nil
		events := g.pending
		g.pending = nil
		g.Events.PublishBatch(events)
	}()

	if err = fn(); err != nil {
		return err
	}
	return g.resolve()
}

// resolve works through the stack until the top action waits for input or
// the stack is empty.
func (g *Game) resolve() error {
	for step := 0; ; step++ {
		if step >= g.maxSteps {
			return oatherr.Internalf("stack did not settle after %d steps", g.maxSteps)
		}
		item, ok := g.Stack.Peek()
		if !ok {
			return nil
		}
		f := item.Frame
		if item.Kind == StackItemAtEnd {
			if err := g.runAtEnd(item); err != nil {
				return err
			}
			continue
		}
		if !f.started {
			if err := g.startFrame(f, true); err != nil {
				return err
			}
		}
		if len(f.open) > 0 {
			return nil
		}
		if err := g.executeFrame(item); err != nil {
			return err
		}
	}
}

func (g *Game) startFrame(f *Frame, announce bool) error {
	prev := g.current
	g.current = f
	defer func() { g.current = prev }()

	slots, err := f.Action.Start(g)
	if err != nil {
		return fmt.Errorf("start %s: %w", f.Action.Kind(), err)
	}
	for _, m := range f.Modifiers {
		if m.Power.Hooks.ApplyAtStart == nil {
			continue
		}
		if _, err := g.guard(m, func() (bool, error) {
			var hookErr error
			slots, hookErr = m.Power.Hooks.ApplyAtStart(m, slots)
			return true, hookErr
		}); err != nil {
			return err
		}
	}

	f.selects = slots
	f.params = make(selects.Params, len(slots))
	f.open = nil
	for _, s := range slots {
		if values, ok := s.Autocomplete(); ok {
			f.params[s.Name] = values
			continue
		}
		f.open = append(f.open, s.Name)
	}
	f.started = true

	if announce {
		player := string(f.Action.Player())
		g.Emit(NewEvent(EventActionStarted, f.Action.Kind(), player))
		if len(f.open) > 0 {
			g.Logger.Debug("action waiting for input", zap.String("action", f.Action.Kind()), zap.Strings("open", f.open))
			g.Emit(NewEvent(EventActionSuspended, f.Action.Kind(), player))
		}
	}
	return nil
}

func (g *Game) executeFrame(item StackItem) error {
	f := item.Frame
	for _, m := range f.Modifiers {
		m.Params = f.params.Clone()
	}

	return g.collect(f, func() error {
		cancelled := false
		for _, m := range f.Modifiers {
			if m.Power.Hooks.ApplyBefore == nil {
				continue
			}
			ok, err := g.guard(m, func() (bool, error) { return m.Power.Hooks.ApplyBefore(m) })
			if err != nil {
				return err
			}
			if !ok {
				cancelled = true
				g.Logger.Debug("execution suppressed", zap.String("action", f.Action.Kind()), zap.String("power", m.Name()))
				break
			}
		}
		if !cancelled {
			run := func() error { return f.Action.Execute(g, f.params) }
			if err := wrapDuring(g, f.Modifiers, run)(); err != nil {
				return err
			}
			for _, m := range f.Modifiers {
				if m.Power.Hooks.ApplyAfter == nil {
					continue
				}
				if _, err := g.guard(m, func() (bool, error) { return true, m.Power.Hooks.ApplyAfter(m) }); err != nil {
					return err
				}
			}
		}

		top, err := g.Stack.Pop()
		if err != nil || top.ID != item.ID {
			return oatherr.Internalf("frame %s is no longer on top of the stack", f.ID)
		}
		g.Emit(NewEvent(EventActionResolved, f.Action.Kind(), string(f.Action.Player())))
		if hasAtEnd(f.Modifiers) {
			g.Stack.Push(StackItem{ID: f.ID + atEndSuffix, Kind: StackItemAtEnd, Frame: f})
		}
		return nil
	})
}

func (g *Game) runAtEnd(item StackItem) error {
	if _, err := g.Stack.Pop(); err != nil {
		return err
	}
	f := item.Frame
	return g.collect(f, func() error {
		for _, m := range f.Modifiers {
			if m.Power.Hooks.ApplyAtEnd == nil {
				continue
			}
			if _, err := g.guard(m, func() (bool, error) { return true, m.Power.Hooks.ApplyAtEnd(m) }); err != nil {
				return err
			}
		}
		return nil
	})
}

// collect runs fn with f as the current frame, then places what fn pushed
// on top of the stack: pushed actions first, then continuations.
func (g *Game) collect(f *Frame, fn func() error) error {
	prevFrame, prevSpawn := g.current, g.spawn
	spawn := &spawnList{}
	g.current, g.spawn = f, spawn
	err := fn()
	g.current, g.spawn = prevFrame, prevSpawn
	if err != nil {
		return err
	}
	for i := len(spawn.then) - 1; i >= 0; i-- {
		g.Stack.Push(spawn.then[i])
	}
	for i := len(spawn.pushed) - 1; i >= 0; i-- {
		g.Stack.Push(spawn.pushed[i])
	}
	return nil
}

func hasAtEnd(mods []*Modifier) bool {
	for _, m := range mods {
		if m.Power.Hooks.ApplyAtEnd != nil {
			return true
		}
	}
	return false
}
