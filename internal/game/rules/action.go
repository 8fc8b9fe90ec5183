package rules

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// Action is a player decision. Start builds the parameter slots and must not
// change game state; Execute runs once every slot has values. Actions are
// plain structs with exported fields so they survive a snapshot as JSON.
type Action interface {
	Kind() string
	Player() state.Key
	Message() string
	Start(g *Game) ([]*selects.Select, error)
	Execute(g *Game, params selects.Params) error
}

// Modifiable actions are preceded by a choose-modifiers round.
type Modifiable interface {
	Modifiable() bool
}

// Mandatory actions refuse Cancel.
type Mandatory interface {
	Mandatory() bool
}

func isModifiable(a Action) bool {
	m, ok := a.(Modifiable)
	return ok && m.Modifiable()
}

func isMandatory(a Action) bool {
	m, ok := a.(Mandatory)
	return ok && m.Mandatory()
}

// Base carries the acting player and the defaults most actions share.
type Base struct {
	Actor state.Key `json:"player"`
}

func (b Base) Player() state.Key { return b.Actor }

func (Base) Message() string { return "" }

func (Base) Start(*Game) ([]*selects.Select, error) { return nil, nil }

// ActionFactory returns a zero value action ready to be decoded into.
type ActionFactory func() Action

// ActionRegistry maps action kinds to factories so the stack can be rebuilt
// from records.
type ActionRegistry struct {
	mu        sync.RWMutex
	factories map[string]ActionFactory
}

// NewActionRegistry creates an empty registry.
func NewActionRegistry() *ActionRegistry {
	return &ActionRegistry{factories: make(map[string]ActionFactory)}
}

// Register adds a factory under the kind of the action it produces.
func (r *ActionRegistry) Register(factory ActionFactory) error {
	kind := factory().Kind()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.factories[kind]; exists {
		return fmt.Errorf("action %q already registered", kind)
	}
	r.factories[kind] = factory
	return nil
}

// MustRegister is Register for package init code.
func (r *ActionRegistry) MustRegister(factories ...ActionFactory) {
	for _, f := range factories {
		if err := r.Register(f); err != nil {
			panic(err)
		}
	}
}

// New returns a fresh action of kind.
func (r *ActionRegistry) New(kind string) (Action, error) {
	r.mu.RLock()
	factory, ok := r.factories[kind]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown action %q", kind)
	}
	return factory(), nil
}

// Decode rebuilds an action from its kind and JSON state.
func (r *ActionRegistry) Decode(kind string, data json.RawMessage) (Action, error) {
	a, err := r.New(kind)
	if err != nil {
		return nil, err
	}
	if len(data) > 0 {
		if err := json.Unmarshal(data, a); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
	}
	return a, nil
}

// Kinds lists the registered kinds in sorted order.
func (r *ActionRegistry) Kinds() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.factories))
	for kind := range r.factories {
		out = append(out, kind)
	}
	sort.Strings(out)
	return out
}
