package rules

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/thraizz/oath-server-go/internal/game/ledger"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// ActionRecord is the serialisable form of an action. Target holds the
// wrapped action of a modifier choice.
type ActionRecord struct {
	Kind   string          `json:"kind"`
	State  json.RawMessage `json:"state,omitempty"`
	Target *ActionRecord   `json:"target,omitempty"`
}

// ModifierRecord is the serialisable form of a chosen modifier.
type ModifierRecord struct {
	Power     string      `json:"power"`
	Source    state.Key   `json:"source"`
	Activator state.Key   `json:"activator"`
	Cost      ledger.Cost `json:"cost"`
	MustUse   bool        `json:"must_use,omitempty"`
}

// FrameRecord is the serialisable form of a stack item. Open frames are
// recorded as started and started again on restore, rebuilding their
// selects from the restored state.
type FrameRecord struct {
	ID        string           `json:"id"`
	Kind      StackItemKind    `json:"kind"`
	Action    ActionRecord     `json:"action"`
	Modifiers []ModifierRecord `json:"modifiers,omitempty"`
	Started   bool             `json:"started,omitempty"`
}

// EncodeAction records an action.
func EncodeAction(a Action) (ActionRecord, error) {
	if c, ok := a.(*ChooseModifiers); ok {
		target, err := EncodeAction(c.Target)
		if err != nil {
			return ActionRecord{}, err
		}
		return ActionRecord{Kind: KindChooseModifiers, Target: &target}, nil
	}
	data, err := json.Marshal(a)
	if err != nil {
		return ActionRecord{}, fmt.Errorf("encode %s: %w", a.Kind(), err)
	}
	return ActionRecord{Kind: a.Kind(), State: data}, nil
}

// DecodeAction rebuilds an action from its record.
func (g *Game) DecodeAction(r ActionRecord) (Action, error) {
	if r.Kind == KindChooseModifiers {
		if r.Target == nil {
			return nil, fmt.Errorf("modifier choice without a target")
		}
		target, err := g.DecodeAction(*r.Target)
		if err != nil {
			return nil, err
		}
		return &ChooseModifiers{Target: target}, nil
	}
	return g.Actions.Decode(r.Kind, r.State)
}

// Records describes the stack, bottom first.
func (g *Game) Records() ([]FrameRecord, error) {
	items := g.Stack.List()
	out := make([]FrameRecord, 0, len(items))
	for _, item := range items {
		action, err := EncodeAction(item.Frame.Action)
		if err != nil {
			return nil, err
		}
		rec := FrameRecord{
			ID:      item.ID,
			Kind:    item.Kind,
			Action:  action,
			Started: item.Kind == StackItemAction && item.Frame.started,
		}
		for _, m := range item.Frame.Modifiers {
			rec.Modifiers = append(rec.Modifiers, m.record())
		}
		out = append(out, rec)
	}
	return out, nil
}

// RestoreStack replaces the stack with decoded records and starts the top
// action again if it was waiting for input.
func (g *Game) RestoreStack(records []FrameRecord) error {
	items := make([]StackItem, 0, len(records))
	for _, rec := range records {
		a, err := g.DecodeAction(rec.Action)
		if err != nil {
			return err
		}
		f := &Frame{ID: rec.ID, Action: a}
		if rec.Kind == StackItemAtEnd {
			f.ID = strings.TrimSuffix(rec.ID, atEndSuffix)
		}
		for _, mr := range rec.Modifiers {
			p, ok := g.Catalog[mr.Power]
			if !ok {
				return fmt.Errorf("unknown power %q", mr.Power)
			}
			m := newModifier(g, p, mr.Source, mr.Activator)
			m.Cost = mr.Cost
			m.MustUse = mr.MustUse
			m.Action = a
			f.Modifiers = append(f.Modifiers, m)
		}
		items = append(items, StackItem{ID: rec.ID, Kind: rec.Kind, Frame: f})
	}
	g.Stack.Replace(items)

	if len(records) == 0 || !records[len(records)-1].Started {
		return nil
	}
	top := items[len(items)-1]
	return g.startFrame(top.Frame, false)
}
