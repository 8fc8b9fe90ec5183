package rules

import (
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// SelectView describes one open slot for a client.
type SelectView struct {
	Label   string   `json:"label"`
	Min     int      `json:"min"`
	Max     int      `json:"max"`
	Choices []string `json:"choices"`
}

// OpenView describes the action waiting for input. It is all a transport
// needs to ask the player.
type OpenView struct {
	ActionID string                `json:"action_id"`
	Kind     string                `json:"kind"`
	Message  string                `json:"message"`
	Player   state.Key             `json:"player"`
	Selects  map[string]SelectView `json:"selects"`
}

// Peek returns the open action, or nil when nothing waits for input.
// It changes nothing.
func (g *Game) Peek() *OpenView {
	item, ok := g.Stack.Peek()
	if !ok || item.Kind != StackItemAction {
		return nil
	}
	f := item.Frame
	if !f.started || len(f.open) == 0 {
		return nil
	}
	msg := f.Action.Message()
	if msg == "" {
		msg = f.Action.Kind()
	}
	view := &OpenView{
		ActionID: f.ID,
		Kind:     f.Action.Kind(),
		Message:  msg,
		Player:   f.Action.Player(),
		Selects:  make(map[string]SelectView, len(f.open)),
	}
	for _, name := range f.open {
		s, _ := f.Select(name)
		view.Selects[name] = SelectView{
			Label:   s.Label,
			Min:     s.Min,
			Max:     s.Max,
			Choices: s.Labels(),
		}
	}
	return view
}
