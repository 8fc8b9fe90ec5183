package state

import (
	"fmt"
	"slices"
	"sort"
)

// World is the committed arena. It changes only when a Txn commits.
type World struct {
	entities  map[Key]*Entity
	order     []Key
	campaigns map[Key]*Campaign
	turn      Turn
	layout    uint64
	seq       uint64
}

// NewWorld creates an empty arena.
func NewWorld() *World {
	return &World{
		entities:  make(map[Key]*Entity),
		campaigns: make(map[Key]*Campaign),
		layout:    1,
	}
}

// Add places a new entity during setup.
func (w *World) Add(e Entity) error {
	if e.Key == "" {
		return fmt.Errorf("entity key is required")
	}
	if _, exists := w.entities[e.Key]; exists {
		return fmt.Errorf("entity %s already exists", e.Key)
	}
	w.entities[e.Key] = e.Clone()
	w.order = append(w.order, e.Key)
	w.layout++
	return nil
}

// SetTurn replaces the turn state during setup.
func (w *World) SetTurn(turn Turn) {
	w.turn = turn.clone()
}

func (w *World) Entity(key Key) (Entity, bool) {
	e, ok := w.entities[key]
	if !ok {
		return Entity{}, false
	}
	return *e.Clone(), true
}

func (w *World) Keys() []Key {
	return slices.Clone(w.order)
}

func (w *World) Turn() Turn {
	return w.turn.clone()
}

func (w *World) Campaign(key Key) (Campaign, bool) {
	c, ok := w.campaigns[key]
	if !ok {
		return Campaign{}, false
	}
	return *c.clone(), true
}

func (w *World) LayoutVersion() uint64 {
	return w.layout
}

// Begin opens a transaction staging changes on top of the world.
func (w *World) Begin() *Txn {
	return &Txn{
		world:     w,
		entities:  make(map[Key]*Entity),
		campaigns: make(map[Key]*Campaign),
		deleted:   make(map[Key]bool),
		seq:       w.seq,
	}
}

// Data is the serialisable form of a World.
type Data struct {
	Entities  []Entity   `json:"entities"`
	Campaigns []Campaign `json:"campaigns,omitempty"`
	Turn      Turn       `json:"turn"`
	Layout    uint64     `json:"layout"`
	Seq       uint64     `json:"seq"`
}

// Export copies the world into its serialisable form.
func (w *World) Export() Data {
	data := Data{
		Entities: make([]Entity, 0, len(w.order)),
		Turn:     w.turn.clone(),
		Layout:   w.layout,
		Seq:      w.seq,
	}
	for _, key := range w.order {
		data.Entities = append(data.Entities, *w.entities[key].Clone())
	}
	keys := make([]Key, 0, len(w.campaigns))
	for key := range w.campaigns {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, key := range keys {
		data.Campaigns = append(data.Campaigns, *w.campaigns[key].clone())
	}
	return data
}

// Import rebuilds a world from exported data.
func Import(data Data) (*World, error) {
	w := NewWorld()
	for _, e := range data.Entities {
		if err := w.Add(e); err != nil {
			return nil, err
		}
	}
	for i := range data.Campaigns {
		c := data.Campaigns[i]
		w.campaigns[c.Key] = c.clone()
	}
	w.turn = data.Turn.clone()
	if data.Layout > 0 {
		w.layout = data.Layout
	}
	w.seq = data.Seq
	return w, nil
}
