package state

import (
	"errors"
	"fmt"
)

// ErrTxnClosed is returned when a committed or discarded Txn is reused.
var ErrTxnClosed = errors.New("transaction already closed")

// Txn stages writes on top of a World. Reads see staged values first. The
// world is untouched until Commit; Discard drops everything.
type Txn struct {
	world     *World
	entities  map[Key]*Entity
	campaigns map[Key]*Campaign
	deleted   map[Key]bool
	turn      *Turn
	seq       uint64
	closed    bool
}

var _ Writer = (*Txn)(nil)

func (t *Txn) Entity(key Key) (Entity, bool) {
	if e, ok := t.entities[key]; ok {
		return *e.Clone(), true
	}
	return t.world.Entity(key)
}

func (t *Txn) Keys() []Key {
	return t.world.Keys()
}

func (t *Txn) Turn() Turn {
	if t.turn != nil {
		return t.turn.clone()
	}
	return t.world.Turn()
}

func (t *Txn) Campaign(key Key) (Campaign, bool) {
	if t.deleted[key] {
		return Campaign{}, false
	}
	if c, ok := t.campaigns[key]; ok {
		return *c.clone(), true
	}
	return t.world.Campaign(key)
}

// LayoutVersion returns the world's version while no staged write changed
// the layout, and zero otherwise.
func (t *Txn) LayoutVersion() uint64 {
	if t.layoutChanged() {
		return 0
	}
	return t.world.layout
}

func (t *Txn) layoutChanged() bool {
	for key, staged := range t.entities {
		if !sameLayout(staged, t.world.entities[key]) {
			return true
		}
	}
	return false
}

func (t *Txn) Mutable(key Key) (*Entity, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	if e, ok := t.entities[key]; ok {
		return e, nil
	}
	original, ok := t.world.entities[key]
	if !ok {
		return nil, fmt.Errorf("entity %s not found", key)
	}
	staged := original.Clone()
	t.entities[key] = staged
	return staged, nil
}

func (t *Txn) SetTurn(turn Turn) {
	staged := turn.clone()
	t.turn = &staged
}

func (t *Txn) MutableCampaign(key Key) (*Campaign, error) {
	if t.closed {
		return nil, ErrTxnClosed
	}
	if t.deleted[key] {
		return nil, fmt.Errorf("campaign %s not found", key)
	}
	if c, ok := t.campaigns[key]; ok {
		return c, nil
	}
	original, ok := t.world.campaigns[key]
	if !ok {
		return nil, fmt.Errorf("campaign %s not found", key)
	}
	staged := original.clone()
	t.campaigns[key] = staged
	return staged, nil
}

func (t *Txn) PutCampaign(c Campaign) {
	delete(t.deleted, c.Key)
	t.campaigns[c.Key] = c.clone()
}

func (t *Txn) DeleteCampaign(key Key) {
	delete(t.campaigns, key)
	t.deleted[key] = true
}

func (t *Txn) NextKey(prefix string) Key {
	t.seq++
	return Key(fmt.Sprintf("%s:%d", prefix, t.seq))
}

// Dirty reports whether anything has been staged.
func (t *Txn) Dirty() bool {
	return len(t.entities) > 0 || len(t.campaigns) > 0 || len(t.deleted) > 0 || t.turn != nil || t.seq != t.world.seq
}

// Changed lists the keys of staged entities, in arena order.
func (t *Txn) Changed() []Key {
	var out []Key
	for _, key := range t.world.order {
		if _, ok := t.entities[key]; ok {
			out = append(out, key)
		}
	}
	return out
}

// Commit writes every staged change into the world.
func (t *Txn) Commit() error {
	if t.closed {
		return ErrTxnClosed
	}
	t.closed = true

	w := t.world
	if t.layoutChanged() {
		w.layout++
	}
	for key, e := range t.entities {
		w.entities[key] = e
	}
	for key := range t.deleted {
		delete(w.campaigns, key)
	}
	for key, c := range t.campaigns {
		w.campaigns[key] = c
	}
	if t.turn != nil {
		w.turn = *t.turn
	}
	w.seq = t.seq
	return nil
}

// Discard drops every staged change.
func (t *Txn) Discard() {
	t.closed = true
	t.entities = nil
	t.campaigns = nil
	t.deleted = nil
	t.turn = nil
}

// Closed reports whether the transaction was committed or discarded.
func (t *Txn) Closed() bool {
	return t.closed
}
