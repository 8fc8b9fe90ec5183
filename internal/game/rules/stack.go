package rules

import (
	"errors"
	"sync"

	"github.com/thraizz/oath-server-go/internal/game/selects"
	"github.com/thraizz/oath-server-go/internal/game/state"
)

// StackItemKind describes the type of object on the stack.
type StackItemKind string

const (
	// StackItemAction is an action waiting to start or for its parameters.
	StackItemAction StackItemKind = "ACTION"
	// StackItemAtEnd holds the at-end hooks of a resolved action.
	StackItemAtEnd StackItemKind = "AT_END"
)

// Frame is an action on the stack with the modifiers bound to it and the
// state of its parameter collection.
type Frame struct {
	ID        string
	Action    Action
	Modifiers []*Modifier

	started bool
	selects []*selects.Select
	params  selects.Params
	open    []string
	mask    *state.Mask
}

// Started reports whether the frame's selects were built.
func (f *Frame) Started() bool { return f.started }

// Open lists the slots waiting for a submission.
func (f *Frame) Open() []string {
	return append([]string(nil), f.open...)
}

// Select returns a slot of the frame by name.
func (f *Frame) Select(name string) (*selects.Select, bool) {
	for _, s := range f.selects {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// StackItem is a single entry of the stack.
type StackItem struct {
	ID    string
	Kind  StackItemKind
	Frame *Frame
}

// StackManager holds pending items, topmost last.
type StackManager struct {
	mu    sync.Mutex
	items []StackItem
}

// NewStackManager creates a new stack manager.
func NewStackManager() *StackManager {
	return &StackManager{
		items: make([]StackItem, 0, 16),
	}
}

// Push adds an item to the top of the stack.
func (sm *StackManager) Push(item StackItem) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.items = append(sm.items, item)
}

// Pop removes the top item from the stack.
func (sm *StackManager) Pop() (StackItem, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if len(sm.items) == 0 {
		return StackItem{}, errors.New("stack empty")
	}

	idx := len(sm.items) - 1
	item := sm.items[idx]
	sm.items = sm.items[:idx]
	return item, nil
}

// Remove deletes an item from anywhere in the stack by ID.
func (sm *StackManager) Remove(id string) (StackItem, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	for idx := len(sm.items) - 1; idx >= 0; idx-- {
		if sm.items[idx].ID == id {
			item := sm.items[idx]
			sm.items = append(sm.items[:idx], sm.items[idx+1:]...)
			return item, true
		}
	}
	return StackItem{}, false
}

// Peek returns the top item without removing it.
func (sm *StackManager) Peek() (StackItem, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	if len(sm.items) == 0 {
		return StackItem{}, false
	}
	return sm.items[len(sm.items)-1], true
}

// List returns a copy of all stack items (topmost last).
func (sm *StackManager) List() []StackItem {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	cpy := make([]StackItem, len(sm.items))
	copy(cpy, sm.items)
	return cpy
}

// Replace swaps the whole content of the stack.
func (sm *StackManager) Replace(items []StackItem) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.items = append(make([]StackItem, 0, len(items)), items...)
}

// Len returns the number of items.
func (sm *StackManager) Len() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return len(sm.items)
}

// IsEmpty returns whether the stack is empty.
func (sm *StackManager) IsEmpty() bool {
	return sm.Len() == 0
}
