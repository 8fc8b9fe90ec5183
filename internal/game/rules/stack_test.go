package rules

import "testing"

func TestStackManagerPushPop(t *testing.T) {
	sm := NewStackManager()

	sm.Push(StackItem{ID: "first", Kind: StackItemAction, Frame: &Frame{ID: "first"}})
	sm.Push(StackItem{ID: "second", Kind: StackItemAtEnd, Frame: &Frame{ID: "second"}})

	item, err := sm.Pop()
	if err != nil {
		t.Fatalf("unexpected error popping top: %v", err)
	}
	if item.ID != "second" {
		t.Fatalf("expected LIFO order (second), got %s", item.ID)
	}
	if item.Kind != StackItemAtEnd {
		t.Fatalf("expected at-end item, got %s", item.Kind)
	}

	item, err = sm.Pop()
	if err != nil {
		t.Fatalf("unexpected error popping second item: %v", err)
	}
	if item.ID != "first" {
		t.Fatalf("expected remaining item to be first, got %s", item.ID)
	}

	if !sm.IsEmpty() {
		t.Fatalf("expected stack to be empty")
	}
	if _, err := sm.Pop(); err == nil {
		t.Fatalf("expected error popping empty stack")
	}
}

func TestStackManagerRemove(t *testing.T) {
	sm := NewStackManager()

	sm.Push(StackItem{ID: "first"})
	sm.Push(StackItem{ID: "second"})
	sm.Push(StackItem{ID: "third"})

	item, ok := sm.Remove("second")
	if !ok {
		t.Fatalf("expected to remove existing item")
	}
	if item.ID != "second" {
		t.Fatalf("expected removed ID second, got %s", item.ID)
	}

	top, _ := sm.Pop()
	if top.ID != "third" {
		t.Fatalf("expected third to remain on top, got %s", top.ID)
	}
}

func TestStackManagerReplace(t *testing.T) {
	sm := NewStackManager()
	sm.Push(StackItem{ID: "old"})

	items := []StackItem{{ID: "a"}, {ID: "b"}}
	sm.Replace(items)
	items[1].ID = "mutated"

	if sm.Len() != 2 {
		t.Fatalf("expected 2 items, got %d", sm.Len())
	}
	top, _ := sm.Peek()
	if top.ID != "b" {
		t.Fatalf("expected replace to copy items, top is %s", top.ID)
	}
}
