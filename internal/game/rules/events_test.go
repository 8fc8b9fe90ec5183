package rules

import "testing"

func TestEventBusSubscribeTyped(t *testing.T) {
	bus := NewEventBus()

	resolved := 0
	applied := 0

	handle1 := bus.SubscribeTyped(EventActionResolved, func(e Event) {
		resolved++
	})
	handle2 := bus.SubscribeTyped(EventEffectApplied, func(e Event) {
		applied++
	})

	bus.Publish(NewEvent(EventActionResolved, "muster", "player:1"))
	if resolved != 1 {
		t.Fatalf("expected resolved count 1, got %d", resolved)
	}
	if applied != 0 {
		t.Fatalf("expected applied count 0, got %d", applied)
	}

	bus.Unsubscribe(handle1)
	bus.Publish(NewEvent(EventActionResolved, "travel", "player:1"))
	if resolved != 1 {
		t.Fatalf("expected resolved count still 1 after unsubscribe, got %d", resolved)
	}

	bus.Publish(NewEvent(EventEffectApplied, "move_resources", "player:1"))
	if applied != 1 {
		t.Fatalf("expected applied count 1, got %d", applied)
	}
	bus.Unsubscribe(handle2)
	bus.Publish(NewEvent(EventEffectApplied, "move_resources", "player:1"))
	if applied != 1 {
		t.Fatalf("expected applied count still 1 after unsubscribe, got %d", applied)
	}
}

func TestEventBusSubscribeAll(t *testing.T) {
	bus := NewEventBus()

	count := 0
	handle := bus.Subscribe(func(e Event) {
		count++
	})

	bus.PublishBatch([]Event{
		NewEvent(EventActionStarted, "campaign", "player:1"),
		NewEvent(EventEffectApplied, "roll_dice", "player:1"),
		NewEvent(EventTurnChanged, "end_turn", "player:2"),
	})
	if count != 3 {
		t.Fatalf("expected all event count 3, got %d", count)
	}

	bus.Unsubscribe(handle)
	bus.Publish(NewEvent(EventGameOver, "", ""))
	if count != 3 {
		t.Fatalf("expected count to stay 3 after unsubscribe, got %d", count)
	}
}

func TestEventBusIgnoresNilListeners(t *testing.T) {
	bus := NewEventBus()
	if h := bus.Subscribe(nil); h != -1 {
		t.Fatalf("expected -1 handle for nil listener, got %d", h)
	}
	if h := bus.SubscribeTyped(EventActionStarted, nil); h != -1 {
		t.Fatalf("expected -1 handle for nil typed listener, got %d", h)
	}
}
