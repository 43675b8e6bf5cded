package events

import (
	"testing"
	"time"

	"go.uber.org/zap/zaptest"
)

func TestBusSubscribeTyped(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	summonCount := 0
	azothCount := 0

	handle1 := bus.SubscribeTyped(EventFamiliarSummoned, func(e Event) {
		summonCount++
	})
	handle2 := bus.SubscribeTyped(EventAzothPlaced, func(e Event) {
		azothCount++
	})

	bus.Publish(NewCard(EventFamiliarSummoned, 0, "card1", "Ember Wolf"))
	if summonCount != 1 {
		t.Fatalf("expected summon count 1, got %d", summonCount)
	}
	if azothCount != 0 {
		t.Fatalf("expected azoth count 0, got %d", azothCount)
	}

	bus.Publish(NewCard(EventAzothPlaced, 0, "card2", "Tide Stone"))
	if summonCount != 1 {
		t.Fatalf("expected summon count still 1, got %d", summonCount)
	}
	if azothCount != 1 {
		t.Fatalf("expected azoth count 1, got %d", azothCount)
	}

	bus.Unsubscribe(handle1)
	bus.Publish(NewCard(EventFamiliarSummoned, 1, "card3", "Ash Drake"))
	if summonCount != 1 {
		t.Fatalf("expected summon count still 1 after unsubscribe, got %d", summonCount)
	}

	bus.Unsubscribe(handle2)
	bus.Publish(NewCard(EventAzothPlaced, 1, "card4", "Tide Stone"))
	if azothCount != 1 {
		t.Fatalf("expected azoth count still 1 after unsubscribe, got %d", azothCount)
	}
}

func TestBusSubscribeAll(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	total := 0
	handle := bus.Subscribe(func(e Event) {
		total++
	})

	bus.Publish(New(EventGameStarted, -1))
	bus.Publish(New(EventGameStateUpdate, -1))
	bus.Publish(New(EventTurnEnded, 0))

	if total != 3 {
		t.Fatalf("expected total 3, got %d", total)
	}

	bus.Unsubscribe(handle)
	bus.Publish(New(EventGameStateUpdate, -1))
	if total != 3 {
		t.Fatalf("expected total still 3 after unsubscribe, got %d", total)
	}
}

func TestBusListenerPanicIsolated(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	reached := 0
	bus.Subscribe(func(e Event) {
		panic("listener failure")
	})
	bus.Subscribe(func(e Event) {
		reached++
	})

	bus.Publish(New(EventGameStateUpdate, -1))
	if reached != 1 {
		t.Fatalf("expected healthy listener to run once, got %d", reached)
	}

	// Publishing again must still reach both registration paths.
	bus.Publish(New(EventGameStateUpdate, -1))
	if reached != 2 {
		t.Fatalf("expected healthy listener to run twice, got %d", reached)
	}
}

func TestBusPublishBatch(t *testing.T) {
	bus := NewBus(zaptest.NewLogger(t))

	count := 0
	bus.Subscribe(func(e Event) {
		count++
	})

	bus.PublishBatch([]Event{
		New(EventGameInitialized, -1),
		New(EventGameStarted, -1),
		New(EventGameStateUpdate, -1),
	})
	if count != 3 {
		t.Fatalf("expected count 3 after batch publish, got %d", count)
	}
}

func TestEventTimestamp(t *testing.T) {
	before := time.Now()
	e := New(EventSpellCast, 0)
	after := time.Now()

	if e.Timestamp.Before(before) || e.Timestamp.After(after) {
		t.Fatal("event timestamp should fall between before and after")
	}
	if e.Winner != -1 {
		t.Fatalf("expected winner -1 on a fresh event, got %d", e.Winner)
	}
	if e.ID == "" {
		t.Fatal("expected a non-empty event ID")
	}
}
