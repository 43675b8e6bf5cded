// Package events provides the engine's event bus. Listeners register for
// all events or for a single type and receive a handle they can use to
// unsubscribe. A panicking listener is recovered and logged; it never
// prevents delivery to the remaining listeners.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// EventType identifies the kind of state change an event describes.
type EventType string

const (
	EventGameInitialized  EventType = "gameInitialized"
	EventGameStarted      EventType = "gameStarted"
	EventGameStateUpdate  EventType = "gameStateUpdate"
	EventAzothPlaced      EventType = "azothPlaced"
	EventFamiliarSummoned EventType = "familiarSummoned"
	EventSpellCast        EventType = "spellCast"
	EventAttackDeclared   EventType = "attackDeclared"
	EventBlockDeclared    EventType = "blockDeclared"
	EventAbilityActivated EventType = "abilityActivated"
	EventPriorityPassed   EventType = "priorityPassed"
	EventPhaseChanged     EventType = "phaseChanged"
	EventTurnEnded        EventType = "turnEnded"
	EventLifeCardRevealed EventType = "lifeCardRevealed"
	EventGameOver         EventType = "gameOver"
)

// Event is the payload delivered to listeners. Fields beyond Type and
// Timestamp are populated as the event type requires; PlayerID is -1 when
// no single player is the subject.
type Event struct {
	Type      EventType
	ID        string
	PlayerID  int
	CardID    string
	CardName  string
	Phase     string
	Turn      int
	Amount    int
	Winner    int
	Timestamp time.Time
	Metadata  map[string]string
}

// New builds an event of the given type attributed to playerID.
func New(t EventType, playerID int) Event {
	return Event{
		Type:      t,
		ID:        uuid.NewString(),
		PlayerID:  playerID,
		Winner:    -1,
		Timestamp: time.Now(),
		Metadata:  make(map[string]string),
	}
}

// NewCard builds an event about a specific card.
func NewCard(t EventType, playerID int, cardID, cardName string) Event {
	e := New(t, playerID)
	e.CardID = cardID
	e.CardName = cardName
	return e
}

// Listener receives published events.
type Listener func(Event)

// Bus fans events out to registered listeners. Safe for concurrent use.
type Bus struct {
	mu             sync.RWMutex
	logger         *zap.Logger
	listeners      map[int]Listener
	typedListeners map[EventType]map[int]Listener
	typedIndex     map[int]EventType
	nextHandle     int
}

// NewBus creates an empty bus. The logger records recovered listener
// panics and must not be nil.
func NewBus(logger *zap.Logger) *Bus {
	return &Bus{
		logger:         logger,
		listeners:      make(map[int]Listener),
		typedListeners: make(map[EventType]map[int]Listener),
		typedIndex:     make(map[int]EventType),
		nextHandle:     1,
	}
}

// Subscribe registers a listener for every event type and returns its
// handle.
func (b *Bus) Subscribe(fn Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	handle := b.nextHandle
	b.nextHandle++
	b.listeners[handle] = fn
	return handle
}

// SubscribeTyped registers a listener for a single event type.
func (b *Bus) SubscribeTyped(t EventType, fn Listener) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	handle := b.nextHandle
	b.nextHandle++
	if b.typedListeners[t] == nil {
		b.typedListeners[t] = make(map[int]Listener)
	}
	b.typedListeners[t][handle] = fn
	b.typedIndex[handle] = t
	return handle
}

// Unsubscribe removes the listener with the given handle, whether it was
// registered with Subscribe or SubscribeTyped. Unknown handles are ignored.
func (b *Bus) Unsubscribe(handle int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.listeners, handle)
	if t, ok := b.typedIndex[handle]; ok {
		delete(b.typedListeners[t], handle)
		delete(b.typedIndex, handle)
	}
}

// Publish delivers e to all untyped listeners and to listeners of e.Type.
// Each listener runs under a recover so one failure cannot starve the rest.
func (b *Bus) Publish(e Event) {
	b.mu.RLock()
	fns := make([]Listener, 0, len(b.listeners)+len(b.typedListeners[e.Type]))
	for _, fn := range b.listeners {
		fns = append(fns, fn)
	}
	for _, fn := range b.typedListeners[e.Type] {
		fns = append(fns, fn)
	}
	b.mu.RUnlock()

	for _, fn := range fns {
		b.dispatch(fn, e)
	}
}

// PublishBatch delivers a slice of events in order.
func (b *Bus) PublishBatch(events []Event) {
	for _, e := range events {
		b.Publish(e)
	}
}

func (b *Bus) dispatch(fn Listener, e Event) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event listener panicked",
				zap.String("event_type", string(e.Type)),
				zap.Any("panic", r))
		}
	}()
	fn(e)
}
