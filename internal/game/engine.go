package game

import (
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/konivrer/konivrer-server-go/internal/game/events"
)

// nowFunc stamps log entries and state timestamps; swapped in tests.
var nowFunc = time.Now

// Options configures a new match.
type Options struct {
	// Seed drives deck shuffling. Zero means seed from the clock.
	Seed int64
	// HandSize is the opening hand size. Defaults to 7.
	HandSize int
	// LifeCardCount is how many cards are set aside as life cards.
	// Defaults to 4.
	LifeCardCount int
}

const (
	defaultHandSize      = 7
	defaultLifeCardCount = 4
)

// PlayerSetup is one seat's name and deck list as supplied by a deck
// provider. The engine copies the deck; the caller's slice is not retained.
type PlayerSetup struct {
	Name string
	Deck []*Card
}

// Engine owns one match's GameState and is its only mutation path. The AI
// and network layers read state snapshots and submit actions through
// ProcessAction like any other caller.
//
// Events raised during an action are published after the engine mutex is
// released, so a listener may call back into the engine from another
// goroutine but must never do so synchronously from inside a callback.
type Engine struct {
	logger   *zap.Logger
	bus      *events.Bus
	resolver RulesResolver
	rng      *rand.Rand

	mu    sync.Mutex
	state *GameState
}

// NewEngine creates an engine with no game yet. A nil resolver falls back
// to BasicResolver.
func NewEngine(logger *zap.Logger, resolver RulesResolver) *Engine {
	if resolver == nil {
		resolver = BasicResolver{}
	}
	return &Engine{
		logger:   logger,
		bus:      events.NewBus(logger),
		resolver: resolver,
	}
}

// Bus exposes the engine's event bus for subscription.
func (e *Engine) Bus() *events.Bus { return e.bus }

// State returns the engine-owned state. Callers must treat it as
// read-only; concurrent readers should prefer Snapshot.
func (e *Engine) State() *GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Snapshot returns a deep copy of the current state, or nil before
// InitializeGame.
func (e *Engine) Snapshot() *GameState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil
	}
	return e.state.Clone()
}

// InitializeGame builds the initial state for exactly two players: both
// decks are shuffled (Fisher-Yates, seeded), life cards are set aside and
// opening hands dealt from the deck tail.
func (e *Engine) InitializeGame(players []PlayerSetup, opts Options) (*GameState, error) {
	e.mu.Lock()

	if e.state != nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("initialize: %w", ErrAlreadyStarted)
	}
	if len(players) != 2 {
		e.mu.Unlock()
		return nil, fmt.Errorf("initialize with %d players: %w", len(players), ErrInvalidPlayerCount)
	}

	handSize := opts.HandSize
	if handSize <= 0 {
		handSize = defaultHandSize
	}
	lifeCount := opts.LifeCardCount
	if lifeCount <= 0 {
		lifeCount = defaultLifeCardCount
	}
	for _, setup := range players {
		if len(setup.Deck) < handSize+lifeCount {
			e.mu.Unlock()
			return nil, fmt.Errorf("deck for %s has %d cards, need %d: %w",
				setup.Name, len(setup.Deck), handSize+lifeCount, ErrDeckTooSmall)
		}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = nowFunc().UnixNano()
	}
	e.rng = rand.New(rand.NewSource(seed))

	now := nowFunc()
	g := &GameState{
		GameID:         uuid.NewString(),
		Seed:           seed,
		Phase:          PhaseSetup,
		Turn:           1,
		ActivePlayer:   0,
		PriorityPlayer: 0,
		Winner:         -1,
		LastPass:       -1,
		CreatedAt:      now,
		LastActionAt:   now,
	}

	for i, setup := range players {
		p := &Player{Index: i, Name: setup.Name}
		p.Deck = cloneCards(setup.Deck)
		e.shuffle(p.Deck)
		for n := 0; n < lifeCount; n++ {
			p.LifeCards = append(p.LifeCards, popDeck(p))
		}
		for n := 0; n < handSize; n++ {
			p.Hand = append(p.Hand, popDeck(p))
		}
		g.Players[i] = p
	}
	addLog(g, "game", fmt.Sprintf("Game initialized: %s vs %s", players[0].Name, players[1].Name))
	e.state = g

	e.logger.Info("game initialized",
		zap.String("game_id", g.GameID),
		zap.Int64("seed", seed),
		zap.String("player0", players[0].Name),
		zap.String("player1", players[1].Name))

	e.mu.Unlock()
	e.bus.Publish(events.New(events.EventGameInitialized, -1))
	return g, nil
}

// StartGame moves the match from setup into the first main phase.
func (e *Engine) StartGame() error {
	e.mu.Lock()
	if e.state == nil {
		e.mu.Unlock()
		return fmt.Errorf("start: %w", ErrGameNotInitialized)
	}
	if e.state.Phase != PhaseSetup {
		e.mu.Unlock()
		return fmt.Errorf("start: %w", ErrAlreadyStarted)
	}
	e.state.Phase = PhaseMain
	e.state.LastActionAt = nowFunc()
	addLog(e.state, "game", "Game started")
	e.logger.Info("game started", zap.String("game_id", e.state.GameID))
	e.mu.Unlock()

	e.bus.Publish(events.New(events.EventGameStarted, -1))
	e.bus.Publish(events.New(events.EventGameStateUpdate, -1))
	return nil
}

// ProcessAction validates and applies one player action. Validation runs
// before any mutation: on error the state is untouched. On success the
// per-action events plus a trailing gameStateUpdate are published.
func (e *Engine) ProcessAction(playerID int, action ActionType, data ActionData) (*GameState, error) {
	e.mu.Lock()

	g := e.state
	if g == nil {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", action, ErrGameNotInitialized)
	}
	if g.Phase == PhaseEnded {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s: %w", action, ErrGameOver)
	}
	if g.Phase == PhaseSetup {
		e.mu.Unlock()
		return nil, fmt.Errorf("%s before start: %w", action, ErrWrongPhase)
	}
	if playerID != 0 && playerID != 1 {
		e.mu.Unlock()
		return nil, fmt.Errorf("player %d: %w", playerID, ErrInvalidPlayer)
	}

	var evs []events.Event
	var err error
	switch action {
	case ActionPlaceAzoth:
		evs, err = e.placeAzoth(g, playerID, data)
	case ActionSummonFamiliar:
		evs, err = e.summonFamiliar(g, playerID, data)
	case ActionCastSpell:
		evs, err = e.castSpell(g, playerID, data)
	case ActionDeclareAttack:
		evs, err = e.declareAttack(g, playerID, data)
	case ActionDeclareBlock:
		evs, err = e.declareBlock(g, playerID, data)
	case ActionActivateAbility:
		evs, err = e.activateAbility(g, playerID, data)
	case ActionPassPriority:
		evs, err = e.passPriority(g, playerID)
	case ActionEndPhase:
		evs, err = e.endPhase(g, playerID)
	case ActionEndTurn:
		evs, err = e.endTurn(g, playerID)
	default:
		err = fmt.Errorf("%q: %w", action, ErrUnknownAction)
	}

	if err != nil {
		e.mu.Unlock()
		e.logger.Debug("action rejected",
			zap.Int("player", playerID),
			zap.String("action", string(action)),
			zap.Error(err))
		return nil, err
	}

	g.LastActionAt = nowFunc()
	e.logger.Debug("action applied",
		zap.Int("player", playerID),
		zap.String("action", string(action)),
		zap.String("phase", g.Phase.String()),
		zap.Int("turn", g.Turn))
	e.mu.Unlock()

	e.bus.PublishBatch(evs)
	e.bus.Publish(events.New(events.EventGameStateUpdate, -1))
	return g, nil
}

func (e *Engine) placeAzoth(g *GameState, playerID int, data ActionData) ([]events.Event, error) {
	if g.Phase != PhaseMain {
		return nil, fmt.Errorf("placeAzoth during %s: %w", g.Phase, ErrWrongPhase)
	}
	p := g.Players[playerID]
	card, _ := g.FindCard(playerID, ZoneHand, data.CardID)
	if card == nil {
		return nil, fmt.Errorf("placeAzoth %q: %w", data.CardID, ErrCardNotFound)
	}

	moveCard(p, ZoneHand, ZoneAzothRow, card.ID)
	card.Tapped = false
	p.AzothAvailable++
	p.AzothPlacedThisTurn = true
	addLog(g, "action", fmt.Sprintf("%s placed %s as Azoth", p.Name, card.Name))

	ev := events.NewCard(events.EventAzothPlaced, playerID, card.ID, card.Name)
	ev.Amount = p.AzothAvailable
	return []events.Event{ev}, nil
}

func (e *Engine) summonFamiliar(g *GameState, playerID int, data ActionData) ([]events.Event, error) {
	if g.Phase != PhaseMain {
		return nil, fmt.Errorf("summonFamiliar during %s: %w", g.Phase, ErrWrongPhase)
	}
	p := g.Players[playerID]
	card, _ := g.FindCard(playerID, ZoneHand, data.CardID)
	if card == nil {
		return nil, fmt.Errorf("summonFamiliar %q: %w", data.CardID, ErrCardNotFound)
	}
	if card.Type != CardFamiliar {
		return nil, fmt.Errorf("summonFamiliar on %s %q: %w", card.Type, card.Name, ErrInvalidTarget)
	}
	if card.Cost > p.AzothAvailable {
		return nil, fmt.Errorf("summonFamiliar %q costs %d, have %d: %w",
			card.Name, card.Cost, p.AzothAvailable, ErrInsufficientAzoth)
	}

	payAzoth(p, card.Cost)
	moveCard(p, ZoneHand, ZoneField, card.ID)
	card.SummoningSick = true
	card.Tapped = false
	p.CreaturesSummoned++
	addLog(g, "action", fmt.Sprintf("%s summoned %s", p.Name, card.Name))

	ev := events.NewCard(events.EventFamiliarSummoned, playerID, card.ID, card.Name)
	ev.Amount = card.Cost
	return []events.Event{ev}, nil
}

func (e *Engine) castSpell(g *GameState, playerID int, data ActionData) ([]events.Event, error) {
	if g.Phase != PhaseMain {
		return nil, fmt.Errorf("castSpell during %s: %w", g.Phase, ErrWrongPhase)
	}
	p := g.Players[playerID]
	card, _ := g.FindCard(playerID, ZoneHand, data.CardID)
	if card == nil {
		return nil, fmt.Errorf("castSpell %q: %w", data.CardID, ErrCardNotFound)
	}
	if card.Type != CardSpell {
		return nil, fmt.Errorf("castSpell on %s %q: %w", card.Type, card.Name, ErrInvalidTarget)
	}
	if card.Cost > p.AzothAvailable {
		return nil, fmt.Errorf("castSpell %q costs %d, have %d: %w",
			card.Name, card.Cost, p.AzothAvailable, ErrInsufficientAzoth)
	}

	payAzoth(p, card.Cost)
	// The spell passes over the stack, resolves, then returns to the
	// bottom of its owner's deck.
	removeFromZone(p, ZoneHand, card.ID)
	g.Stack = append(g.Stack, &StackItem{Card: card, Controller: playerID, Kind: "spell"})
	p.SpellsCast++

	evs := e.resolver.ResolveSpell(g, playerID, card)
	g.Stack = g.Stack[:len(g.Stack)-1]
	p.Deck = append([]*Card{card}, p.Deck...)
	addLog(g, "action", fmt.Sprintf("%s cast %s", p.Name, card.Name))

	ev := events.NewCard(events.EventSpellCast, playerID, card.ID, card.Name)
	ev.Amount = card.Cost
	return append(evs, ev), nil
}

func (e *Engine) declareAttack(g *GameState, playerID int, data ActionData) ([]events.Event, error) {
	if g.Phase != PhaseCombat {
		return nil, fmt.Errorf("declareAttack during %s: %w", g.Phase, ErrWrongPhase)
	}
	if playerID != g.ActivePlayer {
		return nil, fmt.Errorf("declareAttack by non-active player %d: %w", playerID, ErrInvalidPlayer)
	}
	if len(data.Attackers) == 0 {
		return nil, fmt.Errorf("declareAttack with no attackers: %w", ErrInvalidTarget)
	}

	p := g.Players[playerID]
	attackers := make([]*Card, 0, len(data.Attackers))
	for _, id := range data.Attackers {
		card, _ := g.FindCard(playerID, ZoneField, id)
		if card == nil {
			return nil, fmt.Errorf("declareAttack %q: %w", id, ErrCardNotFound)
		}
		if card.Tapped || card.SummoningSick {
			return nil, fmt.Errorf("declareAttack with %q (tapped or summoning sick): %w",
				card.Name, ErrInvalidTarget)
		}
		attackers = append(attackers, card)
	}

	for _, card := range attackers {
		card.Tapped = true
		g.Attackers = append(g.Attackers, card.ID)
	}
	g.Phase = PhaseCombatBlocks
	g.PriorityPlayer = 1 - playerID
	addLog(g, "action", fmt.Sprintf("%s attacks with %d familiar(s)", p.Name, len(attackers)))

	ev := events.New(events.EventAttackDeclared, playerID)
	ev.Amount = len(attackers)
	return []events.Event{ev}, nil
}

func (e *Engine) declareBlock(g *GameState, playerID int, data ActionData) ([]events.Event, error) {
	if g.Phase != PhaseCombatBlocks {
		return nil, fmt.Errorf("declareBlock during %s: %w", g.Phase, ErrWrongPhase)
	}
	defender := 1 - g.ActivePlayer
	if playerID != defender {
		return nil, fmt.Errorf("declareBlock by non-defending player %d: %w", playerID, ErrInvalidPlayer)
	}

	attacking := make(map[string]bool, len(g.Attackers))
	for _, id := range g.Attackers {
		attacking[id] = true
	}
	assigned := make(map[string]bool, len(data.Blocks))
	for _, b := range data.Blocks {
		blocker, _ := g.FindCard(defender, ZoneField, b.BlockerID)
		if blocker == nil {
			return nil, fmt.Errorf("declareBlock blocker %q: %w", b.BlockerID, ErrCardNotFound)
		}
		if blocker.Tapped {
			return nil, fmt.Errorf("declareBlock with tapped %q: %w", blocker.Name, ErrInvalidTarget)
		}
		if !attacking[b.AttackerID] {
			return nil, fmt.Errorf("declareBlock against non-attacker %q: %w", b.AttackerID, ErrInvalidTarget)
		}
		// One blocker intercepts one attacker.
		if assigned[b.BlockerID] {
			return nil, fmt.Errorf("declareBlock with %q assigned twice: %w", blocker.Name, ErrInvalidTarget)
		}
		assigned[b.BlockerID] = true
	}

	addLog(g, "action", fmt.Sprintf("%s declares %d blocker(s)", g.Players[defender].Name, len(data.Blocks)))
	evs := e.resolveCombat(g, data.Blocks)

	ev := events.New(events.EventBlockDeclared, playerID)
	ev.Amount = len(data.Blocks)
	return append([]events.Event{ev}, evs...), nil
}

// resolveCombat hands the declared attack to the rules resolver and moves
// the game to post-combat unless the resolver ended it.
func (e *Engine) resolveCombat(g *GameState, blocks []Block) []events.Event {
	attackers := make([]*Card, 0, len(g.Attackers))
	for _, id := range g.Attackers {
		if card, _ := g.FindCard(g.ActivePlayer, ZoneField, id); card != nil {
			attackers = append(attackers, card)
		}
	}
	evs := e.resolver.ResolveCombat(g, attackers, blocks)
	g.Attackers = nil
	if g.Phase != PhaseEnded {
		g.Phase = PhasePostCombat
		g.PriorityPlayer = g.ActivePlayer
	}
	return evs
}

func (e *Engine) activateAbility(g *GameState, playerID int, data ActionData) ([]events.Event, error) {
	p := g.Players[playerID]
	card, _ := g.FindCard(playerID, ZoneField, data.CardID)
	if card == nil {
		return nil, fmt.Errorf("activateAbility %q: %w", data.CardID, ErrCardNotFound)
	}
	if data.AbilityIndex < 0 || data.AbilityIndex >= len(card.Abilities) {
		return nil, fmt.Errorf("activateAbility %q index %d: %w", card.Name, data.AbilityIndex, ErrInvalidTarget)
	}

	ability := card.Abilities[data.AbilityIndex]
	evs := e.resolver.ResolveAbility(g, playerID, card, ability)
	addLog(g, "action", fmt.Sprintf("%s activated %s on %s", p.Name, ability, card.Name))

	ev := events.NewCard(events.EventAbilityActivated, playerID, card.ID, card.Name)
	return append(evs, ev), nil
}

func (e *Engine) passPriority(g *GameState, playerID int) ([]events.Event, error) {
	g.PriorityPlayer = 1 - playerID
	ev := events.New(events.EventPriorityPassed, playerID)

	// Both players passing in succession ends the phase.
	if g.LastPass == 1-playerID {
		g.LastPass = -1
		evs, err := e.advancePhase(g)
		if err != nil {
			return nil, err
		}
		return append([]events.Event{ev}, evs...), nil
	}
	g.LastPass = playerID
	return []events.Event{ev}, nil
}

func (e *Engine) endPhase(g *GameState, playerID int) ([]events.Event, error) {
	g.LastPass = -1
	return e.advancePhase(g)
}

// advancePhase moves main -> combat -> post-combat -> next turn. Ending
// the phase while blocks are pending resolves the combat unblocked.
func (e *Engine) advancePhase(g *GameState) ([]events.Event, error) {
	switch g.Phase {
	case PhaseMain:
		g.Phase = PhaseCombat
	case PhaseCombat:
		g.Phase = PhasePostCombat
	case PhaseCombatBlocks:
		evs := e.resolveCombat(g, nil)
		if g.Phase == PhaseEnded {
			return evs, nil
		}
		ev := events.New(events.EventPhaseChanged, -1)
		ev.Phase = g.Phase.String()
		return append(evs, ev), nil
	case PhasePostCombat:
		return e.endTurn(g, g.ActivePlayer)
	default:
		return nil, fmt.Errorf("endPhase during %s: %w", g.Phase, ErrWrongPhase)
	}
	g.PriorityPlayer = g.ActivePlayer
	addLog(g, "phase", fmt.Sprintf("Phase: %s", g.Phase))

	ev := events.New(events.EventPhaseChanged, -1)
	ev.Phase = g.Phase.String()
	return []events.Event{ev}, nil
}

// endTurn refreshes the departing player, hands the turn to the opponent
// and returns to the main phase. The turn counter advances when the turn
// wraps back to player 0.
func (e *Engine) endTurn(g *GameState, playerID int) ([]events.Event, error) {
	if playerID != g.ActivePlayer {
		return nil, fmt.Errorf("endTurn by non-active player %d: %w", playerID, ErrInvalidPlayer)
	}
	refreshPlayer(g.Players[g.ActivePlayer])
	g.Attackers = nil
	g.LastPass = -1

	g.ActivePlayer = 1 - g.ActivePlayer
	if g.ActivePlayer == 0 {
		g.Turn++
	}
	g.Phase = PhaseMain
	g.PriorityPlayer = g.ActivePlayer
	addLog(g, "phase", fmt.Sprintf("Turn %d: %s", g.Turn, g.Players[g.ActivePlayer].Name))

	// The incoming player draws for the turn.
	next := g.Players[g.ActivePlayer]
	if len(next.Deck) > 0 {
		card := popDeck(next)
		next.Hand = append(next.Hand, card)
		next.CardsDrawn++
		addLog(g, "draw", fmt.Sprintf("%s drew a card", next.Name))
	}

	ev := events.New(events.EventTurnEnded, playerID)
	ev.Turn = g.Turn
	return []events.Event{ev}, nil
}

// refreshPlayer untaps the player's cards and resets per-turn tracking.
func refreshPlayer(p *Player) {
	for _, c := range p.AzothRow {
		c.Tapped = false
	}
	for _, c := range p.Field {
		c.Tapped = false
		c.SummoningSick = false
	}
	p.AzothAvailable = len(p.AzothRow)
	p.AzothPlacedThisTurn = false
}

// payAzoth taps cost untapped azoth cards and debits the counter. The
// caller has already verified sufficiency.
func payAzoth(p *Player, cost int) {
	remaining := cost
	for _, c := range p.AzothRow {
		if remaining == 0 {
			break
		}
		if !c.Tapped {
			c.Tapped = true
			remaining--
		}
	}
	p.AzothAvailable -= cost
}

// removeFromZone takes a card out of a zone without placing it anywhere.
func removeFromZone(p *Player, z Zone, cardID string) *Card {
	src := p.zone(z)
	for i, c := range *src {
		if c.ID == cardID {
			*src = append((*src)[:i], (*src)[i+1:]...)
			return c
		}
	}
	return nil
}

func popDeck(p *Player) *Card {
	card := p.Deck[len(p.Deck)-1]
	p.Deck = p.Deck[:len(p.Deck)-1]
	return card
}

// shuffle is an in-place Fisher-Yates over the deck.
func (e *Engine) shuffle(deck []*Card) {
	for i := len(deck) - 1; i > 0; i-- {
		j := e.rng.Intn(i + 1)
		deck[i], deck[j] = deck[j], deck[i]
	}
}
