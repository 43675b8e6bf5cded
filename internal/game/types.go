package game

import (
	"fmt"
	"time"
)

// CardType is the printed type of a card.
type CardType string

const (
	CardFamiliar  CardType = "Familiar"
	CardSpell     CardType = "Spell"
	CardEquipment CardType = "Equipment"
	CardArtifact  CardType = "Artifact"
)

// Element is one of the resource symbols a card carries.
type Element string

const (
	ElementFire   Element = "fire"
	ElementWater  Element = "water"
	ElementEarth  Element = "earth"
	ElementAir    Element = "air"
	ElementAether Element = "aether"
	ElementNether Element = "nether"
)

// Card is a single card instance. Identity fields are fixed once the card
// is created; Tapped, SummoningSick and Counters change as the card moves
// between zones.
type Card struct {
	ID            string    `json:"id"`
	Name          string    `json:"name"`
	Type          CardType  `json:"type"`
	Cost          int       `json:"cost"`
	Power         int       `json:"power"`
	Toughness     int       `json:"toughness"`
	Elements      []Element `json:"elements,omitempty"`
	Abilities     []string  `json:"abilities,omitempty"`
	Counters      int       `json:"counters"`
	Tapped        bool      `json:"tapped"`
	SummoningSick bool      `json:"summoningSick"`
}

// Zone identifies one of the seven per-player card zones.
type Zone int

const (
	ZoneDeck Zone = iota
	ZoneHand
	ZoneField
	ZoneAzothRow
	ZoneLifeCards
	ZoneGraveyard
	ZoneRemoved
)

var zoneNames = map[Zone]string{
	ZoneDeck:      "deck",
	ZoneHand:      "hand",
	ZoneField:     "field",
	ZoneAzothRow:  "azothRow",
	ZoneLifeCards: "lifeCards",
	ZoneGraveyard: "graveyard",
	ZoneRemoved:   "removedZone",
}

func (z Zone) String() string {
	if name, ok := zoneNames[z]; ok {
		return name
	}
	return fmt.Sprintf("zone_%d", int(z))
}

// Phase is the current stage of play.
type Phase int

const (
	PhaseSetup Phase = iota
	PhaseMain
	PhaseCombat
	PhaseCombatBlocks
	PhasePostCombat
	PhaseEnded
)

var phaseNames = map[Phase]string{
	PhaseSetup:        "setup",
	PhaseMain:         "main",
	PhaseCombat:       "combat",
	PhaseCombatBlocks: "combat-blocks",
	PhasePostCombat:   "post-combat",
	PhaseEnded:        "ended",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("phase_%d", int(p))
}

// ActionType names one of the engine's dispatchable actions.
type ActionType string

const (
	ActionPlaceAzoth      ActionType = "placeAzoth"
	ActionSummonFamiliar  ActionType = "summonFamiliar"
	ActionCastSpell       ActionType = "castSpell"
	ActionDeclareAttack   ActionType = "declareAttack"
	ActionDeclareBlock    ActionType = "declareBlock"
	ActionActivateAbility ActionType = "activateAbility"
	ActionPassPriority    ActionType = "passPriority"
	ActionEndPhase        ActionType = "endPhase"
	ActionEndTurn         ActionType = "endTurn"
)

// Block pairs a blocking card with the attacker it intercepts.
type Block struct {
	BlockerID  string `json:"blockerId"`
	AttackerID string `json:"attackerId"`
}

// ActionData carries the parameters of an action. Only the fields the
// action type needs are consulted.
type ActionData struct {
	CardID       string  `json:"cardId,omitempty"`
	Attackers    []string `json:"attackers,omitempty"`
	Blocks       []Block  `json:"blocks,omitempty"`
	AbilityIndex int      `json:"abilityIndex,omitempty"`
	TargetID     string   `json:"targetId,omitempty"`
}

// Player is one seat's full state.
type Player struct {
	Index int    `json:"index"`
	Name  string `json:"name"`

	Deck      []*Card `json:"deck"`
	Hand      []*Card `json:"hand"`
	Field     []*Card `json:"field"`
	AzothRow  []*Card `json:"azothRow"`
	LifeCards []*Card `json:"lifeCards"`
	Graveyard []*Card `json:"graveyard"`
	Removed   []*Card `json:"removedZone"`

	AzothAvailable      int  `json:"azothAvailable"`
	AzothPlacedThisTurn bool `json:"azothPlacedThisTurn"`

	CardsDrawn        int `json:"cardsDrawn"`
	SpellsCast        int `json:"spellsCast"`
	CreaturesSummoned int `json:"creaturesSummoned"`
}

// zone returns a pointer to the slice backing the given zone.
func (p *Player) zone(z Zone) *[]*Card {
	switch z {
	case ZoneDeck:
		return &p.Deck
	case ZoneHand:
		return &p.Hand
	case ZoneField:
		return &p.Field
	case ZoneAzothRow:
		return &p.AzothRow
	case ZoneLifeCards:
		return &p.LifeCards
	case ZoneGraveyard:
		return &p.Graveyard
	default:
		return &p.Removed
	}
}

// CardCount is the total number of cards across all of the player's zones.
func (p *Player) CardCount() int {
	return len(p.Deck) + len(p.Hand) + len(p.Field) + len(p.AzothRow) +
		len(p.LifeCards) + len(p.Graveyard) + len(p.Removed)
}

// StackItem is a pending effect on the resolution stack.
type StackItem struct {
	Card       *Card  `json:"card"`
	Controller int    `json:"controller"`
	Kind       string `json:"kind"`
}

// LogEntry is one line of the game log.
type LogEntry struct {
	Type      string    `json:"type"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// maxLogEntries bounds the game log; older entries are dropped.
const maxLogEntries = 100

// GameState is the authoritative state of one match. It is owned by the
// Engine; other components read it and submit actions, never mutate it.
type GameState struct {
	GameID         string       `json:"gameId"`
	Seed           int64        `json:"-"` // resolved shuffle seed, never zero

	Phase          Phase        `json:"phase"`
	Turn           int          `json:"turn"`
	ActivePlayer   int          `json:"activePlayer"`
	PriorityPlayer int          `json:"priorityPlayer"`
	Players        [2]*Player   `json:"players"`
	Stack          []*StackItem `json:"stack"`
	Attackers      []string     `json:"attackers,omitempty"`
	Log            []LogEntry   `json:"log"`
	Winner         int          `json:"winner"` // -1 until decided
	LastPass       int          `json:"-"`      // -1, or the player whose pass is pending
	CreatedAt      time.Time    `json:"createdAt"`
	LastActionAt   time.Time    `json:"lastActionAt"`
}

// TotalCards is the card count across every zone of both players.
func (g *GameState) TotalCards() int {
	return g.Players[0].CardCount() + g.Players[1].CardCount()
}

// FindCard locates a card by ID in the given player's zone.
func (g *GameState) FindCard(player int, z Zone, cardID string) (*Card, int) {
	cards := *g.Players[player].zone(z)
	for i, c := range cards {
		if c.ID == cardID {
			return c, i
		}
	}
	return nil, -1
}

// Clone returns a deep copy of the state.
func (g *GameState) Clone() *GameState {
	cp := *g
	for i, p := range g.Players {
		np := *p
		np.Deck = cloneCards(p.Deck)
		np.Hand = cloneCards(p.Hand)
		np.Field = cloneCards(p.Field)
		np.AzothRow = cloneCards(p.AzothRow)
		np.LifeCards = cloneCards(p.LifeCards)
		np.Graveyard = cloneCards(p.Graveyard)
		np.Removed = cloneCards(p.Removed)
		cp.Players[i] = &np
	}
	cp.Stack = make([]*StackItem, len(g.Stack))
	for i, s := range g.Stack {
		ns := *s
		nc := *s.Card
		ns.Card = &nc
		cp.Stack[i] = &ns
	}
	cp.Attackers = append([]string(nil), g.Attackers...)
	cp.Log = append([]LogEntry(nil), g.Log...)
	return &cp
}

func cloneCards(cards []*Card) []*Card {
	out := make([]*Card, len(cards))
	for i, c := range cards {
		nc := *c
		nc.Elements = append([]Element(nil), c.Elements...)
		nc.Abilities = append([]string(nil), c.Abilities...)
		out[i] = &nc
	}
	return out
}
