package deck

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/konivrer/konivrer-server-go/internal/game"
)

// template is one printing in a static deck list.
type template struct {
	Name      string
	Type      game.CardType
	Cost      int
	Power     int
	Toughness int
	Elements  []game.Element
	Abilities []string
	Count     int
}

// starterList is a 40-card spread of cheap familiars and a few spells,
// enough to play a full match offline.
var starterList = []template{
	{Name: "Ember Sprite", Type: game.CardFamiliar, Cost: 0, Power: 1, Toughness: 1, Elements: []game.Element{game.ElementFire}, Count: 4},
	{Name: "Tide Caller", Type: game.CardFamiliar, Cost: 1, Power: 1, Toughness: 2, Elements: []game.Element{game.ElementWater}, Count: 4},
	{Name: "Stone Warden", Type: game.CardFamiliar, Cost: 1, Power: 2, Toughness: 1, Elements: []game.Element{game.ElementEarth}, Count: 4},
	{Name: "Gale Hawk", Type: game.CardFamiliar, Cost: 2, Power: 2, Toughness: 2, Elements: []game.Element{game.ElementAir}, Count: 4},
	{Name: "Ash Drake", Type: game.CardFamiliar, Cost: 2, Power: 3, Toughness: 1, Elements: []game.Element{game.ElementFire}, Count: 4},
	{Name: "Deep Leviathan", Type: game.CardFamiliar, Cost: 3, Power: 3, Toughness: 3, Elements: []game.Element{game.ElementWater}, Count: 3},
	{Name: "Aether Shade", Type: game.CardFamiliar, Cost: 3, Power: 2, Toughness: 4, Elements: []game.Element{game.ElementAether}, Abilities: []string{"ward"}, Count: 3},
	{Name: "Nether Colossus", Type: game.CardFamiliar, Cost: 4, Power: 5, Toughness: 4, Elements: []game.Element{game.ElementNether}, Count: 2},
	{Name: "Spark Bolt", Type: game.CardSpell, Cost: 1, Elements: []game.Element{game.ElementFire}, Count: 4},
	{Name: "Mist Veil", Type: game.CardSpell, Cost: 2, Elements: []game.Element{game.ElementWater}, Count: 4},
	{Name: "Earthen Surge", Type: game.CardSpell, Cost: 3, Elements: []game.Element{game.ElementEarth}, Count: 4},
}

// StaticProvider serves built-in deck lists. It backs offline play and is
// the fallback when no database is configured.
type StaticProvider struct {
	lists map[string][]template
}

// NewStaticProvider creates a provider with the starter list registered.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		lists: map[string][]template{
			DefaultDeckName: starterList,
		},
	}
}

// Deck instantiates the named list with fresh card IDs.
func (p *StaticProvider) Deck(ctx context.Context, name string) ([]*game.Card, error) {
	if name == "" {
		name = DefaultDeckName
	}
	list, ok := p.lists[name]
	if !ok {
		return nil, fmt.Errorf("static deck %q not found", name)
	}
	var cards []*game.Card
	for _, t := range list {
		for i := 0; i < t.Count; i++ {
			cards = append(cards, &game.Card{
				ID:        uuid.NewString(),
				Name:      t.Name,
				Type:      t.Type,
				Cost:      t.Cost,
				Power:     t.Power,
				Toughness: t.Toughness,
				Elements:  append([]game.Element(nil), t.Elements...),
				Abilities: append([]string(nil), t.Abilities...),
			})
		}
	}
	return cards, nil
}
