package game

import (
	"fmt"

	"github.com/konivrer/konivrer-server-go/internal/game/events"
)

// RulesResolver supplies the game-rule math the engine itself stays out
// of: spell effects, combat damage, and activated abilities. The engine
// handles zone movement, payment and sequencing, then hands off here at
// the points effects resolve. Implementations mutate the state they are
// given and return the events describing what happened.
type RulesResolver interface {
	// ResolveSpell applies the effect of a spell that has been paid for
	// and placed on the resolution stack.
	ResolveSpell(g *GameState, controller int, card *Card) []events.Event

	// ResolveCombat applies damage for the declared attackers against the
	// given block assignments. A nil or empty blocks slice means every
	// attacker is unblocked.
	ResolveCombat(g *GameState, attackers []*Card, blocks []Block) []events.Event

	// ResolveAbility applies one of a card's activated abilities.
	ResolveAbility(g *GameState, controller int, card *Card, ability string) []events.Event
}

// BasicResolver is the default resolver. Card-specific effect text is out
// of its scope: spells and abilities resolve without scripted effects, and
// combat uses straight power/toughness comparison with unblocked damage
// revealing the defender's life cards.
type BasicResolver struct{}

func (BasicResolver) ResolveSpell(g *GameState, controller int, card *Card) []events.Event {
	return nil
}

func (BasicResolver) ResolveAbility(g *GameState, controller int, card *Card, ability string) []events.Event {
	return nil
}

func (BasicResolver) ResolveCombat(g *GameState, attackers []*Card, blocks []Block) []events.Event {
	attacker := g.ActivePlayer
	defender := 1 - attacker

	blockedBy := make(map[string]*Card, len(blocks))
	for _, b := range blocks {
		if blocker, _ := g.FindCard(defender, ZoneField, b.BlockerID); blocker != nil {
			blockedBy[b.AttackerID] = blocker
		}
	}

	var evs []events.Event
	for _, atk := range attackers {
		blocker, blocked := blockedBy[atk.ID]
		if !blocked {
			evs = append(evs, revealLifeCards(g, defender, atk.Power)...)
			if g.Winner >= 0 {
				return evs
			}
			continue
		}
		// Both creatures deal damage simultaneously.
		blockerDies := atk.Power >= blocker.Toughness
		attackerDies := blocker.Power >= atk.Toughness
		if blockerDies {
			moveCard(g.Players[defender], ZoneField, ZoneGraveyard, blocker.ID)
		}
		if attackerDies {
			moveCard(g.Players[attacker], ZoneField, ZoneGraveyard, atk.ID)
		}
	}
	return evs
}

// revealLifeCards turns up to amount of the defender's life cards face up
// and moves them to hand. Exhausting the zone ends the game with the
// opponent as winner.
func revealLifeCards(g *GameState, defender, amount int) []events.Event {
	p := g.Players[defender]
	var evs []events.Event
	for i := 0; i < amount && len(p.LifeCards) > 0; i++ {
		card := p.LifeCards[len(p.LifeCards)-1]
		p.LifeCards = p.LifeCards[:len(p.LifeCards)-1]
		p.Hand = append(p.Hand, card)
		evs = append(evs, events.NewCard(events.EventLifeCardRevealed, defender, card.ID, card.Name))
	}
	if len(p.LifeCards) == 0 {
		winner := 1 - defender
		g.Winner = winner
		g.Phase = PhaseEnded
		addLog(g, "game", fmt.Sprintf("%s wins the game", g.Players[winner].Name))
		over := events.New(events.EventGameOver, defender)
		over.Winner = winner
		evs = append(evs, over)
	}
	return evs
}

// moveCard relocates a card between two zones of the same player. It is a
// no-op if the card is not in the source zone.
func moveCard(p *Player, from, to Zone, cardID string) *Card {
	src := p.zone(from)
	for i, c := range *src {
		if c.ID == cardID {
			*src = append((*src)[:i], (*src)[i+1:]...)
			dst := p.zone(to)
			*dst = append(*dst, c)
			return c
		}
	}
	return nil
}

// addLog appends a capped game-log entry.
func addLog(g *GameState, kind, text string) {
	g.Log = append(g.Log, LogEntry{Type: kind, Text: text, Timestamp: nowFunc()})
	if len(g.Log) > maxLogEntries {
		g.Log = g.Log[len(g.Log)-maxLogEntries:]
	}
}
