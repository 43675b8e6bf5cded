package ai

import "github.com/konivrer/konivrer-server-go/internal/game"

// Analysis summarizes how the match looks from one seat. Positive values
// favor the analyzed seat.
type Analysis struct {
	BoardAdvantage    float64
	ResourceAdvantage float64
	HandAdvantage     float64
	LifeCardAdvantage float64
	ThreatLevel       float64
}

// Analyze scores the state from the given seat's perspective.
func Analyze(g *game.GameState, seat int) Analysis {
	me := g.Players[seat]
	opp := g.Players[1-seat]

	return Analysis{
		BoardAdvantage:    boardStrength(me.Field) - boardStrength(opp.Field),
		ResourceAdvantage: float64(len(me.AzothRow) - len(opp.AzothRow)),
		HandAdvantage:     float64(len(me.Hand) - len(opp.Hand)),
		LifeCardAdvantage: float64(len(me.LifeCards) - len(opp.LifeCards)),
		ThreatLevel:       threatLevel(me, opp),
	}
}

func boardStrength(field []*game.Card) float64 {
	total := 0.0
	for _, c := range field {
		total += float64(c.Power+c.Toughness) + float64(c.Counters)
	}
	return total
}

// threatLevel rises as the opponent's ready attackers outgrow our
// remaining life cards.
func threatLevel(me, opp *game.Player) float64 {
	incoming := 0
	for _, c := range opp.Field {
		if !c.Tapped && !c.SummoningSick {
			incoming += c.Power
		}
	}
	if len(me.LifeCards) == 0 {
		return 1
	}
	level := float64(incoming) / float64(len(me.LifeCards)*2)
	if level > 1 {
		level = 1
	}
	return level
}

// cardValue is the rough worth of a card used to break ties between
// plays.
func cardValue(c *game.Card) float64 {
	v := float64(c.Cost)*1.5 + float64(c.Power) + float64(c.Toughness)
	v += float64(len(c.Abilities)) * 0.5
	return v
}
