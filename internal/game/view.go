package game

import "fmt"

// PlayerView is one seat as visible to a particular viewer. Decks are
// never revealed; the opponent's hand and face-down life cards appear as
// counts only.
type PlayerView struct {
	Index               int     `json:"index"`
	Name                string  `json:"name"`
	DeckCount           int     `json:"deckCount"`
	Hand                []*Card `json:"hand,omitempty"`
	HandCount           int     `json:"handCount"`
	Field               []*Card `json:"field"`
	AzothRow            []*Card `json:"azothRow"`
	LifeCardCount       int     `json:"lifeCardCount"`
	Graveyard           []*Card `json:"graveyard"`
	Removed             []*Card `json:"removedZone"`
	AzothAvailable      int     `json:"azothAvailable"`
	AzothPlacedThisTurn bool    `json:"azothPlacedThisTurn"`
}

// StateView is the player-scoped projection of a GameState sent to
// clients. It carries the state checksum so a replica can verify it is in
// sync with the authoritative copy.
type StateView struct {
	GameID         string       `json:"gameId"`
	Phase          string       `json:"phase"`
	Turn           int          `json:"turn"`
	ActivePlayer   int          `json:"activePlayer"`
	PriorityPlayer int          `json:"priorityPlayer"`
	Players        [2]PlayerView `json:"players"`
	Attackers      []string     `json:"attackers,omitempty"`
	Log            []LogEntry   `json:"log"`
	Winner         int          `json:"winner"`
	Checksum       string       `json:"checksum"`
}

// View builds the projection of the current state visible to viewer.
func (e *Engine) View(viewer int) (*StateView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == nil {
		return nil, fmt.Errorf("view: %w", ErrGameNotInitialized)
	}
	if viewer != 0 && viewer != 1 {
		return nil, fmt.Errorf("view for player %d: %w", viewer, ErrInvalidPlayer)
	}

	g := e.state
	view := &StateView{
		GameID:         g.GameID,
		Phase:          g.Phase.String(),
		Turn:           g.Turn,
		ActivePlayer:   g.ActivePlayer,
		PriorityPlayer: g.PriorityPlayer,
		Attackers:      append([]string(nil), g.Attackers...),
		Log:            append([]LogEntry(nil), g.Log...),
		Winner:         g.Winner,
		Checksum:       g.Checksum(),
	}
	for i, p := range g.Players {
		pv := PlayerView{
			Index:               p.Index,
			Name:                p.Name,
			DeckCount:           len(p.Deck),
			HandCount:           len(p.Hand),
			Field:               cloneCards(p.Field),
			AzothRow:            cloneCards(p.AzothRow),
			LifeCardCount:       len(p.LifeCards),
			Graveyard:           cloneCards(p.Graveyard),
			Removed:             cloneCards(p.Removed),
			AzothAvailable:      p.AzothAvailable,
			AzothPlacedThisTurn: p.AzothPlacedThisTurn,
		}
		if i == viewer {
			pv.Hand = cloneCards(p.Hand)
		}
		view.Players[i] = pv
	}
	return view, nil
}
