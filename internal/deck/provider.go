// Package deck supplies ordered card lists to the engine at game setup.
package deck

import (
	"context"

	"github.com/konivrer/konivrer-server-go/internal/game"
)

// Provider resolves a deck name to a fresh list of card instances. Each
// call returns new instances with unique IDs so two games never share
// card identity.
type Provider interface {
	Deck(ctx context.Context, name string) ([]*game.Card, error)
}

// DefaultDeckName is used when a player does not pick a deck.
const DefaultDeckName = "starter"
