package deck

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/konivrer/konivrer-server-go/internal/game"
)

// PostgresProvider loads named deck lists from the decks/cards tables.
//
// Schema:
//
//	cards(id, name, card_type, cost, power, toughness, elements, abilities)
//	decks(id, name)
//	deck_cards(deck_id, card_id, count)
type PostgresProvider struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// NewPostgresProvider connects to the database and verifies the
// connection.
func NewPostgresProvider(ctx context.Context, logger *zap.Logger, dsn string) (*PostgresProvider, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect deck database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping deck database: %w", err)
	}
	logger.Info("deck database connected")
	return &PostgresProvider{logger: logger, pool: pool}, nil
}

// Close releases the connection pool.
func (p *PostgresProvider) Close() {
	p.pool.Close()
}

// Deck loads the named list and instantiates each printing with fresh
// card IDs.
func (p *PostgresProvider) Deck(ctx context.Context, name string) ([]*game.Card, error) {
	if name == "" {
		name = DefaultDeckName
	}

	rows, err := p.pool.Query(ctx, `
		SELECT c.name, c.card_type, c.cost, c.power, c.toughness,
		       c.elements, c.abilities, dc.count
		FROM decks d
		JOIN deck_cards dc ON dc.deck_id = d.id
		JOIN cards c ON c.id = dc.card_id
		WHERE d.name = $1
		ORDER BY c.cost, c.name
	`, name)
	if err != nil {
		return nil, fmt.Errorf("query deck %q: %w", name, err)
	}
	defer rows.Close()

	var cards []*game.Card
	for rows.Next() {
		var (
			cardName, cardType         string
			cost, power, toughness, ct int
			elements, abilities        []string
		)
		if err := rows.Scan(&cardName, &cardType, &cost, &power, &toughness, &elements, &abilities, &ct); err != nil {
			return nil, fmt.Errorf("scan deck %q: %w", name, err)
		}
		els := make([]game.Element, len(elements))
		for i, e := range elements {
			els[i] = game.Element(e)
		}
		for i := 0; i < ct; i++ {
			cards = append(cards, &game.Card{
				ID:        uuid.NewString(),
				Name:      cardName,
				Type:      game.CardType(cardType),
				Cost:      cost,
				Power:     power,
				Toughness: toughness,
				Elements:  append([]game.Element(nil), els...),
				Abilities: append([]string(nil), abilities...),
			})
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read deck %q: %w", name, err)
	}
	if len(cards) == 0 {
		return nil, fmt.Errorf("deck %q not found or empty", name)
	}
	p.logger.Debug("deck loaded", zap.String("deck", name), zap.Int("cards", len(cards)))
	return cards, nil
}
