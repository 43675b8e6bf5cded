// Command sim runs a seeded AI-versus-AI match to completion and prints
// the game log. Useful for exercising the engine and the decision layer
// without a network in the loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/konivrer/konivrer-server-go/internal/ai"
	"github.com/konivrer/konivrer-server-go/internal/deck"
	"github.com/konivrer/konivrer-server-go/internal/game"
)

var (
	seed        = flag.Int64("seed", 1, "match seed")
	difficultyA = flag.String("a", "normal", "difficulty for player 0")
	difficultyB = flag.String("b", "normal", "difficulty for player 1")
	maxSteps    = flag.Int("max-steps", 5000, "abort after this many decisions")
	verbose     = flag.Bool("v", false, "verbose engine logging")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "sim: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zap.NewNop()
	if *verbose {
		var err error
		logger, err = zap.NewDevelopment()
		if err != nil {
			return err
		}
		defer logger.Sync()
	}

	decks := deck.NewStaticProvider()
	setups := make([]game.PlayerSetup, 2)
	names := [2]string{"AI " + *difficultyA, "AI " + *difficultyB}
	for i := 0; i < 2; i++ {
		cards, err := decks.Deck(context.Background(), deck.DefaultDeckName)
		if err != nil {
			return err
		}
		setups[i] = game.PlayerSetup{Name: names[i], Deck: cards}
	}

	engine := game.NewEngine(logger, nil)
	if _, err := engine.InitializeGame(setups, game.Options{Seed: *seed}); err != nil {
		return err
	}
	if err := engine.StartGame(); err != nil {
		return err
	}

	players := [2]*ai.Player{}
	difficulties := [2]string{*difficultyA, *difficultyB}
	for seat := 0; seat < 2; seat++ {
		p, err := ai.NewSilentPlayer(logger, seat, ai.Difficulty(difficulties[seat]), *seed+int64(seat)+1)
		if err != nil {
			return err
		}
		p.Bind(engine)
		players[seat] = p
	}

	steps := 0
	for steps < *maxSteps {
		state := engine.Snapshot()
		if state.Winner >= 0 {
			break
		}
		seat := actingSeat(state)
		action, err := players[seat].Decide()
		if err != nil {
			return fmt.Errorf("seat %d decision: %w", seat, err)
		}
		if action == "" {
			return fmt.Errorf("seat %d had no decision in phase %s", seat, state.Phase)
		}
		steps++
	}

	final := engine.Snapshot()
	for _, entry := range final.Log {
		fmt.Printf("%-8s %s\n", entry.Type, entry.Text)
	}
	if final.Winner < 0 {
		return fmt.Errorf("no winner after %d decisions", steps)
	}
	fmt.Printf("\n%s wins on turn %d after %d decisions (seed %d)\n",
		names[final.Winner], final.Turn, steps, *seed)
	return nil
}

// actingSeat returns the seat expected to act in the current phase: the
// defender during blocks, the active player otherwise.
func actingSeat(g *game.GameState) int {
	if g.Phase == game.PhaseCombatBlocks {
		return 1 - g.ActivePlayer
	}
	return g.ActivePlayer
}
