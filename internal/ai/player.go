package ai

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/konivrer/konivrer-server-go/internal/game"
	"github.com/konivrer/konivrer-server-go/internal/game/events"
)

// Config tunes one AI seat.
type Config struct {
	Difficulty Difficulty
	// Seed drives trait sampling, jitter and mistakes. Zero seeds from
	// the clock.
	Seed int64
	// SpeedMultiplier scales think time. Zero means the 1.0 default.
	SpeedMultiplier float64
}

// Player plays one seat. It subscribes to the engine's state updates and
// keeps at most one pending decision timer; every new update replaces the
// previous timer so the AI never acts on superseded state.
type Player struct {
	logger      *zap.Logger
	seat        int
	difficulty  Difficulty
	params      params
	personality Personality
	speed       float64

	engine *game.Engine

	mu        sync.Mutex
	rng       *rand.Rand
	pending   *time.Timer
	subHandle int
	stopped   bool
}

// NewPlayer builds an AI for the given seat. The engine is attached
// separately so the AI can be constructed before the match exists.
func NewPlayer(logger *zap.Logger, seat int, cfg Config) (*Player, error) {
	pr, err := paramsFor(cfg.Difficulty)
	if err != nil {
		return nil, err
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	speed := cfg.SpeedMultiplier
	if speed < 0 {
		speed = 0
	}
	if cfg.SpeedMultiplier == 0 {
		speed = 1.0
	}
	rng := rand.New(rand.NewSource(seed))
	p := &Player{
		logger:      logger,
		seat:        seat,
		difficulty:  cfg.Difficulty,
		params:      pr,
		personality: newPersonality(rng, pr),
		speed:       speed,
		rng:         rng,
		subHandle:   -1,
	}
	logger.Info("ai player created",
		zap.Int("seat", seat),
		zap.String("difficulty", string(cfg.Difficulty)),
		zap.Float64("aggressiveness", p.personality.Aggressiveness),
		zap.Float64("patience", p.personality.Patience))
	return p, nil
}

// NewSilentPlayer is NewPlayer with SpeedMultiplier forced to instant
// decisions; callers drive it with Decide directly.
func NewSilentPlayer(logger *zap.Logger, seat int, difficulty Difficulty, seed int64) (*Player, error) {
	p, err := NewPlayer(logger, seat, Config{Difficulty: difficulty, Seed: seed, SpeedMultiplier: 1})
	if err != nil {
		return nil, err
	}
	p.speed = 0
	return p, nil
}

// Personality exposes the sampled traits.
func (p *Player) Personality() Personality { return p.personality }

// Bind points the AI at an engine without subscribing to its events.
// The caller drives decisions with Decide; use Attach for autonomous
// play.
func (p *Player) Bind(engine *game.Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine = engine
}

// Attach hooks the AI to an engine. State updates from here on schedule
// decisions.
func (p *Player) Attach(engine *game.Engine) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.engine = engine
	p.subHandle = engine.Bus().SubscribeTyped(events.EventGameStateUpdate, func(events.Event) {
		p.onStateUpdate()
	})
}

// Stop cancels any pending decision and detaches from the engine. The AI
// makes no further moves.
func (p *Player) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stopped = true
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
	if p.engine != nil && p.subHandle >= 0 {
		p.engine.Bus().Unsubscribe(p.subHandle)
		p.subHandle = -1
	}
}

func (p *Player) onStateUpdate() {
	g := p.engine.Snapshot()
	if g == nil || g.Winner >= 0 {
		p.cancelPending()
		return
	}
	kind, ok := p.pendingDecision(g)
	if !ok {
		p.cancelPending()
		return
	}
	p.schedule(kind)
}

// pendingDecision reports whether the AI has a move to make in the given
// state and how weighty it is.
func (p *Player) pendingDecision(g *game.GameState) (DecisionKind, bool) {
	switch g.Phase {
	case game.PhaseMain:
		return DecisionNormal, g.ActivePlayer == p.seat
	case game.PhaseCombat:
		return DecisionComplex, g.ActivePlayer == p.seat
	case game.PhaseCombatBlocks:
		return DecisionCritical, g.ActivePlayer != p.seat
	case game.PhasePostCombat:
		return DecisionSimple, g.ActivePlayer == p.seat
	default:
		return DecisionNormal, false
	}
}

func (p *Player) cancelPending() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		p.pending.Stop()
		p.pending = nil
	}
}

// schedule replaces the pending decision timer. The previous timer is
// stopped first so stale state is never acted on.
func (p *Player) schedule(kind DecisionKind) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped {
		return
	}
	if p.pending != nil {
		p.pending.Stop()
	}
	delay := p.decisionDelayLocked(kind)
	p.pending = time.AfterFunc(delay, p.fire)
}

// decisionDelayLocked computes think time: difficulty base, scaled by the
// decision's weight, the AI's patience, configured speed, and 0.8-1.2x
// jitter. Caller holds p.mu.
func (p *Player) decisionDelayLocked(kind DecisionKind) time.Duration {
	jitter := 0.8 + p.rng.Float64()*0.4
	patience := 0.75 + p.personality.Patience*0.5
	return time.Duration(float64(p.params.baseDelay) * kind.multiplier() * patience * jitter * p.speed)
}

func (p *Player) fire() {
	p.mu.Lock()
	p.pending = nil
	stopped := p.stopped
	p.mu.Unlock()
	if stopped {
		return
	}
	if action, err := p.Decide(); err != nil {
		p.logger.Warn("ai action rejected",
			zap.Int("seat", p.seat),
			zap.String("action", string(action)),
			zap.Error(err))
	}
}

// Decide makes at most one move for the current state and returns the
// action it submitted. A state with nothing for this seat to do returns
// an empty action and no error. A heuristic that finds no productive play
// ends the phase; the AI never stalls.
func (p *Player) Decide() (game.ActionType, error) {
	g := p.engine.Snapshot()
	if g == nil || g.Winner >= 0 {
		return "", nil
	}
	if _, ok := p.pendingDecision(g); !ok {
		return "", nil
	}

	action, data := p.chooseAction(g)
	if _, err := p.engine.ProcessAction(p.seat, action, data); err != nil {
		if action == game.ActionEndPhase || action == game.ActionEndTurn {
			return action, err
		}
		// Fall back rather than stall the phase.
		if _, ferr := p.engine.ProcessAction(p.seat, game.ActionEndPhase, game.ActionData{}); ferr != nil {
			return action, fmt.Errorf("%v; fallback endPhase: %w", err, ferr)
		}
		return action, err
	}
	return action, nil
}

func (p *Player) chooseAction(g *game.GameState) (game.ActionType, game.ActionData) {
	switch g.Phase {
	case game.PhaseMain:
		return p.chooseMain(g)
	case game.PhaseCombat:
		return p.chooseAttack(g)
	case game.PhaseCombatBlocks:
		return p.chooseBlocks(g)
	default:
		return game.ActionEndTurn, game.ActionData{}
	}
}

// chooseMain plays one main-phase action: azoth first, then the best
// affordable familiar, then the biggest affordable spell, else pass.
func (p *Player) chooseMain(g *game.GameState) (game.ActionType, game.ActionData) {
	me := g.Players[p.seat]

	if !me.AzothPlacedThisTurn && len(me.Hand) > 0 {
		return game.ActionPlaceAzoth, game.ActionData{CardID: p.chooseAzothCard(me).ID}
	}

	if card := p.chooseFamiliar(me); card != nil {
		return game.ActionSummonFamiliar, game.ActionData{CardID: card.ID}
	}
	if card := p.chooseSpell(me); card != nil {
		return game.ActionCastSpell, game.ActionData{CardID: card.ID}
	}
	return game.ActionEndPhase, game.ActionData{}
}

// chooseAzothCard gives up the lowest-value card in hand as a resource.
func (p *Player) chooseAzothCard(me *game.Player) *game.Card {
	best := me.Hand[0]
	for _, c := range me.Hand[1:] {
		if c.Cost < best.Cost || (c.Cost == best.Cost && cardValue(c) < cardValue(best)) {
			best = c
		}
	}
	return best
}

// chooseFamiliar picks the highest-power affordable familiar; a "mistake"
// roll picks the weakest instead.
func (p *Player) chooseFamiliar(me *game.Player) *game.Card {
	var affordable []*game.Card
	for _, c := range me.Hand {
		if c.Type == game.CardFamiliar && c.Cost <= me.AzothAvailable {
			affordable = append(affordable, c)
		}
	}
	if len(affordable) == 0 {
		return nil
	}
	sort.Slice(affordable, func(i, j int) bool {
		if affordable[i].Power != affordable[j].Power {
			return affordable[i].Power > affordable[j].Power
		}
		return cardValue(affordable[i]) > cardValue(affordable[j])
	})
	if p.rollMistake() {
		return affordable[len(affordable)-1]
	}
	return affordable[0]
}

// chooseSpell picks the highest-cost affordable spell.
func (p *Player) chooseSpell(me *game.Player) *game.Card {
	var best *game.Card
	for _, c := range me.Hand {
		if c.Type != game.CardSpell || c.Cost > me.AzothAvailable {
			continue
		}
		if best == nil || c.Cost > best.Cost || (c.Cost == best.Cost && cardValue(c) > cardValue(best)) {
			best = c
		}
	}
	return best
}

// chooseAttack sends every ready familiar that no defender can kill and
// survive. High risk tolerance attacks anyway; a threatened board with no
// advantage holds back unless the AI is aggressive.
func (p *Player) chooseAttack(g *game.GameState) (game.ActionType, game.ActionData) {
	me := g.Players[p.seat]
	opp := g.Players[1-p.seat]
	analysis := Analyze(g, p.seat)

	if analysis.ThreatLevel > 0.7 && analysis.BoardAdvantage < 0 &&
		p.personality.Aggressiveness < 0.6 {
		return game.ActionEndPhase, game.ActionData{}
	}

	reckless := p.personality.RiskTolerance > 0.85
	var attackers []string
	for _, c := range me.Field {
		if c.Tapped || c.SummoningSick {
			continue
		}
		if reckless || !hasUnfavorableBlocker(c, opp.Field) {
			attackers = append(attackers, c.ID)
		}
	}
	if len(attackers) == 0 {
		return game.ActionEndPhase, game.ActionData{}
	}
	return game.ActionDeclareAttack, game.ActionData{Attackers: attackers}
}

// hasUnfavorableBlocker reports whether any ready defender both kills the
// attacker and survives the exchange.
func hasUnfavorableBlocker(attacker *game.Card, defenders []*game.Card) bool {
	for _, b := range defenders {
		if b.Tapped {
			continue
		}
		if b.Power >= attacker.Toughness && b.Toughness > attacker.Power {
			return true
		}
	}
	return false
}

// chooseBlocks assigns blockers to the biggest attackers first, blocking
// only when the blocker survives or trades evenly. Always submits the
// block declaration (possibly empty) so combat resolves.
func (p *Player) chooseBlocks(g *game.GameState) (game.ActionType, game.ActionData) {
	me := g.Players[p.seat]
	attacker := g.Players[1-p.seat]

	var incoming []*game.Card
	for _, id := range g.Attackers {
		if c, _ := g.FindCard(attacker.Index, game.ZoneField, id); c != nil {
			incoming = append(incoming, c)
		}
	}
	sort.Slice(incoming, func(i, j int) bool { return incoming[i].Power > incoming[j].Power })

	available := make([]*game.Card, 0, len(me.Field))
	for _, c := range me.Field {
		if !c.Tapped {
			available = append(available, c)
		}
	}
	sort.Slice(available, func(i, j int) bool { return available[i].Power < available[j].Power })

	desperate := Analyze(g, p.seat).ThreatLevel > 0.8

	var blocks []game.Block
	for _, atk := range incoming {
		idx := -1
		for i, b := range available {
			survives := b.Toughness > atk.Power
			kills := b.Power >= atk.Toughness
			trade := kills && atk.Power >= b.Toughness
			if (survives && kills) || trade || (desperate && kills) {
				idx = i
				break
			}
		}
		if idx < 0 && desperate && len(available) > 0 {
			// Chump-block the biggest threat when life cards are on the
			// line.
			idx = 0
		}
		if idx >= 0 {
			blocks = append(blocks, game.Block{BlockerID: available[idx].ID, AttackerID: atk.ID})
			available = append(available[:idx], available[idx+1:]...)
		}
	}
	return game.ActionDeclareBlock, game.ActionData{Blocks: blocks}
}

func (p *Player) rollMistake() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.rng.Float64() < p.params.mistakeChance
}
