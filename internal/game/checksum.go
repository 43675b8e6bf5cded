package game

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Checksum computes a deterministic SHA-256 digest of the state. Two
// replicas that applied the same action sequence produce the same digest,
// so peers can compare checksums to detect divergence. Timestamps and the
// game log are excluded; zone order is significant (deck order matters).
func (g *GameState) Checksum() string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "GAME:%s|%s|%d|%d|%d|%d\n",
		g.GameID, g.Phase, g.Turn, g.ActivePlayer, g.PriorityPlayer, g.Winner)

	for _, p := range g.Players {
		fmt.Fprintf(&buf, "PLAYER:%d|%s|%d|%t\n",
			p.Index, p.Name, p.AzothAvailable, p.AzothPlacedThisTurn)
		for z := ZoneDeck; z <= ZoneRemoved; z++ {
			for _, c := range *p.zone(z) {
				fmt.Fprintf(&buf, "  %s:%s|%d|%t|%t\n",
					z, c.ID, c.Counters, c.Tapped, c.SummoningSick)
			}
		}
	}
	for _, item := range g.Stack {
		fmt.Fprintf(&buf, "STACK:%s|%d|%s\n", item.Card.ID, item.Controller, item.Kind)
	}
	for _, id := range g.Attackers {
		fmt.Fprintf(&buf, "ATTACKER:%s\n", id)
	}

	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:])
}
