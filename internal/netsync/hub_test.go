package netsync

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zaptest"

	"github.com/konivrer/konivrer-server-go/internal/deck"
	"github.com/konivrer/konivrer-server-go/internal/game"
)

func startHub(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	hub := NewHub(zaptest.NewLogger(t), deck.NewStaticProvider(), game.Options{Seed: 77})
	srv := httptest.NewServer(hub.Handler())
	t.Cleanup(srv.Close)
	return srv, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func connectClient(t *testing.T, url, name string) (*Client, chan Envelope) {
	t.Helper()
	c := NewClient(zaptest.NewLogger(t), ClientConfig{
		URL:        url,
		PlayerName: name,
	})
	updates := make(chan Envelope, 16)
	c.On(MsgGameStateUpdate, func(env Envelope) { updates <- env })
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("connect %s: %v", name, err)
	}
	t.Cleanup(func() { c.Close() })
	return c, updates
}

func waitUpdate(t *testing.T, ch chan Envelope) *game.StateView {
	t.Helper()
	select {
	case env := <-ch:
		var payload StateUpdatePayload
		if err := env.Decode(&payload); err != nil {
			t.Fatalf("decode state update: %v", err)
		}
		return payload.View
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for a state update")
		return nil
	}
}

// Two clients pair up, the match starts, and an action from the active
// player reaches both replicas as a state update.
func TestHubPairsPlayersAndRelaysActions(t *testing.T) {
	_, url := startHub(t)

	c1, updates1 := connectClient(t, url, "Alice")
	c2, updates2 := connectClient(t, url, "Bob")

	view1 := waitUpdate(t, updates1)
	view2 := waitUpdate(t, updates2)

	if view1.Phase != "main" || view2.Phase != "main" {
		t.Fatalf("expected both replicas in main phase, got %s and %s", view1.Phase, view2.Phase)
	}
	if view1.Checksum != view2.Checksum {
		t.Fatal("expected both replicas to share a state checksum")
	}
	if c1.PlayerID() == c2.PlayerID() {
		t.Fatalf("expected distinct seats, both got %d", c1.PlayerID())
	}

	// Hidden information: each player sees their own hand only.
	me1 := view1.Players[c1.PlayerID()]
	opp1 := view1.Players[1-c1.PlayerID()]
	if len(me1.Hand) == 0 {
		t.Fatal("expected own hand visible")
	}
	if opp1.Hand != nil {
		t.Fatal("expected opponent hand hidden")
	}

	// The active player ends their phase; both replicas observe it.
	active := c1
	if c2.PlayerID() == view1.ActivePlayer {
		active = c2
	}
	if err := active.SendGameAction(game.ActionEndPhase, game.ActionData{}); err != nil {
		t.Fatalf("SendGameAction: %v", err)
	}

	next1 := waitUpdate(t, updates1)
	next2 := waitUpdate(t, updates2)
	if next1.Phase != "combat" || next2.Phase != "combat" {
		t.Fatalf("expected combat on both replicas, got %s and %s", next1.Phase, next2.Phase)
	}
	if next1.Checksum != next2.Checksum {
		t.Fatal("replicas diverged after the action")
	}
}

func TestHubRejectsIllegalAction(t *testing.T) {
	_, url := startHub(t)

	c1, updates1 := connectClient(t, url, "Alice")
	_, updates2 := connectClient(t, url, "Bob")
	waitUpdate(t, updates1)
	waitUpdate(t, updates2)

	errs := make(chan Envelope, 4)
	c1.On(MsgError, func(env Envelope) { errs <- env })

	if err := c1.SendGameAction(game.ActionSummonFamiliar, game.ActionData{CardID: "no-such-card"}); err != nil {
		t.Fatalf("SendGameAction: %v", err)
	}

	select {
	case env := <-errs:
		var payload ErrorPayload
		if err := env.Decode(&payload); err != nil {
			t.Fatalf("decode error payload: %v", err)
		}
		if payload.Code != "action_rejected" {
			t.Fatalf("expected action_rejected, got %s", payload.Code)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the rejection")
	}
}

func TestHubRelaysChat(t *testing.T) {
	_, url := startHub(t)

	c1, updates1 := connectClient(t, url, "Alice")
	c2, updates2 := connectClient(t, url, "Bob")
	waitUpdate(t, updates1)
	waitUpdate(t, updates2)

	chat := make(chan Envelope, 4)
	c2.On(MsgChatMessage, func(env Envelope) { chat <- env })

	if err := c1.SendChat("good luck"); err != nil {
		t.Fatalf("SendChat: %v", err)
	}

	select {
	case env := <-chat:
		var payload ChatPayload
		if err := env.Decode(&payload); err != nil {
			t.Fatalf("decode chat payload: %v", err)
		}
		if payload.Message != "good luck" {
			t.Fatalf("expected relayed message, got %q", payload.Message)
		}
		if payload.PlayerID != c1.PlayerID() {
			t.Fatalf("expected sender seat %d, got %d", c1.PlayerID(), payload.PlayerID)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for chat relay")
	}
}
