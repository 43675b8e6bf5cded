package netsync

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap/zaptest"
)

// silentServer acknowledges the connect handshake and then swallows
// every frame, so the client never hears a pong.
func silentServer(t *testing.T) string {
	t.Helper()
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool { return true },
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var hello Envelope
		if err := conn.ReadJSON(&hello); err != nil {
			return
		}
		ack, err := NewEnvelope(MsgPlayerConnect, ConnectAckPayload{PlayerID: 0})
		if err != nil {
			return
		}
		if err := conn.WriteJSON(ack); err != nil {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

// Silence past two heartbeat intervals flags packet loss; past three the
// connection is torn down so the reconnect path takes over.
func TestHeartbeatEscalation(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), ClientConfig{
		URL:               silentServer(t),
		PlayerName:        "Heartbeat",
		HeartbeatInterval: time.Hour, // ticks are driven by hand
		ReconnectDelay:    time.Hour,
	})
	disconnected := make(chan struct{}, 1)
	c.On(MsgDisconnected, func(Envelope) {
		select {
		case disconnected <- struct{}{}:
		default:
		}
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := c.Connect(ctx); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer c.Close()

	// A fresh pong: nothing to escalate.
	c.heartbeatTick()
	c.mu.Lock()
	flagged, pings := c.lossFlagged, c.pingsSent
	c.mu.Unlock()
	if flagged {
		t.Fatal("expected no loss flag while pongs are fresh")
	}
	if pings != 1 {
		t.Fatalf("expected 1 ping sent, got %d", pings)
	}

	// Two intervals of silence: loss suspected, connection kept.
	c.mu.Lock()
	c.lastPongAt = time.Now().Add(-2*time.Hour - time.Minute)
	c.mu.Unlock()
	c.heartbeatTick()
	c.mu.Lock()
	flagged = c.lossFlagged
	alive := c.conn != nil
	c.mu.Unlock()
	if !flagged {
		t.Fatal("expected packet loss flagged after two silent intervals")
	}
	if !alive {
		t.Fatal("expected the connection kept at two silent intervals")
	}
	select {
	case <-disconnected:
		t.Fatal("unexpected disconnect at two silent intervals")
	default:
	}

	// Three intervals: the tick kills the connection and the read pump
	// raises the disconnect.
	c.mu.Lock()
	c.lastPongAt = time.Now().Add(-3*time.Hour - time.Minute)
	c.mu.Unlock()
	c.heartbeatTick()

	select {
	case <-disconnected:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the forced disconnect")
	}
}

func TestBackoffSchedule(t *testing.T) {
	base := time.Second
	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}
	for i, expected := range want {
		if got := backoffDelay(base, i+1); got != expected {
			t.Fatalf("attempt %d: expected %v, got %v", i+1, expected, got)
		}
	}
}

func TestConnectFailureIsTerminal(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), ClientConfig{URL: "ws://example.invalid/ws"})
	c.dial = func(ctx context.Context) (*websocket.Conn, error) {
		return nil, errors.New("refused")
	}
	if err := c.Connect(context.Background()); err == nil {
		t.Fatal("expected Connect to fail")
	}
	// Initial connect failures never trigger the reconnect machinery.
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.attempts != 0 || c.reconnecting {
		t.Fatalf("expected no reconnect state, attempts=%d reconnecting=%t", c.attempts, c.reconnecting)
	}
}

// After maxReconnectAttempts consecutive failures the client stops
// retrying for good.
func TestReconnectAttemptBound(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), ClientConfig{
		URL:                  "ws://example.invalid/ws",
		ReconnectDelay:       time.Millisecond,
		MaxReconnectAttempts: 3,
	})
	var dials atomic.Int32
	c.dial = func(ctx context.Context) (*websocket.Conn, error) {
		dials.Add(1)
		return nil, errors.New("refused")
	}

	var exhausted atomic.Bool
	c.On(MsgError, func(env Envelope) {
		var payload ErrorPayload
		if env.Decode(&payload) == nil && payload.Code == "reconnect_exhausted" {
			exhausted.Store(true)
		}
	})

	c.handleDisconnect(errors.New("connection reset"))

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		c.mu.Lock()
		done := c.closed
		c.mu.Unlock()
		if done {
			break
		}
		time.Sleep(2 * time.Millisecond)
	}

	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if !closed {
		t.Fatal("expected the client to give up after the attempt budget")
	}
	if got := dials.Load(); got != 3 {
		t.Fatalf("expected exactly 3 reconnect dials, got %d", got)
	}
	if !exhausted.Load() {
		t.Fatal("expected a reconnect_exhausted error event")
	}

	// Another disconnect must not restart the machinery.
	c.handleDisconnect(errors.New("again"))
	time.Sleep(20 * time.Millisecond)
	if got := dials.Load(); got != 3 {
		t.Fatalf("expected no further dials after giving up, got %d", got)
	}
}

func TestReconnectOverlapGuard(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), ClientConfig{
		URL:            "ws://example.invalid/ws",
		ReconnectDelay: time.Hour, // keep the pending attempt pending
	})
	c.dial = func(ctx context.Context) (*websocket.Conn, error) {
		return nil, errors.New("refused")
	}

	c.scheduleReconnect()
	c.mu.Lock()
	attempts := c.attempts
	c.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("expected 1 attempt armed, got %d", attempts)
	}

	// A second trigger while one is in flight must not stack another.
	c.scheduleReconnect()
	c.mu.Lock()
	attempts = c.attempts
	c.mu.Unlock()
	if attempts != 1 {
		t.Fatalf("expected overlap guard to hold attempts at 1, got %d", attempts)
	}

	c.Close()
}

func TestListenerRegistration(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), ClientConfig{URL: "ws://example.invalid/ws"})

	got := 0
	handle := c.On(MsgChatMessage, func(env Envelope) { got++ })
	c.dispatch(Envelope{Type: MsgChatMessage})
	if got != 1 {
		t.Fatalf("expected 1 dispatch, got %d", got)
	}

	c.Off(handle)
	c.dispatch(Envelope{Type: MsgChatMessage})
	if got != 1 {
		t.Fatalf("expected no dispatch after Off, got %d", got)
	}
}

func TestListenerPanicIsolated(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), ClientConfig{URL: "ws://example.invalid/ws"})

	reached := false
	c.On(MsgGameStateUpdate, func(env Envelope) { panic("bad listener") })
	c.On(MsgGameStateUpdate, func(env Envelope) { reached = true })

	c.dispatch(Envelope{Type: MsgGameStateUpdate})
	if !reached {
		t.Fatal("expected the second listener to run despite the panic")
	}
}

func TestHandleGameJoinedRecordsSeat(t *testing.T) {
	c := NewClient(zaptest.NewLogger(t), ClientConfig{URL: "ws://example.invalid/ws"})

	env, err := NewEnvelope(MsgGameJoined, GameJoinedPayload{GameID: "g1", PlayerID: 1, Opponent: "Alice"})
	if err != nil {
		t.Fatalf("NewEnvelope: %v", err)
	}
	c.handleMessage(env)

	if c.GameID() != "g1" {
		t.Fatalf("expected game g1, got %q", c.GameID())
	}
	if c.PlayerID() != 1 {
		t.Fatalf("expected seat 1, got %d", c.PlayerID())
	}
}
