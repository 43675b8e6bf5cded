package netsync

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/konivrer/konivrer-server-go/internal/deck"
	"github.com/konivrer/konivrer-server-go/internal/game"
)

const sendQueueSize = 32

// Hub pairs connecting players into rooms and runs the authoritative
// engine for each. Actions from both seats are applied in hub receipt
// order under the room lock, so every replica observes one total order —
// this is the conflict resolution rule for near-simultaneous actions.
type Hub struct {
	logger   *zap.Logger
	decks    deck.Provider
	opts     game.Options
	upgrader websocket.Upgrader

	mu      sync.Mutex
	rooms   map[string]*room
	waiting *room
}

// NewHub creates a hub serving games with decks from the given provider.
func NewHub(logger *zap.Logger, decks deck.Provider, opts game.Options) *Hub {
	return &Hub{
		logger: logger,
		decks:  decks,
		opts:   opts,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		rooms: make(map[string]*room),
	}
}

// Handler serves the websocket endpoint.
func (h *Hub) Handler() http.Handler {
	return http.HandlerFunc(h.handleWS)
}

type room struct {
	id  string
	hub *Hub

	mu      sync.Mutex
	engine  *game.Engine
	seats   [2]*session
	names   [2]string
	started bool
}

type session struct {
	room     *room
	conn     *websocket.Conn
	send     chan Envelope
	playerID int
	name     string
	device   DeviceClass
	logger   *zap.Logger

	closeOnce sync.Once
}

func (h *Hub) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	conn.SetReadDeadline(time.Now().Add(10 * time.Second))
	var env Envelope
	if err := conn.ReadJSON(&env); err != nil || env.Type != MsgPlayerConnect {
		h.logger.Warn("handshake failed", zap.Error(err))
		conn.Close()
		return
	}
	conn.SetReadDeadline(time.Time{})

	var hello ConnectPayload
	if err := env.Decode(&hello); err != nil {
		h.logger.Warn("bad player_connect payload", zap.Error(err))
		conn.Close()
		return
	}
	if hello.DeviceClass == "" {
		hello.DeviceClass = DetectDeviceClass(r.UserAgent())
	}

	if hello.Rejoin {
		h.rejoin(conn, hello)
		return
	}
	h.join(conn, hello)
}

// join seats a fresh player: the first connector opens a room, the second
// fills it and the match starts.
func (h *Hub) join(conn *websocket.Conn, hello ConnectPayload) {
	h.mu.Lock()
	var (
		rm   *room
		seat int
	)
	if h.waiting == nil {
		rm = &room{id: uuid.NewString(), hub: h}
		h.rooms[rm.id] = rm
		h.waiting = rm
		seat = 0
	} else {
		rm = h.waiting
		h.waiting = nil
		seat = 1
	}
	h.mu.Unlock()

	s := h.newSession(rm, conn, seat, hello)
	rm.mu.Lock()
	rm.seats[seat] = s
	rm.names[seat] = hello.PlayerName
	full := rm.seats[0] != nil && rm.seats[1] != nil
	rm.mu.Unlock()

	s.sendEnvelope(MsgPlayerConnect, ConnectAckPayload{PlayerID: seat, GameID: rm.id})
	if seat == 0 {
		s.sendEnvelope(MsgGameCreated, GameCreatedPayload{GameID: rm.id, PlayerID: 0})
	}

	h.logger.Info("player joined",
		zap.String("game_id", rm.id),
		zap.Int("seat", seat),
		zap.String("name", hello.PlayerName))

	if full {
		if err := rm.start(); err != nil {
			h.logger.Error("failed to start match", zap.String("game_id", rm.id), zap.Error(err))
			rm.broadcastError("start_failed", "could not start the match")
			return
		}
	}
}

// rejoin reattaches a reconnecting player to their seat.
func (h *Hub) rejoin(conn *websocket.Conn, hello ConnectPayload) {
	h.mu.Lock()
	rm := h.rooms[hello.GameID]
	h.mu.Unlock()
	if rm == nil || hello.PlayerID < 0 || hello.PlayerID > 1 {
		h.logger.Warn("rejoin to unknown game", zap.String("game_id", hello.GameID))
		conn.Close()
		return
	}

	s := h.newSession(rm, conn, hello.PlayerID, hello)
	rm.mu.Lock()
	if old := rm.seats[hello.PlayerID]; old != nil {
		old.close()
	}
	rm.seats[hello.PlayerID] = s
	started := rm.started
	rm.mu.Unlock()

	s.sendEnvelope(MsgPlayerConnect, ConnectAckPayload{PlayerID: hello.PlayerID, GameID: rm.id})
	h.logger.Info("player rejoined",
		zap.String("game_id", rm.id),
		zap.Int("seat", hello.PlayerID))
	if started {
		rm.sendView(s)
	}
}

func (h *Hub) newSession(rm *room, conn *websocket.Conn, seat int, hello ConnectPayload) *session {
	s := &session{
		room:     rm,
		conn:     conn,
		send:     make(chan Envelope, sendQueueSize),
		playerID: seat,
		name:     hello.PlayerName,
		device:   hello.DeviceClass,
		logger:   h.logger.With(zap.String("game_id", rm.id), zap.Int("seat", seat)),
	}
	go s.writePump()
	go s.readPump()
	return s
}

// start deals both decks and opens the match.
func (rm *room) start() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	rm.mu.Lock()
	defer rm.mu.Unlock()

	setups := make([]game.PlayerSetup, 2)
	for i := 0; i < 2; i++ {
		cards, err := rm.hub.decks.Deck(ctx, deck.DefaultDeckName)
		if err != nil {
			return err
		}
		setups[i] = game.PlayerSetup{Name: rm.names[i], Deck: cards}
	}

	engine := game.NewEngine(rm.hub.logger.Named("engine"), nil)
	if _, err := engine.InitializeGame(setups, rm.hub.opts); err != nil {
		return err
	}
	if err := engine.StartGame(); err != nil {
		return err
	}
	rm.engine = engine
	rm.started = true

	for seat, s := range rm.seats {
		if s == nil {
			continue
		}
		s.sendEnvelope(MsgGameJoined, GameJoinedPayload{
			GameID:   rm.id,
			PlayerID: seat,
			Opponent: rm.names[1-seat],
		})
	}
	rm.broadcastViewsLocked()
	return nil
}

// applyAction feeds one action into the engine and fans the new state
// out. The room lock makes receipt order the authoritative order.
func (rm *room) applyAction(s *session, payload ActionPayload) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if !rm.started {
		s.sendEnvelope(MsgError, ErrorPayload{Code: "not_started", Message: "match has not started"})
		return
	}
	if _, err := rm.engine.ProcessAction(s.playerID, payload.ActionType, payload.ActionData); err != nil {
		s.sendEnvelope(MsgError, ErrorPayload{Code: "action_rejected", Message: err.Error()})
		return
	}
	rm.broadcastViewsLocked()
}

func (rm *room) broadcastViewsLocked() {
	for seat, s := range rm.seats {
		if s == nil {
			continue
		}
		view, err := rm.engine.View(seat)
		if err != nil {
			continue
		}
		s.sendEnvelope(MsgGameStateUpdate, StateUpdatePayload{GameID: rm.id, View: view})
	}
}

func (rm *room) sendView(s *session) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.engine == nil {
		return
	}
	view, err := rm.engine.View(s.playerID)
	if err != nil {
		return
	}
	s.sendEnvelope(MsgGameStateUpdate, StateUpdatePayload{GameID: rm.id, View: view})
}

func (rm *room) relayChat(from *session, payload ChatPayload) {
	payload.GameID = rm.id
	payload.PlayerID = from.playerID
	payload.Timestamp = time.Now()
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, s := range rm.seats {
		if s != nil {
			s.sendEnvelope(MsgChatMessage, payload)
		}
	}
}

func (rm *room) broadcastError(code, message string) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	for _, s := range rm.seats {
		if s != nil {
			s.sendEnvelope(MsgError, ErrorPayload{Code: code, Message: message})
		}
	}
}

// detach clears the seat if this session still holds it; the seat stays
// reserved for a rejoin.
func (rm *room) detach(s *session) {
	rm.mu.Lock()
	defer rm.mu.Unlock()
	if rm.seats[s.playerID] == s {
		rm.seats[s.playerID] = nil
	}
}

func (s *session) readPump() {
	defer func() {
		s.close()
		s.room.detach(s)
	}()
	for {
		var env Envelope
		if err := s.conn.ReadJSON(&env); err != nil {
			s.logger.Debug("read loop ended", zap.Error(err))
			return
		}
		switch env.Type {
		case MsgPlayerAction:
			var payload ActionPayload
			if err := env.Decode(&payload); err != nil {
				s.sendEnvelope(MsgError, ErrorPayload{Code: "bad_payload", Message: err.Error()})
				continue
			}
			s.room.applyAction(s, payload)
		case MsgChatMessage:
			var payload ChatPayload
			if err := env.Decode(&payload); err != nil {
				continue
			}
			s.room.relayChat(s, payload)
		case MsgPing:
			var ping PingPayload
			if err := env.Decode(&ping); err == nil {
				s.sendEnvelope(MsgPong, PongPayload(ping))
			}
		default:
			s.sendEnvelope(MsgError, ErrorPayload{
				Code:    "unexpected_message",
				Message: string(env.Type),
			})
		}
	}
}

func (s *session) writePump() {
	for env := range s.send {
		if err := s.conn.WriteJSON(env); err != nil {
			s.logger.Debug("write failed", zap.Error(err))
			s.close()
			return
		}
	}
}

func (s *session) sendEnvelope(t MessageType, payload any) {
	env, err := NewEnvelope(t, payload)
	if err != nil {
		s.logger.Error("encode failed", zap.String("type", string(t)), zap.Error(err))
		return
	}
	defer func() {
		// Sending on a closed channel after close() loses the message,
		// which is fine for a dead session.
		recover()
	}()
	select {
	case s.send <- env:
	default:
		s.logger.Warn("send queue full, dropping", zap.String("type", string(t)))
	}
}

func (s *session) close() {
	s.closeOnce.Do(func() {
		close(s.send)
		s.conn.Close()
	})
}
