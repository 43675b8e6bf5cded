package netsync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/konivrer/konivrer-server-go/internal/game"
)

// ClientConfig tunes one sync client.
type ClientConfig struct {
	URL         string
	PlayerName  string
	DeviceClass DeviceClass

	// ReconnectDelay is the backoff base; attempt n waits
	// ReconnectDelay * 2^(n-1). Default 1s.
	ReconnectDelay time.Duration
	// MaxReconnectAttempts bounds consecutive failed reconnects before
	// the connection is abandoned. Default 5.
	MaxReconnectAttempts int
	// HeartbeatInterval spaces the liveness pings. Default 5s.
	HeartbeatInterval time.Duration
	// MonitorInterval spaces cadence recomputation. Default 10s.
	MonitorInterval time.Duration
	// HandshakeTimeout bounds the connect handshake. Default 10s.
	HandshakeTimeout time.Duration
}

func (cfg *ClientConfig) applyDefaults() {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = time.Second
	}
	if cfg.MaxReconnectAttempts <= 0 {
		cfg.MaxReconnectAttempts = 5
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = 10 * time.Second
	}
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = 10 * time.Second
	}
	if cfg.DeviceClass == "" {
		cfg.DeviceClass = DeviceDesktop
	}
}

// backoffDelay is the reconnect wait before attempt n (1-based):
// base * 2^(n-1).
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base << uint(attempt-1)
}

// Client maintains one player's connection to the hub. Inbound envelopes
// are dispatched to listeners registered by message type, so callers see
// remote state changes through the same pattern the engine uses for local
// ones. An unclean close triggers exponential-backoff reconnects; a
// successful reconnect re-announces the game and seat to rejoin.
type Client struct {
	logger *zap.Logger
	cfg    ClientConfig
	dial   func(ctx context.Context) (*websocket.Conn, error)

	mu             sync.Mutex
	conn           *websocket.Conn
	listeners      map[MessageType]map[int]func(Envelope)
	nextHandle     int
	gameID         string
	playerID       int
	attempts       int
	reconnecting   bool
	closed         bool
	reconnectTimer *time.Timer

	pingSeq     int
	pingsSent   int
	pongsRecv   int
	lastPongAt  time.Time
	rtt         time.Duration
	lossFlagged bool
	cadence     Cadence
	quality     Quality

	writeMu sync.Mutex
	done    chan struct{}
	once    sync.Once
}

// NewClient builds a client; Connect establishes the session.
func NewClient(logger *zap.Logger, cfg ClientConfig) *Client {
	cfg.applyDefaults()
	c := &Client{
		logger:    logger,
		cfg:       cfg,
		listeners: make(map[MessageType]map[int]func(Envelope)),
		playerID:  -1,
		quality:   QualityGood,
		cadence:   cadenceFor(cfg.DeviceClass, QualityGood),
		done:      make(chan struct{}),
	}
	c.dial = func(ctx context.Context) (*websocket.Conn, error) {
		dialer := websocket.Dialer{HandshakeTimeout: cfg.HandshakeTimeout}
		conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
		return conn, err
	}
	return c
}

// Connect dials the hub, announces the player and waits for the
// acknowledgement. Transport or handshake failure is returned to the
// caller; automatic reconnects only cover drops after this succeeds.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return fmt.Errorf("connect %s: %w", c.cfg.URL, err)
	}

	hello, err := NewEnvelope(MsgPlayerConnect, ConnectPayload{
		PlayerName:  c.cfg.PlayerName,
		DeviceClass: c.cfg.DeviceClass,
		PlayerID:    -1,
	})
	if err != nil {
		conn.Close()
		return err
	}
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return fmt.Errorf("connect handshake write: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(c.cfg.HandshakeTimeout))
	var ackEnv Envelope
	if err := conn.ReadJSON(&ackEnv); err != nil {
		conn.Close()
		return fmt.Errorf("connect handshake read: %w", err)
	}
	conn.SetReadDeadline(time.Time{})
	if ackEnv.Type != MsgPlayerConnect {
		conn.Close()
		return fmt.Errorf("connect handshake: unexpected %s", ackEnv.Type)
	}
	var ack ConnectAckPayload
	if err := ackEnv.Decode(&ack); err != nil {
		conn.Close()
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.playerID = ack.PlayerID
	c.gameID = ack.GameID
	c.lastPongAt = time.Now()
	c.mu.Unlock()

	c.logger.Info("connected",
		zap.String("url", c.cfg.URL),
		zap.Int("player_id", ack.PlayerID))

	go c.readPump(conn)
	go c.heartbeatLoop()
	go c.monitorLoop()
	return nil
}

// On registers a listener for one message type and returns its handle.
func (c *Client) On(t MessageType, fn func(Envelope)) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextHandle++
	if c.listeners[t] == nil {
		c.listeners[t] = make(map[int]func(Envelope))
	}
	c.listeners[t][c.nextHandle] = fn
	return c.nextHandle
}

// Off removes a listener by handle.
func (c *Client) Off(handle int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, m := range c.listeners {
		delete(m, handle)
	}
}

// GameID and PlayerID identify the joined seat (set once the hub pairs
// the player).
func (c *Client) GameID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gameID
}

func (c *Client) PlayerID() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

// RTT is the last measured round-trip time.
func (c *Client) RTT() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rtt
}

// Cadence is the currently tuned sync cadence.
func (c *Client) Cadence() Cadence {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cadence
}

// Quality is the current connection quality bucket.
func (c *Client) Quality() Quality {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.quality
}

// SendGameAction forwards a local action to the hub tagged with the
// session's game and seat.
func (c *Client) SendGameAction(actionType game.ActionType, data game.ActionData) error {
	c.mu.Lock()
	gameID, playerID := c.gameID, c.playerID
	c.mu.Unlock()
	if gameID == "" {
		return fmt.Errorf("sendGameAction: no game joined")
	}
	env, err := NewEnvelope(MsgPlayerAction, ActionPayload{
		GameID:     gameID,
		PlayerID:   playerID,
		ActionType: actionType,
		ActionData: data,
	})
	if err != nil {
		return err
	}
	return c.send(env)
}

// SendChat relays a chat line to the opponent.
func (c *Client) SendChat(message string) error {
	c.mu.Lock()
	gameID, playerID := c.gameID, c.playerID
	c.mu.Unlock()
	env, err := NewEnvelope(MsgChatMessage, ChatPayload{
		GameID:    gameID,
		PlayerID:  playerID,
		Message:   message,
		Timestamp: time.Now(),
	})
	if err != nil {
		return err
	}
	return c.send(env)
}

// Close tears the session down and cancels any pending reconnect. No
// further reconnects are attempted.
func (c *Client) Close() error {
	c.mu.Lock()
	c.closed = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()

	c.once.Do(func() { close(c.done) })
	if conn != nil {
		return conn.Close()
	}
	return nil
}

func (c *Client) send(env Envelope) error {
	c.mu.Lock()
	conn := c.conn
	closed := c.closed
	c.mu.Unlock()
	if closed || conn == nil {
		return fmt.Errorf("send %s: not connected", env.Type)
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := conn.WriteJSON(env); err != nil {
		return fmt.Errorf("send %s: %w", env.Type, err)
	}
	return nil
}

func (c *Client) readPump(conn *websocket.Conn) {
	for {
		var env Envelope
		if err := conn.ReadJSON(&env); err != nil {
			c.handleDisconnect(err)
			return
		}
		c.handleMessage(env)
	}
}

func (c *Client) handleMessage(env Envelope) {
	switch env.Type {
	case MsgPong:
		var pong PongPayload
		if err := env.Decode(&pong); err == nil {
			c.mu.Lock()
			c.pongsRecv++
			c.lastPongAt = time.Now()
			c.rtt = time.Duration(time.Now().UnixMilli()-pong.SentAt) * time.Millisecond
			c.lossFlagged = false
			c.mu.Unlock()
		}
		return
	case MsgPing:
		var ping PingPayload
		if err := env.Decode(&ping); err == nil {
			if reply, err := NewEnvelope(MsgPong, PongPayload(ping)); err == nil {
				c.send(reply)
			}
		}
		return
	case MsgGameCreated:
		var created GameCreatedPayload
		if err := env.Decode(&created); err == nil {
			c.mu.Lock()
			c.gameID = created.GameID
			c.playerID = created.PlayerID
			c.mu.Unlock()
		}
	case MsgGameJoined:
		var joined GameJoinedPayload
		if err := env.Decode(&joined); err == nil {
			c.mu.Lock()
			c.gameID = joined.GameID
			c.playerID = joined.PlayerID
			c.mu.Unlock()
		}
	}
	c.dispatch(env)
}

func (c *Client) dispatch(env Envelope) {
	c.mu.Lock()
	fns := make([]func(Envelope), 0, len(c.listeners[env.Type]))
	for _, fn := range c.listeners[env.Type] {
		fns = append(fns, fn)
	}
	c.mu.Unlock()
	for _, fn := range fns {
		c.safeCall(fn, env)
	}
}

func (c *Client) safeCall(fn func(Envelope), env Envelope) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("message listener panicked",
				zap.String("type", string(env.Type)),
				zap.Any("panic", r))
		}
	}()
	fn(env)
}

// handleDisconnect runs when the read pump dies. A deliberate Close is
// quiet; anything else raises a disconnected event and starts the backoff.
func (c *Client) handleDisconnect(err error) {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.logger.Warn("connection lost", zap.Error(err))
	c.dispatch(Envelope{Type: MsgDisconnected})
	c.scheduleReconnect()
}

// scheduleReconnect arms the next backoff attempt. A reconnect already in
// flight is never restarted; exhausting the attempt budget is terminal.
func (c *Client) scheduleReconnect() {
	c.mu.Lock()
	if c.closed || c.reconnecting {
		c.mu.Unlock()
		return
	}
	if c.attempts >= c.cfg.MaxReconnectAttempts {
		c.closed = true
		c.mu.Unlock()
		c.logger.Error("reconnect attempts exhausted",
			zap.Int("attempts", c.cfg.MaxReconnectAttempts))
		if env, err := NewEnvelope(MsgError, ErrorPayload{
			Code:    "reconnect_exhausted",
			Message: "connection abandoned after maximum reconnect attempts",
		}); err == nil {
			c.dispatch(env)
		}
		return
	}
	c.attempts++
	c.reconnecting = true
	delay := backoffDelay(c.cfg.ReconnectDelay, c.attempts)
	c.logger.Info("scheduling reconnect",
		zap.Int("attempt", c.attempts),
		zap.Duration("delay", delay))
	c.reconnectTimer = time.AfterFunc(delay, c.attemptReconnect)
	c.mu.Unlock()
}

func (c *Client) attemptReconnect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.HandshakeTimeout)
	defer cancel()

	conn, err := c.dial(ctx)
	if err != nil {
		c.mu.Lock()
		c.reconnecting = false
		c.mu.Unlock()
		c.logger.Warn("reconnect failed", zap.Error(err))
		c.scheduleReconnect()
		return
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return
	}
	c.conn = conn
	c.reconnecting = false
	c.attempts = 0
	c.lastPongAt = time.Now()
	gameID, playerID, name := c.gameID, c.playerID, c.cfg.PlayerName
	c.mu.Unlock()

	// Re-announce the seat so the hub reattaches us to the game.
	rejoin, err := NewEnvelope(MsgPlayerConnect, ConnectPayload{
		PlayerName: name,
		GameID:     gameID,
		PlayerID:   playerID,
		Rejoin:     true,
	})
	if err == nil {
		c.send(rejoin)
	}

	c.logger.Info("reconnected", zap.String("game_id", gameID))
	go c.readPump(conn)
}

// heartbeatLoop pings on a fixed interval and watches pong freshness:
// silence past two intervals flags packet loss, past three forces a
// reconnect by killing the connection.
func (c *Client) heartbeatLoop() {
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
			c.heartbeatTick()
		}
	}
}

// heartbeatTick is one heartbeat interval's worth of work.
func (c *Client) heartbeatTick() {
	c.mu.Lock()
	conn := c.conn
	silence := time.Since(c.lastPongAt)
	c.mu.Unlock()
	if conn == nil {
		return
	}

	if silence > 3*c.cfg.HeartbeatInterval {
		c.logger.Warn("heartbeat timed out, forcing reconnect",
			zap.Duration("silence", silence))
		conn.Close() // readPump surfaces the error and reconnects
		return
	}
	if silence > 2*c.cfg.HeartbeatInterval {
		c.mu.Lock()
		c.lossFlagged = true
		c.mu.Unlock()
		c.logger.Warn("packet loss suspected", zap.Duration("silence", silence))
	}

	c.mu.Lock()
	c.pingSeq++
	c.pingsSent++
	ping := PingPayload{Seq: c.pingSeq, SentAt: time.Now().UnixMilli()}
	c.mu.Unlock()
	if env, err := NewEnvelope(MsgPing, ping); err == nil {
		c.send(env)
	}
}

// monitorLoop recomputes the adaptive cadence from measured latency and
// loss on a fixed tick.
func (c *Client) monitorLoop() {
	ticker := time.NewTicker(c.cfg.MonitorInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.done:
			return
		case <-ticker.C:
		}

		c.mu.Lock()
		loss := 0.0
		if c.pingsSent > 0 {
			loss = 1 - float64(c.pongsRecv)/float64(c.pingsSent)
			if loss < 0 {
				loss = 0
			}
		}
		if c.lossFlagged && loss < 0.10 {
			loss = 0.10
		}
		c.pingsSent, c.pongsRecv = 0, 0
		c.quality = classifyQuality(c.rtt, loss)
		c.cadence = cadenceFor(c.cfg.DeviceClass, c.quality)
		quality, cadence := c.quality, c.cadence
		c.mu.Unlock()

		c.logger.Debug("connection quality",
			zap.String("quality", string(quality)),
			zap.Duration("update_interval", cadence.UpdateInterval),
			zap.Bool("compress", cadence.Compress))
	}
}
