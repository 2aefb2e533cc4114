// Package transport serves game clients over websockets.
package transport

import (
	"context"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/protocol"
	"github.com/nathanyu/trading-game/internal/sequencer"
	"github.com/nathanyu/trading-game/internal/telemetry"
)

const (
	writeDeadline  = 5 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 50 * time.Second
	commandTimeout = 5 * time.Second
	maxMessageSize = 64 << 10
)

// Hub tracks the websocket clients of every game and delivers each of them
// its own view of the game after every change.
type Hub struct {
	mu      sync.RWMutex
	clients map[string]map[*client]struct{} // gameID -> clients

	upgrader   websocket.Upgrader
	sendBuffer int
	logger     *zap.Logger
}

// NewHub creates a hub. allowedOrigins lists the browser origins allowed to
// connect; "*" allows any.
func NewHub(allowedOrigins []string, sendBuffer int, logger *zap.Logger) *Hub {
	h := &Hub{
		clients:    make(map[string]map[*client]struct{}),
		sendBuffer: sendBuffer,
		logger:     logger.Named("ws"),
	}
	h.upgrader = websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || slices.Contains(allowedOrigins, "*") || slices.Contains(allowedOrigins, origin)
		},
	}
	return h
}

// client is one websocket connection. It is bound to a player by its first
// successful JOIN and may only issue commands for that player afterwards.
type client struct {
	hub  *Hub
	game *sequencer.Sequencer
	conn *websocket.Conn
	send chan []byte
	done chan struct{}

	mu       sync.Mutex
	playerID string
}

func (c *client) player() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playerID
}

func (c *client) bind(playerID string) {
	c.mu.Lock()
	c.playerID = playerID
	c.mu.Unlock()
}

// Serve upgrades the request and attaches the connection to game.
func (h *Hub) Serve(w http.ResponseWriter, r *http.Request, game *sequencer.Sequencer) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	c := &client{
		hub:  h,
		game: game,
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}
	h.register(c)

	go h.writePump(c)
	go h.readPump(c)
}

// Publish renders one snapshot per connected client of the game and queues
// it without blocking. It runs on the game's loop.
func (h *Hub) Publish(gameID string, view func(viewerID string) domain.Snapshot) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients[gameID] {
		data, err := protocol.EncodeUpdate(view(c.player()))
		if err != nil {
			h.logger.Error("encode update", zap.String("game", gameID), zap.Error(err))
			continue
		}
		h.enqueue(c, data)
	}
}

// Clients returns the number of connections attached to a game.
func (h *Hub) Clients(gameID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[gameID])
}

func (h *Hub) enqueue(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.logger.Warn("dropping message for slow client",
			zap.String("game", c.game.GameID()),
			zap.String("player", c.player()),
		)
	}
}

func (h *Hub) register(c *client) {
	gameID := c.game.GameID()
	h.mu.Lock()
	if h.clients[gameID] == nil {
		h.clients[gameID] = make(map[*client]struct{})
	}
	h.clients[gameID][c] = struct{}{}
	h.mu.Unlock()

	telemetry.WSConnections.Inc()
	h.logger.Info("client connected", zap.String("game", gameID))
}

func (h *Hub) unregister(c *client) {
	gameID := c.game.GameID()
	h.mu.Lock()
	_, ok := h.clients[gameID][c]
	delete(h.clients[gameID], c)
	if len(h.clients[gameID]) == 0 {
		delete(h.clients, gameID)
	}
	h.mu.Unlock()

	if ok {
		telemetry.WSConnections.Dec()
		h.logger.Info("client disconnected", zap.String("game", gameID), zap.String("player", c.player()))
	}
}

// writePump drains the client's send channel and writes to the connection.
// It exits when the read side is done or a write fails.
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				h.logger.Debug("write failed", zap.Error(err))
				return
			}
		case <-c.done:
			h.flush(c)
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// flush writes what is still queued, such as the ERROR that ended the
// connection.
func (h *Hub) flush(c *client) {
	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeDeadline))
			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// readPump reads commands from the connection and hands them to the game.
// It owns the client lifecycle: on exit the client is unregistered, its
// player is marked offline and the write side is told to stop.
func (h *Hub) readPump(c *client) {
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("recovered panic in read loop", zap.Any("panic", r), zap.Stack("stack"))
		}
		h.unregister(c)
		close(c.done)
		h.disconnect(c)
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				h.logger.Debug("read failed", zap.Error(err))
			}
			return
		}
		if err := h.dispatch(c, msg); err != nil {
			h.reject(c, err)
			if errors.Is(err, domain.ErrInternal) || errors.Is(err, domain.ErrUnknownGame) {
				return
			}
		}
	}
}

// dispatch decodes one message and runs it through the game.
func (h *Hub) dispatch(c *client, msg []byte) error {
	cmd, err := protocol.Decode(msg)
	if err != nil {
		return err
	}

	bound := c.player()
	join, isJoin := cmd.(domain.JoinCommand)
	switch {
	case bound == "" && !isJoin:
		return domain.Invalid("join the game before sending %s", cmd.Type())
	case bound != "" && cmd.Issuer() != bound:
		return domain.Invalid("connection is bound to player %s", bound)
	}
	if isJoin && bound == "" {
		// Bind before the game publishes the join, so this client already
		// receives its own view.
		c.bind(join.PlayerID)
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.game.Submit(ctx, cmd); err != nil {
		if isJoin && bound == "" {
			c.bind("")
		}
		return err
	}
	return nil
}

// reject sends an ERROR to this client only.
func (h *Hub) reject(c *client, err error) {
	h.logger.Debug("command rejected",
		zap.String("game", c.game.GameID()),
		zap.String("player", c.player()),
		zap.Error(err),
	)
	data, encErr := protocol.EncodeError(err)
	if encErr != nil {
		h.logger.Error("encode error", zap.Error(encErr))
		return
	}
	h.enqueue(c, data)
}

func (h *Hub) disconnect(c *client) {
	playerID := c.player()
	if playerID == "" || h.connected(c.game.GameID(), playerID) {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := c.game.Submit(ctx, domain.DisconnectCommand{PlayerID: playerID}); err != nil && !errors.Is(err, domain.ErrUnknownGame) {
		h.logger.Warn("disconnect", zap.String("player", playerID), zap.Error(err))
	}
}

// connected reports whether playerID still has a connection to the game.
func (h *Hub) connected(gameID, playerID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients[gameID] {
		if c.player() == playerID {
			return true
		}
	}
	return false
}
