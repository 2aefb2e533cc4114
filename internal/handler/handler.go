package handler

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"

	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/game"
	"github.com/nathanyu/trading-game/internal/marketdata"
	"github.com/nathanyu/trading-game/internal/session"
	"github.com/nathanyu/trading-game/internal/telemetry"
	"github.com/nathanyu/trading-game/internal/transport"
)

const (
	defaultDepth = 10
	queryTimeout = 5 * time.Second
)

// Handler holds the HTTP handler dependencies.
type Handler struct {
	games     *session.Manager
	hub       *transport.Hub
	publisher *marketdata.Publisher
}

// NewHandler creates a new Handler.
func NewHandler(games *session.Manager, hub *transport.Hub, publisher *marketdata.Publisher) *Handler {
	return &Handler{
		games:     games,
		hub:       hub,
		publisher: publisher,
	}
}

// RegisterRoutes sets up the Gin routes.
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	r.GET("/health", h.Health)
	r.GET("/api/ws/:gameId", h.Connect)

	v1 := r.Group("/v1")
	{
		v1.GET("/games", h.ListGames)
		v1.POST("/games", h.CreateGame)
		v1.DELETE("/games/:id", h.CloseGame)
		v1.GET("/games/:id/state", h.GetState)
		v1.GET("/games/:id/orderbook", h.GetOrderBook)
		v1.GET("/games/:id/trades", h.GetTrades)
		v1.GET("/games/:id/candles", h.GetCandles)
	}
}

// Health returns a health check response.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": telemetry.ServiceName,
		"games":   len(h.games.IDs()),
	})
}

// Connect handles GET /api/ws/:gameId and hands the connection to the hub.
func (h *Handler) Connect(c *gin.Context) {
	seq, err := h.games.GetOrCreate(c.Param("gameId"))
	if err != nil {
		fail(c, err)
		return
	}
	h.hub.Serve(c.Writer, c.Request, seq)
}

// ListGames handles GET /v1/games.
func (h *Handler) ListGames(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"games": h.games.IDs()})
}

// CreateGameRequest is the optional request body for creating a game.
type CreateGameRequest struct {
	GameID string `json:"gameId"`
}

// CreateGame handles POST /v1/games.
func (h *Handler) CreateGame(c *gin.Context) {
	var req CreateGameRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	}

	seq, err := h.games.Create(req.GameID)
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"gameId": seq.GameID()})
}

// CloseGame handles DELETE /v1/games/:id.
func (h *Handler) CloseGame(c *gin.Context) {
	id := c.Param("id")
	if err := h.games.Close(id); err != nil {
		fail(c, err)
		return
	}
	h.publisher.Forget(id)
	c.Status(http.StatusNoContent)
}

// GetState handles GET /v1/games/:id/state. HTTP callers are anonymous, so
// they get the public view; balances, orders and trades of a player are
// only sent over that player's websocket.
func (h *Handler) GetState(c *gin.Context) {
	var snap domain.Snapshot
	err := h.query(c, func(g *game.Game) {
		snap = g.Snapshot("")
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, snap)
}

// GetOrderBook handles GET /v1/games/:id/orderbook?depth=.
func (h *Handler) GetOrderBook(c *gin.Context) {
	depth, err := strconv.Atoi(c.DefaultQuery("depth", strconv.Itoa(defaultDepth)))
	if err != nil || depth <= 0 {
		depth = defaultDepth
	}

	var book domain.ConsolidatedBook
	err = h.query(c, func(g *game.Game) {
		book = g.Book().Consolidated(depth)
	})
	if err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, book)
}

// tradePrint is a trade on the public tape, without its counterparties.
type tradePrint struct {
	ID       string `json:"id"`
	Stock    string `json:"stock"`
	Round    int    `json:"round"`
	Seq      int    `json:"seq"`
	Price    int64  `json:"price"`
	Quantity int64  `json:"quantity"`
}

// GetTrades handles GET /v1/games/:id/trades?round=.
func (h *Handler) GetTrades(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.games.Get(id); err != nil {
		fail(c, err)
		return
	}

	round := 0
	if s := c.Query("round"); s != "" {
		r, err := strconv.Atoi(s)
		if err != nil || r <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "round must be a positive integer"})
			return
		}
		round = r
	}
	trades := h.publisher.GetTrades(id, round)
	prints := make([]tradePrint, 0, len(trades))
	for _, t := range trades {
		prints = append(prints, tradePrint{
			ID:       t.ID,
			Stock:    t.Stock,
			Round:    t.Round,
			Seq:      t.Seq,
			Price:    t.Price,
			Quantity: t.Quantity,
		})
	}
	c.JSON(http.StatusOK, prints)
}

// GetCandles handles GET /v1/games/:id/candles.
func (h *Handler) GetCandles(c *gin.Context) {
	id := c.Param("id")
	if _, err := h.games.Get(id); err != nil {
		fail(c, err)
		return
	}
	c.JSON(http.StatusOK, h.publisher.GetCandles(id))
}

// query runs fn on the loop of the game named by the :id parameter.
func (h *Handler) query(c *gin.Context, fn func(*game.Game)) error {
	seq, err := h.games.Get(c.Param("id"))
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	return seq.Query(ctx, fn)
}

// fail writes err with the status matching its kind.
func fail(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrUnknownGame):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	c.JSON(status, gin.H{
		"kind":  domain.KindOf(err),
		"error": err.Error(),
	})
}
