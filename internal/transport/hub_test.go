package transport

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/nathanyu/trading-game/internal/config"
	"github.com/nathanyu/trading-game/internal/domain"
	"github.com/nathanyu/trading-game/internal/protocol"
	"github.com/nathanyu/trading-game/internal/session"
)

type message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

func newTestServer(t *testing.T) (*httptest.Server, *Hub) {
	t.Helper()
	cfg := config.Default()
	cfg.Game.Seed = 1
	cfg.Game.MarketMakers = 0
	cfg.Game.RoundDuration = 0

	hub := NewHub([]string{"*"}, 16, zap.NewNop())
	manager := session.NewManager(cfg.Game, cfg.Session, hub, zap.NewNop())
	t.Cleanup(manager.Shutdown)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		game, err := manager.GetOrCreate(strings.TrimPrefix(r.URL.Path, "/ws/"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusNotFound)
			return
		}
		hub.Serve(w, r, game)
	}))
	t.Cleanup(srv.Close)
	return srv, hub
}

func dial(t *testing.T, srv *httptest.Server, gameID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/" + gameID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, msgType string, payload any) {
	t.Helper()
	body, err := json.Marshal(payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(message{Type: msgType, Payload: body}))
}

// next reads until a message of msgType arrives.
func next(t *testing.T, conn *websocket.Conn, msgType string) message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	for {
		var msg message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == msgType {
			return msg
		}
	}
}

func nextSnapshot(t *testing.T, conn *websocket.Conn, match func(domain.Snapshot) bool) domain.Snapshot {
	t.Helper()
	for {
		msg := next(t, conn, protocol.TypeGameUpdate)
		var snap domain.Snapshot
		require.NoError(t, json.Unmarshal(msg.Payload, &snap))
		if match(snap) {
			return snap
		}
	}
}

func nextError(t *testing.T, conn *websocket.Conn) protocol.ErrorPayload {
	t.Helper()
	msg := next(t, conn, protocol.TypeError)
	var payload protocol.ErrorPayload
	require.NoError(t, json.Unmarshal(msg.Payload, &payload))
	return payload
}

func TestHub_JoinReceivesOwnView(t *testing.T) {
	srv, hub := newTestServer(t)
	monitor := dial(t, srv, "g1")
	player := dial(t, srv, "g1")

	send(t, monitor, "JOIN", map[string]any{"playerId": "M", "playerName": "monitor", "isMonitor": true})
	nextSnapshot(t, monitor, func(s domain.Snapshot) bool { return len(s.Players) == 1 })

	send(t, player, "PLAYER_JOIN", map[string]any{"playerId": "P1", "playerName": "alice"})
	snap := nextSnapshot(t, player, func(s domain.Snapshot) bool { return len(s.Players) == 2 })
	for _, p := range snap.Players {
		if p.ID == "P1" {
			require.NotNil(t, p.Cash)
			assert.Equal(t, int64(10_000), *p.Cash)
		} else {
			assert.Nil(t, p.Cash)
		}
	}

	snap = nextSnapshot(t, monitor, func(s domain.Snapshot) bool { return len(s.Players) == 2 })
	for _, p := range snap.Players {
		assert.NotNil(t, p.Cash, p.ID)
	}
	assert.Equal(t, 2, hub.Clients("g1"))
}

func TestHub_ErrorGoesToSenderOnly(t *testing.T) {
	srv, _ := newTestServer(t)
	monitor := dial(t, srv, "g1")
	player := dial(t, srv, "g1")

	send(t, monitor, "JOIN", map[string]any{"playerId": "M", "playerName": "monitor", "isMonitor": true})
	nextSnapshot(t, monitor, func(s domain.Snapshot) bool { return len(s.Players) == 1 })
	send(t, player, "JOIN", map[string]any{"playerId": "P1", "playerName": "alice"})
	nextSnapshot(t, player, func(s domain.Snapshot) bool { return len(s.Players) == 2 })
	nextSnapshot(t, monitor, func(s domain.Snapshot) bool { return len(s.Players) == 2 })

	// the game has not started
	send(t, player, "SUBMIT_ORDER", map[string]any{"playerId": "P1", "side": "BUY", "price": 10, "quantity": 1})
	errPayload := nextError(t, player)
	assert.Equal(t, domain.KindValidation, errPayload.Kind)

	send(t, player, "PLAYER_DONE", map[string]any{"playerId": "M"})
	errPayload = nextError(t, player)
	assert.Contains(t, errPayload.Message, "bound to player P1")

	require.NoError(t, player.WriteMessage(websocket.TextMessage, []byte("not json")))
	errPayload = nextError(t, player)
	assert.Contains(t, errPayload.Message, "malformed message")

	// the monitor saw none of it
	require.NoError(t, monitor.SetReadDeadline(time.Now().Add(150*time.Millisecond)))
	_, _, err := monitor.ReadMessage()
	assert.Error(t, err)
}

func TestHub_CommandBeforeJoinRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	conn := dial(t, srv, "g1")

	send(t, conn, "START", map[string]any{"playerId": "M"})

	errPayload := nextError(t, conn)
	assert.Equal(t, domain.KindValidation, errPayload.Kind)
	assert.Contains(t, errPayload.Message, "join the game")
}

func TestHub_DisconnectMarksPlayerOffline(t *testing.T) {
	srv, hub := newTestServer(t)
	monitor := dial(t, srv, "g1")
	player := dial(t, srv, "g1")

	send(t, monitor, "JOIN", map[string]any{"playerId": "M", "playerName": "monitor", "isMonitor": true})
	send(t, player, "JOIN", map[string]any{"playerId": "P1", "playerName": "alice"})
	nextSnapshot(t, player, func(s domain.Snapshot) bool { return len(s.Players) == 2 })

	require.NoError(t, player.Close())

	nextSnapshot(t, monitor, func(s domain.Snapshot) bool {
		for _, p := range s.Players {
			if p.ID == "P1" {
				return !p.IsOnline
			}
		}
		return false
	})
	assert.Equal(t, 1, hub.Clients("g1"))
}

func TestHub_FullRound(t *testing.T) {
	srv, _ := newTestServer(t)
	monitor := dial(t, srv, "g1")
	alice := dial(t, srv, "g1")
	bob := dial(t, srv, "g1")

	send(t, monitor, "JOIN", map[string]any{"playerId": "M", "playerName": "monitor", "isMonitor": true})
	send(t, alice, "JOIN", map[string]any{"playerId": "P1", "playerName": "alice"})
	send(t, bob, "JOIN", map[string]any{"playerId": "P2", "playerName": "bob"})
	nextSnapshot(t, monitor, func(s domain.Snapshot) bool { return len(s.Players) == 3 })

	send(t, monitor, "START", map[string]any{"playerId": "M"})
	nextSnapshot(t, alice, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseTrading })
	nextSnapshot(t, bob, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseTrading })

	send(t, alice, "SUBMIT_ORDER", map[string]any{"playerId": "P1", "side": "BUY", "price": 55, "quantity": 5})
	nextSnapshot(t, alice, func(s domain.Snapshot) bool { return len(s.Orders) == 1 })
	send(t, monitor, "FORCE_CLOSE", map[string]any{"playerId": "M"})

	snap := nextSnapshot(t, alice, func(s domain.Snapshot) bool { return s.Phase == domain.PhaseResults })
	assert.Equal(t, 1, snap.Round)
	assert.Empty(t, snap.Trades)
	// only buyers were left: the price decays 5% from the bid
	assert.Equal(t, int64(52), snap.CurrentPrices[domain.DefaultInstrument])
}
