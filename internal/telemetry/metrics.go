package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// OrdersTotal counts order submissions by side and outcome.
	OrdersTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_orders_total",
			Help: "Total number of order submissions by side and result",
		},
		[]string{"side", "result"},
	)

	// CommandErrors counts rejected commands by command type and error kind.
	CommandErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_command_errors_total",
			Help: "Total number of rejected commands",
		},
		[]string{"command", "kind"},
	)

	// TradesTotal counts trades produced by the auctions.
	TradesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "game_trades_total",
			Help: "Total number of trades",
		},
	)

	// TradedVolume counts shares traded.
	TradedVolume = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "game_traded_volume_total",
			Help: "Total number of shares traded",
		},
	)

	// RoundsProcessed counts processed rounds by what closed them.
	RoundsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_rounds_processed_total",
			Help: "Total number of processed rounds by trigger",
		},
		[]string{"trigger"},
	)

	// ReferencePrice tracks the current reference price of each game.
	ReferencePrice = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "game_reference_price",
			Help: "Current reference price",
		},
		[]string{"game"},
	)

	// ActiveGames tracks the number of live game sessions.
	ActiveGames = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "game_sessions_active",
			Help: "Number of live game sessions",
		},
	)

	// WSConnections tracks open websocket connections.
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "game_ws_connections",
			Help: "Number of open websocket connections",
		},
	)

	// SequencerInboundSeq tracks the latest inbound sequence number.
	SequencerInboundSeq = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "game_sequencer_inbound_seq",
			Help: "Current inbound sequence number",
		},
		[]string{"game"},
	)

	// SequencerOutboundSeq tracks the latest outbound sequence number.
	SequencerOutboundSeq = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "game_sequencer_outbound_seq",
			Help: "Current outbound sequence number",
		},
		[]string{"game"},
	)

	// QueueMessagesPublished counts round events sent to the message bus.
	QueueMessagesPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "game_queue_messages_published_total",
			Help: "Total number of round events published to NATS by result",
		},
		[]string{"result"},
	)
)
