package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	ActiveWebSocketConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshconf_active_websocket_connections",
		Help: "Number of active WebSocket connections",
	})

	WebSocketConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshconf_websocket_connections_total",
		Help: "Total number of WebSocket connections",
	})

	WebSocketDisconnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshconf_websocket_disconnections_total",
		Help: "Total number of WebSocket disconnections",
	})

	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshconf_active_rooms",
		Help: "Number of rooms with at least one participant",
	})

	ActiveParticipants = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "meshconf_active_participants",
		Help: "Number of participants across all rooms",
	})

	RoomsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshconf_rooms_created_total",
		Help: "Total number of rooms created",
	})

	RoomsDeletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshconf_rooms_deleted_total",
		Help: "Total number of rooms deleted after becoming empty",
	})

	SignalMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshconf_signal_messages_total",
		Help: "Total signaling messages by event",
	}, []string{"event", "direction"}) // direction: "in" | "out"

	ChatMessagesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "meshconf_chat_messages_total",
		Help: "Total chat messages broadcast",
	})

	DroppedMessagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshconf_dropped_messages_total",
		Help: "Signaling messages dropped without delivery",
	}, []string{"reason"}) // "missing_target" | "unknown_target" | "malformed" | "slow_consumer"

	// Client-side gauges; the headless agent shares this package in-process.
	ActivePeerLinks = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "meshconf_active_peer_links",
		Help: "Number of peer links by negotiation state",
	}, []string{"state"})

	PeerLinkFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "meshconf_peer_link_failures_total",
		Help: "Peer links torn down abnormally",
	}, []string{"reason"}) // "timeout" | "transport" | "negotiation"
)
