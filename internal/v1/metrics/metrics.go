package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics for the typing-race server.
//
// Naming convention: namespace_subsystem_name
// - namespace: rracer
// - subsystem: websocket, room, race, passages
//
// Gauges carry current state, counters cumulative events, histograms latency.

var (
	// ActiveConnections tracks the current number of open WebSocket connections
	ActiveConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rracer",
		Subsystem: "websocket",
		Name:      "connections_active",
		Help:      "Current number of active WebSocket connections",
	})

	// ActiveRooms tracks the current number of live rooms
	ActiveRooms = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "rracer",
		Subsystem: "room",
		Name:      "rooms_active",
		Help:      "Current number of active rooms",
	})

	// RoomPlayers tracks the number of players (humans and bots) per room
	RoomPlayers = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "rracer",
		Subsystem: "room",
		Name:      "players_count",
		Help:      "Number of players in each room",
	}, []string{"room"})

	// Messages tracks inbound client messages by type and outcome
	Messages = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rracer",
		Subsystem: "websocket",
		Name:      "messages_total",
		Help:      "Total client messages processed",
	}, []string{"type", "status"})

	// Keystrokes tracks keystroke validation outcomes
	Keystrokes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rracer",
		Subsystem: "race",
		Name:      "keystrokes_total",
		Help:      "Total keystrokes by validation result",
	}, []string{"result"}) // ok | miss | limited | dropped

	// RacesStarted counts Countdown→Racing transitions
	RacesStarted = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rracer",
		Subsystem: "race",
		Name:      "started_total",
		Help:      "Total races started",
	})

	// RacesFinished counts Racing→Finished transitions
	RacesFinished = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rracer",
		Subsystem: "race",
		Name:      "finished_total",
		Help:      "Total races finished",
	})

	// SubscribersDropped counts slow subscribers dropped on bus overflow
	SubscribersDropped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "rracer",
		Subsystem: "room",
		Name:      "subscribers_dropped_total",
		Help:      "Subscribers dropped for lagging behind the broadcast bus",
	})

	// PassageFetchDuration tracks passage provider latency
	PassageFetchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "rracer",
		Subsystem: "passages",
		Name:      "fetch_seconds",
		Help:      "Time spent fetching a passage",
		Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5},
	})

	// PassageSource counts where passages came from
	PassageSource = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "rracer",
		Subsystem: "passages",
		Name:      "source_total",
		Help:      "Passages served by source",
	}, []string{"source"}) // db | static
)

func IncConnection() {
	ActiveConnections.Inc()
}

func DecConnection() {
	ActiveConnections.Dec()
}
