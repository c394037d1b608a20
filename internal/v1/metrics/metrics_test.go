package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestConnectionGauge(t *testing.T) {
	before := testutil.ToFloat64(ActiveConnections)

	IncConnection()
	assert.Equal(t, before+1, testutil.ToFloat64(ActiveConnections))

	DecConnection()
	assert.Equal(t, before, testutil.ToFloat64(ActiveConnections))
}

func TestRoomPlayersGauge(t *testing.T) {
	RoomPlayers.WithLabelValues("metrics-test-room").Set(5)
	assert.Equal(t, 5.0, testutil.ToFloat64(RoomPlayers.WithLabelValues("metrics-test-room")))

	RoomPlayers.DeleteLabelValues("metrics-test-room")
}

func TestCountersRegister(t *testing.T) {
	// Touch every counter once; promauto panics at init on duplicate
	// registration, so reaching here already proves the registry is sane.
	Messages.WithLabelValues("Key", "ok").Inc()
	Keystrokes.WithLabelValues("ok").Inc()
	RacesStarted.Inc()
	RacesFinished.Inc()
	SubscribersDropped.Inc()
	PassageSource.WithLabelValues("static").Inc()
	PassageFetchDuration.Observe(0.002)
}
