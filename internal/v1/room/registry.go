package room

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/metrics"
)

// defaultRetireGrace is how long an empty room lingers before retirement, so
// a brief reconnect does not lose the room.
const defaultRetireGrace = 10 * time.Second

// Registry maps room names to live rooms and owns their lifetimes. Rooms are
// created on first join and retired after a grace period once empty.
type Registry struct {
	mu      sync.Mutex
	rooms   map[string]*Room
	pending map[string]*time.Timer
	opts    Options
	grace   time.Duration
}

// NewRegistry builds a registry whose rooms inherit opts. A non-positive
// grace takes the default.
func NewRegistry(opts Options, grace time.Duration) *Registry {
	if grace <= 0 {
		grace = defaultRetireGrace
	}
	g := &Registry{
		rooms:   make(map[string]*Room),
		pending: make(map[string]*time.Timer),
		grace:   grace,
	}
	opts.OnEmpty = g.scheduleRetire
	g.opts = opts
	return g
}

// GetOrCreate returns the named room, creating it if absent. Any pending
// retirement for the name is cancelled, and the returned room carries a claim
// that keeps it off the retirement path until the caller's join settles: the
// caller must Release it.
func (g *Registry) GetOrCreate(name string) *Room {
	g.mu.Lock()
	defer g.mu.Unlock()

	if t, ok := g.pending[name]; ok {
		t.Stop()
		delete(g.pending, name)
	}
	if r, ok := g.rooms[name]; ok {
		r.claims.Add(1)
		return r
	}

	r := NewRoom(name, g.opts)
	r.claims.Add(1)
	g.rooms[name] = r
	metrics.ActiveRooms.Inc()
	logging.Info(logging.WithRoom(context.Background(), name), "room created",
		zap.Int("rooms", len(g.rooms)))
	return r
}

// Len reports the number of live rooms.
func (g *Registry) Len() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// scheduleRetire arms the grace timer for a room that just went empty. Rooms
// call this from their controller goroutine.
func (g *Registry) scheduleRetire(name string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.rooms[name]; !ok {
		return
	}
	if t, ok := g.pending[name]; ok {
		t.Stop()
	}
	g.pending[name] = time.AfterFunc(g.grace, func() { g.retire(name) })
}

// retire removes and stops the room unless someone came back during the
// grace period.
func (g *Registry) retire(name string) {
	g.mu.Lock()
	delete(g.pending, name)
	r, ok := g.rooms[name]
	if ok && r.Occupied() {
		ok = false
	}
	if ok {
		delete(g.rooms, name)
	}
	g.mu.Unlock()
	if !ok {
		return
	}

	r.Stop()
	<-r.Done()
	metrics.ActiveRooms.Dec()
	metrics.RoomPlayers.DeleteLabelValues(name)
	logging.Info(logging.WithRoom(context.Background(), name), "room retired")
}

// Shutdown stops every room and waits for their controllers to exit, bounded
// by ctx.
func (g *Registry) Shutdown(ctx context.Context) error {
	g.mu.Lock()
	for _, t := range g.pending {
		t.Stop()
	}
	g.pending = make(map[string]*time.Timer)
	rooms := make([]*Room, 0, len(g.rooms))
	for _, r := range g.rooms {
		rooms = append(rooms, r)
	}
	g.rooms = make(map[string]*Room)
	g.mu.Unlock()

	for _, r := range rooms {
		r.Stop()
	}
	for _, r := range rooms {
		select {
		case <-r.Done():
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}
