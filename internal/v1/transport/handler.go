// Package transport bridges WebSocket connections to rooms: upgrade, frame
// decode, the first-frame Join handshake, and per-connection rate limiting.
package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	"go.uber.org/zap"

	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/metrics"
	"rracer/server/internal/v1/room"
)

// Hub accepts WebSocket connections and hands them to the room registry.
type Hub struct {
	registry       *room.Registry
	allowedOrigins []string
	keyLimiter     *limiter.Limiter
}

// NewHub builds a Hub. keyRate is a ulule-formatted rate ("200-S") applied
// per connection as a coarse keystroke ceiling; the room applies the
// fine-grained window itself.
func NewHub(registry *room.Registry, allowedOrigins []string, keyRate string) (*Hub, error) {
	rate, err := limiter.NewRateFromFormatted(keyRate)
	if err != nil {
		return nil, fmt.Errorf("invalid keystroke rate %q: %w", keyRate, err)
	}
	return &Hub{
		registry:       registry,
		allowedOrigins: allowedOrigins,
		keyLimiter:     limiter.New(memory.NewStore(), rate),
	}, nil
}

// ServeWs upgrades the request and starts the connection pumps.
func (h *Hub) ServeWs(c *gin.Context) {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return originAllowed(r, h.allowedOrigins)
		},
		WriteBufferPool: &sync.Pool{
			New: func() any {
				return make([]byte, 4096)
			},
		},
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		logging.Error(c.Request.Context(), "websocket upgrade failed", zap.Error(err))
		return
	}
	h.HandleConnection(ws)
}

// HandleConnection wires an established WebSocket into the hub. Split from
// ServeWs so tests can drive a mock connection.
func (h *Hub) HandleConnection(ws wsConnection) {
	id := uuid.NewString()
	conn := &Conn{
		id:   id,
		ws:   ws,
		hub:  h,
		sub:  room.NewSubscriber(id),
		ctx:  logging.WithConn(context.Background(), id),
		done: make(chan struct{}),
	}

	metrics.IncConnection()
	logging.Info(conn.ctx, "client connected")

	go conn.writePump()
	go conn.readPump()
}

func (h *Hub) keyAllowed(connID string) bool {
	lctx, err := h.keyLimiter.Get(context.Background(), connID)
	if err != nil {
		return true
	}
	return !lctx.Reached
}

// originAllowed applies the browser origin policy. Requests without an
// Origin header (CLI clients, tests) pass.
func originAllowed(r *http.Request, allowed []string) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	for _, o := range allowed {
		if o == "*" || o == origin {
			return true
		}
	}
	return false
}
