package transport

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"rracer/server/internal/v1/logging"
	"rracer/server/internal/v1/metrics"
	"rracer/server/internal/v1/protocol"
	"rracer/server/internal/v1/room"
)

const (
	writeWait     = 10 * time.Second
	pingPeriod    = 54 * time.Second
	maxFrameBytes = 1024
	maxRoomName   = 64
)

// wsConnection defines the interface for WebSocket connection operations.
type wsConnection interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
	SetWriteDeadline(t time.Time) error
	SetReadLimit(limit int64)
}

// Conn is one client's connection. The read pump decodes frames and forwards
// them to the room; the write pump is the connection's only writer, draining
// the subscriber queue and enforcing the per-code close policy.
type Conn struct {
	id  string
	ws  wsConnection
	hub *Hub
	sub *room.Subscriber
	ctx context.Context

	// Owned by the read pump.
	room   *room.Room
	joined bool
	player string

	done     chan struct{}
	doneOnce sync.Once
}

func (c *Conn) closeDone() {
	c.doneOnce.Do(func() { close(c.done) })
}

func (c *Conn) readPump() {
	defer func() {
		if c.joined {
			c.room.Leave(c.id)
		}
		c.closeDone()
		c.ws.Close()
		metrics.DecConnection()
		logging.Info(c.ctx, "client disconnected")
	}()

	c.ws.SetReadLimit(maxFrameBytes)
	for {
		messageType, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}
		c.handleFrame(data)
	}
}

// handleFrame routes one inbound frame. Errors are queued on the subscriber;
// the write pump closes the socket for codes that demand it.
func (c *Conn) handleFrame(data []byte) {
	msg, err := protocol.DecodeClient(data)
	if err != nil {
		metrics.Messages.WithLabelValues("unknown", "malformed").Inc()
		c.sub.TrySend(protocol.ErrorMsg(protocol.CodeMalformedMessage, "unparseable frame"))
		return
	}

	switch {
	case msg.Join != nil:
		c.handleJoin(msg.Join)
	case !c.joined:
		metrics.Messages.WithLabelValues(frameType(msg), "rejected").Inc()
		c.sub.TrySend(protocol.ErrorMsg(protocol.CodeExpectedJoin, "first message must be Join"))
	case msg.Key != nil:
		if !c.hub.keyAllowed(c.id) {
			metrics.Messages.WithLabelValues("key", "rejected").Inc()
			metrics.Keystrokes.WithLabelValues("limited").Inc()
			c.sub.TrySend(protocol.ErrorMsg(protocol.CodeRateLimited, "keystroke rate over connection limit"))
			return
		}
		metrics.Messages.WithLabelValues("key", "ok").Inc()
		c.room.Key(c.id, msg.Key.Ch)
	case msg.Reset != nil:
		metrics.Messages.WithLabelValues("reset", "ok").Inc()
		c.room.Reset(c.id)
	}
}

func (c *Conn) handleJoin(j *protocol.Join) {
	if c.joined {
		metrics.Messages.WithLabelValues("join", "rejected").Inc()
		c.sub.TrySend(protocol.ErrorMsg(protocol.CodeWrongState, "already in a room"))
		return
	}
	if j.Room == "" || len(j.Room) > maxRoomName {
		metrics.Messages.WithLabelValues("join", "rejected").Inc()
		c.sub.TrySend(protocol.ErrorMsg(protocol.CodeNameInvalid, "room name must be 1-64 characters"))
		return
	}

	r := c.hub.registry.GetOrCreate(j.Room)
	defer r.Release()
	if err := r.Join(c.sub, j.Name); err != nil {
		metrics.Messages.WithLabelValues("join", "rejected").Inc()
		var rej *room.Rejection
		if errors.As(err, &rej) {
			c.sub.TrySend(protocol.ErrorMsg(rej.Code, rej.Reason))
		} else {
			c.sub.TrySend(protocol.ErrorMsg(protocol.CodeInternal, "join failed"))
		}
		return
	}

	c.room = r
	c.joined = true
	c.player = j.Name
	metrics.Messages.WithLabelValues("join", "ok").Inc()
	logging.Info(logging.WithPlayer(c.ctx, j.Name), "joined room",
		zap.String("room", j.Room))
}

func frameType(m protocol.ClientMsg) string {
	switch {
	case m.Join != nil:
		return "join"
	case m.Key != nil:
		return "key"
	case m.Reset != nil:
		return "reset"
	}
	return "unknown"
}

func (c *Conn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.ws.Close()

	for {
		select {
		case msg := <-c.sub.Out():
			if !c.writeMsg(msg) {
				return
			}
			if msg.Error != nil && msg.Error.Code.ClosesConnection() {
				_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
		case <-c.sub.Dropped():
			// Final courtesy before the socket goes: the client was too slow
			// for the broadcast stream.
			c.writeMsg(protocol.ErrorMsg(protocol.CodeLagging, "client too slow"))
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.ws.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *Conn) writeMsg(msg protocol.ServerMsg) bool {
	data, err := protocol.EncodeServer(msg)
	if err != nil {
		logging.Error(c.ctx, "failed to encode server message", zap.Error(err))
		return true
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
		return false
	}
	return true
}
