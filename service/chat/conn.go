package chat

import (
	"PShare/logger"
	"PShare/service/metrics"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Conn is one authenticated websocket session. The read loop is the only
// reader and writePump the only writer of the underlying socket; everything
// else talks to it through the bounded send queue.
type Conn struct {
	ID     string // snowflake, unique across nodes
	UserID string
	Remote net.Addr

	CreatedAt time.Time

	ws   *websocket.Conn
	send chan []byte
	conf *Conf

	// onPing runs on the writer goroutine after every successful ping.
	onPing func(now time.Time)

	closeOnce sync.Once
	done      chan struct{}
}

func newConn(id, userID string, ws *websocket.Conn, conf *Conf) *Conn {
	return &Conn{
		ID:        id,
		UserID:    userID,
		Remote:    ws.RemoteAddr(),
		CreatedAt: time.Now(),
		ws:        ws,
		send:      make(chan []byte, conf.SendQueue),
		conf:      conf,
		done:      make(chan struct{}),
	}
}

// enqueue hands a frame to the writer without blocking. A full queue means
// a slow consumer: the frame is dropped.
func (c *Conn) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		metrics.SendQueueDrops.Inc()
		logger.Warn("[WS] send queue full, drop frame", zap.String("conn", c.ID), zap.String("user", c.UserID))
		return false
	}
}

// close stops the writer, which then closes the socket.
func (c *Conn) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// writePump drains the send queue and keeps the peer alive with pings.
func (c *Conn) writePump() {
	ticker := time.NewTicker(c.conf.PingInterval)
	defer func() {
		ticker.Stop()
		_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
		_ = c.ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		_ = c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case payload := <-c.send:
			_ = c.ws.SetWriteDeadline(time.Now().Add(c.conf.WriteWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, payload); err != nil {
				logger.Info("[WS] write payload err", zap.String("conn", c.ID), zap.String("user", c.UserID), zap.Error(err))
				c.close()
				return
			}
		case <-ticker.C:
			if err := c.ws.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(c.conf.WriteWait)); err != nil {
				logger.Info("[WS] ping err", zap.String("conn", c.ID), zap.String("user", c.UserID), zap.Error(err))
				c.close()
				return
			}
			if c.onPing != nil {
				c.onPing(time.Now())
			}
		}
	}
}

// readLoop feeds frames to fn until the peer goes away. Read deadlines are
// pushed forward by every pong.
func (c *Conn) readLoop(fn func(raw []byte)) {
	c.ws.SetReadLimit(c.conf.MaxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	})

	for {
		mt, data, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err,
				websocket.CloseNormalClosure,
				websocket.CloseGoingAway,
				websocket.CloseNoStatusReceived,
			) {
				logger.Debug("[WS] peer closed", zap.String("conn", c.ID), zap.String("user", c.UserID))
			} else if ne, ok := err.(net.Error); ok && ne.Timeout() {
				logger.Info("[WS] read timeout", zap.String("conn", c.ID), zap.String("user", c.UserID))
			} else {
				logger.Info("[WS] read err", zap.String("conn", c.ID), zap.String("user", c.UserID), zap.Error(err))
			}
			return
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			continue
		}
		fn(data)
	}
}
