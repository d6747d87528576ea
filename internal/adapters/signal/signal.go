// Package signal is the connection gateway: it terminates one WebSocket
// per client, assigns opaque connection identities and routes frames into
// the coordinator.
package signal

import (
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Lesson/internal/config"
	"github.com/dkeye/Lesson/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Gateway multiplexes live connections and implements core.Sender.
type Gateway struct {
	cfg *config.Config

	mu    sync.RWMutex
	conns map[core.ConnID]*wsConn

	coord *core.Coordinator
}

func NewGateway(cfg *config.Config) *Gateway {
	return &Gateway{
		cfg:   cfg,
		conns: make(map[core.ConnID]*wsConn),
	}
}

// Attach wires the coordinator in after construction; the coordinator
// needs the gateway as its Sender, so one of the two is built first.
func (g *Gateway) Attach(coord *core.Coordinator) { g.coord = coord }

type wsConn struct {
	conn *websocket.Conn
	send chan []byte

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) trySend(data []byte) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- data:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

// HandleWS upgrades the request and runs the connection until it dies.
// On exit the coordinator learns about the disconnect synchronously,
// before the connection identity could ever be reattributed.
func (g *Gateway) HandleWS(c *gin.Context) {
	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}

	id := core.ConnID(uuid.NewString())
	conn := &wsConn{
		conn: ws,
		send: make(chan []byte, g.cfg.SendBuffer),
	}
	ws.SetReadLimit(g.cfg.ReadLimit)

	g.mu.Lock()
	g.conns[id] = conn
	g.mu.Unlock()
	log.Info().Str("module", "signal").Str("conn", string(id)).Msg("new connection")

	go g.writePump(conn)
	g.readPump(id, conn)
}

func (g *Gateway) writePump(c *wsConn) {
	for data := range c.send {
		if err := c.conn.SetWriteDeadline(time.Now().Add(g.cfg.WriteTimeout)); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
			return
		}
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
			return
		}
	}
}

func (g *Gateway) readPump(id core.ConnID, c *wsConn) {
	defer func() {
		g.mu.Lock()
		delete(g.conns, id)
		g.mu.Unlock()
		// Synchronous: no later frame may observe this connection's
		// participant still in the room.
		g.coord.Disconnect(id)
		c.close()
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("connection closed")
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		g.dispatch(id, data)
	}
}
