// Package signalws is the websocket transport for the signaling protocol.
// It owns connection resources (upgrade, pumps, close) and hands every
// decoded event to the registry; it holds no room state of its own.
package signalws

import (
	"context"
	"errors"
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/cagricesur/noobz-voice/internal/config"
	"github.com/cagricesur/noobz-voice/internal/domain"
	"github.com/cagricesur/noobz-voice/internal/registry"
)

var ErrBackpressure = errors.New("backpressure")

type Controller struct {
	Reg *registry.Registry
	Cfg *config.Config
}

func NewController(reg *registry.Registry, cfg *config.Config) *Controller {
	return &Controller{Reg: reg, Cfg: cfg}
}

// wsConn wraps one websocket with a buffered outbound queue. It implements
// registry.SignalConnection.
type wsConn struct {
	conn *websocket.Conn
	send chan registry.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *wsConn) TrySend(f registry.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errors.New("connection closed")
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *wsConn) Close() {
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

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and runs the connection until the
// client goes away. The connection id is minted here, once per websocket;
// a reconnect gets a fresh id with no memory of prior state.
func (ctl *Controller) HandleSignal(ctx context.Context, c *gin.Context) {
	id := domain.ConnID(uuid.NewString())
	log.Info().Str("module", "signalws").Str("conn", string(id)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signalws").Msg("ws upgrade")
		return
	}

	conn := &wsConn{
		conn: ws,
		send: make(chan registry.Frame, 32),
	}

	ctl.Reg.Connect(id, conn)
	ctx, cancel := context.WithCancel(ctx)

	go ctl.writePump(ctx, conn)
	go ctl.readPump(ctx, cancel, id, conn)
}

func (ctl *Controller) sendJSON(c *wsConn, data []byte) {
	if err := c.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signalws").Msg("send dropped")
	}
}
