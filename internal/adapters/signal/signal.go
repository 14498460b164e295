package signal

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/classroom/internal/backend"
	"github.com/dkeye/classroom/internal/core"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

const (
	defaultReadLimit  = 32768
	defaultPingPeriod = 54 * time.Second
	defaultSendBuffer = 32
)

// WSController serves the messaging and events sockets.
type WSController struct {
	Orch       *backend.Orchestrator
	ReadLimit  int64
	PingPeriod time.Duration
	SendBuffer int
}

func NewWSController(o *backend.Orchestrator) *WSController {
	return &WSController{
		Orch:       o,
		ReadLimit:  defaultReadLimit,
		PingPeriod: defaultPingPeriod,
		SendBuffer: defaultSendBuffer,
	}
}

type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return ErrConnClosed
	}
	select {
	case c.send <- f:
	default:
		return ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Close() {
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

type credentials struct {
	MeetingID  domain.MeetingID  `form:"MeetingId" binding:"required"`
	AttendeeID domain.AttendeeID `form:"AttendeeId" binding:"required"`
	JoinToken  string            `form:"JoinToken" binding:"required"`
}

func (ctl *WSController) HandleMessaging(ctx context.Context, c *gin.Context) {
	ctl.serve(ctx, c, backend.ChannelMessaging, ctl.Orch.OnMessaging)
}

func (ctl *WSController) HandleEvents(ctx context.Context, c *gin.Context) {
	ctl.serve(ctx, c, backend.ChannelEvents, ctl.Orch.OnEvent)
}

type frameHandler func(meetingID domain.MeetingID, from domain.AttendeeID, data []byte)

func (ctl *WSController) serve(ctx context.Context, c *gin.Context, ch backend.Channel, handle frameHandler) {
	var cred credentials
	if err := c.ShouldBindQuery(&cred); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credentials"})
		return
	}
	if err := ctl.Orch.Registry.Authorize(cred.MeetingID, cred.AttendeeID, cred.JoinToken); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("channel", string(ch)).Str("attendee", string(cred.AttendeeID)).Msg("ws rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		return
	}

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	log.Info().Str("module", "signal").Str("channel", string(ch)).
		Str("meeting", string(cred.MeetingID)).Str("attendee", string(cred.AttendeeID)).Msg("new WS connection")

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.sendBuffer()),
	}
	metrics.ConnectionsTotal.WithLabelValues(string(ch)).Inc()
	metrics.ActiveConnections.WithLabelValues(string(ch)).Inc()

	ctx, cancel := context.WithCancel(ctx)
	go ctl.writePump(ctx, conn)
	ctl.Orch.Connect(ch, cred.MeetingID, cred.AttendeeID, conn)
	go func() {
		defer cancel()
		defer metrics.ActiveConnections.WithLabelValues(string(ch)).Dec()
		defer ctl.Orch.Disconnect(ch, cred.MeetingID, cred.AttendeeID, conn)
		ctl.readPump(ctx, cred, conn, handle)
	}()
}

func (ctl *WSController) sendBuffer() int {
	if ctl.SendBuffer <= 0 {
		return defaultSendBuffer
	}
	return ctl.SendBuffer
}

func (ctl *WSController) pingPeriod() time.Duration {
	if ctl.PingPeriod <= 0 {
		return defaultPingPeriod
	}
	return ctl.PingPeriod
}
