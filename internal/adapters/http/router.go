package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/dkeye/classroom/internal/adapters/signal"
	"github.com/dkeye/classroom/internal/backend"
	"github.com/dkeye/classroom/internal/config"
	"github.com/dkeye/classroom/internal/domain"
	"github.com/dkeye/classroom/internal/metrics"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func genClientToken() string {
	idStr := uuid.NewString()
	return idStr
}

func ClientTokenMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token, _ := c.Cookie("ct")
		if token == "" {
			token = genClientToken()
			c.SetCookie("ct", token, 3600*24*7, "/", "", false, true)
		}
		c.Set("client_token", token)
		c.Next()
	}
}

func SetupRouter(ctx context.Context, cfg *config.ServerConfig, orch *backend.Orchestrator) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	r.Use(sessions.Sessions("ClassroomSessions", store))
	r.Use(ClientTokenMiddleware())

	if cfg.StaticPath != "" {
		r.Static("/static", cfg.StaticPath)
		r.GET("/", func(c *gin.Context) {
			c.File(cfg.StaticPath + "/index.html")
		})
	}

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	h := &handlers{orch: orch}
	r.POST("/join", h.join)
	r.GET("/attendee", h.attendee)
	r.POST("/end", h.end)

	ws := signal.NewWSController(orch)
	if cfg.ReadLimit > 0 {
		ws.ReadLimit = cfg.ReadLimit
	}
	if cfg.PingPeriod > 0 {
		ws.PingPeriod = cfg.PingPeriod
	}
	if cfg.SendBuffer > 0 {
		ws.SendBuffer = cfg.SendBuffer
	}
	r.GET("/messaging", func(c *gin.Context) {
		ws.HandleMessaging(ctx, c)
	})
	r.GET("/events", func(c *gin.Context) {
		ws.HandleEvents(ctx, c)
	})

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "meetings": len(orch.Registry.List())})
	})

	return r
}

type handlers struct {
	orch *backend.Orchestrator
}

func sessionKey(title domain.MeetingTitle) string {
	return "attendee:" + string(title)
}

func fail(c *gin.Context, endpoint string, status int, err error) {
	metrics.RequestErrorsTotal.WithLabelValues(endpoint).Inc()
	log.Warn().Err(err).Str("module", "adapters.http").Str("endpoint", endpoint).Str("sid", c.GetString("client_token")).Msg("request rejected")
	c.JSON(status, gin.H{"error": err.Error()})
}

// join reuses the attendee this browser already holds in the meeting when
// the name matches, otherwise adds a new one.
func (h *handlers) join(c *gin.Context) {
	title := domain.MeetingTitle(c.Query("title"))
	name := c.Query("name")
	region := c.Query("region")

	sess := sessions.Default(c)
	if id, ok := sess.Get(sessionKey(title)).(string); ok {
		if info, ok := h.orch.Rejoin(title, domain.AttendeeID(id)); ok && info.Attendee.Attendee.ExternalUserID == name {
			log.Info().Str("module", "adapters.http").Str("title", string(title)).Str("attendee", id).Msg("rejoin")
			c.JSON(http.StatusOK, gin.H{"JoinInfo": info})
			return
		}
	}

	info, err := h.orch.Join(title, name, region)
	if err != nil {
		fail(c, "join", http.StatusBadRequest, err)
		return
	}
	sess.Set(sessionKey(title), string(info.Attendee.Attendee.ID))
	if err := sess.Save(); err != nil {
		log.Warn().Err(err).Str("module", "adapters.http").Msg("session save")
	}
	c.JSON(http.StatusCreated, gin.H{"JoinInfo": info})
}

func (h *handlers) attendee(c *gin.Context) {
	title := domain.MeetingTitle(c.Query("title"))
	id := domain.AttendeeID(c.Query("attendee"))

	info, err := h.orch.Registry.AttendeeInfo(title, id)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, backend.ErrMeetingNotFound) || errors.Is(err, backend.ErrAttendeeNotFound) {
			status = http.StatusNotFound
		}
		fail(c, "attendee", status, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"AttendeeInfo": info})
}

func (h *handlers) end(c *gin.Context) {
	title := domain.MeetingTitle(c.Query("title"))
	if !h.orch.End(title) {
		fail(c, "end", http.StatusNotFound, backend.ErrMeetingNotFound)
		return
	}
	c.JSON(http.StatusOK, gin.H{})
}
