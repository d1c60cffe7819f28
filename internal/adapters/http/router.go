package http

import (
	"context"
	"net/http"

	"github.com/dkeye/Ring/internal/adapters/signal"
	"github.com/dkeye/Ring/internal/app"
	"github.com/dkeye/Ring/internal/auth"
	"github.com/dkeye/Ring/internal/config"
	"github.com/dkeye/Ring/internal/signaling"
	"github.com/gin-contrib/sessions"
	"github.com/gin-contrib/sessions/cookie"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

func SetupRouter(ctx context.Context, cfg *config.Config, relay *app.Relay) *gin.Engine {
	if cfg.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	if cfg.Mode == "debug" {
		r.Use(gin.Logger())
	}
	r.Use(gin.Recovery())

	store := cookie.NewStore([]byte(cfg.Secret))
	store.Options(sessions.Options{Path: "/", MaxAge: 3600 * 24 * 7, HttpOnly: true})
	r.Use(sessions.Sessions("RingSessions", store))

	r.Static("/static", cfg.StaticPath)
	r.GET("/", func(c *gin.Context) {
		c.File(cfg.StaticPath + "/index.html")
	})
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"msg": "Ping Successful"})
	})

	log.Info().Str("module", "adapters.http").Str("static", cfg.StaticPath).Msg("router setup")

	ctl := &signal.SignalWSController{
		Relay:      relay,
		ReadLimit:  cfg.ReadLimit,
		PingPeriod: cfg.PingPeriod,
		SendQueue:  cfg.SendQueue,
	}
	authed := auth.Require(auth.Sessions{})

	api := r.Group("/api")
	api.POST("/session", auth.Login)
	api.DELETE("/session", auth.Logout)

	api.GET("/presence", authed, func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"online": relay.Presence.Online()})
	})

	// Participants take their ring timeout and ICE servers from here.
	api.GET("/config", authed, func(c *gin.Context) {
		c.JSON(http.StatusOK, signaling.NewClientConfig(cfg.RingTimeout, cfg.ICEServers))
	})

	api.GET("/ws/signal", authed, func(c *gin.Context) {
		user := auth.UserFrom(c)
		log.Info().Str("module", "adapters.http").Str("user", user.String()).Msg("ws signal endpoint hit")
		ctl.HandleSignal(ctx, c, user)
	})

	return r
}
