package server

import (
	"net/http"
	"time"

	"chatcore/internal/auth"
	"chatcore/internal/config"
	"chatcore/internal/hub"
	"chatcore/internal/metrics"
	"chatcore/internal/mw"
	"chatcore/internal/pipeline"
	"chatcore/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

// SetupRouter wires the attach endpoint and the operational surface. The
// message CRUD API lives in a separate service; this one only moves live
// traffic.
func SetupRouter(cfg config.Config, h *hub.Hub, pipe *pipeline.Pipeline, rooms pipeline.RoomStore, authn *auth.Authenticator) *gin.Engine {
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(metrics.GinMiddleware())
	r.Use(mw.CORS(cfg.Env))
	r.Use(mw.RateLimit(rate.Every(time.Second/20), 40))

	r.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/ws", ws.Serve(h, pipe, rooms, authn, cfg))

	api := r.Group("/api/v1")
	api.GET("/rooms/:id/online", func(c *gin.Context) {
		roomID := c.Param("id")
		c.JSON(http.StatusOK, gin.H{"room_id": roomID, "online": h.OccupantCount(roomID)})
	})

	return r
}
