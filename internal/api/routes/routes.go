package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/yoockh/livevoice/internal/api/handlers"
	"github.com/yoockh/livevoice/internal/api/middleware"
)

type Deps struct {
	Control *handlers.ControlHandler
	Events  *handlers.EventsHandler

	// Gatherer backs /metrics; nil serves the default registry.
	Gatherer prometheus.Gatherer
	// JWTSecret enables bearer auth on every route but /ping and /metrics.
	JWTSecret string
}

func RegisterRoutes(r *gin.Engine, d Deps) {
	// Health-ish
	r.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "pong"})
	})

	g := d.Gatherer
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(g, promhttp.HandlerOpts{})))

	api := r.Group("/")
	write := r.Group("/")
	if d.JWTSecret != "" {
		api.Use(middleware.JWTAuth(d.JWTSecret))
		write.Use(middleware.JWTAuth(d.JWTSecret), middleware.RequireController())
	}

	api.GET("/me", d.Control.Me)
	api.GET("/messages/history", d.Control.History)
	api.GET("/ws", d.Events.Stream)

	write.PUT("/me", d.Control.Rename)
	write.PUT("/volume", d.Control.SetVolume)
	write.POST("/capture/start", d.Control.StartCapture)
	write.POST("/capture/stop", d.Control.StopCapture)
	write.POST("/messages/text", d.Control.SendText)
	write.POST("/messages/image", d.Control.SendImage)
}
