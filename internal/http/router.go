// README: API gateway; registers HTTP routes and delegates to module services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"mediroute/internal/http/handlers"
	"mediroute/internal/http/middleware"
	"mediroute/internal/infra"
	"mediroute/internal/modules/order"
	"mediroute/internal/modules/tracking"
)

type RouterDeps struct {
	Order    *order.Service
	Tracker  *tracking.Service
	Tokens   handlers.TokenSource
	Verifier infra.TokenVerifier
	Logger   *slog.Logger
}

func NewRouter(deps RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(middleware.Recovery())
	r.Use(middleware.Logging(deps.Logger))

	r.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := r.Group("/api")
	api.Use(middleware.Auth(deps.Verifier))

	orderHandler := handlers.NewOrderHandler(deps.Order, deps.Tracker)
	api.POST("/orders", orderHandler.Create)
	api.GET("/orders/:id", orderHandler.Get)
	api.POST("/orders/:id/cancel", orderHandler.Cancel)

	trackingHandler := handlers.NewTrackingHandler(deps.Tracker)
	api.GET("/orders/:id/timeline", trackingHandler.Timeline)
	api.GET("/orders/:id/view", trackingHandler.View)
	api.GET("/orders/:id/stream", trackingHandler.Stream)

	custodyHandler := handlers.NewCustodyHandler(deps.Tracker, deps.Tokens)
	api.POST("/orders/:id/scans", custodyHandler.RecordScan)
	api.GET("/orders/:id/qr", custodyHandler.Tokens)

	return r
}
