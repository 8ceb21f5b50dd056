package server

// routes.go holds the route table of the API and the router that serves it

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RegisterRoutes registers the /sim endpoints with the given router group.
//
//	GET  /sim/packets  live packets
//	GET  /sim/nodes    node states
//	GET  /sim/logs     event log
//	GET  /sim/state    run state and snapshot
//	GET  /sim/diagram  nodes and edges being played
//	GET  /sim/stream   websocket of snapshot frames
//	POST /sim/start    start or resume
//	POST /sim/pause    pause
//	POST /sim/stop     stop and clear
//	POST /sim/spawn    {source, target}
func RegisterRoutes(rg *gin.RouterGroup, handlers *Handlers) {
	sim := rg.Group("/sim")
	{
		sim.GET("/packets", handlers.HandlePackets)
		sim.GET("/nodes", handlers.HandleNodes)
		sim.GET("/logs", handlers.HandleLogs)
		sim.GET("/state", handlers.HandleState)
		sim.GET("/diagram", handlers.HandleDiagram)
		sim.GET("/stream", handlers.HandleStream)

		sim.POST("/start", handlers.HandleStart)
		sim.POST("/pause", handlers.HandlePause)
		sim.POST("/stop", handlers.HandleStop)
		sim.POST("/spawn", handlers.HandleSpawn)
	}
}

// NewRouter builds the gin engine serving the API under /v1 and the
// metrics gathered by gatherer under /metrics
func NewRouter(handlers *Handlers, gatherer prometheus.Gatherer, logger *slog.Logger) *gin.Engine {
	if logger == nil {
		logger = slog.Default()
	}
	router := gin.New()
	router.Use(gin.Recovery(), requestLogger(logger))

	v1 := router.Group("/v1")
	RegisterRoutes(v1, handlers)
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	return router
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request", "method", c.Request.Method, "path", c.FullPath(),
			"status", c.Writer.Status(), "elapsed", time.Since(start))
	}
}
