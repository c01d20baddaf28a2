package api

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewServer creates a new HTTP server with all routes configured
func NewServer(handler *Handler, debugEndpoints bool) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()

	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		Formatter: func(param gin.LogFormatterParams) string {
			return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
				param.ClientIP,
				param.TimeStamp.Format(time.RFC3339),
				param.Method,
				param.Path,
				param.Request.Proto,
				param.StatusCode,
				param.Latency,
				param.Request.UserAgent(),
				param.ErrorMessage,
			)
		},
		SkipPaths: []string{"/health", "/metrics"},
	}))

	r.Use(gin.Recovery())

	r.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	setupRoutes(r, handler, debugEndpoints)

	return r
}

func setupRoutes(r *gin.Engine, handler *Handler, debugEndpoints bool) {
	r.GET("/ws", handler.Observe)

	r.GET("/health", handler.GetHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/feeds/:id/rss", handler.GetFeedRSS)

	api := r.Group("/api")
	{
		api.GET("/feeds", handler.ListFeeds)
		api.POST("/feeds", handler.ApplyFeeds)
		api.DELETE("/feeds/:id", handler.DeleteFeed)
		api.GET("/feeds/:id/ini", handler.GetFeedINI)
		api.GET("/feeds/:id/entries", handler.GetFeedEntries)
		api.POST("/feeds/update", handler.UpdateFeeds)
		api.POST("/feeds/:id/update", handler.UpdateFeed)
	}

	if debugEndpoints {
		debug := r.Group("/debug")
		{
			debug.POST("/ini", handler.DebugINI)
			debug.POST("/fetch", handler.DebugFetch)
			debug.POST("/update", handler.DebugUpdate)
		}
		slog.Info("Debug endpoints enabled")
	}

	r.GET("/favicon.ico", func(c *gin.Context) {
		c.Status(204)
	})
}
