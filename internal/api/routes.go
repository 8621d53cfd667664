package api

import (
	"github.com/gin-gonic/gin"
)

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(s.opts.Logger))
	if s.opts.Metrics != nil {
		r.Use(instrument(s.opts.Metrics))
		r.GET("/metrics", gin.WrapH(s.opts.Metrics.Handler()))
	}

	r.GET("/healthz", s.health)

	api := r.Group("/api")
	{
		api.GET("/notifications", s.listNotifications)
		api.DELETE("/notifications", s.clearNotifications)
		api.GET("/notifications/unread-count", s.unreadCount)
		api.POST("/notifications/read-all", s.markAllRead)
		api.GET("/notifications/:id", s.getNotification)
		api.POST("/notifications/:id/read", s.markRead)

		api.GET("/toasts", s.listToasts)
		api.DELETE("/toasts/:id", s.dismissToast)

		api.GET("/connection", s.connection)
		api.GET("/statuses", s.statuses)
		api.GET("/stream", s.hub.Handler(s.engine))

		if s.opts.AllowIngest {
			api.POST("/changes", s.ingest)
		}
	}

	return r
}
