package api

import (
	"net/http"
	"time"

	"github.com/Domenick1991/esteticcore/pkg/logger"
	"github.com/gin-gonic/gin"
)

type Registrar interface {
	Register(router *gin.RouterGroup)
}

// NewRouter mounts every handler under /api.
func NewRouter(log *logger.Logger, handlers ...Registrar) *gin.Engine {
	if log == nil {
		log = logger.Nop()
	}
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(log))
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	group := r.Group("/api")
	for _, h := range handlers {
		h.Register(group)
	}
	return r
}

func requestLogger(log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		args := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"duration", time.Since(start),
		}
		if len(c.Errors) > 0 {
			args = append(args, "error", c.Errors.Last().Err)
		}
		switch {
		case status >= http.StatusInternalServerError:
			log.ErrorContext(c.Request.Context(), "request failed", args...)
		case status >= http.StatusBadRequest:
			log.WarnContext(c.Request.Context(), "request rejected", args...)
		default:
			log.InfoContext(c.Request.Context(), "request served", args...)
		}
	}
}
