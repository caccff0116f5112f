package observability

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// routeLabel keeps metric cardinality bounded: unmatched requests share one
// label instead of carrying their raw path.
func routeLabel(c *gin.Context) string {
	if route := c.FullPath(); route != "" {
		return route
	}
	return "unmatched"
}

// AdminAccessLog logs one line per admin request. Scrapes of /metrics are
// demoted to debug so a polling collector does not flood the channel logs.
func AdminAccessLog(logger zerolog.Logger, admin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		route := routeLabel(c)
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = logger.Error()
		case status >= 400:
			event = logger.Warn()
		case route == "/metrics":
			event = logger.Debug()
		default:
			event = logger.Info()
		}
		event.
			Str("admin", admin).
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("took", time.Since(start)).
			Str("remote", c.ClientIP()).
			Msg("server.admin request")
	}
}

// AdminMetrics records request counts and latency labelled by admin name.
func AdminMetrics(admin string) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		RecordAdminRequest(admin, c.Request.Method, routeLabel(c), c.Writer.Status(), time.Since(start))
	}
}
