package middleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"shopchat/internal/monitor"
)

// Observe records request metrics and a server span per request. Both are
// labeled by the route template so path ids do not explode cardinality.
func Observe(metrics *monitor.MetricsCollector, tracer *monitor.Tracer) gin.HandlerFunc {
	if tracer == nil {
		tracer = &monitor.Tracer{}
	}
	return func(c *gin.Context) {
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		start := time.Now()

		ctx, span := tracer.StartHTTPSpan(c.Request.Context(), c.Request.Method, route, c.Request)
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		tracer.EndHTTPSpan(span, status)
		if metrics != nil {
			metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status))
			metrics.RecordHTTPDuration(c.Request.Method, route, time.Since(start))
		}
	}
}
