package httpmiddleware

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/platform/metrics"
)

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		metrics.HTTPInflightRequests.Inc()       //正在处理的请求数+1
		defer metrics.HTTPInflightRequests.Dec() //请求处理结束
		// 用路由模板做 label，真实 path 会让基数无限增长
		route := c.FullPath()
		if route == "" {
			route = "UNMATCHED"
		}
		defer func() {
			duration := time.Since(start).Seconds()
			status := c.Writer.Status()
			metrics.HTTPRequestsTotal.WithLabelValues(c.Request.Method, route, strconv.Itoa(status)).Inc()
			metrics.HTTPRequestDurationSeconds.WithLabelValues(c.Request.Method, route).Observe(duration)
		}()
		c.Next()
	}
}
