package httpmiddleware

import (
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// Recovery 把 handler 的 panic 转成 500，栈只进日志。
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			p := recover()
			if p == nil {
				return
			}
			if p == http.ErrAbortHandler {
				panic(p)
			}
			slog.Error("panic recovered",
				"request_id", RequestIDFrom(c),
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
				"panic", p,
				"stack", string(debug.Stack()),
			)
			if c.Writer.Written() {
				// 响应头已经发出去了，只能断掉
				c.Abort()
				return
			}
			AbortWithError(c, http.StatusInternalServerError, "internal server error")
		}()
		c.Next()
	}
}
