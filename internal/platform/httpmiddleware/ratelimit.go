package httpmiddleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/platform/ratelimit"
)

// TrustProxies 设置 c.ClientIP() 的取值规则：只有直连方在 proxies 里时才看
// X-Forwarded-For / X-Real-IP。platform 非空（如 CF-Connecting-IP）时直接信任该头，
// 只能在确实部署在该平台后面时打开。
func TrustProxies(r *gin.Engine, proxies []string, platform string) error {
	if err := r.SetTrustedProxies(proxies); err != nil {
		return fmt.Errorf("trusted proxies: %w", err)
	}
	r.TrustedPlatform = platform
	return nil
}

// RateLimit 按客户端 IP 套用 policy。limiter 为 nil 时不限流，Redis 出错时放行。
func RateLimit(limiter *ratelimit.Limiter, policy ratelimit.Policy) gin.HandlerFunc {
	if limiter == nil {
		return func(c *gin.Context) { c.Next() }
	}
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 50*time.Millisecond)
		ok, wait, err := limiter.Allow(ctx, policy, c.ClientIP())
		cancel()

		switch {
		case err != nil:
			slog.Error("rate limit check failed", "policy", policy.Name, "err", err)
		case !ok:
			if wait > 0 {
				c.Header("Retry-After", strconv.Itoa(int(math.Ceil(wait.Seconds()))))
			}
			AbortWithError(c, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
