package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/app/shortlink/stats"
	"urlshortener.local/internal/platform/httpmiddleware"
	"urlshortener.local/internal/platform/metrics"
)

func redirectResult(err error) string {
	switch {
	case errors.Is(err, shortlink.ErrNotFound):
		return "not_found"
	case errors.Is(err, shortlink.ErrExpired):
		return "expired"
	default:
		return "error"
	}
}

// NewRedirectHandler 302 跳转到原始地址。
//
// 点击数在跳转前同步 +1；点击明细交给 collector 异步落库，collector 为空时不记录。
// 计数失败只记日志，不影响跳转。
func NewRedirectHandler(links *shortlink.Service, collector stats.Collector) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		code := c.Param("code")
		link, err := links.GetValidLink(ctx, code)
		if err != nil {
			metrics.Redirects.WithLabelValues(redirectResult(err)).Inc()
			writeError(c, err)
			return
		}

		if _, err := links.IncrementClickCount(ctx, link); err != nil {
			slog.Error("count click failed", "request_id", httpmiddleware.RequestIDFrom(c), "code", code, "err", err)
		}
		if collector != nil {
			collector.Collect(shortlink.ClickEvent{
				LinkID:    link.ID,
				ShortCode: link.ShortCode,
				ClickedAt: time.Now(),
				IP:        c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
				Referer:   c.Request.Referer(),
			})
		}
		metrics.Redirects.WithLabelValues("ok").Inc()
		c.Redirect(http.StatusFound, link.OriginalURL)
	}
}
