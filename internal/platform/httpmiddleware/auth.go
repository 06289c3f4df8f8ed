package httpmiddleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/platform/auth"
)

// IdentityResolver 把 token 的 subject（账号 email）解析成当前账号。
// 账号不存在时返回 ErrUnknownSubject。
type IdentityResolver func(ctx context.Context, subject string) (auth.Identity, error)

var ErrUnknownSubject = errors.New("token subject does not match an account")

// parseBearer 解析 Authorization header 中的 Bearer token
// 返回 token 字符串，如果格式不正确返回空字符串
func parseBearer(header string) string {
	fields := strings.Fields(header)
	if len(fields) != 2 || !strings.EqualFold(fields[0], "Bearer") {
		return ""
	}
	return fields[1]
}

// Authenticate 对每个请求尝试认证：token 有效且账号存在时把 Identity 放进 request context。
// 没有 token、格式错误、签名错误、过期或账号已不存在都只是不设置 Identity，
// 由 RequireAccount 决定是否拒绝。
func Authenticate(ts auth.TokenService, resolve IdentityResolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := parseBearer(c.GetHeader("Authorization"))
		if token == "" {
			c.Next()
			return
		}
		subject, err := ts.Validate(token)
		if err != nil {
			slog.Debug("token rejected", "request_id", RequestIDFrom(c), "err", err)
			c.Next()
			return
		}
		id, err := resolve(c.Request.Context(), subject)
		if err != nil {
			if !errors.Is(err, ErrUnknownSubject) {
				slog.Error("resolve identity failed", "request_id", RequestIDFrom(c), "err", err)
			}
			c.Next()
			return
		}
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// RequireAccount 要求请求已通过 Authenticate 认证
func RequireAccount() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := auth.IdentityFrom(c.Request.Context()); !ok {
			AbortWithError(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		c.Next()
	}
}
