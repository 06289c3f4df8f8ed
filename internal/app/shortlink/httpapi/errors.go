package httpapi

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/app/account"
	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/platform/auth"
	"urlshortener.local/internal/platform/httpmiddleware"
)

// statusFor 是领域错误到 HTTP 状态码的唯一映射。
func statusFor(err error) int {
	switch {
	case errors.Is(err, shortlink.ErrInvalidURL),
		errors.Is(err, shortlink.ErrInvalidCode),
		errors.Is(err, shortlink.ErrInvalidArgument),
		errors.Is(err, account.ErrInvalidEmail),
		errors.Is(err, account.ErrWeakPassword):
		return http.StatusBadRequest
	case errors.Is(err, shortlink.ErrShortCodeConflict),
		errors.Is(err, account.ErrAlreadyExists):
		return http.StatusConflict
	case errors.Is(err, shortlink.ErrNotFound),
		errors.Is(err, shortlink.ErrNotFoundOrUnauthorized):
		return http.StatusNotFound
	case errors.Is(err, shortlink.ErrExpired):
		return http.StatusGone
	case errors.Is(err, account.ErrInvalidCredentials),
		errors.Is(err, auth.ErrInvalidToken),
		errors.Is(err, auth.ErrExpiredToken):
		return http.StatusUnauthorized
	case errors.Is(err, shortlink.ErrGenerationExhausted):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// writeError 写出统一错误体。500 不把内部错误透给客户端。
func writeError(c *gin.Context, err error) {
	code := statusFor(err)
	msg := err.Error()
	switch code {
	case http.StatusInternalServerError:
		slog.Error("request failed", "request_id", httpmiddleware.RequestIDFrom(c), "path", c.FullPath(), "err", err)
		msg = "internal error"
	case http.StatusServiceUnavailable:
		msg = "short code space exhausted, retry later"
	}
	httpmiddleware.AbortWithError(c, code, msg)
}

func badRequest(c *gin.Context, msg string) {
	httpmiddleware.AbortWithError(c, http.StatusBadRequest, msg)
}

// mustAccountID 取当前账号 id；路由已挂 RequireAccount，这里取不到说明组装有误。
func mustAccountID(c *gin.Context) (int64, bool) {
	id, ok := auth.IdentityFrom(c.Request.Context())
	if !ok {
		httpmiddleware.AbortWithError(c, http.StatusUnauthorized, "unauthorized")
		return 0, false
	}
	return id.AccountID, true
}
