package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/app/account"
	"urlshortener.local/internal/platform/auth"
	"urlshortener.local/internal/platform/httpmiddleware"
)

type CredentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type AccountResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
}

type LoginResponse struct {
	Token string `json:"token"`
	// ExpiresIn 单位秒
	ExpiresIn int64 `json:"expires_in"`
}

func toAccountResponse(acc account.Account) AccountResponse {
	return AccountResponse{ID: acc.ID, Email: acc.Email, CreatedAt: acc.CreatedAt}
}

func NewRegisterHandler(accounts *account.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json body")
			return
		}
		acc, err := accounts.Register(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toAccountResponse(acc))
	}
}

// NewLoginHandler 登录失败一律返回 invalid credentials，不区分邮箱不存在和口令错误。
func NewLoginHandler(accounts *account.Service, ts auth.TokenService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CredentialsRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			httpmiddleware.AbortWithError(c, http.StatusUnauthorized, "invalid credentials")
			return
		}
		acc, err := accounts.Authenticate(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			if errors.Is(err, account.ErrInvalidCredentials) {
				slog.Warn("login failed", "request_id", httpmiddleware.RequestIDFrom(c))
				httpmiddleware.AbortWithError(c, http.StatusUnauthorized, "invalid credentials")
				return
			}
			writeError(c, err)
			return
		}
		token, _, err := ts.Issue(acc.Email)
		if err != nil {
			slog.Error("issue token failed", "account_id", acc.ID, "err", err)
			httpmiddleware.AbortWithError(c, http.StatusInternalServerError, "internal error")
			return
		}
		c.JSON(http.StatusOK, LoginResponse{
			Token:     token,
			ExpiresIn: int64(ts.TTL() / time.Second),
		})
	}
}

func NewMeHandler(accounts *account.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := auth.IdentityFrom(c.Request.Context())
		if !ok {
			httpmiddleware.AbortWithError(c, http.StatusUnauthorized, "unauthorized")
			return
		}
		acc, err := accounts.FindByEmail(c.Request.Context(), id.Email)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				httpmiddleware.AbortWithError(c, http.StatusUnauthorized, "unauthorized")
				return
			}
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toAccountResponse(acc))
	}
}
