package httpapi

import (
	"context"
	"errors"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/app/account"
	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/app/shortlink/stats"
	"urlshortener.local/internal/platform/auth"
	"urlshortener.local/internal/platform/httpmiddleware"
	"urlshortener.local/internal/platform/ratelimit"
)

// Deps 是挂载路由需要的全部依赖，由 cmd/api 组装。
//
// Collector 为空时跳转不记录点击明细；Limiter 为空时不限流。
type Deps struct {
	Links     *shortlink.Service
	Accounts  *account.Service
	Tokens    auth.TokenService
	Collector stats.Collector
	Limiter   *ratelimit.Limiter
	// PublicBaseURL 为空时用请求的 Host 拼 short_url
	PublicBaseURL string
}

// RegisterRoutes 挂载对外路由。
//
// 本包只做传输层工作：解析参数、调用领域服务、把错误映射成状态码。
// 跳转入口 /s/:code 不放在 /api/v1 下，方便直接在浏览器里访问。
func RegisterRoutes(r *gin.Engine, d Deps) {
	// 跳转 100次/分钟
	r.GET("/s/:code", httpmiddleware.RateLimit(d.Limiter, ratelimit.Redirect), NewRedirectHandler(d.Links, d.Collector))

	api := r.Group("/api/v1")
	api.Use(httpmiddleware.Authenticate(d.Tokens, resolveAccount(d.Accounts)))

	api.GET("/resolve/:code", NewResolveHandler(d.Links, d.PublicBaseURL))

	authGroup := api.Group("/auth")
	// 注册 3次/分钟
	authGroup.POST("/register", httpmiddleware.RateLimit(d.Limiter, ratelimit.Register), NewRegisterHandler(d.Accounts))
	// 登录 5次/分钟
	authGroup.POST("/login", httpmiddleware.RateLimit(d.Limiter, ratelimit.Login), NewLoginHandler(d.Accounts, d.Tokens))
	authGroup.GET("/me", httpmiddleware.RequireAccount(), NewMeHandler(d.Accounts))

	links := api.Group("/links", httpmiddleware.RequireAccount())
	links.GET("", NewListHandler(d.Links, d.PublicBaseURL))
	// 创建 10次/分钟
	links.POST("", httpmiddleware.RateLimit(d.Limiter, ratelimit.Create), NewCreateHandler(d.Links, d.PublicBaseURL))
	links.GET("/:id", NewGetHandler(d.Links, d.PublicBaseURL))
	links.PUT("/:id", NewUpdateHandler(d.Links, d.PublicBaseURL))
	links.DELETE("/:id", NewDeleteHandler(d.Links))
	links.GET("/:id/clicks", NewClicksHandler(d.Links))
}

// resolveAccount 把 token 的 subject（email）解析成当前账号，账号被删后旧 token 失效。
func resolveAccount(accounts *account.Service) httpmiddleware.IdentityResolver {
	return func(ctx context.Context, subject string) (auth.Identity, error) {
		acc, err := accounts.FindByEmail(ctx, subject)
		if err != nil {
			if errors.Is(err, account.ErrNotFound) {
				return auth.Identity{}, httpmiddleware.ErrUnknownSubject
			}
			return auth.Identity{}, err
		}
		return auth.Identity{AccountID: acc.ID, Email: acc.Email}, nil
	}
}
