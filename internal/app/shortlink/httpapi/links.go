package httpapi

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"urlshortener.local/internal/app/shortlink"
)

type CreateLinkRequest struct {
	OriginalURL string `json:"original_url"`
	ShortCode   string `json:"short_code,omitempty"`
	// ExpireIn 是 Go duration 字符串，例如 "72h"、"30m"；为空使用默认有效期
	ExpireIn string `json:"expire_in,omitempty"`
}

type UpdateLinkRequest struct {
	OriginalURL string `json:"original_url"`
	// ShortCode 为空表示不改短码
	ShortCode string `json:"short_code"`
}

type LinkResponse struct {
	ID          int64      `json:"id"`
	ShortCode   string     `json:"short_code"`
	ShortURL    string     `json:"short_url"`
	OriginalURL string     `json:"original_url"`
	ClickCount  int64      `json:"click_count"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
}

type PageResponse[T any] struct {
	Items      []T   `json:"items"`
	Page       int   `json:"page"`
	Size       int   `json:"size"`
	TotalItems int64 `json:"total_items"`
	TotalPages int   `json:"total_pages"`
}

// shortURL 优先用配置的对外地址，否则按请求推断（反向代理场景看 X-Forwarded-Proto）。
func shortURL(c *gin.Context, baseURL, code string) string {
	path := "/s/" + code
	if baseURL != "" {
		return baseURL + path
	}
	host := c.Request.Host
	if host == "" {
		return path
	}
	scheme := c.GetHeader("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "http"
		if c.Request.TLS != nil {
			scheme = "https"
		}
	}
	return scheme + "://" + host + path
}

func toLinkResponse(c *gin.Context, baseURL string, l shortlink.Link) LinkResponse {
	return LinkResponse{
		ID:          l.ID,
		ShortCode:   l.ShortCode,
		ShortURL:    shortURL(c, baseURL, l.ShortCode),
		OriginalURL: l.OriginalURL,
		ClickCount:  l.ClickCount,
		CreatedAt:   l.CreatedAt,
		ExpiresAt:   l.ExpiresAt,
	}
}

func parseExpireIn(raw string) (time.Duration, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, true
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d <= 0 {
		return 0, false
	}
	return d, true
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid id")
		return 0, false
	}
	return id, true
}

// queryInt 读取整数查询参数，缺省时返回 def。
func queryInt(c *gin.Context, name string, def int) (int, bool) {
	raw := c.Query(name)
	if raw == "" {
		return def, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return n, true
}

func NewCreateHandler(links *shortlink.Service, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := mustAccountID(c)
		if !ok {
			return
		}
		var req CreateLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json body")
			return
		}
		expireIn, ok := parseExpireIn(req.ExpireIn)
		if !ok {
			badRequest(c, "expire_in must be a positive duration such as 24h")
			return
		}
		link, err := links.Create(c.Request.Context(), shortlink.CreateRequest{
			OriginalURL: req.OriginalURL,
			CustomCode:  req.ShortCode,
			ExpireIn:    expireIn,
		}, ownerID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusCreated, toLinkResponse(c, baseURL, link))
	}
}

func NewGetHandler(links *shortlink.Service, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := mustAccountID(c)
		if !ok {
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		link, err := links.FindByID(c.Request.Context(), id, ownerID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toLinkResponse(c, baseURL, link))
	}
}

func NewUpdateHandler(links *shortlink.Service, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := mustAccountID(c)
		if !ok {
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		var req UpdateLinkRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "invalid json body")
			return
		}
		link, err := links.Update(c.Request.Context(), id, req.OriginalURL, req.ShortCode, ownerID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toLinkResponse(c, baseURL, link))
	}
}

func NewDeleteHandler(links *shortlink.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := mustAccountID(c)
		if !ok {
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		if err := links.Delete(c.Request.Context(), id, ownerID); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// NewListHandler 按状态分页列出当前账号的短链：?page=0&size=10&status=all|active|expired
func NewListHandler(links *shortlink.Service, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := mustAccountID(c)
		if !ok {
			return
		}
		page, ok := queryInt(c, "page", 0)
		if !ok {
			return
		}
		size, ok := queryInt(c, "size", shortlink.DefaultPageSize)
		if !ok {
			return
		}
		status := c.DefaultQuery("status", string(shortlink.StatusAll))

		result, err := links.ListByStatus(c.Request.Context(), ownerID, status, shortlink.PageRequest{Page: page, Size: size})
		if err != nil {
			writeError(c, err)
			return
		}
		items := make([]LinkResponse, 0, len(result.Items))
		for _, l := range result.Items {
			items = append(items, toLinkResponse(c, baseURL, l))
		}
		c.JSON(http.StatusOK, PageResponse[LinkResponse]{
			Items:      items,
			Page:       result.Page,
			Size:       result.Size,
			TotalItems: result.TotalItems,
			TotalPages: result.TotalPages(),
		})
	}
}

// NewClicksHandler 游标分页查询点击明细：?limit=20&cursor=<上一页 next_cursor>
func NewClicksHandler(links *shortlink.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		ownerID, ok := mustAccountID(c)
		if !ok {
			return
		}
		id, ok := parseID(c)
		if !ok {
			return
		}
		limit, ok := queryInt(c, "limit", 20)
		if !ok {
			return
		}
		var cursor int64
		if raw := c.Query("cursor"); raw != "" {
			n, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				badRequest(c, "invalid cursor")
				return
			}
			cursor = n
		}
		page, err := links.ListClicks(c.Request.Context(), id, ownerID, limit, cursor)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, page)
	}
}

// NewResolveHandler 公开查询短链元数据，不需要登录，也不检查过期。
func NewResolveHandler(links *shortlink.Service, baseURL string) gin.HandlerFunc {
	return func(c *gin.Context) {
		link, err := links.FindByShortCode(c.Request.Context(), c.Param("code"))
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, toLinkResponse(c, baseURL, link))
	}
}
