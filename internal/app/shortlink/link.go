package shortlink

import (
	"context"
	"time"
)

// Link 是短链领域对象。
//
// 说明：
// - ShortCode：全局唯一短码，用于拼接 /s/{code}
// - OriginalURL：已通过 ValidateURL 校验的绝对地址
// - OwnerID：创建者账号 id，只有它能修改/删除这条短链
// - ExpiresAt：nil 表示永不过期
// - ClickCount：只增不减
type Link struct {
	ID          int64
	ShortCode   string
	OriginalURL string
	OwnerID     int64
	CreatedAt   time.Time
	ExpiresAt   *time.Time
	ClickCount  int64
}

// ExpiredAt 判断短链在 now 时刻是否已过期。
//
// Active -> Expired 是单向的：一旦 now 越过 ExpiresAt 就不会再变回 Active。
func (l Link) ExpiredAt(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// Status 是列表查询的过滤条件。
type Status string

const (
	StatusAll     Status = "all"
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// PageRequest 是 offset/limit 风格的分页参数，Page 从 0 开始。
type PageRequest struct {
	Page int
	Size int
}

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
	// MaxPage 让 Page*Size 不会溢出；这么靠后的页本来就是空的
	MaxPage = 1_000_000
)

// Normalize 把越界的分页参数收敛到合法范围。
func (p PageRequest) Normalize() PageRequest {
	if p.Page < 0 {
		p.Page = 0
	}
	if p.Page > MaxPage {
		p.Page = MaxPage
	}
	if p.Size <= 0 {
		p.Size = DefaultPageSize
	}
	if p.Size > MaxPageSize {
		p.Size = MaxPageSize
	}
	return p
}

func (p PageRequest) Offset() int {
	return p.Page * p.Size
}

// Page 是一页查询结果。Items 按 id 升序，保证同一数据集上重复查询结果稳定。
type Page[T any] struct {
	Items      []T
	Page       int
	Size       int
	TotalItems int64
}

func NewPage[T any](items []T, req PageRequest, total int64) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Page: req.Page, Size: req.Size, TotalItems: total}
}

func (p Page[T]) TotalPages() int {
	if p.Size <= 0 {
		return 0
	}
	return int((p.TotalItems + int64(p.Size) - 1) / int64(p.Size))
}

// Repository 是短链的存储适配器。
//
// 约定：
// - 查不到记录返回 ErrNotFound
// - short_code 唯一约束冲突返回 ErrShortCodeConflict（必须由存储层的唯一约束兜底）
// - Save：ID 为 0 时插入并回填 ID，否则按 (ID, OwnerID) 更新 original_url/short_code
// - IncrementClicks 必须是原子自增，不能“读出来 +1 再写回去”
type Repository interface {
	Save(ctx context.Context, link *Link) error
	DeleteEntity(ctx context.Context, link Link) error
	FindByShortCode(ctx context.Context, code string) (Link, error)
	FindByIDAndOwner(ctx context.Context, id, ownerID int64) (Link, error)
	ExistsByShortCode(ctx context.Context, code string) (bool, error)
	IncrementClicks(ctx context.Context, id int64) (Link, error)
	FindAllByOwner(ctx context.Context, ownerID int64, page PageRequest) (Page[Link], error)
	FindActiveByOwner(ctx context.Context, ownerID int64, now time.Time, page PageRequest) (Page[Link], error)
	FindExpiredByOwner(ctx context.Context, ownerID int64, now time.Time, page PageRequest) (Page[Link], error)
}
