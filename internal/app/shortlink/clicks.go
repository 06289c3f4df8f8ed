package shortlink

import (
	"context"
	"time"
)

// ClickEvent 是一次跳转的明细，异步写入 click_events。
// 点击总数不依赖它，由 IncrementClickCount 同步维护。
type ClickEvent struct {
	LinkID    int64     `json:"link_id"`
	ShortCode string    `json:"short_code"`
	ClickedAt time.Time `json:"clicked_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

// Click 是查询返回的明细行，ID 同时作为下一页的 cursor。
type Click struct {
	ID        int64     `json:"id"`
	ClickedAt time.Time `json:"clicked_at"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Referer   string    `json:"referer"`
}

type ClickPage struct {
	Items      []Click `json:"items"`
	NextCursor *int64  `json:"next_cursor,omitempty"`
}

// ClickStore 是点击明细的存储。ListClicks 按 id 倒序，cursor 为 0 表示从最新开始。
type ClickStore interface {
	InsertClickEvents(ctx context.Context, events []ClickEvent) error
	ListClicks(ctx context.Context, linkID int64, limit int, cursor int64) (ClickPage, error)
}

// StatusCounter 统计全库短链在 now 时刻的状态分布，供定时刷新指标。
type StatusCounter interface {
	CountByStatus(ctx context.Context, now time.Time) (active, expired int64, err error)
}

// ListClicks 先确认归属再查明细，别人的短链与不存在的返回同一个错误。
// 没有配置明细存储时返回空页。
func (s *Service) ListClicks(ctx context.Context, id, ownerID int64, limit int, cursor int64) (ClickPage, error) {
	if limit <= 0 || limit > MaxPageSize {
		return ClickPage{}, ErrInvalidArgument
	}
	if cursor < 0 {
		return ClickPage{}, ErrInvalidArgument
	}
	link, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return ClickPage{}, ownershipError(err)
	}
	if s.clicks == nil {
		return ClickPage{Items: []Click{}}, nil
	}
	page, err := s.clicks.ListClicks(ctx, link.ID, limit, cursor)
	if err != nil {
		return ClickPage{}, err
	}
	if page.Items == nil {
		page.Items = []Click{}
	}
	return page, nil
}
