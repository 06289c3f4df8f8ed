package shortlink

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"urlshortener.local/internal/platform/metrics"
)

// CodeFilter 是生成短码时的本地快速过滤器（通常是布隆过滤器）。
//
// MightExist 返回 true 时直接换一个候选，不查库；返回 false 仍然要查库确认，
// 因为其它实例创建的短码不会进入本实例的过滤器。
// 它只参与随机生成，不参与自定义短码的冲突判断（误判会把可用短码拒掉）。
type CodeFilter interface {
	MightExist(code string) bool
	Add(code string)
}

// Options 是 Service 的显式配置对象，由 cmd/api 根据 config 组装。
type Options struct {
	// DefaultExpiry 为 0 表示默认不过期
	DefaultExpiry time.Duration
	Generator     *Generator
	Filter        CodeFilter
	// Clicks 为空时点击明细查询返回空页
	Clicks ClickStore
	// Now 便于测试注入时间；为空时使用 time.Now
	Now func() time.Time
}

// Service 编排短链的创建、修改、删除、按归属查询、按状态分页和点击计数。
//
// 所有修改类操作都要求调用方传入已认证的账号 id（ownerID），
// 匿名访问只能走 FindByShortCode / GetValidLink / IncrementClickCount。
type Service struct {
	repo          Repository
	gen           *Generator
	filter        CodeFilter
	clicks        ClickStore
	defaultExpiry time.Duration
	now           func() time.Time
}

func NewService(repo Repository, opts Options) (*Service, error) {
	if repo == nil {
		return nil, errors.New("shortlink: nil repository")
	}
	if opts.DefaultExpiry < 0 {
		return nil, errors.New("shortlink: default expiry must be >= 0")
	}
	gen := opts.Generator
	if gen == nil {
		var err error
		gen, err = NewGenerator(DefaultCodeLength, DefaultMaxAttempts)
		if err != nil {
			return nil, err
		}
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Service{
		repo:          repo,
		gen:           gen,
		filter:        opts.Filter,
		clicks:        opts.Clicks,
		defaultExpiry: opts.DefaultExpiry,
		now:           now,
	}, nil
}

// CreateRequest 是创建短链的入参。
//
// - CustomCode 为空时随机生成
// - ExpireIn 为 0 时使用默认有效期，负数非法
type CreateRequest struct {
	OriginalURL string
	CustomCode  string
	ExpireIn    time.Duration
}

func (s *Service) Create(ctx context.Context, req CreateRequest, ownerID int64) (Link, error) {
	if err := ValidateURL(req.OriginalURL); err != nil {
		slog.Warn("create link rejected", "account_id", ownerID, "err", err)
		return Link{}, err
	}
	if req.ExpireIn < 0 {
		return Link{}, fmt.Errorf("%w: expire_in must be positive", ErrInvalidArgument)
	}

	code := strings.TrimSpace(req.CustomCode)
	if code != "" {
		if err := ValidateCode(code); err != nil {
			return Link{}, err
		}
		taken, err := s.repo.ExistsByShortCode(ctx, code)
		if err != nil {
			return Link{}, err
		}
		if taken {
			return Link{}, ErrShortCodeConflict
		}
	} else {
		var err error
		code, err = s.gen.Generate(ctx, s.generatedCodeTaken)
		if err != nil {
			if errors.Is(err, ErrGenerationExhausted) {
				slog.Error("short code space exhausted", "account_id", ownerID, "length", s.gen.Length())
			}
			return Link{}, err
		}
	}

	createdAt := s.now()
	link := Link{
		ShortCode:   code,
		OriginalURL: req.OriginalURL,
		OwnerID:     ownerID,
		CreatedAt:   createdAt,
		ClickCount:  0,
	}
	expireIn := req.ExpireIn
	if expireIn == 0 {
		expireIn = s.defaultExpiry
	}
	if expireIn > 0 {
		exp := createdAt.Add(expireIn)
		link.ExpiresAt = &exp
	}

	// 插入失败（包括唯一约束冲突）时整条记录都不会落库
	if err := s.repo.Save(ctx, &link); err != nil {
		if errors.Is(err, ErrShortCodeConflict) {
			slog.Warn("short code collided on insert", "code", code, "account_id", ownerID)
		}
		return Link{}, err
	}
	if s.filter != nil {
		s.filter.Add(link.ShortCode)
	}
	metrics.LinksCreated.Inc()
	slog.Info("link created", "id", link.ID, "code", link.ShortCode, "account_id", ownerID)
	return link, nil
}

func (s *Service) generatedCodeTaken(ctx context.Context, code string) (bool, error) {
	if s.filter != nil && s.filter.MightExist(code) {
		return true, nil
	}
	return s.repo.ExistsByShortCode(ctx, code)
}

// FindByShortCode 是公开查询，不需要登录。
func (s *Service) FindByShortCode(ctx context.Context, code string) (Link, error) {
	link, err := s.repo.FindByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Warn("link not found", "code", code)
		}
		return Link{}, err
	}
	return link, nil
}

// GetValidLink 在 FindByShortCode 的基础上拒绝已过期的短链，
// 让上层可以区分 404（不存在）和 410（已过期）。
func (s *Service) GetValidLink(ctx context.Context, code string) (Link, error) {
	link, err := s.FindByShortCode(ctx, code)
	if err != nil {
		return Link{}, err
	}
	if link.ExpiredAt(s.now()) {
		slog.Warn("link expired", "code", code)
		return Link{}, ErrExpired
	}
	return link, nil
}

// IncrementClickCount 原子地给点击数 +1，返回更新后的短链。
func (s *Service) IncrementClickCount(ctx context.Context, link Link) (Link, error) {
	updated, err := s.repo.IncrementClicks(ctx, link.ID)
	if err != nil {
		return Link{}, fmt.Errorf("increment clicks for %s: %w", link.ShortCode, err)
	}
	return updated, nil
}

func (s *Service) FindByID(ctx context.Context, id, ownerID int64) (Link, error) {
	link, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return Link{}, ownershipError(err)
	}
	return link, nil
}

// Update 修改目标地址和短码。newShortCode 为空或与原短码相同表示不改短码。
func (s *Service) Update(ctx context.Context, id int64, newOriginalURL, newShortCode string, ownerID int64) (Link, error) {
	if err := ValidateURL(newOriginalURL); err != nil {
		slog.Warn("update link rejected", "id", id, "account_id", ownerID, "err", err)
		return Link{}, err
	}
	link, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return Link{}, ownershipError(err)
	}

	newShortCode = strings.TrimSpace(newShortCode)
	if newShortCode != "" && newShortCode != link.ShortCode {
		if err := ValidateCode(newShortCode); err != nil {
			return Link{}, err
		}
		taken, err := s.repo.ExistsByShortCode(ctx, newShortCode)
		if err != nil {
			return Link{}, err
		}
		if taken {
			return Link{}, ErrShortCodeConflict
		}
		link.ShortCode = newShortCode
	}
	link.OriginalURL = newOriginalURL

	if err := s.repo.Save(ctx, &link); err != nil {
		return Link{}, ownershipError(err)
	}
	if s.filter != nil {
		s.filter.Add(link.ShortCode)
	}
	slog.Info("link updated", "id", link.ID, "code", link.ShortCode, "account_id", ownerID)
	return link, nil
}

func (s *Service) Delete(ctx context.Context, id, ownerID int64) error {
	link, err := s.repo.FindByIDAndOwner(ctx, id, ownerID)
	if err != nil {
		return ownershipError(err)
	}
	if err := s.repo.DeleteEntity(ctx, link); err != nil {
		return ownershipError(err)
	}
	slog.Info("link deleted", "id", id, "code", link.ShortCode, "account_id", ownerID)
	return nil
}

// ParseStatus 解析列表过滤条件，大小写不敏感。
func ParseStatus(raw string) (Status, error) {
	switch st := Status(strings.ToLower(strings.TrimSpace(raw))); st {
	case StatusAll, StatusActive, StatusExpired:
		return st, nil
	default:
		return "", fmt.Errorf("%w: unknown status %q", ErrInvalidArgument, raw)
	}
}

func (s *Service) ListByStatus(ctx context.Context, ownerID int64, status string, req PageRequest) (Page[Link], error) {
	st, err := ParseStatus(status)
	if err != nil {
		return Page[Link]{}, err
	}
	req = req.Normalize()
	switch st {
	case StatusActive:
		return s.repo.FindActiveByOwner(ctx, ownerID, s.now(), req)
	case StatusExpired:
		return s.repo.FindExpiredByOwner(ctx, ownerID, s.now(), req)
	default:
		return s.repo.FindAllByOwner(ctx, ownerID, req)
	}
}

func ownershipError(err error) error {
	if errors.Is(err, ErrNotFound) {
		return ErrNotFoundOrUnauthorized
	}
	return err
}
