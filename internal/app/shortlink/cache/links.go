package cache

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/platform/metrics"
)

const (
	keyPrefix        = "sl:"
	notFoundSentinel = "__nil__"
)

// LinkCache 是 shortlink.Repository 的缓存装饰器：L1 ristretto + L2 Redis。
//
// 只缓存按短码的读取（跳转热路径）。写操作先落库再失效/回填缓存。
// 缓存里的 ClickCount 可能落后于数据库，落后时间不超过 TTL；
// IncrementClicks 会用数据库返回的新值回填。
// Redis 出错时直接回源数据库，不影响请求。
type LinkCache struct {
	shortlink.Repository

	client   *redis.Client // 可以为 nil，只用 L1
	local    *LocalCache   // 可以为 nil，只用 L2
	ttl      time.Duration
	emptyTTL time.Duration
}

func NewLinkCache(next shortlink.Repository, client *redis.Client, local *LocalCache) *LinkCache {
	return &LinkCache{
		Repository: next,
		client:     client,
		local:      local,
		ttl:        time.Hour,
		emptyTTL:   30 * time.Second,
	}
}

func (c *LinkCache) FindByShortCode(ctx context.Context, code string) (shortlink.Link, error) {
	// L1: 本地缓存
	if c.local != nil {
		if link, missing, ok := c.local.Get(code); ok {
			if missing {
				metrics.CacheOperations.WithLabelValues("l1", "hit_negative").Inc()
				return shortlink.Link{}, shortlink.ErrNotFound
			}
			metrics.CacheOperations.WithLabelValues("l1", "hit").Inc()
			return link, nil
		}
		metrics.CacheOperations.WithLabelValues("l1", "miss").Inc()
	}

	// L2: Redis
	if c.client != nil {
		link, missing, ok := c.getRemote(ctx, code)
		if ok {
			if missing {
				if c.local != nil {
					c.local.SetNotFound(code)
				}
				return shortlink.Link{}, shortlink.ErrNotFound
			}
			if c.local != nil {
				c.local.Set(link)
			}
			return link, nil
		}
	}

	// 回源
	link, err := c.Repository.FindByShortCode(ctx, code)
	if err != nil {
		if errors.Is(err, shortlink.ErrNotFound) {
			c.setNotFound(ctx, code)
		}
		return shortlink.Link{}, err
	}
	c.set(ctx, link)
	return link, nil
}

func (c *LinkCache) getRemote(ctx context.Context, code string) (shortlink.Link, bool, bool) {
	res, err := c.client.Get(ctx, keyPrefix+code).Result()
	if err == redis.Nil {
		metrics.CacheOperations.WithLabelValues("l2", "miss").Inc()
		return shortlink.Link{}, false, false
	}
	if err != nil {
		slog.Warn("redis get failed, falling back to db", "code", code, "err", err)
		return shortlink.Link{}, false, false
	}
	if res == notFoundSentinel {
		metrics.CacheOperations.WithLabelValues("l2", "hit_negative").Inc()
		return shortlink.Link{}, true, true
	}
	var link shortlink.Link
	if err := json.Unmarshal([]byte(res), &link); err != nil {
		slog.Warn("corrupt cache entry", "code", code, "err", err)
		return shortlink.Link{}, false, false
	}
	metrics.CacheOperations.WithLabelValues("l2", "hit").Inc()
	return link, false, true
}

// Save 落库成功后：插入时覆盖可能存在的负缓存；更新时新旧短码都要失效。
func (c *LinkCache) Save(ctx context.Context, link *shortlink.Link) error {
	oldCode := ""
	if link.ID != 0 {
		if old, err := c.Repository.FindByIDAndOwner(ctx, link.ID, link.OwnerID); err == nil {
			oldCode = old.ShortCode
		}
	}
	if err := c.Repository.Save(ctx, link); err != nil {
		return err
	}
	if oldCode != "" && oldCode != link.ShortCode {
		c.invalidate(ctx, oldCode)
	}
	c.set(ctx, *link)
	return nil
}

func (c *LinkCache) DeleteEntity(ctx context.Context, link shortlink.Link) error {
	if err := c.Repository.DeleteEntity(ctx, link); err != nil {
		return err
	}
	c.invalidate(ctx, link.ShortCode)
	return nil
}

func (c *LinkCache) IncrementClicks(ctx context.Context, id int64) (shortlink.Link, error) {
	link, err := c.Repository.IncrementClicks(ctx, id)
	if err != nil {
		return shortlink.Link{}, err
	}
	c.set(ctx, link)
	return link, nil
}

func (c *LinkCache) set(ctx context.Context, link shortlink.Link) {
	if c.local != nil {
		c.local.Set(link)
	}
	if c.client == nil {
		return
	}
	data, err := json.Marshal(link)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+link.ShortCode, data, c.ttl).Err(); err != nil {
		slog.Warn("redis set failed", "code", link.ShortCode, "err", err)
	}
}

// setNotFound 用明确哨兵值做负缓存，避免缓存穿透。
func (c *LinkCache) setNotFound(ctx context.Context, code string) {
	if c.local != nil {
		c.local.SetNotFound(code)
	}
	if c.client == nil {
		return
	}
	if err := c.client.Set(ctx, keyPrefix+code, notFoundSentinel, c.emptyTTL).Err(); err != nil {
		slog.Warn("redis set negative failed", "code", code, "err", err)
	}
}

func (c *LinkCache) invalidate(ctx context.Context, code string) {
	if c.local != nil {
		c.local.Del(code)
	}
	if c.client == nil {
		return
	}
	if err := c.client.Del(ctx, keyPrefix+code).Err(); err != nil {
		slog.Warn("redis del failed", "code", code, "err", err)
	}
}

func (c *LinkCache) Close() {
	if c.local != nil {
		c.local.Close()
		slog.Info("本地缓存已关闭")
	}
}
