package cache

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"urlshortener.local/internal/app/shortlink"
)

// entry 是 L1 中的值；missing 为 true 表示负缓存（短码不存在）。
type entry struct {
	link    shortlink.Link
	missing bool
}

// LocalCache 基于 ristretto 的本地内存缓存（L1）
type LocalCache struct {
	cache    *ristretto.Cache
	ttl      time.Duration
	emptyTTL time.Duration
}

// NewLocalCache
// maxItems: 最大缓存条目数（建议 10000-100000）
func NewLocalCache(maxItems int64) (*LocalCache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: maxItems * 10, // 计数器数量，建议为 maxItems 的 10 倍
		MaxCost:     maxItems,      // cost 固定为 1，按条目数限制
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &LocalCache{
		cache:    cache,
		ttl:      30 * time.Second, // 多实例之间没有失效广播，L1 TTL 要短
		emptyTTL: 5 * time.Second,
	}, nil
}

// Get 返回 (link, missing, ok)。ok 为 false 表示未命中。
func (l *LocalCache) Get(code string) (shortlink.Link, bool, bool) {
	v, ok := l.cache.Get(code)
	if !ok {
		return shortlink.Link{}, false, false
	}
	e := v.(entry)
	return e.link, e.missing, true
}

func (l *LocalCache) Set(link shortlink.Link) {
	l.cache.SetWithTTL(link.ShortCode, entry{link: link}, 1, l.ttl)
}

func (l *LocalCache) SetNotFound(code string) {
	l.cache.SetWithTTL(code, entry{missing: true}, 1, l.emptyTTL)
}

func (l *LocalCache) Del(code string) {
	l.cache.Del(code)
}

// Wait 等待写缓冲落地，测试里用来消除 ristretto 的异步写入。
func (l *LocalCache) Wait() {
	l.cache.Wait()
}

func (l *LocalCache) Close() {
	l.cache.Close()
}
