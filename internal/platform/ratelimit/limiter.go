package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

// Policy 是一条限流规则：Window 内最多 Limit 次。
type Policy struct {
	Name   string
	Limit  int
	Window time.Duration
}

var (
	Register = Policy{Name: "register", Limit: 3, Window: time.Minute}
	Login    = Policy{Name: "login", Limit: 5, Window: time.Minute}
	Create   = Policy{Name: "create", Limit: 10, Window: time.Minute}
	Redirect = Policy{Name: "redirect", Limit: 100, Window: time.Minute}
)

// window 用 ZSET 记录窗口内每次请求的毫秒时间戳。
// 返回 {窗口内请求数, 最早一条的时间戳}；超限的这次请求不计入。
var window = redis.NewScript(`
local now, span, limit = tonumber(ARGV[1]), tonumber(ARGV[2]), tonumber(ARGV[3])
redis.call("ZREMRANGEBYSCORE", KEYS[1], "-inf", now - span)
redis.call("ZADD", KEYS[1], now, ARGV[4])
redis.call("PEXPIRE", KEYS[1], span)
local n = redis.call("ZCARD", KEYS[1])
if n > limit then
  redis.call("ZREM", KEYS[1], ARGV[4])
end
local first = redis.call("ZRANGE", KEYS[1], 0, 0, "WITHSCORES")
return {n, tonumber(first[2] or now)}
`)

var seq atomic.Uint64

type Limiter struct {
	rdb *redis.Client
	now func() time.Time
}

func NewLimiter(client *redis.Client) *Limiter {
	return &Limiter{rdb: client, now: time.Now}
}

func Key(p Policy, subject string) string {
	return "rl:" + p.Name + ":" + subject
}

// Allow 记一次请求。超限时第二个返回值是还要等多久。
func (l *Limiter) Allow(ctx context.Context, p Policy, subject string) (bool, time.Duration, error) {
	now := l.now().UnixMilli()
	// 同一毫秒内的多次请求要是不同的 member
	member := strconv.FormatInt(now, 36) + "." + strconv.FormatUint(seq.Add(1), 36)

	vals, err := window.Run(ctx, l.rdb, []string{Key(p, subject)}, now, p.Window.Milliseconds(), p.Limit, member).Int64Slice()
	if err != nil {
		return false, 0, fmt.Errorf("ratelimit %s: %w", p.Name, err)
	}
	if len(vals) != 2 {
		return false, 0, fmt.Errorf("ratelimit %s: unexpected reply %v", p.Name, vals)
	}
	if vals[0] <= int64(p.Limit) {
		return true, 0, nil
	}
	wait := time.Duration(vals[1]+p.Window.Milliseconds()-now) * time.Millisecond
	return false, max(wait, 0), nil
}
