package cache

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"urlshortener.local/internal/app/shortlink"
)

// fakeRepo 只实现缓存装饰器会调用到的方法，并记录回源次数。
type fakeRepo struct {
	shortlink.Repository

	mu     sync.Mutex
	links  map[int64]shortlink.Link
	nextID int64
	finds  int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{links: map[int64]shortlink.Link{}}
}

func (f *fakeRepo) Save(_ context.Context, link *shortlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if link.ID == 0 {
		f.nextID++
		link.ID = f.nextID
	}
	f.links[link.ID] = *link
	return nil
}

func (f *fakeRepo) FindByIDAndOwner(_ context.Context, id, ownerID int64) (shortlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok || l.OwnerID != ownerID {
		return shortlink.Link{}, shortlink.ErrNotFound
	}
	return l, nil
}

func (f *fakeRepo) FindByShortCode(_ context.Context, code string) (shortlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.finds++
	for _, l := range f.links {
		if l.ShortCode == code {
			return l, nil
		}
	}
	return shortlink.Link{}, shortlink.ErrNotFound
}

func (f *fakeRepo) DeleteEntity(_ context.Context, link shortlink.Link) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.links, link.ID)
	return nil
}

func (f *fakeRepo) IncrementClicks(_ context.Context, id int64) (shortlink.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	l, ok := f.links[id]
	if !ok {
		return shortlink.Link{}, shortlink.ErrNotFound
	}
	l.ClickCount++
	f.links[id] = l
	return l, nil
}

func (f *fakeRepo) findCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.finds
}

func newLocal(t *testing.T) *LocalCache {
	t.Helper()
	local, err := NewLocalCache(1000)
	require.NoError(t, err)
	t.Cleanup(local.Close)
	return local
}

func TestLinkCache_LocalHitAndInvalidate(t *testing.T) {
	repo := newFakeRepo()
	local := newLocal(t)
	c := NewLinkCache(repo, nil, local)
	ctx := context.Background()

	link := shortlink.Link{ShortCode: "abc", OriginalURL: "https://example.com", OwnerID: 1, CreatedAt: time.Now()}
	require.NoError(t, c.Save(ctx, &link))
	local.Wait()

	got, err := c.FindByShortCode(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com", got.OriginalURL)
	assert.Equal(t, 0, repo.findCount())

	updated, err := c.IncrementClicks(ctx, link.ID)
	require.NoError(t, err)
	local.Wait()
	got, err = c.FindByShortCode(ctx, "abc")
	require.NoError(t, err)
	assert.Equal(t, updated.ClickCount, got.ClickCount)

	// 改短码后旧短码必须失效
	link.ShortCode = "xyz"
	require.NoError(t, c.Save(ctx, &link))
	local.Wait()
	_, err = c.FindByShortCode(ctx, "abc")
	require.ErrorIs(t, err, shortlink.ErrNotFound)

	require.NoError(t, c.DeleteEntity(ctx, link))
	local.Wait()
	_, err = c.FindByShortCode(ctx, "xyz")
	require.ErrorIs(t, err, shortlink.ErrNotFound)
}

func TestLinkCache_NegativeCacheOverriddenOnCreate(t *testing.T) {
	repo := newFakeRepo()
	local := newLocal(t)
	c := NewLinkCache(repo, nil, local)
	ctx := context.Background()

	_, err := c.FindByShortCode(ctx, "later")
	require.ErrorIs(t, err, shortlink.ErrNotFound)
	local.Wait()
	_, err = c.FindByShortCode(ctx, "later")
	require.ErrorIs(t, err, shortlink.ErrNotFound)
	assert.Equal(t, 1, repo.findCount())

	link := shortlink.Link{ShortCode: "later", OriginalURL: "https://example.com", OwnerID: 1}
	require.NoError(t, c.Save(ctx, &link))
	local.Wait()

	got, err := c.FindByShortCode(ctx, "later")
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
}

func TestCodeFilter(t *testing.T) {
	f := NewCodeFilter(1000, 0.01)
	assert.False(t, f.MightExist("abc"))
	f.Add("abc")
	assert.True(t, f.MightExist("abc"))
	assert.Equal(t, uint32(1), f.Len())
}

func redisClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		addr = "localhost:6379"
	}
	client := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	ctx, cancel := context.WithTimeout(context.Background(), 800*time.Millisecond)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		t.Skipf("skip: cannot connect to redis at %s: %v", addr, err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestLinkCache_Redis(t *testing.T) {
	client := redisClient(t)
	repo := newFakeRepo()
	c := NewLinkCache(repo, client, nil)
	ctx := context.Background()

	code := "t" + gofakeit.LetterN(12)
	t.Cleanup(func() { client.Del(context.Background(), keyPrefix+code) })

	_, err := c.FindByShortCode(ctx, code)
	require.ErrorIs(t, err, shortlink.ErrNotFound)
	val, err := client.Get(ctx, keyPrefix+code).Result()
	require.NoError(t, err)
	assert.Equal(t, notFoundSentinel, val)
	ttl := client.TTL(ctx, keyPrefix+code).Val()
	assert.True(t, ttl > 0 && ttl <= time.Minute, "unexpected negative TTL %v", ttl)

	link := shortlink.Link{ShortCode: code, OriginalURL: "https://example.com", OwnerID: 1, CreatedAt: time.Now().UTC()}
	require.NoError(t, c.Save(ctx, &link))

	before := repo.findCount()
	got, err := c.FindByShortCode(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, link.ID, got.ID)
	assert.Equal(t, before, repo.findCount())

	require.NoError(t, c.DeleteEntity(ctx, link))
	_, err = client.Get(ctx, keyPrefix+code).Result()
	assert.ErrorIs(t, err, redis.Nil)
}
