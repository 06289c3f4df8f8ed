package repo

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"urlshortener.local/internal/app/account"
	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/platform/db"
	"urlshortener.local/internal/platform/migrate"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres 起一个一次性的 PostgreSQL 容器并执行迁移。没有 Docker 时跳过。
func startPostgres(t *testing.T) *pgxpool.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("skip postgres container in -short mode")
	}
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "postgres:16-alpine",
			ExposedPorts: []string{"5432/tcp"},
			Env: map[string]string{
				"POSTGRES_USER":     "shortlink",
				"POSTGRES_PASSWORD": "shortlink",
				"POSTGRES_DB":       "shortlink",
			},
			WaitingFor: wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60 * time.Second),
		},
		Started: true,
	})
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := fmt.Sprintf("postgres://shortlink:shortlink@%s:%s/shortlink?sslmode=disable", host, port.Port())
	pool, err := db.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	_, err = migrate.Up(ctx, pool, migrate.Options{})
	require.NoError(t, err)
	return pool
}

func TestPostgres_LinksAndAccounts(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	links := NewLinksRepo(pool)
	accounts := NewAccountsRepo(pool)

	owner := account.Account{Email: gofakeit.Email(), PasswordHash: "x", CreatedAt: time.Now()}
	require.NoError(t, accounts.Save(ctx, &owner))
	dup := account.Account{Email: owner.Email, PasswordHash: "y", CreatedAt: time.Now()}
	require.ErrorIs(t, accounts.Save(ctx, &dup), account.ErrAlreadyExists)

	got, err := accounts.FindByEmail(ctx, owner.Email)
	require.NoError(t, err)
	assert.Equal(t, owner.ID, got.ID)
	_, err = accounts.FindByEmail(ctx, "missing@example.com")
	require.ErrorIs(t, err, account.ErrNotFound)

	now := time.Now().UTC().Truncate(time.Microsecond)
	past := now.Add(-time.Hour)
	l1 := shortlink.Link{ShortCode: "pgcode1", OriginalURL: gofakeit.URL(), OwnerID: owner.ID, CreatedAt: now}
	l2 := shortlink.Link{ShortCode: "pgcode2", OriginalURL: gofakeit.URL(), OwnerID: owner.ID, CreatedAt: now, ExpiresAt: &past}
	require.NoError(t, links.Save(ctx, &l1))
	require.NoError(t, links.Save(ctx, &l2))
	assert.NotZero(t, l1.ID)

	conflict := shortlink.Link{ShortCode: "pgcode1", OriginalURL: gofakeit.URL(), OwnerID: owner.ID, CreatedAt: now}
	require.ErrorIs(t, links.Save(ctx, &conflict), shortlink.ErrShortCodeConflict)

	exists, err := links.ExistsByShortCode(ctx, "pgcode1")
	require.NoError(t, err)
	assert.True(t, exists)

	_, err = links.FindByIDAndOwner(ctx, l1.ID, owner.ID+1000)
	require.ErrorIs(t, err, shortlink.ErrNotFound)

	active, err := links.FindActiveByOwner(ctx, owner.ID, now, shortlink.PageRequest{Size: 10})
	require.NoError(t, err)
	require.Len(t, active.Items, 1)
	assert.Equal(t, l1.ID, active.Items[0].ID)

	expired, err := links.FindExpiredByOwner(ctx, owner.ID, now, shortlink.PageRequest{Size: 10})
	require.NoError(t, err)
	require.Len(t, expired.Items, 1)
	assert.Equal(t, l2.ID, expired.Items[0].ID)

	a, e, err := links.CountByStatus(ctx, now)
	require.NoError(t, err)
	assert.Equal(t, int64(1), a)
	assert.Equal(t, int64(1), e)

	const k = 50
	var wg sync.WaitGroup
	for i := 0; i < k; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := links.IncrementClicks(ctx, l1.ID)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	reloaded, err := links.FindByShortCode(ctx, "pgcode1")
	require.NoError(t, err)
	assert.Equal(t, int64(k), reloaded.ClickCount)

	require.NoError(t, links.InsertClickEvents(ctx, []shortlink.ClickEvent{
		{LinkID: l1.ID, ShortCode: l1.ShortCode, ClickedAt: now, IP: "1.2.3.4"},
		{LinkID: l1.ID, ShortCode: l1.ShortCode, ClickedAt: now, IP: "5.6.7.8"},
	}))
	page, err := links.ListClicks(ctx, l1.ID, 1, 0)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, "5.6.7.8", page.Items[0].IP)

	require.NoError(t, links.DeleteEntity(ctx, l1))
	require.ErrorIs(t, links.DeleteEntity(ctx, l1), shortlink.ErrNotFound)
	page, err = links.ListClicks(ctx, l1.ID, 10, 0)
	require.NoError(t, err)
	assert.Empty(t, page.Items)
}
