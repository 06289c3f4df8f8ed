package main

import (
	"context"
	"fmt"
	"log/slog"

	"urlshortener.local/internal/app/account"
	"urlshortener.local/internal/app/shortlink"
	"urlshortener.local/internal/app/shortlink/repo"
	"urlshortener.local/internal/app/shortlink/repo/sqlite"
	"urlshortener.local/internal/platform/config"
	"urlshortener.local/internal/platform/db"
	"urlshortener.local/internal/platform/migrate"
)

// linkStore 是两种存储驱动共同提供的能力
type linkStore interface {
	shortlink.Repository
	shortlink.ClickStore
	shortlink.StatusCounter
}

type storage struct {
	links    linkStore
	accounts account.Repository
	ping     func(ctx context.Context) error
	close    func()
}

func openStorage(ctx context.Context, cfg config.Config) (*storage, error) {
	switch cfg.DBDriver {
	case config.DriverSQLite:
		store, err := sqlite.Open(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite %s: %w", cfg.SQLitePath, err)
		}
		slog.Info("使用 SQLite 存储", "path", cfg.SQLitePath)
		return &storage{
			links:    sqlite.NewLinksRepo(store),
			accounts: sqlite.NewAccountsRepo(store),
			ping:     store.Ping,
			close:    func() { _ = store.Close() },
		}, nil
	default:
		pool, err := db.New(ctx, cfg.DBDSN)
		if err != nil {
			return nil, err
		}
		slog.Info("数据库连接成功")
		if cfg.MigrateOnStart {
			res, err := migrate.Up(ctx, pool, migrate.Options{})
			if err != nil {
				pool.Close()
				return nil, fmt.Errorf("migrate: %w", err)
			}
			slog.Info("数据库迁移完成", "applied", res.AppliedFiles, "skipped", len(res.SkippedFiles))
		}
		return &storage{
			links:    repo.NewLinksRepo(pool),
			accounts: repo.NewAccountsRepo(pool),
			ping:     pool.Ping,
			close:    pool.Close,
		}, nil
	}
}
