package migrate

import (
	"context"
	"crypto/sha256"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed sql/*.sql
var embedded embed.FS

// advisoryLockKey 多个实例同时 MIGRATE_ON_START 时只有一个在跑迁移
const advisoryLockKey int64 = 0x73686f72746c6e6b

// ErrChecksumMismatch 表示已执行过的迁移文件被改过。已上线的迁移只能追加新文件，不能改旧文件。
var ErrChecksumMismatch = errors.New("applied migration was modified")

type Options struct {
	// Dir 非空时从磁盘目录读取迁移文件，否则使用编译进二进制的 sql/
	Dir string
}

type Result struct {
	AppliedFiles []string
	SkippedFiles []string
}

type migration struct {
	version  string
	body     string
	checksum string
}

// Up 按文件名顺序执行尚未执行过的迁移，每个文件一个事务。
// 整个过程持有一把 PostgreSQL advisory lock。
func Up(ctx context.Context, pool *pgxpool.Pool, opts Options) (*Result, error) {
	fsys, err := source(opts.Dir)
	if err != nil {
		return nil, err
	}
	migrations, err := load(fsys)
	if err != nil {
		return nil, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, `SELECT pg_advisory_lock($1)`, advisoryLockKey); err != nil {
		return nil, fmt.Errorf("acquire migration lock: %w", err)
	}
	defer func() {
		if _, err := conn.Exec(context.Background(), `SELECT pg_advisory_unlock($1)`, advisoryLockKey); err != nil {
			slog.Error("release migration lock failed", "err", err)
		}
	}()

	if err := ensureTable(ctx, conn.Conn()); err != nil {
		return nil, err
	}
	applied, err := appliedChecksums(ctx, conn.Conn())
	if err != nil {
		return nil, err
	}

	res := &Result{}
	for _, m := range migrations {
		if sum, ok := applied[m.version]; ok {
			// 老版本没有记录 checksum，留空的不校验
			if sum != "" && sum != m.checksum {
				return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, m.version)
			}
			res.SkippedFiles = append(res.SkippedFiles, m.version)
			continue
		}
		if err := apply(ctx, conn.Conn(), m); err != nil {
			return nil, err
		}
		slog.Info("migration applied", "file", m.version)
		res.AppliedFiles = append(res.AppliedFiles, m.version)
	}
	return res, nil
}

func source(dir string) (fs.FS, error) {
	if strings.TrimSpace(dir) == "" {
		return fs.Sub(embedded, "sql")
	}
	st, err := os.Stat(dir)
	if err != nil || !st.IsDir() {
		return nil, fmt.Errorf("migrations dir not found: %s", dir)
	}
	return os.DirFS(dir), nil
}

// load 读取 fsys 下所有 .sql 文件，按文件名排序。版本号取文件名。
func load(fsys fs.FS) ([]migration, error) {
	var names []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(strings.ToLower(d.Name()), ".sql") {
			names = append(names, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(names, func(i, j int) bool { return path.Base(names[i]) < path.Base(names[j]) })

	out := make([]migration, 0, len(names))
	seen := make(map[string]string, len(names))
	for _, name := range names {
		version := path.Base(name)
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("duplicate migration %s (%s and %s)", version, prev, name)
		}
		seen[version] = name

		body, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read migration %s: %w", name, err)
		}
		sum := sha256.Sum256(body)
		out = append(out, migration{version: version, body: string(body), checksum: hex.EncodeToString(sum[:])})
	}
	return out, nil
}

func ensureTable(ctx context.Context, conn *pgx.Conn) error {
	_, err := conn.Exec(ctx, `
CREATE TABLE IF NOT EXISTS schema_migrations (
  version    TEXT PRIMARY KEY,
  applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
ALTER TABLE schema_migrations ADD COLUMN IF NOT EXISTS checksum TEXT NOT NULL DEFAULT '';
`)
	return err
}

func appliedChecksums(ctx context.Context, conn *pgx.Conn) (map[string]string, error) {
	rows, err := conn.Query(ctx, `SELECT version, checksum FROM schema_migrations`)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string)
	var version, sum string
	_, err = pgx.ForEachRow(rows, []any{&version, &sum}, func() error {
		out[version] = sum
		return nil
	})
	return out, err
}

func apply(ctx context.Context, conn *pgx.Conn, m migration) error {
	tx, err := conn.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, m.body); err != nil {
		return fmt.Errorf("apply migration %s: %w", m.version, err)
	}
	if _, err := tx.Exec(ctx, `INSERT INTO schema_migrations (version, checksum) VALUES ($1, $2)`, m.version, m.checksum); err != nil {
		return fmt.Errorf("record migration %s: %w", m.version, err)
	}
	return tx.Commit(ctx)
}
