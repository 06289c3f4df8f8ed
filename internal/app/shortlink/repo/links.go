package repo

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"urlshortener.local/internal/app/shortlink"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgreSQL 唯一约束冲突
const uniqueViolation = "23505"

const linkColumns = "id, short_code, original_url, owner_id, created_at, expires_at, click_count"

// LinksRepo 是 shortlink.Repository 的 PostgreSQL 实现，同时实现点击明细存储和状态统计。
type LinksRepo struct {
	db *pgxpool.Pool
}

func NewLinksRepo(db *pgxpool.Pool) *LinksRepo {
	return &LinksRepo{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}

func scanLink(row pgx.Row) (shortlink.Link, error) {
	var l shortlink.Link
	err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &l.OwnerID, &l.CreatedAt, &l.ExpiresAt, &l.ClickCount)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return shortlink.Link{}, shortlink.ErrNotFound
		}
		return shortlink.Link{}, err
	}
	return l, nil
}

/*
Save：ID 为 0 时插入新短链并回填 ID；否则按 (id, owner_id) 更新 url 和短码。
短码唯一性完全交给唯一约束，冲突时返回 ErrShortCodeConflict，不会留下半条记录。
*/
func (r *LinksRepo) Save(ctx context.Context, link *shortlink.Link) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var row pgx.Row
	if link.ID == 0 {
		row = r.db.QueryRow(dbctx,
			"INSERT INTO links (short_code, original_url, owner_id, created_at, expires_at, click_count) VALUES ($1,$2,$3,$4,$5,$6) RETURNING "+linkColumns,
			link.ShortCode, link.OriginalURL, link.OwnerID, link.CreatedAt, link.ExpiresAt, link.ClickCount)
	} else {
		row = r.db.QueryRow(dbctx,
			"UPDATE links SET original_url=$1, short_code=$2 WHERE id=$3 AND owner_id=$4 RETURNING "+linkColumns,
			link.OriginalURL, link.ShortCode, link.ID, link.OwnerID)
	}
	saved, err := scanLink(row)
	if err != nil {
		if isUniqueViolation(err) {
			return shortlink.ErrShortCodeConflict
		}
		if !errors.Is(err, shortlink.ErrNotFound) {
			slog.Error("save link failed", "id", link.ID, "err", err)
		}
		return err
	}
	*link = saved
	return nil
}

// DeleteEntity 在同一个事务里删除短链和它的点击明细。
func (r *LinksRepo) DeleteEntity(ctx context.Context, link shortlink.Link) error {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	tx, err := r.db.Begin(dbctx)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	defer tx.Rollback(dbctx) //提交成功后 rollback 无效，可忽略

	tag, err := tx.Exec(dbctx, "DELETE FROM links WHERE id=$1 AND owner_id=$2", link.ID, link.OwnerID)
	if err != nil {
		slog.Error(err.Error())
		return err
	}
	if tag.RowsAffected() == 0 {
		return shortlink.ErrNotFound
	}
	if _, err := tx.Exec(dbctx, "DELETE FROM click_events WHERE link_id=$1", link.ID); err != nil {
		slog.Error(err.Error())
		return err
	}
	return tx.Commit(dbctx)
}

func (r *LinksRepo) FindByShortCode(ctx context.Context, code string) (shortlink.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return scanLink(r.db.QueryRow(dbctx, "SELECT "+linkColumns+" FROM links WHERE short_code=$1", code))
}

func (r *LinksRepo) FindByIDAndOwner(ctx context.Context, id, ownerID int64) (shortlink.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return scanLink(r.db.QueryRow(dbctx, "SELECT "+linkColumns+" FROM links WHERE id=$1 AND owner_id=$2", id, ownerID))
}

func (r *LinksRepo) ExistsByShortCode(ctx context.Context, code string) (bool, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()

	var exists bool
	if err := r.db.QueryRow(dbctx, "SELECT EXISTS(SELECT 1 FROM links WHERE short_code=$1)", code).Scan(&exists); err != nil {
		slog.Error(err.Error())
		return false, err
	}
	return exists, nil
}

// IncrementClicks 单条 UPDATE 自增，并发下不会丢失计数。
func (r *LinksRepo) IncrementClicks(ctx context.Context, id int64) (shortlink.Link, error) {
	dbctx, cancel := context.WithTimeout(ctx, 1*time.Second)
	defer cancel()
	return scanLink(r.db.QueryRow(dbctx,
		"UPDATE links SET click_count = click_count + 1 WHERE id=$1 RETURNING "+linkColumns, id))
}

func (r *LinksRepo) FindAllByOwner(ctx context.Context, ownerID int64, req shortlink.PageRequest) (shortlink.Page[shortlink.Link], error) {
	return r.page(ctx, req, "owner_id=$1", ownerID)
}

func (r *LinksRepo) FindActiveByOwner(ctx context.Context, ownerID int64, now time.Time, req shortlink.PageRequest) (shortlink.Page[shortlink.Link], error) {
	return r.page(ctx, req, "owner_id=$1 AND (expires_at IS NULL OR expires_at >= $2)", ownerID, now)
}

func (r *LinksRepo) FindExpiredByOwner(ctx context.Context, ownerID int64, now time.Time, req shortlink.PageRequest) (shortlink.Page[shortlink.Link], error) {
	return r.page(ctx, req, "owner_id=$1 AND expires_at < $2", ownerID, now)
}

// page 统计总数并按 id 升序取一页。where 只能是本文件里的常量片段。
func (r *LinksRepo) page(ctx context.Context, req shortlink.PageRequest, where string, args ...any) (shortlink.Page[shortlink.Link], error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var total int64
	if err := r.db.QueryRow(dbctx, "SELECT COUNT(*) FROM links WHERE "+where, args...).Scan(&total); err != nil {
		slog.Error(err.Error())
		return shortlink.Page[shortlink.Link]{}, err
	}

	n := len(args)
	query := "SELECT " + linkColumns + " FROM links WHERE " + where +
		" ORDER BY id ASC LIMIT $" + strconv.Itoa(n+1) + " OFFSET $" + strconv.Itoa(n+2)
	rows, err := r.db.Query(dbctx, query, append(args, req.Size, req.Offset())...)
	if err != nil {
		slog.Error(err.Error())
		return shortlink.Page[shortlink.Link]{}, err
	}
	items, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shortlink.Link, error) {
		return scanLink(row)
	})
	if err != nil {
		slog.Error(err.Error())
		return shortlink.Page[shortlink.Link]{}, err
	}
	return shortlink.NewPage(items, req, total), nil
}

// InsertClickEvents 批量写入点击明细，单条失败不影响其它条。
func (r *LinksRepo) InsertClickEvents(ctx context.Context, events []shortlink.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}
	dbctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	batch := &pgx.Batch{}
	for _, e := range events {
		batch.Queue(`INSERT INTO click_events (link_id, short_code, clicked_at, ip, user_agent, referer) VALUES ($1,$2,$3,$4,$5,$6)`,
			e.LinkID, e.ShortCode, e.ClickedAt, e.IP, e.UserAgent, e.Referer)
	}
	br := r.db.SendBatch(dbctx, batch)
	defer br.Close()

	var firstErr error
	for _, e := range events {
		if _, err := br.Exec(); err != nil {
			slog.Error("insert click event failed", "code", e.ShortCode, "err", err)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

// ListClicks 按 id 倒序做 cursor 分页，取满 limit 条时返回下一页 cursor。
func (r *LinksRepo) ListClicks(ctx context.Context, linkID int64, limit int, cursor int64) (shortlink.ClickPage, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var rows pgx.Rows
	var err error
	if cursor == 0 {
		rows, err = r.db.Query(dbctx, `SELECT id, clicked_at, ip, user_agent, referer FROM click_events WHERE link_id=$1 ORDER BY id DESC LIMIT $2`, linkID, limit)
	} else {
		rows, err = r.db.Query(dbctx, `SELECT id, clicked_at, ip, user_agent, referer FROM click_events WHERE link_id=$1 AND id<$2 ORDER BY id DESC LIMIT $3`, linkID, cursor, limit)
	}
	if err != nil {
		slog.Error(err.Error())
		return shortlink.ClickPage{}, err
	}
	clicks, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (shortlink.Click, error) {
		var c shortlink.Click
		err := row.Scan(&c.ID, &c.ClickedAt, &c.IP, &c.UserAgent, &c.Referer)
		return c, err
	})
	if err != nil {
		slog.Error(err.Error())
		return shortlink.ClickPage{}, err
	}
	page := shortlink.ClickPage{Items: clicks}
	if len(clicks) == limit {
		next := clicks[len(clicks)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (r *LinksRepo) CountByStatus(ctx context.Context, now time.Time) (int64, int64, error) {
	dbctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()

	var active, expired int64
	err := r.db.QueryRow(dbctx, `SELECT
  COUNT(*) FILTER (WHERE expires_at IS NULL OR expires_at >= $1),
  COUNT(*) FILTER (WHERE expires_at < $1)
FROM links`, now).Scan(&active, &expired)
	if err != nil {
		slog.Error(err.Error())
		return 0, 0, err
	}
	return active, expired, nil
}
