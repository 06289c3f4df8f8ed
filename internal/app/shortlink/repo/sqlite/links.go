package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"time"

	"urlshortener.local/internal/app/shortlink"
)

const linkColumns = "id, short_code, original_url, owner_id, created_at, expires_at, click_count"

type LinksRepo struct {
	db *sql.DB
}

func NewLinksRepo(s *Store) *LinksRepo {
	return &LinksRepo{db: s.db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanLink(row rowScanner) (shortlink.Link, error) {
	var (
		l         shortlink.Link
		createdAt int64
		expiresAt sql.NullInt64
	)
	if err := row.Scan(&l.ID, &l.ShortCode, &l.OriginalURL, &l.OwnerID, &createdAt, &expiresAt, &l.ClickCount); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return shortlink.Link{}, shortlink.ErrNotFound
		}
		return shortlink.Link{}, err
	}
	l.CreatedAt = fromUnix(createdAt)
	if expiresAt.Valid {
		t := fromUnix(expiresAt.Int64)
		l.ExpiresAt = &t
	}
	return l, nil
}

func (r *LinksRepo) Save(ctx context.Context, link *shortlink.Link) error {
	var row *sql.Row
	if link.ID == 0 {
		var expiresAt sql.NullInt64
		if link.ExpiresAt != nil {
			expiresAt = sql.NullInt64{Int64: toUnix(*link.ExpiresAt), Valid: true}
		}
		row = r.db.QueryRowContext(ctx,
			`INSERT INTO links (short_code, original_url, owner_id, created_at, expires_at, click_count) VALUES (?, ?, ?, ?, ?, ?) RETURNING `+linkColumns,
			link.ShortCode, link.OriginalURL, link.OwnerID, toUnix(link.CreatedAt), expiresAt, link.ClickCount)
	} else {
		row = r.db.QueryRowContext(ctx,
			`UPDATE links SET original_url = ?, short_code = ? WHERE id = ? AND owner_id = ? RETURNING `+linkColumns,
			link.OriginalURL, link.ShortCode, link.ID, link.OwnerID)
	}
	saved, err := scanLink(row)
	if err != nil {
		if isUniqueViolation(err) {
			return shortlink.ErrShortCodeConflict
		}
		if !errors.Is(err, shortlink.ErrNotFound) {
			slog.Error("sqlite save link failed", "id", link.ID, "err", err)
		}
		return err
	}
	*link = saved
	return nil
}

func (r *LinksRepo) DeleteEntity(ctx context.Context, link shortlink.Link) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `DELETE FROM links WHERE id = ? AND owner_id = ?`, link.ID, link.OwnerID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return shortlink.ErrNotFound
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM click_events WHERE link_id = ?`, link.ID); err != nil {
		return err
	}
	return tx.Commit()
}

func (r *LinksRepo) FindByShortCode(ctx context.Context, code string) (shortlink.Link, error) {
	return scanLink(r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE short_code = ?`, code))
}

func (r *LinksRepo) FindByIDAndOwner(ctx context.Context, id, ownerID int64) (shortlink.Link, error) {
	return scanLink(r.db.QueryRowContext(ctx, `SELECT `+linkColumns+` FROM links WHERE id = ? AND owner_id = ?`, id, ownerID))
}

func (r *LinksRepo) ExistsByShortCode(ctx context.Context, code string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM links WHERE short_code = ?)`, code).Scan(&exists)
	return exists, err
}

func (r *LinksRepo) IncrementClicks(ctx context.Context, id int64) (shortlink.Link, error) {
	return scanLink(r.db.QueryRowContext(ctx,
		`UPDATE links SET click_count = click_count + 1 WHERE id = ? RETURNING `+linkColumns, id))
}

func (r *LinksRepo) FindAllByOwner(ctx context.Context, ownerID int64, req shortlink.PageRequest) (shortlink.Page[shortlink.Link], error) {
	return r.page(ctx, req, `owner_id = ?`, ownerID)
}

func (r *LinksRepo) FindActiveByOwner(ctx context.Context, ownerID int64, now time.Time, req shortlink.PageRequest) (shortlink.Page[shortlink.Link], error) {
	return r.page(ctx, req, `owner_id = ? AND (expires_at IS NULL OR expires_at >= ?)`, ownerID, toUnix(now))
}

func (r *LinksRepo) FindExpiredByOwner(ctx context.Context, ownerID int64, now time.Time, req shortlink.PageRequest) (shortlink.Page[shortlink.Link], error) {
	return r.page(ctx, req, `owner_id = ? AND expires_at < ?`, ownerID, toUnix(now))
}

func (r *LinksRepo) page(ctx context.Context, req shortlink.PageRequest, where string, args ...any) (shortlink.Page[shortlink.Link], error) {
	var total int64
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM links WHERE `+where, args...).Scan(&total); err != nil {
		return shortlink.Page[shortlink.Link]{}, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE `+where+` ORDER BY id ASC LIMIT ? OFFSET ?`,
		append(args, req.Size, req.Offset())...)
	if err != nil {
		return shortlink.Page[shortlink.Link]{}, err
	}
	defer rows.Close()

	var items []shortlink.Link
	for rows.Next() {
		l, err := scanLink(rows)
		if err != nil {
			return shortlink.Page[shortlink.Link]{}, err
		}
		items = append(items, l)
	}
	if err := rows.Err(); err != nil {
		return shortlink.Page[shortlink.Link]{}, err
	}
	return shortlink.NewPage(items, req, total), nil
}

func (r *LinksRepo) InsertClickEvents(ctx context.Context, events []shortlink.ClickEvent) error {
	if len(events) == 0 {
		return nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO click_events (link_id, short_code, clicked_at, ip, user_agent, referer) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, e := range events {
		if _, err := stmt.ExecContext(ctx, e.LinkID, e.ShortCode, toUnix(e.ClickedAt), e.IP, e.UserAgent, e.Referer); err != nil {
			slog.Error("sqlite insert click event failed", "code", e.ShortCode, "err", err)
		}
	}
	return tx.Commit()
}

func (r *LinksRepo) ListClicks(ctx context.Context, linkID int64, limit int, cursor int64) (shortlink.ClickPage, error) {
	query := `SELECT id, clicked_at, ip, user_agent, referer FROM click_events WHERE link_id = ?`
	args := []any{linkID}
	if cursor > 0 {
		query += ` AND id < ?`
		args = append(args, cursor)
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return shortlink.ClickPage{}, err
	}
	defer rows.Close()

	page := shortlink.ClickPage{Items: []shortlink.Click{}}
	for rows.Next() {
		var c shortlink.Click
		var clickedAt int64
		if err := rows.Scan(&c.ID, &clickedAt, &c.IP, &c.UserAgent, &c.Referer); err != nil {
			return shortlink.ClickPage{}, err
		}
		c.ClickedAt = fromUnix(clickedAt)
		page.Items = append(page.Items, c)
	}
	if err := rows.Err(); err != nil {
		return shortlink.ClickPage{}, err
	}
	if len(page.Items) == limit {
		next := page.Items[len(page.Items)-1].ID
		page.NextCursor = &next
	}
	return page, nil
}

func (r *LinksRepo) CountByStatus(ctx context.Context, now time.Time) (int64, int64, error) {
	var active, expired int64
	err := r.db.QueryRowContext(ctx, `SELECT
		COALESCE(SUM(CASE WHEN expires_at IS NULL OR expires_at >= ? THEN 1 ELSE 0 END), 0),
		COALESCE(SUM(CASE WHEN expires_at < ? THEN 1 ELSE 0 END), 0)
	FROM links`, toUnix(now), toUnix(now)).Scan(&active, &expired)
	return active, expired, err
}
