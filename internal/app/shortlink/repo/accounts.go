package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"urlshortener.local/internal/app/account"
)

const accountTimeout = 3 * time.Second

type AccountsRepo struct {
	db *pgxpool.Pool
}

func NewAccountsRepo(db *pgxpool.Pool) *AccountsRepo {
	return &AccountsRepo{db: db}
}

func (r *AccountsRepo) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	var acc account.Account
	err := r.db.QueryRow(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = $1`, email,
	).Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &acc.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return account.Account{}, account.ErrNotFound
	case err != nil:
		return account.Account{}, fmt.Errorf("find account: %w", err)
	}
	return acc, nil
}

func (r *AccountsRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	var ok bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE email = $1)`, email).Scan(&ok); err != nil {
		return false, fmt.Errorf("account exists: %w", err)
	}
	return ok, nil
}

// Save 依赖 email 唯一约束：冲突时 DO NOTHING 不返回行，即 ErrAlreadyExists。
func (r *AccountsRepo) Save(ctx context.Context, acc *account.Account) error {
	ctx, cancel := context.WithTimeout(ctx, accountTimeout)
	defer cancel()

	err := r.db.QueryRow(ctx, `
INSERT INTO accounts (email, password_hash, created_at) VALUES ($1, $2, $3)
ON CONFLICT (email) DO NOTHING
RETURNING id, created_at`,
		acc.Email, acc.PasswordHash, acc.CreatedAt,
	).Scan(&acc.ID, &acc.CreatedAt)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return account.ErrAlreadyExists
	case err != nil:
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}
