package sqlite

import (
	"context"
	"database/sql"
	"errors"

	"urlshortener.local/internal/app/account"
)

type AccountsRepo struct {
	db *sql.DB
}

func NewAccountsRepo(s *Store) *AccountsRepo {
	return &AccountsRepo{db: s.db}
}

func (a *AccountsRepo) Save(ctx context.Context, acc *account.Account) error {
	err := a.db.QueryRowContext(ctx,
		`INSERT INTO accounts (email, password_hash, created_at) VALUES (?, ?, ?) RETURNING id`,
		acc.Email, acc.PasswordHash, toUnix(acc.CreatedAt)).Scan(&acc.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return account.ErrAlreadyExists
		}
		return err
	}
	return nil
}

func (a *AccountsRepo) FindByEmail(ctx context.Context, email string) (account.Account, error) {
	var acc account.Account
	var createdAt int64
	err := a.db.QueryRowContext(ctx,
		`SELECT id, email, password_hash, created_at FROM accounts WHERE email = ?`, email).
		Scan(&acc.ID, &acc.Email, &acc.PasswordHash, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return account.Account{}, account.ErrNotFound
		}
		return account.Account{}, err
	}
	acc.CreatedAt = fromUnix(createdAt)
	return acc, nil
}

func (a *AccountsRepo) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := a.db.QueryRowContext(ctx, `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = ?)`, email).Scan(&exists)
	return exists, err
}
