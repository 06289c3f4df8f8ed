package account

import (
	"context"
	"errors"
	"time"
)

var (
	ErrAlreadyExists      = errors.New("account already exists")
	ErrNotFound           = errors.New("account not found")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidEmail       = errors.New("invalid email")
	ErrWeakPassword       = errors.New("password does not meet policy")
)

// Account 是注册用户。Email 存储前统一转小写，是唯一的登录标识。
type Account struct {
	ID           int64
	Email        string
	PasswordHash string
	CreatedAt    time.Time
}

// Repository 是账号的持久化抽象。
//
// Save 在 email 冲突时返回 ErrAlreadyExists（依赖唯一约束，而不是先查后插）。
type Repository interface {
	Save(ctx context.Context, acc *Account) error
	FindByEmail(ctx context.Context, email string) (Account, error)
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}
