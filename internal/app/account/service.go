package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/go-playground/validator/v10"
)

const (
	minPasswordLen = 8
	// bcrypt 只使用前 72 字节
	maxPasswordLen = 72
)

var validate = validator.New()

type Service struct {
	repo   Repository
	hasher Hasher
	now    func() time.Time
}

func NewService(repo Repository, hasher Hasher) (*Service, error) {
	if repo == nil || hasher == nil {
		return nil, errors.New("account: repository and hasher are required")
	}
	return &Service{repo: repo, hasher: hasher, now: time.Now}, nil
}

// NormalizeEmail 去掉首尾空白并转小写。
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

func validateEmail(email string) error {
	if err := validate.Var(email, "required,email,max=254"); err != nil {
		return fmt.Errorf("%w: %q", ErrInvalidEmail, email)
	}
	return nil
}

// validatePassword 要求 8~72 字节，至少包含一个小写字母、一个大写字母和一个数字。
func validatePassword(password string) error {
	if len(password) < minPasswordLen || len(password) > maxPasswordLen {
		return fmt.Errorf("%w: length must be between %d and %d bytes", ErrWeakPassword, minPasswordLen, maxPasswordLen)
	}
	var lower, upper, digit bool
	for _, r := range password {
		switch {
		case unicode.IsLower(r):
			lower = true
		case unicode.IsUpper(r):
			upper = true
		case unicode.IsDigit(r):
			digit = true
		}
	}
	if !lower || !upper || !digit {
		return fmt.Errorf("%w: needs lower case, upper case and digit", ErrWeakPassword)
	}
	return nil
}

// Register 创建账号。明文口令不会被保存或记录到日志。
func (s *Service) Register(ctx context.Context, email, password string) (Account, error) {
	email = NormalizeEmail(email)
	if err := validateEmail(email); err != nil {
		return Account{}, err
	}
	if err := validatePassword(password); err != nil {
		return Account{}, err
	}

	exists, err := s.repo.ExistsByEmail(ctx, email)
	if err != nil {
		return Account{}, err
	}
	if exists {
		return Account{}, ErrAlreadyExists
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		slog.Error("hash password failed", "err", err)
		return Account{}, err
	}
	acc := Account{
		Email:        email,
		PasswordHash: hash,
		CreatedAt:    s.now(),
	}
	// 并发注册同一 email 时由唯一约束兜底，Save 返回 ErrAlreadyExists
	if err := s.repo.Save(ctx, &acc); err != nil {
		return Account{}, err
	}
	slog.Info("account registered", "account_id", acc.ID)
	return acc, nil
}

// Authenticate 校验邮箱和口令。
// 邮箱不存在与口令错误返回同一个 ErrInvalidCredentials，调用方无法区分。
func (s *Service) Authenticate(ctx context.Context, email, password string) (Account, error) {
	email = NormalizeEmail(email)
	acc, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			slog.Warn("login rejected", "reason", "unknown email")
			return Account{}, ErrInvalidCredentials
		}
		return Account{}, err
	}
	ok, err := s.hasher.Verify(acc.PasswordHash, password)
	if err != nil {
		slog.Error("verify password failed", "account_id", acc.ID, "err", err)
		return Account{}, err
	}
	if !ok {
		slog.Warn("login rejected", "reason", "bad password", "account_id", acc.ID)
		return Account{}, ErrInvalidCredentials
	}
	return acc, nil
}

// FindByEmail 供认证中间件把 token 主体解析成账号。
func (s *Service) FindByEmail(ctx context.Context, email string) (Account, error) {
	return s.repo.FindByEmail(ctx, NormalizeEmail(email))
}
