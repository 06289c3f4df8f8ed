package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token expired")
)

// TokenService 签发和校验无状态的访问令牌，subject 是账号 email。
type TokenService interface {
	Issue(subject string) (token string, expiresAt time.Time, err error)
	// Validate 签名、格式、issuer 不对返回 ErrInvalidToken，过期返回 ErrExpiredToken
	Validate(token string) (subject string, err error)
	TTL() time.Duration
}

var hs256 = jwt.SigningMethodHS256

type hs256Service struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
	parser *jwt.Parser
}

func NewHS256Service(secret, issuer string, ttl time.Duration) (TokenService, error) {
	var errs []error
	if secret == "" {
		errs = append(errs, errors.New("jwt secret is empty"))
	}
	if issuer == "" {
		errs = append(errs, errors.New("jwt issuer is empty"))
	}
	if ttl <= 0 {
		errs = append(errs, errors.New("jwt ttl must be > 0"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	s := &hs256Service{key: []byte(secret), issuer: issuer, ttl: ttl, now: time.Now}
	s.parser = jwt.NewParser(
		jwt.WithValidMethods([]string{hs256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(func() time.Time { return s.now() }),
	)
	return s, nil
}

func (s *hs256Service) TTL() time.Duration { return s.ttl }

func (s *hs256Service) Issue(subject string) (string, time.Time, error) {
	if subject == "" {
		return "", time.Time{}, errors.New("empty subject")
	}
	iat := s.now()
	exp := iat.Add(s.ttl)
	token, err := jwt.NewWithClaims(hs256, jwt.RegisteredClaims{
		Issuer:    s.issuer,
		Subject:   subject,
		IssuedAt:  jwt.NewNumericDate(iat),
		ExpiresAt: jwt.NewNumericDate(exp),
	}).SignedString(s.key)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, exp, nil
}

func (s *hs256Service) Validate(token string) (string, error) {
	var claims jwt.RegisteredClaims
	_, err := s.parser.ParseWithClaims(token, &claims, func(*jwt.Token) (any, error) { return s.key, nil })
	switch {
	// jwt/v5 先验签再校验 claims，能拿到过期错误说明签名是对的
	case errors.Is(err, jwt.ErrTokenExpired):
		return "", ErrExpiredToken
	case err != nil, claims.Subject == "":
		return "", ErrInvalidToken
	}
	return claims.Subject, nil
}
