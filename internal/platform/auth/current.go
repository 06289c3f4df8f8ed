package auth

import "context"

// Identity 是当前请求已认证的账号，只由认证中间件写入 context。
type Identity struct {
	AccountID int64
	Email     string
}

type ctxKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

func IdentityFrom(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}
