package shortlink

import "errors"

// 领域错误。上层（HTTP）用 errors.Is 映射状态码，不要去匹配错误字符串。
var (
	ErrInvalidURL          = errors.New("invalid url")
	ErrInvalidCode         = errors.New("invalid short code")
	ErrShortCodeConflict   = errors.New("short code already exists")
	ErrNotFound            = errors.New("link not found")
	ErrExpired             = errors.New("link has expired")
	ErrInvalidArgument     = errors.New("invalid argument")
	ErrGenerationExhausted = errors.New("short code generation exhausted")

	// ErrNotFoundOrUnauthorized 故意把“不存在”和“不是你的”合并成一个错误，
	// 防止通过 id 枚举别人的短链。
	ErrNotFoundOrUnauthorized = errors.New("link not found or not owned by caller")
)
