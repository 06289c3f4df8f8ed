package shortlink

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"

	"urlshortener.local/internal/platform/metrics"
)

// CodeAlphabet 去掉了容易混淆的 0/O、1/l/I。
const CodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZabcdefghijkmnopqrstuvwxyz23456789"

const (
	DefaultCodeLength  = 6
	DefaultMaxAttempts = 100
)

// ExistsFunc 判断候选短码是否已被占用。
type ExistsFunc func(ctx context.Context, code string) (bool, error)

// Generator 生成固定长度的随机短码。
//
// 随机源必须是密码学安全的（crypto/rand），否则短码可被预测、枚举。
// 尝试次数有上限：谓词一直返回“已存在”说明短码空间接近饱和或去重逻辑坏了，
// 这时返回 ErrGenerationExhausted，而不是把请求卡死。
type Generator struct {
	alphabet    string
	length      int
	maxAttempts int
	random      io.Reader
}

func NewGenerator(length, maxAttempts int) (*Generator, error) {
	return newGenerator(CodeAlphabet, length, maxAttempts, rand.Reader)
}

func newGenerator(alphabet string, length, maxAttempts int, random io.Reader) (*Generator, error) {
	if len(alphabet) < 2 {
		return nil, errors.New("code alphabet too small")
	}
	if length <= 0 {
		return nil, errors.New("code length must be > 0")
	}
	if maxAttempts <= 0 {
		return nil, errors.New("max attempts must be > 0")
	}
	return &Generator{
		alphabet:    alphabet,
		length:      length,
		maxAttempts: maxAttempts,
		random:      random,
	}, nil
}

func (g *Generator) Length() int      { return g.length }
func (g *Generator) Alphabet() string { return g.alphabet }

// Generate 反复抽样直到 exists 返回 false。
func (g *Generator) Generate(ctx context.Context, exists ExistsFunc) (string, error) {
	for attempt := 1; attempt <= g.maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		code, err := g.randomCode()
		if err != nil {
			return "", fmt.Errorf("draw short code: %w", err)
		}
		taken, err := exists(ctx, code)
		if err != nil {
			return "", err
		}
		if !taken {
			metrics.ShortCodeAttempts.Observe(float64(attempt))
			return code, nil
		}
	}
	metrics.ShortCodeExhausted.Inc()
	return "", ErrGenerationExhausted
}

func (g *Generator) randomCode() (string, error) {
	max := big.NewInt(int64(len(g.alphabet)))
	buf := make([]byte, g.length)
	for i := range buf {
		n, err := rand.Int(g.random, max)
		if err != nil {
			return "", err
		}
		buf[i] = g.alphabet[n.Int64()]
	}
	return string(buf), nil
}
