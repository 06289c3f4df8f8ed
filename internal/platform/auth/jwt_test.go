package auth

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHS256_RoundTrip(t *testing.T) {
	ts, err := NewHS256Service("secret", "shortlink", time.Hour)
	require.NoError(t, err)

	token, exp, err := ts.Issue("a@x.com")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), exp, 5*time.Second)

	subject, err := ts.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", subject)
}

func TestHS256_TamperedSignature(t *testing.T) {
	ts, err := NewHS256Service("secret", "shortlink", time.Hour)
	require.NoError(t, err)

	token, _, err := ts.Issue("a@x.com")
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig := []byte(parts[2])
	mid := len(sig) / 2
	if sig[mid] == 'A' {
		sig[mid] = 'B'
	} else {
		sig[mid] = 'A'
	}
	tampered := parts[0] + "." + parts[1] + "." + string(sig)

	_, err = ts.Validate(tampered)
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = ts.Validate("not.a.token")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = ts.Validate("")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHS256_WrongSecretOrIssuer(t *testing.T) {
	a, err := NewHS256Service("secret-a", "shortlink", time.Hour)
	require.NoError(t, err)
	b, err := NewHS256Service("secret-b", "shortlink", time.Hour)
	require.NoError(t, err)
	c, err := NewHS256Service("secret-a", "other", time.Hour)
	require.NoError(t, err)

	token, _, err := a.Issue("a@x.com")
	require.NoError(t, err)
	_, err = b.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = c.Validate(token)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHS256_Expired(t *testing.T) {
	ts, err := NewHS256Service("secret", "shortlink", time.Millisecond)
	require.NoError(t, err)

	token, _, err := ts.Issue("a@x.com")
	require.NoError(t, err)

	// NumericDate 精度是秒，往后拨时钟比 sleep 稳定
	ts.(*hs256Service).now = func() time.Time { return time.Now().Add(2 * time.Second) }
	_, err = ts.Validate(token)
	assert.ErrorIs(t, err, ErrExpiredToken)
}

func TestNewHS256Service_RejectsBadConfig(t *testing.T) {
	_, err := NewHS256Service("", "iss", time.Hour)
	assert.Error(t, err)
	_, err = NewHS256Service("s", "", time.Hour)
	assert.Error(t, err)
	_, err = NewHS256Service("s", "iss", 0)
	assert.Error(t, err)
}

func TestIdentityContext(t *testing.T) {
	_, ok := IdentityFrom(context.Background())
	assert.False(t, ok)

	ctx := WithIdentity(context.Background(), Identity{AccountID: 3, Email: "a@x.com"})
	id, ok := IdentityFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, int64(3), id.AccountID)
}
