package identity

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

type stubDirectory struct {
	email, name string
	err         error
	calls       int
}

func (d *stubDirectory) Lookup(ctx context.Context, callerID string) (string, string, error) {
	d.calls++
	return d.email, d.name, d.err
}

func signToken(t *testing.T, secret []byte, id string, expiresIn time.Duration) string {
	t.Helper()
	claims := tokenClaims{
		ID: id,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func newTestResolver(t *testing.T, dir Directory) (*Resolver, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	return NewResolver(testSecret, dir, rdb), mr
}

func TestResolveSuccess(t *testing.T) {
	dir := &stubDirectory{email: "ada@example.com", name: "Ada"}
	r, _ := newTestResolver(t, dir)

	id, err := r.Resolve(context.Background(), signToken(t, testSecret, "u-1", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, &Identity{ID: "u-1", Email: "ada@example.com", Name: "Ada"}, id)
}

func TestResolveEmptyCredential(t *testing.T) {
	r, _ := newTestResolver(t, &stubDirectory{})

	_, err := r.Resolve(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveMalformedToken(t *testing.T) {
	dir := &stubDirectory{}
	r, _ := newTestResolver(t, dir)

	_, err := r.Resolve(context.Background(), "not-a-jwt")
	assert.ErrorIs(t, err, ErrInvalidCredential)
	assert.Zero(t, dir.calls)
}

func TestResolveExpiredToken(t *testing.T) {
	r, _ := newTestResolver(t, &stubDirectory{})

	_, err := r.Resolve(context.Background(), signToken(t, testSecret, "u-1", -time.Hour))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveWrongSecret(t *testing.T) {
	r, _ := newTestResolver(t, &stubDirectory{})

	_, err := r.Resolve(context.Background(), signToken(t, []byte("other-secret"), "u-1", time.Hour))
	assert.ErrorIs(t, err, ErrInvalidCredential)
}

func TestResolveLookupFailureKeepsID(t *testing.T) {
	// The token already proved the caller's id; a missing or unreadable
	// profile must not anonymize the event.
	for _, dirErr := range []error{ErrNotFound, errors.New("db down")} {
		dir := &stubDirectory{err: dirErr}
		r, _ := newTestResolver(t, dir)

		id, err := r.Resolve(context.Background(), signToken(t, testSecret, "u-2", time.Hour))
		require.NoError(t, err)
		assert.Equal(t, &Identity{ID: "u-2"}, id)
	}
}

func TestResolveUsesCache(t *testing.T) {
	dir := &stubDirectory{email: "ada@example.com", name: "Ada"}
	r, _ := newTestResolver(t, dir)
	credential := signToken(t, testSecret, "u-1", time.Hour)

	ctx := context.Background()
	first, err := r.Resolve(ctx, credential)
	require.NoError(t, err)

	second, err := r.Resolve(ctx, credential)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, dir.calls, "second resolve should come from cache")
}

func TestResolveCacheExpiry(t *testing.T) {
	dir := &stubDirectory{email: "ada@example.com", name: "Ada"}
	r, mr := newTestResolver(t, dir)
	credential := signToken(t, testSecret, "u-1", time.Hour)

	ctx := context.Background()
	_, err := r.Resolve(ctx, credential)
	require.NoError(t, err)

	mr.FastForward(cacheTTL + time.Second)

	_, err = r.Resolve(ctx, credential)
	require.NoError(t, err)
	assert.Equal(t, 2, dir.calls)
}

func TestResolveWithoutCache(t *testing.T) {
	dir := &stubDirectory{email: "ada@example.com", name: "Ada"}
	r := NewResolver(testSecret, dir, nil)

	id, err := r.Resolve(context.Background(), signToken(t, testSecret, "u-1", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "u-1", id.ID)
}
