package auth0

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	token     string
	expiresAt time.Time
	err       error
	calls     int
}

func (f *fakeSource) Fetch(ctx context.Context) (string, time.Time, error) {
	f.calls++
	return f.token, f.expiresAt, f.err
}

func TestTokenCache_FetchesOnceWhileFresh(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{token: "tok-1", expiresAt: base.Add(time.Hour)}

	cache := NewTokenCache(source)
	cache.now = func() time.Time { return base }

	for i := 0; i < 5; i++ {
		token, err := cache.Get(context.Background())
		require.NoError(t, err)
		assert.Equal(t, "tok-1", token)
	}
	assert.Equal(t, 1, source.calls)
}

func TestTokenCache_RefreshesInsideExpiryMargin(t *testing.T) {
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	source := &fakeSource{token: "tok-1", expiresAt: base.Add(time.Hour)}

	cache := NewTokenCache(source)
	current := base
	cache.now = func() time.Time { return current }

	_, err := cache.Get(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, source.calls)

	// Just before the margin: cached token still valid.
	current = base.Add(time.Hour - expiryMargin - time.Second)
	_, err = cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, source.calls)

	// Inside the margin: a fresh token is fetched.
	source.token = "tok-2"
	source.expiresAt = current.Add(time.Hour)
	current = base.Add(time.Hour - expiryMargin + time.Second)
	token, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token)
	assert.Equal(t, 2, source.calls)
}

func TestTokenCache_PropagatesFetchErrors(t *testing.T) {
	source := &fakeSource{err: errors.New("tenant unreachable")}
	cache := NewTokenCache(source)

	_, err := cache.Get(context.Background())
	assert.Error(t, err)

	// A later successful fetch recovers.
	source.err = nil
	source.token = "tok-1"
	source.expiresAt = time.Now().Add(time.Hour)
	token, err := cache.Get(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token)
}
