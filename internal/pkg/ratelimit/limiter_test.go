package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.IPLimit = 5
	cfg.KeyLimit = 8
	return cfg
}

func TestCheck_IPWindow(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(NewMemoryStore(), testConfig())

	for i := 0; i < 5; i++ {
		d, err := limiter.Check("10.0.0.1", "")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should pass", i+1)
	}

	d, err := limiter.Check("10.0.0.1", "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, CodeRateLimitExceeded, d.Code)
	assert.Greater(t, d.RetryAfter, time.Duration(0))

	// A different IP is unaffected.
	d, err = limiter.Check("10.0.0.2", "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheck_IPWindowDefaults(t *testing.T) {
	t.Parallel()

	limiter := NewLimiter(NewMemoryStore(), DefaultConfig())

	for i := 0; i < 100; i++ {
		d, err := limiter.Check("10.1.1.1", "")
		require.NoError(t, err)
		require.True(t, d.Allowed, "request %d should pass", i+1)
	}

	d, err := limiter.Check("10.1.1.1", "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, CodeRateLimitExceeded, d.Code)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
}

func TestCheck_LicenseKeyWindow(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.IPLimit = 1000 // keep the IP window out of the way
	limiter := NewLimiter(NewMemoryStore(), cfg)

	for i := 0; i < 8; i++ {
		d, err := limiter.Check("10.0.0.1", "LIC-TEST")
		require.NoError(t, err)
		assert.True(t, d.Allowed, "request %d should pass", i+1)
	}

	d, err := limiter.Check("10.0.0.1", "LIC-TEST")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, CodeLicenseRateLimitExceeded, d.Code)

	// Keyless requests from the same IP still pass.
	d, err = limiter.Check("10.0.0.1", "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestCheck_WindowReset(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	cfg := testConfig()
	limiter := NewLimiter(store, cfg)

	for i := 0; i < 6; i++ {
		_, err := limiter.Check("10.0.0.1", "")
		require.NoError(t, err)
	}
	d, err := limiter.Check("10.0.0.1", "")
	require.NoError(t, err)
	require.False(t, d.Allowed)

	// Window expires, counter re-arms.
	now = now.Add(cfg.IPWindow + time.Second)
	d, err = limiter.Check("10.0.0.1", "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}

func TestRegisterFailure_Hysteresis(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	limiter := NewLimiter(store, DefaultConfig())
	ip := "192.0.2.77"

	blockedAt := make([]int64, 0)
	for i := int64(1); i <= 31; i++ {
		blocked, err := limiter.RegisterFailure(ip)
		require.NoError(t, err)
		if blocked {
			blockedAt = append(blockedAt, i)
		}
	}

	// 20 failures arm nothing; the 25th triggers, 26th-29th stay quiet,
	// the 30th re-arms.
	assert.Equal(t, []int64{25, 30}, blockedAt)
}

func TestRegisterFailure_ArmsHardBlock(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	cfg := DefaultConfig()
	limiter := NewLimiter(store, cfg)
	ip := "192.0.2.78"

	for i := 0; i < 25; i++ {
		_, err := limiter.RegisterFailure(ip)
		require.NoError(t, err)
	}

	d, err := limiter.Check(ip, "")
	require.NoError(t, err)
	assert.False(t, d.Allowed)
	assert.Equal(t, CodeIPBlocked, d.Code)
	assert.Greater(t, d.RetryAfter, time.Duration(0))
	assert.LessOrEqual(t, d.RetryAfter, cfg.BlockDuration)
}

func TestCheck_BlockExpires(t *testing.T) {
	t.Parallel()

	store := NewMemoryStore()
	now := time.Date(2026, 3, 15, 12, 0, 0, 0, time.UTC)
	store.SetClock(func() time.Time { return now })

	cfg := DefaultConfig()
	limiter := NewLimiter(store, cfg)
	ip := "192.0.2.79"

	for i := 0; i < 25; i++ {
		_, err := limiter.RegisterFailure(ip)
		require.NoError(t, err)
	}
	d, err := limiter.Check(ip, "")
	require.NoError(t, err)
	require.Equal(t, CodeIPBlocked, d.Code)

	now = now.Add(cfg.BlockDuration + time.Second)
	d, err = limiter.Check(ip, "")
	require.NoError(t, err)
	assert.True(t, d.Allowed)
}
