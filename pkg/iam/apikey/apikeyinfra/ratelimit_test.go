package apikeyinfra

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

func TestMemoryRateLimiter(t *testing.T) {
	clock := kernel.NewFixedClock(time.Date(2026, 3, 1, 10, 0, 5, 0, time.UTC))
	limiter := NewMemoryRateLimiter(clock)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		ok, err := limiter.Allow(ctx, "key-1", 3)
		require.NoError(t, err)
		assert.True(t, ok, "request %d", i+1)
	}

	ok, err := limiter.Allow(ctx, "key-1", 3)
	require.NoError(t, err)
	assert.False(t, ok)

	ok, _ = limiter.Allow(ctx, "key-2", 3)
	assert.True(t, ok, "limits are per key")

	clock.Advance(time.Minute)
	ok, _ = limiter.Allow(ctx, "key-1", 3)
	assert.True(t, ok, "new window")
}
