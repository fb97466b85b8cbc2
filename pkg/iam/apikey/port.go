package apikey

import (
	"context"
	"time"
)

// Repository is the read side for key validation. Keys are written as part
// of their owner's aggregate; implementations only look them up and record
// usage.
type Repository interface {
	FindByHash(ctx context.Context, keyHash string) (*APIKey, error)
	UpdateLastUsed(ctx context.Context, id string, at time.Time) error
}

// RateLimiter counts requests per key in one-minute windows.
type RateLimiter interface {
	Allow(ctx context.Context, keyID string, perMinute int) (bool, error)
}
