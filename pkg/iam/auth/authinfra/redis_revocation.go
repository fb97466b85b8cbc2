package authinfra

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/auth"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// RedisRevocationStore keeps blacklisted jtis and live refresh-token hashes
// as keys that expire with the token.
type RedisRevocationStore struct {
	client *redis.Client
	clock  kernel.Clock
}

func NewRedisRevocationStore(client *redis.Client, clock kernel.Clock) *RedisRevocationStore {
	return &RedisRevocationStore{client: client, clock: clock}
}

var _ auth.RevocationStore = (*RedisRevocationStore)(nil)

func blacklistKey(jti string) string         { return "auth:blacklist:" + jti }
func refreshKey(hash string) string          { return "auth:refresh:" + hash }
func userRefreshKey(id kernel.UserID) string { return "auth:refresh:user:" + id.String() }

// ttlUntil never returns less than a second so a record is never written
// without expiry.
func (s *RedisRevocationStore) ttlUntil(until time.Time) time.Duration {
	return max(until.Sub(s.clock.Now()), time.Second)
}

func (s *RedisRevocationStore) Blacklist(ctx context.Context, jti string, until time.Time) error {
	return s.client.Set(ctx, blacklistKey(jti), "1", s.ttlUntil(until)).Err()
}

func (s *RedisRevocationStore) IsBlacklisted(ctx context.Context, jti string) (bool, error) {
	n, err := s.client.Exists(ctx, blacklistKey(jti)).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *RedisRevocationStore) StoreRefresh(ctx context.Context, tokenHash string, userID kernel.UserID, until time.Time) error {
	ttl := s.ttlUntil(until)
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, refreshKey(tokenHash), userID.String(), ttl)
	pipe.SAdd(ctx, userRefreshKey(userID), tokenHash)
	pipe.Expire(ctx, userRefreshKey(userID), ttl)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisRevocationStore) ConsumeRefresh(ctx context.Context, tokenHash string) (bool, error) {
	owner, err := s.client.GetDel(ctx, refreshKey(tokenHash)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if err := s.client.SRem(ctx, userRefreshKey(kernel.UserID(owner)), tokenHash).Err(); err != nil {
		return true, err
	}
	return true, nil
}

func (s *RedisRevocationStore) RevokeAllRefresh(ctx context.Context, userID kernel.UserID) error {
	hashes, err := s.client.SMembers(ctx, userRefreshKey(userID)).Result()
	if err != nil {
		return err
	}
	keys := make([]string, 0, len(hashes)+1)
	for _, h := range hashes {
		keys = append(keys, refreshKey(h))
	}
	keys = append(keys, userRefreshKey(userID))
	return s.client.Del(ctx, keys...).Err()
}
