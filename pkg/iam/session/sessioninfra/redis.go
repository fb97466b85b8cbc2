package sessioninfra

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Abraxas-365/nexus-iam/pkg/iam/session"
	"github.com/Abraxas-365/nexus-iam/pkg/iam/user"
	"github.com/Abraxas-365/nexus-iam/pkg/kernel"
)

// RedisSessionStore keeps each session under its own key with the session's
// remaining lifetime as TTL, plus a per-user set of ids.
type RedisSessionStore struct {
	client *redis.Client
}

func NewRedisSessionStore(client *redis.Client) *RedisSessionStore {
	return &RedisSessionStore{client: client}
}

var _ session.Store = (*RedisSessionStore)(nil)

func sessionKey(id kernel.SessionID) string { return "session:" + id.String() }
func userIndexKey(id kernel.UserID) string  { return "session:user:" + id.String() }

func (s *RedisSessionStore) Put(ctx context.Context, sess user.UserSession, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, sessionKey(sess.ID), payload, ttl)
	pipe.SAdd(ctx, userIndexKey(sess.UserID), sess.ID.String())
	pipe.ExpireGT(ctx, userIndexKey(sess.UserID), ttl)
	pipe.ExpireNX(ctx, userIndexKey(sess.UserID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisSessionStore) Get(ctx context.Context, id kernel.SessionID) (*user.UserSession, error) {
	raw, err := s.client.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var sess user.UserSession
	if err := json.Unmarshal(raw, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Update relies on SET XX, so a session deleted concurrently is not written
// back.
func (s *RedisSessionStore) Update(ctx context.Context, sess user.UserSession, ttl time.Duration) (bool, error) {
	payload, err := json.Marshal(sess)
	if err != nil {
		return false, err
	}
	if ttl <= 0 {
		ttl = redis.KeepTTL
	}
	pipe := s.client.TxPipeline()
	set := pipe.SetXX(ctx, sessionKey(sess.ID), payload, ttl)
	if ttl > 0 {
		pipe.ExpireGT(ctx, userIndexKey(sess.UserID), ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return false, err
	}
	return set.Val(), nil
}

func (s *RedisSessionStore) Delete(ctx context.Context, userID kernel.UserID, ids ...kernel.SessionID) error {
	keys := make([]string, len(ids))
	members := make([]any, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(id)
		members[i] = id.String()
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, keys...)
	pipe.SRem(ctx, userIndexKey(userID), members...)
	_, err := pipe.Exec(ctx)
	return err
}

// ListForUser also prunes index entries whose session key has expired.
func (s *RedisSessionStore) ListForUser(ctx context.Context, userID kernel.UserID) ([]user.UserSession, error) {
	ids, err := s.client.SMembers(ctx, userIndexKey(userID)).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return nil, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = sessionKey(kernel.SessionID(id))
	}
	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, err
	}

	var out []user.UserSession
	var stale []any
	for i, v := range values {
		str, ok := v.(string)
		if !ok {
			stale = append(stale, ids[i])
			continue
		}
		var sess user.UserSession
		if err := json.Unmarshal([]byte(str), &sess); err != nil {
			return nil, err
		}
		out = append(out, sess)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, userIndexKey(userID), stale...).Err(); err != nil {
			return nil, err
		}
	}
	return out, nil
}
