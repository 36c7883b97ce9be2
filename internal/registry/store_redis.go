package registry

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists call snapshots in Redis.
//
// Layout:
//   <prefix>:call:<session_id>  hash of snapshot fields
//   <prefix>:last_call_id       string
//   <prefix>:voip_token         string
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "callkit"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

func (s *RedisStore) callKey(sessionID string) string {
	return fmt.Sprintf("%s:call:%s", s.prefix, sessionID)
}

func (s *RedisStore) lastCallKey() string { return s.prefix + ":last_call_id" }
func (s *RedisStore) tokenKey() string    { return s.prefix + ":voip_token" }

func (s *RedisStore) LoadSnapshot(ctx context.Context, sessionID string) (map[string]string, bool, error) {
	snap, err := s.rdb.HGetAll(ctx, s.callKey(sessionID)).Result()
	if err != nil {
		return nil, false, err
	}
	if len(snap) == 0 {
		// HGetAll returns an empty map for a missing key.
		return nil, false, nil
	}
	return snap, true, nil
}

func (s *RedisStore) SaveSnapshot(ctx context.Context, sessionID string, snap map[string]string) error {
	if len(snap) == 0 {
		return nil
	}
	// Rewrite the hash whole so fields removed from the snapshot do not
	// linger in storage.
	key := s.callKey(sessionID)
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		pipe.HSet(ctx, key, snap)
		return nil
	})
	return err
}

func (s *RedisStore) DeleteSnapshot(ctx context.Context, sessionID string) error {
	return s.rdb.Del(ctx, s.callKey(sessionID)).Err()
}

func (s *RedisStore) SetLastCallID(ctx context.Context, sessionID string) error {
	return s.rdb.Set(ctx, s.lastCallKey(), sessionID, 0).Err()
}

func (s *RedisStore) LastCallID(ctx context.Context) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.lastCallKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (s *RedisStore) SetVoipToken(ctx context.Context, token string) error {
	return s.rdb.Set(ctx, s.tokenKey(), token, 0).Err()
}

func (s *RedisStore) VoipToken(ctx context.Context) (string, bool, error) {
	v, err := s.rdb.Get(ctx, s.tokenKey()).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, v != "", nil
}

func (s *RedisStore) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.rdb.Scan(ctx, cursor, s.prefix+":call:*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.rdb.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	return s.rdb.Del(ctx, s.lastCallKey(), s.tokenKey()).Err()
}
