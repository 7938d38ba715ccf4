package presence

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultSessionTTL bounds how long a session of a crashed gateway can keep
// its user ACTIVE
const DefaultSessionTTL = 24 * time.Hour

// RedisRegistry shares sessions between gateway instances. Sessions are
// msgpack blobs; each user has a sorted set of session ids scored by the
// time the session expires, so ids left behind by a crashed gateway stop
// counting once their TTL runs out.
type RedisRegistry struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
	now    func() time.Time
}

func NewRedisRegistry(client *redis.Client, ttl time.Duration) *RedisRegistry {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisRegistry{client: client, prefix: "chat:presence", ttl: ttl, now: time.Now}
}

func (r *RedisRegistry) sessionKey(id string) string {
	return fmt.Sprintf("%s:session:%s", r.prefix, id)
}

func (r *RedisRegistry) userKey(userID int64) string {
	return fmt.Sprintf("%s:user:%d", r.prefix, userID)
}

// live queues the pruning of expired ids followed by the count of the rest
func (r *RedisRegistry) live(ctx context.Context, pipe redis.Pipeliner, userID int64) *redis.IntCmd {
	key := r.userKey(userID)
	pipe.ZRemRangeByScore(ctx, key, "-inf", strconv.FormatInt(r.now().UnixMilli(), 10))
	return pipe.ZCard(ctx, key)
}

func (r *RedisRegistry) RegisterSession(ctx context.Context, s Session) (int, error) {
	data, err := msgpack.Marshal(s)
	if err != nil {
		return 0, err
	}

	expiresAt := r.now().Add(r.ttl).UnixMilli()

	var card *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.sessionKey(s.ID), data, r.ttl)
		pipe.ZAdd(ctx, r.userKey(s.UserID), redis.Z{Score: float64(expiresAt), Member: s.ID})
		pipe.Expire(ctx, r.userKey(s.UserID), r.ttl)
		card = r.live(ctx, pipe, s.UserID)
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to register session: %w", err)
	}
	return int(card.Val()), nil
}

func (r *RedisRegistry) LookupSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := r.client.Get(ctx, r.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("corrupt session %s: %w", sessionID, err)
	}
	return &s, nil
}

func (r *RedisRegistry) RemoveSession(ctx context.Context, sessionID string) (*Session, int, error) {
	s, err := r.LookupSession(ctx, sessionID)
	if err != nil {
		return nil, 0, err
	}

	var card *redis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, r.sessionKey(sessionID))
		pipe.ZRem(ctx, r.userKey(s.UserID), sessionID)
		card = r.live(ctx, pipe, s.UserID)
		return nil
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to remove session: %w", err)
	}
	return s, int(card.Val()), nil
}

func (r *RedisRegistry) UserSessionCount(ctx context.Context, userID int64) (int, error) {
	var card *redis.IntCmd
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		card = r.live(ctx, pipe, userID)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return int(card.Val()), nil
}

// Reset drops every session and user key of the registry
func (r *RedisRegistry) Reset(ctx context.Context) error {
	iter := r.client.Scan(ctx, 0, r.prefix+":*", 500).Iterator()

	var keys []string
	for iter.Next(ctx) {
		keys = append(keys, iter.Val())
		if len(keys) == 500 {
			if err := r.client.Del(ctx, keys...).Err(); err != nil {
				return fmt.Errorf("failed to reset sessions: %w", err)
			}
			keys = keys[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("failed to scan sessions: %w", err)
	}
	if len(keys) > 0 {
		if err := r.client.Del(ctx, keys...).Err(); err != nil {
			return fmt.Errorf("failed to reset sessions: %w", err)
		}
	}
	return nil
}
