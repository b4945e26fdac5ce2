package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/vmihailenco/msgpack/v5"
)

const sessionTTL = 24 * time.Hour

// RedisStore keeps session records in redis. Records are msgpack-encoded under
// "session:<id>" with a "code:<code>" alias for short-code lookup.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore connects to redis and verifies the connection.
func NewRedisStore(ctx context.Context, addr, password string, db int) (*RedisStore, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisStore{rdb: rdb}, nil
}

func (rs *RedisStore) Close() error {
	return rs.rdb.Close()
}

func (rs *RedisStore) Create(ctx context.Context, s *Session) error {
	if existing, err := rs.Get(ctx, s.ID); err == nil && existing.Status != StatusEnded {
		return ErrExists
	}

	data, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := rs.rdb.Set(ctx, "session:"+s.ID, data, sessionTTL).Err(); err != nil {
		return err
	}
	if s.Code != "" {
		if err := rs.rdb.Set(ctx, "code:"+s.Code, s.ID, sessionTTL).Err(); err != nil {
			return err
		}
	}
	return rs.rdb.SAdd(ctx, "sessions", s.ID).Err()
}

func (rs *RedisStore) Get(ctx context.Context, idOrCode string) (*Session, error) {
	id := idOrCode
	if len(idOrCode) == codeLength {
		mapped, err := rs.rdb.Get(ctx, "code:"+idOrCode).Result()
		if err == nil {
			id = mapped
		}
	}

	data, err := rs.rdb.Get(ctx, "session:"+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	var s Session
	if err := msgpack.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("decode session: %w", err)
	}
	return &s, nil
}

func (rs *RedisStore) SetStatus(ctx context.Context, id, status string) error {
	s, err := rs.Get(ctx, id)
	if err != nil {
		return err
	}
	if s.Status == StatusEnded {
		return ErrEnded
	}
	s.Status = status
	s.UpdatedAt = time.Now()

	data, err := msgpack.Marshal(s)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	return rs.rdb.Set(ctx, "session:"+s.ID, data, sessionTTL).Err()
}

func (rs *RedisStore) List(ctx context.Context) ([]*Session, error) {
	ids, err := rs.rdb.SMembers(ctx, "sessions").Result()
	if err != nil {
		return nil, err
	}
	out := make([]*Session, 0, len(ids))
	for _, id := range ids {
		s, err := rs.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue // expired record, set member is stale
		}
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}
