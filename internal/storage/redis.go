package storage

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

const maxUpdateAttempts = 5

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	Origin   string
}

// RedisStorage shares the store between processes; keys are prefixed with the origin.
type RedisStorage struct {
	client *redis.Client
	prefix string
	now    func() time.Time
}

func NewRedisStorage(cfg RedisConfig) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection test failed: %w", err)
	}

	origin := cfg.Origin
	if origin == "" {
		origin = defaultOrigin
	}

	return &RedisStorage{client: client, prefix: origin + ":", now: time.Now}, nil
}

func (s *RedisStorage) Close() error {
	return s.client.Close()
}

func (s *RedisStorage) Get(ctx context.Context, key string) ([]byte, error) {
	rec, err := s.load(ctx, s.client, key)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrNotFound
	}
	return rec.Value, nil
}

func (s *RedisStorage) Version(ctx context.Context, key string) (uint64, error) {
	rec, err := s.load(ctx, s.client, key)
	if err != nil {
		return 0, err
	}
	if rec == nil {
		return 0, ErrNotFound
	}
	return rec.Version, nil
}

func (s *RedisStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return value, nil
	})
}

func (s *RedisStorage) Delete(ctx context.Context, key string) error {
	if err := s.client.Del(ctx, s.prefix+key).Err(); err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}
	return nil
}

// Update watches the key and retries when another writer commits first.
func (s *RedisStorage) Update(ctx context.Context, key string, fn UpdateFunc) error {
	fullKey := s.prefix + key
	txf := func(tx *redis.Tx) error {
		rec, err := s.load(ctx, tx, key)
		if err != nil {
			return err
		}

		var current []byte
		if rec == nil {
			rec = &DBRecord{}
		} else {
			current = rec.Value
		}

		value, err := fn(current)
		if err != nil {
			return err
		}
		if value == nil {
			return nil
		}

		data, err := rec.next(value, s.now().UnixMilli()).MarshalBinary()
		if err != nil {
			return fmt.Errorf("failed to marshal record %s: %w", key, err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, fullKey, data, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxUpdateAttempts; i++ {
		err := s.client.Watch(ctx, txf, fullKey)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return ErrConflict
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *RedisStorage) load(ctx context.Context, c getter, key string) (*DBRecord, error) {
	data, err := c.Get(ctx, s.prefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", key, err)
	}
	var rec DBRecord
	if err := rec.UnmarshalBinary(data); err != nil {
		slog.Warn("discarding unreadable record", "key", s.prefix+key, "error", err)
		return nil, nil
	}
	return &rec, nil
}
