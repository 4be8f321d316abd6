package storage

import (
	"context"
	"time"

	"github.com/c-pro/geche"
)

// MemoryStorage is a process-local Store, used in tests and with HARMONIKA_STORE=memory.
type MemoryStorage struct {
	records *geche.Locker[string, DBRecord]
	now     func() time.Time
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		records: geche.NewLocker[string, DBRecord](geche.NewMapCache[string, DBRecord]()),
		now:     time.Now,
	}
}

func (s *MemoryStorage) Close() error {
	return nil
}

func (s *MemoryStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	tx := s.records.RLock()
	defer tx.Unlock()

	rec, err := tx.Get(key)
	if err != nil {
		return nil, ErrNotFound
	}
	return rec.Value, nil
}

func (s *MemoryStorage) Version(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	tx := s.records.RLock()
	defer tx.Unlock()

	rec, err := tx.Get(key)
	if err != nil {
		return 0, ErrNotFound
	}
	return rec.Version, nil
}

func (s *MemoryStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return value, nil
	})
}

func (s *MemoryStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.records.Lock()
	defer tx.Unlock()

	_ = tx.Del(key)
	return nil
}

func (s *MemoryStorage) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	tx := s.records.Lock()
	defer tx.Unlock()

	var current []byte
	rec, err := tx.Get(key)
	if err == nil {
		current = rec.Value
	}

	value, err := fn(current)
	if err != nil {
		return err
	}
	if value == nil {
		return nil
	}

	// Copy so callers cannot mutate what is stored.
	stored := make([]byte, len(value))
	copy(stored, value)
	tx.Set(key, *rec.next(stored, s.now().UnixMilli()))
	return nil
}
