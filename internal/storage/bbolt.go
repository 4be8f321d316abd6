package storage

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.etcd.io/bbolt"
)

const defaultOrigin = "harmonika"

// BboltStorage keeps one bucket per origin.
type BboltStorage struct {
	db     *bbolt.DB
	bucket []byte
	now    func() time.Time
}

func NewBboltStorage(path, origin string) (*BboltStorage, error) {
	if origin == "" {
		origin = defaultOrigin
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bbolt db: %w", err)
	}

	bucket := []byte(origin)
	err = db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create bucket %s: %w", origin, err)
	}

	return &BboltStorage{db: db, bucket: bucket, now: time.Now}, nil
}

func (s *BboltStorage) Close() error {
	return s.db.Close()
}

func (s *BboltStorage) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var value []byte
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, err := s.load(tx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		value = rec.Value
		return nil
	})
	return value, err
}

func (s *BboltStorage) Version(ctx context.Context, key string) (uint64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var version uint64
	err := s.db.View(func(tx *bbolt.Tx) error {
		rec, err := s.load(tx, key)
		if err != nil {
			return err
		}
		if rec == nil {
			return ErrNotFound
		}
		version = rec.Version
		return nil
	})
	return version, err
}

func (s *BboltStorage) Set(ctx context.Context, key string, value []byte) error {
	return s.Update(ctx, key, func([]byte) ([]byte, error) {
		return value, nil
	})
}

func (s *BboltStorage) Delete(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}

// Update runs fn inside a single bbolt write transaction.
func (s *BboltStorage) Update(ctx context.Context, key string, fn UpdateFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.db.Update(func(tx *bbolt.Tx) error {
		rec, err := s.load(tx, key)
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
		return tx.Bucket(s.bucket).Put([]byte(key), data)
	})
}

func (s *BboltStorage) load(tx *bbolt.Tx, key string) (*DBRecord, error) {
	data := tx.Bucket(s.bucket).Get([]byte(key))
	if data == nil {
		return nil, nil
	}
	var rec DBRecord
	if err := rec.UnmarshalBinary(data); err != nil {
		// Treated as absent; the next write replaces it.
		slog.Warn("discarding unreadable record", "key", key, "error", err)
		return nil, nil
	}
	return &rec, nil
}
