package storage

import (
	"context"
	"errors"

	"harmonika/internal/models"
)

// Keys shared by the customer widget and the admin dashboard.
const (
	KeyChatSessions  = "harmonika_chat_sessions"
	KeyAdminStatus   = "harmonika_admin_status"
	KeyMySessionID   = "harmonika_my_session_id"
	KeyContent       = "harmonika_content"
	KeyAuthenticated = "isAuthenticated"
)

var (
	// ErrNotFound is returned by Get and Version when the key is absent.
	ErrNotFound = models.ErrNotFound
	// ErrConflict is returned when an optimistic update kept losing to other writers.
	ErrConflict = errors.New("storage: concurrent update conflict")
)

// UpdateFunc receives the current value (nil when absent) and returns the new one.
// Returning a nil value with a nil error leaves the key untouched.
type UpdateFunc func(current []byte) ([]byte, error)

// Store is a key-value store scoped to one origin with whole-value read/write semantics.
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update performs an atomic read-modify-write of a single key.
	Update(ctx context.Context, key string, fn UpdateFunc) error
	// Version returns the write counter of key, which grows on every Set or Update.
	Version(ctx context.Context, key string) (uint64, error)
	Close() error
}
