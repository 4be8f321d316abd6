package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"harmonika/internal/models"
	"harmonika/internal/storage"
)

// ParseError reports a malformed persisted collection.
// The repository recovers from it by treating the collection as empty.
type ParseError struct {
	Key string
	Err error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("malformed %s: %v", e.Key, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

// Repository stores every chat session as one collection value under a single key.
type Repository struct {
	store  storage.Store
	logger *slog.Logger
}

func NewRepository(store storage.Store, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, logger: logger}
}

// List returns all sessions in insertion order. Absent or malformed data yields an empty list.
func (r *Repository) List(ctx context.Context) ([]models.ChatSession, error) {
	data, err := r.store.Get(ctx, storage.KeyChatSessions)
	if errors.Is(err, storage.ErrNotFound) {
		return []models.ChatSession{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read sessions: %w", err)
	}
	return r.decode(data), nil
}

// Save overwrites the whole collection with a single store write.
func (r *Repository) Save(ctx context.Context, sessions []models.ChatSession) error {
	data, err := encode(sessions)
	if err != nil {
		return err
	}
	if err := r.store.Set(ctx, storage.KeyChatSessions, data); err != nil {
		return fmt.Errorf("failed to save sessions: %w", err)
	}
	return nil
}

func (r *Repository) Find(ctx context.Context, id string) (models.ChatSession, error) {
	all, err := r.List(ctx)
	if err != nil {
		return models.ChatSession{}, err
	}
	for _, s := range all {
		if s.ID == id {
			return s, nil
		}
	}
	return models.ChatSession{}, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
}

// Version is the store write counter of the collection, 0 when it was never written.
func (r *Repository) Version(ctx context.Context) (uint64, error) {
	v, err := r.store.Version(ctx, storage.KeyChatSessions)
	if errors.Is(err, storage.ErrNotFound) {
		return 0, nil
	}
	return v, err
}

// Add appends a new session to the collection.
func (r *Repository) Add(ctx context.Context, session models.ChatSession) error {
	return r.UpdateAll(ctx, func(all []models.ChatSession) ([]models.ChatSession, bool, error) {
		return append(all, session), true, nil
	})
}

// Update applies fn to the session with the given id inside one atomic store update
// and returns the session as written.
func (r *Repository) Update(ctx context.Context, id string, fn func(s *models.ChatSession) error) (models.ChatSession, error) {
	var updated models.ChatSession
	err := r.UpdateAll(ctx, func(all []models.ChatSession) ([]models.ChatSession, bool, error) {
		for i := range all {
			if all[i].ID != id {
				continue
			}
			if err := fn(&all[i]); err != nil {
				return nil, false, err
			}
			updated = all[i]
			return all, true, nil
		}
		return nil, false, fmt.Errorf("session %s: %w", id, models.ErrNotFound)
	})
	return updated, err
}

// UpdateAll rewrites the collection when fn reports a change.
func (r *Repository) UpdateAll(ctx context.Context, fn func(all []models.ChatSession) ([]models.ChatSession, bool, error)) error {
	return r.store.Update(ctx, storage.KeyChatSessions, func(current []byte) ([]byte, error) {
		all := []models.ChatSession{}
		if current != nil {
			all = r.decode(current)
		}

		next, changed, err := fn(all)
		if err != nil || !changed {
			return nil, err
		}
		return encode(next)
	})
}

func (r *Repository) decode(data []byte) []models.ChatSession {
	var all []models.ChatSession
	if err := json.Unmarshal(data, &all); err != nil {
		r.logger.Warn("discarding unreadable chat sessions",
			"error", &ParseError{Key: storage.KeyChatSessions, Err: err})
		return []models.ChatSession{}
	}
	if all == nil {
		return []models.ChatSession{}
	}
	for i := range all {
		if all[i].Messages == nil {
			all[i].Messages = []models.ChatMessage{}
		}
	}
	return all
}

func encode(sessions []models.ChatSession) ([]byte, error) {
	if sessions == nil {
		sessions = []models.ChatSession{}
	}
	data, err := json.Marshal(sessions)
	if err != nil {
		return nil, fmt.Errorf("failed to encode sessions: %w", err)
	}
	return data, nil
}
