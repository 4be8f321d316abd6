package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"harmonika/internal/models"
	"harmonika/internal/storage"
)

// Tracker persists the admin availability flag. Last write wins.
type Tracker struct {
	store  storage.Store
	logger *slog.Logger
}

func NewTracker(store storage.Store, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{store: store, logger: logger}
}

// Status returns the stored status, or Online when it is unset or invalid.
func (t *Tracker) Status(ctx context.Context) (models.AdminStatus, error) {
	data, err := t.store.Get(ctx, storage.KeyAdminStatus)
	if errors.Is(err, storage.ErrNotFound) {
		return models.AdminStatusOnline, nil
	}
	if err != nil {
		return models.AdminStatusOnline, fmt.Errorf("failed to read admin status: %w", err)
	}

	var status models.AdminStatus
	if err := json.Unmarshal(data, &status); err != nil || !status.Valid() {
		// Stored bare; JSON-quoted values are still accepted.
		status = models.AdminStatus(data)
		if !status.Valid() {
			t.logger.Warn("ignoring invalid admin status", "value", string(data))
			return models.AdminStatusOnline, nil
		}
	}
	return status, nil
}

func (t *Tracker) SetStatus(ctx context.Context, status models.AdminStatus) error {
	if !status.Valid() {
		return &models.ValidationError{Field: "status", Reason: fmt.Sprintf("must be %s or %s", models.AdminStatusOnline, models.AdminStatusAway)}
	}
	if err := t.store.Set(ctx, storage.KeyAdminStatus, []byte(status)); err != nil {
		return fmt.Errorf("failed to save admin status: %w", err)
	}
	t.logger.Info("admin status changed", "status", status)
	return nil
}

// Toggle flips the status and returns the new value.
func (t *Tracker) Toggle(ctx context.Context) (models.AdminStatus, error) {
	current, err := t.Status(ctx)
	if err != nil {
		return current, err
	}
	next := current.Toggle()
	return next, t.SetStatus(ctx, next)
}
