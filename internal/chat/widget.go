package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"harmonika/internal/content"
	"harmonika/internal/models"
	"harmonika/internal/poller"
	"harmonika/internal/presence"
	"harmonika/internal/storage"
)

// WidgetConfig wires a customer view.
type WidgetConfig struct {
	Engine   *Engine
	Presence *presence.Tracker
	// Local is the customer's own store, where the id of its session is remembered. Optional.
	Local storage.Store
	// OnChange is called when a poll observes a new version of the current session or status.
	OnChange func(msg models.ServerMessage)
}

// Widget is the customer side of the chat. It keeps a read-through copy of the
// customer's current session that polling refreshes.
type Widget struct {
	WidgetConfig

	mu      sync.Mutex
	current *models.ChatSession
	status  models.AdminStatus
}

func NewWidget(config WidgetConfig) *Widget {
	return &Widget{WidgetConfig: config, status: models.AdminStatusOnline}
}

// Restore reattaches to the session remembered in the local store.
func (w *Widget) Restore(ctx context.Context) (bool, error) {
	if w.Local == nil {
		return false, nil
	}
	data, err := w.Local.Get(ctx, storage.KeyMySessionID)
	if errors.Is(err, storage.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read own session id: %w", err)
	}

	// Older entries were JSON strings; the id itself is stored bare.
	var id string
	if err := json.Unmarshal(data, &id); err != nil {
		id = strings.TrimSpace(string(data))
	}
	return w.Attach(ctx, id)
}

// Attach makes the session with the given id current if it still exists.
func (w *Widget) Attach(ctx context.Context, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	s, err := w.Engine.Session(ctx, sessionID)
	if errors.Is(err, models.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	w.mu.Lock()
	w.current = &s
	w.mu.Unlock()
	return true, nil
}

// Start opens a new session and makes it current.
func (w *Widget) Start(ctx context.Context, userName, customerID string) (models.ChatSession, error) {
	s, err := w.Engine.StartSession(ctx, userName, customerID)
	if err != nil {
		return models.ChatSession{}, err
	}

	w.mu.Lock()
	w.current = &s
	w.mu.Unlock()

	if w.Local != nil {
		if err := w.Local.Set(ctx, storage.KeyMySessionID, []byte(s.ID)); err != nil {
			w.Engine.Logger.Warn("failed to remember own session id", "session_id", s.ID, "error", err)
		}
	}
	return s, nil
}

// Current returns a copy of the current session.
func (w *Widget) Current() (models.ChatSession, bool) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return models.ChatSession{}, false
	}
	return w.current.Clone(), true
}

func (w *Widget) currentID() string {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.current == nil {
		return ""
	}
	return w.current.ID
}

// Send appends a customer message to the current session.
// Without a current session nothing is written and ErrNoActiveSession is returned.
func (w *Widget) Send(ctx context.Context, in models.MessageInput) (models.ChatMessage, error) {
	id := w.currentID()
	if id == "" {
		return models.ChatMessage{}, models.ErrNoActiveSession
	}

	msg, err := w.Engine.SendUserMessage(ctx, id, in)
	if err != nil {
		return models.ChatMessage{}, err
	}
	if err := w.reload(ctx, id); err != nil {
		return msg, err
	}
	return msg, nil
}

// SendImage uploads raw image bytes as a data-URI attachment.
func (w *Widget) SendImage(ctx context.Context, data []byte) (models.ChatMessage, error) {
	uri, err := content.ImageDataURI(data)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return w.Send(ctx, models.MessageInput{
		Text:           content.ImageAttachmentText,
		AttachmentType: models.AttachmentTypeImage,
		AttachmentURL:  uri,
	})
}

// ShareLocation sends a map link for the given position.
func (w *Widget) ShareLocation(ctx context.Context, latitude, longitude float64) (models.ChatMessage, error) {
	link, err := content.LocationURL(latitude, longitude)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return w.Send(ctx, models.MessageInput{
		Text:           content.LocationAttachmentText,
		AttachmentType: models.AttachmentTypeLocation,
		AttachmentURL:  link,
	})
}

// NotifyTyping is a no-op without a current session.
func (w *Widget) NotifyTyping(ctx context.Context) error {
	id := w.currentID()
	if id == "" {
		return nil
	}
	return w.Engine.NotifyTyping(ctx, id)
}

func (w *Widget) AdminStatus() models.AdminStatus {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.status
}

// Resync re-reads the admin status and the current session. The cached session is
// replaced only when its message count changed.
func (w *Widget) Resync(ctx context.Context) (bool, error) {
	changed := false

	if w.Presence != nil {
		status, err := w.Presence.Status(ctx)
		if err != nil {
			return false, err
		}
		w.mu.Lock()
		statusChanged := status != w.status
		w.status = status
		w.mu.Unlock()
		if statusChanged {
			changed = true
			w.notify(models.ServerMessage{Type: models.ServerMessageTypeStatus, Status: status})
		}
	}

	id := w.currentID()
	if id == "" {
		return changed, nil
	}
	fresh, err := w.Engine.Session(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return changed, nil
	}
	if err != nil {
		return changed, err
	}

	w.mu.Lock()
	replace := w.current != nil && w.current.ID == id && len(fresh.Messages) != len(w.current.Messages)
	if replace {
		w.current = &fresh
	}
	w.mu.Unlock()

	if replace {
		w.notify(models.ServerMessage{Type: models.ServerMessageTypeSession, Session: &fresh})
	}
	return changed || replace, nil
}

// CheckAutoReply runs the engine's auto-reply pass and refreshes the current session if it was answered.
func (w *Widget) CheckAutoReply(ctx context.Context) (bool, error) {
	answered, err := w.Engine.CheckAutoReply(ctx)
	if err != nil {
		return false, err
	}
	id := w.currentID()
	for _, a := range answered {
		if a == id {
			if err := w.reload(ctx, id); err != nil {
				return true, err
			}
			w.mu.Lock()
			s := w.current.Clone()
			w.mu.Unlock()
			w.notify(models.ServerMessage{Type: models.ServerMessageTypeSession, Session: &s})
			return true, nil
		}
	}
	return false, nil
}

// Tasks returns the widget's periodic work for a poller.
func (w *Widget) Tasks(iv Intervals) []poller.Task {
	return []poller.Task{
		{Name: "widget-resync", Interval: iv.Resync, Run: func(ctx context.Context) error {
			_, err := w.Resync(ctx)
			return err
		}},
		{Name: "widget-autoreply", Interval: iv.AutoReply, Run: func(ctx context.Context) error {
			_, err := w.CheckAutoReply(ctx)
			return err
		}},
	}
}

// Close cancels the welcome message of a session started by this widget.
func (w *Widget) Close() {
	if id := w.currentID(); id != "" {
		w.Engine.CancelWelcome(id)
	}
}

func (w *Widget) reload(ctx context.Context, id string) error {
	s, err := w.Engine.Session(ctx, id)
	if err != nil {
		return err
	}
	w.mu.Lock()
	if w.current != nil && w.current.ID == id {
		w.current = &s
	}
	w.mu.Unlock()
	return nil
}

func (w *Widget) notify(msg models.ServerMessage) {
	if w.OnChange != nil {
		w.OnChange(msg)
	}
}
