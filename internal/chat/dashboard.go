package chat

import (
	"context"
	"errors"
	"sync"

	"harmonika/internal/content"
	"harmonika/internal/models"
	"harmonika/internal/poller"
	"harmonika/internal/presence"
)

type DashboardConfig struct {
	Engine   *Engine
	Presence *presence.Tracker
	OnChange func(msg models.ServerMessage)
}

// Dashboard is the admin side of the chat: every session, one selected at a time.
type Dashboard struct {
	DashboardConfig

	mu       sync.Mutex
	sessions []models.ChatSession
	version  uint64
	selected string
	typing   bool
	status   models.AdminStatus
}

func NewDashboard(config DashboardConfig) *Dashboard {
	return &Dashboard{DashboardConfig: config, status: models.AdminStatusOnline}
}

// Refresh re-reads the session collection and the admin status.
func (d *Dashboard) Refresh(ctx context.Context) (bool, error) {
	version, err := d.Engine.Repository.Version(ctx)
	if err != nil {
		return false, err
	}
	all, err := d.Engine.Sessions(ctx)
	if err != nil {
		return false, err
	}

	var status models.AdminStatus
	if d.Presence != nil {
		if status, err = d.Presence.Status(ctx); err != nil {
			return false, err
		}
	}

	d.mu.Lock()
	sessionsChanged := version != d.version || d.sessions == nil
	d.sessions = all
	d.version = version
	statusChanged := status != "" && status != d.status
	if status != "" {
		d.status = status
	}
	d.mu.Unlock()

	if sessionsChanged {
		d.notify(models.ServerMessage{Type: models.ServerMessageTypeSessions, Sessions: all, TotalUnread: TotalUnread(all)})
	}
	if statusChanged {
		d.notify(models.ServerMessage{Type: models.ServerMessageTypeStatus, Status: status})
	}
	return sessionsChanged || statusChanged, nil
}

// List returns the cached sessions, most recent first, with the unread badge total.
func (d *Dashboard) List() models.SessionList {
	d.mu.Lock()
	defer d.mu.Unlock()

	list := make([]models.ChatSession, len(d.sessions))
	for i, s := range d.sessions {
		list[i] = s.Clone()
	}
	return models.SessionList{Sessions: list, TotalUnread: TotalUnread(list)}
}

// Select opens a session and marks it read.
func (d *Dashboard) Select(ctx context.Context, sessionID string) (models.ChatSession, error) {
	s, err := d.Engine.MarkAsRead(ctx, sessionID)
	if err != nil {
		return models.ChatSession{}, err
	}

	d.mu.Lock()
	d.selected = sessionID
	d.typing = false
	d.mu.Unlock()

	_, err = d.Refresh(ctx)
	return s, err
}

// Selected returns the open session from the cache.
func (d *Dashboard) Selected() (models.ChatSession, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for _, s := range d.sessions {
		if s.ID == d.selected {
			return s.Clone(), true
		}
	}
	return models.ChatSession{}, false
}

func (d *Dashboard) selectedID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.selected
}

// Reply sends an admin message into the selected session.
func (d *Dashboard) Reply(ctx context.Context, in models.MessageInput) (models.ChatMessage, error) {
	id := d.selectedID()
	if id == "" {
		return models.ChatMessage{}, models.ErrNoActiveSession
	}
	msg, err := d.Engine.SendAdminMessage(ctx, id, in)
	if err != nil {
		return models.ChatMessage{}, err
	}
	_, err = d.Refresh(ctx)
	return msg, err
}

// ShareLocation sends the admin's position into the selected session.
func (d *Dashboard) ShareLocation(ctx context.Context, latitude, longitude float64) (models.ChatMessage, error) {
	link, err := content.LocationURL(latitude, longitude)
	if err != nil {
		return models.ChatMessage{}, err
	}
	return d.Reply(ctx, models.MessageInput{
		Text:           content.LocationAttachmentText,
		AttachmentType: models.AttachmentTypeLocation,
		AttachmentURL:  link,
	})
}

// Clear wipes the history of the selected session.
func (d *Dashboard) Clear(ctx context.Context) error {
	id := d.selectedID()
	if id == "" {
		return models.ErrNoActiveSession
	}
	if _, err := d.Engine.ClearSessionMessages(ctx, id); err != nil {
		return err
	}
	_, err := d.Refresh(ctx)
	return err
}

func (d *Dashboard) Status() models.AdminStatus {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.status
}

func (d *Dashboard) SetStatus(ctx context.Context, status models.AdminStatus) error {
	if err := d.Presence.SetStatus(ctx, status); err != nil {
		return err
	}
	d.mu.Lock()
	d.status = status
	d.mu.Unlock()
	return nil
}

func (d *Dashboard) ToggleStatus(ctx context.Context) (models.AdminStatus, error) {
	next := d.Status().Toggle()
	return next, d.SetStatus(ctx, next)
}

// CheckTyping re-reads the selected session and updates the typing indicator.
// Nothing is read while no session is open.
func (d *Dashboard) CheckTyping(ctx context.Context) (bool, error) {
	id := d.selectedID()
	if id == "" {
		return false, nil
	}

	typing := false
	s, err := d.Engine.Session(ctx, id)
	switch {
	case errors.Is(err, models.ErrNotFound):
	case err != nil:
		return false, err
	default:
		typing = d.Engine.IsTyping(s)
	}

	d.mu.Lock()
	changed := typing != d.typing
	d.typing = typing
	d.mu.Unlock()

	if changed {
		d.notify(models.ServerMessage{Type: models.ServerMessageTypeTyping, SessionID: id, Typing: typing})
	}
	return typing, nil
}

func (d *Dashboard) UserTyping() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.typing
}

func (d *Dashboard) Tasks(iv Intervals) []poller.Task {
	return []poller.Task{
		{Name: "dashboard-resync", Interval: iv.Resync, Run: func(ctx context.Context) error {
			_, err := d.Refresh(ctx)
			return err
		}},
		{Name: "dashboard-autoreply", Interval: iv.AutoReply, Run: func(ctx context.Context) error {
			answered, err := d.Engine.CheckAutoReply(ctx)
			if err != nil || len(answered) == 0 {
				return err
			}
			_, err = d.Refresh(ctx)
			return err
		}},
		{Name: "dashboard-typing", Interval: iv.Typing, Run: func(ctx context.Context) error {
			_, err := d.CheckTyping(ctx)
			return err
		}},
	}
}

func (d *Dashboard) notify(msg models.ServerMessage) {
	if d.OnChange != nil {
		d.OnChange(msg)
	}
}
