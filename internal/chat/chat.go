package chat

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"harmonika/internal/content"
	"harmonika/internal/models"
	"harmonika/internal/sessions"

	"github.com/google/uuid"
)

const (
	DefaultWelcomeDelay      = 500 * time.Millisecond
	DefaultAutoReplyAfter    = 60 * time.Second
	DefaultAutoReplyLookback = 3
	DefaultTypingWindow      = 2 * time.Second

	welcomeTimeout = 5 * time.Second
)

// Timer is a pending delayed action.
type Timer interface {
	Stop() bool
}

// Scheduler runs f once after d.
type Scheduler func(d time.Duration, f func()) Timer

// ReplyProvider supplies the configured absence reply text.
type ReplyProvider interface {
	AutoReplyText(ctx context.Context) string
}

type Config struct {
	Repository *sessions.Repository
	Replies    ReplyProvider
	Logger     *slog.Logger

	WelcomeDelay   time.Duration
	AutoReplyAfter time.Duration
	// AutoReplyLookback is how many trailing messages are searched for an earlier auto-reply.
	AutoReplyLookback int
	TypingWindow      time.Duration
}

// Engine implements the chat operations shared by the customer widget and the admin dashboard.
// It is role-agnostic: the notion of a current session belongs to the actor views.
type Engine struct {
	Config

	now      func() time.Time
	newID    func() string
	schedule Scheduler

	mu      sync.Mutex
	pending map[string]Timer // session id -> welcome timer
}

func New(config Config) *Engine {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.WelcomeDelay <= 0 {
		config.WelcomeDelay = DefaultWelcomeDelay
	}
	if config.AutoReplyAfter <= 0 {
		config.AutoReplyAfter = DefaultAutoReplyAfter
	}
	if config.AutoReplyLookback <= 0 {
		config.AutoReplyLookback = DefaultAutoReplyLookback
	}
	if config.TypingWindow <= 0 {
		config.TypingWindow = DefaultTypingWindow
	}

	return &Engine{
		Config: config,
		now:    time.Now,
		newID:  newID,
		schedule: func(d time.Duration, f func()) Timer {
			return time.AfterFunc(d, f)
		},
		pending: make(map[string]Timer),
	}
}

// newID returns a time-ordered UUIDv7, so ids sort by creation order without colliding.
func newID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// WelcomeText is the greeting the support team sends to a new session.
func WelcomeText(userName string) string {
	return fmt.Sprintf("Halo %s, ada yang bisa kami bantu seputar koneksi internet Harmonika Tech?", userName)
}

// StartSession creates and persists an empty session and schedules the welcome message.
func (e *Engine) StartSession(ctx context.Context, userName, customerID string) (models.ChatSession, error) {
	name, err := content.ValidateName(userName)
	if err != nil {
		return models.ChatSession{}, err
	}

	session := models.ChatSession{
		ID:          e.newID(),
		UserName:    name,
		CustomerID:  strings.TrimSpace(content.Sanitize(customerID)),
		Messages:    []models.ChatMessage{},
		LastUpdated: e.now().UnixMilli(),
	}
	if err := e.Repository.Add(ctx, session); err != nil {
		return models.ChatSession{}, fmt.Errorf("failed to start session: %w", err)
	}
	e.Logger.Info("chat session started", "session_id", session.ID, "customer_id", session.CustomerID)

	e.scheduleWelcome(session)
	return session, nil
}

func (e *Engine) scheduleWelcome(session models.ChatSession) {
	t := e.schedule(e.WelcomeDelay, func() {
		e.mu.Lock()
		delete(e.pending, session.ID)
		e.mu.Unlock()

		ctx, cancel := context.WithTimeout(context.Background(), welcomeTimeout)
		defer cancel()
		if _, err := e.SendAdminMessage(ctx, session.ID, models.MessageInput{Text: WelcomeText(session.UserName)}); err != nil {
			e.Logger.Warn("failed to send welcome message", "session_id", session.ID, "error", err)
		}
	})

	e.mu.Lock()
	e.pending[session.ID] = t
	e.mu.Unlock()
}

// CancelWelcome stops a welcome message that has not been sent yet.
func (e *Engine) CancelWelcome(sessionID string) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if t, ok := e.pending[sessionID]; ok {
		t.Stop()
		delete(e.pending, sessionID)
	}
}

// Close stops every pending timer.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()

	for id, t := range e.pending {
		t.Stop()
		delete(e.pending, id)
	}
}

// SendUserMessage appends a customer message and counts it as unread for the admin.
func (e *Engine) SendUserMessage(ctx context.Context, sessionID string, in models.MessageInput) (models.ChatMessage, error) {
	return e.appendMessage(ctx, sessionID, models.SenderUser, in)
}

// SendAdminMessage appends an admin message to any session and clears its unread counter.
func (e *Engine) SendAdminMessage(ctx context.Context, sessionID string, in models.MessageInput) (models.ChatMessage, error) {
	return e.appendMessage(ctx, sessionID, models.SenderAdmin, in)
}

func (e *Engine) appendMessage(ctx context.Context, sessionID string, sender models.Sender, in models.MessageInput) (models.ChatMessage, error) {
	in, err := content.ValidateMessage(in)
	if err != nil {
		return models.ChatMessage{}, err
	}

	now := e.now().UnixMilli()
	msg := models.ChatMessage{
		ID:             e.newID(),
		Text:           in.Text,
		Sender:         sender,
		Timestamp:      now,
		AttachmentType: in.AttachmentType,
		AttachmentURL:  in.AttachmentURL,
	}

	_, err = e.Repository.Update(ctx, sessionID, func(s *models.ChatSession) error {
		s.Messages = append(s.Messages, msg)
		s.LastUpdated = now
		if sender == models.SenderUser {
			s.UnreadCount++
		} else {
			s.UnreadCount = 0
		}
		return nil
	})
	if err != nil {
		return models.ChatMessage{}, err
	}
	return msg, nil
}

// MarkAsRead resets the unread counter without appending a message.
func (e *Engine) MarkAsRead(ctx context.Context, sessionID string) (models.ChatSession, error) {
	return e.Repository.Update(ctx, sessionID, func(s *models.ChatSession) error {
		s.UnreadCount = 0
		return nil
	})
}

// ClearSessionMessages empties the history but keeps the session. The unread counter is
// reset too: the messages it counted no longer exist.
func (e *Engine) ClearSessionMessages(ctx context.Context, sessionID string) (models.ChatSession, error) {
	now := e.now().UnixMilli()
	s, err := e.Repository.Update(ctx, sessionID, func(s *models.ChatSession) error {
		s.Messages = []models.ChatMessage{}
		s.UnreadCount = 0
		s.LastUpdated = now
		return nil
	})
	if err == nil {
		e.Logger.Info("chat history cleared", "session_id", sessionID)
	}
	return s, err
}

// NotifyTyping records that the customer is composing. Callers debounce keystrokes.
func (e *Engine) NotifyTyping(ctx context.Context, sessionID string) error {
	now := e.now().UnixMilli()
	_, err := e.Repository.Update(ctx, sessionID, func(s *models.ChatSession) error {
		s.LastTypingTimestamp = now
		return nil
	})
	return err
}

// IsTyping reports whether the customer typed within the typing window.
func (e *Engine) IsTyping(s models.ChatSession) bool {
	if s.LastTypingTimestamp == 0 {
		return false
	}
	return e.now().UnixMilli()-s.LastTypingTimestamp < e.TypingWindow.Milliseconds()
}

func (e *Engine) Session(ctx context.Context, sessionID string) (models.ChatSession, error) {
	return e.Repository.Find(ctx, sessionID)
}

// Sessions lists every session, most recently updated first.
func (e *Engine) Sessions(ctx context.Context) ([]models.ChatSession, error) {
	all, err := e.Repository.List(ctx)
	if err != nil {
		return nil, err
	}
	slices.SortStableFunc(all, func(a, b models.ChatSession) int {
		return cmp.Compare(b.LastUpdated, a.LastUpdated)
	})
	return all, nil
}

// TotalUnread sums the unread counters shown on the dashboard badge.
func TotalUnread(all []models.ChatSession) int {
	total := 0
	for _, s := range all {
		total += s.UnreadCount
	}
	return total
}
