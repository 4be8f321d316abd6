package models

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound = errors.New("not found")
	// ErrNoActiveSession is returned when a customer action needs a current session.
	ErrNoActiveSession  = errors.New("no active chat session")
	ErrPermissionDenied = errors.New("permission denied")
)

// ValidationError is a user-visible input rejection.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

type Sender string

const (
	SenderUser  Sender = "user"
	SenderAdmin Sender = "admin"
)

type AttachmentType string

const (
	AttachmentTypeImage    AttachmentType = "image"
	AttachmentTypeLocation AttachmentType = "location"
)

// ChatMessage is immutable once appended to a session.
type ChatMessage struct {
	ID             string         `json:"id"`
	Text           string         `json:"text"`
	Sender         Sender         `json:"sender"`
	Timestamp      int64          `json:"timestamp"` // Unix milliseconds
	IsAutoReply    bool           `json:"isAutoReply,omitempty"`
	AttachmentType AttachmentType `json:"attachmentType,omitempty"`
	AttachmentURL  string         `json:"attachmentUrl,omitempty"`
}

// ChatSession is one customer's conversation with the support team.
type ChatSession struct {
	ID                  string        `json:"id"`
	CustomerID          string        `json:"customerId,omitempty"`
	UserName            string        `json:"userName"`
	Messages            []ChatMessage `json:"messages"`
	LastUpdated         int64         `json:"lastUpdated"`
	UnreadCount         int           `json:"unreadCount"` // user messages the admin has not seen
	LastTypingTimestamp int64         `json:"lastTypingTimestamp,omitempty"`
}

// LastMessage returns the most recent message, if any.
func (s ChatSession) LastMessage() (ChatMessage, bool) {
	if len(s.Messages) == 0 {
		return ChatMessage{}, false
	}
	return s.Messages[len(s.Messages)-1], true
}

// Clone returns a copy that does not share the message slice.
func (s ChatSession) Clone() ChatSession {
	c := s
	c.Messages = make([]ChatMessage, len(s.Messages))
	copy(c.Messages, s.Messages)
	return c
}

// MessageInput carries what an actor sends; id, sender and timestamp are assigned by the engine.
type MessageInput struct {
	Text           string         `json:"text"`
	AttachmentType AttachmentType `json:"attachmentType,omitempty"`
	AttachmentURL  string         `json:"attachmentUrl,omitempty"`
}

type AdminStatus string

const (
	AdminStatusOnline AdminStatus = "Online"
	AdminStatusAway   AdminStatus = "Away"
)

func (s AdminStatus) Valid() bool {
	return s == AdminStatusOnline || s == AdminStatusAway
}

// Toggle flips Online and Away.
func (s AdminStatus) Toggle() AdminStatus {
	if s == AdminStatusAway {
		return AdminStatusOnline
	}
	return AdminStatusAway
}

// ChatConfig is the chat part of the site content object.
type ChatConfig struct {
	AutoReplyText string `json:"autoReplyText"`
}

// APIResponse is the generic JSON reply of the HTTP API.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

// SessionList is what the admin dashboard renders in its sidebar.
type SessionList struct {
	Sessions    []ChatSession `json:"sessions"`
	TotalUnread int           `json:"totalUnread"`
}

type ServerMessageType string

const (
	ServerMessageTypeSession  ServerMessageType = "session"
	ServerMessageTypeSessions ServerMessageType = "sessions"
	ServerMessageTypeStatus   ServerMessageType = "status"
	ServerMessageTypeTyping   ServerMessageType = "typing"
)

// ServerMessage is pushed to watchers over the websocket stream.
type ServerMessage struct {
	Type        ServerMessageType `json:"type"`
	Session     *ChatSession      `json:"session,omitempty"`
	Sessions    []ChatSession     `json:"sessions,omitempty"`
	TotalUnread int               `json:"totalUnread,omitempty"`
	Status      AdminStatus       `json:"status,omitempty"`
	SessionID   string            `json:"sessionId,omitempty"`
	Typing      bool              `json:"typing,omitempty"`
}

type ClientMessageType string

const (
	// ClientMessageTypeTyping is sent by the widget while the customer composes.
	ClientMessageTypeTyping ClientMessageType = "typing"
	// ClientMessageTypeSelect opens a session on the dashboard.
	ClientMessageTypeSelect ClientMessageType = "select"
)

// ClientMessage is read from watchers over the websocket stream.
type ClientMessage struct {
	Type      ClientMessageType `json:"type"`
	SessionID string            `json:"sessionId,omitempty"`
}
