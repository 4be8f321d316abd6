package content

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"harmonika/internal/models"
	"harmonika/internal/storage"
)

const (
	// DefaultAutoReplyText is sent when the content object carries no auto-reply text.
	DefaultAutoReplyText = "Kami sedang tidak ada di tempat, mohon tinggalkan pesan."

	defaultContactReply = "Kami sedang tidak ada di tempat bisa hubungi kami di info@harmonika.tech\nWhatsApp: +62 851-2130-4526\nCall: 0263-7008009"
)

// DefaultContent is served until an admin saves a content object.
var DefaultContent = json.RawMessage(fmt.Sprintf(`{"chatConfig":{"autoReplyText":%q}}`, defaultContactReply))

// Provider owns the site content object. The chat engine only reads chatConfig from it.
type Provider struct {
	store  storage.Store
	logger *slog.Logger
}

func NewProvider(store storage.Store, logger *slog.Logger) *Provider {
	if logger == nil {
		logger = slog.Default()
	}
	return &Provider{store: store, logger: logger}
}

// Get returns the stored content object, or DefaultContent when none is stored or it is unreadable.
func (p *Provider) Get(ctx context.Context) (json.RawMessage, error) {
	data, err := p.store.Get(ctx, storage.KeyContent)
	if errors.Is(err, storage.ErrNotFound) {
		return DefaultContent, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read content: %w", err)
	}
	if !json.Valid(data) {
		p.logger.Warn("discarding unreadable site content", "key", storage.KeyContent)
		return DefaultContent, nil
	}
	return data, nil
}

// Put replaces the content object. It must be a JSON object whose chatConfig, if present, is well formed.
func (p *Provider) Put(ctx context.Context, data json.RawMessage) error {
	var probe struct {
		ChatConfig *models.ChatConfig `json:"chatConfig"`
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return &models.ValidationError{Field: "content", Reason: "content must be a JSON object"}
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return &models.ValidationError{Field: "chatConfig", Reason: err.Error()}
	}
	if err := p.store.Set(ctx, storage.KeyContent, data); err != nil {
		return fmt.Errorf("failed to save content: %w", err)
	}
	return nil
}

// Reset drops the stored object so DefaultContent applies again.
func (p *Provider) Reset(ctx context.Context) error {
	if err := p.store.Delete(ctx, storage.KeyContent); err != nil {
		return fmt.Errorf("failed to reset content: %w", err)
	}
	return nil
}

// ChatConfig decodes the chat part of the current content object.
func (p *Provider) ChatConfig(ctx context.Context) models.ChatConfig {
	var c struct {
		ChatConfig models.ChatConfig `json:"chatConfig"`
	}
	data, err := p.Get(ctx)
	if err != nil {
		p.logger.Warn("using empty chat config", "error", err)
		return models.ChatConfig{}
	}
	if err := json.Unmarshal(data, &c); err != nil {
		p.logger.Warn("using empty chat config", "error", err)
		return models.ChatConfig{}
	}
	return c.ChatConfig
}

// AutoReplyText is the configured absence reply, falling back to DefaultAutoReplyText.
func (p *Provider) AutoReplyText(ctx context.Context) string {
	if text := p.ChatConfig(ctx).AutoReplyText; text != "" {
		return text
	}
	return DefaultAutoReplyText
}
