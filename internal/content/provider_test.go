package content

import (
	"context"
	"encoding/json"
	"testing"

	"harmonika/internal/models"
	"harmonika/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestProvider(t *testing.T) {
	ctx := context.Background()

	t.Run("Default", func(t *testing.T) {
		p := NewProvider(storage.NewMemoryStorage(), nil)

		data, err := p.Get(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, string(DefaultContent), string(data))
		assert.Contains(t, p.AutoReplyText(ctx), "info@harmonika.tech")
	})

	t.Run("Configured", func(t *testing.T) {
		p := NewProvider(storage.NewMemoryStorage(), nil)
		content := json.RawMessage(`{"hero":{"tagline":"x"},"chatConfig":{"autoReplyText":"Kami sedang tidak ada di tempat"}}`)
		require.NoError(t, p.Put(ctx, content))

		assert.Equal(t, "Kami sedang tidak ada di tempat", p.AutoReplyText(ctx))

		data, err := p.Get(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, string(content), string(data))
	})

	t.Run("EmptyTextFallsBack", func(t *testing.T) {
		p := NewProvider(storage.NewMemoryStorage(), nil)
		require.NoError(t, p.Put(ctx, json.RawMessage(`{"chatConfig":{"autoReplyText":""}}`)))
		assert.Equal(t, DefaultAutoReplyText, p.AutoReplyText(ctx))
	})

	t.Run("Malformed", func(t *testing.T) {
		store := storage.NewMemoryStorage()
		require.NoError(t, store.Set(ctx, storage.KeyContent, []byte("{broken")))
		p := NewProvider(store, nil)

		data, err := p.Get(ctx)
		require.NoError(t, err)
		assert.JSONEq(t, string(DefaultContent), string(data))
	})

	t.Run("Reject", func(t *testing.T) {
		p := NewProvider(storage.NewMemoryStorage(), nil)
		var verr *models.ValidationError

		assert.ErrorAs(t, p.Put(ctx, json.RawMessage(`[1,2]`)), &verr)
		assert.ErrorAs(t, p.Put(ctx, json.RawMessage(`{"chatConfig":"nope"}`)), &verr)
	})

	t.Run("Reset", func(t *testing.T) {
		p := NewProvider(storage.NewMemoryStorage(), nil)
		require.NoError(t, p.Put(ctx, json.RawMessage(`{"chatConfig":{"autoReplyText":"x"}}`)))
		require.NoError(t, p.Reset(ctx))
		assert.Contains(t, p.AutoReplyText(ctx), "info@harmonika.tech")
	})
}
