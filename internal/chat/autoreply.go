package chat

import (
	"context"
	"fmt"

	"harmonika/internal/content"
	"harmonika/internal/models"
)

// CheckAutoReply answers every session whose customer has waited longer than AutoReplyAfter
// and returns the ids of the sessions it answered. A session is skipped while one of its
// last AutoReplyLookback messages is already an auto-reply, so repeated checks are idempotent.
func (e *Engine) CheckAutoReply(ctx context.Context) ([]string, error) {
	text := content.DefaultAutoReplyText
	if e.Replies != nil {
		text = e.Replies.AutoReplyText(ctx)
	}

	var answered []string
	err := e.Repository.UpdateAll(ctx, func(all []models.ChatSession) ([]models.ChatSession, bool, error) {
		answered = answered[:0]
		now := e.now().UnixMilli()
		for i := range all {
			if !e.needsAutoReply(all[i], now) {
				continue
			}
			all[i].Messages = append(all[i].Messages, models.ChatMessage{
				ID:          e.newID(),
				Text:        text,
				Sender:      models.SenderAdmin,
				Timestamp:   now,
				IsAutoReply: true,
			})
			all[i].LastUpdated = now
			all[i].UnreadCount = 0
			answered = append(answered, all[i].ID)
		}
		return all, len(answered) > 0, nil
	})
	if err != nil {
		return nil, fmt.Errorf("auto-reply check failed: %w", err)
	}

	for _, id := range answered {
		e.Logger.Info("auto-reply sent", "session_id", id)
	}
	return answered, nil
}

func (e *Engine) needsAutoReply(s models.ChatSession, now int64) bool {
	last, ok := s.LastMessage()
	if !ok || last.Sender != models.SenderUser {
		return false
	}
	if now-last.Timestamp <= e.AutoReplyAfter.Milliseconds() {
		return false
	}

	tail := s.Messages[max(0, len(s.Messages)-e.AutoReplyLookback):]
	for _, m := range tail {
		if m.IsAutoReply {
			return false
		}
	}
	return true
}
