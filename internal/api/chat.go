package api

import (
	"context"
	"log/slog"
	"net/http"

	"harmonika/internal/chat"
	"harmonika/internal/models"
	"harmonika/internal/presence"
	"harmonika/internal/ws"
)

// ChatHandler serves the customer widget. The customer is identified by the session cookie.
type ChatHandler struct {
	engine    *chat.Engine
	presence  *presence.Tracker
	watcher   *ws.Server
	intervals chat.Intervals
	logger    *slog.Logger
}

func NewChatHandler(engine *chat.Engine, tracker *presence.Tracker, watcher *ws.Server, intervals chat.Intervals) *ChatHandler {
	return &ChatHandler{
		engine:    engine,
		presence:  tracker,
		watcher:   watcher,
		intervals: intervals,
		logger:    engine.Logger,
	}
}

type startRequest struct {
	UserName   string `json:"userName"`
	CustomerID string `json:"customerId,omitempty"`
}

func (h *ChatHandler) newWidget() *chat.Widget {
	return chat.NewWidget(chat.WidgetConfig{Engine: h.engine, Presence: h.presence})
}

// widget attaches to the session named by the cookie.
func (h *ChatHandler) widget(ctx context.Context, r *http.Request) (*chat.Widget, error) {
	w := h.newWidget()
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return w, nil
	}
	if _, err := w.Attach(ctx, c.Value); err != nil {
		return nil, err
	}
	return w, nil
}

func (h *ChatHandler) StartSession(w http.ResponseWriter, r *http.Request) {
	var req startRequest
	if !decode(w, r, &req) {
		return
	}

	s, err := h.newWidget().Start(r.Context(), req.UserName, req.CustomerID)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    s.ID,
		HttpOnly: true,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})
	writeJSON(w, http.StatusCreated, s)
}

func (h *ChatHandler) Session(w http.ResponseWriter, r *http.Request) {
	widget, err := h.widget(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	s, ok := widget.Current()
	if !ok {
		writeError(w, models.ErrNoActiveSession)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in models.MessageInput
	if !decode(w, r, &in) {
		return
	}
	widget, err := h.widget(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := widget.Send(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) ShareLocation(w http.ResponseWriter, r *http.Request) {
	var body locationBody
	if !decode(w, r, &body) {
		return
	}
	if body.Denied {
		writeError(w, models.ErrPermissionDenied)
		return
	}
	widget, err := h.widget(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := widget.ShareLocation(r.Context(), body.Latitude, body.Longitude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *ChatHandler) Typing(w http.ResponseWriter, r *http.Request) {
	widget, err := h.widget(r.Context(), r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := widget.NotifyTyping(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.presence.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: status})
}

// Watch streams the customer's session and the admin status over a websocket.
func (h *ChatHandler) Watch(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	widget, err := h.widget(ctx, r)
	if err != nil {
		writeError(w, err)
		return
	}
	current, ok := widget.Current()
	if !ok {
		writeError(w, models.ErrNoActiveSession)
		return
	}
	if _, err := widget.Resync(ctx); err != nil {
		h.logger.Warn("initial resync failed", "session_id", current.ID, "error", err)
	}

	h.watcher.Serve(w, r, func(push func(models.ServerMessage)) ws.View {
		push(models.ServerMessage{Type: models.ServerMessageTypeSession, Session: &current})
		push(models.ServerMessage{Type: models.ServerMessageTypeStatus, Status: widget.AdminStatus()})
		widget.OnChange = push

		return ws.View{
			Tasks: widget.Tasks(h.intervals),
			HandleClient: func(ctx context.Context, msg models.ClientMessage) error {
				if msg.Type != models.ClientMessageTypeTyping {
					return &models.ValidationError{Field: "type", Reason: "unsupported client message " + string(msg.Type)}
				}
				return widget.NotifyTyping(ctx)
			},
		}
	})
}
