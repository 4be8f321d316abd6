package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"harmonika/internal/auth"
	"harmonika/internal/chat"
	"harmonika/internal/content"
	"harmonika/internal/models"
	"harmonika/internal/presence"
	"harmonika/internal/ws"
)

// AdminHandler serves the support dashboard. Every route except login requires a token.
type AdminHandler struct {
	authService *auth.AuthService
	engine      *chat.Engine
	presence    *presence.Tracker
	content     *content.Provider
	watcher     *ws.Server
	intervals   chat.Intervals
	logger      *slog.Logger
}

type AdminConfig struct {
	Auth      *auth.AuthService
	Engine    *chat.Engine
	Presence  *presence.Tracker
	Content   *content.Provider
	Watcher   *ws.Server
	Intervals chat.Intervals
}

func NewAdminHandler(config AdminConfig) *AdminHandler {
	return &AdminHandler{
		authService: config.Auth,
		engine:      config.Engine,
		presence:    config.Presence,
		content:     config.Content,
		watcher:     config.Watcher,
		intervals:   config.Intervals,
		logger:      config.Engine.Logger,
	}
}

func (h *AdminHandler) dashboard() *chat.Dashboard {
	return chat.NewDashboard(chat.DashboardConfig{Engine: h.engine, Presence: h.presence})
}

func getToken(r *http.Request) string {
	token := r.Header.Get("token")
	if token == "" {
		if c, err := r.Cookie("token"); err == nil {
			token = c.Value
		}
	}
	return token
}

// RequireAuth rejects requests without a live admin token.
func (h *AdminHandler) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if _, err := h.authService.GetUserID(getToken(r)); err != nil {
			writeJSON(w, http.StatusUnauthorized, models.APIResponse{Message: "Unauthorized"})
			return
		}
		next(w, r)
	}
}

func (h *AdminHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req auth.LoginRequest

	// Support both JSON and Form
	if r.Header.Get("Content-Type") == "application/json" {
		if !decode(w, r, &req) {
			return
		}
	} else {
		if err := r.ParseForm(); err != nil {
			writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: "Failed to parse form"})
			return
		}
		req.Username = r.FormValue("username")
		req.Password = r.FormValue("password")
	}

	resp, err := h.authService.Login(r.Context(), req)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, auth.ErrTooManyAttempts) {
			status = http.StatusTooManyRequests
		}
		writeJSON(w, status, resp)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    resp.Token,
		HttpOnly: true,
		Path:     "/",
		Expires:  time.Unix(resp.TokenExpiry, 0),
	})
	writeJSON(w, http.StatusOK, resp)
}

func (h *AdminHandler) Logout(w http.ResponseWriter, r *http.Request) {
	if token := getToken(r); token != "" {
		_ = h.authService.Logoff(r.Context(), token)
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "token",
		Value:    "",
		HttpOnly: true,
		Path:     "/",
		MaxAge:   -1,
	})
	w.WriteHeader(http.StatusOK)
}

func (h *AdminHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard()
	if _, err := d.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d.List())
}

func (h *AdminHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// selected opens the session named in the path on a fresh dashboard.
func (h *AdminHandler) selected(r *http.Request) (*chat.Dashboard, models.ChatSession, error) {
	d := h.dashboard()
	s, err := d.Select(r.Context(), r.PathValue("id"))
	return d, s, err
}

func (h *AdminHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var in models.MessageInput
	if !decode(w, r, &in) {
		return
	}
	d, _, err := h.selected(r)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := d.Reply(r.Context(), in)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *AdminHandler) ShareLocation(w http.ResponseWriter, r *http.Request) {
	var body locationBody
	if !decode(w, r, &body) {
		return
	}
	if body.Denied {
		writeError(w, models.ErrPermissionDenied)
		return
	}
	d, _, err := h.selected(r)
	if err != nil {
		writeError(w, err)
		return
	}

	msg, err := d.ShareLocation(r.Context(), body.Latitude, body.Longitude)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *AdminHandler) MarkAsRead(w http.ResponseWriter, r *http.Request) {
	_, s, err := h.selected(r)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *AdminHandler) ClearMessages(w http.ResponseWriter, r *http.Request) {
	d, _, err := h.selected(r)
	if err == nil {
		err = d.Clear(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}
	s, _ := d.Selected()
	writeJSON(w, http.StatusOK, s)
}

func (h *AdminHandler) Typing(w http.ResponseWriter, r *http.Request) {
	s, err := h.engine.Session(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, typingBody{Typing: h.engine.IsTyping(s)})
}

func (h *AdminHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.presence.Status(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: status})
}

func (h *AdminHandler) SetStatus(w http.ResponseWriter, r *http.Request) {
	var body statusBody
	if !decode(w, r, &body) {
		return
	}
	if err := h.presence.SetStatus(r.Context(), body.Status); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

func (h *AdminHandler) ToggleStatus(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard()
	if _, err := d.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	status, err := d.ToggleStatus(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, statusBody{Status: status})
}

func (h *AdminHandler) GetContent(w http.ResponseWriter, r *http.Request) {
	data, err := h.content.Get(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (h *AdminHandler) PutContent(w http.ResponseWriter, r *http.Request) {
	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: "Invalid request body"})
		return
	}
	if err := h.content.Put(r.Context(), json.RawMessage(data)); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

func (h *AdminHandler) ResetContent(w http.ResponseWriter, r *http.Request) {
	if err := h.content.Reset(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.APIResponse{Success: true})
}

// Watch streams the session list, the admin status and the typing indicator of the
// session the client selects.
func (h *AdminHandler) Watch(w http.ResponseWriter, r *http.Request) {
	d := h.dashboard()
	if _, err := d.Refresh(r.Context()); err != nil {
		writeError(w, err)
		return
	}

	h.watcher.Serve(w, r, func(push func(models.ServerMessage)) ws.View {
		list := d.List()
		push(models.ServerMessage{Type: models.ServerMessageTypeSessions, Sessions: list.Sessions, TotalUnread: list.TotalUnread})
		push(models.ServerMessage{Type: models.ServerMessageTypeStatus, Status: d.Status()})
		d.OnChange = push

		return ws.View{
			Tasks: d.Tasks(h.intervals),
			HandleClient: func(ctx context.Context, msg models.ClientMessage) error {
				if msg.Type != models.ClientMessageTypeSelect {
					return &models.ValidationError{Field: "type", Reason: "unsupported client message " + string(msg.Type)}
				}
				_, err := d.Select(ctx, msg.SessionID)
				return err
			},
		}
	})
}
