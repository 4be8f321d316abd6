package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"harmonika/internal/auth"
	"harmonika/internal/models"
)

// SessionCookie remembers the customer's own session between page loads.
const SessionCookie = "harmonika_my_session_id"

const maxBodyBytes = 8 << 20

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("failed to encode response", "error", err)
	}
}

// writeError maps domain errors to HTTP status codes.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := "internal error"

	var verr *models.ValidationError
	switch {
	case errors.As(err, &verr):
		status, message = http.StatusBadRequest, verr.Error()
	case errors.Is(err, models.ErrNotFound):
		status, message = http.StatusNotFound, "session not found"
	case errors.Is(err, models.ErrNoActiveSession):
		status, message = http.StatusConflict, err.Error()
	case errors.Is(err, models.ErrPermissionDenied):
		status, message = http.StatusForbidden, err.Error()
	case errors.Is(err, auth.ErrTooManyAttempts):
		status, message = http.StatusTooManyRequests, err.Error()
	default:
		slog.Error("request failed", "error", err)
	}

	writeJSON(w, status, models.APIResponse{Success: false, Message: message})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, models.APIResponse{Message: "Invalid request body"})
		return false
	}
	return true
}

type statusBody struct {
	Status models.AdminStatus `json:"status"`
}

type locationBody struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	// Denied is set by the client when the browser refused geolocation.
	Denied bool `json:"denied,omitempty"`
}

type typingBody struct {
	Typing bool `json:"typing"`
}
