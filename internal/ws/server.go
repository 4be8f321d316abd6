package ws

import (
	"log/slog"
	"net/http"

	"harmonika/internal/models"

	"github.com/gorilla/websocket"
)

// Binder builds the view of a new watcher. push delivers messages to that watcher.
type Binder func(push func(models.ServerMessage)) View

type Server struct {
	upgrader *websocket.Upgrader
	logger   *slog.Logger
}

func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger: logger,
		upgrader: &websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true // Widget is embedded on other origins
			},
		},
	}
}

// Serve upgrades the request and streams the bound view until the client leaves.
// Authorization happens before Serve is called.
func (s *Server) Serve(w http.ResponseWriter, r *http.Request, bind Binder) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("error upgrading to websocket", "error", err)
		return
	}

	c := NewConnection(conn, s.logger)
	view := bind(c.Push)

	if err := c.Handle(r.Context(), view); err != nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
		s.logger.Debug("watch stream closed", "error", err)
	}
}
